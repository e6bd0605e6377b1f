package hub

import (
	"fmt"
	"math/big"

	"github.com/spilman/hub/chanstate"
	"github.com/spilman/hub/hubcore"
	"github.com/spilman/hub/hubutil"
	"github.com/spilman/hub/logging"
)

// adjustExchangeAmount caps a sale so the counterparty's payout never
// exceeds limit: the capped sale is min(requested, limit / rate).
func adjustExchangeAmount(requested, limit *big.Int, rate *big.Rat) *big.Int {
	return hubutil.BigMin(hubutil.OrZero(requested), hubutil.DivRatFloor(limit, rate))
}

// RequestExchange stages an off-chain wei/token swap at the hub's
// current rate.  Amounts are capped to what the hub side can pay out;
// if both cap to zero there is nothing to do and (nil, nil) comes back.
func (h *Hub) RequestExchange(user string, weiToSell, tokensToSell *big.Int) (*chanstate.ExchangeArgs, error) {
	h.userLock.lock(user)
	defer h.userLock.unlock(user)

	row, err := h.Channels.GetChannelOrInitialState(user)
	if err != nil {
		return nil, err
	}
	if row.Status != chanstate.CStatusOpen {
		return nil, fmt.Errorf("%w: channel for %s is %s", hubcore.ErrChannelNotOpen, user, row.Status)
	}
	if h.pending.Get(user) != nil {
		return nil, fmt.Errorf("%w: exchange for %s", hubcore.ErrPendingRequestExists, user)
	}
	if row.State.HasPendingOps() {
		return nil, fmt.Errorf("%w: exchange for %s", hubcore.ErrPendingOpsExist, user)
	}

	rate, snap, err := h.currentRate()
	if err != nil {
		return nil, err
	}

	// selling wei pays out hub tokens, bounded by the per-channel
	// token ceiling
	tokenLimit := hubutil.BigMin(row.State.BalanceTokenHub, h.Cfg.BeiDeposit)
	cappedWei := adjustExchangeAmount(weiToSell, tokenLimit, rate)

	// selling tokens pays out hub wei
	cappedTokens := hubutil.BigMin(hubutil.OrZero(tokensToSell),
		hubutil.MulRatFloor(row.State.BalanceWeiHub, rate))

	if cappedWei.Sign() == 0 && cappedTokens.Sign() == 0 {
		logging.Infof("exchange for %s caps to zero on both sides\n", user)
		return nil, nil
	}

	args := &chanstate.ExchangeArgs{
		Seller:       "user",
		ExchangeRate: snap.RateUSD,
		WeiToSell:    cappedWei,
		TokensToSell: cappedTokens,
	}
	if _, err := chanstate.GenerateExchange(row.State, *args); err != nil {
		return nil, err
	}

	h.pending.Set(user, chanstate.RsnExchange, *args)
	return args, nil
}
