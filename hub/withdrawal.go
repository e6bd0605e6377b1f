package hub

import (
	"fmt"
	"math/big"

	"github.com/spilman/hub/chanstate"
	"github.com/spilman/hub/consts"
	"github.com/spilman/hub/hubcore"
	"github.com/spilman/hub/hubutil"
	"github.com/spilman/hub/logging"
)

// WithdrawalParams is what a client asks for when pulling funds out of
// their channel.
type WithdrawalParams struct {
	Recipient    string
	ExchangeRate string

	// TokensToSell are sold back to the hub at ExchangeRate and leave
	// as wei.
	TokensToSell *big.Int

	// WeiToSell and WithdrawalTokenUser must be zero: the hub does not
	// buy wei or return raw token balance on withdrawal.
	WeiToSell           *big.Int
	WithdrawalTokenUser *big.Int

	// WithdrawalWeiUser is the wei balance pulled out directly.
	WithdrawalWeiUser *big.Int
}

// RequestWithdrawal builds and stages a withdrawal proposal.  Returns
// (nil, nil) when every resulting pending amount falls below the minimum
// worth putting on chain.
func (h *Hub) RequestWithdrawal(user string, params WithdrawalParams) (*chanstate.WithdrawalArgs, error) {
	h.userLock.lock(user)
	defer h.userLock.unlock(user)

	row, err := h.Channels.GetChannelOrInitialState(user)
	if err != nil {
		return nil, err
	}
	if row.Status != chanstate.CStatusOpen {
		return nil, fmt.Errorf("%w: channel for %s is %s", hubcore.ErrChannelNotOpen, user, row.Status)
	}
	if hubutil.OrZero(params.WeiToSell).Sign() != 0 || hubutil.OrZero(params.WithdrawalTokenUser).Sign() != 0 {
		return nil, fmt.Errorf("withdrawal cannot sell wei or return raw token balance")
	}
	if row.State.HasPendingOps() {
		return nil, fmt.Errorf("%w: withdrawal for %s", hubcore.ErrPendingOpsExist, user)
	}

	current, _, err := h.currentRate()
	if err != nil {
		return nil, err
	}
	proposed, err := hubutil.ParseRate(params.ExchangeRate)
	if err != nil {
		return nil, err
	}
	if !rateWithinDeviation(proposed, current, consts.RateMaxDeviationPct) {
		return nil, fmt.Errorf("%w: proposed %s, current %s",
			hubcore.ErrRateDeviation, proposed.FloatString(4), current.FloatString(4))
	}

	tokensToSell := hubutil.OrZero(params.TokensToSell)
	weiDraw := hubutil.OrZero(params.WithdrawalWeiUser)

	targetWeiUser := new(big.Int).Sub(row.State.BalanceWeiUser, weiDraw)
	if targetWeiUser.Sign() < 0 {
		return nil, fmt.Errorf("withdrawal of %s wei exceeds balance %s",
			weiDraw.String(), row.State.BalanceWeiUser.String())
	}
	targetTokenUser := new(big.Int).Sub(row.State.BalanceTokenUser, tokensToSell)
	if targetTokenUser.Sign() < 0 {
		return nil, fmt.Errorf("sale of %s bei exceeds balance %s",
			tokensToSell.String(), row.State.BalanceTokenUser.String())
	}

	// hub token target: cover the user's remaining wei, capped per
	// channel, but never below the collateral ceiling while they're
	// receiving payments
	hubTokenTarget := hubutil.BigMin(hubutil.MulRatFloor(targetWeiUser, proposed), h.Cfg.BeiLimit)
	targets, err := h.CalculateCollateralizationTargets(user)
	if err != nil {
		return nil, err
	}
	if targets.HasRecentPayments {
		hubTokenTarget = hubutil.BigMax(hubTokenTarget, targets.MaxAmount)
	}

	block, err := h.Blocks.LatestBlock()
	if err != nil {
		return nil, err
	}
	args := &chanstate.WithdrawalArgs{
		Seller:       "user",
		ExchangeRate: params.ExchangeRate,
		TokensToSell: tokensToSell,
		WeiToSell:    big.NewInt(0),

		Recipient: params.Recipient,

		TargetWeiUser:   targetWeiUser,
		TargetTokenUser: targetTokenUser,
		TargetWeiHub:    big.NewInt(0),
		TargetTokenHub:  hubTokenTarget,

		AdditionalWeiHubToUser:   big.NewInt(0),
		AdditionalTokenHubToUser: big.NewInt(0),

		Timeout: block.Timestamp + consts.ChannelTimeout,
	}

	next, err := chanstate.GenerateProposePendingWithdrawal(row.State, *args)
	if err != nil {
		return nil, err
	}
	if belowWithdrawalThreshold(&next) {
		logging.Infof("withdrawal for %s below on-chain threshold, suppressed\n", user)
		return nil, nil
	}

	h.pending.Set(user, chanstate.RsnProposePendingWithdrawal, *args)
	return args, nil
}

// belowWithdrawalThreshold is true when no pending amount is worth an
// on-chain operation.
func belowWithdrawalThreshold(s *chanstate.ChannelState) bool {
	for _, p := range s.PendingFields() {
		if p.Cmp(consts.MinWithdrawalBei) >= 0 {
			return false
		}
	}
	return true
}

func rateWithinDeviation(proposed, current *big.Rat, pct int64) bool {
	diff := new(big.Rat).Sub(proposed, current)
	diff.Abs(diff)
	limit := new(big.Rat).Mul(current, big.NewRat(pct, 100))
	return diff.Cmp(limit) <= 0
}
