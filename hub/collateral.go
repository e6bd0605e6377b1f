package hub

import (
	"math/big"

	"github.com/spilman/hub/chanstate"
	"github.com/spilman/hub/consts"
	"github.com/spilman/hub/hubutil"
	"github.com/spilman/hub/logging"
)

// CollateralTargets is the band the hub's token balance in one channel
// should sit inside, sized off recent payment activity.
type CollateralTargets struct {
	MinAmount         *big.Int
	MaxAmount         *big.Int
	HasRecentPayments bool
}

// CalculateCollateralizationTargets sizes collateral from the recent
// tipper count n:
//
//	baseTarget = n * threadLimit
//	baseMin    = minCollateral if n > 0, else 10 tokens
//	min        = max(baseMin, baseTarget) / 2
//	max        = min(maxCollateral, max(baseMin, baseTarget * 5/2))
func (h *Hub) CalculateCollateralizationTargets(user string) (CollateralTargets, error) {
	n, err := h.Channels.GetRecentTippers(user)
	if err != nil {
		return CollateralTargets{}, err
	}

	baseTarget := new(big.Int).Mul(big.NewInt(int64(n)), h.Cfg.ThreadLimit)
	baseMin := new(big.Int).Mul(big.NewInt(10), consts.BeiPerToken)
	if n > 0 {
		baseMin = h.Cfg.MinCollateral
	}

	return CollateralTargets{
		MinAmount: hubutil.MulFrac(hubutil.BigMax(baseMin, baseTarget), 1, 2),
		MaxAmount: hubutil.BigMin(h.Cfg.MaxCollateral,
			hubutil.BigMax(baseMin, hubutil.MulFrac(baseTarget, 5, 2))),
		HasRecentPayments: n > 0,
	}, nil
}

// CollateralizeIfNecessary stages a hub token deposit when the channel
// has drifted below its collateral band.  Every early return is a
// deliberate no-op: non-open channel, in-flight pending ops, a recent
// staged proposal (60s debounce), or a balance already inside the band.
//
// Does not take the user lock: it only reads and stages, and it gets
// called from inside another user's apply (thread open).  Staleness is
// tolerated by the exact txCount check at apply time.
func (h *Hub) CollateralizeIfNecessary(user string) (*chanstate.DepositArgs, error) {
	row, err := h.Channels.GetChannelOrInitialState(user)
	if err != nil {
		return nil, err
	}
	if row.Status != chanstate.CStatusOpen {
		return nil, nil
	}
	if row.State.HasPendingOps() {
		return nil, nil
	}
	if staged := h.pending.Get(user); staged != nil &&
		h.now().Sub(staged.Timestamp) < consts.CollateralDebounce {
		return nil, nil
	}

	targets, err := h.CalculateCollateralizationTargets(user)
	if err != nil {
		return nil, err
	}

	cur := row.State.BalanceTokenHub
	if cur.Cmp(targets.MaxAmount) > 0 {
		// withdrawing excess collateral back out is not implemented;
		// the surplus just sits until the user's activity burns it down
		logging.Infof("channel %s holds %s bei over collateral ceiling %s\n",
			user, hubutil.BeiColor(cur), hubutil.BeiColor(targets.MaxAmount))
		return nil, nil
	}
	if cur.Cmp(targets.MinAmount) >= 0 {
		return nil, nil
	}

	block, err := h.Blocks.LatestBlock()
	if err != nil {
		return nil, err
	}
	args := &chanstate.DepositArgs{
		DepositWeiHub:    big.NewInt(0),
		DepositWeiUser:   big.NewInt(0),
		DepositTokenHub:  new(big.Int).Sub(targets.MaxAmount, cur),
		DepositTokenUser: big.NewInt(0),
		Timeout:          block.Timestamp + consts.ChannelTimeout,
	}
	h.pending.Set(user, chanstate.RsnProposePendingDeposit, *args)
	logging.Infof("staged collateral top-up of %s bei for %s\n",
		hubutil.BeiColor(args.DepositTokenHub), user)
	return args, nil
}
