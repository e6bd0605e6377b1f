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

// RequestDeposit stages the user's on-chain deposit together with the
// hub's matching token deposit, and appends the hub-signed proposal as a
// half-applied ledger row.  The user's authorization over the amounts
// rides in the args; their countersignature over the state arrives later
// through DoUpdates.
//
// Returns (nil, nil) while a prior proposal's timeout has not elapsed:
// repeated requests during an in-flight operation are debounced, not
// failed.
func (h *Hub) RequestDeposit(user string, amountWei, amountToken *big.Int, sigUser string) (*hubcore.ChannelUpdateRow, error) {
	h.userLock.lock(user)
	defer h.userLock.unlock(user)

	amountWei = hubutil.OrZero(amountWei)
	amountToken = hubutil.OrZero(amountToken)

	row, err := h.Channels.GetChannelOrInitialState(user)
	if err != nil {
		return nil, err
	}
	if row.Status != chanstate.CStatusOpen {
		return nil, fmt.Errorf("%w: channel for %s is %s", hubcore.ErrChannelNotOpen, user, row.Status)
	}
	if err := chanstate.AssertDepositRequestSigner(user, amountWei, amountToken, sigUser); err != nil {
		return nil, fmt.Errorf("%w: %v", hubcore.ErrInvalidSignature, err)
	}

	block, err := h.Blocks.LatestBlock()
	if err != nil {
		return nil, err
	}
	if row.State.HasPendingOps() {
		if row.State.Timeout == 0 || block.Timestamp < row.State.Timeout {
			logging.Infof("deposit for %s debounced, pending ops still in flight\n", user)
			return nil, nil
		}
		return nil, fmt.Errorf("%w: expired pending ops need invalidation first", hubcore.ErrPendingOpsExist)
	}

	rate, _, err := h.currentRate()
	if err != nil {
		return nil, err
	}
	userTokens, err := h.Channels.GetTotalChannelTokensPlusThreadBonds(user)
	if err != nil {
		return nil, err
	}

	// match the wei deposit with token collateral, up to the per-channel
	// ceiling and net of what the hub already holds
	bootyRequest := hubutil.MulRatFloor(amountWei, rate)
	alreadyHeld := new(big.Int).Add(userTokens, row.State.BalanceTokenHub)
	total := new(big.Int).Add(bootyRequest, alreadyHeld)

	var hubDeposit *big.Int
	switch {
	case bootyRequest.Cmp(row.State.BalanceTokenHub) <= 0:
		hubDeposit = big.NewInt(0)
	case total.Cmp(h.Cfg.BeiLimit) > 0:
		hubDeposit = new(big.Int).Sub(h.Cfg.BeiLimit, alreadyHeld)
	default:
		hubDeposit = new(big.Int).Sub(bootyRequest, row.State.BalanceTokenHub)
	}
	hubDeposit = hubutil.ClampZero(hubDeposit)

	args := chanstate.DepositArgs{
		DepositWeiHub:    big.NewInt(0),
		DepositWeiUser:   amountWei,
		DepositTokenHub:  hubDeposit,
		DepositTokenUser: amountToken,
		Timeout:          block.Timestamp + consts.ChannelTimeout,
		SigUser:          sigUser,
	}
	next, err := chanstate.GenerateProposePendingDeposit(row.State, args)
	if err != nil {
		return nil, err
	}
	next = h.Signer.SignChannelState(next)

	applied, err := h.Channels.ApplyUpdateByUser(user, chanstate.RsnProposePendingDeposit,
		h.Signer.Address(), next, args, 0)
	if err != nil {
		return nil, err
	}
	logging.Infof("staged deposit for %s: %s wei, %s + %s bei\n",
		user, hubutil.WeiColor(amountWei), hubutil.BeiColor(amountToken), hubutil.BeiColor(hubDeposit))
	return applied, nil
}
