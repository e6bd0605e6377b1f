package hub

import (
	"github.com/spilman/hub/chanstate"
	"github.com/spilman/hub/hubcore"
	"github.com/spilman/hub/logging"
)

// InvalidateFailedUpdate rolls a user's ledger back to the last
// confirmed no-pending-ops state after a settlement transaction failed.
// The hub signs alone; the user picks the rollback up on their next sync
// and countersigns it like any other hub proposal.
func (h *Hub) InvalidateFailedUpdate(meta hubcore.TxMeta) error {
	h.userLock.lock(meta.User)
	defer h.userLock.unlock(meta.User)

	lastRow, err := h.Channels.GetLastStateNoPendingOps(meta.User)
	if err != nil {
		return err
	}
	lastState := chanstate.NewEmptyChannelState(meta.User)
	if lastRow != nil {
		lastState = lastRow.State
	}

	args := chanstate.InvalidationArgs{
		LastInvalidTxCount:   meta.LastInvalidTxCount,
		PreviousValidTxCount: lastState.TxCountGlobal,
		Reason:               "CU_INVALID_ERROR",
		Message:              "on-chain transaction failed",
	}
	next, err := chanstate.GenerateInvalidation(lastState, args)
	if err != nil {
		return err
	}
	next = h.Signer.SignChannelState(next)

	if _, err := h.Channels.ApplyUpdateByUser(meta.User, chanstate.RsnInvalidation,
		h.Signer.Address(), next, args, 0); err != nil {
		return err
	}
	logging.Infof("rolled %s back to txCount %d after failed settlement\n",
		meta.User, args.PreviousValidTxCount)
	return nil
}
