package hub

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"

	"github.com/spilman/hub/chanstate"
	"github.com/spilman/hub/hubcore"
	"github.com/spilman/hub/logging"
)

// UpdateRequest is one client-submitted channel update.
type UpdateRequest struct {
	Reason  chanstate.UpdateReason `json:"reason"`
	Args    chanstate.UpdateArgs   `json:"args"`
	SigUser string                 `json:"siguser"`
	TxCount uint64                 `json:"txcount"`
}

// DoUpdates applies a batch in ascending txCount order.  The first
// failure stops the batch; rows applied before it stay committed and
// come back alongside the error.
func (h *Hub) DoUpdates(user string, reqs []UpdateRequest) ([]*hubcore.ChannelUpdateRow, error) {
	sorted := make([]UpdateRequest, len(reqs))
	copy(sorted, reqs)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].TxCount < sorted[j].TxCount
	})

	rows := make([]*hubcore.ChannelUpdateRow, 0, len(sorted))
	for _, req := range sorted {
		row, err := h.applyUpdate(user, req)
		if err != nil {
			return rows, fmt.Errorf("update %s at txCount %d: %w", req.Reason, req.TxCount, err)
		}
		if row != nil {
			rows = append(rows, row)
		}
	}
	return rows, nil
}

// applyUpdate is the channel transition function: one request in, one
// ledger row out, nil for deliberately ignored requests, error for
// rejected ones.  Holds the user's lock for the whole sequence.
func (h *Hub) applyUpdate(user string, req UpdateRequest) (*hubcore.ChannelUpdateRow, error) {
	h.userLock.lock(user)
	defer h.userLock.unlock(user)

	row, err := h.Channels.GetChannelOrInitialState(user)
	if err != nil {
		return nil, err
	}
	if row.Status != chanstate.CStatusOpen {
		return nil, fmt.Errorf("%w: channel for %s is %s", hubcore.ErrChannelNotOpen, user, row.Status)
	}

	// the hub may already hold a row at this sequence number
	hubVer, err := h.Channels.GetChannelUpdateByTxCount(user, req.TxCount)
	if err != nil {
		return nil, err
	}
	if hubVer != nil && !hubVer.Invalid && hubVer.State.SigHub != "" {
		if hubVer.State.SigUser != "" {
			// double-signed: idempotent replay
			if req.SigUser != hubVer.State.SigUser {
				return nil, fmt.Errorf("%w: replay of txCount %d with a different user signature",
					hubcore.ErrInvalidSignature, req.TxCount)
			}
			return hubVer, nil
		}

		// the user countersigning a hub-only proposal
		state := hubVer.State.Clone()
		state.SigUser = req.SigUser
		if err := chanstate.AssertChannelSigner(state); err != nil {
			return nil, fmt.Errorf("%w: %v", hubcore.ErrInvalidSignature, err)
		}
		return h.Channels.ApplyUpdateByUser(user, hubVer.Reason, user, state, hubVer.Args, 0)
	}

	switch req.Reason {
	case chanstate.RsnPayment:
		return h.applyPayment(user, row, req)
	case chanstate.RsnProposePendingDeposit, chanstate.RsnProposePendingWithdrawal:
		return h.applyStagedOnchain(user, row, req)
	case chanstate.RsnExchange:
		return h.applyStagedExchange(user, row, req)
	case chanstate.RsnInvalidation:
		return h.applyInvalidation(user, row, req)
	case chanstate.RsnOpenThread:
		return h.applyOpenThread(user, row, req)
	case chanstate.RsnCloseThread:
		return h.applyCloseThread(user, row, req)
	default:
		// ConfirmPending and friends only ever originate inside the hub
		return nil, fmt.Errorf("%w: reason %s", hubcore.ErrUnreachableState, req.Reason)
	}
}

func (h *Hub) applyPayment(user string, row hubcore.ChannelRow, req UpdateRequest) (*hubcore.ChannelUpdateRow, error) {
	args, ok := req.Args.(chanstate.PaymentArgs)
	if !ok {
		return nil, fmt.Errorf("payment update carries %T args", req.Args)
	}
	if req.TxCount != row.State.TxCountGlobal+1 {
		return nil, fmt.Errorf("%w: payment at %d, head is %d",
			hubcore.ErrTxCountMismatch, req.TxCount, row.State.TxCountGlobal)
	}

	next, err := chanstate.GenerateChannelPayment(row.State, args)
	if err != nil {
		return nil, err
	}
	next.SigUser = req.SigUser
	if err := chanstate.AssertChannelSigner(next); err != nil {
		return nil, fmt.Errorf("%w: %v", hubcore.ErrInvalidSignature, err)
	}
	next = h.Signer.SignChannelState(next)
	return h.Channels.ApplyUpdateByUser(user, chanstate.RsnPayment, user, next, args, 0)
}

// applyStagedOnchain finalizes a staged deposit/withdrawal proposal: the
// settlement transaction goes out first, then the double-signed state is
// persisted linked to it, then the cache entry clears.
func (h *Hub) applyStagedOnchain(user string, row hubcore.ChannelRow, req UpdateRequest) (*hubcore.ChannelUpdateRow, error) {
	next, staged, err := h.loadAndCheckPending(user, row.State, req)
	if err != nil || staged == nil {
		return nil, err
	}

	sub := hubcore.TxSubmission{
		From: h.Cfg.HotWalletAddress,
		To:   h.Cfg.ChannelManagerAddress,
		Data: next.Bytes(),
		Meta: hubcore.TxMeta{
			User:               user,
			LastInvalidTxCount: next.TxCountGlobal,
		},
	}
	txnID, err := h.Coord.SendTransaction(sub)
	if err != nil {
		return nil, err
	}
	return h.finalizePending(user, req.Reason, next, staged.Args, txnID)
}

// applyStagedExchange is the same finalization minus the on-chain leg.
func (h *Hub) applyStagedExchange(user string, row hubcore.ChannelRow, req UpdateRequest) (*hubcore.ChannelUpdateRow, error) {
	next, staged, err := h.loadAndCheckPending(user, row.State, req)
	if err != nil || staged == nil {
		return nil, err
	}
	return h.finalizePending(user, req.Reason, next, staged.Args, 0)
}

// loadAndCheckPending recomputes the staged proposal against the current
// head and verifies the user signed exactly that state.  A missing or
// mismatched cache entry is a stale submission: ignored, not an error.
func (h *Hub) loadAndCheckPending(user string, prev chanstate.ChannelState, req UpdateRequest) (chanstate.ChannelState, *PendingUpdate, error) {
	var zero chanstate.ChannelState

	staged := h.pending.Get(user)
	if staged == nil || staged.Reason != req.Reason {
		logging.Infof("no staged %s for %s, ignoring txCount %d\n", req.Reason, user, req.TxCount)
		return zero, nil, nil
	}
	if req.TxCount != prev.TxCountGlobal+1 {
		return zero, nil, fmt.Errorf("%w: staged %s at %d, head is %d",
			hubcore.ErrTxCountMismatch, req.Reason, req.TxCount, prev.TxCountGlobal)
	}

	next, err := chanstate.GenerateFromRequest(prev, req.Reason, staged.Args, req.TxCount)
	if err != nil {
		return zero, nil, err
	}
	next.SigUser = req.SigUser
	if err := chanstate.AssertChannelSigner(next); err != nil {
		return zero, nil, fmt.Errorf("%w: %v", hubcore.ErrInvalidSignature, err)
	}
	return next, staged, nil
}

func (h *Hub) finalizePending(user string, reason chanstate.UpdateReason,
	next chanstate.ChannelState, args chanstate.UpdateArgs, txnID int64) (*hubcore.ChannelUpdateRow, error) {

	next = h.Signer.SignChannelState(next)
	applied, err := h.Channels.ApplyUpdateByUser(user, reason, user, next, args, txnID)
	if err != nil {
		return nil, err
	}
	h.pending.Delete(user)
	return applied, nil
}

func (h *Hub) applyInvalidation(user string, row hubcore.ChannelRow, req UpdateRequest) (*hubcore.ChannelUpdateRow, error) {
	args, ok := req.Args.(chanstate.InvalidationArgs)
	if !ok {
		return nil, fmt.Errorf("invalidation update carries %T args", req.Args)
	}

	// timeouts are judged against chain time, never the wall clock
	block, err := h.Blocks.LatestBlock()
	if err != nil {
		return nil, err
	}
	if row.State.Timeout != 0 && block.Timestamp < row.State.Timeout {
		return nil, fmt.Errorf("cannot invalidate before timeout %d, block time is %d",
			row.State.Timeout, block.Timestamp)
	}

	lastRow, err := h.Channels.GetLastStateNoPendingOps(user)
	if err != nil {
		return nil, err
	}
	lastState := chanstate.NewEmptyChannelState(user)
	if lastRow != nil {
		lastState = lastRow.State
	}

	next, err := chanstate.GenerateInvalidation(lastState, args)
	if err != nil {
		return nil, err
	}
	next.SigUser = req.SigUser
	if err := chanstate.AssertChannelSigner(next); err != nil {
		return nil, fmt.Errorf("%w: %v", hubcore.ErrInvalidSignature, err)
	}
	next = h.Signer.SignChannelState(next)

	applied, err := h.Channels.ApplyUpdateByUser(user, chanstate.RsnInvalidation, user, next, args, 0)
	if err != nil {
		return nil, err
	}
	if err := h.Channels.InvalidateUpdates(user, args); err != nil {
		return nil, err
	}
	return applied, nil
}

func (h *Hub) applyOpenThread(user string, row hubcore.ChannelRow, req UpdateRequest) (*hubcore.ChannelUpdateRow, error) {
	ts, ok := req.Args.(chanstate.ThreadState)
	if !ok {
		return nil, fmt.Errorf("open-thread update carries %T args", req.Args)
	}
	if req.TxCount != row.State.TxCountGlobal+1 {
		return nil, fmt.Errorf("%w: open thread at %d, head is %d",
			hubcore.ErrTxCountMismatch, req.TxCount, row.State.TxCountGlobal)
	}

	// make sure the receiver's channel can absorb the incoming payments
	if ts.Receiver != user {
		if _, err := h.CollateralizeIfNecessary(ts.Receiver); err != nil {
			logging.Errorf("collateralize for %s: %s\n", ts.Receiver, err.Error())
		}
	}

	open, err := h.Threads.GetOpenThreads()
	if err != nil {
		return nil, err
	}
	root := threadSetRoot(append(open, ts))

	next, err := chanstate.GenerateOpenThread(row.State, ts, user, root)
	if err != nil {
		return nil, err
	}
	next.SigUser = req.SigUser
	if err := chanstate.AssertChannelSigner(next); err != nil {
		return nil, fmt.Errorf("%w: %v", hubcore.ErrInvalidSignature, err)
	}

	if _, err := h.Threads.Open(ts, ts.SigA); err != nil {
		return nil, err
	}

	next = h.Signer.SignChannelState(next)
	return h.Channels.ApplyUpdateByUser(user, chanstate.RsnOpenThread, user, next, ts, 0)
}

func (h *Hub) applyCloseThread(user string, row hubcore.ChannelRow, req UpdateRequest) (*hubcore.ChannelUpdateRow, error) {
	ts, ok := req.Args.(chanstate.ThreadState)
	if !ok {
		return nil, fmt.Errorf("close-thread update carries %T args", req.Args)
	}
	if req.TxCount != row.State.TxCountGlobal+1 {
		return nil, fmt.Errorf("%w: close thread at %d, head is %d",
			hubcore.ErrTxCountMismatch, req.TxCount, row.State.TxCountGlobal)
	}

	open, err := h.Threads.GetOpenThreads()
	if err != nil {
		return nil, err
	}

	// the fold amounts come from the booked thread state, never the args
	var booked chanstate.ThreadState
	found := false
	remaining := make([]chanstate.ThreadState, 0, len(open))
	for _, t := range open {
		if t.Sender == ts.Sender && t.Receiver == ts.Receiver {
			booked = t
			found = true
			continue
		}
		remaining = append(remaining, t)
	}
	if !found {
		// the other party may have folded first; the registry keeps the
		// booked state until both channels settle
		retired, err := h.Threads.GetRetiredThread(ts.Sender, ts.Receiver)
		if err != nil {
			return nil, err
		}
		if retired == nil {
			return nil, fmt.Errorf("no open thread %s->%s", ts.Sender, ts.Receiver)
		}
		booked = *retired
	}

	next, err := chanstate.GenerateCloseThread(row.State, booked, user, threadSetRoot(remaining))
	if err != nil {
		return nil, err
	}
	next.SigUser = req.SigUser
	if err := chanstate.AssertChannelSigner(next); err != nil {
		return nil, fmt.Errorf("%w: %v", hubcore.ErrInvalidSignature, err)
	}

	if _, err := h.Threads.Close(ts.Sender, ts.Receiver, ts.SigA, user == ts.Sender); err != nil {
		return nil, err
	}

	next = h.Signer.SignChannelState(next)
	return h.Channels.ApplyUpdateByUser(user, chanstate.RsnCloseThread, user, next, booked, 0)
}

// threadSetRoot commits to the open-thread set: sha256 over the canonical
// thread encodings in key order.
func threadSetRoot(threads []chanstate.ThreadState) string {
	if len(threads) == 0 {
		return chanstate.EmptyThreadRoot
	}
	sorted := make([]chanstate.ThreadState, len(threads))
	copy(sorted, threads)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].Sender+"|"+sorted[i].Receiver < sorted[j].Sender+"|"+sorted[j].Receiver
	})

	hs := sha256.New()
	for i := range sorted {
		hs.Write(sorted[i].Bytes())
	}
	return hex.EncodeToString(hs.Sum(nil))
}
