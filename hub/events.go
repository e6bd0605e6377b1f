package hub

import (
	"github.com/spilman/hub/eventbus"
	"github.com/spilman/hub/hubcore"
	"github.com/spilman/hub/logging"
)

// TxResolvedEventName tags settlement transaction completion events.
const TxResolvedEventName = "hub.txresolved"

// TxResolvedEvent is published by the coordinator when a dispatched
// settlement transaction confirms or fails.
type TxResolvedEvent struct {
	LogicalID int64
	Meta      hubcore.TxMeta
	Failed    bool
	Info      string
}

// Name .
func (e TxResolvedEvent) Name() string {
	return TxResolvedEventName
}

// Flags .
func (e TxResolvedEvent) Flags() uint8 {
	return eventbus.EFLAG_ASYNC
}

// handleTxResolved repairs the ledger after a failed settlement leg.  A
// confirmed transaction needs no action; the pending fields clear when
// the chain watcher books the confirmation.
func (h *Hub) handleTxResolved(e eventbus.Event) eventbus.EventHandleResult {
	ev, ok := e.(TxResolvedEvent)
	if !ok {
		return eventbus.EHANDLE_OK
	}
	if !ev.Failed {
		logging.Debugf("settlement tx %d for %s confirmed\n", ev.LogicalID, ev.Meta.User)
		return eventbus.EHANDLE_OK
	}
	logging.Warnf("settlement tx %d for %s failed: %s\n", ev.LogicalID, ev.Meta.User, ev.Info)
	if err := h.InvalidateFailedUpdate(ev.Meta); err != nil {
		logging.Errorf("rollback for %s after tx %d: %s\n", ev.Meta.User, ev.LogicalID, err.Error())
	}
	return eventbus.EHANDLE_OK
}
