package hub

import (
	"sync"

	"github.com/spilman/hub/eventbus"
	"github.com/spilman/hub/hubcore"
	"github.com/spilman/hub/logging"
)

// ChainSender pushes one raw settlement transaction at the chain.
type ChainSender interface {
	Submit(logicalID int64, sub hubcore.TxSubmission) error
}

// EventCoordinator assigns logical ids to outbound settlement
// transactions and turns their resolutions into bus events.  It never
// waits for confirmation; callers get the id back immediately and the
// engine's event handler hears about the outcome later.
type EventCoordinator struct {
	bus    *eventbus.EventBus
	sender ChainSender

	mtx      sync.Mutex
	nextID   int64
	inflight map[int64]hubcore.TxMeta
}

// NewEventCoordinator wires a coordinator to the bus its resolutions
// publish on.
func NewEventCoordinator(bus *eventbus.EventBus, sender ChainSender) *EventCoordinator {
	return &EventCoordinator{
		bus:      bus,
		sender:   sender,
		inflight: make(map[int64]hubcore.TxMeta),
	}
}

// SendTransaction queues the transaction and returns its logical id.
func (c *EventCoordinator) SendTransaction(sub hubcore.TxSubmission) (int64, error) {
	c.mtx.Lock()
	c.nextID++
	id := c.nextID
	c.inflight[id] = sub.Meta
	c.mtx.Unlock()

	if err := c.sender.Submit(id, sub); err != nil {
		c.mtx.Lock()
		delete(c.inflight, id)
		c.mtx.Unlock()
		return 0, err
	}
	logging.Infof("dispatched settlement tx %d for %s\n", id, sub.Meta.User)
	return id, nil
}

// Resolve is called by the chain watcher when a dispatched transaction
// confirms or fails.
func (c *EventCoordinator) Resolve(logicalID int64, failed bool, info string) {
	c.mtx.Lock()
	meta, ok := c.inflight[logicalID]
	delete(c.inflight, logicalID)
	c.mtx.Unlock()
	if !ok {
		logging.Errorf("resolution for unknown settlement tx %d\n", logicalID)
		return
	}
	c.bus.Publish(TxResolvedEvent{
		LogicalID: logicalID,
		Meta:      meta,
		Failed:    failed,
		Info:      info,
	})
}

// LoggingSender is the dev-mode sender: it logs the submission and calls
// it sent.
type LoggingSender struct{}

// Submit .
func (LoggingSender) Submit(logicalID int64, sub hubcore.TxSubmission) error {
	logging.Infof("tx %d: %s -> %s, %d byte payload\n", logicalID, sub.From, sub.To, len(sub.Data))
	return nil
}
