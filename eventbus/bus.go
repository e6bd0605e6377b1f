package eventbus

import (
	"sync"

	"github.com/spilman/hub/logging"
)

// An EventBus takes events and forwards them to event handlers matched by
// name.  Handlers for the same name run in registration order; a handler
// never races itself because each one carries its own mutex.
type EventBus struct {
	handlers map[string][]*eventhandler
	mutex    sync.Mutex
}

const (

	// EHANDLE_OK means that the event should not be cancelled.
	EHANDLE_OK = 0

	// EHANDLE_CANCEL means that the event should be cancelled.
	EHANDLE_CANCEL = 1
)

// EventHandleResult is what a handler says about the event it just saw.
type EventHandleResult uint8

type eventhandler struct {
	handleFunc func(Event) EventHandleResult
	mutex      sync.Mutex
}

// NewEventBus creates a new event bus without any event handlers.
func NewEventBus() *EventBus {
	return &EventBus{
		handlers: map[string][]*eventhandler{},
	}
}

// RegisterHandler registers an event handler function by name.
func (b *EventBus) RegisterHandler(eventName string, hFunc func(Event) EventHandleResult) {
	b.mutex.Lock()
	b.handlers[eventName] = append(b.handlers[eventName], &eventhandler{handleFunc: hFunc})
	b.mutex.Unlock()
	logging.Infof("eventbus: registered handler for %s\n", eventName)
}

// CountHandlers is a convenience function.
func (b *EventBus) CountHandlers(name string) int {
	b.mutex.Lock()
	defer b.mutex.Unlock()
	return len(b.handlers[name])
}

// Publish sends an event to the relevant event handlers.  The return says
// whether the event survived (sync handlers may cancel it).
func (b *EventBus) Publish(event Event) bool {

	logging.Debugf("eventbus: published event %s\n", event.Name())

	// Copy the handler list so a slow handler doesn't block registration.
	b.mutex.Lock()
	src := b.handlers[event.Name()]
	hs := make([]*eventhandler, len(src))
	copy(hs, src)
	b.mutex.Unlock()

	f := event.Flags()
	async := f&EFLAG_ASYNC == EFLAG_ASYNC
	uncan := f&EFLAG_UNCANCELLABLE != 0

	ok := true
	for _, h := range hs {
		if async {
			go callEventHandler(h, event)
			continue
		}
		if callEventHandler(h, event) == EHANDLE_CANCEL && !uncan {
			ok = false
		}
	}
	return ok
}

func callEventHandler(handler *eventhandler, event Event) EventHandleResult {
	handler.mutex.Lock()
	r := handler.handleFunc(event)
	handler.mutex.Unlock()
	return r
}
