package eventbus

// An Event is a description of "something" that has taken place.
type Event interface {
	Name() string
	Flags() uint8
}

const (

	// EFLAG_NORMAL means this is a normal sync event.
	EFLAG_NORMAL = 0

	// EFLAG_UNCANCELLABLE means that the event cannot be cancelled.
	EFLAG_UNCANCELLABLE = 1 << 0

	// EFLAG_ASYNC means that the event is handled on its own goroutine
	// and the publisher never hears back.  Implies uncancellable.
	EFLAG_ASYNC = 1<<1 | EFLAG_UNCANCELLABLE
)
