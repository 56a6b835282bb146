package events

import (
	"github.com/kelindar/event"
)

// Bus wraps kelindar/event dispatcher for event broadcasting.
// Handlers run asynchronously, in publish order per subscriber.
type Bus struct {
	dispatcher *event.Dispatcher
}

// New creates a new event bus
func New() *Bus {
	return &Bus{
		dispatcher: event.NewDispatcher(),
	}
}

// Publish publishes an event to all subscribers. A nil bus drops the event.
// Usage: bus.Publish(SignalSentEvent{...})
func (b *Bus) Publish(ev Event) {
	if b == nil {
		return
	}
	// Use type switch to call the generic Publish with the correct type
	switch e := ev.(type) {
	case ProcessRegisteredEvent:
		event.Publish(b.dispatcher, e)
	case DirectoryRegisteredEvent:
		event.Publish(b.dispatcher, e)
	case ProcessExitedEvent:
		event.Publish(b.dispatcher, e)
	case ShutdownPhaseEvent:
		event.Publish(b.dispatcher, e)
	case SignalSentEvent:
		event.Publish(b.dispatcher, e)
	case ProcessReapedEvent:
		event.Publish(b.dispatcher, e)
	case DirectoryRemovedEvent:
		event.Publish(b.dispatcher, e)
	case ConnectionInfoEvent:
		event.Publish(b.dispatcher, e)
	}
}

// Subscribe subscribes to events with a handler function.
// The handler type determines which events it receives.
// Returns an unsubscribe function; unknown handler types get a no-op.
// Usage: unsub := bus.Subscribe(func(e SignalSentEvent) { ... })
func (b *Bus) Subscribe(handler any) func() {
	switch h := handler.(type) {
	case func(ProcessRegisteredEvent):
		return event.Subscribe(b.dispatcher, h)
	case func(DirectoryRegisteredEvent):
		return event.Subscribe(b.dispatcher, h)
	case func(ProcessExitedEvent):
		return event.Subscribe(b.dispatcher, h)
	case func(ShutdownPhaseEvent):
		return event.Subscribe(b.dispatcher, h)
	case func(SignalSentEvent):
		return event.Subscribe(b.dispatcher, h)
	case func(ProcessReapedEvent):
		return event.Subscribe(b.dispatcher, h)
	case func(DirectoryRemovedEvent):
		return event.Subscribe(b.dispatcher, h)
	case func(ConnectionInfoEvent):
		return event.Subscribe(b.dispatcher, h)
	default:
		return func() {}
	}
}
