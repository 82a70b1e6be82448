package events

import (
	"github.com/kelindar/event"
)

// Bus wraps kelindar/event dispatcher for event broadcasting
type Bus struct {
	dispatcher *event.Dispatcher
}

// New creates a new event bus
func New() *Bus {
	return &Bus{
		dispatcher: event.NewDispatcher(),
	}
}

// Publish publishes an event to all subscribers.
// Usage: bus.Publish(DeviceAttachedEvent{...})
func (b *Bus) Publish(ev Event) {
	switch e := ev.(type) {
	case DeviceAttachedEvent:
		event.Publish(b.dispatcher, e)
	case DeviceDetachedEvent:
		event.Publish(b.dispatcher, e)
	case AppLifecycleEvent:
		event.Publish(b.dispatcher, e)
	case PermissionChangedEvent:
		event.Publish(b.dispatcher, e)
	case SessionStateChangedEvent:
		event.Publish(b.dispatcher, e)
	case CandidatesPresentedEvent:
		event.Publish(b.dispatcher, e)
	case GraphExitedEvent:
		event.Publish(b.dispatcher, e)
	case AudioRouteEvent:
		event.Publish(b.dispatcher, e)
	case GraphMetricsEvent:
		event.Publish(b.dispatcher, e)
	}
}

// Subscribe registers handler for the event type of its single argument
// and returns the unsubscribe function. Unknown handler types get a no-op.
// Usage: unsub := bus.Subscribe(func(e DeviceDetachedEvent) { ... })
func (b *Bus) Subscribe(handler any) func() {
	switch h := handler.(type) {
	case func(DeviceAttachedEvent):
		return event.Subscribe(b.dispatcher, h)
	case func(DeviceDetachedEvent):
		return event.Subscribe(b.dispatcher, h)
	case func(AppLifecycleEvent):
		return event.Subscribe(b.dispatcher, h)
	case func(PermissionChangedEvent):
		return event.Subscribe(b.dispatcher, h)
	case func(SessionStateChangedEvent):
		return event.Subscribe(b.dispatcher, h)
	case func(CandidatesPresentedEvent):
		return event.Subscribe(b.dispatcher, h)
	case func(GraphExitedEvent):
		return event.Subscribe(b.dispatcher, h)
	case func(AudioRouteEvent):
		return event.Subscribe(b.dispatcher, h)
	case func(GraphMetricsEvent):
		return event.Subscribe(b.dispatcher, h)
	default:
		return func() {}
	}
}
