package events

import "github.com/kelindar/event"

// SubscribeToChannel forwards events of type T into ch. A full channel
// drops the event rather than stalling the dispatcher.
func SubscribeToChannel[T Event](bus *Bus, ch chan<- any) func() {
	return event.Subscribe(bus.dispatcher, func(e T) {
		select {
		case ch <- e:
		default:
		}
	})
}

// SubscribeStream forwards every event a remote observer cares about into
// ch and returns one function that removes all of the subscriptions.
func SubscribeStream(bus *Bus, ch chan<- any) func() {
	unsubs := []func(){
		SubscribeToChannel[SessionStateChangedEvent](bus, ch),
		SubscribeToChannel[DeviceAttachedEvent](bus, ch),
		SubscribeToChannel[DeviceDetachedEvent](bus, ch),
		SubscribeToChannel[CandidatesPresentedEvent](bus, ch),
		SubscribeToChannel[AppLifecycleEvent](bus, ch),
		SubscribeToChannel[PermissionChangedEvent](bus, ch),
		SubscribeToChannel[AudioRouteEvent](bus, ch),
		SubscribeToChannel[GraphMetricsEvent](bus, ch),
	}
	return func() {
		for _, unsub := range unsubs {
			unsub()
		}
	}
}
