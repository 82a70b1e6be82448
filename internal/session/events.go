package session

import (
	"github.com/smazurov/dongled/internal/events"
)

// Attach subscribes the controller to device, lifecycle, permission and
// graph events on bus. Call once at startup; Detach or Shutdown undoes it.
func (c *Controller) Attach(bus *events.Bus) {
	c.subMu.Lock()
	defer c.subMu.Unlock()

	c.unsubs = append(c.unsubs,
		bus.Subscribe(func(e events.DeviceAttachedEvent) { c.HandleAttach(e.Device) }),
		bus.Subscribe(func(e events.DeviceDetachedEvent) { c.HandleDetach(e.Device) }),
		bus.Subscribe(func(e events.AppLifecycleEvent) {
			switch e.Phase {
			case events.PhaseBackground:
				c.EnterBackground()
			case events.PhaseActive:
				c.BecomeActive()
			default:
				c.logger.Warn("Unknown lifecycle phase", "phase", e.Phase, "source", e.Source)
			}
		}),
		bus.Subscribe(func(e events.PermissionChangedEvent) { c.HandlePermissionChange(e.Media, e.Status) }),
		bus.Subscribe(func(e events.GraphExitedEvent) { c.HandleGraphExit(e.GraphID) }),
	)
}

// Detach removes every bus subscription made by Attach.
func (c *Controller) Detach() {
	c.subMu.Lock()
	unsubs := c.unsubs
	c.unsubs = nil
	c.subMu.Unlock()

	for _, unsub := range unsubs {
		unsub()
	}
}
