package events

import "github.com/smazurov/dongled/internal/devices"

// DeviceBroadcaster publishes registry presence and permission changes on
// the bus.
type DeviceBroadcaster struct {
	bus *Bus
}

// NewDeviceBroadcaster returns a devices.Broadcaster backed by bus.
func NewDeviceBroadcaster(bus *Bus) *DeviceBroadcaster {
	return &DeviceBroadcaster{bus: bus}
}

func (d *DeviceBroadcaster) DeviceAttached(h devices.Handle) {
	d.bus.Publish(DeviceAttachedEvent{Device: h, Timestamp: Now()})
}

func (d *DeviceBroadcaster) DeviceDetached(h devices.Handle) {
	d.bus.Publish(DeviceDetachedEvent{Device: h, Timestamp: Now()})
}

func (d *DeviceBroadcaster) PermissionChanged(media devices.MediaKind, status devices.AuthStatus) {
	d.bus.Publish(PermissionChangedEvent{Media: media, Status: status, Timestamp: Now()})
}

var _ devices.Broadcaster = (*DeviceBroadcaster)(nil)
