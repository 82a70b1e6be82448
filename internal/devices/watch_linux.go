//go:build linux

package devices

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/smazurov/dongled/pkg/linuxav/hotplug"
)

// settleDelay gives the kernel time to create every node of a freshly
// attached dongle before re-enumerating.
const settleDelay = time.Second

// Watch reports external devices appearing and disappearing, and capture
// permission changes, until ctx is done. Devices present when Watch
// starts are not reported.
func (r *SysfsRegistry) Watch(ctx context.Context, b Broadcaster) error {
	mon, err := hotplug.NewMonitor(hotplug.SubsystemVideo4Linux, hotplug.SubsystemSound)
	if err != nil {
		return fmt.Errorf("failed to open hotplug monitor: %w", err)
	}

	known := r.snapshot()
	access := r.accessSnapshot()
	r.logger.Info("Hotplug monitoring started", "devices", len(known),
		"video", access[MediaVideo], "audio", access[MediaAudio])

	events := make(chan hotplug.Event, 16)
	runErr := make(chan error, 1)
	go func() { runErr <- mon.Run(ctx, events) }()

	for ev := range events {
		// Mode and ACL updates arrive as change events on any node,
		// PCMs included.
		if ev.Action == hotplug.ActionChange {
			r.logger.Debug("Device node changed", "node", ev.DevName)
			access = r.recheckAccess(access, b)
			continue
		}
		if !ev.IsCaptureNode() {
			continue
		}
		switch ev.Action {
		case hotplug.ActionAdd:
			r.logger.Debug("Device node added", "node", ev.DevName)
			select {
			case <-time.After(settleDelay):
			case <-ctx.Done():
				continue
			}
		case hotplug.ActionRemove:
			r.logger.Debug("Device node removed", "node", ev.DevName)
		default:
			continue
		}
		known = r.reconcile(known, b)
		access = r.recheckAccess(access, b)
	}

	_ = mon.Close()
	err = <-runErr
	r.logger.Info("Hotplug monitoring stopped")
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return nil
	}
	return err
}

// snapshot returns every external device keyed by UniqueID.
func (r *SysfsRegistry) snapshot() map[string]Handle {
	out := make(map[string]Handle)
	for _, media := range []MediaKind{MediaVideo, MediaAudio} {
		handles, err := r.Enumerate(media, ConnectionExternal)
		if err != nil {
			r.logger.Warn("Failed to enumerate devices", "media", media, "error", err)
			continue
		}
		for _, h := range handles {
			out[h.UniqueID] = h
		}
	}
	return out
}

// reconcile re-enumerates and reports the difference against prev.
// Detach carries the last handle seen for the device.
func (r *SysfsRegistry) reconcile(prev map[string]Handle, b Broadcaster) map[string]Handle {
	next := r.snapshot()
	added, removed := diff(prev, next)
	for _, h := range removed {
		r.logger.Info("Device detached", "device", h.UniqueID, "media", h.Media, "path", h.Path)
		b.DeviceDetached(h)
	}
	for _, h := range added {
		r.logger.Info("Device attached", "device", h.UniqueID, "media", h.Media, "path", h.Path)
		b.DeviceAttached(h)
	}
	return next
}

var mediaKinds = []MediaKind{MediaVideo, MediaAudio}

func (r *SysfsRegistry) accessSnapshot() map[MediaKind]AuthStatus {
	out := make(map[MediaKind]AuthStatus, len(mediaKinds))
	for _, media := range mediaKinds {
		out[media] = r.AuthorizationStatus(media)
	}
	return out
}

// recheckAccess reports every media kind whose permission differs from
// prev.
func (r *SysfsRegistry) recheckAccess(prev map[MediaKind]AuthStatus, b Broadcaster) map[MediaKind]AuthStatus {
	next := r.accessSnapshot()
	for _, media := range mediaKinds {
		if next[media] == prev[media] {
			continue
		}
		r.logger.Info("Capture permission changed", "media", media, "from", prev[media], "to", next[media])
		b.PermissionChanged(media, next[media])
	}
	return next
}
