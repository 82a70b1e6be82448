//go:build linux

// Package hotplug watches kernel uevents for capture device nodes.
//
// It listens on the NETLINK_KOBJECT_UEVENT socket directly, so no udev
// daemon or cgo is needed. Only the two subsystems a capture stick
// surfaces through are interesting: video4linux for the video node and
// sound for the ALSA card.
package hotplug

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"syscall"
)

const (
	ActionAdd    = "add"
	ActionRemove = "remove"
	ActionChange = "change"
)

const (
	SubsystemVideo4Linux = "video4linux"
	SubsystemSound       = "sound"
)

// Event is a parsed kernel uevent.
type Event struct {
	Action    string
	KObj      string // /devices/pci0000:00/.../video4linux/video0
	Subsystem string
	DevName   string // relative to /dev, e.g. "video0" or "snd/controlC1"
	Env       map[string]string
}

// NodeName returns the last element of DevName ("video0", "controlC1").
func (e Event) NodeName() string {
	if i := strings.LastIndexByte(e.DevName, '/'); i >= 0 {
		return e.DevName[i+1:]
	}
	return e.DevName
}

// IsCaptureNode reports whether the event concerns a node the device
// registry cares about: a /dev/videoN node or an ALSA control node.
// The control node appears once per card, after all of its PCMs.
func (e Event) IsCaptureNode() bool {
	name := e.NodeName()
	switch e.Subsystem {
	case SubsystemVideo4Linux:
		return strings.HasPrefix(name, "video")
	case SubsystemSound:
		return strings.HasPrefix(name, "controlC")
	}
	return false
}

// Monitor reads uevents from the kernel broadcast group.
type Monitor struct {
	fd         int
	subsystems map[string]bool
}

const netlinkKobjectUEvent = 15

// NewMonitor opens the netlink socket. subsystems restricts delivered
// events; with none given every event is delivered.
func NewMonitor(subsystems ...string) (*Monitor, error) {
	fd, err := syscall.Socket(syscall.AF_NETLINK, syscall.SOCK_DGRAM|syscall.SOCK_CLOEXEC, netlinkKobjectUEvent)
	if err != nil {
		return nil, err
	}

	addr := &syscall.SockaddrNetlink{Family: syscall.AF_NETLINK, Groups: 1}
	if err := syscall.Bind(fd, addr); err != nil {
		syscall.Close(fd)
		return nil, err
	}

	// Wake up once a second to notice cancellation.
	tv := syscall.Timeval{Sec: 1}
	if err := syscall.SetsockoptTimeval(fd, syscall.SOL_SOCKET, syscall.SO_RCVTIMEO, &tv); err != nil {
		syscall.Close(fd)
		return nil, err
	}

	m := &Monitor{fd: fd, subsystems: make(map[string]bool, len(subsystems))}
	for _, s := range subsystems {
		m.subsystems[s] = true
	}
	return m, nil
}

// Close releases the socket. Call it after Run has returned.
func (m *Monitor) Close() error {
	return syscall.Close(m.fd)
}

// Run delivers events until ctx is done or the socket fails. The events
// channel is closed on return.
func (m *Monitor) Run(ctx context.Context, events chan<- Event) error {
	defer close(events)

	buf := make([]byte, 8192)
	for ctx.Err() == nil {
		n, _, err := syscall.Recvfrom(m.fd, buf, 0)
		switch {
		case errors.Is(err, syscall.EAGAIN), errors.Is(err, syscall.EINTR):
			continue
		case err != nil:
			return err
		case n == 0:
			continue
		}

		ev, ok := ParseUEvent(buf[:n])
		if !ok || !m.accepts(ev) {
			continue
		}

		select {
		case events <- ev:
		case <-ctx.Done():
		}
	}
	return ctx.Err()
}

func (m *Monitor) accepts(ev Event) bool {
	return len(m.subsystems) == 0 || m.subsystems[ev.Subsystem]
}

var libudevMagic = []byte("libudev\x00")

// ParseUEvent parses "ACTION@KOBJ\0KEY=VALUE\0...". Messages rebroadcast
// by udevd carry a binary header and are rejected; the kernel sends the
// same event on its own group.
func ParseUEvent(data []byte) (Event, bool) {
	if len(data) == 0 || bytes.HasPrefix(data, libudevMagic) {
		return Event{}, false
	}

	fields := bytes.Split(data, []byte{0})
	action, kobj, found := strings.Cut(string(fields[0]), "@")
	if !found || action == "" {
		return Event{}, false
	}

	ev := Event{Action: action, KObj: kobj, Env: make(map[string]string, len(fields)-1)}
	for _, field := range fields[1:] {
		key, value, ok := strings.Cut(string(field), "=")
		if !ok || key == "" {
			continue
		}
		ev.Env[key] = value
	}
	ev.Subsystem = ev.Env["SUBSYSTEM"]
	ev.DevName = ev.Env["DEVNAME"]
	return ev, true
}
