// Package presentation renders session state: the preview cover and
// label, the status event stream, the idle inhibitor and the device
// chooser.
package presentation

import (
	"os"
	"sync"

	"github.com/smazurov/dongled/internal/events"
	"github.com/smazurov/dongled/internal/logging"
	"github.com/smazurov/dongled/internal/session"
)

// Fanout delivers each update to every observer in order.
type Fanout []session.Observer

func (f Fanout) StateChanged(u session.Update) {
	for _, o := range f {
		o.StateChanged(u)
	}
}

// LogSurface is the headless rendition of the preview window: it logs
// the label, the cover and the spinner.
type LogSurface struct {
	logger logging.Logger
}

// NewLogSurface returns a surface that writes to logger.
func NewLogSurface(logger logging.Logger) *LogSurface {
	return &LogSurface{logger: logger}
}

func (s *LogSurface) StateChanged(u session.Update) {
	args := []any{
		"state", u.State,
		"label", u.Message,
		"cover", CoverVisible(u.State),
		"spinner", SpinnerVisible(u.State),
	}
	if !u.Device.IsZero() {
		args = append(args, "device", u.Device.Name)
	}
	s.logger.Info("Session state", args...)
}

// CoverVisible reports whether the cover hides the preview in state.
func CoverVisible(state session.State) bool {
	return state != session.StateActive
}

// SpinnerVisible reports whether the busy spinner shows in state.
func SpinnerVisible(state session.State) bool {
	return state == session.StateConnecting
}

// BusSurface republishes updates as SessionStateChangedEvent.
type BusSurface struct {
	bus *events.Bus
}

// NewBusSurface returns a surface publishing on bus.
func NewBusSurface(bus *events.Bus) *BusSurface {
	return &BusSurface{bus: bus}
}

func (s *BusSurface) StateChanged(u session.Update) {
	e := events.SessionStateChangedEvent{
		State:     string(u.State),
		Message:   u.Message,
		Timestamp: events.Now(),
	}
	if !u.Device.IsZero() {
		d := u.Device
		e.Device = &d
	}
	s.bus.Publish(e)
}

// Inhibitor takes logind inhibitor locks. *systemd.Login satisfies it.
type Inhibitor interface {
	Inhibit(what, who, why, mode string) (*os.File, error)
}

// IdleInhibitor keeps the display awake while a preview is showing.
type IdleInhibitor struct {
	inhibitor Inhibitor
	logger    logging.Logger

	mu   sync.Mutex
	lock *os.File
}

// NewIdleInhibitor returns an observer that holds an idle lock while the
// session is active.
func NewIdleInhibitor(inhibitor Inhibitor, logger logging.Logger) *IdleInhibitor {
	return &IdleInhibitor{inhibitor: inhibitor, logger: logger}
}

func (i *IdleInhibitor) StateChanged(u session.Update) {
	i.mu.Lock()
	defer i.mu.Unlock()

	if u.State != session.StateActive {
		i.releaseLocked()
		return
	}
	if i.lock != nil {
		return
	}
	lock, err := i.inhibitor.Inhibit("idle", logging.Identifier, "Previewing capture device", "block")
	if err != nil {
		i.logger.Warn("Failed to inhibit idle", "error", err)
		return
	}
	i.lock = lock
	i.logger.Debug("Idle inhibited")
}

// Held reports whether the idle lock is taken.
func (i *IdleInhibitor) Held() bool {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.lock != nil
}

// Close releases the lock if held.
func (i *IdleInhibitor) Close() {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.releaseLocked()
}

func (i *IdleInhibitor) releaseLocked() {
	if i.lock == nil {
		return
	}
	if err := i.lock.Close(); err != nil {
		i.logger.Warn("Failed to release idle inhibitor", "error", err)
	}
	i.lock = nil
	i.logger.Debug("Idle inhibitor released")
}
