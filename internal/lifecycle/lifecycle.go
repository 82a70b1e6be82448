// Package lifecycle turns host signals into foreground/background
// transitions on the event bus.
package lifecycle

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/smazurov/dongled/internal/events"
	"github.com/smazurov/dongled/internal/logging"
)

// Sources of lifecycle transitions.
const (
	SourceLogind = "logind"
	SourceSignal = "signal"
	SourceAPI    = "api"
)

// SleepSource reports suspend (true) and resume (false). *systemd.Login
// satisfies it.
type SleepSource interface {
	SleepSignals() <-chan bool
}

// Watcher publishes AppLifecycleEvent for suspend/resume and for
// SIGUSR1/SIGUSR2.
type Watcher struct {
	bus     *events.Bus
	sleep   SleepSource
	signals chan os.Signal
	notify  bool
	logger  logging.Logger
}

// Option configures a Watcher.
type Option func(*Watcher)

// WithSleepSource follows logind suspend and resume.
func WithSleepSource(s SleepSource) Option {
	return func(w *Watcher) { w.sleep = s }
}

// WithSignals reads signals from ch instead of registering with the
// process.
func WithSignals(ch chan os.Signal) Option {
	return func(w *Watcher) {
		w.signals = ch
		w.notify = false
	}
}

// NewWatcher creates a watcher publishing on bus.
func NewWatcher(bus *events.Bus, opts ...Option) *Watcher {
	w := &Watcher{
		bus:     bus,
		signals: make(chan os.Signal, 2),
		notify:  true,
		logger:  logging.GetLogger("lifecycle"),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Run blocks until ctx is done.
func (w *Watcher) Run(ctx context.Context) error {
	if w.notify {
		signal.Notify(w.signals, syscall.SIGUSR1, syscall.SIGUSR2)
		defer signal.Stop(w.signals)
	}

	var sleep <-chan bool
	if w.sleep != nil {
		sleep = w.sleep.SleepSignals()
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case sleeping, ok := <-sleep:
			if !ok {
				w.logger.Warn("Sleep signal stream closed")
				sleep = nil
				continue
			}
			if sleeping {
				Publish(w.bus, events.PhaseBackground, SourceLogind)
			} else {
				Publish(w.bus, events.PhaseActive, SourceLogind)
			}
		case sig := <-w.signals:
			switch sig {
			case syscall.SIGUSR1:
				Publish(w.bus, events.PhaseBackground, SourceSignal)
			case syscall.SIGUSR2:
				Publish(w.bus, events.PhaseActive, SourceSignal)
			}
		}
	}
}

// Publish announces a lifecycle phase on bus.
func Publish(bus *events.Bus, phase, source string) {
	logging.GetLogger("lifecycle").Info("Lifecycle transition", "phase", phase, "source", source)
	bus.Publish(events.AppLifecycleEvent{Phase: phase, Source: source, Timestamp: events.Now()})
}

// ParsePhase validates a phase name.
func ParsePhase(s string) (string, error) {
	switch s {
	case events.PhaseBackground, events.PhaseActive:
		return s, nil
	}
	return "", fmt.Errorf("unknown lifecycle phase %q", s)
}
