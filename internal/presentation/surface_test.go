package presentation

import (
	"bytes"
	"errors"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/smazurov/dongled/internal/devices"
	"github.com/smazurov/dongled/internal/events"
	"github.com/smazurov/dongled/internal/session"
)

var dongle = devices.Handle{
	UniqueID:   "usb-534d_2109-video-index0",
	ModelID:    "534d:2109",
	Name:       "USB Video",
	Media:      devices.MediaVideo,
	Connection: devices.ConnectionExternal,
	Path:       "/dev/video0",
}

func discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestFanout(t *testing.T) {
	var got []string
	obs := func(name string) session.Observer {
		return session.ObserverFunc(func(u session.Update) {
			got = append(got, name+":"+string(u.State))
		})
	}
	Fanout{obs("a"), obs("b")}.StateChanged(session.Update{State: session.StateActive})

	if strings.Join(got, ",") != "a:active,b:active" {
		t.Errorf("delivered %v", got)
	}
}

func TestLogSurface(t *testing.T) {
	var buf bytes.Buffer
	s := NewLogSurface(slog.New(slog.NewTextHandler(&buf, nil)))

	s.StateChanged(session.Update{State: session.StateConnecting, Message: "Connecting to Device", Device: dongle})

	out := buf.String()
	for _, want := range []string{"state=connecting", `label="Connecting to Device"`, "cover=true", "spinner=true", `device="USB Video"`} {
		if !strings.Contains(out, want) {
			t.Errorf("log line missing %s: %s", want, out)
		}
	}
}

func TestCoverAndSpinner(t *testing.T) {
	tests := []struct {
		state   session.State
		cover   bool
		spinner bool
	}{
		{session.StateScanning, true, false},
		{session.StateConnecting, true, true},
		{session.StateActive, false, false},
	}
	for _, tt := range tests {
		if got := CoverVisible(tt.state); got != tt.cover {
			t.Errorf("CoverVisible(%s) = %v", tt.state, got)
		}
		if got := SpinnerVisible(tt.state); got != tt.spinner {
			t.Errorf("SpinnerVisible(%s) = %v", tt.state, got)
		}
	}
}

func TestBusSurface(t *testing.T) {
	bus := events.New()
	got := make(chan events.SessionStateChangedEvent, 2)
	unsub := bus.Subscribe(func(e events.SessionStateChangedEvent) { got <- e })
	defer unsub()

	s := NewBusSurface(bus)
	s.StateChanged(session.Update{State: session.StateActive, Device: dongle})
	s.StateChanged(session.Update{State: session.StateScanning, Message: "Scanning for Hardware"})

	for i, want := range []struct {
		state     string
		hasDevice bool
	}{{"active", true}, {"scanning", false}} {
		select {
		case e := <-got:
			if e.State != want.state || (e.Device != nil) != want.hasDevice {
				t.Errorf("event %d = %+v", i, e)
			}
			if e.Device != nil && e.Device.UniqueID != dongle.UniqueID {
				t.Errorf("event %d device = %+v", i, e.Device)
			}
		case <-time.After(time.Second):
			t.Fatalf("event %d not published", i)
		}
	}
}

type fakeInhibitor struct {
	dir string
	err error

	mu    sync.Mutex
	locks []*os.File
}

func (f *fakeInhibitor) Inhibit(what, who, why, mode string) (*os.File, error) {
	if f.err != nil {
		return nil, f.err
	}
	if what != "idle" || mode != "block" {
		return nil, errors.New("unexpected inhibit request")
	}
	lock, err := os.CreateTemp(f.dir, "inhibit")
	if err != nil {
		return nil, err
	}
	f.mu.Lock()
	f.locks = append(f.locks, lock)
	f.mu.Unlock()
	return lock, nil
}

func (f *fakeInhibitor) taken() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.locks)
}

func isClosed(f *os.File) bool {
	_, err := f.Stat()
	return errors.Is(err, os.ErrClosed)
}

func TestIdleInhibitor(t *testing.T) {
	fake := &fakeInhibitor{dir: t.TempDir()}
	inh := NewIdleInhibitor(fake, discard())

	inh.StateChanged(session.Update{State: session.StateConnecting})
	if inh.Held() {
		t.Fatal("lock held while connecting")
	}

	inh.StateChanged(session.Update{State: session.StateActive})
	inh.StateChanged(session.Update{State: session.StateActive})
	if !inh.Held() || fake.taken() != 1 {
		t.Fatalf("held=%v taken=%d, want one lock", inh.Held(), fake.taken())
	}

	inh.StateChanged(session.Update{State: session.StateScanning})
	if inh.Held() {
		t.Error("lock held after leaving active")
	}
	if !isClosed(fake.locks[0]) {
		t.Error("lock file not closed")
	}

	inh.StateChanged(session.Update{State: session.StateActive})
	inh.Close()
	inh.Close()
	if inh.Held() || !isClosed(fake.locks[1]) {
		t.Error("Close did not release the lock")
	}
}

func TestIdleInhibitor_InhibitFails(t *testing.T) {
	fake := &fakeInhibitor{dir: t.TempDir(), err: errors.New("no logind")}
	inh := NewIdleInhibitor(fake, discard())

	inh.StateChanged(session.Update{State: session.StateActive})
	if inh.Held() {
		t.Error("lock reported held after failure")
	}
}
