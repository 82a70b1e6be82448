// Package systemd talks to systemd-logind and the service manager.
package systemd

import (
	"fmt"
	"os"

	"github.com/coreos/go-systemd/v22/daemon"
	"github.com/coreos/go-systemd/v22/login1"
	"github.com/godbus/dbus/v5"
)

const prepareForSleep = "org.freedesktop.login1.Manager.PrepareForSleep"

// Login is a system bus connection to logind.
type Login struct {
	conn *login1.Conn
}

// NewLogin connects to logind on the system bus.
func NewLogin() (*Login, error) {
	conn, err := login1.New()
	if err != nil {
		return nil, fmt.Errorf("failed to connect to logind: %w", err)
	}
	return &Login{conn: conn}, nil
}

// Inhibit takes an inhibitor lock. The lock lasts until the returned file
// is closed.
func (l *Login) Inhibit(what, who, why, mode string) (*os.File, error) {
	return l.conn.Inhibit(what, who, why, mode)
}

// SleepSignals delivers true before the system suspends and false after
// it resumes. The channel closes with the connection.
func (l *Login) SleepSignals() <-chan bool {
	signals := l.conn.Subscribe("PrepareForSleep")
	out := make(chan bool, 1)
	go func() {
		defer close(out)
		for sig := range signals {
			if sleeping, ok := ParsePrepareForSleep(sig); ok {
				out <- sleeping
			}
		}
	}()
	return out
}

// Close closes the bus connection.
func (l *Login) Close() {
	if l.conn != nil {
		l.conn.Close()
	}
}

// ParsePrepareForSleep extracts the "about to sleep" flag from a logind
// signal. ok is false for any other signal.
func ParsePrepareForSleep(sig *dbus.Signal) (sleeping, ok bool) {
	if sig == nil || sig.Name != prepareForSleep || len(sig.Body) != 1 {
		return false, false
	}
	sleeping, ok = sig.Body[0].(bool)
	return sleeping, ok
}

// NotifyReady tells the service manager startup is complete. It reports
// false when not running under a notify-type unit.
func NotifyReady() (bool, error) {
	return daemon.SdNotify(false, daemon.SdNotifyReady)
}

// NotifyStopping tells the service manager shutdown has begun.
func NotifyStopping() (bool, error) {
	return daemon.SdNotify(false, daemon.SdNotifyStopping)
}
