//go:build linux && integration

package hotplug

import (
	"context"
	"testing"
	"time"
)

// Plug or unplug a capture stick while this runs:
// go test -tags=integration -v -run TestMonitorLive ./pkg/linuxav/hotplug
func TestMonitorLive(t *testing.T) {
	m, err := NewMonitor(SubsystemVideo4Linux, SubsystemSound)
	if err != nil {
		t.Fatalf("NewMonitor: %v", err)
	}
	defer func() { _ = m.Close() }()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	events := make(chan Event, 10)
	go func() { _ = m.Run(ctx, events) }()

	for ev := range events {
		t.Logf("%s %s %s capture=%v", ev.Action, ev.Subsystem, ev.DevName, ev.IsCaptureNode())
	}
}
