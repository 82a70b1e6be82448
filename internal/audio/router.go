package audio

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"
)

// Route outcomes.
const (
	RouteRouted    = "routed"
	RouteUnchanged = "unchanged"
	RouteFailed    = "failed"
	RouteExpired   = "expired"
)

// RouteResult describes what a routing pass did.
type RouteResult struct {
	Outcome string
	Sink    string
}

// Router asserts the output routing policy once playback is audible.
type Router interface {
	Route(ctx context.Context) (RouteResult, error)
}

// NoopRouter leaves routing alone.
type NoopRouter struct{}

// Route reports unchanged.
func (NoopRouter) Route(context.Context) (RouteResult, error) {
	return RouteResult{Outcome: RouteUnchanged}, nil
}

// DefaultSinkPatterns prefer headphones and Bluetooth over speakers.
var DefaultSinkPatterns = []string{"bluez", "headphone", "headset", "usb"}

// CommandRunner runs a command and returns its stdout.
type CommandRunner func(ctx context.Context, name string, args ...string) ([]byte, error)

// PactlRouter makes the first sink matching a preferred pattern the
// default PulseAudio/PipeWire sink.
type PactlRouter struct {
	Patterns []string
	Run      CommandRunner
}

// NewPactlRouter returns a router using patterns, in priority order.
func NewPactlRouter(patterns []string) *PactlRouter {
	if len(patterns) == 0 {
		patterns = DefaultSinkPatterns
	}
	return &PactlRouter{Patterns: patterns, Run: runCommand}
}

// Route picks the sink and switches to it when it is not already the
// default.
func (r *PactlRouter) Route(ctx context.Context) (RouteResult, error) {
	out, err := r.Run(ctx, "pactl", "list", "short", "sinks")
	if err != nil {
		return RouteResult{Outcome: RouteFailed}, fmt.Errorf("failed to list sinks: %w", err)
	}

	sink := PickSink(ParseSinks(out), r.Patterns)
	if sink == "" {
		return RouteResult{Outcome: RouteUnchanged}, nil
	}

	current, err := r.Run(ctx, "pactl", "get-default-sink")
	if err == nil && strings.TrimSpace(string(current)) == sink {
		return RouteResult{Outcome: RouteUnchanged, Sink: sink}, nil
	}

	if _, err := r.Run(ctx, "pactl", "set-default-sink", sink); err != nil {
		return RouteResult{Outcome: RouteFailed, Sink: sink}, fmt.Errorf("failed to set default sink: %w", err)
	}
	return RouteResult{Outcome: RouteRouted, Sink: sink}, nil
}

// ParseSinks extracts sink names from `pactl list short sinks`:
// index, name, driver, format and state separated by tabs.
func ParseSinks(out []byte) []string {
	var sinks []string
	scanner := bufio.NewScanner(bytes.NewReader(out))
	for scanner.Scan() {
		fields := strings.Fields(scanner.Text())
		if len(fields) >= 2 {
			sinks = append(sinks, fields[1])
		}
	}
	return sinks
}

// PickSink returns the first sink matching the earliest pattern.
func PickSink(sinks, patterns []string) string {
	for _, p := range patterns {
		p = strings.ToLower(p)
		for _, s := range sinks {
			if strings.Contains(strings.ToLower(s), p) {
				return s
			}
		}
	}
	return ""
}

func runCommand(ctx context.Context, name string, args ...string) ([]byte, error) {
	return exec.CommandContext(ctx, name, args...).Output()
}
