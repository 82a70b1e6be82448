package events

import (
	"time"

	"github.com/smazurov/dongled/internal/devices"
)

// Event type constants for kelindar/event.
const (
	TypeDeviceAttached uint32 = iota + 1
	TypeDeviceDetached
	TypeAppLifecycle
	TypePermissionChanged
	TypeSessionStateChanged
	TypeCandidatesPresented
	TypeGraphExited
	TypeAudioRoute
	TypeGraphMetrics
)

// Event interface required by kelindar/event.
type Event interface {
	Type() uint32
}

// Lifecycle phases carried by AppLifecycleEvent.
const (
	PhaseBackground = "background"
	PhaseActive     = "active"
)

// Now formats the current time the way every event timestamp is written.
func Now() string {
	return time.Now().Format(time.RFC3339)
}

// DeviceAttachedEvent is raised when an external capture device appears.
type DeviceAttachedEvent struct {
	Device    devices.Handle `json:"device" doc:"Attached device"`
	Timestamp string         `json:"timestamp" example:"2025-01-27T10:30:00Z" doc:"Event timestamp"`
}

// Type returns the event type identifier for DeviceAttachedEvent.
func (e DeviceAttachedEvent) Type() uint32 { return TypeDeviceAttached }

// DeviceDetachedEvent is raised when an external capture device goes away.
// Device is the last handle seen before removal.
type DeviceDetachedEvent struct {
	Device    devices.Handle `json:"device" doc:"Detached device"`
	Timestamp string         `json:"timestamp" example:"2025-01-27T10:30:00Z" doc:"Event timestamp"`
}

// Type returns the event type identifier for DeviceDetachedEvent.
func (e DeviceDetachedEvent) Type() uint32 { return TypeDeviceDetached }

// AppLifecycleEvent moves the application between foreground and background.
type AppLifecycleEvent struct {
	Phase     string `json:"phase" example:"background" enum:"background,active" doc:"New lifecycle phase"`
	Source    string `json:"source" example:"logind" doc:"What raised the transition: logind, signal or api"`
	Timestamp string `json:"timestamp" example:"2025-01-27T10:30:00Z" doc:"Event timestamp"`
}

// Type returns the event type identifier for AppLifecycleEvent.
func (e AppLifecycleEvent) Type() uint32 { return TypeAppLifecycle }

// PermissionChangedEvent reports a capture permission change.
type PermissionChangedEvent struct {
	Media     devices.MediaKind  `json:"media" example:"video" doc:"Media kind"`
	Status    devices.AuthStatus `json:"status" example:"denied" doc:"New authorization status"`
	Timestamp string             `json:"timestamp" example:"2025-01-27T10:30:00Z" doc:"Event timestamp"`
}

// Type returns the event type identifier for PermissionChangedEvent.
func (e PermissionChangedEvent) Type() uint32 { return TypePermissionChanged }

// SessionStateChangedEvent mirrors every state report of the session
// controller.
type SessionStateChangedEvent struct {
	State     string          `json:"state" example:"connecting" enum:"scanning,connecting,active" doc:"Session state"`
	Message   string          `json:"message" example:"Connecting to Device" doc:"User-facing status message"`
	Device    *devices.Handle `json:"device,omitempty" doc:"Bound or candidate device"`
	Timestamp string          `json:"timestamp" example:"2025-01-27T10:30:00Z" doc:"Event timestamp"`
}

// Type returns the event type identifier for SessionStateChangedEvent.
func (e SessionStateChangedEvent) Type() uint32 { return TypeSessionStateChanged }

// CandidatesPresentedEvent asks a chooser to pick one of several devices.
type CandidatesPresentedEvent struct {
	Candidates []devices.Handle `json:"candidates" doc:"Devices to choose from"`
	Timestamp  string           `json:"timestamp" example:"2025-01-27T10:30:00Z" doc:"Event timestamp"`
}

// Type returns the event type identifier for CandidatesPresentedEvent.
func (e CandidatesPresentedEvent) Type() uint32 { return TypeCandidatesPresented }

// GraphExitedEvent reports a capture graph whose process ended on its own.
type GraphExitedEvent struct {
	GraphID   string `json:"graph_id" doc:"Capture graph identifier"`
	ExitCode  int    `json:"exit_code" example:"1" doc:"Process exit code"`
	Timestamp string `json:"timestamp" example:"2025-01-27T10:30:00Z" doc:"Event timestamp"`
}

// Type returns the event type identifier for GraphExitedEvent.
func (e GraphExitedEvent) Type() uint32 { return TypeGraphExited }

// AudioRouteEvent reports the outcome of the one-shot output routing tap.
type AudioRouteEvent struct {
	Outcome   string `json:"outcome" example:"routed" enum:"routed,unchanged,failed,expired" doc:"Tap outcome"`
	Sink      string `json:"sink,omitempty" example:"bluez_output.00_1B_66.1" doc:"Selected output sink"`
	Timestamp string `json:"timestamp" example:"2025-01-27T10:30:00Z" doc:"Event timestamp"`
}

// Type returns the event type identifier for AudioRouteEvent.
func (e AudioRouteEvent) Type() uint32 { return TypeAudioRoute }

// GraphMetricsEvent carries the preview progress of the running graph.
type GraphMetricsEvent struct {
	GraphID       string `json:"graph_id" doc:"Capture graph identifier"`
	FPS           string `json:"fps" example:"59.94" doc:"Preview frames per second"`
	DroppedFrames string `json:"dropped_frames" example:"0" doc:"Frames dropped since the graph started"`
	Speed         string `json:"speed" example:"1.00" doc:"Processing speed relative to real time"`
	Timestamp     string `json:"timestamp" example:"2025-01-27T10:30:00Z" doc:"Event timestamp"`
}

// Type returns the event type identifier for GraphMetricsEvent.
func (e GraphMetricsEvent) Type() uint32 { return TypeGraphMetrics }
