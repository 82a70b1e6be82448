package session

import (
	"github.com/smazurov/dongled/internal/devices"
)

// State is the controller state. Exactly one holds at a time.
type State string

const (
	StateScanning   State = "scanning"
	StateConnecting State = "connecting"
	StateActive     State = "active"
)

// Messages is the user-facing text shown for each situation. It lives in
// the [messages] table of the config file.
type Messages struct {
	VideoDenied    string `toml:"video_denied" json:"video_denied"`
	Scanning       string `toml:"scanning" json:"scanning"`
	ScanningSilent string `toml:"scanning_silent" json:"scanning_silent"`
	Choosing       string `toml:"choosing" json:"choosing"`
	Connecting     string `toml:"connecting" json:"connecting"`
	Active         string `toml:"active" json:"active"`
}

// DefaultMessages returns the built-in message table.
func DefaultMessages() Messages {
	return Messages{
		VideoDenied:    "Camera access disabled. Grant access to the video devices to continue.",
		Scanning:       "Scanning for Hardware",
		ScanningSilent: "Scanning for Hardware: Silent Mode – Microphone access disabled.",
		Choosing:       "Select a Capture Device",
		Connecting:     "Connecting to Device",
		Active:         "",
	}
}

// Update is one state report.
type Update struct {
	State   State
	Message string
	// Device is the candidate while connecting and the bound device while
	// active. Zero otherwise.
	Device devices.Handle
}

// Observer receives every state report, in order, on the UI queue.
type Observer interface {
	StateChanged(u Update)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(u Update)

// StateChanged calls f(u).
func (f ObserverFunc) StateChanged(u Update) { f(u) }

// Chooser picks one of several candidate devices. Present runs on the UI
// queue and must not block; the pick is reported later through choose.
type Chooser interface {
	Present(candidates []devices.Handle, choose func(devices.Handle))
}

// Status is a point-in-time snapshot of the controller.
type Status struct {
	State       State            `json:"state" example:"active" enum:"scanning,connecting,active" doc:"Session state"`
	Message     string           `json:"message" doc:"User-facing status message"`
	Device      *devices.Handle  `json:"device,omitempty" doc:"Candidate or bound video device"`
	AudioDevice *devices.Handle  `json:"audio_device,omitempty" doc:"Bound audio device"`
	GraphID     string           `json:"graph_id,omitempty" doc:"Live capture graph"`
	Candidates  []devices.Handle `json:"candidates,omitempty" doc:"Devices waiting for a choice"`
	Background  bool             `json:"background" doc:"Application is in the background"`
	RestartOwed bool             `json:"restart_owed" doc:"A session was torn down by backgrounding"`
}
