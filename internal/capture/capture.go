// Package capture is the capture graph runtime: it turns device handles
// into a running pipeline that previews video on screen and hands raw
// audio samples to a consumer.
package capture

import (
	"errors"

	goaudio "github.com/go-audio/audio"

	"github.com/smazurov/dongled/internal/devices"
)

var (
	// ErrClosed is returned by operations on a closed graph.
	ErrClosed = errors.New("capture graph closed")
	// ErrNoVideoInput is returned by Start on a graph without video.
	ErrNoVideoInput = errors.New("capture graph has no video input")
)

// SampleHandler receives interleaved signed 16-bit little-endian samples.
// It runs on the graph's reader goroutine and must not block. samples is
// reused after the call returns.
type SampleHandler func(samples []byte)

// Surface is the window a graph previews into.
type Surface struct {
	Title string
	// Rotation is the clockwise rotation of the display, in degrees.
	Rotation int
	// MirrorBuiltin flips built-in cameras so they behave like a mirror.
	MirrorBuiltin bool
}

// Orientation is the transform a preview needs to appear upright.
type Orientation struct {
	Angle    int  // clockwise degrees: 0, 90, 180 or 270
	Mirrored bool // horizontal flip after rotation
}

// Graph is one capture pipeline. A graph is owned by a single goroutine
// (the session queue); only IsRunning is safe to call from elsewhere.
type Graph interface {
	ID() string
	// AddInput binds a device. At most one video and one audio input are
	// accepted, and never while running.
	AddInput(h devices.Handle) bool
	RemoveAllInputs()
	// AddAudioOutput routes the audio input to fn. Only one output.
	AddAudioOutput(fn SampleHandler) bool
	RemoveAllOutputs()
	BindPreview(s Surface, o Orientation)
	Start() error
	// Stop is idempotent and blocks until the pipeline is gone.
	Stop()
	IsRunning() bool
	Inputs() []devices.Handle
	// AudioFormat is the sample format delivered to the audio output.
	AudioFormat() (goaudio.Format, bool)
	// Close stops the graph and releases it. Every later mutation fails.
	Close()
}

// Runtime creates graphs.
type Runtime interface {
	CreateGraph() (Graph, error)
	RotationHint(h devices.Handle, s Surface) Orientation
}

// RotationHint is the orientation rule shared by runtimes: external
// devices follow the display rotation, built-in cameras are also mirrored
// when the surface asks for it.
func RotationHint(h devices.Handle, s Surface) Orientation {
	o := Orientation{Angle: normalizeAngle(s.Rotation)}
	if h.Connection == devices.ConnectionBuiltin && s.MirrorBuiltin {
		o.Mirrored = true
	}
	return o
}

func normalizeAngle(angle int) int {
	a := ((angle % 360) + 360) % 360
	return a - a%90
}
