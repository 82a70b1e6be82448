//go:build !cgo

package audio

import (
	"errors"

	goaudio "github.com/go-audio/audio"
)

var errNoPlayback = errors.New("audio playback requires a cgo build")

type unavailableOutput struct{}

// NewMalgoOutput returns an output that always fails to open: miniaudio
// is only linked into cgo builds.
func NewMalgoOutput() Output { return unavailableOutput{} }

func (unavailableOutput) Open(goaudio.Format, RenderFunc) error { return errNoPlayback }
func (unavailableOutput) Close() error                          { return nil }
