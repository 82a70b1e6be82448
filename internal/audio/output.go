package audio

import (
	goaudio "github.com/go-audio/audio"
)

// RenderFunc fills dst with interleaved float32 frames and returns how
// many frames carried audio. The rest of dst is silence. It runs on the
// playback device thread.
type RenderFunc func(dst []float32) int

// Output is a playback device.
type Output interface {
	// Open starts playback in format, pulling frames from render.
	Open(format goaudio.Format, render RenderFunc) error
	// Close stops playback and releases the device.
	Close() error
}
