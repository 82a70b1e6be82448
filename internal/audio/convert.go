package audio

import (
	"encoding/binary"
	"fmt"
)

const s16Scale = 1.0 / 32768

// Deinterleave converts interleaved s16le samples into one float32 slice
// per channel, scaled to [-1, 1). b must hold whole frames.
func Deinterleave(b []byte, channels int) ([][]float32, error) {
	if channels <= 0 {
		return nil, fmt.Errorf("invalid channel count %d", channels)
	}
	frameBytes := channels * 2
	if len(b)%frameBytes != 0 {
		return nil, fmt.Errorf("%d bytes is not a whole number of %d-channel frames", len(b), channels)
	}

	frames := len(b) / frameBytes
	planar := make([][]float32, channels)
	for c := range planar {
		planar[c] = make([]float32, frames)
	}
	for i := 0; i < frames; i++ {
		base := i * frameBytes
		for c := 0; c < channels; c++ {
			v := int16(binary.LittleEndian.Uint16(b[base+c*2:]))
			planar[c][i] = float32(v) * s16Scale
		}
	}
	return planar, nil
}

// interleave copies n frames of planar, starting at frame offset, into dst.
func interleave(dst []float32, planar [][]float32, offset, n int) {
	channels := len(planar)
	for i := 0; i < n; i++ {
		for c := 0; c < channels; c++ {
			dst[i*channels+c] = planar[c][offset+i]
		}
	}
}
