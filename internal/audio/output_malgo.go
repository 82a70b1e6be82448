//go:build cgo

package audio

import (
	"encoding/binary"
	"fmt"
	"math"
	"strings"

	"github.com/gen2brain/malgo"
	goaudio "github.com/go-audio/audio"

	"github.com/smazurov/dongled/internal/logging"
)

// MalgoOutput plays through the default miniaudio playback device.
type MalgoOutput struct {
	logger  logging.Logger
	ctx     *malgo.AllocatedContext
	device  *malgo.Device
	scratch []float32
}

// NewMalgoOutput returns an unopened output.
func NewMalgoOutput() Output {
	return &MalgoOutput{logger: logging.GetLogger("audio")}
}

// Open initializes the playback device for format.
func (o *MalgoOutput) Open(format goaudio.Format, render RenderFunc) error {
	ctx, err := malgo.InitContext(nil, malgo.ContextConfig{}, func(message string) {
		o.logger.Debug(strings.TrimSpace(message))
	})
	if err != nil {
		return fmt.Errorf("init malgo context: %w", err)
	}

	channels := format.NumChannels
	cfg := malgo.DefaultDeviceConfig(malgo.Playback)
	cfg.Playback.Format = malgo.FormatF32
	cfg.Playback.Channels = uint32(channels)
	cfg.SampleRate = uint32(format.SampleRate)

	callbacks := malgo.DeviceCallbacks{
		Data: func(out, _ []byte, frameCount uint32) {
			n := int(frameCount) * channels
			if cap(o.scratch) < n {
				o.scratch = make([]float32, n)
			}
			buf := o.scratch[:n]
			render(buf)
			for i, v := range buf {
				binary.LittleEndian.PutUint32(out[i*4:], math.Float32bits(v))
			}
		},
	}

	device, err := malgo.InitDevice(ctx.Context, cfg, callbacks)
	if err != nil {
		_ = ctx.Uninit()
		ctx.Free()
		return fmt.Errorf("init playback device: %w", err)
	}
	if err := device.Start(); err != nil {
		device.Uninit()
		_ = ctx.Uninit()
		ctx.Free()
		return fmt.Errorf("start playback device: %w", err)
	}

	o.ctx = ctx
	o.device = device
	return nil
}

// Close stops playback. Safe to call more than once.
func (o *MalgoOutput) Close() error {
	var err error
	if o.device != nil {
		err = o.device.Stop()
		o.device.Uninit()
		o.device = nil
	}
	if o.ctx != nil {
		_ = o.ctx.Uninit()
		o.ctx.Free()
		o.ctx = nil
	}
	return err
}
