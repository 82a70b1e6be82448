// Package audio is the passthrough engine: it converts captured s16le
// buffers to float32, adapts the rate when the output needs it, and
// plays them through a local output device.
package audio

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	goaudio "github.com/go-audio/audio"
	"github.com/oov/audio/resampler"

	"github.com/smazurov/dongled/internal/devices"
	"github.com/smazurov/dongled/internal/logging"
	"github.com/smazurov/dongled/internal/metrics"
)

// Start failures. The engine never retries; the session carries on
// without sound.
var (
	ErrNoChannels       = errors.New("audio device reports zero channels")
	ErrNoSampleRate     = errors.New("audio device reports zero sample rate")
	ErrChannelMismatch  = errors.New("capture format does not match the audio device")
	ErrOutputOpenFailed = errors.New("failed to open audio output")
)

const (
	defaultTapTimeout = 5 * time.Second
	defaultQueueDepth = 8
	resampleQuality   = 10
	routeTimeout      = 10 * time.Second
)

// DeviceContext is what the engine binds to: the external audio device
// and the sample format the capture graph delivers for it.
type DeviceContext struct {
	Device devices.Handle
	Format goaudio.Format
}

// Engine owns zero or one live pipeline. Start, Stop and Reset are meant
// to run on a single goroutine (the audio queue); HandleSamples may run
// concurrently with them.
type Engine struct {
	logger     logging.Logger
	newOutput  func() Output
	router     Router
	onRoute    func(RouteResult)
	tapTimeout time.Duration
	outputRate int
	queueDepth int

	mu      sync.Mutex
	current atomic.Pointer[pipeline]
}

// Option configures an Engine.
type Option func(*Engine)

// WithOutput replaces the playback device factory.
func WithOutput(fn func() Output) Option {
	return func(e *Engine) { e.newOutput = fn }
}

// WithRouter sets the routing policy asserted on first audible output.
func WithRouter(r Router) Option {
	return func(e *Engine) { e.router = r }
}

// WithRouteObserver receives every routing tap outcome.
func WithRouteObserver(fn func(RouteResult)) Option {
	return func(e *Engine) { e.onRoute = fn }
}

// WithTapTimeout bounds how long the routing tap waits for audio.
func WithTapTimeout(d time.Duration) Option {
	return func(e *Engine) { e.tapTimeout = d }
}

// WithOutputRate plays at rate instead of the device rate. Zero keeps the
// device rate.
func WithOutputRate(rate int) Option {
	return func(e *Engine) { e.outputRate = rate }
}

// WithQueueDepth sets how many converted buffers may wait for playback.
func WithQueueDepth(n int) Option {
	return func(e *Engine) { e.queueDepth = n }
}

// NewEngine creates a stopped engine.
func NewEngine(opts ...Option) *Engine {
	e := &Engine{
		logger:     logging.GetLogger("audio"),
		newOutput:  NewMalgoOutput,
		router:     NoopRouter{},
		tapTimeout: defaultTapTimeout,
		queueDepth: defaultQueueDepth,
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.tapTimeout <= 0 {
		e.tapTimeout = defaultTapTimeout
	}
	if e.queueDepth <= 0 {
		e.queueDepth = defaultQueueDepth
	}
	return e
}

// Start builds a pipeline for dc and begins playback. A running pipeline
// is stopped first. On error nothing is left running.
func (e *Engine) Start(dc DeviceContext) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.stopLocked()

	if err := e.validate(dc); err != nil {
		return e.failStart(dc, err, startReason(err))
	}

	p := newPipeline(dc.Format, e.outputRate, e.queueDepth)
	p.tap = newRouteTap(e.tapTimeout, e.route, e.expireTap)

	out := e.newOutput()
	if err := out.Open(p.outputFormat(), p.render); err != nil {
		p.tap.disarm()
		return e.failStart(dc, fmt.Errorf("%w: %w", ErrOutputOpenFailed, err), "output")
	}
	p.output = out

	e.current.Store(p)
	metrics.RecordAudioStart("ok")
	metrics.SetAudioRunning(true)
	e.logger.Info("Audio passthrough started",
		"device", dc.Device.Name,
		"channels", p.channels,
		"sample_rate", p.inRate,
		"output_rate", p.outRate)
	return nil
}

func (e *Engine) validate(dc DeviceContext) error {
	switch {
	case dc.Format.NumChannels <= 0:
		return ErrNoChannels
	case dc.Format.SampleRate <= 0:
		return ErrNoSampleRate
	case dc.Device.Format.NumChannels > 0 && dc.Device.Format.NumChannels != dc.Format.NumChannels:
		return fmt.Errorf("%w: device has %d channels, capture delivers %d",
			ErrChannelMismatch, dc.Device.Format.NumChannels, dc.Format.NumChannels)
	}
	return nil
}

func startReason(err error) string {
	switch {
	case errors.Is(err, ErrNoChannels):
		return "no_channels"
	case errors.Is(err, ErrNoSampleRate):
		return "no_sample_rate"
	case errors.Is(err, ErrChannelMismatch):
		return "channel_mismatch"
	}
	return "error"
}

func (e *Engine) failStart(dc DeviceContext, err error, reason string) error {
	metrics.RecordAudioStart(reason)
	e.logger.Warn("Audio passthrough disabled for this session", "device", dc.Device.Name, "error", err)
	return err
}

// Stop halts playback and releases the output. Safe to call when stopped.
func (e *Engine) Stop() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.stopLocked()
}

func (e *Engine) stopLocked() {
	p := e.current.Swap(nil)
	if p == nil {
		return
	}
	p.tap.disarm()
	if err := p.output.Close(); err != nil {
		e.logger.Warn("Failed to close audio output", "error", err)
	}
	metrics.SetAudioRunning(false)
	e.logger.Info("Audio passthrough stopped")
}

// Reset restarts the engine for a new device context.
func (e *Engine) Reset(dc DeviceContext) error {
	e.Stop()
	return e.Start(dc)
}

// Running reports whether a pipeline is live.
func (e *Engine) Running() bool {
	return e.current.Load() != nil
}

// HandleSamples converts one captured buffer and schedules it. It never
// blocks: when playback is behind, the buffer is dropped.
func (e *Engine) HandleSamples(b []byte) {
	p := e.current.Load()
	if p == nil || len(b) == 0 {
		return
	}

	planar, err := Deinterleave(b, p.channels)
	if err != nil {
		metrics.RecordAudioBuffer(metrics.BufferRejected)
		e.logger.Warn("Rejected audio buffer", "error", err)
		return
	}
	planar = p.resample(planar)

	select {
	case p.queue <- planar:
		metrics.RecordAudioBuffer(metrics.BufferScheduled)
	default:
		metrics.RecordAudioBuffer(metrics.BufferDropped)
	}
}

func (e *Engine) route() {
	ctx, cancel := context.WithTimeout(context.Background(), routeTimeout)
	defer cancel()

	res, err := e.router.Route(ctx)
	if err != nil {
		e.logger.Warn("Failed to assert output routing", "error", err)
	} else {
		e.logger.Info("Output routing asserted", "outcome", res.Outcome, "sink", res.Sink)
	}
	e.reportRoute(res)
}

func (e *Engine) expireTap() {
	e.logger.Debug("Routing tap expired without audio")
	e.reportRoute(RouteResult{Outcome: RouteExpired})
}

func (e *Engine) reportRoute(res RouteResult) {
	metrics.RecordRouteTap(res.Outcome)
	if e.onRoute != nil {
		e.onRoute(res)
	}
}

// pipeline is one engine graph. queue is the only state shared between
// the capture goroutine and the device thread.
type pipeline struct {
	channels int
	inRate   int
	outRate  int

	// resampling runs on the capture goroutine only
	resampler *resampler.Resampler
	scratch   [][]float32

	queue  chan [][]float32
	output Output
	tap    *routeTap

	// device thread only
	cur [][]float32
	pos int
}

func newPipeline(format goaudio.Format, outRate, depth int) *pipeline {
	if outRate <= 0 {
		outRate = format.SampleRate
	}
	p := &pipeline{
		channels: format.NumChannels,
		inRate:   format.SampleRate,
		outRate:  outRate,
		queue:    make(chan [][]float32, depth),
	}
	if p.outRate != p.inRate {
		p.resampler = resampler.New(p.channels, p.inRate, p.outRate, resampleQuality)
		p.scratch = make([][]float32, p.channels)
	}
	return p
}

func (p *pipeline) outputFormat() goaudio.Format {
	return goaudio.Format{NumChannels: p.channels, SampleRate: p.outRate}
}

// resample returns planar at the output rate. The result is freshly
// allocated so it can be queued.
func (p *pipeline) resample(planar [][]float32) [][]float32 {
	if p.resampler == nil {
		return planar
	}
	frames := len(planar[0])
	size := frames*p.outRate/p.inRate + 16
	out := make([][]float32, p.channels)
	for c := range planar {
		if cap(p.scratch[c]) < size {
			p.scratch[c] = make([]float32, size)
		}
		buf := p.scratch[c][:size]
		_, written := p.resampler.ProcessFloat32(c, planar[c], buf)
		out[c] = append([]float32(nil), buf[:written]...)
	}
	return out
}

// render fills dst from queued buffers and pads with silence.
func (p *pipeline) render(dst []float32) int {
	want := len(dst) / p.channels
	written := 0
	for written < want && p.next() {
		n := min(want-written, len(p.cur[0])-p.pos)
		interleave(dst[written*p.channels:], p.cur, p.pos, n)
		p.pos += n
		written += n
	}
	clear(dst[written*p.channels:])

	metrics.AddFramesRendered(written)
	p.tap.observe(written)
	return written
}

// next makes sure cur has unread frames, pulling from the queue without
// blocking.
func (p *pipeline) next() bool {
	for p.cur == nil || p.pos >= len(p.cur[0]) {
		select {
		case buf := <-p.queue:
			p.cur, p.pos = buf, 0
		default:
			return false
		}
	}
	return true
}
