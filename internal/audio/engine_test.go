package audio

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	goaudio "github.com/go-audio/audio"

	"github.com/smazurov/dongled/internal/devices"
)

// fakeOutput records what it was opened with and lets the test pull
// frames the way a playback device thread would.
type fakeOutput struct {
	openErr error

	mu     sync.Mutex
	format goaudio.Format
	render RenderFunc
	closed int
}

func (o *fakeOutput) Open(format goaudio.Format, render RenderFunc) error {
	if o.openErr != nil {
		return o.openErr
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	o.format = format
	o.render = render
	return nil
}

func (o *fakeOutput) Close() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.closed++
	return nil
}

func (o *fakeOutput) pull(frames int) ([]float32, int) {
	o.mu.Lock()
	render, channels := o.render, o.format.NumChannels
	o.mu.Unlock()
	dst := make([]float32, frames*channels)
	for i := range dst {
		dst[i] = 99 // must be overwritten
	}
	return dst, render(dst)
}

type countingRouter struct {
	mu    sync.Mutex
	calls int
}

func (r *countingRouter) Route(context.Context) (RouteResult, error) {
	r.mu.Lock()
	r.calls++
	r.mu.Unlock()
	return RouteResult{Outcome: RouteRouted, Sink: "bluez_output.test"}, nil
}

func (r *countingRouter) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.calls
}

var usbAudio = devices.Handle{
	UniqueID: "usb-MACROSILICON_MS2109-02",
	Name:     "MS2109",
	Media:    devices.MediaAudio,
	Format:   goaudio.Format{NumChannels: 2, SampleRate: 48000},
}

func stereoContext() DeviceContext {
	return DeviceContext{Device: usbAudio, Format: usbAudio.Format}
}

func newTestEngine(out *fakeOutput, opts ...Option) *Engine {
	return NewEngine(append([]Option{WithOutput(func() Output { return out })}, opts...)...)
}

func TestEngineStereoFidelity(t *testing.T) {
	out := &fakeOutput{}
	e := newTestEngine(out)
	if err := e.Start(stereoContext()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer e.Stop()

	if out.format.NumChannels != 2 || out.format.SampleRate != 48000 {
		t.Fatalf("output opened with %+v", out.format)
	}

	e.HandleSamples(s16le(16384, -16384, 8192, -8192, 0, 4096))

	dst, n := out.pull(4)
	if n != 3 {
		t.Fatalf("rendered %d frames, want 3", n)
	}
	want := []float32{0.5, -0.5, 0.25, -0.25, 0, 0.125, 0, 0}
	for i := range want {
		if dst[i] != want[i] {
			t.Fatalf("rendered %v, want %v", dst, want)
		}
	}
}

func TestEngineMonoFidelity(t *testing.T) {
	out := &fakeOutput{}
	e := newTestEngine(out)
	mono := usbAudio
	mono.Format = goaudio.Format{NumChannels: 1, SampleRate: 44100}
	if err := e.Start(DeviceContext{Device: mono, Format: mono.Format}); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer e.Stop()

	e.HandleSamples(s16le(16384, -16384))
	dst, n := out.pull(3)
	if n != 2 || len(dst) != 3 {
		t.Fatalf("rendered %d frames into %d samples", n, len(dst))
	}
	if dst[0] != 0.5 || dst[1] != -0.5 || dst[2] != 0 {
		t.Errorf("rendered %v", dst)
	}
}

func TestEngineRenderSpansBuffers(t *testing.T) {
	out := &fakeOutput{}
	e := newTestEngine(out)
	if err := e.Start(stereoContext()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer e.Stop()

	e.HandleSamples(s16le(1, -1, 2, -2, 3, -3))
	e.HandleSamples(s16le(4, -4))

	dst, n := out.pull(2)
	if n != 2 || dst[2] != 2.0/32768 {
		t.Fatalf("first pull rendered %d: %v", n, dst)
	}
	dst, n = out.pull(2)
	if n != 2 || dst[0] != 3.0/32768 || dst[3] != -4.0/32768 {
		t.Fatalf("second pull rendered %d: %v", n, dst)
	}
	if _, n = out.pull(2); n != 0 {
		t.Errorf("empty queue rendered %d frames", n)
	}
}

func TestEngineStartFailsClosed(t *testing.T) {
	mismatched := stereoContext()
	mismatched.Format.NumChannels = 1

	tests := []struct {
		name    string
		dc      DeviceContext
		openErr error
		want    error
	}{
		{"zero channels", DeviceContext{Device: usbAudio, Format: goaudio.Format{SampleRate: 48000}}, nil, ErrNoChannels},
		{"zero rate", DeviceContext{Format: goaudio.Format{NumChannels: 2}}, nil, ErrNoSampleRate},
		{"channel mismatch", mismatched, nil, ErrChannelMismatch},
		{"output fails", stereoContext(), errors.New("no playback device"), ErrOutputOpenFailed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out := &fakeOutput{openErr: tt.openErr}
			e := newTestEngine(out)
			err := e.Start(tt.dc)
			if !errors.Is(err, tt.want) {
				t.Fatalf("Start = %v, want %v", err, tt.want)
			}
			if e.Running() {
				t.Error("engine running after failed start")
			}
			// Samples after a failed start are ignored.
			e.HandleSamples(s16le(1, 2))
		})
	}
}

func TestEngineStopIdempotent(t *testing.T) {
	out := &fakeOutput{}
	e := newTestEngine(out)
	e.Stop()

	if err := e.Start(stereoContext()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	e.Stop()
	e.Stop()
	if e.Running() {
		t.Error("engine running after Stop")
	}
	if out.closed != 1 {
		t.Errorf("output closed %d times, want 1", out.closed)
	}
	e.HandleSamples(s16le(1, 2))
}

func TestEngineResetSwapsFormat(t *testing.T) {
	first, second := &fakeOutput{}, &fakeOutput{}
	outputs := []*fakeOutput{first, second}
	e := NewEngine(WithOutput(func() Output {
		o := outputs[0]
		outputs = outputs[1:]
		return o
	}))

	if err := e.Start(stereoContext()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	mono := usbAudio
	mono.Format = goaudio.Format{NumChannels: 1, SampleRate: 32000}
	if err := e.Reset(DeviceContext{Device: mono, Format: mono.Format}); err != nil {
		t.Fatalf("Reset: %v", err)
	}
	defer e.Stop()

	if first.closed != 1 {
		t.Error("first output not closed on reset")
	}
	if second.format.NumChannels != 1 || second.format.SampleRate != 32000 {
		t.Errorf("second output opened with %+v", second.format)
	}
}

func TestEngineRejectsPartialFrames(t *testing.T) {
	out := &fakeOutput{}
	e := newTestEngine(out)
	if err := e.Start(stereoContext()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer e.Stop()

	e.HandleSamples(s16le(1, 2, 3))
	if _, n := out.pull(4); n != 0 {
		t.Errorf("partial buffer rendered %d frames", n)
	}
}

func TestEngineDropsWhenQueueFull(t *testing.T) {
	out := &fakeOutput{}
	e := newTestEngine(out, WithQueueDepth(2))
	if err := e.Start(stereoContext()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer e.Stop()

	for i := 0; i < 5; i++ {
		e.HandleSamples(s16le(int16(i), int16(i)))
	}
	if _, n := out.pull(8); n != 2 {
		t.Errorf("rendered %d frames, want the 2 queued buffers", n)
	}
}

func TestEngineResamples(t *testing.T) {
	out := &fakeOutput{}
	e := newTestEngine(out, WithOutputRate(96000))
	if err := e.Start(stereoContext()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer e.Stop()

	if out.format.SampleRate != 96000 || out.format.NumChannels != 2 {
		t.Fatalf("output opened with %+v", out.format)
	}

	var in []int16
	for i := 0; i < 480; i++ {
		in = append(in, 8192, -8192)
	}
	e.HandleSamples(s16le(in...))

	_, n := out.pull(2048)
	// The filter holds back a few frames of latency.
	if n < 480 || n > 976 {
		t.Errorf("rendered %d frames from 480 input frames at double rate", n)
	}
}

func TestRouteTapFiresOnce(t *testing.T) {
	out := &fakeOutput{}
	router := &countingRouter{}
	results := make(chan RouteResult, 4)
	e := newTestEngine(out, WithRouter(router), WithRouteObserver(func(r RouteResult) { results <- r }))
	if err := e.Start(stereoContext()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer e.Stop()

	// Silence does not trigger the tap.
	out.pull(4)
	for i := 0; i < 3; i++ {
		e.HandleSamples(s16le(1, 1))
		out.pull(4)
	}

	select {
	case r := <-results:
		if r.Outcome != RouteRouted || r.Sink != "bluez_output.test" {
			t.Errorf("route result = %+v", r)
		}
	case <-time.After(time.Second):
		t.Fatal("routing tap did not fire")
	}
	select {
	case r := <-results:
		t.Errorf("tap fired again: %+v", r)
	case <-time.After(50 * time.Millisecond):
	}
	if router.count() != 1 {
		t.Errorf("router called %d times, want 1", router.count())
	}
}

func TestRouteTapExpires(t *testing.T) {
	out := &fakeOutput{}
	router := &countingRouter{}
	results := make(chan RouteResult, 2)
	e := newTestEngine(out,
		WithRouter(router),
		WithTapTimeout(20*time.Millisecond),
		WithRouteObserver(func(r RouteResult) { results <- r }))
	if err := e.Start(stereoContext()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer e.Stop()

	select {
	case r := <-results:
		if r.Outcome != RouteExpired {
			t.Errorf("outcome = %s, want expired", r.Outcome)
		}
	case <-time.After(time.Second):
		t.Fatal("tap did not expire")
	}

	// Audio after expiry does not route.
	e.HandleSamples(s16le(1, 1))
	out.pull(1)
	time.Sleep(20 * time.Millisecond)
	if router.count() != 0 {
		t.Errorf("router called %d times after expiry", router.count())
	}
}

func TestRouteTapDisarmedByStop(t *testing.T) {
	out := &fakeOutput{}
	results := make(chan RouteResult, 2)
	e := newTestEngine(out,
		WithTapTimeout(30*time.Millisecond),
		WithRouteObserver(func(r RouteResult) { results <- r }))
	if err := e.Start(stereoContext()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	e.Stop()

	select {
	case r := <-results:
		t.Errorf("stopped engine reported %+v", r)
	case <-time.After(80 * time.Millisecond):
	}
}
