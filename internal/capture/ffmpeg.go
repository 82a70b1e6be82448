package capture

import (
	"context"
	"fmt"
	"io"
	"path/filepath"
	"sync"
	"time"

	goaudio "github.com/go-audio/audio"
	"github.com/google/uuid"

	"github.com/smazurov/dongled/internal/devices"
	"github.com/smazurov/dongled/internal/ffmpeg"
	"github.com/smazurov/dongled/internal/logging"
	"github.com/smazurov/dongled/internal/metrics"
	"github.com/smazurov/dongled/internal/metrics/collectors"
	"github.com/smazurov/dongled/internal/process"
)

// Config tunes the ffmpeg command of every graph.
type Config struct {
	InputFormat string // v4l2 -input_format, empty lets the driver choose
	Resolution  string
	FPS         string
	Options     []ffmpeg.OptionType
	LogLevel    string
	// ChunkFrames is the number of audio frames per SampleHandler call.
	ChunkFrames int
	// StopTimeout is how long a graph gets to exit after SIGINT.
	StopTimeout time.Duration
	// ProgressDir holds per-graph progress sockets. Empty disables them.
	ProgressDir string
}

const (
	defaultChunkFrames = 480
	defaultStopTimeout = 3 * time.Second
	bytesPerSample     = 2 // s16le
)

// Launcher creates the process that runs a graph's command.
type Launcher func(id, command string) *process.Process

// FFmpegRuntime runs each graph as one ffmpeg process.
type FFmpegRuntime struct {
	cfg    Config
	logger logging.Logger
	launch Launcher
	onExit func(graphID string, code int)
}

// Option configures an FFmpegRuntime.
type Option func(*FFmpegRuntime)

// WithLauncher replaces the process factory.
func WithLauncher(l Launcher) Option {
	return func(r *FFmpegRuntime) { r.launch = l }
}

// WithExitHandler registers fn for graph processes that exit without
// being stopped. fn runs on the process's wait goroutine.
func WithExitHandler(fn func(graphID string, code int)) Option {
	return func(r *FFmpegRuntime) { r.onExit = fn }
}

// NewFFmpegRuntime creates a runtime.
func NewFFmpegRuntime(cfg Config, opts ...Option) *FFmpegRuntime {
	if cfg.ChunkFrames <= 0 {
		cfg.ChunkFrames = defaultChunkFrames
	}
	if cfg.StopTimeout <= 0 {
		cfg.StopTimeout = defaultStopTimeout
	}
	r := &FFmpegRuntime{
		cfg:    cfg,
		logger: logging.GetLogger("capture"),
	}
	r.launch = func(id, command string) *process.Process {
		p := process.NewProcess(id, command, r.logger)
		p.SetTimeouts(r.cfg.StopTimeout, r.cfg.StopTimeout)
		return p
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// CreateGraph returns an empty graph with a fresh id.
func (r *FFmpegRuntime) CreateGraph() (Graph, error) {
	return &ffmpegGraph{id: uuid.NewString(), rt: r}, nil
}

// RotationHint returns the preview orientation for h on s.
func (r *FFmpegRuntime) RotationHint(h devices.Handle, s Surface) Orientation {
	return RotationHint(h, s)
}

type ffmpegGraph struct {
	id string
	rt *FFmpegRuntime

	mu          sync.Mutex
	inputs      []devices.Handle
	sink        SampleHandler
	surface     Surface
	orientation Orientation
	proc        *process.Process
	collector   *collectors.ProgressCollector
	closed      bool
}

func (g *ffmpegGraph) ID() string { return g.id }

func (g *ffmpegGraph) AddInput(h devices.Handle) bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.closed || g.proc != nil || h.Path == "" {
		return false
	}
	if _, ok := g.input(h.Media); ok {
		return false
	}
	switch h.Media {
	case devices.MediaVideo:
	case devices.MediaAudio:
		if h.Format.NumChannels <= 0 || h.Format.SampleRate <= 0 {
			return false
		}
	default:
		return false
	}
	g.inputs = append(g.inputs, h)
	return true
}

func (g *ffmpegGraph) input(media devices.MediaKind) (devices.Handle, bool) {
	for _, h := range g.inputs {
		if h.Media == media {
			return h, true
		}
	}
	return devices.Handle{}, false
}

func (g *ffmpegGraph) RemoveAllInputs() {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.proc == nil {
		g.inputs = nil
	}
}

func (g *ffmpegGraph) AddAudioOutput(fn SampleHandler) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.closed || g.proc != nil || g.sink != nil || fn == nil {
		return false
	}
	g.sink = fn
	return true
}

func (g *ffmpegGraph) RemoveAllOutputs() {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.proc == nil {
		g.sink = nil
	}
}

func (g *ffmpegGraph) BindPreview(s Surface, o Orientation) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.closed {
		return
	}
	g.surface = s
	g.orientation = o
}

func (g *ffmpegGraph) Inputs() []devices.Handle {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]devices.Handle(nil), g.inputs...)
}

func (g *ffmpegGraph) AudioFormat() (goaudio.Format, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if h, ok := g.input(devices.MediaAudio); ok {
		return h.Format, true
	}
	return goaudio.Format{}, false
}

func (g *ffmpegGraph) IsRunning() bool {
	g.mu.Lock()
	proc := g.proc
	g.mu.Unlock()
	return proc != nil && proc.State() == process.StateRunning
}

func (g *ffmpegGraph) Start() error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.closed {
		return ErrClosed
	}
	if g.proc != nil {
		return nil
	}
	video, ok := g.input(devices.MediaVideo)
	if !ok {
		return ErrNoVideoInput
	}

	cfg := g.rt.cfg
	params := ffmpeg.Params{
		DevicePath:  video.Path,
		InputFormat: cfg.InputFormat,
		Resolution:  cfg.Resolution,
		FPS:         cfg.FPS,
		WindowTitle: g.surface.Title,
		Rotation:    g.orientation.Angle,
		Mirrored:    g.orientation.Mirrored,
		LogLevel:    cfg.LogLevel,
		Options:     cfg.Options,
	}
	if params.WindowTitle == "" {
		params.WindowTitle = video.Name
	}

	audio, hasAudio := g.input(devices.MediaAudio)
	if hasAudio && g.sink != nil {
		params.AudioDevice = audio.Path
		params.SampleRate = audio.Format.SampleRate
		params.Channels = audio.Format.NumChannels
	}

	var collector *collectors.ProgressCollector
	if cfg.ProgressDir != "" {
		collector = collectors.NewProgressCollector(filepath.Join(cfg.ProgressDir, g.id+".sock"), g.id)
		if err := collector.Start(context.Background()); err != nil {
			g.rt.logger.Warn("Progress collection disabled", "graph_id", g.id, "error", err)
			collector = nil
		} else {
			params.ProgressSocket = collector.SocketPath()
		}
	}

	command, err := ffmpeg.BuildPassthrough(&params)
	if err != nil {
		if collector != nil {
			collector.Stop()
		}
		return fmt.Errorf("failed to build capture command: %w", err)
	}

	proc := g.rt.launch(g.id, command)
	proc.SetLogParser(logging.GetLogger("ffmpeg"), ffmpeg.ParseLogLevel)
	if params.HasAudio() {
		frameBytes := params.Channels * bytesPerSample
		proc.SetStdoutConsumer(pump(g.sink, frameBytes, cfg.ChunkFrames))
	}
	proc.OnExit(g.exited)

	if err := proc.Start(); err != nil {
		if collector != nil {
			collector.Stop()
		}
		return err
	}

	g.proc = proc
	g.collector = collector
	g.rt.logger.Info("Capture graph started", "graph_id", g.id, "video", video.Path, "audio", params.AudioDevice)
	return nil
}

func (g *ffmpegGraph) exited(e process.Exit) {
	metrics.RecordGraphExit(e.Requested)
	if e.Requested {
		return
	}
	g.rt.logger.Warn("Capture graph exited", "graph_id", g.id, "exit_code", e.Code)
	if g.rt.onExit != nil {
		g.rt.onExit(g.id, e.Code)
	}
}

func (g *ffmpegGraph) Stop() {
	g.mu.Lock()
	proc, collector := g.proc, g.collector
	g.proc, g.collector = nil, nil
	g.mu.Unlock()

	if proc != nil {
		proc.Stop()
		g.rt.logger.Info("Capture graph stopped", "graph_id", g.id)
	}
	if collector != nil {
		collector.Stop()
	}
}

func (g *ffmpegGraph) Close() {
	g.Stop()
	g.mu.Lock()
	defer g.mu.Unlock()
	g.closed = true
	g.inputs = nil
	g.sink = nil
}

// pump reads whole frames from r and passes them to sink in chunks of
// chunkFrames.
func pump(sink SampleHandler, frameBytes, chunkFrames int) func(io.Reader) {
	return func(r io.Reader) {
		buf := make([]byte, frameBytes*chunkFrames)
		for {
			n, err := io.ReadFull(r, buf)
			n -= n % frameBytes
			if n > 0 {
				sink(buf[:n])
			}
			if err != nil {
				return
			}
		}
	}
}
