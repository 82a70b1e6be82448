// Package session is the capture session controller. It owns the
// scanning, connecting and active state machine, the single live capture
// graph and the decision of when the audio engine runs.
//
// Every entry point may be called from any goroutine. Work is handed to
// the session queue, which is the only writer of state and of the graph.
// Observer callbacks and chooser prompts run on the UI queue; audio engine
// start and stop run on the audio queue.
package session

import (
	"slices"
	"sync"
	"time"

	"github.com/smazurov/dongled/internal/audio"
	"github.com/smazurov/dongled/internal/capture"
	"github.com/smazurov/dongled/internal/devices"
	"github.com/smazurov/dongled/internal/logging"
	"github.com/smazurov/dongled/internal/metrics"
	"github.com/smazurov/dongled/internal/queue"
)

// HostMode selects the device selection policy.
type HostMode string

const (
	// HostDesktop asks the chooser when several devices are present.
	HostDesktop HostMode = "desktop"
	// HostMobile always takes the first device.
	HostMobile HostMode = "mobile"
)

// DefaultBootDelay is the grace period for dongle firmware after a device
// is chosen.
const DefaultBootDelay = 2500 * time.Millisecond

// Config tunes the controller.
type Config struct {
	BootDelay time.Duration
	HostMode  HostMode
	Surface   capture.Surface
	Messages  Messages
}

// AudioEngine is the part of the passthrough engine the controller drives.
type AudioEngine interface {
	Start(dc audio.DeviceContext) error
	Stop()
	HandleSamples(b []byte)
}

// Deps are the collaborators of a Controller. Engine, Observer and Chooser
// may be nil.
type Deps struct {
	Registry devices.Registry
	Runtime  capture.Runtime
	Engine   AudioEngine
	Observer Observer
	Chooser  Chooser
}

// Controller runs the session state machine.
type Controller struct {
	cfg      Config
	registry devices.Registry
	runtime  capture.Runtime
	engine   AudioEngine
	observer Observer
	chooser  Chooser
	logger   logging.Logger

	ui      *queue.Queue
	session *queue.Queue
	audio   *queue.Queue

	// Owned by the session queue.
	state       State
	messages    Messages
	graph       capture.Graph
	bound       devices.Handle
	boundAudio  devices.Handle
	candidate   devices.Handle
	candidates  []devices.Handle
	attempt     uint64
	pending     *queue.Timer
	videoAuth   devices.AuthStatus
	micAuth     devices.AuthStatus
	requesting  map[devices.MediaKind]bool
	background  bool
	restartOwed bool
	closed      bool

	statusMu sync.RWMutex
	status   Status

	subMu  sync.Mutex
	unsubs []func()
}

// NewController creates a controller in Scanning. Nothing happens until
// Start.
func NewController(cfg Config, deps Deps) *Controller {
	if cfg.BootDelay <= 0 {
		cfg.BootDelay = DefaultBootDelay
	}
	if cfg.HostMode == "" {
		cfg.HostMode = HostDesktop
	}
	if cfg.Messages == (Messages{}) {
		cfg.Messages = DefaultMessages()
	}
	c := &Controller{
		cfg:        cfg,
		registry:   deps.Registry,
		runtime:    deps.Runtime,
		engine:     deps.Engine,
		observer:   deps.Observer,
		chooser:    deps.Chooser,
		logger:     logging.GetLogger("session"),
		ui:         queue.New("ui"),
		session:    queue.New("session"),
		audio:      queue.New("audio"),
		state:      StateScanning,
		messages:   cfg.Messages,
		videoAuth:  devices.AuthUndetermined,
		micAuth:    devices.AuthUndetermined,
		requesting: make(map[devices.MediaKind]bool),
	}
	c.status = Status{State: StateScanning, Message: c.messages.Scanning}
	metrics.SetSessionState(string(StateScanning))
	return c
}

// Start resolves permissions and begins discovery.
func (c *Controller) Start() {
	c.session.Async(func() {
		c.logger.Info("Session controller started", "host_mode", c.cfg.HostMode, "boot_delay", c.cfg.BootDelay)
		c.evaluate()
	})
}

// HandleAttach reacts to a device appearing.
func (c *Controller) HandleAttach(h devices.Handle) {
	c.session.Async(func() { c.attached(h) })
}

// HandleDetach reacts to a device going away.
func (c *Controller) HandleDetach(h devices.Handle) {
	c.session.Async(func() { c.detached(h) })
}

// EnterBackground tears the session down. Calling it again before
// BecomeActive has no further effect.
func (c *Controller) EnterBackground() {
	c.session.Async(c.enterBackground)
}

// BecomeActive re-checks permissions and re-enumerates from scratch.
func (c *Controller) BecomeActive() {
	c.session.Async(c.becomeActive)
}

// HandlePermissionChange reacts to a permission grant or revocation.
func (c *Controller) HandlePermissionChange(media devices.MediaKind, status devices.AuthStatus) {
	c.session.Async(func() { c.permissionChanged(media, status) })
}

// Select connects to h. It is the chooser's completion.
func (c *Controller) Select(h devices.Handle) {
	c.session.Async(func() { c.selectDevice(h) })
}

// HandleGraphExit reacts to a capture graph that stopped on its own.
func (c *Controller) HandleGraphExit(graphID string) {
	c.session.Async(func() { c.graphExited(graphID) })
}

// SetMessages swaps the message table and re-reports the current state.
func (c *Controller) SetMessages(m Messages) {
	c.session.Async(func() {
		c.messages = m
		c.report(c.currentDevice())
	})
}

// Status returns the latest snapshot without waiting for the session queue.
func (c *Controller) Status() Status {
	c.statusMu.RLock()
	defer c.statusMu.RUnlock()
	s := c.status
	s.Candidates = slices.Clone(s.Candidates)
	return s
}

// Shutdown tears down the session and stops the queues. Later calls to
// any entry point are ignored.
func (c *Controller) Shutdown() {
	c.Detach()
	c.session.Sync(func() {
		if c.closed {
			return
		}
		c.closed = true
		c.teardown()
		c.candidates = nil
		c.report(devices.Handle{})
		c.logger.Info("Session controller stopped")
	})
	c.session.Close()
	c.audio.Close()
	c.ui.Close()
}

// evaluate gates on video permission, then discovers.
func (c *Controller) evaluate() {
	if c.closed || c.background {
		return
	}

	switch status := c.registry.AuthorizationStatus(devices.MediaVideo); status {
	case devices.AuthAuthorized:
		c.videoAuth = status
	case devices.AuthUndetermined:
		if c.videoAuth == devices.AuthAuthorized {
			// A grant stands until the registry reports a denial.
			break
		}
		c.videoAuth = status
		if c.graph == nil {
			c.requestAccess(devices.MediaVideo)
		}
		return
	default:
		c.revoke(status)
		return
	}

	if c.graph != nil || c.state == StateConnecting {
		return
	}
	c.checkMicrophone()
	c.discover()
}

func (c *Controller) checkMicrophone() {
	status := c.registry.AuthorizationStatus(devices.MediaAudio)
	c.micAuth = status
	if status == devices.AuthUndetermined {
		c.requestAccess(devices.MediaAudio)
	}
}

func (c *Controller) requestAccess(media devices.MediaKind) {
	if c.requesting[media] {
		return
	}
	c.requesting[media] = true
	c.logger.Info("Requesting capture permission", "media", media)
	c.registry.RequestAccess(media, func(granted bool) {
		c.session.Async(func() { c.accessResolved(media, granted) })
	})
}

func (c *Controller) accessResolved(media devices.MediaKind, granted bool) {
	c.requesting[media] = false
	status := devices.AuthDenied
	if granted {
		status = devices.AuthAuthorized
	}
	c.logger.Info("Capture permission resolved", "media", media, "status", status)

	if media == devices.MediaVideo {
		if !granted {
			c.revoke(status)
			return
		}
		c.videoAuth = status
		if c.closed || c.background || c.graph != nil || c.state != StateScanning {
			return
		}
		c.checkMicrophone()
		c.discover()
		return
	}

	c.micAuth = status
	if c.state == StateScanning {
		c.report(devices.Handle{})
	}
}

func (c *Controller) revoke(status devices.AuthStatus) {
	c.videoAuth = status
	if c.state == StateConnecting {
		metrics.RecordConnectAbort("permission")
	}
	if c.state != StateScanning {
		c.logger.Warn("Video permission revoked", "status", status)
	}
	c.teardown()
	c.candidates = nil
	c.setState(StateScanning)
	c.report(devices.Handle{})
}

// discover enumerates external video devices and either connects, asks
// the chooser or stays in Scanning.
func (c *Controller) discover() {
	if c.closed || c.background || c.graph != nil || c.state != StateScanning {
		return
	}

	handles, err := c.registry.Enumerate(devices.MediaVideo, devices.ConnectionExternal)
	if err != nil {
		c.logger.Warn("Failed to enumerate video devices", "error", err)
		handles = nil
	}
	handles = devices.DedupeByModel(handles)

	switch {
	case len(handles) == 0:
		c.candidates = nil
		c.report(devices.Handle{})
	case len(handles) > 1 && c.cfg.HostMode == HostDesktop && c.chooser != nil:
		if sameDevices(c.candidates, handles) {
			return
		}
		c.candidates = handles
		c.logger.Info("Multiple capture devices found, waiting for a choice", "count", len(handles))
		c.report(devices.Handle{})
		candidates := slices.Clone(handles)
		c.ui.Async(func() { c.chooser.Present(candidates, c.Select) })
	default:
		c.candidates = nil
		c.connect(handles[0])
	}
}

func sameDevices(a, b []devices.Handle) bool {
	return slices.EqualFunc(a, b, func(x, y devices.Handle) bool { return x.UniqueID == y.UniqueID })
}

// connect moves to Connecting and schedules the boot delay for h.
func (c *Controller) connect(h devices.Handle) {
	c.cancelPending()
	c.attempt++
	token := c.attempt
	c.candidate = h
	metrics.RecordConnectAttempt()
	c.logger.Info("Connecting to capture device", "device", h.Name, "unique_id", h.UniqueID, "attempt", token)
	c.setState(StateConnecting)
	c.report(h)
	c.pending = c.session.AsyncAfter(c.cfg.BootDelay, func() { c.bootElapsed(token) })
}

// cancelPending stops the boot delay timer and invalidates any firing
// already queued.
func (c *Controller) cancelPending() {
	if c.pending != nil {
		c.pending.Cancel()
		c.pending = nil
	}
	c.attempt++
}

func (c *Controller) bootElapsed(token uint64) {
	if token != c.attempt || c.state != StateConnecting || c.background || c.closed {
		c.logger.Debug("Ignoring stale boot delay", "attempt", token)
		return
	}
	c.pending = nil
	candidate := c.candidate

	handles, err := c.registry.Enumerate(devices.MediaVideo, devices.ConnectionExternal)
	if err != nil {
		c.logger.Warn("Failed to enumerate video devices", "error", err)
	}
	fresh, ok := devices.Find(handles, candidate.UniqueID)
	if err != nil || !ok {
		c.logger.Info("Capture device vanished during boot delay", "device", candidate.Name, "unique_id", candidate.UniqueID)
		c.abortConnect("vanished")
		c.discover()
		return
	}
	c.build(fresh)
}

func (c *Controller) abortConnect(reason string) {
	metrics.RecordConnectAbort(reason)
	c.cancelPending()
	c.candidate = devices.Handle{}
	c.setState(StateScanning)
	c.report(devices.Handle{})
}

// build creates the graph for video and moves to Active only when it is
// running with at least one input. Every failure leaves no graph behind.
func (c *Controller) build(video devices.Handle) {
	g, err := c.runtime.CreateGraph()
	if err != nil {
		c.logger.Error("Failed to create capture graph", "error", err)
		c.abortConnect("graph")
		return
	}
	metrics.RecordGraphBuilt()

	if !g.AddInput(video) {
		c.logger.Error("Cannot add input", "media", devices.MediaVideo, "device", video.Name, "path", video.Path)
		metrics.RecordBindFailure(string(devices.MediaVideo))
		c.release(g)
		c.abortConnect("bind")
		return
	}

	var mic devices.Handle
	if c.engine != nil && c.micAuth == devices.AuthAuthorized {
		mic = c.bindAudio(g, video)
	}

	g.BindPreview(c.cfg.Surface, c.runtime.RotationHint(video, c.cfg.Surface))

	if !g.IsRunning() && len(g.Inputs()) > 0 {
		if err := g.Start(); err != nil {
			c.logger.Error("Failed to start capture graph", "graph_id", g.ID(), "error", err)
		}
	}
	if !g.IsRunning() || len(g.Inputs()) == 0 {
		c.release(g)
		c.abortConnect("start")
		return
	}

	c.graph = g
	c.bound = video
	c.boundAudio = mic
	c.candidate = devices.Handle{}
	c.logger.Info("Capture session active", "graph_id", g.ID(), "device", video.Name, "audio", mic.Name)
	c.setState(StateActive)
	c.report(video)

	if !mic.IsZero() {
		format, _ := g.AudioFormat()
		dc := audio.DeviceContext{Device: mic, Format: format}
		engine := c.engine
		c.audio.Async(func() {
			if err := engine.Start(dc); err != nil {
				c.logger.Debug("Session continues without audio", "device", mic.Name, "error", err)
			}
		})
	}
}

// bindAudio adds the dongle's audio function and the engine as its sink.
// Failure means a silent session.
func (c *Controller) bindAudio(g capture.Graph, video devices.Handle) devices.Handle {
	handles, err := c.registry.Enumerate(devices.MediaAudio, devices.ConnectionExternal)
	if err != nil {
		c.logger.Warn("Failed to enumerate audio devices", "error", err)
		return devices.Handle{}
	}
	mic, ok := devices.PairedAudio(video, handles)
	if !ok {
		c.logger.Info("No external audio device, continuing without sound")
		return devices.Handle{}
	}
	if !g.AddInput(mic) {
		c.logger.Warn("Cannot add input", "media", devices.MediaAudio, "device", mic.Name, "path", mic.Path)
		metrics.RecordBindFailure(string(devices.MediaAudio))
		return devices.Handle{}
	}
	if !g.AddAudioOutput(c.engine.HandleSamples) {
		c.logger.Warn("Cannot add audio output", "device", mic.Name)
		metrics.RecordBindFailure("audio_output")
		g.RemoveAllInputs()
		g.AddInput(video)
		return devices.Handle{}
	}
	return mic
}

// teardown stops the engine and releases the graph. The slot is cleared
// before the graph is touched so nothing reaches it afterwards.
func (c *Controller) teardown() {
	c.cancelPending()
	c.candidate = devices.Handle{}
	g := c.graph
	if g == nil {
		return
	}
	c.graph = nil
	c.bound = devices.Handle{}
	c.boundAudio = devices.Handle{}
	if c.engine != nil {
		c.audio.Async(c.engine.Stop)
	}
	c.release(g)
	c.logger.Info("Capture session torn down", "graph_id", g.ID())
}

func (c *Controller) release(g capture.Graph) {
	g.Stop()
	g.RemoveAllOutputs()
	g.RemoveAllInputs()
	g.Close()
	metrics.RecordGraphTornDown()
}

func (c *Controller) attached(h devices.Handle) {
	if c.closed {
		return
	}
	c.logger.Debug("Device attached", "device", h.String())
	if h.Connection == devices.ConnectionExternal && h.Media == devices.MediaVideo && c.state == StateScanning {
		c.evaluate()
		return
	}
	if c.state == StateScanning {
		c.report(devices.Handle{})
	}
}

func (c *Controller) detached(h devices.Handle) {
	if c.closed {
		return
	}
	c.logger.Debug("Device detached", "device", h.String())

	switch {
	case c.state == StateConnecting && h.UniqueID == c.candidate.UniqueID:
		c.logger.Info("Capture device detached during boot delay", "device", h.Name)
		c.abortConnect("detached")
		c.discover()
	case c.state == StateActive && h.UniqueID == c.bound.UniqueID:
		c.logger.Info("Bound capture device detached", "device", h.Name)
		c.teardown()
		c.setState(StateScanning)
		c.report(devices.Handle{})
		c.discover()
	case c.state == StateActive && !c.boundAudio.IsZero() && h.UniqueID == c.boundAudio.UniqueID:
		c.logger.Info("Audio device detached, continuing without sound", "device", h.Name)
		c.boundAudio = devices.Handle{}
		c.audio.Async(c.engine.Stop)
		c.publishStatus()
	case c.state == StateScanning && len(c.candidates) > 0 && h.Media == devices.MediaVideo:
		c.discover()
	case c.state == StateScanning:
		c.report(devices.Handle{})
	}
}

func (c *Controller) enterBackground() {
	if c.closed || c.background {
		return
	}
	c.background = true
	if c.graph != nil || c.state == StateConnecting {
		c.restartOwed = true
	}
	if c.state == StateConnecting {
		metrics.RecordConnectAbort("background")
	}
	c.logger.Info("Entering background", "restart_owed", c.restartOwed)
	c.teardown()
	c.candidates = nil
	c.setState(StateScanning)
	c.report(devices.Handle{})
}

func (c *Controller) becomeActive() {
	if c.closed {
		return
	}
	if c.restartOwed {
		c.logger.Info("Restarting session after background")
	}
	c.background = false
	c.restartOwed = false
	c.publishStatus()
	c.evaluate()
}

func (c *Controller) permissionChanged(media devices.MediaKind, status devices.AuthStatus) {
	if c.closed {
		return
	}
	c.logger.Info("Capture permission changed", "media", media, "status", status)

	if media == devices.MediaVideo {
		if status == devices.AuthDenied || status == devices.AuthRestricted {
			c.revoke(status)
			return
		}
		c.evaluate()
		return
	}

	c.micAuth = status
	if status != devices.AuthAuthorized && !c.boundAudio.IsZero() {
		c.boundAudio = devices.Handle{}
		c.audio.Async(c.engine.Stop)
		c.publishStatus()
	}
	if c.state == StateScanning {
		c.report(devices.Handle{})
	}
}

func (c *Controller) selectDevice(h devices.Handle) {
	if c.closed || c.background || c.graph != nil {
		c.logger.Debug("Ignoring device selection", "device", h.Name)
		return
	}
	if c.videoAuth != devices.AuthAuthorized {
		c.logger.Warn("Ignoring device selection without video permission", "device", h.Name)
		return
	}
	c.logger.Info("Capture device selected", "device", h.Name, "unique_id", h.UniqueID)
	c.candidates = nil
	c.connect(h)
}

func (c *Controller) graphExited(graphID string) {
	if c.closed || c.graph == nil || c.graph.ID() != graphID {
		return
	}
	c.logger.Warn("Capture graph exited unexpectedly", "graph_id", graphID, "device", c.bound.Name)
	c.teardown()
	c.setState(StateScanning)
	c.report(devices.Handle{})
	c.discover()
}

func (c *Controller) setState(s State) {
	if s == c.state {
		return
	}
	metrics.RecordTransition(string(c.state), string(s))
	metrics.SetSessionState(string(s))
	c.logger.Debug("Session state changed", "from", c.state, "to", s)
	c.state = s
}

func (c *Controller) currentDevice() devices.Handle {
	switch c.state {
	case StateConnecting:
		return c.candidate
	case StateActive:
		return c.bound
	}
	return devices.Handle{}
}

// message picks the text for the current state.
func (c *Controller) message() string {
	switch c.state {
	case StateActive:
		return c.messages.Active
	case StateConnecting:
		return c.messages.Connecting
	}
	switch {
	case c.videoAuth == devices.AuthDenied || c.videoAuth == devices.AuthRestricted:
		return c.messages.VideoDenied
	case len(c.candidates) > 0:
		return c.messages.Choosing
	case (c.micAuth == devices.AuthDenied || c.micAuth == devices.AuthRestricted) && c.messages.ScanningSilent != "":
		return c.messages.ScanningSilent
	}
	return c.messages.Scanning
}

// report publishes the current state to the snapshot and the observer.
func (c *Controller) report(device devices.Handle) {
	u := Update{State: c.state, Message: c.message(), Device: device}
	c.publishStatus()
	if c.observer != nil {
		observer := c.observer
		c.ui.Async(func() { observer.StateChanged(u) })
	}
}

func (c *Controller) publishStatus() {
	s := Status{
		State:       c.state,
		Message:     c.message(),
		Candidates:  slices.Clone(c.candidates),
		Background:  c.background,
		RestartOwed: c.restartOwed,
	}
	if d := c.currentDevice(); !d.IsZero() {
		s.Device = &d
	}
	if !c.boundAudio.IsZero() {
		a := c.boundAudio
		s.AudioDevice = &a
	}
	if c.graph != nil {
		s.GraphID = c.graph.ID()
	}
	c.statusMu.Lock()
	c.status = s
	c.statusMu.Unlock()
}
