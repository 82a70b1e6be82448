package session

import (
	"errors"
	"fmt"
	"slices"
	"sync"
	"testing"
	"time"

	goaudio "github.com/go-audio/audio"

	"github.com/smazurov/dongled/internal/audio"
	"github.com/smazurov/dongled/internal/capture"
	"github.com/smazurov/dongled/internal/devices"
)

var (
	dongleA = devices.Handle{
		UniqueID:   "usb-534d_2109-video-index0",
		ModelID:    "534d:2109",
		Name:       "USB3 Video",
		Media:      devices.MediaVideo,
		Connection: devices.ConnectionExternal,
		Path:       "/dev/video0",
		Bus:        "/sys/devices/pci0000:00/0000:00:14.0/usb3/3-1",
	}
	dongleB = devices.Handle{
		UniqueID:   "usb-1e4e_7103-video-index0",
		ModelID:    "1e4e:7103",
		Name:       "Cam Link 4K",
		Media:      devices.MediaVideo,
		Connection: devices.ConnectionExternal,
		Path:       "/dev/video2",
		Bus:        "/sys/devices/pci0000:00/0000:00:14.0/usb3/3-2",
	}
	dongleAMic = devices.Handle{
		UniqueID:   "usb-MACROSILICON_USB3_Video-02",
		ModelID:    "534d:2109",
		Name:       "USB3 Video",
		Media:      devices.MediaAudio,
		Connection: devices.ConnectionExternal,
		Path:       "hw:2,0",
		Bus:        "/sys/devices/pci0000:00/0000:00:14.0/usb3/3-1",
		Format:     goaudio.Format{NumChannels: 2, SampleRate: 48000},
	}
)

// fakeRegistry is a device registry backed by slices the test edits.
type fakeRegistry struct {
	mu       sync.Mutex
	video    []devices.Handle
	audio    []devices.Handle
	auth     map[devices.MediaKind]devices.AuthStatus
	grant    map[devices.MediaKind]bool
	requests []devices.MediaKind
	enumErr  error
	// lagging keeps AuthorizationStatus at its old value after a grant.
	lagging bool
}

func newFakeRegistry(video ...devices.Handle) *fakeRegistry {
	return &fakeRegistry{
		video: video,
		auth: map[devices.MediaKind]devices.AuthStatus{
			devices.MediaVideo: devices.AuthAuthorized,
			devices.MediaAudio: devices.AuthAuthorized,
		},
		grant: map[devices.MediaKind]bool{},
	}
}

func (r *fakeRegistry) Enumerate(media devices.MediaKind, conn devices.ConnectionKind) ([]devices.Handle, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.enumErr != nil {
		return nil, r.enumErr
	}
	if conn != devices.ConnectionExternal {
		return nil, nil
	}
	if media == devices.MediaAudio {
		return slices.Clone(r.audio), nil
	}
	return slices.Clone(r.video), nil
}

func (r *fakeRegistry) AuthorizationStatus(media devices.MediaKind) devices.AuthStatus {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.auth[media]
}

func (r *fakeRegistry) RequestAccess(media devices.MediaKind, completion func(bool)) {
	r.mu.Lock()
	r.requests = append(r.requests, media)
	granted := r.grant[media]
	switch {
	case granted && r.lagging:
	case granted:
		r.auth[media] = devices.AuthAuthorized
	default:
		r.auth[media] = devices.AuthDenied
	}
	r.mu.Unlock()
	go completion(granted)
}

func (r *fakeRegistry) setAuth(media devices.MediaKind, s devices.AuthStatus) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.auth[media] = s
}

func (r *fakeRegistry) setVideo(handles ...devices.Handle) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.video = handles
}

func (r *fakeRegistry) setAudio(handles ...devices.Handle) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.audio = handles
}

func (r *fakeRegistry) requested() []devices.MediaKind {
	r.mu.Lock()
	defer r.mu.Unlock()
	return slices.Clone(r.requests)
}

// fakeRuntime hands out fakeGraphs and checks the single graph rule on
// every start.
type fakeRuntime struct {
	mu             sync.Mutex
	graphs         []*fakeGraph
	running        int
	maxRunning     int
	overlap        bool
	failCreate     bool
	failVideoInput bool
	failStart      bool
}

func (rt *fakeRuntime) CreateGraph() (capture.Graph, error) {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	if rt.failCreate {
		return nil, errors.New("no capture backend")
	}
	g := &fakeGraph{id: fmt.Sprintf("graph-%d", len(rt.graphs)+1), rt: rt}
	rt.graphs = append(rt.graphs, g)
	return g, nil
}

func (rt *fakeRuntime) RotationHint(h devices.Handle, s capture.Surface) capture.Orientation {
	return capture.RotationHint(h, s)
}

func (rt *fakeRuntime) count() int {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	return len(rt.graphs)
}

func (rt *fakeRuntime) graph(i int) *fakeGraph {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	if i < 0 {
		i += len(rt.graphs)
	}
	if i < 0 || i >= len(rt.graphs) {
		return nil
	}
	return rt.graphs[i]
}

type fakeGraph struct {
	id string
	rt *fakeRuntime

	// guarded by rt.mu
	inputs      []devices.Handle
	sink        capture.SampleHandler
	orientation capture.Orientation
	running     bool
	started     bool
	closed      bool
}

func (g *fakeGraph) ID() string { return g.id }

func (g *fakeGraph) AddInput(h devices.Handle) bool {
	g.rt.mu.Lock()
	defer g.rt.mu.Unlock()
	if g.closed || g.running {
		return false
	}
	if h.Media == devices.MediaVideo && g.rt.failVideoInput {
		return false
	}
	g.inputs = append(g.inputs, h)
	return true
}

func (g *fakeGraph) RemoveAllInputs() {
	g.rt.mu.Lock()
	defer g.rt.mu.Unlock()
	g.inputs = nil
}

func (g *fakeGraph) AddAudioOutput(fn capture.SampleHandler) bool {
	g.rt.mu.Lock()
	defer g.rt.mu.Unlock()
	if g.closed || g.sink != nil {
		return false
	}
	g.sink = fn
	return true
}

func (g *fakeGraph) RemoveAllOutputs() {
	g.rt.mu.Lock()
	defer g.rt.mu.Unlock()
	g.sink = nil
}

func (g *fakeGraph) BindPreview(_ capture.Surface, o capture.Orientation) {
	g.rt.mu.Lock()
	defer g.rt.mu.Unlock()
	g.orientation = o
}

func (g *fakeGraph) Start() error {
	g.rt.mu.Lock()
	defer g.rt.mu.Unlock()
	if g.closed {
		return capture.ErrClosed
	}
	if g.rt.failStart {
		return errors.New("device busy")
	}
	for _, other := range g.rt.graphs {
		if other != g && !other.closed {
			g.rt.overlap = true
		}
	}
	g.running, g.started = true, true
	g.rt.running++
	g.rt.maxRunning = max(g.rt.maxRunning, g.rt.running)
	return nil
}

func (g *fakeGraph) Stop() {
	g.rt.mu.Lock()
	defer g.rt.mu.Unlock()
	if g.running {
		g.running = false
		g.rt.running--
	}
}

func (g *fakeGraph) IsRunning() bool {
	g.rt.mu.Lock()
	defer g.rt.mu.Unlock()
	return g.running
}

func (g *fakeGraph) Inputs() []devices.Handle {
	g.rt.mu.Lock()
	defer g.rt.mu.Unlock()
	return slices.Clone(g.inputs)
}

func (g *fakeGraph) AudioFormat() (goaudio.Format, bool) {
	g.rt.mu.Lock()
	defer g.rt.mu.Unlock()
	for _, h := range g.inputs {
		if h.Media == devices.MediaAudio {
			return h.Format, true
		}
	}
	return goaudio.Format{}, false
}

func (g *fakeGraph) Close() {
	g.Stop()
	g.rt.mu.Lock()
	defer g.rt.mu.Unlock()
	g.closed = true
	g.inputs = nil
	g.sink = nil
}

func (g *fakeGraph) isClosed() bool {
	g.rt.mu.Lock()
	defer g.rt.mu.Unlock()
	return g.closed
}

func (g *fakeGraph) hasSink() bool {
	g.rt.mu.Lock()
	defer g.rt.mu.Unlock()
	return g.sink != nil
}

type fakeEngine struct {
	mu       sync.Mutex
	starts   []audio.DeviceContext
	stops    int
	startErr error
}

func (e *fakeEngine) Start(dc audio.DeviceContext) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.starts = append(e.starts, dc)
	return e.startErr
}

func (e *fakeEngine) Stop() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.stops++
}

func (e *fakeEngine) HandleSamples([]byte) {}

func (e *fakeEngine) counts() (starts, stops int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.starts), e.stops
}

// recorder keeps every update the observer saw.
type recorder struct {
	mu      sync.Mutex
	updates []Update
}

func (r *recorder) StateChanged(u Update) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.updates = append(r.updates, u)
}

func (r *recorder) last() Update {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.updates) == 0 {
		return Update{}
	}
	return r.updates[len(r.updates)-1]
}

func (r *recorder) all() []Update {
	r.mu.Lock()
	defer r.mu.Unlock()
	return slices.Clone(r.updates)
}

// stateChanges collapses consecutive reports of the same state.
func (r *recorder) stateChanges() []State {
	var out []State
	for _, u := range r.all() {
		if len(out) == 0 || out[len(out)-1] != u.State {
			out = append(out, u.State)
		}
	}
	return out
}

type fakeChooser struct {
	mu        sync.Mutex
	presented [][]devices.Handle
	choose    func(devices.Handle)
}

func (f *fakeChooser) Present(candidates []devices.Handle, choose func(devices.Handle)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.presented = append(f.presented, candidates)
	f.choose = choose
}

func (f *fakeChooser) presentations() [][]devices.Handle {
	f.mu.Lock()
	defer f.mu.Unlock()
	return slices.Clone(f.presented)
}

func (f *fakeChooser) pick(h devices.Handle) {
	f.mu.Lock()
	choose := f.choose
	f.mu.Unlock()
	choose(h)
}

const testBootDelay = 20 * time.Millisecond

type harness struct {
	c       *Controller
	reg     *fakeRegistry
	rt      *fakeRuntime
	engine  *fakeEngine
	obs     *recorder
	chooser *fakeChooser
}

func newHarness(t *testing.T, reg *fakeRegistry, mode HostMode) *harness {
	t.Helper()
	h := &harness{
		reg:     reg,
		rt:      &fakeRuntime{},
		engine:  &fakeEngine{},
		obs:     &recorder{},
		chooser: &fakeChooser{},
	}
	h.c = NewController(Config{
		BootDelay: testBootDelay,
		HostMode:  mode,
		Surface:   capture.Surface{Title: "dongled"},
	}, Deps{
		Registry: reg,
		Runtime:  h.rt,
		Engine:   h.engine,
		Observer: h.obs,
		Chooser:  h.chooser,
	})
	t.Cleanup(h.c.Shutdown)
	return h
}

// flush waits until every queue has run what was posted so far.
func (h *harness) flush() {
	h.c.session.Sync(func() {})
	h.c.audio.Sync(func() {})
	h.c.ui.Sync(func() {})
}

// waitFor polls cond, flushing the queues between attempts.
func (h *harness) waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for {
		h.flush()
		if cond() {
			return
		}
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s; status %+v", what, h.c.Status())
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func (h *harness) waitForState(t *testing.T, s State) {
	t.Helper()
	h.waitFor(t, "state "+string(s), func() bool { return h.obs.last().State == s })
}

// settle lets any boot delay in flight fire.
func (h *harness) settle() {
	time.Sleep(3 * testBootDelay)
	h.flush()
}
