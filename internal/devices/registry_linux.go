//go:build linux

package devices

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/user"
	"path/filepath"
	"strings"
	"sync"

	goaudio "github.com/go-audio/audio"
	"golang.org/x/sys/unix"

	"github.com/smazurov/dongled/internal/logging"
	"github.com/smazurov/dongled/pkg/linuxav/alsa"
	"github.com/smazurov/dongled/pkg/linuxav/v4l2"
)

// PreferredSampleRate is requested from audio cards that support it.
const PreferredSampleRate = 48000

// SysfsRegistry enumerates V4L2 and ALSA devices from sysfs, procfs and
// /dev. The zero value is not usable; use NewRegistry.
type SysfsRegistry struct {
	sysRoot  string
	devRoot  string
	procRoot string
	query    v4l2.QueryFunc
	access   func(path string) error
	groups   func() ([]string, error)
	euid     func() int
	logger   *slog.Logger

	mu      sync.Mutex
	granted map[MediaKind]bool
}

// Option configures a SysfsRegistry.
type Option func(*SysfsRegistry)

// WithRoots points the registry at an alternate filesystem tree.
func WithRoots(sysRoot, devRoot, procRoot string) Option {
	return func(r *SysfsRegistry) {
		r.sysRoot, r.devRoot, r.procRoot = sysRoot, devRoot, procRoot
	}
}

// WithQuery replaces the VIDIOC_QUERYCAP call.
func WithQuery(q v4l2.QueryFunc) Option {
	return func(r *SysfsRegistry) { r.query = q }
}

// WithAccess replaces the access(2) check used for permission status.
func WithAccess(fn func(path string) error) Option {
	return func(r *SysfsRegistry) { r.access = fn }
}

// WithGroups replaces the lookup of the process's group names.
func WithGroups(fn func() ([]string, error)) Option {
	return func(r *SysfsRegistry) { r.groups = fn }
}

// WithEUID replaces os.Geteuid.
func WithEUID(fn func() int) Option {
	return func(r *SysfsRegistry) { r.euid = fn }
}

// NewRegistry returns a registry for the running system.
func NewRegistry(opts ...Option) *SysfsRegistry {
	r := &SysfsRegistry{
		sysRoot:  "/sys",
		devRoot:  "/dev",
		procRoot: "/proc",
		query:    v4l2.QueryCapability,
		access:   func(path string) error { return unix.Access(path, unix.R_OK|unix.W_OK) },
		groups:   processGroups,
		euid:     os.Geteuid,
		logger:   logging.GetLogger("devices"),
		granted:  make(map[MediaKind]bool),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Enumerate lists capture devices of the given media and connection kind.
func (r *SysfsRegistry) Enumerate(media MediaKind, conn ConnectionKind) ([]Handle, error) {
	var (
		all []Handle
		err error
	)
	switch media {
	case MediaVideo:
		all, err = r.videoHandles()
	case MediaAudio:
		all, err = r.audioHandles()
	default:
		return nil, fmt.Errorf("unknown media kind %q", media)
	}
	if err != nil {
		return nil, err
	}

	out := make([]Handle, 0, len(all))
	for _, h := range all {
		if h.Connection == conn {
			out = append(out, h)
		}
	}
	return out, nil
}

func (r *SysfsRegistry) videoHandles() ([]Handle, error) {
	scanner := &v4l2.Scanner{SysRoot: r.sysRoot, DevRoot: r.devRoot, Query: r.query}
	nodes, err := scanner.FindDevices()
	if err != nil {
		return nil, fmt.Errorf("failed to scan video devices: %w", err)
	}

	handles := make([]Handle, 0, len(nodes))
	for _, node := range nodes {
		h := Handle{
			UniqueID:   node.DeviceID,
			ModelID:    node.DeviceName,
			Name:       node.DeviceName,
			Media:      MediaVideo,
			Connection: ConnectionBuiltin,
			Path:       node.DevicePath,
		}
		link := filepath.Join(r.sysRoot, "class", "video4linux", node.SysfsName, "device")
		if usbDir, model, ok := r.usbParent(link); ok {
			h.Connection = ConnectionExternal
			h.Bus = usbDir
			h.ModelID = model
		}
		handles = append(handles, h)
	}
	return handles, nil
}

func (r *SysfsRegistry) audioHandles() ([]Handle, error) {
	reader := &alsa.Reader{ProcRoot: r.procRoot, DevRoot: r.devRoot}
	cards, err := reader.CaptureDevices()
	if err != nil {
		return nil, fmt.Errorf("failed to scan audio devices: %w", err)
	}

	handles := make([]Handle, 0, len(cards))
	for _, card := range cards {
		format, ok := card.Preferred(PreferredSampleRate)
		if !ok {
			continue
		}
		h := Handle{
			UniqueID:   card.StableID,
			ModelID:    card.USBID,
			Name:       card.Name,
			Media:      MediaAudio,
			Connection: ConnectionBuiltin,
			Path:       card.ALSADevice,
			Format: goaudio.Format{
				NumChannels: format.Channels,
				SampleRate:  format.DefaultRate(PreferredSampleRate),
			},
		}
		if h.ModelID == "" {
			h.ModelID = card.ID
		}
		link := filepath.Join(r.sysRoot, "class", "sound", fmt.Sprintf("card%d", card.Number), "device")
		if usbDir, model, ok := r.usbParent(link); ok {
			h.Connection = ConnectionExternal
			h.Bus = usbDir
			h.ModelID = model
		} else if card.USBID != "" {
			h.Connection = ConnectionExternal
		}
		handles = append(handles, h)
	}
	return handles, nil
}

// usbParent resolves a sysfs device link and walks up to the owning USB
// device: the first ancestor carrying idVendor/idProduct.
func (r *SysfsRegistry) usbParent(link string) (dir, model string, ok bool) {
	resolved, err := filepath.EvalSymlinks(link)
	if err != nil {
		return "", "", false
	}

	root, err := filepath.EvalSymlinks(r.sysRoot)
	if err != nil {
		root = filepath.Clean(r.sysRoot)
	}
	for d := resolved; d != root && d != "/" && d != "."; d = filepath.Dir(d) {
		vendor := readTrimmed(filepath.Join(d, "idVendor"))
		product := readTrimmed(filepath.Join(d, "idProduct"))
		if vendor != "" && product != "" {
			return d, vendor + ":" + product, true
		}
	}
	return "", "", false
}

// AuthorizationStatus derives the capture permission from the device
// nodes the process could open.
func (r *SysfsRegistry) AuthorizationStatus(media MediaKind) AuthStatus {
	if r.euid() == 0 {
		return AuthAuthorized
	}

	r.mu.Lock()
	granted := r.granted[media]
	r.mu.Unlock()

	for _, node := range r.nodes(media) {
		err := r.access(node)
		switch {
		case err == nil:
			return AuthAuthorized
		case errors.Is(err, unix.EACCES):
			if granted {
				r.logger.Warn("Access revoked", "media", media, "node", node)
				r.forget(media)
			}
			return AuthDenied
		case errors.Is(err, unix.EPERM):
			return AuthRestricted
		}
	}

	if granted {
		return AuthAuthorized
	}
	if r.inGroup(groupFor(media)) {
		return AuthAuthorized
	}
	return AuthUndetermined
}

// RequestAccess grants anything not already denied or restricted. There
// is no interactive prompt on Linux; the grant stands until a device node
// says otherwise.
func (r *SysfsRegistry) RequestAccess(media MediaKind, completion func(granted bool)) {
	status := r.AuthorizationStatus(media)
	granted := status == AuthAuthorized || status == AuthUndetermined
	if status == AuthUndetermined {
		r.mu.Lock()
		r.granted[media] = true
		r.mu.Unlock()
		r.logger.Info("Access granted", "media", media)
	}
	go completion(granted)
}

func (r *SysfsRegistry) forget(media MediaKind) {
	r.mu.Lock()
	delete(r.granted, media)
	r.mu.Unlock()
}

// nodes lists the device nodes that gate capture for media.
func (r *SysfsRegistry) nodes(media MediaKind) []string {
	var pattern string
	switch media {
	case MediaVideo:
		pattern = filepath.Join(r.devRoot, "video*")
	case MediaAudio:
		pattern = filepath.Join(r.devRoot, "snd", "pcmC*D*c")
	default:
		return nil
	}
	matches, _ := filepath.Glob(pattern)
	return matches
}

func (r *SysfsRegistry) inGroup(name string) bool {
	names, err := r.groups()
	if err != nil {
		r.logger.Debug("Failed to read process groups", "error", err)
		return false
	}
	for _, n := range names {
		if n == name {
			return true
		}
	}
	return false
}

func groupFor(media MediaKind) string {
	if media == MediaAudio {
		return "audio"
	}
	return "video"
}

func processGroups() ([]string, error) {
	gids, err := os.Getgroups()
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(gids))
	for _, gid := range gids {
		g, err := user.LookupGroupId(fmt.Sprint(gid))
		if err != nil {
			continue
		}
		names = append(names, g.Name)
	}
	return names, nil
}

func readTrimmed(path string) string {
	data, err := os.ReadFile(path)
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(data))
}
