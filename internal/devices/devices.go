// Package devices is the device registry: it enumerates external capture
// devices, answers permission questions and turns hotplug uevents into
// attach/detach notifications.
package devices

import (
	"errors"
	"fmt"
	"sort"

	goaudio "github.com/go-audio/audio"
)

// MediaKind is the kind of media a device captures.
type MediaKind string

const (
	MediaVideo MediaKind = "video"
	MediaAudio MediaKind = "audio"
)

// ConnectionKind tells dongles apart from built-in hardware.
type ConnectionKind string

const (
	ConnectionExternal ConnectionKind = "external"
	ConnectionBuiltin  ConnectionKind = "builtin"
)

// AuthStatus is the capture permission state for one media kind.
type AuthStatus string

const (
	AuthAuthorized   AuthStatus = "authorized"
	AuthDenied       AuthStatus = "denied"
	AuthRestricted   AuthStatus = "restricted"
	AuthUndetermined AuthStatus = "undetermined"
)

// ErrNotFound is returned by Lookup when no device has the requested id.
var ErrNotFound = errors.New("device not found")

// Handle identifies one capture device. The same physical device keeps its
// UniqueID across reattach.
type Handle struct {
	UniqueID   string         `json:"unique_id"`
	ModelID    string         `json:"model_id"`
	Name       string         `json:"name"`
	Media      MediaKind      `json:"media"`
	Connection ConnectionKind `json:"connection"`
	Path       string         `json:"path"`          // /dev/videoN or hw:N,0
	Bus        string         `json:"bus,omitempty"` // sysfs dir of the owning USB device
	Format     goaudio.Format `json:"format"`        // audio only
}

// IsZero reports whether h is the empty handle.
func (h Handle) IsZero() bool { return h.UniqueID == "" }

func (h Handle) String() string {
	return fmt.Sprintf("%s %q (%s)", h.Media, h.Name, h.UniqueID)
}

// Registry is the platform device capability the session controller
// depends on.
type Registry interface {
	Enumerate(media MediaKind, conn ConnectionKind) ([]Handle, error)
	AuthorizationStatus(media MediaKind) AuthStatus
	// RequestAccess resolves a permission prompt. completion never runs on
	// the caller's goroutine.
	RequestAccess(media MediaKind, completion func(granted bool))
}

// Broadcaster receives device presence and permission changes.
type Broadcaster interface {
	DeviceAttached(h Handle)
	DeviceDetached(h Handle)
	PermissionChanged(media MediaKind, status AuthStatus)
}

// DedupeByModel keeps the first handle for each ModelID. One dongle can
// enumerate as several nodes of the same model.
func DedupeByModel(handles []Handle) []Handle {
	seen := make(map[string]bool, len(handles))
	out := make([]Handle, 0, len(handles))
	for _, h := range handles {
		key := h.ModelID
		if key == "" {
			key = h.UniqueID
		}
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, h)
	}
	return out
}

// Contains reports whether uniqueID is present in handles.
func Contains(handles []Handle, uniqueID string) bool {
	_, ok := Find(handles, uniqueID)
	return ok
}

// Find returns the handle with uniqueID.
func Find(handles []Handle, uniqueID string) (Handle, bool) {
	for _, h := range handles {
		if h.UniqueID == uniqueID {
			return h, true
		}
	}
	return Handle{}, false
}

// PairedAudio picks the audio function of the dongle that owns video:
// same USB device first, otherwise the first candidate.
func PairedAudio(video Handle, audio []Handle) (Handle, bool) {
	if len(audio) == 0 {
		return Handle{}, false
	}
	if video.Bus != "" {
		for _, a := range audio {
			if a.Bus == video.Bus {
				return a, true
			}
		}
	}
	return audio[0], true
}

// Lookup enumerates every media and connection kind and returns the
// device with uniqueID.
func Lookup(r Registry, uniqueID string) (Handle, error) {
	for _, media := range []MediaKind{MediaVideo, MediaAudio} {
		for _, conn := range []ConnectionKind{ConnectionExternal, ConnectionBuiltin} {
			handles, err := r.Enumerate(media, conn)
			if err != nil {
				return Handle{}, err
			}
			if h, ok := Find(handles, uniqueID); ok {
				return h, nil
			}
		}
	}
	return Handle{}, fmt.Errorf("%w: %s", ErrNotFound, uniqueID)
}

// diff returns handles present in next but not prev, and handles present
// in prev but not next. Both are keyed by UniqueID.
func diff(prev, next map[string]Handle) (added, removed []Handle) {
	for id, h := range next {
		if _, ok := prev[id]; !ok {
			added = append(added, h)
		}
	}
	for id, h := range prev {
		if _, ok := next[id]; !ok {
			removed = append(removed, h)
		}
	}
	sort.Slice(added, func(i, j int) bool { return added[i].UniqueID < added[j].UniqueID })
	sort.Slice(removed, func(i, j int) bool { return removed[i].UniqueID < removed[j].UniqueID })
	return added, removed
}
