//go:build !linux

package devices

import "context"

// SysfsRegistry finds nothing on platforms without sysfs.
type SysfsRegistry struct{}

// Option is accepted for signature compatibility and ignored.
type Option func(*SysfsRegistry)

func NewRegistry(_ ...Option) *SysfsRegistry { return &SysfsRegistry{} }

func (r *SysfsRegistry) Enumerate(MediaKind, ConnectionKind) ([]Handle, error) {
	return []Handle{}, nil
}

func (r *SysfsRegistry) AuthorizationStatus(MediaKind) AuthStatus { return AuthUndetermined }

func (r *SysfsRegistry) RequestAccess(_ MediaKind, completion func(bool)) {
	go completion(false)
}

// Watch blocks until ctx is done.
func (r *SysfsRegistry) Watch(ctx context.Context, _ Broadcaster) error {
	<-ctx.Done()
	return nil
}
