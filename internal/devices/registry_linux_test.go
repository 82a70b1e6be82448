//go:build linux

package devices

import (
	"os"
	"path/filepath"
	"sync"
	"syscall"
	"testing"
	"time"

	"github.com/smazurov/dongled/pkg/linuxav/v4l2"
)

type fakeTree struct {
	sys, dev, proc string
	caps           map[string]v4l2.Capability
}

func (f *fakeTree) mkdir(t *testing.T, parts ...string) string {
	t.Helper()
	p := filepath.Join(parts...)
	if err := os.MkdirAll(p, 0o755); err != nil {
		t.Fatal(err)
	}
	return p
}

func (f *fakeTree) write(t *testing.T, path, content string) {
	t.Helper()
	f.mkdir(t, filepath.Dir(path))
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

func (f *fakeTree) link(t *testing.T, target, link string) {
	t.Helper()
	f.mkdir(t, filepath.Dir(link))
	if err := os.Symlink(target, link); err != nil {
		t.Fatal(err)
	}
}

func (f *fakeTree) query(path string) (v4l2.Capability, error) {
	c, ok := f.caps[path]
	if !ok {
		return v4l2.Capability{}, syscall.ENOENT
	}
	return c, nil
}

// newFakeTree builds one USB dongle (video0 + card1 on 1-1) and one
// platform camera (video2).
func newFakeTree(t *testing.T) *fakeTree {
	t.Helper()
	root := t.TempDir()
	f := &fakeTree{
		sys:  filepath.Join(root, "sys"),
		dev:  filepath.Join(root, "dev"),
		proc: filepath.Join(root, "proc"),
		caps: map[string]v4l2.Capability{},
	}

	usbDev := f.mkdir(t, f.sys, "devices", "pci0000:00", "usb1", "1-1")
	f.write(t, filepath.Join(usbDev, "idVendor"), "534d\n")
	f.write(t, filepath.Join(usbDev, "idProduct"), "2109\n")
	videoIface := f.mkdir(t, usbDev, "1-1:1.0")
	audioIface := f.mkdir(t, usbDev, "1-1:1.2")
	platform := f.mkdir(t, f.sys, "devices", "platform", "ipu")

	f.write(t, filepath.Join(f.sys, "class", "video4linux", "video0", "index"), "0\n")
	f.link(t, videoIface, filepath.Join(f.sys, "class", "video4linux", "video0", "device"))
	f.write(t, filepath.Join(f.sys, "class", "video4linux", "video2", "index"), "0\n")
	f.link(t, platform, filepath.Join(f.sys, "class", "video4linux", "video2", "device"))
	f.link(t, audioIface, filepath.Join(f.sys, "class", "sound", "card1", "device"))

	f.caps[filepath.Join(f.dev, "video0")] = v4l2.Capability{Card: "USB Video", BusInfo: "usb-0000:00:14.0-1", Caps: v4l2.CapVideoCapture}
	f.caps[filepath.Join(f.dev, "video2")] = v4l2.Capability{Card: "ipu6", BusInfo: "platform:ipu", Caps: v4l2.CapVideoCapture}
	f.write(t, filepath.Join(f.dev, "video0"), "")
	f.write(t, filepath.Join(f.dev, "video2"), "")

	f.write(t, filepath.Join(f.proc, "asound", "cards"),
		" 0 [PCH            ]: HDA-Intel - HDA Intel PCH\n"+
			"                      HDA Intel PCH at 0xf7f10000 irq 32\n"+
			" 1 [MS2109         ]: USB-Audio - MS2109\n"+
			"                      MACROSILICON MS2109 at usb-0000:00:14.0-1, high speed\n")
	f.write(t, filepath.Join(f.proc, "asound", "card1", "usbid"), "534d:2109\n")
	f.write(t, filepath.Join(f.proc, "asound", "card1", "stream0"),
		"MS2109 : USB Audio\n\nCapture:\n  Interface 3\n    Altset 1\n    Format: S16_LE\n    Channels: 2\n    Rates: 48000\n")
	return f
}

func (f *fakeTree) registry(opts ...Option) *SysfsRegistry {
	base := []Option{
		WithRoots(f.sys, f.dev, f.proc),
		WithQuery(f.query),
		WithEUID(func() int { return 1000 }),
		WithAccess(func(string) error { return nil }),
		WithGroups(func() ([]string, error) { return nil, nil }),
	}
	return NewRegistry(append(base, opts...)...)
}

func TestSysfsRegistry_EnumerateVideo(t *testing.T) {
	f := newFakeTree(t)
	r := f.registry()

	external, err := r.Enumerate(MediaVideo, ConnectionExternal)
	if err != nil {
		t.Fatalf("Enumerate: %v", err)
	}
	if len(external) != 1 {
		t.Fatalf("external video = %+v, want 1 device", external)
	}
	v := external[0]
	if v.ModelID != "534d:2109" {
		t.Errorf("ModelID = %q, want 534d:2109", v.ModelID)
	}
	if v.Path != filepath.Join(f.dev, "video0") {
		t.Errorf("Path = %q", v.Path)
	}
	if v.Bus == "" {
		t.Error("external video has no Bus")
	}

	builtin, err := r.Enumerate(MediaVideo, ConnectionBuiltin)
	if err != nil {
		t.Fatalf("Enumerate builtin: %v", err)
	}
	if len(builtin) != 1 || builtin[0].Name != "ipu6" {
		t.Errorf("builtin video = %+v", builtin)
	}
}

func TestSysfsRegistry_EnumerateAudio(t *testing.T) {
	f := newFakeTree(t)
	r := f.registry()

	video, _ := r.Enumerate(MediaVideo, ConnectionExternal)
	audio, err := r.Enumerate(MediaAudio, ConnectionExternal)
	if err != nil {
		t.Fatalf("Enumerate: %v", err)
	}
	if len(audio) != 1 {
		t.Fatalf("external audio = %+v, want 1 device", audio)
	}
	a := audio[0]
	if a.Path != "hw:1,0" {
		t.Errorf("Path = %q, want hw:1,0", a.Path)
	}
	if a.Format.NumChannels != 2 || a.Format.SampleRate != 48000 {
		t.Errorf("Format = %+v, want 2ch 48000", a.Format)
	}
	if len(video) != 1 || a.Bus != video[0].Bus {
		t.Errorf("audio bus %q does not pair with video", a.Bus)
	}
}

func TestSysfsRegistry_UnknownMedia(t *testing.T) {
	r := newFakeTree(t).registry()
	if _, err := r.Enumerate(MediaKind("infrared"), ConnectionExternal); err == nil {
		t.Error("expected error for unknown media kind")
	}
}

func TestSysfsRegistry_AuthorizationStatus(t *testing.T) {
	tests := []struct {
		name   string
		media  MediaKind
		euid   int
		access error
		groups []string
		want   AuthStatus
	}{
		{"root", MediaVideo, 0, syscall.EACCES, nil, AuthAuthorized},
		{"node accessible", MediaVideo, 1000, nil, nil, AuthAuthorized},
		{"node denied", MediaVideo, 1000, syscall.EACCES, []string{"video"}, AuthDenied},
		{"node restricted", MediaVideo, 1000, syscall.EPERM, nil, AuthRestricted},
		{"no audio nodes, audio group", MediaAudio, 1000, nil, []string{"audio"}, AuthAuthorized},
		{"no audio nodes, no group", MediaAudio, 1000, nil, []string{"video"}, AuthUndetermined},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFakeTree(t)
			r := f.registry(
				WithEUID(func() int { return tt.euid }),
				WithAccess(func(string) error { return tt.access }),
				WithGroups(func() ([]string, error) { return tt.groups, nil }),
			)
			if got := r.AuthorizationStatus(tt.media); got != tt.want {
				t.Errorf("AuthorizationStatus = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestSysfsRegistry_RequestAccess(t *testing.T) {
	f := newFakeTree(t)
	r := f.registry()

	if got := r.AuthorizationStatus(MediaAudio); got != AuthUndetermined {
		t.Fatalf("initial status = %s, want undetermined", got)
	}

	var caller sync.WaitGroup
	caller.Add(1)
	done := make(chan bool, 1)
	r.RequestAccess(MediaAudio, func(granted bool) {
		caller.Wait()
		done <- granted
	})
	// completion must not run inline: it would deadlock on caller.Wait.
	caller.Done()

	select {
	case granted := <-done:
		if !granted {
			t.Error("undetermined request was not granted")
		}
	case <-time.After(time.Second):
		t.Fatal("completion never ran")
	}

	if got := r.AuthorizationStatus(MediaAudio); got != AuthAuthorized {
		t.Errorf("status after grant = %s, want authorized", got)
	}
}

func TestSysfsRegistry_RequestAccessDenied(t *testing.T) {
	f := newFakeTree(t)
	r := f.registry(WithAccess(func(string) error { return syscall.EACCES }))

	done := make(chan bool, 1)
	r.RequestAccess(MediaVideo, func(granted bool) { done <- granted })

	select {
	case granted := <-done:
		if granted {
			t.Error("denied request was granted")
		}
	case <-time.After(time.Second):
		t.Fatal("completion never ran")
	}
}

type permissionChange struct {
	media  MediaKind
	status AuthStatus
}

type recordingBroadcaster struct {
	attached, detached []Handle
	permissions        []permissionChange
}

func (b *recordingBroadcaster) DeviceAttached(h Handle) { b.attached = append(b.attached, h) }
func (b *recordingBroadcaster) DeviceDetached(h Handle) { b.detached = append(b.detached, h) }
func (b *recordingBroadcaster) PermissionChanged(media MediaKind, status AuthStatus) {
	b.permissions = append(b.permissions, permissionChange{media, status})
}

// modeAccess answers like access(2) for an unprivileged user from the
// owner permission bits, so chmod drives it even when tests run as root.
func modeAccess(path string) error {
	fi, err := os.Stat(path)
	if err != nil {
		return err
	}
	if fi.Mode().Perm()&0o600 != 0o600 {
		return syscall.EACCES
	}
	return nil
}

func TestSysfsRegistry_Reconcile(t *testing.T) {
	f := newFakeTree(t)
	r := f.registry()
	b := &recordingBroadcaster{}

	known := r.snapshot()
	if len(known) != 2 {
		t.Fatalf("snapshot = %d devices, want video0 + card1", len(known))
	}

	// Unplug: the video node loses its capability, the card its stream.
	delete(f.caps, filepath.Join(f.dev, "video0"))
	if err := os.Remove(filepath.Join(f.proc, "asound", "card1", "stream0")); err != nil {
		t.Fatal(err)
	}
	known = r.reconcile(known, b)
	if len(b.detached) != 2 || len(b.attached) != 0 {
		t.Fatalf("after unplug attached=%d detached=%d, want 0/2", len(b.attached), len(b.detached))
	}
	if len(known) != 0 {
		t.Errorf("known = %d, want 0", len(known))
	}

	f.caps[filepath.Join(f.dev, "video0")] = v4l2.Capability{Card: "USB Video", BusInfo: "usb-0000:00:14.0-1", Caps: v4l2.CapVideoCapture}
	_ = r.reconcile(known, b)
	if len(b.attached) != 1 || b.attached[0].Media != MediaVideo {
		t.Errorf("after replug attached = %+v, want the video node", b.attached)
	}
}

func TestSysfsRegistry_RecheckAccess(t *testing.T) {
	f := newFakeTree(t)
	node := filepath.Join(f.dev, "video0")
	if err := os.Chmod(node, 0o660); err != nil {
		t.Fatal(err)
	}
	r := f.registry(WithAccess(modeAccess))
	b := &recordingBroadcaster{}

	access := r.accessSnapshot()
	if access[MediaVideo] != AuthAuthorized {
		t.Fatalf("initial video access = %s, want authorized", access[MediaVideo])
	}

	access = r.recheckAccess(access, b)
	if len(b.permissions) != 0 {
		t.Fatalf("unchanged access reported %+v", b.permissions)
	}

	// The node's ACL is revoked.
	if err := os.Chmod(node, 0o000); err != nil {
		t.Fatal(err)
	}
	access = r.recheckAccess(access, b)
	want := []permissionChange{{MediaVideo, AuthDenied}}
	if len(b.permissions) != 1 || b.permissions[0] != want[0] {
		t.Fatalf("after chmod 000 permissions = %+v, want %+v", b.permissions, want)
	}

	// Granted back.
	if err := os.Chmod(node, 0o660); err != nil {
		t.Fatal(err)
	}
	_ = r.recheckAccess(access, b)
	if len(b.permissions) != 2 || b.permissions[1] != (permissionChange{MediaVideo, AuthAuthorized}) {
		t.Errorf("after chmod 660 permissions = %+v", b.permissions)
	}
}
