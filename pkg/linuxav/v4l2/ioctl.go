//go:build linux

package v4l2

import (
	"bytes"
	"syscall"
	"unsafe"
)

// Fails to compile if capability drifts from the kernel layout.
var _ [104]byte = [unsafe.Sizeof(capability{})]byte{}

func ioctl(fd int, req uint, arg unsafe.Pointer) error {
	_, _, errno := syscall.Syscall(syscall.SYS_IOCTL, uintptr(fd), uintptr(req), uintptr(arg))
	if errno != 0 {
		return errno
	}
	return nil
}

// QueryCapability opens path and runs VIDIOC_QUERYCAP on it.
func QueryCapability(path string) (Capability, error) {
	fd, err := syscall.Open(path, syscall.O_RDWR|syscall.O_NONBLOCK|syscall.O_CLOEXEC, 0)
	if err != nil {
		return Capability{}, err
	}
	defer syscall.Close(fd)

	var raw capability
	if err := ioctl(fd, vidiocQuerycap, unsafe.Pointer(&raw)); err != nil {
		return Capability{}, err
	}

	caps := raw.capabilities
	if caps&CapDeviceCaps != 0 {
		caps = raw.deviceCaps
	}

	return Capability{
		Driver:  cstr(raw.driver[:]),
		Card:    cstr(raw.card[:]),
		BusInfo: cstr(raw.busInfo[:]),
		Caps:    caps,
	}, nil
}

// cstr converts a NUL-terminated byte slice to a Go string.
func cstr(b []byte) string {
	if i := bytes.IndexByte(b, 0); i >= 0 {
		return string(b[:i])
	}
	return string(b)
}
