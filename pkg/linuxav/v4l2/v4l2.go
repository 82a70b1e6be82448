//go:build linux

// Package v4l2 enumerates Video4Linux2 capture nodes without cgo.
//
// Only the capability query is implemented: enough to tell capture nodes
// from metadata/output nodes and to derive a stable identifier. Format
// negotiation is left to the consumer (ffmpeg).
//
//	devices, err := v4l2.FindDevices()
//	for _, dev := range devices {
//	    fmt.Printf("%s: %s (%s)\n", dev.DevicePath, dev.DeviceName, dev.DeviceID)
//	}
package v4l2

// Capability bits from linux/videodev2.h.
const (
	CapVideoCapture      = 0x00000001
	CapVideoOutput       = 0x00000002
	CapVideoCaptureMPlan = 0x00001000
	CapMetaCapture       = 0x00800000
	CapStreaming         = 0x04000000
	CapDeviceCaps        = 0x80000000
)

// VIDIOC_QUERYCAP, _IOR('V', 0, struct v4l2_capability). The struct has no
// pointers so the request is the same on 32 and 64-bit targets.
const vidiocQuerycap = 0x80685600

// capability mirrors struct v4l2_capability (104 bytes).
type capability struct {
	driver       [16]byte
	card         [32]byte
	busInfo      [32]byte
	version      uint32
	capabilities uint32
	deviceCaps   uint32
	reserved     [3]uint32
}

// Capability is the decoded result of a VIDIOC_QUERYCAP call.
type Capability struct {
	Driver  string
	Card    string
	BusInfo string
	Caps    uint32 // effective caps: device_caps when the driver reports them
}

// IsCapture reports whether the node can deliver video frames.
func (c Capability) IsCapture() bool {
	return c.Caps&(CapVideoCapture|CapVideoCaptureMPlan) != 0
}

// DeviceInfo describes one capture node.
type DeviceInfo struct {
	DevicePath string // /dev/video0
	DeviceName string // card name reported by the driver
	DeviceID   string // stable id from /dev/v4l/by-id or synthesized from bus info
	BusInfo    string
	SysfsName  string // video0
	Caps       uint32
}
