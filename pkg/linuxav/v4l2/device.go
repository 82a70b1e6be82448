//go:build linux

package v4l2

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
)

// QueryFunc returns the capability of a device node.
type QueryFunc func(path string) (Capability, error)

// Scanner walks sysfs for video4linux nodes. All fields are required.
type Scanner struct {
	SysRoot string // usually "/sys"
	DevRoot string // usually "/dev"
	Query   QueryFunc
}

// DefaultScanner reads the live system.
func DefaultScanner() *Scanner {
	return &Scanner{SysRoot: "/sys", DevRoot: "/dev", Query: QueryCapability}
}

// FindDevices returns all capture-capable V4L2 nodes on the system.
func FindDevices() ([]DeviceInfo, error) {
	return DefaultScanner().FindDevices()
}

// FindDevices returns capture-capable nodes sorted by node name.
func (s *Scanner) FindDevices() ([]DeviceInfo, error) {
	classDir := filepath.Join(s.SysRoot, "class", "video4linux")
	entries, err := os.ReadDir(classDir)
	if err != nil {
		if os.IsNotExist(err) {
			return []DeviceInfo{}, nil
		}
		return nil, fmt.Errorf("failed to read video4linux directory: %w", err)
	}

	names := make([]string, 0, len(entries))
	for _, entry := range entries {
		names = append(names, entry.Name())
	}
	sort.Slice(names, func(i, j int) bool { return nodeIndex(names[i]) < nodeIndex(names[j]) })

	devices := make([]DeviceInfo, 0, len(names))
	for _, name := range names {
		devicePath := filepath.Join(s.DevRoot, name)

		capability, err := s.Query(devicePath)
		if err != nil {
			slog.With("component", "linuxav").Debug("Failed to query device capabilities", "path", devicePath, "error", err)
			continue
		}
		if !capability.IsCapture() {
			continue
		}

		index := readSysfsInt(filepath.Join(classDir, name, "index"))
		deviceID := s.stableID(name, index)
		if deviceID == "" {
			deviceID = syntheticID(capability.BusInfo, index)
		}

		devices = append(devices, DeviceInfo{
			DevicePath: devicePath,
			DeviceName: capability.Card,
			DeviceID:   deviceID,
			BusInfo:    capability.BusInfo,
			SysfsName:  name,
			Caps:       capability.Caps,
		})
	}

	return devices, nil
}

// stableID looks for a /dev/v4l/by-id symlink pointing at node.
func (s *Scanner) stableID(node string, index int) string {
	byID := filepath.Join(s.DevRoot, "v4l", "by-id")
	entries, err := os.ReadDir(byID)
	if err != nil {
		return ""
	}

	suffix := fmt.Sprintf("-video-index%d", index)
	for _, entry := range entries {
		if !strings.HasSuffix(entry.Name(), suffix) {
			continue
		}
		target, err := os.Readlink(filepath.Join(byID, entry.Name()))
		if err != nil {
			continue
		}
		if filepath.Base(target) == node {
			return entry.Name()
		}
	}
	return ""
}

func syntheticID(busInfo string, index int) string {
	if strings.HasPrefix(busInfo, "usb-") {
		return fmt.Sprintf("%s-video-index%d", busInfo, index)
	}
	return fmt.Sprintf("platform-%s-video-index%d", busInfo, index)
}

// nodeIndex extracts N from "videoN" for numeric ordering.
func nodeIndex(name string) int {
	n, err := strconv.Atoi(strings.TrimPrefix(name, "video"))
	if err != nil {
		return 1 << 30
	}
	return n
}

func readSysfsInt(path string) int {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0
	}
	val, _ := strconv.Atoi(strings.TrimSpace(string(data)))
	return val
}
