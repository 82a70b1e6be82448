//go:build linux

// Package alsa discovers ALSA capture cards from procfs without cgo.
//
// USB Audio Class cards expose their negotiated stream formats in
// /proc/asound/cardN/stream0, which is enough to configure a capture
// pipeline without opening the PCM:
//
//	cards, _ := alsa.DefaultReader().CaptureDevices()
//	for _, dev := range cards {
//	    f, ok := dev.Preferred(48000)
//	    fmt.Println(dev.ALSADevice, f.Channels, f.Rates, ok)
//	}
package alsa

import "strconv"

// Card is one entry of /proc/asound/cards.
type Card struct {
	Number   int
	ID       string // short id in brackets, e.g. "MS2109"
	Driver   string // e.g. "USB-Audio"
	Name     string
	LongName string // second line, e.g. "MACROSILICON MS2109 at usb-0000:00:14.0-1, high speed"
}

// StreamFormat is one altset of a USB audio capture stream.
type StreamFormat struct {
	Format   string // S16_LE, S24_3LE, ...
	Channels int
	Rates    []int
	MinRate  int // continuous ranges only
	MaxRate  int
}

// SupportsRate reports whether rate is usable with this altset.
func (f StreamFormat) SupportsRate(rate int) bool {
	if f.MinRate > 0 && rate >= f.MinRate && rate <= f.MaxRate {
		return true
	}
	for _, r := range f.Rates {
		if r == rate {
			return true
		}
	}
	return false
}

// DefaultRate returns the rate ffmpeg should request for this altset.
func (f StreamFormat) DefaultRate(preferred int) int {
	if f.SupportsRate(preferred) {
		return preferred
	}
	if len(f.Rates) > 0 {
		return f.Rates[len(f.Rates)-1]
	}
	return f.MaxRate
}

// Device is a capture-capable card.
type Device struct {
	Card
	ALSADevice string // hw:N,0
	USBID      string // vendor:product, empty for non-USB cards
	StableID   string
	Formats    []StreamFormat
}

// Preferred picks the capture format ffmpeg should use: 16-bit first,
// then whatever the card offers first.
func (d Device) Preferred(rate int) (StreamFormat, bool) {
	if len(d.Formats) == 0 {
		return StreamFormat{}, false
	}
	for _, f := range d.Formats {
		if f.Format == "S16_LE" && f.SupportsRate(rate) {
			return f, true
		}
	}
	for _, f := range d.Formats {
		if f.Format == "S16_LE" {
			return f, true
		}
	}
	return d.Formats[0], true
}

// FormatALSADevice formats an ALSA hardware device string.
func FormatALSADevice(cardNum, deviceNum int) string {
	return "hw:" + strconv.Itoa(cardNum) + "," + strconv.Itoa(deviceNum)
}
