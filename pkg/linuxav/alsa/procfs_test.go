//go:build linux

package alsa

import (
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
)

const cardsFixture = ` 0 [PCH            ]: HDA-Intel - HDA Intel PCH
                      HDA Intel PCH at 0xf7f10000 irq 32
 1 [MS2109         ]: USB-Audio - MS2109
                      MACROSILICON MS2109 at usb-0000:00:14.0-1, high speed
`

const streamFixture = `MACROSILICON MS2109 at usb-0000:00:14.0-1, high speed : USB Audio

Playback:
  Status: Stop
  Interface 2
    Altset 1
    Format: S16_LE
    Channels: 2
    Rates: 44100

Capture:
  Status: Stop
  Interface 3
    Altset 1
    Format: S16_LE
    Channels: 2
    Endpoint: 0x82 (2 IN) (ASYNC)
    Rates: 48000
    Data packet interval: 1000 us
    Bits: 16
    Channel map: FL FR
  Interface 3
    Altset 2
    Format: S24_3LE
    Channels: 1
    Endpoint: 0x82 (2 IN) (ASYNC)
    Rates: 8000 - 96000 (continuous)
    Bits: 24
`

func TestParseCards(t *testing.T) {
	cards, err := ParseCards(strings.NewReader(cardsFixture))
	if err != nil {
		t.Fatalf("ParseCards: %v", err)
	}

	want := []Card{
		{Number: 0, ID: "PCH", Driver: "HDA-Intel", Name: "HDA Intel PCH", LongName: "HDA Intel PCH at 0xf7f10000 irq 32"},
		{Number: 1, ID: "MS2109", Driver: "USB-Audio", Name: "MS2109", LongName: "MACROSILICON MS2109 at usb-0000:00:14.0-1, high speed"},
	}
	if !reflect.DeepEqual(cards, want) {
		t.Errorf("ParseCards = %+v, want %+v", cards, want)
	}
}

func TestParseCaptureStream(t *testing.T) {
	formats, err := ParseCaptureStream(strings.NewReader(streamFixture))
	if err != nil {
		t.Fatalf("ParseCaptureStream: %v", err)
	}

	want := []StreamFormat{
		{Format: "S16_LE", Channels: 2, Rates: []int{48000}},
		{Format: "S24_3LE", Channels: 1, MinRate: 8000, MaxRate: 96000},
	}
	if !reflect.DeepEqual(formats, want) {
		t.Errorf("ParseCaptureStream = %+v, want %+v", formats, want)
	}
}

func TestParseCaptureStream_PlaybackOnly(t *testing.T) {
	input := "Card : USB Audio\n\nPlayback:\n  Interface 1\n    Altset 1\n    Format: S16_LE\n    Channels: 2\n    Rates: 48000\n"
	formats, err := ParseCaptureStream(strings.NewReader(input))
	if err != nil {
		t.Fatalf("ParseCaptureStream: %v", err)
	}
	if len(formats) != 0 {
		t.Errorf("got %d capture formats from playback-only stream", len(formats))
	}
}

func TestParseRates(t *testing.T) {
	tests := []struct {
		name  string
		value string
		want  StreamFormat
	}{
		{"single", "48000", StreamFormat{Rates: []int{48000}}},
		{"list", "44100, 48000, 96000", StreamFormat{Rates: []int{44100, 48000, 96000}}},
		{"continuous", "8000 - 48000 (continuous)", StreamFormat{MinRate: 8000, MaxRate: 48000}},
		{"garbage", "n/a", StreamFormat{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got StreamFormat
			parseRates(&got, tt.value)
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("parseRates(%q) = %+v, want %+v", tt.value, got, tt.want)
			}
		})
	}
}

func TestStreamFormat_DefaultRate(t *testing.T) {
	tests := []struct {
		name      string
		format    StreamFormat
		preferred int
		want      int
	}{
		{"preferred listed", StreamFormat{Rates: []int{44100, 48000}}, 48000, 48000},
		{"preferred missing", StreamFormat{Rates: []int{32000, 44100}}, 48000, 44100},
		{"continuous range", StreamFormat{MinRate: 8000, MaxRate: 96000}, 48000, 48000},
		{"continuous below", StreamFormat{MinRate: 8000, MaxRate: 16000}, 48000, 16000},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.format.DefaultRate(tt.preferred); got != tt.want {
				t.Errorf("DefaultRate(%d) = %d, want %d", tt.preferred, got, tt.want)
			}
		})
	}
}

func TestDevice_Preferred(t *testing.T) {
	d := Device{Formats: []StreamFormat{
		{Format: "S24_3LE", Channels: 2, Rates: []int{48000}},
		{Format: "S16_LE", Channels: 2, Rates: []int{44100}},
		{Format: "S16_LE", Channels: 2, Rates: []int{48000}},
	}}

	got, ok := d.Preferred(48000)
	if !ok {
		t.Fatal("Preferred returned !ok")
	}
	if got.Format != "S16_LE" || got.Rates[0] != 48000 {
		t.Errorf("Preferred = %+v, want S16_LE@48000", got)
	}

	if _, ok := (Device{}).Preferred(48000); ok {
		t.Error("Preferred on device without formats returned ok")
	}
}

func TestReader_CaptureDevices(t *testing.T) {
	root := t.TempDir()
	procRoot := filepath.Join(root, "proc")
	devRoot := filepath.Join(root, "dev")

	asound := filepath.Join(procRoot, "asound")
	if err := os.MkdirAll(filepath.Join(asound, "card0"), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.MkdirAll(filepath.Join(asound, "card1"), 0o755); err != nil {
		t.Fatal(err)
	}
	mustWrite(t, filepath.Join(asound, "cards"), cardsFixture)
	mustWrite(t, filepath.Join(asound, "card1", "stream0"), streamFixture)
	mustWrite(t, filepath.Join(asound, "card1", "usbid"), "534d:2109\n")

	byID := filepath.Join(devRoot, "snd", "by-id")
	if err := os.MkdirAll(byID, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.Symlink("../controlC1", filepath.Join(byID, "usb-MACROSILICON_MS2109-02")); err != nil {
		t.Fatal(err)
	}

	r := &Reader{ProcRoot: procRoot, DevRoot: devRoot}
	devices, err := r.CaptureDevices()
	if err != nil {
		t.Fatalf("CaptureDevices: %v", err)
	}
	if len(devices) != 1 {
		t.Fatalf("got %d devices, want 1", len(devices))
	}

	d := devices[0]
	if d.ALSADevice != "hw:1,0" {
		t.Errorf("ALSADevice = %q, want hw:1,0", d.ALSADevice)
	}
	if d.USBID != "534d:2109" {
		t.Errorf("USBID = %q, want 534d:2109", d.USBID)
	}
	if d.StableID != "usb-MACROSILICON_MS2109-02" {
		t.Errorf("StableID = %q", d.StableID)
	}
}

func TestFormatALSADevice(t *testing.T) {
	tests := []struct {
		card, device int
		want         string
	}{
		{0, 0, "hw:0,0"},
		{1, 0, "hw:1,0"},
		{10, 5, "hw:10,5"},
	}
	for _, tt := range tests {
		if got := FormatALSADevice(tt.card, tt.device); got != tt.want {
			t.Errorf("FormatALSADevice(%d, %d) = %q, want %q", tt.card, tt.device, got, tt.want)
		}
	}
}

func mustWrite(t *testing.T, path, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}
