//go:build linux

package alsa

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// Reader reads card information from procfs. All fields are required.
type Reader struct {
	ProcRoot string // usually "/proc"
	DevRoot  string // usually "/dev"
}

// DefaultReader reads the live system.
func DefaultReader() *Reader {
	return &Reader{ProcRoot: "/proc", DevRoot: "/dev"}
}

// CaptureDevices returns every card that exposes a USB capture stream.
// Cards without a stream0 file (onboard codecs, HDMI outputs) are skipped.
func (r *Reader) CaptureDevices() ([]Device, error) {
	f, err := os.Open(filepath.Join(r.ProcRoot, "asound", "cards"))
	if err != nil {
		if os.IsNotExist(err) {
			return []Device{}, nil
		}
		return nil, fmt.Errorf("failed to open card list: %w", err)
	}
	defer f.Close()

	cards, err := ParseCards(f)
	if err != nil {
		return nil, err
	}

	devices := make([]Device, 0, len(cards))
	for _, card := range cards {
		cardDir := filepath.Join(r.ProcRoot, "asound", fmt.Sprintf("card%d", card.Number))

		stream, err := os.Open(filepath.Join(cardDir, "stream0"))
		if err != nil {
			continue
		}
		formats, err := ParseCaptureStream(stream)
		stream.Close()
		if err != nil || len(formats) == 0 {
			continue
		}

		usbID := readTrimmed(filepath.Join(cardDir, "usbid"))
		stableID := r.stableID(card.Number)
		if stableID == "" {
			stableID = fmt.Sprintf("usb-%s-card%s", usbID, card.ID)
		}

		devices = append(devices, Device{
			Card:       card,
			ALSADevice: FormatALSADevice(card.Number, 0),
			USBID:      usbID,
			StableID:   stableID,
			Formats:    formats,
		})
	}
	return devices, nil
}

// stableID resolves a /dev/snd/by-id link pointing at controlC<card>.
func (r *Reader) stableID(card int) string {
	byID := filepath.Join(r.DevRoot, "snd", "by-id")
	entries, err := os.ReadDir(byID)
	if err != nil {
		return ""
	}
	want := fmt.Sprintf("controlC%d", card)
	for _, entry := range entries {
		target, err := os.Readlink(filepath.Join(byID, entry.Name()))
		if err != nil {
			continue
		}
		if filepath.Base(target) == want {
			return entry.Name()
		}
	}
	return ""
}

// ParseCards parses /proc/asound/cards.
//
//	 1 [MS2109         ]: USB-Audio - MS2109
//	                      MACROSILICON MS2109 at usb-0000:00:14.0-1, high speed
func ParseCards(r io.Reader) ([]Card, error) {
	var cards []Card
	scanner := bufio.NewScanner(r)
	var current *Card

	for scanner.Scan() {
		line := scanner.Text()
		trimmed := strings.TrimSpace(line)
		if trimmed == "" {
			continue
		}

		open := strings.Index(trimmed, "[")
		closeIdx := strings.Index(trimmed, "]")
		if open > 0 && closeIdx > open {
			num, err := strconv.Atoi(strings.TrimSpace(trimmed[:open]))
			if err == nil {
				card := Card{
					Number: num,
					ID:     strings.TrimSpace(trimmed[open+1 : closeIdx]),
				}
				rest := strings.TrimPrefix(trimmed[closeIdx+1:], ":")
				driver, name, found := strings.Cut(rest, " - ")
				card.Driver = strings.TrimSpace(driver)
				if found {
					card.Name = strings.TrimSpace(name)
				}
				cards = append(cards, card)
				current = &cards[len(cards)-1]
				continue
			}
		}

		if current != nil && current.LongName == "" {
			current.LongName = trimmed
		}
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read card list: %w", err)
	}
	return cards, nil
}

// ParseCaptureStream extracts the capture altsets from a USB audio
// streamN file. Playback sections are ignored.
func ParseCaptureStream(r io.Reader) ([]StreamFormat, error) {
	var formats []StreamFormat
	scanner := bufio.NewScanner(r)
	inCapture := false
	var current *StreamFormat

	for scanner.Scan() {
		line := scanner.Text()
		trimmed := strings.TrimSpace(line)

		// Section headers start at column 0.
		if line != "" && line[0] != ' ' && line[0] != '\t' {
			inCapture = strings.HasPrefix(trimmed, "Capture:")
			current = nil
			continue
		}
		if !inCapture {
			continue
		}

		if strings.HasPrefix(trimmed, "Altset ") {
			formats = append(formats, StreamFormat{})
			current = &formats[len(formats)-1]
			continue
		}

		key, value, ok := strings.Cut(trimmed, ":")
		if !ok {
			continue
		}
		value = strings.TrimSpace(value)

		switch key {
		case "Format":
			if current == nil {
				formats = append(formats, StreamFormat{})
				current = &formats[len(formats)-1]
			}
			current.Format = value
		case "Channels":
			if current != nil {
				current.Channels, _ = strconv.Atoi(value)
			}
		case "Rates":
			if current != nil {
				parseRates(current, value)
			}
		}
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read stream file: %w", err)
	}

	valid := formats[:0]
	for _, f := range formats {
		if f.Channels > 0 && (len(f.Rates) > 0 || f.MaxRate > 0) {
			valid = append(valid, f)
		}
	}
	return valid, nil
}

// parseRates handles "48000", "44100, 48000" and "8000 - 48000 (continuous)".
func parseRates(f *StreamFormat, value string) {
	if strings.Contains(value, "continuous") {
		value = strings.TrimSpace(strings.Split(value, "(")[0])
		lo, hi, ok := strings.Cut(value, "-")
		if !ok {
			return
		}
		f.MinRate, _ = strconv.Atoi(strings.TrimSpace(lo))
		f.MaxRate, _ = strconv.Atoi(strings.TrimSpace(hi))
		return
	}
	for _, part := range strings.Split(value, ",") {
		if rate, err := strconv.Atoi(strings.TrimSpace(part)); err == nil && rate > 0 {
			f.Rates = append(f.Rates, rate)
		}
	}
}

func readTrimmed(path string) string {
	data, err := os.ReadFile(path)
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(data))
}
