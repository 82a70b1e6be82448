package led

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
)

const sysfsLEDPath = "/sys/class/leds"

// ErrUnknownLED is returned by Set for an LED type the board lacks.
var ErrUnknownLED = errors.New("LED type not supported on this board")

// sysfs implements Controller using the Linux LED class.
type sysfs struct {
	root string
	leds map[string]string // LED type -> sysfs name
}

func newSysfs(root string, leds map[string]string) *sysfs {
	if root == "" {
		root = sysfsLEDPath
	}
	return &sysfs{root: root, leds: leds}
}

// triggers maps patterns to kernel LED triggers.
var triggers = map[string]string{
	PatternSolid:     "none",
	PatternBlink:     "timer",
	PatternHeartbeat: "heartbeat",
}

func (s *sysfs) Set(ledType string, enabled bool, pattern string) error {
	name, ok := s.leds[ledType]
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownLED, ledType)
	}

	ledPath := filepath.Join(s.root, name)
	if _, err := os.Stat(ledPath); err != nil {
		return fmt.Errorf("LED %q not found at %s: %w", ledType, ledPath, err)
	}

	if !enabled {
		pattern = PatternSolid
	}
	if pattern != "" {
		trigger, ok := triggers[pattern]
		if !ok {
			return fmt.Errorf("unsupported LED pattern %q", pattern)
		}
		if err := os.WriteFile(filepath.Join(ledPath, "trigger"), []byte(trigger), 0o644); err != nil {
			return fmt.Errorf("failed to set LED trigger: %w", err)
		}
		if pattern == PatternBlink {
			// timer trigger defaults are 500ms; blink faster while scanning
			for file, ms := range map[string]string{"delay_on": "250", "delay_off": "250"} {
				if err := os.WriteFile(filepath.Join(ledPath, file), []byte(ms), 0o644); err != nil {
					return fmt.Errorf("failed to set LED %s: %w", file, err)
				}
			}
		}
	}

	brightness := "0"
	if enabled {
		brightness = "1"
	}
	if err := os.WriteFile(filepath.Join(ledPath, "brightness"), []byte(brightness), 0o644); err != nil {
		return fmt.Errorf("failed to set LED brightness: %w", err)
	}
	return nil
}

func (s *sysfs) Available() []string {
	types := make([]string, 0, len(s.leds))
	for ledType := range s.leds {
		types = append(types, ledType)
	}
	slices.Sort(types)
	return types
}

func (s *sysfs) Patterns() []string {
	return []string{PatternSolid, PatternBlink, PatternHeartbeat}
}
