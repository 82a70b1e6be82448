package ffmpeg

import (
	"errors"
	"fmt"
	"slices"
	"strings"
)

// ErrNoDevice is returned when Params has no video device.
var ErrNoDevice = errors.New("device path is required")

// DefaultWindowTitle names the preview window when Params leaves it empty.
const DefaultWindowTitle = "dongled"

// Base returns the ffmpeg command with standard flags.
func Base() string {
	return "ffmpeg -hide_banner -nostdin"
}

// BuildPassthrough builds the ffmpeg command for a passthrough graph.
// Video goes to an SDL window; audio, when present, is written to stdout
// as interleaved signed 16-bit little-endian samples.
func BuildPassthrough(p *Params) (string, error) {
	if p.DevicePath == "" {
		return "", ErrNoDevice
	}
	if p.HasAudio() && (p.SampleRate <= 0 || p.Channels <= 0) {
		return "", fmt.Errorf("audio input %s needs a sample rate and channel count", p.AudioDevice)
	}
	if err := ValidateOptions(p.Options); err != nil {
		return "", err
	}

	var cmd strings.Builder
	cmd.WriteString(Base())

	level := p.LogLevel
	if level == "" {
		level = "info"
	}
	// level+ prefixes every line with [level] for ParseLogLevel.
	cmd.WriteString(" -loglevel level+" + level)

	if p.ProgressSocket != "" {
		cmd.WriteString(" -progress " + quote("unix://"+p.ProgressSocket))
	}

	// Video input
	cmd.WriteString(" -f v4l2")
	ApplyOptionsToCommand(p.Options, &cmd)
	if p.InputFormat != "" {
		cmd.WriteString(" -input_format " + p.InputFormat)
	}
	if p.Resolution != "" {
		cmd.WriteString(" -video_size " + p.Resolution)
	}
	if p.FPS != "" {
		cmd.WriteString(" -framerate " + p.FPS)
	}
	cmd.WriteString(" -i " + quote(p.DevicePath))

	// Audio input
	if p.HasAudio() {
		cmd.WriteString(" -thread_queue_size 1024")
		if slices.Contains(p.Options, OptionWallclockTimestamp) {
			cmd.WriteString(" -use_wallclock_as_timestamps 1")
		}
		cmd.WriteString(fmt.Sprintf(" -f alsa -sample_fmt s16 -ar %d -ac %d", p.SampleRate, p.Channels))
		cmd.WriteString(" -i " + quote(p.AudioDevice))
	}

	// Preview output
	cmd.WriteString(" -map 0:v")
	if filters := VideoFilters(p.Rotation, p.Mirrored); filters != "" {
		cmd.WriteString(" -vf " + filters)
	}
	title := p.WindowTitle
	if title == "" {
		title = DefaultWindowTitle
	}
	cmd.WriteString(" -pix_fmt yuv420p -f sdl " + quote(title))

	// Audio output
	if p.HasAudio() {
		cmd.WriteString(" -map 1:a")
		cmd.WriteString(fmt.Sprintf(" -f s16le -acodec pcm_s16le -ar %d -ac %d", p.SampleRate, p.Channels))
		cmd.WriteString(" -flush_packets 1 pipe:1")
	}

	return cmd.String(), nil
}

// VideoFilters returns the filter chain that rotates the preview clockwise
// by angle degrees and then mirrors it. Angles other than multiples of 90
// are treated as 0.
func VideoFilters(angle int, mirrored bool) string {
	var chain []string
	switch ((angle % 360) + 360) % 360 {
	case 90:
		chain = append(chain, "transpose=clock")
	case 180:
		chain = append(chain, "hflip", "vflip")
	case 270:
		chain = append(chain, "transpose=cclock")
	}
	if mirrored {
		chain = append(chain, "hflip")
	}
	return strings.Join(chain, ",")
}

// ProbeCommand lists the formats a V4L2 device offers.
func ProbeCommand(devicePath string) (string, error) {
	if devicePath == "" {
		return "", ErrNoDevice
	}
	return "ffprobe -hide_banner -f v4l2 -list_formats all -i " + quote(devicePath), nil
}

// quote wraps s in double quotes when it contains spaces or quotes.
func quote(s string) string {
	if s != "" && !strings.ContainsAny(s, " \t\"'\\") {
		return s
	}
	r := strings.NewReplacer(`\`, `\\`, `"`, `\"`)
	return `"` + r.Replace(s) + `"`
}
