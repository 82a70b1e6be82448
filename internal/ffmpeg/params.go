package ffmpeg

// Params describes one passthrough graph: a V4L2 video input previewed in
// an SDL window and an optional ALSA input copied to stdout as raw PCM.
type Params struct {
	// Video input
	DevicePath  string // /dev/video0
	InputFormat string // yuyv422, mjpeg, etc.
	Resolution  string // 1920x1080
	FPS         string // 30, 60, etc.

	// Preview
	WindowTitle string
	Rotation    int  // clockwise degrees: 0, 90, 180 or 270
	Mirrored    bool // horizontal flip after rotation

	// Audio input, copied to stdout as s16le
	AudioDevice string // hw:1,0
	SampleRate  int
	Channels    int

	LogLevel       string // ffmpeg -loglevel, default "info"
	ProgressSocket string // /run/dongled/<graph>.sock

	// Behavior Options
	Options []OptionType // FFmpeg behavior flags
}

// HasAudio reports whether the graph carries an audio branch.
func (p *Params) HasAudio() bool {
	return p.AudioDevice != ""
}
