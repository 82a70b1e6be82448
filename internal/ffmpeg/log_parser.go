package ffmpeg

import "strings"

var logLevels = map[string]bool{
	"quiet": true, "panic": true, "fatal": true, "error": true, "warning": true,
	"info": true, "verbose": true, "debug": true, "trace": true,
}

// ParseLogLevel splits a line written with -loglevel level+... into its
// level and message. A leading "[component @ 0x..]" prefix is kept in the
// message. Lines without a level tag are reported as info.
func ParseLogLevel(line string) (level, msg string) {
	tag, rest, ok := cutTag(line)
	if !ok {
		return "info", line
	}
	if logLevels[tag] {
		return tag, rest
	}

	// [component @ 0x..] [level] message
	if inner, tail, ok := cutTag(rest); ok && logLevels[inner] {
		return inner, line[:len(line)-len(rest)] + tail
	}
	return "info", line
}

// cutTag splits "[tag] rest" into tag and rest.
func cutTag(s string) (tag, rest string, ok bool) {
	if !strings.HasPrefix(s, "[") {
		return "", s, false
	}
	tag, rest, ok = strings.Cut(s[1:], "] ")
	return tag, rest, ok
}
