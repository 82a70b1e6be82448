package ffmpeg

import (
	"fmt"
	"strings"
)

// OptionType represents a strongly typed FFmpeg option
type OptionType string

// FFmpeg option constants
const (
	OptionIgnoreErrors       OptionType = "ignore_err"
	OptionWallclockTimestamp OptionType = "wallclock_ts"
	OptionThreadQueue1024    OptionType = "thread_queue_1024"
	OptionThreadQueue4096    OptionType = "thread_queue_4096"
	OptionLowLatency         OptionType = "low_latency"
)

// OptionCategory represents option categories
type OptionCategory string

const (
	CategoryTiming      OptionCategory = "Timing"
	CategoryErrorHandle OptionCategory = "Error Handling"
	CategoryPerformance OptionCategory = "Performance"
)

// ExclusiveGroup represents a group of mutually exclusive options
type ExclusiveGroup string

const (
	GroupThreadQueue ExclusiveGroup = "thread_queue"
)

// Option represents available FFmpeg feature flags with metadata
type Option struct {
	Key            OptionType      `json:"key"`
	Name           string          `json:"name"`
	Description    string          `json:"description"`
	Category       OptionCategory  `json:"category"`
	AppDefault     bool            `json:"app_default"`
	ExclusiveGroup *ExclusiveGroup `json:"exclusive_group,omitempty"`
}

func group(g ExclusiveGroup) *ExclusiveGroup { return &g }

// AllOptions contains all available FFmpeg feature flags.
var AllOptions = []Option{
	{
		Key:         OptionIgnoreErrors,
		Name:        "Ignore Errors",
		Description: "Continue decoding despite corrupt frames from the dongle",
		Category:    CategoryErrorHandle,
	},
	{
		Key:         OptionWallclockTimestamp,
		Name:        "Wallclock Timestamps",
		Description: "Stamp audio with the wallclock (helps cards with drifting clocks)",
		Category:    CategoryTiming,
	},
	{
		Key:            OptionThreadQueue1024,
		Name:           "Large Thread Queue",
		Description:    "Use 1024 thread queue size on the video input",
		Category:       CategoryPerformance,
		AppDefault:     true,
		ExclusiveGroup: group(GroupThreadQueue),
	},
	{
		Key:            OptionThreadQueue4096,
		Name:           "Extra Large Thread Queue",
		Description:    "Use 4096 thread queue size (for problematic devices)",
		Category:       CategoryPerformance,
		ExclusiveGroup: group(GroupThreadQueue),
	},
	{
		Key:         OptionLowLatency,
		Name:        "Low Latency Mode",
		Description: "Disable input buffering to keep the preview close to real time",
		Category:    CategoryPerformance,
		AppDefault:  true,
	},
}

// GetOptionByKey returns an option by its key
func GetOptionByKey(key OptionType) *Option {
	for i := range AllOptions {
		if AllOptions[i].Key == key {
			return &AllOptions[i]
		}
	}
	return nil
}

// ValidateOptions rejects unknown keys and exclusive group violations.
func ValidateOptions(selected []OptionType) error {
	groups := make(map[ExclusiveGroup][]string)
	for _, key := range selected {
		option := GetOptionByKey(key)
		if option == nil {
			return fmt.Errorf("unknown ffmpeg option %q", key)
		}
		if option.ExclusiveGroup != nil {
			groups[*option.ExclusiveGroup] = append(groups[*option.ExclusiveGroup], option.Name)
		}
	}
	for g, names := range groups {
		if len(names) > 1 {
			return fmt.Errorf("multiple options from exclusive group '%s' selected: %s", g, strings.Join(names, ", "))
		}
	}
	return nil
}

// GetDefaultOptions returns the options that are enabled by default in the application
func GetDefaultOptions() []OptionType {
	var defaults []OptionType
	for _, option := range AllOptions {
		if option.AppDefault {
			defaults = append(defaults, option.Key)
		}
	}
	return defaults
}

// ParseOptions converts option keys from configuration.
func ParseOptions(keys []string) ([]OptionType, error) {
	out := make([]OptionType, 0, len(keys))
	for _, k := range keys {
		opt := OptionType(strings.TrimSpace(k))
		if GetOptionByKey(opt) == nil {
			return nil, fmt.Errorf("unknown ffmpeg option %q", k)
		}
		out = append(out, opt)
	}
	return out, nil
}

// ApplyOptionsToCommand writes the video input options to cmd and returns
// the ones it applied. Options that belong elsewhere in the command are
// handled by the builder.
func ApplyOptionsToCommand(options []OptionType, cmd *strings.Builder) []OptionType {
	var applied []OptionType
	var fflags []string

	for _, option := range options {
		switch option {
		case OptionIgnoreErrors:
			cmd.WriteString(" -err_detect ignore_err")
			applied = append(applied, option)
		case OptionThreadQueue1024:
			cmd.WriteString(" -thread_queue_size 1024")
			applied = append(applied, option)
		case OptionThreadQueue4096:
			cmd.WriteString(" -thread_queue_size 4096")
			applied = append(applied, option)
		case OptionLowLatency:
			fflags = append(fflags, "+nobuffer")
			cmd.WriteString(" -flags +low_delay")
			applied = append(applied, option)
		}
	}

	if len(fflags) > 0 {
		cmd.WriteString(" -fflags " + strings.Join(fflags, ""))
	}
	return applied
}
