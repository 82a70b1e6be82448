package config

import (
	"fmt"
	"os"

	"github.com/pelletier/go-toml/v2"

	"github.com/smazurov/dongled/internal/logging"
	"github.com/smazurov/dongled/internal/session"
)

// Runtime is the part of the config file that is re-read on change.
//
//	[logging]
//	level = "info"
//	session = "debug"    # per-module override
//
//	[messages]
//	scanning_silent = ""  # no silent-mode hint
type Runtime struct {
	Logging  logging.Config
	Messages session.Messages
}

// LoadRuntime reads the [logging] and [messages] tables. A missing file
// yields the defaults.
func LoadRuntime(path string) (Runtime, error) {
	rt := Runtime{
		Logging:  logging.Config{Level: "info", Format: "text", Modules: map[string]string{}},
		Messages: session.DefaultMessages(),
	}
	if path == "" {
		return rt, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return rt, nil
		}
		return rt, fmt.Errorf("failed to read config %s: %w", path, err)
	}

	raw := struct {
		Logging  map[string]string `toml:"logging"`
		Messages session.Messages  `toml:"messages"`
	}{Messages: rt.Messages}
	if err := toml.Unmarshal(data, &raw); err != nil {
		return rt, fmt.Errorf("failed to parse TOML config %s: %w", path, err)
	}

	for key, value := range raw.Logging {
		switch key {
		case "level":
			rt.Logging.Level = value
		case "format":
			rt.Logging.Format = value
		default:
			rt.Logging.Modules[key] = value
		}
	}
	rt.Messages = raw.Messages
	return rt, nil
}

// LoadLoggingConfig returns the [logging] table, or defaults when the file
// is missing or malformed.
func LoadLoggingConfig(path string) logging.Config {
	rt, _ := LoadRuntime(path)
	return rt.Logging
}
