// Package logging provides structured logging with per-module log levels.
//
// Records go to stdout when it is connected to a terminal, pipe or file,
// and to the systemd journal when journald is running. Both are used when
// both exist.
//
// Initialize once at startup:
//
//	logging.Initialize(logging.Config{
//		Level:  "info",
//		Format: "text",
//		Modules: map[string]string{
//			"session": "debug",
//			"audio":   "warn",
//		},
//	})
//
// and take a logger per package:
//
//	logger := logging.GetLogger("session")
//	logger.Info("State changed", "state", "connecting", "device", id)
//
// Levels can be changed at runtime with SetLevels; the config watcher
// does this when the [logging] table of the config file changes.
//
// Journal entries carry SYSLOG_IDENTIFIER=dongled:
//
//	journalctl -t dongled -f
//	journalctl -t dongled MODULE=session
package logging
