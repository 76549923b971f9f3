// SPDX-License-Identifier: AGPL-3.0-or-later
package logger

import (
	"log/slog"
	"os"
	"strings"
)

// Logger is the process-wide structured logger, JSON-encoded to stdout.
var Logger *slog.Logger

func init() {
	SetLevel(slog.LevelInfo)
}

// SetLevel rebuilds the process-wide logger at the given level.
func SetLevel(level slog.Level) {
	Logger = slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: level,
	}))
}

// ParseLevel maps a config string to a slog.Level, defaulting to Info.
func ParseLevel(levelStr string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(levelStr)) {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Component returns a logger scoped to a named component (e.g. "ingest",
// "batch", "mail") so every log line can be filtered by the part of the
// pipeline that emitted it, without each package constructing its own
// handler.
func Component(name string) *slog.Logger {
	return Logger.With("component", name)
}
