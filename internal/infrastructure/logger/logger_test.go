// SPDX-License-Identifier: AGPL-3.0-or-later
package logger

import (
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected slog.Level
	}{
		{"debug lowercase", "debug", slog.LevelDebug},
		{"debug uppercase", "DEBUG", slog.LevelDebug},
		{"info default", "info", slog.LevelInfo},
		{"warn lowercase", "warn", slog.LevelWarn},
		{"warning alias", "warning", slog.LevelWarn},
		{"error lowercase", "error", slog.LevelError},
		{"unknown falls back to info", "bogus", slog.LevelInfo},
		{"empty falls back to info", "", slog.LevelInfo},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, ParseLevel(tt.input))
		})
	}
}

func TestSetLevel(t *testing.T) {
	SetLevel(slog.LevelWarn)
	require.NotNil(t, Logger)
	assert.False(t, Logger.Enabled(nil, slog.LevelDebug))
	assert.True(t, Logger.Enabled(nil, slog.LevelWarn))

	SetLevel(slog.LevelDebug)
	assert.True(t, Logger.Enabled(nil, slog.LevelDebug))
}

func TestComponent(t *testing.T) {
	SetLevel(slog.LevelInfo)
	scoped := Component("ingest")
	require.NotNil(t, scoped)
	assert.NotSame(t, Logger, scoped)
}
