package logger

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJSONFormat(t *testing.T) {
	output := &bytes.Buffer{}
	l := New(Config{Level: "info", Format: "json", Output: output})
	l.Debug("hidden")
	l.Info("job succeeded", slog.Int64("job_id", 3))

	lines := strings.Split(strings.TrimSpace(output.String()), "\n")
	require.Len(t, lines, 1)
	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &entry))
	assert.Equal(t, "INFO", entry["level"])
	assert.Equal(t, "job succeeded", entry["msg"])
	assert.Equal(t, float64(3), entry["job_id"])
}

func TestConsoleFormat(t *testing.T) {
	output := &bytes.Buffer{}
	l := New(Config{Level: "debug", Output: output, NoColor: true})
	l.Debug("polling", slog.String("queue", "fetchers"))
	// tint abbreviates levels
	assert.Contains(t, output.String(), "DBG")
	assert.Contains(t, output.String(), "polling")
	assert.Contains(t, output.String(), "queue=fetchers")
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		level    string
		expected slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"DEBUG", slog.LevelDebug},
		{"info", slog.LevelInfo},
		{"warning", slog.LevelWarn},
		{"error", slog.LevelError},
		{"", slog.LevelInfo},
		{"loud", slog.LevelInfo},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.expected, parseLevel(tt.level), tt.level)
	}
}
