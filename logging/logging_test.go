package logging

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		input string
		want  slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"DEBUG", slog.LevelDebug},
		{" info ", slog.LevelInfo},
		{"warn", slog.LevelWarn},
		{"warning", slog.LevelWarn},
		{"ERROR", slog.LevelError},
		{"unknown", slog.LevelInfo},
		{"", slog.LevelInfo},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, ParseLevel(tt.input), tt.input)
	}
}

func TestNewJSON(t *testing.T) {
	var buf bytes.Buffer
	l := New(&buf, true, slog.LevelInfo)
	l.Debug("hidden")
	l.Info("analysis done", "banners", 2)

	var m map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &m))
	assert.Equal(t, "analysis done", m["msg"])
	assert.Equal(t, float64(2), m["banners"])
}

func TestNewText(t *testing.T) {
	var buf bytes.Buffer
	New(&buf, false, slog.LevelDebug).Debug("bundle read", "path", "a.zip")
	assert.Contains(t, buf.String(), "path=a.zip")
	assert.Contains(t, buf.String(), "level=DEBUG")
}
