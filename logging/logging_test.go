package logging

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	tests := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		"DEBUG":   slog.LevelDebug,
		"info":    slog.LevelInfo,
		"warning": slog.LevelWarn,
		"warn":    slog.LevelWarn,
		"error":   slog.LevelError,
		"":        slog.LevelInfo,
		"verbose": slog.LevelInfo,
	}
	for in, want := range tests {
		assert.Equal(t, want, ParseLevel(in), in)
	}
}

func TestNew_JSONByDefault(t *testing.T) {
	var buf bytes.Buffer
	log := New("info", "", &buf)

	log.Info("seat reserved", slog.String("seat", "D001"))
	log.Debug("hidden")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 1)

	var m map[string]any
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &m))
	assert.Equal(t, "seat reserved", m["msg"])
	assert.Equal(t, "D001", m["seat"])
}

func TestNew_TextFormat(t *testing.T) {
	var buf bytes.Buffer
	log := New("debug", "text", &buf)

	log.Debug("sweep", slog.Int("cleared", 2))

	out := buf.String()
	assert.Contains(t, out, "msg=sweep")
	assert.Contains(t, out, "cleared=2")
	assert.Contains(t, out, "source=")
}
