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
	tests := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		"INFO":    slog.LevelInfo,
		"warning": slog.LevelWarn,
		"error":   slog.LevelError,
		"bogus":   slog.LevelInfo,
	}
	for in, want := range tests {
		assert.Equal(t, want, ParseLevel(in), in)
	}
}

func TestJSONLoggerFiltersByLevel(t *testing.T) {
	var buf bytes.Buffer
	logger := newWithWriter(&buf, Options{Level: "warn"})

	logger.Info("dropped")
	logger.Warn("kept", "room_id", "r1")

	lines := bytes.Split(bytes.TrimSpace(buf.Bytes()), []byte("\n"))
	require.Len(t, lines, 1)

	var rec map[string]any
	require.NoError(t, json.Unmarshal(lines[0], &rec))
	assert.Equal(t, "kept", rec["msg"])
	assert.Equal(t, "r1", rec["room_id"])
	assert.Equal(t, "roomchat-service", rec["service"])
}
