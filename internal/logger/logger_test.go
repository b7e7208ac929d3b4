package logger

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewJSON(t *testing.T) {
	var buf bytes.Buffer
	log := New(&buf, zerolog.InfoLevel, false)

	log.Debug().Msg("hidden")
	log.Info().Str("key", "/api/dashboard").Msg("prefetch started")

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "info", line["level"])
	assert.Equal(t, "prefetch started", line["message"])
	assert.Equal(t, "/api/dashboard", line["key"])
	assert.Contains(t, line, "time")
}

func TestNewPretty(t *testing.T) {
	t.Setenv("NO_COLOR", "1")
	var buf bytes.Buffer
	log := New(&buf, zerolog.DebugLevel, true)

	log.Warn().Msg("background revalidation failed")

	assert.Contains(t, buf.String(), "WRN")
	assert.Contains(t, buf.String(), "background revalidation failed")
}

func TestParseLevel(t *testing.T) {
	tests := map[string]zerolog.Level{
		"":        zerolog.WarnLevel,
		"debug":   zerolog.DebugLevel,
		" INFO ":  zerolog.InfoLevel,
		"error":   zerolog.ErrorLevel,
		"verbose": zerolog.WarnLevel,
	}
	for in, want := range tests {
		assert.Equal(t, want, ParseLevel(in), "ParseLevel(%q)", in)
	}
}

func TestIsTerminalBuffer(t *testing.T) {
	assert.False(t, IsTerminal(&bytes.Buffer{}))
}
