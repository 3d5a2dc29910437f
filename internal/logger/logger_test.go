package logger

import (
	"bytes"
	"encoding/json"
	"os"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseColor(t *testing.T) {
	for text, expected := range map[string]StderrColor{
		"":       ColorIfTerminal,
		"auto":   ColorIfTerminal,
		"false":  ColorNever,
		"never":  ColorNever,
		"true":   ColorAlways,
		"Always": ColorAlways,
	} {
		color, ok := ParseColor(text)
		assert.True(t, ok, text)
		assert.Equal(t, expected, color, text)
	}

	_, ok := ParseColor("sometimes")
	assert.False(t, ok)
}

func TestUseColor(t *testing.T) {
	var buf bytes.Buffer
	assert.False(t, UseColor(&buf, ColorIfTerminal))
	assert.False(t, UseColor(&buf, ColorNever))
	assert.Equal(t, SupportsColorEscapes, UseColor(&buf, ColorAlways))

	file, err := os.CreateTemp(t.TempDir(), "log")
	require.NoError(t, err)
	defer file.Close()
	assert.False(t, UseColor(file, ColorIfTerminal))
}

func TestNewConsoleNoColor(t *testing.T) {
	var buf bytes.Buffer
	log := New(Options{Writer: &buf, Level: zerolog.InfoLevel, Color: ColorNever})

	log.Debug().Msg("hidden")
	log.Info().Str("mode", "client").Msg("prebundle client: 3 files in 1.0ms")

	out := buf.String()
	assert.NotContains(t, out, "hidden")
	assert.Contains(t, out, "prebundle client: 3 files in 1.0ms")
	assert.Contains(t, out, "mode=client")
	assert.NotContains(t, out, "\x1b[")
}

func TestNewJSON(t *testing.T) {
	var buf bytes.Buffer
	log := New(Options{Writer: &buf, Level: zerolog.DebugLevel, JSON: true})
	log.Debug().Str("filename", "App.svelte").Msg("compiled")

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "debug", entry["level"])
	assert.Equal(t, "App.svelte", entry["filename"])
	assert.Equal(t, "compiled", entry["message"])
}
