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

func TestNewJSON(t *testing.T) {
	var buf bytes.Buffer
	log := New("apphost", "debug", "json", &buf)
	log.Debug("provisioned", "resource", "postgres")

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "apphost", entry["service"])
	assert.Equal(t, "postgres", entry["resource"])
	assert.Equal(t, "DEBUG", entry["level"])
}

func TestAutoFormatFallsBackToJSON(t *testing.T) {
	var buf bytes.Buffer
	New("apphost", "info", "auto", &buf).Info("hello")
	assert.True(t, strings.HasPrefix(buf.String(), "{"), "non-terminal writers get JSON: %q", buf.String())
}

func TestTextAndLevelFilter(t *testing.T) {
	var buf bytes.Buffer
	log := New("apphost", "warn", "text", &buf)
	log.Info("dropped")
	log.Warn("kept")
	assert.NotContains(t, buf.String(), "dropped")
	assert.Contains(t, buf.String(), "msg=kept")
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, slog.LevelDebug, ParseLevel("debug"))
	assert.Equal(t, slog.LevelWarn, ParseLevel("warn"))
	assert.Equal(t, slog.LevelError, ParseLevel("error"))
	assert.Equal(t, slog.LevelInfo, ParseLevel("verbose"))
}
