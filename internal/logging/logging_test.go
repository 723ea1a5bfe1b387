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
	assert.Equal(t, slog.LevelDebug, ParseLevel("debug"))
	assert.Equal(t, slog.LevelWarn, ParseLevel("WARN"))
	assert.Equal(t, slog.LevelError, ParseLevel("error"))
	assert.Equal(t, slog.LevelInfo, ParseLevel("info"))
	assert.Equal(t, slog.LevelInfo, ParseLevel(""))
	assert.Equal(t, slog.LevelInfo, ParseLevel("bogus"))
}

func TestNew_JSONHandler(t *testing.T) {
	var buf bytes.Buffer
	logger := New(Options{Level: "info", JSON: true, Output: &buf})

	logger.Info("hello", "key", "value")

	var rec map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &rec))
	assert.Equal(t, "hello", rec["msg"])
	assert.Equal(t, "value", rec["key"])
}

func TestNew_TextHandler(t *testing.T) {
	var buf bytes.Buffer
	logger := New(Options{Level: "info", Output: &buf})

	logger.Info("hello")

	assert.Contains(t, buf.String(), "msg=hello")
}

func TestNew_LevelFiltersDebug(t *testing.T) {
	var buf bytes.Buffer
	logger := New(Options{Level: "info", Output: &buf})

	logger.Debug("invisible")

	assert.Empty(t, buf.String())
}
