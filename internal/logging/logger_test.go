package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	assert.Equal(t, LevelDebug, ParseLevel("debug"))
	assert.Equal(t, LevelInfo, ParseLevel("info"))
	assert.Equal(t, LevelWarn, ParseLevel("warn"))
	assert.Equal(t, LevelWarn, ParseLevel("warning"))
	assert.Equal(t, LevelError, ParseLevel("ERROR"))
	assert.Equal(t, LevelInfo, ParseLevel("  Info "))
	assert.Equal(t, LevelInfo, ParseLevel("bogus"))
	assert.Equal(t, LevelInfo, ParseLevel(""))
}

func TestLogLevelString(t *testing.T) {
	assert.Equal(t, "DEBUG", LevelDebug.String())
	assert.Equal(t, "INFO", LevelInfo.String())
	assert.Equal(t, "WARN", LevelWarn.String())
	assert.Equal(t, "ERROR", LevelError.String())
	assert.Equal(t, "UNKNOWN", LogLevel(42).String())
}

func TestLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(&Config{Level: LevelWarn, Format: "text", Output: &buf})

	logger.Debug(context.Background(), "debug message")
	logger.Info(context.Background(), "info message")
	assert.Empty(t, buf.String())

	logger.Warn(context.Background(), nil, "warn message")
	assert.Contains(t, buf.String(), "warn message")
}

func TestJSONOutputCarriesFields(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(&Config{Level: LevelDebug, Format: "json", Output: &buf})

	logger.WithComponent("scanner").
		With("root", "/srv/project").
		Info(context.Background(), "scan complete", "files", 12)

	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "scan complete", entry["msg"])
	assert.Equal(t, "scanner", entry["component"])
	assert.Equal(t, "/srv/project", entry["root"])
	assert.Equal(t, float64(12), entry["files"])
}

func TestErrorFieldAttached(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(&Config{Level: LevelDebug, Format: "json", Output: &buf})

	logger.Error(context.Background(), errors.New("disk gone"), "scan failed")

	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "disk gone", entry["error"])
	assert.Equal(t, "ERROR", entry["level"])
}

func TestWithDoesNotMutateParent(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(&Config{Level: LevelDebug, Format: "json", Output: &buf})

	_ = logger.With("child", "only")
	logger.Info(context.Background(), "parent message")

	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	_, present := entry["child"]
	assert.False(t, present)
}

func TestNopDiscards(t *testing.T) {
	logger := Nop()
	// Must not panic on any call path.
	logger.Debug(context.Background(), "x")
	logger.Info(nil, "x") //nolint:staticcheck // nil ctx is tolerated
	logger.Warn(context.Background(), errors.New("e"), "x")
	logger.Error(context.Background(), nil, "x")
	logger.With("k", "v").WithComponent("c").Info(context.Background(), "x")
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	assert.Equal(t, LevelInfo, cfg.Level)
	assert.Equal(t, "text", cfg.Format)
	assert.NotNil(t, cfg.Output)
}
