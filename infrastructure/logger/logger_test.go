package logger

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestNew_InvalidLevel(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Level = "loud"
	_, err := New(cfg)
	assert.Error(t, err)
}

func TestNew_FileOutputs(t *testing.T) {
	dir := t.TempDir()
	cfg := Config{
		Level:      "debug",
		Outputs:    []string{"file"},
		OutputFile: filepath.Join(dir, "run.log"),
		ErrorFile:  filepath.Join(dir, "error.log"),
		Format:     "json",
	}
	l, err := New(cfg)
	require.NoError(t, err)

	l.LogStage("stage_complete", map[string]interface{}{"stage": "features"})
	l.LogError(errors.New("boom"), map[string]interface{}{"stage": "fit"})
	require.NoError(t, l.Close())

	all, err := os.ReadFile(cfg.OutputFile)
	require.NoError(t, err)
	assert.Contains(t, string(all), `"event":"stage_complete"`)
	assert.Contains(t, string(all), `"error":"boom"`)

	errs, err := os.ReadFile(cfg.ErrorFile)
	require.NoError(t, err)
	assert.NotContains(t, string(errs), "stage_complete")
	assert.Equal(t, 1, strings.Count(string(errs), "error_event"))

	_, err = New(Config{Level: "info", Outputs: []string{"file"}, Format: "json"})
	assert.Error(t, err)
}

func TestLogHelpers_Fields(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	l := NewWithCore(core, DefaultConfig()).WithFields(map[string]interface{}{"run_id": "abc"})

	l.LogRun("run_complete", map[string]interface{}{"ticker": "SPY"})
	l.LogConfig("config_reload", nil)

	entries := logs.All()
	require.Len(t, entries, 2)
	first := entries[0].ContextMap()
	assert.Equal(t, "run_event", entries[0].Message)
	assert.Equal(t, "run_complete", first["event"])
	assert.Equal(t, "SPY", first["ticker"])
	assert.Equal(t, "abc", first["run_id"])
	assert.Contains(t, first, "ts")
	assert.Equal(t, "config_reload", entries[1].ContextMap()["event"])
}

func TestNewNop(t *testing.T) {
	l := NewNop()
	l.LogStage("stage_complete", nil)
	assert.NoError(t, l.Close())
}
