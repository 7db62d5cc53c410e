package config

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg := Load()

	assert.Equal(t, "ws://localhost:8000/rpc", cfg.SurrealDBURL)
	assert.Equal(t, "sitegraft", cfg.SurrealDBNamespace)
	assert.Equal(t, ProviderOllama, cfg.LLMProvider)
	assert.Equal(t, "8765", cfg.ServerPort)
	assert.Equal(t, slog.LevelInfo, cfg.LogLevel)
	assert.Zero(t, cfg.Tuning)
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("SITEGRAFT_SURREALDB_URL", "ws://db.internal:8000/rpc")
	t.Setenv("SITEGRAFT_SERVER_PORT", "9000")
	t.Setenv("SITEGRAFT_LLM_PROVIDER", "openai")
	t.Setenv("SITEGRAFT_LOG_LEVEL", "debug")

	cfg := Load()
	assert.Equal(t, "ws://db.internal:8000/rpc", cfg.SurrealDBURL)
	assert.Equal(t, "9000", cfg.ServerPort)
	assert.Equal(t, ProviderOpenAI, cfg.LLMProvider)
	assert.Equal(t, slog.LevelDebug, cfg.LogLevel)
}

func TestLoadTuningFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tuning.yaml")
	require.NoError(t, os.WriteFile(path, []byte(
		"similarity_threshold: 0.9\nmeso_budget: 20\n"), 0644))

	tuning, err := LoadTuning(path)
	require.NoError(t, err)
	assert.Equal(t, 0.9, tuning.SimilarityThreshold)
	assert.Equal(t, 20, tuning.MesoBudget)
	assert.Zero(t, tuning.MicroIterations, "unset values stay zero")
}

func TestLoadTuningViaEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tuning.yaml")
	require.NoError(t, os.WriteFile(path, []byte("micro_iterations: 8\n"), 0644))
	t.Setenv("SITEGRAFT_TUNING_FILE", path)

	cfg := Load()
	assert.Equal(t, 8, cfg.Tuning.MicroIterations)
}

func TestLoadTuningMissingFile(t *testing.T) {
	_, err := LoadTuning("/nonexistent/tuning.yaml")
	assert.Error(t, err)
}

func TestParseLogLevel(t *testing.T) {
	tests := []struct {
		input string
		want  slog.Level
	}{
		{"DEBUG", slog.LevelDebug},
		{"debug", slog.LevelDebug},
		{"INFO", slog.LevelInfo},
		{"WARN", slog.LevelWarn},
		{"WARNING", slog.LevelWarn},
		{"ERROR", slog.LevelError},
		{"garbage", slog.LevelInfo},
		{"", slog.LevelInfo},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			assert.Equal(t, tt.want, parseLogLevel(tt.input))
		})
	}
}

func TestLoggerFansOutTextAndJSON(t *testing.T) {
	var stderr, file bytes.Buffer
	logger := newLogger(&stderr, &file, slog.LevelInfo)

	logger.Info("phase complete", "phase", "build")

	assert.Contains(t, stderr.String(), "phase complete")

	var entry map[string]any
	require.NoError(t, json.Unmarshal(file.Bytes(), &entry))
	assert.Equal(t, "phase complete", entry["msg"])
	assert.Equal(t, "build", entry["phase"])
}

func TestLoggerWithoutFileWriter(t *testing.T) {
	var stderr bytes.Buffer
	logger := newLogger(&stderr, nil, slog.LevelDebug)

	logger.Debug("checkpoint written", "phase", "analysis")

	assert.Contains(t, stderr.String(), "checkpoint written")
}
