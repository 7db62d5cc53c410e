// Package config loads sitegraft configuration from the environment.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// LLM provider names.
const (
	ProviderOllama    = "ollama"
	ProviderOpenAI    = "openai"
	ProviderAnthropic = "anthropic"
	ProviderBedrock   = "bedrock"
)

// Config holds all configuration values.
type Config struct {
	// SurrealDB connection (state store backend)
	SurrealDBURL       string
	SurrealDBNamespace string
	SurrealDBDatabase  string
	SurrealDBUser      string
	SurrealDBPass      string
	SurrealDBAuthLevel string

	// Target CMS endpoint, checked during preflight
	CMSBaseURL string
	CMSUser    string
	CMSPass    string

	// Diagnostic reasoning model
	LLMProvider     string
	LLMModel        string
	OllamaHost      string
	OpenAIAPIKey    string
	AnthropicAPIKey string
	BedrockRegion   string

	// Server
	ServerPort string

	// Logging
	LogFile  string
	LogLevel slog.Level

	// Refinement tuning overrides (zero values mean "use defaults")
	Tuning Tuning
}

// Tuning holds refinement loop parameters that can be overridden via a
// YAML file. Zero values fall back to the built-in defaults.
type Tuning struct {
	SimilarityThreshold float64 `yaml:"similarity_threshold"`
	MicroIterations     int     `yaml:"micro_iterations"`
	MesoIterations      int     `yaml:"meso_iterations"`
	MesoBudget          int     `yaml:"meso_budget"`
	RegressionDelta     float64 `yaml:"regression_delta"`
	EscalationFloor     float64 `yaml:"escalation_floor"`
}

// Load reads configuration from environment variables. If
// SITEGRAFT_TUNING_FILE points at a YAML file, refinement tuning values are
// loaded from it as well.
func Load() Config {
	cfg := Config{
		SurrealDBURL:       getEnv("SITEGRAFT_SURREALDB_URL", "ws://localhost:8000/rpc"),
		SurrealDBNamespace: getEnv("SITEGRAFT_SURREALDB_NAMESPACE", "sitegraft"),
		SurrealDBDatabase:  getEnv("SITEGRAFT_SURREALDB_DATABASE", "state"),
		SurrealDBUser:      getEnv("SITEGRAFT_SURREALDB_USER", "root"),
		SurrealDBPass:      getEnv("SITEGRAFT_SURREALDB_PASS", "root"),
		SurrealDBAuthLevel: getEnv("SITEGRAFT_SURREALDB_AUTH_LEVEL", "root"),

		CMSBaseURL: getEnv("SITEGRAFT_CMS_URL", ""),
		CMSUser:    getEnv("SITEGRAFT_CMS_USER", ""),
		CMSPass:    getEnv("SITEGRAFT_CMS_PASS", ""),

		LLMProvider:     getEnv("SITEGRAFT_LLM_PROVIDER", ProviderOllama),
		LLMModel:        getEnv("SITEGRAFT_LLM_MODEL", "llama3.1"),
		OllamaHost:      getEnv("OLLAMA_HOST", "http://localhost:11434"),
		OpenAIAPIKey:    getEnv("OPENAI_API_KEY", ""),
		AnthropicAPIKey: getEnv("ANTHROPIC_API_KEY", ""),
		BedrockRegion:   getEnv("AWS_REGION", "us-east-1"),

		ServerPort: getEnv("SITEGRAFT_SERVER_PORT", "8765"),

		LogFile:  getEnv("SITEGRAFT_LOG_FILE", "/tmp/sitegraft.log"),
		LogLevel: parseLogLevel(getEnv("SITEGRAFT_LOG_LEVEL", "INFO")),
	}

	if path := os.Getenv("SITEGRAFT_TUNING_FILE"); path != "" {
		tuning, err := LoadTuning(path)
		if err != nil {
			slog.Warn("failed to load tuning file, using defaults", "file", path, "error", err)
		} else {
			cfg.Tuning = tuning
		}
	}

	return cfg
}

// LoadTuning reads refinement tuning values from a YAML file.
func LoadTuning(path string) (Tuning, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return Tuning{}, fmt.Errorf("read tuning file: %w", err)
	}

	var t Tuning
	if err := yaml.Unmarshal(raw, &t); err != nil {
		return Tuning{}, fmt.Errorf("parse tuning file: %w", err)
	}
	return t, nil
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func parseLogLevel(s string) slog.Level {
	switch strings.ToUpper(s) {
	case "DEBUG":
		return slog.LevelDebug
	case "INFO":
		return slog.LevelInfo
	case "WARN", "WARNING":
		return slog.LevelWarn
	case "ERROR":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
