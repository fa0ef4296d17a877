// Copyright (c) 2026 the datachat authors.
// Licensed under the GNU Affero General Public License v3.0 or later.
// See LICENSE for details.

// Package config loads datachat's runtime configuration from the
// environment. All values have production-sane defaults so the service
// starts cleanly for local development with no environment set.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// LLMBackend selects which provider the agent loop talks to.
type LLMBackend string

const (
	BackendAnthropic LLMBackend = "anthropic"
	BackendOpenAI    LLMBackend = "openai"
)

// Config is the complete set of environment-derived settings for the
// service. It is loaded once at startup and passed down by value or
// pointer to the components that need it; nothing here is mutated after
// Load returns.
type Config struct {
	Port string

	LLMBackend       LLMBackend
	AnthropicAPIKey  string
	AnthropicModel   string
	OpenAIAPIKey     string
	OpenAIModel      string

	DatabaseDSN string
	DataDir     string
	BadgerDir   string

	MaxUploadSize      int64
	SQLTimeout         time.Duration
	SQLRowCap          int
	PlotRowCap         int
	ContextTokenBudget int
	MaxIterations      int

	OTelEndpoint string
	GinMode      string

	JWTSecret string
}

// Load builds a Config from the process environment, applying defaults
// for anything unset.
func Load() (*Config, error) {
	cfg := &Config{
		Port:               getEnv("PORT", "8080"),
		LLMBackend:         LLMBackend(getEnv("LLM_BACKEND", string(BackendAnthropic))),
		AnthropicAPIKey:    os.Getenv("ANTHROPIC_API_KEY"),
		AnthropicModel:     getEnv("ANTHROPIC_MODEL", "claude-sonnet-4-5-20250929"),
		OpenAIAPIKey:       os.Getenv("OPENAI_API_KEY"),
		OpenAIModel:        getEnv("OPENAI_MODEL", "gpt-4o"),
		DatabaseDSN:        getEnv("DATABASE_URL", "datachat.db"),
		DataDir:            getEnv("DATA_DIR", "./data"),
		BadgerDir:          getEnv("BADGER_DIR", "./data/.profile-cache"),
		MaxUploadSize:      getEnvInt64("MAX_UPLOAD_SIZE", 1<<30),
		SQLTimeout:         time.Duration(getEnvInt("SQL_TIMEOUT_SECONDS", 10)) * time.Second,
		SQLRowCap:          getEnvInt("SQL_ROW_CAP", 50),
		PlotRowCap:         getEnvInt("PLOT_ROW_CAP", 100),
		ContextTokenBudget: getEnvInt("CONTEXT_TOKEN_BUDGET", 8000),
		MaxIterations:      getEnvInt("MAX_ITERATIONS", 15),
		OTelEndpoint:       os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"),
		GinMode:            getEnv("GIN_MODE", "release"),
		JWTSecret:          getEnv("JWT_SECRET", ""),
	}

	switch cfg.LLMBackend {
	case BackendAnthropic:
		if cfg.AnthropicAPIKey == "" {
			return nil, fmt.Errorf("ANTHROPIC_API_KEY is required when LLM_BACKEND=%s", BackendAnthropic)
		}
	case BackendOpenAI:
		if cfg.OpenAIAPIKey == "" {
			return nil, fmt.Errorf("OPENAI_API_KEY is required when LLM_BACKEND=%s", BackendOpenAI)
		}
	default:
		return nil, fmt.Errorf("unknown LLM_BACKEND %q: must be %q or %q", cfg.LLMBackend, BackendAnthropic, BackendOpenAI)
	}

	return cfg, nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func getEnvInt64(key string, fallback int64) int64 {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			return n
		}
	}
	return fallback
}
