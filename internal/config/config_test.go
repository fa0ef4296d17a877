// Copyright (c) 2026 the datachat authors.
// Licensed under the GNU Affero General Public License v3.0 or later.
// See LICENSE for details.

package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		"PORT", "LLM_BACKEND", "ANTHROPIC_API_KEY", "ANTHROPIC_MODEL",
		"OPENAI_API_KEY", "OPENAI_MODEL", "DATABASE_URL", "DATA_DIR",
		"BADGER_DIR", "MAX_UPLOAD_SIZE", "SQL_TIMEOUT_SECONDS", "SQL_ROW_CAP",
		"PLOT_ROW_CAP", "CONTEXT_TOKEN_BUDGET", "MAX_ITERATIONS",
		"OTEL_EXPORTER_OTLP_ENDPOINT", "GIN_MODE", "JWT_SECRET",
	} {
		t.Setenv(key, "")
	}
}

func TestLoad_AppliesDefaultsWhenAnthropicKeyPresent(t *testing.T) {
	clearEnv(t)
	t.Setenv("ANTHROPIC_API_KEY", "test-key")

	cfg, err := Load()
	require.NoError(t, err)

	require.Equal(t, "8080", cfg.Port)
	require.Equal(t, BackendAnthropic, cfg.LLMBackend)
	require.Equal(t, "claude-sonnet-4-5-20250929", cfg.AnthropicModel)
	require.Equal(t, 10*time.Second, cfg.SQLTimeout)
	require.Equal(t, 50, cfg.SQLRowCap)
	require.Equal(t, 100, cfg.PlotRowCap)
	require.Equal(t, 8000, cfg.ContextTokenBudget)
	require.Equal(t, 15, cfg.MaxIterations)
}

func TestLoad_RequiresAnthropicKeyForAnthropicBackend(t *testing.T) {
	clearEnv(t)
	t.Setenv("LLM_BACKEND", "anthropic")

	_, err := Load()
	require.Error(t, err)
}

func TestLoad_RequiresOpenAIKeyForOpenAIBackend(t *testing.T) {
	clearEnv(t)
	t.Setenv("LLM_BACKEND", "openai")

	_, err := Load()
	require.Error(t, err)

	t.Setenv("OPENAI_API_KEY", "test-key")
	cfg, err := Load()
	require.NoError(t, err)
	require.Equal(t, BackendOpenAI, cfg.LLMBackend)
}

func TestLoad_RejectsUnknownBackend(t *testing.T) {
	clearEnv(t)
	t.Setenv("LLM_BACKEND", "not-a-real-backend")
	t.Setenv("ANTHROPIC_API_KEY", "test-key")

	_, err := Load()
	require.Error(t, err)
}
