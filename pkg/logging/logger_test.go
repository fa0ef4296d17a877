// Copyright (c) 2026 the datachat authors.
// Licensed under the GNU Affero General Public License v3.0 or later.
// See LICENSE for details.

package logging

import (
	"log/slog"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLevel_String(t *testing.T) {
	require.Equal(t, "DEBUG", LevelDebug.String())
	require.Equal(t, "INFO", LevelInfo.String())
	require.Equal(t, "WARN", LevelWarn.String())
	require.Equal(t, "ERROR", LevelError.String())
	require.Equal(t, "UNKNOWN", Level(99).String())
}

func TestLevel_ToSlogLevel(t *testing.T) {
	require.Equal(t, slog.LevelDebug, LevelDebug.toSlogLevel())
	require.Equal(t, slog.LevelInfo, LevelInfo.toSlogLevel())
	require.Equal(t, slog.LevelWarn, LevelWarn.toSlogLevel())
	require.Equal(t, slog.LevelError, LevelError.toSlogLevel())
	require.Equal(t, slog.LevelInfo, Level(99).toSlogLevel())
}

func TestNew_ReturnsUsableLogger(t *testing.T) {
	logger := New(Config{Level: LevelInfo, Service: "datachat", JSON: true})
	require.NotNil(t, logger)

	require.NotPanics(t, func() {
		logger.Debug("debug message")
		logger.Info("starting", "port", 8080)
		logger.Warn("degraded", "reason", "fallback")
		logger.Error("failed", "error", "boom")
	})
}

func TestDefault_ReturnsUsableLogger(t *testing.T) {
	logger := Default()
	require.NotNil(t, logger)
	require.NotPanics(t, func() { logger.Info("ready") })
}

func TestLogger_Close_IsANoOp(t *testing.T) {
	logger := New(Config{})
	require.NoError(t, logger.Close())
}
