package logging

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"

	"github.com/fyrsmithlabs/otelship/pkg/config"
)

func TestNew_ValidConfigs(t *testing.T) {
	tests := []struct {
		level  string
		format string
	}{
		{"debug", "json"},
		{"info", "console"},
		{"warn", "json"},
		{"error", "console"},
	}

	for _, tt := range tests {
		logger, err := New(config.LoggingConfig{Level: tt.level, Format: tt.format})
		require.NoError(t, err, "level=%s format=%s", tt.level, tt.format)
		require.NotNil(t, logger)

		want, perr := zapcore.ParseLevel(tt.level)
		require.NoError(t, perr)
		assert.True(t, logger.Core().Enabled(want))
	}
}

func TestNew_LevelFiltering(t *testing.T) {
	logger, err := New(config.LoggingConfig{Level: "warn", Format: "json"})
	require.NoError(t, err)

	assert.False(t, logger.Core().Enabled(zapcore.DebugLevel))
	assert.False(t, logger.Core().Enabled(zapcore.InfoLevel))
	assert.True(t, logger.Core().Enabled(zapcore.WarnLevel))
	assert.True(t, logger.Core().Enabled(zapcore.ErrorLevel))
}

func TestNew_RejectsInvalidConfig(t *testing.T) {
	_, err := New(config.LoggingConfig{Level: "loud", Format: "json"})
	require.Error(t, err)

	_, err = New(config.LoggingConfig{Level: "info", Format: "binary"})
	require.Error(t, err)
}

func TestSync_ToleratesStderrErrors(t *testing.T) {
	logger, err := New(config.LoggingConfig{Level: "info", Format: "json"})
	require.NoError(t, err)

	// Syncing stderr returns EINVAL or ENOTTY on Linux; both are absorbed.
	assert.NoError(t, Sync(logger))
}
