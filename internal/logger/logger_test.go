package logger

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"

	"github.com/sker-labs/sker-ucp/internal/config"
)

func TestNewHonorsConfiguredLevel(t *testing.T) {
	cfg := config.GetDefaultConfig()
	cfg.Log.Level = "warn"

	log, err := New(cfg)
	require.NoError(t, err)
	defer log.Sync()

	assert.False(t, log.Core().Enabled(zapcore.InfoLevel))
	assert.True(t, log.Core().Enabled(zapcore.WarnLevel))
}

func TestNewRejectsInvalidLevel(t *testing.T) {
	cfg := config.GetDefaultConfig()
	cfg.Log.Level = "loud"

	_, err := New(cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "loud")
}

func TestNewDevelopmentMode(t *testing.T) {
	cfg := config.GetDefaultConfig()
	cfg.Log.Development = true
	cfg.Log.Level = "debug"

	log, err := New(cfg)
	require.NoError(t, err)
	defer log.Sync()

	assert.True(t, log.Core().Enabled(zapcore.DebugLevel))
}
