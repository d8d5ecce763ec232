package logger

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/isdmx/shellbox/config"
)

func TestLoggerNew(t *testing.T) {
	t.Run("ValidDevelopmentMode", func(t *testing.T) {
		logger, err := New("development", "debug")
		require.NoError(t, err)
		assert.NotNil(t, logger)
		logger.Sync()
	})

	t.Run("ValidProductionMode", func(t *testing.T) {
		logger, err := New("production", "info")
		require.NoError(t, err)
		assert.NotNil(t, logger)
		logger.Sync()
	})

	t.Run("InvalidMode", func(t *testing.T) {
		_, err := New("invalid_mode", "info")
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "invalid logging mode")
	})

	t.Run("InvalidLevel", func(t *testing.T) {
		_, err := New("production", "invalid_level")
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "invalid logging level")
	})

	t.Run("ValidLevels", func(t *testing.T) {
		levels := []string{"debug", "info", "warn", "error", "dpanic", "panic", "fatal"}
		for _, level := range levels {
			t.Run(level, func(t *testing.T) {
				logger, err := New("production", level)
				require.NoError(t, err)
				assert.NotNil(t, logger)
				logger.Sync()
			})
		}
	})
}

func TestLoggerNewFromConfig(t *testing.T) {
	t.Run("ValidConfig", func(t *testing.T) {
		cfg := &config.Config{
			Logging: config.LoggingConfig{
				Mode:  "development",
				Level: "debug",
			},
		}
		logger, err := NewFromConfig(cfg)
		require.NoError(t, err)
		assert.NotNil(t, logger)
		logger.Sync()
	})

	t.Run("InvalidConfig", func(t *testing.T) {
		cfg := &config.Config{
			Logging: config.LoggingConfig{
				Mode:  "invalid_mode",
				Level: "info",
			},
		}
		_, err := NewFromConfig(cfg)
		assert.Error(t, err)
	})
}
func TestLoggerConfig(t *testing.T) {
	for _, mode := range []string{"development", "production"} {
		t.Run(mode, func(t *testing.T) {
			cfg, err := newConfig(mode, "warn")
			require.NoError(t, err)

			// stdout is reserved for the MCP stdio transport
			assert.Equal(t, []string{"stderr"}, cfg.OutputPaths)
			assert.Equal(t, []string{"stderr"}, cfg.ErrorOutputPaths)
			assert.Equal(t, zapcore.WarnLevel, cfg.Level.Level())
		})
	}

	t.Run("ProductionTimestampKey", func(t *testing.T) {
		cfg, err := newConfig("production", "info")
		require.NoError(t, err)
		assert.Equal(t, "timestamp", cfg.EncoderConfig.TimeKey)
	})
}

func TestLoggerServiceField(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)

	withService(zap.New(core)).Info("sandbox ready")

	entries := logs.All()
	require.Len(t, entries, 1)
	assert.Equal(t, ServiceName, entries[0].ContextMap()["service"])
	assert.Equal(t, "shellbox", ServiceName)
}
