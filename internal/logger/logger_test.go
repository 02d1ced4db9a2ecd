package logger

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func TestConfig(t *testing.T) {
	t.Run("defaults", func(t *testing.T) {
		var c Config
		c.ApplyDefaults()
		assert.Equal(t, "info", c.Level)
		assert.Equal(t, FormatJSON, c.Format)
		assert.NoError(t, c.Validate())
	})

	t.Run("invalid", func(t *testing.T) {
		assert.Error(t, (&Config{Level: "loud", Format: FormatJSON}).Validate())
		assert.Error(t, (&Config{Level: "info", Format: "xml"}).Validate())
	})
}

func TestNew(t *testing.T) {
	for _, format := range []string{FormatJSON, FormatConsole} {
		t.Run(format, func(t *testing.T) {
			l, level, err := New(Config{Level: "warn", Format: format})
			require.NoError(t, err)
			t.Cleanup(func() { _ = l.Sync() })

			assert.Equal(t, zapcore.WarnLevel, level.Level())
			assert.False(t, l.Core().Enabled(zapcore.InfoLevel))

			require.NoError(t, SetLevel(level, "debug"))
			assert.True(t, l.Core().Enabled(zapcore.DebugLevel))
		})
	}

	_, _, err := New(Config{Level: "loud"})
	assert.Error(t, err)
}

func TestSetLevelKeepsLevelOnError(t *testing.T) {
	level := zap.NewAtomicLevelAt(zapcore.ErrorLevel)
	assert.Error(t, SetLevel(level, "chatty"))
	assert.Equal(t, zapcore.ErrorLevel, level.Level())
}
