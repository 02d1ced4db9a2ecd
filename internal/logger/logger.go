package logger

import (
	"fmt"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Log formats
const (
	FormatJSON    = "json"
	FormatConsole = "console"
)

// Config configures the daemon logger
type Config struct {
	Level  string
	Format string
}

// Validate checks configuration
func (c *Config) Validate() error {
	if _, err := zapcore.ParseLevel(c.Level); err != nil {
		return fmt.Errorf("logger: %w", err)
	}
	switch c.Format {
	case FormatJSON, FormatConsole:
		return nil
	default:
		return fmt.Errorf("logger: invalid format: %s", c.Format)
	}
}

// ApplyDefaults fills in default values
func (c *Config) ApplyDefaults() {
	if c.Level == "" {
		c.Level = "info"
	}
	if c.Format == "" {
		c.Format = FormatJSON
	}
}

// New builds a production logger. The returned level can be changed while
// the logger is in use.
func New(cfg Config) (*zap.Logger, zap.AtomicLevel, error) {
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, zap.AtomicLevel{}, err
	}

	level := zap.NewAtomicLevel()
	if err := level.UnmarshalText([]byte(cfg.Level)); err != nil {
		return nil, zap.AtomicLevel{}, err
	}

	zcfg := zap.NewProductionConfig()
	zcfg.Level = level
	zcfg.Encoding = cfg.Format
	if cfg.Format == FormatConsole {
		zcfg.EncoderConfig = zap.NewDevelopmentEncoderConfig()
	}

	l, err := zcfg.Build()
	if err != nil {
		return nil, zap.AtomicLevel{}, fmt.Errorf("logger: %w", err)
	}
	return l, level, nil
}

// SetLevel changes level by name, leaving it untouched on a bad name
func SetLevel(level zap.AtomicLevel, name string) error {
	l, err := zapcore.ParseLevel(name)
	if err != nil {
		return fmt.Errorf("logger: %w", err)
	}
	level.SetLevel(l)
	return nil
}
