package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"time"

	"github.com/FairForge/multipath/internal/mpath"
	"go.uber.org/zap/zapcore"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Server  ServerConfig            `yaml:"server"`
	Engine  EngineConfig            `yaml:"engine"`
	Paths   map[string]PathConfig   `yaml:"paths"`
	Devices map[string]DeviceConfig `yaml:"devices"`
}

type ServerConfig struct {
	Port            int           `yaml:"port"`
	LogLevel        string        `yaml:"log_level"`
	LogFormat       string        `yaml:"log_format"` // json or console
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	RateLimit       int           `yaml:"rate_limit"` // admin requests per second per client
	RateBurst       int           `yaml:"rate_burst"`
}

type EngineConfig struct {
	Workers      int           `yaml:"workers"`
	RequeueLimit int           `yaml:"requeue_limit"`
	RequeueDelay time.Duration `yaml:"requeue_delay"`
}

// PathConfig describes one path device. Several paths may share a file to
// model one volume reachable over many routes.
type PathConfig struct {
	File      string `yaml:"file"`
	Size      int64  `yaml:"size"`
	RateLimit int    `yaml:"rate_limit"` // bytes per second, 0 is unlimited
	Passive   bool   `yaml:"passive"`
}

type DeviceConfig struct {
	Table string `yaml:"table"`
}

// Default returns a configuration with every default applied
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Port:            8080,
			LogLevel:        "info",
			LogFormat:       "json",
			ShutdownTimeout: 10 * time.Second,
			RateLimit:       100,
			RateBurst:       200,
		},
		Engine: EngineConfig{
			Workers:      4,
			RequeueLimit: mpath.DefaultRequeueLimit,
			RequeueDelay: 10 * time.Millisecond,
		},
	}
}

// ApplyDefaults fills in unset values
func (c *Config) ApplyDefaults() {
	defaults := Default()
	if c.Server.Port == 0 {
		c.Server.Port = defaults.Server.Port
	}
	if c.Server.LogLevel == "" {
		c.Server.LogLevel = defaults.Server.LogLevel
	}
	if c.Server.LogFormat == "" {
		c.Server.LogFormat = defaults.Server.LogFormat
	}
	if c.Server.ShutdownTimeout == 0 {
		c.Server.ShutdownTimeout = defaults.Server.ShutdownTimeout
	}
	if c.Server.RateLimit == 0 {
		c.Server.RateLimit = defaults.Server.RateLimit
	}
	if c.Server.RateBurst == 0 {
		c.Server.RateBurst = defaults.Server.RateBurst
	}
	if c.Engine.Workers == 0 {
		c.Engine.Workers = defaults.Engine.Workers
	}
	if c.Engine.RequeueLimit == 0 {
		c.Engine.RequeueLimit = defaults.Engine.RequeueLimit
	}
	if c.Engine.RequeueDelay == 0 {
		c.Engine.RequeueDelay = defaults.Engine.RequeueDelay
	}
}

// Validate checks the configuration, including that every device table
// parses and only names configured paths
func (c *Config) Validate() error {
	var errs []error

	if c.Server.Port < 1 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("server.port: %d out of range", c.Server.Port))
	}
	if _, err := zapcore.ParseLevel(c.Server.LogLevel); err != nil {
		errs = append(errs, fmt.Errorf("server.log_level: %w", err))
	}
	if c.Server.LogFormat != "json" && c.Server.LogFormat != "console" {
		errs = append(errs, fmt.Errorf("server.log_format: %q is not json or console", c.Server.LogFormat))
	}
	if c.Server.RateLimit < 0 || c.Server.RateBurst < 0 {
		errs = append(errs, errors.New("server.rate_limit: must not be negative"))
	}
	if c.Engine.Workers < 1 {
		errs = append(errs, errors.New("engine.workers: must be positive"))
	}
	if c.Engine.RequeueLimit < 0 {
		errs = append(errs, errors.New("engine.requeue_limit: must not be negative"))
	}
	if c.Engine.RequeueDelay < 0 {
		errs = append(errs, errors.New("engine.requeue_delay: must not be negative"))
	}

	for _, id := range sortedKeys(c.Paths) {
		p := c.Paths[id]
		switch {
		case p.File == "":
			errs = append(errs, fmt.Errorf("paths.%s.file: required", id))
		case p.Size <= 0:
			errs = append(errs, fmt.Errorf("paths.%s.size: must be positive", id))
		case p.RateLimit < 0:
			errs = append(errs, fmt.Errorf("paths.%s.rate_limit: must not be negative", id))
		}
	}

	for _, name := range sortedKeys(c.Devices) {
		t, err := mpath.ParseTable(c.Devices[name].Table)
		if err != nil {
			errs = append(errs, fmt.Errorf("devices.%s: %w", name, err))
			continue
		}
		for _, g := range t.Groups {
			for _, p := range g.Paths {
				if _, ok := c.Paths[p.ID]; !ok {
					errs = append(errs, fmt.Errorf("devices.%s: unknown path %q", name, p.ID))
				}
			}
		}
	}

	return errors.Join(errs...)
}

// Tables returns the table text of every device
func (c *Config) Tables() map[string]string {
	tables := make(map[string]string, len(c.Devices))
	for name, d := range c.Devices {
		tables[name] = d.Table
	}
	return tables
}

// Parse decodes YAML, applies environment overrides and defaults, and
// validates the result. Unknown keys are rejected.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("decode config: %w", err)
	}

	LoadFromEnv(&cfg)
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return &cfg, nil
}

// Load reads and parses the configuration file at path
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	return Parse(data)
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
