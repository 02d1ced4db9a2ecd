package config

import (
	"os"
	"strconv"
	"time"
)

// LoadFromEnv overrides configuration from MPATHD_* environment variables.
// Malformed values are ignored.
func LoadFromEnv(cfg *Config) {
	if port := os.Getenv("MPATHD_PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			cfg.Server.Port = p
		}
	}

	if logLevel := os.Getenv("MPATHD_LOG_LEVEL"); logLevel != "" {
		cfg.Server.LogLevel = logLevel
	}

	// Engine settings
	if workers := os.Getenv("MPATHD_WORKERS"); workers != "" {
		if n, err := strconv.Atoi(workers); err == nil {
			cfg.Engine.Workers = n
		}
	}
	if limit := os.Getenv("MPATHD_REQUEUE_LIMIT"); limit != "" {
		if n, err := strconv.Atoi(limit); err == nil {
			cfg.Engine.RequeueLimit = n
		}
	}
	if delay := os.Getenv("MPATHD_REQUEUE_DELAY"); delay != "" {
		if d, err := time.ParseDuration(delay); err == nil {
			cfg.Engine.RequeueDelay = d
		}
	}
}

// GetEnvOrDefault returns environment variable or default value
func GetEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
