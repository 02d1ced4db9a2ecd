package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleConfig = `
server:
  port: 9000
  log_level: debug
engine:
  workers: 2
  requeue_delay: 5ms
paths:
  sda:
    file: /var/lib/mpathd/lun0
    size: 1048576
  sdb:
    file: /var/lib/mpathd/lun0
    size: 1048576
    rate_limit: 4096
    passive: true
devices:
  vol0:
    table: "1 queue_if_no_path 0 2 1 round-robin 0 1 1 sda 1 round-robin 0 1 1 sdb 1"
`

func TestParse(t *testing.T) {
	cfg, err := Parse([]byte(sampleConfig))
	require.NoError(t, err)

	assert.Equal(t, 9000, cfg.Server.Port)
	assert.Equal(t, "debug", cfg.Server.LogLevel)
	assert.Equal(t, 10*time.Second, cfg.Server.ShutdownTimeout)
	assert.Equal(t, 2, cfg.Engine.Workers)
	assert.Equal(t, 16, cfg.Engine.RequeueLimit)
	assert.Equal(t, 5*time.Millisecond, cfg.Engine.RequeueDelay)

	require.Contains(t, cfg.Paths, "sdb")
	assert.Equal(t, 4096, cfg.Paths["sdb"].RateLimit)
	assert.True(t, cfg.Paths["sdb"].Passive)
	assert.Equal(t, map[string]string{
		"vol0": "1 queue_if_no_path 0 2 1 round-robin 0 1 1 sda 1 round-robin 0 1 1 sdb 1",
	}, cfg.Tables())
}

func TestParseDefaults(t *testing.T) {
	cfg, err := Parse(nil)
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestParseErrors(t *testing.T) {
	tests := []struct {
		name string
		yaml string
		want string
	}{
		{
			name: "unknown key",
			yaml: "server:\n  prot: 80\n",
			want: "prot",
		},
		{
			name: "port out of range",
			yaml: "server:\n  port: 70000\n",
			want: "server.port",
		},
		{
			name: "bad log level",
			yaml: "server:\n  log_level: chatty\n",
			want: "server.log_level",
		},
		{
			name: "bad log format",
			yaml: "server:\n  log_format: xml\n",
			want: "server.log_format",
		},
		{
			name: "negative workers",
			yaml: "engine:\n  workers: -1\n",
			want: "engine.workers",
		},
		{
			name: "path without file",
			yaml: "paths:\n  sda:\n    size: 10\n",
			want: "paths.sda.file",
		},
		{
			name: "path without size",
			yaml: "paths:\n  sda:\n    file: /tmp/x\n",
			want: "paths.sda.size",
		},
		{
			name: "bad table",
			yaml: "devices:\n  vol0:\n    table: \"0 0 2 1\"\n",
			want: "devices.vol0",
		},
		{
			name: "unknown path in table",
			yaml: "devices:\n  vol0:\n    table: \"0 0 1 1 round-robin 0 1 1 sdz 1\"\n",
			want: `unknown path "sdz"`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.yaml))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("MPATHD_PORT", "7000")
	t.Setenv("MPATHD_LOG_LEVEL", "warn")
	t.Setenv("MPATHD_WORKERS", "8")
	t.Setenv("MPATHD_REQUEUE_LIMIT", "3")
	t.Setenv("MPATHD_REQUEUE_DELAY", "250ms")

	cfg, err := Parse([]byte(sampleConfig))
	require.NoError(t, err)
	assert.Equal(t, 7000, cfg.Server.Port)
	assert.Equal(t, "warn", cfg.Server.LogLevel)
	assert.Equal(t, 8, cfg.Engine.Workers)
	assert.Equal(t, 3, cfg.Engine.RequeueLimit)
	assert.Equal(t, 250*time.Millisecond, cfg.Engine.RequeueDelay)

	t.Setenv("MPATHD_PORT", "not-a-number")
	cfg, err = Parse(nil)
	require.NoError(t, err)
	assert.Equal(t, 8080, cfg.Server.Port)

	assert.Equal(t, "warn", GetEnvOrDefault("MPATHD_LOG_LEVEL", "info"))
	assert.Equal(t, "info", GetEnvOrDefault("MPATHD_UNSET", "info"))
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "mpathd.yaml")
	require.NoError(t, os.WriteFile(path, []byte(sampleConfig), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Len(t, cfg.Devices, 1)

	_, err = Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestWatcher(t *testing.T) {
	path := filepath.Join(t.TempDir(), "mpathd.yaml")
	require.NoError(t, os.WriteFile(path, []byte(sampleConfig), 0o644))

	changes := make(chan *Config, 4)
	w, err := NewWatcher(path, func(cfg *Config) { changes <- cfg }, nil)
	require.NoError(t, err)
	w.debounce = 50 * time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		<-done
	})

	// an invalid version is skipped
	require.NoError(t, os.WriteFile(path, []byte("server:\n  port: -1\n"), 0o644))
	select {
	case <-changes:
		t.Fatal("invalid config delivered")
	case <-time.After(300 * time.Millisecond):
	}

	require.NoError(t, os.WriteFile(path, []byte("server:\n  port: 9100\n"), 0o644))
	select {
	case cfg := <-changes:
		assert.Equal(t, 9100, cfg.Server.Port)
	case <-time.After(5 * time.Second):
		t.Fatal("no reload after change")
	}

	// other files in the directory are ignored
	require.NoError(t, os.WriteFile(filepath.Join(filepath.Dir(path), "other.yaml"), []byte("x"), 0o644))
	select {
	case <-changes:
		t.Fatal("reload for unrelated file")
	case <-time.After(300 * time.Millisecond):
	}
}
