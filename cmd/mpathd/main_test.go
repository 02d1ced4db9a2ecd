package main

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/FairForge/multipath/internal/blockdev"
	"github.com/FairForge/multipath/internal/config"
	"github.com/FairForge/multipath/internal/mapper"
	"github.com/FairForge/multipath/internal/workqueue"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func TestOpenPaths(t *testing.T) {
	vol := filepath.Join(t.TempDir(), "lun0")
	registry := blockdev.NewRegistry()
	t.Cleanup(func() { _ = registry.Close() })

	paths := map[string]config.PathConfig{
		"sda": {File: vol, Size: 4096},
		"sdb": {File: vol, Size: 4096, RateLimit: 1 << 20, Passive: true},
	}
	require.NoError(t, openPaths(registry, paths, zap.NewNop()))
	assert.Equal(t, []string{"sda", "sdb"}, registry.Names())

	dev, ok := registry.Get("sdb")
	require.True(t, ok)
	assert.IsType(t, &blockdev.ThrottledDevice{}, dev)

	// already open paths are kept
	require.NoError(t, openPaths(registry, paths, zap.NewNop()))
	again, _ := registry.Get("sdb")
	assert.Same(t, dev, again)

	err := openPaths(registry, map[string]config.PathConfig{"sdc": {File: vol, Size: 0}}, zap.NewNop())
	assert.Error(t, err)
}

func TestApplyConfig(t *testing.T) {
	vol := filepath.Join(t.TempDir(), "lun0")
	registry := blockdev.NewRegistry()
	t.Cleanup(func() { _ = registry.Close() })

	pool := workqueue.NewPool(1, nil)
	t.Cleanup(pool.Stop)
	devices := mapper.NewManager(pool, registry.Resolve, mapper.WithRequeueDelay(time.Millisecond))
	t.Cleanup(func() { _ = devices.Close() })

	level := zap.NewAtomicLevelAt(zapcore.InfoLevel)

	cfg := config.Default()
	cfg.Server.LogLevel = "debug"
	cfg.Paths = map[string]config.PathConfig{
		"sda": {File: vol, Size: 4096},
		"sdb": {File: vol, Size: 4096},
	}
	cfg.Devices = map[string]config.DeviceConfig{
		"vol0": {Table: "0 0 1 1 round-robin 0 2 1 sda 1 sdb 1"},
	}

	applyConfig(cfg, registry, devices, level, zap.NewNop())
	assert.Equal(t, zapcore.DebugLevel, level.Level())
	assert.Equal(t, []string{"vol0"}, devices.List())

	cfg.Devices = map[string]config.DeviceConfig{
		"vol1": {Table: "0 0 1 1 round-robin 0 1 1 sdb 1"},
	}
	applyConfig(cfg, registry, devices, level, zap.NewNop())
	assert.Equal(t, []string{"vol1"}, devices.List())
}
