// cmd/mpathd/main.go
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/FairForge/multipath/internal/api"
	"github.com/FairForge/multipath/internal/blockdev"
	"github.com/FairForge/multipath/internal/config"
	applog "github.com/FairForge/multipath/internal/logger"
	"github.com/FairForge/multipath/internal/mapper"
	"github.com/FairForge/multipath/internal/metrics"
	"github.com/FairForge/multipath/internal/mpath"
	"github.com/FairForge/multipath/internal/workqueue"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

func main() {
	configPath := flag.String("config", config.GetEnvOrDefault("MPATHD_CONFIG", "/etc/mpathd/mpathd.yaml"), "configuration file")
	flag.Parse()

	if err := run(*configPath); err != nil {
		fmt.Fprintf(os.Stderr, "mpathd: %v\n", err)
		os.Exit(1)
	}
}

func run(configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	logger, level, err := applog.New(applog.Config{
		Level:  cfg.Server.LogLevel,
		Format: cfg.Server.LogFormat,
	})
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	registry := blockdev.NewRegistry()
	defer func() {
		if err := registry.Close(); err != nil {
			logger.Error("closing path devices", zap.Error(err))
		}
	}()
	if err := openPaths(registry, cfg.Paths, logger); err != nil {
		return err
	}

	pool := workqueue.NewPool(cfg.Engine.Workers, logger)
	defer pool.Stop()

	collector := metrics.NewCollector()
	devices := mapper.NewManager(pool, registry.Resolve,
		mapper.WithLogger(logger),
		mapper.WithObserver(collector),
		mapper.WithRequeueLimit(cfg.Engine.RequeueLimit),
		mapper.WithRequeueDelay(cfg.Engine.RequeueDelay))
	defer func() {
		if err := devices.Close(); err != nil {
			logger.Error("closing devices", zap.Error(err))
		}
	}()

	if err := devices.Sync(cfg.Tables()); err != nil {
		return fmt.Errorf("create devices: %w", err)
	}

	server := api.NewServer(cfg, logger, devices, collector)

	watcher, err := config.NewWatcher(configPath, func(next *config.Config) {
		applyConfig(next, registry, devices, level, logger)
	}, logger)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := server.Start(); !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("api server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		return watcher.Run(ctx)
	})
	g.Go(func() error {
		<-ctx.Done()
		logger.Info("shutting down server...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	logger.Info("mpathd started",
		zap.Int("port", cfg.Server.Port),
		zap.Strings("devices", devices.List()),
		zap.Strings("paths", registry.Names()))

	return g.Wait()
}

// openPaths adds the configured paths that the registry does not hold yet
func openPaths(registry *blockdev.Registry, paths map[string]config.PathConfig, logger *zap.Logger) error {
	for id, pc := range paths {
		if _, ok := registry.Get(id); ok {
			continue
		}

		var opts []blockdev.FileOption
		if pc.Passive {
			opts = append(opts, blockdev.WithPassive())
		}
		file, err := blockdev.OpenFile(id, pc.File, pc.Size, logger, opts...)
		if err != nil {
			return fmt.Errorf("open path %s: %w", id, err)
		}

		var dev mpath.Device = file
		if pc.RateLimit > 0 {
			if dev, err = blockdev.NewThrottledDevice(file, pc.RateLimit, logger); err != nil {
				_ = file.Close()
				return err
			}
		}
		if err := registry.Add(dev); err != nil {
			_ = file.Close()
			return err
		}
		logger.Info("path opened",
			zap.String("path", id),
			zap.String("file", pc.File),
			zap.Int("rate_limit", pc.RateLimit))
	}
	return nil
}

// applyConfig brings a running daemon in line with a changed config file.
// Paths are only ever added; server and engine settings need a restart.
func applyConfig(cfg *config.Config, registry *blockdev.Registry, devices *mapper.Manager, level zap.AtomicLevel, logger *zap.Logger) {
	if err := applog.SetLevel(level, cfg.Server.LogLevel); err != nil {
		logger.Warn("keeping log level", zap.Error(err))
	}
	if err := openPaths(registry, cfg.Paths, logger); err != nil {
		logger.Error("opening new paths", zap.Error(err))
		return
	}
	if err := devices.Sync(cfg.Tables()); err != nil {
		logger.Error("applying device tables", zap.Error(err))
	}
}
