package config

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// Watcher reloads the configuration file when it changes and hands every
// valid version to a callback. Invalid versions are logged and skipped.
type Watcher struct {
	path     string
	watcher  *fsnotify.Watcher
	onChange func(*Config)
	debounce time.Duration
	logger   *zap.Logger
}

// NewWatcher creates a watcher for the file at path
func NewWatcher(path string, onChange func(*Config), logger *zap.Logger) (*Watcher, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create watcher: %w", err)
	}

	// editors replace files by rename, so watch the directory
	if err := w.Add(filepath.Dir(path)); err != nil {
		_ = w.Close()
		return nil, fmt.Errorf("watch %s: %w", path, err)
	}

	return &Watcher{
		path:     filepath.Clean(path),
		watcher:  w,
		onChange: onChange,
		debounce: 100 * time.Millisecond,
		logger:   logger,
	}, nil
}

// Run delivers reloads until ctx ends. Bursts of events within the debounce
// window cause a single reload.
func (w *Watcher) Run(ctx context.Context) error {
	defer w.watcher.Close()

	timer := time.NewTimer(0)
	if !timer.Stop() {
		<-timer.C
	}

	for {
		select {
		case ev, ok := <-w.watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(ev.Name) != w.path {
				continue
			}
			if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Rename) {
				continue
			}
			timer.Reset(w.debounce)

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn("config watcher error", zap.Error(err))

		case <-timer.C:
			w.reload()

		case <-ctx.Done():
			return nil
		}
	}
}

func (w *Watcher) reload() {
	data, err := os.ReadFile(w.path)
	if err != nil {
		w.logger.Warn("reading changed config", zap.String("path", w.path), zap.Error(err))
		return
	}
	// truncated by a writer that has not finished yet
	if len(data) == 0 {
		return
	}

	cfg, err := Parse(data)
	if err != nil {
		w.logger.Error("ignoring invalid config change",
			zap.String("path", w.path),
			zap.Error(err))
		return
	}
	w.logger.Info("config changed", zap.String("path", w.path))
	w.onChange(cfg)
}
