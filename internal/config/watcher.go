package config

import (
	"context"
	"fmt"
	"log/slog"
	"reflect"
	"sync"

	"github.com/fsnotify/fsnotify"
)

// Watcher holds the last valid configuration loaded from a file and reloads it
// when the file changes. The file is only ever read.
type Watcher struct {
	path     string
	onReload func(*Config)

	mu      sync.RWMutex
	current *Config
}

// NewWatcher loads the configuration at path. onReload is called from Watch
// with each valid configuration that differs from the previous one.
func NewWatcher(path string, onReload func(*Config)) (*Watcher, error) {
	w := &Watcher{path: path, onReload: onReload}
	cfg, err := LoadConfig(WithConfigPath(path))
	if err != nil {
		return nil, err
	}
	w.current = cfg
	return w, nil
}

// Current returns the last valid configuration
func (w *Watcher) Current() *Config {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.current
}

// Reload reads the file again. An invalid file leaves the previous
// configuration in place. It reports whether the configuration changed.
func (w *Watcher) Reload() (bool, error) {
	cfg, err := LoadConfig(WithConfigPath(w.path))
	if err != nil {
		return false, err
	}

	w.mu.Lock()
	changed := !reflect.DeepEqual(w.current, cfg)
	if changed {
		w.current = cfg
	}
	w.mu.Unlock()

	if changed {
		slog.Info("Configuration reloaded", "path", w.path)
		if w.onReload != nil {
			w.onReload(cfg)
		}
	}
	return changed, nil
}

// Watch reloads the configuration whenever the file is written or replaced.
// It blocks until ctx is done.
func (w *Watcher) Watch(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create file watcher: %w", err)
	}
	defer func() {
		if err := watcher.Close(); err != nil {
			slog.Warn("Failed to close config watcher", "error", err)
		}
	}()

	if err := watcher.Add(w.path); err != nil {
		return fmt.Errorf("failed to watch config file %s: %w", w.path, err)
	}
	slog.Info("Watching configuration file", "path", w.path)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case event, ok := <-watcher.Events:
			if !ok {
				return fmt.Errorf("watcher event channel closed")
			}
			// Atomic replacement removes the watched inode
			if event.Has(fsnotify.Remove) || event.Has(fsnotify.Rename) {
				if err := watcher.Add(w.path); err != nil {
					slog.Debug("Config file not present yet", "path", w.path, "error", err)
					continue
				}
			} else if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
				continue
			}
			if _, err := w.Reload(); err != nil {
				slog.Error("Failed to reload configuration, keeping the previous one", "error", err)
			}

		case err, ok := <-watcher.Errors:
			if !ok {
				return fmt.Errorf("watcher error channel closed")
			}
			slog.Error("Config watcher error", "error", err)
		}
	}
}
