package config

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"whatscrm/internal/models"

	"github.com/fsnotify/fsnotify"
	"github.com/sirupsen/logrus"
)

// reloadDebounce coalesces the burst of filesystem events a single
// editor save produces into one reload.
const reloadDebounce = 100 * time.Millisecond

// Watcher reloads the configuration file when it changes on disk and
// fans the new snapshot out to registered listeners. Editors and
// orchestrators replace config files by writing a temp file and
// renaming it over the original, which swaps the inode out from under
// a per-file watch, so the watch is placed on the containing directory
// and filtered by name.
type Watcher struct {
	path   string
	logger *logrus.Logger

	mu        sync.RWMutex
	current   *models.Config
	listeners []func(*models.Config)
}

// NewWatcher creates a watcher for the given config file. Nothing is
// loaded until Start runs.
func NewWatcher(path string, logger *logrus.Logger) *Watcher {
	return &Watcher{path: path, logger: logger}
}

// Start loads the file once, then blocks reloading it on every change
// until ctx is canceled. The initial load error is returned so a bad
// config fails startup instead of being logged away.
func (w *Watcher) Start(ctx context.Context) error {
	cfg, err := LoadConfig(w.path)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	w.mu.Lock()
	w.current = cfg
	w.mu.Unlock()

	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create file watcher: %w", err)
	}
	defer fw.Close()

	dir := filepath.Dir(w.path)
	if err := fw.Add(dir); err != nil {
		return fmt.Errorf("failed to watch %s: %w", dir, err)
	}

	w.logger.WithField("path", w.path).Info("Configuration watcher started")

	debounce := time.NewTimer(reloadDebounce)
	debounce.Stop()
	defer debounce.Stop()

	target := filepath.Clean(w.path)
	for {
		select {
		case <-ctx.Done():
			w.logger.Info("Configuration watcher stopping")
			return nil

		case event, ok := <-fw.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != target {
				continue
			}
			if event.Has(fsnotify.Write) || event.Has(fsnotify.Create) {
				debounce.Reset(reloadDebounce)
			}

		case err, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			w.logger.WithError(err).Error("Configuration watcher error")

		case <-debounce.C:
			w.reload()
		}
	}
}

// Current returns the most recently loaded configuration.
func (w *Watcher) Current() *models.Config {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.current
}

// OnChange registers a listener invoked with each successfully
// reloaded configuration. Listeners run on their own goroutines.
func (w *Watcher) OnChange(listener func(*models.Config)) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.listeners = append(w.listeners, listener)
}

// reload swaps in the new configuration and notifies listeners. A file
// that fails to parse leaves the last good configuration in place.
func (w *Watcher) reload() {
	next, err := LoadConfig(w.path)
	if err != nil {
		w.logger.WithError(err).Error("Failed to reload configuration, keeping previous")
		return
	}

	w.mu.Lock()
	prev := w.current
	w.current = next
	listeners := make([]func(*models.Config), len(w.listeners))
	copy(listeners, w.listeners)
	w.mu.Unlock()

	w.logger.Info("Configuration reloaded")
	w.logChanges(prev, next)

	for _, notify := range listeners {
		go func() {
			defer func() {
				if r := recover(); r != nil {
					w.logger.WithField("panic", r).Error("Config change listener panicked")
				}
			}()
			notify(next)
		}()
	}
}

// logChanges notes the settings operators most often hot-edit.
func (w *Watcher) logChanges(prev, next *models.Config) {
	if prev == nil {
		return
	}

	if prev.RetentionDays != next.RetentionDays {
		w.logger.WithFields(logrus.Fields{
			"from": prev.RetentionDays,
			"to":   next.RetentionDays,
		}).Info("Retention days changed")
	}

	if prev.Server.CleanupIntervalHours != next.Server.CleanupIntervalHours {
		w.logger.WithFields(logrus.Fields{
			"from": prev.Server.CleanupIntervalHours,
			"to":   next.Server.CleanupIntervalHours,
		}).Info("Cleanup interval changed")
	}

	if len(prev.Connections) != len(next.Connections) {
		w.logger.WithFields(logrus.Fields{
			"from": len(prev.Connections),
			"to":   len(next.Connections),
		}).Info("Number of connections changed")
	}

	if len(prev.Dispatch.Targets) != len(next.Dispatch.Targets) {
		w.logger.WithFields(logrus.Fields{
			"from": len(prev.Dispatch.Targets),
			"to":   len(next.Dispatch.Targets),
		}).Info("Number of dispatch targets changed")
	}
}
