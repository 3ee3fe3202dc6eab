package config

import (
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	clarion "github.com/clarioncrm/clarion"
)

// debounceDelay coalesces the burst of fs events editors produce on save.
const debounceDelay = 500 * time.Millisecond

// Watcher reloads the configuration file when it changes on disk and
// notifies registered callbacks with the new configuration.
type Watcher struct {
	path    string
	logger  clarion.Logger
	watcher *fsnotify.Watcher
	stopCh  chan struct{}

	mu        sync.RWMutex
	current   *Config
	callbacks []func(*Config)
	stopped   bool
}

// NewWatcher starts watching the directory containing path. Watching
// the directory rather than the file survives editors that replace the
// file on save.
func NewWatcher(path string, initial *Config, logger clarion.Logger) (*Watcher, error) {
	if logger == nil {
		logger = clarion.NoopLogger{}
	}
	fsWatcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("creating file watcher: %w", err)
	}
	if err := fsWatcher.Add(filepath.Dir(path)); err != nil {
		fsWatcher.Close()
		return nil, fmt.Errorf("watching config directory: %w", err)
	}

	w := &Watcher{
		path:    path,
		logger:  logger,
		watcher: fsWatcher,
		stopCh:  make(chan struct{}),
		current: initial,
	}
	go w.watchLoop()
	logger.Info("config hot reload enabled", "path", path)
	return w, nil
}

// OnChange registers a callback invoked after each successful reload.
func (w *Watcher) OnChange(callback func(*Config)) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.callbacks = append(w.callbacks, callback)
}

// Current returns the most recently loaded configuration.
func (w *Watcher) Current() *Config {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.current
}

// Stop halts the watcher. Idempotent.
func (w *Watcher) Stop() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.stopped {
		return
	}
	w.stopped = true
	close(w.stopCh)
	w.watcher.Close()
}

func (w *Watcher) watchLoop() {
	var debounce *time.Timer
	for {
		select {
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			if filepath.Clean(event.Name) != filepath.Clean(w.path) {
				continue
			}
			if debounce != nil {
				debounce.Stop()
			}
			debounce = time.AfterFunc(debounceDelay, w.reload)
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Error("config watcher error", "error", err)
		case <-w.stopCh:
			if debounce != nil {
				debounce.Stop()
			}
			return
		}
	}
}

func (w *Watcher) reload() {
	cfg, err := Load(w.path)
	if err != nil {
		w.logger.Error("config reload failed", "path", w.path, "error", err)
		return
	}
	if err := cfg.Validate(); err != nil {
		w.logger.Error("reloaded config is invalid", "path", w.path, "error", err)
		return
	}

	w.mu.Lock()
	w.current = cfg
	callbacks := make([]func(*Config), len(w.callbacks))
	copy(callbacks, w.callbacks)
	w.mu.Unlock()

	w.logger.Info("configuration reloaded", "path", w.path)
	for _, callback := range callbacks {
		callback(cfg)
	}
}
