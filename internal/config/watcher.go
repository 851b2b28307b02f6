package config

import (
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Logger is the subset of the application logger the watcher writes to.
type Logger interface {
	Infof(format string, args ...any)
	Warnf(format string, args ...any)
	Errorf(format string, args ...any)
}

// Watcher reloads access rules when the config file changes on disk.
type Watcher struct {
	config    *Config
	watcher   *fsnotify.Watcher
	logger    Logger
	callbacks []func(*Config)
	stop      chan struct{}
	mu        sync.RWMutex
}

// NewWatcher creates a watcher for cfg's file.
func NewWatcher(cfg *Config, logger Logger) (*Watcher, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	return &Watcher{
		config:    cfg,
		watcher:   watcher,
		logger:    logger,
		callbacks: make([]func(*Config), 0),
		stop:      make(chan struct{}),
	}, nil
}

// OnReload registers a callback run after every successful reload.
func (w *Watcher) OnReload(callback func(*Config)) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.callbacks = append(w.callbacks, callback)
}

// Start begins watching. It is a no-op for configs not loaded from a file.
func (w *Watcher) Start() error {
	path := w.config.Path()
	if path == "" {
		return nil
	}
	if err := w.watcher.Add(path); err != nil {
		return err
	}

	go w.watch()
	return nil
}

// Stop stops watching and releases the inotify handle.
func (w *Watcher) Stop() {
	close(w.stop)
	w.watcher.Close()
}

func (w *Watcher) watch() {
	// Editors save in several writes; collapse them into one reload.
	var debounceTimer *time.Timer
	const debounceDelay = 100 * time.Millisecond

	for {
		select {
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if event.Has(fsnotify.Write) || event.Has(fsnotify.Create) {
				if debounceTimer != nil {
					debounceTimer.Stop()
				}
				debounceTimer = time.AfterFunc(debounceDelay, w.reload)
			}

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Errorf("config watcher error: %v", err)

		case <-w.stop:
			if debounceTimer != nil {
				debounceTimer.Stop()
			}
			return
		}
	}
}

func (w *Watcher) reload() {
	ignored, err := w.config.Reload()
	if err != nil {
		w.logger.Errorf("failed to reload config: %v", err)
		return
	}
	if len(ignored) > 0 {
		w.logger.Warnf("config change to %s ignored until restart", strings.Join(ignored, ", "))
	}
	w.logger.Infof("access rules reloaded from %s", w.config.Path())

	w.mu.RLock()
	callbacks := make([]func(*Config), len(w.callbacks))
	copy(callbacks, w.callbacks)
	w.mu.RUnlock()

	for _, cb := range callbacks {
		cb(w.config)
	}
}
