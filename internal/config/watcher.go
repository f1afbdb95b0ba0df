package config

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"

	"github.com/harun/oracle/internal/observability"
)

// ReloadFunc vets a freshly loaded config before it is published. Returning
// an error keeps the previous snapshot.
type ReloadFunc func(cfg *Config) error

// Watcher reloads the config file when it changes and publishes the new
// snapshot. Readers that took a snapshot keep using it.
type Watcher struct {
	loader   *Loader
	path     string
	debounce time.Duration
	onReload ReloadFunc
	logger   zerolog.Logger

	current atomic.Pointer[Config]

	timerMu sync.Mutex
	timer   *time.Timer
}

// WatcherConfig holds configuration for the watcher
type WatcherConfig struct {
	Loader   *Loader
	Initial  *Config
	Debounce time.Duration
	OnReload ReloadFunc
	Logger   zerolog.Logger
}

// NewWatcher creates a watcher seeded with the initial snapshot.
func NewWatcher(cfg WatcherConfig) (*Watcher, error) {
	if cfg.Loader == nil {
		return nil, fmt.Errorf("loader is required")
	}
	path := cfg.Loader.GetConfigPath()
	if path == "" {
		return nil, fmt.Errorf("failed to determine config path")
	}
	if cfg.Debounce == 0 {
		cfg.Debounce = 100 * time.Millisecond
	}

	w := &Watcher{
		loader:   cfg.Loader,
		path:     path,
		debounce: cfg.Debounce,
		onReload: cfg.OnReload,
		logger:   cfg.Logger,
	}
	w.current.Store(cfg.Initial)
	return w, nil
}

// Current returns the latest published snapshot.
func (w *Watcher) Current() *Config {
	return w.current.Load()
}

// Run watches the config directory until ctx is done. Editors often replace
// files by rename, so the directory is watched rather than the file.
func (w *Watcher) Run(ctx context.Context) error {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	defer fw.Close()

	if err := fw.Add(filepath.Dir(w.path)); err != nil {
		return fmt.Errorf("failed to watch %s: %w", w.path, err)
	}

	w.logger.Debug().Str("path", w.path).Msg("Config watcher started")

	defer w.stopTimer()

	target := filepath.Clean(w.path)
	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-fw.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != target {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			w.schedule()

		case err, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			w.logger.Error().Err(err).Msg("Config watcher error")
		}
	}
}

func (w *Watcher) schedule() {
	w.timerMu.Lock()
	defer w.timerMu.Unlock()

	if w.timer != nil {
		w.timer.Stop()
	}
	w.timer = time.AfterFunc(w.debounce, w.reload)
}

func (w *Watcher) stopTimer() {
	w.timerMu.Lock()
	defer w.timerMu.Unlock()
	if w.timer != nil {
		w.timer.Stop()
	}
}

func (w *Watcher) reload() {
	cfg, err := w.loader.Load()
	if err == nil && w.onReload != nil {
		err = w.onReload(cfg)
	}
	observability.RecordConfigReload(err == nil)
	if err != nil {
		w.logger.Warn().Err(err).Str("path", w.path).Msg("Config reload rejected, keeping previous snapshot")
		return
	}

	w.current.Store(cfg)
	w.logger.Info().Str("path", w.path).Msg("Config reloaded")
}
