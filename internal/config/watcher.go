package config

import (
	"context"
	"path/filepath"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/inferlb/inferlb/internal/logging"
)

// DynamicSettings holds the hot-reloadable subset of configuration behind
// an atomic pointer, so pollers can read a consistent snapshot without
// locking and a reload can publish a new one with a single store.
type DynamicSettings struct {
	ptr atomic.Pointer[Dynamic]
}

// NewDynamicSettings seeds the holder with the config's initial values.
func NewDynamicSettings(d Dynamic) *DynamicSettings {
	ds := &DynamicSettings{}
	ds.ptr.Store(&d)
	return ds
}

// Get returns the current settings.
func (ds *DynamicSettings) Get() Dynamic {
	return *ds.ptr.Load()
}

// set publishes new settings, used by the watcher on reload.
func (ds *DynamicSettings) set(d Dynamic) {
	ds.ptr.Store(&d)
}

// Watcher watches the config file for changes and republishes Dynamic
// settings on write. It never touches the backend list: the registry's key
// set is fixed at construction, so a reload that changed the backend list
// has no effect on it.
type Watcher struct {
	filepath string
	logger   *logging.Logger
	settings *DynamicSettings
	watcher  *fsnotify.Watcher
}

// NewWatcher creates a config file watcher that republishes settings into
// settings whenever the file changes.
func NewWatcher(configPath string, logger *logging.Logger, settings *DynamicSettings) (*Watcher, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	// Watch the directory containing the config file (handles editor atomic writes)
	dir := filepath.Dir(configPath)

	if err := watcher.Add(dir); err != nil {
		watcher.Close()
		return nil, err
	}

	return &Watcher{
		filepath: configPath,
		logger:   logger,
		settings: settings,
		watcher:  watcher,
	}, nil
}

// Start begins watching for config changes. Blocks until ctx is done.
func (w *Watcher) Start(ctx context.Context) {
	w.logger.Info("config_watcher_started", "file", w.filepath)

	// Debounce timer to avoid multiple reloads from a burst of writes.
	var debounceTimer *time.Timer
	debounceDuration := 500 * time.Millisecond

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("config_watcher_stopped")
			w.watcher.Close()
			return

		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}

			if event.Has(fsnotify.Write) || event.Has(fsnotify.Create) {
				if filepath.Base(event.Name) == filepath.Base(w.filepath) {
					w.logger.Info("config_file_changed", "event", event.Op.String())

					if debounceTimer != nil {
						debounceTimer.Stop()
					}
					debounceTimer = time.AfterFunc(debounceDuration, w.reload)
				}
			}

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Error("config_watcher_error", "error", err.Error())
		}
	}
}

// reload re-reads the file and republishes only the Dynamic subset.
func (w *Watcher) reload() {
	w.logger.Info("reloading_config", "file", w.filepath)

	cfg, err := LoadConfig(w.filepath)
	if err != nil {
		w.logger.Error("config_reload_failed", "error", err.Error())
		return
	}

	w.settings.set(cfg.Dynamic)
	w.logger.Info("config_reloaded_successfully",
		"metrics_interval", cfg.MetricsIntervalSeconds,
		"health_check_interval", cfg.HealthCheckIntervalSeconds,
		"unhealthy_threshold", cfg.UnhealthyThreshold)
}
