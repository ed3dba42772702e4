package agent

import (
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
)

// DeviceWatcher reloads the device file when it changes and notifies the
// engine so pipelines can be rebuilt with their splices reapplied.
type DeviceWatcher struct {
	path     string
	agent    *Agent
	load     func(path string) (*Registry, error)
	onReload func(*Registry)
	watcher  *fsnotify.Watcher
	log      zerolog.Logger

	debounce *time.Timer
	done     chan struct{}
}

// NewDeviceWatcher watches the device file. load may be nil to use
// LoadRegistry directly; onReload runs after the registry is swapped.
func NewDeviceWatcher(path string, a *Agent, load func(string) (*Registry, error),
	onReload func(*Registry), log zerolog.Logger) (*DeviceWatcher, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	// Watch the directory: editors replace files, which drops the watch
	// on the file itself.
	if err := w.Add(filepath.Dir(path)); err != nil {
		w.Close()
		return nil, err
	}
	if load == nil {
		load = LoadRegistry
	}
	dw := &DeviceWatcher{
		path:     path,
		agent:    a,
		load:     load,
		onReload: onReload,
		watcher:  w,
		log:      log.With().Str("component", "device-watcher").Logger(),
		done:     make(chan struct{}),
	}
	go dw.run()
	return dw, nil
}

func (w *DeviceWatcher) run() {
	for {
		select {
		case <-w.done:
			return
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != filepath.Clean(w.path) {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
				continue
			}
			// Debounce: editors emit bursts of events per save.
			if w.debounce != nil {
				w.debounce.Stop()
			}
			w.debounce = time.AfterFunc(500*time.Millisecond, w.reload)
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.log.Warn().Err(err).Msg("watch error")
		}
	}
}

func (w *DeviceWatcher) reload() {
	registry, err := w.load(w.path)
	if err != nil {
		w.log.Error().Err(err).Str("path", w.path).Msg("device file reload failed, keeping current model")
		return
	}
	w.log.Info().Int("devices", len(registry.Devices())).Msg("device model reloaded")
	w.agent.ReplaceRegistry(registry)
	if w.onReload != nil {
		w.onReload(registry)
	}
}

func (w *DeviceWatcher) Stop() {
	close(w.done)
	if w.debounce != nil {
		w.debounce.Stop()
	}
	w.watcher.Close()
}
