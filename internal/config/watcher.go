package config

import (
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog/log"
)

// Watcher monitors a configuration file and invokes a callback with the
// reloaded settings whenever the file changes. Used by monitor mode so a
// cooldown change does not require a restart.
type Watcher struct {
	path     string
	watcher  *fsnotify.Watcher
	stopChan chan struct{}
	stopOnce sync.Once
	onReload func(*Settings)
}

// NewWatcher creates a watcher for the given config file.
func NewWatcher(path string, onReload func(*Settings)) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	return &Watcher{
		path:     path,
		watcher:  fsw,
		stopChan: make(chan struct{}),
		onReload: onReload,
	}, nil
}

// Start begins watching. Watch the directory rather than the file itself so
// editors that replace the file via rename are still observed.
func (w *Watcher) Start() error {
	dir := filepath.Dir(w.path)
	if err := w.watcher.Add(dir); err != nil {
		return err
	}

	go w.loop()
	return nil
}

func (w *Watcher) loop() {
	for {
		select {
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != filepath.Clean(w.path) {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			w.reload()
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			log.Warn().Err(err).Msg("Config watcher error")
		case <-w.stopChan:
			return
		}
	}
}

func (w *Watcher) reload() {
	settings, err := LoadFile(w.path)
	if err != nil {
		log.Warn().Err(err).Str("path", w.path).Msg("Config changed but reload failed, keeping previous settings")
		return
	}
	log.Info().Str("path", w.path).Msg("Configuration reloaded")
	if w.onReload != nil {
		w.onReload(settings)
	}
}

// Stop terminates the watcher.
func (w *Watcher) Stop() {
	w.stopOnce.Do(func() {
		close(w.stopChan)
		if err := w.watcher.Close(); err != nil {
			log.Debug().Err(err).Msg("Failed to close fsnotify watcher")
		}
	})
}
