package capability

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
)

// watchDebounce batches bursts of filesystem events from a single save.
const watchDebounce = 250 * time.Millisecond

// Watch reloads the registry whenever a plugin file or the enable-state
// file changes. Filesystem notifications are used when available; a
// modification-time poll every interval always runs as well and is the
// only mechanism when notifications cannot start. Watch blocks until ctx
// is cancelled.
func (r *Registry) Watch(ctx context.Context, interval time.Duration) error {
	if interval <= 0 {
		interval = 5 * time.Second
	}

	var (
		events <-chan fsnotify.Event
		errs   <-chan error
	)
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		r.logger.Warn("file notifications unavailable, polling only", "error", err)
	} else {
		defer watcher.Close()
		r.addWatches(watcher)
		events, errs = watcher.Events, watcher.Errors
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	var debounce <-chan time.Time
	for {
		select {
		case <-ctx.Done():
			return nil

		case ev, ok := <-events:
			if !ok {
				events = nil
				continue
			}
			if r.relevant(ev) {
				debounce = time.After(watchDebounce)
			}

		case err, ok := <-errs:
			if !ok {
				errs = nil
				continue
			}
			r.logger.Warn("plugin watcher error", "error", err)

		case <-debounce:
			debounce = nil
			r.reloadIfChanged(ctx)

		case <-ticker.C:
			r.reloadIfChanged(ctx)
		}
	}
}

func (r *Registry) addWatches(w *fsnotify.Watcher) {
	dirs := []string{r.cfg.Dir}
	if r.cfg.StateFile != "" {
		dirs = append(dirs, filepath.Dir(r.cfg.StateFile))
	}
	for _, dir := range dirs {
		if dir == "" {
			continue
		}
		if err := w.Add(dir); err != nil {
			// The directory may appear later; polling covers it.
			r.logger.Debug("not watching directory", "dir", dir, "error", err)
		}
	}
}

func (r *Registry) relevant(ev fsnotify.Event) bool {
	if ev.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Remove|fsnotify.Rename) == 0 {
		return false
	}
	if r.cfg.StateFile != "" && filepath.Clean(ev.Name) == filepath.Clean(r.cfg.StateFile) {
		return true
	}
	return filepath.Clean(filepath.Dir(ev.Name)) == filepath.Clean(r.cfg.Dir) &&
		isPluginFile(filepath.Base(ev.Name))
}

func (r *Registry) reloadIfChanged(ctx context.Context) {
	fp := r.fingerprint()
	r.mu.Lock()
	unchanged := fp == r.fp
	r.mu.Unlock()
	if unchanged {
		return
	}
	r.logger.Debug("plugin change detected, reloading")
	if _, err := r.Reload(ctx); err != nil {
		r.logger.Warn("plugin reload incomplete", "error", err)
	}
}

// fingerprint summarizes names, sizes, and modification times of every
// input to Reload.
func (r *Registry) fingerprint() string {
	var b strings.Builder
	files, _ := pluginFiles(r.cfg.Dir)
	if r.cfg.StateFile != "" {
		files = append(files, r.cfg.StateFile)
	}
	for _, path := range files {
		info, err := os.Stat(path)
		if err != nil {
			continue
		}
		fmt.Fprintf(&b, "%s|%d|%d\n", path, info.Size(), info.ModTime().UnixNano())
	}
	return b.String()
}
