package refresh

import (
	"context"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	appLog "calview/internal/log"
)

const defaultDebounce = 500 * time.Millisecond

// Watcher calls onChange after any of the watched files is written,
// created, or renamed into place. Bursts of events within the debounce
// window collapse to one call.
type Watcher struct {
	paths    map[string]struct{}
	dirs     []string
	onChange func()
	debounce time.Duration

	readyOnce sync.Once
	ready     chan struct{} // closed once Run has registered directories or given up
}

// NewWatcher watches the parent directories of paths so editors that
// replace files by rename are still seen.
func NewWatcher(paths []string, debounce time.Duration, onChange func()) *Watcher {
	if debounce <= 0 {
		debounce = defaultDebounce
	}
	w := &Watcher{
		paths:    make(map[string]struct{}),
		onChange: onChange,
		debounce: debounce,
		ready:    make(chan struct{}),
	}
	seenDir := make(map[string]bool)
	for _, p := range paths {
		abs, err := filepath.Abs(p)
		if err != nil {
			abs = filepath.Clean(p)
		}
		w.paths[abs] = struct{}{}
		dir := filepath.Dir(abs)
		if !seenDir[dir] {
			seenDir[dir] = true
			w.dirs = append(w.dirs, dir)
		}
	}
	return w
}

// Run blocks until ctx is done. With no paths it returns immediately.
// Run may be called again after it returns.
func (w *Watcher) Run(ctx context.Context) error {
	defer w.markReady()
	if len(w.paths) == 0 {
		return nil
	}
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer fw.Close()

	for _, dir := range w.dirs {
		if err := fw.Add(dir); err != nil {
			appLog.Error("watch add failed", err, "dir", dir)
		}
	}
	appLog.Info("watching ics files", "files", len(w.paths))
	w.markReady()

	var timer *time.Timer
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-fw.Events:
			if !ok {
				return nil
			}
			if !w.relevant(ev) {
				continue
			}
			appLog.Debug("ics file changed", "path", ev.Name, "op", ev.Op.String())
			if timer != nil {
				timer.Stop()
			}
			timer = time.AfterFunc(w.debounce, w.onChange)
		case err, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			appLog.Error("watcher error", err)
		}
	}
}

func (w *Watcher) relevant(ev fsnotify.Event) bool {
	if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Rename) {
		return false
	}
	abs, err := filepath.Abs(ev.Name)
	if err != nil {
		abs = filepath.Clean(ev.Name)
	}
	_, ok := w.paths[abs]
	return ok
}

func (w *Watcher) markReady() {
	w.readyOnce.Do(func() { close(w.ready) })
}
