// Package watch calls back when a file changes on disk.
package watch

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	appLog "lunarcal/internal/log"
)

const DefaultDebounce = 250 * time.Millisecond

// Watcher watches one file, plus optional companion files next to it
// (e.g. "-wal" and "-journal" for SQLite), and calls onChange once per burst
// of changes.
//
// The parent directory is watched rather than the file itself so that
// replace-by-rename saves keep being observed.
type Watcher struct {
	fsw      *fsnotify.Watcher
	dir      string
	names    map[string]bool
	debounce time.Duration
	onChange func()

	mu    sync.Mutex
	timer *time.Timer
}

// New creates a watcher for path. suffixes name companion files as
// path+suffix. A debounce <= 0 means DefaultDebounce.
func New(path string, debounce time.Duration, onChange func(), suffixes ...string) (*Watcher, error) {
	if path == "" {
		return nil, errors.New("watch: empty path")
	}
	if onChange == nil {
		return nil, errors.New("watch: nil callback")
	}
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	dir := filepath.Dir(abs)
	if err := fsw.Add(dir); err != nil {
		fsw.Close()
		return nil, err
	}

	names := map[string]bool{filepath.Base(abs): true}
	for _, s := range suffixes {
		names[filepath.Base(abs)+s] = true
	}
	return &Watcher{
		fsw:      fsw,
		dir:      dir,
		names:    names,
		debounce: debounce,
		onChange: onChange,
	}, nil
}

// Run delivers change notifications until ctx is done, then releases the
// underlying watcher.
func (w *Watcher) Run(ctx context.Context) {
	defer w.fsw.Close()
	appLog.Debug("watch started", "dir", w.dir)

	for {
		select {
		case event, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			w.handleEvent(event)

		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			appLog.Warn("watch error", "dir", w.dir, "err", err)

		case <-ctx.Done():
			w.mu.Lock()
			if w.timer != nil {
				w.timer.Stop()
			}
			w.mu.Unlock()
			appLog.Debug("watch stopped", "dir", w.dir)
			return
		}
	}
}

func (w *Watcher) handleEvent(event fsnotify.Event) {
	if !w.names[filepath.Base(event.Name)] {
		return
	}
	if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
		return
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	if w.timer != nil {
		w.timer.Reset(w.debounce)
		return
	}
	w.timer = time.AfterFunc(w.debounce, w.onChange)
}
