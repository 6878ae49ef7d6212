// Package queuewatch signals when the watch list file changes, so the
// supervisor can reconcile early instead of waiting out its reload
// interval.
package queuewatch

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"threadwatch/internal/watch"
)

const (
	// debounceDelay coalesces the event bursts editors and atomic
	// rewrites produce into one signal.
	debounceDelay = 500 * time.Millisecond

	// pollInterval drives the stat fallback when fsnotify cannot
	// watch the file's directory.
	pollInterval = 2 * time.Second
)

// Watcher monitors one file using fsnotify, falling back to stat
// polling. Changes are debounced and delivered on a non-blocking
// channel.
type Watcher struct {
	path   string
	logger watch.Logger

	mu        sync.Mutex
	fsWatcher *fsnotify.Watcher
	cancel    context.CancelFunc
	timer     *time.Timer
	started   bool
	polling   bool
	lastMtime time.Time
	lastSize  int64

	changeCh chan struct{}
}

// New creates a watcher for the file at path. The file does not have
// to exist yet; its directory does.
func New(path string, logger watch.Logger) (*Watcher, error) {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolving watch list path: %w", err)
	}
	return &Watcher{
		path:     absPath,
		logger:   logger,
		changeCh: make(chan struct{}, 1),
	}, nil
}

// Start begins monitoring. It watches the containing directory rather
// than the file itself so atomic rewrites (temp file plus rename) are
// seen.
func (w *Watcher) Start() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.started {
		return fmt.Errorf("already started")
	}

	if info, err := os.Stat(w.path); err == nil {
		w.lastMtime = info.ModTime()
		w.lastSize = info.Size()
	}

	var ctx context.Context
	ctx, w.cancel = context.WithCancel(context.Background())

	w.polling = true
	if fsw, err := fsnotify.NewWatcher(); err == nil {
		if err := fsw.Add(filepath.Dir(w.path)); err != nil {
			fsw.Close()
			w.logger.Debug("falling back to polling", "path", w.path, "error", err)
		} else {
			w.fsWatcher = fsw
			w.polling = false
			go w.watchEvents(ctx, fsw)
		}
	} else {
		w.logger.Debug("falling back to polling", "path", w.path, "error", err)
	}

	if w.polling {
		go w.watchPolling(ctx)
	}

	w.started = true
	return nil
}

// Stop ends monitoring. The change channel stays open; closing it
// would race with in-flight notifications.
func (w *Watcher) Stop() {
	w.mu.Lock()
	defer w.mu.Unlock()

	if !w.started {
		return
	}
	w.cancel()
	if w.fsWatcher != nil {
		w.fsWatcher.Close()
		w.fsWatcher = nil
	}
	if w.timer != nil {
		w.timer.Stop()
	}
	w.started = false
}

// Changed returns the channel that receives after the file changes.
// The channel holds at most one pending signal; bursts coalesce.
func (w *Watcher) Changed() <-chan struct{} {
	return w.changeCh
}

// Polling reports whether the stat fallback is active.
func (w *Watcher) Polling() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.polling
}

func (w *Watcher) watchEvents(ctx context.Context, fsw *fsnotify.Watcher) {
	target := filepath.Base(w.path)

	for {
		select {
		case <-ctx.Done():
			return

		case event, ok := <-fsw.Events:
			if !ok {
				return
			}
			if filepath.Base(event.Name) != target {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) != 0 {
				w.trigger()
			}

		case err, ok := <-fsw.Errors:
			if !ok {
				return
			}
			w.logger.Warn("watch list monitoring error", "path", w.path, "error", err)
		}
	}
}

func (w *Watcher) watchPolling(ctx context.Context) {
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return

		case <-ticker.C:
			info, err := os.Stat(w.path)
			if err != nil {
				continue
			}

			w.mu.Lock()
			changed := info.ModTime().After(w.lastMtime) || info.Size() != w.lastSize
			if changed {
				w.lastMtime = info.ModTime()
				w.lastSize = info.Size()
			}
			w.mu.Unlock()

			if changed {
				w.trigger()
			}
		}
	}
}

// trigger arms the debounce timer, restarting it if already armed.
func (w *Watcher) trigger() {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.timer != nil {
		w.timer.Stop()
	}
	w.timer = time.AfterFunc(debounceDelay, w.notify)
}

func (w *Watcher) notify() {
	select {
	case w.changeCh <- struct{}{}:
	default:
	}
}
