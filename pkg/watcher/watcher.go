// Package watcher monitors the canopy config file for changes so the client
// can hot-reload server and UI settings without a restart. It uses fsnotify
// where available and falls back to polling on filesystems that do not
// deliver events reliably.
package watcher

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// DefaultDebounceDuration collapses bursts of write events (editors often
// write a file several times in quick succession).
const DefaultDebounceDuration = 200 * time.Millisecond

// DefaultPollInterval is the polling interval for fallback mode.
const DefaultPollInterval = 2 * time.Second

// Common errors.
var (
	ErrAlreadyStarted = errors.New("watcher already started")
	ErrPermission     = errors.New("permission denied")
)

// Option configures a Watcher.
type Option func(*Watcher)

// WithDebounceDuration sets the debounce duration.
func WithDebounceDuration(d time.Duration) Option {
	return func(w *Watcher) { w.debounce = d }
}

// WithPollInterval sets the polling interval for fallback mode.
func WithPollInterval(d time.Duration) Option {
	return func(w *Watcher) { w.pollInterval = d }
}

// WithOnChange sets the callback invoked when the file changes.
func WithOnChange(fn func()) Option {
	return func(w *Watcher) { w.onChange = fn }
}

// WithForcePoll forces polling mode even if fsnotify is available.
func WithForcePoll(force bool) Option {
	return func(w *Watcher) { w.forcePoll = force }
}

// Watcher monitors a single file using fsnotify with polling fallback.
type Watcher struct {
	path         string
	debounce     time.Duration
	pollInterval time.Duration
	onChange     func()
	forcePoll    bool

	fsWatcher *fsnotify.Watcher
	lastMtime time.Time
	lastSize  int64

	ctx     context.Context
	cancel  context.CancelFunc
	started bool
	mu      sync.Mutex

	debounceTimer *time.Timer
}

// New creates a watcher for the given path. The file does not have to exist
// yet; creation counts as a change.
func New(path string, opts ...Option) (*Watcher, error) {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}
	w := &Watcher{
		path:         absPath,
		debounce:     DefaultDebounceDuration,
		pollInterval: DefaultPollInterval,
		onChange:     func() {},
	}
	for _, opt := range opts {
		opt(w)
	}
	return w, nil
}

// Start begins watching.
func (w *Watcher) Start() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.started {
		return ErrAlreadyStarted
	}
	w.ctx, w.cancel = context.WithCancel(context.Background())

	if info, err := os.Stat(w.path); err == nil {
		w.lastMtime = info.ModTime()
		w.lastSize = info.Size()
	} else if os.IsPermission(err) {
		return ErrPermission
	}

	useFallback := w.forcePoll
	if !useFallback {
		fsw, err := fsnotify.NewWatcher()
		if err != nil {
			useFallback = true
		} else {
			// Watch the containing directory; editors replace files
			// atomically and a direct file watch loses the inode.
			if err := fsw.Add(filepath.Dir(w.path)); err != nil {
				fsw.Close()
				useFallback = true
			} else {
				w.fsWatcher = fsw
				go w.watchFsnotify()
			}
		}
	}
	if useFallback {
		go w.watchPolling()
	}

	w.started = true
	return nil
}

// Stop stops watching. Safe to call more than once.
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
	if w.debounceTimer != nil {
		w.debounceTimer.Stop()
	}
	w.started = false
}

func (w *Watcher) watchFsnotify() {
	for {
		select {
		case <-w.ctx.Done():
			return
		case ev, ok := <-w.fsWatcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(ev.Name) != w.path {
				continue
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename|fsnotify.Remove) != 0 {
				w.notifyDebounced()
			}
		case _, ok := <-w.fsWatcher.Errors:
			if !ok {
				return
			}
			// fsnotify hiccup: fall through, polling is not started here
			// because the event stream usually recovers on its own.
		}
	}
}

func (w *Watcher) watchPolling() {
	ticker := time.NewTicker(w.pollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-w.ctx.Done():
			return
		case <-ticker.C:
			info, err := os.Stat(w.path)
			if err != nil {
				continue
			}
			if !info.ModTime().Equal(w.lastMtime) || info.Size() != w.lastSize {
				w.lastMtime = info.ModTime()
				w.lastSize = info.Size()
				w.notifyDebounced()
			}
		}
	}
}

// notifyDebounced schedules onChange after the debounce window, resetting
// the window on every new event.
func (w *Watcher) notifyDebounced() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.debounceTimer != nil {
		w.debounceTimer.Stop()
	}
	w.debounceTimer = time.AfterFunc(w.debounce, w.onChange)
}
