package config

import (
	"bytes"
	"context"
	"crypto/sha256"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"
)

// Watcher polls a config file and hands every new valid revision to a
// callback. A revision that fails to load is skipped and the last valid
// config stays current; the failure is reported through [Watcher.Ping] until
// a later revision loads cleanly, so /readyz can surface a broken edit.
type Watcher struct {
	path     string
	env      LookupFunc
	interval time.Duration
	onChange func(old, new *Config)

	mu       sync.Mutex
	current  revision
	rejected error

	done     chan struct{}
	stopOnce sync.Once
}

// revision is one loaded state of the file.
type revision struct {
	cfg   *Config
	sum   [sha256.Size]byte
	mtime time.Time
}

// WatcherOption configures a [Watcher].
type WatcherOption func(*Watcher)

// WithInterval sets the polling interval. The default is 5 seconds.
func WithInterval(d time.Duration) WatcherOption {
	return func(w *Watcher) {
		if d > 0 {
			w.interval = d
		}
	}
}

// NewWatcher loads path once, failing if that first load is invalid, and
// starts polling it in the background. env resolves ${VAR} references and
// the credential overlay on every reload, exactly as [Load] does.
func NewWatcher(path string, env LookupFunc, onChange func(old, new *Config), opts ...WatcherOption) (*Watcher, error) {
	w := &Watcher{
		path:     path,
		env:      env,
		interval: 5 * time.Second,
		onChange: onChange,
		done:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(w)
	}

	rev, err := w.read()
	if err != nil {
		return nil, fmt.Errorf("config: watch %s: %w", path, err)
	}
	w.current = rev

	go w.loop()
	return w, nil
}

// Current returns the most recently loaded valid config.
func (w *Watcher) Current() *Config {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.current.cfg
}

// Ping reports the error of the newest rejected revision, or nil when the
// file on disk is the one being served.
func (w *Watcher) Ping(context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.rejected
}

// Stop ends polling. It is safe to call more than once.
func (w *Watcher) Stop() {
	w.stopOnce.Do(func() { close(w.done) })
}

func (w *Watcher) loop() {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()
	for {
		select {
		case <-w.done:
			return
		case <-ticker.C:
			w.check()
		}
	}
}

// check reloads the file when its mtime moved and its content hash changed.
func (w *Watcher) check() {
	info, err := os.Stat(w.path)
	if err != nil {
		w.reject(err)
		return
	}

	w.mu.Lock()
	unchanged := info.ModTime().Equal(w.current.mtime) && w.rejected == nil
	w.mu.Unlock()
	if unchanged {
		return
	}

	rev, err := w.read()
	if err != nil {
		w.reject(err)
		return
	}

	w.mu.Lock()
	w.rejected = nil
	if rev.sum == w.current.sum {
		w.current.mtime = rev.mtime
		w.mu.Unlock()
		return
	}
	old := w.current.cfg
	w.current = rev
	w.mu.Unlock()

	slog.Info("config reloaded", "path", w.path)
	if w.onChange != nil {
		w.onChange(old, rev.cfg)
	}
}

func (w *Watcher) reject(err error) {
	w.mu.Lock()
	first := w.rejected == nil
	w.rejected = fmt.Errorf("config: revision of %s rejected: %w", w.path, err)
	w.mu.Unlock()
	if first {
		slog.Warn("config reload rejected, keeping previous config", "path", w.path, "err", err)
	}
}

// read loads and validates the file in one pass over its bytes.
func (w *Watcher) read() (revision, error) {
	info, err := os.Stat(w.path)
	if err != nil {
		return revision{}, err
	}
	data, err := os.ReadFile(w.path)
	if err != nil {
		return revision{}, err
	}
	cfg, err := LoadFromReader(bytes.NewReader(data), w.env)
	if err != nil {
		return revision{}, err
	}
	return revision{cfg: cfg, sum: sha256.Sum256(data), mtime: info.ModTime()}, nil
}
