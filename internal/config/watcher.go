package config

import (
	"context"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"

	"nexus/internal/logging"
)

// Watcher hot-reloads a Config from disk on change: an fsnotify watch on
// the containing directory with a debounce window, triggering a single
// config file re-Load rather than a partial patch.
type Watcher struct {
	path    string
	current atomic.Pointer[Config]
	onLoad  func(*Config)

	mu       sync.Mutex
	watcher  *fsnotify.Watcher
	stopCh   chan struct{}
	doneCh   chan struct{}
	running  bool
	debounce time.Duration
}

// NewWatcher wraps an already-loaded cfg and watches the directory
// containing path for subsequent changes to that file.
func NewWatcher(path string, cfg *Config) *Watcher {
	w := &Watcher{path: path, debounce: 300 * time.Millisecond}
	w.current.Store(cfg)
	return w
}

// Current returns the most recently loaded config. Safe for concurrent use.
func (w *Watcher) Current() *Config {
	return w.current.Load()
}

// OnReload registers a callback invoked after each successful hot-reload,
// e.g. to call logging.ReloadConfig() or rewire a cache's TTL.
func (w *Watcher) OnReload(fn func(*Config)) {
	w.onLoad = fn
}

// Start begins watching in a goroutine; it is a no-op if already running.
func (w *Watcher) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return nil
	}
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		w.mu.Unlock()
		return err
	}
	dir := filepath.Dir(w.path)
	if err := fsw.Add(dir); err != nil {
		logging.Get(logging.CategoryBoot).Warn("config watcher: could not watch %s: %v", dir, err)
	}
	w.watcher = fsw
	w.stopCh = make(chan struct{})
	w.doneCh = make(chan struct{})
	w.running = true
	w.mu.Unlock()

	go w.run(ctx)
	return nil
}

// Stop stops the watcher and waits for its goroutine to exit.
func (w *Watcher) Stop() {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return
	}
	w.running = false
	close(w.stopCh)
	fsw := w.watcher
	w.mu.Unlock()

	<-w.doneCh
	if fsw != nil {
		fsw.Close()
	}
}

func (w *Watcher) run(ctx context.Context) {
	defer close(w.doneCh)
	log := logging.Get(logging.CategoryBoot)

	var pending *time.Timer
	reload := func() {
		cfg, err := Load(w.path)
		if err != nil {
			log.Warn("config watcher: reload of %s failed: %v", w.path, err)
			return
		}
		w.current.Store(cfg)
		log.Info("config watcher: reloaded %s", w.path)
		if w.onLoad != nil {
			w.onLoad(cfg)
		}
	}

	for {
		select {
		case <-ctx.Done():
			return
		case <-w.stopCh:
			return
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if filepath.Base(event.Name) != filepath.Base(w.path) {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			if pending != nil {
				pending.Stop()
			}
			pending = time.AfterFunc(w.debounce, reload)
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			log.Warn("config watcher error: %v", err)
		}
	}
}
