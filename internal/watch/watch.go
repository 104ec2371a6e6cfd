// Package watch re-runs a callback whenever files under a directory tree
// change. Runs never overlap: changes made while the callback is running
// queue exactly one further run.
package watch

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// DefaultDebounce is how long the tree must be quiet before a run starts.
const DefaultDebounce = 500 * time.Millisecond

// tick is how often settled events are collected.
const tick = 100 * time.Millisecond

// Func is called for each run. changed lists the paths that triggered
// it, sorted; it is empty for the initial run.
type Func func(ctx context.Context, changed []string)

// Options configure a Watcher.
type Options struct {
	Debounce time.Duration // zero means DefaultDebounce
	Ignore   []string      // directory or file base names to skip
	Logger   *zap.Logger
}

// Watcher watches a directory tree recursively. Hidden directories and
// the configured ignore names are never descended into.
type Watcher struct {
	root     string
	debounce time.Duration
	ignore   map[string]bool
	log      *zap.Logger
	fsw      *fsnotify.Watcher

	mu      sync.Mutex
	pending map[string]time.Time // path -> last event, not yet settled
	queued  map[string]bool      // settled paths awaiting the next run
	trigger chan struct{}
}

// New creates a Watcher for root. Call Run to start it.
func New(root string, opts Options) (*Watcher, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolving watch root: %w", err)
	}
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("creating watcher: %w", err)
	}

	w := &Watcher{
		root:     abs,
		debounce: opts.Debounce,
		ignore:   make(map[string]bool, len(opts.Ignore)),
		log:      opts.Logger,
		fsw:      fsw,
		pending:  make(map[string]time.Time),
		queued:   make(map[string]bool),
		trigger:  make(chan struct{}, 1),
	}
	if w.debounce <= 0 {
		w.debounce = DefaultDebounce
	}
	if w.log == nil {
		w.log = zap.NewNop()
	}
	for _, name := range opts.Ignore {
		w.ignore[name] = true
	}
	return w, nil
}

// WatchedDirs returns the directories currently being watched.
func (w *Watcher) WatchedDirs() []string {
	return w.fsw.WatchList()
}

// Run calls fn once, then again after every settled change, until ctx
// is cancelled. It returns after the in-flight call (if any) returns
// and the underlying watcher is closed.
func (w *Watcher) Run(ctx context.Context, fn Func) error {
	defer w.fsw.Close()

	if err := w.addTree(w.root); err != nil {
		return err
	}
	w.log.Info("watching", zap.String("root", w.root), zap.Int("dirs", len(w.fsw.WatchList())))

	ctx, cancel := context.WithCancel(ctx)
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		w.work(ctx, fn)
	}()
	defer wg.Wait()
	defer cancel()

	w.trigger <- struct{}{}

	ticker := time.NewTicker(tick)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-w.fsw.Events:
			if !ok {
				return nil
			}
			w.handleEvent(event)

		case err, ok := <-w.fsw.Errors:
			if !ok {
				return nil
			}
			w.log.Warn("watch error", zap.Error(err))

		case <-ticker.C:
			w.flush(time.Now())
		}
	}
}

// work runs fn once per trigger. The trigger channel holds at most one
// token, so any number of changes during a run collapse into one.
func (w *Watcher) work(ctx context.Context, fn Func) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-w.trigger:
		}
		if ctx.Err() != nil {
			return
		}

		w.mu.Lock()
		changed := make([]string, 0, len(w.queued))
		for p := range w.queued {
			changed = append(changed, p)
		}
		w.queued = make(map[string]bool)
		w.mu.Unlock()
		sort.Strings(changed)

		if len(changed) > 0 {
			w.log.Info("change detected", zap.Int("files", len(changed)), zap.String("first", w.rel(changed[0])))
		}
		fn(ctx, changed)
	}
}

func (w *Watcher) handleEvent(event fsnotify.Event) {
	if event.Op == fsnotify.Chmod {
		return
	}
	if w.skip(event.Name) {
		return
	}

	if event.Op.Has(fsnotify.Create) {
		if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
			if err := w.addTree(event.Name); err != nil {
				w.log.Warn("watching new directory", zap.String("dir", w.rel(event.Name)), zap.Error(err))
			}
		}
	}

	w.log.Debug("event", zap.String("op", event.Op.String()), zap.String("path", w.rel(event.Name)))
	w.mu.Lock()
	w.pending[event.Name] = time.Now()
	w.mu.Unlock()
}

// flush moves events that have been quiet for the debounce period into
// the queue and wakes the worker.
func (w *Watcher) flush(now time.Time) {
	w.mu.Lock()
	if len(w.pending) == 0 {
		w.mu.Unlock()
		return
	}
	for _, t := range w.pending {
		if now.Sub(t) < w.debounce {
			w.mu.Unlock()
			return
		}
	}
	for p := range w.pending {
		w.queued[p] = true
	}
	w.pending = make(map[string]time.Time)
	w.mu.Unlock()

	select {
	case w.trigger <- struct{}{}:
	default:
	}
}

// addTree watches dir and every directory below it that is not skipped.
func (w *Watcher) addTree(dir string) error {
	return filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if path != dir && errors.Is(err, fs.ErrNotExist) {
				return nil
			}
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if path != w.root && w.skip(path) {
			return filepath.SkipDir
		}
		if err := w.fsw.Add(path); err != nil {
			return fmt.Errorf("watching %s: %w", path, err)
		}
		return nil
	})
}

// skip reports whether path lies in or is an ignored or hidden entry.
func (w *Watcher) skip(path string) bool {
	rel, err := filepath.Rel(w.root, path)
	if err != nil || rel == "." {
		return false
	}
	for _, part := range strings.Split(rel, string(filepath.Separator)) {
		if w.ignore[part] || (strings.HasPrefix(part, ".") && part != "." && part != "..") {
			return true
		}
	}
	return false
}

func (w *Watcher) rel(path string) string {
	if rel, err := filepath.Rel(w.root, path); err == nil {
		return rel
	}
	return path
}
