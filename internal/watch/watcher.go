// Package watch re-checks production files as they change on disk.
package watch

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"datamap/internal/logging"
	"datamap/internal/match"
	"datamap/internal/metrics"
)

// CheckFunc checks one production file, given as a workspace-relative slash
// path.
type CheckFunc func(ctx context.Context, rel string) ([]match.Diagnostic, error)

// Result is the outcome of one triggered check.
type Result struct {
	Path        string
	Diagnostics []match.Diagnostic
	Err         error
}

// Options configures a Watcher.
type Options struct {
	// Debounce is how long a file must stay quiet before it is checked.
	Debounce time.Duration
	// Filter selects production files by workspace-relative slash path.
	// Nil accepts the .yaml, .yml and .mg extensions.
	Filter func(rel string) bool
	// OnResult, if set, receives every check outcome on the watcher goroutine.
	OnResult func(Result)
	// Skip names directories that are never watched.
	Skip []string
}

// Stats tracks watcher activity.
type Stats struct {
	FilesCreated    int
	FilesModified   int
	FilesDeleted    int
	ChecksTriggered int
	Diagnostics     int
	Errors          int
	LastEventTime   time.Time
	LastEventPath   string
	LastEventType   string
}

// Watcher watches a workspace tree and runs a CheckFunc on production files
// once their writes settle.
type Watcher struct {
	mu          sync.RWMutex
	watcher     *fsnotify.Watcher
	root        string
	check       CheckFunc
	opts        Options
	debounceMap map[string]time.Time
	stopCh      chan struct{}
	doneCh      chan struct{}
	running     bool

	stats Stats
}

// New creates a watcher rooted at the workspace directory.
func New(root string, check CheckFunc, opts Options) (*Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if opts.Debounce <= 0 {
		opts.Debounce = 300 * time.Millisecond
	}
	if opts.Filter == nil {
		opts.Filter = DefaultFilter
	}
	return &Watcher{
		watcher:     fw,
		root:        root,
		check:       check,
		opts:        opts,
		debounceMap: make(map[string]time.Time),
		stopCh:      make(chan struct{}),
		doneCh:      make(chan struct{}),
	}, nil
}

// DefaultFilter accepts files with a production extension.
func DefaultFilter(rel string) bool {
	switch strings.ToLower(filepath.Ext(rel)) {
	case ".yaml", ".yml", ".mg", ".mangle":
		return true
	}
	return false
}

// Start adds every directory under the root and begins processing events
// in a goroutine. Calling Start on a running watcher does nothing.
func (w *Watcher) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return nil
	}
	w.running = true
	w.mu.Unlock()

	if err := w.addTree(w.root); err != nil {
		w.mu.Lock()
		w.running = false
		w.mu.Unlock()
		return err
	}
	logging.Watch("Watching %d directories under %s", len(w.watcher.WatchList()), w.root)

	go w.run(ctx)
	return nil
}

// addTree watches dir and every directory below it. fsnotify does not
// recurse on its own.
func (w *Watcher) addTree(dir string) error {
	return filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if path == dir {
				return err
			}
			logging.WatchDebug("Skipping %s: %v", path, err)
			return nil
		}
		if !d.IsDir() {
			return nil
		}
		if path != dir && w.skipped(d.Name()) {
			return filepath.SkipDir
		}
		if err := w.watcher.Add(path); err != nil {
			logging.WatchError("Failed to watch %s: %v", path, err)
		}
		return nil
	})
}

func (w *Watcher) skipped(name string) bool {
	return slices.Contains(w.opts.Skip, name) || (strings.HasPrefix(name, ".") && len(name) > 1)
}

// Stop stops the watcher and waits for its goroutine to exit. It also
// releases a watcher that was never started.
func (w *Watcher) Stop() {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		_ = w.watcher.Close()
		return
	}
	w.running = false
	w.mu.Unlock()

	close(w.stopCh)
	<-w.doneCh

	if err := w.watcher.Close(); err != nil {
		logging.WatchError("Error closing watcher: %v", err)
	}
	logging.Watch("Watcher stopped")
}

func (w *Watcher) run(ctx context.Context) {
	defer close(w.doneCh)

	tick := min(100*time.Millisecond, w.opts.Debounce/2)
	debounceTicker := time.NewTicker(max(tick, 5*time.Millisecond))
	defer debounceTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			logging.Watch("Watcher context cancelled")
			return

		case <-w.stopCh:
			return

		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			w.handleEvent(event)

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			logging.WatchError("Watcher error: %v", err)
			w.mu.Lock()
			w.stats.Errors++
			w.mu.Unlock()
			metrics.WatchEvent("error")

		case <-debounceTicker.C:
			w.processDebounced(ctx)
		}
	}
}

func (w *Watcher) handleEvent(event fsnotify.Event) {
	if event.Op&fsnotify.Create != 0 {
		if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
			if !w.skipped(filepath.Base(event.Name)) {
				if err := w.addTree(event.Name); err != nil {
					logging.WatchError("Failed to watch new directory %s: %v", event.Name, err)
				}
			}
			return
		}
	}

	rel, ok := w.relative(event.Name)
	if !ok || !w.opts.Filter(rel) {
		return
	}

	var eventType string
	switch {
	case event.Op&fsnotify.Create != 0:
		eventType = "create"
	case event.Op&fsnotify.Write != 0:
		eventType = "modify"
	case event.Op&fsnotify.Remove != 0:
		eventType = "delete"
	case event.Op&fsnotify.Rename != 0:
		eventType = "rename"
	default:
		return
	}
	logging.WatchDebug("%s event for %s", eventType, rel)

	w.mu.Lock()
	defer w.mu.Unlock()
	w.stats.LastEventTime = time.Now()
	w.stats.LastEventPath = rel
	w.stats.LastEventType = eventType
	switch eventType {
	case "create":
		w.stats.FilesCreated++
	case "modify":
		w.stats.FilesModified++
	default:
		w.stats.FilesDeleted++
	}
	w.debounceMap[rel] = time.Now()
}

func (w *Watcher) relative(path string) (string, bool) {
	rel, err := filepath.Rel(w.root, path)
	if err != nil || strings.HasPrefix(rel, "..") {
		return "", false
	}
	return filepath.ToSlash(rel), true
}

// processDebounced checks files whose last event is older than the debounce
// window.
func (w *Watcher) processDebounced(ctx context.Context) {
	w.mu.Lock()
	now := time.Now()
	var settled []string
	for path, at := range w.debounceMap {
		if now.Sub(at) >= w.opts.Debounce {
			settled = append(settled, path)
			delete(w.debounceMap, path)
		}
	}
	w.mu.Unlock()

	slices.Sort(settled)
	for _, rel := range settled {
		w.checkFile(ctx, rel)
	}
}

// Trigger checks files immediately, bypassing the debounce. Useful at
// startup.
func (w *Watcher) Trigger(ctx context.Context, files ...string) {
	for _, rel := range files {
		w.checkFile(ctx, rel)
	}
}

func (w *Watcher) checkFile(ctx context.Context, rel string) {
	if _, err := os.Stat(filepath.Join(w.root, filepath.FromSlash(rel))); errors.Is(err, fs.ErrNotExist) {
		logging.WatchDebug("File removed, skipping check: %s", rel)
		metrics.WatchEvent("removed")
		return
	}

	diags, err := w.check(ctx, rel)
	w.mu.Lock()
	w.stats.ChecksTriggered++
	w.stats.Diagnostics += len(diags)
	if err != nil {
		w.stats.Errors++
	}
	w.mu.Unlock()

	switch {
	case err != nil:
		logging.WatchError("Check of %s failed: %v", rel, err)
		metrics.WatchEvent("error")
	default:
		logging.Watch("Checked %s: %d diagnostics", rel, len(diags))
		metrics.WatchEvent("checked")
	}
	if w.opts.OnResult != nil {
		w.opts.OnResult(Result{Path: rel, Diagnostics: diags, Err: err})
	}
}

// GetStats returns the current watcher statistics.
func (w *Watcher) GetStats() Stats {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.stats
}

// ResetStats clears the statistics.
func (w *Watcher) ResetStats() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.stats = Stats{}
}

// IsWatching reports whether the watcher is running.
func (w *Watcher) IsWatching() bool {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.running
}

// WatchedDirs returns the directories being watched.
func (w *Watcher) WatchedDirs() []string {
	return w.watcher.WatchList()
}
