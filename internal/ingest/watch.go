package ingest

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// WatchOptions configures a corpus watcher.
type WatchOptions struct {
	// DebounceWindow is how long to wait after the last event before
	// emitting a batch. Defaults to 500ms.
	DebounceWindow time.Duration

	// ExcludePatterns are glob patterns for paths to ignore, in
	// addition to the built-in .git and .cividex exclusions.
	ExcludePatterns []string
}

func (o WatchOptions) withDefaults() WatchOptions {
	if o.DebounceWindow <= 0 {
		o.DebounceWindow = 500 * time.Millisecond
	}
	return o
}

// Watcher observes a corpus directory tree and emits debounced batches
// of file events. New subdirectories are picked up as they appear.
type Watcher struct {
	rootDir   string
	opts      WatchOptions
	fsw       *fsnotify.Watcher
	debouncer *Debouncer
	events    chan []FileEvent
	errors    chan error
	stopOnce  sync.Once
	stopped   chan struct{}
}

// NewWatcher creates a watcher for the given corpus root.
func NewWatcher(rootDir string, opts WatchOptions) (*Watcher, error) {
	absRoot, err := filepath.Abs(rootDir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve root: %w", err)
	}
	info, err := os.Stat(absRoot)
	if err != nil {
		return nil, fmt.Errorf("failed to stat root: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("root is not a directory: %s", absRoot)
	}

	opts = opts.withDefaults()
	return &Watcher{
		rootDir:   absRoot,
		opts:      opts,
		debouncer: NewDebouncer(opts.DebounceWindow),
		events:    make(chan []FileEvent, 10),
		errors:    make(chan error, 10),
		stopped:   make(chan struct{}),
	}, nil
}

// Start watches the corpus until the context is canceled or Stop is
// called. It blocks; run it in a goroutine.
func (w *Watcher) Start(ctx context.Context) error {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	w.fsw = fsw
	defer fsw.Close()
	defer w.debouncer.Stop()

	if err := w.addRecursive(w.rootDir); err != nil {
		return fmt.Errorf("failed to watch %s: %w", w.rootDir, err)
	}

	go w.forwardDebounced()

	slog.Debug("watch_started", "root", w.rootDir)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-w.stopped:
			return nil
		case event, ok := <-fsw.Events:
			if !ok {
				return nil
			}
			w.handleEvent(event)
		case err, ok := <-fsw.Errors:
			if !ok {
				return nil
			}
			w.emitError(err)
		}
	}
}

// Events returns the channel debounced batches arrive on. It closes
// after Start returns.
func (w *Watcher) Events() <-chan []FileEvent {
	return w.events
}

// Errors returns the channel watch errors arrive on.
func (w *Watcher) Errors() <-chan error {
	return w.errors
}

// Stop terminates the watch loop. Safe to call more than once.
func (w *Watcher) Stop() {
	w.stopOnce.Do(func() {
		close(w.stopped)
	})
}

// handleEvent translates a raw fsnotify event into a debounced
// FileEvent, ignoring paths and operations the index does not care
// about.
func (w *Watcher) handleEvent(event fsnotify.Event) {
	rel, err := filepath.Rel(w.rootDir, event.Name)
	if err != nil {
		return
	}

	if w.shouldIgnore(rel) {
		return
	}

	// Removed or renamed-away paths cannot be stat'd.
	info, statErr := os.Stat(event.Name)
	isDir := statErr == nil && info.IsDir()

	var op Operation
	switch {
	case event.Op&fsnotify.Create != 0:
		op = OpCreate
		if isDir {
			// A moved-in directory arrives as one create event; watch
			// it so changes inside are seen from now on.
			if err := w.addRecursive(event.Name); err != nil {
				w.emitError(err)
			}
		}
	case event.Op&fsnotify.Write != 0:
		op = OpModify
	case event.Op&fsnotify.Remove != 0:
		op = OpDelete
	case event.Op&fsnotify.Rename != 0:
		op = OpRename
	default:
		// Chmod does not change content.
		return
	}

	if !isDir && !isCorpusEvent(rel) {
		return
	}

	w.debouncer.Add(FileEvent{
		Path:      filepath.ToSlash(rel),
		Operation: op,
		IsDir:     isDir,
		Timestamp: time.Now(),
	})
}

// isCorpusEvent reports whether a path could affect the index. Paths
// without an extension pass because a removed directory cannot be
// stat'd to prove it was one.
func isCorpusEvent(rel string) bool {
	ext := strings.ToLower(filepath.Ext(rel))
	return ext == "" || ext == ".md" || ext == ".txt"
}

// shouldIgnore reports whether a corpus-relative path is excluded from
// watching.
func (w *Watcher) shouldIgnore(rel string) bool {
	if rel == "" || rel == "." {
		return true
	}

	sep := string(filepath.Separator)
	if rel == ".git" || strings.HasPrefix(rel, ".git"+sep) {
		return true
	}
	if rel == ".cividex" || strings.HasPrefix(rel, ".cividex"+sep) {
		return true
	}

	baseName := filepath.Base(rel)
	for _, pattern := range w.opts.ExcludePatterns {
		if matchDirPattern(rel, pattern) || matchFilePattern(baseName, rel, pattern) {
			return true
		}
	}
	return false
}

// addRecursive registers a directory and everything under it.
func (w *Watcher) addRecursive(dir string) error {
	return filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			// Unreadable subtree; watch what we can.
			return nil
		}
		if !d.IsDir() {
			return nil
		}

		rel, relErr := filepath.Rel(w.rootDir, path)
		if relErr != nil {
			return nil
		}
		if rel != "." && w.shouldIgnore(rel) {
			return fs.SkipDir
		}

		if err := w.fsw.Add(path); err != nil {
			slog.Debug("watch_add_failed", "path", path, "error", err)
		}
		return nil
	})
}

// forwardDebounced relays debouncer batches to the public channel.
func (w *Watcher) forwardDebounced() {
	for batch := range w.debouncer.Events() {
		select {
		case w.events <- batch:
		default:
			slog.Warn("watch_batch_dropped", "events", len(batch))
		}
	}
	close(w.events)
}

// emitError delivers a watch error without blocking the event loop.
func (w *Watcher) emitError(err error) {
	select {
	case w.errors <- err:
	default:
		slog.Warn("watch_error_dropped", "error", err)
	}
}
