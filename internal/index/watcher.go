package index

import (
	"context"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"mira/internal/logging"
)

const debounceWindow = 500 * time.Millisecond

// Watcher is the incremental re-index entry point: it debounces fsnotify
// events per project (~500ms, per spec.md §4.4) and folds settled paths
// through Indexer.IndexFile / RemoveFile.
//
// Grounded on the teacher's internal/core/mangle_watcher.go debounce-map
// + ticker loop, retargeted from .mg files to the registry's recognized
// source extensions.
type Watcher struct {
	ix        *Indexer
	reg       *Registry
	projectID int64
	root      string

	fsw      *fsnotify.Watcher
	mu       sync.Mutex
	pending  map[string]time.Time
	stopCh   chan struct{}
	doneCh   chan struct{}
}

func NewWatcher(ix *Indexer, reg *Registry, projectID int64, root string) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	return &Watcher{
		ix:        ix,
		reg:       reg,
		projectID: projectID,
		root:      root,
		fsw:       fsw,
		pending:   make(map[string]time.Time),
		stopCh:    make(chan struct{}),
		doneCh:    make(chan struct{}),
	}, nil
}

// Start adds every directory under root to the watch set and begins the
// debounce loop. Non-blocking.
func (w *Watcher) Start(ctx context.Context) error {
	if err := w.addDirs(w.root); err != nil {
		logging.IndexError("watcher: failed to watch %s: %v", w.root, err)
	}
	go w.run(ctx)
	return nil
}

func (w *Watcher) Stop() {
	close(w.stopCh)
	<-w.doneCh
	w.fsw.Close()
}

func (w *Watcher) addDirs(root string) error {
	return eachDir(root, func(dir string) {
		if err := w.fsw.Add(dir); err != nil {
			logging.IndexDebug("watcher: could not watch %s: %v", dir, err)
		}
	})
}

func eachDir(root string, fn func(dir string)) error {
	entries, err := os.ReadDir(root)
	if err != nil {
		return err
	}
	fn(root)
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		name := e.Name()
		if alwaysSkippedDirs[name] || strings.HasPrefix(name, ".") {
			continue
		}
		eachDir(root+string(os.PathSeparator)+name, fn)
	}
	return nil
}

func (w *Watcher) run(ctx context.Context) {
	defer close(w.doneCh)
	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-w.stopCh:
			return
		case ev, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			w.handleEvent(ev)
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			logging.IndexError("watcher error: %v", err)
		case <-ticker.C:
			w.flushSettled(ctx)
		}
	}
}

func (w *Watcher) handleEvent(ev fsnotify.Event) {
	if w.reg.For(ev.Name) == nil {
		return
	}
	w.mu.Lock()
	w.pending[ev.Name] = time.Now()
	w.mu.Unlock()
}

func (w *Watcher) flushSettled(ctx context.Context) {
	now := time.Now()
	w.mu.Lock()
	var settled []string
	for path, t := range w.pending {
		if now.Sub(t) >= debounceWindow {
			settled = append(settled, path)
			delete(w.pending, path)
		}
	}
	w.mu.Unlock()

	for _, path := range settled {
		content, err := os.ReadFile(path)
		if err != nil {
			// File removed or unreadable: treat as a deletion.
			if rmErr := w.ix.RemoveFile(ctx, w.projectID, path); rmErr != nil {
				logging.IndexError("watcher: remove %s failed: %v", path, rmErr)
			}
			continue
		}
		if err := w.ix.IndexFile(ctx, w.projectID, path, content); err != nil {
			logging.IndexError("watcher: reindex %s failed: %v", path, err)
		}
	}
}
