// Package watch implements dev-mode file watching (SPEC_FULL.md §10): it
// batches filesystem change notifications into model.ChangedFile records
// so a Run in dev mode can populate Run.ChangedFiles between builds.
package watch

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/kilnforge/filepool/pkg/model"
)

// Watcher watches a set of root directories and emits batches of
// ChangedFile records, debouncing rapid successive events on the same
// path the way editors and build tools tend to fire them.
type Watcher struct {
	fs      *fsnotify.Watcher
	debounce time.Duration
	exclude  []string

	batches chan []model.ChangedFile
	errors  chan error

	ctx    context.Context
	cancel context.CancelFunc

	mu      sync.Mutex
	pending map[string]model.ChangedFile
	timer   *time.Timer
}

// Config configures a Watcher.
type Config struct {
	// Roots are the directories to watch, non-recursively unless Recursive
	// is set.
	Roots     []string
	Recursive bool
	// Exclude holds filepath.Match glob patterns matched against the base
	// name of a changed path; matches are dropped.
	Exclude []string
	// Debounce coalesces events on the same path arriving within this
	// window into a single batch entry. Defaults to 150ms.
	Debounce time.Duration
}

// New starts watching cfg.Roots and returns a Watcher. Callers must call
// Close when done.
func New(cfg Config) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create file watcher: %w", err)
	}

	debounce := cfg.Debounce
	if debounce <= 0 {
		debounce = 150 * time.Millisecond
	}

	ctx, cancel := context.WithCancel(context.Background())
	w := &Watcher{
		fs:       fsw,
		debounce: debounce,
		exclude:  cfg.Exclude,
		batches:  make(chan []model.ChangedFile, 8),
		errors:   make(chan error, 8),
		ctx:      ctx,
		cancel:   cancel,
		pending:  make(map[string]model.ChangedFile),
	}

	for _, root := range cfg.Roots {
		if err := w.addRoot(root, cfg.Recursive); err != nil {
			fsw.Close()
			cancel()
			return nil, err
		}
	}

	go w.loop()
	return w, nil
}

func (w *Watcher) addRoot(root string, recursive bool) error {
	if err := w.fs.Add(root); err != nil {
		return fmt.Errorf("failed to watch %s: %w", root, err)
	}
	if !recursive {
		return nil
	}
	return filepath.Walk(root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() && path != root && !w.shouldIgnore(path) {
			return w.fs.Add(path)
		}
		return nil
	})
}

// Batches returns the channel of debounced ChangedFile batches.
func (w *Watcher) Batches() <-chan []model.ChangedFile { return w.batches }

// Errors returns the channel of watcher errors (fsnotify failures, not
// ordinary file-not-found races, which are folded into a Deleted change).
func (w *Watcher) Errors() <-chan error { return w.errors }

// Close stops the watcher and releases its fsnotify handle.
func (w *Watcher) Close() error {
	w.cancel()
	err := w.fs.Close()
	close(w.batches)
	close(w.errors)
	return err
}

func (w *Watcher) loop() {
	for {
		select {
		case <-w.ctx.Done():
			return
		case ev, ok := <-w.fs.Events:
			if !ok {
				return
			}
			w.handle(ev)
		case err, ok := <-w.fs.Errors:
			if !ok {
				return
			}
			select {
			case w.errors <- err:
			default:
			}
		}
	}
}

func (w *Watcher) handle(ev fsnotify.Event) {
	if w.shouldIgnore(ev.Name) {
		return
	}

	change, ok := w.classify(ev)
	if !ok {
		return
	}

	if ev.Has(fsnotify.Create) {
		if info, err := os.Stat(ev.Name); err == nil && info.IsDir() {
			_ = w.fs.Add(ev.Name)
			return
		}
	}

	w.mu.Lock()
	// A path created within the current window stays Created when it is
	// then written to.
	if prev, ok := w.pending[ev.Name]; ok && prev.Change == model.Created && change.Change == model.Modified {
		change.Change = model.Created
	}
	w.pending[ev.Name] = change
	if w.timer != nil {
		w.timer.Stop()
	}
	w.timer = time.AfterFunc(w.debounce, w.flush)
	w.mu.Unlock()
}

func (w *Watcher) flush() {
	w.mu.Lock()
	if len(w.pending) == 0 {
		w.mu.Unlock()
		return
	}
	batch := make([]model.ChangedFile, 0, len(w.pending))
	for _, c := range w.pending {
		batch = append(batch, c)
	}
	w.pending = make(map[string]model.ChangedFile)
	w.mu.Unlock()

	select {
	case w.batches <- batch:
	case <-w.ctx.Done():
	}
}

func (w *Watcher) classify(ev fsnotify.Event) (model.ChangedFile, bool) {
	now := time.Now()
	switch {
	case ev.Has(fsnotify.Create):
		return model.ChangedFile{Path: ev.Name, ModifiedAt: &now, Change: model.Created}, true
	case ev.Has(fsnotify.Write):
		return model.ChangedFile{Path: ev.Name, ModifiedAt: &now, Change: model.Modified}, true
	case ev.Has(fsnotify.Remove), ev.Has(fsnotify.Rename):
		return model.ChangedFile{Path: ev.Name, ModifiedAt: &now, Change: model.Deleted}, true
	default:
		return model.ChangedFile{}, false
	}
}

func (w *Watcher) shouldIgnore(path string) bool {
	name := filepath.Base(path)
	for _, pattern := range w.exclude {
		if matched, _ := filepath.Match(pattern, name); matched {
			return true
		}
	}
	return strings.HasPrefix(name, ".")
}
