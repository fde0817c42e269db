// Package watcher keeps the documents directory and the index in step: it
// watches the directory with fsnotify and re-indexes or drops files as they
// change.
package watcher

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

const defaultDebounce = 400 * time.Millisecond

// Sink receives file changes. Index is called once a file has been quiet for
// the debounce period; Remove when it disappears or is renamed away.
type Sink interface {
	Index(ctx context.Context, path string) error
	Remove(ctx context.Context, path string) error
}

// Watcher watches one documents directory.
type Watcher struct {
	dir       string
	sink      Sink
	accept    func(path string) bool
	recursive bool
	debounce  time.Duration
	logger    *zap.Logger

	mu      sync.Mutex
	pending map[string]*time.Timer
	closed  bool
	wg      sync.WaitGroup
}

// Option configures a Watcher.
type Option func(*Watcher)

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(w *Watcher) {
		if l != nil {
			w.logger = l
		}
	}
}

// WithFilter restricts which files reach the sink. Directories are always
// followed.
func WithFilter(accept func(path string) bool) Option {
	return func(w *Watcher) { w.accept = accept }
}

// WithRecursive also watches subdirectories, including ones created later.
func WithRecursive(recursive bool) Option {
	return func(w *Watcher) { w.recursive = recursive }
}

// WithDebounce sets how long a file must stay unchanged before it is indexed.
func WithDebounce(d time.Duration) Option {
	return func(w *Watcher) {
		if d > 0 {
			w.debounce = d
		}
	}
}

// New returns a watcher for dir that reports to sink.
func New(dir string, sink Sink, opts ...Option) *Watcher {
	w := &Watcher{
		dir:      filepath.Clean(dir),
		sink:     sink,
		accept:   func(string) bool { return true },
		debounce: defaultDebounce,
		logger:   zap.NewNop(),
		pending:  make(map[string]*time.Timer),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Run watches until ctx is cancelled. Pending debounced files are dropped on
// return; Run waits for any sink call already in progress.
func (w *Watcher) Run(ctx context.Context) error {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer fw.Close()

	if err := w.addTree(fw, w.dir); err != nil {
		return err
	}
	w.logger.Info("watching documents", zap.String("dir", w.dir), zap.Bool("recursive", w.recursive))

	defer w.shutdown()
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-fw.Events:
			if !ok {
				return nil
			}
			w.handle(ctx, fw, ev)
		case err, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn("watcher error", zap.Error(err))
		}
	}
}

func (w *Watcher) addTree(fw *fsnotify.Watcher, root string) error {
	if !w.recursive {
		return fw.Add(root)
	}
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return fw.Add(path)
		}
		return nil
	})
}

func (w *Watcher) handle(ctx context.Context, fw *fsnotify.Watcher, ev fsnotify.Event) {
	path := ev.Name
	w.logger.Debug("watcher event", zap.String("op", ev.Op.String()), zap.String("path", path))

	switch {
	case ev.Has(fsnotify.Remove), ev.Has(fsnotify.Rename):
		w.cancel(path)
		if w.accept(path) {
			w.call(ctx, "remove", path, w.sink.Remove)
		}
	case ev.Has(fsnotify.Create), ev.Has(fsnotify.Write):
		info, err := os.Stat(path)
		if err != nil {
			return
		}
		if info.IsDir() {
			if ev.Has(fsnotify.Create) && w.recursive {
				w.newDirectory(ctx, fw, path)
			}
			return
		}
		if info.Mode().IsRegular() && w.accept(path) {
			w.schedule(ctx, path)
		}
	}
}

// newDirectory starts watching a directory that appeared under the root and
// indexes whatever it already holds.
func (w *Watcher) newDirectory(ctx context.Context, fw *fsnotify.Watcher, dir string) {
	if err := w.addTree(fw, dir); err != nil {
		w.logger.Warn("could not watch new directory", zap.String("dir", dir), zap.Error(err))
	}
	_ = filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if d.Type().IsRegular() && w.accept(path) {
			w.schedule(ctx, path)
		}
		return nil
	})
}

func (w *Watcher) schedule(ctx context.Context, path string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if t, ok := w.pending[path]; ok {
		t.Stop()
	}
	w.pending[path] = time.AfterFunc(w.debounce, func() {
		w.mu.Lock()
		delete(w.pending, path)
		w.mu.Unlock()
		w.call(ctx, "index", path, w.sink.Index)
	})
}

func (w *Watcher) call(ctx context.Context, op, path string, fn func(context.Context, string) error) {
	w.mu.Lock()
	if w.closed || ctx.Err() != nil {
		w.mu.Unlock()
		return
	}
	w.wg.Add(1)
	w.mu.Unlock()
	defer w.wg.Done()
	if err := fn(ctx, path); err != nil && !errors.Is(err, context.Canceled) {
		w.logger.Warn("watcher "+op+" failed", zap.String("path", path), zap.Error(err))
	}
}

func (w *Watcher) cancel(path string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if t, ok := w.pending[path]; ok {
		t.Stop()
		delete(w.pending, path)
	}
}

// shutdown drops pending files and waits for sink calls in flight.
func (w *Watcher) shutdown() {
	w.mu.Lock()
	w.closed = true
	for path, t := range w.pending {
		t.Stop()
		delete(w.pending, path)
	}
	w.mu.Unlock()
	w.wg.Wait()
}
