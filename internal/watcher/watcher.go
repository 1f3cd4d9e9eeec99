// Package watcher ingests files dropped into watched directories.
package watcher

import (
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

const defaultDebounce = 400 * time.Millisecond

// Watcher watches drop directories and invokes callbacks for changed and
// removed files. Write bursts are debounced per path so a file copied in
// chunks is ingested once.
type Watcher struct {
	roots      []string
	extensions []string
	recursive  bool
	onIngest   func(path string)
	onRemove   func(path string)
	logger     *zap.Logger

	debounce time.Duration
	fsw      *fsnotify.Watcher
	mu       sync.Mutex
	timers   map[string]*time.Timer
	done     chan struct{}
	stopOnce sync.Once
}

// New creates a watcher over roots. extensions filters which files trigger
// callbacks (empty means all). Callbacks run on the watcher goroutine after
// the debounce window.
func New(roots, extensions []string, recursive bool, onIngest, onRemove func(path string), logger *zap.Logger) *Watcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Watcher{
		roots:      roots,
		extensions: extensions,
		recursive:  recursive,
		onIngest:   onIngest,
		onRemove:   onRemove,
		logger:     logger,
		debounce:   defaultDebounce,
		timers:     make(map[string]*time.Timer),
		done:       make(chan struct{}),
	}
}

// Start begins watching and returns; events are handled on a background
// goroutine until Stop. Existing files under the roots are ingested first,
// so a directory pre-filled before startup is not missed.
func (w *Watcher) Start() error {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	w.fsw = fsw
	for _, root := range w.roots {
		if err := w.addRoot(root); err != nil {
			_ = fsw.Close()
			return err
		}
	}
	go w.loop()
	return nil
}

// Stop stops the watcher. Pending debounced callbacks are dropped.
func (w *Watcher) Stop() {
	w.stopOnce.Do(func() {
		close(w.done)
		if w.fsw != nil {
			_ = w.fsw.Close()
		}
		w.mu.Lock()
		for _, t := range w.timers {
			t.Stop()
		}
		w.timers = make(map[string]*time.Timer)
		w.mu.Unlock()
	})
}

func (w *Watcher) addRoot(root string) error {
	walk := func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if path != root && !w.recursive {
				return fs.SkipDir
			}
			return w.fsw.Add(path)
		}
		if w.wanted(path) {
			w.scheduleIngest(path)
		}
		return nil
	}
	if err := filepath.WalkDir(root, walk); err != nil {
		return err
	}
	w.logger.Info("watching directory", zap.String("root", root), zap.Bool("recursive", w.recursive))
	return nil
}

func (w *Watcher) loop() {
	for {
		select {
		case <-w.done:
			return
		case event, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			w.handle(event)
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			w.logger.Warn("watch error", zap.Error(err))
		}
	}
}

func (w *Watcher) handle(event fsnotify.Event) {
	path := event.Name
	if event.Op&(fsnotify.Remove|fsnotify.Rename) != 0 {
		if w.wanted(path) && w.onRemove != nil {
			w.logger.Debug("file removed", zap.String("path", path))
			w.onRemove(path)
		}
		return
	}
	if event.Op&(fsnotify.Create|fsnotify.Write) == 0 {
		return
	}
	if info, err := os.Stat(path); err == nil && info.IsDir() {
		if w.recursive && event.Op&fsnotify.Create != 0 {
			if err := w.fsw.Add(path); err != nil {
				w.logger.Warn("watch new directory", zap.String("path", path), zap.Error(err))
			}
		}
		return
	}
	if w.wanted(path) {
		w.scheduleIngest(path)
	}
}

// scheduleIngest (re)arms the debounce timer for path.
func (w *Watcher) scheduleIngest(path string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if t, ok := w.timers[path]; ok {
		t.Stop()
	}
	w.timers[path] = time.AfterFunc(w.debounce, func() {
		w.mu.Lock()
		delete(w.timers, path)
		w.mu.Unlock()
		select {
		case <-w.done:
			return
		default:
		}
		w.logger.Debug("file changed", zap.String("path", path))
		if w.onIngest != nil {
			w.onIngest(path)
		}
	})
}

func (w *Watcher) wanted(path string) bool {
	if len(w.extensions) == 0 {
		return true
	}
	ext := strings.ToLower(filepath.Ext(path))
	for _, e := range w.extensions {
		if ext == strings.ToLower(e) {
			return true
		}
	}
	return false
}
