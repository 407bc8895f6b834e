package panel

import (
	"context"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/craftdeck/craftdeck/internal/observability"
)

// dirWatcher watches per-server config directories and fires the scan
// callback after events settle. Events for one server within the
// debounce window coalesce into a single scan.
type dirWatcher struct {
	baseDir  string
	debounce time.Duration
	logger   *observability.Logger
	onChange func(serverID string)

	fs   *fsnotify.Watcher
	done chan struct{}

	mu      sync.Mutex
	pending map[string]*time.Timer
	closed  bool
}

func newDirWatcher(baseDir string, debounce time.Duration, logger *observability.Logger, onChange func(serverID string)) (*dirWatcher, error) {
	fs, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if debounce <= 0 {
		debounce = 2 * time.Second
	}
	return &dirWatcher{
		baseDir:  baseDir,
		debounce: debounce,
		logger:   logger,
		onChange: onChange,
		fs:       fs,
		done:     make(chan struct{}),
		pending:  make(map[string]*time.Timer),
	}, nil
}

// WatchServer starts watching one server's config directory.
func (w *dirWatcher) WatchServer(serverID string) error {
	return w.fs.Add(filepath.Join(w.baseDir, serverID))
}

// UnwatchServer stops watching and drops any pending debounce timer.
func (w *dirWatcher) UnwatchServer(serverID string) {
	_ = w.fs.Remove(filepath.Join(w.baseDir, serverID))
	w.mu.Lock()
	if timer, ok := w.pending[serverID]; ok {
		timer.Stop()
		delete(w.pending, serverID)
	}
	w.mu.Unlock()
}

// Start runs the event loop until Close.
func (w *dirWatcher) Start() {
	go w.loop()
}

func (w *dirWatcher) loop() {
	ctx := context.Background()
	for {
		select {
		case <-w.done:
			return
		case event, ok := <-w.fs.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename|fsnotify.Remove) == 0 {
				continue
			}
			serverID := w.serverFor(event.Name)
			if serverID == "" {
				continue
			}
			w.schedule(serverID)
		case err, ok := <-w.fs.Errors:
			if !ok {
				return
			}
			w.logger.Warn(ctx, "file watcher error", "error", err)
		}
	}
}

// serverFor maps an event path back to the server directory it lives in.
func (w *dirWatcher) serverFor(path string) string {
	rel, err := filepath.Rel(w.baseDir, path)
	if err != nil || strings.HasPrefix(rel, "..") {
		return ""
	}
	parts := strings.SplitN(filepath.ToSlash(rel), "/", 2)
	if len(parts) == 0 || parts[0] == "." || parts[0] == "" {
		return ""
	}
	return parts[0]
}

func (w *dirWatcher) schedule(serverID string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return
	}
	if timer, ok := w.pending[serverID]; ok {
		timer.Reset(w.debounce)
		return
	}
	w.pending[serverID] = time.AfterFunc(w.debounce, func() {
		w.mu.Lock()
		delete(w.pending, serverID)
		closed := w.closed
		w.mu.Unlock()
		if closed {
			return
		}
		w.onChange(serverID)
	})
}

// Close stops the loop and cancels pending timers.
func (w *dirWatcher) Close() {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return
	}
	w.closed = true
	for serverID, timer := range w.pending {
		timer.Stop()
		delete(w.pending, serverID)
	}
	w.mu.Unlock()

	close(w.done)
	_ = w.fs.Close()
}
