package settings

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"instabridge/pkg/logger"
)

// Watcher calls a function whenever the settings file changes on disk.
// Bursts of events within the debounce window collapse into one call.
type Watcher struct {
	path     string
	onChange func()
	debounce time.Duration
	watcher  *fsnotify.Watcher
	logger   logger.Logger

	mu     sync.Mutex
	timer  *time.Timer
	closed bool
}

// NewWatcher creates a watcher for the settings file at path
func NewWatcher(path string, debounce time.Duration, onChange func(), log logger.Logger) (*Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create file watcher: %w", err)
	}

	absPath, err := filepath.Abs(path)
	if err != nil {
		fw.Close()
		return nil, fmt.Errorf("failed to resolve settings path: %w", err)
	}
	if log == nil {
		log = logger.GetLogger()
	}

	return &Watcher{
		path:     absPath,
		onChange: onChange,
		debounce: debounce,
		watcher:  fw,
		logger:   log,
	}, nil
}

// Start watches the directory holding the settings file until ctx is done.
// The directory is watched rather than the file so atomic renames are seen.
func (w *Watcher) Start(ctx context.Context) error {
	dir := filepath.Dir(w.path)
	if err := w.watcher.Add(dir); err != nil {
		return fmt.Errorf("failed to watch settings directory %s: %w", dir, err)
	}

	w.logger.InfoWithFields("Watching settings", map[string]interface{}{"path": w.path})
	go w.loop(ctx)
	return nil
}

// Close stops the watcher
func (w *Watcher) Close() error {
	w.mu.Lock()
	w.closed = true
	if w.timer != nil {
		w.timer.Stop()
	}
	w.mu.Unlock()
	return w.watcher.Close()
}

func (w *Watcher) loop(ctx context.Context) {
	name := filepath.Base(w.path)
	for {
		select {
		case <-ctx.Done():
			w.Close()
			return
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if filepath.Base(event.Name) != name {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) != 0 {
				w.logger.DebugWithFields("Settings change detected", map[string]interface{}{
					"file": event.Name,
					"op":   event.Op.String(),
				})
				w.trigger()
			}
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.ErrorWithFields("Settings watcher error", map[string]interface{}{"error": err.Error()})
		}
	}
}

func (w *Watcher) trigger() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return
	}
	if w.timer != nil {
		w.timer.Stop()
	}
	w.timer = time.AfterFunc(w.debounce, w.onChange)
}
