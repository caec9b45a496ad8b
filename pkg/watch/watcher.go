// Package watch provides follow-mode ingestion: a growing trips CSV is
// monitored and newly appended rows are streamed into the engine.
package watch

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Watcher monitors a file for appended data and triggers reads.
type Watcher struct {
	watcher  *fsnotify.Watcher
	path     string
	mu       sync.Mutex
	debounce time.Duration

	// OnAppend is called after a debounced write burst settles.
	OnAppend func() error

	// OnError receives watch errors that do not stop the loop.
	OnError func(err error)
}

// NewWatcher creates a watcher for path.
func NewWatcher(path string) (*Watcher, error) {
	fsWatcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create watcher: %w", err)
	}

	absPath, err := filepath.Abs(path)
	if err != nil {
		fsWatcher.Close()
		return nil, fmt.Errorf("failed to resolve path: %w", err)
	}
	if _, err := os.Stat(absPath); err != nil {
		fsWatcher.Close()
		return nil, fmt.Errorf("failed to stat file: %w", err)
	}

	// Watch the containing directory; fsnotify is more reliable that way
	// across editors and rename-style writers.
	if err := fsWatcher.Add(filepath.Dir(absPath)); err != nil {
		fsWatcher.Close()
		return nil, fmt.Errorf("failed to watch directory: %w", err)
	}

	return &Watcher{
		watcher:  fsWatcher,
		path:     absPath,
		debounce: 500 * time.Millisecond,
	}, nil
}

// Run blocks until the context is cancelled, invoking OnAppend after
// each settled write burst on the watched file.
func (w *Watcher) Run(ctx context.Context) error {
	var timerMu sync.Mutex
	var timer *time.Timer

	for {
		select {
		case <-ctx.Done():
			w.watcher.Close()
			return ctx.Err()

		case event, ok := <-w.watcher.Events:
			if !ok {
				return nil
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			absPath, err := filepath.Abs(event.Name)
			if err != nil || absPath != w.path {
				continue
			}

			timerMu.Lock()
			if timer != nil {
				timer.Stop()
			}
			timer = time.AfterFunc(w.debounce, func() {
				w.mu.Lock()
				defer w.mu.Unlock()
				if w.OnAppend == nil {
					return
				}
				if err := w.OnAppend(); err != nil && w.OnError != nil {
					w.OnError(err)
				}
			})
			timerMu.Unlock()

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return nil
			}
			if w.OnError != nil {
				w.OnError(err)
			}
		}
	}
}
