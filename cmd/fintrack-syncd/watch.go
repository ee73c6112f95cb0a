package main

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

const watchDebounce = 500 * time.Millisecond

// storeWatcher calls refresh after the ledger database changes on disk,
// once per burst of writes.
type storeWatcher struct {
	watcher  *fsnotify.Watcher
	names    map[string]bool
	debounce time.Duration
	refresh  func(context.Context)
}

// newStoreWatcher watches the directory of dbPath: SQLite replaces its
// journal files, so watching the files themselves would miss events.
func newStoreWatcher(dbPath string, debounce time.Duration, refresh func(context.Context)) (*storeWatcher, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create fsnotify watcher: %w", err)
	}
	dir := filepath.Dir(dbPath)
	if err := w.Add(dir); err != nil {
		w.Close()
		return nil, fmt.Errorf("failed to watch %s: %w", dir, err)
	}

	base := filepath.Base(dbPath)
	return &storeWatcher{
		watcher: w,
		names: map[string]bool{
			base:              true,
			base + "-wal":     true,
			base + "-journal": true,
		},
		debounce: debounce,
		refresh:  refresh,
	}, nil
}

// Run processes events until ctx ends, then closes the watcher.
func (w *storeWatcher) Run(ctx context.Context) {
	defer w.watcher.Close()

	var (
		timer *time.Timer
		fire  <-chan time.Time
	)
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return

		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if !w.relevant(event) || timer != nil {
				continue
			}
			timer = time.NewTimer(w.debounce)
			fire = timer.C

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			slog.WarnContext(ctx, "Store watcher error", "error", err)

		case <-fire:
			timer, fire = nil, nil
			w.refresh(ctx)
		}
	}
}

func (w *storeWatcher) relevant(event fsnotify.Event) bool {
	if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
		return false
	}
	return w.names[filepath.Base(event.Name)]
}
