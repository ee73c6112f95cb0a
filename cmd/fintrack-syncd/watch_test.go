package main

import (
	"context"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/fsnotify/fsnotify"
)

func TestStoreWatcherRelevant(t *testing.T) {
	dir := t.TempDir()
	w, err := newStoreWatcher(filepath.Join(dir, "ledger.db"), time.Millisecond, func(context.Context) {})
	if err != nil {
		t.Fatal(err)
	}
	defer w.watcher.Close()

	tests := []struct {
		name  string
		event fsnotify.Event
		want  bool
	}{
		{"database write", fsnotify.Event{Name: filepath.Join(dir, "ledger.db"), Op: fsnotify.Write}, true},
		{"wal created", fsnotify.Event{Name: filepath.Join(dir, "ledger.db-wal"), Op: fsnotify.Create}, true},
		{"journal removed", fsnotify.Event{Name: filepath.Join(dir, "ledger.db-journal"), Op: fsnotify.Remove}, false},
		{"other file", fsnotify.Event{Name: filepath.Join(dir, "fintrack.log"), Op: fsnotify.Write}, false},
		{"chmod", fsnotify.Event{Name: filepath.Join(dir, "ledger.db"), Op: fsnotify.Chmod}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := w.relevant(tt.event); got != tt.want {
				t.Errorf("relevant(%v) = %v, want %v", tt.event, got, tt.want)
			}
		})
	}
}

func TestStoreWatcherRefreshesOncePerBurst(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "ledger.db")
	var calls atomic.Int32
	refreshed := make(chan struct{}, 8)
	w, err := newStoreWatcher(path, 200*time.Millisecond, func(context.Context) {
		calls.Add(1)
		refreshed <- struct{}{}
	})
	if err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		w.Run(ctx)
	}()
	defer func() {
		cancel()
		<-done
	}()

	for i := 0; i < 3; i++ {
		if err := os.WriteFile(path, []byte{byte(i)}, 0o644); err != nil {
			t.Fatal(err)
		}
	}
	if err := os.WriteFile(filepath.Join(dir, "unrelated.txt"), []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}

	select {
	case <-refreshed:
	case <-time.After(5 * time.Second):
		t.Fatal("refresh not called after the database changed")
	}
	time.Sleep(500 * time.Millisecond)
	if n := calls.Load(); n != 1 {
		t.Errorf("refresh called %d times, want 1", n)
	}
}
