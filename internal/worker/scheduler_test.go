package worker

import (
	"context"
	"sync/atomic"
	"testing"
	"time"
)

func TestSchedulerRunsUntilStopped(t *testing.T) {
	var runs atomic.Int32
	s := NewScheduler("test", 5*time.Millisecond, func(context.Context) {
		runs.Add(1)
	})

	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if err := s.Start(context.Background()); err == nil {
		t.Fatal("second Start() should fail")
	}
	if !s.Running() {
		t.Fatal("expected scheduler to be running")
	}

	deadline := time.Now().Add(2 * time.Second)
	for runs.Load() < 3 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	if runs.Load() < 3 {
		t.Fatalf("job ran %d times", runs.Load())
	}

	s.Stop()
	if s.Running() {
		t.Fatal("expected scheduler to be stopped")
	}
	after := runs.Load()
	time.Sleep(20 * time.Millisecond)
	if runs.Load() != after {
		t.Fatal("job ran after Stop")
	}

	s.Stop()
}

func TestSchedulerRestart(t *testing.T) {
	var runs atomic.Int32
	s := NewScheduler("restart", 5*time.Millisecond, func(context.Context) { runs.Add(1) })
	if err := s.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	s.Stop()
	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("restart failed: %v", err)
	}
	defer s.Stop()
}

func TestSchedulerSurvivesPanics(t *testing.T) {
	var runs atomic.Int32
	s := NewScheduler("panicky", 5*time.Millisecond, func(context.Context) {
		runs.Add(1)
		panic("boom")
	})
	if err := s.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	defer s.Stop()

	deadline := time.Now().Add(2 * time.Second)
	for runs.Load() < 2 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	if runs.Load() < 2 {
		t.Fatal("scheduler did not keep running after a panic")
	}
}

func TestSchedulerRejectsZeroInterval(t *testing.T) {
	s := NewScheduler("zero", 0, func(context.Context) {})
	if err := s.Start(context.Background()); err == nil {
		t.Fatal("expected error for zero interval")
	}
}

func TestSchedulerStopsWithParentContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	s := NewScheduler("parent", time.Hour, func(context.Context) {})
	if err := s.Start(ctx); err != nil {
		t.Fatal(err)
	}
	cancel()
	s.Stop()
}
