// Package worker runs periodic background jobs.
package worker

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// Job is one run of a scheduled task.
type Job func(ctx context.Context)

// Scheduler runs a Job every interval until stopped. A run in progress is
// allowed to finish; ticks that fire during a run are dropped.
type Scheduler struct {
	name     string
	interval time.Duration
	job      Job

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	doneCh  chan struct{}
}

func NewScheduler(name string, interval time.Duration, job Job) *Scheduler {
	return &Scheduler{
		name:     name,
		interval: interval,
		job:      job,
	}
}

// Start begins the loop. Returns an error if already running.
func (s *Scheduler) Start(ctx context.Context) error {
	if s.interval <= 0 {
		return fmt.Errorf("scheduler %s: interval must be positive, got %s", s.name, s.interval)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return fmt.Errorf("scheduler %s is already running", s.name)
	}
	loopCtx, cancel := context.WithCancel(ctx)
	s.running = true
	s.cancel = cancel
	s.doneCh = make(chan struct{})

	go s.runLoop(loopCtx, s.doneCh)

	slog.DebugContext(ctx, "Scheduler started", "name", s.name, "interval", s.interval)
	return nil
}

// Stop cancels the loop and waits for the current run, if any. Stopping a
// scheduler that is not running is a no-op.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	cancel, done := s.cancel, s.doneCh
	s.mu.Unlock()

	cancel()
	<-done
	slog.Debug("Scheduler stopped", "name", s.name)
}

// Running reports whether the loop is active.
func (s *Scheduler) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

func (s *Scheduler) runLoop(ctx context.Context, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.run(ctx)
		}
	}
}

func (s *Scheduler) run(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			slog.ErrorContext(ctx, "Scheduled job panicked", "name", s.name, "panic", r)
		}
	}()
	s.job(ctx)
}
