// Package queue holds local mutations waiting to be applied to the remote
// store. At most one entry exists per (entity type, id): a newer change for the
// same entity replaces the older one. Every mutation is persisted before the
// call returns, so a restart in the middle of a drain loses nothing.
//
// The queue keeps no state of its own. Processes sharing a store see one
// queue, and an acknowledgement only removes the exact entry that was applied.
package queue

import (
	"context"
	"log/slog"
	"math"

	"fintrack/internal/core"
	"fintrack/internal/log"
)

// Persister is the durable home of the queue. Each call must be atomic with
// respect to every other user of the same store.
type Persister interface {
	// PendingChanges returns the queue in enqueue order.
	PendingChanges() []core.QueuedChange
	// PutPendingChange replaces any entry for the same entity and appends c.
	PutPendingChange(c core.PendingChange) (replaced bool)
	// AckPendingChange removes the entry with seq if it is still queued.
	AckPendingChange(seq uint64)
	ClearPendingChanges()
	// PendingMark returns the highest sequence issued so far.
	PendingMark() uint64
}

// ApplyFunc applies one change to the remote store.
type ApplyFunc func(ctx context.Context, change core.PendingChange) error

// Outcome summarises a drain pass.
type Outcome struct {
	Applied int
	Failed  int
	// LastErr is the error of the last failed change, or the context error
	// when the pass was interrupted.
	LastErr error
}

// Queue is safe for concurrent use when its Persister is.
type Queue struct {
	store Persister
}

func New(store Persister) *Queue {
	return &Queue{store: store}
}

// Enqueue replaces any entry for the same entity and appends change.
func (q *Queue) Enqueue(change core.PendingChange) {
	if q.store.PutPendingChange(change) {
		slog.Debug("Pending change superseded",
			"entity", change.EntityType,
			"id", change.ID,
			"operation", change.Operation)
	}
}

// Mark returns a position in the queue; DrainUpTo(mark) ignores entries
// enqueued after it.
func (q *Queue) Mark() uint64 {
	return q.store.PendingMark()
}

// Drain applies a snapshot of the queue in enqueue order. Applied entries are
// removed unless they were superseded while being applied; failed entries stay
// for the next pass. Entries enqueued during the pass are left for the next one.
func (q *Queue) Drain(ctx context.Context, apply ApplyFunc) Outcome {
	return q.DrainUpTo(ctx, math.MaxUint64, apply)
}

// DrainUpTo is Drain restricted to entries enqueued no later than mark.
func (q *Queue) DrainUpTo(ctx context.Context, mark uint64, apply ApplyFunc) Outcome {
	var out Outcome
	for _, e := range q.store.PendingChanges() {
		if e.Seq > mark {
			continue
		}
		if err := ctx.Err(); err != nil {
			out.LastErr = err
			return out
		}
		if err := apply(ctx, e.PendingChange); err != nil {
			fields := log.NewFields().
				WithComponent(log.ComponentQueue).
				WithOperation(string(e.Operation)).
				WithChange(string(e.EntityType), e.ID).
				WithError(err)
			slog.WarnContext(ctx, "Pending change failed, keeping it queued", fields.ToSlice()...)
			out.Failed++
			out.LastErr = err
			continue
		}
		out.Applied++
		q.store.AckPendingChange(e.Seq)
	}
	return out
}

// Len returns the number of pending changes.
func (q *Queue) Len() int {
	return len(q.store.PendingChanges())
}

// Snapshot returns the pending changes in enqueue order.
func (q *Queue) Snapshot() []core.PendingChange {
	entries := q.store.PendingChanges()
	out := make([]core.PendingChange, len(entries))
	for i, e := range entries {
		out[i] = e.PendingChange
	}
	return out
}

// Clear drops every pending change.
func (q *Queue) Clear() {
	q.store.ClearPendingChanges()
}
