package services

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"fintrack/internal/core"
	"fintrack/internal/queue"
	"fintrack/internal/remote"
)

// maxDrainPasses bounds how often one drain re-runs to pick up changes
// enqueued while it was applying earlier ones.
const maxDrainPasses = 3

// Drain replays pending changes against the remote store. It does nothing
// unless the engine is connected, the network is reachable and changes are
// pending. Concurrent calls share one pass.
func (e *SyncEngine) Drain(ctx context.Context) error {
	_, err, _ := e.drains.Do("drain", func() (any, error) {
		e.passMu.Lock()
		defer e.passMu.Unlock()
		return nil, e.drain(ctx)
	})
	return err
}

func (e *SyncEngine) drain(ctx context.Context) error {
	e.mu.Lock()
	sess := e.conn
	reachable := e.state.IsNetworkReachable
	needsFull := e.needsFullSync
	e.mu.Unlock()

	if sess == nil || !reachable {
		return nil
	}
	if needsFull {
		if err := e.fullSync(ctx, sess); err != nil {
			return err
		}
	}
	if e.queue.Len() == 0 {
		return nil
	}

	e.setStatus(core.StatusSyncing)
	ctx, cancel := bind(ctx, sess)
	defer cancel()

	var out queue.Outcome
	for pass := 0; pass < maxDrainPasses; pass++ {
		out = e.queue.Drain(ctx, func(ctx context.Context, c core.PendingChange) error {
			return e.apply(ctx, sess, c)
		})
		if out.Failed > 0 || out.LastErr != nil || e.queue.Len() == 0 {
			break
		}
	}

	if !e.current(sess.gen) {
		return errStale
	}
	if n := e.queue.Len(); n > 0 {
		err := out.LastErr
		if err == nil {
			err = fmt.Errorf("%d changes still pending", n)
		}
		slog.WarnContext(ctx, "Sync pass left changes pending",
			"applied", out.Applied,
			"failed", out.Failed,
			"pending", n,
			"error", err)
		e.fail(sess.gen, err)
		return err
	}

	slog.InfoContext(ctx, "Pending changes synced", "applied", out.Applied)
	e.succeed(sess.gen)
	return nil
}

// FullSync pushes the whole local ledger and settings to the remote store and
// clears the queue. Pending deletes are replayed; one that fails stays queued.
func (e *SyncEngine) FullSync(ctx context.Context) error {
	sess := e.session()
	if sess == nil {
		return ErrNotConnected
	}
	e.passMu.Lock()
	err := e.fullSync(ctx, sess)
	e.passMu.Unlock()

	if err == nil && e.queue.Len() > 0 {
		e.triggerDrain()
	}
	return err
}

// SyncNow is the manual "sync now" action. It fails with ErrOffline while
// the network is unreachable; pending changes stay queued.
func (e *SyncEngine) SyncNow(ctx context.Context) error {
	if !e.Connected() {
		return ErrNotConnected
	}
	if !e.State().IsNetworkReachable {
		return ErrOffline
	}
	e.settle()
	return e.FullSync(ctx)
}

func (e *SyncEngine) fullSync(ctx context.Context, sess *session) error {
	e.setStatus(core.StatusSyncing)
	ctx, cancel := bind(ctx, sess)
	defer cancel()

	// Entries enqueued after the mark are not covered by the snapshot.
	mark := e.queue.Mark()
	snap := e.localSnapshot()
	settings := e.store.Settings()

	if err := e.pushAll(ctx, sess, snap, settings); err != nil {
		if !e.current(sess.gen) {
			return errStale
		}
		e.mu.Lock()
		e.needsFullSync = true
		e.mu.Unlock()
		slog.WarnContext(ctx, "Full sync failed", "error", err)
		e.fail(sess.gen, err)
		return err
	}

	e.mu.Lock()
	e.needsFullSync = false
	e.mu.Unlock()

	out := e.queue.DrainUpTo(ctx, mark, func(ctx context.Context, c core.PendingChange) error {
		if c.Operation == core.OpDelete {
			return e.apply(ctx, sess, c)
		}
		if !e.current(sess.gen) {
			return errStale
		}
		return nil
	})
	if !e.current(sess.gen) {
		return errStale
	}
	if out.Failed > 0 || out.LastErr != nil {
		e.fail(sess.gen, out.LastErr)
		return out.LastErr
	}

	slog.InfoContext(ctx, "Full sync completed",
		"transactions", len(snap.Transactions),
		"budgets", len(snap.Budgets),
		"categories", len(snap.Categories))
	e.succeed(sess.gen)
	return nil
}

func (e *SyncEngine) pushAll(ctx context.Context, sess *session, snap Snapshot, settings core.UserSettings) error {
	id := e.store.InstallationID()
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		rows := toRows(snap.Transactions, func(t core.Transaction) remote.Row { return remote.NewTransactionRow(id, t) })
		return sess.client.Upsert(gctx, remote.TableTransactions, rows, remote.ConflictID)
	})
	g.Go(func() error {
		rows := toRows(snap.Budgets, func(b core.Budget) remote.Row { return remote.NewBudgetRow(id, b) })
		return sess.client.Upsert(gctx, remote.TableBudgets, rows, remote.ConflictID)
	})
	g.Go(func() error {
		rows := toRows(snap.Categories, func(c core.Category) remote.Row { return remote.NewCategoryRow(id, c) })
		return sess.client.Upsert(gctx, remote.TableCategories, rows, remote.ConflictID)
	})
	g.Go(func() error {
		row := remote.NewSettingsRow(id, settings)
		return sess.client.Upsert(gctx, remote.TableSettings, []remote.Row{row}, remote.ConflictInstallationID)
	})
	return g.Wait()
}

// pull fetches this installation's collections from the remote store. Rows
// that fail validation are logged and skipped.
func (e *SyncEngine) pull(ctx context.Context, client remote.Client) (Snapshot, error) {
	filter := remote.ByInstallation(e.store.InstallationID())
	var snap Snapshot

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		raw, err := client.Select(gctx, remote.TableTransactions, filter)
		if err != nil {
			return fmt.Errorf("pull transactions: %w", err)
		}
		txs, derr := remote.DecodeTransactions(raw)
		logRejected(gctx, remote.TableTransactions, derr)
		snap.Transactions = txs
		return nil
	})
	g.Go(func() error {
		raw, err := client.Select(gctx, remote.TableBudgets, filter)
		if err != nil {
			return fmt.Errorf("pull budgets: %w", err)
		}
		budgets, derr := remote.DecodeBudgets(raw)
		logRejected(gctx, remote.TableBudgets, derr)
		snap.Budgets = budgets
		return nil
	})
	g.Go(func() error {
		raw, err := client.Select(gctx, remote.TableCategories, filter)
		if err != nil {
			return fmt.Errorf("pull categories: %w", err)
		}
		cats, derr := remote.DecodeCategories(raw)
		logRejected(gctx, remote.TableCategories, derr)
		snap.Categories = cats
		return nil
	})
	if err := g.Wait(); err != nil {
		return Snapshot{}, err
	}
	return snap, nil
}

func logRejected(ctx context.Context, table string, err error) {
	if err != nil {
		slog.WarnContext(ctx, "Rejected malformed remote rows", "table", table, "error", err)
	}
}

// apply translates one pending change into a remote call.
func (e *SyncEngine) apply(ctx context.Context, sess *session, c core.PendingChange) error {
	if !e.current(sess.gen) {
		return errStale
	}

	if c.Operation == core.OpDelete {
		table, ok := tableFor(c.EntityType)
		if !ok {
			// settings are a singleton row; there is nothing to delete
			return nil
		}
		return sess.client.Delete(ctx, table, c.ID)
	}

	row, conflictKey, err := rowFor(e.store.InstallationID(), c)
	if err != nil {
		// A payload that cannot be decoded will never apply; retrying it would
		// block the queue forever.
		slog.ErrorContext(ctx, "Dropping pending change with unreadable payload",
			"entity", c.EntityType,
			"id", c.ID,
			"error", err)
		return nil
	}
	return sess.client.Upsert(ctx, row.Table(), []remote.Row{row}, conflictKey)
}

func tableFor(entity core.EntityType) (string, bool) {
	switch entity {
	case core.EntityTransaction:
		return remote.TableTransactions, true
	case core.EntityBudget:
		return remote.TableBudgets, true
	case core.EntityCategory:
		return remote.TableCategories, true
	default:
		return "", false
	}
}

func rowFor(installationID string, c core.PendingChange) (remote.Row, string, error) {
	source := fmt.Sprintf("pending %s %s", c.EntityType, c.ID)
	switch c.EntityType {
	case core.EntityTransaction:
		t, err := decodePayload[core.Transaction](source, c.Payload)
		return remote.NewTransactionRow(installationID, t), remote.ConflictID, err
	case core.EntityBudget:
		b, err := decodePayload[core.Budget](source, c.Payload)
		return remote.NewBudgetRow(installationID, b), remote.ConflictID, err
	case core.EntityCategory:
		cat, err := decodePayload[core.Category](source, c.Payload)
		return remote.NewCategoryRow(installationID, cat), remote.ConflictID, err
	case core.EntitySettings:
		s, err := decodePayload[core.UserSettings](source, c.Payload)
		return remote.NewSettingsRow(installationID, s), remote.ConflictInstallationID, err
	default:
		return nil, "", &core.ParseError{Source: source, Err: fmt.Errorf("unknown entity type %q", c.EntityType)}
	}
}

func decodePayload[T any](source string, payload json.RawMessage) (T, error) {
	var v T
	if len(payload) == 0 {
		return v, &core.ParseError{Source: source, Err: fmt.Errorf("empty payload")}
	}
	if err := json.Unmarshal(payload, &v); err != nil {
		return v, &core.ParseError{Source: source, Err: err}
	}
	return v, nil
}

func toRows[T any](items []T, convert func(T) remote.Row) []remote.Row {
	rows := make([]remote.Row, len(items))
	for i, item := range items {
		rows[i] = convert(item)
	}
	return rows
}
