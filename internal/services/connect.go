package services

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"fintrack/internal/core"
	"fintrack/internal/remote"
)

// errDisconnected is returned by a Connect overtaken by Disconnect.
var errDisconnected = errors.New("disconnected while connecting")

// Connect switches the ledger to remote storage. The credentials are checked
// and persisted, the remote schema verified, and the remote collections for
// this installation pulled and reconciled with the local ones. The ledger is
// then pushed up and the periodic drain started.
//
// Any failure before the switch restores the previous credentials and leaves
// the local ledger untouched. A failed initial push keeps the connection and
// is retried in the background. A Disconnect issued while Connect is talking
// to the remote store wins: Connect returns an error and changes nothing.
func (e *SyncEngine) Connect(ctx context.Context, url, key string) error {
	creds := core.RemoteCredentials{
		URL: strings.TrimRight(strings.TrimSpace(url), "/"),
		Key: strings.TrimSpace(key),
	}
	if err := remote.ValidateCredentials(creds); err != nil {
		return err
	}
	client, err := e.provider.Client(creds)
	if err != nil {
		return err
	}

	gen := e.currentGeneration()
	prev, hadPrev := e.creds.Credentials()
	if err := e.creds.Save(creds); err != nil {
		return err
	}
	rollback := func(cause error) error {
		e.ledgerMu.Lock()
		defer e.ledgerMu.Unlock()
		switch {
		case e.currentGeneration() != gen:
			// Whatever replaced this attempt owns the stored credentials now.
			if stored, ok := e.creds.Credentials(); ok && stored == creds && !e.Connected() {
				e.creds.ClearCredentials()
			}
		case hadPrev:
			e.store.SaveCredentials(prev)
		default:
			e.creds.ClearCredentials()
		}
		e.provider.Invalidate()
		slog.WarnContext(ctx, "Connect failed, credentials rolled back", "error", cause)
		return cause
	}

	// A transport failure is reported as such rather than as four missing tables.
	if err := remote.TestConnection(ctx, client); err != nil && isTransportFailure(err) {
		return rollback(err)
	}

	missing, err := remote.VerifyTables(ctx, client)
	if err != nil {
		return rollback(err)
	}
	if len(missing) > 0 {
		return rollback(&core.SchemaError{Missing: missing})
	}

	remoteSnap, err := e.pull(ctx, client)
	if err != nil {
		return rollback(err)
	}

	e.ledgerMu.Lock()
	if e.currentGeneration() != gen {
		e.ledgerMu.Unlock()
		return rollback(errDisconnected)
	}
	final, decision := Reconcile(e.localSnapshot(), remoteSnap)
	e.store.SaveTransactions(final.Transactions)
	e.store.SaveBudgets(final.Budgets)
	if len(final.Categories) > 0 {
		e.store.SaveCategories(final.Categories)
	}
	settings := e.store.Settings()
	settings.StorageMode = core.StorageRemote
	e.store.SaveSettings(settings)
	e.queue.Clear()
	// A Disconnect past this point detaches the new session and then waits
	// for ledgerMu to restore local mode.
	sess, ok := e.attachAt(ctx, gen, client, creds)
	e.ledgerMu.Unlock()
	if !ok {
		return errDisconnected
	}

	slog.InfoContext(ctx, "Reconciled local ledger with remote storage",
		"transactions", decision.Transactions,
		"budgets", decision.Budgets,
		"categories", decision.Categories)

	e.passMu.Lock()
	err = e.fullSync(ctx, sess)
	e.passMu.Unlock()
	if err != nil && !errors.Is(err, errStale) {
		slog.WarnContext(ctx, "Connected, initial upload will be retried", "error", err)
	}
	if !e.current(sess.gen) {
		return errDisconnected
	}

	slog.InfoContext(ctx, "Connected to remote storage", "installation_id", e.store.InstallationID())
	return nil
}

// Disconnect returns to local mode. Credentials and pending changes are
// cleared; the local ledger is kept. Remote calls still in flight, including
// those of a concurrent Connect, are cancelled or have their results ignored.
func (e *SyncEngine) Disconnect(ctx context.Context) error {
	e.detach()

	e.ledgerMu.Lock()
	e.creds.ClearCredentials()
	e.provider.Invalidate()
	settings := e.store.Settings()
	settings.StorageMode = core.StorageLocal
	e.store.SaveSettings(settings)
	e.queue.Clear()
	e.ledgerMu.Unlock()

	e.resetState()

	slog.InfoContext(ctx, "Disconnected from remote storage, local data kept")
	return nil
}

func isTransportFailure(err error) bool {
	var cerr *core.ConnectivityError
	return errors.As(err, &cerr) && cerr.StatusCode == 0
}

func (e *SyncEngine) localSnapshot() Snapshot {
	return Snapshot{
		Transactions: e.store.Transactions(),
		Budgets:      e.store.Budgets(),
		Categories:   e.store.Categories(),
	}
}
