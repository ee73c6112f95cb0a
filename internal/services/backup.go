package services

import (
	"context"
	"log/slog"
	"slices"
	"time"

	"fintrack/internal/core"
	"fintrack/internal/transfer"
)

// ExportData captures the whole ledger as a backup document.
func (e *SyncEngine) ExportData() transfer.Backup {
	return transfer.Backup{
		Version:        transfer.BackupVersion,
		ExportDate:     time.Now().UTC(),
		InstallationID: e.store.InstallationID(),
		Settings:       e.store.Settings(),
		Transactions:   e.store.Transactions(),
		Budgets:        e.store.Budgets(),
		Categories:     e.store.Categories(),
	}
}

// ImportData merges a backup into the local ledger by id. A ledger that holds
// nothing but the seeded default categories takes the backup's categories
// as they are. Settings are taken from the backup except the storage mode.
// When connected the merged ledger is pushed to the remote store.
func (e *SyncEngine) ImportData(ctx context.Context, b transfer.Backup) error {
	e.ledgerMu.Lock()
	cats := e.store.Categories()
	if len(b.Categories) > 0 && e.pristineLocked(cats) {
		cats = nil
	}
	e.store.SaveTransactions(transfer.MergeByID(e.store.Transactions(), b.Transactions, transactionID))
	e.store.SaveBudgets(transfer.MergeByID(e.store.Budgets(), b.Budgets, budgetID))
	e.store.SaveCategories(transfer.MergeByID(cats, b.Categories, categoryID))
	if b.Settings.Currency != "" {
		settings := b.Settings
		settings.StorageMode = e.store.Settings().StorageMode
		e.store.SaveSettings(settings)
	}
	e.ledgerMu.Unlock()

	slog.InfoContext(ctx, "Backup imported",
		"source_installation", b.InstallationID,
		"transactions", len(b.Transactions),
		"budgets", len(b.Budgets),
		"categories", len(b.Categories))
	return e.pushAfterImport(ctx)
}

// pristineLocked reports whether the ledger is still as first seeded: no
// transactions or budgets and exactly the default categories.
func (e *SyncEngine) pristineLocked(cats []core.Category) bool {
	return len(e.store.Transactions()) == 0 &&
		len(e.store.Budgets()) == 0 &&
		slices.Equal(cats, core.DefaultCategories())
}

// ImportTransactions merges transactions, e.g. from a CSV file, by id.
func (e *SyncEngine) ImportTransactions(ctx context.Context, txs []core.Transaction) error {
	e.ledgerMu.Lock()
	e.store.SaveTransactions(transfer.MergeByID(e.store.Transactions(), txs, transactionID))
	e.ledgerMu.Unlock()

	slog.InfoContext(ctx, "Transactions imported", "count", len(txs))
	return e.pushAfterImport(ctx)
}

// pushAfterImport runs a full sync when connected. A failed push is retried
// in the background, so it is only logged.
func (e *SyncEngine) pushAfterImport(ctx context.Context) error {
	if !e.Connected() {
		return nil
	}
	if err := e.FullSync(ctx); err != nil {
		slog.WarnContext(ctx, "Imported data will be uploaded on the next sync", "error", err)
	}
	return nil
}
