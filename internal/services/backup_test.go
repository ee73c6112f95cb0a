package services

import (
	"bytes"
	"context"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/shopspring/decimal"

	"fintrack/internal/core"
	"fintrack/internal/remote"
	"fintrack/internal/transfer"
)

func TestExportImportRoundTrip(t *testing.T) {
	ctx := context.Background()
	src := newHarness(t)

	t2 := tx("t2", 20)
	t2.Tags = []string{"trip"}
	t2.Notes = "train"
	for _, item := range []core.Transaction{tx("t3", 30), tx("t1", 10), t2} {
		if _, err := src.engine.AddTransaction(ctx, item); err != nil {
			t.Fatal(err)
		}
	}
	if _, err := src.engine.AddBudget(ctx, core.Budget{ID: "b1", CategoryID: "expense-food", Amount: decimal.NewFromInt(200), Period: core.Yearly}); err != nil {
		t.Fatal(err)
	}
	if _, err := src.engine.SaveCategory(ctx, core.Category{ID: "pets", Name: "Pets", Color: "#123456", Kind: core.Expense}); err != nil {
		t.Fatal(err)
	}

	var buf bytes.Buffer
	if err := transfer.WriteBackup(&buf, src.engine.ExportData()); err != nil {
		t.Fatal(err)
	}
	backup, err := transfer.ReadBackup(&buf)
	if err != nil {
		t.Fatal(err)
	}

	dst := newHarness(t)
	if err := dst.engine.ImportData(ctx, backup); err != nil {
		t.Fatalf("ImportData() error = %v", err)
	}

	if diff := cmp.Diff(src.engine.Transactions(), dst.engine.Transactions()); diff != "" {
		t.Errorf("transactions (-src +dst):\n%s", diff)
	}
	if diff := cmp.Diff(src.engine.Budgets(), dst.engine.Budgets()); diff != "" {
		t.Errorf("budgets (-src +dst):\n%s", diff)
	}
	if diff := cmp.Diff(src.engine.Categories(), dst.engine.Categories()); diff != "" {
		t.Errorf("categories (-src +dst):\n%s", diff)
	}
}

func TestImportKeepsStorageModeAndPushesWhenConnected(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	h.connect()

	backup := transfer.Backup{
		Version:      transfer.BackupVersion,
		Settings:     core.UserSettings{Currency: "GBP", Language: "en", StorageMode: core.StorageLocal},
		Transactions: []core.Transaction{tx("imported", 42)},
	}
	if err := h.engine.ImportData(ctx, backup); err != nil {
		t.Fatal(err)
	}

	settings := h.engine.Settings()
	if settings.Currency != "GBP" || settings.StorageMode != core.StorageRemote {
		t.Errorf("settings = %+v", settings)
	}
	if diff := cmp.Diff([]string{"imported"}, h.remoteIDs(remote.TableTransactions)); diff != "" {
		t.Errorf("remote transactions (-want +got):\n%s", diff)
	}
}

func TestImportTransactionsMergesByID(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	if _, err := h.engine.AddTransaction(ctx, tx("a", 1)); err != nil {
		t.Fatal(err)
	}

	if err := h.engine.ImportTransactions(ctx, []core.Transaction{tx("b", 2), tx("a", 5)}); err != nil {
		t.Fatal(err)
	}
	want := []core.Transaction{tx("a", 5), tx("b", 2)}
	if diff := cmp.Diff(want, h.engine.Transactions()); diff != "" {
		t.Errorf("transactions (-want +got):\n%s", diff)
	}
}

func TestImportIntoFreshLedgerKeepsBackupCategories(t *testing.T) {
	ctx := context.Background()
	custom := []core.Category{{ID: "pets", Name: "Pets", Color: "#123456", Kind: core.Expense}}
	backup := transfer.Backup{
		Version:      transfer.BackupVersion,
		Settings:     core.DefaultSettings(),
		Transactions: []core.Transaction{},
		Budgets:      []core.Budget{},
		Categories:   custom,
	}

	fresh := newHarness(t)
	if err := fresh.engine.ImportData(ctx, backup); err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff(custom, fresh.engine.Categories()); diff != "" {
		t.Errorf("categories (-want +got):\n%s", diff)
	}

	used := newHarness(t)
	if _, err := used.engine.AddTransaction(ctx, tx("t1", 1)); err != nil {
		t.Fatal(err)
	}
	if err := used.engine.ImportData(ctx, backup); err != nil {
		t.Fatal(err)
	}
	if n, want := len(used.engine.Categories()), len(core.DefaultCategories())+1; n != want {
		t.Errorf("categories = %d, want %d merged", n, want)
	}
}
