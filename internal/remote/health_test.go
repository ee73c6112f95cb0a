package remote_test

import (
	"context"
	"testing"

	"github.com/google/go-cmp/cmp"

	"fintrack/internal/remote"
	"fintrack/internal/remote/memory"
)

func TestVerifyTablesReportsMissing(t *testing.T) {
	store := memory.New(remote.TableSettings, remote.TableTransactions)

	missing, err := remote.VerifyTables(context.Background(), store)
	if err != nil {
		t.Fatal(err)
	}
	want := []string{remote.TableCategories, remote.TableBudgets}
	if diff := cmp.Diff(want, missing); diff != "" {
		t.Errorf("missing tables (-want +got):\n%s", diff)
	}
}

func TestVerifyTablesAllPresent(t *testing.T) {
	missing, err := remote.VerifyTables(context.Background(), memory.New())
	if err != nil || len(missing) != 0 {
		t.Fatalf("missing=%v err=%v", missing, err)
	}
}

func TestTestConnectionOffline(t *testing.T) {
	store := memory.New()
	if err := remote.TestConnection(context.Background(), store); err != nil {
		t.Fatal(err)
	}
	store.SetOffline(true)
	if err := remote.TestConnection(context.Background(), store); err == nil {
		t.Fatal("expected offline store to fail")
	}
}

func TestVerifyTablesCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := remote.VerifyTables(ctx, memory.New()); err == nil {
		t.Fatal("expected context error")
	}
}
