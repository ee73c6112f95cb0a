package storage

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/shopspring/decimal"

	"fintrack/internal/core"
)

// flakyMedium is an in-memory medium whose reads or writes can be made to
// fail, e.g. a full disk or a locked profile.
type flakyMedium struct {
	mu     sync.Mutex
	values map[string][]byte
	getErr error
	putErr error
	puts   int
	closed bool
}

var errUnavailable = errors.New("storage unavailable")

func newFlakyMedium() *flakyMedium {
	return &flakyMedium{values: make(map[string][]byte)}
}

func (m *flakyMedium) Get(_ context.Context, key string) ([]byte, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.getErr != nil {
		return nil, false, m.getErr
	}
	v, ok := m.values[key]
	return v, ok, nil
}

func (m *flakyMedium) Put(_ context.Context, key string, value []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.puts++
	if m.putErr != nil {
		return m.putErr
	}
	m.values[key] = value
	return nil
}

func (m *flakyMedium) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.putErr != nil {
		return m.putErr
	}
	delete(m.values, key)
	return nil
}

func (m *flakyMedium) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

func (m *flakyMedium) failWrites(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.putErr = err
}

func sampleTransactions() []core.Transaction {
	return []core.Transaction{
		{ID: "t2", Amount: decimal.RequireFromString("12.50"), Description: "lunch", Date: core.NewDate(2024, 1, 2), Category: "expense-food", Kind: core.Expense, Tags: []string{"work"}},
		{ID: "t1", Amount: decimal.NewFromInt(100), Description: "salary", Date: core.NewDate(2024, 1, 1), Category: "income-salary", Kind: core.Income, Notes: "january"},
	}
}

func openTestStore(t *testing.T, path string) *LocalStore {
	t.Helper()
	s, err := Open(context.Background(), path)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	if !s.Durable() {
		t.Fatalf("expected durable store at %s", path)
	}
	return s
}

func TestLocalStorePersistsAcrossReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ledger.db")

	s := openTestStore(t, path)
	id := s.InstallationID()
	s.SaveTransactions(sampleTransactions())
	s.SaveBudgets([]core.Budget{{ID: "b1", CategoryID: "expense-food", Amount: decimal.NewFromInt(300), Period: core.Monthly}})
	s.SaveSettings(core.UserSettings{Currency: "EUR", Language: "it", StorageMode: core.StorageLocal})
	if err := s.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	s = openTestStore(t, path)
	defer s.Close()

	if s.InstallationID() != id {
		t.Fatalf("installation id regenerated: %s != %s", s.InstallationID(), id)
	}
	if diff := cmp.Diff(sampleTransactions(), s.Transactions()); diff != "" {
		t.Fatalf("transactions mismatch (-want +got):\n%s", diff)
	}
	if got := s.Budgets(); len(got) != 1 || got[0].ID != "b1" {
		t.Fatalf("unexpected budgets %+v", got)
	}
	if got := s.Settings(); got.Currency != "EUR" || got.Language != "it" {
		t.Fatalf("unexpected settings %+v", got)
	}
}

func TestLocalStoreSeedsDefaultCategories(t *testing.T) {
	s := NewMemoryStore()
	if diff := cmp.Diff(core.DefaultCategories(), s.Categories()); diff != "" {
		t.Fatalf("categories mismatch (-want +got):\n%s", diff)
	}
	if got := s.Transactions(); got == nil || len(got) != 0 {
		t.Fatalf("expected empty non-nil transactions, got %#v", got)
	}
	if got := s.Settings(); got != core.DefaultSettings() {
		t.Fatalf("expected default settings, got %+v", got)
	}
}

func TestLocalStoreAbsorbsWriteFailures(t *testing.T) {
	m := newFlakyMedium()
	s := newLocalStore(m)
	if !s.Durable() {
		t.Fatal("expected durable store")
	}
	s.SaveCredentials(core.RemoteCredentials{URL: "https://x.supabase.co", Key: "k"})

	m.failWrites(errUnavailable)
	s.SaveTransactions(sampleTransactions())
	if diff := cmp.Diff(sampleTransactions(), s.Transactions()); diff != "" {
		t.Fatalf("cache should reflect the write (-want +got):\n%s", diff)
	}

	s.ClearCredentials()
	if _, ok := s.Credentials(); ok {
		t.Fatal("cleared credentials should not come back from the medium")
	}
}

func TestInstallationIDKeptOnReadFailure(t *testing.T) {
	m := newFlakyMedium()
	first := newLocalStore(m)
	id := first.InstallationID()
	persisted := string(m.values[installationIDKey])
	puts := m.puts

	m.getErr = errUnavailable
	s := newLocalStore(m)

	if s.Durable() {
		t.Fatal("a store that cannot read its installation id should not write to the medium")
	}
	if s.InstallationID() == "" || s.InstallationID() == id {
		t.Fatalf("expected a session-only id, got %q", s.InstallationID())
	}
	if got := string(m.values[installationIDKey]); got != persisted {
		t.Fatalf("persisted id overwritten: %s -> %s", persisted, got)
	}
	if m.puts != puts {
		t.Fatalf("medium received %d writes after the failed read", m.puts-puts)
	}

	m.getErr = nil
	if again := newLocalStore(m); again.InstallationID() != id {
		t.Fatalf("installation id changed once the medium recovered: %s != %s", again.InstallationID(), id)
	}
}

func TestStoreSeesWritesFromAnotherHandle(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ledger.db")
	daemon := openTestStore(t, path)
	defer daemon.Close()
	if daemon.Settings().StorageMode != core.StorageLocal {
		t.Fatal("expected local mode")
	}

	cli := openTestStore(t, path)
	creds := core.RemoteCredentials{URL: "https://x.supabase.co", Key: "k"}
	cli.SaveCredentials(creds)
	settings := cli.Settings()
	settings.StorageMode = core.StorageRemote
	cli.SaveSettings(settings)
	cli.SaveTransactions(sampleTransactions())
	cli.Close()

	if got := daemon.Settings().StorageMode; got != core.StorageRemote {
		t.Fatalf("storage mode = %s, want remote", got)
	}
	if got, ok := daemon.Credentials(); !ok || got != creds {
		t.Fatalf("credentials not visible: %+v %v", got, ok)
	}
	if n := len(daemon.Transactions()); n != 2 {
		t.Fatalf("transactions = %d, want 2", n)
	}
}

func TestPendingChangesSurviveReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ledger.db")
	s := openTestStore(t, path)
	a, _ := core.NewChange(core.EntityTransaction, core.OpCreate, "a", map[string]int{"v": 1})
	b, _ := core.NewChange(core.EntityTransaction, core.OpDelete, "b", nil)
	s.PutPendingChange(a)
	s.PutPendingChange(b)
	a2, _ := core.NewChange(core.EntityTransaction, core.OpUpdate, "a", map[string]int{"v": 2})
	if !s.PutPendingChange(a2) {
		t.Fatal("expected the second change for a to replace the first")
	}
	mark := s.PendingMark()
	s.Close()

	s = openTestStore(t, path)
	defer s.Close()
	got := s.PendingChanges()
	if len(got) != 2 || got[0].ID != "b" || got[1].ID != "a" || got[1].Operation != core.OpUpdate {
		t.Fatalf("unexpected queue %+v", got)
	}
	if got[1].Seq != mark || got[0].Seq >= got[1].Seq {
		t.Fatalf("sequence not preserved: %d, %d (mark %d)", got[0].Seq, got[1].Seq, mark)
	}

	s.ClearPendingChanges()
	c, _ := core.NewChange(core.EntityBudget, core.OpCreate, "x", nil)
	s.PutPendingChange(c)
	if got := s.PendingChanges(); len(got) != 1 || got[0].Seq <= mark {
		t.Fatalf("sequence reused after clear: %+v", got)
	}
}

func TestOpenFallsBackToMemory(t *testing.T) {
	dir := t.TempDir()
	blocker := filepath.Join(dir, "not-a-dir")
	if err := os.WriteFile(blocker, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}

	s, err := Open(context.Background(), filepath.Join(blocker, "ledger.db"))
	if err != nil {
		t.Fatalf("open should degrade, got %v", err)
	}
	if s.Durable() {
		t.Fatal("expected memory-only store")
	}
	s.SaveTransactions(sampleTransactions())
	if len(s.Transactions()) != 2 {
		t.Fatal("memory-only store lost a write")
	}
}

func TestMalformedCollectionReadsAsEmpty(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ledger.db")
	s := openTestStore(t, path)
	id := s.InstallationID()
	if err := s.Close(); err != nil {
		t.Fatal(err)
	}

	m, err := openSQLiteMedium(path)
	if err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()
	if err := m.Put(ctx, keyPrefix+id+"_"+nameTransactions, []byte("{not json")); err != nil {
		t.Fatal(err)
	}
	if err := m.Put(ctx, keyPrefix+id+"_"+nameSettings, []byte("[]")); err != nil {
		t.Fatal(err)
	}
	m.Close()

	s = openTestStore(t, path)
	defer s.Close()
	if got := s.Transactions(); len(got) != 0 {
		t.Fatalf("expected empty transactions, got %+v", got)
	}
	if got := s.Settings(); got != core.DefaultSettings() {
		t.Fatalf("expected default settings, got %+v", got)
	}
}

func TestClearAllKeepsSettingsAndCredentials(t *testing.T) {
	s := NewMemoryStore()
	s.SaveTransactions(sampleTransactions())
	s.SaveCategories([]core.Category{{ID: "custom", Name: "Custom", Kind: core.Expense}})
	s.SaveLastSync(time.Now())
	s.SaveSettings(core.UserSettings{Currency: "EUR", Language: "en", StorageMode: core.StorageRemote})
	creds := core.RemoteCredentials{URL: "https://x.supabase.co", Key: "k"}
	s.SaveCredentials(creds)

	s.ClearAll()

	if len(s.Transactions()) != 0 || len(s.Budgets()) != 0 || len(s.PendingChanges()) != 0 {
		t.Fatal("ledger not cleared")
	}
	if diff := cmp.Diff(core.DefaultCategories(), s.Categories()); diff != "" {
		t.Fatalf("categories not reset (-want +got):\n%s", diff)
	}
	if _, ok := s.LastSync(); ok {
		t.Fatal("last sync should be cleared")
	}
	if s.Settings().Currency != "EUR" {
		t.Fatal("settings should survive ClearAll")
	}
	if got, ok := s.Credentials(); !ok || got != creds {
		t.Fatal("credentials should survive ClearAll")
	}
}
