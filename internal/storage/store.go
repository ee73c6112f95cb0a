// Package storage implements the local ledger store: the source of truth for
// every read. Each collection is persisted as one JSON document in a SQLite
// key-value table and mirrored in an in-process cache; pending changes are
// rows of their own. When the durable medium is unavailable the store keeps
// working from the cache for the session.
package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"fintrack/internal/core"
)

const (
	keyPrefix         = "fintrack_"
	installationIDKey = keyPrefix + "installation_id"

	nameSettings     = "settings"
	nameTransactions = "transactions"
	nameBudgets      = "budgets"
	nameCategories   = "categories"
	namePending      = "pending_changes"
	nameLastSync     = "last_sync"
	nameCredentials  = "remote_credentials"

	mediumTimeout = 5 * time.Second
)

// LocalStore is safe for concurrent use, and several processes may open the
// same database: reads go to the medium so each sees the others' writes.
type LocalStore struct {
	mu             sync.RWMutex
	medium         medium // nil when running from the cache only
	journal        changeJournal
	installationID string
	cache          map[string][]byte
	// dirty keys hold a cached write the medium rejected; the cache wins for them.
	dirty map[string]bool
}

// Open opens (or creates) the store at dbPath. If the database cannot be
// opened the returned store is memory-only; Open fails only if ctx is done.
func Open(ctx context.Context, dbPath string) (*LocalStore, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m, err := openSQLiteMedium(dbPath)
	if err != nil {
		slog.WarnContext(ctx, "Local persistence unavailable, keeping data in memory for this session",
			"path", dbPath, "error", err)
		return newLocalStore(nil), nil
	}
	s := newLocalStore(m)
	slog.InfoContext(ctx, "Local store opened",
		"path", dbPath,
		"durable", s.Durable(),
		"installation_id", s.installationID)
	return s, nil
}

// NewMemoryStore returns a store without durable persistence.
func NewMemoryStore() *LocalStore {
	return newLocalStore(nil)
}

func newLocalStore(m medium) *LocalStore {
	s := &LocalStore{
		medium:  m,
		journal: &memoryJournal{},
		cache:   make(map[string][]byte),
		dirty:   make(map[string]bool),
	}
	if j, ok := m.(changeJournal); ok {
		s.journal = j
	}

	id, err := s.loadInstallationID()
	if err != nil {
		// Everything is keyed by the id: a guessed one would hide the persisted
		// ledger and a written one would replace it.
		slog.Warn("Installation id unreadable, keeping data in memory for this session", "error", err)
		s.dropMedium()
		id = core.NewID()
		s.write(installationIDKey, id)
	}
	s.installationID = id
	return s
}

// Close releases the durable medium. The cache stays readable.
func (s *LocalStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.medium == nil {
		return nil
	}
	return s.dropMediumLocked()
}

func (s *LocalStore) dropMedium() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.medium != nil {
		_ = s.dropMediumLocked()
	}
}

func (s *LocalStore) dropMediumLocked() error {
	err := s.medium.Close()
	s.medium = nil
	s.journal = &memoryJournal{}
	return err
}

// Durable reports whether writes reach persistent storage.
func (s *LocalStore) Durable() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.medium != nil
}

// InstallationID is generated once and reused for as long as it is persisted.
func (s *LocalStore) InstallationID() string {
	return s.installationID
}

// loadInstallationID returns the persisted id, generating and persisting one
// only when none is stored. A medium failure is returned, never papered over.
func (s *LocalStore) loadInstallationID() (string, error) {
	raw, ok, err := s.read(installationIDKey)
	if err != nil {
		return "", err
	}
	if ok {
		var id string
		if err := json.Unmarshal(raw, &id); err == nil && id != "" {
			return id, nil
		}
		slog.Warn("Stored installation id is malformed, generating a new one")
	}
	id := core.NewID()
	s.write(installationIDKey, id)
	return id, nil
}

func (s *LocalStore) key(name string) string {
	return keyPrefix + s.installationID + "_" + name
}

// Transactions returns the ledger in stored order.
func (s *LocalStore) Transactions() []core.Transaction {
	return loadCollection[core.Transaction](s, nameTransactions)
}

func (s *LocalStore) SaveTransactions(txs []core.Transaction) {
	s.write(s.key(nameTransactions), nonNil(txs))
}

func (s *LocalStore) Budgets() []core.Budget {
	return loadCollection[core.Budget](s, nameBudgets)
}

func (s *LocalStore) SaveBudgets(budgets []core.Budget) {
	s.write(s.key(nameBudgets), nonNil(budgets))
}

// Categories returns the stored categories, seeding the default set when the
// collection is missing or empty.
func (s *LocalStore) Categories() []core.Category {
	cats := loadCollection[core.Category](s, nameCategories)
	if len(cats) == 0 {
		cats = core.DefaultCategories()
		s.SaveCategories(cats)
	}
	return cats
}

func (s *LocalStore) SaveCategories(cats []core.Category) {
	s.write(s.key(nameCategories), nonNil(cats))
}

// Settings returns the stored settings or the defaults.
func (s *LocalStore) Settings() core.UserSettings {
	settings := core.DefaultSettings()
	raw, ok := s.get(s.key(nameSettings))
	if !ok {
		return settings
	}
	if err := json.Unmarshal(raw, &settings); err != nil {
		s.logParseError(nameSettings, err)
		return core.DefaultSettings()
	}
	return settings
}

func (s *LocalStore) SaveSettings(settings core.UserSettings) {
	s.write(s.key(nameSettings), settings)
}

// PendingChanges returns the persisted change queue in enqueue order.
func (s *LocalStore) PendingChanges() []core.QueuedChange {
	ctx, cancel := context.WithTimeout(context.Background(), mediumTimeout)
	defer cancel()
	entries, err := s.changeJournal().Changes(ctx, s.installationID)
	if err != nil {
		slog.Warn("Pending changes unreadable", "error", err)
		return []core.QueuedChange{}
	}
	out := make([]core.QueuedChange, 0, len(entries))
	for _, e := range entries {
		var c core.PendingChange
		if err := json.Unmarshal(e.Data, &c); err != nil {
			s.logParseError(namePending, err)
			continue
		}
		out = append(out, core.QueuedChange{PendingChange: c, Seq: e.Seq})
	}
	return out
}

// PutPendingChange replaces the queued change for the same entity, if any,
// and appends c. It reports whether an entry was replaced.
func (s *LocalStore) PutPendingChange(c core.PendingChange) bool {
	data, err := json.Marshal(c)
	if err != nil {
		panic(fmt.Sprintf("storage: marshal pending change: %v", err))
	}
	ctx, cancel := context.WithTimeout(context.Background(), mediumTimeout)
	defer cancel()
	replaced, err := s.changeJournal().AppendChange(ctx, s.installationID, c.Key(), data)
	if err != nil {
		slog.Error("Pending change could not be persisted",
			"entity", c.EntityType,
			"id", c.ID,
			"error", err)
	}
	return replaced
}

// AckPendingChange removes the entry with seq. An entry superseded since it
// was read has a new seq and is kept.
func (s *LocalStore) AckPendingChange(seq uint64) {
	ctx, cancel := context.WithTimeout(context.Background(), mediumTimeout)
	defer cancel()
	if err := s.changeJournal().DeleteChange(ctx, seq); err != nil {
		slog.Warn("Applied change could not be removed from the queue", "seq", seq, "error", err)
	}
}

func (s *LocalStore) ClearPendingChanges() {
	ctx, cancel := context.WithTimeout(context.Background(), mediumTimeout)
	defer cancel()
	if err := s.changeJournal().ClearChanges(ctx, s.installationID); err != nil {
		slog.Warn("Pending changes could not be cleared", "error", err)
	}
}

// PendingMark returns the highest queue sequence issued so far.
func (s *LocalStore) PendingMark() uint64 {
	ctx, cancel := context.WithTimeout(context.Background(), mediumTimeout)
	defer cancel()
	seq, err := s.changeJournal().LastSeq(ctx)
	if err != nil {
		slog.Warn("Pending sequence unreadable", "error", err)
	}
	return seq
}

func (s *LocalStore) changeJournal() changeJournal {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.journal
}

// LastSync returns the time of the last successful sync, if any.
func (s *LocalStore) LastSync() (time.Time, bool) {
	raw, ok := s.get(s.key(nameLastSync))
	if !ok {
		return time.Time{}, false
	}
	var ts time.Time
	if err := json.Unmarshal(raw, &ts); err != nil {
		s.logParseError(nameLastSync, err)
		return time.Time{}, false
	}
	return ts, true
}

func (s *LocalStore) SaveLastSync(ts time.Time) {
	s.write(s.key(nameLastSync), ts.UTC())
}

// Credentials returns the persisted remote credential pair.
func (s *LocalStore) Credentials() (core.RemoteCredentials, bool) {
	raw, ok := s.get(s.key(nameCredentials))
	if !ok {
		return core.RemoteCredentials{}, false
	}
	var creds core.RemoteCredentials
	if err := json.Unmarshal(raw, &creds); err != nil {
		s.logParseError(nameCredentials, err)
		return core.RemoteCredentials{}, false
	}
	return creds, !creds.IsZero()
}

func (s *LocalStore) SaveCredentials(creds core.RemoteCredentials) {
	s.write(s.key(nameCredentials), creds)
}

func (s *LocalStore) ClearCredentials() {
	s.remove(s.key(nameCredentials))
}

// ClearAll resets the ledger: default categories, no transactions, budgets,
// pending changes or sync timestamp. Settings and credentials are kept.
func (s *LocalStore) ClearAll() {
	s.SaveTransactions(nil)
	s.SaveBudgets(nil)
	s.SaveCategories(core.DefaultCategories())
	s.ClearPendingChanges()
	s.remove(s.key(nameLastSync))
	slog.Info("Local store cleared", "installation_id", s.installationID)
}

func loadCollection[T any](s *LocalStore, name string) []T {
	raw, ok := s.get(s.key(name))
	if !ok {
		return []T{}
	}
	var items []T
	if err := json.Unmarshal(raw, &items); err != nil {
		s.logParseError(name, err)
		return []T{}
	}
	if items == nil {
		return []T{}
	}
	return items
}

func nonNil[T any](items []T) []T {
	if items == nil {
		return []T{}
	}
	return items
}

func (s *LocalStore) logParseError(name string, err error) {
	perr := &core.ParseError{Source: name, Err: err}
	slog.Warn("Persisted collection is malformed, treating it as empty",
		"collection", name,
		"error", perr)
}

// get is read with medium failures logged and reported as absent.
func (s *LocalStore) get(key string) ([]byte, bool) {
	raw, ok, err := s.read(key)
	if err != nil {
		slog.Warn("Local persistence read failed", "key", key, "error", err)
		return nil, false
	}
	return raw, ok
}

// read returns the latest value of key. Durable stores read the medium; the
// cache answers for dirty keys and when the medium fails on a key it holds.
func (s *LocalStore) read(key string) ([]byte, bool, error) {
	s.mu.RLock()
	m := s.medium
	cached, inCache := s.cache[key]
	dirty := s.dirty[key]
	s.mu.RUnlock()

	// nil marks a removed key
	if m == nil || dirty {
		return cached, cached != nil, nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), mediumTimeout)
	defer cancel()
	raw, ok, err := m.Get(ctx, key)
	if err != nil {
		if inCache {
			slog.Warn("Local persistence read failed, using cached value", "key", key, "error", err)
			return cached, cached != nil, nil
		}
		return nil, false, err
	}
	if !ok {
		raw = nil
	}

	s.mu.Lock()
	if s.dirty[key] {
		// a write the medium rejected landed meanwhile
		raw = s.cache[key]
	} else {
		s.cache[key] = raw
	}
	s.mu.Unlock()
	return raw, raw != nil, nil
}

// write updates the cache, then the durable medium. Medium failures are
// absorbed: the key is marked dirty and served from the cache.
func (s *LocalStore) write(key string, v any) {
	raw, err := json.Marshal(v)
	if err != nil {
		// Only reachable with unmarshalable types, which is a programming error.
		panic(fmt.Sprintf("storage: marshal %s: %v", key, err))
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.cache[key] = raw
	if s.medium == nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), mediumTimeout)
	defer cancel()
	if err := s.medium.Put(ctx, key, raw); err != nil {
		s.dirty[key] = true
		slog.Warn("Local persistence write failed, value kept in memory", "key", key, "error", err)
		return
	}
	delete(s.dirty, key)
}

func (s *LocalStore) remove(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cache[key] = nil
	if s.medium == nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), mediumTimeout)
	defer cancel()
	if err := s.medium.Delete(ctx, key); err != nil {
		s.dirty[key] = true
		slog.Warn("Local persistence delete failed", "key", key, "error", err)
		return
	}
	delete(s.dirty, key)
}
