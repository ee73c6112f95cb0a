package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	_ "modernc.org/sqlite"
)

// medium is the durable key-value persistence behind the store's cache.
type medium interface {
	Get(ctx context.Context, key string) (value []byte, ok bool, err error)
	Put(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error
	Close() error
}

type sqliteMedium struct {
	db *sql.DB
}

func openSQLiteMedium(dbPath string) (*sqliteMedium, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	if _, err := RunMigrations(dbPath); err != nil {
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	// Other processes (CLI and daemon) share the file; wait for their locks.
	db, err := sql.Open("sqlite", dbPath+"?_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}
	// SQLite allows one writer; a single connection keeps writes ordered.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	return &sqliteMedium{db: db}, nil
}

func (m *sqliteMedium) Get(ctx context.Context, key string) ([]byte, bool, error) {
	var value string
	err := m.db.QueryRowContext(ctx, `SELECT value FROM kv WHERE key = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("get %s: %w", key, err)
	}
	return []byte(value), true, nil
}

func (m *sqliteMedium) Put(ctx context.Context, key string, value []byte) error {
	_, err := m.db.ExecContext(ctx, `
		INSERT INTO kv (key, value, updated_at) VALUES (?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		key, string(value))
	if err != nil {
		return fmt.Errorf("put %s: %w", key, err)
	}
	return nil
}

func (m *sqliteMedium) Delete(ctx context.Context, key string) error {
	if _, err := m.db.ExecContext(ctx, `DELETE FROM kv WHERE key = ?`, key); err != nil {
		return fmt.Errorf("delete %s: %w", key, err)
	}
	return nil
}

// changeJournal persists queued changes as one row each, so processes sharing
// the database append and acknowledge entries without rewriting each other's.
type changeJournal interface {
	// AppendChange replaces the owner's entry for key, if any, and appends data.
	AppendChange(ctx context.Context, owner, key string, data []byte) (replaced bool, err error)
	// Changes lists the owner's entries in append order.
	Changes(ctx context.Context, owner string) ([]journalEntry, error)
	DeleteChange(ctx context.Context, seq uint64) error
	ClearChanges(ctx context.Context, owner string) error
	// LastSeq returns the highest sequence number ever issued.
	LastSeq(ctx context.Context) (uint64, error)
}

type journalEntry struct {
	Seq  uint64
	Data []byte
}

func (m *sqliteMedium) AppendChange(ctx context.Context, owner, key string, data []byte) (bool, error) {
	tx, err := m.db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("begin append %s: %w", key, err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx,
		`DELETE FROM pending_changes WHERE installation_id = ? AND entity_key = ?`, owner, key)
	if err != nil {
		return false, fmt.Errorf("supersede %s: %w", key, err)
	}
	replaced, _ := res.RowsAffected()

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO pending_changes (installation_id, entity_key, change) VALUES (?, ?, ?)`,
		owner, key, string(data)); err != nil {
		return false, fmt.Errorf("append %s: %w", key, err)
	}
	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("commit append %s: %w", key, err)
	}
	return replaced > 0, nil
}

func (m *sqliteMedium) Changes(ctx context.Context, owner string) ([]journalEntry, error) {
	rows, err := m.db.QueryContext(ctx,
		`SELECT seq, change FROM pending_changes WHERE installation_id = ? ORDER BY seq`, owner)
	if err != nil {
		return nil, fmt.Errorf("list pending changes: %w", err)
	}
	defer rows.Close()

	var out []journalEntry
	for rows.Next() {
		var (
			e    journalEntry
			data string
		)
		if err := rows.Scan(&e.Seq, &data); err != nil {
			return nil, fmt.Errorf("scan pending change: %w", err)
		}
		e.Data = []byte(data)
		out = append(out, e)
	}
	return out, rows.Err()
}

func (m *sqliteMedium) DeleteChange(ctx context.Context, seq uint64) error {
	if _, err := m.db.ExecContext(ctx, `DELETE FROM pending_changes WHERE seq = ?`, seq); err != nil {
		return fmt.Errorf("delete pending change %d: %w", seq, err)
	}
	return nil
}

func (m *sqliteMedium) ClearChanges(ctx context.Context, owner string) error {
	if _, err := m.db.ExecContext(ctx, `DELETE FROM pending_changes WHERE installation_id = ?`, owner); err != nil {
		return fmt.Errorf("clear pending changes: %w", err)
	}
	return nil
}

func (m *sqliteMedium) LastSeq(ctx context.Context) (uint64, error) {
	var seq uint64
	err := m.db.QueryRowContext(ctx,
		`SELECT seq FROM sqlite_sequence WHERE name = 'pending_changes'`).Scan(&seq)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("read pending sequence: %w", err)
	}
	return seq, nil
}

// memoryJournal backs the queue of a store without durable persistence.
type memoryJournal struct {
	mu      sync.Mutex
	seq     uint64
	entries []memoryEntry
}

type memoryEntry struct {
	owner, key string
	journalEntry
}

func (j *memoryJournal) AppendChange(_ context.Context, owner, key string, data []byte) (bool, error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	replaced := false
	for i, e := range j.entries {
		if e.owner == owner && e.key == key {
			j.entries = append(j.entries[:i], j.entries[i+1:]...)
			replaced = true
			break
		}
	}
	j.seq++
	j.entries = append(j.entries, memoryEntry{owner: owner, key: key, journalEntry: journalEntry{Seq: j.seq, Data: data}})
	return replaced, nil
}

func (j *memoryJournal) Changes(_ context.Context, owner string) ([]journalEntry, error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	var out []journalEntry
	for _, e := range j.entries {
		if e.owner == owner {
			out = append(out, e.journalEntry)
		}
	}
	return out, nil
}

func (j *memoryJournal) DeleteChange(_ context.Context, seq uint64) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	for i, e := range j.entries {
		if e.Seq == seq {
			j.entries = append(j.entries[:i], j.entries[i+1:]...)
			return nil
		}
	}
	return nil
}

func (j *memoryJournal) ClearChanges(_ context.Context, owner string) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	kept := j.entries[:0]
	for _, e := range j.entries {
		if e.owner != owner {
			kept = append(kept, e)
		}
	}
	j.entries = kept
	return nil
}

func (j *memoryJournal) LastSeq(context.Context) (uint64, error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.seq, nil
}

func (m *sqliteMedium) Close() error {
	if m.db != nil {
		return m.db.Close()
	}
	return nil
}
