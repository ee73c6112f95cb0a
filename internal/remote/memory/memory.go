// Package memory is an in-process remote backend. It honours the same
// upsert/select/delete contract as the hosted project and adds fault
// injection for exercising the sync engine.
package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"fintrack/internal/core"
	"fintrack/internal/remote"
)

type table struct {
	order []string
	rows  map[string]map[string]json.RawMessage
}

// Store is safe for concurrent use.
type Store struct {
	mu      sync.Mutex
	tables  map[string]*table
	offline bool
	fails   map[string]int
	calls   map[string]int
	hook    func(op, table string)
}

var _ remote.Client = (*Store)(nil)

// New creates a backend with the given tables, or all required tables when
// none are named.
func New(tables ...string) *Store {
	if len(tables) == 0 {
		tables = remote.RequiredTables
	}
	s := &Store{
		tables: make(map[string]*table),
		fails:  make(map[string]int),
		calls:  make(map[string]int),
	}
	for _, name := range dedupe(tables) {
		s.tables[name] = &table{rows: make(map[string]map[string]json.RawMessage)}
	}
	return s
}

// SetOffline makes every call fail with a connectivity error.
func (s *Store) SetOffline(offline bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.offline = offline
}

// FailNext makes the next n calls touching tbl fail.
func (s *Store) FailNext(tbl string, n int) {
	s.FailNextOp("*", tbl, n)
}

// FailNextOp makes the next n calls of op ("upsert", "select", "delete") on
// tbl fail.
func (s *Store) FailNextOp(op, tbl string, n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fails[op+":"+tbl] = n
}

// OnCall registers fn to run before every call, outside the store lock.
func (s *Store) OnCall(fn func(op, table string)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.hook = fn
}

// Calls returns how many times op ("upsert", "select", "delete") hit tbl.
func (s *Store) Calls(op, tbl string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[op+":"+tbl]
}

// Rows returns the rows of tbl in first-insert order.
func (s *Store) Rows(tbl string) []json.RawMessage {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tables[tbl]
	if !ok {
		return nil
	}
	out := make([]json.RawMessage, 0, len(t.order))
	for _, id := range t.order {
		data, _ := json.Marshal(t.rows[id])
		out = append(out, data)
	}
	return out
}

// Seed stores rows directly, bypassing fault injection.
func (s *Store) Seed(tbl string, rows []remote.Row, conflictKey string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.upsertLocked(tbl, rows, conflictKey)
}

func (s *Store) Upsert(ctx context.Context, tbl string, rows []remote.Row, conflictKey string) error {
	if err := s.enter(ctx, "upsert", tbl); err != nil {
		return err
	}
	defer s.mu.Unlock()
	return s.upsertLocked(tbl, rows, conflictKey)
}

func (s *Store) Select(ctx context.Context, tbl string, filter remote.Filter) ([]json.RawMessage, error) {
	if err := s.enter(ctx, "select", tbl); err != nil {
		return nil, err
	}
	defer s.mu.Unlock()

	t := s.tables[tbl]
	var out []json.RawMessage
	for _, id := range t.order {
		row := t.rows[id]
		if !matches(row, filter.Eq) {
			continue
		}
		data, err := json.Marshal(row)
		if err != nil {
			return nil, err
		}
		out = append(out, data)
		if filter.Limit > 0 && len(out) == filter.Limit {
			break
		}
	}
	return out, nil
}

func (s *Store) Delete(ctx context.Context, tbl string, id string) error {
	if err := s.enter(ctx, "delete", tbl); err != nil {
		return err
	}
	defer s.mu.Unlock()

	t := s.tables[tbl]
	if _, ok := t.rows[id]; !ok {
		return nil
	}
	delete(t.rows, id)
	for i, existing := range t.order {
		if existing == id {
			t.order = append(t.order[:i], t.order[i+1:]...)
			break
		}
	}
	return nil
}

// enter runs the hook, then takes the lock and applies fault injection. On
// success the caller owns the lock.
func (s *Store) enter(ctx context.Context, op, tbl string) error {
	s.mu.Lock()
	hook := s.hook
	s.mu.Unlock()
	if hook != nil {
		hook(op, tbl)
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	s.calls[op+":"+tbl]++
	if s.offline {
		s.mu.Unlock()
		return &core.ConnectivityError{Op: op + " " + tbl, Err: fmt.Errorf("network unreachable")}
	}
	for _, key := range []string{op + ":" + tbl, "*:" + tbl} {
		if n := s.fails[key]; n > 0 {
			s.fails[key] = n - 1
			s.mu.Unlock()
			return &core.ConnectivityError{Op: op + " " + tbl, StatusCode: 503, Err: fmt.Errorf("injected failure")}
		}
	}
	if _, ok := s.tables[tbl]; !ok {
		s.mu.Unlock()
		return &core.ConnectivityError{Op: op + " " + tbl, StatusCode: 404, Err: fmt.Errorf("relation %q does not exist", tbl)}
	}
	return nil
}

func (s *Store) upsertLocked(tbl string, rows []remote.Row, conflictKey string) error {
	t, ok := s.tables[tbl]
	if !ok {
		return fmt.Errorf("relation %q does not exist", tbl)
	}
	for _, r := range rows {
		data, err := json.Marshal(r)
		if err != nil {
			return fmt.Errorf("marshal row: %w", err)
		}
		var fields map[string]json.RawMessage
		if err := json.Unmarshal(data, &fields); err != nil {
			return fmt.Errorf("decode row: %w", err)
		}
		id := scalar(fields[conflictKey])
		if id == "" {
			return fmt.Errorf("row without conflict key %q", conflictKey)
		}
		if existing, ok := t.rows[id]; ok {
			for k, v := range fields {
				existing[k] = v
			}
			continue
		}
		t.rows[id] = fields
		t.order = append(t.order, id)
	}
	return nil
}

func matches(row map[string]json.RawMessage, eq map[string]string) bool {
	for col, want := range eq {
		if scalar(row[col]) != want {
			return false
		}
	}
	return true
}

// scalar renders a JSON scalar the way it appears in a query string.
func scalar(v json.RawMessage) string {
	var s string
	if err := json.Unmarshal(v, &s); err == nil {
		return s
	}
	return strings.TrimSpace(string(v))
}

func dedupe(in []string) []string {
	seen := map[string]struct{}{}
	out := make([]string, 0, len(in))
	for _, v := range in {
		v = strings.TrimSpace(v)
		if v == "" {
			continue
		}
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}
