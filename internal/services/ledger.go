package services

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"fintrack/internal/core"
)

// Readers always serve the local store.

func (e *SyncEngine) Transactions() []core.Transaction { return e.store.Transactions() }
func (e *SyncEngine) Budgets() []core.Budget           { return e.store.Budgets() }
func (e *SyncEngine) Categories() []core.Category      { return e.store.Categories() }
func (e *SyncEngine) Settings() core.UserSettings      { return e.store.Settings() }
func (e *SyncEngine) InstallationID() string           { return e.store.InstallationID() }

// AddTransaction stores a new transaction, assigning an id when it has none.
func (e *SyncEngine) AddTransaction(ctx context.Context, t core.Transaction) (core.Transaction, error) {
	if t.ID == "" {
		t.ID = core.NewID()
	}
	t = t.Normalize()
	if err := t.Validate(); err != nil {
		return core.Transaction{}, err
	}

	e.ledgerMu.Lock()
	defer e.ledgerMu.Unlock()
	txs := e.store.Transactions()
	if indexByID(txs, t.ID, transactionID) >= 0 {
		return core.Transaction{}, fmt.Errorf("transaction %s: %w", t.ID, ErrAlreadyExists)
	}
	e.store.SaveTransactions(append(txs, t))
	e.record(ctx, core.EntityTransaction, core.OpCreate, t.ID, t)
	return t, nil
}

func (e *SyncEngine) UpdateTransaction(ctx context.Context, t core.Transaction) error {
	t = t.Normalize()
	if err := t.Validate(); err != nil {
		return err
	}

	e.ledgerMu.Lock()
	defer e.ledgerMu.Unlock()
	txs := e.store.Transactions()
	i := indexByID(txs, t.ID, transactionID)
	if i < 0 {
		return fmt.Errorf("transaction %s: %w", t.ID, ErrNotFound)
	}
	txs[i] = t
	e.store.SaveTransactions(txs)
	e.record(ctx, core.EntityTransaction, core.OpUpdate, t.ID, t)
	return nil
}

func (e *SyncEngine) DeleteTransaction(ctx context.Context, id string) error {
	e.ledgerMu.Lock()
	defer e.ledgerMu.Unlock()
	txs := e.store.Transactions()
	i := indexByID(txs, id, transactionID)
	if i < 0 {
		return fmt.Errorf("transaction %s: %w", id, ErrNotFound)
	}
	e.store.SaveTransactions(append(txs[:i], txs[i+1:]...))
	e.record(ctx, core.EntityTransaction, core.OpDelete, id, nil)
	return nil
}

// AddBudget stores a new budget, assigning an id when it has none.
func (e *SyncEngine) AddBudget(ctx context.Context, b core.Budget) (core.Budget, error) {
	if b.ID == "" {
		b.ID = core.NewID()
	}
	if err := b.Validate(); err != nil {
		return core.Budget{}, err
	}

	e.ledgerMu.Lock()
	defer e.ledgerMu.Unlock()
	budgets := e.store.Budgets()
	if indexByID(budgets, b.ID, budgetID) >= 0 {
		return core.Budget{}, fmt.Errorf("budget %s: %w", b.ID, ErrAlreadyExists)
	}
	e.store.SaveBudgets(append(budgets, b))
	e.record(ctx, core.EntityBudget, core.OpCreate, b.ID, b)
	return b, nil
}

func (e *SyncEngine) UpdateBudget(ctx context.Context, b core.Budget) error {
	if err := b.Validate(); err != nil {
		return err
	}

	e.ledgerMu.Lock()
	defer e.ledgerMu.Unlock()
	budgets := e.store.Budgets()
	i := indexByID(budgets, b.ID, budgetID)
	if i < 0 {
		return fmt.Errorf("budget %s: %w", b.ID, ErrNotFound)
	}
	budgets[i] = b
	e.store.SaveBudgets(budgets)
	e.record(ctx, core.EntityBudget, core.OpUpdate, b.ID, b)
	return nil
}

func (e *SyncEngine) DeleteBudget(ctx context.Context, id string) error {
	e.ledgerMu.Lock()
	defer e.ledgerMu.Unlock()
	budgets := e.store.Budgets()
	i := indexByID(budgets, id, budgetID)
	if i < 0 {
		return fmt.Errorf("budget %s: %w", id, ErrNotFound)
	}
	e.store.SaveBudgets(append(budgets[:i], budgets[i+1:]...))
	e.record(ctx, core.EntityBudget, core.OpDelete, id, nil)
	return nil
}

// SaveCategory creates or replaces a category. Categories are never deleted.
func (e *SyncEngine) SaveCategory(ctx context.Context, c core.Category) (core.Category, error) {
	if c.ID == "" {
		c.ID = core.NewID()
	}
	c.Name = strings.TrimSpace(c.Name)
	if err := c.Validate(); err != nil {
		return core.Category{}, err
	}

	e.ledgerMu.Lock()
	defer e.ledgerMu.Unlock()
	cats := e.store.Categories()
	op := core.OpUpdate
	if i := indexByID(cats, c.ID, categoryID); i >= 0 {
		cats[i] = c
	} else {
		op = core.OpCreate
		cats = append(cats, c)
	}
	e.store.SaveCategories(cats)
	e.record(ctx, core.EntityCategory, op, c.ID, c)
	return c, nil
}

// UpdateSettings replaces currency and language. The storage mode only
// changes through Connect and Disconnect.
func (e *SyncEngine) UpdateSettings(ctx context.Context, s core.UserSettings) (core.UserSettings, error) {
	e.ledgerMu.Lock()
	defer e.ledgerMu.Unlock()

	s.Currency = strings.ToUpper(strings.TrimSpace(s.Currency))
	s.Language = strings.TrimSpace(s.Language)
	s.StorageMode = e.store.Settings().StorageMode
	if err := s.Validate(); err != nil {
		return core.UserSettings{}, err
	}
	e.store.SaveSettings(s)
	e.record(ctx, core.EntitySettings, core.OpUpdate, e.store.InstallationID(), s)
	return s, nil
}

// record queues a change for the remote store when connected. Callers hold
// ledgerMu so queue order follows local write order.
func (e *SyncEngine) record(ctx context.Context, entity core.EntityType, op core.Operation, id string, payload any) {
	if !e.Connected() {
		return
	}
	change, err := core.NewChange(entity, op, id, payload)
	if err != nil {
		slog.ErrorContext(ctx, "Failed to queue change", "entity", entity, "id", id, "error", err)
		return
	}
	e.queue.Enqueue(change)
	e.publish()
	e.triggerDrain()
}

func transactionID(t core.Transaction) string { return t.ID }
func budgetID(b core.Budget) string           { return b.ID }
func categoryID(c core.Category) string       { return c.ID }

func indexByID[T any](items []T, id string, key func(T) string) int {
	for i, item := range items {
		if key(item) == id {
			return i
		}
	}
	return -1
}
