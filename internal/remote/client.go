// Package remote talks to the hosted tabular backend that mirrors the local
// ledger. The backend is addressed by a project URL and an access key and
// exposes four tables, each keyed by row id and tagged with the installation id.
package remote

import (
	"context"
	"encoding/json"
)

// Table names on the hosted project.
const (
	TableSettings     = "app_settings"
	TableCategories   = "categories"
	TableTransactions = "transactions"
	TableBudgets      = "budgets"
)

// Conflict keys used for upserts.
const (
	ConflictID             = "id"
	ConflictInstallationID = "installation_id"
)

// RequiredTables must all exist before a connection is accepted.
var RequiredTables = []string{TableSettings, TableCategories, TableTransactions, TableBudgets}

// Row is one serialisable record of a remote table.
type Row interface {
	Table() string
	RowID() string
}

// Filter restricts a select to rows whose columns equal the given values.
type Filter struct {
	Eq    map[string]string
	Limit int
}

// ByInstallation selects the rows owned by one installation.
func ByInstallation(installationID string) Filter {
	return Filter{Eq: map[string]string{ConflictInstallationID: installationID}}
}

// Client is the request/response surface of the remote backend. Upsert and
// Delete are idempotent by row id.
type Client interface {
	Upsert(ctx context.Context, table string, rows []Row, conflictKey string) error
	Select(ctx context.Context, table string, filter Filter) ([]json.RawMessage, error)
	Delete(ctx context.Context, table string, id string) error
}
