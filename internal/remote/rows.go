package remote

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	"fintrack/internal/core"
)

type (
	TransactionRow struct {
		ID             string          `json:"id"`
		InstallationID string          `json:"installation_id"`
		Amount         decimal.Decimal `json:"amount"`
		Description    string          `json:"description"`
		Date           string          `json:"date"`
		Category       string          `json:"category"`
		Type           core.Kind       `json:"type"`
		Notes          *string         `json:"notes"`
		Tags           []string        `json:"tags"`
	}

	BudgetRow struct {
		ID             string          `json:"id"`
		InstallationID string          `json:"installation_id"`
		CategoryID     string          `json:"category_id"`
		Amount         decimal.Decimal `json:"amount"`
		Period         core.Period     `json:"period"`
	}

	CategoryRow struct {
		ID             string    `json:"id"`
		InstallationID string    `json:"installation_id"`
		Name           string    `json:"name"`
		Color          string    `json:"color"`
		Type           core.Kind `json:"type"`
		Icon           *string   `json:"icon"`
	}

	// SettingsRow is keyed by installation id rather than by row id.
	SettingsRow struct {
		InstallationID string           `json:"installation_id"`
		Currency       string           `json:"currency"`
		Language       string           `json:"language"`
		StorageMode    core.StorageMode `json:"storage_mode"`
	}
)

var (
	requiredTransactionFields = []string{"id", "installation_id", "amount", "date", "category", "type"}
	requiredBudgetFields      = []string{"id", "installation_id", "category_id", "amount", "period"}
	requiredCategoryFields    = []string{"id", "installation_id", "name", "type"}
	requiredSettingsFields    = []string{"installation_id", "currency"}
)

func (TransactionRow) Table() string   { return TableTransactions }
func (r TransactionRow) RowID() string { return r.ID }
func (BudgetRow) Table() string        { return TableBudgets }
func (r BudgetRow) RowID() string      { return r.ID }
func (CategoryRow) Table() string      { return TableCategories }
func (r CategoryRow) RowID() string    { return r.ID }
func (SettingsRow) Table() string      { return TableSettings }
func (r SettingsRow) RowID() string    { return r.InstallationID }

func NewTransactionRow(installationID string, t core.Transaction) TransactionRow {
	row := TransactionRow{
		ID:             t.ID,
		InstallationID: installationID,
		Amount:         t.Amount,
		Description:    t.Description,
		Date:           t.Date.String(),
		Category:       t.Category,
		Type:           t.Kind,
		Tags:           t.Tags,
	}
	if t.Notes != "" {
		notes := t.Notes
		row.Notes = &notes
	}
	return row
}

func NewBudgetRow(installationID string, b core.Budget) BudgetRow {
	return BudgetRow{
		ID:             b.ID,
		InstallationID: installationID,
		CategoryID:     b.CategoryID,
		Amount:         b.Amount,
		Period:         b.Period,
	}
}

func NewCategoryRow(installationID string, c core.Category) CategoryRow {
	row := CategoryRow{
		ID:             c.ID,
		InstallationID: installationID,
		Name:           c.Name,
		Color:          c.Color,
		Type:           c.Kind,
	}
	if c.Icon != "" {
		icon := c.Icon
		row.Icon = &icon
	}
	return row
}

func NewSettingsRow(installationID string, s core.UserSettings) SettingsRow {
	return SettingsRow{
		InstallationID: installationID,
		Currency:       s.Currency,
		Language:       s.Language,
		StorageMode:    s.StorageMode,
	}
}

func (r TransactionRow) Transaction() (core.Transaction, error) {
	date, err := core.ParseDate(r.Date)
	if err != nil {
		return core.Transaction{}, err
	}
	t := core.Transaction{
		ID:          r.ID,
		Amount:      r.Amount,
		Description: r.Description,
		Date:        date,
		Category:    r.Category,
		Kind:        r.Type,
		Tags:        r.Tags,
	}
	if r.Notes != nil {
		t.Notes = *r.Notes
	}
	t = t.Normalize()
	return t, t.Validate()
}

func (r BudgetRow) Budget() (core.Budget, error) {
	b := core.Budget{
		ID:         r.ID,
		CategoryID: r.CategoryID,
		Amount:     r.Amount,
		Period:     r.Period,
	}
	return b, b.Validate()
}

func (r CategoryRow) Category() (core.Category, error) {
	c := core.Category{
		ID:    r.ID,
		Name:  r.Name,
		Color: r.Color,
		Kind:  r.Type,
	}
	if r.Icon != nil {
		c.Icon = *r.Icon
	}
	return c, c.Validate()
}

func (r SettingsRow) Settings() (core.UserSettings, error) {
	s := core.UserSettings{
		Currency:    r.Currency,
		Language:    r.Language,
		StorageMode: r.StorageMode,
	}
	if s.StorageMode == "" {
		s.StorageMode = core.StorageRemote
	}
	return s, s.Validate()
}

// DecodeTransactions converts raw rows to transactions. Rows missing required
// fields or failing validation are rejected; the returned error joins one
// ParseError per rejected row and the valid rows are still returned.
func DecodeTransactions(raw []json.RawMessage) ([]core.Transaction, error) {
	return decodeRows(TableTransactions, raw, requiredTransactionFields, TransactionRow.Transaction)
}

func DecodeBudgets(raw []json.RawMessage) ([]core.Budget, error) {
	return decodeRows(TableBudgets, raw, requiredBudgetFields, BudgetRow.Budget)
}

func DecodeCategories(raw []json.RawMessage) ([]core.Category, error) {
	return decodeRows(TableCategories, raw, requiredCategoryFields, CategoryRow.Category)
}

func DecodeSettings(raw []json.RawMessage) ([]core.UserSettings, error) {
	return decodeRows(TableSettings, raw, requiredSettingsFields, SettingsRow.Settings)
}

func decodeRows[R any, T any](table string, raw []json.RawMessage, required []string, convert func(R) (T, error)) ([]T, error) {
	out := make([]T, 0, len(raw))
	var errs []error
	for i, data := range raw {
		item, err := decodeRow(data, required, convert)
		if err != nil {
			errs = append(errs, &core.ParseError{Source: fmt.Sprintf("%s row %d", table, i), Err: err})
			continue
		}
		out = append(out, item)
	}
	return out, errors.Join(errs...)
}

func decodeRow[R any, T any](data json.RawMessage, required []string, convert func(R) (T, error)) (T, error) {
	var zero T
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return zero, err
	}
	for _, name := range required {
		v, ok := fields[name]
		if !ok || string(v) == "null" {
			return zero, fmt.Errorf("missing required field %q", name)
		}
	}
	var row R
	if err := json.Unmarshal(data, &row); err != nil {
		return zero, err
	}
	return convert(row)
}
