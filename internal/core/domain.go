package core

import (
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

const (
	Income  Kind = "income"
	Expense Kind = "expense"

	Monthly Period = "monthly"
	Weekly  Period = "weekly"
	Yearly  Period = "yearly"

	StorageLocal  StorageMode = "local"
	StorageRemote StorageMode = "remote"
)

// UncategorizedName is displayed for transactions whose category no longer exists.
const UncategorizedName = "Uncategorized"

type (
	Kind        string
	Period      string
	StorageMode string

	// Date is an ISO-8601 timestamp. Date-only values ("2024-01-01") are accepted
	// on input and mean midnight UTC.
	Date struct {
		time.Time
	}

	Transaction struct {
		ID          string          `json:"id"`
		Amount      decimal.Decimal `json:"amount"`
		Description string          `json:"description"`
		Date        Date            `json:"date"`
		Category    string          `json:"category"`
		Kind        Kind            `json:"type"`
		Notes       string          `json:"notes,omitempty"`
		Tags        []string        `json:"tags,omitempty"`
	}

	Category struct {
		ID    string `json:"id"`
		Name  string `json:"name"`
		Color string `json:"color"`
		Kind  Kind   `json:"type"`
		Icon  string `json:"icon,omitempty"`
	}

	Budget struct {
		ID         string          `json:"id"`
		CategoryID string          `json:"categoryId"`
		Amount     decimal.Decimal `json:"amount"`
		Period     Period          `json:"period"`
	}

	UserSettings struct {
		Currency    string      `json:"currency"`
		Language    string      `json:"language"`
		StorageMode StorageMode `json:"storageMode"`
	}
)

var (
	ErrEmptyID          = errors.New("empty id")
	ErrInvalidAmount    = errors.New("invalid amount")
	ErrInvalidDate      = errors.New("invalid date")
	ErrInvalidKind      = errors.New("invalid kind")
	ErrInvalidPeriod    = errors.New("invalid period")
	ErrEmptyCategory    = errors.New("empty category")
	ErrEmptyName        = errors.New("empty name")
	ErrInvalidCurrency  = errors.New("invalid currency")
	ErrInvalidStorage   = errors.New("invalid storage mode")
	ErrDescriptionLimit = errors.New("description too long (max 200 characters)")
)

// NewID returns a fresh opaque entity identifier.
func NewID() string {
	return uuid.NewString()
}

// NewDate creates a new Date from year, month, day
func NewDate(year, month, day int) Date {
	return Date{Time: time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)}
}

// ParseDate accepts RFC 3339 timestamps and plain calendar dates.
func ParseDate(s string) (Date, error) {
	s = strings.TrimSpace(s)
	for _, layout := range []string{time.RFC3339Nano, "2006-01-02T15:04:05", "2006-01-02"} {
		if t, err := time.Parse(layout, s); err == nil {
			return Date{Time: t.UTC()}, nil
		}
	}
	return Date{}, ErrInvalidDate
}

// String renders the date as an RFC 3339 timestamp in UTC.
func (d Date) String() string {
	return d.UTC().Format(time.RFC3339Nano)
}

func (d Date) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.String())
}

func (d *Date) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return ErrInvalidDate
	}
	parsed, err := ParseDate(s)
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

func (k Kind) Valid() bool {
	return k == Income || k == Expense
}

func (p Period) Valid() bool {
	switch p {
	case Monthly, Weekly, Yearly:
		return true
	}
	return false
}

func (m StorageMode) Valid() bool {
	return m == StorageLocal || m == StorageRemote
}

func (t Transaction) Validate() error {
	if strings.TrimSpace(t.ID) == "" {
		return ErrEmptyID
	}
	if !t.Amount.IsPositive() {
		return ErrInvalidAmount
	}
	if t.Date.IsZero() {
		return ErrInvalidDate
	}
	if len(t.Description) > 200 {
		return ErrDescriptionLimit
	}
	if !t.Kind.Valid() {
		return ErrInvalidKind
	}
	if strings.TrimSpace(t.Category) == "" {
		return ErrEmptyCategory
	}
	return nil
}

// Normalize trims the free-text fields and collapses Tags to a set that keeps
// first-seen order.
func (t Transaction) Normalize() Transaction {
	t.Description = strings.TrimSpace(t.Description)
	t.Notes = strings.TrimSpace(t.Notes)
	if len(t.Tags) == 0 {
		t.Tags = nil
		return t
	}
	seen := make(map[string]struct{}, len(t.Tags))
	tags := make([]string, 0, len(t.Tags))
	for _, tag := range t.Tags {
		tag = strings.TrimSpace(tag)
		if tag == "" {
			continue
		}
		if _, ok := seen[tag]; ok {
			continue
		}
		seen[tag] = struct{}{}
		tags = append(tags, tag)
	}
	if len(tags) == 0 {
		tags = nil
	}
	t.Tags = tags
	return t
}

func (c Category) Validate() error {
	if strings.TrimSpace(c.ID) == "" {
		return ErrEmptyID
	}
	if strings.TrimSpace(c.Name) == "" {
		return ErrEmptyName
	}
	if !c.Kind.Valid() {
		return ErrInvalidKind
	}
	return nil
}

func (b Budget) Validate() error {
	if strings.TrimSpace(b.ID) == "" {
		return ErrEmptyID
	}
	if strings.TrimSpace(b.CategoryID) == "" {
		return ErrEmptyCategory
	}
	if !b.Amount.IsPositive() {
		return ErrInvalidAmount
	}
	if !b.Period.Valid() {
		return ErrInvalidPeriod
	}
	return nil
}

func (s UserSettings) Validate() error {
	if !ValidCurrency(s.Currency) {
		return ErrInvalidCurrency
	}
	if !s.StorageMode.Valid() {
		return ErrInvalidStorage
	}
	return nil
}

// DefaultSettings returns the settings of a fresh installation.
func DefaultSettings() UserSettings {
	return UserSettings{
		Currency:    "USD",
		Language:    "en",
		StorageMode: StorageLocal,
	}
}

// DefaultCategories returns the seed set written on first run.
func DefaultCategories() []Category {
	return []Category{
		{ID: "income-salary", Name: "Salary", Color: "#10b981", Kind: Income, Icon: "briefcase"},
		{ID: "income-freelance", Name: "Freelance", Color: "#06b6d4", Kind: Income, Icon: "laptop"},
		{ID: "income-investments", Name: "Investments", Color: "#8b5cf6", Kind: Income, Icon: "trending-up"},
		{ID: "income-other", Name: "Other Income", Color: "#84cc16", Kind: Income, Icon: "plus-circle"},
		{ID: "expense-food", Name: "Food & Dining", Color: "#ef4444", Kind: Expense, Icon: "utensils"},
		{ID: "expense-transport", Name: "Transportation", Color: "#f97316", Kind: Expense, Icon: "car"},
		{ID: "expense-housing", Name: "Housing", Color: "#eab308", Kind: Expense, Icon: "home"},
		{ID: "expense-utilities", Name: "Utilities", Color: "#22c55e", Kind: Expense, Icon: "zap"},
		{ID: "expense-entertainment", Name: "Entertainment", Color: "#3b82f6", Kind: Expense, Icon: "film"},
		{ID: "expense-health", Name: "Healthcare", Color: "#ec4899", Kind: Expense, Icon: "heart"},
		{ID: "expense-shopping", Name: "Shopping", Color: "#a855f7", Kind: Expense, Icon: "shopping-bag"},
		{ID: "expense-education", Name: "Education", Color: "#14b8a6", Kind: Expense, Icon: "book"},
		{ID: "expense-other", Name: "Other Expenses", Color: "#6b7280", Kind: Expense, Icon: "more-horizontal"},
	}
}

// CategoryName resolves a weak category reference. Dangling ids resolve to
// UncategorizedName.
func CategoryName(categories []Category, id string) string {
	for _, c := range categories {
		if c.ID == id {
			return c.Name
		}
	}
	return UncategorizedName
}
