package core

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func validTransaction() Transaction {
	return Transaction{
		ID:          "t1",
		Amount:      decimal.NewFromInt(100),
		Description: "groceries",
		Date:        NewDate(2024, 1, 1),
		Category:    "expense-food",
		Kind:        Expense,
	}
}

func TestTransactionValidate(t *testing.T) {
	good := validTransaction()
	if err := good.Validate(); err != nil {
		t.Fatalf("expected ok, got %v", err)
	}

	cases := []struct {
		name   string
		mutate func(*Transaction)
		want   error
	}{
		{"empty id", func(tx *Transaction) { tx.ID = " " }, ErrEmptyID},
		{"zero amount", func(tx *Transaction) { tx.Amount = decimal.Zero }, ErrInvalidAmount},
		{"negative amount", func(tx *Transaction) { tx.Amount = decimal.NewFromInt(-5) }, ErrInvalidAmount},
		{"zero date", func(tx *Transaction) { tx.Date = Date{} }, ErrInvalidDate},
		{"bad kind", func(tx *Transaction) { tx.Kind = "transfer" }, ErrInvalidKind},
		{"no category", func(tx *Transaction) { tx.Category = "" }, ErrEmptyCategory},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			tx := validTransaction()
			tc.mutate(&tx)
			if err := tx.Validate(); err != tc.want {
				t.Fatalf("got %v, want %v", err, tc.want)
			}
		})
	}
}

func TestTransactionNormalizeTags(t *testing.T) {
	tx := validTransaction()
	tx.Tags = []string{"work", " travel ", "work", "", "travel"}
	got := tx.Normalize().Tags
	if len(got) != 2 || got[0] != "work" || got[1] != "travel" {
		t.Fatalf("unexpected tags: %v", got)
	}

	tx.Tags = []string{" ", ""}
	if got := tx.Normalize().Tags; got != nil {
		t.Fatalf("expected nil tags, got %v", got)
	}
}

func TestDateJSON(t *testing.T) {
	var d Date
	if err := json.Unmarshal([]byte(`"2024-01-01"`), &d); err != nil {
		t.Fatalf("unmarshal date-only: %v", err)
	}
	if !d.Equal(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)) {
		t.Fatalf("unexpected date %v", d)
	}

	data, err := json.Marshal(d)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if string(data) != `"2024-01-01T00:00:00Z"` {
		t.Fatalf("unexpected encoding %s", data)
	}

	if err := json.Unmarshal([]byte(`"yesterday"`), &d); err == nil {
		t.Fatal("expected error for invalid date")
	}
}

func TestBudgetValidate(t *testing.T) {
	b := Budget{ID: "b1", CategoryID: "expense-food", Amount: decimal.NewFromInt(300), Period: Monthly}
	if err := b.Validate(); err != nil {
		t.Fatalf("expected ok, got %v", err)
	}
	b.Period = "daily"
	if err := b.Validate(); err != ErrInvalidPeriod {
		t.Fatalf("got %v, want ErrInvalidPeriod", err)
	}
}

func TestSettingsValidate(t *testing.T) {
	if err := DefaultSettings().Validate(); err != nil {
		t.Fatalf("default settings invalid: %v", err)
	}
	s := DefaultSettings()
	s.Currency = "XXY"
	if err := s.Validate(); err != ErrInvalidCurrency {
		t.Fatalf("got %v, want ErrInvalidCurrency", err)
	}
}

func TestDefaultCategoriesAreValidAndUnique(t *testing.T) {
	seen := map[string]bool{}
	for _, c := range DefaultCategories() {
		if err := c.Validate(); err != nil {
			t.Fatalf("category %s invalid: %v", c.ID, err)
		}
		if seen[c.ID] {
			t.Fatalf("duplicate category id %s", c.ID)
		}
		seen[c.ID] = true
	}
}

func TestCategoryNameDangling(t *testing.T) {
	cats := DefaultCategories()
	if got := CategoryName(cats, "expense-food"); got != "Food & Dining" {
		t.Fatalf("got %q", got)
	}
	if got := CategoryName(cats, "deleted-category"); got != UncategorizedName {
		t.Fatalf("got %q, want %q", got, UncategorizedName)
	}
}

func TestNewChangeDeleteHasNoPayload(t *testing.T) {
	c, err := NewChange(EntityTransaction, OpDelete, "t1", validTransaction())
	if err != nil {
		t.Fatal(err)
	}
	if c.Payload != nil {
		t.Fatalf("delete should carry no payload, got %s", c.Payload)
	}
	if c.Key() != "transaction:t1" {
		t.Fatalf("unexpected key %q", c.Key())
	}
}
