package remote

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/shopspring/decimal"

	"fintrack/internal/core"
)

func TestTransactionRowRoundTrip(t *testing.T) {
	want := core.Transaction{
		ID:          "t1",
		Amount:      decimal.RequireFromString("12.50"),
		Description: "Lunch",
		Date:        core.NewDate(2024, 3, 9),
		Category:    "expense-food",
		Kind:        core.Expense,
		Notes:       "with team",
		Tags:        []string{"work"},
	}
	data, err := json.Marshal(NewTransactionRow("inst-1", want))
	if err != nil {
		t.Fatal(err)
	}
	got, err := DecodeTransactions([]json.RawMessage{data})
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if diff := cmp.Diff([]core.Transaction{want}, got); diff != "" {
		t.Errorf("round trip mismatch (-want +got):\n%s", diff)
	}
}

func TestDecodeRejectsIncompleteRows(t *testing.T) {
	raw := []json.RawMessage{
		json.RawMessage(`{"id":"b1","installation_id":"i","category_id":"expense-food","amount":100,"period":"monthly"}`),
		json.RawMessage(`{"id":"b2","installation_id":"i","amount":100,"period":"monthly"}`),
		json.RawMessage(`{"id":"b3","installation_id":"i","category_id":"expense-food","amount":-5,"period":"monthly"}`),
		json.RawMessage(`not json`),
	}
	got, err := DecodeBudgets(raw)
	if len(got) != 1 || got[0].ID != "b1" {
		t.Fatalf("expected only b1 to survive, got %+v", got)
	}
	if err == nil || !core.IsParse(err) {
		t.Fatalf("expected joined parse errors, got %v", err)
	}
	var count int
	if joined, ok := err.(interface{ Unwrap() []error }); ok {
		count = len(joined.Unwrap())
	}
	if count != 3 {
		t.Fatalf("expected 3 rejected rows, got %d", count)
	}
	var perr *core.ParseError
	if !errors.As(err, &perr) || perr.Source != "budgets row 1" {
		t.Fatalf("unexpected first parse error %v", perr)
	}
}

func TestSettingsRowDefaultsToRemoteMode(t *testing.T) {
	got, err := DecodeSettings([]json.RawMessage{json.RawMessage(`{"installation_id":"i","currency":"EUR","language":"it"}`)})
	if err != nil {
		t.Fatal(err)
	}
	if got[0].StorageMode != core.StorageRemote {
		t.Fatalf("storage mode = %q", got[0].StorageMode)
	}
}
