package services

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/shopspring/decimal"

	"fintrack/internal/core"
)

func TestReconcile(t *testing.T) {
	localTx := []core.Transaction{tx("l1", 1), tx("l2", 2)}
	remoteTx := []core.Transaction{tx("r1", 3)}
	localBudgets := []core.Budget{{ID: "lb", CategoryID: "expense-food", Amount: decimal.NewFromInt(1), Period: core.Monthly}}
	custom := core.Category{ID: "custom", Name: "Custom", Color: "#000000", Kind: core.Expense}

	tests := []struct {
		name     string
		local    Snapshot
		remote   Snapshot
		want     Snapshot
		decision Decision
	}{
		{
			name:     "empty remote keeps local",
			local:    Snapshot{Transactions: localTx, Budgets: localBudgets, Categories: core.DefaultCategories()},
			remote:   Snapshot{},
			want:     Snapshot{Transactions: localTx, Budgets: localBudgets, Categories: core.DefaultCategories()},
			decision: Decision{SourceLocal, SourceLocal, SourceLocal},
		},
		{
			name:     "non-empty remote replaces local per collection",
			local:    Snapshot{Transactions: localTx, Budgets: localBudgets, Categories: core.DefaultCategories()},
			remote:   Snapshot{Transactions: remoteTx, Categories: []core.Category{custom}},
			want:     Snapshot{Transactions: remoteTx, Budgets: localBudgets, Categories: []core.Category{custom}},
			decision: Decision{Transactions: SourceRemote, Budgets: SourceLocal, Categories: SourceRemote},
		},
		{
			name:     "both empty",
			want:     Snapshot{},
			decision: Decision{SourceLocal, SourceLocal, SourceLocal},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, decision := Reconcile(tt.local, tt.remote)
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("snapshot (-want +got):\n%s", diff)
			}
			if diff := cmp.Diff(tt.decision, decision); diff != "" {
				t.Errorf("decision (-want +got):\n%s", diff)
			}
		})
	}
}
