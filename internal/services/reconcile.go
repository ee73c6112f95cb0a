package services

import "fintrack/internal/core"

// Source names the side whose collection was kept.
type Source string

const (
	SourceLocal  Source = "local"
	SourceRemote Source = "remote"
)

// Snapshot is the ledger content reconciled at connect time.
type Snapshot struct {
	Transactions []core.Transaction
	Budgets      []core.Budget
	Categories   []core.Category
}

// Decision records which side won for each collection.
type Decision struct {
	Transactions Source
	Budgets      Source
	Categories   Source
}

// Reconcile merges the local ledger with what the remote holds for this
// installation. Each collection is decided on its own: a non-empty remote
// collection replaces the local one, an empty one leaves local data in place.
//
// Records are never merged individually. Two installations that both hold data
// before their first connect keep only the remote side's collections.
func Reconcile(local, remote Snapshot) (Snapshot, Decision) {
	var out Snapshot
	var d Decision
	out.Transactions, d.Transactions = pick(local.Transactions, remote.Transactions)
	out.Budgets, d.Budgets = pick(local.Budgets, remote.Budgets)
	out.Categories, d.Categories = pick(local.Categories, remote.Categories)
	return out, d
}

func pick[T any](local, remote []T) ([]T, Source) {
	if len(remote) > 0 {
		return remote, SourceRemote
	}
	return local, SourceLocal
}
