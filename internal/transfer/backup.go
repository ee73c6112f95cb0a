// Package transfer reads and writes the ledger's exchange formats: a JSON
// full backup and a CSV listing of transactions.
package transfer

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"

	"fintrack/internal/core"
)

// BackupVersion is written into every backup.
const BackupVersion = "1.0"

// Backup is a complete copy of one installation's ledger.
type Backup struct {
	Version        string             `json:"version"`
	ExportDate     time.Time          `json:"exportDate"`
	InstallationID string             `json:"installationId"`
	Settings       core.UserSettings  `json:"settings"`
	Transactions   []core.Transaction `json:"transactions"`
	Budgets        []core.Budget      `json:"budgets"`
	Categories     []core.Category    `json:"categories"`
}

// WriteBackup encodes b as indented JSON.
func WriteBackup(w io.Writer, b Backup) error {
	if b.Version == "" {
		b.Version = BackupVersion
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(b); err != nil {
		return fmt.Errorf("encode backup: %w", err)
	}
	return nil
}

// ReadBackup decodes and validates a backup. Any problem is a *core.ParseError.
func ReadBackup(r io.Reader) (Backup, error) {
	var b Backup
	if err := json.NewDecoder(r).Decode(&b); err != nil {
		return Backup{}, &core.ParseError{Source: "backup", Err: err}
	}
	if b.Version == "" {
		return Backup{}, &core.ParseError{Source: "backup", Err: errors.New("missing version")}
	}

	var errs []error
	for i, t := range b.Transactions {
		b.Transactions[i] = t.Normalize()
		if err := b.Transactions[i].Validate(); err != nil {
			errs = append(errs, fmt.Errorf("transaction %d (%s): %w", i, t.ID, err))
		}
	}
	for i, bud := range b.Budgets {
		if err := bud.Validate(); err != nil {
			errs = append(errs, fmt.Errorf("budget %d (%s): %w", i, bud.ID, err))
		}
	}
	for i, c := range b.Categories {
		if err := c.Validate(); err != nil {
			errs = append(errs, fmt.Errorf("category %d (%s): %w", i, c.ID, err))
		}
	}
	if b.Settings.Currency != "" {
		if err := b.Settings.Validate(); err != nil {
			errs = append(errs, fmt.Errorf("settings: %w", err))
		}
	}
	if len(errs) > 0 {
		return Backup{}, &core.ParseError{Source: "backup", Err: errors.Join(errs...)}
	}
	return b, nil
}

// MergeByID upserts incoming into existing: matching ids are replaced in
// place, new ids are appended in incoming order.
func MergeByID[T any](existing, incoming []T, id func(T) string) []T {
	out := make([]T, len(existing), len(existing)+len(incoming))
	copy(out, existing)
	index := make(map[string]int, len(out))
	for i, item := range out {
		index[id(item)] = i
	}
	for _, item := range incoming {
		if i, ok := index[id(item)]; ok {
			out[i] = item
			continue
		}
		index[id(item)] = len(out)
		out = append(out, item)
	}
	return out
}
