package transfer

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"

	"fintrack/internal/core"
)

// CSVHeader is the fixed first row of a transaction export.
var CSVHeader = []string{"ID", "Date", "Description", "Category", "Type", "Amount", "Notes", "Tags"}

const (
	csvDateLayout = "2006-01-02"
	tagSeparator  = ";"
)

// WriteCSV writes txs followed by a blank row and income, expense and net
// totals formatted in currency. Categories are written by name.
func WriteCSV(w io.Writer, txs []core.Transaction, categories []core.Category, currency string) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(CSVHeader); err != nil {
		return fmt.Errorf("write csv header: %w", err)
	}
	for _, t := range txs {
		record := []string{
			t.ID,
			t.Date.UTC().Format(csvDateLayout),
			t.Description,
			core.CategoryName(categories, t.Category),
			string(t.Kind),
			t.Amount.StringFixed(2),
			t.Notes,
			strings.Join(t.Tags, tagSeparator),
		}
		if err := cw.Write(record); err != nil {
			return fmt.Errorf("write transaction %s: %w", t.ID, err)
		}
	}

	sum := core.Summarize(txs)
	footer := [][]string{
		make([]string, len(CSVHeader)),
		summaryRow("Total Income", core.FormatAmount(sum.Income, currency)),
		summaryRow("Total Expenses", core.FormatAmount(sum.Expenses, currency)),
		summaryRow("Net Balance", core.FormatAmount(sum.Net(), currency)),
	}
	if err := cw.WriteAll(footer); err != nil {
		return fmt.Errorf("write csv summary: %w", err)
	}
	return nil
}

func summaryRow(label, value string) []string {
	row := make([]string, len(CSVHeader))
	row[0] = label
	row[5] = value
	return row
}

// ReadCSV parses a transaction export. Reading stops at the first blank row or
// summary row. Categories are matched by id, then by name; unknown values are
// kept as ids. Rows without an id get a new one. The first malformed row
// aborts the import with a *core.ParseError naming its line.
func ReadCSV(r io.Reader, categories []core.Category) ([]core.Transaction, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1

	header, err := cr.Read()
	if err != nil {
		return nil, &core.ParseError{Source: "csv header", Err: err}
	}
	if err := checkHeader(header); err != nil {
		return nil, &core.ParseError{Source: "csv header", Err: err}
	}

	lookup := categoryLookup(categories)
	var out []core.Transaction
	for {
		record, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			// *csv.ParseError already carries the line
			return nil, &core.ParseError{Source: "csv", Err: err}
		}
		line, _ := cr.FieldPos(0)
		if isTerminator(record) {
			break
		}
		t, err := parseRecord(record, lookup)
		if err != nil {
			return nil, &core.ParseError{Source: "csv", Line: line, Err: err}
		}
		out = append(out, t)
	}
	return out, nil
}

func checkHeader(header []string) error {
	if len(header) < len(CSVHeader) {
		return fmt.Errorf("expected %d columns, got %d", len(CSVHeader), len(header))
	}
	for i, want := range CSVHeader {
		got := strings.TrimSpace(strings.TrimPrefix(header[i], "\ufeff"))
		if !strings.EqualFold(got, want) {
			return fmt.Errorf("column %d: expected %q, got %q", i+1, want, got)
		}
	}
	return nil
}

func isTerminator(record []string) bool {
	blank := true
	for _, f := range record {
		if strings.TrimSpace(f) != "" {
			blank = false
			break
		}
	}
	if blank {
		return true
	}
	first := strings.TrimSpace(record[0])
	return strings.HasPrefix(first, "Total ") || strings.HasPrefix(first, "Net ")
}

func parseRecord(record []string, lookup map[string]string) (core.Transaction, error) {
	if len(record) < 6 {
		return core.Transaction{}, fmt.Errorf("expected at least 6 fields, got %d", len(record))
	}
	field := func(i int) string {
		if i >= len(record) {
			return ""
		}
		return strings.TrimSpace(record[i])
	}

	date, err := core.ParseDate(field(1))
	if err != nil {
		return core.Transaction{}, fmt.Errorf("date %q: %w", field(1), err)
	}
	amount, err := core.ParseAmount(field(5))
	if err != nil {
		return core.Transaction{}, fmt.Errorf("amount %q: %w", field(5), err)
	}

	category := field(3)
	if id, ok := lookup[strings.ToLower(category)]; ok {
		category = id
	}

	t := core.Transaction{
		ID:          field(0),
		Date:        date,
		Description: field(2),
		Category:    category,
		Kind:        core.Kind(strings.ToLower(field(4))),
		Amount:      amount,
		Notes:       field(6),
	}
	if tags := field(7); tags != "" {
		t.Tags = strings.Split(tags, tagSeparator)
	}
	if t.ID == "" {
		t.ID = core.NewID()
	}
	t = t.Normalize()
	return t, t.Validate()
}

// categoryLookup maps lower-cased ids and names to ids. Ids win over names.
func categoryLookup(categories []core.Category) map[string]string {
	lookup := make(map[string]string, 2*len(categories))
	for _, c := range categories {
		if _, taken := lookup[strings.ToLower(c.Name)]; !taken {
			lookup[strings.ToLower(c.Name)] = c.ID
		}
	}
	for _, c := range categories {
		lookup[strings.ToLower(c.ID)] = c.ID
	}
	return lookup
}
