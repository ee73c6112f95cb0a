package core

import "github.com/shopspring/decimal"

// Summary aggregates a set of transactions by kind.
type Summary struct {
	Income   decimal.Decimal
	Expenses decimal.Decimal
	Count    int
}

// Net is income minus expenses.
func (s Summary) Net() decimal.Decimal {
	return s.Income.Sub(s.Expenses)
}

// Summarize totals transactions by kind.
func Summarize(txs []Transaction) Summary {
	s := Summary{Income: decimal.Zero, Expenses: decimal.Zero}
	for _, t := range txs {
		switch t.Kind {
		case Income:
			s.Income = s.Income.Add(t.Amount)
		case Expense:
			s.Expenses = s.Expenses.Add(t.Amount)
		}
		s.Count++
	}
	return s
}
