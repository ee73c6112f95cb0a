// Package core provides money parsing and handling utilities.
//
// Amounts are kept as decimals end to end; conversion to minor units only
// happens when formatting for display.
package core

import (
	"strings"

	"github.com/Rhymond/go-money"
	"github.com/shopspring/decimal"
)

// ParseAmount converts a decimal string to a positive amount.
//
// It accepts both dot (12.34) and comma (12,34) decimal separators.
// Returns ErrInvalidAmount for invalid formats, negative values, or zero amounts.
//
// Examples:
//
//	ParseAmount("12.34") -> 12.34, nil
//	ParseAmount("12,34") -> 12.34, nil
//	ParseAmount("-1")    -> 0, ErrInvalidAmount
func ParseAmount(s string) (decimal.Decimal, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return decimal.Zero, ErrInvalidAmount
	}
	s = strings.ReplaceAll(s, ",", ".")
	if strings.HasPrefix(s, "+") || strings.HasPrefix(s, "-") {
		return decimal.Zero, ErrInvalidAmount
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, ErrInvalidAmount
	}
	if !d.IsPositive() {
		return decimal.Zero, ErrInvalidAmount
	}
	return d, nil
}

// ValidCurrency reports whether code is a known ISO 4217 currency.
func ValidCurrency(code string) bool {
	return money.GetCurrency(strings.ToUpper(strings.TrimSpace(code))) != nil
}

// FormatAmount renders d in the given currency, e.g. "$1,234.50".
// Unknown currencies fall back to a plain two-decimal rendering.
func FormatAmount(d decimal.Decimal, currency string) string {
	code := strings.ToUpper(strings.TrimSpace(currency))
	cur := money.GetCurrency(code)
	if cur == nil {
		return d.StringFixed(2)
	}
	minor := d.Shift(int32(cur.Fraction)).Round(0).IntPart()
	return money.New(minor, code).Display()
}
