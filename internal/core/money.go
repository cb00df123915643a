// Package core provides money parsing and handling utilities.
//
// This file contains functions for parsing monetary amounts from user input
// and rendering them in the ledger's currency.
package core

import (
	"strings"
	"unicode"

	"github.com/Rhymond/go-money"
	"github.com/shopspring/decimal"
)

// DefaultCurrency is used when the ledger settings do not name one.
const DefaultCurrency = money.USD

// ParseAmount converts a decimal string to a positive amount with two decimals.
//
// It accepts both dot (12.34) and comma (12,34) decimal separators and performs
// half-up rounding on the third decimal place. Returns ErrInvalidAmount for
// invalid formats, signed values, or amounts that round to zero.
//
// Examples:
//
//	ParseAmount("12.34")  -> 12.34, nil
//	ParseAmount("12,34")  -> 12.34, nil
//	ParseAmount("12.345") -> 12.35, nil
//	ParseAmount("12.344") -> 12.34, nil
func ParseAmount(s string) (decimal.Decimal, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return decimal.Zero, ErrInvalidAmount
	}
	s = strings.ReplaceAll(s, ",", ".")
	if strings.Count(s, ".") > 1 {
		return decimal.Zero, ErrInvalidAmount
	}
	for _, r := range s {
		if r != '.' && !unicode.IsDigit(r) {
			// signs, exponents and spaces are all rejected here
			return decimal.Zero, ErrInvalidAmount
		}
	}
	if strings.HasPrefix(s, ".") {
		s = "0" + s
	}
	d, err := decimal.NewFromString(strings.TrimSuffix(s, "."))
	if err != nil {
		return decimal.Zero, ErrInvalidAmount
	}
	d = d.Round(2)
	if !d.IsPositive() {
		return decimal.Zero, ErrInvalidAmount
	}
	return d, nil
}

// FormatMoney renders amount in the given ISO currency, e.g. "$1,234.50".
func FormatMoney(amount decimal.Decimal, currency string) string {
	if strings.TrimSpace(currency) == "" {
		currency = DefaultCurrency
	}
	cur := money.New(0, currency).Currency()
	minor := amount.Shift(int32(cur.Fraction)).Round(0).IntPart()
	return cur.Formatter().Format(minor)
}
