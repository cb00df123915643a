// Package reports derives read-only views from a ledger snapshot: dashboard
// totals, budget progress, monthly series, filtered transaction lists and the
// narrative summary. Every function takes the reference time explicitly.
package reports

import (
	"moneymind/internal/core"

	"github.com/shopspring/decimal"
)

// CategoryAmount is an amount aggregated by category name.
type CategoryAmount struct {
	Name   string          `json:"name"`
	Amount decimal.Decimal `json:"amount"`
}

var hundred = decimal.NewFromInt(100)

func categoryName(snap core.Snapshot, id string) string {
	if c, ok := snap.CategoryByID(id); ok {
		return c.Name
	}
	return ""
}

func accountName(snap core.Snapshot, id string) string {
	if a, ok := snap.AccountByID(id); ok {
		return a.Name
	}
	return ""
}

// sumByType adds up income and expense amounts of the transactions accepted by keep.
func sumByType(txs []core.Transaction, keep func(core.Transaction) bool) (income, expense decimal.Decimal) {
	income, expense = decimal.Zero, decimal.Zero
	for _, t := range txs {
		if !keep(t) {
			continue
		}
		switch t.Type {
		case core.Income:
			income = income.Add(t.Amount)
		case core.Expense:
			expense = expense.Add(t.Amount)
		}
	}
	return income, expense
}
