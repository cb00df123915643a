package reports

import (
	"fmt"

	"moneymind/internal/core"

	"github.com/shopspring/decimal"
)

// Filter selects transactions. Zero fields match everything.
type Filter struct {
	From       core.Date // inclusive
	To         core.Date // inclusive
	Type       core.TransactionType
	CategoryID string
	AccountID  string // source account
	Limit      int    // 0 means no limit
}

func (f Filter) validate(snap core.Snapshot) error {
	if f.Type != "" && !f.Type.Valid() {
		return core.Invalid("type", fmt.Errorf("unknown transaction type %q", f.Type))
	}
	if !f.From.IsEmpty() && !f.To.IsEmpty() && f.To.Before(f.From.Time) {
		return core.Invalid("to", fmt.Errorf("range end %s is before start %s", f.To, f.From))
	}
	if f.Limit < 0 {
		return core.Invalid("limit", fmt.Errorf("limit cannot be negative"))
	}
	if f.CategoryID != "" {
		if _, ok := snap.CategoryByID(f.CategoryID); !ok {
			return &core.ReferenceError{Kind: core.KindCategory, ID: f.CategoryID, Field: "category"}
		}
	}
	if f.AccountID != "" {
		if _, ok := snap.AccountByID(f.AccountID); !ok {
			return &core.ReferenceError{Kind: core.KindAccount, ID: f.AccountID, Field: "account"}
		}
	}
	return nil
}

func (f Filter) match(t core.Transaction) bool {
	switch {
	case !f.From.IsEmpty() && t.Date.Before(f.From.Time):
		return false
	case !f.To.IsEmpty() && t.Date.After(f.To.Time):
		return false
	case f.Type != "" && t.Type != f.Type:
		return false
	case f.CategoryID != "" && t.CategoryID != f.CategoryID:
		return false
	case f.AccountID != "" && t.AccountID != f.AccountID:
		return false
	}
	return true
}

// FilterTransactions returns the matching transactions newest first. Ties keep
// ledger order. Filters naming an unknown category or account are rejected.
func FilterTransactions(snap core.Snapshot, f Filter) ([]core.Transaction, error) {
	if err := f.validate(snap); err != nil {
		return nil, err
	}
	out := []core.Transaction{}
	for _, t := range snap.Transactions {
		if f.match(t) {
			out = append(out, t)
		}
	}
	out = sortedByDateDesc(out)
	if f.Limit > 0 && len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out, nil
}

// ExportRow is the flat projection of a transaction handed to exporters.
type ExportRow struct {
	Date        core.Date            `json:"date"`
	Description string               `json:"description"`
	Type        core.TransactionType `json:"type"`
	Amount      decimal.Decimal      `json:"amount"`
	Category    string               `json:"category"`
	Account     string               `json:"account"`
	Tags        []string             `json:"tags"`
}

// ExportRows projects the filtered query onto export rows. Unknown category
// and account ids export as empty names.
func ExportRows(snap core.Snapshot, f Filter) ([]ExportRow, error) {
	txs, err := FilterTransactions(snap, f)
	if err != nil {
		return nil, err
	}
	rows := make([]ExportRow, 0, len(txs))
	for _, t := range txs {
		rows = append(rows, ExportRow{
			Date:        t.Date,
			Description: t.Description,
			Type:        t.Type,
			Amount:      t.Amount,
			Category:    categoryName(snap, t.CategoryID),
			Account:     accountName(snap, t.AccountID),
			Tags:        t.Tags,
		})
	}
	return rows, nil
}
