// Package sheets defines the spreadsheet export port and the tabular layout
// shared by its adapters.
package sheets

import (
	"context"
	"strings"

	"moneymind/internal/reports"
)

// RowExporter replaces the contents of a destination sheet with rows and
// returns a reference to the written range.
type RowExporter interface {
	ExportRows(ctx context.Context, rows []reports.ExportRow) (ref string, err error)
}

// Header is the first row of every export.
var Header = []string{"Date", "Description", "Type", "Amount", "Category", "Account", "Tags"}

// Record renders one row as strings in Header order.
func Record(r reports.ExportRow) []string {
	return []string{
		r.Date.String(),
		r.Description,
		string(r.Type),
		r.Amount.StringFixed(2),
		r.Category,
		r.Account,
		strings.Join(r.Tags, ", "),
	}
}

// Values renders the header and rows as a sheet value grid.
func Values(rows []reports.ExportRow) [][]any {
	out := make([][]any, 0, len(rows)+1)
	out = append(out, toAny(Header))
	for _, r := range rows {
		out = append(out, toAny(Record(r)))
	}
	return out
}

func toAny(in []string) []any {
	out := make([]any, len(in))
	for i, v := range in {
		out[i] = v
	}
	return out
}
