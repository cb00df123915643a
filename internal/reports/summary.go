package reports

import (
	"fmt"
	"strings"
	"time"

	"moneymind/internal/core"

	"github.com/shopspring/decimal"
)

const (
	// SummaryWindowDays is how far before now the narrative summary looks.
	SummaryWindowDays = 30
	// SummaryMinTransactions is the fewest transactions in the window for which a summary is written.
	SummaryMinTransactions = 5

	InsufficientDataMessage = "Not enough data for a meaningful summary. Please add more transactions from the last 30 days."

	uncategorized = "Uncategorized"
)

// SummaryReport holds the 30 day totals behind the narrative summary.
type SummaryReport struct {
	// From is the first calendar date counted. There is no upper bound, so
	// future-dated transactions count.
	From         core.Date       `json:"from"`
	Transactions int             `json:"transactions"`
	Enough       bool            `json:"enough"`
	Income       decimal.Decimal `json:"income"`
	Expenses     decimal.Decimal `json:"expenses"`
	Net          decimal.Decimal `json:"net"`
	TopCategory  *CategoryAmount `json:"topCategory,omitempty"`
	Text         string          `json:"text"`
}

// Summarize computes the totals of every transaction whose date, taken as
// midnight UTC, is not before now minus 30 days, and renders them as text in
// the ledger currency. Past midnight the date exactly 30 days back is
// therefore excluded.
func Summarize(snap core.Snapshot, now time.Time) SummaryReport {
	cutoff := now.UTC().AddDate(0, 0, -SummaryWindowDays)
	inWindow := func(t core.Transaction) bool {
		return !t.Date.Before(cutoff)
	}

	from := core.DateOf(cutoff)
	if from.Before(cutoff) {
		from = from.AddDays(1)
	}

	r := SummaryReport{From: from, Income: decimal.Zero, Expenses: decimal.Zero, Net: decimal.Zero}
	for _, t := range snap.Transactions {
		if inWindow(t) {
			r.Transactions++
		}
	}
	if r.Transactions < SummaryMinTransactions {
		r.Text = InsufficientDataMessage
		return r
	}

	r.Enough = true
	r.Income, r.Expenses = sumByType(snap.Transactions, inWindow)
	r.Net = r.Income.Sub(r.Expenses)

	// first category wins a tie
	for _, c := range groupExpenses(snap, inWindow) {
		if r.TopCategory == nil || c.Amount.GreaterThan(r.TopCategory.Amount) {
			top := c
			r.TopCategory = &top
		}
	}

	r.Text = renderSummary(r, snap.Settings.DefaultCurrency)
	return r
}

// Narrative returns only the text of Summarize.
func Narrative(snap core.Snapshot, now time.Time) string {
	return Summarize(snap, now).Text
}

func renderSummary(r SummaryReport, currency string) string {
	outcome := "Surplus"
	if r.Net.IsNegative() {
		outcome = "Deficit"
	}

	var b strings.Builder
	b.WriteString("Here's your financial summary for the last 30 days:\n\n")
	fmt.Fprintf(&b, "• Total Income: %s\n", core.FormatMoney(r.Income, currency))
	fmt.Fprintf(&b, "• Total Expenses: %s\n", core.FormatMoney(r.Expenses, currency))
	fmt.Fprintf(&b, "• Net Change: %s (%s)\n\n", core.FormatMoney(r.Net, currency), outcome)
	if r.TopCategory != nil {
		fmt.Fprintf(&b, "Your top spending category was %q with a total of %s.\n\n",
			r.TopCategory.Name, core.FormatMoney(r.TopCategory.Amount, currency))
	}
	b.WriteString("Keep up the great work tracking your finances!")
	return b.String()
}
