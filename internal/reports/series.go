package reports

import (
	"time"

	"moneymind/internal/core"

	"github.com/shopspring/decimal"
)

// SeriesMonths is the number of trailing months in MonthlySeries.
const SeriesMonths = 6

// MonthTotals are the income and expense sums of one calendar month.
type MonthTotals struct {
	Year    int             `json:"year"`
	Month   int             `json:"month"` // 1-12
	Label   string          `json:"label"`
	Income  decimal.Decimal `json:"income"`
	Expense decimal.Decimal `json:"expense"`
}

// MonthlySeries returns the trailing SeriesMonths months ending with the month
// of now, oldest first.
func MonthlySeries(snap core.Snapshot, now time.Time) []MonthTotals {
	first := core.DateOf(now).FirstOfMonth()
	series := make([]MonthTotals, 0, SeriesMonths)
	for i := SeriesMonths - 1; i >= 0; i-- {
		month := first.AddMonthsClamped(-i)
		income, expense := sumByType(snap.Transactions, func(t core.Transaction) bool {
			return t.Date.SameMonth(month)
		})
		series = append(series, MonthTotals{
			Year:    month.Year(),
			Month:   month.Month(),
			Label:   time.Month(month.Month()).String()[:3],
			Income:  income,
			Expense: expense,
		})
	}
	return series
}
