package reports

import (
	"slices"
	"time"

	"moneymind/internal/core"

	"github.com/shopspring/decimal"
)

// Stats are the dashboard totals of the calendar month containing now.
type Stats struct {
	TotalBalance    decimal.Decimal `json:"totalBalance"`
	MonthlyIncome   decimal.Decimal `json:"monthlyIncome"`
	MonthlyExpenses decimal.Decimal `json:"monthlyExpenses"`
	NetChange       decimal.Decimal `json:"netChange"`
	// SavingsRate is a whole percentage, 0 when there was no income.
	SavingsRate int64 `json:"savingsRate"`
}

func DashboardStats(snap core.Snapshot, now time.Time) Stats {
	month := core.DateOf(now)
	income, expense := sumByType(snap.Transactions, func(t core.Transaction) bool {
		return t.Date.SameMonth(month)
	})
	net := income.Sub(expense)
	return Stats{
		TotalBalance:    snap.TotalBalance(),
		MonthlyIncome:   income,
		MonthlyExpenses: expense,
		NetChange:       net,
		SavingsRate:     savingsRate(net, income),
	}
}

var half = decimal.New(5, -1)

// savingsRate rounds halves toward positive infinity.
func savingsRate(net, income decimal.Decimal) int64 {
	if !income.IsPositive() {
		return 0
	}
	return net.Mul(hundred).Div(income).Add(half).Floor().IntPart()
}

// BudgetLine is the spending of one budgeted category in the current month.
type BudgetLine struct {
	CategoryID string          `json:"categoryId"`
	Name       string          `json:"name"`
	Icon       string          `json:"icon,omitempty"`
	Budget     decimal.Decimal `json:"budget"`
	Spent      decimal.Decimal `json:"spent"`
	// Progress is spent/budget in percent, not capped at 100.
	Progress   decimal.Decimal `json:"progress"`
	OverBudget bool            `json:"overBudget"`
}

// BudgetProgress reports every category with a positive budget, in category order.
func BudgetProgress(snap core.Snapshot, now time.Time) []BudgetLine {
	month := core.DateOf(now)
	spent := make(map[string]decimal.Decimal)
	for _, t := range snap.Transactions {
		if t.Type == core.Expense && t.Date.SameMonth(month) {
			spent[t.CategoryID] = spent[t.CategoryID].Add(t.Amount)
		}
	}

	lines := []BudgetLine{}
	for _, c := range snap.Categories {
		if !c.Budget.IsPositive() {
			continue
		}
		s := spent[c.ID]
		lines = append(lines, BudgetLine{
			CategoryID: c.ID,
			Name:       c.Name,
			Icon:       c.Icon,
			Budget:     c.Budget,
			Spent:      s,
			Progress:   s.Mul(hundred).Div(c.Budget).Round(2),
			OverBudget: s.GreaterThan(c.Budget),
		})
	}
	return lines
}

// ExpensesByCategory totals the current month's expenses per category name in
// order of first appearance. Unknown categories are grouped as "Uncategorized".
func ExpensesByCategory(snap core.Snapshot, now time.Time) []CategoryAmount {
	month := core.DateOf(now)
	return groupExpenses(snap, func(t core.Transaction) bool { return t.Date.SameMonth(month) })
}

func groupExpenses(snap core.Snapshot, keep func(core.Transaction) bool) []CategoryAmount {
	out := []CategoryAmount{}
	index := make(map[string]int)
	for _, t := range snap.Transactions {
		if t.Type != core.Expense || !keep(t) {
			continue
		}
		name := categoryName(snap, t.CategoryID)
		if name == "" {
			name = uncategorized
		}
		i, ok := index[name]
		if !ok {
			i = len(out)
			index[name] = i
			out = append(out, CategoryAmount{Name: name, Amount: decimal.Zero})
		}
		out[i].Amount = out[i].Amount.Add(t.Amount)
	}
	return out
}

// RecentTransactions returns the n most recent transactions, newest first.
func RecentTransactions(snap core.Snapshot, n int) []core.Transaction {
	txs := sortedByDateDesc(snap.Transactions)
	if n >= 0 && len(txs) > n {
		txs = txs[:n]
	}
	return txs
}

// sortedByDateDesc returns a copy sorted newest first. Transactions on the same
// date keep their ledger order.
func sortedByDateDesc(txs []core.Transaction) []core.Transaction {
	out := make([]core.Transaction, len(txs))
	copy(out, txs)
	slices.SortStableFunc(out, func(a, b core.Transaction) int {
		return b.Date.Compare(a.Date.Time)
	})
	return out
}
