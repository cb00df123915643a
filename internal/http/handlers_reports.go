package http

import (
	"net/http"
	"strconv"

	"moneymind/internal/cache"
	"moneymind/internal/core"
	"moneymind/internal/reports"
)

// recentCount is the length of the dashboard's recent transaction list.
const recentCount = 5

type dashboardResponse struct {
	Stats              reports.Stats      `json:"stats"`
	RecentTransactions []core.Transaction `json:"recentTransactions"`
}

// serveReport renders a report over the current snapshot, memoized per
// ledger version and calendar day.
func serveReport[T any](s *Server, w http.ResponseWriter, r *http.Request, name string, build func(core.Snapshot) (T, error), params ...string) {
	snap, version, err := s.ledger.Snapshot(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}

	today := core.DateOf(s.now()).String()
	key := cache.ReportKey(s.ledger.Owner(), version, name, append([]string{today}, params...)...)
	report, err := cache.Report(s.reportCache, key, func() (T, error) { return build(snap) })
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func (s *Server) handleDashboard(w http.ResponseWriter, r *http.Request) {
	serveReport(s, w, r, "dashboard", func(snap core.Snapshot) (dashboardResponse, error) {
		return dashboardResponse{
			Stats:              reports.DashboardStats(snap, s.now()),
			RecentTransactions: reports.RecentTransactions(snap, recentCount),
		}, nil
	})
}

func (s *Server) handleBudgets(w http.ResponseWriter, r *http.Request) {
	serveReport(s, w, r, "budgets", func(snap core.Snapshot) ([]reports.BudgetLine, error) {
		return reports.BudgetProgress(snap, s.now()), nil
	})
}

func (s *Server) handleSeries(w http.ResponseWriter, r *http.Request) {
	serveReport(s, w, r, "series", func(snap core.Snapshot) ([]reports.MonthTotals, error) {
		return reports.MonthlySeries(snap, s.now()), nil
	})
}

func (s *Server) handleSummary(w http.ResponseWriter, r *http.Request) {
	serveReport(s, w, r, "summary", func(snap core.Snapshot) (reports.SummaryReport, error) {
		return reports.Summarize(snap, s.now()), nil
	})
}

func (s *Server) handleExpensesByCategory(w http.ResponseWriter, r *http.Request) {
	serveReport(s, w, r, "expenses-by-category", func(snap core.Snapshot) ([]reports.CategoryAmount, error) {
		return reports.ExpensesByCategory(snap, s.now()), nil
	})
}

func (s *Server) handleTransactions(w http.ResponseWriter, r *http.Request) {
	f, err := ParseFilter(r.URL.Query())
	if err != nil {
		writeError(w, r, err)
		return
	}
	serveReport(s, w, r, "transactions", func(snap core.Snapshot) ([]core.Transaction, error) {
		return reports.FilterTransactions(snap, f)
	}, filterParams(f)...)
}

// filterParams renders f canonically for cache keys.
func filterParams(f reports.Filter) []string {
	return []string{
		"from=" + f.From.String(),
		"to=" + f.To.String(),
		"type=" + string(f.Type),
		"category=" + f.CategoryID,
		"account=" + f.AccountID,
		"limit=" + strconv.Itoa(f.Limit),
	}
}
