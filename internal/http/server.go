// Package http serves the ledger as a JSON API.
package http

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"moneymind/internal/cache"
	"moneymind/internal/core"
	applog "moneymind/internal/log"
	"moneymind/internal/middleware/ratelimit"
	"moneymind/internal/middleware/security"
	"moneymind/internal/middleware/trace"
	"moneymind/internal/reports"
	"moneymind/internal/services"
	"moneymind/internal/storage"
)

// Ledger is the ledger service surface the API needs.
type Ledger interface {
	Owner() string
	Snapshot(ctx context.Context) (core.Snapshot, int64, error)
	Apply(ctx context.Context, m services.Mutation) (services.Result, error)
	ExpandDue(ctx context.Context) (int, error)
}

// Exporter writes filtered rows to CSV or the configured spreadsheet.
type Exporter interface {
	WriteCSV(ctx context.Context, w io.Writer, f reports.Filter) (storage.ExportRecord, error)
	ToSheets(ctx context.Context, f reports.Filter) (storage.ExportRecord, error)
	SheetsEnabled() bool
}

// ExportHistory lists past exports.
type ExportHistory interface {
	ListExports(ctx context.Context, owner string, limit int) ([]storage.ExportRecord, error)
}

// Pinger reports whether a backing store is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Deps are the collaborators of the API. History and Health may be nil.
type Deps struct {
	Ledger   Ledger
	Exporter Exporter
	History  ExportHistory
	Health   Pinger
}

type Options struct {
	RateLimitPerMinute int
	ReportCacheSize    int
	ReportCacheTTL     time.Duration
	TrustedProxies     []string
	Logger             *applog.Logger
	Now                func() time.Time
}

type Server struct {
	http.Server

	ledger   Ledger
	exporter Exporter
	history  ExportHistory
	health   Pinger

	reportCache  *cache.ReportCache
	cacheManager *cache.Manager
	limiter      *ratelimit.Limiter
	tracer       *trace.Middleware
	logger       *applog.Logger
	now          func() time.Time
}

// NewServer configures routes and middleware, returning a ready-to-run server.
func NewServer(addr string, deps Deps, opts Options) (*Server, error) {
	if deps.Ledger == nil {
		return nil, fmt.Errorf("ledger is required")
	}
	if opts.Logger == nil {
		opts.Logger = applog.New(applog.DefaultConfig())
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.ReportCacheSize <= 0 {
		opts.ReportCacheSize = 256
	}
	if opts.ReportCacheTTL <= 0 {
		opts.ReportCacheTTL = 5 * time.Minute
	}

	resolver, err := security.NewClientIPResolver(opts.TrustedProxies...)
	if err != nil {
		return nil, fmt.Errorf("trusted proxies: %w", err)
	}

	logger := opts.Logger.WithComponent(applog.ComponentHTTP)
	s := &Server{
		ledger:       deps.Ledger,
		exporter:     deps.Exporter,
		history:      deps.History,
		health:       deps.Health,
		reportCache:  cache.NewReportCache(opts.ReportCacheSize, opts.ReportCacheTTL),
		cacheManager: cache.NewManager(),
		limiter:      ratelimit.NewLimiter(ratelimit.Config{RequestsPerMinute: opts.RateLimitPerMinute}),
		tracer:       trace.NewMiddleware(resolver.ClientIP, logger),
		logger:       logger,
		now:          opts.Now,
	}
	s.cacheManager.Register(s.reportCache)
	s.cacheManager.StartCleanup(opts.ReportCacheTTL)

	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", handleHealth)
	mux.HandleFunc("GET /readyz", s.handleReady)

	api := http.NewServeMux()
	api.HandleFunc("GET /api/snapshot", s.handleSnapshot)
	api.HandleFunc("POST /api/mutations", s.handleMutation)
	api.HandleFunc("POST /api/recurring/run", s.handleRecurringRun)
	api.HandleFunc("GET /api/dashboard", s.handleDashboard)
	api.HandleFunc("GET /api/budgets", s.handleBudgets)
	api.HandleFunc("GET /api/series", s.handleSeries)
	api.HandleFunc("GET /api/summary", s.handleSummary)
	api.HandleFunc("GET /api/expenses-by-category", s.handleExpensesByCategory)
	api.HandleFunc("GET /api/transactions", s.handleTransactions)
	api.HandleFunc("GET /api/export.csv", s.handleExportCSV)
	api.HandleFunc("POST /api/export/sheets", s.handleExportSheets)
	api.HandleFunc("GET /api/exports", s.handleExportHistory)
	api.HandleFunc("GET /api/metrics", s.handleMetrics)
	mux.Handle("/api/", s.limiter.Middleware(resolver.ClientIP, nil)(api))

	var handler http.Handler = mux
	handler = security.Headers(security.DefaultHeadersConfig())(handler)
	handler = s.tracer.Middleware(handler)
	handler = applog.Middleware(logger)(handler)

	s.Server = http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s, nil
}

// Shutdown stops background cleanup and drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	s.limiter.Stop()
	s.cacheManager.Stop()
	return s.Server.Shutdown(ctx)
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	if s.health != nil {
		if err := s.health.Ping(r.Context()); err != nil {
			s.logger.WarnContext(r.Context(), "Readiness check failed", applog.FieldError, err)
			http.Error(w, "store unavailable", http.StatusServiceUnavailable)
			return
		}
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ready"))
}

func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"requests":    s.tracer.GetMetrics(),
		"rateLimit":   s.limiter.GetMetrics(),
		"reportCache": s.reportCache.Stats(),
	})
}
