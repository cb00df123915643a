// Package trace assigns request ids and logs every API call.
package trace

import (
	"context"
	"log/slog"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	applog "moneymind/internal/log"
)

// HeaderRequestID carries the request id in both directions.
const HeaderRequestID = "X-Request-ID"

type contextKey struct{}

// Middleware handles request tracing and logging
type Middleware struct {
	extractIP func(*http.Request) string
	logger    *applog.StructuredLogger

	totalRequests atomic.Int64
	totalMicros   atomic.Int64
	serverErrors  atomic.Int64
}

// Metrics summarizes the requests seen so far.
type Metrics struct {
	TotalRequests       int64 `json:"totalRequests"`
	AverageResponseTime int64 `json:"averageResponseMicros"`
	ServerErrors        int64 `json:"serverErrors"`
}

// NewMiddleware creates a trace middleware. A nil logger uses slog.Default.
func NewMiddleware(extractIP func(*http.Request) string, logger *applog.Logger) *Middleware {
	if logger == nil {
		logger = applog.New(applog.Config{Handler: slog.Default().Handler()})
	}
	return &Middleware{
		extractIP: extractIP,
		logger:    applog.NewStructuredLogger(logger.WithComponent(applog.ComponentTrace)),
	}
}

// Middleware returns HTTP middleware for request tracing. An incoming
// X-Request-ID is kept when it is a valid UUID, otherwise a fresh one is used.
func (m *Middleware) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		clientIP := ""
		if m.extractIP != nil {
			clientIP = m.extractIP(r)
		}

		requestID := r.Header.Get(HeaderRequestID)
		if _, err := uuid.Parse(requestID); err != nil {
			requestID = GenerateRequestID()
		}
		w.Header().Set(HeaderRequestID, requestID)

		ctx := context.WithValue(r.Context(), contextKey{}, requestID)
		logger := applog.FromContext(ctx).With(applog.FieldRequestID, requestID)
		ctx = applog.NewContext(ctx, logger)
		r = r.WithContext(ctx)

		rw := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
		next.ServeHTTP(rw, r)

		duration := time.Since(start)
		m.totalRequests.Add(1)
		m.totalMicros.Add(duration.Microseconds())
		if rw.statusCode >= 500 {
			m.serverErrors.Add(1)
		}

		m.logger.LogHTTPEnd(ctx, r, rw.statusCode, duration.Milliseconds(), clientIP)
	})
}

// responseWriter wraps http.ResponseWriter to capture the status code
type responseWriter struct {
	http.ResponseWriter
	statusCode  int
	wroteHeader bool
}

func (rw *responseWriter) WriteHeader(code int) {
	if !rw.wroteHeader {
		rw.statusCode = code
		rw.wroteHeader = true
	}
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *responseWriter) Write(b []byte) (int, error) {
	rw.wroteHeader = true
	return rw.ResponseWriter.Write(b)
}

// GenerateRequestID returns a random UUID.
func GenerateRequestID() string {
	return uuid.NewString()
}

// GetRequestID extracts the request ID from context
func GetRequestID(ctx context.Context) string {
	if id, ok := ctx.Value(contextKey{}).(string); ok {
		return id
	}
	return ""
}

// GetMetrics returns current metrics
func (m *Middleware) GetMetrics() Metrics {
	total := m.totalRequests.Load()
	var avg int64
	if total > 0 {
		avg = m.totalMicros.Load() / total
	}
	return Metrics{
		TotalRequests:       total,
		AverageResponseTime: avg,
		ServerErrors:        m.serverErrors.Load(),
	}
}
