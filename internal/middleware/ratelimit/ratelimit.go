// Package ratelimit throttles API clients per IP with a fixed one minute window.
package ratelimit

import (
	"encoding/json"
	"net/http"
	"strconv"
	"sync"
	"sync/atomic"
	"time"
)

const window = time.Minute

// Limiter provides rate limiting functionality
type Limiter struct {
	mu           sync.Mutex
	clients      map[string]*clientInfo
	stopCleanup  chan struct{}
	shutdownOnce sync.Once
	now          func() time.Time

	requestsPerMinute int
	cleanupInterval   time.Duration
	staleAfter        time.Duration

	limited atomic.Int64
}

type clientInfo struct {
	windowStart time.Time
	lastRequest time.Time
	requests    int
}

// Config holds rate limiter configuration
type Config struct {
	RequestsPerMinute int
	CleanupInterval   time.Duration
	StaleAfter        time.Duration
}

// DefaultConfig returns sensible defaults
func DefaultConfig() Config {
	return Config{
		RequestsPerMinute: 60,
		CleanupInterval:   5 * time.Minute,
		StaleAfter:        10 * time.Minute,
	}
}

// NewLimiter creates a limiter and starts its cleanup goroutine; call Stop to end it.
func NewLimiter(config Config) *Limiter {
	defaults := DefaultConfig()
	if config.RequestsPerMinute <= 0 {
		config.RequestsPerMinute = defaults.RequestsPerMinute
	}
	if config.CleanupInterval <= 0 {
		config.CleanupInterval = defaults.CleanupInterval
	}
	if config.StaleAfter <= 0 {
		config.StaleAfter = defaults.StaleAfter
	}

	rl := &Limiter{
		clients:           make(map[string]*clientInfo),
		stopCleanup:       make(chan struct{}),
		now:               time.Now,
		requestsPerMinute: config.RequestsPerMinute,
		cleanupInterval:   config.CleanupInterval,
		staleAfter:        config.StaleAfter,
	}
	go rl.startCleanup()
	return rl
}

// Allow reports whether clientIP may make another request in its current window.
func (rl *Limiter) Allow(clientIP string) bool {
	_, ok := rl.take(clientIP)
	return ok
}

// take counts a request and returns how long until the client's window resets.
func (rl *Limiter) take(clientIP string) (time.Duration, bool) {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	client, exists := rl.clients[clientIP]
	if !exists || now.Sub(client.windowStart) >= window {
		rl.clients[clientIP] = &clientInfo{windowStart: now, lastRequest: now, requests: 1}
		return window, true
	}

	client.requests++
	client.lastRequest = now
	reset := window - now.Sub(client.windowStart)
	if client.requests > rl.requestsPerMinute {
		rl.limited.Add(1)
		return reset, false
	}
	return reset, true
}

func (rl *Limiter) startCleanup() {
	ticker := time.NewTicker(rl.cleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			rl.cleanupStaleEntries()
		case <-rl.stopCleanup:
			return
		}
	}
}

// cleanupStaleEntries forgets clients idle for longer than staleAfter.
func (rl *Limiter) cleanupStaleEntries() int {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	cutoff := rl.now().Add(-rl.staleAfter)
	removed := 0
	for ip, client := range rl.clients {
		if client.lastRequest.Before(cutoff) {
			delete(rl.clients, ip)
			removed++
		}
	}
	return removed
}

// ActiveClients returns the number of currently tracked clients
func (rl *Limiter) ActiveClients() int {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	return len(rl.clients)
}

// Stop gracefully shuts down the rate limiter cleanup goroutine
func (rl *Limiter) Stop() {
	rl.shutdownOnce.Do(func() {
		close(rl.stopCleanup)
	})
}

// Metrics for monitoring rate limit performance
type Metrics struct {
	LimitedRequests int64 `json:"limitedRequests"`
	ClientCount     int64 `json:"clientCount"`
}

func (rl *Limiter) GetMetrics() Metrics {
	return Metrics{
		LimitedRequests: rl.limited.Load(),
		ClientCount:     int64(rl.ActiveClients()),
	}
}

// Middleware rejects over-limit requests. onLimit may be nil, in which case a
// JSON 429 body is written.
func (rl *Limiter) Middleware(extractIP func(*http.Request) string, onLimit func(http.ResponseWriter, *http.Request)) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			reset, ok := rl.take(extractIP(r))
			if !ok {
				w.Header().Set("Retry-After", strconv.Itoa(int(reset.Round(time.Second).Seconds())))
				if onLimit != nil {
					onLimit(w, r)
					return
				}
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusTooManyRequests)
				_ = json.NewEncoder(w).Encode(map[string]string{
					"error":   "rate_limited",
					"message": "Rate limit exceeded. Please try again later.",
				})
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
