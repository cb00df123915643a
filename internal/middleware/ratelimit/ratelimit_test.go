package ratelimit

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func newTestLimiter(t *testing.T, perMinute int) (*Limiter, *time.Time) {
	t.Helper()
	rl := NewLimiter(Config{RequestsPerMinute: perMinute, CleanupInterval: time.Hour})
	t.Cleanup(rl.Stop)
	now := time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)
	rl.now = func() time.Time { return now }
	return rl, &now
}

func TestLimiter_Allow(t *testing.T) {
	rl, now := newTestLimiter(t, 3)

	for i := range 3 {
		if !rl.Allow("1.1.1.1") {
			t.Fatalf("request %d should be allowed", i+1)
		}
	}
	if rl.Allow("1.1.1.1") {
		t.Error("4th request should be limited")
	}
	if !rl.Allow("2.2.2.2") {
		t.Error("other clients are counted separately")
	}

	// steady traffic does not extend a fixed window
	*now = now.Add(59 * time.Second)
	if rl.Allow("1.1.1.1") {
		t.Error("still inside the first window")
	}
	*now = now.Add(time.Second)
	if !rl.Allow("1.1.1.1") {
		t.Error("window should have reset")
	}

	if m := rl.GetMetrics(); m.LimitedRequests != 2 || m.ClientCount != 2 {
		t.Errorf("GetMetrics() = %+v", m)
	}
}

func TestLimiter_CleanupStaleEntries(t *testing.T) {
	rl, now := newTestLimiter(t, 10)
	rl.Allow("a")
	*now = now.Add(8 * time.Minute)
	rl.Allow("b")
	*now = now.Add(3 * time.Minute)

	if removed := rl.cleanupStaleEntries(); removed != 1 {
		t.Errorf("removed = %d, want 1", removed)
	}
	if rl.ActiveClients() != 1 {
		t.Errorf("ActiveClients() = %d, want 1", rl.ActiveClients())
	}
}

func TestLimiter_Middleware(t *testing.T) {
	rl, _ := newTestLimiter(t, 1)
	h := rl.Middleware(func(r *http.Request) string { return r.RemoteAddr }, nil)(
		http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusNoContent) }))

	first := httptest.NewRecorder()
	h.ServeHTTP(first, httptest.NewRequest(http.MethodGet, "/", nil))
	if first.Code != http.StatusNoContent {
		t.Fatalf("first status = %d", first.Code)
	}

	second := httptest.NewRecorder()
	h.ServeHTTP(second, httptest.NewRequest(http.MethodGet, "/", nil))
	if second.Code != http.StatusTooManyRequests {
		t.Fatalf("second status = %d", second.Code)
	}
	if second.Header().Get("Retry-After") != "60" {
		t.Errorf("Retry-After = %q", second.Header().Get("Retry-After"))
	}
	if ct := second.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type = %q", ct)
	}
}
