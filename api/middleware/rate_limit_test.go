package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestIngestRateLimiterPerClient(t *testing.T) {
	limiter := NewIngestRateLimiter(1, 2)
	now := time.Date(2025, 6, 2, 10, 0, 0, 0, time.UTC)
	limiter.now = func() time.Time { return now }

	if !limiter.Allow("a") || !limiter.Allow("a") {
		t.Fatal("expected burst of 2 to be allowed")
	}
	if limiter.Allow("a") {
		t.Fatal("expected third request to be throttled")
	}
	if !limiter.Allow("b") {
		t.Fatal("expected other client to have its own bucket")
	}

	now = now.Add(time.Second)
	if !limiter.Allow("a") {
		t.Fatal("expected token to refill after one second")
	}
}

func TestIngestRateLimiterDisabled(t *testing.T) {
	limiter := NewIngestRateLimiter(0, 0)
	for i := 0; i < 100; i++ {
		if !limiter.Allow("a") {
			t.Fatal("disabled limiter must allow everything")
		}
	}
}

func TestRateLimitMiddlewareRejects(t *testing.T) {
	limiter := NewIngestRateLimiter(1, 1)
	now := time.Date(2025, 6, 2, 10, 0, 0, 0, time.UTC)
	limiter.now = func() time.Time { return now }

	calls := 0
	handler := RateLimit(limiter, nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusCreated)
	}))

	for i, want := range []int{http.StatusCreated, http.StatusTooManyRequests} {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/events", nil)
		req.Header.Set("X-Forwarded-For", "10.0.0.1, 10.0.0.2")
		resp := httptest.NewRecorder()
		handler.ServeHTTP(resp, req)
		if resp.Code != want {
			t.Fatalf("request %d: expected %d got %d", i, want, resp.Code)
		}
	}
	if calls != 1 {
		t.Fatalf("expected handler once, got %d", calls)
	}
}

func TestClientIP(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "192.168.1.5:5555"
	if got := clientIP(req); got != "192.168.1.5" {
		t.Fatalf("unexpected ip %q", got)
	}
	req.Header.Set("X-Real-IP", "10.1.1.1")
	if got := clientIP(req); got != "10.1.1.1" {
		t.Fatalf("unexpected ip %q", got)
	}
}
