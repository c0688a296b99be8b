package middleware

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestRateLimiterAllowsWithinBurst(t *testing.T) {
	rl := NewRateLimiter(1, 3)

	for i := 0; i < 3; i++ {
		if !rl.Allow("10.0.0.1") {
			t.Fatalf("expected request %d within burst to be allowed", i+1)
		}
	}
	if rl.Allow("10.0.0.1") {
		t.Fatalf("expected request beyond burst to be denied")
	}
	// A different client has its own bucket.
	if !rl.Allow("10.0.0.2") {
		t.Fatalf("expected fresh client to be allowed")
	}
}

func TestRateLimitRejectsWithJSON(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	mw := RateLimit(0.001, 1)
	wrapped := mw(handler)

	req := httptest.NewRequest(http.MethodPost, "/api/webhooks/sms", nil)
	req.RemoteAddr = "203.0.113.9:41852"

	rec := httptest.NewRecorder()
	wrapped.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected first request to pass, got %d", rec.Code)
	}

	// Same host, different source port: must drain the same bucket.
	req2 := httptest.NewRequest(http.MethodPost, "/api/webhooks/sms", nil)
	req2.RemoteAddr = "203.0.113.9:41999"

	rec2 := httptest.NewRecorder()
	wrapped.ServeHTTP(rec2, req2)
	if rec2.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d", rec2.Code)
	}
	if got := rec2.Header().Get("Retry-After"); got != "1" {
		t.Fatalf("expected Retry-After header, got %q", got)
	}
	if !strings.Contains(rec2.Body.String(), `"error"`) {
		t.Fatalf("expected JSON error body, got %q", rec2.Body.String())
	}
}
