package mw

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/MrSnakeDoc/shelf/internal/logger"
)

var noContent = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusNoContent)
})

func TestMatchHost(t *testing.T) {
	tests := []struct {
		host, pattern string
		want          bool
	}{
		{"shelf.local", "shelf.local", true},
		{"a.example.com", "*.example.com", true},
		{"example.com", "*.example.com", false},
		{"badexample.com", "*.example.com", false},
		{"evil.io", "shelf.local", false},
	}
	for _, tt := range tests {
		if got := matchHost(tt.host, tt.pattern); got != tt.want {
			t.Errorf("matchHost(%q, %q) = %v, want %v", tt.host, tt.pattern, got, tt.want)
		}
	}
}

func TestEnforceHostIgnoresPortAndCase(t *testing.T) {
	h := EnforceHost([]string{"Shelf.Local"}, logger.Nop())(noContent)

	tests := []struct {
		host string
		want int
	}{
		{"shelf.local:8080", http.StatusNoContent},
		{"SHELF.local", http.StatusNoContent},
		{"other.local:8080", http.StatusForbidden},
	}
	for _, tt := range tests {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Host = tt.host
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		if rec.Code != tt.want {
			t.Errorf("host %q status = %d, want %d", tt.host, rec.Code, tt.want)
		}
	}
}

func TestRateLimitRefillsAndSkipsReads(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	h := RateLimit(RateLimitConfig{
		PerMinute: 60,
		Burst:     1,
		Now:       func() time.Time { return now },
	}, logger.Nop())(noContent)

	send := func(method string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(method, "/", nil)
		req.RemoteAddr = "10.0.0.1:1234"
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		return rec
	}

	if rec := send(http.MethodPost); rec.Code != http.StatusNoContent {
		t.Fatalf("first write status = %d", rec.Code)
	}
	rec := send(http.MethodPost)
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("second write status = %d, want 429", rec.Code)
	}
	if got := rec.Header().Get("Retry-After"); got != "1" {
		t.Errorf("Retry-After = %q, want 1", got)
	}
	if rec := send(http.MethodGet); rec.Code != http.StatusNoContent {
		t.Errorf("read status = %d, want passthrough", rec.Code)
	}

	now = now.Add(time.Second)
	if rec := send(http.MethodDelete); rec.Code != http.StatusNoContent {
		t.Errorf("write after refill status = %d", rec.Code)
	}
}

func TestAllowOnlyCIDRS(t *testing.T) {
	h := AllowOnlyCIDRS([]string{"10.0.0.0/8"}, false, logger.Nop())(noContent)

	for remote, want := range map[string]int{
		"10.9.8.7:1":    http.StatusNoContent,
		"192.0.2.1:1":   http.StatusForbidden,
		"not-an-addr:1": http.StatusForbidden,
	} {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.RemoteAddr = remote
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		if rec.Code != want {
			t.Errorf("%s status = %d, want %d", remote, rec.Code, want)
		}
	}
}
