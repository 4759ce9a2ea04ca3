package server

import (
	"net/http"
	"testing"

	"github.com/lawnchairsociety/roadgen/internal/config"
)

func TestConnLimiter_PerIPLimit(t *testing.T) {
	limiter := NewConnLimiter(config.ConnectionsConfig{MaxPerIP: 2, MaxTotal: 100})

	if !limiter.TryAcquire("192.168.1.1") {
		t.Error("first stream should be allowed")
	}
	if !limiter.TryAcquire("192.168.1.1") {
		t.Error("second stream should be allowed")
	}
	if limiter.TryAcquire("192.168.1.1") {
		t.Error("third stream from the same address should be rejected")
	}
	if !limiter.TryAcquire("192.168.1.2") {
		t.Error("stream from another address should be allowed")
	}

	limiter.Release("192.168.1.1")
	if !limiter.TryAcquire("192.168.1.1") {
		t.Error("stream should be allowed after release")
	}
}

func TestConnLimiter_TotalLimit(t *testing.T) {
	limiter := NewConnLimiter(config.ConnectionsConfig{MaxPerIP: 10, MaxTotal: 2})

	limiter.TryAcquire("10.0.0.1")
	limiter.TryAcquire("10.0.0.2")
	if limiter.TryAcquire("10.0.0.3") {
		t.Error("third stream should be rejected by the total limit")
	}

	limiter.Release("10.0.0.1")
	if !limiter.TryAcquire("10.0.0.3") {
		t.Error("stream should be allowed after release")
	}
}

func TestConnLimiter_Unlimited(t *testing.T) {
	limiter := NewConnLimiter(config.ConnectionsConfig{})
	for i := 0; i < 100; i++ {
		if !limiter.TryAcquire("192.168.1.1") {
			t.Fatalf("stream %d should be allowed when unlimited", i)
		}
	}
}

func TestConnLimiter_ReleaseUnknown(t *testing.T) {
	limiter := NewConnLimiter(config.ConnectionsConfig{MaxPerIP: 1, MaxTotal: 1})
	limiter.Release("192.168.1.9")

	if total, clients := limiter.Stats(); total != 0 || clients != 0 {
		t.Errorf("Stats() = %d, %d; want 0, 0", total, clients)
	}
	if !limiter.TryAcquire("192.168.1.1") {
		t.Error("stray release must not block later streams")
	}
}

func TestConnLimiter_Stats(t *testing.T) {
	limiter := NewConnLimiter(config.ConnectionsConfig{MaxPerIP: 10, MaxTotal: 100})

	limiter.TryAcquire("192.168.1.1")
	limiter.TryAcquire("192.168.1.1")
	limiter.TryAcquire("192.168.1.2")

	total, clients := limiter.Stats()
	if total != 3 {
		t.Errorf("expected total 3, got %d", total)
	}
	if clients != 2 {
		t.Errorf("expected 2 addresses, got %d", clients)
	}
	if n := limiter.Count("192.168.1.1"); n != 2 {
		t.Errorf("Count(192.168.1.1) = %d, want 2", n)
	}
	if n := limiter.Count("192.168.1.3"); n != 0 {
		t.Errorf("Count(unknown) = %d, want 0", n)
	}
}

func TestExtractIP(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"192.168.1.1:12345", "192.168.1.1"},
		{"[::1]:12345", "::1"},
		{"localhost:8080", "localhost"},
		{"192.168.1.1", "192.168.1.1"},
	}

	for _, tt := range tests {
		if got := extractIP(tt.input); got != tt.expected {
			t.Errorf("extractIP(%q) = %q, want %q", tt.input, got, tt.expected)
		}
	}
}

func TestClientIP(t *testing.T) {
	tests := []struct {
		name       string
		xff        string
		xri        string
		remoteAddr string
		expected   string
	}{
		{"forwarded single", "203.0.113.50", "", "10.0.0.1:12345", "203.0.113.50"},
		{"forwarded chain", "203.0.113.50, 70.41.3.18, 150.172.238.178", "", "10.0.0.1:12345", "203.0.113.50"},
		{"real ip", "", "203.0.113.50", "10.0.0.1:12345", "203.0.113.50"},
		{"forwarded wins", "203.0.113.50", "198.51.100.25", "10.0.0.1:12345", "203.0.113.50"},
		{"blank forwarded entry", " , 70.41.3.18", "", "10.0.0.1:12345", "10.0.0.1"},
		{"remote addr", "", "", "192.168.1.100:54321", "192.168.1.100"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := &http.Request{RemoteAddr: tt.remoteAddr, Header: make(http.Header)}
			if tt.xff != "" {
				req.Header.Set("X-Forwarded-For", tt.xff)
			}
			if tt.xri != "" {
				req.Header.Set("X-Real-IP", tt.xri)
			}
			if got := clientIP(req); got != tt.expected {
				t.Errorf("clientIP() = %q, want %q", got, tt.expected)
			}
		})
	}
}
