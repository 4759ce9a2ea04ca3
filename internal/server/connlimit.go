package server

import (
	"net"
	"net/http"
	"strings"
	"sync"

	"github.com/lawnchairsociety/roadgen/internal/config"
)

// ConnLimiter caps concurrent frame streams per client address and in total.
type ConnLimiter struct {
	mu       sync.Mutex
	streams  map[string]int
	total    int
	maxPerIP int
	maxTotal int
}

// NewConnLimiter creates a limiter. Zero limits are unlimited.
func NewConnLimiter(cfg config.ConnectionsConfig) *ConnLimiter {
	return &ConnLimiter{
		streams:  make(map[string]int),
		maxPerIP: cfg.MaxPerIP,
		maxTotal: cfg.MaxTotal,
	}
}

// TryAcquire reserves a stream slot for ip. It returns false when either
// limit is already reached.
func (c *ConnLimiter) TryAcquire(ip string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.maxTotal > 0 && c.total >= c.maxTotal {
		return false
	}
	if c.maxPerIP > 0 && c.streams[ip] >= c.maxPerIP {
		return false
	}

	c.streams[ip]++
	c.total++
	return true
}

// Release frees a slot taken by TryAcquire.
func (c *ConnLimiter) Release(ip string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.streams[ip] > 0 {
		c.streams[ip]--
		if c.streams[ip] == 0 {
			delete(c.streams, ip)
		}
	}
	if c.total > 0 {
		c.total--
	}
}

// Stats returns the open stream count and the number of distinct addresses.
func (c *ConnLimiter) Stats() (total int, clients int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.total, len(c.streams)
}

// Count returns the open stream count for ip.
func (c *ConnLimiter) Count(ip string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.streams[ip]
}

// clientIP returns the caller's address, preferring proxy headers.
func clientIP(r *http.Request) string {
	// X-Forwarded-For is "client, proxy1, proxy2"
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		if ip := strings.TrimSpace(first); ip != "" {
			return ip
		}
	}
	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return strings.TrimSpace(xri)
	}
	return extractIP(r.RemoteAddr)
}

// extractIP strips the port from an ip:port address.
func extractIP(remoteAddr string) string {
	host, _, err := net.SplitHostPort(remoteAddr)
	if err != nil {
		return remoteAddr
	}
	return host
}
