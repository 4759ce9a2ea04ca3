package server

import (
	"sync"
	"time"

	"github.com/lawnchairsociety/roadgen/internal/config"
)

// RejectLimiter locks out addresses that keep sending requests the server
// refuses, such as malformed parameters or oversized grids. Each repeated
// lockout doubles, up to the configured cap.
type RejectLimiter struct {
	mu          sync.Mutex
	clients     map[string]*rejectRecord
	maxAttempts int
	lockout     time.Duration
	maxLockout  time.Duration
	sweepEvery  time.Duration
	stop        chan struct{}
	stopOnce    sync.Once
	now         func() time.Time
}

type rejectRecord struct {
	rejected    int
	lockedUntil time.Time
	lockouts    int
}

// NewRejectLimiter starts a limiter and its sweep goroutine. Zero values in
// cfg fall back to 5 attempts, 30s and 300s.
func NewRejectLimiter(cfg config.RateLimitConfig) *RejectLimiter {
	rl := &RejectLimiter{
		clients:     make(map[string]*rejectRecord),
		maxAttempts: cfg.MaxAttempts,
		lockout:     time.Duration(cfg.LockoutSeconds) * time.Second,
		maxLockout:  time.Duration(cfg.MaxLockoutSeconds) * time.Second,
		sweepEvery:  5 * time.Minute,
		stop:        make(chan struct{}),
		now:         time.Now,
	}
	if rl.maxAttempts == 0 {
		rl.maxAttempts = 5
	}
	if rl.lockout == 0 {
		rl.lockout = 30 * time.Second
	}
	if rl.maxLockout == 0 {
		rl.maxLockout = 300 * time.Second
	}

	go rl.sweepLoop()
	return rl
}

// Stop ends the sweep goroutine. It is safe to call more than once.
func (rl *RejectLimiter) Stop() {
	rl.stopOnce.Do(func() { close(rl.stop) })
}

// IsLocked reports whether ip is locked out and for how much longer.
func (rl *RejectLimiter) IsLocked(ip string) (bool, time.Duration) {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	rec, ok := rl.clients[ip]
	if !ok {
		return false, 0
	}
	if now := rl.now(); now.Before(rec.lockedUntil) {
		return true, rec.lockedUntil.Sub(now)
	}
	return false, 0
}

// Reject counts a refused request from ip. It returns true with the lockout
// duration once ip has reached the attempt limit.
func (rl *RejectLimiter) Reject(ip string) (bool, time.Duration) {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	rec, ok := rl.clients[ip]
	if !ok {
		rec = &rejectRecord{}
		rl.clients[ip] = rec
	}

	now := rl.now()
	if now.Before(rec.lockedUntil) {
		return true, rec.lockedUntil.Sub(now)
	}

	rec.rejected++
	if rec.rejected < rl.maxAttempts {
		return false, 0
	}

	rec.lockouts++
	d := rl.lockout
	for i := 1; i < rec.lockouts && d < rl.maxLockout; i++ {
		d *= 2
	}
	d = min(d, rl.maxLockout)

	rec.lockedUntil = now.Add(d)
	rec.rejected = 0
	return true, d
}

// Accept clears the rejection count for ip after a stream starts.
func (rl *RejectLimiter) Accept(ip string) {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	delete(rl.clients, ip)
}

// Rejections returns the refused requests counted towards ip's next lockout.
func (rl *RejectLimiter) Rejections(ip string) int {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	if rec, ok := rl.clients[ip]; ok {
		return rec.rejected
	}
	return 0
}

func (rl *RejectLimiter) sweepLoop() {
	ticker := time.NewTicker(rl.sweepEvery)
	defer ticker.Stop()

	for {
		select {
		case <-rl.stop:
			return
		case <-ticker.C:
			rl.sweep()
		}
	}
}

// sweep drops records whose lockout ended over ten minutes ago and that
// have no pending rejections.
func (rl *RejectLimiter) sweep() {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	cutoff := rl.now().Add(-10 * time.Minute)
	for ip, rec := range rl.clients {
		if rec.lockedUntil.Before(cutoff) && rec.rejected == 0 {
			delete(rl.clients, ip)
		}
	}
}
