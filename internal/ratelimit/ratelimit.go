// ABOUTME: Fixed-window per-IP login attempt limiter
// ABOUTME: Buckets restart after the window elapses; successful logins reset their IP

package ratelimit

import (
	"sync"
	"time"
)

const (
	// LoginMaxAttempts is how many attempts an IP gets per window.
	LoginMaxAttempts = 5
	// LoginWindow is the fixed window length.
	LoginWindow = 15 * time.Minute
)

// bucket tracks attempts from one IP. Once now passes resetAt the
// bucket is stale and the next attempt restarts it at count=1.
type bucket struct {
	count   int
	resetAt time.Time
}

// Limiter tracks login attempts per client IP in memory. State is
// process-lifetime: restarts clear it. The map grows with distinct
// IPs between Sweep calls; the gateway runs Sweep on a ticker.
type Limiter struct {
	mu      sync.Mutex
	buckets map[string]*bucket
}

// New returns an empty limiter.
func New() *Limiter {
	return &Limiter{buckets: make(map[string]*bucket)}
}

// IsLimited reports whether the IP has exhausted its attempts in the
// current window. A stale bucket never limits.
func (l *Limiter) IsLimited(ip string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	b, ok := l.buckets[ip]
	if !ok || time.Now().After(b.resetAt) {
		return false
	}
	return b.count >= LoginMaxAttempts
}

// RecordAttempt counts a login attempt against the IP, starting a
// fresh window if none is active.
func (l *Limiter) RecordAttempt(ip string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := time.Now()
	b, ok := l.buckets[ip]
	if !ok || now.After(b.resetAt) {
		l.buckets[ip] = &bucket{count: 1, resetAt: now.Add(LoginWindow)}
		return
	}
	b.count++
}

// Reset deletes the IP's bucket. Called after a successful login so
// the window tracks consecutive failures only.
func (l *Limiter) Reset(ip string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.buckets, ip)
}

// RetryAfter returns how long until the IP's window resets, or zero if
// the IP is not currently limited.
func (l *Limiter) RetryAfter(ip string) time.Duration {
	l.mu.Lock()
	defer l.mu.Unlock()

	b, ok := l.buckets[ip]
	if !ok {
		return 0
	}
	now := time.Now()
	if now.After(b.resetAt) || b.count < LoginMaxAttempts {
		return 0
	}
	return b.resetAt.Sub(now)
}

// Sweep drops stale buckets. Run periodically; correctness does not
// depend on it, only memory use.
func (l *Limiter) Sweep() {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := time.Now()
	for ip, b := range l.buckets {
		if now.After(b.resetAt) {
			delete(l.buckets, ip)
		}
	}
}
