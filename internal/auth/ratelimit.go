package auth

import (
	"sync"
	"time"
)

// LoginLimiter throttles failed login attempts per client IP. After each
// failure the next attempt from the same IP must wait twice as long, up to
// the window cap; a successful login clears the IP.
type LoginLimiter struct {
	mu          sync.Mutex
	attempts    map[string]*loginAttempts
	maxAttempts int
	window      time.Duration
	now         func() time.Time
}

type loginAttempts struct {
	failures int
	firstAt  time.Time
	lastFail time.Time
}

// NewLoginLimiter creates a limiter allowing maxAttempts failures per
// window (e.g. 5 per 15 minutes).
func NewLoginLimiter(maxAttempts int, window time.Duration) *LoginLimiter {
	return &LoginLimiter{
		attempts:    make(map[string]*loginAttempts),
		maxAttempts: maxAttempts,
		window:      window,
		now:         time.Now,
	}
}

// Allow reports whether the IP may attempt a login now, and if not, how
// long it has to wait. Stale entries are dropped on access.
func (l *LoginLimiter) Allow(ip string) (bool, time.Duration) {
	l.mu.Lock()
	defer l.mu.Unlock()

	info, ok := l.attempts[ip]
	if !ok {
		return true, 0
	}
	if l.now().Sub(info.firstAt) > l.window {
		delete(l.attempts, ip)
		return true, 0
	}

	if info.failures >= l.maxAttempts {
		return false, l.window - l.now().Sub(info.firstAt)
	}

	// Exponential backoff between attempts: 1s, 2s, 4s, ...
	backoff := time.Second << (info.failures - 1)
	if elapsed := l.now().Sub(info.lastFail); elapsed < backoff {
		return false, backoff - elapsed
	}
	return true, 0
}

// RecordFailure counts a failed login for the IP.
func (l *LoginLimiter) RecordFailure(ip string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	info, ok := l.attempts[ip]
	if !ok {
		l.attempts[ip] = &loginAttempts{failures: 1, firstAt: l.now(), lastFail: l.now()}
		return
	}
	info.failures++
	info.lastFail = l.now()
}

// RecordSuccess clears the IP's failure history.
func (l *LoginLimiter) RecordSuccess(ip string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.attempts, ip)
}
