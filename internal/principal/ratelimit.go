package principal

import (
	"sync"

	"golang.org/x/time/rate"
)

// emailLimiter is a cheap in-memory front-line check ahead of the
// persisted PasswordResetAttemptStore: a burst of requests for the same
// email within a single process is throttled before it ever reaches the
// store, so a hammering client can't run up the rolling-window count with
// requests that would fail the persisted check anyway. It is purely an
// optimization — the store-backed count in RequestPasswordReset is the
// source of truth across processes and survives restarts.
type emailLimiter struct {
	mu       sync.Mutex
	limiters map[string]*rate.Limiter
	perSec   rate.Limit
	burst    int
}

func newEmailLimiter(perSec rate.Limit, burst int) *emailLimiter {
	return &emailLimiter{limiters: make(map[string]*rate.Limiter), perSec: perSec, burst: burst}
}

func (l *emailLimiter) Allow(email string) bool {
	l.mu.Lock()
	lim, ok := l.limiters[email]
	if !ok {
		lim = rate.NewLimiter(l.perSec, l.burst)
		l.limiters[email] = lim
	}
	l.mu.Unlock()
	return lim.Allow()
}
