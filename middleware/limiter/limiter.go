// Package limiter bounds how many turns a user may send per time window.
package limiter

import (
	"sync"
	"time"

	"github.com/sweetpotato0/fiberkb/middleware"
)

// ErrRateLimitExceeded is re-exported for callers that only import the limiter.
var ErrRateLimitExceeded = middleware.ErrRateLimitExceeded

type window struct {
	start time.Time
	count int
}

// RateLimiter is a fixed-window limiter keyed by user id. Anonymous turns share one key.
type RateLimiter struct {
	mu          sync.Mutex
	maxRequests int
	period      time.Duration
	now         func() time.Time
	windows     map[string]*window
}

// NewRateLimiter allows maxRequests turns per user every period.
func NewRateLimiter(maxRequests int, period time.Duration) *RateLimiter {
	if period <= 0 {
		period = time.Minute
	}
	return &RateLimiter{
		maxRequests: maxRequests,
		period:      period,
		now:         time.Now,
		windows:     make(map[string]*window),
	}
}

// Name returns the middleware name.
func (m *RateLimiter) Name() string {
	return "RateLimiter"
}

// Execute checks the caller's window before continuing.
func (m *RateLimiter) Execute(ctx *middleware.Context, next middleware.Handler) error {
	if !m.allow(ctx.UserID) {
		return ErrRateLimitExceeded
	}
	return next(ctx)
}

func (m *RateLimiter) allow(key string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	w, ok := m.windows[key]
	if !ok || now.Sub(w.start) >= m.period {
		w = &window{start: now}
		m.windows[key] = w
	}
	if w.count >= m.maxRequests {
		return false
	}
	w.count++
	return true
}

// Reset forgets every window.
func (m *RateLimiter) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.windows = make(map[string]*window)
}

// Count returns the turns recorded for key in its current window.
func (m *RateLimiter) Count(key string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	if w, ok := m.windows[key]; ok {
		return w.count
	}
	return 0
}
