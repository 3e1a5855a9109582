// Package memory implements single-replica, in-process fallbacks for
// infrastructure that is optional in development.
package memory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/Strob0t/requestline/internal/port/ratelimit"
)

const (
	ReasonWindow = "one request per submission window"
	ReasonHourly = "hourly request limit reached"
)

type history struct {
	last   time.Time
	recent []time.Time
}

// Limiter implements ratelimit.Limiter with the same semantics as the Redis
// limiter, for deployments without Redis.
type Limiter struct {
	mu        sync.Mutex
	entries   map[string]*history
	window    time.Duration
	hourlyCap int
	now       func() time.Time
}

var _ ratelimit.Limiter = (*Limiter)(nil)

// NewLimiter creates an in-memory limiter.
func NewLimiter(window time.Duration, hourlyCap int) *Limiter {
	return &Limiter{
		entries:   make(map[string]*history),
		window:    window,
		hourlyCap: hourlyCap,
		now:       time.Now,
	}
}

// Allow consumes one submission if both limits permit it.
func (l *Limiter) Allow(_ context.Context, tenantID, fingerprint string) (ratelimit.Decision, error) {
	if tenantID == "" || fingerprint == "" {
		return ratelimit.Decision{}, fmt.Errorf("limiter: tenant and fingerprint are required")
	}
	key := tenantID + "|" + fingerprint

	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	h, ok := l.entries[key]
	if !ok {
		h = &history{}
		l.entries[key] = h
	}

	if !h.last.IsZero() {
		if wait := h.last.Add(l.window).Sub(now); wait > 0 {
			return ratelimit.Decision{RetryAfter: wait, Reason: ReasonWindow}, nil
		}
	}

	cutoff := now.Add(-time.Hour)
	kept := h.recent[:0]
	for _, ts := range h.recent {
		if ts.After(cutoff) {
			kept = append(kept, ts)
		}
	}
	h.recent = kept
	if len(h.recent) >= l.hourlyCap {
		return ratelimit.Decision{RetryAfter: h.recent[0].Add(time.Hour).Sub(now), Reason: ReasonHourly}, nil
	}

	h.last = now
	h.recent = append(h.recent, now)
	return ratelimit.Decision{Allowed: true}, nil
}

// Sweep drops histories with no activity in the last hour.
func (l *Limiter) Sweep() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	cutoff := l.now().Add(-time.Hour)
	removed := 0
	for k, h := range l.entries {
		if h.last.Before(cutoff) {
			delete(l.entries, k)
			removed++
		}
	}
	return removed
}
