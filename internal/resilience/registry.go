package resilience

import (
	"sync"
	"time"
)

// Registry hands out one Breaker per key, so one tenant's failing provider
// account never opens the circuit for another tenant.
type Registry struct {
	mu          sync.Mutex
	breakers    map[string]*Breaker
	maxFailures int
	timeout     time.Duration
	opts        []Option
}

// NewRegistry creates a registry whose breakers share the given settings.
func NewRegistry(maxFailures int, timeout time.Duration, opts ...Option) *Registry {
	return &Registry{
		breakers:    make(map[string]*Breaker),
		maxFailures: maxFailures,
		timeout:     timeout,
		opts:        opts,
	}
}

// For returns the breaker for key, creating it on first use.
func (r *Registry) For(key string) *Breaker {
	r.mu.Lock()
	defer r.mu.Unlock()
	b, ok := r.breakers[key]
	if !ok {
		b = NewBreaker(r.maxFailures, r.timeout, r.opts...)
		r.breakers[key] = b
	}
	return b
}

// Forget drops the breaker for key, e.g. after the tenant reconnects its account.
func (r *Registry) Forget(key string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.breakers, key)
}
