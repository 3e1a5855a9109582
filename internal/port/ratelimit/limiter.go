// Package ratelimit defines the port for per-requester submission limits.
package ratelimit

import (
	"context"
	"time"
)

// Decision is the result of a limit check.
type Decision struct {
	Allowed    bool
	RetryAfter time.Duration
	Reason     string
}

// Limiter enforces a fixed short window and a rolling hourly cap per key.
// Keys are tenant-scoped requester fingerprints, never raw identities.
type Limiter interface {
	Allow(ctx context.Context, tenantID, fingerprint string) (Decision, error)
}
