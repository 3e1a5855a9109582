// Package redis implements guest submission limits on Redis so every
// replica shares one view of each requester's budget.
package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"

	"github.com/Strob0t/requestline/internal/port/ratelimit"
)

// ReasonWindow and ReasonHourly describe why a submission was refused.
const (
	ReasonWindow = "one request per submission window"
	ReasonHourly = "hourly request limit reached"
)

// allowScript checks the short window and the rolling hour atomically.
// KEYS: window key, hour zset. ARGV: now ms, window ms, hour ms, cap, member.
// Returns {allowed, retry_after_ms, reason}; reason 1 = window, 2 = hourly.
var allowScript = goredis.NewScript(`
local wttl = redis.call('PTTL', KEYS[1])
if wttl > 0 then
  return {0, wttl, 1}
end
local now = tonumber(ARGV[1])
local hour = tonumber(ARGV[3])
redis.call('ZREMRANGEBYSCORE', KEYS[2], '-inf', now - hour)
if redis.call('ZCARD', KEYS[2]) >= tonumber(ARGV[4]) then
  local oldest = redis.call('ZRANGE', KEYS[2], 0, 0, 'WITHSCORES')
  return {0, tonumber(oldest[2]) + hour - now, 2}
end
redis.call('SET', KEYS[1], 1, 'PX', ARGV[2])
redis.call('ZADD', KEYS[2], now, ARGV[5])
redis.call('PEXPIRE', KEYS[2], hour)
return {1, 0, 0}
`)

// Limiter implements ratelimit.Limiter.
type Limiter struct {
	client    goredis.UniversalClient
	window    time.Duration
	hourlyCap int
	now       func() time.Time
}

var _ ratelimit.Limiter = (*Limiter)(nil)

// NewLimiter creates a limiter allowing one submission per window and at
// most hourlyCap per rolling hour for each tenant-scoped fingerprint.
func NewLimiter(client goredis.UniversalClient, window time.Duration, hourlyCap int) *Limiter {
	return &Limiter{client: client, window: window, hourlyCap: hourlyCap, now: time.Now}
}

// Allow consumes one submission if both limits permit it.
func (l *Limiter) Allow(ctx context.Context, tenantID, fingerprint string) (ratelimit.Decision, error) {
	if tenantID == "" || fingerprint == "" {
		return ratelimit.Decision{}, fmt.Errorf("limiter: tenant and fingerprint are required")
	}
	base := "requestline:rl:" + tenantID + ":" + fingerprint
	res, err := allowScript.Run(ctx, l.client,
		[]string{base + ":w", base + ":h"},
		l.now().UnixMilli(), l.window.Milliseconds(), time.Hour.Milliseconds(), l.hourlyCap, uuid.NewString(),
	).Int64Slice()
	if err != nil {
		return ratelimit.Decision{}, fmt.Errorf("limiter script: %w", err)
	}
	if len(res) != 3 {
		return ratelimit.Decision{}, fmt.Errorf("limiter script: unexpected reply %v", res)
	}
	if res[0] == 1 {
		return ratelimit.Decision{Allowed: true}, nil
	}
	d := ratelimit.Decision{RetryAfter: time.Duration(res[1]) * time.Millisecond, Reason: ReasonWindow}
	if res[2] == 2 {
		d.Reason = ReasonHourly
	}
	return d, nil
}

// NewClient opens a Redis client and verifies connectivity.
func NewClient(ctx context.Context, addr, password string, db int) (*goredis.Client, error) {
	client := goredis.NewClient(&goredis.Options{Addr: addr, Password: password, DB: db})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping %s: %w", addr, err)
	}
	return client, nil
}
