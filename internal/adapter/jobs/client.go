package jobs

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/hibiken/asynq"

	"github.com/Strob0t/requestline/internal/config"
)

// Client enqueues retry tasks.
type Client struct {
	client *asynq.Client
}

// NewClient connects to the Redis instance in cfg.
func NewClient(cfg config.Redis) *Client {
	return &Client{client: asynq.NewClient(redisOpt(cfg))}
}

func redisOpt(cfg config.Redis) asynq.RedisClientOpt {
	return asynq.RedisClientOpt{Addr: cfg.Addr, Password: cfg.Password, DB: cfg.DB}
}

// Close releases the Redis connection.
func (c *Client) Close() error {
	return c.client.Close()
}

// EnqueueRetry schedules a side-effect retry. A retry already queued for the
// same request within a minute is not enqueued twice.
func (c *Client) EnqueueRetry(ctx context.Context, tenantID, requestID string) error {
	return c.enqueue(ctx, TypeRequestRetry, RetryPayload{TenantID: tenantID, RequestID: requestID},
		asynq.MaxRetry(3),
		asynq.Timeout(time.Minute),
		asynq.Unique(time.Minute),
	)
}

func (c *Client) enqueue(ctx context.Context, taskType string, payload any, opts ...asynq.Option) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}
	if _, err := c.client.EnqueueContext(ctx, asynq.NewTask(taskType, data), opts...); err != nil {
		return fmt.Errorf("enqueue %s: %w", taskType, err)
	}
	return nil
}
