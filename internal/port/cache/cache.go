// Package cache defines the port interface for caching.
package cache

import (
	"context"
	"time"
)

// Cache is the port interface for key-value caching.
// Callers build keys with TenantKey so entries are never shared across tenants.
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
}

// TenantKey namespaces a cache key by tenant.
func TenantKey(tenantID, name string) string {
	return "tenant:" + tenantID + ":" + name
}
