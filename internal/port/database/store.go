// Package database defines the database store port (interface).
// Every method that touches tenant data takes the tenant ID explicitly.
package database

import (
	"context"
	"time"

	"github.com/Strob0t/requestline/internal/domain/event"
	"github.com/Strob0t/requestline/internal/domain/request"
	"github.com/Strob0t/requestline/internal/domain/tenant"
)

// TenantStore persists tenant accounts and provider credentials.
type TenantStore interface {
	// CreateTenant inserts the tenant and its offline Event in one transaction.
	CreateTenant(ctx context.Context, p tenant.CreateParams) (*tenant.Tenant, error)
	GetTenant(ctx context.Context, id string) (*tenant.Tenant, error)
	GetTenantByHandle(ctx context.Context, handle string) (*tenant.Tenant, error)
	ListTenants(ctx context.Context) ([]tenant.Tenant, error)

	GetProviderCredential(ctx context.Context, tenantID string) (*tenant.ProviderCredential, error)
	UpsertProviderCredential(ctx context.Context, c *tenant.ProviderCredential) error
}

// EventStore persists the one Event per tenant.
//
// UpdateEventStatus, ResetEvent, ResetIdleEvent and SetPageEnabled advance the
// tenant's change counter in the same write and return it as Event.Sequence,
// so the sequence order of event changes always matches their commit order.
type EventStore interface {
	GetEvent(ctx context.Context, tenantID string) (*event.Event, error)

	// UpdateEventStatus moves the event from -> to only if it is still in from.
	// Moving to offline clears both page flags in the same statement.
	// Returns ErrConflict when the event changed concurrently.
	UpdateEventStatus(ctx context.Context, tenantID string, from, to event.Status) (*event.Event, error)

	// ResetEvent forces the event offline regardless of its current status.
	ResetEvent(ctx context.Context, tenantID string) (*event.Event, error)

	// ResetIdleEvent forces the event offline if it is not offline and was not
	// updated since idleSince. Returns ErrNotFound when nothing was reset.
	ResetIdleEvent(ctx context.Context, tenantID string, idleSince time.Time) (*event.Event, error)

	// SetPageEnabled toggles one page flag. Returns ErrEventOffline while offline.
	SetPageEnabled(ctx context.Context, tenantID string, page event.Page, enabled bool) (*event.Event, error)

	UpdateAccessCodes(ctx context.Context, tenantID string, codes event.AccessCodes) (*event.Event, error)

	// NextChangeSequence atomically increments and returns the tenant's change
	// counter, for changes that do not write the event row.
	NextChangeSequence(ctx context.Context, tenantID string) (int64, error)
}

// RequestStore persists song requests.
type RequestStore interface {
	// CreateRequest inserts a pending request unless an active request for the
	// same track URI exists within lookback. Returns ErrDuplicateRequest then.
	CreateRequest(ctx context.Context, r request.NewRequest, lookback time.Duration) (*request.Request, error)

	// HasActiveDuplicate reports whether an active request for uri was created since.
	HasActiveDuplicate(ctx context.Context, tenantID, uri string, since time.Time) (bool, error)

	GetRequest(ctx context.Context, tenantID, id string) (*request.Request, error)
	ListRequests(ctx context.Context, tenantID string, f request.ListFilter) ([]request.Request, error)

	// ClaimRequest atomically moves a request in one of from to processing and
	// returns the claimed row. Returns ErrAlreadyProcessed when the row exists
	// but is not claimable, ErrNotFound when it does not exist.
	ClaimRequest(ctx context.Context, tenantID, id string, from []request.Status) (*request.Request, error)

	// CompleteRequest releases a claim, writing the outcome only if the request
	// is still processing. Returns ErrConflict otherwise.
	CompleteRequest(ctx context.Context, tenantID, id string, c request.Completion) (*request.Request, error)

	// MarkQueued promotes approved requests to queued. Other statuses are left alone.
	MarkQueued(ctx context.Context, tenantID string, ids []string) (int64, error)

	// ReleaseStaleClaims moves requests stuck in processing since before olderThan to failed.
	ReleaseStaleClaims(ctx context.Context, tenantID string, olderThan time.Time) ([]request.Request, error)
}

// Store is the port interface for database operations.
type Store interface {
	TenantStore
	EventStore
	RequestStore
}
