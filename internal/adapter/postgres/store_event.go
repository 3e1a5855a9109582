package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/Strob0t/requestline/internal/domain"
	"github.com/Strob0t/requestline/internal/domain/event"
)

const eventColumns = `tenant_id, status, requests_enabled, display_enabled, pin, bypass_token, change_seq, updated_at`

func scanEvent(row scannable) (event.Event, error) {
	var e event.Event
	err := row.Scan(&e.TenantID, &e.Status, &e.Pages.Requests, &e.Pages.Display,
		&e.Pin, &e.BypassToken, &e.Sequence, &e.UpdatedAt)
	return e, err
}

func (s *Store) GetEvent(ctx context.Context, tenantID string) (*event.Event, error) {
	if err := requireTenant(tenantID); err != nil {
		return nil, err
	}
	if !validID(tenantID) {
		return nil, fmt.Errorf("get event for tenant %s: %w", tenantID, domain.ErrNotFound)
	}
	e, err := scanEvent(s.pool.QueryRow(ctx,
		`SELECT `+eventColumns+` FROM events WHERE tenant_id = $1`, tenantID))
	if err != nil {
		return nil, notFoundWrap(err, "get event for tenant %s", tenantID)
	}
	return &e, nil
}

func (s *Store) UpdateEventStatus(ctx context.Context, tenantID string, from, to event.Status) (*event.Event, error) {
	if err := requireTenant(tenantID); err != nil {
		return nil, err
	}
	e, err := scanEvent(s.pool.QueryRow(ctx,
		`UPDATE events SET
		   status = $3::text,
		   requests_enabled = CASE WHEN $3::text = 'offline' THEN false ELSE requests_enabled END,
		   display_enabled  = CASE WHEN $3::text = 'offline' THEN false ELSE display_enabled END,
		   change_seq = change_seq + 1,
		   updated_at = now()
		 WHERE tenant_id = $1 AND status = $2::text
		 RETURNING `+eventColumns,
		tenantID, string(from), string(to)))
	if err == nil {
		return &e, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("update event status for tenant %s: %w", tenantID, err)
	}
	if _, getErr := s.GetEvent(ctx, tenantID); getErr != nil {
		return nil, getErr
	}
	return nil, fmt.Errorf("update event status for tenant %s: no longer %s: %w", tenantID, from, domain.ErrConflict)
}

func (s *Store) ResetEvent(ctx context.Context, tenantID string) (*event.Event, error) {
	if err := requireTenant(tenantID); err != nil {
		return nil, err
	}
	e, err := scanEvent(s.pool.QueryRow(ctx,
		`UPDATE events SET status = 'offline', requests_enabled = false, display_enabled = false,
		   change_seq = change_seq + 1, updated_at = now()
		 WHERE tenant_id = $1
		 RETURNING `+eventColumns, tenantID))
	if err != nil {
		return nil, notFoundWrap(err, "reset event for tenant %s", tenantID)
	}
	return &e, nil
}

func (s *Store) ResetIdleEvent(ctx context.Context, tenantID string, idleSince time.Time) (*event.Event, error) {
	if err := requireTenant(tenantID); err != nil {
		return nil, err
	}
	e, err := scanEvent(s.pool.QueryRow(ctx,
		`UPDATE events SET status = 'offline', requests_enabled = false, display_enabled = false,
		   change_seq = change_seq + 1, updated_at = now()
		 WHERE tenant_id = $1 AND status <> 'offline' AND updated_at < $2
		 RETURNING `+eventColumns, tenantID, idleSince))
	if err != nil {
		return nil, notFoundWrap(err, "reset idle event for tenant %s", tenantID)
	}
	return &e, nil
}

func (s *Store) SetPageEnabled(ctx context.Context, tenantID string, page event.Page, enabled bool) (*event.Event, error) {
	if err := requireTenant(tenantID); err != nil {
		return nil, err
	}
	if !page.Valid() {
		return nil, fmt.Errorf("unknown page %q: %w", page, domain.ErrValidation)
	}
	e, err := scanEvent(s.pool.QueryRow(ctx,
		`UPDATE events SET
		   requests_enabled = CASE WHEN $2::text = 'requests' THEN $3::boolean ELSE requests_enabled END,
		   display_enabled  = CASE WHEN $2::text = 'display'  THEN $3::boolean ELSE display_enabled END,
		   change_seq = change_seq + 1,
		   updated_at = now()
		 WHERE tenant_id = $1 AND status <> 'offline'
		 RETURNING `+eventColumns,
		tenantID, string(page), enabled))
	if err == nil {
		return &e, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("set page %s for tenant %s: %w", page, tenantID, err)
	}
	if _, getErr := s.GetEvent(ctx, tenantID); getErr != nil {
		return nil, getErr
	}
	return nil, fmt.Errorf("set page %s for tenant %s: %w", page, tenantID, domain.ErrEventOffline)
}

func (s *Store) UpdateAccessCodes(ctx context.Context, tenantID string, codes event.AccessCodes) (*event.Event, error) {
	if err := requireTenant(tenantID); err != nil {
		return nil, err
	}
	e, err := scanEvent(s.pool.QueryRow(ctx,
		`UPDATE events SET pin = $2, bypass_token = $3, updated_at = now()
		 WHERE tenant_id = $1
		 RETURNING `+eventColumns,
		tenantID, codes.Pin, codes.BypassToken))
	if err != nil {
		return nil, notFoundWrap(err, "update access codes for tenant %s", tenantID)
	}
	return &e, nil
}

// NextChangeSequence sequences changes that do not mutate the event row
// (requests, playback). It does not touch updated_at so idle detection only sees host activity.
func (s *Store) NextChangeSequence(ctx context.Context, tenantID string) (int64, error) {
	if err := requireTenant(tenantID); err != nil {
		return 0, err
	}
	var seq int64
	err := s.pool.QueryRow(ctx,
		`UPDATE events SET change_seq = change_seq + 1 WHERE tenant_id = $1 RETURNING change_seq`,
		tenantID).Scan(&seq)
	if err != nil {
		return 0, notFoundWrap(err, "next change sequence for tenant %s", tenantID)
	}
	return seq, nil
}
