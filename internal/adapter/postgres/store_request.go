package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/Strob0t/requestline/internal/domain"
	"github.com/Strob0t/requestline/internal/domain/request"
)

const requestColumns = `id, tenant_id, track_uri, track_name, track_artists, track_album, track_duration_ms,
	track_image_url, fingerprint, nickname, status, approved_by, rejection_reason,
	requested_queue, requested_playlist, added_to_queue, added_to_playlist, last_error, attempts,
	created_at, approved_at, claimed_at, played_at, updated_at`

func scanRequest(row scannable) (request.Request, error) {
	var r request.Request
	err := row.Scan(
		&r.ID, &r.TenantID, &r.Track.URI, &r.Track.Name, &r.Track.Artists, &r.Track.Album, &r.Track.DurationMS,
		&r.Track.ImageURL, &r.Fingerprint, &r.Nickname, &r.Status, &r.ApprovedBy, &r.RejectionReason,
		&r.RequestedQueue, &r.RequestedPlaylist, &r.AddedToQueue, &r.AddedToPlaylist, &r.LastError, &r.Attempts,
		&r.CreatedAt, &r.ApprovedAt, &r.ClaimedAt, &r.PlayedAt, &r.UpdatedAt,
	)
	return r, err
}

func collectRequests(rows pgx.Rows) ([]request.Request, error) {
	defer rows.Close()
	var out []request.Request
	for rows.Next() {
		r, err := scanRequest(rows)
		if err != nil {
			return nil, fmt.Errorf("scan request: %w", err)
		}
		out = append(out, r)
	}
	return orEmpty(out), rows.Err()
}

func statusStrings(set []request.Status) []string {
	out := make([]string, len(set))
	for i, s := range set {
		out[i] = string(s)
	}
	return out
}

// CreateRequest serializes inserts for one (tenant, track) pair with a
// transaction-scoped advisory lock so the duplicate check and insert are atomic.
func (s *Store) CreateRequest(ctx context.Context, nr request.NewRequest, lookback time.Duration) (*request.Request, error) {
	if err := requireTenant(nr.TenantID); err != nil {
		return nil, err
	}
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("create request: begin: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtextextended($1, 0))`,
		nr.TenantID+"|"+nr.Track.URI); err != nil {
		return nil, fmt.Errorf("create request: lock: %w", err)
	}

	var dup bool
	err = tx.QueryRow(ctx,
		`SELECT EXISTS (
		   SELECT 1 FROM requests
		   WHERE tenant_id = $1 AND track_uri = $2 AND status = ANY($3)
		     AND created_at >= now() - make_interval(secs => $4)
		 )`,
		nr.TenantID, nr.Track.URI, statusStrings(request.Active), lookback.Seconds(),
	).Scan(&dup)
	if err != nil {
		return nil, fmt.Errorf("create request: duplicate check: %w", err)
	}
	if dup {
		return nil, fmt.Errorf("create request for %s: %w", nr.Track.URI, domain.ErrDuplicateRequest)
	}

	r, err := scanRequest(tx.QueryRow(ctx,
		`INSERT INTO requests (tenant_id, track_uri, track_name, track_artists, track_album,
		   track_duration_ms, track_image_url, fingerprint, nickname)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		 RETURNING `+requestColumns,
		nr.TenantID, nr.Track.URI, nr.Track.Name, pgTextArray(nr.Track.Artists), nr.Track.Album,
		nr.Track.DurationMS, nr.Track.ImageURL, nr.Fingerprint, nr.Nickname))
	if err != nil {
		return nil, fmt.Errorf("create request: insert: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("create request: commit: %w", err)
	}
	return &r, nil
}

func (s *Store) HasActiveDuplicate(ctx context.Context, tenantID, uri string, since time.Time) (bool, error) {
	if err := requireTenant(tenantID); err != nil {
		return false, err
	}
	var dup bool
	err := s.pool.QueryRow(ctx,
		`SELECT EXISTS (
		   SELECT 1 FROM requests
		   WHERE tenant_id = $1 AND track_uri = $2 AND status = ANY($3) AND created_at >= $4
		 )`,
		tenantID, uri, statusStrings(request.Active), since,
	).Scan(&dup)
	if err != nil {
		return false, fmt.Errorf("duplicate check for %s: %w", uri, err)
	}
	return dup, nil
}

func (s *Store) GetRequest(ctx context.Context, tenantID, id string) (*request.Request, error) {
	if err := requireTenant(tenantID); err != nil {
		return nil, err
	}
	if !validID(id) {
		return nil, fmt.Errorf("get request %s: %w", id, domain.ErrNotFound)
	}
	r, err := scanRequest(s.pool.QueryRow(ctx,
		`SELECT `+requestColumns+` FROM requests WHERE id = $1 AND tenant_id = $2`, id, tenantID))
	if err != nil {
		return nil, notFoundWrap(err, "get request %s", id)
	}
	return &r, nil
}

func (s *Store) ListRequests(ctx context.Context, tenantID string, f request.ListFilter) ([]request.Request, error) {
	if err := requireTenant(tenantID); err != nil {
		return nil, err
	}
	order := `created_at ASC`
	switch f.Order {
	case request.OrderApproved:
		order = `approved_at ASC NULLS LAST, created_at ASC`
	case request.OrderPlayedDesc:
		order = `played_at DESC NULLS LAST, created_at DESC`
	}
	limit := f.Limit
	if limit <= 0 || limit > 500 {
		limit = 500
	}

	query := `SELECT ` + requestColumns + ` FROM requests WHERE tenant_id = $1`
	args := []any{tenantID}
	if len(f.Statuses) > 0 {
		query += ` AND status = ANY($2)`
		args = append(args, statusStrings(f.Statuses))
	}
	query += fmt.Sprintf(` ORDER BY %s, id LIMIT %d`, order, limit)

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list requests: %w", err)
	}
	return collectRequests(rows)
}

// ClaimRequest is a single conditional UPDATE: the status check and the move to
// processing happen atomically, so concurrent claimers cannot both succeed.
func (s *Store) ClaimRequest(ctx context.Context, tenantID, id string, from []request.Status) (*request.Request, error) {
	if err := requireTenant(tenantID); err != nil {
		return nil, err
	}
	if !validID(id) {
		return nil, fmt.Errorf("claim request %s: %w", id, domain.ErrNotFound)
	}
	r, err := scanRequest(s.pool.QueryRow(ctx,
		`UPDATE requests SET status = 'processing', claimed_at = now(), attempts = attempts + 1, updated_at = now()
		 WHERE id = $1 AND tenant_id = $2 AND status = ANY($3)
		 RETURNING `+requestColumns,
		id, tenantID, statusStrings(from)))
	if err == nil {
		return &r, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("claim request %s: %w", id, err)
	}

	var status string
	err = s.pool.QueryRow(ctx,
		`SELECT status FROM requests WHERE id = $1 AND tenant_id = $2`, id, tenantID).Scan(&status)
	if err != nil {
		return nil, notFoundWrap(err, "claim request %s", id)
	}
	return nil, fmt.Errorf("claim request %s (status %s): %w", id, status, domain.ErrAlreadyProcessed)
}

func (s *Store) CompleteRequest(ctx context.Context, tenantID, id string, c request.Completion) (*request.Request, error) {
	if err := requireTenant(tenantID); err != nil {
		return nil, err
	}
	r, err := scanRequest(s.pool.QueryRow(ctx,
		`UPDATE requests SET
		   status = $3::text,
		   added_to_queue = $4,
		   added_to_playlist = $5,
		   requested_queue = $6,
		   requested_playlist = $7,
		   last_error = $8,
		   approved_by = CASE WHEN $9::text <> '' THEN $9::text ELSE approved_by END,
		   rejection_reason = $10,
		   approved_at = CASE WHEN $3::text = 'approved' THEN now() ELSE approved_at END,
		   played_at = CASE WHEN $3::text = 'played' THEN now() ELSE played_at END,
		   claimed_at = NULL,
		   updated_at = now()
		 WHERE id = $1 AND tenant_id = $2 AND status = 'processing'
		 RETURNING `+requestColumns,
		id, tenantID, string(c.Status), c.AddedToQueue, c.AddedToPlaylist,
		c.RequestedQueue, c.RequestedPlaylist, c.LastError, c.ApprovedBy, c.Reason))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("complete request %s: claim lost: %w", id, domain.ErrConflict)
		}
		return nil, fmt.Errorf("complete request %s: %w", id, err)
	}
	return &r, nil
}

func (s *Store) MarkQueued(ctx context.Context, tenantID string, ids []string) (int64, error) {
	if err := requireTenant(tenantID); err != nil {
		return 0, err
	}
	if len(ids) == 0 {
		return 0, nil
	}
	tag, err := s.pool.Exec(ctx,
		`UPDATE requests SET status = 'queued', updated_at = now()
		 WHERE tenant_id = $1 AND id = ANY($2::uuid[]) AND status = 'approved'`,
		tenantID, ids)
	if err != nil {
		return 0, fmt.Errorf("mark queued: %w", err)
	}
	return tag.RowsAffected(), nil
}

func (s *Store) ReleaseStaleClaims(ctx context.Context, tenantID string, olderThan time.Time) ([]request.Request, error) {
	if err := requireTenant(tenantID); err != nil {
		return nil, err
	}
	rows, err := s.pool.Query(ctx,
		`UPDATE requests SET status = 'failed', last_error = 'claim expired', claimed_at = NULL, updated_at = now()
		 WHERE tenant_id = $1 AND status = 'processing' AND claimed_at < $2
		 RETURNING `+requestColumns,
		tenantID, olderThan)
	if err != nil {
		return nil, fmt.Errorf("release stale claims: %w", err)
	}
	return collectRequests(rows)
}
