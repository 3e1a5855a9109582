package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/Strob0t/requestline/internal/domain"
	"github.com/Strob0t/requestline/internal/domain/tenant"
)

const tenantColumns = `id, handle, password_hash, created_at, updated_at`

func scanTenant(row scannable) (tenant.Tenant, error) {
	var t tenant.Tenant
	err := row.Scan(&t.ID, &t.Handle, &t.PasswordHash, &t.CreatedAt, &t.UpdatedAt)
	return t, err
}

// --- Tenant CRUD ---

func (s *Store) CreateTenant(ctx context.Context, p tenant.CreateParams) (*tenant.Tenant, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("create tenant: begin: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	t, err := scanTenant(tx.QueryRow(ctx,
		`INSERT INTO tenants (handle, password_hash) VALUES ($1, $2)
		 RETURNING `+tenantColumns,
		p.Handle, p.PasswordHash))
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return nil, fmt.Errorf("create tenant %s: handle taken: %w", p.Handle, domain.ErrConflict)
		}
		return nil, fmt.Errorf("create tenant %s: %w", p.Handle, err)
	}

	if _, err := tx.Exec(ctx,
		`INSERT INTO events (tenant_id, status, pin, bypass_token) VALUES ($1, 'offline', $2, $3)`,
		t.ID, p.Pin, p.BypassToken); err != nil {
		return nil, fmt.Errorf("create event for tenant %s: %w", t.ID, err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("create tenant: commit: %w", err)
	}
	return &t, nil
}

func (s *Store) GetTenant(ctx context.Context, id string) (*tenant.Tenant, error) {
	if !validID(id) {
		return nil, fmt.Errorf("get tenant %s: %w", id, domain.ErrNotFound)
	}
	t, err := scanTenant(s.pool.QueryRow(ctx,
		`SELECT `+tenantColumns+` FROM tenants WHERE id = $1`, id))
	if err != nil {
		return nil, notFoundWrap(err, "get tenant %s", id)
	}
	return &t, nil
}

func (s *Store) GetTenantByHandle(ctx context.Context, handle string) (*tenant.Tenant, error) {
	t, err := scanTenant(s.pool.QueryRow(ctx,
		`SELECT `+tenantColumns+` FROM tenants WHERE handle = $1`, handle))
	if err != nil {
		return nil, notFoundWrap(err, "get tenant by handle %s", handle)
	}
	return &t, nil
}

func (s *Store) ListTenants(ctx context.Context) ([]tenant.Tenant, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+tenantColumns+` FROM tenants ORDER BY created_at ASC`)
	if err != nil {
		return nil, fmt.Errorf("list tenants: %w", err)
	}
	defer rows.Close()

	var tenants []tenant.Tenant
	for rows.Next() {
		t, err := scanTenant(rows)
		if err != nil {
			return nil, fmt.Errorf("scan tenant: %w", err)
		}
		tenants = append(tenants, t)
	}
	return orEmpty(tenants), rows.Err()
}

// --- Provider credentials ---

func (s *Store) GetProviderCredential(ctx context.Context, tenantID string) (*tenant.ProviderCredential, error) {
	if err := requireTenant(tenantID); err != nil {
		return nil, err
	}
	var c tenant.ProviderCredential
	err := s.pool.QueryRow(ctx,
		`SELECT tenant_id, access_token, refresh_token, expires_at, device_id, playlist_id, updated_at
		 FROM provider_credentials WHERE tenant_id = $1`, tenantID,
	).Scan(&c.TenantID, &c.EncryptedAccessToken, &c.EncryptedRefreshToken, &c.ExpiresAt,
		&c.DeviceID, &c.PlaylistID, &c.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("get provider credential for tenant %s: %w", tenantID, domain.ErrNotFound)
		}
		return nil, fmt.Errorf("get provider credential for tenant %s: %w", tenantID, err)
	}
	return &c, nil
}

func (s *Store) UpsertProviderCredential(ctx context.Context, c *tenant.ProviderCredential) error {
	if err := requireTenant(c.TenantID); err != nil {
		return err
	}
	err := s.pool.QueryRow(ctx,
		`INSERT INTO provider_credentials (tenant_id, access_token, refresh_token, expires_at, device_id, playlist_id)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 ON CONFLICT (tenant_id) DO UPDATE SET
		   access_token = EXCLUDED.access_token,
		   refresh_token = EXCLUDED.refresh_token,
		   expires_at = EXCLUDED.expires_at,
		   device_id = EXCLUDED.device_id,
		   playlist_id = EXCLUDED.playlist_id,
		   updated_at = now()
		 RETURNING updated_at`,
		c.TenantID, c.EncryptedAccessToken, c.EncryptedRefreshToken, c.ExpiresAt, c.DeviceID, c.PlaylistID,
	).Scan(&c.UpdatedAt)
	if err != nil {
		return fmt.Errorf("upsert provider credential for tenant %s: %w", c.TenantID, err)
	}
	return nil
}
