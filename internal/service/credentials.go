package service

import (
	"context"
	"fmt"
	"time"

	"github.com/Strob0t/requestline/internal/domain/tenant"
	"github.com/Strob0t/requestline/internal/port/database"
	"github.com/Strob0t/requestline/internal/port/playbackprovider"
	"github.com/Strob0t/requestline/internal/resilience"
)

var _ playbackprovider.CredentialSource = (*CredentialService)(nil)

// CredentialService stores provider credentials encrypted and hands them to
// the provider adapter decrypted.
type CredentialService struct {
	store    database.TenantStore
	sealer   *tenant.Sealer
	breakers *resilience.Registry
	now      func() time.Time
}

// NewCredentialService creates a CredentialService.
func NewCredentialService(store database.TenantStore, sealer *tenant.Sealer) *CredentialService {
	return &CredentialService{store: store, sealer: sealer, now: time.Now}
}

// SetBreakers lets Connect reset the tenant's provider circuit.
func (s *CredentialService) SetBreakers(r *resilience.Registry) { s.breakers = r }

// Load returns the tenant's credential with plaintext tokens.
func (s *CredentialService) Load(ctx context.Context, tenantID string) (*tenant.ProviderCredential, error) {
	c, err := s.store.GetProviderCredential(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	if err := s.sealer.OpenCredential(c); err != nil {
		return nil, fmt.Errorf("open credential for tenant %s: %w", tenantID, err)
	}
	return c, nil
}

// Save encrypts and persists c.
func (s *CredentialService) Save(ctx context.Context, c *tenant.ProviderCredential) error {
	if err := s.sealer.SealCredential(c); err != nil {
		return err
	}
	return s.store.UpsertProviderCredential(ctx, c)
}

// Connect stores a freshly authorized provider account for the tenant.
func (s *CredentialService) Connect(ctx context.Context, tenantID string, req tenant.CredentialRequest) (*tenant.ProviderCredential, error) {
	c := &tenant.ProviderCredential{
		TenantID:     tenantID,
		AccessToken:  req.AccessToken,
		RefreshToken: req.RefreshToken,
		ExpiresAt:    s.now().Add(time.Duration(req.ExpiresIn) * time.Second),
		DeviceID:     req.DeviceID,
		PlaylistID:   req.PlaylistID,
	}
	if err := s.Save(ctx, c); err != nil {
		return nil, fmt.Errorf("save credential: %w", err)
	}
	if s.breakers != nil {
		s.breakers.Forget(tenantID)
	}
	return c, nil
}

// Targets returns the tenant's configured device and playlist. A tenant with
// no credential has neither.
func (s *CredentialService) Targets(ctx context.Context, tenantID string) (deviceID, playlistID string, err error) {
	c, err := s.store.GetProviderCredential(ctx, tenantID)
	if err != nil {
		return "", "", err
	}
	return c.DeviceID, c.PlaylistID, nil
}
