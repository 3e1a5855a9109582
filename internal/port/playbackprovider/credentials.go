package playbackprovider

import (
	"context"

	"github.com/Strob0t/requestline/internal/domain/tenant"
)

// CredentialSource loads and persists a tenant's decrypted provider credential.
type CredentialSource interface {
	Load(ctx context.Context, tenantID string) (*tenant.ProviderCredential, error)
	Save(ctx context.Context, c *tenant.ProviderCredential) error
}
