// Package tenant defines the tenant domain model. A tenant is the unit of data
// isolation: every store query and provider call is parameterized by its ID.
package tenant

import (
	"fmt"
	"regexp"
	"time"

	"github.com/Strob0t/requestline/internal/domain"
)

// Tenant represents an isolated host account owning exactly one event.
type Tenant struct {
	ID           string    `json:"id"`
	Handle       string    `json:"handle"`
	PasswordHash string    `json:"-"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// SignupRequest holds the fields required to create a new tenant.
type SignupRequest struct {
	Handle   string `json:"handle" validate:"required,min=3,max=64"`
	Password string `json:"password" validate:"required,min=8,max=128"`
}

// LoginRequest holds host credentials.
type LoginRequest struct {
	Handle   string `json:"handle" validate:"required"`
	Password string `json:"password" validate:"required"`
}

// LoginResponse is returned on successful login or signup.
type LoginResponse struct {
	AccessToken string    `json:"access_token"`
	ExpiresAt   time.Time `json:"expires_at"`
	Tenant      Tenant    `json:"tenant"`
}

// CreateParams is what the store needs to persist a tenant and its event.
type CreateParams struct {
	Handle       string
	PasswordHash string
	Pin          string
	BypassToken  string
}

var handleRegex = regexp.MustCompile(`^[a-z0-9][a-z0-9-]{1,62}[a-z0-9]$`)

// ValidateHandle checks that a handle is a 3-64 char lowercase slug usable in URLs.
func ValidateHandle(handle string) error {
	if !handleRegex.MatchString(handle) {
		return fmt.Errorf("%w: invalid handle %q: must be 3-64 lowercase alphanumeric characters or hyphens", domain.ErrValidation, handle)
	}
	return nil
}

// ProviderCredential is the tenant's optional external-provider record.
// Tokens are stored encrypted; the plaintext fields are never serialized.
type ProviderCredential struct {
	TenantID              string    `json:"tenant_id"`
	AccessToken           string    `json:"-"`
	RefreshToken          string    `json:"-"`
	EncryptedAccessToken  []byte    `json:"-"`
	EncryptedRefreshToken []byte    `json:"-"`
	ExpiresAt             time.Time `json:"expires_at"`
	DeviceID              string    `json:"device_id,omitempty"`
	PlaylistID            string    `json:"playlist_id,omitempty"`
	UpdatedAt             time.Time `json:"updated_at"`
}

// Expired reports whether the access token is expired or will be within skew.
func (c *ProviderCredential) Expired(now time.Time, skew time.Duration) bool {
	return c.AccessToken == "" || !now.Add(skew).Before(c.ExpiresAt)
}

// CredentialRequest is the host-facing body for connecting a provider account.
type CredentialRequest struct {
	AccessToken  string `json:"access_token" validate:"required"`
	RefreshToken string `json:"refresh_token" validate:"required"`
	ExpiresIn    int    `json:"expires_in" validate:"gte=0"`
	DeviceID     string `json:"device_id"`
	PlaylistID   string `json:"playlist_id"`
}

// Session is the verified identity carried by a host access token.
type Session struct {
	TenantID  string    `json:"tenant_id"`
	Handle    string    `json:"handle"`
	ExpiresAt time.Time `json:"expires_at"`
	TokenID   string    `json:"-"`
}
