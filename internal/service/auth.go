package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"

	"github.com/Strob0t/requestline/internal/config"
	"github.com/Strob0t/requestline/internal/domain"
	"github.com/Strob0t/requestline/internal/domain/event"
	"github.com/Strob0t/requestline/internal/domain/tenant"
	"github.com/Strob0t/requestline/internal/port/cache"
	"github.com/Strob0t/requestline/internal/port/database"
)

const revokedKeyPrefix = "auth:revoked:"

// sessionClaims is the JWT payload of a host session.
type sessionClaims struct {
	TenantID string `json:"tenant_id"`
	Handle   string `json:"handle"`
	jwt.RegisteredClaims
}

// AuthService handles host signup, login and session tokens.
type AuthService struct {
	store  database.TenantStore
	events *EventService
	cfg    *config.Auth
	secret []byte
	now    func() time.Time
	// revoked holds logged-out token IDs until they expire. Shared across
	// replicas when backed by the tiered cache.
	revoked cache.Cache
}

// NewAuthService creates a new authentication service. events may be nil when
// logout does not need to reset the party (admin tooling).
func NewAuthService(store database.TenantStore, events *EventService, cfg *config.Auth) *AuthService {
	return &AuthService{
		store:  store,
		events: events,
		cfg:    cfg,
		secret: []byte(cfg.JWTSecret),
		now:    time.Now,
	}
}

// SetRevocations enables token revocation on logout.
func (s *AuthService) SetRevocations(c cache.Cache) {
	s.revoked = c
}

// Signup creates a tenant with an offline event and fresh guest access codes.
func (s *AuthService) Signup(ctx context.Context, req tenant.SignupRequest) (*tenant.LoginResponse, error) {
	if err := tenant.ValidateHandle(req.Handle); err != nil {
		return nil, err
	}
	if len(req.Password) < 8 {
		return nil, fmt.Errorf("%w: password must be at least 8 characters", domain.ErrValidation)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), s.cfg.BcryptCost)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}
	codes, err := event.NewAccessCodes()
	if err != nil {
		return nil, err
	}

	t, err := s.store.CreateTenant(ctx, tenant.CreateParams{
		Handle:       req.Handle,
		PasswordHash: string(hash),
		Pin:          codes.Pin,
		BypassToken:  codes.BypassToken,
	})
	if err != nil {
		return nil, fmt.Errorf("create tenant: %w", err)
	}
	return s.issue(t)
}

// Login verifies host credentials and issues a session token.
func (s *AuthService) Login(ctx context.Context, req tenant.LoginRequest) (*tenant.LoginResponse, error) {
	t, err := s.store.GetTenantByHandle(ctx, req.Handle)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, fmt.Errorf("invalid credentials: %w", domain.ErrUnauthorized)
		}
		return nil, fmt.Errorf("get tenant: %w", err)
	}
	if err := bcrypt.CompareHashAndPassword([]byte(t.PasswordHash), []byte(req.Password)); err != nil {
		return nil, fmt.Errorf("invalid credentials: %w", domain.ErrUnauthorized)
	}
	return s.issue(t)
}

func (s *AuthService) issue(t *tenant.Tenant) (*tenant.LoginResponse, error) {
	now := s.now()
	exp := now.Add(s.cfg.TokenTTL)
	claims := sessionClaims{
		TenantID: t.ID,
		Handle:   t.Handle,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   t.ID,
			ExpiresAt: jwt.NewNumericDate(exp),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return nil, fmt.Errorf("sign token: %w", err)
	}
	return &tenant.LoginResponse{AccessToken: signed, ExpiresAt: exp, Tenant: *t}, nil
}

// VerifyToken validates a host session token and returns its session.
func (s *AuthService) VerifyToken(token string) (*tenant.Session, error) {
	claims := &sessionClaims{}
	_, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return s.secret, nil
	}, jwt.WithTimeFunc(s.now), jwt.WithExpirationRequired())
	if err != nil {
		return nil, fmt.Errorf("verify token: %w: %w", domain.ErrUnauthorized, err)
	}
	if claims.TenantID == "" {
		return nil, fmt.Errorf("verify token: missing tenant: %w", domain.ErrUnauthorized)
	}
	// Fail-closed: a revocation list that cannot be read denies the token.
	if s.revoked != nil && claims.ID != "" {
		_, revoked, err := s.revoked.Get(context.Background(), revokedKeyPrefix+claims.ID)
		if err != nil {
			return nil, fmt.Errorf("verify token: revocation check: %w", domain.ErrUnauthorized)
		}
		if revoked {
			return nil, fmt.Errorf("verify token: revoked: %w", domain.ErrUnauthorized)
		}
	}
	return &tenant.Session{
		TenantID:  claims.TenantID,
		Handle:    claims.Handle,
		ExpiresAt: claims.ExpiresAt.Time,
		TokenID:   claims.ID,
	}, nil
}

// Logout ends the host's party: the event is forced offline and its poller
// stops. When tokenID is set the session token is revoked until tokenExpiry.
func (s *AuthService) Logout(ctx context.Context, tenantID, tokenID string, tokenExpiry time.Time) error {
	if s.revoked != nil && tokenID != "" {
		if ttl := tokenExpiry.Sub(s.now()); ttl > 0 {
			if err := s.revoked.Set(ctx, revokedKeyPrefix+tokenID, []byte(tenantID), ttl); err != nil {
				slog.Warn("failed to revoke session token", "tenant_id", tenantID, "error", err)
			}
		}
	}
	if s.events == nil {
		return nil
	}
	if _, err := s.events.Reset(ctx, tenantID); err != nil {
		return fmt.Errorf("reset event on logout: %w", err)
	}
	return nil
}
