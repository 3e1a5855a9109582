package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	rlotel "github.com/Strob0t/requestline/internal/adapter/otel"
	"github.com/Strob0t/requestline/internal/config"
	"github.com/Strob0t/requestline/internal/domain"
	"github.com/Strob0t/requestline/internal/domain/playback"
	"github.com/Strob0t/requestline/internal/domain/request"
	"github.com/Strob0t/requestline/internal/port/database"
	"github.com/Strob0t/requestline/internal/port/playbackprovider"
	"github.com/Strob0t/requestline/internal/port/ratelimit"
)

const maxNickname = 32

// RateLimitError is a rejected submission. It matches domain.ErrRateLimited.
type RateLimitError struct {
	RetryAfter time.Duration
	Reason     string
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("%s: %s limit, retry in %s", domain.ErrRateLimited, e.Reason, e.RetryAfter.Round(time.Second))
}

func (e *RateLimitError) Unwrap() error { return domain.ErrRateLimited }

// SubmissionService accepts guest song requests.
type SubmissionService struct {
	store    database.Store
	provider playbackprovider.Provider
	limiter  ratelimit.Limiter
	secret   []byte
	cfg      *config.Party
	metrics  *rlotel.Metrics
	now      func() time.Time
}

// NewSubmissionService creates a SubmissionService. fingerprintSecret keys the
// requester hash.
func NewSubmissionService(store database.Store, provider playbackprovider.Provider, limiter ratelimit.Limiter, fingerprintSecret string, cfg *config.Party) *SubmissionService {
	return &SubmissionService{
		store:    store,
		provider: provider,
		limiter:  limiter,
		secret:   []byte(fingerprintSecret),
		cfg:      cfg,
		now:      time.Now,
	}
}

// SetMetrics enables submission counters.
func (s *SubmissionService) SetMetrics(m *rlotel.Metrics) { s.metrics = m }

// Submit resolves the track, suppresses recent duplicates, applies the
// requester's limits and stores a pending request. origin identifies the
// requester (address, user agent) and is only ever stored hashed.
// No change is emitted: pending requests are visible to the host only.
func (s *SubmissionService) Submit(ctx context.Context, tenantID string, req request.SubmitRequest, origin ...string) (*request.Request, error) {
	r, err := s.submit(ctx, tenantID, req, origin)
	s.metrics.Submission(ctx, submissionResult(err))
	return r, err
}

func (s *SubmissionService) submit(ctx context.Context, tenantID string, req request.SubmitRequest, origin []string) (*request.Request, error) {
	ev, err := s.store.GetEvent(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	if !ev.AcceptingRequests() {
		return nil, domain.ErrRequestsClosed
	}

	nickname := strings.TrimSpace(req.Nickname)
	if utf8.RuneCountInString(nickname) > maxNickname {
		return nil, fmt.Errorf("%w: nickname longer than %d characters", domain.ErrValidation, maxNickname)
	}

	lookupCtx, cancel := context.WithTimeout(ctx, s.cfg.AdapterTimeout)
	track, err := s.provider.GetTrack(lookupCtx, tenantID, strings.TrimSpace(req.Track))
	cancel()
	if err != nil {
		return nil, fmt.Errorf("resolve track: %w", err)
	}
	track.URI = playback.CanonicalURI(track.URI)

	dup, err := s.store.HasActiveDuplicate(ctx, tenantID, track.URI, s.now().Add(-s.cfg.DuplicateLookback))
	if err != nil {
		return nil, err
	}
	if dup {
		return nil, fmt.Errorf("%s: %w", track.Name, domain.ErrDuplicateRequest)
	}

	fp := request.Fingerprint(s.secret, origin...)
	if err := s.allow(ctx, tenantID, fp); err != nil {
		return nil, err
	}

	return s.store.CreateRequest(ctx, request.NewRequest{
		TenantID:    tenantID,
		Track:       *track,
		Fingerprint: fp,
		Nickname:    nickname,
	}, s.cfg.DuplicateLookback)
}

// allow fails open when the limiter backend is unavailable.
func (s *SubmissionService) allow(ctx context.Context, tenantID, fingerprint string) error {
	d, err := s.limiter.Allow(ctx, tenantID, fingerprint)
	if err != nil {
		slog.Warn("submission limiter unavailable", "tenant_id", tenantID, "error", err)
		return nil
	}
	if !d.Allowed {
		return &RateLimitError{RetryAfter: d.RetryAfter, Reason: d.Reason}
	}
	return nil
}

func submissionResult(err error) string {
	switch {
	case err == nil:
		return "accepted"
	case errors.Is(err, domain.ErrDuplicateRequest):
		return "duplicate"
	case errors.Is(err, domain.ErrRateLimited):
		return "rate_limited"
	case errors.Is(err, domain.ErrTrackNotFound):
		return "not_found"
	case errors.Is(err, domain.ErrRequestsClosed):
		return "closed"
	default:
		return "error"
	}
}
