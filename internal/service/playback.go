package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/Strob0t/requestline/internal/domain"
	"github.com/Strob0t/requestline/internal/domain/playback"
	"github.com/Strob0t/requestline/internal/port/playbackprovider"
)

// Control is a host playback command.
type Control string

const (
	ControlPause  Control = "pause"
	ControlResume Control = "resume"
	ControlSkip   Control = "skip"
)

// PlaybackService exposes search to guests and device controls to hosts.
type PlaybackService struct {
	provider playbackprovider.Provider
	targets  TargetSource
	pollers  *PollerManager
	timeout  time.Duration
}

// NewPlaybackService creates a PlaybackService. pollers may be nil.
func NewPlaybackService(provider playbackprovider.Provider, targets TargetSource, pollers *PollerManager, timeout time.Duration) *PlaybackService {
	return &PlaybackService{provider: provider, targets: targets, pollers: pollers, timeout: timeout}
}

// Search finds tracks for a guest. limit is clamped to 1..MaxSearchLimit.
func (s *PlaybackService) Search(ctx context.Context, tenantID, query string, limit int) ([]playback.Track, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, fmt.Errorf("%w: query is required", domain.ErrValidation)
	}
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	tracks, err := s.provider.Search(ctx, tenantID, query, playback.ClampLimit(limit))
	if err != nil {
		return nil, err
	}
	if tracks == nil {
		tracks = []playback.Track{}
	}
	return tracks, nil
}

// Control applies c on the tenant's configured device and triggers an
// immediate poll so subscribers see the result.
func (s *PlaybackService) Control(ctx context.Context, tenantID string, c Control) error {
	deviceID, _, err := s.targets.Targets(ctx, tenantID)
	if err != nil && !errors.Is(err, domain.ErrNotFound) {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	switch c {
	case ControlPause:
		err = s.provider.Pause(ctx, tenantID, deviceID)
	case ControlResume:
		err = s.provider.Resume(ctx, tenantID, deviceID)
	case ControlSkip:
		err = s.provider.Skip(ctx, tenantID, deviceID)
	default:
		return fmt.Errorf("%w: unknown playback control %q", domain.ErrValidation, c)
	}
	if err != nil {
		return err
	}
	if s.pollers != nil {
		s.pollers.Kick(tenantID)
	}
	return nil
}
