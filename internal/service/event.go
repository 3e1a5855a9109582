package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/Strob0t/requestline/internal/domain"
	"github.com/Strob0t/requestline/internal/domain/change"
	"github.com/Strob0t/requestline/internal/domain/event"
	"github.com/Strob0t/requestline/internal/port/database"
)

// PollerControl starts and stops a tenant's playback poller.
type PollerControl interface {
	Start(tenantID string)
	Stop(tenantID string)
}

// EventService applies lifecycle transitions and page toggles to a tenant's Event.
type EventService struct {
	store   database.Store
	feed    *ChangeFeed
	pollers PollerControl
}

// NewEventService creates an EventService.
func NewEventService(store database.Store, feed *ChangeFeed) *EventService {
	return &EventService{store: store, feed: feed}
}

// SetPollers wires the playback poller lifecycle to event transitions.
func (s *EventService) SetPollers(p PollerControl) { s.pollers = p }

// Get returns the tenant's event.
func (s *EventService) Get(ctx context.Context, tenantID string) (*event.Event, error) {
	return s.store.GetEvent(ctx, tenantID)
}

// SetStatus validates and applies a lifecycle transition. Moving to offline
// clears both page flags in the same write.
func (s *EventService) SetStatus(ctx context.Context, tenantID string, target event.Status) (*event.Event, error) {
	cur, err := s.store.GetEvent(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	if err := event.CheckTransition(cur.Status, target); err != nil {
		return nil, err
	}

	ev, err := s.store.UpdateEventStatus(ctx, tenantID, cur.Status, target)
	if err != nil {
		return nil, fmt.Errorf("set status %s -> %s: %w", cur.Status, target, err)
	}
	s.feed.Publish(ctx, tenantID, change.KindEventStatus, ev.Sequence, ev)

	if s.pollers != nil {
		switch {
		case target == event.StatusOffline:
			s.pollers.Stop(tenantID)
		case cur.Status == event.StatusOffline:
			s.pollers.Start(tenantID)
		}
	}
	return ev, nil
}

// SetPageEnabled toggles one guest page. Fails with ErrEventOffline while offline.
func (s *EventService) SetPageEnabled(ctx context.Context, tenantID string, page event.Page, enabled bool) (*event.Event, error) {
	if !page.Valid() {
		return nil, fmt.Errorf("%w: unknown page %q", domain.ErrValidation, page)
	}
	ev, err := s.store.SetPageEnabled(ctx, tenantID, page, enabled)
	if err != nil {
		return nil, err
	}
	s.feed.Publish(ctx, tenantID, change.KindEventPages, ev.Sequence, ev.Pages)
	return ev, nil
}

// Reset forces the event offline without consulting the transition table.
func (s *EventService) Reset(ctx context.Context, tenantID string) (*event.Event, error) {
	ev, err := s.store.ResetEvent(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	s.afterReset(ctx, ev)
	return ev, nil
}

func (s *EventService) afterReset(ctx context.Context, ev *event.Event) {
	s.feed.Publish(ctx, ev.TenantID, change.KindEventStatus, ev.Sequence, ev)
	if s.pollers != nil {
		s.pollers.Stop(ev.TenantID)
	}
}

// RotateAccessCodes replaces the guest PIN and bypass token.
func (s *EventService) RotateAccessCodes(ctx context.Context, tenantID string) (event.AccessCodes, error) {
	codes, err := event.NewAccessCodes()
	if err != nil {
		return event.AccessCodes{}, err
	}
	if _, err := s.store.UpdateAccessCodes(ctx, tenantID, codes); err != nil {
		return event.AccessCodes{}, err
	}
	return codes, nil
}

// AccessCodes returns the current guest codes for the host.
func (s *EventService) AccessCodes(ctx context.Context, tenantID string) (event.AccessCodes, error) {
	ev, err := s.store.GetEvent(ctx, tenantID)
	if err != nil {
		return event.AccessCodes{}, err
	}
	return event.AccessCodes{Pin: ev.Pin, BypassToken: ev.BypassToken}, nil
}

// ResolveGuest maps a party handle plus PIN or bypass token to its tenant.
func (s *EventService) ResolveGuest(ctx context.Context, handle, pin, bypass string) (string, error) {
	t, err := s.store.GetTenantByHandle(ctx, handle)
	if err != nil {
		return "", err
	}
	ev, err := s.store.GetEvent(ctx, t.ID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return "", fmt.Errorf("party %s: %w", handle, domain.ErrNotFound)
		}
		return "", err
	}
	if !ev.AdmitsGuest(pin, bypass) {
		return "", fmt.Errorf("party %s: %w", handle, domain.ErrUnauthorized)
	}
	return t.ID, nil
}
