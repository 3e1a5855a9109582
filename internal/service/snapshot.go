package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/Strob0t/requestline/internal/domain/change"
	"github.com/Strob0t/requestline/internal/domain/event"
	"github.com/Strob0t/requestline/internal/domain/playback"
	"github.com/Strob0t/requestline/internal/port/cache"
	"github.com/Strob0t/requestline/internal/port/database"
	"github.com/Strob0t/requestline/internal/port/playbackprovider"
)

const snapshotKey = "snapshot"

// Snapshot is the authoritative state a subscriber polls for. Playback is nil
// while the event is offline.
type Snapshot struct {
	Event    *event.Event      `json:"event"`
	Playback *playback.Display `json:"playback"`
}

// SnapshotService serves encoded snapshots. Reads are cached per tenant and
// concurrent rebuilds for one tenant are collapsed; any change for the tenant
// drops its cached copy.
type SnapshotService struct {
	store   database.Store
	display *displayBuilder
	cache   cache.Cache
	ttl     time.Duration
	group   singleflight.Group

	mu  sync.Mutex
	gen map[string]uint64
}

// NewSnapshotService creates a SnapshotService. c may be nil to disable caching.
func NewSnapshotService(store database.Store, provider playbackprovider.Provider, c cache.Cache, ttl, adapterTimeout time.Duration) *SnapshotService {
	return &SnapshotService{
		store:   store,
		display: &displayBuilder{store: store, provider: provider, timeout: adapterTimeout},
		cache:   c,
		ttl:     ttl,
		gen:     make(map[string]uint64),
	}
}

// Get returns the tenant's encoded snapshot. Repeated calls with no
// intervening change return identical bytes.
func (s *SnapshotService) Get(ctx context.Context, tenantID string) (json.RawMessage, error) {
	key := cache.TenantKey(tenantID, snapshotKey)
	if s.cache != nil {
		if b, ok, err := s.cache.Get(ctx, key); err == nil && ok {
			return b, nil
		}
	}

	v, err, _ := s.group.Do(tenantID, func() (any, error) {
		gen := s.generation(tenantID)
		b, err := s.build(context.WithoutCancel(ctx), tenantID)
		if err != nil {
			return nil, err
		}
		if s.cache != nil && s.generation(tenantID) == gen {
			if err := s.cache.Set(ctx, key, b, s.ttl); err != nil {
				slog.Warn("cache snapshot", "tenant_id", tenantID, "error", err)
			}
		}
		return b, nil
	})
	if err != nil {
		return nil, err
	}
	return v.([]byte), nil
}

func (s *SnapshotService) build(ctx context.Context, tenantID string) ([]byte, error) {
	ev, err := s.store.GetEvent(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	snap := Snapshot{Event: ev}
	if ev.Usable() {
		raw, err := s.display.fetch(ctx, tenantID)
		if err != nil {
			// Serve the request lists without live playback rather than failing the poll.
			slog.Warn("snapshot playback fetch", "tenant_id", tenantID, "error", err)
		}
		if snap.Playback, err = s.display.annotate(ctx, tenantID, raw); err != nil {
			return nil, err
		}
	}
	b, err := json.Marshal(snap)
	if err != nil {
		return nil, fmt.Errorf("encode snapshot: %w", err)
	}
	return b, nil
}

// Invalidate drops the tenant's cached snapshot.
func (s *SnapshotService) Invalidate(ctx context.Context, tenantID string) {
	s.mu.Lock()
	s.gen[tenantID]++
	s.mu.Unlock()
	if s.cache == nil {
		return
	}
	if err := s.cache.Delete(ctx, cache.TenantKey(tenantID, snapshotKey)); err != nil {
		slog.Warn("invalidate snapshot", "tenant_id", tenantID, "error", err)
	}
}

// OnChange is a ChangeHook that invalidates on every change.
func (s *SnapshotService) OnChange(ctx context.Context, tenantID string, _ change.Kind) {
	s.Invalidate(ctx, tenantID)
}

func (s *SnapshotService) generation(tenantID string) uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.gen[tenantID]
}
