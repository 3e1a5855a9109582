package service

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Strob0t/requestline/internal/domain"
	"github.com/Strob0t/requestline/internal/domain/change"
	"github.com/Strob0t/requestline/internal/domain/event"
	"github.com/Strob0t/requestline/internal/domain/playback"
	"github.com/Strob0t/requestline/internal/domain/request"
	"github.com/Strob0t/requestline/internal/domain/tenant"
	"github.com/Strob0t/requestline/internal/port/database"
	"github.com/Strob0t/requestline/internal/port/ratelimit"
)

// Ensure mockStore implements database.Store at compile time.
var _ database.Store = (*mockStore)(nil)

var errNoTenant = errors.New("tenant id is required")

// mockStore is an in-memory database.Store. Claims are atomic under mu, the
// same guarantee the conditional UPDATE gives in Postgres.
type mockStore struct {
	mu       sync.Mutex
	tenants  map[string]*tenant.Tenant
	events   map[string]*event.Event
	creds    map[string]*tenant.ProviderCredential
	requests map[string]*request.Request
	nextID   int
	clock    time.Time

	// Error hooks.
	listErr error
}

func newMockStore() *mockStore {
	return &mockStore{
		tenants:  make(map[string]*tenant.Tenant),
		events:   make(map[string]*event.Event),
		creds:    make(map[string]*tenant.ProviderCredential),
		requests: make(map[string]*request.Request),
		clock:    time.Date(2026, 6, 1, 20, 0, 0, 0, time.UTC),
	}
}

// tick advances the store clock so timestamps are strictly ordered.
func (m *mockStore) tick() time.Time {
	m.clock = m.clock.Add(time.Second)
	return m.clock
}

func (m *mockStore) id(prefix string) string {
	m.nextID++
	return fmt.Sprintf("%s-%d", prefix, m.nextID)
}

// addTenant creates a tenant whose event is in status with the given pages.
func (m *mockStore) addTenant(handle string, status event.Status, pages event.PagesEnabled) string {
	t, _ := m.CreateTenant(context.Background(), tenant.CreateParams{Handle: handle, Pin: "123456", BypassToken: "bypass-" + handle})
	m.mu.Lock()
	defer m.mu.Unlock()
	ev := m.events[t.ID]
	ev.Status = status
	ev.Pages = pages
	return t.ID
}

// addRequest inserts a request directly in status.
func (m *mockStore) addRequest(tenantID string, track playback.Track, status request.Status) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.tick()
	r := &request.Request{
		ID:        m.id("req"),
		TenantID:  tenantID,
		Track:     track,
		Status:    status,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if status == request.StatusApproved || status == request.StatusQueued {
		r.ApprovedAt = &now
	}
	m.requests[r.ID] = r
	return r.ID
}

func (m *mockStore) request(id string) request.Request {
	m.mu.Lock()
	defer m.mu.Unlock()
	return *m.requests[id]
}

func (m *mockStore) CreateTenant(_ context.Context, p tenant.CreateParams) (*tenant.Tenant, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, t := range m.tenants {
		if t.Handle == p.Handle {
			return nil, fmt.Errorf("handle %s: %w", p.Handle, domain.ErrConflict)
		}
	}
	now := m.tick()
	t := &tenant.Tenant{ID: m.id("tenant"), Handle: p.Handle, PasswordHash: p.PasswordHash, CreatedAt: now, UpdatedAt: now}
	m.tenants[t.ID] = t
	m.events[t.ID] = &event.Event{TenantID: t.ID, Status: event.StatusOffline, Pin: p.Pin, BypassToken: p.BypassToken, UpdatedAt: now}
	cp := *t
	return &cp, nil
}

func (m *mockStore) GetTenant(_ context.Context, id string) (*tenant.Tenant, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tenants[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *t
	return &cp, nil
}

func (m *mockStore) GetTenantByHandle(_ context.Context, handle string) (*tenant.Tenant, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, t := range m.tenants {
		if t.Handle == handle {
			cp := *t
			return &cp, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (m *mockStore) ListTenants(_ context.Context) ([]tenant.Tenant, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.listErr != nil {
		return nil, m.listErr
	}
	out := make([]tenant.Tenant, 0, len(m.tenants))
	for _, t := range m.tenants {
		out = append(out, *t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *mockStore) GetProviderCredential(_ context.Context, tenantID string) (*tenant.ProviderCredential, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.creds[tenantID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *c
	return &cp, nil
}

func (m *mockStore) UpsertProviderCredential(_ context.Context, c *tenant.ProviderCredential) error {
	if c.TenantID == "" {
		return errNoTenant
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *c
	cp.AccessToken, cp.RefreshToken = "", ""
	m.creds[c.TenantID] = &cp
	return nil
}

func (m *mockStore) eventLocked(tenantID string) (*event.Event, error) {
	if tenantID == "" {
		return nil, errNoTenant
	}
	ev, ok := m.events[tenantID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return ev, nil
}

func (m *mockStore) GetEvent(_ context.Context, tenantID string) (*event.Event, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ev, err := m.eventLocked(tenantID)
	if err != nil {
		return nil, err
	}
	cp := *ev
	return &cp, nil
}

func (m *mockStore) UpdateEventStatus(_ context.Context, tenantID string, from, to event.Status) (*event.Event, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ev, err := m.eventLocked(tenantID)
	if err != nil {
		return nil, err
	}
	if ev.Status != from {
		return nil, domain.ErrConflict
	}
	ev.Status = to
	if to == event.StatusOffline {
		ev.Pages = event.PagesEnabled{}
	}
	ev.Sequence++
	ev.UpdatedAt = m.tick()
	cp := *ev
	return &cp, nil
}

func (m *mockStore) ResetEvent(_ context.Context, tenantID string) (*event.Event, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ev, err := m.eventLocked(tenantID)
	if err != nil {
		return nil, err
	}
	ev.Status = event.StatusOffline
	ev.Pages = event.PagesEnabled{}
	ev.Sequence++
	ev.UpdatedAt = m.tick()
	cp := *ev
	return &cp, nil
}

func (m *mockStore) ResetIdleEvent(_ context.Context, tenantID string, idleSince time.Time) (*event.Event, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ev, err := m.eventLocked(tenantID)
	if err != nil {
		return nil, err
	}
	if ev.Status == event.StatusOffline || !ev.UpdatedAt.Before(idleSince) {
		return nil, domain.ErrNotFound
	}
	ev.Status = event.StatusOffline
	ev.Pages = event.PagesEnabled{}
	ev.Sequence++
	ev.UpdatedAt = m.tick()
	cp := *ev
	return &cp, nil
}

func (m *mockStore) SetPageEnabled(_ context.Context, tenantID string, page event.Page, enabled bool) (*event.Event, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ev, err := m.eventLocked(tenantID)
	if err != nil {
		return nil, err
	}
	if ev.Status == event.StatusOffline {
		return nil, domain.ErrEventOffline
	}
	ev.Pages = ev.Pages.With(page, enabled)
	ev.Sequence++
	ev.UpdatedAt = m.tick()
	cp := *ev
	return &cp, nil
}

func (m *mockStore) UpdateAccessCodes(_ context.Context, tenantID string, codes event.AccessCodes) (*event.Event, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ev, err := m.eventLocked(tenantID)
	if err != nil {
		return nil, err
	}
	ev.Pin, ev.BypassToken = codes.Pin, codes.BypassToken
	cp := *ev
	return &cp, nil
}

func (m *mockStore) NextChangeSequence(_ context.Context, tenantID string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ev, err := m.eventLocked(tenantID)
	if err != nil {
		return 0, err
	}
	ev.Sequence++
	return ev.Sequence, nil
}

func (m *mockStore) activeDupLocked(tenantID, uri string, since time.Time) bool {
	for _, r := range m.requests {
		if r.TenantID == tenantID && r.Track.URI == uri && r.Status.In(request.Active) && !r.CreatedAt.Before(since) {
			return true
		}
	}
	return false
}

func (m *mockStore) CreateRequest(_ context.Context, nr request.NewRequest, lookback time.Duration) (*request.Request, error) {
	if nr.TenantID == "" {
		return nil, errNoTenant
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.tick()
	if m.activeDupLocked(nr.TenantID, nr.Track.URI, now.Add(-lookback)) {
		return nil, domain.ErrDuplicateRequest
	}
	r := &request.Request{
		ID:          m.id("req"),
		TenantID:    nr.TenantID,
		Track:       nr.Track,
		Fingerprint: nr.Fingerprint,
		Nickname:    nr.Nickname,
		Status:      request.StatusPending,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	m.requests[r.ID] = r
	cp := *r
	return &cp, nil
}

func (m *mockStore) HasActiveDuplicate(_ context.Context, tenantID, uri string, _ time.Time) (bool, error) {
	if tenantID == "" {
		return false, errNoTenant
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	// The store clock drives the window so tests need no real time.
	return m.activeDupLocked(tenantID, uri, m.clock.Add(-30*time.Minute)), nil
}

func (m *mockStore) GetRequest(_ context.Context, tenantID, id string) (*request.Request, error) {
	if tenantID == "" {
		return nil, errNoTenant
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.requests[id]
	if !ok || r.TenantID != tenantID {
		return nil, domain.ErrNotFound
	}
	cp := *r
	return &cp, nil
}

func (m *mockStore) ListRequests(_ context.Context, tenantID string, f request.ListFilter) ([]request.Request, error) {
	if tenantID == "" {
		return nil, errNoTenant
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []request.Request{}
	for _, r := range m.requests {
		if r.TenantID != tenantID {
			continue
		}
		if len(f.Statuses) > 0 && !r.Status.In(f.Statuses) {
			continue
		}
		out = append(out, *r)
	}
	at := func(t *time.Time) time.Time {
		if t == nil {
			return time.Time{}
		}
		return *t
	}
	sort.Slice(out, func(i, j int) bool {
		switch f.Order {
		case request.OrderApproved:
			return at(out[i].ApprovedAt).Before(at(out[j].ApprovedAt))
		case request.OrderPlayedDesc:
			return at(out[i].PlayedAt).After(at(out[j].PlayedAt))
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	if f.Limit > 0 && len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out, nil
}

func (m *mockStore) ClaimRequest(_ context.Context, tenantID, id string, from []request.Status) (*request.Request, error) {
	if tenantID == "" {
		return nil, errNoTenant
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.requests[id]
	if !ok || r.TenantID != tenantID {
		return nil, domain.ErrNotFound
	}
	if !slices.Contains(from, r.Status) {
		return nil, fmt.Errorf("claim %s (status %s): %w", id, r.Status, domain.ErrAlreadyProcessed)
	}
	now := m.tick()
	r.Status = request.StatusProcessing
	r.ClaimedAt = &now
	r.Attempts++
	cp := *r
	return &cp, nil
}

func (m *mockStore) CompleteRequest(_ context.Context, tenantID, id string, c request.Completion) (*request.Request, error) {
	if tenantID == "" {
		return nil, errNoTenant
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.requests[id]
	if !ok || r.TenantID != tenantID || r.Status != request.StatusProcessing {
		return nil, domain.ErrConflict
	}
	now := m.tick()
	r.Status = c.Status
	r.AddedToQueue, r.AddedToPlaylist = c.AddedToQueue, c.AddedToPlaylist
	r.RequestedQueue, r.RequestedPlaylist = c.RequestedQueue, c.RequestedPlaylist
	r.LastError = c.LastError
	if c.ApprovedBy != "" {
		r.ApprovedBy = c.ApprovedBy
	}
	r.RejectionReason = c.Reason
	switch c.Status {
	case request.StatusApproved:
		r.ApprovedAt = &now
	case request.StatusPlayed:
		r.PlayedAt = &now
	}
	r.ClaimedAt = nil
	r.UpdatedAt = now
	cp := *r
	return &cp, nil
}

func (m *mockStore) MarkQueued(_ context.Context, tenantID string, ids []string) (int64, error) {
	if tenantID == "" {
		return 0, errNoTenant
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for _, id := range ids {
		if r, ok := m.requests[id]; ok && r.TenantID == tenantID && r.Status == request.StatusApproved {
			r.Status = request.StatusQueued
			n++
		}
	}
	return n, nil
}

func (m *mockStore) ReleaseStaleClaims(_ context.Context, tenantID string, olderThan time.Time) ([]request.Request, error) {
	if tenantID == "" {
		return nil, errNoTenant
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []request.Request
	for _, r := range m.requests {
		if r.TenantID == tenantID && r.Status == request.StatusProcessing && r.ClaimedAt != nil && r.ClaimedAt.Before(olderThan) {
			r.Status = request.StatusFailed
			r.LastError = "claim expired"
			r.ClaimedAt = nil
			out = append(out, *r)
		}
	}
	return out, nil
}

// mockProvider is a scripted playbackprovider.Provider. Per-tenant playback
// is held in snaps/queues; call counters are atomic.
type mockProvider struct {
	mu     sync.Mutex
	tracks map[string]playback.Track
	snaps  map[string]*playback.Snapshot
	queues map[string][]playback.Track

	queueErr    error
	playlistErr error
	playbackErr error
	queueDelay  time.Duration

	queueCalls    atomic.Int32
	playlistCalls atomic.Int32
	skipCalls     atomic.Int32
	pauseCalls    atomic.Int32
	fetchCalls    atomic.Int32
}

func newMockProvider(tracks ...playback.Track) *mockProvider {
	p := &mockProvider{
		tracks: make(map[string]playback.Track),
		snaps:  make(map[string]*playback.Snapshot),
		queues: make(map[string][]playback.Track),
	}
	for _, t := range tracks {
		p.tracks[t.URI] = t
	}
	return p
}

func (p *mockProvider) setPlayback(tenantID string, current *playback.Track, queue ...playback.Track) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if current == nil {
		delete(p.snaps, tenantID)
	} else {
		p.snaps[tenantID] = &playback.Snapshot{IsPlaying: true, Current: current}
	}
	p.queues[tenantID] = queue
}

func (p *mockProvider) Name() string { return "mock" }

func (p *mockProvider) Search(_ context.Context, _ string, query string, limit int) ([]playback.Track, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []playback.Track
	for _, t := range p.tracks {
		if len(out) < limit {
			out = append(out, t)
		}
	}
	return out, nil
}

func (p *mockProvider) GetTrack(_ context.Context, tenantID, ref string) (*playback.Track, error) {
	if tenantID == "" {
		return nil, errNoTenant
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	t, ok := p.tracks[playback.CanonicalURI(ref)]
	if !ok {
		return nil, domain.ErrTrackNotFound
	}
	return &t, nil
}

func (p *mockProvider) AddToQueue(ctx context.Context, tenantID, _, _ string) error {
	p.queueCalls.Add(1)
	if p.queueDelay > 0 {
		select {
		case <-time.After(p.queueDelay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	if tenantID == "" {
		return errNoTenant
	}
	return p.queueErr
}

func (p *mockProvider) AddToPlaylist(_ context.Context, _, _, _ string) error {
	p.playlistCalls.Add(1)
	return p.playlistErr
}

func (p *mockProvider) GetCurrentPlayback(_ context.Context, tenantID string) (*playback.Snapshot, error) {
	p.fetchCalls.Add(1)
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.playbackErr != nil {
		return nil, p.playbackErr
	}
	s, ok := p.snaps[tenantID]
	if !ok {
		return nil, nil
	}
	cp := *s
	return &cp, nil
}

func (p *mockProvider) GetQueue(_ context.Context, tenantID string) ([]playback.Track, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.playbackErr != nil {
		return nil, p.playbackErr
	}
	return slices.Clone(p.queues[tenantID]), nil
}

func (p *mockProvider) Pause(_ context.Context, _, _ string) error {
	p.pauseCalls.Add(1)
	return nil
}

func (p *mockProvider) Resume(_ context.Context, _, _ string) error { return nil }

func (p *mockProvider) Skip(_ context.Context, _, _ string) error {
	p.skipCalls.Add(1)
	return nil
}

// mockPublisher records published changes.
type mockPublisher struct {
	mu     sync.Mutex
	events []change.Event
	err    error
}

func (p *mockPublisher) Publish(_ context.Context, ev change.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.events = append(p.events, ev)
	return nil
}

func (p *mockPublisher) kinds(tenantID string) []change.Kind {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []change.Kind
	for _, ev := range p.events {
		if ev.TenantID == tenantID {
			out = append(out, ev.Kind)
		}
	}
	return out
}

// mockLimiter allows the first max submissions per fingerprint.
type mockLimiter struct {
	mu   sync.Mutex
	max  int
	seen map[string]int
	err  error
}

func (l *mockLimiter) Allow(_ context.Context, tenantID, fingerprint string) (ratelimit.Decision, error) {
	if l.err != nil {
		return ratelimit.Decision{}, l.err
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.seen == nil {
		l.seen = make(map[string]int)
	}
	key := tenantID + "|" + fingerprint
	if l.max > 0 && l.seen[key] >= l.max {
		return ratelimit.Decision{RetryAfter: 30 * time.Second, Reason: "window"}, nil
	}
	l.seen[key]++
	return ratelimit.Decision{Allowed: true}, nil
}

// mockTargets returns fixed device and playlist IDs.
type mockTargets struct {
	device, playlist string
}

func (t mockTargets) Targets(_ context.Context, _ string) (deviceID, playlistID string, err error) {
	return t.device, t.playlist, nil
}

// mockPollers records poller lifecycle calls.
type mockPollers struct {
	mu      sync.Mutex
	started []string
	stopped []string
}

func (p *mockPollers) Start(tenantID string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.started = append(p.started, tenantID)
}

func (p *mockPollers) Stop(tenantID string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.stopped = append(p.stopped, tenantID)
}

var (
	trackA = playback.Track{URI: "spotify:track:aaaaaaaaaaaaaaaaaaaaaa", Name: "Alpha", Artists: []string{"Band One"}}
	trackB = playback.Track{URI: "spotify:track:bbbbbbbbbbbbbbbbbbbbbb", Name: "Beta", Artists: []string{"Band Two"}}
	trackC = playback.Track{URI: "spotify:track:cccccccccccccccccccccc", Name: "Gamma", Artists: []string{"Band Three"}}
)
