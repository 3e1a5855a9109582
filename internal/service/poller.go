package service

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"
	"time"

	rlotel "github.com/Strob0t/requestline/internal/adapter/otel"
	"github.com/Strob0t/requestline/internal/domain"
	"github.com/Strob0t/requestline/internal/domain/change"
	"github.com/Strob0t/requestline/internal/domain/playback"
	"github.com/Strob0t/requestline/internal/domain/request"
	"github.com/Strob0t/requestline/internal/port/database"
	"github.com/Strob0t/requestline/internal/port/playbackprovider"
)

var _ PollerControl = (*PollerManager)(nil)

// PollerManager runs one playback poller per active tenant. Each poller has
// its own goroutine and ticker, so a slow provider account only delays its
// own tenant.
type PollerManager struct {
	store     database.Store
	display   *displayBuilder
	approvals *ApprovalService
	feed      *ChangeFeed
	interval  time.Duration
	metrics   *rlotel.Metrics

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu      sync.Mutex
	pollers map[string]*poller
}

type poller struct {
	cancel context.CancelFunc
	kick   chan struct{}
}

// pollState is owned by one poller goroutine.
type pollState struct {
	tracker *playback.Tracker
	last    []byte
}

// NewPollerManager creates a manager. Pollers run until Stop or Shutdown.
func NewPollerManager(store database.Store, provider playbackprovider.Provider, approvals *ApprovalService, feed *ChangeFeed, interval, adapterTimeout time.Duration) *PollerManager {
	ctx, cancel := context.WithCancel(context.Background())
	return &PollerManager{
		store:     store,
		display:   &displayBuilder{store: store, provider: provider, timeout: adapterTimeout},
		approvals: approvals,
		feed:      feed,
		interval:  interval,
		ctx:       ctx,
		cancel:    cancel,
		pollers:   make(map[string]*poller),
	}
}

// SetMetrics enables poll error counters.
func (m *PollerManager) SetMetrics(mt *rlotel.Metrics) { m.metrics = mt }

// Boot starts pollers for every tenant whose event is not offline.
func (m *PollerManager) Boot(ctx context.Context) error {
	tenants, err := m.store.ListTenants(ctx)
	if err != nil {
		return err
	}
	for i := range tenants {
		ev, err := m.store.GetEvent(ctx, tenants[i].ID)
		if err != nil {
			slog.Warn("boot poller: get event", "tenant_id", tenants[i].ID, "error", err)
			continue
		}
		if ev.Usable() {
			m.Start(ev.TenantID)
		}
	}
	return nil
}

// Start launches the tenant's poller if it is not already running.
func (m *PollerManager) Start(tenantID string) {
	if tenantID == "" {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.pollers[tenantID]; ok || m.ctx.Err() != nil {
		return
	}
	ctx, cancel := context.WithCancel(m.ctx)
	p := &poller{cancel: cancel, kick: make(chan struct{}, 1)}
	m.pollers[tenantID] = p

	m.wg.Add(1)
	go m.loop(ctx, tenantID, p)
	slog.Info("playback poller started", "tenant_id", tenantID)
}

// Stop cancels the tenant's poller. It does not wait for an in-flight tick.
func (m *PollerManager) Stop(tenantID string) {
	m.mu.Lock()
	p, ok := m.pollers[tenantID]
	delete(m.pollers, tenantID)
	m.mu.Unlock()
	if ok {
		p.cancel()
		slog.Info("playback poller stopped", "tenant_id", tenantID)
	}
}

// Kick requests an immediate poll, e.g. after a playback control.
func (m *PollerManager) Kick(tenantID string) {
	m.mu.Lock()
	p, ok := m.pollers[tenantID]
	m.mu.Unlock()
	if !ok {
		return
	}
	select {
	case p.kick <- struct{}{}:
	default:
	}
}

// Running reports whether the tenant has a poller.
func (m *PollerManager) Running(tenantID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.pollers[tenantID]
	return ok
}

// Shutdown stops every poller and waits for them to exit.
func (m *PollerManager) Shutdown() {
	m.cancel()
	m.mu.Lock()
	m.pollers = make(map[string]*poller)
	m.mu.Unlock()
	m.wg.Wait()
}

func (m *PollerManager) loop(ctx context.Context, tenantID string, p *poller) {
	defer m.wg.Done()

	st := &pollState{tracker: playback.NewTracker()}
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		if !m.tick(ctx, tenantID, st) {
			m.retire(tenantID, p)
			return
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		case <-p.kick:
		}
	}
}

// retire removes p once its tenant went offline, possibly through another
// replica. A poller started again in the meantime is left alone.
func (m *PollerManager) retire(tenantID string, p *poller) {
	m.mu.Lock()
	if m.pollers[tenantID] == p {
		delete(m.pollers, tenantID)
	}
	m.mu.Unlock()
	p.cancel()
	slog.Info("playback poller retired, event offline", "tenant_id", tenantID)
}

// tick runs one poll cycle: promote queued requests, confirm finished ones as
// played, and publish the display when it changed. A failed provider fetch is
// not an observation; the tracker only advances on a successful read.
// It returns false when the event is offline or gone and the poller should exit.
func (m *PollerManager) tick(ctx context.Context, tenantID string, st *pollState) bool {
	ev, err := m.store.GetEvent(ctx, tenantID)
	switch {
	case errors.Is(err, domain.ErrNotFound):
		return false
	case err != nil:
		if ctx.Err() == nil {
			m.metrics.PollError(ctx)
			slog.Warn("poll event", "tenant_id", tenantID, "error", err)
		}
		return true
	case !ev.Usable():
		return false
	}

	raw, err := m.display.fetch(ctx, tenantID)
	if err != nil {
		if ctx.Err() == nil {
			m.metrics.PollError(ctx)
			slog.Debug("poll playback", "tenant_id", tenantID, "error", err)
		}
		return true
	}

	cands, reqs, err := m.display.upcoming(ctx, tenantID)
	if err != nil {
		m.metrics.PollError(ctx)
		slog.Warn("poll upcoming requests", "tenant_id", tenantID, "error", err)
		return true
	}
	m.markQueued(ctx, tenantID, raw, reqs)

	for _, id := range st.tracker.Observe(raw, cands) {
		if _, err := m.approvals.MarkPlayed(ctx, tenantID, id); err != nil &&
			!errors.Is(err, domain.ErrAlreadyProcessed) && !errors.Is(err, domain.ErrNotFound) {
			slog.Warn("mark played", "tenant_id", tenantID, "request_id", id, "error", err)
		}
	}

	d, err := m.display.annotate(ctx, tenantID, raw)
	if err != nil {
		m.metrics.PollError(ctx)
		slog.Warn("poll annotate", "tenant_id", tenantID, "error", err)
		return true
	}
	b, err := json.Marshal(d)
	if err != nil || bytes.Equal(b, st.last) {
		return true
	}
	st.last = b
	m.feed.Emit(ctx, tenantID, change.KindPlayback, d)
	return true
}

// markQueued promotes approved requests that the provider now shows as
// current or queued.
func (m *PollerManager) markQueued(ctx context.Context, tenantID string, raw *playback.Snapshot, reqs []request.Request) {
	if raw == nil {
		return
	}
	var approved []request.Request
	for _, r := range reqs {
		if r.Status == request.StatusApproved {
			approved = append(approved, r)
		}
	}
	if len(approved) == 0 {
		return
	}

	match := playback.NewMatcher(candidates(approved))
	var ids []string
	if raw.Current != nil {
		if c, ok := match.Match(*raw.Current); ok {
			ids = append(ids, c.RequestID)
		}
	}
	for _, t := range raw.Queue {
		if c, ok := match.Match(t); ok {
			ids = append(ids, c.RequestID)
		}
	}
	if len(ids) == 0 {
		return
	}
	if _, err := m.store.MarkQueued(ctx, tenantID, ids); err != nil {
		slog.Warn("mark queued", "tenant_id", tenantID, "error", err)
	}
}
