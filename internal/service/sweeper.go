package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/Strob0t/requestline/internal/domain"
	"github.com/Strob0t/requestline/internal/port/database"
)

// Sweeper periodically releases approval claims abandoned by a crashed
// process and resets events that were left running.
type Sweeper struct {
	store        database.Store
	events       *EventService
	claimTimeout time.Duration
	idleReset    time.Duration
	cron         *cron.Cron
	now          func() time.Time
}

// NewSweeper creates a sweeper. idleReset <= 0 disables idle event resets.
func NewSweeper(store database.Store, events *EventService, claimTimeout, idleReset time.Duration) *Sweeper {
	return &Sweeper{
		store:        store,
		events:       events,
		claimTimeout: claimTimeout,
		idleReset:    idleReset,
		cron:         cron.New(),
		now:          time.Now,
	}
}

// Start schedules the sweep with a cron spec such as "@every 1m".
func (s *Sweeper) Start(ctx context.Context, spec string) error {
	if _, err := s.cron.AddFunc(spec, func() { s.RunOnce(ctx) }); err != nil {
		return fmt.Errorf("schedule sweeper %q: %w", spec, err)
	}
	s.cron.Start()
	slog.Info("sweeper started", "schedule", spec)
	return nil
}

// Stop halts scheduling and waits for a running sweep to finish.
func (s *Sweeper) Stop() {
	<-s.cron.Stop().Done()
}

// RunOnce sweeps every tenant. Errors for one tenant do not stop the others.
func (s *Sweeper) RunOnce(ctx context.Context) {
	tenants, err := s.store.ListTenants(ctx)
	if err != nil {
		slog.Error("sweeper: list tenants", "error", err)
		return
	}
	now := s.now()
	for i := range tenants {
		id := tenants[i].ID
		released, err := s.store.ReleaseStaleClaims(ctx, id, now.Add(-s.claimTimeout))
		if err != nil {
			slog.Warn("sweeper: release stale claims", "tenant_id", id, "error", err)
		}
		for j := range released {
			slog.Warn("released stale approval claim", "tenant_id", id, "request_id", released[j].ID)
		}

		if s.idleReset <= 0 {
			continue
		}
		ev, err := s.store.ResetIdleEvent(ctx, id, now.Add(-s.idleReset))
		switch {
		case err == nil:
			slog.Info("reset idle event", "tenant_id", id)
			s.events.afterReset(ctx, ev)
		case !errors.Is(err, domain.ErrNotFound):
			slog.Warn("sweeper: reset idle event", "tenant_id", id, "error", err)
		}
	}
}
