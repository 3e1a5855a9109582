package nats

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/Strob0t/requestline/internal/domain/change"
	"github.com/Strob0t/requestline/internal/port/broadcast"
	"github.com/Strob0t/requestline/internal/port/messagequeue"
)

// Relay publishes changes on per-tenant subjects and feeds every replica's
// local hub from them, so a host connected to replica A sees approvals made
// on replica B.
type Relay struct {
	q     messagequeue.Queue
	local broadcast.Deliverer
}

var _ broadcast.Publisher = (*Relay)(nil)

// NewRelay creates a relay delivering into local.
func NewRelay(q messagequeue.Queue, local broadcast.Deliverer) *Relay {
	return &Relay{q: q, local: local}
}

// Publish sends ev to its tenant's subject. When the queue is down the
// change is delivered locally only; remote subscribers catch up by polling.
func (r *Relay) Publish(ctx context.Context, ev change.Event) error {
	if ev.TenantID == "" {
		return fmt.Errorf("relay publish: missing tenant")
	}
	if !r.q.IsConnected() {
		r.local.Deliver(ev)
		return nil
	}
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("relay marshal: %w", err)
	}
	if err := r.q.Publish(ctx, messagequeue.SubjectTenantChanges(ev.TenantID), data); err != nil {
		r.local.Deliver(ev)
		return err
	}
	return nil
}

// Start subscribes to every tenant's change subject. Messages whose payload
// tenant disagrees with their subject are dropped.
func (r *Relay) Start(ctx context.Context) (func(), error) {
	return r.q.Subscribe(ctx, messagequeue.SubjectAllTenantChanges, func(_ context.Context, subject string, data []byte) error {
		ev, err := messagequeue.DecodeChange(subject, data)
		if err != nil {
			slog.Warn("dropping relayed change", "subject", subject, "error", err)
			return nil
		}
		r.local.Deliver(ev)
		return nil
	})
}
