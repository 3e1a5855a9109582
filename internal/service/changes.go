// Package service implements the party engine on top of ports.
package service

import (
	"context"
	"log/slog"

	rlotel "github.com/Strob0t/requestline/internal/adapter/otel"
	"github.com/Strob0t/requestline/internal/domain/change"
	"github.com/Strob0t/requestline/internal/port/broadcast"
)

// Sequencer hands out the per-tenant change counter.
type Sequencer interface {
	NextChangeSequence(ctx context.Context, tenantID string) (int64, error)
}

// ChangeHook observes every change before it is published.
type ChangeHook func(ctx context.Context, tenantID string, kind change.Kind)

// ChangeFeed sequences tenant changes and publishes them. Publishing is
// best-effort: a failure is logged and never fails the mutation that caused it.
type ChangeFeed struct {
	seq     Sequencer
	pub     broadcast.Publisher
	metrics *rlotel.Metrics
	hooks   []ChangeHook
}

// NewChangeFeed creates a feed publishing through pub.
func NewChangeFeed(seq Sequencer, pub broadcast.Publisher) *ChangeFeed {
	return &ChangeFeed{seq: seq, pub: pub}
}

// SetMetrics enables change counters.
func (f *ChangeFeed) SetMetrics(m *rlotel.Metrics) { f.metrics = m }

// OnChange registers a hook. Not safe to call once the feed is in use.
func (f *ChangeFeed) OnChange(h ChangeHook) {
	f.hooks = append(f.hooks, h)
}

// Emit allocates the next sequence for tenantID, runs the hooks and
// publishes. It is for changes that do not write the event row; callers emit
// only after the state change itself is persisted.
func (f *ChangeFeed) Emit(ctx context.Context, tenantID string, kind change.Kind, payload any) {
	if tenantID == "" {
		slog.Error("change emitted without tenant", "kind", kind)
		return
	}
	seq, err := f.seq.NextChangeSequence(ctx, tenantID)
	f.runHooks(ctx, tenantID, kind)
	if err != nil {
		slog.Warn("change sequence failed, subscribers will catch up by polling",
			"tenant_id", tenantID, "kind", kind, "error", err)
		return
	}
	f.publish(ctx, tenantID, kind, seq, payload)
}

// Publish sends a change whose sequence was assigned by the write that
// persisted it. Event mutations use this: two concurrent writes may publish
// in either order, but the higher sequence always carries the later state.
func (f *ChangeFeed) Publish(ctx context.Context, tenantID string, kind change.Kind, seq int64, payload any) {
	if tenantID == "" {
		slog.Error("change emitted without tenant", "kind", kind)
		return
	}
	f.runHooks(ctx, tenantID, kind)
	f.publish(ctx, tenantID, kind, seq, payload)
}

func (f *ChangeFeed) runHooks(ctx context.Context, tenantID string, kind change.Kind) {
	for _, h := range f.hooks {
		h(ctx, tenantID, kind)
	}
}

func (f *ChangeFeed) publish(ctx context.Context, tenantID string, kind change.Kind, seq int64, payload any) {
	ev, err := change.New(tenantID, kind, seq, payload)
	if err != nil {
		slog.Error("encode change", "tenant_id", tenantID, "kind", kind, "error", err)
		return
	}
	if err := f.pub.Publish(ctx, ev); err != nil {
		slog.Warn("publish change", "tenant_id", tenantID, "kind", kind, "sequence", seq, "error", err)
		return
	}
	f.metrics.ChangeEvent(ctx, string(kind))
}
