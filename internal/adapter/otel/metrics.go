package otel

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const meterName = "requestline"

// Metrics holds all requestline metric instruments. A nil *Metrics records
// nothing, so services can run without telemetry in tests.
type Metrics struct {
	Submissions    metric.Int64Counter
	Approvals      metric.Int64Counter
	ChangeEvents   metric.Int64Counter
	PollErrors     metric.Int64Counter
	AdapterLatency metric.Float64Histogram
	WSConnections  metric.Int64UpDownCounter
}

// NewMetrics creates all metric instruments on the global meter provider.
func NewMetrics() (*Metrics, error) {
	meter := otel.Meter(meterName)
	m := &Metrics{}
	var err error

	m.Submissions, err = meter.Int64Counter("requestline.submissions",
		metric.WithDescription("Guest submissions by result"))
	if err != nil {
		return nil, err
	}

	m.Approvals, err = meter.Int64Counter("requestline.approvals",
		metric.WithDescription("Approval attempts by final status"))
	if err != nil {
		return nil, err
	}

	m.ChangeEvents, err = meter.Int64Counter("requestline.change_events",
		metric.WithDescription("Change events published by kind"))
	if err != nil {
		return nil, err
	}

	m.PollErrors, err = meter.Int64Counter("requestline.poll.errors",
		metric.WithDescription("Failed playback poll ticks"))
	if err != nil {
		return nil, err
	}

	m.AdapterLatency, err = meter.Float64Histogram("requestline.adapter.duration_seconds",
		metric.WithDescription("Playback provider call latency"),
		metric.WithUnit("s"))
	if err != nil {
		return nil, err
	}

	m.WSConnections, err = meter.Int64UpDownCounter("requestline.ws.connections",
		metric.WithDescription("Open websocket subscribers"))
	if err != nil {
		return nil, err
	}

	return m, nil
}

// Submission counts a guest submission outcome ("accepted", "duplicate", ...).
func (m *Metrics) Submission(ctx context.Context, result string) {
	if m == nil {
		return
	}
	m.Submissions.Add(ctx, 1, metric.WithAttributes(attribute.String("result", result)))
}

// Approval counts an approval attempt by its resolved status.
func (m *Metrics) Approval(ctx context.Context, status string) {
	if m == nil {
		return
	}
	m.Approvals.Add(ctx, 1, metric.WithAttributes(attribute.String("status", status)))
}

// ChangeEvent counts a published change by kind.
func (m *Metrics) ChangeEvent(ctx context.Context, kind string) {
	if m == nil {
		return
	}
	m.ChangeEvents.Add(ctx, 1, metric.WithAttributes(attribute.String("kind", kind)))
}

// PollError counts a failed poll tick.
func (m *Metrics) PollError(ctx context.Context) {
	if m == nil {
		return
	}
	m.PollErrors.Add(ctx, 1)
}

// AdapterCall records the latency of one provider operation.
func (m *Metrics) AdapterCall(ctx context.Context, op string, start time.Time, err error) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.AdapterLatency.Record(ctx, time.Since(start).Seconds(), metric.WithAttributes(
		attribute.String("op", op),
		attribute.String("result", result),
	))
}

// WSDelta tracks websocket connections coming and going.
func (m *Metrics) WSDelta(delta int) {
	if m == nil {
		return
	}
	m.WSConnections.Add(context.Background(), int64(delta))
}
