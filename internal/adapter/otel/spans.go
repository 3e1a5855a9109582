package otel

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "requestline"

// StartProviderSpan starts a client span for a playback provider call.
func StartProviderSpan(ctx context.Context, provider, op, tenantID string) (context.Context, trace.Span) {
	return otel.Tracer(tracerName).Start(ctx, provider+"."+op,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("tenant.id", tenantID),
			attribute.String("provider.op", op),
		),
	)
}

// StartApprovalSpan starts a span covering one claim-and-apply cycle.
func StartApprovalSpan(ctx context.Context, op, tenantID, requestID string) (context.Context, trace.Span) {
	return otel.Tracer(tracerName).Start(ctx, "request."+op,
		trace.WithAttributes(
			attribute.String("tenant.id", tenantID),
			attribute.String("request.id", requestID),
		),
	)
}

// EndSpan records err on span, if any, and ends it.
func EndSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}
