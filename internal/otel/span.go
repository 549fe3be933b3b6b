// Package otel provides OpenTelemetry instrumentation utilities for nearby-sync.
package otel

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Attribute keys shared by directory spans
const (
	AttrDeviceID     = attribute.Key("device.id")
	AttrPageSize     = attribute.Key("pagination.limit")
	AttrResultCount  = attribute.Key("result.count")
	AttrHasCursor    = attribute.Key("pagination.has_cursor")
	AttrContactCount = attribute.Key("contacts.count")
)

// StartSpan starts a new span if the tracer is non-nil, otherwise returns a no-op span.
// This provides graceful degradation when tracing is disabled.
func StartSpan(
	ctx context.Context,
	tracer trace.Tracer,
	name string,
	opts ...trace.SpanStartOption,
) (context.Context, trace.Span) {
	if tracer == nil {
		return ctx, trace.SpanFromContext(ctx)
	}
	return tracer.Start(ctx, name, opts...)
}

// RecordError records err on span and marks the span failed. The status
// description stays generic so contact identifiers and URLs only appear in
// the error event.
func RecordError(span trace.Span, err error) {
	if err != nil && span != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "operation failed")
	}
}

// EndSpan records the error errp points at, if any, and ends span. It is meant
// to be deferred with a named error result.
func EndSpan(span trace.Span, errp *error) {
	if errp != nil {
		RecordError(span, *errp)
	}
	span.End()
}
