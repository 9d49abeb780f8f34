// Package tracer traces document operations with OpenTelemetry.
package tracer

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// SpanPrefix prefixes the span name of every operation.
const SpanPrefix = "fesdql."

// Tracer starts one span per document operation.
type Tracer interface {
	Start(ctx context.Context, op Operation) (context.Context, Span)
}

// Span is an operation in flight.
type Span interface {
	// Finish records the outcome and ends the span. It must be called once.
	Finish(res Result)
}

// Operation describes a document operation before it runs.
type Operation struct {
	// Name is the operation name (insert_one, find_many, aggregate, ...).
	Name       string
	Database   string
	Collection string
	// Statement is a sanitized rendering of the filter or pipeline, may be empty.
	Statement string
}

// Result is the outcome of an operation.
type Result struct {
	Duration time.Duration
	// Documents is the number of documents returned or affected.
	Documents int64
	Err       error
}

// OtelTracer adapts an OpenTelemetry tracer.
type OtelTracer struct {
	tracer trace.Tracer
}

// NewOtelTracer creates a Tracer backed by t, which must not be nil.
func NewOtelTracer(t trace.Tracer) *OtelTracer {
	return &OtelTracer{tracer: t}
}

// Start starts a client span named after the operation and carrying the
// MongoDB semantic convention attributes.
// See: https://opentelemetry.io/docs/specs/semconv/database/mongodb/
func (t *OtelTracer) Start(ctx context.Context, op Operation) (context.Context, Span) {
	attrs := make([]attribute.KeyValue, 0, 5)
	attrs = append(attrs,
		attribute.String("db.system", "mongodb"),
		attribute.String("db.operation", op.Name),
	)
	if op.Database != "" {
		attrs = append(attrs, attribute.String("db.name", op.Database))
	}
	if op.Collection != "" {
		attrs = append(attrs, attribute.String("db.mongodb.collection", op.Collection))
	}
	if op.Statement != "" {
		attrs = append(attrs, attribute.String("db.statement", op.Statement))
	}

	ctx, span := t.tracer.Start(ctx, SpanPrefix+op.Name,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(attrs...),
	)
	return ctx, otelSpan{span: span}
}

type otelSpan struct {
	span trace.Span
}

func (s otelSpan) Finish(res Result) {
	s.span.SetAttributes(attribute.Float64("db.duration_ms", float64(res.Duration.Microseconds())/1000.0))
	if res.Documents > 0 {
		s.span.SetAttributes(attribute.Int64("db.documents_affected", res.Documents))
	}

	if res.Err != nil {
		s.span.RecordError(res.Err)
		s.span.SetStatus(codes.Error, res.Err.Error())
	} else {
		s.span.SetStatus(codes.Ok, "")
	}
	s.span.End()
}

// Noop is a Tracer that records nothing.
type Noop struct{}

// Start returns ctx and a span that does nothing.
func (Noop) Start(ctx context.Context, _ Operation) (context.Context, Span) {
	return ctx, noopSpan{}
}

type noopSpan struct{}

func (noopSpan) Finish(Result) {}

// Enabled reports whether t records spans.
func Enabled(t Tracer) bool {
	switch t.(type) {
	case nil, Noop, *Noop:
		return false
	default:
		return true
	}
}
