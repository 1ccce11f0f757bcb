package observe

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	tracenoop "go.opentelemetry.io/otel/trace/noop"
)

// SpanMeta describes the calculation a span covers.
type SpanMeta struct {
	Operation   string // submit|attempt|commit
	Fingerprint string
	Method      string
	Basis       string
	Attempt     int
	Mutation    string
}

// SpanName returns calc.<operation>.
func (m SpanMeta) SpanName() string {
	return "calc." + m.Operation
}

func (m SpanMeta) attributes() []attribute.KeyValue {
	attrs := []attribute.KeyValue{
		attribute.String("calc.fingerprint", m.Fingerprint),
	}
	if m.Method != "" {
		attrs = append(attrs, attribute.String("calc.method", m.Method))
	}
	if m.Basis != "" {
		attrs = append(attrs, attribute.String("calc.basis", m.Basis))
	}
	if m.Operation == "attempt" {
		attrs = append(attrs, attribute.Int("calc.attempt", m.Attempt))
	}
	if m.Mutation != "" {
		attrs = append(attrs, attribute.String("calc.mutation", m.Mutation))
	}
	return attrs
}

// Tracer starts and ends calculation spans.
//
// Contract:
// - Concurrency: implementations must be safe for concurrent use.
// - Errors: EndSpan is best-effort and must not panic.
type Tracer interface {
	StartSpan(ctx context.Context, meta SpanMeta) (context.Context, trace.Span)
	EndSpan(span trace.Span, err error)
}

// NewTracer wraps an OpenTelemetry tracer.
func NewTracer(t trace.Tracer) Tracer {
	return &otelTracer{tracer: t}
}

type otelTracer struct {
	tracer trace.Tracer
}

func (t *otelTracer) StartSpan(ctx context.Context, meta SpanMeta) (context.Context, trace.Span) {
	return t.tracer.Start(ctx, meta.SpanName(),
		trace.WithAttributes(meta.attributes()...),
		trace.WithSpanKind(trace.SpanKindInternal),
	)
}

func (t *otelTracer) EndSpan(span trace.Span, err error) {
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		span.RecordError(err)
	} else {
		span.SetStatus(codes.Ok, "")
	}
	span.End()
}

// NopTracer returns a tracer whose spans record nothing.
func NopTracer() Tracer {
	return NewTracer(tracenoop.NewTracerProvider().Tracer("noop"))
}
