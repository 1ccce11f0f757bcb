package observe

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Metrics records calculation metrics.
//
// Contract:
// - Concurrency: implementations must be safe for concurrent use.
// - Errors: implementations must not panic.
type Metrics interface {
	// RecordSubmit records one delivered outcome.
	RecordSubmit(ctx context.Context, role, outcome string, d time.Duration)

	// RecordAttempt records one engine attempt. category is "none" for a
	// successful attempt.
	RecordAttempt(ctx context.Context, category string, d time.Duration)

	// RecordLookup records a cache lookup.
	RecordLookup(ctx context.Context, hit bool)
}

type otelMetrics struct {
	submits     metric.Int64Counter
	submitTime  metric.Float64Histogram
	attempts    metric.Int64Counter
	attemptTime metric.Float64Histogram
	cacheHits   metric.Int64Counter
	cacheMisses metric.Int64Counter
}

// NewMetrics registers the calculation instruments on meter.
func NewMetrics(meter metric.Meter) (Metrics, error) {
	m := &otelMetrics{}
	var err error

	if m.submits, err = meter.Int64Counter("calc.submit.total",
		metric.WithDescription("Outcomes delivered to callers"),
		metric.WithUnit("{outcome}"),
	); err != nil {
		return nil, err
	}
	if m.submitTime, err = meter.Float64Histogram("calc.submit.duration_ms",
		metric.WithDescription("Time from submission to delivered outcome"),
		metric.WithUnit("ms"),
	); err != nil {
		return nil, err
	}
	if m.attempts, err = meter.Int64Counter("calc.attempt.total",
		metric.WithDescription("Engine attempts by failure category"),
		metric.WithUnit("{attempt}"),
	); err != nil {
		return nil, err
	}
	if m.attemptTime, err = meter.Float64Histogram("calc.attempt.duration_ms",
		metric.WithDescription("Engine attempt duration"),
		metric.WithUnit("ms"),
	); err != nil {
		return nil, err
	}
	if m.cacheHits, err = meter.Int64Counter("calc.cache.hits",
		metric.WithDescription("Cache lookups served from the store"),
		metric.WithUnit("{lookup}"),
	); err != nil {
		return nil, err
	}
	if m.cacheMisses, err = meter.Int64Counter("calc.cache.misses",
		metric.WithDescription("Cache lookups that found nothing"),
		metric.WithUnit("{lookup}"),
	); err != nil {
		return nil, err
	}
	return m, nil
}

func (m *otelMetrics) RecordSubmit(ctx context.Context, role, outcome string, d time.Duration) {
	opt := metric.WithAttributes(
		attribute.String("role", role),
		attribute.String("outcome", outcome),
	)
	m.submits.Add(ctx, 1, opt)
	m.submitTime.Record(ctx, milliseconds(d), opt)
}

func (m *otelMetrics) RecordAttempt(ctx context.Context, category string, d time.Duration) {
	opt := metric.WithAttributes(attribute.String("category", category))
	m.attempts.Add(ctx, 1, opt)
	m.attemptTime.Record(ctx, milliseconds(d), opt)
}

func (m *otelMetrics) RecordLookup(ctx context.Context, hit bool) {
	if hit {
		m.cacheHits.Add(ctx, 1)
		return
	}
	m.cacheMisses.Add(ctx, 1)
}

func milliseconds(d time.Duration) float64 {
	return float64(d) / float64(time.Millisecond)
}

// NopMetrics returns metrics that record nothing.
func NopMetrics() Metrics {
	return nopMetrics{}
}

type nopMetrics struct{}

func (nopMetrics) RecordSubmit(context.Context, string, string, time.Duration) {}
func (nopMetrics) RecordAttempt(context.Context, string, time.Duration)        {}
func (nopMetrics) RecordLookup(context.Context, bool)                          {}
