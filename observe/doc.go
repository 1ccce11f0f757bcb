// Package observe provides tracing, metrics and structured logging for the
// calculation cache.
//
// Tracing and metrics are OpenTelemetry; logging is log/slog with either a
// JSON handler or a tint text handler. Everything can be disabled, in which
// case no-op implementations are returned and callers never need nil
// checks.
//
// Instruments:
//
//	calc.submit.total        counter   {role, outcome}
//	calc.submit.duration_ms  histogram {role, outcome}
//	calc.attempt.total       counter   {category}
//	calc.attempt.duration_ms histogram {category}
//	calc.cache.hits          counter
//	calc.cache.misses        counter
package observe
