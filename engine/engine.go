package engine

import (
	"context"
	"time"

	"github.com/jonwraymond/calccache/calc"
	"github.com/jonwraymond/calccache/observe"
)

// Func adapts a function to calc.Engine.
type Func func(ctx context.Context, req calc.Request) calc.EngineOutcome

// Attempt calls f.
func (f Func) Attempt(ctx context.Context, req calc.Request) calc.EngineOutcome {
	return f(ctx, req)
}

// Instrument wraps eng with a span and a log line per attempt. Failures
// are recorded on the span but returned unchanged.
func Instrument(eng calc.Engine, inst observe.Instruments) calc.Engine {
	inst = inst.OrNop()
	return &instrumented{next: eng, tracer: inst.Tracer, logger: inst.Logger}
}

type instrumented struct {
	next   calc.Engine
	tracer observe.Tracer
	logger observe.Logger
}

func (e *instrumented) Attempt(ctx context.Context, req calc.Request) calc.EngineOutcome {
	ctx, span := e.tracer.StartSpan(ctx, observe.SpanMeta{
		Operation: "engine",
		Method:    req.Method,
		Basis:     req.Basis,
	})
	start := time.Now()

	out := e.next.Attempt(ctx, req)

	duration := time.Since(start)
	fields := []observe.Field{
		observe.F("method", req.Method),
		observe.F("basis", req.Basis),
		observe.F("duration_ms", float64(duration.Milliseconds())),
	}
	if out.OK() {
		e.tracer.EndSpan(span, nil)
		e.logger.Debug(ctx, "engine attempt completed", fields...)
		return out
	}

	e.tracer.EndSpan(span, &Error{Failure: *out.Failure})
	fields = append(fields,
		observe.F("diagnostic", out.Failure.Diagnostic),
		observe.F("code", out.Failure.Code))
	e.logger.Info(ctx, "engine attempt failed", fields...)
	return out
}

// Error presents an engine failure as an error for span status.
type Error struct {
	Failure calc.EngineFailure
}

func (e *Error) Error() string {
	if e.Failure.Code == "" {
		return e.Failure.Diagnostic
	}
	return e.Failure.Code + ": " + e.Failure.Diagnostic
}
