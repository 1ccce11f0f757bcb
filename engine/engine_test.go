package engine

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"testing"

	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/jonwraymond/calccache/calc"
	"github.com/jonwraymond/calccache/observe"
)

func TestInstrument(t *testing.T) {
	rec := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(rec))
	var logs bytes.Buffer
	inst := observe.Instruments{
		Tracer: observe.NewTracer(tp.Tracer("test")),
		Logger: observe.NewSlogLogger(slog.New(slog.NewJSONHandler(&logs, &slog.HandlerOptions{Level: slog.LevelDebug}))),
	}

	calls := 0
	eng := Instrument(Func(func(context.Context, calc.Request) calc.EngineOutcome {
		calls++
		if calls == 1 {
			return calc.Succeeded([]byte("ok"))
		}
		return calc.Failed("out of memory", "E_MEMORY")
	}), inst)

	req := calc.Request{Method: "hf", Basis: "sto-3g"}
	if out := eng.Attempt(context.Background(), req); !out.OK() {
		t.Fatal("first attempt should succeed")
	}
	out := eng.Attempt(context.Background(), req)
	if out.OK() || out.Failure.Code != "E_MEMORY" {
		t.Fatalf("failure should pass through unchanged, got %+v", out)
	}

	spans := rec.Ended()
	if len(spans) != 2 {
		t.Fatalf("recorded %d spans, want 2", len(spans))
	}
	if spans[0].Name() != "calc.engine" {
		t.Errorf("span name = %q", spans[0].Name())
	}
	if spans[1].Status().Code != codes.Error {
		t.Errorf("failed attempt span status = %v, want error", spans[1].Status().Code)
	}
	if !strings.Contains(logs.String(), "engine attempt failed") {
		t.Errorf("logs = %s", logs.String())
	}
}

func TestError(t *testing.T) {
	err := &Error{Failure: calc.EngineFailure{Diagnostic: "boom", Code: "E_X"}}
	if err.Error() != "E_X: boom" {
		t.Errorf("Error() = %q", err.Error())
	}
	err.Failure.Code = ""
	if err.Error() != "boom" {
		t.Errorf("Error() = %q", err.Error())
	}
}
