package flight

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jonwraymond/calccache/cache"
	"github.com/jonwraymond/calccache/calc"
)

// scriptEngine returns scripted outcomes in order, repeating the last one.
type scriptEngine struct {
	mu     sync.Mutex
	script []func(ctx context.Context, req calc.Request) calc.EngineOutcome
	seen   []calc.Request
	calls  atomic.Int64
}

func (e *scriptEngine) Attempt(ctx context.Context, req calc.Request) calc.EngineOutcome {
	n := e.calls.Add(1)
	e.mu.Lock()
	e.seen = append(e.seen, req)
	step := e.script[min(int(n)-1, len(e.script)-1)]
	e.mu.Unlock()
	return step(ctx, req)
}

func (e *scriptEngine) requests() []calc.Request {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]calc.Request(nil), e.seen...)
}

func script(steps ...func(ctx context.Context, req calc.Request) calc.EngineOutcome) *scriptEngine {
	return &scriptEngine{script: steps}
}

func succeed(payload string) func(context.Context, calc.Request) calc.EngineOutcome {
	return func(context.Context, calc.Request) calc.EngineOutcome {
		return calc.Succeeded([]byte(payload))
	}
}

func fail(diagnostic, code string) func(context.Context, calc.Request) calc.EngineOutcome {
	return func(context.Context, calc.Request) calc.EngineOutcome {
		return calc.Failed(diagnostic, code)
	}
}

// gated blocks until release is closed, then runs next.
func gated(release <-chan struct{}, next func(context.Context, calc.Request) calc.EngineOutcome) func(context.Context, calc.Request) calc.EngineOutcome {
	return func(ctx context.Context, req calc.Request) calc.EngineOutcome {
		<-release
		return next(ctx, req)
	}
}

func water() calc.Request {
	return calc.Request{
		Method: "HF",
		Basis:  "cc-pVDZ",
		Molecule: calc.Molecule{
			Multiplicity: 1,
			Atoms: []calc.Atom{
				{Element: "O", X: 0, Y: 0, Z: 0.117},
				{Element: "H", X: 0, Y: 0.757, Z: -0.467},
				{Element: "H", X: 0, Y: -0.757, Z: -0.467},
			},
		},
	}
}

func newTestOrchestrator(t testing.TB, eng calc.Engine, cfg Config, opts ...cache.Option) *Orchestrator {
	t.Helper()
	store, err := cache.NewStore(cache.DefaultPolicy(), opts...)
	if err != nil {
		t.Fatalf("NewStore failed: %v", err)
	}
	o, err := New(eng, store, cfg)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = o.Close(ctx)
	})
	return o
}

// waitFor polls cond until it holds or the deadline passes.
func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(time.Millisecond)
	}
}

func waiters(o *Orchestrator) int {
	flights := o.InFlight()
	if len(flights) == 0 {
		return -1
	}
	return flights[0].Waiters
}
