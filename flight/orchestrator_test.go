package flight

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jonwraymond/calccache/cache"
	"github.com/jonwraymond/calccache/calc"
	"github.com/jonwraymond/calccache/recovery"
	"github.com/jonwraymond/calccache/resilience"
)

func TestNew_Validation(t *testing.T) {
	store, _ := cache.NewStore(cache.DefaultPolicy())
	eng := script(succeed("ok"))

	if _, err := New(nil, store, Config{}); !errors.Is(err, ErrNoEngine) {
		t.Errorf("New(nil engine) = %v, want ErrNoEngine", err)
	}
	if _, err := New(eng, nil, Config{}); !errors.Is(err, ErrNoStore) {
		t.Errorf("New(nil store) = %v, want ErrNoStore", err)
	}
	if _, err := New(eng, store, Config{MaxAttempts: -1}); !errors.Is(err, ErrInvalidConfig) {
		t.Errorf("New(bad config) = %v, want ErrInvalidConfig", err)
	}
}

func TestSubmit_SecondCallServedFromCache(t *testing.T) {
	eng := script(succeed(`{"energy":-76.0266}`))
	o := newTestOrchestrator(t, eng, Config{})
	ctx := context.Background()

	first := o.Submit(ctx, water(), SubmitOptions{})
	if !first.IsSuccess() || first.Role != calc.RoleLeader {
		t.Fatalf("first Submit = %v role=%s", first.Kind, first.Role)
	}
	second := o.Submit(ctx, water(), SubmitOptions{})
	if !second.IsSuccess() || second.Role != calc.RoleCache {
		t.Fatalf("second Submit = %v role=%s", second.Kind, second.Role)
	}
	if !bytes.Equal(first.Payload, second.Payload) {
		t.Errorf("payloads differ: %s vs %s", first.Payload, second.Payload)
	}
	if got := eng.calls.Load(); got != 1 {
		t.Errorf("engine calls = %d, want 1", got)
	}
}

func TestSubmit_EquivalentRequestsShareResult(t *testing.T) {
	eng := script(succeed("ok"))
	o := newTestOrchestrator(t, eng, Config{})
	ctx := context.Background()

	a := water()
	b := water()
	b.Method = " hf "
	b.Basis = "CC-PVDZ"
	if o.Fingerprint(a) != o.Fingerprint(b) {
		t.Fatal("equivalent requests should share a fingerprint")
	}
	o.Submit(ctx, a, SubmitOptions{})
	if out := o.Submit(ctx, b, SubmitOptions{}); out.Role != calc.RoleCache {
		t.Errorf("equivalent request role = %s, want cache", out.Role)
	}
	if got := eng.calls.Load(); got != 1 {
		t.Errorf("engine calls = %d, want 1", got)
	}
}

func TestSubmit_ConcurrentSingleLeader(t *testing.T) {
	const n = 20
	release := make(chan struct{})
	eng := script(gated(release, succeed("shared")))
	o := newTestOrchestrator(t, eng, Config{})
	ctx := context.Background()

	outs := make([]calc.Outcome, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			outs[i] = o.Submit(ctx, water(), SubmitOptions{})
		}(i)
	}
	waitFor(t, "followers to attach", func() bool { return waiters(o) == n-1 })
	if st := o.State(o.Fingerprint(water())); st != StateLeading {
		t.Errorf("State() = %s, want leading", st)
	}
	close(release)
	wg.Wait()

	leaders := 0
	for i, out := range outs {
		if !out.IsSuccess() || string(out.Payload) != "shared" {
			t.Errorf("outcome %d = %v %q", i, out.Kind, out.Payload)
		}
		if out.Role == calc.RoleLeader {
			leaders++
		}
	}
	if leaders != 1 {
		t.Errorf("leaders = %d, want 1", leaders)
	}
	if got := eng.calls.Load(); got != 1 {
		t.Errorf("engine calls = %d, want 1", got)
	}
	if st := o.State(o.Fingerprint(water())); st != StateIdle {
		t.Errorf("State() after completion = %s, want idle", st)
	}
}

func TestSubmit_InvalidInputSingleAttempt(t *testing.T) {
	eng := script(fail("basis set not found for element Xx", "E_INPUT"))
	o := newTestOrchestrator(t, eng, Config{})
	ctx := context.Background()

	out := o.Submit(ctx, water(), SubmitOptions{})
	if out.Kind != calc.OutcomeFailure || out.Category != calc.CategoryInvalidInput {
		t.Fatalf("Submit = %v/%s, want failure/invalid_input", out.Kind, out.Category)
	}
	if out.Attempts != 1 || len(out.History) != 1 {
		t.Errorf("Attempts = %d, History = %d, want 1 and 1", out.Attempts, len(out.History))
	}

	// Cached: never attempted again.
	o.Submit(ctx, water(), SubmitOptions{})
	if got := eng.calls.Load(); got != 1 {
		t.Errorf("engine calls = %d, want 1", got)
	}
}

func TestSubmit_ConvergenceExhaustsStrategies(t *testing.T) {
	eng := script(fail("SCF iterations did not converge", "E_SCF_CONVERGENCE"))
	o := newTestOrchestrator(t, eng, Config{})

	out := o.Submit(context.Background(), water(), SubmitOptions{})

	steps := recovery.DefaultTable().Names(calc.CategoryConvergence)
	want := len(steps) + 1
	if out.Kind != calc.OutcomeFailure || out.Category != calc.CategoryConvergence {
		t.Fatalf("Submit = %v/%s", out.Kind, out.Category)
	}
	if out.Attempts != want || len(out.History) != want {
		t.Fatalf("Attempts = %d, History = %d, want %d", out.Attempts, len(out.History), want)
	}
	if got := eng.calls.Load(); got != int64(want) {
		t.Errorf("engine calls = %d, want %d", got, want)
	}
	mutations := out.Mutations()
	if len(mutations) != len(steps) {
		t.Fatalf("Mutations() = %v, want %v", mutations, steps)
	}
	for i := range steps {
		if mutations[i] != steps[i] {
			t.Errorf("mutation %d = %s, want %s", i, mutations[i], steps[i])
		}
	}
	last := out.History[len(out.History)-1]
	if len(last.MutationsApplied) != len(steps) {
		t.Errorf("MutationsApplied = %v", last.MutationsApplied)
	}
}

func TestSubmit_RecoversAfterTwoFailures(t *testing.T) {
	eng := script(
		fail("SCF iterations did not converge", "E_SCF_CONVERGENCE"),
		fail("SCF iterations did not converge", "E_SCF_CONVERGENCE"),
		succeed("recovered"),
	)
	o := newTestOrchestrator(t, eng, Config{})
	ctx := context.Background()

	out := o.Submit(ctx, water(), SubmitOptions{})
	if !out.IsSuccess() {
		t.Fatalf("Submit = %v, want success", out.Kind)
	}
	if len(out.History) != 2 || out.Attempts != 3 {
		t.Errorf("History = %d, Attempts = %d, want 2 and 3", len(out.History), out.Attempts)
	}
	steps := recovery.DefaultTable().Names(calc.CategoryConvergence)
	if out.Mutation != steps[1] {
		t.Errorf("Mutation = %q, want %q", out.Mutation, steps[1])
	}

	again := o.Submit(ctx, water(), SubmitOptions{})
	if again.Role != calc.RoleCache || len(again.History) != 2 {
		t.Errorf("cached outcome role=%s history=%d", again.Role, len(again.History))
	}
	if got := eng.calls.Load(); got != 3 {
		t.Errorf("engine calls = %d, want 3", got)
	}
}

func TestSubmit_StepsApplyToOriginalRequest(t *testing.T) {
	eng := script(
		fail("SCF iterations did not converge", "E_SCF_CONVERGENCE"),
		fail("SCF iterations did not converge", "E_SCF_CONVERGENCE"),
		succeed("ok"),
	)
	o := newTestOrchestrator(t, eng, Config{})
	o.Submit(context.Background(), water(), SubmitOptions{})

	seen := eng.requests()
	if len(seen) != 3 {
		t.Fatalf("engine saw %d requests", len(seen))
	}
	if _, ok := seen[0].Option("scf_maxiter"); ok {
		t.Error("attempt 0 should be the unmodified request")
	}
	if v, _ := seen[1].Option("scf_maxiter"); v != 200 {
		t.Errorf("attempt 1 scf_maxiter = %v, want 200", v)
	}
	if _, ok := seen[2].Option("scf_maxiter"); ok {
		t.Error("attempt 2 should not carry attempt 1's mutation")
	}
	if _, ok := seen[2].Option("damping_percentage"); !ok {
		t.Errorf("attempt 2 options = %v, want damping", seen[2].Options)
	}
}

func TestSubmit_CategoryShift(t *testing.T) {
	eng := script(
		fail("SCF iterations did not converge", "E_SCF_CONVERGENCE"),
		fail("out of memory", "E_MEMORY"),
		succeed("ok"),
	)
	o := newTestOrchestrator(t, eng, Config{})
	out := o.Submit(context.Background(), water(), SubmitOptions{})

	table := recovery.DefaultTable()
	want := []string{
		table.Names(calc.CategoryConvergence)[0],
		table.Names(calc.CategoryResourceExhaustion)[0],
	}
	got := append(out.Mutations(), out.Mutation)
	if len(got) != 2 || got[0] != want[0] || got[1] != want[1] {
		t.Errorf("mutations = %v, want %v", got, want)
	}
	cats := out.Categories()
	if len(cats) != 2 || cats[0] != calc.CategoryConvergence || cats[1] != calc.CategoryResourceExhaustion {
		t.Errorf("Categories() = %v", cats)
	}
}

func TestSubmit_AttemptBudgetCap(t *testing.T) {
	eng := script(fail("SCF iterations did not converge", "E_SCF_CONVERGENCE"))
	o := newTestOrchestrator(t, eng, Config{MaxAttempts: 2})

	out := o.Submit(context.Background(), water(), SubmitOptions{})
	if out.Attempts != 2 {
		t.Errorf("Attempts = %d, want 2", out.Attempts)
	}
}

func TestSubmit_FollowerTimeout(t *testing.T) {
	release := make(chan struct{})
	eng := script(gated(release, succeed("late")))
	o := newTestOrchestrator(t, eng, Config{})
	ctx := context.Background()

	leaderOut := make(chan calc.Outcome, 1)
	go func() { leaderOut <- o.Submit(ctx, water(), SubmitOptions{}) }()
	waitFor(t, "leader to start", func() bool { return waiters(o) == 0 })

	out := o.Submit(ctx, water(), SubmitOptions{Timeout: 20 * time.Millisecond})
	if out.Kind != calc.OutcomeTimeout || !errors.Is(out.Err, calc.ErrTimeout) {
		t.Fatalf("follower outcome = %v err=%v, want timeout", out.Kind, out.Err)
	}
	if out.Role != calc.RoleFollower {
		t.Errorf("Role = %s, want follower", out.Role)
	}
	if st := o.State(o.Fingerprint(water())); st != StateLeading {
		t.Errorf("State() = %s, computation should still be leading", st)
	}

	close(release)
	if got := <-leaderOut; !got.IsSuccess() {
		t.Fatalf("leader outcome = %v", got.Kind)
	}
	later := o.Submit(ctx, water(), SubmitOptions{})
	if later.Role != calc.RoleCache || string(later.Payload) != "late" {
		t.Errorf("later Submit role=%s payload=%q", later.Role, later.Payload)
	}
	if got := eng.calls.Load(); got != 1 {
		t.Errorf("engine calls = %d, want 1", got)
	}
}

func TestSubmit_CallerCancellationDoesNotStopComputation(t *testing.T) {
	release := make(chan struct{})
	eng := script(gated(release, succeed("done")))
	o := newTestOrchestrator(t, eng, Config{})

	ctx, cancel := context.WithCancel(context.Background())
	outc := make(chan calc.Outcome, 1)
	go func() { outc <- o.Submit(ctx, water(), SubmitOptions{}) }()
	waitFor(t, "leader to start", func() bool { return waiters(o) == 0 })

	cancel()
	out := <-outc
	if out.Kind != calc.OutcomeTimeout || !errors.Is(out.Err, context.Canceled) {
		t.Fatalf("cancelled outcome = %v err=%v", out.Kind, out.Err)
	}

	close(release)
	fp := o.Fingerprint(water())
	waitFor(t, "computation to finish", func() bool { return o.State(fp) == StateIdle })
	if later := o.Submit(context.Background(), water(), SubmitOptions{}); later.Role != calc.RoleCache {
		t.Errorf("later Submit role = %s, want cache", later.Role)
	}
}

// failingBackend accepts reads and rejects writes.
type failingBackend struct{ *cache.MemoryBackend }

func (failingBackend) Set(context.Context, string, []byte, time.Duration) error {
	return errors.New("disk full")
}

func TestSubmit_PersistenceErrorOnlyForLeader(t *testing.T) {
	release := make(chan struct{})
	eng := script(gated(release, succeed("ok")))
	o := newTestOrchestrator(t, eng, Config{}, cache.WithBackend(failingBackend{cache.NewMemoryBackend(0)}))
	ctx := context.Background()

	leaderOut := make(chan calc.Outcome, 1)
	go func() { leaderOut <- o.Submit(ctx, water(), SubmitOptions{}) }()
	waitFor(t, "leader to start", func() bool { return waiters(o) == 0 })

	followerOut := make(chan calc.Outcome, 1)
	go func() { followerOut <- o.Submit(ctx, water(), SubmitOptions{}) }()
	waitFor(t, "follower to attach", func() bool { return waiters(o) == 1 })
	close(release)

	leader, follower := <-leaderOut, <-followerOut
	if !leader.IsSuccess() || !follower.IsSuccess() {
		t.Fatalf("outcomes = %v, %v, want success", leader.Kind, follower.Kind)
	}
	if !errors.Is(leader.PersistenceErr, calc.ErrPersistence) {
		t.Errorf("leader PersistenceErr = %v, want ErrPersistence", leader.PersistenceErr)
	}
	if follower.PersistenceErr != nil {
		t.Errorf("follower PersistenceErr = %v, want nil", follower.PersistenceErr)
	}
	if cached := o.Submit(ctx, water(), SubmitOptions{}); cached.Role != calc.RoleCache {
		t.Errorf("memory tier should still serve the outcome, role = %s", cached.Role)
	}
}

func TestSubmit_SaturationNotCached(t *testing.T) {
	release := make(chan struct{})
	eng := script(gated(release, succeed("first")), succeed("second"))
	o := newTestOrchestrator(t, eng, Config{MaxConcurrent: 1, QueueWait: time.Millisecond})
	ctx := context.Background()

	go o.Submit(ctx, water(), SubmitOptions{})
	waitFor(t, "engine slot to fill", func() bool { return o.Saturation().Active == 1 })

	other := water()
	other.Basis = "sto-3g"
	out := o.Submit(ctx, other, SubmitOptions{})
	if out.Kind != calc.OutcomeFailure || !out.Transient {
		t.Fatalf("saturated outcome = %v transient=%v", out.Kind, out.Transient)
	}
	if !errors.Is(out.Err, resilience.ErrBulkheadFull) {
		t.Errorf("Err = %v, want ErrBulkheadFull", out.Err)
	}
	if out.Category != calc.CategoryResourceExhaustion {
		t.Errorf("Category = %s, want resource_exhaustion", out.Category)
	}
	if n := len(out.History); n != 1 || out.History[0].Code != CodeSaturated {
		t.Errorf("History = %+v, want one %s record", out.History, CodeSaturated)
	}
	if o.Store().Contains(o.Fingerprint(other)) {
		t.Error("saturation rejection must not be cached")
	}

	close(release)
	waitFor(t, "engine slot to drain", func() bool { return o.Saturation().Active == 0 })
	if retry := o.Submit(ctx, other, SubmitOptions{}); !retry.IsSuccess() {
		t.Errorf("retry after saturation = %v, want success", retry.Kind)
	}
}

func TestSubmit_EnginePanicIsUnknown(t *testing.T) {
	boom := func(context.Context, calc.Request) calc.EngineOutcome { panic("segfault in integrals") }
	eng := script(boom)
	o := newTestOrchestrator(t, eng, Config{})

	out := o.Submit(context.Background(), water(), SubmitOptions{})
	if out.Kind != calc.OutcomeFailure || out.Category != calc.CategoryUnknown {
		t.Fatalf("Submit = %v/%s, want failure/unknown", out.Kind, out.Category)
	}
	// Unknown gets exactly one unchanged retry.
	if out.Attempts != 2 {
		t.Errorf("Attempts = %d, want 2", out.Attempts)
	}
	if out.History[0].Code != CodeEnginePanic {
		t.Errorf("Code = %q, want %q", out.History[0].Code, CodeEnginePanic)
	}
	if out.Mutations()[0] != recovery.StepRetryUnchanged {
		t.Errorf("Mutations() = %v", out.Mutations())
	}
}

func TestSubmit_AttemptTimeoutIsResourceExhaustion(t *testing.T) {
	hang := func(ctx context.Context, _ calc.Request) calc.EngineOutcome {
		<-ctx.Done()
		return calc.Failed("cancelled", "")
	}
	eng := script(hang, succeed("ok"))
	o := newTestOrchestrator(t, eng, Config{AttemptTimeout: 10 * time.Millisecond})

	out := o.Submit(context.Background(), water(), SubmitOptions{})
	if !out.IsSuccess() {
		t.Fatalf("Submit = %v, want success after timeout recovery", out.Kind)
	}
	if len(out.History) != 1 {
		t.Fatalf("History = %d, want 1", len(out.History))
	}
	rec := out.History[0]
	if rec.Category != calc.CategoryResourceExhaustion || rec.Code != CodeAttemptTimeout {
		t.Errorf("record = %s/%s, want resource_exhaustion/%s", rec.Category, rec.Code, CodeAttemptTimeout)
	}
}

func TestSubmit_TimedOutAttemptHoldsEngineSlot(t *testing.T) {
	var running, peak atomic.Int64
	stubborn := func(context.Context, calc.Request) calc.EngineOutcome {
		n := running.Add(1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		time.Sleep(100 * time.Millisecond)
		running.Add(-1)
		return calc.Succeeded([]byte("late"))
	}
	o := newTestOrchestrator(t, script(stubborn), Config{
		MaxConcurrent:  1,
		AttemptTimeout: 20 * time.Millisecond,
		MaxAttempts:    3,
		QueueWait:      5 * time.Second,
	})

	reqs := make([]calc.Request, 3)
	for i := range reqs {
		reqs[i] = water()
		reqs[i].Molecule.Charge = i
	}
	for _, out := range o.SubmitBatch(context.Background(), reqs, SubmitOptions{}, 0) {
		if out.Kind != calc.OutcomeFailure {
			t.Errorf("outcome = %v, want failure after timed-out attempts", out.Kind)
		}
	}
	if p := peak.Load(); p > 1 {
		t.Errorf("peak concurrent engine calls = %d, want at most 1", p)
	}
	if p := o.Saturation().Peak; p > 1 {
		t.Errorf("bulkhead peak = %d, want at most 1", p)
	}
	waitFor(t, "engine slot to drain", func() bool { return o.Saturation().Active == 0 })
}

func TestSubmit_BypassCache(t *testing.T) {
	eng := script(succeed("v1"), succeed("v2"))
	o := newTestOrchestrator(t, eng, Config{})
	ctx := context.Background()

	o.Submit(ctx, water(), SubmitOptions{})
	out := o.Submit(ctx, water(), SubmitOptions{BypassCache: true})
	if out.Role != calc.RoleLeader || string(out.Payload) != "v2" {
		t.Fatalf("bypass Submit role=%s payload=%q", out.Role, out.Payload)
	}
	if cached := o.Submit(ctx, water(), SubmitOptions{}); string(cached.Payload) != "v2" {
		t.Errorf("bypass result should be committed, got %q", cached.Payload)
	}
}

func TestInvalidate(t *testing.T) {
	eng := script(succeed("ok"))
	o := newTestOrchestrator(t, eng, Config{})
	ctx := context.Background()

	o.Submit(ctx, water(), SubmitOptions{})
	if err := o.Invalidate(ctx, o.Fingerprint(water())); err != nil {
		t.Fatalf("Invalidate failed: %v", err)
	}
	if out := o.Submit(ctx, water(), SubmitOptions{}); out.Role != calc.RoleLeader {
		t.Errorf("Submit after Invalidate role = %s, want leader", out.Role)
	}
	if got := eng.calls.Load(); got != 2 {
		t.Errorf("engine calls = %d, want 2", got)
	}
}

func TestInvalidateWhere(t *testing.T) {
	eng := script(succeed("ok"))
	o := newTestOrchestrator(t, eng, Config{}, cache.WithBackend(cache.NewMemoryBackend(0)))
	ctx := context.Background()

	hydrogen := calc.Request{
		Method: "hf",
		Basis:  "cc-pvdz",
		Molecule: calc.Molecule{
			Multiplicity: 1,
			Atoms:        []calc.Atom{{Element: "H"}, {Element: "H", Z: 0.74}},
		},
	}
	small := water().WithBasis("STO-3G")
	mp2 := water()
	mp2.Method = "MP2"
	reqs := []calc.Request{water(), small, mp2, hydrogen}
	for _, r := range reqs {
		o.Submit(ctx, r, SubmitOptions{})
	}

	e, ok := o.Store().Lookup(ctx, o.Fingerprint(water()))
	if !ok {
		t.Fatal("water outcome not cached")
	}
	if want := o.Labels(water()); e.Labels != want || e.Labels.Method != "hf" || e.Labels.Basis != "cc-pvdz" {
		t.Errorf("entry labels = %+v, want %+v", e.Labels, want)
	}

	cached := func(r calc.Request) bool {
		_, ok := o.Store().Lookup(ctx, o.Fingerprint(r))
		return ok
	}

	tests := []struct {
		name   string
		filter cache.Filter
		want   int
		gone   []calc.Request
		kept   []calc.Request
	}{
		{"method spelled differently", cache.Filter{Method: " HF "}, 3, []calc.Request{water(), small, hydrogen}, []calc.Request{mp2}},
		{"molecule hash", cache.Filter{Molecule: strings.ToUpper(o.Labels(mp2).Molecule)}, 1, []calc.Request{mp2}, nil},
		{"nothing left", cache.Filter{}, 0, nil, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			n, err := o.InvalidateWhere(ctx, tt.filter)
			if err != nil || n != tt.want {
				t.Fatalf("InvalidateWhere() = %d, %v; want %d, nil", n, err, tt.want)
			}
			for _, r := range tt.gone {
				if cached(r) {
					t.Errorf("%s/%s still cached", r.Method, r.Basis)
				}
			}
			for _, r := range tt.kept {
				if !cached(r) {
					t.Errorf("%s/%s should still be cached", r.Method, r.Basis)
				}
			}
		})
	}
}

func TestCanonicalFilter(t *testing.T) {
	o := newTestOrchestrator(t, script(succeed("ok")), Config{})
	got := o.CanonicalFilter(cache.Filter{Kind: " Energy", Method: "HF", Basis: "631G*", Molecule: " ABC "})
	want := cache.Filter{Kind: "energy", Method: "hf", Basis: "6-31g*", Molecule: "abc"}
	if got != want {
		t.Errorf("CanonicalFilter() = %+v, want %+v", got, want)
	}
	if got := o.CanonicalFilter(cache.Filter{}); !got.IsZero() {
		t.Errorf("CanonicalFilter(zero) = %+v, want zero", got)
	}
}

func TestClose(t *testing.T) {
	eng := script(succeed("ok"))
	o := newTestOrchestrator(t, eng, Config{})
	ctx := context.Background()

	o.Submit(ctx, water(), SubmitOptions{})
	if err := o.Close(ctx); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if out := o.Submit(ctx, water(), SubmitOptions{}); out.Role != calc.RoleCache {
		t.Errorf("cached outcome after Close role = %s", out.Role)
	}
	other := water()
	other.Method = "b3lyp"
	out := o.Submit(ctx, other, SubmitOptions{})
	if !errors.Is(out.Err, ErrClosed) || !out.Transient {
		t.Errorf("Submit after Close = %v err=%v, want ErrClosed", out.Kind, out.Err)
	}
}

func TestSubmitBatch_PreservesOrder(t *testing.T) {
	eng := &scriptEngine{script: []func(context.Context, calc.Request) calc.EngineOutcome{
		func(_ context.Context, req calc.Request) calc.EngineOutcome {
			return calc.Succeeded([]byte(req.Method))
		},
	}}
	o := newTestOrchestrator(t, eng, Config{})

	methods := []string{"hf", "b3lyp", "hf", "mp2"}
	reqs := make([]calc.Request, len(methods))
	for i, m := range methods {
		reqs[i] = water()
		reqs[i].Method = m
	}
	outs := o.SubmitBatch(context.Background(), reqs, SubmitOptions{}, 2)
	for i, out := range outs {
		if string(out.Payload) != methods[i] {
			t.Errorf("outcome %d payload = %q, want %q", i, out.Payload, methods[i])
		}
	}
	if got := eng.calls.Load(); got != 3 {
		t.Errorf("engine calls = %d, want 3", got)
	}
}
