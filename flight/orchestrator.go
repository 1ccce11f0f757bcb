package flight

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/jonwraymond/calccache/cache"
	"github.com/jonwraymond/calccache/calc"
	"github.com/jonwraymond/calccache/classify"
	"github.com/jonwraymond/calccache/fingerprint"
	"github.com/jonwraymond/calccache/observe"
	"github.com/jonwraymond/calccache/recovery"
	"github.com/jonwraymond/calccache/resilience"
)

// SubmitOptions tune a single submission.
type SubmitOptions struct {
	// Timeout bounds how long the caller waits. Zero uses
	// Config.WaitTimeout.
	Timeout time.Duration

	// BypassCache skips the cache lookup and forces a fresh computation
	// unless one is already in flight. The result is still committed.
	BypassCache bool
}

// Orchestrator is the single-flight front door to the engine.
//
// Contract:
// - Concurrency: safe for concurrent use.
// - Submit never panics and never returns an error; every result is a
//   calc.Outcome.
// - At most one computation runs per fingerprint at a time.
type Orchestrator struct {
	engine     calc.Engine
	store      *cache.Store
	gen        *fingerprint.Generator
	classifier *classify.Classifier
	table      *recovery.Table
	inst       observe.Instruments
	cfg        Config
	now        func() time.Time

	timeout  *resilience.Timeout
	bulkhead *resilience.Bulkhead

	flights *registry

	// closeMu orders leader registration against Close.
	closeMu sync.RWMutex
	closed  bool
	leaders sync.WaitGroup
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithGenerator sets the fingerprint generator.
func WithGenerator(g *fingerprint.Generator) Option {
	return func(o *Orchestrator) {
		if g != nil {
			o.gen = g
		}
	}
}

// WithClassifier sets the failure classifier.
func WithClassifier(c *classify.Classifier) Option {
	return func(o *Orchestrator) {
		if c != nil {
			o.classifier = c
		}
	}
}

// WithTable sets the recovery table.
func WithTable(t *recovery.Table) Option {
	return func(o *Orchestrator) {
		if t != nil {
			o.table = t
		}
	}
}

// WithInstruments sets tracing, metrics and logging.
func WithInstruments(i observe.Instruments) Option {
	return func(o *Orchestrator) { o.inst = i.OrNop() }
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) {
		if now != nil {
			o.now = now
		}
	}
}

// New creates an orchestrator. Zero config fields take their defaults.
func New(engine calc.Engine, store *cache.Store, cfg Config, opts ...Option) (*Orchestrator, error) {
	if engine == nil {
		return nil, ErrNoEngine
	}
	if store == nil {
		return nil, ErrNoStore
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	cfg = cfg.withDefaults()

	o := &Orchestrator{
		engine:     engine,
		store:      store,
		gen:        fingerprint.NewDefault(),
		classifier: classify.NewDefault(),
		table:      recovery.DefaultTable(),
		inst:       observe.NopInstruments(),
		cfg:        cfg,
		now:        time.Now,
		timeout:    resilience.NewTimeout(cfg.AttemptTimeout),
		bulkhead: resilience.NewBulkhead(resilience.BulkheadConfig{
			Slots:   cfg.MaxConcurrent,
			MaxWait: cfg.QueueWait,
		}),
		flights: newRegistry(),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o, nil
}

// Fingerprint returns the fingerprint Submit would use for req.
func (o *Orchestrator) Fingerprint(req calc.Request) calc.Fingerprint {
	return o.gen.Fingerprint(req)
}

// Submit returns the outcome for req, computing it at most once across
// concurrent callers.
func (o *Orchestrator) Submit(ctx context.Context, req calc.Request, opts SubmitOptions) calc.Outcome {
	start := o.now()
	fp := o.gen.Fingerprint(req)

	ctx, span := o.inst.Tracer.StartSpan(ctx, observe.SpanMeta{
		Operation:   "submit",
		Fingerprint: fp.String(),
		Method:      o.gen.Method(req.Method),
		Basis:       o.gen.Basis(req.Basis),
	})
	out := o.submit(ctx, fp, req, opts)
	o.inst.Tracer.EndSpan(span, outcomeErr(out))
	o.inst.Metrics.RecordSubmit(ctx, string(out.Role), out.Kind.String(), o.now().Sub(start))
	return out
}

func (o *Orchestrator) submit(ctx context.Context, fp calc.Fingerprint, req calc.Request, opts SubmitOptions) calc.Outcome {
	if !opts.BypassCache {
		if out, ok := o.lookup(ctx, fp); ok {
			return out
		}
	}

	o.closeMu.RLock()
	if o.closed {
		o.closeMu.RUnlock()
		return closedOutcome(fp)
	}
	s, leader := o.flights.attach(fp, o.now())
	role := calc.RoleFollower
	if leader {
		role = calc.RoleLeader
		o.leaders.Add(1)
		go o.lead(context.WithoutCancel(ctx), s, req, opts.BypassCache)
	}
	o.closeMu.RUnlock()

	out := o.wait(ctx, s, opts.Timeout, leader)
	out.Role = role
	if leader && out.IsTerminal() {
		out.PersistenceErr = s.persistErr
	}
	return out
}

func (o *Orchestrator) lookup(ctx context.Context, fp calc.Fingerprint) (calc.Outcome, bool) {
	e, ok := o.store.Lookup(ctx, fp)
	o.inst.Metrics.RecordLookup(ctx, ok)
	if !ok {
		return calc.Outcome{}, false
	}
	out := e.Outcome
	out.Role = calc.RoleCache
	return out, true
}

// wait blocks until s is done, the wait timeout passes or ctx is done.
func (o *Orchestrator) wait(ctx context.Context, s *slot, timeout time.Duration, leader bool) calc.Outcome {
	if !leader {
		s.waiters.Add(1)
		defer s.waiters.Add(-1)
	}
	if timeout <= 0 {
		timeout = o.cfg.WaitTimeout
	}
	var expired <-chan time.Time
	if timeout > 0 {
		timer := time.NewTimer(timeout)
		defer timer.Stop()
		expired = timer.C
	}

	select {
	case <-s.done:
		out := s.outcome
		out.Payload = slices.Clone(out.Payload)
		out.History = slices.Clone(out.History)
		return out
	case <-expired:
		return calc.TimeoutOutcome(s.fp, fmt.Errorf("%w after %s", calc.ErrTimeout, timeout))
	case <-ctx.Done():
		return calc.TimeoutOutcome(s.fp, fmt.Errorf("%w: %w", calc.ErrTimeout, ctx.Err()))
	}
}

// lead runs the computation for s, commits it and wakes the waiters.
func (o *Orchestrator) lead(ctx context.Context, s *slot, req calc.Request, bypass bool) {
	defer o.leaders.Done()
	logger := o.inst.Logger.With(
		observe.F("flight_id", s.id),
		observe.F("fingerprint", s.fp.Short()),
	)

	var out calc.Outcome
	defer func() {
		if r := recover(); r != nil {
			logger.Error(ctx, "leader panicked", observe.F("panic", fmt.Sprint(r)))
			out = calc.Outcome{
				Kind:        calc.OutcomeFailure,
				Fingerprint: s.fp,
				Category:    calc.CategoryUnknown,
				Transient:   true,
				Err:         fmt.Errorf("flight: leader panic: %v", r),
				CompletedAt: o.now(),
			}
		}
		s.outcome = out
		s.setState(StateDone)
		o.flights.remove(s)
		close(s.done)
	}()

	// A computation for fp may have been committed between the caller's
	// lookup and slot creation.
	if !bypass {
		if e, ok := o.store.Lookup(ctx, s.fp); ok {
			out = e.Outcome
			return
		}
	}

	out = o.compute(ctx, s, req, logger)

	if out.Cacheable() {
		s.setState(StateCommitting)
		if _, err := o.store.CommitLabeled(ctx, s.fp, o.gen.Labels(req), out); err != nil {
			s.persistErr = err
			logger.Warn(ctx, "outcome not persisted", observe.F("error", err.Error()))
		}
	}
	logger.Info(ctx, "computation finished",
		observe.F("outcome", out.Kind.String()),
		observe.F("attempts", out.Attempts),
		observe.F("categories", categoryNames(out.Categories())),
		observe.F("mutations", out.Mutations()))
}

// Invalidate removes fp from the cache. A computation already in flight
// is unaffected.
func (o *Orchestrator) Invalidate(ctx context.Context, fp calc.Fingerprint) error {
	return o.store.Invalidate(ctx, fp)
}

// Labels returns the labels req's outcome is stored under.
func (o *Orchestrator) Labels(req calc.Request) calc.Labels {
	return o.gen.Labels(req)
}

// InvalidateWhere removes every cached outcome matching f and returns how
// many were removed. Filter values are canonicalized first, so "B3LYP" and
// "6-31G*" select what requests spelled either way were cached under. A
// zero Filter clears the cache.
func (o *Orchestrator) InvalidateWhere(ctx context.Context, f cache.Filter) (int, error) {
	n, err := o.store.InvalidateWhere(ctx, o.CanonicalFilter(f))
	if err != nil {
		o.inst.Logger.Warn(ctx, "bulk invalidate incomplete",
			observe.F("invalidated", n),
			observe.F("error", err.Error()))
	}
	return n, err
}

// CanonicalFilter rewrites f's values the way request labels are written.
func (o *Orchestrator) CanonicalFilter(f cache.Filter) cache.Filter {
	return cache.Filter(o.gen.CanonicalLabels(calc.Labels(f)))
}

// InFlight returns a snapshot of running computations, oldest first.
func (o *Orchestrator) InFlight() []Flight {
	return o.flights.snapshot()
}

// State returns the state of the computation for fp: Leading or
// Committing while one is in flight, Idle otherwise.
func (o *Orchestrator) State(fp calc.Fingerprint) State {
	s, ok := o.flights.get(fp)
	if !ok {
		return StateIdle
	}
	return s.State()
}

// Saturation returns engine bulkhead usage.
func (o *Orchestrator) Saturation() resilience.BulkheadStats {
	return o.bulkhead.Stats()
}

// Store returns the cache store.
func (o *Orchestrator) Store() *cache.Store {
	return o.store
}

// Close stops accepting new computations and waits for running ones to
// commit, or for ctx to be done. Cached outcomes are still served.
func (o *Orchestrator) Close(ctx context.Context) error {
	o.closeMu.Lock()
	o.closed = true
	o.closeMu.Unlock()

	done := make(chan struct{})
	go func() {
		o.leaders.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("flight: close: %w", ctx.Err())
	}
}

func closedOutcome(fp calc.Fingerprint) calc.Outcome {
	return calc.Outcome{
		Kind:        calc.OutcomeFailure,
		Fingerprint: fp,
		Category:    calc.CategoryUnknown,
		Transient:   true,
		Err:         ErrClosed,
		CompletedAt: time.Now(),
	}
}

func outcomeErr(out calc.Outcome) error {
	switch {
	case out.IsSuccess():
		return out.PersistenceErr
	case out.Err != nil:
		return out.Err
	default:
		return errors.New(out.Category.String())
	}
}

func categoryNames(cats []calc.Category) []string {
	out := make([]string, len(cats))
	for i, c := range cats {
		out[i] = c.String()
	}
	return out
}
