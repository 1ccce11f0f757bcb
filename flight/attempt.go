package flight

import (
	"context"
	"errors"
	"fmt"

	"github.com/jonwraymond/calccache/calc"
	"github.com/jonwraymond/calccache/observe"
	"github.com/jonwraymond/calccache/resilience"
)

// Codes attached to failures the orchestrator synthesizes.
const (
	CodeAttemptTimeout = "E_TIMEOUT"
	CodeEnginePanic    = "E_PANIC"
	CodeSaturated      = "E_SATURATED"
)

// attemptResult is one engine attempt after classification.
type attemptResult struct {
	engine   calc.EngineOutcome
	category calc.Category

	// saturated is set when no engine slot was available.
	saturated error
}

// compute runs the recovery loop for req. Every retry applies the next
// untried step for the latest failure's category to the original request.
func (o *Orchestrator) compute(ctx context.Context, s *slot, req calc.Request, logger observe.Logger) calc.Outcome {
	var (
		history  []calc.FailureRecord
		applied  []string
		next     = make(map[calc.Category]int)
		budget   = o.cfg.MaxAttempts
		current  = req.Clone()
		mutation string
	)

	for attempt := 0; ; attempt++ {
		s.attempt.Store(int32(attempt))
		if attempt > 0 {
			if err := o.cfg.Backoff.Wait(ctx, attempt); err != nil {
				return o.failure(s.fp, history, attempt, err)
			}
		}

		started := o.now()
		res := o.attempt(ctx, s.fp, current, attempt, mutation)
		elapsed := o.now().Sub(started)

		if res.saturated != nil {
			logger.Warn(ctx, "engine saturated", observe.F("attempt", attempt))
			history = append(history, calc.FailureRecord{
				Attempt:          attempt,
				Category:         calc.CategoryResourceExhaustion,
				Diagnostic:       res.saturated.Error(),
				Code:             CodeSaturated,
				Mutation:         mutation,
				MutationsApplied: append([]string(nil), applied...),
				Fingerprint:      o.gen.Fingerprint(current),
				Duration:         elapsed,
			})
			return o.failure(s.fp, history, attempt, res.saturated)
		}

		if res.engine.OK() {
			o.inst.Metrics.RecordAttempt(ctx, "none", elapsed)
			return calc.Outcome{
				Kind:        calc.OutcomeSuccess,
				Fingerprint: s.fp,
				Payload:     res.engine.Payload,
				History:     history,
				Attempts:    attempt + 1,
				Mutation:    mutation,
				CompletedAt: o.now(),
			}
		}

		o.inst.Metrics.RecordAttempt(ctx, res.category.String(), elapsed)
		history = append(history, calc.FailureRecord{
			Attempt:          attempt,
			Category:         res.category,
			Diagnostic:       res.engine.Failure.Diagnostic,
			Code:             res.engine.Failure.Code,
			Mutation:         mutation,
			MutationsApplied: append([]string(nil), applied...),
			Fingerprint:      o.gen.Fingerprint(current),
			Duration:         elapsed,
		})
		logger.Debug(ctx, "attempt failed",
			observe.F("attempt", attempt),
			observe.F("category", res.category.String()),
			observe.F("code", res.engine.Failure.Code))

		if attempt == 0 {
			budget = min(o.cfg.MaxAttempts, 1+len(o.table.StrategiesFor(res.category)))
		}
		if !res.category.Recoverable() || attempt+1 >= budget {
			return o.exhausted(s.fp, history)
		}
		steps := o.table.StrategiesFor(res.category)
		i := next[res.category]
		if i >= len(steps) {
			return o.exhausted(s.fp, history)
		}
		next[res.category] = i + 1

		step := steps[i]
		current = step.Apply(req.Clone())
		mutation = step.Name
		applied = append(applied, step.Name)
	}
}

// attempt runs one engine call under the bulkhead and the attempt timeout.
func (o *Orchestrator) attempt(ctx context.Context, fp calc.Fingerprint, req calc.Request, n int, mutation string) (res attemptResult) {
	ctx, span := o.inst.Tracer.StartSpan(ctx, observe.SpanMeta{
		Operation:   "attempt",
		Fingerprint: fp.String(),
		Method:      o.gen.Method(req.Method),
		Basis:       o.gen.Basis(req.Basis),
		Attempt:     n,
		Mutation:    mutation,
	})
	defer func() {
		var err error
		switch {
		case res.saturated != nil:
			err = res.saturated
		case !res.engine.OK():
			err = errors.New(res.category.String())
		}
		o.inst.Tracer.EndSpan(span, err)
	}()

	release, err := o.bulkhead.Enter(ctx)
	if err != nil {
		return attemptResult{saturated: fmt.Errorf("flight: engine saturated: %w", err)}
	}

	// The slot is held until the engine returns, even after the attempt
	// timed out, so an engine that ignores ctx still counts against
	// MaxConcurrent.
	eo, err := resilience.Call(ctx, o.timeout, func(ctx context.Context) (eo calc.EngineOutcome, err error) {
		defer release()
		defer func() {
			if r := recover(); r != nil {
				err = fmt.Errorf("engine panic: %v", r)
			}
		}()
		return o.engine.Attempt(ctx, req), nil
	})
	switch {
	case errors.Is(err, resilience.ErrTimeout):
		return attemptResult{
			engine:   calc.Failed(fmt.Sprintf("attempt exceeded wall-clock limit of %s", o.timeout.Limit()), CodeAttemptTimeout),
			category: calc.CategoryResourceExhaustion,
		}
	case err != nil:
		return attemptResult{
			engine:   calc.Failed(err.Error(), CodeEnginePanic),
			category: calc.CategoryUnknown,
		}
	}
	if eo.OK() {
		return attemptResult{engine: eo}
	}
	return attemptResult{engine: eo, category: o.classifier.Classify(eo.Failure.Diagnostic, eo.Failure.Code)}
}

// exhausted is the terminal failure after the loop gave up.
func (o *Orchestrator) exhausted(fp calc.Fingerprint, history []calc.FailureRecord) calc.Outcome {
	last := history[len(history)-1]
	return calc.Outcome{
		Kind:        calc.OutcomeFailure,
		Fingerprint: fp,
		Category:    last.Category,
		History:     history,
		Attempts:    len(history),
		CompletedAt: o.now(),
	}
}

// failure is a terminal failure that must not be cached.
func (o *Orchestrator) failure(fp calc.Fingerprint, history []calc.FailureRecord, attempts int, err error) calc.Outcome {
	cat := calc.CategoryUnknown
	if n := len(history); n > 0 {
		cat = history[n-1].Category
	}
	return calc.Outcome{
		Kind:        calc.OutcomeFailure,
		Fingerprint: fp,
		Category:    cat,
		History:     history,
		Attempts:    attempts,
		Err:         err,
		Transient:   true,
		CompletedAt: o.now(),
	}
}
