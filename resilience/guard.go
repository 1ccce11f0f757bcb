package resilience

import "context"

// Guard composes resilience patterns around an operation.
type Guard struct {
	limiter  *Limiter
	bulkhead *Bulkhead
	breaker  *Breaker
	timeout  *Timeout
}

// GuardOption configures a Guard.
type GuardOption func(*Guard)

// NewGuard creates a guard. With no options Do runs op directly.
func NewGuard(opts ...GuardOption) *Guard {
	g := &Guard{}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// WithLimiter adds rate limiting.
func WithLimiter(l *Limiter) GuardOption {
	return func(g *Guard) { g.limiter = l }
}

// WithBulkhead adds concurrency limiting.
func WithBulkhead(b *Bulkhead) GuardOption {
	return func(g *Guard) { g.bulkhead = b }
}

// WithBreaker adds a circuit breaker.
func WithBreaker(b *Breaker) GuardOption {
	return func(g *Guard) { g.breaker = b }
}

// WithTimeout adds a per-call timeout.
func WithTimeout(t *Timeout) GuardOption {
	return func(g *Guard) { g.timeout = t }
}

// Breaker returns the guard's breaker, or nil.
func (g *Guard) Breaker() *Breaker {
	return g.breaker
}

// Do runs op through the configured patterns, outermost first:
// limiter, bulkhead, breaker, timeout. A timed-out call counts as a
// breaker failure.
func (g *Guard) Do(ctx context.Context, op func(context.Context) error) error {
	run := op
	if g.timeout != nil {
		inner := run
		run = func(ctx context.Context) error { return g.timeout.Do(ctx, inner) }
	}
	if g.breaker != nil {
		inner := run
		run = func(ctx context.Context) error { return g.breaker.Do(ctx, inner) }
	}
	if g.bulkhead != nil {
		inner := run
		run = func(ctx context.Context) error { return g.bulkhead.Do(ctx, inner) }
	}
	if g.limiter != nil {
		if !g.limiter.Allow() {
			return ErrRateLimitExceeded
		}
	}
	return run(ctx)
}
