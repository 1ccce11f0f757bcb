package health

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
)

// AggregatorConfig configures the health aggregator.
type AggregatorConfig struct {
	// Timeout bounds one round of checks.
	// Default: 10s
	Timeout time.Duration
}

// Aggregator runs registered checkers in parallel.
type Aggregator struct {
	timeout  time.Duration
	mu       sync.RWMutex
	checkers []Checker
}

// NewAggregator creates an aggregator.
func NewAggregator(cfg AggregatorConfig) *Aggregator {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	return &Aggregator{timeout: cfg.Timeout}
}

// Register adds c, replacing any checker with the same name.
func (a *Aggregator) Register(c Checker) {
	a.mu.Lock()
	defer a.mu.Unlock()
	for i, existing := range a.checkers {
		if existing.Name() == c.Name() {
			a.checkers[i] = c
			return
		}
	}
	a.checkers = append(a.checkers, c)
}

// Names returns checker names in registration order.
func (a *Aggregator) Names() []string {
	a.mu.RLock()
	defer a.mu.RUnlock()
	names := make([]string, len(a.checkers))
	for i, c := range a.checkers {
		names[i] = c.Name()
	}
	return names
}

// Check runs the named checker.
func (a *Aggregator) Check(ctx context.Context, name string) (Result, error) {
	a.mu.RLock()
	var found Checker
	for _, c := range a.checkers {
		if c.Name() == name {
			found = c
			break
		}
	}
	a.mu.RUnlock()
	if found == nil {
		return Result{}, ErrCheckerNotFound
	}

	ctx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()
	return run(ctx, found), nil
}

// CheckAll runs every checker concurrently and returns results by name.
func (a *Aggregator) CheckAll(ctx context.Context) map[string]Result {
	a.mu.RLock()
	checkers := append([]Checker(nil), a.checkers...)
	a.mu.RUnlock()

	ctx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	results := make([]Result, len(checkers))
	var g errgroup.Group
	for i, c := range checkers {
		g.Go(func() error {
			results[i] = run(ctx, c)
			return nil
		})
	}
	_ = g.Wait()

	out := make(map[string]Result, len(checkers))
	for i, c := range checkers {
		out[c.Name()] = results[i]
	}
	return out
}

// Overall reduces results to the worst status. No results is healthy.
func Overall(results map[string]Result) Status {
	worst := StatusHealthy
	for _, r := range results {
		worst = max(worst, r.Status)
	}
	return worst
}

// run executes c and stops waiting when ctx is done.
func run(ctx context.Context, c Checker) Result {
	start := time.Now()
	done := make(chan Result, 1)
	go func() {
		r := c.Check(ctx)
		if r.Timestamp.IsZero() {
			r.Timestamp = start
		}
		done <- r
	}()

	select {
	case r := <-done:
		r.Duration = time.Since(start)
		return r
	case <-ctx.Done():
		return Result{
			Status:    StatusUnhealthy,
			Message:   "check timed out",
			Error:     ErrCheckTimeout,
			Duration:  time.Since(start),
			Timestamp: start,
		}
	}
}
