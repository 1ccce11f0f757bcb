// Package resilience provides the failure-containment primitives used
// around the calculation engine and the durable cache backends.
//
// # Patterns
//
//   - Breaker: stops calling a dependency after repeated failures and
//     retries it after a cool-down. Guards durable store writes.
//
//   - Timeout: bounds the wall-clock time of a single call. Wraps every
//     engine attempt.
//
//   - Bulkhead: bounds how many engine computations run at once.
//
//   - Backoff: the delay schedule between recovery attempts.
//
//   - Limiter: token bucket admission control for the HTTP API.
//
//   - Guard: composes the patterns above around a single operation.
//
// # Usage
//
//	breaker := resilience.NewBreaker(resilience.BreakerConfig{
//	    Threshold: 5,
//	    Cooldown:  30 * time.Second,
//	})
//	guard := resilience.NewGuard(
//	    resilience.WithBreaker(breaker),
//	    resilience.WithTimeout(resilience.NewTimeout(2*time.Second)),
//	)
//
//	err := guard.Do(ctx, func(ctx context.Context) error {
//	    return backend.Set(ctx, key, value, ttl)
//	})
package resilience
