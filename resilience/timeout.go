package resilience

import (
	"context"
	"errors"
	"time"
)

// Timeout bounds the duration of a call.
type Timeout struct {
	limit time.Duration
}

// NewTimeout creates a timeout of d. A non-positive d defaults to 30s.
func NewTimeout(d time.Duration) *Timeout {
	if d <= 0 {
		d = 30 * time.Second
	}
	return &Timeout{limit: d}
}

// Limit returns the configured duration.
func (t *Timeout) Limit() time.Duration {
	return t.limit
}

// Do runs op with a deadline. It returns ErrTimeout as soon as the deadline
// passes, without waiting for op to notice cancellation.
func (t *Timeout) Do(ctx context.Context, op func(context.Context) error) error {
	_, err := Call(ctx, t, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, op(ctx)
	})
	return err
}

// Call runs op with the timeout's deadline and returns its value. When the
// deadline passes first the zero value and ErrTimeout are returned. Parent
// cancellation returns the parent's error.
func Call[T any](ctx context.Context, t *Timeout, op func(context.Context) (T, error)) (T, error) {
	ctx, cancel := context.WithTimeout(ctx, t.limit)
	defer cancel()

	type result struct {
		val T
		err error
	}
	done := make(chan result, 1)
	go func() {
		v, err := op(ctx)
		done <- result{v, err}
	}()

	select {
	case r := <-done:
		return r.val, r.err
	case <-ctx.Done():
		var zero T
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return zero, ErrTimeout
		}
		return zero, ctx.Err()
	}
}
