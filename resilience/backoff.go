package resilience

import (
	"context"
	"math"
	"math/rand/v2"
	"time"
)

// BackoffStrategy selects how delays grow between attempts.
type BackoffStrategy int

const (
	// BackoffExponential multiplies the delay on each attempt.
	BackoffExponential BackoffStrategy = iota
	// BackoffLinear grows the delay by Initial on each attempt.
	BackoffLinear
	// BackoffConstant waits Initial before every attempt.
	BackoffConstant
	// BackoffNone never waits.
	BackoffNone
)

// ParseBackoffStrategy parses a strategy name. Unknown names yield
// BackoffNone and false.
func ParseBackoffStrategy(s string) (BackoffStrategy, bool) {
	switch s {
	case "exponential":
		return BackoffExponential, true
	case "linear":
		return BackoffLinear, true
	case "constant":
		return BackoffConstant, true
	case "none", "":
		return BackoffNone, true
	default:
		return BackoffNone, false
	}
}

// Backoff is a delay schedule between recovery attempts.
type Backoff struct {
	Strategy BackoffStrategy

	// Initial is the delay before the first retry.
	// Default: 100ms
	Initial time.Duration

	// Max caps every delay.
	// Default: 30s
	Max time.Duration

	// Multiplier applies to exponential backoff.
	// Default: 2.0
	Multiplier float64

	// Jitter adds up to 25% random delay.
	Jitter bool
}

// NoBackoff is a schedule that never waits.
var NoBackoff = Backoff{Strategy: BackoffNone}

// Delay returns the wait before retry number retry (1-based).
func (b Backoff) Delay(retry int) time.Duration {
	if b.Strategy == BackoffNone || retry < 1 {
		return 0
	}
	initial := b.Initial
	if initial <= 0 {
		initial = 100 * time.Millisecond
	}
	maxDelay := b.Max
	if maxDelay <= 0 {
		maxDelay = 30 * time.Second
	}
	mult := b.Multiplier
	if mult <= 0 {
		mult = 2.0
	}

	var d time.Duration
	switch b.Strategy {
	case BackoffConstant:
		d = initial
	case BackoffLinear:
		d = initial * time.Duration(retry)
	default:
		d = time.Duration(float64(initial) * math.Pow(mult, float64(retry-1)))
	}
	if d > maxDelay || d < 0 {
		d = maxDelay
	}

	if b.Jitter && d >= 4 {
		// #nosec G404 -- jitter is non-cryptographic timing variance.
		d += time.Duration(rand.Int64N(int64(d / 4)))
	}
	return d
}

// Wait sleeps for Delay(retry) or until ctx is done.
func (b Backoff) Wait(ctx context.Context, retry int) error {
	d := b.Delay(retry)
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
