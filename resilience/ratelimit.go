package resilience

import (
	"context"
	"sync"
	"time"
)

// LimiterConfig configures a token bucket Limiter.
type LimiterConfig struct {
	// Rate is the number of tokens added per second.
	// Default: 100
	Rate float64

	// Burst is the bucket size.
	// Default: 10
	Burst int

	// MaxWait bounds how long Wait blocks for a token.
	// Default: 1 second
	MaxWait time.Duration
}

// Limiter is a token bucket.
type Limiter struct {
	cfg LimiterConfig

	mu     sync.Mutex
	tokens float64
	last   time.Time
}

// NewLimiter creates a full token bucket.
func NewLimiter(cfg LimiterConfig) *Limiter {
	if cfg.Rate <= 0 {
		cfg.Rate = 100
	}
	if cfg.Burst <= 0 {
		cfg.Burst = 10
	}
	if cfg.MaxWait <= 0 {
		cfg.MaxWait = time.Second
	}
	return &Limiter{cfg: cfg, tokens: float64(cfg.Burst), last: time.Now()}
}

// Allow takes a token if one is available.
func (l *Limiter) Allow() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.refillLocked(time.Now())
	if l.tokens < 1 {
		return false
	}
	l.tokens--
	return true
}

// Wait blocks until a token is available, MaxWait elapses, or ctx is done.
func (l *Limiter) Wait(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if l.Allow() {
		return nil
	}

	l.mu.Lock()
	need := time.Duration((1 - l.tokens) / l.cfg.Rate * float64(time.Second))
	l.mu.Unlock()
	need = min(need, l.cfg.MaxWait)

	timer := time.NewTimer(need)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		if l.Allow() {
			return nil
		}
		return ErrRateLimitExceeded
	}
}

// Tokens returns the number of tokens currently available.
func (l *Limiter) Tokens() float64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.refillLocked(time.Now())
	return l.tokens
}

func (l *Limiter) refillLocked(now time.Time) {
	l.tokens = min(float64(l.cfg.Burst), l.tokens+now.Sub(l.last).Seconds()*l.cfg.Rate)
	l.last = now
}
