package resilience

import (
	"context"
	"sync"
	"time"
)

// State is a breaker state.
type State int

const (
	// StateClosed lets every call through.
	StateClosed State = iota
	// StateOpen refuses every call until the cool-down elapses.
	StateOpen
	// StateHalfOpen lets a limited number of trial calls through.
	StateHalfOpen
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// BreakerConfig configures a Breaker.
type BreakerConfig struct {
	// Threshold is the number of consecutive failures that opens the breaker.
	// Default: 5
	Threshold int

	// Cooldown is how long the breaker stays open before probing.
	// Default: 30 seconds
	Cooldown time.Duration

	// Probes is the number of concurrent calls allowed while half-open.
	// Default: 1
	Probes int

	// OnStateChange is called on every transition, outside the breaker lock.
	OnStateChange func(from, to State)

	// Counts decides whether an error counts as a failure.
	// Default: every non-nil error.
	Counts func(err error) bool
}

// Breaker is a consecutive-failure circuit breaker.
type Breaker struct {
	cfg BreakerConfig

	mu       sync.Mutex
	state    State
	streak   int
	openedAt time.Time
	probing  int
	trips    int64
}

// NewBreaker creates a breaker in the closed state.
func NewBreaker(cfg BreakerConfig) *Breaker {
	if cfg.Threshold <= 0 {
		cfg.Threshold = 5
	}
	if cfg.Cooldown <= 0 {
		cfg.Cooldown = 30 * time.Second
	}
	if cfg.Probes <= 0 {
		cfg.Probes = 1
	}
	if cfg.Counts == nil {
		cfg.Counts = func(err error) bool { return err != nil }
	}
	return &Breaker{cfg: cfg}
}

// Do runs op unless the breaker is open.
func (b *Breaker) Do(ctx context.Context, op func(context.Context) error) error {
	if err := b.admit(); err != nil {
		return err
	}
	err := op(ctx)
	b.record(err)
	return err
}

// State returns the current state, promoting open to half-open once the
// cool-down has elapsed.
func (b *Breaker) State() State {
	b.mu.Lock()
	from, to := b.refreshLocked()
	state := b.state
	b.mu.Unlock()
	b.notify(from, to)
	return state
}

// Reset closes the breaker and clears its counters.
func (b *Breaker) Reset() {
	b.mu.Lock()
	from := b.state
	b.state = StateClosed
	b.streak = 0
	b.probing = 0
	b.mu.Unlock()
	b.notify(from, StateClosed)
}

// Stats returns a snapshot of breaker counters.
func (b *Breaker) Stats() BreakerStats {
	b.mu.Lock()
	from, to := b.refreshLocked()
	stats := BreakerStats{
		State:    b.state,
		Streak:   b.streak,
		Trips:    b.trips,
		OpenedAt: b.openedAt,
	}
	b.mu.Unlock()
	b.notify(from, to)
	return stats
}

// BreakerStats is a snapshot of breaker counters.
type BreakerStats struct {
	State    State
	Streak   int
	Trips    int64
	OpenedAt time.Time
}

func (b *Breaker) admit() error {
	b.mu.Lock()
	from, to := b.refreshLocked()
	var err error
	switch b.state {
	case StateOpen:
		err = ErrCircuitOpen
	case StateHalfOpen:
		if b.probing >= b.cfg.Probes {
			err = ErrCircuitOpen
		} else {
			b.probing++
		}
	}
	b.mu.Unlock()
	b.notify(from, to)
	return err
}

func (b *Breaker) record(err error) {
	failed := b.cfg.Counts(err)

	b.mu.Lock()
	from := b.state
	switch b.state {
	case StateClosed:
		if !failed {
			b.streak = 0
			break
		}
		b.streak++
		if b.streak >= b.cfg.Threshold {
			b.tripLocked()
		}
	case StateHalfOpen:
		b.probing--
		if failed {
			b.tripLocked()
		} else {
			b.state = StateClosed
			b.streak = 0
			b.probing = 0
		}
	}
	to := b.state
	b.mu.Unlock()
	b.notify(from, to)
}

func (b *Breaker) tripLocked() {
	b.state = StateOpen
	b.openedAt = time.Now()
	b.probing = 0
	b.trips++
}

func (b *Breaker) refreshLocked() (from, to State) {
	from = b.state
	if b.state == StateOpen && time.Since(b.openedAt) >= b.cfg.Cooldown {
		b.state = StateHalfOpen
		b.probing = 0
	}
	return from, b.state
}

func (b *Breaker) notify(from, to State) {
	if from != to && b.cfg.OnStateChange != nil {
		b.cfg.OnStateChange(from, to)
	}
}
