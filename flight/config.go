package flight

import (
	"errors"
	"fmt"
	"time"

	"github.com/jonwraymond/calccache/resilience"
)

// DefaultMaxAttempts is the hard cap on engine attempts per computation.
const DefaultMaxAttempts = 6

// Sentinel errors for orchestration.
var (
	ErrNoEngine      = errors.New("flight: engine is required")
	ErrNoStore       = errors.New("flight: cache store is required")
	ErrClosed        = errors.New("flight: orchestrator is closed")
	ErrInvalidConfig = errors.New("flight: invalid config")
)

// Config bounds the orchestrator.
type Config struct {
	// MaxAttempts caps attempts regardless of category.
	// Default: 6
	MaxAttempts int

	// WaitTimeout is how long Submit waits when SubmitOptions.Timeout is
	// zero. Zero waits until the computation finishes or ctx is done.
	WaitTimeout time.Duration

	// AttemptTimeout is the wall-clock limit for one engine attempt.
	// Default: 1h
	AttemptTimeout time.Duration

	// MaxConcurrent bounds concurrent engine attempts across fingerprints.
	// Default: 10
	MaxConcurrent int

	// QueueWait is how long an attempt waits for an engine slot before the
	// computation is rejected as saturated.
	// Default: 1m
	QueueWait time.Duration

	// Backoff separates attempts of one computation.
	Backoff resilience.Backoff
}

// DefaultConfig returns the default bounds with no backoff.
func DefaultConfig() Config {
	return Config{
		MaxAttempts:    DefaultMaxAttempts,
		AttemptTimeout: time.Hour,
		MaxConcurrent:  10,
		QueueWait:      time.Minute,
		Backoff:        resilience.NoBackoff,
	}
}

// Validate checks the config.
func (c Config) Validate() error {
	if c.MaxAttempts < 0 || c.MaxConcurrent < 0 {
		return fmt.Errorf("%w: negative bound", ErrInvalidConfig)
	}
	if c.WaitTimeout < 0 || c.AttemptTimeout < 0 || c.QueueWait < 0 {
		return fmt.Errorf("%w: negative duration", ErrInvalidConfig)
	}
	return nil
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.MaxAttempts == 0 {
		c.MaxAttempts = d.MaxAttempts
	}
	if c.AttemptTimeout == 0 {
		c.AttemptTimeout = d.AttemptTimeout
	}
	if c.MaxConcurrent == 0 {
		c.MaxConcurrent = d.MaxConcurrent
	}
	if c.QueueWait == 0 {
		c.QueueWait = d.QueueWait
	}
	return c
}
