package cache

import (
	"fmt"
	"time"

	"github.com/jonwraymond/calccache/calc"
)

// Policy configures retention and bounds.
type Policy struct {
	// TTL is how long a success stays valid. Zero means no expiry.
	TTL time.Duration `yaml:"ttl"`

	// FailureTTL is how long an exhausted failure stays valid, so a failing
	// request is not recomputed on every submit. Zero means TTL.
	FailureTTL time.Duration `yaml:"failure_ttl"`

	// MaxTTL clamps both TTLs when positive.
	MaxTTL time.Duration `yaml:"max_ttl"`

	// Capacity bounds the number of in-memory entries.
	Capacity int `yaml:"capacity"`

	// MaxBytes bounds the encoded size of in-memory entries when positive.
	MaxBytes int64 `yaml:"max_bytes"`
}

// DefaultCapacity is used when Policy.Capacity is not positive.
const DefaultCapacity = 1024

// DefaultPolicy returns 24h success retention, 5m failure retention and
// 1024 in-memory entries.
func DefaultPolicy() Policy {
	return Policy{
		TTL:        24 * time.Hour,
		FailureTTL: 5 * time.Minute,
		Capacity:   DefaultCapacity,
	}
}

// Validate checks the policy.
func (p Policy) Validate() error {
	if p.TTL < 0 || p.FailureTTL < 0 || p.MaxTTL < 0 {
		return fmt.Errorf("%w: negative TTL", ErrInvalidPolicy)
	}
	if p.Capacity < 0 || p.MaxBytes < 0 {
		return fmt.Errorf("%w: negative bound", ErrInvalidPolicy)
	}
	return nil
}

// EffectiveTTL returns the retention for an outcome after clamping.
func (p Policy) EffectiveTTL(o calc.Outcome) time.Duration {
	ttl := p.TTL
	if o.Kind == calc.OutcomeFailure && p.FailureTTL > 0 {
		ttl = p.FailureTTL
	}
	if p.MaxTTL > 0 && (ttl == 0 || ttl > p.MaxTTL) {
		ttl = p.MaxTTL
	}
	return ttl
}

func (p Policy) capacity() int {
	if p.Capacity <= 0 {
		return DefaultCapacity
	}
	return p.Capacity
}
