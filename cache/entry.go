package cache

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/jonwraymond/calccache/calc"
)

// Entry is a stored outcome.
type Entry struct {
	Fingerprint    calc.Fingerprint
	Outcome        calc.Outcome
	CreatedAt      time.Time
	LastAccessedAt time.Time

	// ExpiresAt is zero for entries that never expire.
	ExpiresAt time.Time

	// Size is the encoded size in bytes.
	Size int64

	// Labels are set by CommitLabeled and select the entry for
	// InvalidateWhere.
	Labels calc.Labels
}

// Expired reports whether the entry is logically absent at now.
func (e Entry) Expired(now time.Time) bool {
	return !e.ExpiresAt.IsZero() && !now.Before(e.ExpiresAt)
}

// TTL returns the remaining lifetime at now, zero for entries that never
// expire.
func (e Entry) TTL(now time.Time) time.Duration {
	if e.ExpiresAt.IsZero() {
		return 0
	}
	return max(e.ExpiresAt.Sub(now), time.Nanosecond)
}

const envelopeVersion = 1

// envelope is the durable encoding of an Entry.
type envelope struct {
	Version     int              `json:"v"`
	Fingerprint calc.Fingerprint `json:"fingerprint"`
	Outcome     calc.Outcome     `json:"outcome"`
	Payload     []byte           `json:"payload,omitempty"`
	CreatedAt   time.Time        `json:"created_at"`
	ExpiresAt   time.Time        `json:"expires_at,omitzero"`
	Labels      calc.Labels      `json:"labels,omitzero"`
}

// Encode serializes an entry for a Backend.
func Encode(e Entry) ([]byte, error) {
	return json.Marshal(envelope{
		Version:     envelopeVersion,
		Fingerprint: e.Fingerprint,
		Outcome:     e.Outcome,
		Payload:     e.Outcome.Payload,
		CreatedAt:   e.CreatedAt,
		ExpiresAt:   e.ExpiresAt,
		Labels:      e.Labels,
	})
}

// Decode parses bytes written by Encode.
func Decode(data []byte) (Entry, error) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return Entry{}, fmt.Errorf("%w: %v", ErrCorruptEntry, err)
	}
	if env.Version != envelopeVersion {
		return Entry{}, fmt.Errorf("%w: unsupported version %d", ErrCorruptEntry, env.Version)
	}
	out := env.Outcome
	out.Payload = env.Payload
	return Entry{
		Fingerprint:    env.Fingerprint,
		Outcome:        out,
		CreatedAt:      env.CreatedAt,
		LastAccessedAt: env.CreatedAt,
		ExpiresAt:      env.ExpiresAt,
		Size:           int64(len(data)),
		Labels:         env.Labels,
	}, nil
}

// Filter selects entries by label. Empty fields match any value, so a zero
// Filter matches every entry. Values are compared with the canonical labels
// exactly.
type Filter struct {
	Kind     string `json:"kind,omitempty"`
	Method   string `json:"method,omitempty"`
	Basis    string `json:"basis,omitempty"`
	Molecule string `json:"molecule,omitempty"`
}

// IsZero reports whether f matches every entry.
func (f Filter) IsZero() bool {
	return f == Filter{}
}

// Match reports whether l satisfies every non-empty field of f.
func (f Filter) Match(l calc.Labels) bool {
	return matchLabel(f.Kind, l.Kind) &&
		matchLabel(f.Method, l.Method) &&
		matchLabel(f.Basis, l.Basis) &&
		matchLabel(f.Molecule, l.Molecule)
}

func matchLabel(want, got string) bool {
	return want == "" || want == got
}
