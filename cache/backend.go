package cache

import (
	"context"
	"errors"
	"strings"
	"time"
)

// MaxKeyLength is the maximum allowed length for a backend key.
const MaxKeyLength = 512

// Sentinel errors for cache operations.
var (
	ErrInvalidKey    = errors.New("cache: key is invalid")
	ErrKeyTooLong    = errors.New("cache: key exceeds max length")
	ErrNotCacheable  = errors.New("cache: outcome is not cacheable")
	ErrCorruptEntry  = errors.New("cache: stored entry is corrupt")
	ErrInvalidPolicy = errors.New("cache: invalid policy")
	ErrNoPrune       = errors.New("cache: backend does not support pruning")
)

// Backend is durable key/value storage for encoded entries.
//
// Contract:
// - Concurrency: implementations must be safe for concurrent use.
// - Context: methods should honor cancellation/deadlines.
// - Get returns (nil, false, nil) on miss or expiry; errors mean the
//   backend could not answer.
// - Set with ttl <= 0 stores without expiry.
// - Delete is idempotent.
type Backend interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
}

// Pinger is implemented by backends that can report reachability.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Pruner is implemented by durable backends that keep expired values
// until they are swept.
type Pruner interface {
	Prune(ctx context.Context) (int64, error)
}

// Scanner is implemented by backends that can enumerate their live
// values. Scan calls fn for each one until fn returns an error; value is
// only valid during the call. Expired values are skipped.
type Scanner interface {
	Scan(ctx context.Context, fn func(key string, value []byte) error) error
}

// ValidateKey checks that key is usable by every backend.
func ValidateKey(key string) error {
	if strings.TrimSpace(key) == "" {
		return ErrInvalidKey
	}
	if len(key) > MaxKeyLength {
		return ErrKeyTooLong
	}
	if strings.ContainsAny(key, "\n\r") {
		return ErrInvalidKey
	}
	return nil
}
