package calc

import "errors"

// Sentinel errors for calculation outcomes.
var (
	// ErrTimeout is attached to outcomes whose caller stopped waiting.
	ErrTimeout = errors.New("calc: timed out waiting for result")

	// ErrPersistence indicates a terminal outcome could not be stored durably.
	ErrPersistence = errors.New("calc: outcome not persisted")

	// ErrInvalidFingerprint indicates a malformed fingerprint string.
	ErrInvalidFingerprint = errors.New("calc: invalid fingerprint")

	// ErrUnknownCategory indicates an unrecognised failure category name.
	ErrUnknownCategory = errors.New("calc: unknown failure category")
)
