package health

import "errors"

var (
	// ErrUnreachable wraps the error of a failed dependency ping.
	ErrUnreachable = errors.New("health: dependency unreachable")

	// ErrOverLimit marks a resource past its critical threshold.
	ErrOverLimit = errors.New("health: resource over limit")

	// ErrCheckTimeout is reported for a checker that outlives the
	// aggregator timeout.
	ErrCheckTimeout = errors.New("health: check timed out")

	// ErrCheckerNotFound is returned by Aggregator.Check for an
	// unregistered name.
	ErrCheckerNotFound = errors.New("health: no such checker")
)
