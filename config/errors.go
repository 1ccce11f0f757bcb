package config

import "errors"

var (
	// ErrInvalidConfig indicates a configuration that fails validation.
	ErrInvalidConfig = errors.New("config: invalid configuration")

	// ErrUnknownBackend indicates an unsupported cache backend kind.
	ErrUnknownBackend = errors.New("config: unknown cache backend")
)
