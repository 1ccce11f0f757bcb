package auth

import (
	"context"
	"net/http"
)

// Authenticator validates the credentials carried by request headers.
//
// Contract:
// - Concurrency: implementations must be safe for concurrent use.
// - Errors: rejected credentials return an error wrapping one of the
//   package's authentication sentinels; anything else is internal.
type Authenticator interface {
	// Name returns a unique identifier for this authenticator.
	Name() string

	// Supports reports whether the headers carry this kind of credential.
	Supports(h http.Header) bool

	// Authenticate validates the credential and returns the caller.
	Authenticate(ctx context.Context, h http.Header) (*Identity, error)
}

// Composite tries authenticators in order. The first one that supports
// the request decides.
type Composite []Authenticator

// Name returns "composite".
func (c Composite) Name() string { return "composite" }

// Supports reports whether any member supports the headers.
func (c Composite) Supports(h http.Header) bool {
	for _, a := range c {
		if a.Supports(h) {
			return true
		}
	}
	return false
}

// Authenticate delegates to the first supporting member.
func (c Composite) Authenticate(ctx context.Context, h http.Header) (*Identity, error) {
	for _, a := range c {
		if a.Supports(h) {
			return a.Authenticate(ctx, h)
		}
	}
	return nil, ErrMissingCredentials
}

var _ Authenticator = Composite(nil)
