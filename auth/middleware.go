package auth

import (
	"errors"
	"net/http"
)

// ErrorWriter renders an authentication or authorization failure.
type ErrorWriter func(w http.ResponseWriter, r *http.Request, status int, err error)

// DefaultErrorWriter writes err as plain text.
func DefaultErrorWriter(w http.ResponseWriter, _ *http.Request, status int, err error) {
	http.Error(w, err.Error(), status)
}

// Middleware authenticates every request with a and stores the identity
// in the request context. A nil a attaches Anonymous instead.
func Middleware(a Authenticator, onError ErrorWriter) func(http.Handler) http.Handler {
	if onError == nil {
		onError = DefaultErrorWriter
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if a == nil {
				next.ServeHTTP(w, r.WithContext(WithIdentity(r.Context(), Anonymous())))
				return
			}
			if !a.Supports(r.Header) {
				w.Header().Set("WWW-Authenticate", "Bearer")
				onError(w, r, http.StatusUnauthorized, ErrMissingCredentials)
				return
			}
			id, err := a.Authenticate(r.Context(), r.Header)
			if err != nil {
				status := http.StatusInternalServerError
				if isAuthFailure(err) {
					status = http.StatusUnauthorized
					w.Header().Set("WWW-Authenticate", "Bearer")
				}
				onError(w, r, status, err)
				return
			}
			next.ServeHTTP(w, r.WithContext(WithIdentity(r.Context(), id)))
		})
	}
}

// RequireScope rejects requests whose identity lacks scope.
func RequireScope(scope string, onError ErrorWriter, next http.Handler) http.Handler {
	if onError == nil {
		onError = DefaultErrorWriter
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := IdentityFromContext(r.Context())
		if id == nil {
			onError(w, r, http.StatusUnauthorized, ErrMissingCredentials)
			return
		}
		if !id.HasScope(scope) {
			onError(w, r, http.StatusForbidden, &ScopeError{Principal: id.Principal, Scope: scope})
			return
		}
		next.ServeHTTP(w, r)
	})
}

// ScopeError reports a missing scope. It matches ErrForbidden.
type ScopeError struct {
	Principal string
	Scope     string
}

func (e *ScopeError) Error() string {
	return "auth: " + e.Principal + " lacks scope " + e.Scope
}

// Is reports whether target is ErrForbidden.
func (e *ScopeError) Is(target error) bool { return target == ErrForbidden }

func isAuthFailure(err error) bool {
	return errors.Is(err, ErrMissingCredentials) ||
		errors.Is(err, ErrInvalidCredentials) ||
		errors.Is(err, ErrTokenExpired) ||
		errors.Is(err, ErrTokenMalformed)
}
