package auth

import (
	"context"
	"slices"
	"strings"
	"time"
)

// Scopes understood by the calculation API.
const (
	ScopeSubmit     = "calc:submit"
	ScopeInvalidate = "calc:invalidate"
	ScopeRead       = "calc:read"
	ScopeAll        = "calc:*"
)

// Method indicates how authentication was performed.
type Method string

const (
	MethodJWT       Method = "jwt"
	MethodAPIKey    Method = "api_key"
	MethodAnonymous Method = "anonymous"
)

// Identity represents an authenticated caller.
type Identity struct {
	Principal string
	Scopes    []string
	Method    Method
	ExpiresAt time.Time
}

// HasScope reports whether the identity was granted scope, directly or
// through ScopeAll.
func (id *Identity) HasScope(scope string) bool {
	if id == nil {
		return false
	}
	for _, s := range id.Scopes {
		if s == scope || s == ScopeAll {
			return true
		}
		if prefix, ok := strings.CutSuffix(s, ":*"); ok && strings.HasPrefix(scope, prefix+":") {
			return true
		}
	}
	return false
}

// Anonymous returns the identity used when authentication is disabled. It
// holds every scope.
func Anonymous() *Identity {
	return &Identity{Principal: "anonymous", Scopes: []string{ScopeAll}, Method: MethodAnonymous}
}

// ParseScopes splits a space or comma separated scope list.
func ParseScopes(s string) []string {
	fields := strings.FieldsFunc(s, func(r rune) bool { return r == ' ' || r == ',' })
	slices.Sort(fields)
	return slices.Compact(fields)
}

type contextKey struct{}

// WithIdentity returns a new context carrying id.
func WithIdentity(ctx context.Context, id *Identity) context.Context {
	return context.WithValue(ctx, contextKey{}, id)
}

// IdentityFromContext returns the identity in ctx, or nil.
func IdentityFromContext(ctx context.Context) *Identity {
	id, _ := ctx.Value(contextKey{}).(*Identity)
	return id
}

// PrincipalFromContext returns the principal in ctx, or "".
func PrincipalFromContext(ctx context.Context) string {
	if id := IdentityFromContext(ctx); id != nil {
		return id.Principal
	}
	return ""
}
