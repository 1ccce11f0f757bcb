// Package auth authenticates calculation API callers and checks their
// scopes.
//
// Two credential kinds are supported: HS256 bearer tokens and API keys.
// A Composite tries them in order; Middleware attaches the resulting
// Identity to the request context and RequireScope gates handlers on it.
package auth
