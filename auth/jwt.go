package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const bearerPrefix = "Bearer "

// JWTConfig configures the bearer token authenticator.
type JWTConfig struct {
	// Secret is the HS256 signing key.
	Secret []byte

	// Issuer, when set, must match the iss claim.
	Issuer string

	// Audience, when set, must appear in the aud claim.
	Audience string

	// Leeway tolerates clock skew on exp and nbf.
	Leeway time.Duration
}

// Claims are the token claims the service reads and issues.
type Claims struct {
	Scope string `json:"scope,omitempty"`
	jwt.RegisteredClaims
}

// JWTAuthenticator validates HS256 bearer tokens.
type JWTAuthenticator struct {
	config JWTConfig
	parser *jwt.Parser
}

// NewJWTAuthenticator creates a bearer token authenticator.
func NewJWTAuthenticator(config JWTConfig) (*JWTAuthenticator, error) {
	if len(config.Secret) == 0 {
		return nil, ErrNoSecret
	}
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithLeeway(config.Leeway),
	}
	if config.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(config.Issuer))
	}
	if config.Audience != "" {
		opts = append(opts, jwt.WithAudience(config.Audience))
	}
	return &JWTAuthenticator{config: config, parser: jwt.NewParser(opts...)}, nil
}

// Name returns "jwt".
func (a *JWTAuthenticator) Name() string { return "jwt" }

// Supports reports whether the Authorization header holds a bearer token.
func (a *JWTAuthenticator) Supports(h http.Header) bool {
	return strings.HasPrefix(h.Get("Authorization"), bearerPrefix)
}

// Authenticate validates the bearer token.
func (a *JWTAuthenticator) Authenticate(_ context.Context, h http.Header) (*Identity, error) {
	raw, ok := strings.CutPrefix(h.Get("Authorization"), bearerPrefix)
	raw = strings.TrimSpace(raw)
	if !ok || raw == "" {
		return nil, ErrMissingCredentials
	}

	var claims Claims
	_, err := a.parser.ParseWithClaims(raw, &claims, func(*jwt.Token) (any, error) {
		return a.config.Secret, nil
	})
	switch {
	case err == nil:
	case errors.Is(err, jwt.ErrTokenExpired):
		return nil, ErrTokenExpired
	case errors.Is(err, jwt.ErrTokenMalformed):
		return nil, fmt.Errorf("%w: %v", ErrTokenMalformed, err)
	default:
		return nil, fmt.Errorf("%w: %v", ErrInvalidCredentials, err)
	}
	if claims.Subject == "" {
		return nil, fmt.Errorf("%w: missing subject", ErrInvalidCredentials)
	}

	id := &Identity{
		Principal: claims.Subject,
		Scopes:    ParseScopes(claims.Scope),
		Method:    MethodJWT,
	}
	if claims.ExpiresAt != nil {
		id.ExpiresAt = claims.ExpiresAt.Time
	}
	return id, nil
}

// Issue signs a token for subject with the given scopes. A non-positive
// ttl issues a token without expiry.
func (a *JWTAuthenticator) Issue(subject string, scopes []string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := Claims{
		Scope: strings.Join(scopes, " "),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:  subject,
			Issuer:   a.config.Issuer,
			IssuedAt: jwt.NewNumericDate(now),
		},
	}
	if a.config.Audience != "" {
		claims.Audience = jwt.ClaimStrings{a.config.Audience}
	}
	if ttl > 0 {
		claims.ExpiresAt = jwt.NewNumericDate(now.Add(ttl))
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(a.config.Secret)
}

var _ Authenticator = (*JWTAuthenticator)(nil)
