package auth

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"net/http"
	"strings"
	"sync"
	"time"
)

// APIKeyHeader carries API keys.
const APIKeyHeader = "X-API-Key"

// APIKey is a registered key. Only its hash is kept.
type APIKey struct {
	ID        string    `yaml:"id"`
	Hash      string    `yaml:"hash"`
	Principal string    `yaml:"principal"`
	Scopes    []string  `yaml:"scopes"`
	ExpiresAt time.Time `yaml:"expires_at"`
}

// APIKeyAuthenticator validates keys against an in-memory set.
type APIKeyAuthenticator struct {
	now  func() time.Time
	mu   sync.RWMutex
	keys map[string]APIKey
}

// NewAPIKeyAuthenticator creates an authenticator holding keys.
func NewAPIKeyAuthenticator(keys ...APIKey) *APIKeyAuthenticator {
	a := &APIKeyAuthenticator{now: time.Now, keys: make(map[string]APIKey, len(keys))}
	for _, k := range keys {
		a.Add(k)
	}
	return a
}

// Add registers k, replacing any key with the same hash.
func (a *APIKeyAuthenticator) Add(k APIKey) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.keys[strings.ToLower(k.Hash)] = k
}

// Remove unregisters the key with the given hash.
func (a *APIKeyAuthenticator) Remove(hash string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	delete(a.keys, strings.ToLower(hash))
}

// Name returns "api_key".
func (a *APIKeyAuthenticator) Name() string { return "api_key" }

// Supports reports whether the API key header is present.
func (a *APIKeyAuthenticator) Supports(h http.Header) bool {
	return h.Get(APIKeyHeader) != ""
}

// Authenticate looks the presented key up by hash.
func (a *APIKeyAuthenticator) Authenticate(_ context.Context, h http.Header) (*Identity, error) {
	raw := strings.TrimSpace(h.Get(APIKeyHeader))
	if raw == "" {
		return nil, ErrMissingCredentials
	}

	a.mu.RLock()
	k, ok := a.keys[HashAPIKey(raw)]
	a.mu.RUnlock()
	if !ok {
		return nil, ErrInvalidCredentials
	}
	if !k.ExpiresAt.IsZero() && a.now().After(k.ExpiresAt) {
		return nil, ErrTokenExpired
	}
	return &Identity{
		Principal: k.Principal,
		Scopes:    append([]string(nil), k.Scopes...),
		Method:    MethodAPIKey,
		ExpiresAt: k.ExpiresAt,
	}, nil
}

// HashAPIKey returns the hex SHA-256 digest stored for a key.
func HashAPIKey(key string) string {
	sum := sha256.Sum256([]byte(key))
	return hex.EncodeToString(sum[:])
}

var _ Authenticator = (*APIKeyAuthenticator)(nil)
