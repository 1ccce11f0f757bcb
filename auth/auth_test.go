package auth

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var secret = []byte("test-secret")

func bearer(token string) http.Header {
	h := http.Header{}
	h.Set("Authorization", "Bearer "+token)
	return h
}

func mustJWT(t *testing.T, cfg JWTConfig) *JWTAuthenticator {
	t.Helper()
	a, err := NewJWTAuthenticator(cfg)
	if err != nil {
		t.Fatal(err)
	}
	return a
}

func TestHasScope(t *testing.T) {
	tests := []struct {
		scopes []string
		want   string
		ok     bool
	}{
		{[]string{ScopeSubmit}, ScopeSubmit, true},
		{[]string{ScopeSubmit}, ScopeInvalidate, false},
		{[]string{ScopeAll}, ScopeInvalidate, true},
		{[]string{"other:*"}, ScopeRead, false},
		{nil, ScopeRead, false},
	}
	for _, tt := range tests {
		id := &Identity{Scopes: tt.scopes}
		if got := id.HasScope(tt.want); got != tt.ok {
			t.Errorf("%v.HasScope(%q) = %v, want %v", tt.scopes, tt.want, got, tt.ok)
		}
	}
	var nilID *Identity
	if nilID.HasScope(ScopeRead) {
		t.Error("nil identity has scope")
	}
}

func TestParseScopes(t *testing.T) {
	got := ParseScopes("calc:submit, calc:read calc:submit")
	if len(got) != 2 || got[0] != ScopeRead || got[1] != ScopeSubmit {
		t.Errorf("ParseScopes = %v", got)
	}
}

func TestJWTRoundTrip(t *testing.T) {
	a := mustJWT(t, JWTConfig{Secret: secret, Issuer: "calccache", Audience: "api"})
	token, err := a.Issue("alice", []string{ScopeSubmit, ScopeRead}, time.Hour)
	if err != nil {
		t.Fatal(err)
	}
	h := bearer(token)
	if !a.Supports(h) {
		t.Fatal("Supports = false")
	}
	id, err := a.Authenticate(context.Background(), h)
	if err != nil {
		t.Fatal(err)
	}
	if id.Principal != "alice" || !id.HasScope(ScopeSubmit) || id.HasScope(ScopeInvalidate) || id.Method != MethodJWT {
		t.Errorf("identity = %+v", id)
	}
	if id.ExpiresAt.IsZero() {
		t.Error("ExpiresAt not set")
	}
}

func TestJWTRejections(t *testing.T) {
	a := mustJWT(t, JWTConfig{Secret: secret, Issuer: "calccache"})

	sign := func(claims jwt.Claims, method jwt.SigningMethod, key any) string {
		s, err := jwt.NewWithClaims(method, claims).SignedString(key)
		if err != nil {
			t.Fatal(err)
		}
		return s
	}
	past := jwt.NewNumericDate(time.Now().Add(-time.Hour))

	tests := []struct {
		name  string
		token string
		want  error
	}{
		{"garbage", "not-a-token", ErrTokenMalformed},
		{"expired", sign(Claims{RegisteredClaims: jwt.RegisteredClaims{Subject: "a", Issuer: "calccache", ExpiresAt: past}}, jwt.SigningMethodHS256, secret), ErrTokenExpired},
		{"wrong key", sign(Claims{RegisteredClaims: jwt.RegisteredClaims{Subject: "a", Issuer: "calccache"}}, jwt.SigningMethodHS256, []byte("other")), ErrInvalidCredentials},
		{"wrong issuer", sign(Claims{RegisteredClaims: jwt.RegisteredClaims{Subject: "a", Issuer: "evil"}}, jwt.SigningMethodHS256, secret), ErrInvalidCredentials},
		{"no subject", sign(Claims{RegisteredClaims: jwt.RegisteredClaims{Issuer: "calccache"}}, jwt.SigningMethodHS256, secret), ErrInvalidCredentials},
		{"wrong alg", sign(Claims{RegisteredClaims: jwt.RegisteredClaims{Subject: "a", Issuer: "calccache"}}, jwt.SigningMethodHS512, secret), ErrInvalidCredentials},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := a.Authenticate(context.Background(), bearer(tt.token))
			if !errors.Is(err, tt.want) {
				t.Errorf("err = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestNewJWTAuthenticatorRequiresSecret(t *testing.T) {
	if _, err := NewJWTAuthenticator(JWTConfig{}); !errors.Is(err, ErrNoSecret) {
		t.Errorf("err = %v, want ErrNoSecret", err)
	}
}

func TestAPIKeyAuthenticator(t *testing.T) {
	a := NewAPIKeyAuthenticator(
		APIKey{ID: "k1", Hash: HashAPIKey("good"), Principal: "batch", Scopes: []string{ScopeSubmit}},
		APIKey{ID: "k2", Hash: HashAPIKey("old"), Principal: "old", ExpiresAt: time.Now().Add(-time.Minute)},
	)

	key := func(v string) http.Header {
		h := http.Header{}
		h.Set(APIKeyHeader, v)
		return h
	}

	id, err := a.Authenticate(context.Background(), key("good"))
	if err != nil {
		t.Fatal(err)
	}
	if id.Principal != "batch" || !id.HasScope(ScopeSubmit) || id.Method != MethodAPIKey {
		t.Errorf("identity = %+v", id)
	}
	if _, err := a.Authenticate(context.Background(), key("bad")); !errors.Is(err, ErrInvalidCredentials) {
		t.Errorf("err = %v, want ErrInvalidCredentials", err)
	}
	if _, err := a.Authenticate(context.Background(), key("old")); !errors.Is(err, ErrTokenExpired) {
		t.Errorf("err = %v, want ErrTokenExpired", err)
	}

	a.Remove(HashAPIKey("good"))
	if _, err := a.Authenticate(context.Background(), key("good")); !errors.Is(err, ErrInvalidCredentials) {
		t.Errorf("err after Remove = %v", err)
	}
}

func TestComposite(t *testing.T) {
	j := mustJWT(t, JWTConfig{Secret: secret})
	k := NewAPIKeyAuthenticator(APIKey{Hash: HashAPIKey("key"), Principal: "svc"})
	c := Composite{j, k}

	h := http.Header{}
	if c.Supports(h) {
		t.Error("Supports(empty) = true")
	}
	if _, err := c.Authenticate(context.Background(), h); !errors.Is(err, ErrMissingCredentials) {
		t.Errorf("err = %v", err)
	}

	h.Set(APIKeyHeader, "key")
	id, err := c.Authenticate(context.Background(), h)
	if err != nil || id.Principal != "svc" {
		t.Errorf("got %+v, %v", id, err)
	}
}

func TestMiddleware(t *testing.T) {
	j := mustJWT(t, JWTConfig{Secret: secret})
	reader, _ := j.Issue("reader", []string{ScopeRead}, time.Hour)
	admin, _ := j.Issue("admin", []string{ScopeAll}, time.Hour)

	ok := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(PrincipalFromContext(r.Context())))
	})
	h := Middleware(j, nil)(RequireScope(ScopeInvalidate, nil, ok))

	tests := []struct {
		name   string
		header http.Header
		code   int
	}{
		{"no credentials", http.Header{}, http.StatusUnauthorized},
		{"bad token", bearer("x.y.z"), http.StatusUnauthorized},
		{"missing scope", bearer(reader), http.StatusForbidden},
		{"admin", bearer(admin), http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodDelete, "/v1/calculations/x", nil)
			req.Header = tt.header
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)
			if rec.Code != tt.code {
				t.Errorf("code = %d, want %d", rec.Code, tt.code)
			}
			if tt.code == http.StatusOK && rec.Body.String() != "admin" {
				t.Errorf("body = %q", rec.Body.String())
			}
		})
	}
}

func TestMiddlewareDisabled(t *testing.T) {
	var got *Identity
	h := Middleware(nil, nil)(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
		got = IdentityFromContext(r.Context())
	}))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
	if got == nil || got.Method != MethodAnonymous || !got.HasScope(ScopeInvalidate) {
		t.Errorf("identity = %+v", got)
	}
}

func TestScopeErrorIsForbidden(t *testing.T) {
	err := error(&ScopeError{Principal: "p", Scope: ScopeRead})
	if !errors.Is(err, ErrForbidden) {
		t.Error("ScopeError does not match ErrForbidden")
	}
}
