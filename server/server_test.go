package server

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jonwraymond/calccache/auth"
	"github.com/jonwraymond/calccache/calc"
	"github.com/jonwraymond/calccache/config"
	"github.com/jonwraymond/calccache/engine"
	"github.com/jonwraymond/calccache/service"
)

const waterJSON = `{"molecule":{"atoms":[{"element":"O","x":0,"y":0,"z":0.117},{"element":"H","x":0,"y":0.757,"z":-0.467},{"element":"H","x":0,"y":-0.757,"z":-0.467}]},"method":"hf","basis":"sto-3g"}`

type outcomeBody struct {
	Fingerprint string          `json:"fingerprint"`
	Kind        string          `json:"kind"`
	Role        string          `json:"role"`
	Category    string          `json:"category"`
	Attempts    int             `json:"attempts"`
	Mutation    string          `json:"mutation"`
	Payload     json.RawMessage `json:"payload"`
	Error       string          `json:"error"`
}

type harness struct {
	t     *testing.T
	svc   *service.Service
	h     http.Handler
	calls atomic.Int32
}

func newHarness(t *testing.T, mutate func(*config.Config), eng calc.Engine) *harness {
	t.Helper()
	cfg := config.Default()
	if mutate != nil {
		mutate(&cfg)
	}
	hs := &harness{t: t}
	if eng == nil {
		eng = engine.Func(func(context.Context, calc.Request) calc.EngineOutcome {
			hs.calls.Add(1)
			return calc.Succeeded([]byte(`{"energy":-74.96}`))
		})
	}
	svc, err := service.New(context.Background(), &cfg, service.Options{Engine: eng, LogWriter: io.Discard})
	if err != nil {
		t.Fatalf("service.New: %v", err)
	}
	t.Cleanup(func() { _ = svc.Close(context.Background()) })
	hs.svc = svc
	hs.h = New(svc).Handler()
	return hs
}

func (hs *harness) do(method, path, body string, header http.Header) *httptest.ResponseRecorder {
	hs.t.Helper()
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, r)
	for k, v := range header {
		req.Header[k] = v
	}
	rec := httptest.NewRecorder()
	hs.h.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.NewDecoder(rec.Body).Decode(&v); err != nil {
		t.Fatalf("decode %q: %v", rec.Body.String(), err)
	}
	return v
}

func submitBody(extra string) string {
	return `{"request":` + waterJSON + extra + `}`
}

func TestSubmitThenCache(t *testing.T) {
	hs := newHarness(t, nil, nil)

	rec := hs.do(http.MethodPost, "/v1/calculations", submitBody(""), nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("code = %d body=%s", rec.Code, rec.Body)
	}
	if rec.Header().Get(RequestIDHeader) == "" {
		t.Error("missing request id")
	}
	first := decode[outcomeBody](t, rec)
	if first.Kind != "success" || first.Role != "leader" || string(first.Payload) != `{"energy":-74.96}` {
		t.Errorf("first = %+v", first)
	}

	second := decode[outcomeBody](t, hs.do(http.MethodPost, "/v1/calculations", submitBody(""), nil))
	if second.Role != "cache" || second.Fingerprint != first.Fingerprint {
		t.Errorf("second = %+v", second)
	}
	if hs.calls.Load() != 1 {
		t.Errorf("engine calls = %d, want 1", hs.calls.Load())
	}

	got := decode[outcomeBody](t, hs.do(http.MethodGet, "/v1/calculations/"+first.Fingerprint, "", nil))
	if got.Kind != "success" || got.Role != "cache" {
		t.Errorf("lookup = %+v", got)
	}

	rec = hs.do(http.MethodDelete, "/v1/calculations/"+first.Fingerprint, "", nil)
	if rec.Code != http.StatusNoContent {
		t.Errorf("delete code = %d", rec.Code)
	}
	if rec := hs.do(http.MethodGet, "/v1/calculations/"+first.Fingerprint, "", nil); rec.Code != http.StatusNotFound {
		t.Errorf("lookup after delete = %d", rec.Code)
	}
}

func TestSubmitFailureIsCachedWithCategory(t *testing.T) {
	eng := engine.Func(func(context.Context, calc.Request) calc.EngineOutcome {
		return calc.Failed("basis set 'cc-pvxz' not found", "")
	})
	hs := newHarness(t, nil, eng)

	rec := hs.do(http.MethodPost, "/v1/calculations", submitBody(""), nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("code = %d", rec.Code)
	}
	out := decode[outcomeBody](t, rec)
	if out.Kind != "failure" || out.Category != "invalid_input" || out.Attempts != 1 {
		t.Errorf("out = %+v", out)
	}
}

func TestSubmitTextPayloadIsQuoted(t *testing.T) {
	eng := engine.Func(func(context.Context, calc.Request) calc.EngineOutcome {
		return calc.Succeeded([]byte("E = -74.96"))
	})
	hs := newHarness(t, nil, eng)
	out := decode[outcomeBody](t, hs.do(http.MethodPost, "/v1/calculations", submitBody(""), nil))
	if string(out.Payload) != `"E = -74.96"` {
		t.Errorf("payload = %s", out.Payload)
	}
}

func TestSubmitTimeoutThenPoll(t *testing.T) {
	release := make(chan struct{})
	eng := engine.Func(func(ctx context.Context, _ calc.Request) calc.EngineOutcome {
		<-release
		return calc.Succeeded([]byte(`1`))
	})
	hs := newHarness(t, nil, eng)

	rec := hs.do(http.MethodPost, "/v1/calculations", submitBody(`,"timeout":"20ms"`), nil)
	if rec.Code != http.StatusAccepted {
		close(release)
		t.Fatalf("code = %d body=%s", rec.Code, rec.Body)
	}
	loc := rec.Header().Get("Location")
	out := decode[outcomeBody](t, rec)
	if out.Kind != "timeout" || !strings.HasSuffix(loc, out.Fingerprint) {
		t.Errorf("out = %+v location=%q", out, loc)
	}

	if rec := hs.do(http.MethodGet, loc, "", nil); rec.Code != http.StatusAccepted {
		t.Errorf("poll while running = %d", rec.Code)
	}
	close(release)

	deadline := time.Now().Add(2 * time.Second)
	for {
		rec := hs.do(http.MethodGet, loc, "", nil)
		if rec.Code == http.StatusOK {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("result never cached, last code %d", rec.Code)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestBadRequests(t *testing.T) {
	hs := newHarness(t, func(c *config.Config) { c.Server.MaxBatch = 2 }, nil)
	tests := []struct {
		name   string
		method string
		path   string
		body   string
		code   int
	}{
		{"malformed json", http.MethodPost, "/v1/calculations", `{`, http.StatusBadRequest},
		{"no atoms", http.MethodPost, "/v1/calculations", `{"request":{"method":"hf"}}`, http.StatusBadRequest},
		{"bad timeout", http.MethodPost, "/v1/calculations", submitBody(`,"timeout":"soon"`), http.StatusBadRequest},
		{"bad fingerprint", http.MethodGet, "/v1/calculations/xyz", "", http.StatusBadRequest},
		{"empty batch", http.MethodPost, "/v1/calculations:batch", `{"requests":[]}`, http.StatusBadRequest},
		{"oversized batch", http.MethodPost, "/v1/calculations:batch", `{"requests":[` + waterJSON + `,` + waterJSON + `,` + waterJSON + `]}`, http.StatusBadRequest},
		{"unknown fingerprint", http.MethodGet, "/v1/calculations/" + strings.Repeat("0", 64), "", http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if rec := hs.do(tt.method, tt.path, tt.body, nil); rec.Code != tt.code {
				t.Errorf("code = %d, want %d (%s)", rec.Code, tt.code, rec.Body)
			}
		})
	}
	if hs.calls.Load() != 0 {
		t.Errorf("engine called %d times for rejected requests", hs.calls.Load())
	}
}

func TestBatch(t *testing.T) {
	hs := newHarness(t, nil, nil)
	other := strings.Replace(waterJSON, `"sto-3g"`, `"cc-pvdz"`, 1)
	body := `{"requests":[` + waterJSON + `,` + other + `,` + waterJSON + `],"concurrency":2}`

	rec := hs.do(http.MethodPost, "/v1/calculations:batch", body, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("code = %d body=%s", rec.Code, rec.Body)
	}
	resp := decode[struct {
		Outcomes []outcomeBody `json:"outcomes"`
	}](t, rec)
	if len(resp.Outcomes) != 3 {
		t.Fatalf("outcomes = %d", len(resp.Outcomes))
	}
	if resp.Outcomes[0].Fingerprint != resp.Outcomes[2].Fingerprint || resp.Outcomes[0].Fingerprint == resp.Outcomes[1].Fingerprint {
		t.Errorf("fingerprints = %s %s %s", resp.Outcomes[0].Fingerprint, resp.Outcomes[1].Fingerprint, resp.Outcomes[2].Fingerprint)
	}
	if hs.calls.Load() != 2 {
		t.Errorf("engine calls = %d, want 2", hs.calls.Load())
	}
}

func TestFingerprintAndClassify(t *testing.T) {
	hs := newHarness(t, nil, nil)

	a := decode[map[string]any](t, hs.do(http.MethodPost, "/v1/fingerprint", waterJSON, nil))
	b := decode[map[string]any](t, hs.do(http.MethodPost, "/v1/fingerprint", strings.Replace(waterJSON, `"hf"`, `"HF"`, 1), nil))
	if a["fingerprint"] != b["fingerprint"] || a["cached"] != false {
		t.Errorf("a=%v b=%v", a, b)
	}

	c := decode[struct {
		Category    string   `json:"category"`
		Source      string   `json:"source"`
		Recoverable bool     `json:"recoverable"`
		Strategies  []string `json:"strategies"`
	}](t, hs.do(http.MethodPost, "/v1/classify", `{"diagnostic":"SCF did not converge in 100 iterations"}`, nil))
	if c.Category != "convergence" || !c.Recoverable || len(c.Strategies) == 0 {
		t.Errorf("classify = %+v", c)
	}

	strategies := decode[[]struct {
		Category string `json:"category"`
	}](t, hs.do(http.MethodGet, "/v1/strategies", "", nil))
	if len(strategies) != len(calc.Categories) {
		t.Errorf("strategies = %d categories", len(strategies))
	}

	stats := decode[map[string]any](t, hs.do(http.MethodGet, "/v1/stats", "", nil))
	if _, ok := stats["engine"]; !ok {
		t.Errorf("stats = %v", stats)
	}
	if rec := hs.do(http.MethodGet, "/v1/flights", "", nil); rec.Code != http.StatusOK || strings.TrimSpace(rec.Body.String()) != "[]" {
		t.Errorf("flights = %d %s", rec.Code, rec.Body)
	}
}

func TestInvalidateWhere(t *testing.T) {
	hs := newHarness(t, nil, nil)
	mp2 := strings.Replace(waterJSON, `"hf"`, `"mp2"`, 1)
	for _, body := range []string{waterJSON, mp2} {
		if rec := hs.do(http.MethodPost, "/v1/calculations", `{"request":`+body+`}`, nil); rec.Code != http.StatusOK {
			t.Fatalf("submit = %d %s", rec.Code, rec.Body)
		}
	}

	fp := decode[struct {
		Labels struct {
			Method   string `json:"method"`
			Molecule string `json:"molecule"`
		} `json:"labels"`
	}](t, hs.do(http.MethodPost, "/v1/fingerprint", mp2, nil))
	if fp.Labels.Method != "mp2" || fp.Labels.Molecule == "" {
		t.Fatalf("fingerprint labels = %+v", fp.Labels)
	}

	tests := []struct {
		name  string
		query string
		code  int
		want  int
	}{
		{"empty filter refused", "", http.StatusBadRequest, 0},
		{"all=false refused", "?all=false", http.StatusBadRequest, 0},
		{"method", "?method=HF", http.StatusOK, 1},
		{"method again", "?method=hf", http.StatusOK, 0},
		{"molecule", "?molecule=" + fp.Labels.Molecule, http.StatusOK, 1},
		{"all", "?all=true", http.StatusOK, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := hs.do(http.MethodDelete, "/v1/calculations"+tt.query, "", nil)
			if rec.Code != tt.code {
				t.Fatalf("code = %d, want %d (%s)", rec.Code, tt.code, rec.Body)
			}
			if tt.code != http.StatusOK {
				return
			}
			got := decode[invalidateResponse](t, rec)
			if got.Invalidated != tt.want {
				t.Errorf("invalidated = %d, want %d", got.Invalidated, tt.want)
			}
		})
	}

	rec := hs.do(http.MethodPost, "/v1/calculations", submitBody(""), nil)
	if out := decode[outcomeBody](t, rec); out.Role != "leader" {
		t.Errorf("submit after bulk invalidate role = %s, want leader", out.Role)
	}
}

func TestHealthAndMetrics(t *testing.T) {
	hs := newHarness(t, func(c *config.Config) {
		c.Metrics.Enabled = true
		c.Metrics.Exporter = "prometheus"
	}, nil)
	if rec := hs.do(http.MethodGet, "/healthz", "", nil); rec.Code != http.StatusOK {
		t.Errorf("healthz = %d", rec.Code)
	}
	if rec := hs.do(http.MethodGet, "/health", "", nil); rec.Code != http.StatusOK {
		t.Errorf("health = %d %s", rec.Code, rec.Body)
	}

	hs.do(http.MethodPost, "/v1/calculations", submitBody(""), nil)
	rec := hs.do(http.MethodGet, "/metrics", "", nil)
	if rec.Code != http.StatusOK || !bytes.Contains(rec.Body.Bytes(), []byte("calc_submit")) {
		t.Errorf("metrics = %d\n%s", rec.Code, rec.Body)
	}
}

func TestAuth(t *testing.T) {
	const secret = "server-test-secret"
	hs := newHarness(t, func(c *config.Config) {
		c.Auth = config.AuthConfig{Enabled: true, JWTSecret: secret}
	}, nil)
	issuer, err := auth.NewJWTAuthenticator(auth.JWTConfig{Secret: []byte(secret)})
	if err != nil {
		t.Fatal(err)
	}
	token := func(scopes ...string) http.Header {
		tok, err := issuer.Issue("tester", scopes, time.Hour)
		if err != nil {
			t.Fatal(err)
		}
		return http.Header{"Authorization": {"Bearer " + tok}}
	}

	tests := []struct {
		name   string
		method string
		path   string
		body   string
		header http.Header
		code   int
	}{
		{"anonymous", http.MethodPost, "/v1/calculations", submitBody(""), nil, http.StatusUnauthorized},
		{"read scope cannot submit", http.MethodPost, "/v1/calculations", submitBody(""), token(auth.ScopeRead), http.StatusForbidden},
		{"submit scope", http.MethodPost, "/v1/calculations", submitBody(""), token(auth.ScopeSubmit), http.StatusOK},
		{"submit scope cannot invalidate", http.MethodDelete, "/v1/calculations/" + strings.Repeat("0", 64), "", token(auth.ScopeSubmit), http.StatusForbidden},
		{"invalidate scope", http.MethodDelete, "/v1/calculations/" + strings.Repeat("0", 64), "", token(auth.ScopeInvalidate), http.StatusNoContent},
		{"read scope cannot bulk invalidate", http.MethodDelete, "/v1/calculations?method=hf", "", token(auth.ScopeRead), http.StatusForbidden},
		{"bulk invalidate scope", http.MethodDelete, "/v1/calculations?method=hf", "", token(auth.ScopeInvalidate), http.StatusOK},
		{"health is open", http.MethodGet, "/healthz", "", nil, http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if rec := hs.do(tt.method, tt.path, tt.body, tt.header); rec.Code != tt.code {
				t.Errorf("code = %d, want %d (%s)", rec.Code, tt.code, rec.Body)
			}
		})
	}
}

func TestRateLimit(t *testing.T) {
	hs := newHarness(t, func(c *config.Config) {
		c.Server.RateLimit = 0.001
		c.Server.RateBurst = 1
	}, nil)
	if rec := hs.do(http.MethodGet, "/v1/stats", "", nil); rec.Code != http.StatusOK {
		t.Fatalf("first = %d", rec.Code)
	}
	rec := hs.do(http.MethodGet, "/v1/stats", "", nil)
	if rec.Code != http.StatusTooManyRequests || rec.Header().Get("Retry-After") == "" {
		t.Errorf("second = %d", rec.Code)
	}
	if rec := hs.do(http.MethodGet, "/healthz", "", nil); rec.Code != http.StatusOK {
		t.Errorf("health limited: %d", rec.Code)
	}
}

func TestServeShutsDown(t *testing.T) {
	hs := newHarness(t, nil, nil)
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- New(hs.svc).Serve(ctx, ln) }()

	resp, err := http.Get("http://" + ln.Addr().String() + "/healthz")
	if err != nil {
		cancel()
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d", resp.StatusCode)
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Serve() = %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Serve did not return after cancel")
	}
}
