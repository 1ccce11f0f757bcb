package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/jonwraymond/calccache/auth"
	"github.com/jonwraymond/calccache/config"
	"github.com/jonwraymond/calccache/health"
	"github.com/jonwraymond/calccache/observe"
	"github.com/jonwraymond/calccache/resilience"
	"github.com/jonwraymond/calccache/service"
)

// Server serves the calculation API.
type Server struct {
	svc     *service.Service
	cfg     config.ServerConfig
	logger  observe.Logger
	limiter *resilience.Limiter
	handler http.Handler
}

// New builds the route table for svc.
func New(svc *service.Service) *Server {
	s := &Server{
		svc:    svc,
		cfg:    svc.Config.Server,
		logger: svc.Logger,
	}
	if s.logger == nil {
		s.logger = observe.NopLogger()
	}
	if s.cfg.RateLimit > 0 {
		s.limiter = resilience.NewLimiter(resilience.LimiterConfig{
			Rate:  s.cfg.RateLimit,
			Burst: s.cfg.RateBurst,
		})
	}

	api := http.NewServeMux()
	scoped := func(pattern, scope string, h http.HandlerFunc) {
		api.Handle(pattern, auth.RequireScope(scope, writeAuthError, h))
	}
	scoped("POST /v1/calculations", auth.ScopeSubmit, s.handleSubmit)
	scoped("POST /v1/calculations:batch", auth.ScopeSubmit, s.handleBatch)
	scoped("GET /v1/calculations/{fingerprint}", auth.ScopeRead, s.handleLookup)
	scoped("DELETE /v1/calculations", auth.ScopeInvalidate, s.handleInvalidateWhere)
	scoped("DELETE /v1/calculations/{fingerprint}", auth.ScopeInvalidate, s.handleInvalidate)
	scoped("POST /v1/fingerprint", auth.ScopeRead, s.handleFingerprint)
	scoped("POST /v1/classify", auth.ScopeRead, s.handleClassify)
	scoped("GET /v1/strategies", auth.ScopeRead, s.handleStrategies)
	scoped("GET /v1/flights", auth.ScopeRead, s.handleFlights)
	scoped("GET /v1/stats", auth.ScopeRead, s.handleStats)

	root := http.NewServeMux()
	health.RegisterHandlers(root, svc.Health)
	if svc.Observer != nil {
		root.Handle("GET /metrics", svc.Observer.MetricsHandler())
	}
	root.Handle("/v1/", s.rateLimit(auth.Middleware(svc.Authenticator, writeAuthError)(tagPrincipal(api))))

	s.handler = s.recoverer(s.requestLog(root))
	return s
}

// Handler returns the root handler.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// ListenAndServe serves on the configured address until ctx is done, then
// shuts down gracefully within the configured timeout.
func (s *Server) ListenAndServe(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.cfg.Addr)
	if err != nil {
		return fmt.Errorf("server: listen: %w", err)
	}
	return s.Serve(ctx, ln)
}

// Serve is ListenAndServe on an existing listener.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           s.handler,
		ReadTimeout:       s.cfg.ReadTimeout,
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      s.cfg.WriteTimeout,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	errc := make(chan error, 1)
	go func() { errc <- srv.Serve(ln) }()
	s.logger.Info(ctx, "server listening", observe.F("addr", ln.Addr().String()))

	select {
	case err := <-errc:
		return fmt.Errorf("server: %w", err)
	case <-ctx.Done():
	}

	timeout := s.cfg.ShutdownTimeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), timeout)
	defer cancel()
	s.logger.Info(shutdownCtx, "server shutting down")
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server: shutdown: %w", err)
	}
	if err := <-errc; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server: %w", err)
	}
	return nil
}
