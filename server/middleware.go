package server

import (
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/jonwraymond/calccache/auth"
	"github.com/jonwraymond/calccache/observe"
)

// RequestIDHeader carries the request id in both directions.
const RequestIDHeader = "X-Request-ID"

type statusRecorder struct {
	http.ResponseWriter
	status    int
	principal string
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (r *statusRecorder) Unwrap() http.ResponseWriter {
	return r.ResponseWriter
}

// requestLog assigns a request id and logs every request.
func (s *Server) requestLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(RequestIDHeader)
		if _, err := uuid.Parse(id); err != nil {
			id = uuid.NewString()
		}
		w.Header().Set(RequestIDHeader, id)

		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)

		fields := []observe.Field{
			observe.F("request_id", id),
			observe.F("method", r.Method),
			observe.F("path", r.URL.Path),
			observe.F("status", rec.status),
			observe.F("duration_ms", time.Since(start).Milliseconds()),
		}
		if rec.principal != "" {
			fields = append(fields, observe.F("principal", rec.principal))
		}
		if rec.status >= http.StatusInternalServerError {
			s.logger.Warn(r.Context(), "request failed", fields...)
			return
		}
		s.logger.Debug(r.Context(), "request", fields...)
	})
}

// tagPrincipal copies the authenticated principal onto the request log.
func tagPrincipal(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if rec, ok := w.(*statusRecorder); ok {
			rec.principal = auth.PrincipalFromContext(r.Context())
		}
		next.ServeHTTP(w, r)
	})
}

// recoverer turns a handler panic into a 500.
func (s *Server) recoverer(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if v := recover(); v != nil {
				if v == http.ErrAbortHandler {
					panic(v)
				}
				s.logger.Error(r.Context(), "handler panic", observe.F("panic", fmt.Sprint(v)), observe.F("path", r.URL.Path))
				writeError(w, http.StatusInternalServerError, errInternal)
			}
		}()
		next.ServeHTTP(w, r)
	})
}

// rateLimit rejects requests beyond the server-wide token bucket.
func (s *Server) rateLimit(next http.Handler) http.Handler {
	if s.limiter == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !s.limiter.Allow() {
			w.Header().Set("Retry-After", "1")
			writeError(w, http.StatusTooManyRequests, errRateLimited)
			return
		}
		next.ServeHTTP(w, r)
	})
}
