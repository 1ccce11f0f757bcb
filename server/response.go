package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/jonwraymond/calccache/calc"
)

var (
	errInternal    = errors.New("internal error")
	errRateLimited = errors.New("rate limit exceeded")
	errNotFound    = errors.New("not cached")
	errBatchSize   = errors.New("batch size out of range")
	errEmptyFilter = errors.New("empty filter: pass kind, method, basis or molecule, or all=true")
)

type errorResponse struct {
	Error  string `json:"error"`
	Status int    `json:"status"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, errorResponse{Error: err.Error(), Status: status})
}

func writeAuthError(w http.ResponseWriter, _ *http.Request, status int, err error) {
	writeError(w, status, err)
}

// OutcomeResponse is the wire form of calc.Outcome.
type OutcomeResponse struct {
	Fingerprint      calc.Fingerprint     `json:"fingerprint"`
	Kind             calc.OutcomeKind     `json:"kind"`
	Role             calc.Role            `json:"role,omitempty"`
	Category         *calc.Category       `json:"category,omitempty"`
	Attempts         int                  `json:"attempts"`
	Mutation         string               `json:"mutation,omitempty"`
	History          []calc.FailureRecord `json:"recovery_history,omitempty"`
	CompletedAt      time.Time            `json:"completed_at"`
	Payload          json.RawMessage      `json:"payload,omitempty"`
	Error            string               `json:"error,omitempty"`
	PersistenceError string               `json:"persistence_error,omitempty"`
	Transient        bool                 `json:"transient,omitempty"`
}

// NewOutcomeResponse converts o to its wire form.
func NewOutcomeResponse(o calc.Outcome) OutcomeResponse {
	resp := OutcomeResponse{
		Fingerprint: o.Fingerprint,
		Kind:        o.Kind,
		Role:        o.Role,
		Attempts:    o.Attempts,
		Mutation:    o.Mutation,
		History:     o.History,
		CompletedAt: o.CompletedAt,
		Payload:     rawPayload(o.Payload),
		Transient:   o.Transient,
	}
	if o.Kind == calc.OutcomeFailure {
		cat := o.Category
		resp.Category = &cat
	}
	if o.Err != nil {
		resp.Error = o.Err.Error()
	}
	if o.PersistenceErr != nil {
		resp.PersistenceError = o.PersistenceErr.Error()
	}
	return resp
}

// rawPayload passes JSON payloads through and quotes anything else.
func rawPayload(p []byte) json.RawMessage {
	if len(p) == 0 {
		return nil
	}
	if json.Valid(p) {
		return json.RawMessage(p)
	}
	quoted, _ := json.Marshal(string(p))
	return quoted
}

// outcomeStatus maps an outcome to an HTTP status. Finished computations
// are 200 whatever their kind; the kind is in the body.
func outcomeStatus(o calc.Outcome) int {
	switch {
	case o.Kind == calc.OutcomeTimeout:
		return http.StatusAccepted
	case o.Transient:
		return http.StatusServiceUnavailable
	default:
		return http.StatusOK
	}
}

func decodeJSON(w http.ResponseWriter, r *http.Request, limit int64, v any) error {
	if limit > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, limit)
	}
	dec := json.NewDecoder(r.Body)
	dec.UseNumber()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("invalid request body: %w", err)
	}
	return nil
}

// duration accepts a Go duration string; empty is zero.
type duration time.Duration

func (d *duration) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return fmt.Errorf("duration must be a string like \"30s\": %w", err)
	}
	if s == "" {
		*d = 0
		return nil
	}
	v, err := time.ParseDuration(s)
	if err != nil {
		return err
	}
	if v < 0 {
		return fmt.Errorf("duration %q is negative", s)
	}
	*d = duration(v)
	return nil
}
