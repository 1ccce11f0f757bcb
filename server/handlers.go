package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/jonwraymond/calccache/cache"
	"github.com/jonwraymond/calccache/calc"
	"github.com/jonwraymond/calccache/classify"
	"github.com/jonwraymond/calccache/flight"
	"github.com/jonwraymond/calccache/observe"
	"github.com/jonwraymond/calccache/resilience"
)

type submitRequest struct {
	Request     calc.Request `json:"request"`
	Timeout     duration     `json:"timeout"`
	BypassCache bool         `json:"bypass_cache"`
}

func (s *Server) handleSubmit(w http.ResponseWriter, r *http.Request) {
	var req submitRequest
	if err := decodeJSON(w, r, s.cfg.MaxBodyBytes, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if err := validateRequest(req.Request); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	out := s.svc.Orchestrator.Submit(r.Context(), req.Request, flight.SubmitOptions{
		Timeout:     time.Duration(req.Timeout),
		BypassCache: req.BypassCache,
	})
	if out.Kind == calc.OutcomeTimeout {
		w.Header().Set("Location", "/v1/calculations/"+out.Fingerprint.String())
	}
	writeJSON(w, outcomeStatus(out), NewOutcomeResponse(out))
}

type batchRequest struct {
	Requests    []calc.Request `json:"requests"`
	Timeout     duration       `json:"timeout"`
	BypassCache bool           `json:"bypass_cache"`
	Concurrency int            `json:"concurrency"`
}

type batchResponse struct {
	Outcomes []OutcomeResponse `json:"outcomes"`
}

func (s *Server) handleBatch(w http.ResponseWriter, r *http.Request) {
	var req batchRequest
	if err := decodeJSON(w, r, s.cfg.MaxBodyBytes, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if len(req.Requests) == 0 || (s.cfg.MaxBatch > 0 && len(req.Requests) > s.cfg.MaxBatch) {
		writeError(w, http.StatusBadRequest, fmt.Errorf("%w: got %d, max %d", errBatchSize, len(req.Requests), s.cfg.MaxBatch))
		return
	}
	for i, cr := range req.Requests {
		if err := validateRequest(cr); err != nil {
			writeError(w, http.StatusBadRequest, fmt.Errorf("requests[%d]: %w", i, err))
			return
		}
	}

	outcomes := s.svc.Orchestrator.SubmitBatch(r.Context(), req.Requests, flight.SubmitOptions{
		Timeout:     time.Duration(req.Timeout),
		BypassCache: req.BypassCache,
	}, req.Concurrency)

	resp := batchResponse{Outcomes: make([]OutcomeResponse, len(outcomes))}
	for i, o := range outcomes {
		resp.Outcomes[i] = NewOutcomeResponse(o)
	}
	writeJSON(w, http.StatusOK, resp)
}

type flightResponse struct {
	Fingerprint calc.Fingerprint `json:"fingerprint"`
	State       string           `json:"state"`
}

func (s *Server) handleLookup(w http.ResponseWriter, r *http.Request) {
	fp, err := calc.ParseFingerprint(r.PathValue("fingerprint"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if e, ok := s.svc.Store.Lookup(r.Context(), fp); ok {
		out := e.Outcome
		out.Role = calc.RoleCache
		writeJSON(w, http.StatusOK, NewOutcomeResponse(out))
		return
	}
	if state := s.svc.Orchestrator.State(fp); state != flight.StateIdle {
		writeJSON(w, http.StatusAccepted, flightResponse{Fingerprint: fp, State: state.String()})
		return
	}
	writeError(w, http.StatusNotFound, errNotFound)
}

func (s *Server) handleInvalidate(w http.ResponseWriter, r *http.Request) {
	fp, err := calc.ParseFingerprint(r.PathValue("fingerprint"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if err := s.svc.Orchestrator.Invalidate(r.Context(), fp); err != nil {
		s.logger.Warn(r.Context(), "invalidate failed",
			observe.F("fingerprint", fp.Short()),
			observe.F("error", err.Error()),
		)
		writeError(w, http.StatusBadGateway, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type invalidateResponse struct {
	Invalidated int          `json:"invalidated"`
	Filter      cache.Filter `json:"filter"`
}

// handleInvalidateWhere drops every cached outcome matching the kind,
// method, basis and molecule query parameters. An empty filter needs
// all=true.
func (s *Server) handleInvalidateWhere(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	f := cache.Filter{
		Kind:     q.Get("kind"),
		Method:   q.Get("method"),
		Basis:    q.Get("basis"),
		Molecule: q.Get("molecule"),
	}
	if f.IsZero() {
		all, err := strconv.ParseBool(q.Get("all"))
		if err != nil || !all {
			writeError(w, http.StatusBadRequest, errEmptyFilter)
			return
		}
	}
	n, err := s.svc.Orchestrator.InvalidateWhere(r.Context(), f)
	if err != nil {
		writeError(w, http.StatusBadGateway, err)
		return
	}
	writeJSON(w, http.StatusOK, invalidateResponse{
		Invalidated: n,
		Filter:      s.svc.Orchestrator.CanonicalFilter(f),
	})
}

type fingerprintResponse struct {
	Fingerprint calc.Fingerprint `json:"fingerprint"`
	Canonical   json.RawMessage  `json:"canonical"`
	Labels      calc.Labels      `json:"labels"`
	Cached      bool             `json:"cached"`
}

func (s *Server) handleFingerprint(w http.ResponseWriter, r *http.Request) {
	var req calc.Request
	if err := decodeJSON(w, r, s.cfg.MaxBodyBytes, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	writeJSON(w, http.StatusOK, fingerprintResponse{
		Fingerprint: s.svc.Generator.Fingerprint(req),
		Canonical:   s.svc.Generator.Canonical(req),
		Labels:      s.svc.Generator.Labels(req),
		Cached:      s.svc.Store.Contains(s.svc.Generator.Fingerprint(req)),
	})
}

type classifyRequest struct {
	Diagnostic string `json:"diagnostic"`
	Code       string `json:"code"`
}

type classifyResponse struct {
	classify.Match
	Recoverable bool     `json:"recoverable"`
	Strategies  []string `json:"strategies"`
}

func (s *Server) handleClassify(w http.ResponseWriter, r *http.Request) {
	var req classifyRequest
	if err := decodeJSON(w, r, s.cfg.MaxBodyBytes, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	m := s.svc.Classifier.Explain(req.Diagnostic, req.Code)
	writeJSON(w, http.StatusOK, classifyResponse{
		Match:       m,
		Recoverable: m.Category.Recoverable(),
		Strategies:  s.svc.Table.Names(m.Category),
	})
}

type strategyResponse struct {
	Category calc.Category `json:"category"`
	Steps    []stepInfo    `json:"steps"`
}

type stepInfo struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

func (s *Server) handleStrategies(w http.ResponseWriter, _ *http.Request) {
	resp := make([]strategyResponse, 0, len(calc.Categories))
	for _, cat := range calc.Categories {
		steps := s.svc.Table.StrategiesFor(cat)
		info := make([]stepInfo, len(steps))
		for i, st := range steps {
			info[i] = stepInfo{Name: st.Name, Description: st.Description}
		}
		resp = append(resp, strategyResponse{Category: cat, Steps: info})
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleFlights(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.svc.Orchestrator.InFlight())
}

type statsResponse struct {
	Cache    cache.Stats              `json:"cache"`
	HitRatio float64                  `json:"hit_ratio"`
	Engine   resilience.BulkheadStats `json:"engine"`
	InFlight int                      `json:"in_flight"`
}

func (s *Server) handleStats(w http.ResponseWriter, _ *http.Request) {
	st := s.svc.Store.Stats()
	writeJSON(w, http.StatusOK, statsResponse{
		Cache:    st,
		HitRatio: st.HitRatio(),
		Engine:   s.svc.Orchestrator.Saturation(),
		InFlight: len(s.svc.Orchestrator.InFlight()),
	})
}

var errIncomplete = errors.New("incomplete request")

// validateRequest rejects bodies that cannot describe a calculation.
// Anything the engine might still refuse is left to the engine, so the
// refusal is classified and cached.
func validateRequest(r calc.Request) error {
	switch {
	case len(r.Molecule.Atoms) == 0:
		return fmt.Errorf("%w: molecule has no atoms", errIncomplete)
	case r.Method == "":
		return fmt.Errorf("%w: method is required", errIncomplete)
	}
	return nil
}
