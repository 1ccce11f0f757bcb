package calc

import "context"

// EngineFailure is a failed attempt as reported by the engine adapter.
type EngineFailure struct {
	// Diagnostic is the raw engine message used for classification.
	Diagnostic string `json:"diagnostic"`

	// Code is an optional structured error code.
	Code string `json:"code,omitempty"`
}

// EngineOutcome is the closed result of one engine attempt: exactly one of
// Payload (success) or Failure is meaningful.
type EngineOutcome struct {
	Payload []byte
	Failure *EngineFailure
}

// Succeeded returns a successful engine outcome.
func Succeeded(payload []byte) EngineOutcome {
	return EngineOutcome{Payload: payload}
}

// Failed returns a failed engine outcome.
func Failed(diagnostic, code string) EngineOutcome {
	return EngineOutcome{Failure: &EngineFailure{Diagnostic: diagnostic, Code: code}}
}

// OK reports whether the attempt succeeded.
func (o EngineOutcome) OK() bool {
	return o.Failure == nil
}

// Engine runs calculations.
//
// Contract:
//   - Concurrency: implementations must be safe for concurrent use.
//   - Errors: failures are returned as values, never as panics; the
//     orchestrator still recovers panics and reports them as Unknown.
//   - State: an attempt must not change how a later identical request behaves.
//   - Context: implementations should stop work when ctx is done.
type Engine interface {
	Attempt(ctx context.Context, req Request) EngineOutcome
}
