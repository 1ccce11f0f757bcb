package calc

import "time"

// OutcomeKind is the closed set of caller-visible results.
type OutcomeKind int

const (
	// OutcomeSuccess carries the engine payload.
	OutcomeSuccess OutcomeKind = iota
	// OutcomeFailure carries the final category and the recovery history.
	OutcomeFailure
	// OutcomeTimeout means the caller stopped waiting; the computation may
	// still complete and be cached.
	OutcomeTimeout
)

// String returns the name of the outcome kind.
func (k OutcomeKind) String() string {
	switch k {
	case OutcomeSuccess:
		return "success"
	case OutcomeFailure:
		return "failure"
	case OutcomeTimeout:
		return "timeout"
	default:
		return "unknown"
	}
}

// MarshalText implements encoding.TextMarshaler.
func (k OutcomeKind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (k *OutcomeKind) UnmarshalText(text []byte) error {
	switch string(text) {
	case "success":
		*k = OutcomeSuccess
	case "failure":
		*k = OutcomeFailure
	case "timeout":
		*k = OutcomeTimeout
	default:
		*k = OutcomeFailure
	}
	return nil
}

// Role records how an outcome reached its caller.
type Role string

const (
	RoleCache    Role = "cache"
	RoleLeader   Role = "leader"
	RoleFollower Role = "follower"
)

// FailureRecord describes one failed attempt.
type FailureRecord struct {
	// Attempt is the zero-based attempt index.
	Attempt int `json:"attempt"`

	Category   Category `json:"category"`
	Diagnostic string   `json:"diagnostic"`
	Code       string   `json:"code,omitempty"`

	// Mutation is the recovery step applied to produce this attempt's
	// request; empty for attempt 0.
	Mutation string `json:"mutation,omitempty"`

	// MutationsApplied lists every step tried up to and including this attempt.
	MutationsApplied []string `json:"mutations_applied,omitempty"`

	// Fingerprint identifies the request actually sent to the engine.
	Fingerprint Fingerprint `json:"fingerprint"`

	Duration time.Duration `json:"duration"`
}

// Outcome is the terminal result delivered to a caller.
type Outcome struct {
	Kind        OutcomeKind `json:"kind"`
	Fingerprint Fingerprint `json:"fingerprint"`
	Payload     []byte      `json:"-"`

	// Category is the category of the final failure (Failure only).
	Category Category `json:"category"`

	// History is the ordered failure history. For a success after retries it
	// holds the failed attempts that preceded it.
	History []FailureRecord `json:"recovery_history,omitempty"`

	// Attempts is the number of engine attempts made.
	Attempts int `json:"attempts"`

	// Mutation names the step that produced a successful attempt.
	Mutation string `json:"mutation,omitempty"`

	CompletedAt time.Time `json:"completed_at"`

	// Role is set per delivery and not persisted.
	Role Role `json:"-"`

	// PersistenceErr is a side-channel warning: the outcome is valid but
	// could not be stored durably. Only the leader's caller sees it.
	PersistenceErr error `json:"-"`

	// Err explains a Timeout or a non-cacheable rejection.
	Err error `json:"-"`

	// Transient marks failures that must not be cached (local saturation,
	// shutdown).
	Transient bool `json:"-"`
}

// IsSuccess reports whether the outcome is a success.
func (o Outcome) IsSuccess() bool {
	return o.Kind == OutcomeSuccess
}

// IsTerminal reports whether the computation finished. Timeouts are not
// terminal: the computation may still be running.
func (o Outcome) IsTerminal() bool {
	return o.Kind != OutcomeTimeout
}

// Cacheable reports whether the outcome is eligible for the cache store.
func (o Outcome) Cacheable() bool {
	switch o.Kind {
	case OutcomeSuccess:
		return true
	case OutcomeFailure:
		return !o.Transient
	default:
		return false
	}
}

// Categories returns the category of every recorded failure, in order.
func (o Outcome) Categories() []Category {
	out := make([]Category, len(o.History))
	for i, rec := range o.History {
		out[i] = rec.Category
	}
	return out
}

// Mutations returns the mutation applied at every recorded attempt, in order.
func (o Outcome) Mutations() []string {
	out := make([]string, 0, len(o.History))
	for _, rec := range o.History {
		if rec.Mutation != "" {
			out = append(out, rec.Mutation)
		}
	}
	return out
}

// TimeoutOutcome returns a Timeout outcome for fp.
func TimeoutOutcome(fp Fingerprint, err error) Outcome {
	if err == nil {
		err = ErrTimeout
	}
	return Outcome{
		Kind:        OutcomeTimeout,
		Fingerprint: fp,
		Err:         err,
		CompletedAt: time.Now(),
	}
}
