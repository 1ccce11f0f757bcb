package flight

import (
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/jonwraymond/calccache/calc"
)

// State is the lifecycle position of a computation or a caller.
type State int

// Leaders move Idle, Leading, Committing, Done; followers move Idle,
// Waiting, Done.
const (
	StateIdle State = iota
	StateLeading
	StateCommitting
	StateWaiting
	StateDone
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateLeading:
		return "leading"
	case StateCommitting:
		return "committing"
	case StateWaiting:
		return "waiting"
	case StateDone:
		return "done"
	default:
		return "unknown"
	}
}

// slot is one in-flight computation. outcome and persistErr are written
// once by the leader before done is closed.
type slot struct {
	id      string
	fp      calc.Fingerprint
	started time.Time
	done    chan struct{}

	state   atomic.Int32
	waiters atomic.Int32
	attempt atomic.Int32

	outcome    calc.Outcome
	persistErr error
}

func (s *slot) setState(st State) {
	s.state.Store(int32(st))
}

func (s *slot) State() State {
	return State(s.state.Load())
}

// Flight is a snapshot of one in-flight computation.
type Flight struct {
	ID          string           `json:"id"`
	Fingerprint calc.Fingerprint `json:"fingerprint"`
	State       State            `json:"-"`
	StateName   string           `json:"state"`
	Attempt     int              `json:"attempt"`
	Waiters     int              `json:"waiters"`
	Started     time.Time        `json:"started"`
}

// registry maps fingerprints to in-flight slots. The mutex covers only
// check-and-create and removal.
type registry struct {
	mu    sync.Mutex
	slots map[calc.Fingerprint]*slot
}

func newRegistry() *registry {
	return &registry{slots: make(map[calc.Fingerprint]*slot)}
}

// attach returns the slot for fp, creating it when absent. leader is true
// for the caller that created it.
func (r *registry) attach(fp calc.Fingerprint, now time.Time) (s *slot, leader bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if s, ok := r.slots[fp]; ok {
		return s, false
	}
	s = &slot{
		id:      uuid.NewString(),
		fp:      fp,
		started: now,
		done:    make(chan struct{}),
	}
	s.setState(StateLeading)
	r.slots[fp] = s
	return s, true
}

// remove deletes s if it is still the registered slot for its fingerprint.
func (r *registry) remove(s *slot) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.slots[s.fp] == s {
		delete(r.slots, s.fp)
	}
}

func (r *registry) get(fp calc.Fingerprint) (*slot, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.slots[fp]
	return s, ok
}

func (r *registry) snapshot() []Flight {
	r.mu.Lock()
	slots := make([]*slot, 0, len(r.slots))
	for _, s := range r.slots {
		slots = append(slots, s)
	}
	r.mu.Unlock()

	out := make([]Flight, len(slots))
	for i, s := range slots {
		st := s.State()
		out[i] = Flight{
			ID:          s.id,
			Fingerprint: s.fp,
			State:       st,
			StateName:   st.String(),
			Attempt:     int(s.attempt.Load()),
			Waiters:     int(s.waiters.Load()),
			Started:     s.started,
		}
	}
	slices.SortFunc(out, func(a, b Flight) int { return a.Started.Compare(b.Started) })
	return out
}
