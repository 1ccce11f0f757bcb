package health

import (
	"context"
	"fmt"
	"time"

	"github.com/jonwraymond/calccache/resilience"
)

// Status represents the health status of a component.
type Status int

const (
	// StatusHealthy indicates the component is functioning normally.
	StatusHealthy Status = iota
	// StatusDegraded indicates the component works but with reduced capacity.
	StatusDegraded
	// StatusUnhealthy indicates the component cannot do its job.
	StatusUnhealthy
)

// String returns the string representation of the status.
func (s Status) String() string {
	switch s {
	case StatusHealthy:
		return "healthy"
	case StatusDegraded:
		return "degraded"
	case StatusUnhealthy:
		return "unhealthy"
	default:
		return "unknown"
	}
}

// Result contains the outcome of a health check.
type Result struct {
	Status    Status
	Message   string
	Details   map[string]any
	Duration  time.Duration
	Timestamp time.Time
	Error     error
}

// Healthy creates a healthy result.
func Healthy(message string) Result {
	return Result{Status: StatusHealthy, Message: message, Timestamp: time.Now()}
}

// Degraded creates a degraded result.
func Degraded(message string) Result {
	return Result{Status: StatusDegraded, Message: message, Timestamp: time.Now()}
}

// Unhealthy creates an unhealthy result.
func Unhealthy(message string, err error) Result {
	return Result{Status: StatusUnhealthy, Message: message, Error: err, Timestamp: time.Now()}
}

// WithDetails adds details to a result.
func (r Result) WithDetails(details map[string]any) Result {
	r.Details = details
	return r
}

// Checker is the interface for health checks.
type Checker interface {
	Name() string
	Check(ctx context.Context) Result
}

// CheckerFunc adapts a function to Checker.
type CheckerFunc struct {
	name string
	fn   func(context.Context) Result
}

// NewCheckerFunc creates a CheckerFunc.
func NewCheckerFunc(name string, fn func(context.Context) Result) *CheckerFunc {
	return &CheckerFunc{name: name, fn: fn}
}

// Name returns the checker name.
func (f *CheckerFunc) Name() string { return f.name }

// Check runs the function.
func (f *CheckerFunc) Check(ctx context.Context) Result { return f.fn(ctx) }

// Pinger is anything that can report reachability, such as cache.Store.
type Pinger interface {
	Ping(ctx context.Context) error
}

// NewPingChecker reports unhealthy when p.Ping fails.
func NewPingChecker(name string, p Pinger) *CheckerFunc {
	return NewCheckerFunc(name, func(ctx context.Context) Result {
		if err := p.Ping(ctx); err != nil {
			return Unhealthy(fmt.Sprintf("%s unreachable", name), fmt.Errorf("%w: %w", ErrUnreachable, err))
		}
		return Healthy(fmt.Sprintf("%s reachable", name))
	})
}

// NewSaturationChecker reports degraded when bulkhead usage reaches warn
// (a fraction in (0, 1]) and while requests are being rejected at full
// capacity. Saturation never makes the service unhealthy.
func NewSaturationChecker(name string, stats func() resilience.BulkheadStats, warn float64) *CheckerFunc {
	if warn <= 0 || warn > 1 {
		warn = 0.8
	}
	return NewCheckerFunc(name, func(context.Context) Result {
		st := stats()
		usage := st.Saturation()
		details := map[string]any{
			"active":   st.Active,
			"capacity": st.Capacity,
			"peak":     st.Peak,
			"rejected": st.Rejected,
		}
		if usage >= warn {
			return Degraded(fmt.Sprintf("%s at %.0f%% capacity", name, usage*100)).WithDetails(details)
		}
		return Healthy(fmt.Sprintf("%s at %.0f%% capacity", name, usage*100)).WithDetails(details)
	})
}
