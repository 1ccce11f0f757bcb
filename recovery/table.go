package recovery

import (
	"errors"
	"fmt"
	"slices"

	"github.com/jonwraymond/calccache/calc"
)

// List length bounds for recoverable categories other than Unknown.
const (
	MinSteps = 2
	MaxSteps = 5
)

// ErrInvalidTable indicates a strategy table that violates its bounds or
// names a step the catalog does not have.
var ErrInvalidTable = errors.New("recovery: invalid strategy table")

// Table maps failure categories to ordered recovery steps.
//
// Contract:
// - Concurrency: safe for concurrent use; the table is immutable.
// - InvalidInput always maps to no steps; Unknown maps to exactly one.
type Table struct {
	steps map[calc.Category][]Step
}

// DefaultNames returns the built-in category to step-name mapping.
func DefaultNames() map[calc.Category][]string {
	return map[calc.Category][]string{
		calc.CategoryConvergence: {
			StepIncreaseSCFMaxiter,
			StepSCFDamping,
			StepLevelShift,
			StepSecondOrderSCF,
			StepOptimizerStepReduction,
		},
		calc.CategoryResourceExhaustion: {
			StepDensityFitting,
			StepReduceDIISSubspace,
			StepReduceBasisSize,
		},
		calc.CategoryInstability: {
			StepCanonicalOrthogonalization,
			StepDisableSymmetry,
			StepSwitchInitialGuess,
		},
		calc.CategoryUnknown: {
			StepRetryUnchanged,
		},
	}
}

// NewTable resolves names against catalog and validates the bounds.
// Categories absent from names get the default list.
func NewTable(catalog Catalog, names map[calc.Category][]string) (*Table, error) {
	merged := DefaultNames()
	for cat, list := range names {
		merged[cat] = list
	}

	t := &Table{steps: make(map[calc.Category][]Step, len(merged))}
	for cat, list := range merged {
		if err := checkBounds(cat, len(list)); err != nil {
			return nil, err
		}
		steps := make([]Step, 0, len(list))
		seen := make(map[string]bool, len(list))
		for _, name := range list {
			step, ok := catalog[name]
			if !ok || step.Apply == nil {
				return nil, fmt.Errorf("%w: %s: unknown step %q", ErrInvalidTable, cat, name)
			}
			if seen[name] {
				return nil, fmt.Errorf("%w: %s: duplicate step %q", ErrInvalidTable, cat, name)
			}
			seen[name] = true
			steps = append(steps, step)
		}
		t.steps[cat] = steps
	}
	return t, nil
}

// NewTableFromConfig is NewTable for category names as they appear in
// configuration files.
func NewTableFromConfig(catalog Catalog, names map[string][]string) (*Table, error) {
	parsed := make(map[calc.Category][]string, len(names))
	for name, list := range names {
		cat, err := calc.ParseCategory(name)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidTable, err)
		}
		parsed[cat] = list
	}
	return NewTable(catalog, parsed)
}

// DefaultTable returns the built-in table.
func DefaultTable() *Table {
	t, err := NewTable(DefaultCatalog(), nil)
	if err != nil {
		panic(err) // built-in tables are covered by tests
	}
	return t
}

// StrategiesFor returns the ordered steps for cat. The result is a copy.
func (t *Table) StrategiesFor(cat calc.Category) []Step {
	return slices.Clone(t.steps[cat])
}

// Names returns the step names for cat.
func (t *Table) Names(cat calc.Category) []string {
	steps := t.steps[cat]
	out := make([]string, len(steps))
	for i, s := range steps {
		out[i] = s.Name
	}
	return out
}

// MaxSteps returns the length of the longest list in the table.
func (t *Table) MaxSteps() int {
	n := 0
	for _, steps := range t.steps {
		n = max(n, len(steps))
	}
	return n
}

func checkBounds(cat calc.Category, n int) error {
	switch cat {
	case calc.CategoryInvalidInput:
		if n != 0 {
			return fmt.Errorf("%w: %s must have no steps", ErrInvalidTable, cat)
		}
	case calc.CategoryUnknown:
		if n != 1 {
			return fmt.Errorf("%w: %s must have exactly one step, got %d", ErrInvalidTable, cat, n)
		}
	default:
		if n < MinSteps || n > MaxSteps {
			return fmt.Errorf("%w: %s must have %d-%d steps, got %d", ErrInvalidTable, cat, MinSteps, MaxSteps, n)
		}
	}
	return nil
}
