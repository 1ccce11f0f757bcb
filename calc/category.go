package calc

import (
	"fmt"
	"strings"
)

// Category classifies an engine failure.
type Category int

const (
	// CategoryUnknown matches no known failure pattern.
	CategoryUnknown Category = iota
	// CategoryConvergence means an iterative procedure hit its iteration cap
	// before reaching the numeric threshold.
	CategoryConvergence
	// CategoryResourceExhaustion means memory, disk or time ran out.
	CategoryResourceExhaustion
	// CategoryInvalidInput means the method/basis/geometry combination is
	// structurally unsupported. It is never retried.
	CategoryInvalidInput
	// CategoryInstability means numerical divergence such as geometry
	// collapse or symmetry breaking.
	CategoryInstability
)

// Categories lists every category in declaration order.
var Categories = []Category{
	CategoryUnknown,
	CategoryConvergence,
	CategoryResourceExhaustion,
	CategoryInvalidInput,
	CategoryInstability,
}

// String returns the configuration name of the category.
func (c Category) String() string {
	switch c {
	case CategoryConvergence:
		return "convergence"
	case CategoryResourceExhaustion:
		return "resource_exhaustion"
	case CategoryInvalidInput:
		return "invalid_input"
	case CategoryInstability:
		return "instability"
	default:
		return "unknown"
	}
}

// Recoverable reports whether a retry can help. Only InvalidInput is fatal.
func (c Category) Recoverable() bool {
	return c != CategoryInvalidInput
}

// ParseCategory parses a category name. Dashes, spaces and case are ignored.
func ParseCategory(s string) (Category, error) {
	norm := strings.ToLower(strings.TrimSpace(s))
	norm = strings.NewReplacer("-", "_", " ", "_").Replace(norm)
	switch norm {
	case "convergence":
		return CategoryConvergence, nil
	case "resource_exhaustion", "resources", "resource":
		return CategoryResourceExhaustion, nil
	case "invalid_input", "invalid":
		return CategoryInvalidInput, nil
	case "instability", "unstable":
		return CategoryInstability, nil
	case "unknown":
		return CategoryUnknown, nil
	default:
		return CategoryUnknown, fmt.Errorf("%w: %q", ErrUnknownCategory, s)
	}
}

// MarshalText implements encoding.TextMarshaler.
func (c Category) MarshalText() ([]byte, error) {
	return []byte(c.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (c *Category) UnmarshalText(text []byte) error {
	parsed, err := ParseCategory(string(text))
	if err != nil {
		return err
	}
	*c = parsed
	return nil
}
