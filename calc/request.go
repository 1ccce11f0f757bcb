package calc

import (
	"maps"
	"slices"
	"strings"
)

// DefaultKind is the calculation kind assumed when Request.Kind is empty.
const DefaultKind = "energy"

// Atom is a single nucleus position in Angstrom.
type Atom struct {
	Element string  `json:"element" yaml:"element"`
	X       float64 `json:"x" yaml:"x"`
	Y       float64 `json:"y" yaml:"y"`
	Z       float64 `json:"z" yaml:"z"`
}

// Molecule is an ordered geometry plus electronic state.
type Molecule struct {
	Atoms        []Atom `json:"atoms" yaml:"atoms"`
	Charge       int    `json:"charge" yaml:"charge"`
	Multiplicity int    `json:"multiplicity" yaml:"multiplicity"`

	// OrderInsensitive allows atoms to be reordered during canonicalization.
	// Atom order affects some outputs, so the default is order-sensitive.
	OrderInsensitive bool `json:"order_insensitive,omitempty" yaml:"order_insensitive"`
}

// Resources are execution hints for the engine. They never change the
// scientific result and are not part of the fingerprint.
type Resources struct {
	MemoryMB int `json:"memory_mb,omitempty" yaml:"memory_mb"`
	Threads  int `json:"threads,omitempty" yaml:"threads"`
}

// Request describes one calculation.
//
// Option values are restricted to numbers, strings, booleans and nested
// slices or maps of those.
type Request struct {
	Kind      string         `json:"kind,omitempty" yaml:"kind"`
	Molecule  Molecule       `json:"molecule" yaml:"molecule"`
	Method    string         `json:"method" yaml:"method"`
	Basis     string         `json:"basis" yaml:"basis"`
	Options   map[string]any `json:"options,omitempty" yaml:"options"`
	Resources Resources      `json:"resources,omitempty" yaml:"resources"`
}

// EffectiveKind returns Kind, defaulting to DefaultKind.
func (r Request) EffectiveKind() string {
	if r.Kind == "" {
		return DefaultKind
	}
	return r.Kind
}

// Clone returns a deep copy of the request.
func (r Request) Clone() Request {
	out := r
	out.Molecule.Atoms = slices.Clone(r.Molecule.Atoms)
	if r.Options != nil {
		out.Options = make(map[string]any, len(r.Options))
		for k, v := range r.Options {
			out.Options[k] = cloneValue(v)
		}
	}
	return out
}

// Option returns the named option value. Option names are
// case-insensitive: an exact match wins, otherwise the matching key that
// sorts last is used, the same choice fingerprinting makes.
func (r Request) Option(name string) (any, bool) {
	if v, ok := r.Options[name]; ok {
		return v, true
	}
	var (
		found string
		ok    bool
	)
	for k := range r.Options {
		if strings.EqualFold(k, name) && (!ok || k > found) {
			found, ok = k, true
		}
	}
	if !ok {
		return nil, false
	}
	return r.Options[found], true
}

// WithOption returns a copy of the request with name set to value. Other
// spellings of name are removed.
func (r Request) WithOption(name string, value any) Request {
	out := r.Clone()
	if out.Options == nil {
		out.Options = make(map[string]any, 1)
	}
	dropFolded(out.Options, name)
	out.Options[name] = cloneValue(value)
	return out
}

// WithOptions returns a copy of the request with every entry of opts set,
// as WithOption does.
func (r Request) WithOptions(opts map[string]any) Request {
	out := r.Clone()
	if out.Options == nil {
		out.Options = make(map[string]any, len(opts))
	}
	for k, v := range opts {
		dropFolded(out.Options, k)
		out.Options[k] = cloneValue(v)
	}
	return out
}

// WithoutOption returns a copy of the request with every spelling of name
// removed.
func (r Request) WithoutOption(name string) Request {
	out := r.Clone()
	dropFolded(out.Options, name)
	return out
}

func dropFolded(opts map[string]any, name string) {
	for k := range opts {
		if strings.EqualFold(k, name) {
			delete(opts, k)
		}
	}
}

// WithBasis returns a copy of the request using basis.
func (r Request) WithBasis(basis string) Request {
	out := r.Clone()
	out.Basis = basis
	return out
}

// WithResources returns a copy of the request using res.
func (r Request) WithResources(res Resources) Request {
	out := r.Clone()
	out.Resources = res
	return out
}

func cloneValue(v any) any {
	switch val := v.(type) {
	case map[string]any:
		m := make(map[string]any, len(val))
		for k, inner := range val {
			m[k] = cloneValue(inner)
		}
		return m
	case []any:
		s := make([]any, len(val))
		for i, inner := range val {
			s[i] = cloneValue(inner)
		}
		return s
	case []float64:
		return slices.Clone(val)
	case []int:
		return slices.Clone(val)
	case []string:
		return slices.Clone(val)
	case map[string]string:
		return maps.Clone(val)
	default:
		return v
	}
}
