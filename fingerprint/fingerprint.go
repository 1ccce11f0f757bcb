package fingerprint

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"math"
	"slices"
	"strings"

	"github.com/jonwraymond/calccache/calc"
)

// DefaultPrecision is the number of decimals coordinates are rounded to.
const DefaultPrecision = 6

// KeyPrefix prefixes every store key derived from a fingerprint.
const KeyPrefix = "calc:"

// canonicalVersion is bumped whenever the canonical form changes, so old
// store entries stop matching instead of colliding.
const canonicalVersion = 1

// Config controls canonicalization.
type Config struct {
	// Precision is the number of decimals coordinates are rounded to.
	// Zero means DefaultPrecision.
	Precision int `yaml:"precision"`

	// BasisAliases overrides the basis alias table. Nil means the defaults.
	BasisAliases map[string]string `yaml:"basis_aliases"`

	// MethodAliases overrides the method alias table. Nil means the defaults.
	MethodAliases map[string]string `yaml:"method_aliases"`
}

// Generator computes request fingerprints.
//
// Contract:
// - Determinism: equal canonical forms always yield equal fingerprints.
// - Concurrency: safe for concurrent use; the generator is immutable.
type Generator struct {
	scale  float64
	basis  map[string]string
	method map[string]string
}

// New creates a generator from cfg.
func New(cfg Config) *Generator {
	precision := cfg.Precision
	if precision <= 0 {
		precision = DefaultPrecision
	}
	basis := cfg.BasisAliases
	if basis == nil {
		basis = DefaultBasisAliases()
	}
	method := cfg.MethodAliases
	if method == nil {
		method = DefaultMethodAliases()
	}
	return &Generator{
		scale:  math.Pow10(precision),
		basis:  lowerKeys(basis),
		method: lowerKeys(method),
	}
}

// NewDefault creates a generator with default precision and alias tables.
func NewDefault() *Generator {
	return New(Config{})
}

// Fingerprint returns the SHA-256 of the canonical form of req.
func (g *Generator) Fingerprint(req calc.Request) calc.Fingerprint {
	return calc.Fingerprint(sha256.Sum256(g.Canonical(req)))
}

// Canonical returns the canonical serialization of req. It is exposed for
// auditing why two requests do or do not share a fingerprint.
func (g *Generator) Canonical(req calc.Request) []byte {
	doc := map[string]any{
		"v":            canonicalVersion,
		"kind":         g.Kind(req.EffectiveKind()),
		"method":       g.Method(req.Method),
		"basis":        g.Basis(req.Basis),
		"charge":       req.Molecule.Charge,
		"multiplicity": req.Molecule.Multiplicity,
		"geometry":     g.geometry(req.Molecule),
		"options":      normalizeOptions(req.Options),
	}
	return encode(doc)
}

// Labels returns the canonical labels stored alongside req's outcome.
func (g *Generator) Labels(req calc.Request) calc.Labels {
	return calc.Labels{
		Kind:     g.Kind(req.EffectiveKind()),
		Method:   g.Method(req.Method),
		Basis:    g.Basis(req.Basis),
		Molecule: g.MoleculeHash(req.Molecule),
	}
}

// MoleculeHash identifies a molecule regardless of method, basis and
// options: the hex SHA-256 of its canonical geometry, charge and
// multiplicity.
func (g *Generator) MoleculeHash(m calc.Molecule) string {
	sum := sha256.Sum256(encode(map[string]any{
		"v":            canonicalVersion,
		"charge":       m.Charge,
		"multiplicity": m.Multiplicity,
		"geometry":     g.geometry(m),
	}))
	return hex.EncodeToString(sum[:])
}

// CanonicalLabels rewrites the non-empty fields of l the way Labels writes
// them, so user-supplied values can be compared with stored labels.
func (g *Generator) CanonicalLabels(l calc.Labels) calc.Labels {
	if l.Kind != "" {
		l.Kind = g.Kind(l.Kind)
	}
	if l.Method != "" {
		l.Method = g.Method(l.Method)
	}
	if l.Basis != "" {
		l.Basis = g.Basis(l.Basis)
	}
	l.Molecule = normalizeName(l.Molecule)
	return l
}

// Kind returns the canonical spelling of a calculation kind.
func (g *Generator) Kind(name string) string {
	return normalizeName(name)
}

// Method returns the canonical spelling of a method name.
func (g *Generator) Method(name string) string {
	n := normalizeName(name)
	if alias, ok := g.method[n]; ok {
		return alias
	}
	return n
}

// Basis returns the canonical spelling of a basis set name.
func (g *Generator) Basis(name string) string {
	n := strings.ReplaceAll(normalizeName(name), "_", "-")
	if alias, ok := g.basis[n]; ok {
		return alias
	}
	if strings.HasPrefix(n, "aug") && !strings.HasPrefix(n, "aug-") {
		n = "aug-" + n[len("aug"):]
		if alias, ok := g.basis[n]; ok {
			return alias
		}
	}
	return n
}

// Key renders the store key for fp.
func Key(fp calc.Fingerprint) string {
	return KeyPrefix + fp.String()
}

// ParseKey is the inverse of Key.
func ParseKey(key string) (calc.Fingerprint, error) {
	return calc.ParseFingerprint(strings.TrimPrefix(key, KeyPrefix))
}

type canonicalAtom struct {
	element string
	x, y, z float64
}

func (g *Generator) geometry(m calc.Molecule) []any {
	atoms := make([]canonicalAtom, len(m.Atoms))
	for i, a := range m.Atoms {
		atoms[i] = canonicalAtom{
			element: normalizeElement(a.Element),
			x:       g.round(a.X),
			y:       g.round(a.Y),
			z:       g.round(a.Z),
		}
	}
	if m.OrderInsensitive {
		slices.SortFunc(atoms, compareAtoms)
	}

	out := make([]any, len(atoms))
	for i, a := range atoms {
		out[i] = []any{a.element, a.x, a.y, a.z}
	}
	return out
}

func (g *Generator) round(v float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return v
	}
	r := math.Round(v*g.scale) / g.scale
	if r == 0 {
		return 0 // drops the sign of -0
	}
	return r
}

func compareAtoms(a, b canonicalAtom) int {
	if c := strings.Compare(a.element, b.element); c != 0 {
		return c
	}
	for _, pair := range [][2]float64{{a.x, b.x}, {a.y, b.y}, {a.z, b.z}} {
		switch {
		case pair[0] < pair[1]:
			return -1
		case pair[0] > pair[1]:
			return 1
		}
	}
	return 0
}

func normalizeName(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// normalizeElement renders "cl", "CL" and " Cl " as "Cl".
func normalizeElement(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + strings.ToLower(s[1:])
}

func lowerKeys(m map[string]string) map[string]string {
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[normalizeName(k)] = normalizeName(v)
	}
	return out
}

// normalizeOptions lower-cases keys and normalizes values. When two keys
// collide after lower-casing, the one that sorts last in its original
// spelling wins, so the result does not depend on map iteration order.
func normalizeOptions(opts map[string]any) map[string]any {
	keys := make([]string, 0, len(opts))
	for k := range opts {
		keys = append(keys, k)
	}
	slices.Sort(keys)

	out := make(map[string]any, len(opts))
	for _, k := range keys {
		out[normalizeName(k)] = normalizeValue(opts[k])
	}
	return out
}

func normalizeValue(v any) any {
	switch val := v.(type) {
	case nil:
		return nil
	case bool:
		return val
	case string:
		return normalizeName(val)
	case json.Number:
		f, err := val.Float64()
		if err != nil {
			return normalizeName(val.String())
		}
		return normalizeFloat(f)
	case float64:
		return normalizeFloat(val)
	case float32:
		return normalizeFloat(float64(val))
	case int:
		return normalizeFloat(float64(val))
	case int8:
		return normalizeFloat(float64(val))
	case int16:
		return normalizeFloat(float64(val))
	case int32:
		return normalizeFloat(float64(val))
	case int64:
		return normalizeFloat(float64(val))
	case uint:
		return normalizeFloat(float64(val))
	case uint8:
		return normalizeFloat(float64(val))
	case uint16:
		return normalizeFloat(float64(val))
	case uint32:
		return normalizeFloat(float64(val))
	case uint64:
		return normalizeFloat(float64(val))
	case map[string]any:
		return normalizeOptions(val)
	case map[string]string:
		m := make(map[string]any, len(val))
		for k, s := range val {
			m[k] = s
		}
		return normalizeOptions(m)
	case []any:
		out := make([]any, len(val))
		for i, inner := range val {
			out[i] = normalizeValue(inner)
		}
		return out
	case []string:
		out := make([]any, len(val))
		for i, inner := range val {
			out[i] = normalizeValue(inner)
		}
		return out
	case []float64:
		out := make([]any, len(val))
		for i, inner := range val {
			out[i] = normalizeFloat(inner)
		}
		return out
	case []int:
		out := make([]any, len(val))
		for i, inner := range val {
			out[i] = normalizeFloat(float64(inner))
		}
		return out
	default:
		// Unsupported value kinds still fingerprint deterministically via
		// their JSON form, or their %v form when not encodable.
		return opaque(val)
	}
}

// normalizeFloat maps -0 to 0 and non-finite values to stable strings,
// since JSON cannot encode them.
func normalizeFloat(f float64) any {
	switch {
	case math.IsNaN(f):
		return "nan"
	case math.IsInf(f, 1):
		return "+inf"
	case math.IsInf(f, -1):
		return "-inf"
	case f == 0:
		return float64(0)
	default:
		return f
	}
}
