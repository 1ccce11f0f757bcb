package recovery

import (
	"encoding/json"
	"math"
	"strings"

	"github.com/jonwraymond/calccache/calc"
)

// Step names in the default catalog.
const (
	StepIncreaseSCFMaxiter         = "increase-scf-maxiter"
	StepSCFDamping                 = "scf-damping"
	StepSCFDampingStrong           = "scf-damping-strong"
	StepLevelShift                 = "level-shift"
	StepLevelShiftStrong           = "level-shift-strong"
	StepSecondOrderSCF             = "second-order-scf"
	StepOptimizerStepReduction     = "optimizer-step-reduction"
	StepDensityFitting             = "density-fitting"
	StepReduceDIISSubspace         = "reduce-diis-subspace"
	StepReduceBasisSize            = "reduce-basis-size"
	StepCanonicalOrthogonalization = "canonical-orthogonalization"
	StepDisableSymmetry            = "disable-symmetry"
	StepSwitchInitialGuess         = "switch-initial-guess"
	StepRetryUnchanged             = "retry-unchanged"
)

// Engine option defaults assumed when a request does not set them.
const (
	defaultSCFMaxiter  = 100
	defaultGeomMaxiter = 50
	defaultStepLimit   = 0.3
	defaultDIISMaxVecs = 8
	minDIISMaxVecs     = 4
)

// Step is a named request mutation.
type Step struct {
	Name        string `json:"name"`
	Description string `json:"description"`

	// Apply returns a modified copy of the request. It must not modify its
	// argument.
	Apply func(calc.Request) calc.Request `json:"-"`
}

// Catalog is a set of steps addressable by name.
type Catalog map[string]Step

// DefaultCatalog returns every built-in step.
func DefaultCatalog() Catalog {
	steps := []Step{
		{
			Name:        StepIncreaseSCFMaxiter,
			Description: "Double the SCF iteration cap",
			Apply: func(r calc.Request) calc.Request {
				return r.WithOption("scf_maxiter", int(number(r, "scf_maxiter", defaultSCFMaxiter))*2)
			},
		},
		{
			Name:        StepSCFDamping,
			Description: "Apply 20% Fock matrix damping",
			Apply:       damping(20),
		},
		{
			Name:        StepSCFDampingStrong,
			Description: "Apply 40% Fock matrix damping",
			Apply:       damping(40),
		},
		{
			Name:        StepLevelShift,
			Description: "Apply a 0.5 hartree level shift",
			Apply:       levelShift(0.5),
		},
		{
			Name:        StepLevelShiftStrong,
			Description: "Apply a 0.6 hartree level shift",
			Apply:       levelShift(0.6),
		},
		{
			Name:        StepSecondOrderSCF,
			Description: "Switch to second-order SCF once roughly converged",
			Apply: func(r calc.Request) calc.Request {
				return r.WithOptions(map[string]any{
					"soscf":                   true,
					"soscf_start_convergence": 1e-2,
				})
			},
		},
		{
			Name:        StepOptimizerStepReduction,
			Description: "Halve the optimizer trust radius and allow 50% more steps",
			Apply: func(r calc.Request) calc.Request {
				return r.WithOptions(map[string]any{
					"step_limit":   number(r, "step_limit", defaultStepLimit) * 0.5,
					"geom_maxiter": int(number(r, "geom_maxiter", defaultGeomMaxiter) * 1.5),
				})
			},
		},
		{
			Name:        StepDensityFitting,
			Description: "Use density-fitted integrals to cut memory and disk use",
			Apply: func(r calc.Request) calc.Request {
				return r.WithOption("scf_type", "df")
			},
		},
		{
			Name:        StepReduceDIISSubspace,
			Description: "Halve the DIIS subspace",
			Apply: func(r calc.Request) calc.Request {
				vecs := int(number(r, "diis_max_vecs", defaultDIISMaxVecs)) / 2
				return r.WithOption("diis_max_vecs", max(minDIISMaxVecs, vecs))
			},
		},
		{
			Name:        StepReduceBasisSize,
			Description: "Step down to the next smaller basis in the same family",
			Apply: func(r calc.Request) calc.Request {
				return r.WithBasis(smallerBasis(r.Basis))
			},
		},
		{
			Name:        StepCanonicalOrthogonalization,
			Description: "Use canonical orthogonalization to drop near-linear dependencies",
			Apply: func(r calc.Request) calc.Request {
				return r.WithOptions(map[string]any{
					"s_orthogonalization": "canonical",
					"s_tolerance":         1e-5,
				})
			},
		},
		{
			Name:        StepDisableSymmetry,
			Description: "Run in C1 symmetry",
			Apply: func(r calc.Request) calc.Request {
				return r.WithOption("symmetry", "c1")
			},
		},
		{
			Name:        StepSwitchInitialGuess,
			Description: "Switch the SCF initial guess",
			Apply: func(r calc.Request) calc.Request {
				guess := "core"
				v, _ := r.Option("guess")
				if s, ok := v.(string); ok && strings.EqualFold(s, "core") {
					guess = "gwh"
				}
				return r.WithOption("guess", guess)
			},
		},
		{
			Name:        StepRetryUnchanged,
			Description: "Retry the request as is",
			Apply:       calc.Request.Clone,
		},
	}

	cat := make(Catalog, len(steps))
	for _, s := range steps {
		cat[s.Name] = s
	}
	return cat
}

func damping(pct float64) func(calc.Request) calc.Request {
	return func(r calc.Request) calc.Request {
		return r.WithOptions(map[string]any{
			"damping_percentage":  pct,
			"damping_convergence": 1e-4,
		})
	}
}

func levelShift(hartree float64) func(calc.Request) calc.Request {
	return func(r calc.Request) calc.Request {
		return r.WithOptions(map[string]any{
			"level_shift":             hartree,
			"level_shift_convergence": 1e-4,
		})
	}
}

// number reads a numeric option, falling back to def when it is absent or
// not numeric.
func number(r calc.Request, key string, def float64) float64 {
	v, ok := r.Option(key)
	if !ok {
		return def
	}
	var f float64
	switch n := v.(type) {
	case int:
		f = float64(n)
	case int32:
		f = float64(n)
	case int64:
		f = float64(n)
	case float32:
		f = float64(n)
	case float64:
		f = n
	case json.Number:
		parsed, err := n.Float64()
		if err != nil {
			return def
		}
		f = parsed
	default:
		return def
	}
	if math.IsNaN(f) || math.IsInf(f, 0) || f <= 0 {
		return def
	}
	return f
}

// basisDowngrades maps a basis to the next smaller member of its family.
var basisDowngrades = map[string]string{
	"cc-pv5z":     "cc-pvqz",
	"cc-pvqz":     "cc-pvtz",
	"cc-pvtz":     "cc-pvdz",
	"aug-cc-pv5z": "aug-cc-pvqz",
	"aug-cc-pvqz": "aug-cc-pvtz",
	"aug-cc-pvtz": "aug-cc-pvdz",
	"aug-cc-pvdz": "cc-pvdz",
	"def2-qzvpp":  "def2-tzvpp",
	"def2-qzvp":   "def2-tzvp",
	"def2-tzvpp":  "def2-tzvp",
	"def2-tzvp":   "def2-svp",
	"6-311++g**":  "6-31++g**",
	"6-311+g**":   "6-31+g**",
	"6-311+g*":    "6-31+g*",
	"6-311g**":    "6-31g**",
	"6-311g*":     "6-31g*",
	"6-311g":      "6-31g",
	"6-31++g**":   "6-31+g**",
	"6-31+g**":    "6-31g**",
	"6-31+g*":     "6-31g*",
	"6-31g**":     "6-31g*",
	"6-31g*":      "6-31g",
	"6-31g":       "3-21g",
	"3-21g":       "sto-3g",
}

// smallerBasis returns the next smaller basis, or basis itself when none
// is known.
func smallerBasis(basis string) string {
	key := strings.ToLower(strings.TrimSpace(basis))
	if next, ok := basisDowngrades[key]; ok {
		return next
	}
	if rest, ok := strings.CutPrefix(key, "aug-"); ok {
		return rest
	}
	return basis
}
