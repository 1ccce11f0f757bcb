package classify

import "github.com/jonwraymond/calccache/calc"

// RuleSpec is the configuration form of a Rule.
type RuleSpec struct {
	Name     string `yaml:"name" json:"name"`
	Category string `yaml:"category" json:"category"`
	Pattern  string `yaml:"pattern" json:"pattern"`
}

// DefaultRules returns the built-in pattern table in evaluation order.
func DefaultRules() []RuleSpec {
	return []RuleSpec{
		// Structurally unusable input.
		{"invalid-geometry", "invalid_input", `invalid geometry|geometry invalid|invalid z-matrix`},
		{"atoms-too-close", "invalid_input", `atoms?\b.*too close`},
		{"basis-not-found", "invalid_input", `basis set\s+['"]?\S*['"]?\s*not found|unknown basis|basis (?:set )?unavailable|no basis.*for element`},
		{"unknown-method", "invalid_input", `unknown method|invalid method|method (?:not available|not implemented)`},
		{"multiplicity", "invalid_input", `multiplicity.*(?:inconsistent|incompatible|impossible)|(?:inconsistent|impossible) (?:charge|multiplicity)`},

		// Memory, disk or wall-clock exhaustion.
		{"out-of-memory", "resource_exhaustion", `out of memory|(?:insufficient|not enough) memory|memory limit exceeded|(?:malloc|allocation) failed|cannot allocate|std::bad_alloc`},
		{"disk-full", "resource_exhaustion", `no space left|scratch (?:full|space exhausted)|disk quota|i/o error|write failed`},
		{"wall-clock", "resource_exhaustion", `wall[- ]?clock|time limit exceeded|timed out|killed by signal 9`},

		// Numerical divergence.
		{"linear-dependency", "instability", `linear(?:ly)? dependen|overlap eigenvalue|s_min_eigenvalue|basis nearly singular`},
		{"symmetry", "instability", `symmetry|point group|irrep`},
		{"non-finite", "instability", `\bnan\b|\binf\b|not a number|numerical instability|divide by zero|overflow`},
		{"geometry-collapse", "instability", `geometry collapse|(?:energy|gradient) diverge`},

		// Iteration caps.
		{"scf-convergence", "convergence", `(?:scf|density|energy)\b.*(?:not|failed to) converge|could not converge|did not converge|diis error|(?:scf )?iterations exceeded`},
		{"optimizer-convergence", "convergence", `optimization (?:did )?not converge|geom_maxiter exceeded|geometry optimization failed|step size too large|gradient threshold not met`},
		{"excited-state-convergence", "convergence", `(?:tddft|tdscf|davidson).*(?:not converge|failed)|root collapse|tdscf_maxiter exceeded`},
		{"cc-convergence", "convergence", `(?:ccsd|coupled cluster).*(?:not converge|failed)|amplitudes diverge`},
		{"maxiter", "convergence", `maxiter(?:ations)? (?:reached|exceeded)`},
	}
}

// DefaultCodes returns the built-in structured code table. Codes are
// matched case-insensitively and include the engine's exception names.
func DefaultCodes() map[string]calc.Category {
	return map[string]calc.Category{
		"E_SCF_CONVERGENCE":            calc.CategoryConvergence,
		"E_GEOM_CONVERGENCE":           calc.CategoryConvergence,
		"E_CONVERGENCE":                calc.CategoryConvergence,
		"ConvergenceError":             calc.CategoryConvergence,
		"SCFConvergenceError":          calc.CategoryConvergence,
		"OptimizationConvergenceError": calc.CategoryConvergence,
		"TDSCFConvergenceError":        calc.CategoryConvergence,

		"E_MEMORY":    calc.CategoryResourceExhaustion,
		"E_DISK":      calc.CategoryResourceExhaustion,
		"E_TIMEOUT":   calc.CategoryResourceExhaustion,
		"MemoryError": calc.CategoryResourceExhaustion,

		"E_INPUT":            calc.CategoryInvalidInput,
		"E_GEOMETRY":         calc.CategoryInvalidInput,
		"E_BASIS":            calc.CategoryInvalidInput,
		"E_METHOD":           calc.CategoryInvalidInput,
		"ValidationError":    calc.CategoryInvalidInput,
		"MissingMethodError": calc.CategoryInvalidInput,
		"ManagedMethodError": calc.CategoryInvalidInput,
		"BasisSetNotFound":   calc.CategoryInvalidInput,

		"E_LINEAR_DEPENDENCY": calc.CategoryInstability,
		"E_NUMERIC":           calc.CategoryInstability,
		"E_SYMMETRY":          calc.CategoryInstability,
	}
}
