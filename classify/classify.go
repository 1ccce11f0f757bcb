package classify

import (
	"errors"
	"fmt"
	"regexp"
	"slices"
	"strings"

	"github.com/jonwraymond/calccache/calc"
)

// ErrInvalidRule indicates a rule that cannot be compiled.
var ErrInvalidRule = errors.New("classify: invalid rule")

// Source says which stage of classification decided a category.
type Source string

const (
	SourceCode    Source = "code"
	SourcePattern Source = "pattern"
	SourceDefault Source = "default"
)

// Match explains a classification.
type Match struct {
	Category calc.Category `json:"category"`
	Source   Source        `json:"source"`

	// Rule is the matching code or rule name; empty for SourceDefault.
	Rule string `json:"rule,omitempty"`
}

// Rule is a compiled pattern rule.
type Rule struct {
	Name     string
	Category calc.Category
	re       *regexp.Regexp
}

// Pattern returns the rule's regular expression source.
func (r Rule) Pattern() string {
	return r.re.String()
}

// Classifier maps diagnostics to categories.
//
// Contract:
// - Concurrency: safe for concurrent use; the classifier is immutable.
// - Totality: Classify never panics and always returns a category.
type Classifier struct {
	codes map[string]calc.Category
	rules []Rule
}

// New compiles specs and codes into a classifier. Rules are stably
// reordered into category evaluation order; within a category their
// configured order is kept.
func New(specs []RuleSpec, codes map[string]calc.Category) (*Classifier, error) {
	rules := make([]Rule, 0, len(specs))
	for i, spec := range specs {
		cat, err := calc.ParseCategory(spec.Category)
		if err != nil {
			return nil, fmt.Errorf("%w: rule %d (%s): %v", ErrInvalidRule, i, spec.Name, err)
		}
		if cat == calc.CategoryUnknown {
			return nil, fmt.Errorf("%w: rule %d (%s): unknown is the fallback category", ErrInvalidRule, i, spec.Name)
		}
		if strings.TrimSpace(spec.Pattern) == "" {
			return nil, fmt.Errorf("%w: rule %d (%s): empty pattern", ErrInvalidRule, i, spec.Name)
		}
		re, err := regexp.Compile("(?i)" + spec.Pattern)
		if err != nil {
			return nil, fmt.Errorf("%w: rule %d (%s): %v", ErrInvalidRule, i, spec.Name, err)
		}
		name := spec.Name
		if name == "" {
			name = fmt.Sprintf("%s-%d", cat, i)
		}
		rules = append(rules, Rule{Name: name, Category: cat, re: re})
	}
	slices.SortStableFunc(rules, func(a, b Rule) int {
		return precedence(a.Category) - precedence(b.Category)
	})

	normalized := make(map[string]calc.Category, len(codes))
	for code, cat := range codes {
		normalized[normalizeCode(code)] = cat
	}

	return &Classifier{codes: normalized, rules: rules}, nil
}

// NewDefault returns a classifier built from DefaultRules and DefaultCodes.
func NewDefault() *Classifier {
	c, err := New(DefaultRules(), DefaultCodes())
	if err != nil {
		panic(err) // built-in tables are covered by tests
	}
	return c
}

// Classify returns the category for a diagnostic and optional code.
func (c *Classifier) Classify(diagnostic, code string) calc.Category {
	return c.Explain(diagnostic, code).Category
}

// Explain is Classify plus the stage and rule that decided it.
func (c *Classifier) Explain(diagnostic, code string) Match {
	if code != "" {
		if cat, ok := c.codes[normalizeCode(code)]; ok {
			return Match{Category: cat, Source: SourceCode, Rule: code}
		}
	}
	for _, r := range c.rules {
		if r.re.MatchString(diagnostic) {
			return Match{Category: r.Category, Source: SourcePattern, Rule: r.Name}
		}
	}
	return Match{Category: calc.CategoryUnknown, Source: SourceDefault}
}

// Rules returns the compiled rules in evaluation order.
func (c *Classifier) Rules() []Rule {
	return slices.Clone(c.rules)
}

func precedence(cat calc.Category) int {
	switch cat {
	case calc.CategoryInvalidInput:
		return 0
	case calc.CategoryResourceExhaustion:
		return 1
	case calc.CategoryInstability:
		return 2
	case calc.CategoryConvergence:
		return 3
	default:
		return 4
	}
}

func normalizeCode(code string) string {
	return strings.ToLower(strings.TrimSpace(code))
}
