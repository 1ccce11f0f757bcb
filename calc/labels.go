package calc

// Labels describe what a cached outcome was computed for. They hold the
// canonical kind, method and basis of the request plus a hash of its
// molecule, so entries can be dropped in bulk when one of those changes.
type Labels struct {
	Kind     string `json:"kind,omitempty"`
	Method   string `json:"method,omitempty"`
	Basis    string `json:"basis,omitempty"`
	Molecule string `json:"molecule,omitempty"`
}

// IsZero reports whether no label is set.
func (l Labels) IsZero() bool {
	return l == Labels{}
}
