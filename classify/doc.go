// Package classify maps raw engine diagnostics onto failure categories.
//
// A structured error code, when present and known, decides the category.
// Otherwise the diagnostic text is matched against an ordered list of
// case-insensitive patterns; the first match wins. Patterns are checked in
// category order InvalidInput, ResourceExhaustion, Instability,
// Convergence, so a diagnostic that mentions both an unusable input and a
// convergence failure is never retried. Text that matches nothing is
// Unknown.
package classify
