// Package recovery holds the ordered recovery strategies tried after each
// failure category.
//
// A Step is a named, pure parameter mutation. A Table maps each category to
// the steps to try, in order. Steps are always applied to the original
// request, never stacked on a previous mutation, so every retry is an
// independent trial.
package recovery
