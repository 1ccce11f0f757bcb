// Package engine adapts calculation engines to calc.Engine.
//
// Func wraps a plain function. Process runs an external driver per
// attempt, exchanging JSON over stdin and stdout. Instrument adds spans
// and logs around any engine.
package engine
