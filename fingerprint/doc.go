// Package fingerprint derives the identity of a calculation request.
//
// Two requests that differ only in presentation (map order, name case,
// basis spelling, coordinate noise below the configured precision, or
// resource hints) produce the same fingerprint. Any difference that can
// change the scientific result produces a different one.
//
// The generator is pure and total: it never fails and never consults
// state beyond its alias tables.
package fingerprint
