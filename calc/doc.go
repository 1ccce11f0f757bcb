// Package calc defines the value types shared by the calculation cache:
// requests, fingerprints, failure categories, engine outcomes and the
// terminal outcomes delivered to callers.
//
// Every type here is a plain value. Requests are treated as immutable:
// helpers that change a request return a deep copy and leave the receiver
// untouched, so each retry attempt is an independent trial.
package calc
