// Package flight coordinates calculations so that each distinct request is
// computed at most once at a time.
//
// Submit consults the cache, then either joins the in-flight computation
// for the same fingerprint as a follower or becomes its leader. The leader
// runs the bounded recovery loop on a context detached from its caller,
// commits the terminal outcome to the cache and wakes every waiter. A
// caller that stops waiting receives a Timeout outcome; the computation
// carries on and its result is served from the cache afterwards.
package flight
