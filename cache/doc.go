// Package cache stores terminal calculation outcomes keyed by fingerprint.
//
// A Store keeps a bounded in-memory index with least-recently-used
// eviction and per-entry expiry, optionally backed by a durable Backend.
// Lookups never fail: a backend error is logged and reported as a miss.
// Commits always update memory; a durable write failure is returned as an
// error wrapping calc.ErrPersistence while the in-memory entry stays.
//
// Backends live in sub-packages of cache/backends; MemoryBackend is the
// in-process one.
package cache
