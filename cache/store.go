package cache

import (
	"context"
	"errors"
	"fmt"
	"io"
	"slices"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/hashicorp/golang-lru/simplelru"
	"golang.org/x/sync/singleflight"

	"github.com/jonwraymond/calccache/calc"
	"github.com/jonwraymond/calccache/fingerprint"
	"github.com/jonwraymond/calccache/observe"
	"github.com/jonwraymond/calccache/resilience"
)

// Store is the fingerprint-keyed outcome cache.
//
// Contract:
// - Concurrency: safe for concurrent use. Backend I/O never runs under the
//   index lock.
// - Lookup never returns an error; backend failures degrade to misses.
// - Commit rejects outcomes that are not cacheable with ErrNotCacheable.
type Store struct {
	policy  Policy
	backend Backend
	guard   *resilience.Guard
	logger  observe.Logger
	now     func() time.Time

	mu    sync.Mutex
	index *simplelru.LRU
	bytes int64

	reads singleflight.Group

	hits            atomic.Int64
	misses          atomic.Int64
	expired         atomic.Int64
	evictions       atomic.Int64
	persistFailures atomic.Int64
}

// Option configures a Store.
type Option func(*Store)

// WithBackend adds a durable tier.
func WithBackend(b Backend) Option {
	return func(s *Store) { s.backend = b }
}

// WithGuard wraps every backend call.
func WithGuard(g *resilience.Guard) Option {
	return func(s *Store) {
		if g != nil {
			s.guard = g
		}
	}
}

// WithLogger sets the logger for degraded backend reads and failed writes.
func WithLogger(l observe.Logger) Option {
	return func(s *Store) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		if now != nil {
			s.now = now
		}
	}
}

// NewStore creates a store. Policy zero values select defaults for
// capacity only; zero TTLs mean no expiry.
func NewStore(p Policy, opts ...Option) (*Store, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	s := &Store{
		policy: p,
		guard:  resilience.NewGuard(),
		logger: observe.NopLogger(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	index, err := simplelru.NewLRU(p.capacity(), s.onRemove)
	if err != nil {
		return nil, fmt.Errorf("cache: %w", err)
	}
	s.index = index
	return s, nil
}

// Policy returns the store's policy.
func (s *Store) Policy() Policy {
	return s.policy
}

// Lookup returns the live entry for fp. A hit refreshes the entry's
// recency. Expired entries are removed and reported as misses.
func (s *Store) Lookup(ctx context.Context, fp calc.Fingerprint) (Entry, bool) {
	if e, ok := s.lookupMemory(fp); ok {
		s.hits.Add(1)
		return e, true
	}
	if s.backend == nil {
		s.misses.Add(1)
		return Entry{}, false
	}

	key := fingerprint.Key(fp)
	v, _, _ := s.reads.Do(key, func() (any, error) {
		return s.readThrough(ctx, fp, key), nil
	})
	e, _ := v.(*Entry)
	if e == nil {
		s.misses.Add(1)
		return Entry{}, false
	}
	s.hits.Add(1)
	return e.clone(), true
}

func (s *Store) lookupMemory(fp calc.Fingerprint) (Entry, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	v, ok := s.index.Get(fp)
	if !ok {
		return Entry{}, false
	}
	e := v.(*Entry)
	now := s.now()
	if e.Expired(now) {
		s.index.Remove(fp)
		s.expired.Add(1)
		return Entry{}, false
	}
	e.LastAccessedAt = now
	return e.clone(), true
}

// readThrough loads fp from the backend and promotes it into memory.
// It returns nil on miss.
func (s *Store) readThrough(ctx context.Context, fp calc.Fingerprint, key string) *Entry {
	var (
		data  []byte
		found bool
	)
	err := s.guard.Do(ctx, func(ctx context.Context) error {
		var err error
		data, found, err = s.backend.Get(ctx, key)
		return err
	})
	if err != nil {
		s.logger.Warn(ctx, "cache backend read failed",
			observe.F("fingerprint", fp.Short()),
			observe.F("error", err.Error()))
		return nil
	}
	if !found {
		return nil
	}

	e, err := Decode(data)
	if err != nil || e.Fingerprint != fp {
		s.logger.Warn(ctx, "discarding corrupt cache entry",
			observe.F("fingerprint", fp.Short()))
		_ = s.guard.Do(ctx, func(ctx context.Context) error {
			return s.backend.Delete(ctx, key)
		})
		return nil
	}
	now := s.now()
	if e.Expired(now) {
		return nil
	}
	e.LastAccessedAt = now
	if s.policy.MaxBytes > 0 && e.Size > s.policy.MaxBytes {
		return &e
	}

	s.mu.Lock()
	s.insertLocked(&e)
	s.mu.Unlock()
	return &e
}

// Commit stores a terminal outcome under fp and returns the stored entry.
// The in-memory tier is always updated. A backend failure is returned
// wrapped in calc.ErrPersistence.
func (s *Store) Commit(ctx context.Context, fp calc.Fingerprint, o calc.Outcome) (Entry, error) {
	return s.CommitLabeled(ctx, fp, calc.Labels{}, o)
}

// CommitLabeled is Commit with labels recorded on the entry for
// InvalidateWhere.
func (s *Store) CommitLabeled(ctx context.Context, fp calc.Fingerprint, labels calc.Labels, o calc.Outcome) (Entry, error) {
	if !o.Cacheable() {
		return Entry{}, ErrNotCacheable
	}
	if fp.IsZero() {
		return Entry{}, calc.ErrInvalidFingerprint
	}

	o.Fingerprint = fp
	o.Role = ""
	o.PersistenceErr = nil
	o.Err = nil

	now := s.now()
	ttl := s.policy.EffectiveTTL(o)
	e := Entry{
		Fingerprint:    fp,
		Outcome:        o,
		CreatedAt:      now,
		LastAccessedAt: now,
		Labels:         labels,
	}
	if ttl > 0 {
		e.ExpiresAt = now.Add(ttl)
	}
	data, err := Encode(e)
	if err != nil {
		return Entry{}, fmt.Errorf("cache: encode entry: %w", err)
	}
	e.Size = int64(len(data))

	if s.policy.MaxBytes > 0 && e.Size > s.policy.MaxBytes {
		// A replaced smaller entry must not keep answering from memory.
		s.mu.Lock()
		s.index.Remove(fp)
		s.mu.Unlock()
		s.logger.Debug(ctx, "entry exceeds memory budget",
			observe.F("fingerprint", fp.Short()),
			observe.F("size", e.Size))
	} else {
		stored := e.clone()
		s.mu.Lock()
		s.insertLocked(&stored)
		s.mu.Unlock()
	}

	if s.backend == nil {
		return e.clone(), nil
	}
	key := fingerprint.Key(fp)
	err = s.guard.Do(ctx, func(ctx context.Context) error {
		return s.backend.Set(ctx, key, data, ttl)
	})
	if err != nil {
		s.persistFailures.Add(1)
		s.logger.Warn(ctx, "cache backend write failed",
			observe.F("fingerprint", fp.Short()),
			observe.F("error", err.Error()))
		return e.clone(), fmt.Errorf("%w: %w", calc.ErrPersistence, err)
	}
	return e.clone(), nil
}

// insertLocked adds e and evicts least-recently-used entries until the
// byte budget holds. Callers hold s.mu.
func (s *Store) insertLocked(e *Entry) {
	if old, ok := s.index.Peek(e.Fingerprint); ok {
		s.bytes -= old.(*Entry).Size
	}
	s.bytes += e.Size
	if s.index.Add(e.Fingerprint, e) {
		s.evictions.Add(1)
	}
	for s.policy.MaxBytes > 0 && s.bytes > s.policy.MaxBytes && s.index.Len() > 1 {
		if _, _, ok := s.index.RemoveOldest(); !ok {
			break
		}
		s.evictions.Add(1)
	}
}

// onRemove is the index eviction callback. It runs under s.mu.
func (s *Store) onRemove(_, value any) {
	s.bytes -= value.(*Entry).Size
}

// Invalidate removes fp from both tiers.
func (s *Store) Invalidate(ctx context.Context, fp calc.Fingerprint) error {
	s.mu.Lock()
	s.index.Remove(fp)
	s.mu.Unlock()

	if s.backend == nil {
		return nil
	}
	key := fingerprint.Key(fp)
	err := s.guard.Do(ctx, func(ctx context.Context) error {
		return s.backend.Delete(ctx, key)
	})
	if err != nil {
		return fmt.Errorf("%w: %w", calc.ErrPersistence, err)
	}
	return nil
}

// InvalidateWhere removes every entry whose labels match f from both tiers
// and returns how many distinct entries were removed. Entries held only by
// the backend are found when it implements Scanner; otherwise only
// memory-resident entries are swept. Entries committed without labels
// match only a zero Filter.
func (s *Store) InvalidateWhere(ctx context.Context, f Filter) (int, error) {
	matched := make(map[calc.Fingerprint]struct{})
	s.mu.Lock()
	for _, k := range s.index.Keys() {
		v, ok := s.index.Peek(k)
		if !ok || !f.Match(v.(*Entry).Labels) {
			continue
		}
		fp := k.(calc.Fingerprint)
		matched[fp] = struct{}{}
		s.index.Remove(fp)
	}
	s.mu.Unlock()

	if s.backend == nil {
		return len(matched), nil
	}

	keys := make(map[string]calc.Fingerprint, len(matched))
	for fp := range matched {
		keys[fingerprint.Key(fp)] = fp
	}
	if sc, ok := s.backend.(Scanner); ok {
		err := s.guard.Do(ctx, func(ctx context.Context) error {
			return sc.Scan(ctx, func(key string, value []byte) error {
				if !strings.HasPrefix(key, fingerprint.KeyPrefix) {
					return nil
				}
				e, err := Decode(value)
				if err != nil || !f.Match(e.Labels) {
					return nil
				}
				keys[key] = e.Fingerprint
				return nil
			})
		})
		if err != nil {
			return len(matched), fmt.Errorf("%w: scan: %w", calc.ErrPersistence, err)
		}
	}

	var errs []error
	removed := 0
	for key, fp := range keys {
		err := s.guard.Do(ctx, func(ctx context.Context) error {
			return s.backend.Delete(ctx, key)
		})
		if err != nil {
			errs = append(errs, err)
			continue
		}
		matched[fp] = struct{}{}
		removed++
	}
	if err := errors.Join(errs...); err != nil {
		return len(matched), fmt.Errorf("%w: %w", calc.ErrPersistence, err)
	}
	s.logger.Info(ctx, "cache entries invalidated",
		observe.F("filter", f),
		observe.F("entries", len(matched)),
		observe.F("durable_deletes", removed))
	return len(matched), nil
}

// Clear removes every entry from both tiers.
func (s *Store) Clear(ctx context.Context) (int, error) {
	return s.InvalidateWhere(ctx, Filter{})
}

// Len returns the number of in-memory entries, including expired entries
// not yet observed.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.index.Len()
}

// Contains reports whether fp is in memory without touching its recency.
func (s *Store) Contains(fp calc.Fingerprint) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.index.Contains(fp)
}

// Stats is a snapshot of store counters.
type Stats struct {
	Entries         int   `json:"entries"`
	Capacity        int   `json:"capacity"`
	Bytes           int64 `json:"bytes"`
	Hits            int64 `json:"hits"`
	Misses          int64 `json:"misses"`
	Expired         int64 `json:"expired"`
	Evictions       int64 `json:"evictions"`
	PersistFailures int64 `json:"persist_failures"`
	Durable         bool  `json:"durable"`
}

// HitRatio returns hits / (hits + misses), or 0 before any lookup.
func (st Stats) HitRatio() float64 {
	total := st.Hits + st.Misses
	if total == 0 {
		return 0
	}
	return float64(st.Hits) / float64(total)
}

// Stats returns current counters.
func (s *Store) Stats() Stats {
	s.mu.Lock()
	entries, size := s.index.Len(), s.bytes
	s.mu.Unlock()
	return Stats{
		Entries:         entries,
		Capacity:        s.policy.capacity(),
		Bytes:           size,
		Hits:            s.hits.Load(),
		Misses:          s.misses.Load(),
		Expired:         s.expired.Load(),
		Evictions:       s.evictions.Load(),
		PersistFailures: s.persistFailures.Load(),
		Durable:         s.backend != nil,
	}
}

// Ping checks the backend, if it can be pinged.
func (s *Store) Ping(ctx context.Context) error {
	p, ok := s.backend.(Pinger)
	if !ok {
		return nil
	}
	return s.guard.Do(ctx, p.Ping)
}

// Prune sweeps expired values from the backend and returns how many were
// removed. The in-memory tier drops expired entries on access.
func (s *Store) Prune(ctx context.Context) (int64, error) {
	p, ok := s.backend.(Pruner)
	if !ok {
		return 0, ErrNoPrune
	}
	var n int64
	err := s.guard.Do(ctx, func(ctx context.Context) error {
		var err error
		n, err = p.Prune(ctx)
		return err
	})
	return n, err
}

// Close drops the in-memory tier and closes the backend if it is an
// io.Closer.
func (s *Store) Close() error {
	s.mu.Lock()
	s.index.Purge()
	s.mu.Unlock()

	if c, ok := s.backend.(io.Closer); ok {
		if err := c.Close(); err != nil {
			return fmt.Errorf("cache: close backend: %w", err)
		}
	}
	return nil
}

func (e Entry) clone() Entry {
	e.Outcome.Payload = slices.Clone(e.Outcome.Payload)
	e.Outcome.History = slices.Clone(e.Outcome.History)
	return e
}
