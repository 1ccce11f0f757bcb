package resilience

import (
	"context"
	"sync/atomic"
	"time"
)

// BulkheadConfig configures a Bulkhead.
type BulkheadConfig struct {
	// Slots is the maximum number of concurrent operations.
	// Default: 10
	Slots int

	// MaxWait is how long Enter waits for a free slot.
	// Default: 0 (reject immediately)
	MaxWait time.Duration
}

// Bulkhead bounds concurrency with a counting semaphore.
type Bulkhead struct {
	cfg   BulkheadConfig
	slots chan struct{}

	peak     atomic.Int64
	rejected atomic.Int64
}

// NewBulkhead creates a bulkhead.
func NewBulkhead(cfg BulkheadConfig) *Bulkhead {
	if cfg.Slots <= 0 {
		cfg.Slots = 10
	}
	return &Bulkhead{cfg: cfg, slots: make(chan struct{}, cfg.Slots)}
}

// Enter takes a slot. The returned release function must be called exactly
// once; extra calls are ignored.
func (b *Bulkhead) Enter(ctx context.Context) (release func(), err error) {
	select {
	case b.slots <- struct{}{}:
		return b.entered(), nil
	default:
	}

	if b.cfg.MaxWait <= 0 {
		b.rejected.Add(1)
		return nil, ErrBulkheadFull
	}

	timer := time.NewTimer(b.cfg.MaxWait)
	defer timer.Stop()

	select {
	case b.slots <- struct{}{}:
		return b.entered(), nil
	case <-timer.C:
		b.rejected.Add(1)
		return nil, ErrBulkheadFull
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Do runs op inside a slot.
func (b *Bulkhead) Do(ctx context.Context, op func(context.Context) error) error {
	release, err := b.Enter(ctx)
	if err != nil {
		return err
	}
	defer release()
	return op(ctx)
}

func (b *Bulkhead) entered() func() {
	active := int64(len(b.slots))
	for {
		peak := b.peak.Load()
		if active <= peak || b.peak.CompareAndSwap(peak, active) {
			break
		}
	}
	var once atomic.Bool
	return func() {
		if once.CompareAndSwap(false, true) {
			<-b.slots
		}
	}
}

// Stats returns a snapshot of bulkhead usage.
func (b *Bulkhead) Stats() BulkheadStats {
	active := len(b.slots)
	return BulkheadStats{
		Active:    active,
		Peak:      int(b.peak.Load()),
		Available: b.cfg.Slots - active,
		Capacity:  b.cfg.Slots,
		Rejected:  b.rejected.Load(),
	}
}

// BulkheadStats is a snapshot of bulkhead usage.
type BulkheadStats struct {
	Active    int   `json:"active"`
	Peak      int   `json:"peak"`
	Available int   `json:"available"`
	Capacity  int   `json:"capacity"`
	Rejected  int64 `json:"rejected"`
}

// Saturation returns the fraction of slots in use.
func (s BulkheadStats) Saturation() float64 {
	if s.Capacity == 0 {
		return 0
	}
	return float64(s.Active) / float64(s.Capacity)
}
