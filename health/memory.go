package health

import (
	"context"
	"fmt"
	"runtime"
)

// MemoryCheckerConfig configures the memory health checker.
type MemoryCheckerConfig struct {
	// WarningThreshold is the heap fraction of MaxAlloc that degrades.
	// Default: 0.8
	WarningThreshold float64

	// CriticalThreshold is the heap fraction of MaxAlloc that fails.
	// Default: 0.95
	CriticalThreshold float64

	// MaxAlloc is the heap budget in bytes. Zero uses the memory obtained
	// from the OS.
	MaxAlloc uint64
}

// MemoryChecker checks heap usage against a budget. The in-memory cache
// tier is the main consumer.
type MemoryChecker struct {
	config MemoryCheckerConfig
}

// NewMemoryChecker creates a memory checker.
func NewMemoryChecker(config MemoryCheckerConfig) *MemoryChecker {
	if config.WarningThreshold <= 0 || config.WarningThreshold >= 1 {
		config.WarningThreshold = 0.8
	}
	if config.CriticalThreshold <= 0 || config.CriticalThreshold >= 1 {
		config.CriticalThreshold = 0.95
	}
	if config.CriticalThreshold < config.WarningThreshold {
		config.CriticalThreshold = min(config.WarningThreshold+0.1, 0.99)
	}
	return &MemoryChecker{config: config}
}

// Name returns "memory".
func (m *MemoryChecker) Name() string {
	return "memory"
}

// Check reads runtime memory statistics.
func (m *MemoryChecker) Check(ctx context.Context) Result {
	if err := ctx.Err(); err != nil {
		return Unhealthy("context cancelled", err)
	}

	var stats runtime.MemStats
	runtime.ReadMemStats(&stats)

	budget := m.config.MaxAlloc
	if budget == 0 {
		budget = stats.Sys
	}
	details := map[string]any{
		"heap_alloc": stats.HeapAlloc,
		"heap_sys":   stats.HeapSys,
		"budget":     budget,
		"num_gc":     stats.NumGC,
		"goroutines": runtime.NumGoroutine(),
	}
	if budget == 0 {
		return Healthy("memory stats unavailable").WithDetails(details)
	}

	usage := float64(stats.HeapAlloc) / float64(budget)
	details["usage_percent"] = usage * 100
	msg := fmt.Sprintf("heap at %.1f%% of budget", usage*100)

	switch {
	case usage >= m.config.CriticalThreshold:
		return Unhealthy(msg, ErrOverLimit).WithDetails(details)
	case usage >= m.config.WarningThreshold:
		return Degraded(msg).WithDetails(details)
	default:
		return Healthy(msg).WithDetails(details)
	}
}
