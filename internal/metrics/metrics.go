package metrics

import (
	"sync"
	"sync/atomic"
)

// automationStats holds counters for the automation pipeline. Kept
// simple/thread-safe for use from the dispatcher, worker and exposition.
type automationStats struct {
	dispatched uint64
	enqueued   uint64
	skipped    uint64
	mu         sync.Mutex
	runsBy     map[string]uint64 // by terminal run status
}

var auto automationStats

// IncDispatched counts one domain event seen by the dispatcher.
func IncDispatched() { atomic.AddUint64(&auto.dispatched, 1) }

// IncEnqueued counts one job handed to the queue.
func IncEnqueued() { atomic.AddUint64(&auto.enqueued, 1) }

// IncSkipped counts one automation that short-circuited before enqueue
// (no match, invalid, trigger condition false, enqueue error).
func IncSkipped() { atomic.AddUint64(&auto.skipped, 1) }

// IncRun counts one finished run by terminal status.
func IncRun(status string) {
	auto.mu.Lock()
	if auto.runsBy == nil {
		auto.runsBy = make(map[string]uint64)
	}
	auto.runsBy[status]++
	auto.mu.Unlock()
}

// AutomationSnapshot returns a copy of the current counters.
func AutomationSnapshot() (dispatched, enqueued, skipped uint64, runs map[string]uint64) {
	dispatched = atomic.LoadUint64(&auto.dispatched)
	enqueued = atomic.LoadUint64(&auto.enqueued)
	skipped = atomic.LoadUint64(&auto.skipped)
	auto.mu.Lock()
	defer auto.mu.Unlock()
	runs = make(map[string]uint64, len(auto.runsBy))
	for k, v := range auto.runsBy {
		runs[k] = v
	}
	return
}

// rateLimitStats holds counters for rate limit drops (HTTP 429).
type rateLimitStats struct {
	total    uint64
	mu       sync.Mutex
	byPrefix map[string]uint64
}

var rl rateLimitStats

// IncRateLimitDrop increments drop counters for the given prefix.
// Use prefix "global" for global limiter rejections.
func IncRateLimitDrop(prefix string) {
	if prefix == "" {
		prefix = "global"
	}
	atomic.AddUint64(&rl.total, 1)
	rl.mu.Lock()
	if rl.byPrefix == nil {
		rl.byPrefix = make(map[string]uint64)
	}
	rl.byPrefix[prefix]++
	rl.mu.Unlock()
}

// RateLimitSnapshot returns a copy of the current counters.
func RateLimitSnapshot() (total uint64, by map[string]uint64) {
	total = atomic.LoadUint64(&rl.total)
	rl.mu.Lock()
	defer rl.mu.Unlock()
	by = make(map[string]uint64, len(rl.byPrefix))
	for k, v := range rl.byPrefix {
		by[k] = v
	}
	return total, by
}
