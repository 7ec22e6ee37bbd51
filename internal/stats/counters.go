// Package stats holds the request counters shared between the proxy handler
// (writer) and the health aggregator (reader).
package stats

import (
	"math"
	"sync"
	"time"
)

// Counters tracks forwarded request outcomes. All methods are safe for
// concurrent use; a mutex keeps processed/errors consistent with each other
// in a Snapshot.
type Counters struct {
	mu        sync.Mutex
	processed uint64
	errors    uint64
	last      time.Time
	now       func() time.Time
}

// NewCounters returns zeroed counters.
func NewCounters() *Counters { return &Counters{now: time.Now} }

// RecordSuccess counts a forward that got any response from the child.
func (c *Counters) RecordSuccess() {
	c.mu.Lock()
	c.processed++
	c.last = c.now()
	c.mu.Unlock()
}

// RecordError counts a forward that failed before a response was relayed.
func (c *Counters) RecordError() {
	c.mu.Lock()
	c.errors++
	c.last = c.now()
	c.mu.Unlock()
}

// Snapshot is a consistent read of Counters.
type Snapshot struct {
	Processed   uint64
	Errors      uint64
	LastRequest time.Time
}

// Snapshot returns the current values.
func (c *Counters) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Snapshot{Processed: c.processed, Errors: c.errors, LastRequest: c.last}
}

// SuccessRate is the percentage of processed requests, see SuccessRate.
func (s Snapshot) SuccessRate() float64 { return SuccessRate(s.Processed, s.Errors) }

// SuccessRate returns processed / max(processed+errors, 1) * 100 rounded to
// two decimals. The result is always within [0, 100].
func SuccessRate(processed, errors uint64) float64 {
	total := processed + errors
	if total < 1 {
		total = 1
	}
	rate := float64(processed) / float64(total) * 100
	return math.Round(rate*100) / 100
}
