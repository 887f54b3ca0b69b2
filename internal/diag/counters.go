// Package diag tracks pipeline self-diagnostic counters.
//
// Counters are the only visibility producers get into telemetry loss:
// pipeline failures never surface as errors to the instrumented
// application.
package diag

import (
	"sync/atomic"
)

// Counters holds the per-pipeline operational counters. All methods are
// safe for concurrent use.
type Counters struct {
	enqueued  atomic.Uint64
	dropped   atomic.Uint64
	exported  atomic.Uint64
	abandoned atomic.Uint64
}

// NewCounters creates a zeroed counter set.
func NewCounters() *Counters {
	return &Counters{}
}

// Snapshot is a point-in-time read of all counters.
type Snapshot struct {
	RecordsEnqueued  uint64 `json:"records_enqueued"`
	RecordsDropped   uint64 `json:"records_dropped"`
	BatchesExported  uint64 `json:"batches_exported"`
	BatchesAbandoned uint64 `json:"batches_abandoned"`
}

func (c *Counters) AddEnqueued(n uint64)  { c.enqueued.Add(n) }
func (c *Counters) AddDropped(n uint64)   { c.dropped.Add(n) }
func (c *Counters) AddExported(n uint64)  { c.exported.Add(n) }
func (c *Counters) AddAbandoned(n uint64) { c.abandoned.Add(n) }

// Snapshot returns the current counter values.
func (c *Counters) Snapshot() Snapshot {
	return Snapshot{
		RecordsEnqueued:  c.enqueued.Load(),
		RecordsDropped:   c.dropped.Load(),
		BatchesExported:  c.exported.Load(),
		BatchesAbandoned: c.abandoned.Load(),
	}
}

// Reset zeroes all counters. For tests.
func (c *Counters) Reset() {
	c.enqueued.Store(0)
	c.dropped.Store(0)
	c.exported.Store(0)
	c.abandoned.Store(0)
}
