// Package buffer provides the bounded in-memory record queue feeding the
// batch exporters.
package buffer

import (
	"fmt"
	"sync"

	"github.com/fyrsmithlabs/otelship/pkg/record"
)

// OverflowPolicy controls what happens when Enqueue finds the buffer full.
type OverflowPolicy string

const (
	// DropOldest evicts the oldest buffered record to make room. This is
	// the default: telemetry must never block the instrumented application.
	DropOldest OverflowPolicy = "drop_oldest"

	// Block makes producers wait until a drain frees capacity.
	Block OverflowPolicy = "block"
)

// Valid reports whether the policy is a recognized value.
func (p OverflowPolicy) Valid() bool {
	return p == DropOldest || p == Block
}

// Buffer is a bounded FIFO queue of records. It supports concurrent
// enqueue from many producers and a single draining consumer.
type Buffer struct {
	mu       sync.Mutex
	notFull  *sync.Cond
	records  []record.Record
	capacity int
	policy   OverflowPolicy
	dropped  uint64
	closed   bool
}

// New creates a buffer with the given capacity and overflow policy.
func New(capacity int, policy OverflowPolicy) (*Buffer, error) {
	if capacity <= 0 {
		return nil, fmt.Errorf("buffer capacity must be positive, got %d", capacity)
	}
	if policy == "" {
		policy = DropOldest
	}
	if !policy.Valid() {
		return nil, fmt.Errorf("unknown overflow policy %q", policy)
	}
	b := &Buffer{
		records:  make([]record.Record, 0, capacity),
		capacity: capacity,
		policy:   policy,
	}
	b.notFull = sync.NewCond(&b.mu)
	return b, nil
}

// Enqueue appends a record and reports whether another record was
// dropped to make room. Under DropOldest it never blocks: at capacity
// the oldest record is evicted. Under Block it waits until a drain frees
// space, or until Close.
func (b *Buffer) Enqueue(rec record.Record) (dropped bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.policy == Block {
		for len(b.records) >= b.capacity && !b.closed {
			b.notFull.Wait()
		}
		if b.closed {
			b.dropped++
			return true
		}
	} else if len(b.records) >= b.capacity {
		// Evict oldest. Shift instead of re-slicing so the backing array
		// does not grow without bound.
		copy(b.records, b.records[1:])
		b.records = b.records[:len(b.records)-1]
		b.dropped++
		dropped = true
	}

	b.records = append(b.records, rec)
	return dropped
}

// Drain atomically removes and returns up to max records in insertion
// order. Returns nil when the buffer is empty.
func (b *Buffer) Drain(max int) []record.Record {
	b.mu.Lock()
	defer b.mu.Unlock()

	if len(b.records) == 0 || max <= 0 {
		return nil
	}

	n := max
	if n > len(b.records) {
		n = len(b.records)
	}

	out := make([]record.Record, n)
	copy(out, b.records[:n])
	copy(b.records, b.records[n:])
	b.records = b.records[:len(b.records)-n]

	b.notFull.Broadcast()
	return out
}

// Len returns the number of buffered records.
func (b *Buffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.records)
}

// Capacity returns the configured capacity.
func (b *Buffer) Capacity() int { return b.capacity }

// Dropped returns the monotonic count of records dropped due to overflow.
func (b *Buffer) Dropped() uint64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.dropped
}

// Close releases any producers waiting under the Block policy. Records
// enqueued after Close are counted as dropped.
func (b *Buffer) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
	b.notFull.Broadcast()
}
