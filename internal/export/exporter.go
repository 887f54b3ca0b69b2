// Package export drives batch formation and shipping for one record kind.
package export

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/otelship/internal/buffer"
	"github.com/fyrsmithlabs/otelship/internal/diag"
	"github.com/fyrsmithlabs/otelship/internal/retry"
	"github.com/fyrsmithlabs/otelship/internal/transport"
	"github.com/fyrsmithlabs/otelship/pkg/record"
)

// Config sets the batching thresholds for one exporter.
type Config struct {
	// BatchSize is the maximum number of records per batch. Reaching it
	// triggers an immediate export. Default: 512.
	BatchSize int

	// FlushInterval is the periodic export trigger. Default: 5s.
	FlushInterval time.Duration
}

// ApplyDefaults fills unset fields.
func (c *Config) ApplyDefaults() {
	if c.BatchSize <= 0 {
		c.BatchSize = 512
	}
	if c.FlushInterval <= 0 {
		c.FlushInterval = 5 * time.Second
	}
}

// Exporter owns one record kind: it drains the kind's buffer into batches
// on a fixed interval or when kicked past the batch size threshold, and
// ships each batch through the retrier.
//
// Batches of one kind are formed and exported under a single mutex, so at
// most one is in flight at a time and export order matches formation
// order. Distinct kinds run independent exporters.
type Exporter struct {
	kind     record.Kind
	buf      *buffer.Buffer
	tr       transport.Transport
	retrier  *retry.Retrier
	counters *diag.Counters
	logger   *zap.Logger
	cfg      Config

	// exportMu serializes batch formation and shipping between the run
	// loop and synchronous Flush/Shutdown callers.
	exportMu sync.Mutex
	seq      uint64

	mu      sync.Mutex
	running bool
	kickCh  chan struct{}
	stopCh  chan struct{}
	doneCh  chan struct{}
}

// New creates an exporter for one kind. Start must be called before
// records are shipped.
func New(kind record.Kind, buf *buffer.Buffer, tr transport.Transport, retrier *retry.Retrier, counters *diag.Counters, logger *zap.Logger, cfg Config) *Exporter {
	cfg.ApplyDefaults()
	return &Exporter{
		kind:     kind,
		buf:      buf,
		tr:       tr,
		retrier:  retrier,
		counters: counters,
		logger:   logger.With(zap.String("kind", kind.String())),
		cfg:      cfg,
		kickCh:   make(chan struct{}, 1),
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}
}

// Start launches the background export loop.
func (e *Exporter) Start(ctx context.Context) {
	e.mu.Lock()
	if e.running {
		e.mu.Unlock()
		return
	}
	e.running = true
	e.mu.Unlock()

	e.logger.Debug("starting exporter",
		zap.Int("batch_size", e.cfg.BatchSize),
		zap.Duration("flush_interval", e.cfg.FlushInterval))

	go e.run(ctx)
}

// Kick wakes the export loop because the buffer crossed the batch size
// threshold. Never blocks.
func (e *Exporter) Kick() {
	select {
	case e.kickCh <- struct{}{}:
	default:
	}
}

// Flush synchronously exports everything currently buffered.
func (e *Exporter) Flush(ctx context.Context) error {
	return e.exportPending(ctx, true)
}

// Shutdown stops the loop and performs one final bounded flush. Records
// still buffered when the deadline expires are discarded and counted.
func (e *Exporter) Shutdown(ctx context.Context) error {
	e.mu.Lock()
	if !e.running {
		e.mu.Unlock()
		return nil
	}
	e.running = false
	e.mu.Unlock()

	close(e.stopCh)
	<-e.doneCh

	err := e.exportPending(ctx, true)

	if remaining := e.buf.Len(); remaining > 0 {
		e.logger.Warn("shutdown deadline reached, discarding buffered records",
			zap.Int("records", remaining))
		drained := e.buf.Drain(remaining)
		e.counters.AddDropped(uint64(len(drained)))
		diag.RecordsDropped.WithLabelValues(e.kind.String()).Add(float64(len(drained)))
	}
	return err
}

func (e *Exporter) run(ctx context.Context) {
	defer close(e.doneCh)

	ticker := time.NewTicker(e.cfg.FlushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			e.logger.Debug("exporter stopped: context canceled")
			return
		case <-e.stopCh:
			return
		case <-ticker.C:
			e.exportAbsorbed(ctx, true)
		case <-e.kickCh:
			// Threshold trigger: ship only full batches and leave the
			// remainder for the next interval tick.
			e.exportAbsorbed(ctx, false)
		}
	}
}

// exportAbsorbed runs an export cycle and absorbs the error: pipeline
// failures are reflected in counters and logs, never propagated.
func (e *Exporter) exportAbsorbed(ctx context.Context, all bool) {
	if err := e.exportPending(ctx, all); err != nil {
		e.logger.Debug("export cycle ended with error", zap.Error(err))
	}
}

// exportPending drains and ships batches until the buffer has less than a
// full batch left (all=false) or is empty (all=true).
func (e *Exporter) exportPending(ctx context.Context, all bool) error {
	e.exportMu.Lock()
	defer e.exportMu.Unlock()

	var firstErr error
	for {
		if !all && e.buf.Len() < e.cfg.BatchSize {
			break
		}
		recs := e.buf.Drain(e.cfg.BatchSize)
		diag.BufferFill.WithLabelValues(e.kind.String()).Set(float64(e.buf.Len()))
		if len(recs) == 0 {
			break
		}

		if err := e.exportBatch(ctx, recs); err != nil && firstErr == nil {
			firstErr = err
		}

		if ctx.Err() != nil {
			if firstErr == nil {
				firstErr = ctx.Err()
			}
			break
		}
	}
	return firstErr
}

// exportBatch ships one batch through the retrier and updates counters.
func (e *Exporter) exportBatch(ctx context.Context, recs []record.Record) error {
	e.seq++
	batch := &transport.Batch{Kind: e.kind, Seq: e.seq, Records: recs}

	start := time.Now()
	result := e.retrier.Do(ctx, func(ctx context.Context) (transport.Outcome, error) {
		return e.tr.Send(ctx, batch)
	})
	diag.ExportDuration.WithLabelValues(e.kind.String()).Observe(time.Since(start).Seconds())

	switch result.State {
	case retry.Succeeded:
		e.counters.AddExported(1)
		diag.BatchesExported.WithLabelValues(e.kind.String()).Inc()
		return nil
	default:
		e.counters.AddAbandoned(1)
		diag.BatchesAbandoned.WithLabelValues(e.kind.String(), string(result.Reason)).Inc()
		return fmt.Errorf("batch seq=%d abandoned after %d attempts: %w", batch.Seq, result.Attempts, result.Err)
	}
}
