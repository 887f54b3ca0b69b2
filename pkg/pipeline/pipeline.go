// Package pipeline is the public ingestion API of otelship.
//
// A Pipeline buffers spans, log records, and metric points produced by
// application code and ships them in batches to an OTLP collector
// endpoint. Ingestion calls are synchronous and non-blocking; export
// failures never surface to the caller. The only visibility into
// telemetry loss is Stats.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/otelship/internal/buffer"
	"github.com/fyrsmithlabs/otelship/internal/diag"
	"github.com/fyrsmithlabs/otelship/internal/export"
	"github.com/fyrsmithlabs/otelship/internal/logging"
	"github.com/fyrsmithlabs/otelship/internal/retry"
	"github.com/fyrsmithlabs/otelship/internal/transport"
	"github.com/fyrsmithlabs/otelship/pkg/config"
	"github.com/fyrsmithlabs/otelship/pkg/record"
)

// Pipeline is the in-process telemetry shipping pipeline. The zero value
// and nil are safe no-ops; use New to build a working instance.
type Pipeline struct {
	cfg      *config.Config
	logger   *zap.Logger
	ownLog   bool
	counters *diag.Counters
	tr       transport.Transport

	buffers   map[record.Kind]*buffer.Buffer
	exporters map[record.Kind]*export.Exporter

	cancel   context.CancelFunc
	stopped  atomic.Bool
	shutdown sync.Once
}

type options struct {
	logger *zap.Logger
	tr     transport.Transport
}

// Option customizes pipeline construction.
type Option func(*options)

// WithLogger overrides the internal logger built from config.
func WithLogger(logger *zap.Logger) Option {
	return func(o *options) { o.logger = logger }
}

// WithTransport overrides the transport selected by config. Used by
// tests and by applications with a custom wire format.
func WithTransport(tr transport.Transport) Option {
	return func(o *options) { o.tr = tr }
}

// New validates the config and builds a running pipeline: one buffer and
// one background exporter per record kind. If the pipeline is disabled
// in config, every method on the returned instance is a no-op.
func New(ctx context.Context, cfg *config.Config, opts ...Option) (*Pipeline, error) {
	if cfg == nil {
		cfg = config.NewDefaultConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid pipeline config: %w", err)
	}

	if !cfg.Enabled {
		return &Pipeline{cfg: cfg}, nil
	}

	var o options
	for _, opt := range opts {
		opt(&o)
	}

	logger := o.logger
	ownLog := false
	if logger == nil {
		var err error
		logger, err = logging.New(cfg.Logging)
		if err != nil {
			return nil, err
		}
		ownLog = true
	}

	tr := o.tr
	if tr == nil {
		var err error
		tr, err = newTransport(cfg)
		if err != nil {
			return nil, err
		}
	}

	p := &Pipeline{
		cfg:       cfg,
		logger:    logger.Named("otelship"),
		ownLog:    ownLog,
		counters:  diag.NewCounters(),
		tr:        tr,
		buffers:   make(map[record.Kind]*buffer.Buffer, len(record.Kinds)),
		exporters: make(map[record.Kind]*export.Exporter, len(record.Kinds)),
	}

	policy := retry.Policy{
		MaxAttempts:    cfg.MaxRetries + 1,
		InitialBackoff: cfg.BackoffInitial.Duration(),
		MaxBackoff:     cfg.BackoffMax.Duration(),
		Multiplier:     cfg.BackoffMultiplier,
		Jitter:         cfg.BackoffJitter,
	}
	exportCfg := export.Config{
		BatchSize:     cfg.BatchSize,
		FlushInterval: cfg.FlushInterval.Duration(),
	}

	// The export loops outlive the construction context; they stop on
	// Shutdown.
	runCtx, cancel := context.WithCancel(context.Background())
	p.cancel = cancel

	for _, kind := range record.Kinds {
		buf, err := buffer.New(cfg.BufferCapacity, buffer.OverflowPolicy(cfg.OverflowPolicy))
		if err != nil {
			cancel()
			return nil, err
		}
		retrier := retry.New(policy, p.logger.With(zap.String("kind", kind.String())))
		exp := export.New(kind, buf, tr, retrier, p.counters, p.logger, exportCfg)
		exp.Start(runCtx)

		p.buffers[kind] = buf
		p.exporters[kind] = exp
	}

	p.logger.Info("pipeline started",
		zap.String("service", cfg.ServiceName),
		zap.String("endpoint", cfg.Endpoint),
		zap.String("protocol", cfg.Protocol),
		zap.Int("batch_size", cfg.BatchSize),
		zap.Int("buffer_capacity", cfg.BufferCapacity))

	return p, nil
}

// newTransport builds the transport selected by the config protocol.
func newTransport(cfg *config.Config) (transport.Transport, error) {
	res := &transport.Resource{
		ServiceName:    cfg.ServiceName,
		ServiceVersion: cfg.ServiceVersion,
		Attributes:     resourceAttrs(cfg.Resource),
	}

	switch cfg.Protocol {
	case "http/protobuf":
		return transport.NewHTTP(transport.HTTPConfig{
			Endpoint: cfg.Endpoint,
			Timeout:  cfg.ExportTimeout.Duration(),
		}, res)
	default: // "grpc"
		return transport.NewGRPC(transport.GRPCConfig{
			Endpoint: cfg.Endpoint,
			Insecure: cfg.Insecure,
			Timeout:  cfg.ExportTimeout.Duration(),
		}, res)
	}
}

// resourceAttrs converts the config attribute map into sorted attrs so
// exported resources are deterministic.
func resourceAttrs(m map[string]string) []record.Attr {
	if len(m) == 0 {
		return nil
	}
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	attrs := make([]record.Attr, 0, len(keys))
	for _, k := range keys {
		attrs = append(attrs, record.Attr{Key: k, Value: record.String(m[k])})
	}
	return attrs
}

// RecordSpan enqueues a finished span. Missing ids and timestamps are
// stamped here; the span must not be mutated afterwards.
func (p *Pipeline) RecordSpan(s *record.Span) {
	if !p.active() || s == nil {
		return
	}
	now := time.Now()
	if !s.TraceID.IsValid() {
		s.TraceID = record.NewTraceID()
	}
	if !s.SpanID.IsValid() {
		s.SpanID = record.NewSpanID()
	}
	if s.StartTime.IsZero() {
		s.StartTime = now
	}
	if s.EndTime.IsZero() {
		s.EndTime = now
	}
	p.enqueue(record.KindSpan, record.NewSpanRecord(s))
}

// RecordLog enqueues a log record, stamping a missing timestamp.
func (p *Pipeline) RecordLog(l *record.LogRecord) {
	if !p.active() || l == nil {
		return
	}
	if l.Time.IsZero() {
		l.Time = time.Now()
	}
	p.enqueue(record.KindLog, record.NewLogRecord(l))
}

// RecordMetric enqueues a metric point, stamping a missing timestamp.
func (p *Pipeline) RecordMetric(m *record.MetricPoint) {
	if !p.active() || m == nil {
		return
	}
	if m.Time.IsZero() {
		m.Time = time.Now()
	}
	p.enqueue(record.KindMetric, record.NewMetricRecord(m))
}

func (p *Pipeline) enqueue(kind record.Kind, rec record.Record) {
	buf := p.buffers[kind]

	if buf.Enqueue(rec) {
		p.counters.AddDropped(1)
		diag.RecordsDropped.WithLabelValues(kind.String()).Inc()
	}
	p.counters.AddEnqueued(1)
	diag.RecordsEnqueued.WithLabelValues(kind.String()).Inc()

	if buf.Len() >= p.cfg.BatchSize {
		p.exporters[kind].Kick()
	}
}

// ForceFlush synchronously exports everything currently buffered.
func (p *Pipeline) ForceFlush(ctx context.Context) error {
	if !p.active() {
		return nil
	}
	var errs []error
	for _, kind := range record.Kinds {
		if err := p.exporters[kind].Flush(ctx); err != nil {
			errs = append(errs, fmt.Errorf("%s flush: %w", kind, err))
		}
	}
	return errors.Join(errs...)
}

// Shutdown stops the exporters after one final bounded flush. Records
// still buffered when the deadline expires are discarded. Safe to call
// more than once.
func (p *Pipeline) Shutdown(ctx context.Context) error {
	if !p.active() {
		return nil
	}

	var err error
	p.shutdown.Do(func() {
		p.stopped.Store(true)

		// Use configured timeout if no deadline set
		if _, ok := ctx.Deadline(); !ok {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, p.cfg.ShutdownTimeout.Duration())
			defer cancel()
		}

		// Release producers blocked on a full buffer before the final
		// flush; their records are counted as dropped.
		for _, buf := range p.buffers {
			buf.Close()
		}

		var errs []error
		for _, kind := range record.Kinds {
			if serr := p.exporters[kind].Shutdown(ctx); serr != nil {
				errs = append(errs, fmt.Errorf("%s shutdown: %w", kind, serr))
			}
		}

		if terr := p.tr.Shutdown(ctx); terr != nil {
			errs = append(errs, fmt.Errorf("transport shutdown: %w", terr))
		}

		p.cancel()
		err = errors.Join(errs...)

		snap := p.counters.Snapshot()
		p.logger.Info("pipeline stopped",
			zap.Uint64("records_enqueued", snap.RecordsEnqueued),
			zap.Uint64("records_dropped", snap.RecordsDropped),
			zap.Uint64("batches_exported", snap.BatchesExported),
			zap.Uint64("batches_abandoned", snap.BatchesAbandoned))

		if p.ownLog {
			_ = logging.Sync(p.logger)
		}
	})
	return err
}

// Stats returns a snapshot of the self-diagnostic counters. Valid after
// Shutdown, so callers can report final loss counts.
func (p *Pipeline) Stats() diag.Snapshot {
	if p == nil || p.counters == nil {
		return diag.Snapshot{}
	}
	return p.counters.Snapshot()
}

// Enabled reports whether the pipeline is running.
func (p *Pipeline) Enabled() bool {
	return p.active()
}

// active reports whether this instance has running exporters. Nil,
// disabled, and shut-down pipelines are inert.
func (p *Pipeline) active() bool {
	return p != nil && p.cfg != nil && p.cfg.Enabled && p.exporters != nil && !p.stopped.Load()
}
