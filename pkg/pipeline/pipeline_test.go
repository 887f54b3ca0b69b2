package pipeline

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/otelship/internal/transport"
	"github.com/fyrsmithlabs/otelship/pkg/config"
	"github.com/fyrsmithlabs/otelship/pkg/record"
)

// memTransport accepts every batch and remembers what it saw, keyed by
// record kind.
type memTransport struct {
	mu      sync.Mutex
	byKind  map[record.Kind][]*transport.Batch
	outcome transport.Outcome
	closed  bool

	// gate, when non-nil, blocks every Send until it is closed.
	gate chan struct{}
}

func newMemTransport() *memTransport {
	return &memTransport{byKind: make(map[record.Kind][]*transport.Batch)}
}

func (m *memTransport) Send(ctx context.Context, batch *transport.Batch) (transport.Outcome, error) {
	m.mu.Lock()
	gate := m.gate
	m.mu.Unlock()
	if gate != nil {
		<-gate
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	cp := *batch
	cp.Records = append([]record.Record(nil), batch.Records...)
	m.byKind[batch.Kind] = append(m.byKind[batch.Kind], &cp)

	if m.outcome != transport.Success {
		return m.outcome, assert.AnError
	}
	return transport.Success, nil
}

func (m *memTransport) Shutdown(context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

func (m *memTransport) records(kind record.Kind) []record.Record {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []record.Record
	for _, b := range m.byKind[kind] {
		out = append(out, b.Records...)
	}
	return out
}

func (m *memTransport) batches(kind record.Kind) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.byKind[kind])
}

func testConfig() *config.Config {
	cfg := config.NewDefaultConfig()
	cfg.ServiceName = "pipeline-test"
	cfg.BatchSize = 10
	cfg.BufferCapacity = 100
	cfg.FlushInterval = config.Duration(time.Hour) // flush explicitly in tests
	return cfg
}

func newTestPipeline(t *testing.T, cfg *config.Config) (*Pipeline, *memTransport) {
	t.Helper()
	tr := newMemTransport()
	p, err := New(context.Background(), cfg, WithLogger(zap.NewNop()), WithTransport(tr))
	require.NoError(t, err)
	t.Cleanup(func() { _ = p.Shutdown(context.Background()) })
	return p, tr
}

func TestNew_InvalidConfig(t *testing.T) {
	cfg := testConfig()
	cfg.Protocol = "smoke-signals"
	_, err := New(context.Background(), cfg)
	require.Error(t, err)
}

func TestRecordAndFlush_AllKinds(t *testing.T) {
	p, tr := newTestPipeline(t, testConfig())

	p.RecordSpan(&record.Span{Name: "op"})
	p.RecordLog(&record.LogRecord{Severity: record.SeverityInfo, Body: "hello"})
	p.RecordMetric(&record.MetricPoint{Name: "m", Value: 1})

	require.NoError(t, p.ForceFlush(context.Background()))

	assert.Len(t, tr.records(record.KindSpan), 1)
	assert.Len(t, tr.records(record.KindLog), 1)
	assert.Len(t, tr.records(record.KindMetric), 1)

	snap := p.Stats()
	assert.Equal(t, uint64(3), snap.RecordsEnqueued)
	assert.Equal(t, uint64(3), snap.BatchesExported)
	assert.Equal(t, uint64(0), snap.RecordsDropped)
}

func TestRecordSpan_StampsMissingFields(t *testing.T) {
	p, tr := newTestPipeline(t, testConfig())

	p.RecordSpan(&record.Span{Name: "bare"})
	require.NoError(t, p.ForceFlush(context.Background()))

	recs := tr.records(record.KindSpan)
	require.Len(t, recs, 1)
	span := recs[0].Span
	assert.True(t, span.TraceID.IsValid())
	assert.True(t, span.SpanID.IsValid())
	assert.False(t, span.StartTime.IsZero())
	assert.False(t, span.EndTime.IsZero())
}

func TestRecordSpan_KeepsCallerIDs(t *testing.T) {
	p, tr := newTestPipeline(t, testConfig())

	traceID := record.NewTraceID()
	spanID := record.NewSpanID()
	p.RecordSpan(&record.Span{Name: "set", TraceID: traceID, SpanID: spanID})
	require.NoError(t, p.ForceFlush(context.Background()))

	span := tr.records(record.KindSpan)[0].Span
	assert.Equal(t, traceID, span.TraceID)
	assert.Equal(t, spanID, span.SpanID)
}

func TestBatchSizeThresholdTriggersExport(t *testing.T) {
	p, tr := newTestPipeline(t, testConfig()) // BatchSize 10, interval 1h

	for i := 0; i < 25; i++ {
		p.RecordMetric(&record.MetricPoint{Name: "m", Value: float64(i)})
	}

	// Two full batches ship without an explicit flush; the 5-record
	// remainder stays buffered for the interval tick.
	require.Eventually(t, func() bool {
		return tr.batches(record.KindMetric) == 2
	}, 2*time.Second, 10*time.Millisecond)
	assert.Len(t, tr.records(record.KindMetric), 20)
}

func TestRecordOrderSurvivesExport(t *testing.T) {
	p, tr := newTestPipeline(t, testConfig())

	for i := 0; i < 30; i++ {
		p.RecordMetric(&record.MetricPoint{Name: "m", Value: float64(i)})
	}
	require.NoError(t, p.ForceFlush(context.Background()))

	recs := tr.records(record.KindMetric)
	require.Len(t, recs, 30)
	for i, r := range recs {
		assert.Equal(t, float64(i), r.Metric.Value)
	}
}

func TestOverflowDropsAreCounted(t *testing.T) {
	cfg := testConfig()
	cfg.BufferCapacity = 10
	cfg.BatchSize = 10
	p, tr := newTestPipeline(t, cfg)

	// Hold every Send open so the exporter can absorb at most one batch
	// while the burst overflows the buffer.
	gate := make(chan struct{})
	tr.mu.Lock()
	tr.gate = gate
	tr.mu.Unlock()

	for i := 0; i < 40; i++ {
		p.RecordLog(&record.LogRecord{Body: "spam"})
	}

	snap := p.Stats()
	assert.Equal(t, uint64(40), snap.RecordsEnqueued)
	assert.GreaterOrEqual(t, snap.RecordsDropped, uint64(20))

	close(gate) // let the cleanup shutdown flush
}

func TestExportFailureNeverReachesProducers(t *testing.T) {
	cfg := testConfig()
	cfg.MaxRetries = 0
	p, tr := newTestPipeline(t, cfg)
	tr.outcome = transport.FatalFailure

	p.RecordLog(&record.LogRecord{Body: "doomed"})

	// The flush error is for the flush caller; ingestion stays silent and
	// the loss shows up in stats.
	err := p.ForceFlush(context.Background())
	require.Error(t, err)
	assert.Equal(t, uint64(1), p.Stats().BatchesAbandoned)

	p.RecordLog(&record.LogRecord{Body: "still accepted"})
	assert.Equal(t, uint64(2), p.Stats().RecordsEnqueued)
}

func TestShutdown_FlushesAndStops(t *testing.T) {
	p, tr := newTestPipeline(t, testConfig())

	for i := 0; i < 7; i++ {
		p.RecordMetric(&record.MetricPoint{Name: "m", Value: float64(i)})
	}

	require.NoError(t, p.Shutdown(context.Background()))

	assert.Len(t, tr.records(record.KindMetric), 7)
	assert.True(t, tr.closed)

	// Ingestion after shutdown is a silent no-op.
	p.RecordMetric(&record.MetricPoint{Name: "late", Value: 1})
	assert.Equal(t, uint64(7), p.Stats().RecordsEnqueued)
	assert.False(t, p.Enabled())

	// Stats stay readable so callers can report final loss counts.
	assert.Equal(t, uint64(1), p.Stats().BatchesExported)
}

func TestShutdown_Idempotent(t *testing.T) {
	p, _ := newTestPipeline(t, testConfig())
	require.NoError(t, p.Shutdown(context.Background()))
	require.NoError(t, p.Shutdown(context.Background()))
}

func TestDisabledPipelineIsInert(t *testing.T) {
	cfg := testConfig()
	cfg.Enabled = false

	p, err := New(context.Background(), cfg)
	require.NoError(t, err)

	p.RecordSpan(&record.Span{Name: "ignored"})
	p.RecordLog(&record.LogRecord{Body: "ignored"})
	p.RecordMetric(&record.MetricPoint{Name: "ignored"})

	assert.False(t, p.Enabled())
	assert.Equal(t, uint64(0), p.Stats().RecordsEnqueued)
	assert.NoError(t, p.ForceFlush(context.Background()))
	assert.NoError(t, p.Shutdown(context.Background()))
}

func TestNilPipelineIsSafe(t *testing.T) {
	var p *Pipeline
	p.RecordSpan(&record.Span{Name: "x"})
	p.RecordLog(&record.LogRecord{Body: "x"})
	p.RecordMetric(&record.MetricPoint{Name: "x"})
	assert.False(t, p.Enabled())
	assert.NoError(t, p.ForceFlush(context.Background()))
	assert.NoError(t, p.Shutdown(context.Background()))
	assert.Zero(t, p.Stats())
}

func TestNilRecordsAreIgnored(t *testing.T) {
	p, _ := newTestPipeline(t, testConfig())
	p.RecordSpan(nil)
	p.RecordLog(nil)
	p.RecordMetric(nil)
	assert.Equal(t, uint64(0), p.Stats().RecordsEnqueued)
}

func TestConcurrentProducers(t *testing.T) {
	cfg := testConfig()
	cfg.BufferCapacity = 10000
	cfg.BatchSize = 100
	p, tr := newTestPipeline(t, cfg)

	const producers = 8
	const perProducer = 250

	var wg sync.WaitGroup
	for i := 0; i < producers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < perProducer; j++ {
				p.RecordMetric(&record.MetricPoint{Name: "m", Value: float64(j)})
			}
		}()
	}
	wg.Wait()

	require.NoError(t, p.Shutdown(context.Background()))

	snap := p.Stats()
	assert.Equal(t, uint64(producers*perProducer), snap.RecordsEnqueued)
	assert.Equal(t, uint64(0), snap.RecordsDropped)
	assert.Len(t, tr.records(record.KindMetric), producers*perProducer)
}
