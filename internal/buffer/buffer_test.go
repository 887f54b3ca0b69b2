package buffer

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/otelship/pkg/record"
)

func metricRecord(i int) record.Record {
	return record.NewMetricRecord(&record.MetricPoint{
		Name:  "test.metric",
		Value: float64(i),
	})
}

func TestNew_InvalidCapacity(t *testing.T) {
	_, err := New(0, DropOldest)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "capacity")

	_, err = New(-5, DropOldest)
	require.Error(t, err)
}

func TestNew_UnknownPolicy(t *testing.T) {
	_, err := New(10, OverflowPolicy("bogus"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "overflow policy")
}

func TestNew_EmptyPolicyDefaultsToDropOldest(t *testing.T) {
	buf, err := New(2, "")
	require.NoError(t, err)

	buf.Enqueue(metricRecord(1))
	buf.Enqueue(metricRecord(2))
	dropped := buf.Enqueue(metricRecord(3))
	assert.True(t, dropped)
}

func TestBuffer_DrainPreservesInsertionOrder(t *testing.T) {
	buf, err := New(100, DropOldest)
	require.NoError(t, err)

	for i := 0; i < 50; i++ {
		dropped := buf.Enqueue(metricRecord(i))
		assert.False(t, dropped)
	}
	require.Equal(t, 50, buf.Len())

	recs := buf.Drain(100)
	require.Len(t, recs, 50)
	for i, r := range recs {
		assert.Equal(t, float64(i), r.Metric.Value)
	}

	assert.Equal(t, 0, buf.Len())
	assert.Nil(t, buf.Drain(10))
}

func TestBuffer_DrainRespectsMax(t *testing.T) {
	buf, err := New(200, DropOldest)
	require.NoError(t, err)

	for i := 0; i < 150; i++ {
		buf.Enqueue(metricRecord(i))
	}

	first := buf.Drain(100)
	require.Len(t, first, 100)
	assert.Equal(t, float64(0), first[0].Metric.Value)
	assert.Equal(t, float64(99), first[99].Metric.Value)

	second := buf.Drain(100)
	require.Len(t, second, 50)
	assert.Equal(t, float64(100), second[0].Metric.Value)
	assert.Equal(t, float64(149), second[49].Metric.Value)
}

func TestBuffer_OverflowDropsOldest(t *testing.T) {
	buf, err := New(10, DropOldest)
	require.NoError(t, err)

	for i := 0; i < 25; i++ {
		buf.Enqueue(metricRecord(i))
	}

	// Retained count equals capacity, dropped count equals the excess.
	assert.Equal(t, 10, buf.Len())
	assert.Equal(t, uint64(15), buf.Dropped())

	// The survivors are the newest records, still in order.
	recs := buf.Drain(10)
	require.Len(t, recs, 10)
	for i, r := range recs {
		assert.Equal(t, float64(15+i), r.Metric.Value)
	}
}

func TestBuffer_BlockPolicyWaitsForDrain(t *testing.T) {
	buf, err := New(2, Block)
	require.NoError(t, err)

	buf.Enqueue(metricRecord(1))
	buf.Enqueue(metricRecord(2))

	unblocked := make(chan struct{})
	go func() {
		buf.Enqueue(metricRecord(3)) // blocks until a drain frees space
		close(unblocked)
	}()

	select {
	case <-unblocked:
		t.Fatal("enqueue should have blocked on a full buffer")
	case <-time.After(50 * time.Millisecond):
	}

	recs := buf.Drain(1)
	require.Len(t, recs, 1)

	select {
	case <-unblocked:
	case <-time.After(time.Second):
		t.Fatal("enqueue did not unblock after drain")
	}

	assert.Equal(t, 2, buf.Len())
}

func TestBuffer_CloseReleasesBlockedProducer(t *testing.T) {
	buf, err := New(1, Block)
	require.NoError(t, err)
	buf.Enqueue(metricRecord(1))

	unblocked := make(chan bool)
	go func() {
		unblocked <- buf.Enqueue(metricRecord(2))
	}()

	time.Sleep(20 * time.Millisecond)
	buf.Close()

	select {
	case dropped := <-unblocked:
		assert.True(t, dropped, "record enqueued after close should count as dropped")
	case <-time.After(time.Second):
		t.Fatal("close did not release blocked producer")
	}
}

func TestBuffer_ConcurrentProducers(t *testing.T) {
	const producers = 8
	const perProducer = 500

	buf, err := New(producers*perProducer, DropOldest)
	require.NoError(t, err)

	var wg sync.WaitGroup
	for p := 0; p < producers; p++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < perProducer; i++ {
				buf.Enqueue(metricRecord(i))
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, producers*perProducer, buf.Len())
	assert.Equal(t, uint64(0), buf.Dropped())
}

func TestBuffer_ConcurrentEnqueueAndDrain(t *testing.T) {
	buf, err := New(64, DropOldest)
	require.NoError(t, err)

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 2000; i++ {
			buf.Enqueue(metricRecord(i))
		}
	}()

	var drained int
	for {
		select {
		case <-done:
			for {
				recs := buf.Drain(64)
				if len(recs) == 0 {
					break
				}
				drained += len(recs)
			}
			// Every record was either drained or counted as dropped.
			assert.Equal(t, 2000, drained+int(buf.Dropped()))
			return
		default:
			drained += len(buf.Drain(16))
		}
	}
}
