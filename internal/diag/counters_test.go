package diag

import (
	"encoding/json"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCounters_SnapshotReflectsAdds(t *testing.T) {
	c := NewCounters()
	c.AddEnqueued(10)
	c.AddDropped(2)
	c.AddExported(3)
	c.AddAbandoned(1)
	c.AddEnqueued(5)

	snap := c.Snapshot()
	assert.Equal(t, uint64(15), snap.RecordsEnqueued)
	assert.Equal(t, uint64(2), snap.RecordsDropped)
	assert.Equal(t, uint64(3), snap.BatchesExported)
	assert.Equal(t, uint64(1), snap.BatchesAbandoned)
}

func TestCounters_Reset(t *testing.T) {
	c := NewCounters()
	c.AddEnqueued(100)
	c.AddAbandoned(7)
	c.Reset()

	assert.Equal(t, Snapshot{}, c.Snapshot())
}

func TestCounters_ConcurrentAdds(t *testing.T) {
	c := NewCounters()

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 1000; j++ {
				c.AddEnqueued(1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, uint64(16000), c.Snapshot().RecordsEnqueued)
}

func TestSnapshot_JSONKeys(t *testing.T) {
	c := NewCounters()
	c.AddEnqueued(1)
	c.AddDropped(2)
	c.AddExported(3)
	c.AddAbandoned(4)

	data, err := json.Marshal(c.Snapshot())
	require.NoError(t, err)

	var m map[string]uint64
	require.NoError(t, json.Unmarshal(data, &m))
	assert.Equal(t, map[string]uint64{
		"records_enqueued":  1,
		"records_dropped":   2,
		"batches_exported":  3,
		"batches_abandoned": 4,
	}, m)
}
