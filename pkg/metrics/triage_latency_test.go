package metrics

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLatencyTracker_Stats(t *testing.T) {
	tr := NewLatencyTracker(100)
	for i := 1; i <= 100; i++ {
		tr.Record(time.Duration(i) * time.Millisecond)
	}

	s := tr.Stats()
	assert.Equal(t, int64(100), s.Count)
	assert.Equal(t, 100, s.Samples)
	assert.InDelta(t, 50.5, s.AvgMS, 0.01)
	assert.InDelta(t, 50, s.P50MS, 0.01)
	assert.InDelta(t, 95, s.P95MS, 0.01)
	assert.InDelta(t, 100, s.MaxMS, 0.01)
}

func TestLatencyTracker_WindowSlides(t *testing.T) {
	tr := NewLatencyTracker(4)
	for _, d := range []int{100, 100, 1, 2, 3, 4} {
		tr.Record(time.Duration(d) * time.Millisecond)
	}

	s := tr.Stats()
	assert.Equal(t, int64(6), s.Count)
	assert.Equal(t, 4, s.Samples)
	assert.InDelta(t, 4, s.MaxMS, 0.01)
}

func TestLatencyTracker_Empty(t *testing.T) {
	assert.Equal(t, LatencyStats{}, NewLatencyTracker(0).Stats())
}

func TestLatencyRegistry(t *testing.T) {
	r := NewLatencyRegistry(10)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			r.Record("ingest", time.Millisecond)
			r.Record("GET /api/v1/messages", 2*time.Millisecond)
		}()
	}
	wg.Wait()

	all := r.AllStats()
	assert.Len(t, all, 2)
	assert.Equal(t, int64(8), all["ingest"].Count)
	assert.Equal(t, 8, r.Stats("ingest").Samples)
	assert.Equal(t, LatencyStats{}, r.Stats("missing"))
}
