package metrics

import (
	"math"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeClock is a manually advanced clock safe for concurrent reads
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func newTestStore(clock *fakeClock) *Store {
	return NewStore(Options{Clock: clock.Now})
}

func TestSummarize_EmptyAndUnknown(t *testing.T) {
	store := newTestStore(newFakeClock())

	assert.Equal(t, Summary{}, store.Summarize("missing", time.Minute))

	store.Record("cpu_usage", 50, nil)
	assert.Equal(t, Summary{}, store.Summarize("cpu_usage", 0))
	assert.Equal(t, Summary{}, store.Summarize("cpu_usage", -time.Second))
}

func TestSummarize_Aggregates(t *testing.T) {
	clock := newFakeClock()
	store := newTestStore(clock)

	for i := 1; i <= 20; i++ {
		store.Record("response_time", float64(i), nil)
	}

	summary := store.SummarizeSeconds("response_time", 60)
	assert.Equal(t, 20, summary.Count)
	assert.Equal(t, 10.5, summary.Avg)
	assert.Equal(t, 1.0, summary.Min)
	assert.Equal(t, 20.0, summary.Max)
	// nearest rank: floor(20*0.95) = 19 -> 20
	assert.Equal(t, 20.0, summary.P95)
}

func TestSummarize_P95NearestRank(t *testing.T) {
	tests := []struct {
		name   string
		values []float64
		p95    float64
	}{
		{"single", []float64{7}, 7},
		{"two values", []float64{1, 2}, 2},
		{"ten values", []float64{10, 9, 8, 7, 6, 5, 4, 3, 2, 1}, 10},
		{"hundred values", seq(100), 96},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			summary := summarize(append([]float64(nil), tt.values...))
			assert.Equal(t, tt.p95, summary.P95)
			assert.LessOrEqual(t, summary.Min, summary.P95)
			assert.LessOrEqual(t, summary.P95, summary.Max)
		})
	}
}

func TestSummarize_WindowFiltersOldSamples(t *testing.T) {
	clock := newFakeClock()
	store := newTestStore(clock)

	store.Record("error_rate", 100, nil)
	clock.Advance(2 * time.Minute)
	store.Record("error_rate", 2, nil)
	store.Record("error_rate", 4, nil)

	summary := store.SummarizeSeconds("error_rate", 60)
	assert.Equal(t, 2, summary.Count)
	assert.Equal(t, 3.0, summary.Avg)

	assert.Equal(t, 3, store.SummarizeSeconds("error_rate", 300).Count)
}

func TestRecord_CountProperty(t *testing.T) {
	clock := newFakeClock()
	store := newTestStore(clock)

	for i := 0; i < 42; i++ {
		store.Record("request_count", 1, map[string]string{"endpoint": "/api"})
		clock.Advance(time.Second)
	}

	assert.Equal(t, 42, store.SummarizeSeconds("request_count", 3600).Count)
}

func TestRecord_RetentionBound(t *testing.T) {
	clock := newFakeClock()
	store := newTestStore(clock)

	for i := 0; i < 4000; i++ {
		store.Record("cpu_usage", 10, nil)
		clock.Advance(time.Second)
	}

	summary := store.SummarizeSeconds("cpu_usage", 7200)
	assert.LessOrEqual(t, summary.Count, 3601)
	assert.GreaterOrEqual(t, summary.Count, 3599)
	assert.Equal(t, summary.Count, store.Len("cpu_usage"))
}

func TestRecord_MaxSamplesPerSeries(t *testing.T) {
	clock := newFakeClock()
	store := NewStore(Options{Clock: clock.Now, MaxSamplesPerSeries: 5})

	for i := 0; i < 8; i++ {
		store.Record("goroutines", float64(i), nil)
	}

	assert.Equal(t, 5, store.Len("goroutines"))
	summary := store.SummarizeSeconds("goroutines", 60)
	assert.Equal(t, 3.0, summary.Min)
	assert.Equal(t, 7.0, summary.Max)
}

func TestRecord_EvictionAtCapacityStaysBounded(t *testing.T) {
	const limit = 100
	store := NewStore(Options{Clock: newFakeClock().Now, MaxSamplesPerSeries: limit})

	for i := 0; i < 100*limit; i++ {
		store.Record("response_time", float64(i), nil)

		ser := store.series["response_time"]
		ser.mu.Lock()
		backing, head := len(ser.samples), ser.head
		ser.mu.Unlock()
		// evicted slots never outnumber live ones, so each record
		// copies O(1) samples on average
		require.LessOrEqual(t, head, backing-head+1, "record %d", i)
		require.LessOrEqual(t, backing, 2*limit+1, "record %d", i)
	}

	assert.Equal(t, limit, store.Len("response_time"))
	summary := store.SummarizeSeconds("response_time", 60)
	assert.Equal(t, float64(100*limit-limit), summary.Min)
	assert.Equal(t, float64(100*limit-1), summary.Max)
}

func TestRecordAt_OutOfOrderAfterEviction(t *testing.T) {
	clock := newFakeClock()
	store := NewStore(Options{Clock: clock.Now, MaxSamplesPerSeries: 4})

	var stamps []time.Time
	for i := 0; i < 6; i++ {
		stamps = append(stamps, clock.Now())
		store.Record("queue_depth", float64(i), nil)
		clock.Advance(10 * time.Second)
	}
	store.RecordAt("queue_depth", 45, nil, stamps[4].Add(5*time.Second))

	ser := store.series["queue_depth"]
	ser.mu.Lock()
	var values []float64
	for _, sample := range ser.live() {
		values = append(values, sample.Value)
	}
	ser.mu.Unlock()

	assert.Equal(t, []float64{3, 4, 45, 5}, values)
	latest, ok := store.Latest("queue_depth")
	require.True(t, ok)
	assert.Equal(t, 5.0, latest.Value)
}

func TestPrune_ForgetsEmptySeries(t *testing.T) {
	clock := newFakeClock()
	store := newTestStore(clock)

	store.Record("burst_metric", 1, nil)
	clock.Advance(30 * time.Minute)
	store.Record("cpu_usage", 50, nil)
	clock.Advance(45 * time.Minute)

	assert.Equal(t, 1, store.Prune())
	assert.Equal(t, []string{"cpu_usage"}, store.Names())
	assert.Equal(t, 1, store.Len("cpu_usage"))
	assert.Zero(t, store.Len("burst_metric"))

	store.Record("burst_metric", 2, nil)
	assert.Equal(t, 1, store.Len("burst_metric"))
	assert.Equal(t, 0, store.Prune())
}

func TestPrune_ConcurrentWithRecord(t *testing.T) {
	store := NewStore(Options{})

	var wg sync.WaitGroup
	stop := make(chan struct{})
	go func() {
		for {
			select {
			case <-stop:
				return
			default:
				store.Prune()
			}
		}
	}()
	for w := 0; w < 4; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 500; i++ {
				store.Record("request_count", 1, nil)
			}
		}()
	}
	wg.Wait()
	close(stop)

	assert.Equal(t, 2000, store.Len("request_count"))
}

func TestRecordAt_OutOfOrderAndExpired(t *testing.T) {
	clock := newFakeClock()
	store := newTestStore(clock)
	now := clock.Now()

	store.RecordAt("disk_usage", 3, nil, now)
	store.RecordAt("disk_usage", 1, nil, now.Add(-30*time.Second))
	store.RecordAt("disk_usage", 2, nil, now.Add(-10*time.Second))
	store.RecordAt("disk_usage", 99, nil, now.Add(-2*time.Hour))

	assert.Equal(t, 3, store.Len("disk_usage"))
	latest, ok := store.Latest("disk_usage")
	require.True(t, ok)
	assert.Equal(t, 3.0, latest.Value)

	assert.Equal(t, 2, store.SummarizeSeconds("disk_usage", 20).Count)
}

func TestRecord_IgnoresNonFinite(t *testing.T) {
	store := newTestStore(newFakeClock())

	store.Record("heap_alloc_bytes", math.NaN(), nil)
	store.Record("heap_alloc_bytes", math.Inf(1), nil)

	assert.Zero(t, store.Len("heap_alloc_bytes"))
}

func TestRecord_TagsAreCopied(t *testing.T) {
	store := newTestStore(newFakeClock())
	tags := map[string]string{"endpoint": "/health"}

	store.Record("response_time", 12, tags)
	tags["endpoint"] = "/mutated"

	latest, ok := store.Latest("response_time")
	require.True(t, ok)
	assert.Equal(t, "/health", latest.Tags["endpoint"])
}

func TestObservers_NotifiedAfterRecord(t *testing.T) {
	clock := newFakeClock()
	store := newTestStore(clock)

	var got []string
	store.AddObserver(RecordObserverFunc(func(name string, at time.Time) {
		// must not deadlock: observers run with no locks held
		got = append(got, name)
		assert.Equal(t, 1, store.SummarizeSeconds(name, 60).Count)
		assert.Equal(t, clock.Now(), at)
	}))

	store.Record("memory_available", 42, nil)
	assert.Equal(t, []string{"memory_available"}, got)
}

func TestNames_Sorted(t *testing.T) {
	store := newTestStore(newFakeClock())
	store.Record("b", 1, nil)
	store.Record("a", 1, nil)
	store.Record("c", 1, nil)

	assert.Equal(t, []string{"a", "b", "c"}, store.Names())
}

func TestStore_ConcurrentRecordAndSummarize(t *testing.T) {
	store := NewStore(Options{})
	var notified atomic.Int64
	store.AddObserver(RecordObserverFunc(func(string, time.Time) { notified.Add(1) }))

	var wg sync.WaitGroup
	for w := 0; w < 8; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 250; i++ {
				store.Record("response_time", float64(i), nil)
				_ = store.SummarizeSeconds("response_time", 60)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 2000, store.SummarizeSeconds("response_time", 60).Count)
	assert.Equal(t, int64(2000), notified.Load())
}

func seq(n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = float64(i + 1)
	}
	return out
}

func BenchmarkRecord_AtCapacity(b *testing.B) {
	store := NewStore(Options{MaxSamplesPerSeries: DefaultMaxSamplesPerSeries})
	for i := 0; i < DefaultMaxSamplesPerSeries; i++ {
		store.Record("response_time", float64(i), nil)
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		store.Record("response_time", float64(i), nil)
	}
}
