// Package metrics holds the in-memory time series store that backs rule
// evaluation. Series are bounded by a retention horizon and a per-series
// sample cap.
package metrics

import (
	"math"
	"sort"
	"sync"
	"time"
)

const (
	// DefaultRetention is how long samples are kept when no retention is configured
	DefaultRetention = time.Hour
	// DefaultMaxSamplesPerSeries caps a single series regardless of retention
	DefaultMaxSamplesPerSeries = 100000
)

// Sample is a single timestamped observation
type Sample struct {
	Timestamp time.Time         `json:"timestamp"`
	Value     float64           `json:"value"`
	Tags      map[string]string `json:"tags,omitempty"`
}

// Summary aggregates the samples of one series inside a trailing window
type Summary struct {
	Count int     `json:"count"`
	Avg   float64 `json:"avg"`
	Min   float64 `json:"min"`
	Max   float64 `json:"max"`
	P95   float64 `json:"p95"`
}

// RecordObserver is notified after a sample has been stored.
// OnRecord runs on the recording goroutine with no store locks held.
type RecordObserver interface {
	OnRecord(name string, at time.Time)
}

// RecordObserverFunc adapts a function to RecordObserver
type RecordObserverFunc func(name string, at time.Time)

// OnRecord calls f(name, at)
func (f RecordObserverFunc) OnRecord(name string, at time.Time) { f(name, at) }

// Options configures a Store
type Options struct {
	Retention           time.Duration
	MaxSamplesPerSeries int
	// Clock overrides time.Now, mainly for tests
	Clock func() time.Time
}

// series keeps samples in timestamp order. samples[:head] are evicted slots
// awaiting compaction, so eviction advances head instead of shifting.
type series struct {
	mu      sync.Mutex
	samples []Sample
	head    int
	// removed is set once Prune has dropped the series from the store
	removed bool
}

func (ser *series) live() []Sample { return ser.samples[ser.head:] }

// Store keeps one time-ordered series per metric name
type Store struct {
	mu     sync.RWMutex
	series map[string]*series

	retention  time.Duration
	maxSamples int
	now        func() time.Time

	obsMu     sync.RWMutex
	observers []RecordObserver
}

// NewStore creates a store, filling zero options with defaults
func NewStore(opts Options) *Store {
	if opts.Retention <= 0 {
		opts.Retention = DefaultRetention
	}
	if opts.MaxSamplesPerSeries <= 0 {
		opts.MaxSamplesPerSeries = DefaultMaxSamplesPerSeries
	}
	if opts.Clock == nil {
		opts.Clock = time.Now
	}
	return &Store{
		series:     make(map[string]*series),
		retention:  opts.Retention,
		maxSamples: opts.MaxSamplesPerSeries,
		now:        opts.Clock,
	}
}

// Retention returns the configured retention horizon
func (s *Store) Retention() time.Duration { return s.retention }

// Now returns the store clock's current time
func (s *Store) Now() time.Time { return s.now() }

// AddObserver registers o to be notified of every stored sample
func (s *Store) AddObserver(o RecordObserver) {
	s.obsMu.Lock()
	s.observers = append(s.observers, o)
	s.obsMu.Unlock()
}

// Record stores a sample stamped with the store clock
func (s *Store) Record(name string, value float64, tags map[string]string) {
	s.RecordAt(name, value, tags, s.now())
}

// RecordAt stores a sample with an explicit timestamp. Non-finite values and
// samples already outside the retention horizon are discarded without
// notifying observers.
func (s *Store) RecordAt(name string, value float64, tags map[string]string, at time.Time) {
	if math.IsNaN(value) || math.IsInf(value, 0) {
		return
	}

	cutoff := s.now().Add(-s.retention)
	if at.Before(cutoff) {
		return
	}

	sample := Sample{Timestamp: at, Value: value, Tags: copyTags(tags)}
	for {
		ser := s.getOrCreate(name)
		ser.mu.Lock()
		if ser.removed {
			ser.mu.Unlock()
			continue
		}
		ser.insert(sample)
		ser.prune(cutoff, s.maxSamples)
		ser.mu.Unlock()
		break
	}

	s.obsMu.RLock()
	observers := s.observers
	s.obsMu.RUnlock()

	for _, o := range observers {
		o.OnRecord(name, at)
	}
}

// Summarize aggregates samples of name within [now-duration, now].
// Unknown names and empty windows yield a zero Summary.
func (s *Store) Summarize(name string, duration time.Duration) Summary {
	if duration <= 0 {
		return Summary{}
	}

	s.mu.RLock()
	ser, ok := s.series[name]
	s.mu.RUnlock()
	if !ok {
		return Summary{}
	}

	now := s.now()
	values := ser.window(now.Add(-duration), now)
	return summarize(values)
}

// SummarizeSeconds is Summarize with the window given in whole seconds
func (s *Store) SummarizeSeconds(name string, seconds int) Summary {
	return s.Summarize(name, time.Duration(seconds)*time.Second)
}

// Names returns the known metric names in sorted order
func (s *Store) Names() []string {
	s.mu.RLock()
	names := make([]string, 0, len(s.series))
	for name := range s.series {
		names = append(names, name)
	}
	s.mu.RUnlock()

	sort.Strings(names)
	return names
}

// Latest returns the most recent sample of name
func (s *Store) Latest(name string) (Sample, bool) {
	s.mu.RLock()
	ser, ok := s.series[name]
	s.mu.RUnlock()
	if !ok {
		return Sample{}, false
	}

	ser.mu.Lock()
	defer ser.mu.Unlock()
	live := ser.live()
	if len(live) == 0 {
		return Sample{}, false
	}
	latest := live[len(live)-1]
	latest.Tags = copyTags(latest.Tags)
	return latest, true
}

// Prune evicts samples older than the retention horizon from every series
// and forgets series left empty. It returns the number of series removed.
func (s *Store) Prune() int {
	cutoff := s.now().Add(-s.retention)

	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for name, ser := range s.series {
		ser.mu.Lock()
		ser.prune(cutoff, s.maxSamples)
		if len(ser.live()) == 0 {
			ser.removed = true
			delete(s.series, name)
			removed++
		}
		ser.mu.Unlock()
	}
	return removed
}

// Len returns the number of retained samples for name
func (s *Store) Len(name string) int {
	s.mu.RLock()
	ser, ok := s.series[name]
	s.mu.RUnlock()
	if !ok {
		return 0
	}

	ser.mu.Lock()
	defer ser.mu.Unlock()
	return len(ser.live())
}

func (s *Store) getOrCreate(name string) *series {
	s.mu.RLock()
	ser, ok := s.series[name]
	s.mu.RUnlock()
	if ok {
		return ser
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if ser, ok = s.series[name]; !ok {
		ser = &series{}
		s.series[name] = ser
	}
	return ser
}

// insert keeps samples ordered by timestamp; equal timestamps keep arrival order
func (ser *series) insert(sample Sample) {
	live := ser.live()
	n := len(live)
	if n == 0 || !sample.Timestamp.Before(live[n-1].Timestamp) {
		ser.samples = append(ser.samples, sample)
		return
	}

	idx := ser.head + sort.Search(n, func(i int) bool {
		return live[i].Timestamp.After(sample.Timestamp)
	})
	ser.samples = append(ser.samples, Sample{})
	copy(ser.samples[idx+1:], ser.samples[idx:])
	ser.samples[idx] = sample
}

// prune evicts samples older than cutoff and the oldest samples beyond limit.
// Evicted slots are compacted away once they outnumber the live samples,
// which keeps eviction amortized O(1) per record.
func (ser *series) prune(cutoff time.Time, limit int) {
	live := ser.live()
	drop := sort.Search(len(live), func(i int) bool {
		return !live[i].Timestamp.Before(cutoff)
	})
	if over := len(live) - drop - limit; over > 0 {
		drop += over
	}
	if drop == 0 {
		return
	}

	clear(ser.samples[ser.head : ser.head+drop])
	ser.head += drop

	if ser.head > len(ser.samples)/2 {
		n := copy(ser.samples, ser.samples[ser.head:])
		clear(ser.samples[n:])
		ser.samples = ser.samples[:n]
		ser.head = 0
	}
}

func (ser *series) window(from, to time.Time) []float64 {
	ser.mu.Lock()
	defer ser.mu.Unlock()

	live := ser.live()
	start := sort.Search(len(live), func(i int) bool {
		return !live[i].Timestamp.Before(from)
	})
	end := sort.Search(len(live), func(i int) bool {
		return live[i].Timestamp.After(to)
	})
	if start >= end {
		return nil
	}

	values := make([]float64, 0, end-start)
	for _, sample := range live[start:end] {
		values = append(values, sample.Value)
	}
	return values
}

func summarize(values []float64) Summary {
	if len(values) == 0 {
		return Summary{}
	}

	sort.Float64s(values)

	var sum float64
	for _, v := range values {
		sum += v
	}

	n := len(values)
	idx := int(math.Floor(float64(n) * 0.95))
	if idx >= n {
		idx = n - 1
	}

	return Summary{
		Count: n,
		Avg:   sum / float64(n),
		Min:   values[0],
		Max:   values[n-1],
		P95:   values[idx],
	}
}

func copyTags(tags map[string]string) map[string]string {
	if len(tags) == 0 {
		return nil
	}
	out := make(map[string]string, len(tags))
	for k, v := range tags {
		out[k] = v
	}
	return out
}
