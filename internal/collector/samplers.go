package collector

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sort"
	"time"

	"github.com/shirou/gopsutil/v4/cpu"
	"github.com/shirou/gopsutil/v4/disk"
	"github.com/shirou/gopsutil/v4/mem"

	"github.com/atlet99/metric-alert-engine/internal/metrics"
)

// Metric names written by the built-in samplers and middleware
const (
	MetricCPUUsage        = "cpu_usage"
	MetricMemoryUsage     = "memory_usage"
	MetricMemoryAvailable = "memory_available"
	MetricDiskUsage       = "disk_usage"
	MetricGoroutines      = "goroutines"
	MetricHeapAlloc       = "heap_alloc_bytes"
	MetricErrorRate       = "error_rate"
	MetricResponseTime    = "response_time"
	MetricRequestCount    = "request_count"
	MetricErrorCount      = "error_count"
	MetricNotifyQueue     = "notification_queue_length"
)

// BuiltinMetrics lists every metric name the collector can produce
func BuiltinMetrics() []string {
	return []string{
		MetricCPUUsage, MetricMemoryUsage, MetricMemoryAvailable, MetricDiskUsage,
		MetricGoroutines, MetricHeapAlloc, MetricErrorRate, MetricResponseTime,
		MetricRequestCount, MetricErrorCount, MetricNotifyQueue,
	}
}

// HostSampler reads CPU, memory and disk utilisation through gopsutil
type HostSampler struct {
	diskPath string
	prev     *cpu.TimesStat
}

// NewHostSampler creates a host sampler reporting disk usage for diskPath
func NewHostSampler(diskPath string) *HostSampler {
	if diskPath == "" {
		diskPath = "/"
	}
	return &HostSampler{diskPath: diskPath}
}

// Name implements Sampler
func (s *HostSampler) Name() string { return "host" }

// Sample implements Sampler. Each source is read independently so one
// failing probe does not hide the others.
func (s *HostSampler) Sample(ctx context.Context) ([]Reading, error) {
	var (
		out  []Reading
		errs []error
	)

	if pct, err := s.cpuPercent(ctx); err != nil {
		errs = append(errs, fmt.Errorf("cpu: %w", err))
	} else {
		out = append(out, Reading{Name: MetricCPUUsage, Value: pct})
	}

	if vm, err := mem.VirtualMemoryWithContext(ctx); err != nil {
		errs = append(errs, fmt.Errorf("memory: %w", err))
	} else {
		available := 0.0
		if vm.Total > 0 {
			available = float64(vm.Available) / float64(vm.Total) * 100
		}
		out = append(out,
			Reading{Name: MetricMemoryUsage, Value: vm.UsedPercent},
			Reading{Name: MetricMemoryAvailable, Value: available},
		)
	}

	if usage, err := disk.UsageWithContext(ctx, s.diskPath); err != nil {
		errs = append(errs, fmt.Errorf("disk %s: %w", s.diskPath, err))
	} else {
		out = append(out, Reading{Name: MetricDiskUsage, Value: usage.UsedPercent, Tags: map[string]string{"path": s.diskPath}})
	}

	return out, errors.Join(errs...)
}

// cpuPercent is busy time over total time since the previous call,
// or since boot on the first call
func (s *HostSampler) cpuPercent(ctx context.Context) (float64, error) {
	times, err := cpu.TimesWithContext(ctx, false)
	if err != nil {
		return 0, err
	}
	if len(times) == 0 {
		return 0, errors.New("no cpu times reported")
	}
	cur := times[0]
	defer func() { s.prev = &cur }()

	total, idle := cpuTotals(cur)
	if s.prev != nil {
		prevTotal, prevIdle := cpuTotals(*s.prev)
		total -= prevTotal
		idle -= prevIdle
	}
	if total <= 0 {
		return 0, nil
	}
	return (total - idle) / total * 100, nil
}

func cpuTotals(t cpu.TimesStat) (total, idle float64) {
	idle = t.Idle + t.Iowait
	total = idle + t.User + t.System + t.Nice + t.Irq + t.Softirq + t.Steal
	return total, idle
}

// RuntimeSampler reports Go runtime figures for this process
type RuntimeSampler struct{}

// Name implements Sampler
func (RuntimeSampler) Name() string { return "runtime" }

// Sample implements Sampler
func (RuntimeSampler) Sample(context.Context) ([]Reading, error) {
	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)
	return []Reading{
		{Name: MetricGoroutines, Value: float64(runtime.NumGoroutine())},
		{Name: MetricHeapAlloc, Value: float64(ms.HeapAlloc)},
	}, nil
}

// GaugeFunc reads one application-defined value, e.g. open DB connections
type GaugeFunc func(ctx context.Context) (float64, error)

// GaugeSampler samples a set of named GaugeFuncs
type GaugeSampler struct {
	gauges map[string]GaugeFunc
}

// NewGaugeSampler creates a sampler over gauges keyed by metric name
func NewGaugeSampler(gauges map[string]GaugeFunc) *GaugeSampler {
	cp := make(map[string]GaugeFunc, len(gauges))
	for k, v := range gauges {
		cp[k] = v
	}
	return &GaugeSampler{gauges: cp}
}

// Name implements Sampler
func (s *GaugeSampler) Name() string { return "gauges" }

// Sample implements Sampler
func (s *GaugeSampler) Sample(ctx context.Context) ([]Reading, error) {
	names := make([]string, 0, len(s.gauges))
	for name := range s.gauges {
		names = append(names, name)
	}
	sort.Strings(names)

	var (
		out  []Reading
		errs []error
	)
	for _, name := range names {
		v, err := s.gauges[name](ctx)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", name, err))
			continue
		}
		out = append(out, Reading{Name: name, Value: v})
	}
	return out, errors.Join(errs...)
}

// Summarizer is the read side of the metric store
type Summarizer interface {
	Summarize(name string, window time.Duration) metrics.Summary
}

// ErrorRateSampler derives error_rate as errors per hundred requests over
// the last window, from the counts the HTTP middleware records
type ErrorRateSampler struct {
	store  Summarizer
	window time.Duration
}

// NewErrorRateSampler creates an error-rate sampler over window
func NewErrorRateSampler(store Summarizer, window time.Duration) *ErrorRateSampler {
	if window <= 0 {
		window = DefaultInterval
	}
	return &ErrorRateSampler{store: store, window: window}
}

// Name implements Sampler
func (s *ErrorRateSampler) Name() string { return "error_rate" }

// Sample implements Sampler. No traffic means no reading.
func (s *ErrorRateSampler) Sample(context.Context) ([]Reading, error) {
	requests := s.store.Summarize(MetricRequestCount, s.window).Count
	if requests == 0 {
		return nil, nil
	}
	errs := s.store.Summarize(MetricErrorCount, s.window).Count
	return []Reading{{Name: MetricErrorRate, Value: float64(errs) / float64(requests) * 100}}, nil
}
