// Package collector samples host, runtime and application metrics into the
// metric store on a fixed interval, and records per-request HTTP metrics.
package collector

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"time"

	"github.com/atlet99/metric-alert-engine/internal/monitoring"
)

// DefaultInterval is the sampling period when none is configured
const DefaultInterval = 60 * time.Second

// Reading is one value produced by a Sampler
type Reading struct {
	Name  string
	Value float64
	Tags  map[string]string
}

// Sampler produces readings for one source
type Sampler interface {
	Name() string
	Sample(ctx context.Context) ([]Reading, error)
}

// Recorder accepts readings; *metrics.Store satisfies it
type Recorder interface {
	Record(name string, value float64, tags map[string]string)
}

// Options configures a Collector
type Options struct {
	Interval time.Duration
	Logger   *slog.Logger
	Metrics  *monitoring.PrometheusMetrics
}

// Collector runs every sampler once per interval
type Collector struct {
	sink     Recorder
	samplers []Sampler
	interval time.Duration
	logger   *slog.Logger
	metrics  *monitoring.PrometheusMetrics
}

// New creates a collector writing into sink
func New(sink Recorder, samplers []Sampler, opts Options) *Collector {
	if opts.Interval <= 0 {
		opts.Interval = DefaultInterval
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Collector{
		sink:     sink,
		samplers: samplers,
		interval: opts.Interval,
		logger:   opts.Logger,
		metrics:  opts.Metrics,
	}
}

// Interval returns the sampling period
func (c *Collector) Interval() time.Duration { return c.interval }

// Run samples immediately and then on every tick until ctx is cancelled
func (c *Collector) Run(ctx context.Context) error {
	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	c.logger.Info("System metrics collector started", "interval", c.interval, "samplers", len(c.samplers))
	c.CollectOnce(ctx)

	for {
		select {
		case <-ctx.Done():
			c.logger.Info("System metrics collector stopped")
			return nil
		case <-ticker.C:
			c.CollectOnce(ctx)
		}
	}
}

// CollectOnce runs every sampler and records what they return.
// A failing sampler is logged and counted; the rest still run.
func (c *Collector) CollectOnce(ctx context.Context) {
	for _, s := range c.samplers {
		readings, err := c.sample(ctx, s)
		if err != nil {
			c.logger.Warn("Sampler failed", "sampler", s.Name(), "error", err)
			c.metrics.RecordCollectorError(s.Name())
		}
		// partial results are still recorded
		for _, r := range readings {
			c.sink.Record(r.Name, r.Value, r.Tags)
		}
	}
}

func (c *Collector) sample(ctx context.Context, s Sampler) (readings []Reading, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			readings = nil
			err = fmt.Errorf("sampler panicked: %v\n%s", rec, debug.Stack())
		}
	}()
	return s.Sample(ctx)
}
