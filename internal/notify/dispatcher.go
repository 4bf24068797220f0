package notify

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"golang.org/x/time/rate"

	"github.com/atlet99/metric-alert-engine/internal/alerting"
	"github.com/atlet99/metric-alert-engine/internal/async"
	"github.com/atlet99/metric-alert-engine/internal/monitoring"
)

// Default dispatcher settings
const (
	DefaultSendTimeout = 10 * time.Second
	DefaultRateLimit   = 5.0
	DefaultRateBurst   = 10
)

// Delivery outcomes reported to Prometheus
const (
	statusSent        = "sent"
	statusFailed      = "failed"
	statusRateLimited = "rate_limited"
)

// DispatcherOptions configures a Dispatcher
type DispatcherOptions struct {
	Workers     int
	QueueSize   int
	SendTimeout time.Duration
	// RateLimit is the per-channel sustained rate in notifications per second
	RateLimit float64
	RateBurst int

	Logger  *slog.Logger
	Metrics *monitoring.PrometheusMetrics
	Tracer  *monitoring.Tracer
}

// Dispatcher routes alerts to channels on a bounded background queue.
// It implements alerting.AlertHandler and alerting.ResolutionHandler.
type Dispatcher struct {
	channels map[string]Channel
	limiters map[string]*rate.Limiter
	pool     *async.WorkerPool
	opts     DispatcherOptions
	logger   *slog.Logger
}

// NewDispatcher creates a dispatcher over the configured channels.
// Channels missing from the slice are skipped when routed to.
func NewDispatcher(channels []Channel, opts DispatcherOptions) *Dispatcher {
	if opts.SendTimeout <= 0 {
		opts.SendTimeout = DefaultSendTimeout
	}
	if opts.RateLimit <= 0 {
		opts.RateLimit = DefaultRateLimit
	}
	if opts.RateBurst <= 0 {
		opts.RateBurst = DefaultRateBurst
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Tracer == nil {
		opts.Tracer = monitoring.NewNoopTracer()
	}

	d := &Dispatcher{
		channels: make(map[string]Channel, len(channels)),
		limiters: make(map[string]*rate.Limiter, len(channels)),
		opts:     opts,
		logger:   opts.Logger,
	}
	for _, ch := range channels {
		d.channels[ch.Name()] = ch
		d.limiters[ch.Name()] = rate.NewLimiter(rate.Limit(opts.RateLimit), opts.RateBurst)
	}

	d.pool = async.NewWorkerPool(async.PoolOptions{
		Workers:   opts.Workers,
		QueueSize: opts.QueueSize,
		// each channel gets its own SendTimeout; the job bound covers the whole route
		JobTimeout:    opts.SendTimeout * time.Duration(len(channels)+1),
		Logger:        opts.Logger,
		OnQueueLength: opts.Metrics.SetNotificationQueueLength,
	})
	return d
}

// Channels returns the names of configured channels
func (d *Dispatcher) Channels() []string {
	names := make([]string, 0, len(d.channels))
	for _, name := range []string{ChannelLog, ChannelEmail, ChannelChat, ChannelWebhook} {
		if _, ok := d.channels[name]; ok {
			names = append(names, name)
		}
	}
	return names
}

// Start launches the delivery workers
func (d *Dispatcher) Start() {
	d.pool.Start()
}

// Stop stops accepting notifications and drains the queue until ctx ends
func (d *Dispatcher) Stop(ctx context.Context) error {
	return d.pool.Stop(ctx)
}

// QueueLength returns the number of notifications waiting for a worker
func (d *Dispatcher) QueueLength() int {
	return d.pool.GetStats().QueueLength
}

// Capacity returns the queue capacity
func (d *Dispatcher) Capacity() int {
	return d.pool.GetStats().QueueCapacity
}

// Stats returns worker pool statistics
func (d *Dispatcher) Stats() async.PoolStats {
	return d.pool.GetStats()
}

// Notify enqueues a triggered alert
func (d *Dispatcher) Notify(alert alerting.Alert) {
	d.enqueue(Notification{Event: EventTriggered, Alert: alert})
}

// NotifyResolved enqueues a resolution notice
func (d *Dispatcher) NotifyResolved(alert alerting.Alert) {
	d.enqueue(Notification{Event: EventResolved, Alert: alert})
}

func (d *Dispatcher) enqueue(n Notification) {
	_, err := d.pool.Submit("notify:"+n.Alert.ID, func(ctx context.Context) error {
		d.deliver(ctx, n)
		return nil
	})
	if err == nil {
		return
	}

	d.opts.Metrics.RecordNotificationDropped(string(n.Event))
	if errors.Is(err, async.ErrQueueFull) {
		d.logger.Warn("Notification queue full, dropping notification",
			"alert_id", n.Alert.ID, "event", n.Event, "capacity", d.Capacity())
		return
	}
	d.logger.Warn("Notification dropped", "alert_id", n.Alert.ID, "event", n.Event, "error", err)
}

// deliver walks the route in order; one channel failing never stops the rest
func (d *Dispatcher) deliver(ctx context.Context, n Notification) {
	for _, name := range Route(n) {
		ch, ok := d.channels[name]
		if !ok {
			continue
		}

		if !d.limiters[name].Allow() {
			d.logger.Warn("Notification rate limited",
				"channel", name, "alert_id", n.Alert.ID, "event", n.Event)
			d.opts.Metrics.RecordNotification(name, statusRateLimited, 0)
			continue
		}

		d.send(ctx, ch, n)
	}
}

func (d *Dispatcher) send(ctx context.Context, ch Channel, n Notification) {
	ctx, cancel := context.WithTimeout(ctx, d.opts.SendTimeout)
	defer cancel()

	ctx, span := d.opts.Tracer.StartNotificationSpan(ctx, ch.Name(), n.Alert.ID, string(n.Alert.Level))
	start := time.Now()
	err := ch.Send(ctx, n)
	elapsed := time.Since(start)
	monitoring.EndSpan(span, err)

	if err != nil {
		d.logger.Error("Notification delivery failed",
			"channel", ch.Name(),
			"alert_id", n.Alert.ID,
			"event", n.Event,
			"error", err)
		d.opts.Metrics.RecordNotification(ch.Name(), statusFailed, elapsed)
		return
	}

	d.logger.Debug("Notification delivered",
		"channel", ch.Name(), "alert_id", n.Alert.ID, "event", n.Event, "duration", elapsed)
	d.opts.Metrics.RecordNotification(ch.Name(), statusSent, elapsed)
}
