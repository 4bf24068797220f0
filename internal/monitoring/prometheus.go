// Package monitoring provides self-monitoring for the engine: Prometheus
// metrics, OpenTelemetry tracing and component health checks.
package monitoring

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// PrometheusMetrics holds the engine's own metrics on a private registry.
// Every Record method is safe to call on a nil receiver.
type PrometheusMetrics struct {
	// Store metrics
	samplesRecorded *prometheus.CounterVec

	// Alert metrics
	alertsTriggered *prometheus.CounterVec
	alertsRefreshed *prometheus.CounterVec
	alertsResolved  *prometheus.CounterVec
	alertsActive    *prometheus.GaugeVec

	// Notification metrics
	notificationsTotal   *prometheus.CounterVec
	notificationDuration *prometheus.HistogramVec
	notificationQueue    prometheus.Gauge
	notificationsDropped *prometheus.CounterVec

	// Collector metrics
	collectorErrors *prometheus.CounterVec

	// HTTP metrics
	httpRequestsTotal   *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec
	rateLimitBlocks     *prometheus.CounterVec

	registry *prometheus.Registry
}

// NewPrometheusMetrics creates and registers all engine metrics
func NewPrometheusMetrics() *PrometheusMetrics {
	pm := &PrometheusMetrics{registry: prometheus.NewRegistry()}

	pm.initStoreMetrics()
	pm.initAlertMetrics()
	pm.initNotificationMetrics()
	pm.initHTTPMetrics()

	pm.registerMetrics()

	return pm
}

func (pm *PrometheusMetrics) initStoreMetrics() {
	pm.samplesRecorded = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "engine_samples_recorded_total",
			Help: "Total number of metric samples stored",
		},
		[]string{"metric"},
	)

	pm.collectorErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "engine_collector_errors_total",
			Help: "Total number of failed sampler runs",
		},
		[]string{"sampler"},
	)
}

func (pm *PrometheusMetrics) initAlertMetrics() {
	pm.alertsTriggered = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "engine_alerts_triggered_total",
			Help: "Total number of alerts created",
		},
		[]string{"level", "type"},
	)

	pm.alertsRefreshed = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "engine_alerts_refreshed_total",
			Help: "Total number of active alert refreshes",
		},
		[]string{"rule"},
	)

	pm.alertsResolved = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "engine_alerts_resolved_total",
			Help: "Total number of resolved alerts",
		},
		[]string{"level"},
	)

	pm.alertsActive = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "engine_alerts_active",
			Help: "Current number of active alerts",
		},
		[]string{"level"},
	)
}

func (pm *PrometheusMetrics) initNotificationMetrics() {
	pm.notificationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "engine_notifications_total",
			Help: "Total number of notification attempts by outcome",
		},
		[]string{"channel", "status"},
	)

	pm.notificationDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "engine_notification_duration_seconds",
			Help:    "Notification delivery duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"channel"},
	)

	pm.notificationQueue = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "engine_notification_queue_length",
			Help: "Current number of queued notification jobs",
		},
	)

	pm.notificationsDropped = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "engine_notifications_dropped_total",
			Help: "Total number of notification jobs dropped because the queue was full",
		},
		[]string{"event"},
	)
}

func (pm *PrometheusMetrics) initHTTPMetrics() {
	pm.httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "endpoint", "status_code"},
	)

	pm.httpRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "endpoint"},
	)

	pm.rateLimitBlocks = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rate_limit_blocks_total",
			Help: "Total number of requests blocked by rate limiting",
		},
		[]string{"endpoint"},
	)
}

// registerMetrics registers all metrics with the registry
func (pm *PrometheusMetrics) registerMetrics() {
	pm.registry.MustRegister(
		pm.samplesRecorded,
		pm.collectorErrors,
		pm.alertsTriggered,
		pm.alertsRefreshed,
		pm.alertsResolved,
		pm.alertsActive,
		pm.notificationsTotal,
		pm.notificationDuration,
		pm.notificationQueue,
		pm.notificationsDropped,
		pm.httpRequestsTotal,
		pm.httpRequestDuration,
		pm.rateLimitBlocks,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
}

// OnRecord counts a stored sample; it lets the metrics act as a store observer
func (pm *PrometheusMetrics) OnRecord(name string, _ time.Time) {
	if pm == nil {
		return
	}
	pm.samplesRecorded.WithLabelValues(name).Inc()
}

// RecordAlertTriggered records a newly created alert
func (pm *PrometheusMetrics) RecordAlertTriggered(level, alertType string) {
	if pm == nil {
		return
	}
	pm.alertsTriggered.WithLabelValues(level, alertType).Inc()
}

// RecordAlertRefreshed records a refresh of an already active alert
func (pm *PrometheusMetrics) RecordAlertRefreshed(rule string) {
	if pm == nil {
		return
	}
	pm.alertsRefreshed.WithLabelValues(rule).Inc()
}

// RecordAlertResolved records a resolved alert
func (pm *PrometheusMetrics) RecordAlertResolved(level string) {
	if pm == nil {
		return
	}
	pm.alertsResolved.WithLabelValues(level).Inc()
}

// SetActiveAlerts records the number of active alerts for a level
func (pm *PrometheusMetrics) SetActiveAlerts(level string, count int) {
	if pm == nil {
		return
	}
	pm.alertsActive.WithLabelValues(level).Set(float64(count))
}

// RecordNotification records one delivery attempt on a channel
func (pm *PrometheusMetrics) RecordNotification(channel, status string, duration time.Duration) {
	if pm == nil {
		return
	}
	pm.notificationsTotal.WithLabelValues(channel, status).Inc()
	if duration > 0 {
		pm.notificationDuration.WithLabelValues(channel).Observe(duration.Seconds())
	}
}

// SetNotificationQueueLength records the current notification queue length
func (pm *PrometheusMetrics) SetNotificationQueueLength(n int) {
	if pm == nil {
		return
	}
	pm.notificationQueue.Set(float64(n))
}

// RecordNotificationDropped records a job rejected by a full queue
func (pm *PrometheusMetrics) RecordNotificationDropped(event string) {
	if pm == nil {
		return
	}
	pm.notificationsDropped.WithLabelValues(event).Inc()
}

// RecordCollectorError records a failed sampler run
func (pm *PrometheusMetrics) RecordCollectorError(sampler string) {
	if pm == nil {
		return
	}
	pm.collectorErrors.WithLabelValues(sampler).Inc()
}

// RecordHTTPRequest records an HTTP request
func (pm *PrometheusMetrics) RecordHTTPRequest(method, endpoint string, statusCode int, duration time.Duration) {
	if pm == nil {
		return
	}
	pm.httpRequestsTotal.WithLabelValues(method, endpoint, strconv.Itoa(statusCode)).Inc()
	pm.httpRequestDuration.WithLabelValues(method, endpoint).Observe(duration.Seconds())
}

// RecordRateLimitBlock records a request blocked by rate limiting
func (pm *PrometheusMetrics) RecordRateLimitBlock(endpoint string) {
	if pm == nil {
		return
	}
	pm.rateLimitBlocks.WithLabelValues(endpoint).Inc()
}

// GetRegistry returns the Prometheus registry
func (pm *PrometheusMetrics) GetRegistry() *prometheus.Registry {
	if pm == nil {
		return nil
	}
	return pm.registry
}

// Handler exposes the registry in the Prometheus text format
func (pm *PrometheusMetrics) Handler() http.Handler {
	if pm == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(pm.registry, promhttp.HandlerOpts{})
}

// PrometheusMiddleware creates a middleware that records Prometheus metrics.
// The endpoint label is the matched route pattern so path values do not
// inflate cardinality.
func PrometheusMiddleware(metrics *PrometheusMetrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			rw := NewResponseWriter(w)
			next.ServeHTTP(rw, r)

			metrics.RecordHTTPRequest(r.Method, RouteLabel(r), rw.StatusCode, time.Since(start))
		})
	}
}

// RouteLabel returns the mux pattern that served r, or "unmatched"
func RouteLabel(r *http.Request) string {
	if r.Pattern != "" {
		return r.Pattern
	}
	return "unmatched"
}
