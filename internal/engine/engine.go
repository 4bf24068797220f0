// Package engine wires the metric store, rule registry, evaluator, alert
// manager and notification dispatcher into one explicitly constructed unit.
package engine

import (
	"context"
	"log/slog"
	"math"
	"strings"
	"time"

	"github.com/atlet99/metric-alert-engine/internal/alerting"
	"github.com/atlet99/metric-alert-engine/internal/collector"
	"github.com/atlet99/metric-alert-engine/internal/errors"
	"github.com/atlet99/metric-alert-engine/internal/metrics"
	"github.com/atlet99/metric-alert-engine/internal/monitoring"
	"github.com/atlet99/metric-alert-engine/internal/notify"
)

// Defaults for alert history housekeeping
const (
	DefaultAlertHistoryRetention = 24 * time.Hour
	DefaultJanitorInterval       = 5 * time.Minute
	drainTimeout                 = 10 * time.Second

	// otherMetricLabel groups sample counts of metrics that no rule watches
	// and no sampler produces, keeping the label set bounded
	otherMetricLabel = "other"
)

// Options configures an Engine
type Options struct {
	Retention           time.Duration
	MaxSamplesPerSeries int

	AlertHistoryRetention time.Duration
	JanitorInterval       time.Duration
	SeedDefaultRules      bool

	Channels     []notify.Channel
	Notification notify.DispatcherOptions

	Logger  *slog.Logger
	Metrics *monitoring.PrometheusMetrics
	Tracer  *monitoring.Tracer
	// Clock overrides time.Now for the store and alert manager
	Clock func() time.Time
}

// Engine is the metrics and alerting facade used by the HTTP API
type Engine struct {
	store      *metrics.Store
	rules      *alerting.Registry
	manager    *alerting.Manager
	evaluator  *alerting.Evaluator
	dispatcher *notify.Dispatcher

	metrics *monitoring.PrometheusMetrics
	logger  *slog.Logger

	historyRetention time.Duration
	janitorInterval  time.Duration

	builtinMetrics map[string]struct{}
}

// New builds an engine. Notification workers start in Run.
func New(opts Options) *Engine {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.AlertHistoryRetention <= 0 {
		opts.AlertHistoryRetention = DefaultAlertHistoryRetention
	}
	if opts.JanitorInterval <= 0 {
		opts.JanitorInterval = DefaultJanitorInterval
	}

	store := metrics.NewStore(metrics.Options{
		Retention:           opts.Retention,
		MaxSamplesPerSeries: opts.MaxSamplesPerSeries,
		Clock:               opts.Clock,
	})
	rules := alerting.NewRegistry()

	managerOpts := alerting.ManagerOptions{
		Logger: opts.Logger.With("component", "alert-manager"),
		Clock:  opts.Clock,
	}
	if opts.Metrics != nil {
		managerOpts.Recorder = opts.Metrics
	}
	manager := alerting.NewManager(managerOpts)
	evaluator := alerting.NewEvaluator(store, rules, manager, opts.Logger.With("component", "evaluator"))

	notifyOpts := opts.Notification
	notifyOpts.Logger = opts.Logger.With("component", "notify")
	notifyOpts.Metrics = opts.Metrics
	notifyOpts.Tracer = opts.Tracer
	dispatcher := notify.NewDispatcher(opts.Channels, notifyOpts)

	e := &Engine{
		store:            store,
		rules:            rules,
		manager:          manager,
		evaluator:        evaluator,
		dispatcher:       dispatcher,
		metrics:          opts.Metrics,
		logger:           opts.Logger,
		historyRetention: opts.AlertHistoryRetention,
		janitorInterval:  opts.JanitorInterval,
		builtinMetrics:   make(map[string]struct{}),
	}
	for _, name := range collector.BuiltinMetrics() {
		e.builtinMetrics[name] = struct{}{}
	}

	if opts.Metrics != nil {
		store.AddObserver(metrics.RecordObserverFunc(func(name string, at time.Time) {
			opts.Metrics.OnRecord(e.sampleLabel(name), at)
		}))
	}
	store.AddObserver(evaluator)
	manager.AddHandler(dispatcher)
	manager.AddResolutionHandler(dispatcher)

	if opts.SeedDefaultRules {
		for _, rule := range alerting.DefaultRules() {
			if err := rules.Create(rule); err != nil {
				e.logger.Warn("Skipping default rule", "rule", rule.Name, "error", err)
			}
		}
		e.logger.Info("Seeded default alert rules", "count", rules.Len())
	}

	return e
}

// Run starts notification delivery and the janitor, and blocks until ctx is
// cancelled and queued notifications are drained
func (e *Engine) Run(ctx context.Context) error {
	e.dispatcher.Start()
	e.logger.Info("Alert engine started",
		"channels", e.dispatcher.Channels(),
		"rules", e.rules.Len(),
		"retention", e.store.Retention())

	ticker := time.NewTicker(e.janitorInterval)
	defer ticker.Stop()
	for done := false; !done; {
		select {
		case <-ticker.C:
			e.Housekeep()
		case <-ctx.Done():
			done = true
		}
	}

	drainCtx, cancel := context.WithTimeout(context.Background(), drainTimeout)
	defer cancel()
	if err := e.dispatcher.Stop(drainCtx); err != nil {
		e.logger.Warn("Notification queue not fully drained", "error", err)
		return err
	}
	e.logger.Info("Alert engine stopped")
	return nil
}

// Housekeep drops resolved alerts past the history retention and metric
// series whose samples have all expired
func (e *Engine) Housekeep() {
	if removed := e.manager.Prune(e.historyRetention); removed > 0 {
		e.logger.Info("Pruned resolved alerts", "count", removed)
	}
	if removed := e.store.Prune(); removed > 0 {
		e.logger.Debug("Dropped expired metric series", "count", removed)
	}
}

func (e *Engine) sampleLabel(name string) string {
	if _, ok := e.builtinMetrics[name]; ok || e.rules.Watches(name) {
		return name
	}
	return otherMetricLabel
}

// Store exposes the underlying metric store, e.g. for collectors
func (e *Engine) Store() *metrics.Store { return e.store }

// Dispatcher exposes notification delivery for health checks
func (e *Engine) Dispatcher() *notify.Dispatcher { return e.dispatcher }

// RecordMetric stores a sample and evaluates the rules watching its metric
func (e *Engine) RecordMetric(name string, value float64, tags map[string]string) error {
	if strings.TrimSpace(name) == "" {
		return errors.Validation("name", "must not be empty")
	}
	if math.IsNaN(value) || math.IsInf(value, 0) {
		return errors.Validation("value", "must be a finite number")
	}
	e.store.Record(name, value, tags)
	return nil
}

// GetMetricsSummary summarizes name over the trailing durationSeconds
func (e *Engine) GetMetricsSummary(name string, durationSeconds int) metrics.Summary {
	return e.store.SummarizeSeconds(name, durationSeconds)
}

// MetricNames lists every metric with stored samples
func (e *Engine) MetricNames() []string { return e.store.Names() }

// GetActiveAlerts returns unresolved alerts, oldest first
func (e *Engine) GetActiveAlerts() []alerting.Alert { return e.manager.ActiveAlerts() }

// GetAlert returns one alert by ID
func (e *Engine) GetAlert(id string) (alerting.Alert, error) { return e.manager.Get(id) }

// GetAlertStatistics aggregates alerts raised in the trailing durationSeconds
func (e *Engine) GetAlertStatistics(durationSeconds int) alerting.Statistics {
	return e.manager.Statistics(time.Duration(durationSeconds) * time.Second)
}

// ResolveAlert resolves an alert and queues its resolution notice
func (e *Engine) ResolveAlert(id string) (alerting.Alert, error) {
	return e.manager.Resolve(id)
}

// CreateRule adds a rule; an existing name is a CONFLICT
func (e *Engine) CreateRule(rule alerting.Rule) error {
	if err := e.rules.Create(rule); err != nil {
		return err
	}
	e.logger.Info("Alert rule created", "rule", rule.Name, "metric", rule.MetricName)
	return nil
}

// UpsertRule creates or replaces a rule
func (e *Engine) UpsertRule(rule alerting.Rule) (created bool, err error) {
	return e.rules.Upsert(rule)
}

// ListRules returns every rule sorted by name
func (e *Engine) ListRules() []alerting.Rule { return e.rules.List() }

// GetRule returns one rule
func (e *Engine) GetRule(name string) (alerting.Rule, error) { return e.rules.Get(name) }

// UpdateRule applies a partial update
func (e *Engine) UpdateRule(name string, update alerting.RuleUpdate) (alerting.Rule, error) {
	rule, err := e.rules.Update(name, update)
	if err != nil {
		return alerting.Rule{}, err
	}
	e.logger.Info("Alert rule updated", "rule", name)
	return rule, nil
}

// SetRuleEnabled enables or disables a rule
func (e *Engine) SetRuleEnabled(name string, enabled bool) (alerting.Rule, error) {
	rule, err := e.rules.SetEnabled(name, enabled)
	if err != nil {
		return alerting.Rule{}, err
	}
	e.logger.Info("Alert rule toggled", "rule", name, "enabled", enabled)
	return rule, nil
}

// DeleteRule removes a rule; alerts it raised stay in history
func (e *Engine) DeleteRule(name string) error {
	if err := e.rules.Delete(name); err != nil {
		return err
	}
	e.logger.Info("Alert rule deleted", "rule", name)
	return nil
}

// AddAlertHandler registers an extra handler for newly created alerts
func (e *Engine) AddAlertHandler(h alerting.AlertHandler) {
	e.manager.AddHandler(h)
}
