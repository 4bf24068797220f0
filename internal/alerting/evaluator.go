package alerting

import (
	"log/slog"
	"time"

	"github.com/atlet99/metric-alert-engine/internal/metrics"
)

// Summarizer is the read side of the metric store used by the evaluator
type Summarizer interface {
	Summarize(name string, window time.Duration) metrics.Summary
	Now() time.Time
}

// Evaluator checks the rules bound to a metric each time a sample is stored
type Evaluator struct {
	store   Summarizer
	rules   *Registry
	manager *Manager
	logger  *slog.Logger
}

// NewEvaluator wires an evaluator; register it with Store.AddObserver
func NewEvaluator(store Summarizer, rules *Registry, manager *Manager, logger *slog.Logger) *Evaluator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Evaluator{
		store:   store,
		rules:   rules,
		manager: manager,
		logger:  logger,
	}
}

// OnRecord implements metrics.RecordObserver
func (e *Evaluator) OnRecord(name string, _ time.Time) {
	e.Evaluate(name)
}

// Evaluate runs every enabled rule for metric and returns the alerts that
// were created or refreshed.
func (e *Evaluator) Evaluate(metric string) []Alert {
	rules := e.rules.ForMetric(metric)
	if len(rules) == 0 {
		return nil
	}

	var fired []Alert
	for _, rule := range rules {
		summary := e.store.Summarize(metric, rule.Window())
		if summary.Count == 0 {
			continue
		}
		if !rule.Comparison.Holds(summary.Avg, rule.Threshold) {
			continue
		}

		e.logger.Debug("Rule condition met",
			"rule", rule.Name,
			"metric", metric,
			"avg", summary.Avg,
			"samples", summary.Count)

		alert, _ := e.manager.Trigger(rule, summary.Avg, e.store.Now())
		fired = append(fired, alert)
	}
	return fired
}
