package alerting

import (
	"sort"
	"sync"

	"github.com/atlet99/metric-alert-engine/internal/errors"
)

// Registry stores rules by name with an index by metric name
type Registry struct {
	mu       sync.RWMutex
	rules    map[string]Rule
	byMetric map[string]map[string]struct{}
}

// NewRegistry creates an empty rule registry
func NewRegistry() *Registry {
	return &Registry{
		rules:    make(map[string]Rule),
		byMetric: make(map[string]map[string]struct{}),
	}
}

// Create adds a new rule. A rule with the same name yields a CONFLICT error.
func (r *Registry) Create(rule Rule) error {
	if err := rule.Validate(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.rules[rule.Name]; exists {
		return errors.Conflict("rule", rule.Name)
	}
	r.putLocked(rule)
	return nil
}

// Upsert creates or replaces a rule and reports whether it was new
func (r *Registry) Upsert(rule Rule) (bool, error) {
	if err := rule.Validate(); err != nil {
		return false, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	old, exists := r.rules[rule.Name]
	if exists {
		r.unindexLocked(old)
	}
	r.putLocked(rule)
	return !exists, nil
}

// Get returns the rule called name
func (r *Registry) Get(name string) (Rule, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	rule, ok := r.rules[name]
	if !ok {
		return Rule{}, errors.NotFound("rule", name)
	}
	return rule, nil
}

// List returns all rules sorted by name
func (r *Registry) List() []Rule {
	r.mu.RLock()
	out := make([]Rule, 0, len(r.rules))
	for _, rule := range r.rules {
		out = append(out, rule)
	}
	r.mu.RUnlock()

	sortRules(out)
	return out
}

// ForMetric returns the enabled rules bound to metric, sorted by name
func (r *Registry) ForMetric(metric string) []Rule {
	r.mu.RLock()
	names := r.byMetric[metric]
	out := make([]Rule, 0, len(names))
	for name := range names {
		if rule := r.rules[name]; rule.Enabled {
			out = append(out, rule)
		}
	}
	r.mu.RUnlock()

	sortRules(out)
	return out
}

// Watches reports whether any rule, enabled or not, is bound to metric
func (r *Registry) Watches(metric string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byMetric[metric]) > 0
}

// Update applies a partial update to an existing rule
func (r *Registry) Update(name string, update RuleUpdate) (Rule, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	old, ok := r.rules[name]
	if !ok {
		return Rule{}, errors.NotFound("rule", name)
	}

	updated := update.apply(old)
	if err := updated.Validate(); err != nil {
		return Rule{}, err
	}

	r.unindexLocked(old)
	r.putLocked(updated)
	return updated, nil
}

// SetEnabled toggles a rule without touching its other fields
func (r *Registry) SetEnabled(name string, enabled bool) (Rule, error) {
	return r.Update(name, RuleUpdate{Enabled: &enabled})
}

// Delete removes a rule. Alerts it raised are left untouched.
func (r *Registry) Delete(name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	rule, ok := r.rules[name]
	if !ok {
		return errors.NotFound("rule", name)
	}
	r.unindexLocked(rule)
	delete(r.rules, name)
	return nil
}

// Len returns the number of registered rules
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.rules)
}

func (r *Registry) putLocked(rule Rule) {
	r.rules[rule.Name] = rule
	names, ok := r.byMetric[rule.MetricName]
	if !ok {
		names = make(map[string]struct{})
		r.byMetric[rule.MetricName] = names
	}
	names[rule.Name] = struct{}{}
}

func (r *Registry) unindexLocked(rule Rule) {
	names := r.byMetric[rule.MetricName]
	delete(names, rule.Name)
	if len(names) == 0 {
		delete(r.byMetric, rule.MetricName)
	}
}

func sortRules(rules []Rule) {
	sort.Slice(rules, func(i, j int) bool { return rules[i].Name < rules[j].Name })
}

// DefaultRules returns the rule set seeded at startup
func DefaultRules() []Rule {
	return []Rule{
		{
			Name:            "high_error_rate",
			MetricName:      "error_rate",
			Threshold:       5,
			Comparison:      GreaterThan,
			DurationSeconds: 300,
			Level:           LevelError,
			Type:            TypeErrorRate,
			MessageTemplate: "Error rate {value}% exceeds {threshold}% over the last 5 minutes",
			Enabled:         true,
		},
		{
			Name:            "slow_response",
			MetricName:      "response_time",
			Threshold:       5000,
			Comparison:      GreaterOrEqual,
			DurationSeconds: 60,
			Level:           LevelWarning,
			Type:            TypePerformance,
			MessageTemplate: "Average response time {value}ms reached {threshold}ms",
			Enabled:         true,
		},
		{
			Name:            "high_cpu_usage",
			MetricName:      "cpu_usage",
			Threshold:       80,
			Comparison:      GreaterThan,
			DurationSeconds: 180,
			Level:           LevelWarning,
			Type:            TypeResource,
			MessageTemplate: "CPU usage {value}% exceeds {threshold}%",
			Enabled:         true,
		},
		{
			Name:            "low_memory",
			MetricName:      "memory_available",
			Threshold:       10,
			Comparison:      LessThan,
			DurationSeconds: 120,
			Level:           LevelCritical,
			Type:            TypeResource,
			MessageTemplate: "Available memory {value}% is below {threshold}%",
			Enabled:         true,
		},
	}
}
