package engine

import (
	stderrors "errors"
	"fmt"

	"github.com/atlet99/metric-alert-engine/internal/alerting"
	"github.com/atlet99/metric-alert-engine/internal/config"
)

// RuleFromDefinition converts a rules-file entry into a validated Rule
func RuleFromDefinition(def config.RuleDefinition) (alerting.Rule, error) {
	comparison, err := alerting.ParseComparison(def.Comparison)
	if err != nil {
		return alerting.Rule{}, err
	}
	level, err := alerting.ParseLevel(def.Level)
	if err != nil {
		return alerting.Rule{}, err
	}
	ruleType, err := alerting.ParseType(def.Type)
	if err != nil {
		return alerting.Rule{}, err
	}

	rule := alerting.Rule{
		Name:            def.Name,
		MetricName:      def.Metric,
		Threshold:       def.Threshold,
		Comparison:      comparison,
		DurationSeconds: def.DurationSeconds,
		Level:           level,
		Type:            ruleType,
		MessageTemplate: def.Message,
		Enabled:         def.IsEnabled(),
	}
	return rule, rule.Validate()
}

// ApplyRuleDefinitions upserts every definition. The whole set is checked
// first, so one bad entry leaves the registry untouched.
func (e *Engine) ApplyRuleDefinitions(defs []config.RuleDefinition) error {
	rules := make([]alerting.Rule, 0, len(defs))
	var errs []error
	for _, def := range defs {
		rule, err := RuleFromDefinition(def)
		if err != nil {
			errs = append(errs, fmt.Errorf("rule %q: %w", def.Name, err))
			continue
		}
		rules = append(rules, rule)
	}
	if err := stderrors.Join(errs...); err != nil {
		return err
	}

	var created, updated int
	for _, rule := range rules {
		isNew, err := e.rules.Upsert(rule)
		if err != nil {
			return fmt.Errorf("rule %q: %w", rule.Name, err)
		}
		if isNew {
			created++
		} else {
			updated++
		}
	}
	e.logger.Info("Applied alert rules", "created", created, "updated", updated)
	return nil
}
