// Package alerting evaluates threshold rules against the metric store and
// manages the lifecycle of the alerts they raise.
package alerting

import (
	"fmt"
	"math"
	"regexp"
	"strings"
	"time"

	"github.com/atlet99/metric-alert-engine/internal/errors"
)

// Level is the severity of a rule and of the alerts it raises
type Level string

// Alert levels, lowest to highest
const (
	LevelInfo     Level = "info"
	LevelWarning  Level = "warning"
	LevelError    Level = "error"
	LevelCritical Level = "critical"
)

// Levels lists every valid level in ascending severity
var Levels = []Level{LevelInfo, LevelWarning, LevelError, LevelCritical}

// ParseLevel converts s to a Level, rejecting unknown values
func ParseLevel(s string) (Level, error) {
	switch l := Level(strings.ToLower(strings.TrimSpace(s))); l {
	case LevelInfo, LevelWarning, LevelError, LevelCritical:
		return l, nil
	default:
		return "", errors.Validation("level", fmt.Sprintf("unknown level %q", s))
	}
}

// UnmarshalText implements encoding.TextUnmarshaler
func (l *Level) UnmarshalText(text []byte) error {
	parsed, err := ParseLevel(string(text))
	if err != nil {
		return err
	}
	*l = parsed
	return nil
}

// Type classifies what a rule watches
type Type string

// Alert types
const (
	TypePerformance Type = "performance"
	TypeErrorRate   Type = "error_rate"
	TypeResource    Type = "resource"
	TypeBusiness    Type = "business"
	TypeSecurity    Type = "security"
)

// ParseType converts s to a Type, rejecting unknown values
func ParseType(s string) (Type, error) {
	switch t := Type(strings.ToLower(strings.TrimSpace(s))); t {
	case TypePerformance, TypeErrorRate, TypeResource, TypeBusiness, TypeSecurity:
		return t, nil
	default:
		return "", errors.Validation("type", fmt.Sprintf("unknown type %q", s))
	}
}

// UnmarshalText implements encoding.TextUnmarshaler
func (t *Type) UnmarshalText(text []byte) error {
	parsed, err := ParseType(string(text))
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}

// Comparison is the operator applied as "average <op> threshold"
type Comparison string

// Supported comparisons
const (
	GreaterThan    Comparison = ">"
	LessThan       Comparison = "<"
	GreaterOrEqual Comparison = ">="
	LessOrEqual    Comparison = "<="
	Equal          Comparison = "=="
)

// equalEpsilon is the absolute tolerance used by Equal
const equalEpsilon = 1e-3

// ParseComparison converts s to a Comparison, rejecting unknown operators
func ParseComparison(s string) (Comparison, error) {
	switch c := Comparison(strings.TrimSpace(s)); c {
	case GreaterThan, LessThan, GreaterOrEqual, LessOrEqual, Equal:
		return c, nil
	default:
		return "", errors.Validation("comparison", fmt.Sprintf("unknown comparison %q", s))
	}
}

// UnmarshalText implements encoding.TextUnmarshaler
func (c *Comparison) UnmarshalText(text []byte) error {
	parsed, err := ParseComparison(string(text))
	if err != nil {
		return err
	}
	*c = parsed
	return nil
}

// Holds reports whether value <op> threshold
func (c Comparison) Holds(value, threshold float64) bool {
	switch c {
	case GreaterThan:
		return value > threshold
	case LessThan:
		return value < threshold
	case GreaterOrEqual:
		return value >= threshold
	case LessOrEqual:
		return value <= threshold
	case Equal:
		return math.Abs(value-threshold) <= equalEpsilon
	default:
		return false
	}
}

// rulePattern restricts rule names to characters that are safe in URL paths
// and mail headers
var rulePattern = regexp.MustCompile(`^[A-Za-z0-9_.-]+$`)

// Rule raises an alert when the trailing average of a metric over
// DurationSeconds satisfies Comparison against Threshold.
type Rule struct {
	Name            string     `json:"name"`
	MetricName      string     `json:"metric_name"`
	Threshold       float64    `json:"threshold"`
	Comparison      Comparison `json:"comparison"`
	DurationSeconds int        `json:"duration_seconds"`
	Level           Level      `json:"level"`
	Type            Type       `json:"type"`
	MessageTemplate string     `json:"message_template"`
	Enabled         bool       `json:"enabled"`
}

// Window returns the averaging window
func (r Rule) Window() time.Duration {
	return time.Duration(r.DurationSeconds) * time.Second
}

// Validate checks every field of the rule
func (r Rule) Validate() error {
	if strings.TrimSpace(r.Name) == "" {
		return errors.Validation("name", "must not be empty")
	}
	if !rulePattern.MatchString(r.Name) {
		return errors.Validation("name", "may only contain letters, digits, '_', '.' and '-'")
	}
	if strings.TrimSpace(r.MetricName) == "" {
		return errors.Validation("metric_name", "must not be empty")
	}
	if math.IsNaN(r.Threshold) || math.IsInf(r.Threshold, 0) {
		return errors.Validation("threshold", "must be a finite number")
	}
	if r.DurationSeconds <= 0 {
		return errors.Validation("duration_seconds", "must be positive")
	}
	if _, err := ParseComparison(string(r.Comparison)); err != nil {
		return err
	}
	if _, err := ParseLevel(string(r.Level)); err != nil {
		return err
	}
	if _, err := ParseType(string(r.Type)); err != nil {
		return err
	}
	return nil
}

// RenderMessage fills {value}, {threshold} and {metric} in the rule template
func (r Rule) RenderMessage(value float64) string {
	tmpl := r.MessageTemplate
	if tmpl == "" {
		tmpl = "{metric} is {value} (threshold " + string(r.Comparison) + " {threshold})"
	}
	return strings.NewReplacer(
		"{value}", fmt.Sprintf("%.2f", value),
		"{threshold}", fmt.Sprintf("%.2f", r.Threshold),
		"{metric}", r.MetricName,
	).Replace(tmpl)
}

// RuleUpdate is a partial update; nil fields are left unchanged
type RuleUpdate struct {
	MetricName      *string     `json:"metric_name,omitempty"`
	Threshold       *float64    `json:"threshold,omitempty"`
	Comparison      *Comparison `json:"comparison,omitempty"`
	DurationSeconds *int        `json:"duration_seconds,omitempty"`
	Level           *Level      `json:"level,omitempty"`
	Type            *Type       `json:"type,omitempty"`
	MessageTemplate *string     `json:"message_template,omitempty"`
	Enabled         *bool       `json:"enabled,omitempty"`
}

func (u RuleUpdate) apply(r Rule) Rule {
	if u.MetricName != nil {
		r.MetricName = *u.MetricName
	}
	if u.Threshold != nil {
		r.Threshold = *u.Threshold
	}
	if u.Comparison != nil {
		r.Comparison = *u.Comparison
	}
	if u.DurationSeconds != nil {
		r.DurationSeconds = *u.DurationSeconds
	}
	if u.Level != nil {
		r.Level = *u.Level
	}
	if u.Type != nil {
		r.Type = *u.Type
	}
	if u.MessageTemplate != nil {
		r.MessageTemplate = *u.MessageTemplate
	}
	if u.Enabled != nil {
		r.Enabled = *u.Enabled
	}
	return r
}

// Alert is raised by a rule. At most one unresolved alert exists per rule.
type Alert struct {
	ID          string     `json:"id"`
	RuleName    string     `json:"rule_name"`
	Level       Level      `json:"level"`
	Type        Type       `json:"type"`
	Message     string     `json:"message"`
	MetricValue float64    `json:"metric_value"`
	Threshold   float64    `json:"threshold"`
	Timestamp   time.Time  `json:"timestamp"`
	Resolved    bool       `json:"resolved"`
	ResolvedAt  *time.Time `json:"resolved_at"`
}

func (a *Alert) clone() Alert {
	out := *a
	if a.ResolvedAt != nil {
		t := *a.ResolvedAt
		out.ResolvedAt = &t
	}
	return out
}

// Statistics summarizes alerts raised or refreshed inside a trailing window
type Statistics struct {
	TotalAlerts   int           `json:"total_alerts"`
	ActiveAlerts  int           `json:"active_alerts"`
	AlertsByLevel map[Level]int `json:"alerts_by_level"`
	AlertsByType  map[Type]int  `json:"alerts_by_type"`
}
