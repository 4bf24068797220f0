package alerting

import (
	"fmt"
	"log/slog"
	"runtime/debug"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/atlet99/metric-alert-engine/internal/errors"
)

// AlertHandler is notified once when a new alert is created
type AlertHandler interface {
	Notify(alert Alert)
}

// AlertHandlerFunc adapts a function to AlertHandler
type AlertHandlerFunc func(alert Alert)

// Notify calls f(alert)
func (f AlertHandlerFunc) Notify(alert Alert) { f(alert) }

// ResolutionHandler is notified once when an alert is resolved
type ResolutionHandler interface {
	NotifyResolved(alert Alert)
}

// Recorder receives alert lifecycle events for self-monitoring
type Recorder interface {
	RecordAlertTriggered(level, alertType string)
	RecordAlertRefreshed(rule string)
	RecordAlertResolved(level string)
	SetActiveAlerts(level string, count int)
}

type nopRecorder struct{}

func (nopRecorder) RecordAlertTriggered(string, string) {}
func (nopRecorder) RecordAlertRefreshed(string)         {}
func (nopRecorder) RecordAlertResolved(string)          {}
func (nopRecorder) SetActiveAlerts(string, int)         {}

// ManagerOptions configures a Manager
type ManagerOptions struct {
	Logger   *slog.Logger
	Recorder Recorder
	Clock    func() time.Time
}

// Manager owns the alert table. Lookup and creation happen under one lock so
// concurrent triggers for the same rule produce a single alert.
type Manager struct {
	mu           sync.Mutex
	alerts       map[string]*Alert
	activeByRule map[string]string

	hmu         sync.RWMutex
	handlers    []AlertHandler
	resolutions []ResolutionHandler

	logger   *slog.Logger
	recorder Recorder
	now      func() time.Time
}

// NewManager creates an empty alert manager
func NewManager(opts ManagerOptions) *Manager {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Recorder == nil {
		opts.Recorder = nopRecorder{}
	}
	if opts.Clock == nil {
		opts.Clock = time.Now
	}
	return &Manager{
		alerts:       make(map[string]*Alert),
		activeByRule: make(map[string]string),
		logger:       opts.Logger,
		recorder:     opts.Recorder,
		now:          opts.Clock,
	}
}

// AddHandler registers a handler invoked for every newly created alert
func (m *Manager) AddHandler(h AlertHandler) {
	m.hmu.Lock()
	m.handlers = append(m.handlers, h)
	m.hmu.Unlock()
}

// AddResolutionHandler registers a handler invoked for every resolution
func (m *Manager) AddResolutionHandler(h ResolutionHandler) {
	m.hmu.Lock()
	m.resolutions = append(m.resolutions, h)
	m.hmu.Unlock()
}

// Trigger raises an alert for rule or refreshes the active one.
// It reports whether a new alert was created; handlers only run in that case.
func (m *Manager) Trigger(rule Rule, value float64, now time.Time) (Alert, bool) {
	m.mu.Lock()
	if id, ok := m.activeByRule[rule.Name]; ok {
		existing := m.alerts[id]
		existing.MetricValue = value
		existing.Timestamp = now
		snapshot := existing.clone()
		m.mu.Unlock()

		m.recorder.RecordAlertRefreshed(rule.Name)
		m.logger.Debug("Alert refreshed",
			"alert_id", snapshot.ID,
			"rule", rule.Name,
			"value", value)
		return snapshot, false
	}

	alert := &Alert{
		ID:          m.nextIDLocked(rule.Name, now),
		RuleName:    rule.Name,
		Level:       rule.Level,
		Type:        rule.Type,
		Message:     rule.RenderMessage(value),
		MetricValue: value,
		Threshold:   rule.Threshold,
		Timestamp:   now,
	}
	m.alerts[alert.ID] = alert
	m.activeByRule[rule.Name] = alert.ID
	snapshot := alert.clone()
	m.publishActiveLocked()
	m.mu.Unlock()

	m.recorder.RecordAlertTriggered(string(rule.Level), string(rule.Type))
	m.logger.Warn("Alert triggered",
		"alert_id", snapshot.ID,
		"rule", rule.Name,
		"level", string(rule.Level),
		"value", value,
		"threshold", rule.Threshold)

	m.hmu.RLock()
	handlers := make([]AlertHandler, len(m.handlers))
	copy(handlers, m.handlers)
	m.hmu.RUnlock()

	for _, h := range handlers {
		m.safeCall("alert handler", snapshot, func() { h.Notify(snapshot) })
	}

	return snapshot, true
}

// Resolve marks the alert resolved. Resolving an already resolved alert is
// a no-op that returns the stored alert.
func (m *Manager) Resolve(id string) (Alert, error) {
	m.mu.Lock()
	alert, ok := m.alerts[id]
	if !ok {
		m.mu.Unlock()
		return Alert{}, errors.NotFound("alert", id)
	}
	if alert.Resolved {
		snapshot := alert.clone()
		m.mu.Unlock()
		return snapshot, nil
	}

	resolvedAt := m.now()
	alert.Resolved = true
	alert.ResolvedAt = &resolvedAt
	if m.activeByRule[alert.RuleName] == id {
		delete(m.activeByRule, alert.RuleName)
	}
	snapshot := alert.clone()
	m.publishActiveLocked()
	m.mu.Unlock()

	m.recorder.RecordAlertResolved(string(snapshot.Level))
	m.logger.Info("Alert resolved", "alert_id", id, "rule", snapshot.RuleName)

	m.hmu.RLock()
	handlers := make([]ResolutionHandler, len(m.resolutions))
	copy(handlers, m.resolutions)
	m.hmu.RUnlock()

	for _, h := range handlers {
		m.safeCall("resolution handler", snapshot, func() { h.NotifyResolved(snapshot) })
	}

	return snapshot, nil
}

// Get returns the alert with the given id
func (m *Manager) Get(id string) (Alert, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	alert, ok := m.alerts[id]
	if !ok {
		return Alert{}, errors.NotFound("alert", id)
	}
	return alert.clone(), nil
}

// ActiveAlerts returns unresolved alerts ordered by timestamp
func (m *Manager) ActiveAlerts() []Alert {
	m.mu.Lock()
	out := make([]Alert, 0, len(m.activeByRule))
	for _, id := range m.activeByRule {
		out = append(out, m.alerts[id].clone())
	}
	m.mu.Unlock()

	sortAlerts(out)
	return out
}

// Alerts returns every stored alert ordered by timestamp
func (m *Manager) Alerts() []Alert {
	m.mu.Lock()
	out := make([]Alert, 0, len(m.alerts))
	for _, alert := range m.alerts {
		out = append(out, alert.clone())
	}
	m.mu.Unlock()

	sortAlerts(out)
	return out
}

// Statistics counts alerts whose timestamp lies within the trailing window
func (m *Manager) Statistics(window time.Duration) Statistics {
	stats := Statistics{
		AlertsByLevel: make(map[Level]int),
		AlertsByType:  make(map[Type]int),
	}
	if window <= 0 {
		return stats
	}

	since := m.now().Add(-window)

	m.mu.Lock()
	defer m.mu.Unlock()

	for _, alert := range m.alerts {
		if alert.Timestamp.Before(since) {
			continue
		}
		stats.TotalAlerts++
		if !alert.Resolved {
			stats.ActiveAlerts++
		}
		stats.AlertsByLevel[alert.Level]++
		stats.AlertsByType[alert.Type]++
	}
	return stats
}

// Prune drops resolved alerts whose resolution is older than retention.
// Active alerts are never pruned.
func (m *Manager) Prune(retention time.Duration) int {
	cutoff := m.now().Add(-retention)

	m.mu.Lock()
	defer m.mu.Unlock()

	removed := 0
	for id, alert := range m.alerts {
		if alert.Resolved && alert.ResolvedAt != nil && alert.ResolvedAt.Before(cutoff) {
			delete(m.alerts, id)
			removed++
		}
	}
	return removed
}

func (m *Manager) nextIDLocked(rule string, now time.Time) string {
	base := rule + "_" + strconv.FormatInt(now.Unix(), 10)
	id := base
	for n := 2; ; n++ {
		if _, taken := m.alerts[id]; !taken {
			return id
		}
		id = base + "_" + strconv.Itoa(n)
	}
}

// publishActiveLocked sets the active gauges while m.mu is held so that
// concurrent transitions publish in the order they were applied
func (m *Manager) publishActiveLocked() {
	counts := make(map[Level]int, len(Levels))
	for _, id := range m.activeByRule {
		counts[m.alerts[id].Level]++
	}
	for _, level := range Levels {
		m.recorder.SetActiveAlerts(string(level), counts[level])
	}
}

func (m *Manager) safeCall(kind string, alert Alert, fn func()) {
	defer func() {
		if rec := recover(); rec != nil {
			m.logger.Error("Recovered from panic in "+kind,
				"alert_id", alert.ID,
				"panic", fmt.Sprintf("%v", rec),
				"stack", string(debug.Stack()))
		}
	}()
	fn()
}

func sortAlerts(alerts []Alert) {
	sort.Slice(alerts, func(i, j int) bool {
		if alerts[i].Timestamp.Equal(alerts[j].Timestamp) {
			return alerts[i].ID < alerts[j].ID
		}
		return alerts[i].Timestamp.Before(alerts[j].Timestamp)
	})
}
