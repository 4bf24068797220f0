package monitoring

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"runtime"
	"sort"
	"sync"
	"time"
)

// HealthStatus represents the health status of a component
type HealthStatus string

// Health states, best to worst
const (
	HealthStatusHealthy   HealthStatus = "healthy"
	HealthStatusDegraded  HealthStatus = "degraded"
	HealthStatusUnhealthy HealthStatus = "unhealthy"
)

// HealthCheck represents a health check for a specific component
type HealthCheck struct {
	Name        string                 `json:"name"`
	Status      HealthStatus           `json:"status"`
	Message     string                 `json:"message,omitempty"`
	Details     map[string]interface{} `json:"details,omitempty"`
	LastChecked time.Time              `json:"last_checked"`
	Duration    time.Duration          `json:"duration_ns"`
}

// HealthReport represents the overall health report
type HealthReport struct {
	Status     HealthStatus           `json:"status"`
	Timestamp  time.Time              `json:"timestamp"`
	Version    string                 `json:"version"`
	Uptime     string                 `json:"uptime"`
	Checks     map[string]HealthCheck `json:"checks"`
	SystemInfo map[string]interface{} `json:"system_info"`
}

// HealthChecker reports the health of one component
type HealthChecker interface {
	CheckHealth(ctx context.Context) (HealthStatus, string, map[string]interface{}, error)
}

// HealthCheckerFunc adapts a function to HealthChecker
type HealthCheckerFunc func(ctx context.Context) (HealthStatus, string, map[string]interface{}, error)

// CheckHealth calls f(ctx)
func (f HealthCheckerFunc) CheckHealth(ctx context.Context) (HealthStatus, string, map[string]interface{}, error) {
	return f(ctx)
}

// HealthMonitor runs registered health checks on demand
type HealthMonitor struct {
	logger    *slog.Logger
	version   string
	startTime time.Time

	mu     sync.RWMutex
	checks map[string]HealthChecker
}

// NewHealthMonitor creates a new health monitor
func NewHealthMonitor(logger *slog.Logger, version string) *HealthMonitor {
	return &HealthMonitor{
		logger:    logger,
		version:   version,
		startTime: time.Now(),
		checks:    make(map[string]HealthChecker),
	}
}

// RegisterChecker registers a health checker for a component
func (hm *HealthMonitor) RegisterChecker(name string, checker HealthChecker) {
	hm.mu.Lock()
	defer hm.mu.Unlock()
	hm.checks[name] = checker
}

// RunHealthChecks runs all registered health checks. The overall status is
// the worst status of any component.
func (hm *HealthMonitor) RunHealthChecks(ctx context.Context) HealthReport {
	hm.mu.RLock()
	names := make([]string, 0, len(hm.checks))
	for name := range hm.checks {
		names = append(names, name)
	}
	checks := make(map[string]HealthChecker, len(hm.checks))
	for k, v := range hm.checks {
		checks[k] = v
	}
	hm.mu.RUnlock()
	sort.Strings(names)

	report := HealthReport{
		Status:     HealthStatusHealthy,
		Timestamp:  time.Now(),
		Version:    hm.version,
		Uptime:     time.Since(hm.startTime).Round(time.Second).String(),
		Checks:     make(map[string]HealthCheck, len(names)),
		SystemInfo: collectSystemInfo(),
	}

	for _, name := range names {
		start := time.Now()
		status, message, details, err := checks[name].CheckHealth(ctx)
		if err != nil {
			status = HealthStatusUnhealthy
			message = fmt.Sprintf("Health check failed: %v", err)
		}

		report.Checks[name] = HealthCheck{
			Name:        name,
			Status:      status,
			Message:     message,
			Details:     details,
			LastChecked: time.Now(),
			Duration:    time.Since(start),
		}

		switch status {
		case HealthStatusUnhealthy:
			report.Status = HealthStatusUnhealthy
		case HealthStatusDegraded:
			if report.Status == HealthStatusHealthy {
				report.Status = HealthStatusDegraded
			}
		}
	}

	return report
}

// ServeHTTP writes the health report; unhealthy yields 503
func (hm *HealthMonitor) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	report := hm.RunHealthChecks(r.Context())

	statusCode := http.StatusOK
	if report.Status == HealthStatusUnhealthy {
		statusCode = http.StatusServiceUnavailable
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(report); err != nil {
		hm.logger.Error("Failed to encode health response", "error", err)
	}
}

// QueueHealthChecker reports degraded when a queue is more than threshold full
func QueueHealthChecker(length, capacity func() int, threshold float64) HealthChecker {
	return HealthCheckerFunc(func(context.Context) (HealthStatus, string, map[string]interface{}, error) {
		l, c := length(), capacity()
		details := map[string]interface{}{"length": l, "capacity": c}
		if c > 0 && float64(l)/float64(c) > threshold {
			return HealthStatusDegraded, "queue is near capacity", details, nil
		}
		return HealthStatusHealthy, "", details, nil
	})
}

// collectSystemInfo collects runtime information for health reports
func collectSystemInfo() map[string]interface{} {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)

	return map[string]interface{}{
		"goroutines": runtime.NumGoroutine(),
		"num_cpu":    runtime.NumCPU(),
		"memory": map[string]interface{}{
			"allocated_mb":     m.Alloc / 1024 / 1024,
			"system_memory_mb": m.Sys / 1024 / 1024,
			"gc_count":         m.NumGC,
		},
	}
}
