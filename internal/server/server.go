// Package server exposes the metric alert engine over HTTP.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/atlet99/metric-alert-engine/internal/collector"
	"github.com/atlet99/metric-alert-engine/internal/config"
	"github.com/atlet99/metric-alert-engine/internal/engine"
	"github.com/atlet99/metric-alert-engine/internal/errors"
	"github.com/atlet99/metric-alert-engine/internal/monitoring"
	"github.com/atlet99/metric-alert-engine/internal/version"
)

const (
	readHeaderTimeout = 30 * time.Second
	idleTimeout       = 120 * time.Second

	// notification queue fill ratio above which /health reports degraded
	queueDegradedRatio = 0.8
)

// Server represents the main application server
type Server struct {
	*http.Server
	engine      *engine.Engine
	logger      *slog.Logger
	errHandler  *errors.Handler
	rateLimiter *HTTPRateLimiter
	health      *monitoring.HealthMonitor
	metrics     *monitoring.PrometheusMetrics
}

// New creates a server for eng. metrics and tracer may be nil.
func New(cfg *config.Config, eng *engine.Engine, logger *slog.Logger,
	metrics *monitoring.PrometheusMetrics, tracer *monitoring.Tracer) *Server {
	if tracer == nil {
		tracer = monitoring.NewNoopTracer()
	}

	s := &Server{
		engine:     eng,
		logger:     logger,
		errHandler: errors.NewHandler(logger),
		rateLimiter: NewHTTPRateLimiter(RateLimiterConfig{
			Rate:        cfg.APIRateLimit,
			Burst:       cfg.APIRateBurst,
			PerIP:       true,
			PerEndpoint: true,
		}),
		health:  monitoring.NewHealthMonitor(logger, version.GetVersion()),
		metrics: metrics,
	}
	s.registerHealthChecks()

	// ServeMux fills r.Pattern in place, so middleware that reads it must
	// share the request value; tracing replaces the request and goes outermost.
	var handler http.Handler = s.routes()
	handler = s.errHandler.RecoverMiddleware(handler)
	handler = collector.Middleware(eng.Store())(handler)
	handler = monitoring.PrometheusMiddleware(metrics)(handler)
	handler = monitoring.TracingMiddleware(tracer)(handler)

	s.Server = &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           handler,
		ReadHeaderTimeout: readHeaderTimeout,
		IdleTimeout:       idleTimeout,
	}
	return s
}

func (s *Server) routes() *http.ServeMux {
	mux := http.NewServeMux()
	api := func(pattern string, h http.HandlerFunc) {
		mux.Handle(pattern, RateLimitMiddleware(s.rateLimiter, s.errHandler, s.metrics)(h))
	}

	api("POST /api/metrics", s.handleRecordMetric)
	api("GET /api/metrics", s.handleListMetrics)
	api("GET /api/metrics/{name}/summary", s.handleMetricSummary)

	api("GET /api/alerts/active", s.handleActiveAlerts)
	api("GET /api/alerts/statistics", s.handleAlertStatistics)
	api("GET /api/alerts/{id}", s.handleGetAlert)
	api("POST /api/alerts/{id}/resolve", s.handleResolveAlert)

	api("GET /api/rules", s.handleListRules)
	api("POST /api/rules", s.handleCreateRule)
	api("GET /api/rules/{name}", s.handleGetRule)
	api("PUT /api/rules/{name}", s.handleUpdateRule)
	api("DELETE /api/rules/{name}", s.handleDeleteRule)
	api("PUT /api/rules/{name}/enabled", s.handleSetRuleEnabled)

	mux.Handle("GET /health", s.health)
	if s.metrics != nil {
		mux.Handle("GET /metrics", s.metrics.Handler())
	}
	return mux
}

func (s *Server) registerHealthChecks() {
	dispatcher := s.engine.Dispatcher()
	s.health.RegisterChecker("notification_queue",
		monitoring.QueueHealthChecker(dispatcher.QueueLength, dispatcher.Capacity, queueDegradedRatio))

	s.health.RegisterChecker("rules", monitoring.HealthCheckerFunc(
		func(context.Context) (monitoring.HealthStatus, string, map[string]interface{}, error) {
			rules := s.engine.ListRules()
			enabled := 0
			for _, r := range rules {
				if r.Enabled {
					enabled++
				}
			}
			details := map[string]interface{}{"total": len(rules), "enabled": enabled}
			if enabled == 0 {
				return monitoring.HealthStatusDegraded, "no enabled alert rules", details, nil
			}
			return monitoring.HealthStatusHealthy, fmt.Sprintf("%d rules enabled", enabled), details, nil
		}))
}

// Health returns the health monitor so callers can register more checks
func (s *Server) Health() *monitoring.HealthMonitor {
	return s.health
}

// Run serves until ctx is cancelled, then shuts down within shutdownTimeout
func (s *Server) Run(ctx context.Context, shutdownTimeout time.Duration) error {
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("Starting HTTP server", "addr", s.Addr)
		if err := s.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
			return
		}
		errCh <- nil
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	s.logger.Info("Shutting down HTTP server")
	if err := s.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}
	return <-errCh
}
