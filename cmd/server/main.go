// Package main provides the entry point for the metric alert engine server.
// It collects metrics, evaluates alert rules and dispatches notifications.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/atlet99/metric-alert-engine/internal/collector"
	"github.com/atlet99/metric-alert-engine/internal/config"
	"github.com/atlet99/metric-alert-engine/internal/engine"
	"github.com/atlet99/metric-alert-engine/internal/monitoring"
	"github.com/atlet99/metric-alert-engine/internal/server"
	"github.com/atlet99/metric-alert-engine/internal/timezone"
	"github.com/atlet99/metric-alert-engine/internal/version"
	"github.com/atlet99/metric-alert-engine/pkg/logger"
)

const (
	shutdownTimeout = 30 * time.Second
	tracerFlush     = 5 * time.Second
)

func main() {
	var showVersion bool
	flag.BoolVar(&showVersion, "version", false, "Show version information")
	flag.Parse()

	if showVersion {
		fmt.Println(version.GetFullVersionInfo())
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, os.Stdout); err != nil {
		slog.Error("Metric alert engine exited with error", "error", err)
		os.Exit(1)
	}
}

// app holds every long-running component
type app struct {
	log       *slog.Logger
	cfg       *config.Config
	tracer    *monitoring.Tracer
	engine    *engine.Engine
	server    *server.Server
	collector *collector.Collector
	watcher   *config.RulesWatcher
}

func run(ctx context.Context, out io.Writer) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	log := logger.NewLogger(out, cfg.LogLevel)
	log.Info("Starting metric alert engine",
		"version", version.GetVersion(),
		"commit", version.ShortCommit())

	a, err := newApp(cfg, log)
	if err != nil {
		return err
	}
	return a.run(ctx)
}

func newApp(cfg *config.Config, log *slog.Logger) (*app, error) {
	tracer, err := monitoring.NewTracer(&monitoring.TracingConfig{
		Enabled:        cfg.TracingEnabled,
		ServiceName:    cfg.ServiceName,
		ServiceVersion: version.GetVersion(),
		OTLPEndpoint:   cfg.OTLPEndpoint,
		EnableConsole:  cfg.TracingConsole,
		SampleRate:     cfg.TracingSampleRate,
	}, logger.Component(log, "tracing"))
	if err != nil {
		return nil, fmt.Errorf("failed to initialize tracing: %w", err)
	}

	metrics := monitoring.NewPrometheusMetrics()

	tz, err := timezone.NewManager(cfg.Timezone)
	if err != nil {
		return nil, fmt.Errorf("failed to load timezone: %w", err)
	}
	log.Info("Notification times rendered in timezone", "timezone", tz.Name())

	opts := engine.OptionsFromConfig(cfg)
	opts.Channels = engine.ChannelsFromConfig(cfg, tz, logger.Component(log, "alerts"))
	opts.Logger = logger.Component(log, "engine")
	opts.Metrics = metrics
	opts.Tracer = tracer
	eng := engine.New(opts)

	a := &app{
		log:    log,
		cfg:    cfg,
		tracer: tracer,
		engine: eng,
		server: server.New(cfg, eng, logger.Component(log, "http"), metrics, tracer),
	}

	if cfg.RulesFile != "" {
		a.watcher = config.NewRulesWatcher(cfg.RulesFile, cfg.RulesReloadInterval,
			eng.ApplyRuleDefinitions, logger.Component(log, "rules"))
		if err := a.watcher.Load(); err != nil {
			return nil, fmt.Errorf("failed to load rules file: %w", err)
		}
	}

	if cfg.CollectorEnabled {
		dispatcher := eng.Dispatcher()
		a.collector = collector.New(eng.Store(), []collector.Sampler{
			collector.NewHostSampler(cfg.CollectorDiskPath),
			collector.RuntimeSampler{},
			collector.NewErrorRateSampler(eng.Store(), cfg.CollectorInterval),
			collector.NewGaugeSampler(map[string]collector.GaugeFunc{
				collector.MetricNotifyQueue: func(context.Context) (float64, error) {
					return float64(dispatcher.QueueLength()), nil
				},
			}),
		}, collector.Options{
			Interval: cfg.CollectorInterval,
			Logger:   logger.Component(log, "collector"),
			Metrics:  metrics,
		})
	}

	return a, nil
}

// run blocks until ctx is cancelled or a component fails
func (a *app) run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error { return a.engine.Run(gctx) })
	g.Go(func() error { return a.server.Run(gctx, shutdownTimeout) })
	if a.collector != nil {
		g.Go(func() error { return a.collector.Run(gctx) })
	}
	if a.watcher != nil {
		g.Go(func() error { return a.watcher.Run(gctx) })
	}

	err := g.Wait()

	flushCtx, cancel := context.WithTimeout(context.Background(), tracerFlush)
	defer cancel()
	if shutdownErr := a.tracer.Shutdown(flushCtx); shutdownErr != nil {
		a.log.Warn("Failed to flush traces", "error", shutdownErr)
	}

	if err != nil {
		return err
	}
	a.log.Info("Metric alert engine stopped")
	return nil
}
