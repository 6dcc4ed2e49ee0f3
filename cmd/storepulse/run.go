package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/ajitpratap0/storepulse/internal/pipeline"
	"github.com/ajitpratap0/storepulse/pkg/config"
	"github.com/ajitpratap0/storepulse/pkg/connector/registry"
	"github.com/ajitpratap0/storepulse/pkg/errors"
	"github.com/ajitpratap0/storepulse/pkg/logger"
	"github.com/ajitpratap0/storepulse/pkg/metrics"
	"github.com/ajitpratap0/storepulse/pkg/observability"
)

type runOptions struct {
	configFile  string
	timeout     time.Duration
	logLevel    string
	metricsAddr string
	trace       bool
}

func runPipeline(parent context.Context, opts runOptions) error {
	cfg, err := config.LoadPipeline(opts.configFile)
	if err != nil {
		return err
	}

	level := cfg.Source.Observability.LogLevel
	if opts.logLevel != "" {
		level = opts.logLevel
	}
	if err := logger.Init(logger.Config{Level: level, Encoding: "json"}); err != nil {
		return errors.Wrap(err, errors.ErrorTypeConfig, "failed to initialize logger")
	}
	defer func() { _ = logger.Sync() }()

	log := logger.With(
		zap.String("component", "storepulse-cli"),
		zap.String("pipeline", cfg.Name),
		zap.String("source", cfg.Source.Type),
		zap.String("destination", cfg.Destination.Type),
	)

	if opts.trace || cfg.Source.Observability.EnableTracing {
		shutdown, err := observability.InitTracing(observability.TracingConfig{
			ServiceName:    "storepulse",
			ServiceVersion: version,
			SamplingRate:   cfg.Source.Observability.TracingSampleRate,
		})
		if err != nil {
			return err
		}
		defer func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = shutdown(ctx)
		}()
	}

	metricsAddr := cfg.MetricsAddr
	if opts.metricsAddr != "" {
		metricsAddr = opts.metricsAddr
	}
	if metricsAddr != "" {
		stop := serveMetrics(metricsAddr, log)
		defer stop()
	}

	if parent == nil {
		parent = context.Background()
	}
	ctx, stopSignals := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stopSignals()
	ctx, cancel := withTimeout(ctx, opts.timeout)
	defer cancel()

	source, err := registry.CreateSource(cfg.Source.Type, &cfg.Source)
	if err != nil {
		return err
	}
	destination, err := registry.CreateDestination(cfg.Destination.Type, &cfg.Destination)
	if err != nil {
		return err
	}

	if err := source.Initialize(ctx, &cfg.Source); err != nil {
		return err
	}
	defer closeQuietly(log, "source", func() error { return source.Close(context.Background()) })

	if err := destination.Initialize(ctx, &cfg.Destination); err != nil {
		return err
	}
	defer closeQuietly(log, "destination", func() error { return destination.Close(context.Background()) })

	p := pipeline.NewSimplePipeline(source, destination, &pipeline.PipelineConfig{
		BatchSize:     cfg.Source.Performance.BatchSize,
		FlushInterval: cfg.Source.Performance.FlushInterval,
	}, log)
	if len(cfg.Rename) > 0 {
		p.AddTransform(pipeline.FieldMapperTransform(cfg.Rename))
	}

	start := time.Now()
	if err := p.Run(ctx); err != nil {
		log.Error("pipeline failed", zap.Error(err), zap.String("error_type", string(errors.TypeOf(err))),
			zap.Any("details", errors.DetailsOf(err)))
		return err
	}

	m := p.Metrics()
	log.Info("pipeline completed successfully",
		zap.Duration("duration", time.Since(start)),
		zap.Any("records_processed", m["records_processed"]),
		zap.Any("source_metrics", source.Metrics()),
		zap.Any("destination_metrics", destination.Metrics()))
	return nil
}

func serveMetrics(addr string, log *zap.Logger) func() {
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		log.Info("serving metrics", zap.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Warn("metrics server stopped", zap.Error(err))
		}
	}()

	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
	}
}

func closeQuietly(log *zap.Logger, what string, fn func() error) {
	if err := fn(); err != nil {
		log.Warn("failed to close "+what, zap.Error(err))
	}
}

// withTimeout bounds ctx by d. A zero or negative d means no limit.
func withTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d)
}
