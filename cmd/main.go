package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/UnknownOlympus/muniflow/internal/boundary"
	"github.com/UnknownOlympus/muniflow/internal/config"
	"github.com/UnknownOlympus/muniflow/internal/metrics"
	"github.com/UnknownOlympus/muniflow/internal/output"
	"github.com/UnknownOlympus/muniflow/internal/service"
	"github.com/UnknownOlympus/muniflow/internal/wfs"
	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/time/rate"
)

// Constants for different environment types.
const (
	envLocal = "local"
	envDev   = "development"
	envProd  = "production"
)

// Process exit codes.
const (
	exitOK        = 0
	exitFatal     = 1
	exitExhausted = 2
	exitCancelled = 130
)

// main is the entry point of the application.
func main() {
	os.Exit(run())
}

func run() int {
	// Create a context that will be canceled when an interrupt signal is received.
	// This allows for graceful shutdown.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		return exitFatal
	}

	// Set up the logger based on the environment.
	logger := setupLogger(cfg.Env)

	// Create a separate registry for metrics with exemplar
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector())
	reg.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	appMetrics := metrics.NewMetrics(reg)

	writer, err := output.New(ctx, output.Config{
		Type:         output.Type(cfg.Output.Type),
		Timecode:     cfg.WFS.Timecode,
		Dir:          cfg.Output.Dir,
		KafkaBrokers: cfg.Output.KafkaBrokers,
		KafkaTopic:   cfg.Output.KafkaTopic,
		Postgres: output.PostgresConfig{
			Host:     cfg.Database.Host,
			Port:     cfg.Database.Port,
			User:     cfg.Database.User,
			Password: cfg.Database.Password,
			Name:     cfg.Database.Name,
		},
		Logger: logger,
	})
	if err != nil {
		logger.ErrorContext(ctx, "Failed to create output writer", "type", cfg.Output.Type, "error", err)
		return exitFatal
	}
	defer func() {
		if errClose := writer.Close(); errClose != nil {
			logger.ErrorContext(ctx, "Failed to close output writer", "error", errClose)
		}
	}()

	if cfg.Port > 0 {
		var check func(context.Context) error
		if checker, ok := writer.(output.HealthChecker); ok {
			check = checker.Ping
		}
		go startMonitoringServer(ctx, logger, reg, check, cfg.Port)
	}

	clock := clockwork.NewRealClock()

	// In pooled mode a shared token bucket replaces the sequential call delay.
	var limiter *rate.Limiter
	if cfg.Workers > 1 && cfg.CallDelay > 0 {
		limiter = rate.NewLimiter(rate.Every(cfg.CallDelay), 1)
	}

	fetcher := wfs.NewClient(wfs.ClientConfig{
		BaseURL: cfg.WFS.BaseURL,
		Timeout: cfg.WFS.Timeout,
		Retry: wfs.RetryPolicy{
			MaxAttempts: cfg.Retry.MaxAttempts,
			Interval:    cfg.Retry.Interval,
			Multiplier:  cfg.Retry.Multiplier,
			Exponential: cfg.Retry.Exponential,
		},
		Limiter: limiter,
		Clock:   clock,
		Metrics: appMetrics,
		Logger:  logger,
	})

	aggregation := service.NewAggregationService(
		logger,
		boundary.NewRepository(boundary.DefaultIdentifierRules(), logger),
		fetcher,
		writer,
		appMetrics,
		clock,
		service.Settings{
			Source: boundary.Source{
				Path:       cfg.Boundary.Path,
				Layer:      cfg.Boundary.Layer,
				CodeColumn: cfg.Boundary.CodeColumn,
			},
			Codes:       cfg.Boundary.Codes,
			RoadType:    cfg.WFS.RoadType,
			Timecode:    cfg.WFS.Timecode,
			TypeName:    cfg.WFS.TypeName,
			CallDelay:   cfg.CallDelay,
			Workers:     cfg.Workers,
			StrictFetch: cfg.StrictFetch,
		},
	)

	logger.InfoContext(ctx, "Application started. Press Ctrl+C to stop.", "timecode", cfg.WFS.Timecode)

	report, err := aggregation.Run(ctx)
	code := exitCode(err)
	if err != nil {
		logger.ErrorContext(ctx, "Aggregation failed", "error", err, "exit_code", code)
	}
	if report != nil {
		for _, skip := range report.Skipped {
			logger.WarnContext(ctx, "Municipality skipped",
				"municipality", skip.Code, "outcome", skip.Outcome, "reason", skip.Reason)
		}
		logger.InfoContext(ctx, "Aggregation summary",
			"results", len(report.Results), "skipped", len(report.Skipped))
	}

	return code
}

// exitCode maps the outcome of a run to the process exit status.
func exitCode(err error) int {
	switch {
	case err == nil:
		return exitOK
	case errors.Is(err, service.ErrCancelled):
		return exitCancelled
	case errors.Is(err, service.ErrPipelineExhausted):
		return exitExhausted
	default:
		return exitFatal
	}
}

// monitoringHandler serves /healthz and /metrics. When check is set, /healthz
// answers 503 while it fails.
func monitoringHandler(
	ctx context.Context,
	log *slog.Logger,
	reg *prometheus.Registry,
	check func(context.Context) error,
) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(writer http.ResponseWriter, req *http.Request) {
		log.DebugContext(ctx, "Performing health checks...")
		status, body := http.StatusOK, "OK"
		if check != nil {
			if err := check(req.Context()); err != nil {
				log.WarnContext(ctx, "Health check failed", "error", err)
				status, body = http.StatusServiceUnavailable, "DB ping failed"
			}
		}
		writer.WriteHeader(status)
		if _, err := writer.Write([]byte(body)); err != nil {
			log.ErrorContext(ctx, "failed to write reply", "error", err)
		}

		log.DebugContext(ctx, "Health checks completed", "status", status)
	})
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))

	return mux
}

// startMonitoringServer starts an HTTP server that provides health check and metrics endpoints.
// It listens on the specified port and logs the server's status and any errors encountered.
// check, when not nil, is consulted by /healthz (the database ping for the postgres output).
func startMonitoringServer(
	ctx context.Context,
	log *slog.Logger,
	reg *prometheus.Registry,
	check func(context.Context) error,
	port int,
) {
	log.InfoContext(ctx, "Starting monitoring server", "port", port)
	readTimeout := 5
	writeTimeout := 10
	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", port),
		Handler:      monitoringHandler(ctx, log, reg, check),
		ReadTimeout:  time.Duration(readTimeout) * time.Second,
		WriteTimeout: time.Duration(writeTimeout) * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}()

	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.ErrorContext(ctx, "Monitoring server failed", "error", err)
	}
}

// setupLogger initializes and returns a logger based on the environment provided.
func setupLogger(env string) *slog.Logger {
	var log *slog.Logger

	switch env {
	case envLocal:
		log = slog.New(
			slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
				Level:     slog.LevelDebug,
				AddSource: true,
			}),
		)
	case envDev:
		log = slog.New(
			slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
				Level: slog.LevelInfo,
			}),
		)
	case envProd:
		log = slog.New(
			slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
				Level:       slog.LevelWarn,
				ReplaceAttr: dropTime,
			}),
		)
	default:
		log = slog.New(
			slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
				Level:       slog.LevelError,
				ReplaceAttr: dropTime,
			}),
		)

		log.Error(
			"The env parameter was not specified or was invalid. Logging will be minimal, by default.",
			slog.String("available_envs", "local, development, production"))
	}

	return log
}

func dropTime(_ []string, a slog.Attr) slog.Attr {
	if a.Key == slog.TimeKey {
		return slog.Attr{}
	}
	return a
}
