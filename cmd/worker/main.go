// Package main provides the worker application entry point.
// The worker consumes analysis jobs from Redpanda and runs them through the
// provider gateway. It shares the server's provider budget through Redis and
// refuses to start without it.
package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/Eagleeye1811/insightify-sub000/internal/adapter/observability"
	"github.com/Eagleeye1811/insightify-sub000/internal/adapter/queue/redpanda"
	"github.com/Eagleeye1811/insightify-sub000/internal/adapter/realtime"
	"github.com/Eagleeye1811/insightify-sub000/internal/adapter/repo/postgres"
	"github.com/Eagleeye1811/insightify-sub000/internal/app"
	"github.com/Eagleeye1811/insightify-sub000/internal/config"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("config load failed", slog.Any("error", err))
		os.Exit(1)
	}

	logger := observability.SetupLogger(cfg)
	slog.SetDefault(logger)

	if err := app.CheckWorkerConfig(cfg); err != nil {
		slog.Error("worker configuration rejected", slog.Any("error", err))
		os.Exit(1)
	}

	// Expose job and gateway metrics on a dedicated port for Prometheus.
	observability.InitMetrics()
	metricsSrv := &http.Server{Addr: ":9090", Handler: promhttp.Handler(), ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("worker metrics server error", slog.Any("error", err))
		}
	}()

	shutdownTracer, err := observability.SetupTracing(cfg)
	if err != nil {
		slog.Error("failed to setup tracing", slog.Any("error", err))
	}
	defer func() {
		if shutdownTracer != nil {
			_ = shutdownTracer(context.Background())
		}
	}()

	slog.Info("starting worker", slog.String("env", cfg.AppEnv))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool, err := postgres.NewPool(ctx, cfg.DBURL)
	if err != nil {
		slog.Error("database connection failed", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	rdb, err := app.NewRedis(ctx, cfg)
	if err != nil {
		slog.Error("redis connect failed", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() { _ = rdb.Close() }()
	events := realtime.NewRedisPublisher(rdb)

	providers, err := app.NewProviders(ctx, cfg)
	if err != nil {
		slog.Error("provider init failed", slog.Any("error", err))
		os.Exit(1)
	}
	gw, err := app.NewGateway(cfg, providers, rdb)
	if err != nil {
		slog.Error("gateway init failed", slog.Any("error", err))
		os.Exit(1)
	}
	defer gw.Queue.Close()

	// Producer used for retry and DLQ flows within the worker.
	producer, err := redpanda.NewProducer(ctx, cfg.KafkaBrokers)
	if err != nil {
		slog.Error("queue producer init failed", slog.Any("error", err))
		os.Exit(1)
	}
	defer producer.Close()

	jobs := app.NewJobService(cfg, app.NewRepos(pool), gw, producer, events)
	consumer, err := app.NewAnalysisConsumer(ctx, cfg, jobs, producer)
	if err != nil {
		slog.Error("redpanda consumer init failed", slog.Any("error", err))
		os.Exit(1)
	}
	defer consumer.Close()

	slog.Info("worker started, waiting for jobs",
		slog.Int("workers", cfg.ConsumerMaxConcurrency),
		slog.String("group", cfg.KafkaGroupID))
	if err := consumer.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("worker error", slog.Any("error", err))
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ServerShutdownTimeout)
	defer cancel()
	_ = metricsSrv.Shutdown(shutdownCtx)
	slog.Info("worker stopped")
}
