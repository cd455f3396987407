// Command server starts the Insightify AI gateway HTTP server.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	httpserver "github.com/Eagleeye1811/insightify-sub000/internal/adapter/httpserver"
	"github.com/Eagleeye1811/insightify-sub000/internal/adapter/observability"
	"github.com/Eagleeye1811/insightify-sub000/internal/adapter/queue/redpanda"
	"github.com/Eagleeye1811/insightify-sub000/internal/adapter/realtime"
	"github.com/Eagleeye1811/insightify-sub000/internal/adapter/repo/postgres"
	"github.com/Eagleeye1811/insightify-sub000/internal/app"
	"github.com/Eagleeye1811/insightify-sub000/internal/config"
	"github.com/Eagleeye1811/insightify-sub000/internal/domain"
	"github.com/Eagleeye1811/insightify-sub000/internal/usecase"
)

func main() {
	hashKey := flag.String("hash-admin-key", "", "print the ADMIN_API_KEY_HASH value for this key and exit")
	flag.Parse()
	if *hashKey != "" {
		encoded, err := httpserver.HashAPIKey(*hashKey, httpserver.DefaultArgon2Params)
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
		fmt.Println(encoded)
		return
	}

	cfg, err := config.Load()
	if err != nil {
		slog.Error("config load failed", slog.Any("error", err))
		os.Exit(1)
	}

	logger := observability.SetupLogger(cfg)
	slog.SetDefault(logger)

	// Register all Prometheus metrics once per process so that /metrics
	// exposes HTTP, gateway and job instrumentation.
	observability.InitMetrics()

	shutdownTracer, err := observability.SetupTracing(cfg)
	if err != nil {
		slog.Error("failed to setup tracing", slog.Any("error", err))
	}
	defer func() {
		if shutdownTracer != nil {
			_ = shutdownTracer(context.Background())
		}
	}()

	ctx, stop := context.WithCancel(context.Background())
	defer stop()

	// Infra: DB pool
	pool, err := postgres.NewPool(ctx, cfg.DBURL)
	if err != nil {
		slog.Error("db connect failed", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()
	if err := postgres.EnsureSchema(ctx, pool); err != nil {
		slog.Error("schema bootstrap failed", slog.Any("error", err))
		os.Exit(1)
	}

	rdb, err := app.NewRedis(ctx, cfg)
	if err != nil {
		slog.Error("redis connect failed", slog.Any("error", err))
		os.Exit(1)
	}
	if rdb != nil {
		defer func() { _ = rdb.Close() }()
	}

	if cfg.DataRetentionDays > 0 {
		cleanupSvc := postgres.NewCleanupService(pool, cfg.DataRetentionDays)
		go cleanupSvc.RunPeriodic(ctx, cfg.CleanupInterval)
		slog.Info("cleanup service started", slog.Int("retention_days", cfg.DataRetentionDays), slog.Duration("interval", cfg.CleanupInterval))
	}

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

	hub := realtime.NewHub()
	go hub.Run(ctx)
	events := analysisEvents(ctx, rdb, hub)

	repos := app.NewRepos(pool)
	cache := app.NewResponseCache(cfg, rdb)

	var producer *redpanda.Producer
	var jobQueue domain.AnalysisQueue
	if cfg.KafkaEnabled() {
		producer, err = redpanda.NewProducer(ctx, cfg.KafkaBrokers)
		if err != nil {
			slog.Error("redpanda producer connect failed", slog.Any("error", err))
			os.Exit(1)
		}
		defer producer.Close()
		jobQueue = producer
	} else {
		slog.Info("KAFKA_BROKERS not set; analysis jobs run in process")
	}

	jobs := app.NewJobService(cfg, repos, gw, jobQueue, events)
	if producer != nil && !cfg.ConsumerInProcess && !cfg.RedisEnabled() {
		slog.Warn("CONSUMER_IN_PROCESS=false needs REDIS_URL to share the provider budget with a worker; consuming in process")
	}
	if producer != nil && app.ConsumerInServer(cfg) {
		consumer, err := app.NewAnalysisConsumer(ctx, cfg, jobs, producer)
		if err != nil {
			slog.Error("redpanda consumer init failed", slog.Any("error", err))
			os.Exit(1)
		}
		defer consumer.Close()
		go func() {
			if err := consumer.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				slog.Error("analysis consumer stopped", slog.Any("error", err))
			}
		}()
	}

	dbCheck, redisCheck := app.BuildReadinessChecks(pool, rdb)
	srv := &httpserver.Server{
		Chat:       app.NewChatService(cfg, repos, gw, cache),
		History:    usecase.NewHistoryService(repos.ChatLogs, cfg.ChatHistoryLimit),
		Apps:       usecase.NewAppService(repos.Apps, repos.Reviews, repos.Analyses),
		Jobs:       jobs,
		Queue:      gw.Queue,
		Models:     gw,
		Cache:      cache,
		Realtime:   http.HandlerFunc(hub.ServeWS),
		DBCheck:    dbCheck,
		RedisCheck: redisCheck,
	}
	handler := app.BuildRouter(cfg, srv, app.NewLimiter(cfg, rdb))

	srvHTTP := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           handler,
		ReadTimeout:       cfg.HTTPReadTimeout,
		WriteTimeout:      cfg.HTTPWriteTimeout,
		IdleTimeout:       cfg.HTTPIdleTimeout,
		ReadHeaderTimeout: 10 * time.Second,
	}

	// Graceful shutdown
	errCh := make(chan error, 1)
	go func() {
		slog.Info("http server starting", slog.Int("port", cfg.Port), slog.String("provider", providers.Name))
		errCh <- srvHTTP.ListenAndServe()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		slog.Info("shutdown signal received", slog.String("signal", sig.String()))
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("server error", slog.Any("error", err))
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ServerShutdownTimeout)
	defer cancel()
	if err := srvHTTP.Shutdown(shutdownCtx); err != nil {
		slog.Error("http shutdown failed", slog.Any("error", err))
	}
	// Let in-flight provider calls finish before dropping the queue.
	if err := gw.Queue.Idle(shutdownCtx); err != nil {
		slog.Warn("gateway queue not drained", slog.Int("pending", gw.Queue.Status().QueueLength))
	}
	gw.Queue.Close()
	stop()
}

// analysisEvents returns where job progress is published. With Redis, events
// go through pub/sub so watchers on any replica receive them; the local hub
// subscribes to the channel.
func analysisEvents(ctx context.Context, rdb redis.UniversalClient, hub *realtime.Hub) domain.EventPublisher {
	if rdb == nil {
		return hub
	}
	ready := make(chan error, 1)
	go func() {
		if err := realtime.Forward(ctx, rdb, hub, ready); err != nil && !errors.Is(err, context.Canceled) {
			slog.Error("analysis event forwarding stopped", slog.Any("error", err))
		}
	}()
	select {
	case err := <-ready:
		if err != nil {
			slog.Warn("redis event subscription failed; using local hub", slog.Any("error", err))
			return hub
		}
	case <-time.After(5 * time.Second):
		slog.Warn("redis event subscription slow; publishing anyway")
	}
	return realtime.NewRedisPublisher(rdb)
}
