package app

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/redis/go-redis/v9"

	"github.com/Eagleeye1811/insightify-sub000/internal/adapter/ai/gemini"
	"github.com/Eagleeye1811/insightify-sub000/internal/adapter/ai/stub"
	"github.com/Eagleeye1811/insightify-sub000/internal/adapter/queue/redpanda"
	"github.com/Eagleeye1811/insightify-sub000/internal/adapter/repo/postgres"
	"github.com/Eagleeye1811/insightify-sub000/internal/config"
	"github.com/Eagleeye1811/insightify-sub000/internal/domain"
	"github.com/Eagleeye1811/insightify-sub000/internal/service/modelfallback"
	"github.com/Eagleeye1811/insightify-sub000/internal/service/ratelimiter"
	"github.com/Eagleeye1811/insightify-sub000/internal/service/requestqueue"
	"github.com/Eagleeye1811/insightify-sub000/internal/service/respcache"
	"github.com/Eagleeye1811/insightify-sub000/internal/usecase"
)

// Sampling settings for chat answers and structured analysis.
var (
	ChatGeneration     = gemini.Generation{Temperature: 0.7, TopK: 40, TopP: 0.95, MaxOutputTokens: 1024}
	AnalysisGeneration = gemini.Generation{Temperature: 0.4, TopK: 40, TopP: 0.95, MaxOutputTokens: 4096}
)

// NewRedis connects to REDIS_URL. It returns nil without error when Redis
// is not configured.
func NewRedis(ctx context.Context, cfg config.Config) (redis.UniversalClient, error) {
	if !cfg.RedisEnabled() {
		return nil, nil
	}
	opts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("op=app.redis: %w", err)
	}
	rdb := redis.NewClient(opts)
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("op=app.redis: ping: %w", err)
	}
	return rdb, nil
}

// Providers holds the chat and analysis providers; they may share a client.
type Providers struct {
	Name     string
	Chat     domain.Provider
	Analysis domain.Provider
}

// NewProviders selects gemini or the deterministic stub from AI_PROVIDER.
func NewProviders(ctx context.Context, cfg config.Config) (Providers, error) {
	switch strings.ToLower(cfg.AIProvider) {
	case "stub":
		p := stub.New()
		return Providers{Name: "stub", Chat: p, Analysis: p}, nil
	case "gemini", "":
		chat, err := gemini.New(ctx, gemini.Options{
			APIKey:     cfg.GeminiAPIKey,
			BaseURL:    cfg.GeminiBaseURL,
			Generation: ChatGeneration,
		})
		if err != nil {
			return Providers{}, fmt.Errorf("op=app.providers: %w", err)
		}
		return Providers{Name: "gemini", Chat: chat, Analysis: chat.WithGeneration(AnalysisGeneration)}, nil
	}
	return Providers{}, fmt.Errorf("op=app.providers: %w: unknown AI_PROVIDER %q", domain.ErrInvalidArgument, cfg.AIProvider)
}

// Gateway is the provider side of the system: one queue shared by chat and
// analysis, and an orchestrator per call kind.
type Gateway struct {
	Queue          *requestqueue.Queue
	Chat           *modelfallback.Orchestrator
	Analysis       *modelfallback.Orchestrator
	ChatModels     []domain.ModelCandidate
	AnalysisModels []domain.ModelCandidate
}

// CoolingModels lists the models either orchestrator is skipping after a
// provider limit.
func (g *Gateway) CoolingModels() []string {
	out := append(g.Chat.Cooldown().Blocked(), g.Analysis.Cooldown().Blocked()...)
	slices.Sort(out)
	return slices.Compact(out)
}

// NewGateway builds the queue and orchestrators from configuration. With
// Redis the queue also holds the shared provider gate, so every process
// running a gateway stays inside one budget with one call in flight.
func NewGateway(cfg config.Config, p Providers, rdb redis.UniversalClient) (*Gateway, error) {
	chatModels, analysisModels, err := cfg.GatewayModels()
	if err != nil {
		return nil, fmt.Errorf("op=app.gateway: %w", err)
	}
	opts := modelfallback.Options{
		ProviderName:   p.Name,
		AttemptTimeout: cfg.GatewayAttemptTimeout,
		ModelCooldown:  cfg.GatewayModelCooldown,
	}
	qcfg := requestqueue.Config{
		RequestsPerMinute: cfg.GatewayRequestsPerMinute,
		MinDelay:          cfg.GatewayMinDelay,
		Window:            cfg.GatewayWindow,
	}
	if rdb != nil {
		qcfg.Gate = ratelimiter.NewProviderGate(rdb, ratelimiter.GateConfig{
			RequestsPerMinute: cfg.GatewayRequestsPerMinute,
			MinDelay:          cfg.GatewayMinDelay,
			Window:            cfg.GatewayWindow,
			LockTTL:           cfg.GatewayLockTTL,
		})
	}
	q := requestqueue.New(qcfg)
	slog.Info("provider gateway configured",
		slog.String("provider", p.Name),
		slog.Bool("shared_budget", qcfg.Gate != nil),
		slog.Int("requests_per_minute", cfg.GatewayRequestsPerMinute),
		slog.Int("chat_models", len(chatModels)),
		slog.Int("analysis_models", len(analysisModels)))
	return &Gateway{
		Queue:          q,
		Chat:           modelfallback.New(p.Chat, opts),
		Analysis:       modelfallback.New(p.Analysis, opts),
		ChatModels:     chatModels,
		AnalysisModels: analysisModels,
	}, nil
}

// ConsumerInServer reports whether the HTTP server consumes analysis jobs
// itself. A separate worker can only share the provider budget through
// Redis, so without Redis the server always consumes.
func ConsumerInServer(cfg config.Config) bool {
	return cfg.KafkaEnabled() && (cfg.ConsumerInProcess || !cfg.RedisEnabled())
}

// CheckWorkerConfig rejects worker setups that would open a second provider
// budget next to the server's.
func CheckWorkerConfig(cfg config.Config) error {
	if !cfg.KafkaEnabled() {
		return fmt.Errorf("op=app.worker: %w: worker requires KAFKA_BROKERS", domain.ErrInvalidArgument)
	}
	if !cfg.RedisEnabled() {
		return fmt.Errorf("op=app.worker: %w: worker requires REDIS_URL to share the provider budget", domain.ErrInvalidArgument)
	}
	if cfg.ConsumerInProcess {
		slog.Warn("CONSUMER_IN_PROCESS is set; server and worker both consume analysis jobs under the shared budget")
	}
	return nil
}

// NewResponseCache picks the CACHE_BACKEND store. The redis backend falls
// back to memory when Redis is unavailable.
func NewResponseCache(cfg config.Config, rdb redis.UniversalClient) respcache.Store {
	if strings.EqualFold(cfg.CacheBackend, "redis") {
		if rdb != nil {
			return respcache.NewRedis(rdb, cfg.CacheTTL, cfg.CacheCapacity)
		}
		slog.Warn("CACHE_BACKEND=redis without REDIS_URL; using memory cache")
	}
	return respcache.NewMemory(cfg.CacheTTL, cfg.CacheCapacity)
}

// NewLimiter returns the shared per-user limiter, or nil without Redis so the
// router falls back to in-memory limits.
func NewLimiter(cfg config.Config, rdb redis.UniversalClient) ratelimiter.Limiter {
	if rdb == nil {
		return nil
	}
	return ratelimiter.NewRedisLuaLimiter(rdb, map[string]ratelimiter.BucketConfig{
		ratelimiter.BucketChat:     ratelimiter.PerWindow(cfg.ChatRatePerMin, time.Minute),
		ratelimiter.BucketAnalysis: ratelimiter.PerWindow(cfg.AnalysisRatePer5Min, 5*time.Minute),
	})
}

// Repos groups the Postgres repositories.
type Repos struct {
	Apps     *postgres.AppRepo
	Reviews  *postgres.ReviewRepo
	Analyses *postgres.AnalysisRepo
	ChatLogs *postgres.ChatLogRepo
}

// NewRepos builds every repository over pool.
func NewRepos(pool postgres.PgxPool) Repos {
	return Repos{
		Apps:     postgres.NewAppRepo(pool),
		Reviews:  postgres.NewReviewRepo(pool),
		Analyses: postgres.NewAnalysisRepo(pool),
		ChatLogs: postgres.NewChatLogRepo(pool),
	}
}

// NewJobService wires the analysis job service. queue and events may be nil.
func NewJobService(cfg config.Config, repos Repos, gw *Gateway, queue domain.AnalysisQueue, events domain.EventPublisher) *usecase.AnalysisJobService {
	analyzer := usecase.NewAnalyzeService(gw.Queue, gw.Analysis, gw.AnalysisModels)
	retry := cfg.GetRetryConfig()
	return usecase.NewAnalysisJobService(repos.Apps, repos.Reviews, repos.Analyses, queue, events, analyzer,
		func() backoff.BackOff { return retry.Backoff() })
}

// NewChatService wires the chat use case.
func NewChatService(cfg config.Config, repos Repos, gw *Gateway, cache respcache.Store) *usecase.ChatService {
	return usecase.NewChatService(repos.Apps, repos.Reviews, repos.Analyses, repos.ChatLogs, cache, gw.Queue, gw.Chat,
		usecase.ChatOptions{
			Candidates: gw.ChatModels,
			ReviewCap:  cfg.ContextReviewCap,
			Policy:     respcache.NewPolicy(cfg.CacheIntents),
		})
}

// NewAnalysisConsumer builds the broker consumer that feeds jobs to processor.
func NewAnalysisConsumer(ctx context.Context, cfg config.Config, processor redpanda.JobProcessor, redeliver redpanda.Redeliverer) (*redpanda.Consumer, error) {
	c, err := redpanda.NewConsumer(ctx, cfg.KafkaBrokers, cfg.KafkaGroupID, processor, redeliver, redpanda.ConsumerOptions{
		Workers:     cfg.ConsumerMaxConcurrency,
		MaxAttempts: cfg.KafkaMaxAttempts,
	})
	if err != nil {
		return nil, fmt.Errorf("op=app.consumer: %w", err)
	}
	return c, nil
}
