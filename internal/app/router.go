// Package app assembles the gateway: routing, readiness and the shared
// infrastructure used by the server and worker binaries.
package app

import (
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	httpserver "github.com/Eagleeye1811/insightify-sub000/internal/adapter/httpserver"
	"github.com/Eagleeye1811/insightify-sub000/internal/adapter/observability"
	"github.com/Eagleeye1811/insightify-sub000/internal/config"
	"github.com/Eagleeye1811/insightify-sub000/internal/service/ratelimiter"
)

// ParseOrigins splits a comma-separated origin list, trimming spaces.
// Empty input means ["*"].
func ParseOrigins(s string) []string {
	s = strings.TrimSpace(s)
	if s == "" || s == "*" {
		return []string{"*"}
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	if len(out) == 0 {
		return []string{"*"}
	}
	return out
}

// BuildRouter constructs the HTTP handler with all middlewares and routes.
// limiter may be nil, in which case per-user limits are kept in memory.
func BuildRouter(cfg config.Config, srv *httpserver.Server, limiter ratelimiter.Limiter) http.Handler {
	r := chi.NewRouter()
	r.Use(httpserver.Recoverer())
	r.Use(httpserver.TraceMiddleware)
	r.Use(httpserver.RequestID())
	r.Use(httpserver.AccessLog())
	r.Use(observability.HTTPMetricsMiddleware)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   ParseOrigins(cfg.CORSAllowOrigins),
		AllowedMethods:   []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Authorization", "Content-Type", "X-User-Id", "X-Request-Id", httpserver.AdminKeyHeader},
		ExposedHeaders:   []string{"X-Request-Id", "Retry-After"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	r.Get("/healthz", srv.HealthzHandler())
	r.Get("/readyz", srv.ReadyzHandler())
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/v1", func(v1 chi.Router) {
		v1.Use(httpserver.Identity(cfg.AuthJWTSecret))

		// The socket needs a hijackable writer, so it stays outside the timeout.
		v1.Get("/ws", srv.RealtimeHandler())

		v1.Group(func(api chi.Router) {
			api.Use(httpserver.TimeoutMiddleware(handlerTimeout(cfg)))

			api.With(perIP(cfg), httpserver.UserRateLimit(limiter, httpserver.UserLimit{
				Bucket: ratelimiter.BucketChat, Limit: cfg.ChatRatePerMin, Window: time.Minute,
			})).Post("/chat", srv.ChatHandler())
			api.Get("/chat/history", srv.HistoryHandler())
			api.Delete("/chat/history", srv.ClearHistoryHandler())
			api.Get("/chat/stats", srv.StatsHandler())

			api.Get("/apps", srv.ListAppsHandler())
			api.Get("/apps/{appId}/results", srv.ResultsHandler())
			api.With(perIP(cfg), httpserver.UserRateLimit(limiter, httpserver.UserLimit{
				Bucket: ratelimiter.BucketAnalysis, Limit: cfg.AnalysisRatePer5Min, Window: 5 * time.Minute,
			})).Post("/apps/{appId}/analyze", srv.AnalyzeHandler())

			api.Get("/gateway/queue", srv.QueueStatusHandler())
			api.Get("/gateway/cache", srv.CacheStatsHandler())
			api.Group(func(admin chi.Router) {
				admin.Use(httpserver.AdminKeyRequired(cfg.AdminAPIKeyHash))
				admin.Delete("/gateway/queue", srv.ClearQueueHandler())
				admin.Delete("/gateway/cache", srv.ClearCacheHandler())
			})
		})
	})

	return httpserver.SecurityHeaders(r)
}

// handlerTimeout leaves the server write deadline room to flush the timeout body.
func handlerTimeout(cfg config.Config) time.Duration {
	d := cfg.HTTPWriteTimeout - time.Second
	if d <= 0 {
		return 2 * time.Minute
	}
	return d
}

// perIP limits mutating routes by client address regardless of identity.
func perIP(cfg config.Config) func(http.Handler) http.Handler {
	if cfg.RateLimitPerMin <= 0 {
		return func(next http.Handler) http.Handler { return next }
	}
	return httprate.LimitByIP(cfg.RateLimitPerMin, time.Minute)
}
