package httpserver

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/httprate"

	"github.com/Eagleeye1811/insightify-sub000/internal/service/ratelimiter"
)

// UserLimit configures one per-user bucket.
type UserLimit struct {
	Bucket string
	Limit  int
	Window time.Duration
}

// UserRateLimit limits requests per resolved uid. It uses the shared Redis
// bucket when limiter is non-nil and an in-memory window otherwise. A
// limiter error lets the request through.
func UserRateLimit(limiter ratelimiter.Limiter, cfg UserLimit) func(http.Handler) http.Handler {
	if cfg.Limit <= 0 {
		return func(next http.Handler) http.Handler { return next }
	}
	if limiter == nil {
		return httprate.Limit(cfg.Limit, cfg.Window,
			httprate.WithKeyFuncs(func(r *http.Request) (string, error) {
				return cfg.Bucket + ":" + userFrom(r, ""), nil
			}),
			httprate.WithLimitHandler(func(w http.ResponseWriter, r *http.Request) {
				retry := cfg.Window
				if s, err := strconv.Atoi(w.Header().Get("Retry-After")); err == nil && s > 0 {
					retry = time.Duration(s) * time.Second
				}
				writeRateLimited(w, retry)
			}),
		)
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			uid := userFrom(r, "")
			ok, retry, err := limiter.Allow(r.Context(), cfg.Bucket, uid, 1)
			if err != nil {
				LoggerFrom(r).Warn("rate limiter unavailable; allowing request",
					slog.String("bucket", cfg.Bucket), slog.Any("error", err))
			}
			if !ok {
				writeRateLimited(w, retry)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
