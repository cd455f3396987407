// Command seed loads apps and reviews from a YAML fixture into Postgres for
// one user, standing in for the scraping pipeline.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"time"

	httpserver "github.com/Eagleeye1811/insightify-sub000/internal/adapter/httpserver"
	"github.com/Eagleeye1811/insightify-sub000/internal/adapter/observability"
	"github.com/Eagleeye1811/insightify-sub000/internal/adapter/repo/postgres"
	"github.com/Eagleeye1811/insightify-sub000/internal/config"
)

func main() {
	file := flag.String("file", "cmd/seed/testdata/fixtures.yaml", "YAML fixture with apps and reviews")
	user := flag.String("user", "demo-user", "uid that owns the seeded apps")
	tokenTTL := flag.Duration("token-ttl", 24*time.Hour, "lifetime of the printed token when AUTH_JWT_SECRET is set")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("config load failed", slog.Any("error", err))
		os.Exit(1)
	}
	slog.SetDefault(observability.SetupLogger(cfg))

	doc, err := loadFixtures(*file)
	if err != nil {
		slog.Error("fixture load failed", slog.Any("error", err))
		os.Exit(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()
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

	target := seedTarget{Apps: postgres.NewAppRepo(pool), Reviews: postgres.NewReviewRepo(pool)}
	apps, reviews, err := seed(ctx, target, doc, *user, time.Now().UTC())
	if err != nil {
		slog.Error("seeding failed", slog.Int("apps_written", apps), slog.Any("error", err))
		os.Exit(1)
	}
	slog.Info("seed complete", slog.String("user_id", *user), slog.Int("apps", apps), slog.Int("reviews", reviews))

	if cfg.AuthJWTSecret != "" {
		tok, err := httpserver.NewToken(cfg.AuthJWTSecret, *user, *tokenTTL)
		if err != nil {
			slog.Error("token signing failed", slog.Any("error", err))
			os.Exit(1)
		}
		fmt.Println(tok)
	}
}
