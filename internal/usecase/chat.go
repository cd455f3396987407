// Package usecase contains the gateway's application services.
package usecase

import (
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/Eagleeye1811/insightify-sub000/internal/adapter/ai/tokencount"
	obs "github.com/Eagleeye1811/insightify-sub000/internal/adapter/observability"
	"github.com/Eagleeye1811/insightify-sub000/internal/domain"
	"github.com/Eagleeye1811/insightify-sub000/internal/observability"
	"github.com/Eagleeye1811/insightify-sub000/internal/service/modelfallback"
	"github.com/Eagleeye1811/insightify-sub000/internal/service/rag"
	"github.com/Eagleeye1811/insightify-sub000/internal/service/requestqueue"
	"github.com/Eagleeye1811/insightify-sub000/internal/service/respcache"
	"github.com/Eagleeye1811/insightify-sub000/pkg/textx"
)

// AnonymousUser owns requests that carry no identity.
const AnonymousUser = "anonymous"

const (
	maxChatApps       = 10
	logMessagePreview = 50
	fallbackNoApps    = "no_apps"
	fallbackNoData    = "no_data"
	fallbackProvider  = "provider"
)

// ChatOptions tunes a ChatService.
type ChatOptions struct {
	Candidates []domain.ModelCandidate
	// ReviewCap bounds the reviews loaded into one context.
	ReviewCap int
	Policy    respcache.Policy
	Tokens    *tokencount.Counter
}

// ChatService answers chat questions from a user's stored app data.
type ChatService struct {
	Apps     domain.AppRepository
	Reviews  domain.ReviewRepository
	Analyses domain.AnalysisRepository
	Logs     domain.ChatLogRepository
	Cache    respcache.Store
	Queue    *requestqueue.Queue
	Models   *modelfallback.Orchestrator
	opts     ChatOptions
	now      func() time.Time
}

// NewChatService wires a ChatService. logs and cache may be nil.
func NewChatService(apps domain.AppRepository, reviews domain.ReviewRepository, analyses domain.AnalysisRepository,
	logs domain.ChatLogRepository, cache respcache.Store, q *requestqueue.Queue, models *modelfallback.Orchestrator, opts ChatOptions,
) *ChatService {
	if opts.ReviewCap <= 0 {
		opts.ReviewCap = rag.DefaultReviewCap
	}
	if opts.Tokens == nil {
		opts.Tokens = tokencount.DefaultCounter
	}
	return &ChatService{
		Apps: apps, Reviews: reviews, Analyses: analyses, Logs: logs, Cache: cache,
		Queue: q, Models: models, opts: opts, now: time.Now,
	}
}

// Chat answers message for userID. It fails only when message is blank;
// provider and store failures degrade to template answers.
func (s *ChatService) Chat(ctx domain.Context, message, userID string) (domain.ChatResult, error) {
	msg := textx.SanitizeText(message)
	if msg == "" {
		return domain.ChatResult{}, fmt.Errorf("op=chat.chat: %w: message is required", domain.ErrInvalidArgument)
	}
	if strings.TrimSpace(userID) == "" {
		userID = AnonymousUser
	}
	lg := observability.LoggerFromContext(ctx).With(slog.String("user_id", userID))
	lg.Info("chat request", slog.String("message", preview(msg)))

	key := respcache.Key(msg, userID)
	if res, ok := s.cached(ctx, lg, key); ok {
		return res, nil
	}

	apps, err := s.Apps.ListByUser(ctx, userID, maxChatApps)
	if err != nil {
		lg.Warn("listing apps failed; answering without data", slog.Any("error", err))
		apps = nil
	}
	cls := rag.Classify(msg, apps)
	lg.Debug("chat classified", slog.String("intent", string(cls.Intent)), slog.Int("apps", len(apps)))

	if len(apps) == 0 {
		obs.ChatFallback(fallbackNoApps)
		res := domain.ChatResult{Response: rag.Fallback(msg, cls.Intent), Intent: cls.Intent, UsedFallback: true}
		s.record(ctx, lg, userID, msg, res)
		return res, nil
	}

	cc := s.loadContext(ctx, lg, userID, apps, cls.MentionedApp)
	if !cc.HasData() {
		obs.ChatFallback(fallbackNoData)
		res := domain.ChatResult{Response: rag.NoReviewsFallback(apps), Intent: cls.Intent, UsedFallback: true, DataUsed: cc.DataUsed()}
		s.record(ctx, lg, userID, msg, res)
		return res, nil
	}

	res := domain.ChatResult{Intent: cls.Intent, HasData: true, DataUsed: cc.DataUsed()}
	prompt := rag.ChatPrompt(rag.BuildContext(cc.Apps, cc.Reviews, cc.Analysis, cc.MentionedApp), cls.Intent, msg)
	s.observePrompt(lg, prompt)

	gen, err := requestqueue.Do(ctx, s.Queue, requestqueue.PriorityNormal, func(qctx domain.Context) (modelfallback.Result, error) {
		return s.Models.Generate(qctx, prompt, s.opts.Candidates)
	})
	if err != nil {
		lg.Warn("provider unavailable; using data-aware fallback", slog.Any("error", err))
		obs.ChatFallback(fallbackProvider)
		res.Response = rag.DataAwareFallback(msg, cls.Intent, cc.Apps, cc.Reviews, cc.Analysis)
		res.UsedFallback = true
		s.record(ctx, lg, userID, msg, res)
		return res, nil
	}
	res.Response = gen.Text
	lg.Info("chat answered", slog.String("model", gen.Model), slog.Int("attempts", len(gen.Attempts)))

	if s.Cache != nil && s.opts.Policy.ShouldCache(msg, cls.Intent, res.HasData) {
		meta := respcache.Metadata{Intent: res.Intent, HasData: res.HasData, DataUsed: res.DataUsed}
		if err := s.Cache.Put(ctx, key, res.Response, meta); err != nil {
			lg.Warn("caching chat answer failed", slog.Any("error", err))
		}
	}
	s.record(ctx, lg, userID, msg, res)
	return res, nil
}

func (s *ChatService) cached(ctx domain.Context, lg *slog.Logger, key string) (domain.ChatResult, bool) {
	if s.Cache == nil {
		return domain.ChatResult{}, false
	}
	e, ok, err := s.Cache.Get(ctx, key)
	if err != nil {
		lg.Warn("cache lookup failed", slog.Any("error", err))
		return domain.ChatResult{}, false
	}
	if !ok {
		return domain.ChatResult{}, false
	}
	lg.Info("chat served from cache", slog.Time("cached_at", e.CachedAt))
	return domain.ChatResult{
		Response:  e.Response,
		Intent:    e.Metadata.Intent,
		HasData:   e.Metadata.HasData,
		FromCache: true,
		DataUsed:  e.Metadata.DataUsed,
	}, true
}

// loadContext gathers reviews and analysis for the mentioned app, the only
// app, or all apps. Read errors leave the affected part empty.
func (s *ChatService) loadContext(ctx domain.Context, lg *slog.Logger, userID string, apps []domain.AppProfile, mentioned *domain.AppProfile) rag.CallerContext {
	cc := rag.CallerContext{UserID: userID, Apps: apps, MentionedApp: mentioned}

	focus := mentioned
	if focus == nil && len(apps) == 1 {
		focus = &apps[0]
	}
	if focus != nil {
		reviews, err := s.Reviews.ListByApp(ctx, userID, focus.ID, s.opts.ReviewCap)
		if err != nil {
			lg.Warn("loading reviews failed", slog.String("app_id", focus.ID), slog.Any("error", err))
		}
		cc.Reviews = reviews
		stored, err := s.Analyses.Get(ctx, userID, focus.ID)
		switch {
		case err == nil:
			result := stored.Result
			cc.Analysis = &result
		case errors.Is(err, domain.ErrNotFound):
		default:
			lg.Warn("loading analysis failed", slog.String("app_id", focus.ID), slog.Any("error", err))
		}
		return cc
	}

	var (
		mu  sync.Mutex
		all []domain.ReviewRecord
	)
	g, gctx := errgroup.WithContext(ctx)
	for _, app := range apps {
		g.Go(func() error {
			reviews, err := s.Reviews.ListByApp(gctx, userID, app.ID, s.opts.ReviewCap)
			if err != nil {
				lg.Warn("loading reviews failed", slog.String("app_id", app.ID), slog.Any("error", err))
				return nil
			}
			mu.Lock()
			all = append(all, reviews...)
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	sort.SliceStable(all, func(i, j int) bool {
		if all[i].Date.Equal(all[j].Date) {
			return all[i].ID < all[j].ID
		}
		return all[i].Date.After(all[j].Date)
	})
	if len(all) > s.opts.ReviewCap {
		all = all[:s.opts.ReviewCap]
	}
	cc.Reviews = all
	return cc
}

func (s *ChatService) observePrompt(lg *slog.Logger, prompt string) {
	model := ""
	if len(s.opts.Candidates) > 0 {
		model = s.opts.Candidates[0].Name
	}
	n := s.opts.Tokens.Count(prompt, model)
	obs.ObservePromptTokens(n)
	lg.Debug("chat prompt built", slog.Int("prompt_tokens", n))
}

// record appends a chat log. Failures are logged and otherwise ignored.
func (s *ChatService) record(ctx domain.Context, lg *slog.Logger, userID, msg string, res domain.ChatResult) {
	if s.Logs == nil {
		return
	}
	entry := domain.ChatLog{
		ID:           uuid.NewString(),
		UserID:       userID,
		Message:      msg,
		Response:     res.Response,
		Intent:       res.Intent,
		HasData:      res.HasData,
		UsedFallback: res.UsedFallback,
		FromCache:    res.FromCache,
		DataUsed:     res.DataUsed,
		Timestamp:    s.now().UTC(),
	}
	if _, err := s.Logs.Append(ctx, entry); err != nil {
		lg.Warn("failed to log chat interaction", slog.Any("error", err))
	}
}

func preview(s string) string {
	if r := []rune(s); len(r) > logMessagePreview {
		return string(r[:logMessagePreview]) + "..."
	}
	return s
}
