package usecase_test

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	obs "github.com/Eagleeye1811/insightify-sub000/internal/adapter/observability"
	"github.com/Eagleeye1811/insightify-sub000/internal/domain"
	"github.com/Eagleeye1811/insightify-sub000/internal/domain/mocks"
	"github.com/Eagleeye1811/insightify-sub000/internal/service/modelfallback"
	"github.com/Eagleeye1811/insightify-sub000/internal/service/rag"
	"github.com/Eagleeye1811/insightify-sub000/internal/service/requestqueue"
	"github.com/Eagleeye1811/insightify-sub000/internal/service/respcache"
	"github.com/Eagleeye1811/insightify-sub000/internal/usecase"
)

type chatFixture struct {
	apps     *mocks.MockAppRepository
	reviews  *mocks.MockReviewRepository
	analyses *mocks.MockAnalysisRepository
	logs     *mocks.MockChatLogRepository
	provider *mocks.MockProvider
	cache    *respcache.Memory
	svc      *usecase.ChatService
}

var chatModels = []domain.ModelCandidate{{Name: "m1", Priority: 1}, {Name: "m2", Priority: 2}}

func newChatFixture(t *testing.T, reviewCap int) *chatFixture {
	t.Helper()
	f := &chatFixture{
		apps:     &mocks.MockAppRepository{},
		reviews:  &mocks.MockReviewRepository{},
		analyses: &mocks.MockAnalysisRepository{},
		logs:     &mocks.MockChatLogRepository{},
		provider: &mocks.MockProvider{},
		cache:    respcache.NewMemory(time.Hour, 100),
	}
	q := requestqueue.New(requestqueue.Config{RequestsPerMinute: 100, MinDelay: -1})
	t.Cleanup(q.Close)
	orch := modelfallback.New(f.provider, modelfallback.Options{AttemptTimeout: time.Second})
	f.svc = usecase.NewChatService(f.apps, f.reviews, f.analyses, f.logs, f.cache, q, orch, usecase.ChatOptions{
		Candidates: chatModels,
		ReviewCap:  reviewCap,
		Policy:     respcache.NewPolicy(nil),
	})
	f.logs.On("Append", mock.Anything, mock.Anything).Return("log-1", nil).Maybe()
	return f
}

var crashApp = domain.AppProfile{ID: "com.x", UserID: "u1", Title: "X", Genre: "Tools", Rating: 3.2, ReviewCount: 900}

func crashReviews() []domain.ReviewRecord {
	return []domain.ReviewRecord{
		{ID: "r1", AppID: "com.x", Score: 1, Text: "crashes on launch every time", Date: time.Date(2025, 5, 1, 0, 0, 0, 0, time.UTC)},
		{ID: "r2", AppID: "com.x", Score: 2, Text: "crash after update", Date: time.Date(2025, 5, 2, 0, 0, 0, 0, time.UTC)},
		{ID: "r3", AppID: "com.x", Score: 5, Text: "love it", Date: time.Date(2025, 5, 3, 0, 0, 0, 0, time.UTC)},
	}
}

func crashAnalysis() domain.StoredAnalysis {
	return domain.StoredAnalysis{AppID: "com.x", UserID: "u1", Version: "1.0", Result: domain.AnalysisResult{
		Bugs: []domain.Bug{{Name: "Launch crash", Description: "closes at splash", Severity: "High", Frequency: 40}},
	}}
}

func (f *chatFixture) withCrashData() {
	f.apps.On("ListByUser", mock.Anything, "u1", mock.Anything).Return([]domain.AppProfile{crashApp}, nil)
	f.reviews.On("ListByApp", mock.Anything, "u1", "com.x", mock.Anything).Return(crashReviews(), nil)
	f.analyses.On("Get", mock.Anything, "u1", "com.x").Return(crashAnalysis(), nil)
}

func TestChat_EmptyMessage(t *testing.T) {
	f := newChatFixture(t, 0)
	for _, msg := range []string{"", "   \n\t", "\x00\x07 "} {
		_, err := f.svc.Chat(context.Background(), msg, "u1")
		assert.ErrorIs(t, err, domain.ErrInvalidArgument)
	}
	f.provider.AssertNotCalled(t, "Generate", mock.Anything, mock.Anything, mock.Anything)
}

func TestChat_NoAppsUsesOnboarding(t *testing.T) {
	f := newChatFixture(t, 0)
	f.apps.On("ListByUser", mock.Anything, "u1", mock.Anything).Return([]domain.AppProfile{}, nil)

	res, err := f.svc.Chat(context.Background(), "what bugs are there?", "u1")
	require.NoError(t, err)
	assert.Equal(t, domain.IntentBugReport, res.Intent)
	assert.True(t, res.UsedFallback)
	assert.False(t, res.HasData)
	assert.Equal(t, rag.Fallback("", domain.IntentBugReport), res.Response)
	f.provider.AssertNotCalled(t, "Generate", mock.Anything, mock.Anything, mock.Anything)
	f.logs.AssertCalled(t, "Append", mock.Anything, mock.MatchedBy(func(l domain.ChatLog) bool {
		return l.UserID == "u1" && l.UsedFallback && l.Intent == domain.IntentBugReport && l.ID != ""
	}))
}

func TestChat_StoreErrorDegrades(t *testing.T) {
	f := newChatFixture(t, 0)
	f.apps.On("ListByUser", mock.Anything, "anonymous", mock.Anything).Return(nil, errors.New("db down"))

	res, err := f.svc.Chat(context.Background(), "hello", "")
	require.NoError(t, err)
	assert.True(t, res.UsedFallback)
	assert.Equal(t, domain.IntentGeneral, res.Intent)
}

func TestChat_AppsWithoutData(t *testing.T) {
	f := newChatFixture(t, 0)
	f.apps.On("ListByUser", mock.Anything, "u1", mock.Anything).Return([]domain.AppProfile{crashApp}, nil)
	f.reviews.On("ListByApp", mock.Anything, "u1", "com.x", mock.Anything).Return([]domain.ReviewRecord{}, nil)
	f.analyses.On("Get", mock.Anything, "u1", "com.x").Return(domain.StoredAnalysis{}, domain.ErrNotFound)

	res, err := f.svc.Chat(context.Background(), "any bugs?", "u1")
	require.NoError(t, err)
	assert.True(t, res.UsedFallback)
	assert.Equal(t, rag.NoReviewsFallback([]domain.AppProfile{crashApp}), res.Response)
	assert.Equal(t, domain.DataUsed{Apps: 1}, res.DataUsed)
	f.provider.AssertNotCalled(t, "Generate", mock.Anything, mock.Anything, mock.Anything)
}

func TestChat_CrashScenarioFallsBackWhenModelsFail(t *testing.T) {
	f := newChatFixture(t, 0)
	f.withCrashData()
	f.provider.On("Generate", mock.Anything, "m1", mock.Anything).Return("", domain.ErrUpstreamRateLimit)
	f.provider.On("Generate", mock.Anything, "m2", mock.Anything).Return("", errors.New("quota exceeded"))

	res, err := f.svc.Chat(context.Background(), "Why does it crash on launch?", "u1")
	require.NoError(t, err)
	assert.Equal(t, domain.IntentBugReport, res.Intent)
	assert.True(t, res.UsedFallback)
	assert.True(t, res.HasData)
	assert.False(t, res.FromCache)
	assert.Equal(t, domain.DataUsed{Apps: 1, Reviews: 3, HasAnalysis: true}, res.DataUsed)
	assert.Contains(t, res.Response, "Launch crash")
	assert.Contains(t, res.Response, "**Low-Rated Reviews:** 2 (66.7%)")
	assert.True(t, strings.HasSuffix(res.Response, rag.RateLimitFooter))
	f.provider.AssertNumberOfCalls(t, "Generate", 2)

	stats, err := f.cache.Stats(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, stats.Keys, "fallback answers are never cached")
}

func TestChat_SuccessIsCachedAndServedAgain(t *testing.T) {
	f := newChatFixture(t, 0)
	f.withCrashData()
	f.provider.On("Generate", mock.Anything, "m1", mock.MatchedBy(func(p string) bool {
		return strings.Contains(p, "User Intent: bugReport") && strings.Contains(p, "Launch crash")
	})).Return("The main issue is a launch crash.", nil).Once()

	ctx := context.Background()
	first, err := f.svc.Chat(ctx, "What bugs do users report?", "u1")
	require.NoError(t, err)
	assert.False(t, first.UsedFallback)
	assert.False(t, first.FromCache)
	assert.Equal(t, "The main issue is a launch crash.", first.Response)

	second, err := f.svc.Chat(ctx, "  what BUGS do users   report? ", "u1")
	require.NoError(t, err)
	assert.True(t, second.FromCache)
	assert.Equal(t, first.Response, second.Response)
	assert.Equal(t, first.Intent, second.Intent)
	assert.Equal(t, first.DataUsed, second.DataUsed)
	f.provider.AssertNumberOfCalls(t, "Generate", 1)
	f.logs.AssertNumberOfCalls(t, "Append", 1)

	_, found, err := f.cache.Get(ctx, respcache.Key("what bugs do users report?", "u2"))
	require.NoError(t, err)
	assert.False(t, found, "cache entries are per user")
}

func TestChat_CacheEventsCountedOncePerLookup(t *testing.T) {
	f := newChatFixture(t, 0)
	f.withCrashData()
	f.provider.On("Generate", mock.Anything, "m1", mock.Anything).Return("launch crash dominates", nil).Once()

	count := func(result string) float64 {
		return testutil.ToFloat64(obs.ResponseCacheEvents.WithLabelValues(result))
	}
	hits, misses, stores := count("hit"), count("miss"), count("store")

	ctx := context.Background()
	_, err := f.svc.Chat(ctx, "which crash bugs hurt ratings?", "u1")
	require.NoError(t, err)
	assert.Equal(t, misses+1, count("miss"))
	assert.Equal(t, stores+1, count("store"))
	assert.Equal(t, hits, count("hit"))

	res, err := f.svc.Chat(ctx, "which crash bugs hurt ratings?", "u1")
	require.NoError(t, err)
	require.True(t, res.FromCache)
	assert.Equal(t, hits+1, count("hit"))
	assert.Equal(t, misses+1, count("miss"))
}

func TestChat_TimeSensitiveNotCached(t *testing.T) {
	f := newChatFixture(t, 0)
	f.withCrashData()
	f.provider.On("Generate", mock.Anything, "m1", mock.Anything).Return("answer", nil)

	for i := 0; i < 2; i++ {
		res, err := f.svc.Chat(context.Background(), "what bugs appeared today for users", "u1")
		require.NoError(t, err)
		assert.False(t, res.FromCache)
	}
	f.provider.AssertNumberOfCalls(t, "Generate", 2)
}

func TestChat_MultipleAppsMergesNewestReviews(t *testing.T) {
	f := newChatFixture(t, 4)
	apps := []domain.AppProfile{{ID: "a", Title: "Alpha"}, {ID: "b", Title: "Bravo"}}
	f.apps.On("ListByUser", mock.Anything, "u1", mock.Anything).Return(apps, nil)
	base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	mk := func(app string, days ...int) []domain.ReviewRecord {
		var out []domain.ReviewRecord
		for _, d := range days {
			out = append(out, domain.ReviewRecord{ID: fmt.Sprintf("%s%d", app, d), AppID: app, Score: 3, Text: app, Date: base.AddDate(0, 0, d)})
		}
		return out
	}
	f.reviews.On("ListByApp", mock.Anything, "u1", "a", 4).Return(mk("a", 1, 5, 9), nil)
	f.reviews.On("ListByApp", mock.Anything, "u1", "b", 4).Return(mk("b", 2, 6, 10), nil)

	var prompt string
	f.provider.On("Generate", mock.Anything, "m1", mock.Anything).Run(func(args mock.Arguments) {
		prompt = args.String(2)
	}).Return("overview", nil)

	res, err := f.svc.Chat(context.Background(), "how are my apps doing overall?", "u1")
	require.NoError(t, err)
	assert.Equal(t, domain.DataUsed{Apps: 2, Reviews: 4}, res.DataUsed)
	assert.Contains(t, prompt, "## Recent Reviews (4 total):")
	assert.Contains(t, prompt, "2025-01-11")
	assert.NotContains(t, prompt, "2025-01-02]")
	f.analyses.AssertNotCalled(t, "Get", mock.Anything, mock.Anything, mock.Anything)
}

func TestChat_LogFailureIsIgnored(t *testing.T) {
	f := newChatFixture(t, 0)
	f.logs.ExpectedCalls = nil
	f.logs.On("Append", mock.Anything, mock.Anything).Return("", errors.New("write failed"))
	f.apps.On("ListByUser", mock.Anything, "u1", mock.Anything).Return(nil, nil)

	res, err := f.svc.Chat(context.Background(), "hi", "u1")
	require.NoError(t, err)
	assert.NotEmpty(t, res.Response)
}
