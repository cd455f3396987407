package usecase_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/Eagleeye1811/insightify-sub000/internal/domain"
	"github.com/Eagleeye1811/insightify-sub000/internal/domain/mocks"
	"github.com/Eagleeye1811/insightify-sub000/internal/usecase"
)

type fakeAnalyzer struct {
	result domain.AnalysisResult
	err    error
	calls  int
}

func (f *fakeAnalyzer) Analyze(_ domain.Context, _ []domain.ReviewRecord, _ domain.AppProfile) (domain.AnalysisResult, error) {
	f.calls++
	return f.result, f.err
}

type jobsFixture struct {
	apps     *mocks.MockAppRepository
	reviews  *mocks.MockReviewRepository
	analyses *mocks.MockAnalysisRepository
	queue    *mocks.MockAnalysisQueue
	events   *mocks.MockEventPublisher
	analyzer *fakeAnalyzer
}

func newJobsFixture() *jobsFixture {
	return &jobsFixture{
		apps:     &mocks.MockAppRepository{},
		reviews:  &mocks.MockReviewRepository{},
		analyses: &mocks.MockAnalysisRepository{},
		queue:    &mocks.MockAnalysisQueue{},
		events:   &mocks.MockEventPublisher{},
		analyzer: &fakeAnalyzer{result: domain.AnalysisResult{Bugs: []domain.Bug{{Name: "Launch crash"}}}},
	}
}

func (f *jobsFixture) service(withQueue bool) *usecase.AnalysisJobService {
	var q domain.AnalysisQueue
	if withQueue {
		q = f.queue
	}
	quick := func() backoff.BackOff { return backoff.WithMaxRetries(&backoff.ZeroBackOff{}, 3) }
	return usecase.NewAnalysisJobService(f.apps, f.reviews, f.analyses, q, f.events, f.analyzer, quick)
}

func TestSubmit_NoReviews(t *testing.T) {
	f := newJobsFixture()
	f.reviews.On("ListByApp", mock.Anything, "u1", "com.x", 1).Return([]domain.ReviewRecord{}, nil)

	_, err := f.service(true).Submit(context.Background(), "u1", "com.x")
	assert.ErrorIs(t, err, domain.ErrNotFound)
	f.queue.AssertNotCalled(t, "EnqueueAnalysis", mock.Anything, mock.Anything)
}

func TestSubmit_EmptyAppID(t *testing.T) {
	_, err := newJobsFixture().service(true).Submit(context.Background(), "u1", "")
	assert.ErrorIs(t, err, domain.ErrInvalidArgument)
}

func TestSubmit_Enqueues(t *testing.T) {
	f := newJobsFixture()
	f.reviews.On("ListByApp", mock.Anything, "u1", "com.x", 1).Return([]domain.ReviewRecord{{ID: "r"}}, nil)
	f.queue.On("EnqueueAnalysis", mock.Anything, mock.MatchedBy(func(j domain.AnalysisJob) bool {
		return j.AppID == "com.x" && j.UserID == "u1" && j.ID != "" && !j.RequestedAt.IsZero()
	})).Return("offset-1", nil)

	job, err := f.service(true).Submit(context.Background(), "u1", "com.x")
	require.NoError(t, err)
	assert.Equal(t, "com.x", job.AppID)
	f.queue.AssertExpectations(t)
}

func TestSubmit_QueueError(t *testing.T) {
	f := newJobsFixture()
	f.reviews.On("ListByApp", mock.Anything, "u1", "com.x", 1).Return([]domain.ReviewRecord{{ID: "r"}}, nil)
	f.queue.On("EnqueueAnalysis", mock.Anything, mock.Anything).Return("", errors.New("broker down"))

	_, err := f.service(true).Submit(context.Background(), "u1", "com.x")
	assert.ErrorContains(t, err, "broker down")
}

func TestSubmit_InProcessWithoutQueue(t *testing.T) {
	f := newJobsFixture()
	f.reviews.On("ListByApp", mock.Anything, "u1", "com.x", 1).Return([]domain.ReviewRecord{{ID: "r"}}, nil)
	f.reviews.On("ListByApp", mock.Anything, "u1", "com.x", mock.MatchedBy(func(n int) bool { return n > 1 })).Return([]domain.ReviewRecord{{ID: "r", Text: "long enough text"}}, nil)
	f.apps.On("Get", mock.Anything, "u1", "com.x").Return(domain.AppProfile{ID: "com.x", Title: "X"}, nil)
	f.analyses.On("Upsert", mock.Anything, mock.Anything).Return(nil)
	done := make(chan domain.AnalysisEvent, 1)
	f.events.On("PublishAnalysisEvent", mock.Anything, mock.Anything).Run(func(args mock.Arguments) {
		done <- args.Get(1).(domain.AnalysisEvent)
	}).Return(nil)

	ctx, cancel := context.WithCancel(context.Background())
	_, err := f.service(false).Submit(ctx, "u1", "com.x")
	cancel()
	require.NoError(t, err)

	select {
	case ev := <-done:
		assert.Equal(t, domain.EventAnalysisComplete, ev.Type)
	case <-time.After(2 * time.Second):
		t.Fatal("in-process job did not finish")
	}
}

func TestProcess_PersistsAndPublishes(t *testing.T) {
	f := newJobsFixture()
	f.apps.On("Get", mock.Anything, "u1", "com.x").Return(domain.AppProfile{}, domain.ErrNotFound)
	f.reviews.On("ListByApp", mock.Anything, "u1", "com.x", mock.Anything).Return([]domain.ReviewRecord{{ID: "r"}}, nil)
	f.analyses.On("Upsert", mock.Anything, mock.Anything).Return(errors.New("conn reset")).Twice()
	f.analyses.On("Upsert", mock.Anything, mock.MatchedBy(func(a domain.StoredAnalysis) bool {
		return a.Version == domain.AnalysisVersion && a.AppID == "com.x" && !a.LastAnalyzed.IsZero()
	})).Return(nil).Once()
	f.events.On("PublishAnalysisEvent", mock.Anything, mock.MatchedBy(func(ev domain.AnalysisEvent) bool {
		return ev.Type == domain.EventAnalysisComplete && ev.Analysis != nil && ev.Analysis.Bugs[0].Name == "Launch crash"
	})).Return(nil)

	err := f.service(true).Process(context.Background(), domain.AnalysisJob{ID: "j1", UserID: "u1", AppID: "com.x"})
	require.NoError(t, err)
	f.analyses.AssertNumberOfCalls(t, "Upsert", 3)
	f.events.AssertExpectations(t)
}

func TestProcess_AnalyzerFailurePublishesError(t *testing.T) {
	f := newJobsFixture()
	f.analyzer.err = domain.ErrAllModelsFailed
	f.apps.On("Get", mock.Anything, "u1", "com.x").Return(domain.AppProfile{ID: "com.x"}, nil)
	f.reviews.On("ListByApp", mock.Anything, "u1", "com.x", mock.Anything).Return([]domain.ReviewRecord{}, nil)
	f.events.On("PublishAnalysisEvent", mock.Anything, mock.MatchedBy(func(ev domain.AnalysisEvent) bool {
		return ev.Type == domain.EventAnalysisError && ev.Error != "" && ev.Analysis == nil
	})).Return(nil)

	err := f.service(true).Process(context.Background(), domain.AnalysisJob{ID: "j1", UserID: "u1", AppID: "com.x"})
	assert.ErrorIs(t, err, domain.ErrAllModelsFailed)
	f.analyses.AssertNotCalled(t, "Upsert", mock.Anything, mock.Anything)
	f.events.AssertExpectations(t)
}

func TestProcess_SaveGivesUp(t *testing.T) {
	f := newJobsFixture()
	f.apps.On("Get", mock.Anything, mock.Anything, mock.Anything).Return(domain.AppProfile{}, nil)
	f.reviews.On("ListByApp", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return([]domain.ReviewRecord{}, nil)
	f.analyses.On("Upsert", mock.Anything, mock.Anything).Return(errors.New("disk full"))
	f.events.On("PublishAnalysisEvent", mock.Anything, mock.Anything).Return(errors.New("redis down"))

	err := f.service(true).Process(context.Background(), domain.AnalysisJob{ID: "j", UserID: "u", AppID: "a"})
	assert.ErrorContains(t, err, "disk full")
	f.analyses.AssertNumberOfCalls(t, "Upsert", 4)
}
