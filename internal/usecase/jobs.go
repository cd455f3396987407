package usecase

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"

	obs "github.com/Eagleeye1811/insightify-sub000/internal/adapter/observability"
	"github.com/Eagleeye1811/insightify-sub000/internal/domain"
	"github.com/Eagleeye1811/insightify-sub000/internal/observability"
)

const (
	analysisJobType = "analysis"
	// maxAnalysisReviews bounds the reviews read for one job before sampling.
	maxAnalysisReviews = 1000
)

// AnalysisJobService accepts analysis requests and processes them, either
// through an AnalysisQueue or in process when no queue is configured.
type AnalysisJobService struct {
	Apps     domain.AppRepository
	Reviews  domain.ReviewRepository
	Analyses domain.AnalysisRepository
	Queue    domain.AnalysisQueue
	Events   domain.EventPublisher
	Analyzer Analyzer
	// NewBackOff builds the retry policy for saving results.
	NewBackOff func() backoff.BackOff
	now        func() time.Time
}

// NewAnalysisJobService wires an AnalysisJobService. queue and events may be nil.
func NewAnalysisJobService(apps domain.AppRepository, reviews domain.ReviewRepository, analyses domain.AnalysisRepository,
	queue domain.AnalysisQueue, events domain.EventPublisher, analyzer Analyzer, newBackOff func() backoff.BackOff,
) *AnalysisJobService {
	if newBackOff == nil {
		newBackOff = func() backoff.BackOff { return backoff.WithMaxRetries(backoff.NewExponentialBackOff(), 3) }
	}
	return &AnalysisJobService{
		Apps: apps, Reviews: reviews, Analyses: analyses, Queue: queue, Events: events,
		Analyzer: analyzer, NewBackOff: newBackOff, now: time.Now,
	}
}

// Submit validates that the app has reviews and hands a job to the queue.
// Without a queue the job runs on a goroutine detached from ctx.
func (s *AnalysisJobService) Submit(ctx domain.Context, userID, appID string) (domain.AnalysisJob, error) {
	if appID == "" {
		return domain.AnalysisJob{}, fmt.Errorf("op=jobs.submit: %w: app id required", domain.ErrInvalidArgument)
	}
	reviews, err := s.Reviews.ListByApp(ctx, userID, appID, 1)
	if err != nil {
		return domain.AnalysisJob{}, fmt.Errorf("op=jobs.submit: %w", err)
	}
	if len(reviews) == 0 {
		return domain.AnalysisJob{}, fmt.Errorf("op=jobs.submit: %w: no reviews for app %s", domain.ErrNotFound, appID)
	}

	job := domain.AnalysisJob{
		ID:          uuid.NewString(),
		UserID:      userID,
		AppID:       appID,
		RequestID:   observability.RequestIDFromContext(ctx),
		RequestedAt: s.now().UTC(),
	}
	lg := observability.LoggerFromContext(ctx)
	if s.Queue == nil {
		obs.EnqueueJob(analysisJobType)
		bg := detach(ctx)
		go func() { _ = s.Process(bg, job) }()
		lg.Info("analysis job started in process", slog.String("job_id", job.ID), slog.String("app_id", appID))
		return job, nil
	}
	if _, err := s.Queue.EnqueueAnalysis(ctx, job); err != nil {
		return domain.AnalysisJob{}, fmt.Errorf("op=jobs.submit: %w", err)
	}
	obs.EnqueueJob(analysisJobType)
	lg.Info("analysis job enqueued", slog.String("job_id", job.ID), slog.String("app_id", appID))
	return job, nil
}

// Process runs one job to completion and publishes its outcome. The returned
// error is the analysis or persistence failure, already reported as an event.
func (s *AnalysisJobService) Process(ctx domain.Context, job domain.AnalysisJob) error {
	lg := observability.LoggerFromContext(ctx).With(
		slog.String("job_id", job.ID),
		slog.String("app_id", job.AppID),
		slog.String("user_id", job.UserID))
	obs.StartProcessingJob(analysisJobType)
	start := s.now()

	result, err := s.run(ctx, lg, job)
	if err != nil {
		obs.FailJob(analysisJobType)
		lg.Error("analysis job failed", slog.Any("error", err))
		s.publish(ctx, lg, domain.AnalysisEvent{Type: domain.EventAnalysisError, AppID: job.AppID, UserID: job.UserID, Error: err.Error(), At: s.now().UTC()})
		return err
	}
	obs.CompleteJob(analysisJobType)
	lg.Info("analysis job completed", slog.Duration("took", s.now().Sub(start)))
	s.publish(ctx, lg, domain.AnalysisEvent{Type: domain.EventAnalysisComplete, AppID: job.AppID, UserID: job.UserID, Analysis: &result, At: s.now().UTC()})
	return nil
}

func (s *AnalysisJobService) run(ctx domain.Context, lg *slog.Logger, job domain.AnalysisJob) (domain.AnalysisResult, error) {
	meta, err := s.Apps.Get(ctx, job.UserID, job.AppID)
	switch {
	case errors.Is(err, domain.ErrNotFound):
		meta = domain.AppProfile{ID: job.AppID, UserID: job.UserID, Title: job.AppID}
	case err != nil:
		return domain.AnalysisResult{}, fmt.Errorf("op=jobs.process: load app: %w", err)
	}
	reviews, err := s.Reviews.ListByApp(ctx, job.UserID, job.AppID, maxAnalysisReviews)
	if err != nil {
		return domain.AnalysisResult{}, fmt.Errorf("op=jobs.process: load reviews: %w", err)
	}

	result, err := s.Analyzer.Analyze(ctx, reviews, meta)
	if err != nil {
		return domain.AnalysisResult{}, fmt.Errorf("op=jobs.process: %w", err)
	}

	stored := domain.StoredAnalysis{
		AppID:        job.AppID,
		UserID:       job.UserID,
		Result:       result,
		LastAnalyzed: s.now().UTC(),
		Version:      domain.AnalysisVersion,
	}
	attempt := 0
	save := func() error {
		attempt++
		err := s.Analyses.Upsert(ctx, stored)
		if err != nil {
			lg.Warn("saving analysis failed", slog.Int("attempt", attempt), slog.Any("error", err))
		}
		return err
	}
	if err := backoff.Retry(save, backoff.WithContext(s.NewBackOff(), ctx)); err != nil {
		return domain.AnalysisResult{}, fmt.Errorf("op=jobs.process: save analysis: %w", err)
	}
	return result, nil
}

func (s *AnalysisJobService) publish(ctx domain.Context, lg *slog.Logger, ev domain.AnalysisEvent) {
	if s.Events == nil {
		return
	}
	if err := s.Events.PublishAnalysisEvent(ctx, ev); err != nil {
		lg.Warn("publishing analysis event failed", slog.String("type", ev.Type), slog.Any("error", err))
	}
}
