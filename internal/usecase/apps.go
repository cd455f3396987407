package usecase

import (
	"errors"
	"fmt"

	"github.com/Eagleeye1811/insightify-sub000/internal/domain"
)

const (
	maxListedApps  = 50
	maxResultItems = 500
)

// AppResults bundles everything stored for one app.
type AppResults struct {
	App      domain.AppProfile      `json:"metadata"`
	Reviews  []domain.ReviewRecord  `json:"reviews"`
	Analysis *domain.StoredAnalysis `json:"analysis"`
}

// AppService exposes read access to a user's apps.
type AppService struct {
	Apps     domain.AppRepository
	Reviews  domain.ReviewRepository
	Analyses domain.AnalysisRepository
}

// NewAppService builds an AppService.
func NewAppService(apps domain.AppRepository, reviews domain.ReviewRepository, analyses domain.AnalysisRepository) AppService {
	return AppService{Apps: apps, Reviews: reviews, Analyses: analyses}
}

// List returns userID's apps, most recently updated first.
func (s AppService) List(ctx domain.Context, userID string) ([]domain.AppProfile, error) {
	apps, err := s.Apps.ListByUser(ctx, userID, maxListedApps)
	if err != nil {
		return nil, fmt.Errorf("op=apps.list: %w", err)
	}
	if apps == nil {
		apps = []domain.AppProfile{}
	}
	return apps, nil
}

// Results returns an app's metadata, reviews and analysis. A missing
// analysis is reported as nil.
func (s AppService) Results(ctx domain.Context, userID, appID string) (AppResults, error) {
	app, err := s.Apps.Get(ctx, userID, appID)
	if err != nil {
		return AppResults{}, fmt.Errorf("op=apps.results: %w", err)
	}
	reviews, err := s.Reviews.ListByApp(ctx, userID, appID, maxResultItems)
	if err != nil {
		return AppResults{}, fmt.Errorf("op=apps.results: %w", err)
	}
	if reviews == nil {
		reviews = []domain.ReviewRecord{}
	}
	out := AppResults{App: app, Reviews: reviews}
	stored, err := s.Analyses.Get(ctx, userID, appID)
	switch {
	case err == nil:
		out.Analysis = &stored
	case errors.Is(err, domain.ErrNotFound):
	default:
		return AppResults{}, fmt.Errorf("op=apps.results: %w", err)
	}
	return out, nil
}
