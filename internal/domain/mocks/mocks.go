// Package mocks holds testify mocks for the domain ports.
package mocks

import (
	"github.com/stretchr/testify/mock"

	"github.com/Eagleeye1811/insightify-sub000/internal/domain"
)

// MockAppRepository mocks domain.AppRepository.
type MockAppRepository struct{ mock.Mock }

func (m *MockAppRepository) ListByUser(ctx domain.Context, userID string, limit int) ([]domain.AppProfile, error) {
	args := m.Called(ctx, userID, limit)
	apps, _ := args.Get(0).([]domain.AppProfile)
	return apps, args.Error(1)
}

func (m *MockAppRepository) Get(ctx domain.Context, userID, appID string) (domain.AppProfile, error) {
	args := m.Called(ctx, userID, appID)
	app, _ := args.Get(0).(domain.AppProfile)
	return app, args.Error(1)
}

func (m *MockAppRepository) Upsert(ctx domain.Context, app domain.AppProfile) error {
	return m.Called(ctx, app).Error(0)
}

// MockReviewRepository mocks domain.ReviewRepository.
type MockReviewRepository struct{ mock.Mock }

func (m *MockReviewRepository) ListByApp(ctx domain.Context, userID, appID string, limit int) ([]domain.ReviewRecord, error) {
	args := m.Called(ctx, userID, appID, limit)
	reviews, _ := args.Get(0).([]domain.ReviewRecord)
	return reviews, args.Error(1)
}

func (m *MockReviewRepository) ReplaceForApp(ctx domain.Context, userID, appID string, reviews []domain.ReviewRecord) error {
	return m.Called(ctx, userID, appID, reviews).Error(0)
}

// MockAnalysisRepository mocks domain.AnalysisRepository.
type MockAnalysisRepository struct{ mock.Mock }

func (m *MockAnalysisRepository) Get(ctx domain.Context, userID, appID string) (domain.StoredAnalysis, error) {
	args := m.Called(ctx, userID, appID)
	a, _ := args.Get(0).(domain.StoredAnalysis)
	return a, args.Error(1)
}

func (m *MockAnalysisRepository) Upsert(ctx domain.Context, a domain.StoredAnalysis) error {
	return m.Called(ctx, a).Error(0)
}

// MockChatLogRepository mocks domain.ChatLogRepository.
type MockChatLogRepository struct{ mock.Mock }

func (m *MockChatLogRepository) Append(ctx domain.Context, l domain.ChatLog) (string, error) {
	args := m.Called(ctx, l)
	return args.String(0), args.Error(1)
}

func (m *MockChatLogRepository) ListByUser(ctx domain.Context, userID string, limit int) ([]domain.ChatLog, error) {
	args := m.Called(ctx, userID, limit)
	logs, _ := args.Get(0).([]domain.ChatLog)
	return logs, args.Error(1)
}

func (m *MockChatLogRepository) DeleteByUser(ctx domain.Context, userID string) (int64, error) {
	args := m.Called(ctx, userID)
	n, _ := args.Get(0).(int64)
	return n, args.Error(1)
}

func (m *MockChatLogRepository) Stats(ctx domain.Context, userID string) (domain.ChatStats, error) {
	args := m.Called(ctx, userID)
	st, _ := args.Get(0).(domain.ChatStats)
	return st, args.Error(1)
}

// MockProvider mocks domain.Provider.
type MockProvider struct{ mock.Mock }

func (m *MockProvider) Generate(ctx domain.Context, model, prompt string) (string, error) {
	args := m.Called(ctx, model, prompt)
	return args.String(0), args.Error(1)
}

// MockAnalysisQueue mocks domain.AnalysisQueue.
type MockAnalysisQueue struct{ mock.Mock }

func (m *MockAnalysisQueue) EnqueueAnalysis(ctx domain.Context, job domain.AnalysisJob) (string, error) {
	args := m.Called(ctx, job)
	return args.String(0), args.Error(1)
}

// MockEventPublisher mocks domain.EventPublisher.
type MockEventPublisher struct{ mock.Mock }

func (m *MockEventPublisher) PublishAnalysisEvent(ctx domain.Context, ev domain.AnalysisEvent) error {
	return m.Called(ctx, ev).Error(0)
}

var (
	_ domain.AppRepository      = (*MockAppRepository)(nil)
	_ domain.ReviewRepository   = (*MockReviewRepository)(nil)
	_ domain.AnalysisRepository = (*MockAnalysisRepository)(nil)
	_ domain.ChatLogRepository  = (*MockChatLogRepository)(nil)
	_ domain.Provider           = (*MockProvider)(nil)
	_ domain.AnalysisQueue      = (*MockAnalysisQueue)(nil)
	_ domain.EventPublisher     = (*MockEventPublisher)(nil)
)
