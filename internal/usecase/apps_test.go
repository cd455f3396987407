package usecase_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/Eagleeye1811/insightify-sub000/internal/domain"
	"github.com/Eagleeye1811/insightify-sub000/internal/domain/mocks"
	"github.com/Eagleeye1811/insightify-sub000/internal/usecase"
)

func TestAppService_Results(t *testing.T) {
	apps, reviews, analyses := &mocks.MockAppRepository{}, &mocks.MockReviewRepository{}, &mocks.MockAnalysisRepository{}
	apps.On("Get", mock.Anything, "u1", "com.x").Return(crashApp, nil)
	reviews.On("ListByApp", mock.Anything, "u1", "com.x", mock.Anything).Return(nil, nil)
	analyses.On("Get", mock.Anything, "u1", "com.x").Return(domain.StoredAnalysis{}, domain.ErrNotFound)

	out, err := usecase.NewAppService(apps, reviews, analyses).Results(context.Background(), "u1", "com.x")
	require.NoError(t, err)
	assert.Equal(t, "X", out.App.Title)
	assert.NotNil(t, out.Reviews)
	assert.Nil(t, out.Analysis)
}

func TestAppService_ResultsErrors(t *testing.T) {
	apps, reviews, analyses := &mocks.MockAppRepository{}, &mocks.MockReviewRepository{}, &mocks.MockAnalysisRepository{}
	apps.On("Get", mock.Anything, "u1", "missing").Return(domain.AppProfile{}, domain.ErrNotFound)
	apps.On("Get", mock.Anything, "u1", "com.x").Return(crashApp, nil)
	reviews.On("ListByApp", mock.Anything, "u1", "com.x", mock.Anything).Return(crashReviews(), nil)
	analyses.On("Get", mock.Anything, "u1", "com.x").Return(domain.StoredAnalysis{}, errors.New("timeout"))
	svc := usecase.NewAppService(apps, reviews, analyses)

	_, err := svc.Results(context.Background(), "u1", "missing")
	assert.ErrorIs(t, err, domain.ErrNotFound)
	_, err = svc.Results(context.Background(), "u1", "com.x")
	assert.ErrorContains(t, err, "timeout")
}

func TestAppService_List(t *testing.T) {
	apps := &mocks.MockAppRepository{}
	apps.On("ListByUser", mock.Anything, "u1", mock.Anything).Return(nil, nil)
	out, err := usecase.NewAppService(apps, nil, nil).List(context.Background(), "u1")
	require.NoError(t, err)
	assert.Empty(t, out)
	assert.NotNil(t, out)
}
