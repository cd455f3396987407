package rag

import (
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Eagleeye1811/insightify-sub000/internal/domain"
)

func TestSampleReviews_RecentThenPerMonth(t *testing.T) {
	base := time.Date(2025, 6, 30, 0, 0, 0, 0, time.UTC)
	var reviews []domain.ReviewRecord
	// 10 in June, 10 in May
	for i := 0; i < 20; i++ {
		reviews = append(reviews, domain.ReviewRecord{
			ID:    fmt.Sprint(i),
			Score: 3,
			Text:  "long enough review text",
			Date:  base.AddDate(0, 0, -i*2),
		})
	}
	reviews = append(reviews, domain.ReviewRecord{ID: "short", Text: "too short", Date: base.AddDate(0, 0, 1)})

	got := SampleReviews(reviews)
	require.Len(t, got, 13)
	for i := 0; i < 7; i++ {
		assert.Equal(t, fmt.Sprint(i), got[i].ID)
	}
	months := map[string]int{}
	for _, r := range got[7:] {
		months[r.Date.Format("2006-01")]++
	}
	for m, n := range months {
		assert.LessOrEqual(t, n, 3, m)
	}
}

func TestSampleReviews_Cap(t *testing.T) {
	var reviews []domain.ReviewRecord
	start := time.Date(2020, 1, 15, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 200; i++ {
		reviews = append(reviews, domain.ReviewRecord{Text: "plenty of text here", Date: start.AddDate(0, 0, i*5)})
	}
	assert.Len(t, SampleReviews(reviews), 50)
}

func TestFormatSampled(t *testing.T) {
	out := FormatSampled([]domain.ReviewRecord{
		{Score: 4, Text: strings.Repeat("b", 400), Date: time.Date(2025, 1, 2, 0, 0, 0, 0, time.UTC)},
	})
	assert.Equal(t, "[2025-01-02 - 4 stars] "+strings.Repeat("b", 300), out)
}

func TestAnalysisPrompt(t *testing.T) {
	p := AnalysisPrompt(domain.AppProfile{Title: "X", Genre: "Tools"}, nil)
	assert.Contains(t, p, `for the app "X" (Category: Tools)`)
	assert.Contains(t, p, `"frequency": 0-100 (estimated %)`)
	assert.Contains(t, p, "Do not wrap in markdown code blocks.")
}

func TestChatPrompt(t *testing.T) {
	p := ChatPrompt("# Available Data\n", domain.IntentStats, "how many?")
	assert.Contains(t, p, "Context available:\n# Available Data\n")
	assert.Contains(t, p, "User Intent: stats\n")
	assert.True(t, strings.HasSuffix(p, "\n\nUser Question: how many?\n\nProvide a helpful, data-driven response:"))
}
