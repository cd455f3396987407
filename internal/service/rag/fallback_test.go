package rag

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/Eagleeye1811/insightify-sub000/internal/domain"
)

var allIntents = []domain.Intent{
	domain.IntentReviewAnalysis, domain.IntentBugReport, domain.IntentFeatureRequest,
	domain.IntentSentiment, domain.IntentStats, domain.IntentComparison,
	domain.IntentRecommendation, domain.IntentGeneral, domain.Intent("unknown"),
}

func TestFallback_Total(t *testing.T) {
	for _, in := range allIntents {
		assert.NotEmpty(t, Fallback("hi", in), in)
	}
	assert.Equal(t, Fallback("x", domain.IntentGeneral), Fallback("x", domain.IntentComparison))
	assert.Contains(t, Fallback("x", domain.IntentBugReport), "prioritize bugs")
}

func TestNoReviewsFallback(t *testing.T) {
	out := NoReviewsFallback(sampleApps())
	assert.True(t, strings.HasPrefix(out, "I can see you have 1 app(s) in your account:\n\n📱 **X** (com.x)\n"))
	assert.Contains(t, out, "Reviews haven't been scraped yet")
}

func TestDataAwareFallback_CrashScenario(t *testing.T) {
	reviews := []domain.ReviewRecord{
		{Score: 1, Text: "crashes on launch every time"},
		{Score: 2, Text: "keeps crashing"},
		{Score: 5, Text: "great"},
		{Score: 4, Text: "good"},
	}
	analysis := &domain.AnalysisResult{Bugs: []domain.Bug{{Name: "Launch crash", Description: "closes at start", Severity: "High", Frequency: 40}}}

	out := DataAwareFallback("Why does it crash on launch?", domain.IntentBugReport, sampleApps(), reviews, analysis)
	assert.Contains(t, out, "🔍 **Bug & Issue Analysis** (based on 4 reviews)")
	assert.Contains(t, out, "**Low-Rated Reviews:** 2 (50.0%)")
	assert.Contains(t, out, "1. **Launch crash** (High)\n   - closes at start\n   - Frequency: 40%\n")
	assert.Contains(t, out, "Focus on Launch crash first!")
	assert.True(t, strings.HasSuffix(out, RateLimitFooter))
}

func TestDataAwareFallback_BugsWithoutAnalysisQuotesReviews(t *testing.T) {
	reviews := []domain.ReviewRecord{{Score: 1, Text: "broken login"}}
	out := DataAwareFallback("what is broken", domain.IntentGeneral, nil, reviews, nil)
	assert.Contains(t, out, "Common Issues from 1-2 Star Reviews")
	assert.Contains(t, out, "1. \"broken login...\"")
	assert.Contains(t, out, "the most frequent issues")
}

func TestDataAwareFallback_Sections(t *testing.T) {
	reviews := []domain.ReviewRecord{
		{Score: 5, Text: "awesome app"}, {Score: 5, Text: "superb"}, {Score: 4, Text: "I wish it had sync"}, {Score: 1, Text: "meh"},
	}
	analysis := &domain.AnalysisResult{
		Features:  []domain.Feature{{Name: "Dark mode", Type: "UX", Frequency: 30, Impact: "High"}},
		Sentiment: &domain.Sentiment{Summary: "ok", Keywords: []string{"fast"}},
	}
	apps := sampleApps()

	growth := DataAwareFallback("how can I grow", domain.IntentGeneral, apps, reviews, analysis)
	assert.Contains(t, growth, "📈 **Growth & Improvement Analysis**")
	assert.Contains(t, growth, "• X: 3.9★ (1200 total reviews)")
	assert.Contains(t, growth, "**User Satisfaction:** 75.0% (3 positive out of 4)")
	assert.Contains(t, growth, "   • Dark mode (30% want this)")
	assert.Contains(t, growth, "**3. Reduce 1 Low Ratings:**")
	assert.Contains(t, growth, "**Growth Potential:** High")

	features := DataAwareFallback("which feature should I add", domain.IntentFeatureRequest, apps, reviews, analysis)
	assert.Contains(t, features, "📊 **Top 1 Feature Requests:**")
	assert.Contains(t, features, "Start with \"Dark mode\" (highest demand)")

	noAnalysis := DataAwareFallback("which feature", domain.IntentFeatureRequest, apps, reviews, nil)
	assert.Contains(t, noAnalysis, "No formal feature analysis available yet.")
	assert.Contains(t, noAnalysis, "• \"I wish it had sync...\"")

	positives := DataAwareFallback("what do they love", domain.IntentSentiment, apps, reviews, analysis)
	assert.Contains(t, positives, "✅ **3 positive reviews** (75.0%)")
	assert.Contains(t, positives, "1. \"awesome app...\"")
	assert.Contains(t, positives, "**Positive Keywords:** fast")

	stats := DataAwareFallback("how many of each score", domain.IntentStats, apps, reviews, analysis)
	assert.Contains(t, stats, "5★: 2   (50.0%) ██████████")
	assert.Contains(t, stats, "3★: 0   (0.0%) \n")
	assert.Contains(t, stats, "**Average Rating:** 3.75★")
	assert.Contains(t, stats, "• Feature Requests: 1")

	general := DataAwareFallback("hello", domain.IntentGeneral, apps, reviews, analysis)
	assert.Contains(t, general, "📱 **Your Apps Overview:**")
	assert.Contains(t, general, "• Analyzed: 4 reviews")
	assert.Contains(t, general, "✨ **Top Requests:** Dark mode")
}

func TestDataAwareFallback_NoReviewsIsSafe(t *testing.T) {
	for _, msg := range []string{"bug", "grow", "feature", "love", "how many", "hi"} {
		out := DataAwareFallback(msg, domain.IntentGeneral, nil, nil, nil)
		assert.NotEmpty(t, out)
		assert.NotContains(t, out, "NaN")
		assert.True(t, strings.HasSuffix(out, RateLimitFooter))
	}
}
