// Package rag turns a user's stored app data into prompt context and, when
// the provider is unavailable, into deterministic template answers.
package rag

import (
	"regexp"
	"strings"

	"github.com/Eagleeye1811/insightify-sub000/internal/domain"
)

type intentRule struct {
	intent  domain.Intent
	pattern *regexp.Regexp
}

// intentRules are checked in order; the first match wins.
var intentRules = []intentRule{
	{domain.IntentBugReport, regexp.MustCompile(`(?i)bug|issue|problem|error|crash|fix`)},
	{domain.IntentFeatureRequest, regexp.MustCompile(`(?i)feature|request|want|need|suggest|improvement`)},
	{domain.IntentSentiment, regexp.MustCompile(`(?i)sentiment|feeling|opinion|satisfaction|happy|sad`)},
	{domain.IntentStats, regexp.MustCompile(`(?i)how many|count|number|statistic|total|average`)},
	{domain.IntentComparison, regexp.MustCompile(`(?i)compare|versus|vs|better|worse`)},
	{domain.IntentRecommendation, regexp.MustCompile(`(?i)recommend|suggest|advice|should|what.*do`)},
	{domain.IntentReviewAnalysis, regexp.MustCompile(`(?i)review|feedback|comment|rating|user.*said`)},
}

// Classification is the outcome of classifying one chat message.
type Classification struct {
	Intent       domain.Intent
	MentionedApp *domain.AppProfile
}

// Classify picks the message intent and the first app whose title appears in it.
func Classify(message string, apps []domain.AppProfile) Classification {
	lower := strings.ToLower(message)
	var mentioned *domain.AppProfile
	for i := range apps {
		title := strings.ToLower(strings.TrimSpace(apps[i].Title))
		if title != "" && strings.Contains(lower, title) {
			mentioned = &apps[i]
			break
		}
	}

	intent := domain.IntentGeneral
	for _, r := range intentRules {
		if r.pattern.MatchString(message) {
			intent = r.intent
			break
		}
	}

	return Classification{Intent: intent, MentionedApp: mentioned}
}
