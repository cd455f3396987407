package rag

import (
	"fmt"
	"math"
	"regexp"
	"strings"

	"github.com/Eagleeye1811/insightify-sub000/internal/domain"
	"github.com/Eagleeye1811/insightify-sub000/pkg/textx"
)

var onboarding = map[domain.Intent]string{
	domain.IntentReviewAnalysis: "I'd love to help you analyze reviews! However, I don't see any app data in your account yet. To get started:\n\n1. Add your app from the Dashboard\n2. We'll automatically fetch and analyze reviews\n3. Then I can answer specific questions about your user feedback\n\nIn the meantime, I can discuss general best practices for review analysis. What would you like to know?",

	domain.IntentBugReport: "I can help you identify and prioritize bugs from user reviews. Once you've added your app, I'll automatically:\n\n• Detect recurring bug mentions\n• Categorize by severity\n• Track affected user count\n• Suggest prioritization\n\nWould you like to add your app now, or discuss general bug tracking strategies?",

	domain.IntentFeatureRequest: "Understanding feature requests from reviews is crucial for product development. When you add your app, I'll help you:\n\n• Identify most-requested features\n• Estimate impact and demand\n• Prioritize based on user needs\n• Track request trends over time\n\nWhat specific aspect of feature analysis interests you?",

	domain.IntentSentiment: "Sentiment analysis provides valuable insights into user satisfaction. Once your app data is available, I can:\n\n• Calculate overall sentiment trends\n• Identify sentiment shifts over time\n• Highlight common praise and complaints\n• Compare sentiment across versions\n\nShall we discuss sentiment analysis strategies?",

	domain.IntentStats: "I can provide detailed statistics once your app data is loaded. I'll track:\n\n• Rating distributions\n• Review volume trends\n• Response times\n• User engagement metrics\n\nAdd your app to get started with analytics!",

	domain.IntentRecommendation: "I'm here to provide actionable recommendations! While I don't have your specific app data yet, I can discuss:\n\n• General app improvement strategies\n• Review management best practices\n• User engagement techniques\n• A/B testing approaches\n\nWhat area would you like recommendations on?",

	domain.IntentGeneral: "Hello! I'm your Insightify AI Assistant. I can help you:\n\n• Analyze app reviews and user feedback\n• Identify bugs and feature requests\n• Track sentiment trends\n• Provide actionable insights\n• Answer questions about your app's performance\n\nTo get the most from our conversation, add your app from the Dashboard. What would you like to know?",
}

// Fallback is the onboarding answer for a user without apps. Intents without
// a dedicated template get the general one.
func Fallback(_ string, intent domain.Intent) string {
	if s, ok := onboarding[intent]; ok {
		return s
	}
	return onboarding[domain.IntentGeneral]
}

// NoReviewsFallback answers a user whose apps have no reviews or analysis yet.
func NoReviewsFallback(apps []domain.AppProfile) string {
	var b strings.Builder
	fmt.Fprintf(&b, "I can see you have %d app(s) in your account:\n\n", len(apps))
	for _, app := range apps {
		fmt.Fprintf(&b, "📱 **%s** (%s)\n", app.Title, app.ID)
	}
	b.WriteString("\nHowever, I don't see any review data for these apps yet. This could mean:\n")
	b.WriteString("1. Reviews haven't been scraped yet\n")
	b.WriteString("2. The scraping is still in progress\n")
	b.WriteString("3. Reviews are stored in a different location\n\n")
	b.WriteString("To get insights about your apps, please:\n")
	b.WriteString("1. Go to the Dashboard\n")
	b.WriteString("2. Click \"Analyze\" on your app\n")
	b.WriteString("3. Wait for the scraping to complete\n\n")
	b.WriteString("In the meantime, I can discuss general app analytics strategies. What would you like to know?")
	return b.String()
}

// RateLimitFooter ends every data-aware fallback.
const RateLimitFooter = "\n---\n⏰ *AI analysis temporarily unavailable due to rate limits. Try again in a minute for deeper insights!*"

var (
	askBugs         = regexp.MustCompile(`(?i)bug|issue|problem|error|crash|broken|fix|wrong`)
	askImprovements = regexp.MustCompile(`(?i)improve|better|enhance|grow|increase|optimization`)
	askFeatures     = regexp.MustCompile(`(?i)feature|request|want|need|add|missing`)
	askPositives    = regexp.MustCompile(`(?i)good|great|love|like|best|working|positive|success`)
	askNegatives    = regexp.MustCompile(`(?i)bad|hate|dislike|worst|terrible|problem|complaint`)
	askGrowth       = regexp.MustCompile(`(?i)grow|expand|increase|future|potential|scale`)
	askStats        = regexp.MustCompile(`(?i)how many|statistics|count|number|percentage`)
)

// reviewStats is the rating distribution of a review set.
type reviewStats struct {
	total        int
	avg          float64
	distribution [6]int // index 1..5
}

func computeStats(reviews []domain.ReviewRecord) reviewStats {
	s := reviewStats{total: len(reviews)}
	if s.total == 0 {
		return s
	}
	sum := 0
	for _, r := range reviews {
		if r.Score >= 1 && r.Score <= 5 {
			s.distribution[r.Score]++
			sum += r.Score
		}
	}
	s.avg = float64(sum) / float64(s.total)
	return s
}

func (s reviewStats) positive() int { return s.distribution[4] + s.distribution[5] }
func (s reviewStats) negative() int { return s.distribution[1] + s.distribution[2] }

// percent is n/total in percent, 0 when total is 0.
func percent(n, total int) float64 {
	if total == 0 {
		return 0
	}
	return float64(n) / float64(total) * 100
}

// DataAwareFallback answers from stored data alone, picking a section by
// what the question asks about. It always returns a non-empty answer.
func DataAwareFallback(message string, _ domain.Intent, apps []domain.AppProfile, reviews []domain.ReviewRecord, analysis *domain.AnalysisResult) string {
	if analysis == nil {
		analysis = &domain.AnalysisResult{}
	}
	st := computeStats(reviews)
	var b strings.Builder

	switch {
	case askBugs.MatchString(message) || askNegatives.MatchString(message):
		writeBugSection(&b, reviews, analysis)
	case askImprovements.MatchString(message) || askGrowth.MatchString(message):
		writeGrowthSection(&b, apps, st, analysis)
	case askFeatures.MatchString(message):
		writeFeatureSection(&b, reviews, analysis)
	case askPositives.MatchString(message):
		writePositiveSection(&b, reviews, st, analysis)
	case askStats.MatchString(message):
		writeStatsSection(&b, apps, reviews, st, analysis)
	default:
		writeOverviewSection(&b, apps, reviews, st, analysis)
	}

	b.WriteString(RateLimitFooter)
	return b.String()
}

func writeBugSection(b *strings.Builder, reviews []domain.ReviewRecord, analysis *domain.AnalysisResult) {
	fmt.Fprintf(b, "🔍 **Bug & Issue Analysis** (based on %d reviews):\n\n", len(reviews))

	var low []domain.ReviewRecord
	for _, r := range reviews {
		if r.Score <= 2 {
			low = append(low, r)
		}
	}
	fmt.Fprintf(b, "📊 **Low-Rated Reviews:** %d (%.1f%%)\n\n", len(low), percent(len(low), len(reviews)))

	if len(analysis.Bugs) > 0 {
		b.WriteString("🐛 **Identified Bugs:**\n")
		for i, bug := range firstN(analysis.Bugs, 5) {
			fmt.Fprintf(b, "%d. **%s** (%s)\n", i+1, bug.Name, bug.Severity)
			fmt.Fprintf(b, "   - %s\n", bug.Description)
			if bug.Frequency != 0 {
				fmt.Fprintf(b, "   - Frequency: %s%%\n", formatNumber(bug.Frequency))
			}
		}
	} else {
		b.WriteString("🐛 **Common Issues from 1-2 Star Reviews:**\n")
		for i, r := range firstN(low, 3) {
			fmt.Fprintf(b, "%d. \"%s...\"\n", i+1, textx.Truncate(r.Text, 100))
		}
	}

	focus := "the most frequent issues"
	if len(analysis.Bugs) > 0 && analysis.Bugs[0].Name != "" {
		focus = analysis.Bugs[0].Name
	}
	fmt.Fprintf(b, "\n💡 **Priority:** Focus on %s first!\n", focus)
}

func writeGrowthSection(b *strings.Builder, apps []domain.AppProfile, st reviewStats, analysis *domain.AnalysisResult) {
	b.WriteString("📈 **Growth & Improvement Analysis**:\n\n")
	b.WriteString("📊 **Current Performance:**\n")
	for _, app := range apps {
		fmt.Fprintf(b, "• %s: %s★ (%d total reviews)\n", app.Title, formatNumber(app.Rating), app.ReviewCount)
	}

	satisfaction := percent(st.positive(), st.total)
	fmt.Fprintf(b, "\n✅ **User Satisfaction:** %.1f%% (%d positive out of %d)\n\n", satisfaction, st.positive(), st.total)
	b.WriteString("🎯 **To Improve & Grow:**\n\n")

	if len(analysis.Features) > 0 {
		b.WriteString("**1. Implement Top Feature Requests:**\n")
		for _, f := range firstN(analysis.Features, 3) {
			fmt.Fprintf(b, "   • %s (%s%% want this)\n", f.Name, formatNumber(f.Frequency))
		}
		b.WriteString("\n")
	}

	if len(analysis.Bugs) > 0 {
		b.WriteString("**2. Fix Critical Bugs:**\n")
		var high []domain.Bug
		for _, bug := range analysis.Bugs {
			if bug.Severity == "High" {
				high = append(high, bug)
			}
		}
		for _, bug := range firstN(high, 2) {
			fmt.Fprintf(b, "   • %s\n", bug.Name)
		}
		b.WriteString("\n")
	}

	fmt.Fprintf(b, "**3. Reduce %d Low Ratings:**\n", st.negative())
	b.WriteString("   • Address complaints in 1-2 star reviews\n")
	b.WriteString("   • Improve user onboarding\n\n")

	fmt.Fprintf(b, "💡 **Growth Potential:** %s\n", growthPotential(satisfaction))
}

func growthPotential(satisfaction float64) string {
	switch {
	case satisfaction >= 70:
		return "High"
	case satisfaction >= 50:
		return "Moderate"
	default:
		return "Focus on quality first"
	}
}

func writeFeatureSection(b *strings.Builder, reviews []domain.ReviewRecord, analysis *domain.AnalysisResult) {
	b.WriteString("✨ **Feature Request Analysis**:\n\n")
	if len(analysis.Features) > 0 {
		fmt.Fprintf(b, "📊 **Top %d Feature Requests:**\n\n", len(analysis.Features))
		for i, f := range analysis.Features {
			fmt.Fprintf(b, "%d. **%s**\n", i+1, f.Name)
			fmt.Fprintf(b, "   - Type: %s\n", f.Type)
			fmt.Fprintf(b, "   - Demand: %s%% of users\n", formatNumber(f.Frequency))
			fmt.Fprintf(b, "   - Impact: %s\n\n", f.Impact)
		}
		fmt.Fprintf(b, "💡 **Recommendation:** Start with \"%s\" (highest demand)\n", analysis.Features[0].Name)
		return
	}

	b.WriteString("No formal feature analysis available yet.\n\n")
	b.WriteString("**Based on reviews, users are asking for:**\n")
	var high []domain.ReviewRecord
	for _, r := range reviews {
		if r.Score >= 4 {
			high = append(high, r)
		}
	}
	for _, r := range firstN(high, 3) {
		if strings.Contains(r.Text, "wish") || strings.Contains(r.Text, "would be") {
			fmt.Fprintf(b, "• \"%s...\"\n", textx.Truncate(r.Text, 100))
		}
	}
}

func writePositiveSection(b *strings.Builder, reviews []domain.ReviewRecord, st reviewStats, analysis *domain.AnalysisResult) {
	b.WriteString("🌟 **What's Working Well:**\n\n")
	fmt.Fprintf(b, "✅ **%d positive reviews** (%.1f%%)\n\n", st.positive(), percent(st.positive(), st.total))

	b.WriteString("💬 **Users Love:**\n")
	var five []domain.ReviewRecord
	for _, r := range reviews {
		if r.Score == 5 {
			five = append(five, r)
		}
	}
	for i, r := range firstN(five, 5) {
		fmt.Fprintf(b, "%d. \"%s...\"\n\n", i+1, textx.Truncate(r.Text, 120))
	}

	if analysis.Sentiment != nil && len(analysis.Sentiment.Keywords) > 0 {
		fmt.Fprintf(b, "🏷️ **Positive Keywords:** %s\n\n", strings.Join(analysis.Sentiment.Keywords, ", "))
	}
	b.WriteString("💡 **Leverage these strengths in marketing!**\n")
}

func writeStatsSection(b *strings.Builder, apps []domain.AppProfile, reviews []domain.ReviewRecord, st reviewStats, analysis *domain.AnalysisResult) {
	b.WriteString("📊 **Detailed Statistics:**\n\n")
	b.WriteString("**Apps:**\n")
	for _, app := range apps {
		fmt.Fprintf(b, "• %s\n", app.Title)
		fmt.Fprintf(b, "  - Rating: %s★\n", formatNumber(app.Rating))
		fmt.Fprintf(b, "  - Reviews: %d\n", app.ReviewCount)
	}

	fmt.Fprintf(b, "\n**Rating Distribution** (from %d analyzed):\n", len(reviews))
	for rating := 5; rating >= 1; rating-- {
		count := st.distribution[rating]
		pct := percent(count, st.total)
		bar := strings.Repeat("█", int(math.Round(pct/5)))
		fmt.Fprintf(b, "%d★: %-3d (%.1f%%) %s\n", rating, count, pct, bar)
	}

	fmt.Fprintf(b, "\n**Average Rating:** %.2f★\n", st.avg)
	fmt.Fprintf(b, "**Total Reviews Analyzed:** %d\n", len(reviews))

	if hasAnalysis(analysis) {
		b.WriteString("\n**Analysis Results:**\n")
		fmt.Fprintf(b, "• Bugs Found: %d\n", len(analysis.Bugs))
		fmt.Fprintf(b, "• Feature Requests: %d\n", len(analysis.Features))
		fmt.Fprintf(b, "• Uninstall Reasons: %d\n", len(analysis.UninstallReasons))
	}
}

func writeOverviewSection(b *strings.Builder, apps []domain.AppProfile, reviews []domain.ReviewRecord, st reviewStats, analysis *domain.AnalysisResult) {
	b.WriteString("📱 **Your Apps Overview:**\n\n")
	for _, app := range apps {
		fmt.Fprintf(b, "**%s**\n", app.Title)
		fmt.Fprintf(b, "• Rating: %s★ (%d reviews)\n", formatNumber(app.Rating), app.ReviewCount)
		fmt.Fprintf(b, "• Analyzed: %d reviews\n\n", len(reviews))
	}

	b.WriteString("⭐ **Rating Breakdown:**\n")
	for rating := 5; rating >= 1; rating-- {
		count := st.distribution[rating]
		fmt.Fprintf(b, "%d★: %d (%.1f%%)\n", rating, count, percent(count, st.total))
	}

	if len(analysis.Bugs) > 0 {
		names := make([]string, 0, 2)
		for _, bug := range firstN(analysis.Bugs, 2) {
			names = append(names, bug.Name)
		}
		fmt.Fprintf(b, "\n🐛 **Top Issues:** %s\n", strings.Join(names, ", "))
	}
	if len(analysis.Features) > 0 {
		names := make([]string, 0, 2)
		for _, f := range firstN(analysis.Features, 2) {
			names = append(names, f.Name)
		}
		fmt.Fprintf(b, "✨ **Top Requests:** %s\n", strings.Join(names, ", "))
	}

	b.WriteString("\n💬 **Ask me specific questions like:**\n")
	b.WriteString("• \"What bugs need fixing?\"\n")
	b.WriteString("• \"How can I improve my app?\"\n")
	b.WriteString("• \"What features do users want?\"\n")
	b.WriteString("• \"What are users saying that's positive?\"\n")
}

// hasAnalysis distinguishes a real analysis from the empty placeholder.
func hasAnalysis(a *domain.AnalysisResult) bool {
	return a != nil && (len(a.Bugs) > 0 || len(a.Features) > 0 || len(a.UninstallReasons) > 0 || a.Sentiment != nil || len(a.Recommendations) > 0)
}

func firstN[T any](s []T, n int) []T {
	if len(s) > n {
		return s[:n]
	}
	return s
}
