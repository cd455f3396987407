package rag

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/Eagleeye1811/insightify-sub000/pkg/textx"

	"github.com/Eagleeye1811/insightify-sub000/internal/domain"
)

// DefaultReviewCap bounds the reviews carried in a CallerContext.
const DefaultReviewCap = 50

const (
	reviewsPerRating = 5
	reviewTextRunes  = 200
	dateLayout       = "2006-01-02"
)

// CallerContext is the per-request data a chat answer is built from.
type CallerContext struct {
	UserID       string
	Apps         []domain.AppProfile
	MentionedApp *domain.AppProfile
	Reviews      []domain.ReviewRecord
	Analysis     *domain.AnalysisResult
}

// HasData reports whether any reviews or an analysis were found.
func (c CallerContext) HasData() bool { return len(c.Reviews) > 0 || c.Analysis != nil }

// DataUsed summarizes the context for responses and logs.
func (c CallerContext) DataUsed() domain.DataUsed {
	return domain.DataUsed{Apps: len(c.Apps), Reviews: len(c.Reviews), HasAnalysis: c.Analysis != nil}
}

// BuildContext renders the prompt context block. Output depends only on its
// arguments.
func BuildContext(apps []domain.AppProfile, reviews []domain.ReviewRecord, analysis *domain.AnalysisResult, mentioned *domain.AppProfile) string {
	var b strings.Builder
	b.WriteString("# Available Data\n\n")

	if len(apps) > 0 {
		b.WriteString("## User's Apps:\n")
		for _, app := range apps {
			fmt.Fprintf(&b, "- %s (%s)\n", app.Title, orDefault(app.Genre, "Unknown genre"))
			fmt.Fprintf(&b, "  - Package: %s\n", app.ID)
			fmt.Fprintf(&b, "  - Current Rating: %s\n", ratingOrNA(app.Rating))
			fmt.Fprintf(&b, "  - Total Reviews: %d\n", app.ReviewCount)
		}
		b.WriteString("\n")
	}

	if mentioned != nil {
		fmt.Fprintf(&b, "## Focus App: %s\n", mentioned.Title)
		details, _ := json.MarshalIndent(mentioned, "", "  ")
		fmt.Fprintf(&b, "Details: %s\n\n", details)
	}

	if len(reviews) > 0 {
		fmt.Fprintf(&b, "## Recent Reviews (%d total):\n", len(reviews))
		byRating := groupByRating(reviews)
		for rating := 1; rating <= 5; rating++ {
			group := byRating[rating]
			if len(group) == 0 {
				continue
			}
			fmt.Fprintf(&b, "\n### %d-Star Reviews (%d):\n", rating, len(group))
			for i, r := range group {
				if i == reviewsPerRating {
					break
				}
				text := textx.Truncate(r.Text, reviewTextRunes)
				if text == "" {
					text = "No text"
				}
				fmt.Fprintf(&b, "- [%s] %s\n", formatDate(r), text)
			}
		}
		b.WriteString("\n")
	}

	if analysis != nil {
		b.WriteString("## Analysis Results:\n")
		if len(analysis.Bugs) > 0 {
			fmt.Fprintf(&b, "### Bugs Found (%d):\n", len(analysis.Bugs))
			for _, bug := range analysis.Bugs {
				fmt.Fprintf(&b, "- %s: %s (Severity: %s)\n", bug.Name, bug.Description, bug.Severity)
			}
		}
		if len(analysis.Features) > 0 {
			fmt.Fprintf(&b, "\n### Feature Requests (%d):\n", len(analysis.Features))
			for _, f := range analysis.Features {
				fmt.Fprintf(&b, "- %s (%s)\n", f.Name, f.Type)
			}
		}
		if analysis.Sentiment != nil {
			fmt.Fprintf(&b, "\n### Sentiment: %s\n", analysis.Sentiment.Summary)
			if len(analysis.Sentiment.Keywords) > 0 {
				fmt.Fprintf(&b, "Keywords: %s\n", strings.Join(analysis.Sentiment.Keywords, ", "))
			}
		}
		b.WriteString("\n")
	}

	return b.String()
}

// groupByRating buckets reviews by score, dropping scores outside 1..5.
func groupByRating(reviews []domain.ReviewRecord) map[int][]domain.ReviewRecord {
	out := make(map[int][]domain.ReviewRecord, 5)
	for _, r := range reviews {
		if r.Score >= 1 && r.Score <= 5 {
			out[r.Score] = append(out[r.Score], r)
		}
	}
	return out
}

func formatDate(r domain.ReviewRecord) string {
	if r.Date.IsZero() {
		return "Unknown date"
	}
	return r.Date.UTC().Format(dateLayout)
}

func ratingOrNA(v float64) string {
	if v == 0 {
		return "N/A"
	}
	return formatNumber(v)
}

// formatNumber prints v with the fewest digits that round-trip.
func formatNumber(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func orDefault(s, def string) string {
	if strings.TrimSpace(s) == "" {
		return def
	}
	return s
}
