// Package stub provides a deterministic domain.Provider for local runs and
// tests without a Gemini key.
package stub

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/Eagleeye1811/insightify-sub000/internal/domain"
)

// Provider answers chat prompts with a fixed summary and analysis prompts
// with a small valid analysis document.
type Provider struct {
	// Latency simulates processing time.
	Latency time.Duration
}

var _ domain.Provider = (*Provider)(nil)

// New returns a Provider.
func New() *Provider { return &Provider{} }

// Generate implements domain.Provider.
func (p *Provider) Generate(ctx context.Context, model, prompt string) (string, error) {
	if p.Latency > 0 {
		select {
		case <-time.After(p.Latency):
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	if strings.Contains(prompt, "STRICT JSON") {
		b, err := json.Marshal(sampleAnalysis())
		if err != nil {
			return "", fmt.Errorf("op=stub.generate: %w", err)
		}
		return "```json\n" + string(b) + "\n```", nil
	}
	question := prompt
	if i := strings.LastIndex(prompt, "User Question: "); i >= 0 {
		question = prompt[i+len("User Question: "):]
		if j := strings.Index(question, "\n"); j >= 0 {
			question = question[:j]
		}
	}
	return fmt.Sprintf("(%s) Based on your review data, here is what I found about %q: users mostly mention stability and ask for more customization.", model, question), nil
}

func sampleAnalysis() domain.AnalysisResult {
	return domain.AnalysisResult{
		Bugs: []domain.Bug{
			{Name: "Crash on launch", Description: "App closes right after the splash screen", Severity: "High", Frequency: 35, AffectedUsers: 120},
		},
		Features: []domain.Feature{
			{Name: "Dark mode", Type: "UX", Frequency: 20, Impact: "Medium"},
		},
		UninstallReasons: []domain.UninstallReason{
			{Reason: "Frequent crashes", Count: 40, Percentage: 25},
		},
		Sentiment: &domain.Sentiment{
			Summary:  "Users like the core features but stability issues hurt ratings.",
			Keywords: []string{"crash", "useful", "slow", "design", "update"},
		},
		Recommendations: []domain.Recommendation{
			{Title: "Fix launch crash", Description: "Investigate startup path", Impact: "High", Action: "Add crash reporting to startup"},
		},
	}
}
