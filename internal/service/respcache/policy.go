package respcache

import (
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/Eagleeye1811/insightify-sub000/internal/domain"
)

var timeSensitive = regexp.MustCompile(`(?i)today|now|current|latest|recent|this (week|month|year)`)

// DefaultIntents are the intents whose answers are cached.
var DefaultIntents = []domain.Intent{
	domain.IntentStats,
	domain.IntentReviewAnalysis,
	domain.IntentBugReport,
	domain.IntentFeatureRequest,
	domain.IntentSentiment,
}

// Policy decides whether an answer is worth caching.
type Policy struct {
	intents map[domain.Intent]struct{}
}

// NewPolicy builds a Policy over the given allow-list; empty means DefaultIntents.
func NewPolicy(intents []string) Policy {
	p := Policy{intents: make(map[domain.Intent]struct{})}
	for _, s := range intents {
		if s = strings.TrimSpace(s); s != "" {
			p.intents[domain.Intent(s)] = struct{}{}
		}
	}
	if len(p.intents) == 0 {
		for _, in := range DefaultIntents {
			p.intents[in] = struct{}{}
		}
	}
	return p
}

// ShouldCache reports whether the answer to query may be cached. Short,
// data-less and time-sensitive questions never are.
func (p Policy) ShouldCache(query string, intent domain.Intent, hasData bool) bool {
	if utf8.RuneCountInString(query) < 5 || !hasData {
		return false
	}
	if timeSensitive.MatchString(query) {
		return false
	}
	words := len(strings.Fields(query))
	if words < 3 {
		return false
	}
	if _, ok := p.intents[intent]; ok {
		return true
	}
	return words >= 3
}
