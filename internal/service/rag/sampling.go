package rag

import (
	"fmt"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/Eagleeye1811/insightify-sub000/internal/domain"
	"github.com/Eagleeye1811/insightify-sub000/pkg/textx"
)

const (
	sampleRecent      = 7
	sampleMax         = 50
	samplePerMonth    = 3
	sampleMinRunes    = 11
	sampleTextRunes   = 300
	sampleMonthLayout = "2006-01"
)

// SampleReviews picks the reviews sent for analysis: the newest few, then up
// to three per calendar month from the rest, capped overall. Reviews with
// ten characters of text or less are ignored.
func SampleReviews(reviews []domain.ReviewRecord) []domain.ReviewRecord {
	valid := make([]domain.ReviewRecord, 0, len(reviews))
	for _, r := range reviews {
		if utf8.RuneCountInString(r.Text) >= sampleMinRunes {
			valid = append(valid, r)
		}
	}
	sort.SliceStable(valid, func(i, j int) bool { return valid[i].Date.After(valid[j].Date) })

	if len(valid) <= sampleRecent {
		return valid
	}
	out := append([]domain.ReviewRecord(nil), valid[:sampleRecent]...)
	perMonth := make(map[string]int)
	for _, r := range valid[sampleRecent:] {
		if len(out) >= sampleMax {
			break
		}
		key := r.Date.UTC().Format(sampleMonthLayout)
		if perMonth[key] < samplePerMonth {
			perMonth[key]++
			out = append(out, r)
		}
	}
	return out
}

// FormatSampled renders one line per review for the analysis prompt.
func FormatSampled(reviews []domain.ReviewRecord) string {
	lines := make([]string, 0, len(reviews))
	for _, r := range reviews {
		lines = append(lines, fmt.Sprintf("[%s - %d stars] %s", formatDate(r), r.Score, textx.Truncate(r.Text, sampleTextRunes)))
	}
	return strings.Join(lines, "\n")
}
