package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/Eagleeye1811/insightify-sub000/internal/domain"
)

type fixtureFile struct {
	Apps []fixtureApp `yaml:"apps"`
}

type fixtureApp struct {
	ID          string          `yaml:"id"`
	Title       string          `yaml:"title"`
	Genre       string          `yaml:"genre"`
	Rating      float64         `yaml:"rating"`
	ReviewCount int             `yaml:"reviewCount"`
	Icon        string          `yaml:"icon"`
	Reviews     []fixtureReview `yaml:"reviews"`
}

type fixtureReview struct {
	ID     string `yaml:"id"`
	Score  int    `yaml:"score"`
	Text   string `yaml:"text"`
	Date   string `yaml:"date"`
	Source string `yaml:"source"`
}

// seedTarget is the subset of the repositories the seeder writes to.
type seedTarget struct {
	Apps    domain.AppRepository
	Reviews domain.ReviewRepository
}

func loadFixtures(path string) (fixtureFile, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return fixtureFile{}, fmt.Errorf("op=seed.load: %w", err)
	}
	var doc fixtureFile
	if err := yaml.Unmarshal(b, &doc); err != nil {
		return fixtureFile{}, fmt.Errorf("op=seed.load: yaml parse: %w", err)
	}
	if len(doc.Apps) == 0 {
		return fixtureFile{}, fmt.Errorf("op=seed.load: %w: no apps in %s", domain.ErrInvalidArgument, path)
	}
	return doc, nil
}

// toDomain converts one fixture app into the stored profile and reviews.
// Dates accept RFC 3339 or YYYY-MM-DD; anything else is left unknown.
func (a fixtureApp) toDomain(userID string, now time.Time) (domain.AppProfile, []domain.ReviewRecord, error) {
	id := strings.TrimSpace(a.ID)
	if id == "" {
		return domain.AppProfile{}, nil, fmt.Errorf("%w: app without id", domain.ErrInvalidArgument)
	}
	count := a.ReviewCount
	if count == 0 {
		count = len(a.Reviews)
	}
	app := domain.AppProfile{
		ID: id, UserID: userID, Title: a.Title, Genre: a.Genre,
		Rating: a.Rating, ReviewCount: count, Icon: a.Icon, UpdatedAt: now,
	}
	reviews := make([]domain.ReviewRecord, 0, len(a.Reviews))
	for i, r := range a.Reviews {
		if r.Score < 1 || r.Score > 5 {
			return domain.AppProfile{}, nil, fmt.Errorf("%w: %s review %d has score %d", domain.ErrInvalidArgument, id, i, r.Score)
		}
		src := domain.ReviewSource(r.Source)
		if src == "" {
			src = domain.ReviewSourceNewest
		}
		reviews = append(reviews, domain.ReviewRecord{
			ID: r.ID, AppID: id, Score: r.Score, Text: r.Text, Date: parseDate(r.Date), Source: src,
		})
	}
	return app, reviews, nil
}

func parseDate(s string) time.Time {
	s = strings.TrimSpace(s)
	for _, layout := range []string{time.RFC3339, "2006-01-02"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC()
		}
	}
	return time.Time{}
}

// seed upserts every app and replaces its reviews. It returns the number of
// apps and reviews written.
func seed(ctx context.Context, target seedTarget, doc fixtureFile, userID string, now time.Time) (int, int, error) {
	var apps, reviews int
	for _, fa := range doc.Apps {
		app, rs, err := fa.toDomain(userID, now)
		if err != nil {
			return apps, reviews, fmt.Errorf("op=seed.apply: %w", err)
		}
		if err := target.Apps.Upsert(ctx, app); err != nil {
			return apps, reviews, fmt.Errorf("op=seed.apply: app %s: %w", app.ID, err)
		}
		if err := target.Reviews.ReplaceForApp(ctx, userID, app.ID, rs); err != nil {
			return apps, reviews, fmt.Errorf("op=seed.apply: reviews %s: %w", app.ID, err)
		}
		apps++
		reviews += len(rs)
	}
	return apps, reviews, nil
}
