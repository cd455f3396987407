package postgres

import (
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/Eagleeye1811/insightify-sub000/internal/domain"
)

// ReviewRepo stores scraped reviews per app.
type ReviewRepo struct{ Pool PgxPool }

var _ domain.ReviewRepository = (*ReviewRepo)(nil)

// NewReviewRepo constructs a ReviewRepo with the given pool.
func NewReviewRepo(p PgxPool) *ReviewRepo { return &ReviewRepo{Pool: p} }

var reviewCopyColumns = []string{"user_id", "app_id", "review_id", "score", "text", "reviewed_at", "source"}

// ListByApp returns up to limit reviews, newest first; undated reviews last.
func (r *ReviewRepo) ListByApp(ctx domain.Context, userID, appID string, limit int) ([]domain.ReviewRecord, error) {
	ctx, span := otel.Tracer("repo.reviews").Start(ctx, "reviews.ListByApp")
	defer span.End()
	span.SetAttributes(attribute.String("app_id", appID), attribute.Int("limit", limit))

	q := `SELECT review_id, app_id, score, text, reviewed_at, source FROM reviews
	WHERE user_id=$1 AND app_id=$2 ORDER BY reviewed_at DESC NULLS LAST, review_id LIMIT $3`
	rows, err := r.Pool.Query(ctx, q, userID, appID, limit)
	if err != nil {
		return nil, fmt.Errorf("op=review.list: %w", err)
	}
	defer rows.Close()
	var out []domain.ReviewRecord
	for rows.Next() {
		var (
			rec    domain.ReviewRecord
			date   *time.Time
			source string
		)
		if err := rows.Scan(&rec.ID, &rec.AppID, &rec.Score, &rec.Text, &date, &source); err != nil {
			return nil, fmt.Errorf("op=review.list: %w", err)
		}
		if date != nil {
			rec.Date = date.UTC()
		}
		rec.Source = domain.ReviewSource(source)
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("op=review.list: %w", err)
	}
	return out, nil
}

// ReplaceForApp swaps an app's reviews for a new set in one transaction.
func (r *ReviewRepo) ReplaceForApp(ctx domain.Context, userID, appID string, reviews []domain.ReviewRecord) error {
	ctx, span := otel.Tracer("repo.reviews").Start(ctx, "reviews.ReplaceForApp")
	defer span.End()
	span.SetAttributes(attribute.Int("reviews", len(reviews)))

	tx, err := r.Pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return fmt.Errorf("op=review.replace: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := tx.Exec(ctx, `DELETE FROM reviews WHERE user_id=$1 AND app_id=$2`, userID, appID); err != nil {
		return fmt.Errorf("op=review.replace: %w", err)
	}
	rows := make([][]any, 0, len(reviews))
	for i, rec := range reviews {
		id := rec.ID
		if id == "" {
			id = fmt.Sprintf("%s-%d", appID, i)
		}
		var date *time.Time
		if !rec.Date.IsZero() {
			d := rec.Date.UTC()
			date = &d
		}
		rows = append(rows, []any{userID, appID, id, rec.Score, rec.Text, date, string(rec.Source)})
	}
	if len(rows) > 0 {
		if _, err := tx.CopyFrom(ctx, pgx.Identifier{"reviews"}, reviewCopyColumns, pgx.CopyFromRows(rows)); err != nil {
			return fmt.Errorf("op=review.replace: %w", err)
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("op=review.replace: %w", err)
	}
	return nil
}
