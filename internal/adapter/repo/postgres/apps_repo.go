package postgres

import (
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/Eagleeye1811/insightify-sub000/internal/domain"
)

// AppRepo stores app profiles per user.
type AppRepo struct{ Pool PgxPool }

var _ domain.AppRepository = (*AppRepo)(nil)

// NewAppRepo constructs an AppRepo with the given pool.
func NewAppRepo(p PgxPool) *AppRepo { return &AppRepo{Pool: p} }

const appColumns = `app_id, user_id, title, genre, score, review_count, icon, updated_at`

// ListByUser returns up to limit apps, most recently updated first.
func (r *AppRepo) ListByUser(ctx domain.Context, userID string, limit int) ([]domain.AppProfile, error) {
	ctx, span := otel.Tracer("repo.apps").Start(ctx, "apps.ListByUser")
	defer span.End()
	span.SetAttributes(attribute.Int("limit", limit))

	rows, err := r.Pool.Query(ctx, `SELECT `+appColumns+` FROM apps WHERE user_id=$1 ORDER BY updated_at DESC, app_id LIMIT $2`, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("op=app.list: %w", err)
	}
	defer rows.Close()
	var out []domain.AppProfile
	for rows.Next() {
		var a domain.AppProfile
		if err := rows.Scan(&a.ID, &a.UserID, &a.Title, &a.Genre, &a.Rating, &a.ReviewCount, &a.Icon, &a.UpdatedAt); err != nil {
			return nil, fmt.Errorf("op=app.list: %w", err)
		}
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("op=app.list: %w", err)
	}
	return out, nil
}

// Get loads one app.
func (r *AppRepo) Get(ctx domain.Context, userID, appID string) (domain.AppProfile, error) {
	ctx, span := otel.Tracer("repo.apps").Start(ctx, "apps.Get")
	defer span.End()

	var a domain.AppProfile
	row := r.Pool.QueryRow(ctx, `SELECT `+appColumns+` FROM apps WHERE user_id=$1 AND app_id=$2`, userID, appID)
	if err := row.Scan(&a.ID, &a.UserID, &a.Title, &a.Genre, &a.Rating, &a.ReviewCount, &a.Icon, &a.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.AppProfile{}, fmt.Errorf("op=app.get: %w", domain.ErrNotFound)
		}
		return domain.AppProfile{}, fmt.Errorf("op=app.get: %w", err)
	}
	return a, nil
}

// Upsert inserts or replaces an app profile.
func (r *AppRepo) Upsert(ctx domain.Context, a domain.AppProfile) error {
	ctx, span := otel.Tracer("repo.apps").Start(ctx, "apps.Upsert")
	defer span.End()

	if a.UserID == "" || a.ID == "" {
		return fmt.Errorf("op=app.upsert: %w: user and app id required", domain.ErrInvalidArgument)
	}
	updated := a.UpdatedAt
	if updated.IsZero() {
		updated = time.Now().UTC()
	}
	q := `INSERT INTO apps (` + appColumns + `) VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
	ON CONFLICT (user_id, app_id)
	DO UPDATE SET title=EXCLUDED.title, genre=EXCLUDED.genre, score=EXCLUDED.score, review_count=EXCLUDED.review_count, icon=EXCLUDED.icon, updated_at=EXCLUDED.updated_at`
	if _, err := r.Pool.Exec(ctx, q, a.ID, a.UserID, a.Title, a.Genre, a.Rating, a.ReviewCount, a.Icon, updated); err != nil {
		return fmt.Errorf("op=app.upsert: %w", err)
	}
	return nil
}
