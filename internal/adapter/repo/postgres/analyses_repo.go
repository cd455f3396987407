package postgres

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"go.opentelemetry.io/otel"

	"github.com/Eagleeye1811/insightify-sub000/internal/domain"
)

// AnalysisRepo stores the latest analysis per app as JSONB.
type AnalysisRepo struct{ Pool PgxPool }

var _ domain.AnalysisRepository = (*AnalysisRepo)(nil)

// NewAnalysisRepo constructs an AnalysisRepo with the given pool.
func NewAnalysisRepo(p PgxPool) *AnalysisRepo { return &AnalysisRepo{Pool: p} }

// Get loads the stored analysis of an app.
func (r *AnalysisRepo) Get(ctx domain.Context, userID, appID string) (domain.StoredAnalysis, error) {
	ctx, span := otel.Tracer("repo.analyses").Start(ctx, "analyses.Get")
	defer span.End()

	a := domain.StoredAnalysis{UserID: userID}
	var raw []byte
	row := r.Pool.QueryRow(ctx, `SELECT app_id, result, last_analyzed, version FROM analyses WHERE user_id=$1 AND app_id=$2`, userID, appID)
	if err := row.Scan(&a.AppID, &raw, &a.LastAnalyzed, &a.Version); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.StoredAnalysis{}, fmt.Errorf("op=analysis.get: %w", domain.ErrNotFound)
		}
		return domain.StoredAnalysis{}, fmt.Errorf("op=analysis.get: %w", err)
	}
	if err := json.Unmarshal(raw, &a.Result); err != nil {
		return domain.StoredAnalysis{}, fmt.Errorf("op=analysis.get: decode result: %w", err)
	}
	return a, nil
}

// Upsert stores a, replacing any previous analysis of the app.
func (r *AnalysisRepo) Upsert(ctx domain.Context, a domain.StoredAnalysis) error {
	ctx, span := otel.Tracer("repo.analyses").Start(ctx, "analyses.Upsert")
	defer span.End()

	raw, err := json.Marshal(a.Result)
	if err != nil {
		return fmt.Errorf("op=analysis.upsert: %w", err)
	}
	version := a.Version
	if version == "" {
		version = domain.AnalysisVersion
	}
	q := `INSERT INTO analyses (user_id, app_id, result, last_analyzed, version) VALUES ($1,$2,$3,$4,$5)
	ON CONFLICT (user_id, app_id)
	DO UPDATE SET result=EXCLUDED.result, last_analyzed=EXCLUDED.last_analyzed, version=EXCLUDED.version`
	if _, err := r.Pool.Exec(ctx, q, a.UserID, a.AppID, raw, a.LastAnalyzed.UTC(), version); err != nil {
		return fmt.Errorf("op=analysis.upsert: %w", err)
	}
	return nil
}
