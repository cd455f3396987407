package postgres

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"

	"github.com/Eagleeye1811/insightify-sub000/internal/domain"
)

// ChatLogRepo stores chat interactions.
type ChatLogRepo struct{ Pool PgxPool }

var _ domain.ChatLogRepository = (*ChatLogRepo)(nil)

// NewChatLogRepo constructs a ChatLogRepo with the given pool.
func NewChatLogRepo(p PgxPool) *ChatLogRepo { return &ChatLogRepo{Pool: p} }

// Append stores l and returns its id, generating one if empty.
func (r *ChatLogRepo) Append(ctx domain.Context, l domain.ChatLog) (string, error) {
	ctx, span := otel.Tracer("repo.chat_logs").Start(ctx, "chat_logs.Append")
	defer span.End()

	id := l.ID
	if id == "" {
		id = uuid.NewString()
	}
	ts := l.Timestamp
	if ts.IsZero() {
		ts = time.Now().UTC()
	}
	used, err := json.Marshal(l.DataUsed)
	if err != nil {
		return "", fmt.Errorf("op=chat_log.append: %w", err)
	}
	q := `INSERT INTO chat_logs (id, user_id, message, response, intent, has_data, used_fallback, from_cache, data_used, created_at)
	VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)`
	if _, err := r.Pool.Exec(ctx, q, id, l.UserID, l.Message, l.Response, string(l.Intent), l.HasData, l.UsedFallback, l.FromCache, used, ts); err != nil {
		return "", fmt.Errorf("op=chat_log.append: %w", err)
	}
	return id, nil
}

// ListByUser returns up to limit logs, newest first.
func (r *ChatLogRepo) ListByUser(ctx domain.Context, userID string, limit int) ([]domain.ChatLog, error) {
	ctx, span := otel.Tracer("repo.chat_logs").Start(ctx, "chat_logs.ListByUser")
	defer span.End()

	q := `SELECT id, user_id, message, response, intent, has_data, used_fallback, from_cache, data_used, created_at
	FROM chat_logs WHERE user_id=$1 ORDER BY created_at DESC LIMIT $2`
	rows, err := r.Pool.Query(ctx, q, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("op=chat_log.list: %w", err)
	}
	defer rows.Close()
	var out []domain.ChatLog
	for rows.Next() {
		var (
			l      domain.ChatLog
			intent string
			used   []byte
		)
		if err := rows.Scan(&l.ID, &l.UserID, &l.Message, &l.Response, &intent, &l.HasData, &l.UsedFallback, &l.FromCache, &used, &l.Timestamp); err != nil {
			return nil, fmt.Errorf("op=chat_log.list: %w", err)
		}
		l.Intent = domain.Intent(intent)
		if len(used) > 0 {
			if err := json.Unmarshal(used, &l.DataUsed); err != nil {
				return nil, fmt.Errorf("op=chat_log.list: decode data_used: %w", err)
			}
		}
		out = append(out, l)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("op=chat_log.list: %w", err)
	}
	return out, nil
}

// DeleteByUser removes every log of userID.
func (r *ChatLogRepo) DeleteByUser(ctx domain.Context, userID string) (int64, error) {
	ctx, span := otel.Tracer("repo.chat_logs").Start(ctx, "chat_logs.DeleteByUser")
	defer span.End()

	tag, err := r.Pool.Exec(ctx, `DELETE FROM chat_logs WHERE user_id=$1`, userID)
	if err != nil {
		return 0, fmt.Errorf("op=chat_log.delete: %w", err)
	}
	return tag.RowsAffected(), nil
}

// Stats counts userID's logs by intent and by whether data was used.
func (r *ChatLogRepo) Stats(ctx domain.Context, userID string) (domain.ChatStats, error) {
	ctx, span := otel.Tracer("repo.chat_logs").Start(ctx, "chat_logs.Stats")
	defer span.End()

	q := `SELECT intent, count(*), count(*) FILTER (WHERE has_data) FROM chat_logs WHERE user_id=$1 GROUP BY intent`
	rows, err := r.Pool.Query(ctx, q, userID)
	if err != nil {
		return domain.ChatStats{}, fmt.Errorf("op=chat_log.stats: %w", err)
	}
	defer rows.Close()
	st := domain.ChatStats{ByIntent: map[domain.Intent]int{}}
	for rows.Next() {
		var (
			intent          string
			total, withData int64
		)
		if err := rows.Scan(&intent, &total, &withData); err != nil {
			return domain.ChatStats{}, fmt.Errorf("op=chat_log.stats: %w", err)
		}
		st.ByIntent[domain.Intent(intent)] = int(total)
		st.TotalMessages += int(total)
		st.WithData += int(withData)
	}
	if err := rows.Err(); err != nil {
		return domain.ChatStats{}, fmt.Errorf("op=chat_log.stats: %w", err)
	}
	st.WithoutData = st.TotalMessages - st.WithData
	return st, nil
}
