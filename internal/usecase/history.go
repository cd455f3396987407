package usecase

import (
	"fmt"

	"github.com/Eagleeye1811/insightify-sub000/internal/domain"
)

const (
	DefaultHistoryLimit = 50
	MaxHistoryLimit     = 200
)

// HistoryService reads and clears a user's chat logs.
type HistoryService struct {
	Logs         domain.ChatLogRepository
	DefaultLimit int
}

// NewHistoryService builds a HistoryService; defaultLimit <= 0 uses 50.
func NewHistoryService(logs domain.ChatLogRepository, defaultLimit int) HistoryService {
	if defaultLimit <= 0 || defaultLimit > MaxHistoryLimit {
		defaultLimit = DefaultHistoryLimit
	}
	return HistoryService{Logs: logs, DefaultLimit: defaultLimit}
}

// History returns the newest logs first. limit <= 0 takes the default and
// values above MaxHistoryLimit are clamped.
func (s HistoryService) History(ctx domain.Context, userID string, limit int) ([]domain.ChatLog, error) {
	switch {
	case limit <= 0:
		limit = s.DefaultLimit
	case limit > MaxHistoryLimit:
		limit = MaxHistoryLimit
	}
	logs, err := s.Logs.ListByUser(ctx, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("op=history.list: %w", err)
	}
	if logs == nil {
		logs = []domain.ChatLog{}
	}
	return logs, nil
}

// Clear deletes every log of userID and returns how many were removed.
func (s HistoryService) Clear(ctx domain.Context, userID string) (int64, error) {
	n, err := s.Logs.DeleteByUser(ctx, userID)
	if err != nil {
		return 0, fmt.Errorf("op=history.clear: %w", err)
	}
	return n, nil
}

// Stats aggregates userID's logs.
func (s HistoryService) Stats(ctx domain.Context, userID string) (domain.ChatStats, error) {
	st, err := s.Logs.Stats(ctx, userID)
	if err != nil {
		return domain.ChatStats{}, fmt.Errorf("op=history.stats: %w", err)
	}
	if st.ByIntent == nil {
		st.ByIntent = map[domain.Intent]int{}
	}
	return st, nil
}
