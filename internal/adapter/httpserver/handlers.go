package httpserver

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/Eagleeye1811/insightify-sub000/internal/domain"
	"github.com/Eagleeye1811/insightify-sub000/internal/service/requestqueue"
	"github.com/Eagleeye1811/insightify-sub000/internal/service/respcache"
	"github.com/Eagleeye1811/insightify-sub000/internal/usecase"
)

// ChatService answers one chat message.
type ChatService interface {
	Chat(ctx context.Context, message, userID string) (domain.ChatResult, error)
}

// HistoryService reads and clears chat logs.
type HistoryService interface {
	History(ctx context.Context, userID string, limit int) ([]domain.ChatLog, error)
	Clear(ctx context.Context, userID string) (int64, error)
	Stats(ctx context.Context, userID string) (domain.ChatStats, error)
}

// AppService reads stored apps and their results.
type AppService interface {
	List(ctx context.Context, userID string) ([]domain.AppProfile, error)
	Results(ctx context.Context, userID, appID string) (usecase.AppResults, error)
}

// JobSubmitter starts an analysis job.
type JobSubmitter interface {
	Submit(ctx context.Context, userID, appID string) (domain.AnalysisJob, error)
}

// QueueAdmin inspects and drains the provider queue.
type QueueAdmin interface {
	Status() requestqueue.Status
	Clear(ctx context.Context) int
}

// ModelStatus reports models skipped after provider rate or quota limits.
type ModelStatus interface {
	CoolingModels() []string
}

// Server aggregates handler dependencies. Cache and Realtime may be nil.
type Server struct {
	Chat       ChatService
	History    HistoryService
	Apps       AppService
	Jobs       JobSubmitter
	Queue      QueueAdmin
	Models     ModelStatus
	Cache      respcache.Store
	Realtime   http.Handler
	DBCheck    func(ctx context.Context) error
	RedisCheck func(ctx context.Context) error
	now        func() time.Time
}

func (s *Server) clock() time.Time {
	if s.now != nil {
		return s.now()
	}
	return time.Now()
}

type chatResponse struct {
	domain.ChatResult
	Timestamp time.Time `json:"timestamp"`
}

// ChatHandler serves POST /v1/chat.
func (s *Server) ChatHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req chatRequest
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, r, err, nil)
			return
		}
		if details, err := validate(req); err != nil {
			writeError(w, r, err, details)
			return
		}
		uid := userFrom(r, req.UserID)
		res, err := s.Chat.Chat(r.Context(), req.Message, uid)
		if err != nil {
			writeError(w, r, err, nil)
			return
		}
		writeJSON(w, http.StatusOK, chatResponse{ChatResult: res, Timestamp: s.clock().UTC()})
	}
}

// HistoryHandler serves GET /v1/chat/history.
func (s *Server) HistoryHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q, err := parseLimit(r)
		if err != nil {
			writeError(w, r, err, nil)
			return
		}
		if details, err := validate(q); err != nil {
			writeError(w, r, err, details)
			return
		}
		uid := userFrom(r, "")
		logs, err := s.History.History(r.Context(), uid, q.Limit)
		if err != nil {
			writeError(w, r, err, nil)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"userId": uid, "history": logs, "count": len(logs)})
	}
}

// ClearHistoryHandler serves DELETE /v1/chat/history.
func (s *Server) ClearHistoryHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		uid := userFrom(r, "")
		n, err := s.History.Clear(r.Context(), uid)
		if err != nil {
			writeError(w, r, err, nil)
			return
		}
		LoggerFrom(r).Info("chat history cleared", slog.Int64("deleted", n))
		writeJSON(w, http.StatusOK, map[string]any{"deleted": n})
	}
}

// StatsHandler serves GET /v1/chat/stats.
func (s *Server) StatsHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		st, err := s.History.Stats(r.Context(), userFrom(r, ""))
		if err != nil {
			writeError(w, r, err, nil)
			return
		}
		writeJSON(w, http.StatusOK, st)
	}
}

// ListAppsHandler serves GET /v1/apps.
func (s *Server) ListAppsHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		apps, err := s.Apps.List(r.Context(), userFrom(r, ""))
		if err != nil {
			writeError(w, r, err, nil)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"apps": apps})
	}
}

func appIDParam(r *http.Request) (string, []ValidationError, error) {
	p := appPath{AppID: chi.URLParam(r, "appId")}
	details, err := validate(p)
	return p.AppID, details, err
}

// ResultsHandler serves GET /v1/apps/{appId}/results.
func (s *Server) ResultsHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		appID, details, err := appIDParam(r)
		if err != nil {
			writeError(w, r, err, details)
			return
		}
		res, err := s.Apps.Results(r.Context(), userFrom(r, ""), appID)
		if err != nil {
			writeError(w, r, err, nil)
			return
		}
		writeJSON(w, http.StatusOK, res)
	}
}

// AnalyzeHandler serves POST /v1/apps/{appId}/analyze. The job completes
// asynchronously and is announced on the realtime channel.
func (s *Server) AnalyzeHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		appID, details, err := appIDParam(r)
		if err != nil {
			writeError(w, r, err, details)
			return
		}
		job, err := s.Jobs.Submit(r.Context(), userFrom(r, ""), appID)
		if err != nil {
			writeError(w, r, err, nil)
			return
		}
		writeJSON(w, http.StatusAccepted, map[string]any{
			"status": "processing",
			"jobId":  job.ID,
			"appId":  job.AppID,
		})
	}
}

type queueStatusResponse struct {
	requestqueue.Status
	CoolingModels []string `json:"coolingModels"`
}

// QueueStatusHandler serves GET /v1/gateway/queue.
func (s *Server) QueueStatusHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		resp := queueStatusResponse{Status: s.Queue.Status(), CoolingModels: []string{}}
		if s.Models != nil {
			if cooling := s.Models.CoolingModels(); len(cooling) > 0 {
				resp.CoolingModels = cooling
			}
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

// ClearQueueHandler serves DELETE /v1/gateway/queue.
func (s *Server) ClearQueueHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		n := s.Queue.Clear(r.Context())
		LoggerFrom(r).Warn("provider queue cleared by admin", slog.Int("dropped", n))
		writeJSON(w, http.StatusOK, map[string]any{"cleared": n})
	}
}

// CacheStatsHandler serves GET /v1/gateway/cache.
func (s *Server) CacheStatsHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if s.Cache == nil {
			writeJSON(w, http.StatusOK, respcache.Stats{})
			return
		}
		st, err := s.Cache.Stats(r.Context())
		if err != nil {
			writeError(w, r, fmt.Errorf("op=http.cache_stats: %w", err), nil)
			return
		}
		writeJSON(w, http.StatusOK, st)
	}
}

// ClearCacheHandler serves DELETE /v1/gateway/cache?userId=.
func (s *Server) ClearCacheHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if s.Cache == nil {
			writeJSON(w, http.StatusOK, map[string]any{"cleared": 0})
			return
		}
		uid := r.URL.Query().Get("userId")
		n, err := s.Cache.Clear(r.Context(), uid)
		if err != nil {
			writeError(w, r, fmt.Errorf("op=http.cache_clear: %w", err), nil)
			return
		}
		LoggerFrom(r).Warn("response cache cleared by admin", slog.String("target_user", uid), slog.Int("cleared", n))
		writeJSON(w, http.StatusOK, map[string]any{"cleared": n})
	}
}

// RealtimeHandler serves GET /v1/ws.
func (s *Server) RealtimeHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if s.Realtime == nil {
			writeError(w, r, fmt.Errorf("%w: realtime updates are disabled", domain.ErrNotFound), nil)
			return
		}
		s.Realtime.ServeHTTP(w, r)
	}
}

// HealthzHandler reports liveness.
func (s *Server) HealthzHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}
}

// ReadyzHandler probes the configured dependencies.
func (s *Server) ReadyzHandler() http.HandlerFunc {
	type check struct {
		Name    string `json:"name"`
		OK      bool   `json:"ok"`
		Details string `json:"details,omitempty"`
	}
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		probes := []struct {
			name string
			fn   func(context.Context) error
		}{{"db", s.DBCheck}, {"redis", s.RedisCheck}}

		checks := make([]check, 0, len(probes))
		status := http.StatusOK
		for _, p := range probes {
			if p.fn == nil {
				continue
			}
			c := check{Name: p.name, OK: true}
			if err := p.fn(ctx); err != nil {
				c.OK, c.Details = false, err.Error()
				status = http.StatusServiceUnavailable
			}
			checks = append(checks, c)
		}
		writeJSON(w, status, map[string]any{"checks": checks})
	}
}
