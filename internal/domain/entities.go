package domain

import (
	"context"
	"errors"
	"time"
)

// Error taxonomy (sentinels)
var (
	ErrInvalidArgument   = errors.New("invalid argument")
	ErrNotFound          = errors.New("not found")
	ErrConflict          = errors.New("conflict")
	ErrRateLimited       = errors.New("rate limited")
	ErrUpstreamTimeout   = errors.New("upstream timeout")
	ErrUpstreamRateLimit = errors.New("upstream rate limit")
	ErrQuotaExceeded     = errors.New("quota exceeded")
	ErrModelNotFound     = errors.New("model not found")
	ErrAllModelsFailed   = errors.New("all models failed")
	ErrSchemaInvalid     = errors.New("schema invalid")
	ErrInternal          = errors.New("internal error")
	ErrUnauthorized      = errors.New("unauthorized")
	ErrForbidden         = errors.New("forbidden")
)

// Intent names a coarse category of what a chat message is asking about.
type Intent string

const (
	IntentReviewAnalysis Intent = "reviewAnalysis"
	IntentBugReport      Intent = "bugReport"
	IntentFeatureRequest Intent = "featureRequest"
	IntentSentiment      Intent = "sentiment"
	IntentStats          Intent = "stats"
	IntentComparison     Intent = "comparison"
	IntentRecommendation Intent = "recommendation"
	IntentGeneral        Intent = "general"
)

// ReviewSource is the listing a review was scraped from.
type ReviewSource string

const (
	ReviewSourceNewest   ReviewSource = "newest"
	ReviewSourceCritical ReviewSource = "critical"
	ReviewSourceHelpful  ReviewSource = "helpful"
)

// AppProfile is the stored metadata of one app owned by a user.
// ID is the store package name (e.g. com.example.app).
type AppProfile struct {
	ID          string    `json:"appId"`
	UserID      string    `json:"-"`
	Title       string    `json:"title"`
	Genre       string    `json:"genre"`
	Rating      float64   `json:"score"`
	ReviewCount int       `json:"reviews"`
	Icon        string    `json:"icon,omitempty"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

// ReviewRecord is one scraped review. Score is in [1,5].
type ReviewRecord struct {
	ID     string       `json:"id"`
	AppID  string       `json:"appId"`
	Score  int          `json:"score"`
	Text   string       `json:"text"`
	Date   time.Time    `json:"date"`
	Source ReviewSource `json:"source,omitempty"`
}

type Bug struct {
	Name          string  `json:"name"`
	Description   string  `json:"description"`
	Severity      string  `json:"severity"`
	Frequency     float64 `json:"frequency"`
	AffectedUsers float64 `json:"affectedUsers"`
}

type Feature struct {
	Name      string  `json:"name"`
	Type      string  `json:"type"`
	Frequency float64 `json:"frequency"`
	Impact    string  `json:"impact"`
}

type UninstallReason struct {
	Reason     string  `json:"reason"`
	Count      float64 `json:"count"`
	Percentage float64 `json:"percentage"`
}

type Sentiment struct {
	Summary  string   `json:"summary"`
	Keywords []string `json:"keywords"`
}

type Recommendation struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	Impact      string `json:"impact"`
	Action      string `json:"action"`
}

// AnalysisResult is the structured output of a bulk review analysis.
type AnalysisResult struct {
	Bugs             []Bug             `json:"bugs"`
	Features         []Feature         `json:"features"`
	UninstallReasons []UninstallReason `json:"uninstallReasons"`
	Sentiment        *Sentiment        `json:"sentiment"`
	Recommendations  []Recommendation  `json:"recommendations"`
}

// StoredAnalysis is an AnalysisResult as persisted for an app.
type StoredAnalysis struct {
	AppID        string         `json:"appId"`
	UserID       string         `json:"-"`
	Result       AnalysisResult `json:"result"`
	LastAnalyzed time.Time      `json:"lastAnalyzed"`
	Version      string         `json:"version"`
}

// AnalysisVersion is stamped on every persisted analysis.
const AnalysisVersion = "1.0"

// ModelCandidate is one provider model variant. Lower Priority is tried first.
type ModelCandidate struct {
	Name     string `json:"name" yaml:"name"`
	Priority int    `json:"priority" yaml:"priority"`
}

// DataUsed summarizes which stored records informed a chat answer.
type DataUsed struct {
	Apps        int  `json:"apps"`
	Reviews     int  `json:"reviews"`
	HasAnalysis bool `json:"hasAnalysis"`
}

// ChatResult is the outcome of one chat turn.
type ChatResult struct {
	Response     string   `json:"response"`
	Intent       Intent   `json:"intent"`
	HasData      bool     `json:"hasData"`
	UsedFallback bool     `json:"usedFallback"`
	FromCache    bool     `json:"fromCache"`
	DataUsed     DataUsed `json:"dataUsed"`
}

// ChatLog is a persisted chat interaction.
type ChatLog struct {
	ID           string    `json:"id"`
	UserID       string    `json:"userId"`
	Message      string    `json:"message"`
	Response     string    `json:"response"`
	Intent       Intent    `json:"intent"`
	HasData      bool      `json:"hasData"`
	UsedFallback bool      `json:"usedFallback"`
	FromCache    bool      `json:"fromCache"`
	DataUsed     DataUsed  `json:"dataUsed"`
	Timestamp    time.Time `json:"timestamp"`
}

// ChatStats aggregates a user's chat logs.
type ChatStats struct {
	TotalMessages int            `json:"totalMessages"`
	ByIntent      map[Intent]int `json:"byIntent"`
	WithData      int            `json:"withData"`
	WithoutData   int            `json:"withoutData"`
}

// AnalysisJob asks a worker to analyze the stored reviews of one app.
type AnalysisJob struct {
	ID          string    `json:"id"`
	UserID      string    `json:"userId"`
	AppID       string    `json:"appId"`
	RequestID   string    `json:"requestId,omitempty"`
	RequestedAt time.Time `json:"requestedAt"`
}

// Analysis event types delivered to watchers of an app.
const (
	EventAnalysisComplete = "analysis_complete"
	EventAnalysisError    = "analysis_error"
)

// AnalysisEvent notifies watchers that an analysis job settled.
type AnalysisEvent struct {
	Type     string          `json:"type"`
	AppID    string          `json:"appId"`
	UserID   string          `json:"userId"`
	Analysis *AnalysisResult `json:"analysis,omitempty"`
	Error    string          `json:"error,omitempty"`
	At       time.Time       `json:"at"`
}

// Repositories (ports)

type AppRepository interface {
	ListByUser(ctx Context, userID string, limit int) ([]AppProfile, error)
	Get(ctx Context, userID, appID string) (AppProfile, error)
	Upsert(ctx Context, app AppProfile) error
}

type ReviewRepository interface {
	ListByApp(ctx Context, userID, appID string, limit int) ([]ReviewRecord, error)
	ReplaceForApp(ctx Context, userID, appID string, reviews []ReviewRecord) error
}

type AnalysisRepository interface {
	Get(ctx Context, userID, appID string) (StoredAnalysis, error)
	Upsert(ctx Context, a StoredAnalysis) error
}

type ChatLogRepository interface {
	Append(ctx Context, l ChatLog) (string, error)
	ListByUser(ctx Context, userID string, limit int) ([]ChatLog, error)
	DeleteByUser(ctx Context, userID string) (int64, error)
	Stats(ctx Context, userID string) (ChatStats, error)
}

// Provider generates text for a prompt with one named model. Implementations
// return errors wrapping ErrUpstreamRateLimit, ErrQuotaExceeded,
// ErrUpstreamTimeout or ErrModelNotFound when they can tell.
type Provider interface {
	Generate(ctx Context, model, prompt string) (string, error)
}

// AnalysisQueue publishes analysis jobs to background workers.
type AnalysisQueue interface {
	EnqueueAnalysis(ctx Context, job AnalysisJob) (string, error)
}

// EventPublisher delivers analysis events to watchers.
type EventPublisher interface {
	PublishAnalysisEvent(ctx Context, ev AnalysisEvent) error
}

type Context = context.Context
