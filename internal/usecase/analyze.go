package usecase

import (
	"fmt"
	"log/slog"

	"github.com/Eagleeye1811/insightify-sub000/internal/adapter/ai"
	"github.com/Eagleeye1811/insightify-sub000/internal/domain"
	"github.com/Eagleeye1811/insightify-sub000/internal/observability"
	"github.com/Eagleeye1811/insightify-sub000/internal/service/modelfallback"
	"github.com/Eagleeye1811/insightify-sub000/internal/service/rag"
	"github.com/Eagleeye1811/insightify-sub000/internal/service/requestqueue"
)

// Analyzer produces a structured analysis of an app's reviews.
type Analyzer interface {
	Analyze(ctx domain.Context, reviews []domain.ReviewRecord, meta domain.AppProfile) (domain.AnalysisResult, error)
}

// AnalyzeService runs the fixed analysis prompt through the fallback chain.
// Every model attempt is a separate high priority task on the queue.
type AnalyzeService struct {
	models     *modelfallback.Orchestrator
	candidates []domain.ModelCandidate
	cleaner    *ai.ResponseCleaner
}

var _ Analyzer = (*AnalyzeService)(nil)

// NewAnalyzeService wires an AnalyzeService.
func NewAnalyzeService(q *requestqueue.Queue, models *modelfallback.Orchestrator, candidates []domain.ModelCandidate) *AnalyzeService {
	queued := models.WithRunner(func(ctx domain.Context, call func(domain.Context) (string, error)) (string, error) {
		return requestqueue.Do(ctx, q, requestqueue.PriorityHigh, call)
	})
	return &AnalyzeService{models: queued, candidates: candidates, cleaner: ai.NewResponseCleaner()}
}

// Analyze samples reviews, asks the models for the JSON analysis and returns
// the first answer that decodes. It fails only when every candidate failed.
func (s *AnalyzeService) Analyze(ctx domain.Context, reviews []domain.ReviewRecord, meta domain.AppProfile) (domain.AnalysisResult, error) {
	lg := observability.LoggerFromContext(ctx).With(slog.String("app_id", meta.ID))
	sampled := rag.SampleReviews(reviews)
	if len(sampled) == 0 {
		return domain.AnalysisResult{}, fmt.Errorf("op=analyze.analyze: %w: no reviews with usable text", domain.ErrInvalidArgument)
	}
	prompt := rag.AnalysisPrompt(meta, reviews)
	lg.Info("analysis started", slog.Int("reviews", len(reviews)), slog.Int("sampled", len(sampled)))

	var out domain.AnalysisResult
	res, err := s.models.GenerateDecoded(ctx, prompt, s.candidates, func(text string) error {
		decoded, err := s.decode(text)
		if err != nil {
			return err
		}
		out = decoded
		return nil
	})
	if err != nil {
		lg.Error("analysis failed on every model", slog.Int("attempts", len(res.Attempts)), slog.Any("error", err))
		return domain.AnalysisResult{}, fmt.Errorf("op=analyze.analyze: %w", err)
	}
	lg.Info("analysis completed", slog.String("model", res.Model), slog.Int("bugs", len(out.Bugs)), slog.Int("features", len(out.Features)))
	return out, nil
}

// decode accepts a single JSON object, optionally fenced, whose fields have
// the documented types. Unknown fields are ignored.
func (s *AnalyzeService) decode(text string) (domain.AnalysisResult, error) {
	var out domain.AnalysisResult
	if err := s.cleaner.DecodeObject(text, &out); err != nil {
		return domain.AnalysisResult{}, fmt.Errorf("decode analysis: %w", err)
	}
	normalize(&out)
	return out, nil
}

func normalize(a *domain.AnalysisResult) {
	if a.Bugs == nil {
		a.Bugs = []domain.Bug{}
	}
	if a.Features == nil {
		a.Features = []domain.Feature{}
	}
	if a.UninstallReasons == nil {
		a.UninstallReasons = []domain.UninstallReason{}
	}
	if a.Recommendations == nil {
		a.Recommendations = []domain.Recommendation{}
	}
	if a.Sentiment != nil && a.Sentiment.Keywords == nil {
		a.Sentiment.Keywords = []string{}
	}
}
