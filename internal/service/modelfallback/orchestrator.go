// Package modelfallback tries an ordered list of provider models until one
// produces a usable answer.
package modelfallback

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	obs "github.com/Eagleeye1811/insightify-sub000/internal/adapter/observability"
	"github.com/Eagleeye1811/insightify-sub000/internal/domain"
	"github.com/Eagleeye1811/insightify-sub000/internal/observability"
)

// DefaultAttemptTimeout bounds a single provider attempt.
const DefaultAttemptTimeout = 30 * time.Second

// Attempt records one tried candidate. Err is empty on success.
type Attempt struct {
	Model    string        `json:"model"`
	Kind     string        `json:"kind,omitempty"`
	Err      string        `json:"error,omitempty"`
	Duration time.Duration `json:"duration"`
	Skipped  bool          `json:"skipped,omitempty"`
}

// Result is the text produced by the first successful candidate.
type Result struct {
	Text     string
	Model    string
	Attempts []Attempt
}

// Runner executes a single attempt. The default runs it inline; callers that
// want each attempt to pass through a request queue supply their own.
type Runner func(ctx context.Context, call func(ctx context.Context) (string, error)) (string, error)

func inline(ctx context.Context, call func(ctx context.Context) (string, error)) (string, error) {
	return call(ctx)
}

// Options configures an Orchestrator.
type Options struct {
	// ProviderName labels metrics.
	ProviderName   string
	AttemptTimeout time.Duration
	// ModelCooldown skips a model after a rate or quota failure. Zero disables it.
	ModelCooldown time.Duration
}

// Orchestrator runs the fallback loop over a Provider.
type Orchestrator struct {
	provider       domain.Provider
	providerName   string
	attemptTimeout time.Duration
	cooldown       *Cooldown
	runner         Runner
}

// New builds an Orchestrator.
func New(provider domain.Provider, opts Options) *Orchestrator {
	if opts.AttemptTimeout <= 0 {
		opts.AttemptTimeout = DefaultAttemptTimeout
	}
	if opts.ProviderName == "" {
		opts.ProviderName = "gemini"
	}
	return &Orchestrator{
		provider:       provider,
		providerName:   opts.ProviderName,
		attemptTimeout: opts.AttemptTimeout,
		cooldown:       NewCooldown(opts.ModelCooldown),
		runner:         inline,
	}
}

// WithRunner returns a copy of o that executes every attempt through r.
// The copy shares the cooldown state.
func (o *Orchestrator) WithRunner(r Runner) *Orchestrator {
	cp := *o
	if r == nil {
		r = inline
	}
	cp.runner = r
	return &cp
}

// Cooldown exposes the cooldown tracker (nil when disabled).
func (o *Orchestrator) Cooldown() *Cooldown { return o.cooldown }

// Generate returns the first successful candidate's text.
func (o *Orchestrator) Generate(ctx context.Context, prompt string, candidates []domain.ModelCandidate) (Result, error) {
	return o.GenerateDecoded(ctx, prompt, candidates, nil)
}

// GenerateDecoded is Generate with a decode step: a candidate whose output
// decode rejects counts as failed and the next candidate is tried.
func (o *Orchestrator) GenerateDecoded(ctx context.Context, prompt string, candidates []domain.ModelCandidate, decode func(string) error) (Result, error) {
	lg := observability.LoggerFromContext(ctx)
	ordered := o.order(candidates)
	if len(ordered) == 0 {
		return Result{}, fmt.Errorf("op=modelfallback.generate: %w: no model candidates", domain.ErrInvalidArgument)
	}

	var res Result
	var lastErr error
	lastKind := KindOther
	for i, c := range ordered {
		if err := ctx.Err(); err != nil {
			return res, fmt.Errorf("op=modelfallback.generate: %w", err)
		}
		last := i == len(ordered)-1
		if !last && o.cooldown.IsBlocked(c.Name) {
			lg.Info("skipping model in cooldown", slog.String("model", c.Name))
			res.Attempts = append(res.Attempts, Attempt{Model: c.Name, Skipped: true})
			continue
		}

		start := time.Now()
		text, err := o.runner(ctx, func(ctx context.Context) (string, error) {
			return o.race(ctx, c.Name, prompt)
		})
		if err == nil && decode != nil {
			if derr := decode(text); derr != nil {
				err = fmt.Errorf("%w: %w", domain.ErrSchemaInvalid, derr)
			}
		}
		dur := time.Since(start)

		if err == nil {
			o.cooldown.RecordSuccess(ctx, c.Name)
			obs.ObserveAIAttempt(o.providerName, c.Name, "ok", dur)
			res.Attempts = append(res.Attempts, Attempt{Model: c.Name, Duration: dur})
			res.Text, res.Model = text, c.Name
			if i > 0 {
				lg.Info("provider answered after fallback",
					slog.String("model", c.Name),
					slog.Int("attempts", len(res.Attempts)))
			}
			return res, nil
		}

		kind := Classify(err)
		if kind == KindRateLimited || kind == KindQuotaExceeded {
			o.cooldown.RecordLimit(ctx, c.Name)
		}
		obs.ObserveAIAttempt(o.providerName, c.Name, kind.String(), dur)
		res.Attempts = append(res.Attempts, Attempt{Model: c.Name, Kind: kind.String(), Err: err.Error(), Duration: dur})
		lg.Warn("model attempt failed",
			slog.String("model", c.Name),
			slog.String("kind", kind.String()),
			slog.Bool("last", last),
			slog.Any("error", err))
		lastErr, lastKind = err, kind
	}

	if sentinel := lastKind.Sentinel(); sentinel != nil && !errors.Is(lastErr, sentinel) {
		return res, fmt.Errorf("op=modelfallback.generate: %w: %w: %w", domain.ErrAllModelsFailed, sentinel, lastErr)
	}
	return res, fmt.Errorf("op=modelfallback.generate: %w: %w", domain.ErrAllModelsFailed, lastErr)
}

// order sorts candidates by ascending priority, keeping input order for ties.
func (o *Orchestrator) order(candidates []domain.ModelCandidate) []domain.ModelCandidate {
	out := make([]domain.ModelCandidate, 0, len(candidates))
	for _, c := range candidates {
		if c.Name != "" {
			out = append(out, c)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Priority < out[j].Priority })
	return out
}

type callResult struct {
	text string
	err  error
}

// race runs one provider call against the attempt timeout. A response that
// arrives after the timeout is dropped.
func (o *Orchestrator) race(ctx context.Context, model, prompt string) (string, error) {
	actx, cancel := context.WithTimeout(ctx, o.attemptTimeout)
	defer cancel()

	ch := make(chan callResult, 1)
	go func() {
		text, err := o.provider.Generate(actx, model, prompt)
		ch <- callResult{text: text, err: err}
	}()

	select {
	case r := <-ch:
		if r.err != nil {
			return "", r.err
		}
		if r.text == "" {
			return "", fmt.Errorf("empty response from %s", model)
		}
		return r.text, nil
	case <-actx.Done():
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		return "", fmt.Errorf("%w: %s exceeded %s", domain.ErrUpstreamTimeout, model, o.attemptTimeout)
	}
}
