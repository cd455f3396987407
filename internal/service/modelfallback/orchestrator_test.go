package modelfallback

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Eagleeye1811/insightify-sub000/internal/domain"
)

// scriptedProvider answers per model from a fixed table and records call order.
type scriptedProvider struct {
	mu      sync.Mutex
	answers map[string]func(ctx context.Context) (string, error)
	calls   []string
}

func (p *scriptedProvider) Generate(ctx context.Context, model, _ string) (string, error) {
	p.mu.Lock()
	p.calls = append(p.calls, model)
	fn := p.answers[model]
	p.mu.Unlock()
	if fn == nil {
		return "", fmt.Errorf("404 model %s not found", model)
	}
	return fn(ctx)
}

func (p *scriptedProvider) Calls() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.calls...)
}

func ok(text string) func(context.Context) (string, error) {
	return func(context.Context) (string, error) { return text, nil }
}

func fail(err error) func(context.Context) (string, error) {
	return func(context.Context) (string, error) { return "", err }
}

func TestGenerate_OrdersByPriorityStable(t *testing.T) {
	p := &scriptedProvider{answers: map[string]func(context.Context) (string, error){
		"d": ok("from d"),
	}}
	o := New(p, Options{AttemptTimeout: time.Second})

	res, err := o.Generate(context.Background(), "hi", []domain.ModelCandidate{
		{Name: "d", Priority: 3},
		{Name: "b", Priority: 1},
		{Name: "c", Priority: 2},
		{Name: "a", Priority: 1},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"b", "a", "c", "d"}, p.Calls())
	assert.Equal(t, "from d", res.Text)
	assert.Equal(t, "d", res.Model)
	require.Len(t, res.Attempts, 4)
	assert.Equal(t, "not_found", res.Attempts[0].Kind)
	assert.Empty(t, res.Attempts[3].Err)
}

func TestGenerate_EveryKindFallsThrough(t *testing.T) {
	p := &scriptedProvider{answers: map[string]func(context.Context) (string, error){
		"m1": fail(domain.ErrUpstreamRateLimit),
		"m2": fail(errors.New("Error 429, Message: Quota exceeded for metric")),
		"m3": fail(errors.New("socket hang up")),
		"m4": ok("finally"),
	}}
	o := New(p, Options{AttemptTimeout: time.Second})

	res, err := o.Generate(context.Background(), "q", []domain.ModelCandidate{
		{Name: "m1", Priority: 1}, {Name: "m2", Priority: 2}, {Name: "m3", Priority: 3}, {Name: "m4", Priority: 4},
	})
	require.NoError(t, err)
	assert.Equal(t, "finally", res.Text)
	kinds := []string{res.Attempts[0].Kind, res.Attempts[1].Kind, res.Attempts[2].Kind}
	assert.Equal(t, []string{"rate_limited", "quota_exceeded", "other"}, kinds)
}

func TestGenerate_AllFailWrapsLastKind(t *testing.T) {
	p := &scriptedProvider{answers: map[string]func(context.Context) (string, error){
		"m1": fail(errors.New("boom")),
		"m2": fail(errors.New("Error 429: resource exhausted")),
	}}
	o := New(p, Options{AttemptTimeout: time.Second})

	res, err := o.Generate(context.Background(), "q", []domain.ModelCandidate{{Name: "m1", Priority: 1}, {Name: "m2", Priority: 2}})
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrAllModelsFailed)
	assert.ErrorIs(t, err, domain.ErrQuotaExceeded)
	assert.Len(t, res.Attempts, 2)
	assert.Empty(t, res.Text)
}

func TestGenerate_TimeoutDiscardsLateAnswer(t *testing.T) {
	p := &scriptedProvider{answers: map[string]func(context.Context) (string, error){
		"slow": func(context.Context) (string, error) {
			time.Sleep(200 * time.Millisecond)
			return "too late", nil
		},
		"fast": ok("on time"),
	}}
	o := New(p, Options{AttemptTimeout: 20 * time.Millisecond})

	res, err := o.Generate(context.Background(), "q", []domain.ModelCandidate{{Name: "slow", Priority: 1}, {Name: "fast", Priority: 2}})
	require.NoError(t, err)
	assert.Equal(t, "on time", res.Text)
	assert.Equal(t, "timeout", res.Attempts[0].Kind)
}

func TestGenerate_SingleCandidateTimeout(t *testing.T) {
	p := &scriptedProvider{answers: map[string]func(context.Context) (string, error){
		"slow": func(ctx context.Context) (string, error) {
			<-ctx.Done()
			return "", ctx.Err()
		},
	}}
	o := New(p, Options{AttemptTimeout: 10 * time.Millisecond})

	_, err := o.Generate(context.Background(), "q", []domain.ModelCandidate{{Name: "slow"}})
	assert.ErrorIs(t, err, domain.ErrAllModelsFailed)
	assert.ErrorIs(t, err, domain.ErrUpstreamTimeout)
}

func TestGenerate_NoCandidates(t *testing.T) {
	o := New(&scriptedProvider{}, Options{})
	_, err := o.Generate(context.Background(), "q", nil)
	assert.ErrorIs(t, err, domain.ErrInvalidArgument)
}

func TestGenerate_EmptyTextIsFailure(t *testing.T) {
	p := &scriptedProvider{answers: map[string]func(context.Context) (string, error){
		"empty": ok(""),
		"full":  ok("text"),
	}}
	o := New(p, Options{AttemptTimeout: time.Second})
	res, err := o.Generate(context.Background(), "q", []domain.ModelCandidate{{Name: "empty", Priority: 1}, {Name: "full", Priority: 2}})
	require.NoError(t, err)
	assert.Equal(t, "full", res.Model)
}

func TestGenerateDecoded_DecodeFailureFallsBack(t *testing.T) {
	p := &scriptedProvider{answers: map[string]func(context.Context) (string, error){
		"m1": ok("not json"),
		"m2": ok(`{"value": 7}`),
	}}
	o := New(p, Options{AttemptTimeout: time.Second})

	var out struct {
		Value int `json:"value"`
	}
	res, err := o.GenerateDecoded(context.Background(), "q",
		[]domain.ModelCandidate{{Name: "m1", Priority: 1}, {Name: "m2", Priority: 2}},
		func(s string) error { return json.Unmarshal([]byte(s), &out) })
	require.NoError(t, err)
	assert.Equal(t, "m2", res.Model)
	assert.Equal(t, 7, out.Value)
	assert.Contains(t, res.Attempts[0].Err, "schema invalid")
}

func TestGenerateDecoded_AllDecodeFailures(t *testing.T) {
	p := &scriptedProvider{answers: map[string]func(context.Context) (string, error){"m1": ok("nope")}}
	o := New(p, Options{AttemptTimeout: time.Second})
	_, err := o.GenerateDecoded(context.Background(), "q", []domain.ModelCandidate{{Name: "m1"}},
		func(string) error { return errors.New("bad shape") })
	assert.ErrorIs(t, err, domain.ErrAllModelsFailed)
	assert.ErrorIs(t, err, domain.ErrSchemaInvalid)
}

func TestWithRunner_WrapsEveryAttempt(t *testing.T) {
	p := &scriptedProvider{answers: map[string]func(context.Context) (string, error){"m2": ok("yes")}}
	var runs int
	o := New(p, Options{AttemptTimeout: time.Second}).WithRunner(func(ctx context.Context, call func(context.Context) (string, error)) (string, error) {
		runs++
		return call(ctx)
	})
	_, err := o.Generate(context.Background(), "q", []domain.ModelCandidate{{Name: "m1", Priority: 1}, {Name: "m2", Priority: 2}})
	require.NoError(t, err)
	assert.Equal(t, 2, runs)
}

func TestGenerate_CooldownSkipsLimitedModel(t *testing.T) {
	p := &scriptedProvider{answers: map[string]func(context.Context) (string, error){
		"m1": fail(domain.ErrUpstreamRateLimit),
		"m2": ok("second"),
	}}
	o := New(p, Options{AttemptTimeout: time.Second, ModelCooldown: time.Minute})
	cands := []domain.ModelCandidate{{Name: "m1", Priority: 1}, {Name: "m2", Priority: 2}}

	_, err := o.Generate(context.Background(), "q", cands)
	require.NoError(t, err)
	res, err := o.Generate(context.Background(), "q", cands)
	require.NoError(t, err)

	assert.Equal(t, []string{"m1", "m2", "m2"}, p.Calls())
	assert.True(t, res.Attempts[0].Skipped)
	assert.Equal(t, []string{"m1"}, o.Cooldown().Blocked())
}

func TestGenerate_CooldownNeverSkipsLastCandidate(t *testing.T) {
	p := &scriptedProvider{answers: map[string]func(context.Context) (string, error){
		"only": fail(domain.ErrQuotaExceeded),
	}}
	o := New(p, Options{AttemptTimeout: time.Second, ModelCooldown: time.Minute})
	cands := []domain.ModelCandidate{{Name: "only"}}

	_, _ = o.Generate(context.Background(), "q", cands)
	_, err := o.Generate(context.Background(), "q", cands)
	assert.ErrorIs(t, err, domain.ErrQuotaExceeded)
	assert.Equal(t, []string{"only", "only"}, p.Calls())
}

func TestGenerate_CancelledContextStops(t *testing.T) {
	p := &scriptedProvider{answers: map[string]func(context.Context) (string, error){"m1": ok("x")}}
	o := New(p, Options{})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := o.Generate(ctx, "q", []domain.ModelCandidate{{Name: "m1"}})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, p.Calls())
}
