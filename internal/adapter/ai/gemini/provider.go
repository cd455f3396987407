// Package gemini implements domain.Provider on the Gemini API.
package gemini

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"google.golang.org/genai"

	"github.com/Eagleeye1811/insightify-sub000/internal/domain"
)

// Generation holds sampling settings applied to every call. Zero fields are
// left to the model defaults.
type Generation struct {
	Temperature     float32
	TopK            float32
	TopP            float32
	MaxOutputTokens int32
}

// Options configures a Provider.
type Options struct {
	APIKey string
	// BaseURL overrides the API endpoint; tests point it at an httptest server.
	BaseURL    string
	Generation Generation
	HTTPClient *http.Client
}

// Provider calls Models.GenerateContent for a named model.
type Provider struct {
	client *genai.Client
	gen    *genai.GenerateContentConfig
}

var _ domain.Provider = (*Provider)(nil)

// New builds a Provider. The HTTP transport is traced with otelhttp unless a
// client is supplied.
func New(ctx context.Context, opts Options) (*Provider, error) {
	if strings.TrimSpace(opts.APIKey) == "" {
		return nil, fmt.Errorf("op=gemini.new: %w: api key required", domain.ErrInvalidArgument)
	}
	hc := opts.HTTPClient
	if hc == nil {
		hc = &http.Client{Transport: otelhttp.NewTransport(http.DefaultTransport)}
	}
	cfg := &genai.ClientConfig{
		APIKey:     opts.APIKey,
		Backend:    genai.BackendGeminiAPI,
		HTTPClient: hc,
	}
	if opts.BaseURL != "" {
		cfg.HTTPOptions = genai.HTTPOptions{BaseURL: opts.BaseURL}
	}
	client, err := genai.NewClient(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("op=gemini.new: %w", err)
	}
	return &Provider{client: client, gen: generationConfig(opts.Generation)}, nil
}

// WithGeneration returns a Provider sharing the client with other settings.
func (p *Provider) WithGeneration(g Generation) *Provider {
	return &Provider{client: p.client, gen: generationConfig(g)}
}

func generationConfig(g Generation) *genai.GenerateContentConfig {
	if g == (Generation{}) {
		return nil
	}
	cfg := &genai.GenerateContentConfig{MaxOutputTokens: g.MaxOutputTokens}
	if g.Temperature != 0 {
		cfg.Temperature = genai.Ptr(g.Temperature)
	}
	if g.TopK != 0 {
		cfg.TopK = genai.Ptr(g.TopK)
	}
	if g.TopP != 0 {
		cfg.TopP = genai.Ptr(g.TopP)
	}
	return cfg
}

// Generate sends prompt to model and returns the concatenated text parts.
func (p *Provider) Generate(ctx context.Context, model, prompt string) (string, error) {
	resp, err := p.client.Models.GenerateContent(ctx, model, genai.Text(prompt), p.gen)
	if err != nil {
		return "", fmt.Errorf("op=gemini.generate: %w", classify(err))
	}
	text := resp.Text()
	if strings.TrimSpace(text) == "" {
		return "", fmt.Errorf("op=gemini.generate: empty response from %s", model)
	}
	return text, nil
}

// classify tags API errors with the matching domain sentinel so the fallback
// loop can tell rate limits from quota exhaustion.
func classify(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %w", domain.ErrUpstreamTimeout, err)
	}
	var apiErr genai.APIError
	if !errors.As(err, &apiErr) {
		var ptr *genai.APIError
		if !errors.As(err, &ptr) || ptr == nil {
			return err
		}
		apiErr = *ptr
	}
	msg := strings.ToLower(apiErr.Message)
	switch {
	case apiErr.Code == http.StatusTooManyRequests && strings.Contains(msg, "quota"):
		return fmt.Errorf("%w: %w", domain.ErrQuotaExceeded, err)
	case apiErr.Code == http.StatusTooManyRequests:
		return fmt.Errorf("%w: %w", domain.ErrUpstreamRateLimit, err)
	case apiErr.Code == http.StatusNotFound:
		return fmt.Errorf("%w: %w", domain.ErrModelNotFound, err)
	case apiErr.Code == http.StatusRequestTimeout, apiErr.Code == http.StatusGatewayTimeout, apiErr.Status == "DEADLINE_EXCEEDED":
		return fmt.Errorf("%w: %w", domain.ErrUpstreamTimeout, err)
	default:
		return err
	}
}
