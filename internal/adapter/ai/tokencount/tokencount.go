// Package tokencount estimates prompt sizes for provider calls.
//
// Gemini does not publish a local tokenizer, so counts use tiktoken's
// cl100k_base encoding as an approximation. When the encoding cannot be
// loaded the count falls back to roughly four bytes per token.
package tokencount

import (
	"log/slog"
	"strings"
	"sync"

	tiktoken "github.com/pkoukk/tiktoken-go"
)

const defaultEncoding = "cl100k_base"

// Usage is the estimated size of one provider exchange.
type Usage struct {
	PromptTokens     int    `json:"promptTokens"`
	CompletionTokens int    `json:"completionTokens"`
	TotalTokens      int    `json:"totalTokens"`
	Model            string `json:"model"`
}

// Counter caches encodings per model family. It is safe for concurrent use.
type Counter struct {
	mu            sync.RWMutex
	encodingCache map[string]*tiktoken.Tiktoken
	failed        map[string]bool
}

// NewCounter creates a Counter.
func NewCounter() *Counter {
	return &Counter{
		encodingCache: make(map[string]*tiktoken.Tiktoken),
		failed:        make(map[string]bool),
	}
}

// DefaultCounter is shared by callers that do not need their own cache.
var DefaultCounter = NewCounter()

func (c *Counter) encoding(model string) *tiktoken.Tiktoken {
	name := encodingName(model)

	c.mu.RLock()
	enc, ok := c.encodingCache[name]
	failed := c.failed[name]
	c.mu.RUnlock()
	if ok || failed {
		return enc
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if enc, ok := c.encodingCache[name]; ok {
		return enc
	}
	enc, err := tiktoken.GetEncoding(name)
	if err != nil {
		// remembered so an offline host does not retry the download per call
		slog.Debug("token encoding unavailable, using estimate",
			slog.String("model", model),
			slog.String("encoding", name),
			slog.Any("error", err))
		c.failed[name] = true
		return nil
	}
	c.encodingCache[name] = enc
	return enc
}

// encodingName maps a model id to a tiktoken encoding.
func encodingName(model string) string {
	model = strings.ToLower(model)
	if i := strings.LastIndex(model, "/"); i >= 0 {
		model = model[i+1:]
	}
	switch {
	case strings.HasPrefix(model, "gpt-4o"), strings.HasPrefix(model, "o1"):
		return "o200k_base"
	default:
		// gemini, gemma and everything else
		return defaultEncoding
	}
}

// Count returns the token estimate for text. It never fails.
func (c *Counter) Count(text, model string) int {
	if text == "" {
		return 0
	}
	if enc := c.encoding(model); enc != nil {
		return len(enc.Encode(text, nil, nil))
	}
	return estimate(text)
}

func estimate(text string) int {
	n := len(text) / 4
	if n == 0 {
		return 1
	}
	return n
}

// Usage estimates a full prompt and completion pair.
func (c *Counter) Usage(prompt, completion, model string) Usage {
	p := c.Count(prompt, model)
	r := c.Count(completion, model)
	return Usage{PromptTokens: p, CompletionTokens: r, TotalTokens: p + r, Model: model}
}

// Count uses DefaultCounter.
func Count(text, model string) int { return DefaultCounter.Count(text, model) }
