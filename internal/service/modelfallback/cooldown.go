package modelfallback

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/Eagleeye1811/insightify-sub000/internal/observability"
)

// cooldownEntry tracks one model that recently reported a rate or quota limit.
type cooldownEntry struct {
	Model        string
	BlockedUntil time.Time
	FailureCount int
	LastFailure  time.Time
}

// Cooldown skips models for a fixed duration after a rate or quota failure.
// A zero duration disables it.
type Cooldown struct {
	mu       sync.RWMutex
	entries  map[string]*cooldownEntry
	duration time.Duration
	now      func() time.Time
}

// NewCooldown creates a Cooldown. It returns nil when d is not positive, and a
// nil *Cooldown never blocks anything.
func NewCooldown(d time.Duration) *Cooldown {
	if d <= 0 {
		return nil
	}
	return &Cooldown{entries: make(map[string]*cooldownEntry), duration: d, now: time.Now}
}

// IsBlocked reports whether model is cooling down.
func (c *Cooldown) IsBlocked(model string) bool {
	if c == nil {
		return false
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.entries[model]
	return ok && c.now().Before(e.BlockedUntil)
}

// RecordLimit blocks model for the configured duration.
func (c *Cooldown) RecordLimit(ctx context.Context, model string) {
	if c == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[model]
	if !ok {
		e = &cooldownEntry{Model: model}
		c.entries[model] = e
	}
	now := c.now()
	e.FailureCount++
	e.LastFailure = now
	e.BlockedUntil = now.Add(c.duration)
	observability.LoggerFromContext(ctx).Warn("model cooling down after provider limit",
		slog.String("model", model),
		slog.Int("failure_count", e.FailureCount),
		slog.Time("blocked_until", e.BlockedUntil))
}

// RecordSuccess clears any cooldown for model.
func (c *Cooldown) RecordSuccess(ctx context.Context, model string) {
	if c == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if e, ok := c.entries[model]; ok && e.FailureCount > 0 {
		observability.LoggerFromContext(ctx).Info("model cooldown cleared after success",
			slog.String("model", model),
			slog.Int("previous_failures", e.FailureCount))
	}
	delete(c.entries, model)
}

// Blocked returns the models currently cooling down, sorted, and drops
// expired entries.
func (c *Cooldown) Blocked() []string {
	if c == nil {
		return nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	now := c.now()
	var out []string
	for model, e := range c.entries {
		if now.Before(e.BlockedUntil) {
			out = append(out, model)
			continue
		}
		delete(c.entries, model)
	}
	sort.Strings(out)
	return out
}
