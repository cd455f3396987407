package ratelimiter

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// GateConfig bounds provider calls across every process sharing one Redis.
// Zero values follow the request queue defaults; a negative MinDelay
// disables spacing.
type GateConfig struct {
	// Prefix namespaces the gate keys.
	Prefix            string
	RequestsPerMinute int
	MinDelay          time.Duration
	Window            time.Duration
	// LockTTL caps how long a crashed holder can keep the slot.
	LockTTL time.Duration
	// PollInterval bounds the wait reported while another process holds the slot.
	PollInterval time.Duration
}

func (c GateConfig) withDefaults() GateConfig {
	if c.Prefix == "" {
		c.Prefix = "insightify:gateway"
	}
	if c.RequestsPerMinute <= 0 {
		c.RequestsPerMinute = 12
	}
	if c.MinDelay < 0 {
		c.MinDelay = 0
	} else if c.MinDelay == 0 {
		c.MinDelay = 2 * time.Second
	}
	if c.Window <= 0 {
		c.Window = time.Minute
	}
	if c.LockTTL <= 0 {
		c.LockTTL = 5 * time.Minute
	}
	if c.PollInterval <= 0 {
		c.PollInterval = 250 * time.Millisecond
	}
	return c
}

// ProviderGate lets one provider call run at a time across processes and
// keeps a sliding log of call starts so the per-minute budget and spacing
// hold system-wide.
type ProviderGate struct {
	redis  redis.UniversalClient
	cfg    GateConfig
	take   *redis.Script
	free   *redis.Script
	now    func() time.Time
	tokens func() string
}

// NewProviderGate returns nil when rdb is nil.
func NewProviderGate(rdb redis.UniversalClient, cfg GateConfig) *ProviderGate {
	if rdb == nil {
		return nil
	}
	return &ProviderGate{
		redis:  rdb,
		cfg:    cfg.withDefaults(),
		take:   redis.NewScript(luaGateAcquireScript),
		free:   redis.NewScript(luaGateReleaseScript),
		now:    time.Now,
		tokens: uuid.NewString,
	}
}

// The script returns 0 when the slot was taken, the wait in ms when the
// budget or spacing blocks, and minus the lock's remaining ttl when another
// process holds the slot.
// KEYS: starts zset, lock, last start.
// ARGV: now, window, budget, min delay, token, lock ttl (times in ms).
const luaGateAcquireScript = `
local now = tonumber(ARGV[1])
local window = tonumber(ARGV[2])
local budget = tonumber(ARGV[3])
local min_delay = tonumber(ARGV[4])

local held = redis.call("PTTL", KEYS[2])
if held ~= -2 then
  if held < 1 then held = 1 end
  return -held
end

redis.call("ZREMRANGEBYSCORE", KEYS[1], "-inf", now - window)
if redis.call("ZCARD", KEYS[1]) >= budget then
  local oldest = redis.call("ZRANGE", KEYS[1], 0, 0, "WITHSCORES")
  local wait = tonumber(oldest[2]) + window - now
  if wait < 1 then wait = 1 end
  return wait
end

local last = redis.call("GET", KEYS[3])
if last and now - tonumber(last) < min_delay then
  return min_delay - (now - tonumber(last))
end

redis.call("ZADD", KEYS[1], now, ARGV[5])
redis.call("PEXPIRE", KEYS[1], window)
redis.call("SET", KEYS[3], now, "PX", window)
redis.call("SET", KEYS[2], ARGV[5], "PX", ARGV[6])
return 0
`

const luaGateReleaseScript = `
if redis.call("GET", KEYS[1]) == ARGV[1] then
  return redis.call("DEL", KEYS[1])
end
return 0
`

func (g *ProviderGate) keys() []string {
	return []string{g.cfg.Prefix + ":starts", g.cfg.Prefix + ":lock", g.cfg.Prefix + ":last"}
}

// Acquire takes the shared slot. A positive wait means the slot is busy or
// the budget is spent; release is nil in that case.
func (g *ProviderGate) Acquire(ctx context.Context) (release func(), wait time.Duration, err error) {
	if g == nil {
		return func() {}, 0, nil
	}
	token := g.tokens()
	keys := g.keys()
	ms, err := g.take.Run(ctx, g.redis, keys,
		g.now().UnixMilli(),
		g.cfg.Window.Milliseconds(),
		g.cfg.RequestsPerMinute,
		g.cfg.MinDelay.Milliseconds(),
		token,
		g.cfg.LockTTL.Milliseconds(),
	).Int64()
	if err != nil {
		return nil, 0, fmt.Errorf("op=ratelimiter.gate_acquire: %w", err)
	}
	switch {
	case ms < 0:
		return nil, min(time.Duration(-ms)*time.Millisecond, g.cfg.PollInterval), nil
	case ms > 0:
		return nil, time.Duration(ms) * time.Millisecond, nil
	}
	return func() {
		// The slot outlives a cancelled request context.
		rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 2*time.Second)
		defer cancel()
		_ = g.free.Run(rctx, g.redis, keys[1:2], token).Err()
	}, 0, nil
}
