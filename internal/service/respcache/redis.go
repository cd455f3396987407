package respcache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	obs "github.com/Eagleeye1811/insightify-sub000/internal/adapter/observability"
)

const (
	redisEntryPrefix = "respcache:entry:"
	redisIndexKey    = "respcache:index"
	redisStatsKey    = "respcache:stats"
)

// Redis is a Store shared by every gateway instance. Entries expire through
// SET EX; a sorted set indexed by set time bounds the number of entries.
type Redis struct {
	rdb      redis.UniversalClient
	ttl      time.Duration
	capacity int
	now      func() time.Time
}

// NewRedis creates a Redis store; non-positive arguments take the defaults.
func NewRedis(rdb redis.UniversalClient, ttl time.Duration, capacity int) *Redis {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Redis{rdb: rdb, ttl: ttl, capacity: capacity, now: time.Now}
}

func (r *Redis) Get(ctx context.Context, key string) (Entry, bool, error) {
	raw, err := r.rdb.Get(ctx, redisEntryPrefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		r.count(ctx, "misses")
		obs.CacheEvent("miss")
		return Entry{}, false, nil
	}
	if err != nil {
		return Entry{}, false, fmt.Errorf("op=respcache.redis.get: %w", err)
	}
	var e Entry
	if err := json.Unmarshal(raw, &e); err != nil {
		_ = r.rdb.Del(ctx, redisEntryPrefix+key).Err()
		r.count(ctx, "misses")
		obs.CacheEvent("miss")
		return Entry{}, false, nil
	}
	r.count(ctx, "hits")
	obs.CacheEvent("hit")
	return e, true, nil
}

func (r *Redis) Put(ctx context.Context, key, response string, meta Metadata) error {
	now := r.now()
	e := Entry{Key: key, Response: response, Metadata: meta, CachedAt: now}
	b, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("op=respcache.redis.put: %w", err)
	}
	pipe := r.rdb.TxPipeline()
	pipe.Set(ctx, redisEntryPrefix+key, b, r.ttl)
	pipe.ZAdd(ctx, redisIndexKey, redis.Z{Score: float64(now.UnixMilli()), Member: key})
	card := pipe.ZCard(ctx, redisIndexKey)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("op=respcache.redis.put: %w", err)
	}
	obs.CacheEvent("store")

	over := card.Val() - int64(r.capacity)
	if over <= 0 {
		return nil
	}
	evicted, err := r.rdb.ZPopMin(ctx, redisIndexKey, over).Result()
	if err != nil {
		return fmt.Errorf("op=respcache.redis.evict: %w", err)
	}
	keys := make([]string, 0, len(evicted))
	for _, z := range evicted {
		if m, ok := z.Member.(string); ok {
			keys = append(keys, redisEntryPrefix+m)
		}
	}
	if len(keys) > 0 {
		if err := r.rdb.Del(ctx, keys...).Err(); err != nil {
			return fmt.Errorf("op=respcache.redis.evict: %w", err)
		}
		slog.Debug("response cache evicted oldest entries", slog.Int("count", len(keys)))
	}
	return nil
}

func (r *Redis) Clear(ctx context.Context, userID string) (int, error) {
	pattern := redisEntryPrefix + "*"
	if userID != "" {
		pattern = redisEntryPrefix + escapeGlob(userPrefix(userID)) + "*"
	}
	n := 0
	iter := r.rdb.Scan(ctx, 0, pattern, 200).Iterator()
	batch := make([]string, 0, 200)
	members := make([]interface{}, 0, 200)
	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		pipe := r.rdb.Pipeline()
		pipe.Del(ctx, batch...)
		pipe.ZRem(ctx, redisIndexKey, members...)
		if _, err := pipe.Exec(ctx); err != nil {
			return err
		}
		n += len(batch)
		batch, members = batch[:0], members[:0]
		return nil
	}
	for iter.Next(ctx) {
		k := iter.Val()
		batch = append(batch, k)
		members = append(members, strings.TrimPrefix(k, redisEntryPrefix))
		if len(batch) == cap(batch) {
			if err := flush(); err != nil {
				return n, fmt.Errorf("op=respcache.redis.clear: %w", err)
			}
		}
	}
	if err := iter.Err(); err != nil {
		return n, fmt.Errorf("op=respcache.redis.clear: %w", err)
	}
	if err := flush(); err != nil {
		return n, fmt.Errorf("op=respcache.redis.clear: %w", err)
	}
	if userID == "" {
		if err := r.rdb.Del(ctx, redisIndexKey).Err(); err != nil {
			return n, fmt.Errorf("op=respcache.redis.clear: %w", err)
		}
	}
	return n, nil
}

func (r *Redis) Stats(ctx context.Context) (Stats, error) {
	cutoff := r.now().Add(-r.ttl).UnixMilli()
	pipe := r.rdb.Pipeline()
	pipe.ZRemRangeByScore(ctx, redisIndexKey, "-inf", "("+strconv.FormatInt(cutoff, 10))
	card := pipe.ZCard(ctx, redisIndexKey)
	counters := pipe.HMGet(ctx, redisStatsKey, "hits", "misses")
	if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, redis.Nil) {
		return Stats{}, fmt.Errorf("op=respcache.redis.stats: %w", err)
	}
	vals := counters.Val()
	return newStats(int(card.Val()), parseCounter(vals, 0), parseCounter(vals, 1)), nil
}

func (r *Redis) count(ctx context.Context, field string) {
	if err := r.rdb.HIncrBy(ctx, redisStatsKey, field, 1).Err(); err != nil {
		slog.Debug("response cache counter update failed", slog.Any("error", err))
	}
}

func parseCounter(vals []interface{}, i int) int64 {
	if i >= len(vals) || vals[i] == nil {
		return 0
	}
	s, ok := vals[i].(string)
	if !ok {
		return 0
	}
	n, _ := strconv.ParseInt(s, 10, 64)
	return n
}

func escapeGlob(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `*`, `\*`, `?`, `\?`, `[`, `\[`, `]`, `\]`)
	return r.Replace(s)
}
