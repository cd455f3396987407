package respcache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Eagleeye1811/insightify-sub000/internal/domain"
)

func newRedisStore(t *testing.T, ttl time.Duration, capacity int) (*Redis, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return NewRedis(rdb, ttl, capacity), mr
}

func TestRedis_PutGet(t *testing.T) {
	ctx := context.Background()
	s, _ := newRedisStore(t, time.Hour, 10)
	meta := Metadata{Intent: domain.IntentStats, HasData: true, DataUsed: domain.DataUsed{Apps: 1, Reviews: 12}}

	_, ok, err := s.Get(ctx, "u:q")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, s.Put(ctx, "u:q", "answer", meta))
	e, ok, err := s.Get(ctx, "u:q")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "answer", e.Response)
	assert.Equal(t, meta, e.Metadata)

	st, err := s.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, st.Keys)
	assert.Equal(t, int64(1), st.Hits)
	assert.Equal(t, int64(1), st.Misses)
	assert.InDelta(t, 0.5, st.HitRate, 1e-9)
}

func TestRedis_TTL(t *testing.T) {
	ctx := context.Background()
	s, mr := newRedisStore(t, time.Minute, 10)
	require.NoError(t, s.Put(ctx, "u:q", "answer", Metadata{}))

	mr.FastForward(61 * time.Second)
	_, ok, err := s.Get(ctx, "u:q")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestRedis_EvictsAboveCapacity(t *testing.T) {
	ctx := context.Background()
	s, mr := newRedisStore(t, time.Hour, 2)
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	tick := 0
	s.now = func() time.Time { tick++; return base.Add(time.Duration(tick) * time.Second) }

	require.NoError(t, s.Put(ctx, "u:a", "1", Metadata{}))
	require.NoError(t, s.Put(ctx, "u:b", "2", Metadata{}))
	require.NoError(t, s.Put(ctx, "u:c", "3", Metadata{}))

	assert.False(t, mr.Exists(redisEntryPrefix+"u:a"))
	assert.True(t, mr.Exists(redisEntryPrefix+"u:b"))
	assert.True(t, mr.Exists(redisEntryPrefix+"u:c"))
}

func TestRedis_Clear(t *testing.T) {
	ctx := context.Background()
	s, mr := newRedisStore(t, time.Hour, 10)
	require.NoError(t, s.Put(ctx, Key("what are my bugs", "alice"), "a", Metadata{}))
	require.NoError(t, s.Put(ctx, Key("what are my features", "alice"), "a", Metadata{}))
	require.NoError(t, s.Put(ctx, Key("what are my bugs", "bob"), "a", Metadata{}))

	n, err := s.Clear(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.True(t, mr.Exists(redisEntryPrefix+Key("what are my bugs", "bob")))

	n, err = s.Clear(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.False(t, mr.Exists(redisIndexKey))
}

func TestRedis_ClearEscapesUserID(t *testing.T) {
	ctx := context.Background()
	s, mr := newRedisStore(t, time.Hour, 10)
	require.NoError(t, s.Put(ctx, Key("b:any crash reports", "a"), "for a", Metadata{}))
	require.NoError(t, s.Put(ctx, Key("any crash reports", "a:b"), "for a:b", Metadata{}))
	require.NoError(t, s.Put(ctx, Key("any crash reports", "a*"), "for a*", Metadata{}))

	n, err := s.Clear(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.True(t, mr.Exists(redisEntryPrefix+Key("any crash reports", "a:b")))
	assert.True(t, mr.Exists(redisEntryPrefix+Key("any crash reports", "a*")))

	n, err = s.Clear(ctx, "a*")
	require.NoError(t, err)
	assert.Equal(t, 1, n, "glob characters in the user id match literally")
	assert.True(t, mr.Exists(redisEntryPrefix+Key("any crash reports", "a:b")))
}

func TestRedis_GetError(t *testing.T) {
	s, mr := newRedisStore(t, time.Hour, 10)
	mr.Close()
	_, _, err := s.Get(context.Background(), "u:q")
	assert.Error(t, err)
}
