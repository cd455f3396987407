// Package respcache caches chat answers per user and normalized question.
package respcache

import (
	"context"
	"net/url"
	"strings"
	"sync/atomic"
	"time"

	"github.com/Eagleeye1811/insightify-sub000/internal/domain"
	"github.com/Eagleeye1811/insightify-sub000/pkg/textx"
)

const (
	DefaultTTL      = time.Hour
	DefaultCapacity = 1000
)

// Metadata describes how a cached answer was produced.
type Metadata struct {
	Intent   domain.Intent   `json:"intent"`
	HasData  bool            `json:"hasData"`
	DataUsed domain.DataUsed `json:"dataUsed"`
}

// Entry is one cached answer.
type Entry struct {
	Key      string    `json:"key"`
	Response string    `json:"response"`
	Metadata Metadata  `json:"metadata"`
	CachedAt time.Time `json:"cachedAt"`
}

// Stats reports cache size and lookup counters. HitRate is hits/(hits+misses).
type Stats struct {
	Keys    int     `json:"keys"`
	Hits    int64   `json:"hits"`
	Misses  int64   `json:"misses"`
	HitRate float64 `json:"hitRate"`
}

// Store is a response cache backend.
type Store interface {
	Get(ctx context.Context, key string) (Entry, bool, error)
	Put(ctx context.Context, key, response string, meta Metadata) error
	// Clear removes one user's entries, or every entry when userID is empty.
	Clear(ctx context.Context, userID string) (int, error)
	Stats(ctx context.Context) (Stats, error)
}

// Normalize lowercases, trims and collapses whitespace.
func Normalize(query string) string {
	return textx.NormalizeSpace(strings.ToLower(query))
}

// Key builds the cache key for a user's question. The user id is escaped so
// the first unescaped ':' always ends it.
func Key(query, userID string) string {
	return userPrefix(userID) + Normalize(query)
}

// userPrefix is the key prefix shared by every entry of userID.
func userPrefix(userID string) string {
	return url.QueryEscape(userID) + ":"
}

type counters struct {
	hits   atomic.Int64
	misses atomic.Int64
}

func (c *counters) stats(keys int) Stats {
	return newStats(keys, c.hits.Load(), c.misses.Load())
}

func newStats(keys int, hits, misses int64) Stats {
	s := Stats{Keys: keys, Hits: hits, Misses: misses}
	if total := hits + misses; total > 0 {
		s.HitRate = float64(hits) / float64(total)
	}
	return s
}
