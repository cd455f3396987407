package respcache

import (
	"container/list"
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"

	obs "github.com/Eagleeye1811/insightify-sub000/internal/adapter/observability"
)

// Memory is an in-process Store with an absolute TTL and a capacity bound.
// When full, the entry set longest ago is evicted.
type Memory struct {
	mu       sync.Mutex
	ttl      time.Duration
	capacity int
	order    *list.List // front is the oldest set
	items    map[string]*list.Element
	now      func() time.Time
	counters
}

// NewMemory creates a Memory store; non-positive arguments take the defaults.
func NewMemory(ttl time.Duration, capacity int) *Memory {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Memory{
		ttl:      ttl,
		capacity: capacity,
		order:    list.New(),
		items:    make(map[string]*list.Element),
		now:      time.Now,
	}
}

func (m *Memory) Get(_ context.Context, key string) (Entry, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	el, ok := m.items[key]
	if ok {
		e := el.Value.(Entry)
		if m.now().Before(e.CachedAt.Add(m.ttl)) {
			m.hits.Add(1)
			obs.CacheEvent("hit")
			return e, true, nil
		}
		m.remove(el)
	}
	m.misses.Add(1)
	obs.CacheEvent("miss")
	return Entry{}, false, nil
}

func (m *Memory) Put(_ context.Context, key, response string, meta Metadata) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	e := Entry{Key: key, Response: response, Metadata: meta, CachedAt: m.now()}
	if el, ok := m.items[key]; ok {
		el.Value = e
		m.order.MoveToBack(el)
	} else {
		m.items[key] = m.order.PushBack(e)
	}
	for m.order.Len() > m.capacity {
		oldest := m.order.Front()
		slog.Debug("response cache evicting oldest entry", slog.String("key", oldest.Value.(Entry).Key))
		m.remove(oldest)
	}
	obs.CacheEvent("store")
	return nil
}

func (m *Memory) Clear(_ context.Context, userID string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if userID == "" {
		n := m.order.Len()
		m.order.Init()
		m.items = make(map[string]*list.Element)
		return n, nil
	}
	prefix := userPrefix(userID)
	n := 0
	for key, el := range m.items {
		if strings.HasPrefix(key, prefix) {
			m.remove(el)
			n++
		}
	}
	return n, nil
}

func (m *Memory) Stats(_ context.Context) (Stats, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.now()
	for el := m.order.Front(); el != nil; {
		next := el.Next()
		if !now.Before(el.Value.(Entry).CachedAt.Add(m.ttl)) {
			m.remove(el)
		}
		el = next
	}
	return m.counters.stats(m.order.Len()), nil
}

func (m *Memory) remove(el *list.Element) {
	delete(m.items, el.Value.(Entry).Key)
	m.order.Remove(el)
}
