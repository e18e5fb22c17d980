package cache

import (
	"context"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

type memEntry struct {
	value   int64
	expires time.Time
}

// Memory is a bounded in-process store. The LRU's own TTL is the upper bound;
// each entry also records the ttl it was remembered with.
type Memory struct {
	lru *expirable.LRU[string, memEntry]
	now func() time.Time
}

func NewMemory(size int, maxTTL time.Duration) *Memory {
	if size <= 0 {
		size = 1024
	}
	return &Memory{
		lru: expirable.NewLRU[string, memEntry](size, nil, maxTTL),
		now: time.Now,
	}
}

func (m *Memory) Remember(ctx context.Context, key string, ttl time.Duration, fn func(ctx context.Context) (int64, error)) (int64, error) {
	if e, ok := m.lru.Get(key); ok && m.now().Before(e.expires) {
		return e.value, nil
	}
	n, err := fn(ctx)
	if err != nil {
		return 0, err
	}
	m.lru.Add(key, memEntry{value: n, expires: m.now().Add(ttl)})
	return n, nil
}

func (m *Memory) Delete(_ context.Context, key string) error {
	m.lru.Remove(key)
	return nil
}
