package cache

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newRedisCache(t *testing.T) (*Redis, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return NewRedis(rdb, "test", nil), mr
}

func exerciseRemember(t *testing.T, c Cache) {
	t.Helper()
	ctx := context.Background()
	calls := 0
	fn := func(context.Context) (int64, error) {
		calls++
		return 42, nil
	}

	for i := 0; i < 3; i++ {
		n, err := c.Remember(ctx, "table_count:users", time.Minute, fn)
		if err != nil {
			t.Fatalf("Remember() error = %v", err)
		}
		if n != 42 {
			t.Fatalf("Remember() = %d, want 42", n)
		}
	}
	if calls != 1 {
		t.Errorf("fn called %d times, want 1", calls)
	}

	if err := c.Delete(ctx, "table_count:users"); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if _, err := c.Remember(ctx, "table_count:users", time.Minute, fn); err != nil {
		t.Fatalf("Remember() error = %v", err)
	}
	if calls != 2 {
		t.Errorf("fn called %d times after delete, want 2", calls)
	}

	boom := errors.New("boom")
	if _, err := c.Remember(ctx, "other", time.Minute, func(context.Context) (int64, error) { return 0, boom }); !errors.Is(err, boom) {
		t.Errorf("expected fn error to propagate, got %v", err)
	}
}

func TestRedis_Remember(t *testing.T) {
	c, mr := newRedisCache(t)
	exerciseRemember(t, c)

	if got, err := mr.Get("test:table_count:users"); err != nil || got != "42" {
		t.Errorf("stored value = %q, %v", got, err)
	}
	if ttl := mr.TTL("test:table_count:users"); ttl != time.Minute {
		t.Errorf("ttl = %v, want 1m", ttl)
	}
}

func TestRedis_ExpiresWithTTL(t *testing.T) {
	c, mr := newRedisCache(t)
	ctx := context.Background()
	calls := 0
	fn := func(context.Context) (int64, error) { calls++; return int64(calls), nil }

	_, _ = c.Remember(ctx, "k", time.Minute, fn)
	mr.FastForward(2 * time.Minute)
	n, _ := c.Remember(ctx, "k", time.Minute, fn)
	if n != 2 {
		t.Errorf("expected recomputation after expiry, got %d", n)
	}
}

func TestMemory_Remember(t *testing.T) {
	exerciseRemember(t, NewMemory(16, time.Hour))
}

func TestMemory_ExpiresWithTTL(t *testing.T) {
	m := NewMemory(16, time.Hour)
	base := time.Now()
	m.now = func() time.Time { return base }
	ctx := context.Background()
	calls := 0
	fn := func(context.Context) (int64, error) { calls++; return int64(calls), nil }

	_, _ = m.Remember(ctx, "k", time.Minute, fn)
	m.now = func() time.Time { return base.Add(30 * time.Second) }
	if n, _ := m.Remember(ctx, "k", time.Minute, fn); n != 1 {
		t.Errorf("expected cached value before ttl, got %d", n)
	}
	m.now = func() time.Time { return base.Add(2 * time.Minute) }
	if n, _ := m.Remember(ctx, "k", time.Minute, fn); n != 2 {
		t.Errorf("expected recomputation after ttl, got %d", n)
	}
}
