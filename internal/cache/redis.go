package cache

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Redis stores values as decimal strings under prefix:key.
type Redis struct {
	rdb    *redis.Client
	prefix string
	log    *zap.Logger
}

func NewRedis(rdb *redis.Client, prefix string, log *zap.Logger) *Redis {
	if log == nil {
		log = zap.NewNop()
	}
	return &Redis{rdb: rdb, prefix: prefix, log: log}
}

func (c *Redis) key(k string) string {
	if c.prefix == "" {
		return k
	}
	return c.prefix + ":" + k
}

// Remember treats Redis failures as a miss so reads keep working when the
// cache is degraded.
func (c *Redis) Remember(ctx context.Context, key string, ttl time.Duration, fn func(ctx context.Context) (int64, error)) (int64, error) {
	full := c.key(key)
	s, err := c.rdb.Get(ctx, full).Result()
	switch {
	case err == nil:
		if n, perr := strconv.ParseInt(s, 10, 64); perr == nil {
			return n, nil
		}
	case !errors.Is(err, redis.Nil):
		c.log.Warn("cache get failed", zap.String("key", full), zap.Error(err))
	}

	n, err := fn(ctx)
	if err != nil {
		return 0, err
	}
	if err := c.rdb.Set(ctx, full, strconv.FormatInt(n, 10), ttl).Err(); err != nil {
		c.log.Warn("cache set failed", zap.String("key", full), zap.Error(err))
	}
	return n, nil
}

func (c *Redis) Delete(ctx context.Context, key string) error {
	return c.rdb.Del(ctx, c.key(key)).Err()
}
