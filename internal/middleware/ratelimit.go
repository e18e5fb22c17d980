package middleware

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/iliyamo/restkit/internal/apperr"
	"github.com/iliyamo/restkit/internal/config"
	"github.com/iliyamo/restkit/internal/router"
)

// bucketScript refills the bucket by whole intervals, takes one token when
// available and returns {allowed, remaining, retry_after_ms}.
var bucketScript = redis.NewScript(`
	local key = KEYS[1]
	local now_ms = tonumber(ARGV[1])
	local capacity = tonumber(ARGV[2])
	local refill_tokens = tonumber(ARGV[3])
	local interval_ms = tonumber(ARGV[4])
	local ttl_seconds = tonumber(ARGV[5])

	local state = redis.call('HMGET', key, 'tokens', 'last_refill_ms')
	local tokens = tonumber(state[1])
	local last_refill = tonumber(state[2])

	if tokens == nil or last_refill == nil then
		tokens = capacity
		last_refill = now_ms
	end

	if interval_ms > 0 and refill_tokens > 0 then
		local elapsed = math.max(0, now_ms - last_refill)
		local intervals = math.floor(elapsed / interval_ms)
		if intervals > 0 then
			tokens = math.min(capacity, tokens + (intervals * refill_tokens))
			last_refill = last_refill + (intervals * interval_ms)
		end
	end

	local allowed = 0
	local retry_after_ms = 0
	if tokens > 0 then
		allowed = 1
		tokens = tokens - 1
	else
		local until_next = interval_ms - (now_ms - last_refill)
		if until_next < 0 then until_next = 0 end
		retry_after_ms = until_next
	end

	redis.call('HMSET', key, 'tokens', tokens, 'last_refill_ms', last_refill, 'capacity', capacity)
	redis.call('EXPIRE', key, ttl_seconds)

	return { allowed, tokens, retry_after_ms }
`)

type tokenBucket struct {
	cfg config.RateLimitConfig
	rdb *redis.Client
	log *zap.Logger
	now func() time.Time
}

// TokenBucket limits requests per key with a Redis token bucket. It is a
// pass-through when disabled or when rdb is nil, and fails open on Redis
// errors.
func TokenBucket(cfg config.RateLimitConfig, rdb *redis.Client, log *zap.Logger) router.Middleware {
	if log == nil {
		log = zap.NewNop()
	}
	return (&tokenBucket{cfg: cfg, rdb: rdb, log: log, now: time.Now}).middleware
}

func (b *tokenBucket) middleware(next router.HandlerFunc) router.HandlerFunc {
	if !b.cfg.Enabled || b.rdb == nil {
		return next
	}
	return func(req *router.Request) (any, error) {
		key := rateKey(b.cfg, req)
		args := []any{
			b.now().UnixMilli(),
			b.cfg.Capacity,
			b.cfg.RefillTokens,
			b.cfg.RefillInterval.Milliseconds(),
			int64(b.cfg.TTL / time.Second),
		}

		vals, err := bucketScript.Run(req.Context(), b.rdb, []string{key}, args...).Result()
		if err != nil {
			b.log.Warn("rate limit check failed", zap.String("key", key), zap.Error(err))
			return next(req)
		}
		arr, ok := vals.([]any)
		if !ok || len(arr) != 3 {
			b.log.Warn("unexpected rate limit result", zap.String("key", key), zap.Any("result", vals))
			return next(req)
		}
		allowed := asInt64(arr[0]) == 1
		remaining := asInt64(arr[1])
		retryMs := asInt64(arr[2])

		h := req.ResponseHeader()
		h.Set("X-RateLimit-Limit", strconv.Itoa(b.cfg.Capacity))
		h.Set("X-RateLimit-Remaining", strconv.FormatInt(remaining, 10))
		if b.cfg.Debug {
			h.Set("X-RateLimit-Key", key)
		}

		if !allowed {
			secs := int(math.Ceil(float64(retryMs) / 1000.0))
			if secs < 1 {
				secs = 1
			}
			h.Set("Retry-After", strconv.Itoa(secs))
			if b.cfg.Debug {
				b.log.Info("rate limited", zap.String("key", key), zap.Int64("retry_ms", retryMs))
			}
			return nil, apperr.RateLimited("Too many requests. Please try again later.")
		}
		return next(req)
	}
}

func asInt64(v any) int64 {
	switch t := v.(type) {
	case int64:
		return t
	case int:
		return int64(t)
	case float64:
		return int64(t)
	case string:
		if n, err := strconv.ParseInt(t, 10, 64); err == nil {
			return n
		}
	}
	return 0
}

// rateKey builds the bucket key from the configured strategy. Unknown
// strategies key on ip, user and route together.
func rateKey(cfg config.RateLimitConfig, req *router.Request) string {
	parts := []string{cfg.Prefix}
	ip := req.RemoteIP
	if ip == "" {
		ip = "unknown"
	}
	uid := principalKey(req)
	route := req.Method + " " + routePattern(req)

	switch strings.ToLower(cfg.KeyStrategy) {
	case "ip":
		parts = append(parts, "ip", ip)
	case "user":
		parts = append(parts, "user", uid)
	case "route":
		parts = append(parts, "route", route)
	case "ip_user":
		parts = append(parts, "ip", ip, "user", uid)
	case "ip_route":
		parts = append(parts, "ip", ip, "route", route)
	case "user_route":
		parts = append(parts, "user", uid, "route", route)
	default:
		parts = append(parts, "ip", ip, "user", uid, "route", route)
	}
	return strings.Join(parts, ":")
}

// principalKey is the authenticated user id, or "guest".
func principalKey(req *router.Request) string {
	if id := req.UserID(); id > 0 {
		return fmt.Sprint(id)
	}
	return "guest"
}

func routePattern(req *router.Request) string {
	if req.Route != nil {
		return req.Route.Pattern
	}
	return req.Path
}
