package middleware

import (
	"context"
	"crypto/sha1"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/iliyamo/restkit/internal/config"
	"github.com/iliyamo/restkit/internal/router"
)

// cachedResult is the stored form of a successful handler result.
type cachedResult struct {
	Status  int             `json:"status"`
	Message string          `json:"message,omitempty"`
	Data    json.RawMessage `json:"data,omitempty"`
}

// cacheKey builds a stable key honoring prefix and strategy.
func cacheKey(cfg config.CacheConfig, req *router.Request) string {
	route := routePattern(req)
	query := req.Query.Encode()

	var parts []string
	switch strings.ToLower(cfg.KeyStrategy) {
	case "route":
		parts = []string{"route", route}
	case "method_route":
		parts = []string{"method", req.Method, "route", route}
	case "method_route_query":
		parts = []string{"method", req.Method, "route", route, "q", query}
	default: // "route_query"
		parts = []string{"route", route, "q", query}
	}
	// Params distinguish /users/1 from /users/2 under the same pattern.
	parts = append(parts, "p", req.Path)

	sum := sha1.Sum([]byte(strings.Join(parts, ":")))
	return fmt.Sprintf("%s:%x", cfg.Prefix, sum[:])
}

// encodeResult returns the cacheable form of v, or false for results that
// must not be cached (no content, raw responses, non-200 statuses).
func encodeResult(v any) ([]byte, bool) {
	entry := cachedResult{Status: http.StatusOK}
	var data any
	switch t := v.(type) {
	case nil, *router.Raw:
		return nil, false
	case *router.Result:
		if t.Status != 0 && t.Status != http.StatusOK {
			return nil, false
		}
		entry.Message = t.Message
		data = t.Data
	default:
		data = t
	}
	if data != nil {
		b, err := json.Marshal(data)
		if err != nil {
			return nil, false
		}
		entry.Data = b
	}
	out, err := json.Marshal(entry)
	return out, err == nil
}

func decodeResult(bs []byte) (*router.Result, bool) {
	var entry cachedResult
	if err := json.Unmarshal(bs, &entry); err != nil || entry.Status == 0 {
		return nil, false
	}
	res := &router.Result{Status: entry.Status, Message: entry.Message}
	if len(entry.Data) > 0 {
		res.Data = entry.Data
	}
	return res, true
}

// ResponseCache stores successful handler results in Redis and replays them
// for the configured methods until the TTL expires. Responses carry
// X-Cache: HIT or MISS. It is a pass-through when disabled or rdb is nil.
func ResponseCache(cfg config.CacheConfig, rdb *redis.Client, log *zap.Logger) router.Middleware {
	if log == nil {
		log = zap.NewNop()
	}
	ttl := cfg.TTL
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	maxBody := cfg.MaxBodyBytes

	return func(next router.HandlerFunc) router.HandlerFunc {
		if !cfg.Enabled || rdb == nil {
			return next
		}
		return func(req *router.Request) (any, error) {
			if !cfg.Methods[req.Method] {
				return next(req)
			}
			ctx := req.Context()
			key := cacheKey(cfg, req)

			if bs, err := rdb.Get(ctx, key).Bytes(); err == nil {
				if res, ok := decodeResult(bs); ok {
					req.ResponseHeader().Set("X-Cache", "HIT")
					return res, nil
				}
			} else if err != redis.Nil {
				log.Warn("response cache read failed", zap.String("key", key), zap.Error(err))
			}

			req.ResponseHeader().Set("X-Cache", "MISS")
			v, err := next(req)
			if err != nil {
				return v, err
			}
			if payload, ok := encodeResult(v); ok && (maxBody <= 0 || len(payload) <= maxBody) {
				if err := rdb.Set(context.WithoutCancel(ctx), key, payload, ttl).Err(); err != nil {
					log.Warn("response cache write failed", zap.String("key", key), zap.Error(err))
				}
			}
			return v, nil
		}
	}
}
