package config

import (
	"strings"
	"time"
)

// CacheConfig covers the two caches the framework uses: the response cache
// middleware (Redis only) and the aggregate-count cache behind paginated
// reads. Count entries live in Redis when available and in an in-process
// LRU otherwise; CountLRUSize bounds that fallback.
type CacheConfig struct {
	Enabled      bool
	Methods      map[string]bool
	TTL          time.Duration
	KeyStrategy  string
	Prefix       string
	MaxBodyBytes int

	CountTTL     time.Duration
	CountPrefix  string
	CountLRUSize int
}

// LoadCacheConfig reads environment variables to build a CacheConfig.
// Defaults are used when variables are not set. All methods are upper-cased.
func LoadCacheConfig() CacheConfig {
	return CacheConfig{
		Enabled:      envBool("CACHE_ENABLED", true),
		Methods:      parseMethods(envStr("CACHE_METHODS", "GET")),
		TTL:          envDur("CACHE_TTL", 30*time.Second),
		KeyStrategy:  envStr("CACHE_KEY_STRATEGY", "route_query"),
		Prefix:       envStr("CACHE_PREFIX", "cache"),
		MaxBodyBytes: envInt("CACHE_MAX_BODY_BYTES", 1048576),

		CountTTL:     envDur("CACHE_COUNT_TTL", 5*time.Minute),
		CountPrefix:  envStr("CACHE_COUNT_PREFIX", "restkit"),
		CountLRUSize: envInt("CACHE_COUNT_LRU_SIZE", 1024),
	}
}

func parseMethods(s string) map[string]bool {
	m := map[string]bool{}
	for _, p := range strings.Split(s, ",") {
		p = strings.TrimSpace(strings.ToUpper(p))
		if p != "" {
			m[p] = true
		}
	}
	return m
}
