package config // package config loads application configuration from environment variables

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/iliyamo/restkit/internal/apperr"
)

// Config holds all runtime configuration values. Each field corresponds to
// an environment variable; durations are resolved here so consumers never
// re-parse strings.
type Config struct {
	AppName     string // APP_NAME, used in email subjects and site info
	Env         string // APP_ENV (e.g. "development", "production")
	Debug       bool   // APP_DEBUG exposes reset tokens in responses
	Version     string // APP_VERSION
	Port        string // APP_PORT
	URL         string // APP_URL
	FrontendURL string // FRONTEND_URL, base of password reset links
	APIPrefix   string // API_PREFIX, where the framework router is mounted
	LogLevel    string // LOG_LEVEL

	DBDriver string // DB_DRIVER: mysql | sqlite3
	DBUser   string // mysql user
	DBPass   string // mysql password (empty allowed)
	DBHost   string // mysql host
	DBPort   string // mysql port
	DBName   string // mysql database
	DBPath   string // sqlite3 file path or DSN

	JWTSecret    string        // JWT_SECRET signs access tokens
	JWTAlgorithm string        // JWT_ALGORITHM: HS256 | HS384 | HS512
	AccessTTL    time.Duration // JWT_EXPIRATION seconds
	RefreshTTL   time.Duration // JWT_REFRESH_EXPIRATION seconds, remember tokens
	BcryptCost   int           // BCRYPT_COST

	TimestampFormat  string        // TIMESTAMP_FORMAT: datetime | unix
	PasswordResetTTL time.Duration // PASSWORD_RESET_TTL
}

// loader collects every missing or malformed variable so a misconfigured
// deployment reports all problems at once.
type loader struct {
	missing []string
	invalid []string
}

func (l *loader) must(key string) string {
	v, ok := os.LookupEnv(key)
	if !ok || strings.TrimSpace(v) == "" {
		l.missing = append(l.missing, key)
		return ""
	}
	return v
}

func (l *loader) seconds(key string, def int) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return time.Duration(def) * time.Second
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		l.invalid = append(l.invalid, key)
		return time.Duration(def) * time.Second
	}
	return time.Duration(n) * time.Second
}

func (l *loader) oneOf(key, def string, allowed ...string) string {
	v := envStr(key, def)
	for _, a := range allowed {
		if strings.EqualFold(v, a) {
			return a
		}
	}
	l.invalid = append(l.invalid, key)
	return def
}

// Load reads configuration values from environment variables. Missing
// required values or malformed ones yield a configuration failure that
// names every offending variable; callers treat it as fatal.
func Load() (Config, error) {
	l := &loader{}
	cfg := Config{
		AppName:     envStr("APP_NAME", "restkit"),
		Env:         envStr("APP_ENV", "production"),
		Debug:       envBool("APP_DEBUG", false),
		Version:     envStr("APP_VERSION", "1.0.0"),
		Port:        l.must("APP_PORT"),
		URL:         envStr("APP_URL", "http://localhost"),
		FrontendURL: strings.TrimRight(envStr("FRONTEND_URL", "http://localhost:3000"), "/"),
		APIPrefix:   envStr("API_PREFIX", "/api"),
		LogLevel:    envStr("LOG_LEVEL", "info"),

		DBDriver: l.oneOf("DB_DRIVER", "mysql", "mysql", "sqlite3"),
		DBPass:   os.Getenv("DB_PASS"),

		JWTSecret:    l.must("JWT_SECRET"),
		JWTAlgorithm: l.oneOf("JWT_ALGORITHM", "HS256", "HS256", "HS384", "HS512"),
		AccessTTL:    l.seconds("JWT_EXPIRATION", 3600),
		RefreshTTL:   l.seconds("JWT_REFRESH_EXPIRATION", 604800),
		BcryptCost:   envInt("BCRYPT_COST", 12),

		TimestampFormat:  l.oneOf("TIMESTAMP_FORMAT", "datetime", "datetime", "unix"),
		PasswordResetTTL: envDur("PASSWORD_RESET_TTL", time.Hour),
	}

	switch cfg.DBDriver {
	case "sqlite3":
		cfg.DBPath = l.must("DB_PATH")
	default:
		cfg.DBUser = l.must("DB_USER")
		cfg.DBHost = l.must("DB_HOST")
		cfg.DBPort = l.must("DB_PORT")
		cfg.DBName = l.must("DB_NAME")
	}

	if len(l.missing) > 0 {
		return cfg, apperr.Missing(l.missing)
	}
	if len(l.invalid) > 0 {
		return cfg, apperr.Configuration("invalid env vars: %s", strings.Join(l.invalid, ", "))
	}
	return cfg, nil
}
