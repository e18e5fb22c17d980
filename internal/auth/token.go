// Package auth issues and verifies signed bearer tokens, hashes passwords
// and carries the authenticated principal through a request context.
package auth

import (
	"errors"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/iliyamo/restkit/internal/apperr"
)

// Claims is the token payload. Registered claims carry iat, exp and sub.
type Claims struct {
	UserID int64  `json:"user_id"`
	Email  string `json:"email"`
	Role   string `json:"role"`
	Status string `json:"status,omitempty"`
	jwt.RegisteredClaims
}

// ActorID makes Claims usable as the audit actor for record writes.
func (c *Claims) ActorID() (int64, bool) {
	if c == nil || c.UserID == 0 {
		return 0, false
	}
	return c.UserID, true
}

// Config configures a TokenAuth.
type Config struct {
	Secret     string
	Algorithm  string // HS256 | HS384 | HS512
	TTL        time.Duration
	RefreshTTL time.Duration
}

// Token is a signed access token with its expiry.
type Token struct {
	Value     string
	ExpiresAt time.Time
}

// TokenAuth signs and verifies HMAC tokens with a single secret.
type TokenAuth struct {
	secret     []byte
	method     jwt.SigningMethod
	ttl        time.Duration
	refreshTTL time.Duration
	now        func() time.Time
}

var methods = map[string]jwt.SigningMethod{
	"HS256": jwt.SigningMethodHS256,
	"HS384": jwt.SigningMethodHS384,
	"HS512": jwt.SigningMethodHS512,
}

// New validates cfg. An empty secret or an unsupported algorithm is a
// configuration failure.
func New(cfg Config) (*TokenAuth, error) {
	if cfg.Secret == "" {
		return nil, apperr.Configuration("token secret is not configured")
	}
	alg := cfg.Algorithm
	if alg == "" {
		alg = "HS256"
	}
	m, ok := methods[alg]
	if !ok {
		return nil, apperr.Configuration("unsupported token algorithm %q", cfg.Algorithm)
	}
	if cfg.TTL <= 0 {
		cfg.TTL = time.Hour
	}
	if cfg.RefreshTTL <= 0 {
		cfg.RefreshTTL = 7 * 24 * time.Hour
	}
	return &TokenAuth{
		secret:     []byte(cfg.Secret),
		method:     m,
		ttl:        cfg.TTL,
		refreshTTL: cfg.RefreshTTL,
		now:        time.Now,
	}, nil
}

// SetClock replaces the time source; tests use it to exercise expiry.
func (a *TokenAuth) SetClock(now func() time.Time) { a.now = now }

// TTL is the default access token lifetime.
func (a *TokenAuth) TTL() time.Duration { return a.ttl }

// RefreshTTL is the lifetime of remember tokens.
func (a *TokenAuth) RefreshTTL() time.Duration { return a.refreshTTL }

// Generate signs claims, stamping iat, exp and sub. An optional ttl
// overrides the configured lifetime.
func (a *TokenAuth) Generate(claims Claims, ttl ...time.Duration) (Token, error) {
	life := a.ttl
	if len(ttl) > 0 && ttl[0] > 0 {
		life = ttl[0]
	}
	now := a.now().UTC()
	exp := now.Add(life)
	claims.IssuedAt = jwt.NewNumericDate(now)
	claims.ExpiresAt = jwt.NewNumericDate(exp)
	if claims.Subject == "" && claims.UserID != 0 {
		claims.Subject = strconv.FormatInt(claims.UserID, 10)
	}

	signed, err := jwt.NewWithClaims(a.method, claims).SignedString(a.secret)
	if err != nil {
		return Token{}, err
	}
	return Token{Value: signed, ExpiresAt: exp}, nil
}

// Verify returns the claims of a valid token. Malformed, tampered, expired
// or differently signed tokens yield false; Verify never errors.
func (a *TokenAuth) Verify(raw string) (*Claims, bool) {
	if raw == "" {
		return nil, false
	}
	claims := &Claims{}
	tok, err := jwt.ParseWithClaims(raw, claims, func(t *jwt.Token) (any, error) {
		if t.Method.Alg() != a.method.Alg() {
			return nil, errors.New("unexpected signing method")
		}
		return a.secret, nil
	},
		jwt.WithValidMethods([]string{a.method.Alg()}),
		jwt.WithTimeFunc(a.now),
		jwt.WithExpirationRequired(),
	)
	if err != nil || !tok.Valid {
		return nil, false
	}
	return claims, true
}
