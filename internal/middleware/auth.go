// Package middleware holds the framework middleware (authentication, roles,
// rate limiting, response caching) and the echo-level transport middleware
// for metrics and access logging.
package middleware

import (
	"strings"

	"github.com/iliyamo/restkit/internal/apperr"
	"github.com/iliyamo/restkit/internal/auth"
	"github.com/iliyamo/restkit/internal/router"
)

const (
	msgNoToken      = "Unauthorized - No token provided"
	msgInvalidToken = "Unauthorized - Invalid or expired token"
)

// Auth validates the Bearer access token and attaches its claims to the
// request. Handlers read the principal from req.Principal or the context.
func Auth(tokens *auth.TokenAuth) router.Middleware {
	return func(next router.HandlerFunc) router.HandlerFunc {
		return func(req *router.Request) (any, error) {
			raw, ok := bearer(req.Header.Get("Authorization"))
			if !ok {
				return nil, apperr.Unauthorized(msgNoToken)
			}
			claims, valid := tokens.Verify(raw)
			if !valid {
				return nil, apperr.Unauthorized(msgInvalidToken)
			}
			req.Authenticate(claims)
			return next(req)
		}
	}
}

func bearer(header string) (string, bool) {
	const prefix = "Bearer "
	if len(header) < len(prefix) || !strings.EqualFold(header[:len(prefix)], prefix) {
		return "", false
	}
	raw := strings.TrimSpace(header[len(prefix):])
	return raw, raw != ""
}
