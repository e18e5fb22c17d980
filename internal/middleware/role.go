package middleware

import (
	"github.com/iliyamo/restkit/internal/apperr"
	"github.com/iliyamo/restkit/internal/router"
)

// RequireRole rejects principals whose role claim is not one of roles. It
// must run after Auth; an unauthenticated request is rejected with 401.
// Routes name it as "role:admin,editor".
func RequireRole(roles ...string) router.Middleware {
	allowed := make(map[string]bool, len(roles))
	for _, r := range roles {
		allowed[r] = true
	}
	return func(next router.HandlerFunc) router.HandlerFunc {
		return func(req *router.Request) (any, error) {
			if req.Principal == nil {
				return nil, apperr.Unauthorized(msgNoToken)
			}
			if !allowed[req.Principal.Role] {
				return nil, apperr.Forbidden("Forbidden - Insufficient permissions")
			}
			return next(req)
		}
	}
}
