package auth

import "context"

type principalKey struct{}

// WithPrincipal returns a context carrying the authenticated claims.
func WithPrincipal(ctx context.Context, c *Claims) context.Context {
	return context.WithValue(ctx, principalKey{}, c)
}

// PrincipalFrom returns the claims attached by the auth middleware, if any.
func PrincipalFrom(ctx context.Context) (*Claims, bool) {
	c, ok := ctx.Value(principalKey{}).(*Claims)
	return c, ok && c != nil
}

// UserID returns the authenticated user id or 0 for anonymous requests.
func UserID(ctx context.Context) int64 {
	if c, ok := PrincipalFrom(ctx); ok {
		return c.UserID
	}
	return 0
}
