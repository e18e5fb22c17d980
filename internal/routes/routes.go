// Package routes is the route table of the bundled application.
package routes

import (
	"github.com/redis/go-redis/v9"

	"github.com/iliyamo/restkit/internal/config"
	"github.com/iliyamo/restkit/internal/handler"
	"github.com/iliyamo/restkit/internal/middleware"
	"github.com/iliyamo/restkit/internal/router"
)

// Deps carries the handler dependencies plus what the named middleware
// need. Redis may be nil; throttle and cache then pass requests through.
type Deps struct {
	handler.Deps
	DB        handler.Pinger
	Redis     *redis.Client
	RateLimit config.RateLimitConfig
	Cache     config.CacheConfig
}

// Register names the middleware and registers every route on rt.
func Register(rt *router.Router, d Deps) {
	rt.Alias("auth", middleware.Auth(d.Tokens))
	rt.AliasFunc("role", func(roles []string) router.Middleware { return middleware.RequireRole(roles...) })
	rt.Alias("throttle", middleware.TokenBucket(d.RateLimit, d.Redis, d.Log))
	rt.Alias("cache", middleware.ResponseCache(d.Cache, d.Redis, d.Log))

	site := handler.NewSiteHandler(d.Deps, d.DB, rt.Routes)
	authH := handler.NewAuthHandler(d.Deps)
	users := handler.NewUserHandler(d.Deps)

	// site & health
	rt.GET("/", site.Index)
	rt.GET("/health", site.Health)
	rt.Group(router.GroupOptions{Prefix: "/site"}, func(g *router.RouteGroup) {
		g.GET("/info", site.Info, "cache")
		g.GET("/endpoints", site.Endpoints)
	})

	// authentication
	rt.Group(router.GroupOptions{Prefix: "/auth"}, func(g *router.RouteGroup) {
		g.POST("/register", authH.Register, "throttle")
		g.POST("/login", authH.Login, "throttle")
		g.POST("/refresh", authH.Refresh)
		g.POST("/logout", authH.Logout)
		g.POST("/forgot-password", authH.ForgotPassword, "throttle")
		g.POST("/reset-password", authH.ResetPassword, "throttle")
		g.GET("/me", authH.Me, "auth")
	})

	// users resource
	rt.Group(router.GroupOptions{Prefix: "/users", Middleware: []string{"auth"}}, func(g *router.RouteGroup) {
		g.GET("/", users.Index)
		g.GET("/all", users.All, "role:admin")
		g.GET("/{id}", users.Show)
		g.POST("/", users.Store)
		g.PUT("/{id}", users.Update)
		g.DELETE("/{id}", users.Destroy)
	})
}
