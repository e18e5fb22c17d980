// Package router matches requests against registered routes, runs the named
// middleware chain and normalizes whatever the handler returns into the
// JSON response envelope. Routes are matched in registration order.
package router

import (
	"net/http"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/iliyamo/restkit/internal/apperr"
)

// HandlerFunc returns a payload (any value, *Result, *Raw or nil) or a
// failure. Handlers never write responses themselves.
type HandlerFunc func(req *Request) (any, error)

// Middleware wraps the rest of the chain. Returning an error without
// calling next short-circuits the request.
type Middleware func(next HandlerFunc) HandlerFunc

// Route is one registered pattern. Middleware holds the resolved names,
// group middleware first.
type Route struct {
	Method     string
	Pattern    string
	Middleware []string

	handler  HandlerFunc
	segments []string
	chain    HandlerFunc
}

// RouteInfo describes a route for listings.
type RouteInfo struct {
	Method     string   `json:"method"`
	Path       string   `json:"path"`
	Middleware []string `json:"middleware,omitempty"`
}

// GroupOptions are merged into every route registered inside a group.
type GroupOptions struct {
	Prefix     string
	Middleware []string
}

// RouteGroup registers routes under a shared prefix and middleware list.
type RouteGroup struct {
	router     *Router
	prefix     string
	middleware []string
}

// Router owns the route table and the named middleware registry. Register
// everything before serving; the table is read-only afterwards.
type Router struct {
	*RouteGroup

	log     *zap.Logger
	routes  []*Route
	aliases map[string]func(args []string) Middleware

	once       sync.Once
	compileErr error
}

func New(log *zap.Logger) *Router {
	if log == nil {
		log = zap.NewNop()
	}
	rt := &Router{log: log, aliases: map[string]func([]string) Middleware{}}
	rt.RouteGroup = &RouteGroup{router: rt}
	return rt
}

// Alias names a middleware so routes can refer to it.
func (rt *Router) Alias(name string, mw Middleware) {
	rt.aliases[name] = func([]string) Middleware { return mw }
}

// AliasFunc names a parameterized middleware. A route naming "role:admin,editor"
// calls build with ["admin", "editor"].
func (rt *Router) AliasFunc(name string, build func(args []string) Middleware) {
	rt.aliases[name] = build
}

// Group registers routes inside fn with opts merged into each.
func (g *RouteGroup) Group(opts GroupOptions, fn func(g *RouteGroup)) {
	child := &RouteGroup{
		router:     g.router,
		prefix:     joinPath(g.prefix, opts.Prefix),
		middleware: append(append([]string(nil), g.middleware...), opts.Middleware...),
	}
	fn(child)
}

// Handle registers h for method and pattern. Pattern segments of the form
// {name} bind path parameters.
func (g *RouteGroup) Handle(method, pattern string, h HandlerFunc, middleware ...string) *Route {
	path := joinPath(g.prefix, pattern)
	r := &Route{
		Method:     strings.ToUpper(method),
		Pattern:    path,
		Middleware: append(append([]string(nil), g.middleware...), middleware...),
		handler:    h,
		segments:   split(path),
	}
	g.router.routes = append(g.router.routes, r)
	return r
}

func (g *RouteGroup) GET(p string, h HandlerFunc, mw ...string) *Route {
	return g.Handle(http.MethodGet, p, h, mw...)
}

func (g *RouteGroup) POST(p string, h HandlerFunc, mw ...string) *Route {
	return g.Handle(http.MethodPost, p, h, mw...)
}

func (g *RouteGroup) PUT(p string, h HandlerFunc, mw ...string) *Route {
	return g.Handle(http.MethodPut, p, h, mw...)
}

func (g *RouteGroup) PATCH(p string, h HandlerFunc, mw ...string) *Route {
	return g.Handle(http.MethodPatch, p, h, mw...)
}

func (g *RouteGroup) DELETE(p string, h HandlerFunc, mw ...string) *Route {
	return g.Handle(http.MethodDelete, p, h, mw...)
}

// Validate resolves every route's middleware and builds its chain. A route
// naming an unknown middleware is a configuration failure.
func (rt *Router) Validate() error {
	for _, r := range rt.routes {
		chain := r.handler
		for i := len(r.Middleware) - 1; i >= 0; i-- {
			name, args := parseMiddleware(r.Middleware[i])
			build, ok := rt.aliases[name]
			if !ok {
				return apperr.Configuration("route %s %s: unknown middleware %q", r.Method, r.Pattern, name)
			}
			chain = build(args)(chain)
		}
		r.chain = chain
	}
	return nil
}

// Match returns the first registered route for method and path.
func (rt *Router) Match(method, path string) (*Route, map[string]string, bool) {
	segs := split(path)
	method = strings.ToUpper(method)
	for _, r := range rt.routes {
		if r.Method != method {
			continue
		}
		if params, ok := r.match(segs); ok {
			return r, params, true
		}
	}
	return nil, nil, false
}

func (r *Route) match(segs []string) (map[string]string, bool) {
	if len(segs) != len(r.segments) {
		return nil, false
	}
	params := map[string]string{}
	for i, s := range r.segments {
		if name, ok := paramName(s); ok {
			params[name] = segs[i]
			continue
		}
		if s != segs[i] {
			return nil, false
		}
	}
	return params, true
}

// Routes lists the registered routes in registration order.
func (rt *Router) Routes() []RouteInfo {
	out := make([]RouteInfo, len(rt.routes))
	for i, r := range rt.routes {
		out[i] = RouteInfo{Method: r.Method, Path: r.Pattern, Middleware: r.Middleware}
	}
	return out
}

func parseMiddleware(s string) (string, []string) {
	name, rest, ok := strings.Cut(s, ":")
	if !ok {
		return name, nil
	}
	var args []string
	for _, a := range strings.Split(rest, ",") {
		if a = strings.TrimSpace(a); a != "" {
			args = append(args, a)
		}
	}
	return name, args
}

func paramName(seg string) (string, bool) {
	if len(seg) > 2 && seg[0] == '{' && seg[len(seg)-1] == '}' {
		return seg[1 : len(seg)-1], true
	}
	return "", false
}

func split(path string) []string {
	path = strings.Trim(path, "/")
	if path == "" {
		return nil
	}
	return strings.Split(path, "/")
}

func joinPath(prefix, p string) string {
	joined := strings.TrimRight(prefix, "/") + "/" + strings.TrimLeft(p, "/")
	if joined != "/" {
		joined = strings.TrimRight(joined, "/")
	}
	return joined
}
