package router

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/iliyamo/restkit/internal/auth"
)

// Request is the per-call state handed through the middleware chain.
type Request struct {
	Method   string
	Path     string
	Query    url.Values
	Body     map[string]any
	Params   map[string]string
	Header   http.Header
	RemoteIP string

	// Principal is set once by the auth middleware.
	Principal *auth.Claims
	// Route is the matched route; nil until dispatch.
	Route *Route

	ctx        context.Context
	respHeader http.Header
}

func NewRequest(ctx context.Context, method, path string) *Request {
	if ctx == nil {
		ctx = context.Background()
	}
	return &Request{
		Method:     strings.ToUpper(method),
		Path:       path,
		Query:      url.Values{},
		Body:       map[string]any{},
		Params:     map[string]string{},
		Header:     http.Header{},
		ctx:        ctx,
		respHeader: http.Header{},
	}
}

func (r *Request) Context() context.Context {
	if r.ctx == nil {
		return context.Background()
	}
	return r.ctx
}

// SetContext replaces the request context, e.g. to attach values.
func (r *Request) SetContext(ctx context.Context) { r.ctx = ctx }

// Authenticate attaches the principal to the request and its context.
func (r *Request) Authenticate(c *auth.Claims) {
	r.Principal = c
	r.ctx = auth.WithPrincipal(r.Context(), c)
}

// UserID is the authenticated user id, or 0.
func (r *Request) UserID() int64 {
	if r.Principal == nil {
		return 0
	}
	return r.Principal.UserID
}

// ResponseHeader holds headers middleware wants on the response.
func (r *Request) ResponseHeader() http.Header {
	if r.respHeader == nil {
		r.respHeader = http.Header{}
	}
	return r.respHeader
}

func (r *Request) Param(name string) string { return r.Params[name] }

// ParamInt parses a numeric path parameter.
func (r *Request) ParamInt(name string) (int64, bool) {
	n, err := strconv.ParseInt(r.Params[name], 10, 64)
	return n, err == nil
}

// QueryValue returns the first query value for name or def.
func (r *Request) QueryValue(name, def string) string {
	if v := r.Query.Get(name); v != "" {
		return v
	}
	return def
}

func (r *Request) QueryInt(name string, def int) int {
	n, err := strconv.Atoi(r.Query.Get(name))
	if err != nil {
		return def
	}
	return n
}

// Input returns a body field, falling back to the query string.
func (r *Request) Input(name string) any {
	if v, ok := r.Body[name]; ok {
		return v
	}
	if r.Query.Has(name) {
		return r.Query.Get(name)
	}
	return nil
}

// String returns an input as a trimmed string; non-strings are formatted.
func (r *Request) String(name string) string {
	switch v := r.Input(name).(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(v)
	default:
		return fmt.Sprint(v)
	}
}

// Bool interprets true, "true", "1" and "on" as set.
func (r *Request) Bool(name string) bool {
	switch v := r.Input(name).(type) {
	case bool:
		return v
	case string:
		switch strings.ToLower(v) {
		case "1", "true", "on", "yes":
			return true
		}
	default:
		return fmt.Sprint(v) == "1"
	}
	return false
}

// All returns the query merged with the body; body fields win.
func (r *Request) All() map[string]any {
	out := make(map[string]any, len(r.Body)+len(r.Query))
	for k := range r.Query {
		out[k] = r.Query.Get(k)
	}
	for k, v := range r.Body {
		out[k] = v
	}
	return out
}
