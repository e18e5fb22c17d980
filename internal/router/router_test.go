package router

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"reflect"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/restkit/internal/apperr"
)

// ============================================================================
// Helpers
// ============================================================================

func dispatch(t *testing.T, rt *Router, method, path string) *Response {
	t.Helper()
	return rt.Dispatch(NewRequest(nil, method, path))
}

func decode(t *testing.T, resp *Response) map[string]any {
	t.Helper()
	var out map[string]any
	if err := json.Unmarshal(resp.Body, &out); err != nil {
		t.Fatalf("decode %q: %v", resp.Body, err)
	}
	return out
}

func value(v any) HandlerFunc {
	return func(*Request) (any, error) { return v, nil }
}

// ============================================================================
// Matching
// ============================================================================

func TestMatch_RegistrationOrderWins(t *testing.T) {
	rt := New(nil)
	rt.GET("/users/all", value("static"))
	rt.GET("/users/{id}", value("param"))
	rt.GET("/users/{slug}", value("shadowed"))

	tests := []struct {
		path string
		want string
	}{
		{"/users/all", "static"},
		{"/users/42", "param"},
		{"/users/42/", "param"},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			resp := dispatch(t, rt, http.MethodGet, tt.path)
			if resp.Status != http.StatusOK {
				t.Fatalf("status = %d", resp.Status)
			}
			if got := decode(t, resp)["data"]; got != tt.want {
				t.Errorf("data = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestMatch_BindsParams(t *testing.T) {
	rt := New(nil)
	rt.GET("/posts/{post}/comments/{id}", func(r *Request) (any, error) {
		return r.Params, nil
	})
	route, params, ok := rt.Match("get", "/posts/7/comments/9")
	if !ok || route.Pattern != "/posts/{post}/comments/{id}" {
		t.Fatalf("Match() = %v, %v", route, ok)
	}
	if !reflect.DeepEqual(params, map[string]string{"post": "7", "id": "9"}) {
		t.Errorf("params = %v", params)
	}
}

func TestDispatch_NotFound(t *testing.T) {
	rt := New(nil)
	rt.GET("/users", value(nil))

	for _, tc := range []struct{ method, path string }{
		{http.MethodGet, "/nope"},
		{http.MethodPost, "/users"},
		{http.MethodGet, "/users/1/extra"},
	} {
		resp := dispatch(t, rt, tc.method, tc.path)
		if resp.Status != http.StatusNotFound {
			t.Errorf("%s %s status = %d, want 404", tc.method, tc.path, resp.Status)
		}
		body := decode(t, resp)
		if body["success"] != false || body["message"] != "Route not found" {
			t.Errorf("body = %v", body)
		}
	}
}

// ============================================================================
// Groups and middleware
// ============================================================================

func recorder(name string, trail *[]string) Middleware {
	return func(next HandlerFunc) HandlerFunc {
		return func(r *Request) (any, error) {
			*trail = append(*trail, name)
			return next(r)
		}
	}
}

func TestGroup_MergesPrefixAndMiddleware(t *testing.T) {
	var trail []string
	rt := New(nil)
	rt.Alias("outer", recorder("outer", &trail))
	rt.Alias("inner", recorder("inner", &trail))
	rt.Alias("route", recorder("route", &trail))

	rt.Group(GroupOptions{Prefix: "/api", Middleware: []string{"outer"}}, func(g *RouteGroup) {
		g.Group(GroupOptions{Prefix: "/v1", Middleware: []string{"inner"}}, func(g *RouteGroup) {
			g.GET("/ping", func(*Request) (any, error) {
				trail = append(trail, "handler")
				return "pong", nil
			}, "route")
		})
	})

	resp := dispatch(t, rt, http.MethodGet, "/api/v1/ping")
	if resp.Status != http.StatusOK {
		t.Fatalf("status = %d", resp.Status)
	}
	want := []string{"outer", "inner", "route", "handler"}
	if !reflect.DeepEqual(trail, want) {
		t.Errorf("order = %v, want %v", trail, want)
	}
	routes := rt.Routes()
	if len(routes) != 1 || routes[0].Path != "/api/v1/ping" || !reflect.DeepEqual(routes[0].Middleware, []string{"outer", "inner", "route"}) {
		t.Errorf("routes = %+v", routes)
	}
}

func TestMiddleware_ShortCircuit(t *testing.T) {
	var trail []string
	rt := New(nil)
	rt.Alias("first", recorder("first", &trail))
	rt.Alias("deny", func(HandlerFunc) HandlerFunc {
		return func(*Request) (any, error) {
			trail = append(trail, "deny")
			return nil, apperr.Unauthorized("Unauthorized - No token provided")
		}
	})
	rt.Alias("last", recorder("last", &trail))
	rt.GET("/secret", func(*Request) (any, error) {
		trail = append(trail, "handler")
		return "x", nil
	}, "first", "deny", "last")

	resp := dispatch(t, rt, http.MethodGet, "/secret")
	if resp.Status != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", resp.Status)
	}
	if !reflect.DeepEqual(trail, []string{"first", "deny"}) {
		t.Errorf("trail = %v", trail)
	}
	if decode(t, resp)["message"] != "Unauthorized - No token provided" {
		t.Errorf("body = %s", resp.Body)
	}
}

func TestAliasFunc_Arguments(t *testing.T) {
	var got []string
	rt := New(nil)
	rt.AliasFunc("role", func(args []string) Middleware {
		got = args
		return func(next HandlerFunc) HandlerFunc { return next }
	})
	rt.GET("/admin", value("ok"), "role:admin, editor")
	if err := rt.Validate(); err != nil {
		t.Fatalf("Validate() error = %v", err)
	}
	if !reflect.DeepEqual(got, []string{"admin", "editor"}) {
		t.Errorf("args = %v", got)
	}
}

func TestValidate_UnknownMiddleware(t *testing.T) {
	rt := New(nil)
	rt.GET("/x", value(nil), "missing")
	if err := rt.Validate(); !apperr.IsKind(err, apperr.KindConfiguration) {
		t.Fatalf("Validate() error = %v, want configuration failure", err)
	}
	if resp := dispatch(t, rt, http.MethodGet, "/x"); resp.Status != http.StatusInternalServerError {
		t.Errorf("status = %d, want 500", resp.Status)
	}
}

// ============================================================================
// Envelope
// ============================================================================

func TestDispatch_Envelope(t *testing.T) {
	rt := New(nil)
	rt.GET("/value", value(map[string]any{"id": 1}))
	rt.GET("/list", value([]string{}))
	rt.POST("/created", value(Created(map[string]any{"id": 2}, "User created successfully")))
	rt.GET("/message", value(WithMessage("done", nil)))
	rt.DELETE("/nil", value(nil))
	rt.DELETE("/nocontent", value(NoContent()))
	rt.GET("/raw", func(*Request) (any, error) {
		return &Raw{Status: http.StatusAccepted, ContentType: "text/plain", Body: []byte("hello")}, nil
	})
	rt.GET("/validation", func(*Request) (any, error) {
		return nil, apperr.Validation(map[string][]string{"email": {"The email field is required."}})
	})
	rt.GET("/plain-error", func(*Request) (any, error) { return nil, errors.New("dial tcp: secret host") })
	rt.GET("/constraint", func(*Request) (any, error) {
		return nil, apperr.StorageConstraint(errors.New("Duplicate entry"))
	})
	rt.GET("/panic", func(*Request) (any, error) { panic("boom") })

	tests := []struct {
		method, path string
		status       int
		body         string
	}{
		{"GET", "/value", 200, `{"success":true,"data":{"id":1}}`},
		{"GET", "/list", 200, `{"success":true,"data":[]}`},
		{"POST", "/created", 201, `{"success":true,"message":"User created successfully","data":{"id":2}}`},
		{"GET", "/message", 200, `{"success":true,"message":"done"}`},
		{"DELETE", "/nil", 204, ``},
		{"DELETE", "/nocontent", 204, ``},
		{"GET", "/raw", 202, `hello`},
		{"GET", "/validation", 422, `{"success":false,"message":"Validation failed","errors":{"email":["The email field is required."]}}`},
		{"GET", "/plain-error", 500, `{"success":false,"message":"Internal server error"}`},
		{"GET", "/constraint", 500, `{"success":false,"message":"A database constraint was violated"}`},
		{"GET", "/panic", 500, `{"success":false,"message":"Internal server error"}`},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			resp := dispatch(t, rt, tt.method, tt.path)
			if resp.Status != tt.status {
				t.Errorf("status = %d, want %d", resp.Status, tt.status)
			}
			if string(resp.Body) != tt.body {
				t.Errorf("body = %s, want %s", resp.Body, tt.body)
			}
		})
	}
}

func TestDispatch_ResponseHeadersFromMiddleware(t *testing.T) {
	rt := New(nil)
	rt.Alias("tag", func(next HandlerFunc) HandlerFunc {
		return func(r *Request) (any, error) {
			r.ResponseHeader().Set("X-Tag", "yes")
			return next(r)
		}
	})
	rt.GET("/fail", func(*Request) (any, error) { return nil, apperr.RateLimited("") }, "tag")

	resp := dispatch(t, rt, http.MethodGet, "/fail")
	if resp.Status != http.StatusTooManyRequests || resp.Header.Get("X-Tag") != "yes" {
		t.Errorf("status = %d header = %v", resp.Status, resp.Header)
	}
}

// ============================================================================
// Echo bridge
// ============================================================================

func TestMount_ParsesRequests(t *testing.T) {
	rt := New(nil)
	rt.POST("/items/{id}", func(r *Request) (any, error) {
		return map[string]any{
			"id":          r.Param("id"),
			"qty":         r.Body["qty"],
			"qtyIsNumber": reflect.TypeOf(r.Body["qty"]) == reflect.TypeOf(json.Number("")),
			"filter":      r.QueryValue("filter", ""),
			"ip":          r.RemoteIP,
		}, nil
	})
	rt.POST("/form", func(r *Request) (any, error) { return r.All(), nil })

	e := echo.New()
	rt.Mount(e, "/api")

	req := httptest.NewRequest(http.MethodPost, "/api/items/5?filter=new", strings.NewReader(`{"qty": 3}`))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	req.RemoteAddr = "10.0.0.1:1234"
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d body = %s", rec.Code, rec.Body)
	}
	var body struct {
		Data map[string]any `json:"data"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatal(err)
	}
	want := map[string]any{"id": "5", "qty": float64(3), "qtyIsNumber": true, "filter": "new", "ip": "10.0.0.1"}
	if !reflect.DeepEqual(body.Data, want) {
		t.Errorf("data = %v, want %v", body.Data, want)
	}

	req = httptest.NewRequest(http.MethodPost, "/api/form", strings.NewReader("name=Ada&tag=a&tag=b"))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationForm)
	rec = httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	if !strings.Contains(rec.Body.String(), `"name":"Ada"`) || !strings.Contains(rec.Body.String(), `"tag":["a","b"]`) {
		t.Errorf("form body = %s", rec.Body)
	}
}

func TestMount_MalformedJSON(t *testing.T) {
	rt := New(nil)
	called := false
	rt.POST("/items", func(*Request) (any, error) { called = true; return nil, nil })
	e := echo.New()
	rt.Mount(e, "")

	for _, payload := range []string{`{"qty":`, `[1,2]`} {
		req := httptest.NewRequest(http.MethodPost, "/items", strings.NewReader(payload))
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
		rec := httptest.NewRecorder()
		e.ServeHTTP(rec, req)
		if rec.Code != http.StatusBadRequest {
			t.Errorf("%s: status = %d, want 400", payload, rec.Code)
		}
	}
	if called {
		t.Error("handler ran for a malformed body")
	}
}

func TestMount_NoContentAndNotFound(t *testing.T) {
	rt := New(nil)
	rt.DELETE("/items/{id}", value(nil))
	e := echo.New()
	rt.Mount(e, "/api")

	req := httptest.NewRequest(http.MethodDelete, "/api/items/1", nil)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	if rec.Code != http.StatusNoContent || rec.Body.Len() != 0 {
		t.Errorf("status = %d body = %q", rec.Code, rec.Body)
	}

	req = httptest.NewRequest(http.MethodGet, "/api/unknown", nil)
	rec = httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	if rec.Code != http.StatusNotFound || !strings.Contains(rec.Body.String(), "Route not found") {
		t.Errorf("status = %d body = %s", rec.Code, rec.Body)
	}
}
