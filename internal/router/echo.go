package router

import (
	"encoding/json"
	"errors"
	"io"
	"mime"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/restkit/internal/apperr"
)

const maxFormMemory = 8 << 20

// RouteKey is the echo context key holding the matched route pattern, for
// transport middleware that labels requests by route.
const RouteKey = "restkit.route"

// Mount serves every path under prefix through Dispatch. Echo keeps its own
// static routes (metrics, probes) ahead of the mounted wildcard.
func (rt *Router) Mount(e *echo.Echo, prefix string) {
	prefix = strings.TrimRight(prefix, "/")
	h := rt.echoHandler(prefix)
	if prefix != "" {
		e.Any(prefix, h)
	}
	e.Any(prefix+"/*", h)
}

func (rt *Router) echoHandler(prefix string) echo.HandlerFunc {
	return func(c echo.Context) error {
		r := c.Request()
		path := strings.TrimPrefix(r.URL.Path, prefix)
		if path == "" {
			path = "/"
		}

		req := NewRequest(r.Context(), r.Method, path)
		req.Query = r.URL.Query()
		req.Header = r.Header
		req.RemoteIP = c.RealIP()

		var resp *Response
		body, err := parseBody(r)
		if err != nil {
			resp = rt.fail(req, err)
		} else {
			req.Body = body
			resp = rt.Dispatch(req)
		}
		if req.Route != nil {
			c.Set(RouteKey, req.Route.Pattern)
		}
		return writeResponse(c, resp)
	}
}

// parseBody decodes JSON objects (numbers kept as json.Number) and form
// bodies. Other content types yield an empty body.
func parseBody(r *http.Request) (map[string]any, error) {
	body := map[string]any{}
	if r.Body == nil || r.ContentLength == 0 {
		return body, nil
	}
	ct, _, _ := mime.ParseMediaType(r.Header.Get(echo.HeaderContentType))

	switch {
	case ct == echo.MIMEApplicationJSON || strings.HasSuffix(ct, "+json"):
		dec := json.NewDecoder(r.Body)
		dec.UseNumber()
		var v any
		if err := dec.Decode(&v); err != nil {
			if errors.Is(err, io.EOF) {
				return body, nil
			}
			return nil, apperr.BadRequest("Invalid JSON body")
		}
		obj, ok := v.(map[string]any)
		if !ok {
			return nil, apperr.BadRequest("JSON body must be an object")
		}
		return obj, nil

	case ct == echo.MIMEApplicationForm:
		if err := r.ParseForm(); err != nil {
			return nil, apperr.BadRequest("Invalid form body")
		}
		return formValues(r.PostForm, body), nil

	case ct == echo.MIMEMultipartForm:
		if err := r.ParseMultipartForm(maxFormMemory); err != nil {
			return nil, apperr.BadRequest("Invalid form body")
		}
		return formValues(r.MultipartForm.Value, body), nil
	}
	return body, nil
}

func formValues(values map[string][]string, out map[string]any) map[string]any {
	for k, vs := range values {
		switch len(vs) {
		case 0:
		case 1:
			out[k] = vs[0]
		default:
			list := make([]any, len(vs))
			for i, v := range vs {
				list[i] = v
			}
			out[k] = list
		}
	}
	return out
}

func writeResponse(c echo.Context, resp *Response) error {
	h := c.Response().Header()
	for k, vals := range resp.Header {
		h[k] = vals
	}
	if resp.Body == nil {
		return c.NoContent(resp.Status)
	}
	ct := resp.ContentType
	if ct == "" {
		ct = echo.MIMEApplicationJSONCharsetUTF8
	}
	return c.Blob(resp.Status, ct, resp.Body)
}
