package router

import (
	"encoding/json"
	"fmt"
	"net/http"
	"runtime/debug"

	"go.uber.org/zap"

	"github.com/iliyamo/restkit/internal/apperr"
)

// Dispatch matches req, runs its chain and renders the outcome. It never
// panics; handler panics become 500 responses.
func (rt *Router) Dispatch(req *Request) (resp *Response) {
	rt.once.Do(func() { rt.compileErr = rt.Validate() })
	if rt.compileErr != nil {
		return rt.fail(req, rt.compileErr)
	}

	route, params, ok := rt.Match(req.Method, req.Path)
	if !ok {
		return rt.fail(req, apperr.NotFound("Route not found"))
	}
	req.Route = route
	req.Params = params

	defer func() {
		if p := recover(); p != nil {
			rt.log.Error("handler panic",
				zap.String("method", req.Method),
				zap.String("path", req.Path),
				zap.Any("panic", p),
				zap.ByteString("stack", debug.Stack()))
			resp = rt.fail(req, apperr.Internal(fmt.Errorf("panic: %v", p)))
		}
	}()

	value, err := route.chain(req)
	if err != nil {
		return rt.fail(req, err)
	}
	return rt.render(req, value)
}

func (rt *Router) render(req *Request, value any) *Response {
	switch v := value.(type) {
	case nil:
		return rt.respond(req, http.StatusNoContent, nil)
	case *Raw:
		resp := &Response{Status: v.Status, Header: cloneHeader(req.respHeader), ContentType: v.ContentType, Body: v.Body}
		if resp.Status == 0 {
			resp.Status = http.StatusOK
		}
		for k, vals := range v.Header {
			resp.Header[k] = vals
		}
		return resp
	case *Result:
		status := v.Status
		if status == 0 {
			status = http.StatusOK
		}
		if status == http.StatusNoContent {
			return rt.respond(req, status, nil)
		}
		return rt.respond(req, status, &Envelope{Success: true, Message: v.Message, Data: v.Data})
	default:
		return rt.respond(req, http.StatusOK, &Envelope{Success: true, Data: v})
	}
}

// fail is the single conversion point from a failure to the envelope.
// Server-side failures are logged with their cause and sanitized.
func (rt *Router) fail(req *Request, err error) *Response {
	e, ok := apperr.As(err)
	if !ok {
		e = apperr.Internal(err)
	}
	status := e.Status
	if status == 0 {
		status = http.StatusInternalServerError
	}

	msg := e.Message
	if status >= 500 {
		rt.log.Error("request failed",
			zap.String("method", req.Method),
			zap.String("path", req.Path),
			zap.String("kind", string(e.Kind)),
			zap.Error(err))
		if e.Kind != apperr.KindStorageConstraint {
			msg = "Internal server error"
		}
	}
	return rt.respond(req, status, &Envelope{Success: false, Message: msg, Errors: e.Errors})
}

func (rt *Router) respond(req *Request, status int, env *Envelope) *Response {
	resp := &Response{Status: status, Header: cloneHeader(req.respHeader)}
	if env == nil {
		return resp
	}
	body, err := json.Marshal(env)
	if err != nil {
		rt.log.Error("encode response failed", zap.String("path", req.Path), zap.Error(err))
		resp.Status = http.StatusInternalServerError
		body = []byte(`{"success":false,"message":"Internal server error"}`)
	}
	resp.ContentType = "application/json"
	resp.Body = body
	return resp
}

func cloneHeader(h http.Header) http.Header {
	if h == nil {
		return http.Header{}
	}
	return h.Clone()
}
