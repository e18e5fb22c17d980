package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/iliyamo/restkit/internal/router"
)

// SiteHandler serves the informational endpoints.
type SiteHandler struct {
	Deps
	DB     Pinger
	Routes func() []router.RouteInfo
	now    func() time.Time
}

func NewSiteHandler(d Deps, db Pinger, routes func() []router.RouteInfo) *SiteHandler {
	return &SiteHandler{Deps: d, DB: db, Routes: routes, now: time.Now}
}

func (h *SiteHandler) timestamp() string {
	return h.now().UTC().Format(datetimeLayout)
}

// Index: GET /. Written without the envelope.
func (h *SiteHandler) Index(*router.Request) (any, error) {
	return router.RawJSON(http.StatusOK, map[string]any{
		"success":   true,
		"app":       h.Cfg.AppName,
		"status":    "Up and running",
		"timestamp": h.timestamp(),
	})
}

// Health: GET /health
func (h *SiteHandler) Health(req *router.Request) (any, error) {
	status, db := http.StatusOK, "ok"
	if h.DB != nil {
		ctx, cancel := context.WithTimeout(req.Context(), 2*time.Second)
		defer cancel()
		if err := h.DB.PingContext(ctx); err != nil {
			status, db = http.StatusServiceUnavailable, "unavailable"
		}
	}
	return router.RawJSON(status, map[string]any{
		"success":     status == http.StatusOK,
		"environment": h.Cfg.Env,
		"debug":       h.Cfg.Debug,
		"message":     h.Cfg.AppName + " is running",
		"version":     h.Cfg.Version,
		"database":    db,
		"timestamp":   h.timestamp(),
	})
}

// Info: GET /site/info
func (h *SiteHandler) Info(*router.Request) (any, error) {
	return map[string]any{
		"site_name":   h.Cfg.AppName,
		"description": "A RESTful API built with Go",
		"version":     h.Cfg.Version,
		"environment": h.Cfg.Env,
		"timestamp":   h.timestamp(),
	}, nil
}

// Endpoints: GET /site/endpoints lists the registered routes.
func (h *SiteHandler) Endpoints(*router.Request) (any, error) {
	var routes []router.RouteInfo
	if h.Routes != nil {
		routes = h.Routes()
	}
	return map[string]any{"endpoints": routes}, nil
}
