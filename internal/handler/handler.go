// Package handler implements the bundled endpoints on top of the router,
// record and queue packages.
package handler

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/iliyamo/restkit/internal/auth"
	"github.com/iliyamo/restkit/internal/config"
	"github.com/iliyamo/restkit/internal/mail"
	"github.com/iliyamo/restkit/internal/repository"
	"github.com/iliyamo/restkit/internal/router"
	"github.com/iliyamo/restkit/internal/validation"
)

const (
	dbTimeout      = 5 * time.Second
	datetimeLayout = "2006-01-02 15:04:05"
)

// enqueueTimeout bounds a job push made on behalf of a request. The push
// outlives request cancellation but not this deadline.
var enqueueTimeout = 5 * time.Second

// Deps bundles what the handlers need. Mail may be nil, in which case no
// email jobs are queued.
type Deps struct {
	Cfg      config.Config
	Log      *zap.Logger
	Tokens   *auth.TokenAuth
	Users    *repository.UserRepo
	Resets   *repository.PasswordResetRepo
	Remember *repository.TokenRepo
	Lookup   validation.Lookup
	Mail     mail.Pusher
}

func (d Deps) logger() *zap.Logger {
	if d.Log == nil {
		return zap.NewNop()
	}
	return d.Log
}

// withTimeout bounds store calls made for req.
func withTimeout(req *router.Request) (context.Context, context.CancelFunc) {
	return context.WithTimeout(req.Context(), dbTimeout)
}

// str reads a validated value as a string.
func str(in map[string]any, key string) string {
	v, ok := in[key]
	if !ok || v == nil {
		return ""
	}
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprint(v)
}

// enqueue queues an email without failing the request.
func (d Deps) enqueue(ctx context.Context, m mail.Message) {
	if d.Mail == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), enqueueTimeout)
	defer cancel()
	if _, err := mail.Enqueue(ctx, d.Mail, m); err != nil {
		d.logger().Warn("queue email failed", zap.String("subject", m.Subject), zap.Error(err))
	}
}
