// Package apperr defines the failure taxonomy shared by handlers, middleware
// and the data layer. Every failure carries the HTTP status the dispatcher
// renders it with, so higher layers never format their own error bodies.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strings"
)

// Kind classifies a failure.
type Kind string

const (
	KindValidation        Kind = "validation"
	KindUnauthorized      Kind = "unauthorized"
	KindForbidden         Kind = "forbidden"
	KindNotFound          Kind = "not_found"
	KindConflict          Kind = "conflict"
	KindBadRequest        Kind = "bad_request"
	KindRateLimited       Kind = "rate_limited"
	KindStorageConstraint Kind = "storage_constraint"
	KindInvalidArgument   Kind = "invalid_argument"
	KindConfiguration     Kind = "configuration"
	KindInternal          Kind = "internal"
)

// Error is a typed failure. Errors holds per-field validation messages and
// is only set for KindValidation.
type Error struct {
	Kind    Kind
	Status  int
	Message string
	Errors  map[string][]string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches on Kind so errors.Is(err, apperr.NotFound("")) works for any
// not-found failure regardless of message.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

func newError(kind Kind, status int, msg string) *Error {
	return &Error{Kind: kind, Status: status, Message: msg}
}

// Validation carries the full per-field error map.
func Validation(fields map[string][]string) *Error {
	e := newError(KindValidation, http.StatusUnprocessableEntity, "Validation failed")
	e.Errors = fields
	return e
}

// ValidationMessage is a 422 without a field map, used for checks that span
// several fields such as password confirmation.
func ValidationMessage(msg string) *Error {
	return newError(KindValidation, http.StatusUnprocessableEntity, msg)
}

func Unauthorized(msg string) *Error {
	if msg == "" {
		msg = "Unauthorized"
	}
	return newError(KindUnauthorized, http.StatusUnauthorized, msg)
}

func Forbidden(msg string) *Error {
	if msg == "" {
		msg = "Forbidden"
	}
	return newError(KindForbidden, http.StatusForbidden, msg)
}

func NotFound(msg string) *Error {
	if msg == "" {
		msg = "Resource not found"
	}
	return newError(KindNotFound, http.StatusNotFound, msg)
}

func Conflict(msg string) *Error {
	return newError(KindConflict, http.StatusConflict, msg)
}

func BadRequest(msg string) *Error {
	return newError(KindBadRequest, http.StatusBadRequest, msg)
}

func RateLimited(msg string) *Error {
	if msg == "" {
		msg = "Too many requests"
	}
	return newError(KindRateLimited, http.StatusTooManyRequests, msg)
}

// StorageConstraint wraps a driver error for a violated database constraint.
// The client only ever sees the sanitized message.
func StorageConstraint(err error) *Error {
	e := newError(KindStorageConstraint, http.StatusInternalServerError, "A database constraint was violated")
	e.Err = err
	return e
}

// InvalidArgument reports programmer error, e.g. an identifier outside the
// allow-listed pattern.
func InvalidArgument(format string, args ...any) *Error {
	return newError(KindInvalidArgument, http.StatusInternalServerError, fmt.Sprintf(format, args...))
}

func Configuration(format string, args ...any) *Error {
	return newError(KindConfiguration, http.StatusInternalServerError, fmt.Sprintf(format, args...))
}

// Internal wraps an unexpected error.
func Internal(err error) *Error {
	e := newError(KindInternal, http.StatusInternalServerError, "Internal server error")
	e.Err = err
	return e
}

// As extracts a typed failure from err.
func As(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}

// IsKind reports whether err is a typed failure of the given kind.
func IsKind(err error, kind Kind) bool {
	e, ok := As(err)
	return ok && e.Kind == kind
}

// StatusOf returns the HTTP status for err, 500 for unclassified errors.
func StatusOf(err error) int {
	if err == nil {
		return http.StatusOK
	}
	if e, ok := As(err); ok && e.Status != 0 {
		return e.Status
	}
	return http.StatusInternalServerError
}

// Missing formats a configuration failure listing missing keys in a stable order.
func Missing(keys []string) *Error {
	sorted := append([]string(nil), keys...)
	sort.Strings(sorted)
	return Configuration("missing required env vars: %s", strings.Join(sorted, ", "))
}
