package handler

import (
	"time"

	"go.uber.org/zap"

	"github.com/iliyamo/restkit/internal/apperr"
	"github.com/iliyamo/restkit/internal/auth"
	"github.com/iliyamo/restkit/internal/mail"
	"github.com/iliyamo/restkit/internal/model"
	"github.com/iliyamo/restkit/internal/record"
	"github.com/iliyamo/restkit/internal/repository"
	"github.com/iliyamo/restkit/internal/router"
	"github.com/iliyamo/restkit/internal/validation"
)

const (
	msgInvalidCredentials = "Invalid credentials"
	msgInactive           = "Your account is inactive. Please contact support."
	msgWeakPassword       = "Password must contain at least one uppercase letter, one lowercase letter, one number, and one special character (@$!%*?&#)"
	msgConfirmMismatch    = "Password confirmation does not match"
	msgResetSent          = "If the email exists, a password reset link has been sent."
)

var (
	registerRules = validation.MustCompile(map[string]string{
		"name":                  "string|min:3|max:100",
		"email":                 "required|email|unique:users,email",
		"password":              "required|min:8",
		"password_confirmation": "required",
	})
	loginRules = validation.MustCompile(map[string]string{
		"email":    "required|email",
		"password": "required",
	})
	forgotRules = validation.MustCompile(map[string]string{
		"email": "required|email",
	})
	resetRules = validation.MustCompile(map[string]string{
		"email":                 "required|email",
		"token":                 "required",
		"password":              "required|min:8",
		"password_confirmation": "required",
	})
)

// AuthHandler serves registration, login, token refresh and password reset.
type AuthHandler struct {
	Deps
}

func NewAuthHandler(d Deps) *AuthHandler { return &AuthHandler{Deps: d} }

// checkNewPassword applies the strength and confirmation checks shared by
// register and reset.
func checkNewPassword(in map[string]any) error {
	if !auth.CheckPasswordStrength(str(in, "password")) {
		return apperr.ValidationMessage(msgWeakPassword)
	}
	if str(in, "password") != str(in, "password_confirmation") {
		return apperr.ValidationMessage(msgConfirmMismatch)
	}
	return nil
}

func (h *AuthHandler) issue(u record.Record) (auth.Token, error) {
	return h.Tokens.Generate(auth.Claims{
		UserID: repository.IDOf(u, "id"),
		Email:  str(u, "email"),
		Role:   str(u, "role"),
		Status: str(u, "status"),
	})
}

// Register: POST /auth/register
func (h *AuthHandler) Register(req *router.Request) (any, error) {
	ctx, cancel := withTimeout(req)
	defer cancel()

	in, err := registerRules.Validate(ctx, req.Body, validation.WithLookup(h.Lookup))
	if err != nil {
		return nil, err
	}
	if err := checkNewPassword(in); err != nil {
		return nil, err
	}

	data := record.Record{
		"email":    str(in, "email"),
		"password": str(in, "password"),
		"role":     model.RoleUser,
		"status":   model.StatusActive,
	}
	if name := str(in, "name"); name != "" {
		data["name"] = name
	}
	user, err := h.Users.Create(ctx, nil, data)
	if err != nil {
		return nil, err
	}
	token, err := h.issue(user)
	if err != nil {
		return nil, apperr.Internal(err)
	}

	h.enqueue(ctx, mail.Welcome(h.Cfg.AppName, str(user, "email")))

	id := repository.IDOf(user, "id")
	return router.Created(map[string]any{
		"id":         id,
		"user_id":    id,
		"user":       user,
		"token":      token.Value,
		"expires_at": token.ExpiresAt,
	}, "Registration successful. Welcome email will be sent shortly."), nil
}

// Login: POST /auth/login. Unknown emails and wrong passwords get the same
// answer and cost the same bcrypt work.
func (h *AuthHandler) Login(req *router.Request) (any, error) {
	ctx, cancel := withTimeout(req)
	defer cancel()

	in, err := loginRules.Validate(ctx, req.Body)
	if err != nil {
		return nil, err
	}
	password := str(in, "password")

	creds, found, err := h.Users.Credentials(ctx, str(in, "email"))
	if err != nil {
		return nil, err
	}
	if !found {
		auth.BurnCompare(password)
		return nil, apperr.Unauthorized(msgInvalidCredentials)
	}
	if !auth.VerifyPassword(creds.PasswordHash, password) {
		return nil, apperr.Unauthorized(msgInvalidCredentials)
	}
	if creds.Status != model.StatusActive {
		return nil, apperr.Unauthorized(msgInactive)
	}

	if err := h.Users.TouchLogin(ctx, creds.ID); err != nil {
		h.logger().Warn("update last login failed", zap.Int64("user_id", creds.ID), zap.Error(err))
	}
	user, err := h.Users.FindByID(ctx, creds.ID)
	if err != nil {
		return nil, err
	}
	token, err := h.issue(user)
	if err != nil {
		return nil, apperr.Internal(err)
	}

	out := map[string]any{
		"user":       user,
		"token":      token.Value,
		"expires_at": token.ExpiresAt,
	}
	if req.Bool("remember") {
		plain, exp, err := h.Remember.Issue(ctx, creds.ID, h.Tokens.RefreshTTL())
		if err != nil {
			return nil, err
		}
		out["remember_token"] = plain
		out["remember_expires_at"] = exp
	}
	return router.WithMessage("Login successful", out), nil
}

func rememberToken(req *router.Request) string {
	if t := req.String("remember_token"); t != "" {
		return t
	}
	return req.String("refresh_token")
}

// Refresh: POST /auth/refresh exchanges a remember token for a new access
// token and rotates the remember token.
func (h *AuthHandler) Refresh(req *router.Request) (any, error) {
	ctx, cancel := withTimeout(req)
	defer cancel()

	plain := rememberToken(req)
	if plain == "" {
		return nil, apperr.Validation(map[string][]string{
			"remember_token": {"The remember token field is required."},
		})
	}
	uid, ok, err := h.Remember.Validate(ctx, plain)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, apperr.Unauthorized("Invalid or expired refresh token")
	}
	if _, err := h.Remember.Revoke(ctx, plain); err != nil {
		return nil, err
	}

	user, err := h.Users.FindByID(ctx, uid)
	if err != nil {
		return nil, err
	}
	if user == nil || str(user, "status") != model.StatusActive {
		return nil, apperr.Unauthorized("Invalid or expired refresh token")
	}
	token, err := h.issue(user)
	if err != nil {
		return nil, apperr.Internal(err)
	}
	next, exp, err := h.Remember.Issue(ctx, uid, h.Tokens.RefreshTTL())
	if err != nil {
		return nil, err
	}
	return router.WithMessage("Token refreshed", map[string]any{
		"user":                user,
		"token":               token.Value,
		"expires_at":          token.ExpiresAt,
		"remember_token":      next,
		"remember_expires_at": exp,
	}), nil
}

// Logout: POST /auth/logout. Access tokens are stateless; a supplied
// remember token is revoked.
func (h *AuthHandler) Logout(req *router.Request) (any, error) {
	ctx, cancel := withTimeout(req)
	defer cancel()

	if plain := rememberToken(req); plain != "" {
		if _, err := h.Remember.Revoke(ctx, plain); err != nil {
			return nil, err
		}
	}
	return router.WithMessage("Logout successful", nil), nil
}

// Me: GET /auth/me
func (h *AuthHandler) Me(req *router.Request) (any, error) {
	ctx, cancel := withTimeout(req)
	defer cancel()

	user, err := h.Users.FindByID(ctx, req.UserID())
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, apperr.NotFound("User not found")
	}
	return map[string]any{"user": user}, nil
}

// ForgotPassword: POST /auth/forgot-password. The answer does not reveal
// whether the email is registered.
func (h *AuthHandler) ForgotPassword(req *router.Request) (any, error) {
	ctx, cancel := withTimeout(req)
	defer cancel()

	in, err := forgotRules.Validate(ctx, req.Body)
	if err != nil {
		return nil, err
	}
	email := repository.NormalizeEmail(str(in, "email"))

	user, err := h.Users.FindByEmail(ctx, email)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return router.WithMessage(msgResetSent, nil), nil
	}

	token, err := h.Resets.Issue(ctx, email, h.resetTTL())
	if err != nil {
		return nil, err
	}
	h.enqueue(ctx, mail.PasswordReset(h.Cfg.AppName, h.Cfg.FrontendURL, email, token))

	if h.Cfg.Debug {
		return router.WithMessage(msgResetSent, map[string]any{"debug_token": token}), nil
	}
	return router.WithMessage(msgResetSent, nil), nil
}

func (h *AuthHandler) resetTTL() time.Duration {
	if h.Cfg.PasswordResetTTL > 0 {
		return h.Cfg.PasswordResetTTL
	}
	return time.Hour
}

// ResetPassword: POST /auth/reset-password. A token works once.
func (h *AuthHandler) ResetPassword(req *router.Request) (any, error) {
	ctx, cancel := withTimeout(req)
	defer cancel()

	in, err := resetRules.Validate(ctx, req.Body)
	if err != nil {
		return nil, err
	}
	if err := checkNewPassword(in); err != nil {
		return nil, err
	}
	email := repository.NormalizeEmail(str(in, "email"))

	valid, err := h.Resets.Valid(ctx, email, str(in, "token"))
	if err != nil {
		return nil, err
	}
	if !valid {
		return nil, apperr.BadRequest("Invalid or expired reset token")
	}

	user, err := h.Users.FindByEmail(ctx, email)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, apperr.NotFound("User not found")
	}
	id := repository.IDOf(user, "id")
	if _, err := h.Users.SetPassword(ctx, nil, id, str(in, "password")); err != nil {
		return nil, err
	}
	if err := h.Resets.Consume(ctx, email); err != nil {
		return nil, err
	}
	if err := h.Remember.RevokeAllForUser(ctx, id); err != nil {
		h.logger().Warn("revoke remember tokens failed", zap.Int64("user_id", id), zap.Error(err))
	}

	h.enqueue(ctx, mail.PasswordResetDone(h.Cfg.AppName, email))
	return router.WithMessage("Password has been reset successfully. You can now login with your new password.", nil), nil
}
