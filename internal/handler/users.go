package handler

import (
	"github.com/iliyamo/restkit/internal/apperr"
	"github.com/iliyamo/restkit/internal/model"
	"github.com/iliyamo/restkit/internal/record"
	"github.com/iliyamo/restkit/internal/repository"
	"github.com/iliyamo/restkit/internal/router"
	"github.com/iliyamo/restkit/internal/validation"
)

const maxSearchLen = 255

var (
	storeUserRules = validation.MustCompile(map[string]string{
		"name":              "string|min:3|max:100",
		"username":          "string|max:50|unique:users,username",
		"email":             "required|string|max:255|email|unique:users,email",
		"password":          "required|string|min:8|max:255",
		"role":              "string|in:user,admin",
		"status":            "string|in:active,inactive",
		"email_verified_at": "nullable|string",
	})
	updateUserRules = validation.MustCompile(map[string]string{
		"name":              "string|min:3|max:100",
		"username":          "string|max:50|unique:users,username,{id}",
		"email":             "string|max:255|email|unique:users,email,{id}",
		"password":          "string|min:8|max:255",
		"role":              "string|in:user,admin",
		"status":            "string|in:active,inactive",
		"email_verified_at": "nullable|string",
	})
)

// UserHandler is the users resource.
type UserHandler struct {
	Deps
}

func NewUserHandler(d Deps) *UserHandler { return &UserHandler{Deps: d} }

// Index: GET /users?page=&per-page=&search=
func (h *UserHandler) Index(req *router.Request) (any, error) {
	ctx, cancel := withTimeout(req)
	defer cancel()

	if search := req.QueryValue("search", ""); search != "" {
		if len(search) > maxSearchLen {
			search = search[:maxSearchLen]
		}
		return h.Users.Mapper().Search(ctx, model.UserSearchColumns, search, record.MaxPerPage)
	}
	return h.Users.Mapper().Paginate(ctx, req.QueryInt("page", 1), req.QueryInt("per-page", 10))
}

// All: GET /users/all
func (h *UserHandler) All(req *router.Request) (any, error) {
	ctx, cancel := withTimeout(req)
	defer cancel()
	return h.Users.Mapper().All(ctx)
}

func (h *UserHandler) find(req *router.Request) (int64, record.Record, error) {
	id, ok := req.ParamInt("id")
	if !ok {
		return 0, nil, apperr.NotFound("User not found")
	}
	ctx, cancel := withTimeout(req)
	defer cancel()
	u, err := h.Users.FindByID(ctx, id)
	if err != nil {
		return 0, nil, err
	}
	if u == nil {
		return 0, nil, apperr.NotFound("User not found")
	}
	return id, u, nil
}

// Show: GET /users/{id}
func (h *UserHandler) Show(req *router.Request) (any, error) {
	_, u, err := h.find(req)
	return u, err
}

// Store: POST /users
func (h *UserHandler) Store(req *router.Request) (any, error) {
	ctx, cancel := withTimeout(req)
	defer cancel()

	in, err := storeUserRules.Validate(ctx, req.Body, validation.WithLookup(h.Lookup))
	if err != nil {
		return nil, err
	}
	if _, ok := in["role"]; !ok {
		in["role"] = model.RoleUser
	}
	if _, ok := in["status"]; !ok {
		in["status"] = model.StatusActive
	}
	u, err := h.Users.Create(ctx, req.Principal, in)
	if err != nil {
		return nil, err
	}
	return router.Created(u, "User created successfully"), nil
}

// Update: PUT /users/{id}. Only the supplied fields change.
func (h *UserHandler) Update(req *router.Request) (any, error) {
	id, _, err := h.find(req)
	if err != nil {
		return nil, err
	}
	ctx, cancel := withTimeout(req)
	defer cancel()

	in, err := updateUserRules.Validate(ctx, req.Body,
		validation.WithLookup(h.Lookup), validation.Bind("id", id))
	if err != nil {
		return nil, err
	}
	if e, ok := in["email"].(string); ok {
		in["email"] = repository.NormalizeEmail(e)
	}
	if _, err := h.Users.Mapper().Update(ctx, req.Principal, id, in); err != nil {
		return nil, err
	}
	return h.Users.FindByID(ctx, id)
}

// Destroy: DELETE /users/{id}
func (h *UserHandler) Destroy(req *router.Request) (any, error) {
	id, _, err := h.find(req)
	if err != nil {
		return nil, err
	}
	ctx, cancel := withTimeout(req)
	defer cancel()
	if _, err := h.Users.Mapper().Delete(ctx, id); err != nil {
		return nil, err
	}
	return nil, nil
}
