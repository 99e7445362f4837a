package handlers

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/keyward/keyward/internal/httpserver"
	"github.com/keyward/keyward/pkg/authn"
	"github.com/keyward/keyward/pkg/policy"
	"github.com/keyward/keyward/pkg/user"
)

// UserHandler mounts account lifecycle, validation, password reset, and
// two-factor activation routes.
type UserHandler struct{ deps *Deps }

// NewUserHandler builds a UserHandler.
func NewUserHandler(deps *Deps) *UserHandler { return &UserHandler{deps: deps} }

// PublicRoutes returns the unauthenticated user routes: signup, forget,
// and reset. The validation-code route a freshly signed-up account uses is
// mounted by AuthenticatedRoutes.
func (h *UserHandler) PublicRoutes() chi.Router {
	r := chi.NewRouter()
	r.Post("/public", h.handleSignup)
	r.Post("/forget", h.handleForget)
	r.Post("/reset_password", h.handleResetPassword)
	return r
}

// AuthenticatedRoutes returns the routes requiring a verified token.
func (h *UserHandler) AuthenticatedRoutes() chi.Router {
	r := chi.NewRouter()
	r.Post("/", h.handleAdminCreate)
	r.Post("/validate", h.handleValidate)
	r.Get("/2fa/code", h.handleGetTOTPCode)
	r.Post("/2fa/activate", h.handleActivateTwoFA)
	return r
}

type signupRequest struct {
	ApplicationID int    `json:"application_id" validate:"required"`
	Login         string `json:"login" validate:"required"`
	Email         string `json:"email" validate:"required,email"`
	FirstName     string `json:"first_name" validate:"required"`
	LastName      string `json:"last_name" validate:"required"`
	Password      string `json:"password" validate:"required"`
}

func (h *UserHandler) handleSignup(w http.ResponseWriter, r *http.Request) {
	var req signupRequest
	if !httpserver.DecodeAndValidate(w, r, &req) {
		return
	}
	ctx := r.Context()
	if !authn.VerifyPasswordComplexity(req.Password) {
		httpserver.RespondError(w, http.StatusBadRequest, "weak_password", "password does not meet complexity requirements")
		return
	}

	b, err := h.deps.bundle(ctx, req.ApplicationID)
	if err != nil {
		httpserver.RespondError(w, http.StatusInternalServerError, "internal", "failed to resolve application")
		return
	}

	created, err := b.Users.CreateUserPublic(ctx, user.PublicSignupInput{
		ApplicationID: req.ApplicationID,
		Login:         req.Login,
		Email:         req.Email,
		FirstName:     req.FirstName,
		LastName:      req.LastName,
		Password:      req.Password,
	})
	if err != nil {
		respondUserError(w, err)
		return
	}
	httpserver.Respond(w, http.StatusCreated, publicUserView(created))
}

type adminCreateRequest struct {
	ApplicationID int      `json:"application_id" validate:"required"`
	Login         string   `json:"login" validate:"required"`
	Email         string   `json:"email" validate:"required,email"`
	FirstName     string   `json:"first_name" validate:"required"`
	LastName      string   `json:"last_name" validate:"required"`
	Password      string   `json:"password" validate:"required"`
	Roles         []string `json:"roles" validate:"required,min=1"`
	IsAdmin       bool     `json:"is_admin"`
}

func (h *UserHandler) handleAdminCreate(w http.ResponseWriter, r *http.Request) {
	id, ok := requireRole(w, r, policy.RoleAdmin)
	if !ok {
		return
	}
	var req adminCreateRequest
	if !httpserver.DecodeAndValidate(w, r, &req) {
		return
	}
	ctx := r.Context()

	b, err := h.deps.bundle(ctx, req.ApplicationID)
	if err != nil {
		httpserver.RespondError(w, http.StatusInternalServerError, "internal", "failed to resolve application")
		return
	}

	created, err := b.Users.CreateUser(ctx, user.AdminCreateInput{
		ApplicationID: req.ApplicationID,
		Login:         req.Login,
		Email:         req.Email,
		FirstName:     req.FirstName,
		LastName:      req.LastName,
		Password:      req.Password,
		Roles:         req.Roles,
		IsAdmin:       req.IsAdmin,
	}, id.ApplicationID, id.IsSuperAdmin)
	if err != nil {
		respondUserError(w, err)
		return
	}
	httpserver.Respond(w, http.StatusCreated, publicUserView(created))
}

type validateRequest struct {
	ApplicationID int    `json:"application_id" validate:"required"`
	Login         string `json:"login" validate:"required"`
	Code          string `json:"code" validate:"required"`
}

func (h *UserHandler) handleValidate(w http.ResponseWriter, r *http.Request) {
	var req validateRequest
	if !httpserver.DecodeAndValidate(w, r, &req) {
		return
	}
	ctx := r.Context()

	b, err := h.deps.bundle(ctx, req.ApplicationID)
	if err != nil {
		httpserver.RespondError(w, http.StatusInternalServerError, "internal", "failed to resolve application")
		return
	}

	target, err := b.UserStore.GetByLoginAndApplication(ctx, req.Login, req.ApplicationID)
	if err != nil {
		httpserver.RespondError(w, http.StatusInternalServerError, "internal", "failed to look up user")
		return
	}
	if target == nil {
		httpserver.RespondError(w, http.StatusNotFound, "not_found", "no such user")
		return
	}

	validated, err := b.Users.ValidateUser(ctx, target, req.Code)
	if err != nil {
		respondUserError(w, err)
		return
	}
	httpserver.Respond(w, http.StatusOK, publicUserView(validated))
}

type forgetRequest struct {
	ApplicationID int    `json:"application_id" validate:"required"`
	Login         string `json:"login" validate:"required"`
}

func (h *UserHandler) handleForget(w http.ResponseWriter, r *http.Request) {
	var req forgetRequest
	if !httpserver.DecodeAndValidate(w, r, &req) {
		return
	}
	ctx := r.Context()

	b, err := h.deps.bundle(ctx, req.ApplicationID)
	if err != nil {
		httpserver.RespondError(w, http.StatusInternalServerError, "internal", "failed to resolve application")
		return
	}
	// SendResetCode deliberately reports success regardless of whether the
	// login exists, so this handler does too.
	_ = b.Users.SendResetCode(ctx, req.Login, req.ApplicationID)
	httpserver.Respond(w, http.StatusNoContent, nil)
}

type resetPasswordRequest struct {
	ApplicationID int    `json:"application_id" validate:"required"`
	Login         string `json:"login" validate:"required"`
	Code          string `json:"code" validate:"required"`
	NewPassword   string `json:"new_password" validate:"required"`
}

func (h *UserHandler) handleResetPassword(w http.ResponseWriter, r *http.Request) {
	var req resetPasswordRequest
	if !httpserver.DecodeAndValidate(w, r, &req) {
		return
	}
	ctx := r.Context()
	if !authn.VerifyPasswordComplexity(req.NewPassword) {
		httpserver.RespondError(w, http.StatusBadRequest, "weak_password", "password does not meet complexity requirements")
		return
	}

	b, err := h.deps.bundle(ctx, req.ApplicationID)
	if err != nil {
		httpserver.RespondError(w, http.StatusInternalServerError, "internal", "failed to resolve application")
		return
	}

	updated, err := b.Users.ResetUserCode(ctx, req.Login, req.ApplicationID, req.Code, req.NewPassword)
	if err != nil {
		respondUserError(w, err)
		return
	}
	httpserver.Respond(w, http.StatusOK, publicUserView(updated))
}

func (h *UserHandler) handleGetTOTPCode(w http.ResponseWriter, r *http.Request) {
	id, ok := requireIdentity(w, r)
	if !ok {
		return
	}
	ctx := r.Context()
	b, err := h.deps.bundle(ctx, id.ApplicationID)
	if err != nil {
		httpserver.RespondError(w, http.StatusInternalServerError, "internal", "failed to resolve application")
		return
	}
	target, err := b.UserStore.GetByID(ctx, id.UserID)
	if err != nil || target == nil {
		httpserver.RespondError(w, http.StatusNotFound, "not_found", "no such user")
		return
	}
	secret, err := b.Users.GetTOTPCode(ctx, target, "")
	if err != nil {
		httpserver.RespondError(w, http.StatusInternalServerError, "internal", "failed to generate totp secret")
		return
	}
	httpserver.Respond(w, http.StatusOK, map[string]string{"secret": secret})
}

type activateTwoFARequest struct {
	Code string `json:"code" validate:"required"`
}

func (h *UserHandler) handleActivateTwoFA(w http.ResponseWriter, r *http.Request) {
	id, ok := requireIdentity(w, r)
	if !ok {
		return
	}
	var req activateTwoFARequest
	if !httpserver.DecodeAndValidate(w, r, &req) {
		return
	}
	ctx := r.Context()
	b, err := h.deps.bundle(ctx, id.ApplicationID)
	if err != nil {
		httpserver.RespondError(w, http.StatusInternalServerError, "internal", "failed to resolve application")
		return
	}
	target, err := b.UserStore.GetByID(ctx, id.UserID)
	if err != nil || target == nil {
		httpserver.RespondError(w, http.StatusNotFound, "not_found", "no such user")
		return
	}
	if err := b.Users.ActivateTwoFA(ctx, target, req.Code); err != nil {
		respondUserError(w, err)
		return
	}
	httpserver.Respond(w, http.StatusNoContent, nil)
}

// publicUserView strips secrets (password hash, Kyber key material, 2FA
// secret) from a User before it ever reaches a response body.
func publicUserView(u *user.User) map[string]any {
	return map[string]any{
		"id":               u.ID,
		"login":            u.Login,
		"email":            u.Email,
		"first_name":       u.FirstName,
		"last_name":        u.LastName,
		"roles":            u.Roles,
		"application_id":   u.ApplicationID,
		"is_validated":     u.IsValidated,
		"is_2fa_activated": u.Is2FAActivated,
	}
}

func respondUserError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, user.ErrUpgradeRequired):
		httpserver.RespondError(w, http.StatusUpgradeRequired, "upgrade_required", err.Error())
	case errors.Is(err, user.ErrNotFound):
		httpserver.RespondError(w, http.StatusNotFound, "not_found", err.Error())
	case errors.Is(err, user.ErrConflict):
		httpserver.RespondError(w, http.StatusConflict, "conflict", err.Error())
	case errors.Is(err, user.ErrUnauthorized):
		httpserver.RespondError(w, http.StatusUnauthorized, "unauthorized", err.Error())
	case errors.Is(err, user.ErrTooManyRequests):
		httpserver.RespondError(w, http.StatusTooManyRequests, "too_many_requests", err.Error())
	case errors.Is(err, user.ErrRequestTimeout):
		httpserver.RespondError(w, http.StatusRequestTimeout, "expired", err.Error())
	case errors.Is(err, user.ErrInvalidOTP):
		httpserver.RespondError(w, http.StatusUnauthorized, "invalid_otp", err.Error())
	case errors.Is(err, user.ErrAlreadyValidated):
		httpserver.RespondError(w, http.StatusConflict, "already_validated", err.Error())
	default:
		httpserver.RespondError(w, http.StatusInternalServerError, "internal", "unexpected error")
	}
}
