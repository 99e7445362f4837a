package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/keyward/keyward/internal/httpserver"
	"github.com/keyward/keyward/pkg/authn"
	"github.com/keyward/keyward/pkg/policy"
	"github.com/keyward/keyward/pkg/user"
)

// AuthHandler mounts the public authentication surface: login, refresh,
// and the signup/validation/reset flows that precede it.
type AuthHandler struct{ deps *Deps }

// NewAuthHandler builds an AuthHandler.
func NewAuthHandler(deps *Deps) *AuthHandler { return &AuthHandler{deps: deps} }

// PublicRoutes returns the unauthenticated auth routes.
func (h *AuthHandler) PublicRoutes() chi.Router {
	r := chi.NewRouter()
	r.Post("/", h.handleLogin)
	r.Post("/refresh", h.handleRefresh)
	return r
}

type loginRequest struct {
	Login         string `json:"login" validate:"required"`
	Password      string `json:"password" validate:"required"`
	ApplicationID int    `json:"application_id" validate:"required"`
	Fingerprint   string `json:"fingerprint" validate:"required"`
	Code2FA       string `json:"code_2fa"`
}

type authOutput struct {
	AccessToken  string `json:"access_token"`
	TokenType    string `json:"token_type"`
	RefreshToken string `json:"refresh_token"`
	OpenID       string `json:"open_id"`
}

// handleLogin verifies credentials, the OTP-on-unfamiliar-device rule, and
// mints the access/refresh/openid triple.
func (h *AuthHandler) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if !httpserver.DecodeAndValidate(w, r, &req) {
		return
	}
	ctx := r.Context()

	b, err := h.deps.bundle(ctx, req.ApplicationID)
	if err != nil {
		httpserver.RespondError(w, http.StatusInternalServerError, "internal", "failed to resolve application")
		return
	}

	authUser, err := b.Auth.CheckCredentials(ctx, req.Login, req.Password, req.ApplicationID)
	if err != nil {
		httpserver.RespondError(w, http.StatusUnauthorized, "unauthorized", "invalid credentials")
		return
	}

	if ok, err := b.Auth.CheckOTP(authUser, req.Code2FA); err != nil || !ok {
		httpserver.RespondError(w, http.StatusUnauthorized, "unauthorized", "invalid or missing one-time code")
		return
	}

	storedUser, err := b.UserStore.GetByID(ctx, authUser.ID)
	if err != nil || storedUser == nil {
		httpserver.RespondError(w, http.StatusUnauthorized, "unauthorized", "invalid credentials")
		return
	}

	userAgent := r.Header.Get("User-Agent")
	ip := clientIP(r)
	if err := b.Users.CheckOTPOnUnfamiliarConnexion(ctx, storedUser, req.Code2FA, ip, req.Fingerprint, userAgent); err != nil {
		httpserver.RespondError(w, http.StatusUnauthorized, "unauthorized", "one-time code required for this device")
		return
	}
	_ = b.Users.Connexions.Record(ctx, storedUser.ID, ip, userAgent, req.Fingerprint)

	h.deps.License.Refresh(policy.StaticSource(h.deps.License.Tier()))

	deviceID := authn.DeviceID(req.Fingerprint, userAgent)
	access, refresh, openID, err := b.Auth.GenerateCredentials(authUser, deviceID)
	if err != nil {
		httpserver.RespondError(w, http.StatusInternalServerError, "internal", "failed to mint credentials")
		return
	}

	httpserver.Respond(w, http.StatusOK, authOutput{
		AccessToken:  access,
		TokenType:    "Bearer",
		RefreshToken: refresh,
		OpenID:       openID,
	})
}

type refreshRequest struct {
	RefreshToken  string `json:"refresh_token" validate:"required"`
	ApplicationID int    `json:"application_id" validate:"required"`
	Fingerprint   string `json:"fingerprint" validate:"required"`
}

// handleRefresh verifies and rotates a refresh token: the old one is
// revoked and a fresh access/refresh/openid triple is minted.
func (h *AuthHandler) handleRefresh(w http.ResponseWriter, r *http.Request) {
	var req refreshRequest
	if !httpserver.DecodeAndValidate(w, r, &req) {
		return
	}
	ctx := r.Context()

	b, err := h.deps.bundle(ctx, req.ApplicationID)
	if err != nil {
		httpserver.RespondError(w, http.StatusInternalServerError, "internal", "failed to resolve application")
		return
	}

	claims, err := b.Auth.CheckRefreshToken(ctx, req.RefreshToken)
	if err != nil {
		httpserver.RespondError(w, http.StatusUnauthorized, "unauthorized", "invalid or revoked refresh token")
		return
	}
	userID, err := uuid.Parse(claims.ID)
	if err != nil {
		httpserver.RespondError(w, http.StatusUnauthorized, "unauthorized", "invalid token subject")
		return
	}
	storedUser, err := b.UserStore.GetByID(ctx, userID)
	if err != nil || storedUser == nil {
		httpserver.RespondError(w, http.StatusUnauthorized, "unauthorized", "user no longer exists")
		return
	}

	authUser, err := userAuthView(storedUser, claims.ApplicationName)
	if err != nil {
		httpserver.RespondError(w, http.StatusInternalServerError, "internal", "failed to rebuild identity")
		return
	}

	if err := b.Auth.RevokeToken(ctx, req.RefreshToken); err != nil {
		httpserver.RespondError(w, http.StatusInternalServerError, "internal", "failed to revoke previous refresh token")
		return
	}

	deviceID := authn.DeviceID(req.Fingerprint, r.Header.Get("User-Agent"))
	access, refresh, openID, err := b.Auth.GenerateCredentials(authUser, deviceID)
	if err != nil {
		httpserver.RespondError(w, http.StatusInternalServerError, "internal", "failed to mint credentials")
		return
	}

	httpserver.Respond(w, http.StatusOK, authOutput{
		AccessToken:  access,
		TokenType:    "Bearer",
		RefreshToken: refresh,
		OpenID:       openID,
	})
}

// userAuthView rebuilds the narrow AuthUser shape GenerateCredentials needs
// from a freshly reloaded user row, applying the same unvalidated-account
// role rewrite AuthLookup applies at login.
func userAuthView(u *user.User, applicationName string) (*authn.AuthUser, error) {
	roles := u.Roles
	if !u.IsValidated {
		roles = []string{"ROLE_VALIDATION"}
	}
	return &authn.AuthUser{
		ID:              u.ID,
		Login:           u.Login,
		ApplicationID:   u.ApplicationID,
		ApplicationName: applicationName,
		Is2FAActivated:  u.Is2FAActivated,
		Roles:           roles,
		FirstName:       u.FirstName,
		LastName:        u.LastName,
		Email:           u.Email,
	}, nil
}

// handleLogout revokes the caller's refresh token. It is mounted by
// AuthenticatedRoutes rather than PublicRoutes since it needs a verified
// identity.
func (h *AuthHandler) handleLogout(w http.ResponseWriter, r *http.Request) {
	id, ok := requireIdentity(w, r)
	if !ok {
		return
	}
	var req struct {
		RefreshToken string `json:"refresh_token" validate:"required"`
	}
	if !httpserver.DecodeAndValidate(w, r, &req) {
		return
	}
	b, err := h.deps.bundle(r.Context(), id.ApplicationID)
	if err != nil {
		httpserver.RespondError(w, http.StatusInternalServerError, "internal", "failed to resolve application")
		return
	}
	if err := b.Auth.RevokeToken(r.Context(), req.RefreshToken); err != nil {
		httpserver.RespondError(w, http.StatusInternalServerError, "internal", "failed to revoke refresh token")
		return
	}
	httpserver.Respond(w, http.StatusNoContent, nil)
}

// AuthenticatedRoutes returns the authenticated auth routes (logout).
func (h *AuthHandler) AuthenticatedRoutes() chi.Router {
	r := chi.NewRouter()
	r.Post("/logout", h.handleLogout)
	return r
}
