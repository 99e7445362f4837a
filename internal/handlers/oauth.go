package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/keyward/keyward/internal/httpserver"
	"github.com/keyward/keyward/pkg/authn"
	"github.com/keyward/keyward/pkg/policy"
)

// OAuthHandler mounts the service's own OAuth-code and OpenID verification
// surface: an already-authenticated caller exchanges its session for a
// short-lived authorization code another party can redeem for credentials,
// and any holder of an openid token can have it verified.
type OAuthHandler struct{ deps *Deps }

// NewOAuthHandler builds an OAuthHandler.
func NewOAuthHandler(deps *Deps) *OAuthHandler { return &OAuthHandler{deps: deps} }

// AuthenticatedRoutes returns /oauth/authorize, gated to ROLE_ADMIN since
// it mints credentials on behalf of another party. /oidc/verify, gated the
// same way, is returned by OIDCVerifyRoutes.
func (h *OAuthHandler) AuthenticatedRoutes() chi.Router {
	r := chi.NewRouter()
	r.Post("/authorize", h.handleAuthorize)
	return r
}

// OIDCVerifyRoutes returns /oidc/verify.
func (h *OAuthHandler) OIDCVerifyRoutes() chi.Router {
	r := chi.NewRouter()
	r.Post("/verify", h.handleVerifyOpenID)
	return r
}

// PublicRoutes returns /oauth/token, which redeems a code minted by
// handleAuthorize — the caller here is the third party, not the original
// user, so it is unauthenticated beyond possessing a valid code and state.
func (h *OAuthHandler) PublicRoutes() chi.Router {
	r := chi.NewRouter()
	r.Post("/token", h.handleToken)
	return r
}

type authorizeRequest struct {
	State string `json:"state" validate:"required"`
}

func (h *OAuthHandler) handleAuthorize(w http.ResponseWriter, r *http.Request) {
	id, ok := requireRole(w, r, policy.RoleAdmin)
	if !ok {
		return
	}
	var req authorizeRequest
	if !httpserver.DecodeAndValidate(w, r, &req) {
		return
	}
	code, err := h.deps.Minter.MintOAuthCode(id.UserID, req.State)
	if err != nil {
		httpserver.RespondError(w, http.StatusInternalServerError, "internal", "failed to mint authorization code")
		return
	}
	httpserver.Respond(w, http.StatusOK, map[string]string{"code": code})
}

type tokenRequest struct {
	Code          string `json:"code" validate:"required"`
	State         string `json:"state" validate:"required"`
	ApplicationID int    `json:"application_id" validate:"required"`
	Fingerprint   string `json:"fingerprint" validate:"required"`
}

func (h *OAuthHandler) handleToken(w http.ResponseWriter, r *http.Request) {
	var req tokenRequest
	if !httpserver.DecodeAndValidate(w, r, &req) {
		return
	}
	ctx := r.Context()

	claims, err := h.deps.Minter.VerifyOAuthCode(req.Code, req.State)
	if err != nil {
		httpserver.RespondError(w, http.StatusUnauthorized, "unauthorized", "invalid or expired authorization code")
		return
	}

	b, err := h.deps.bundle(ctx, req.ApplicationID)
	if err != nil {
		httpserver.RespondError(w, http.StatusInternalServerError, "internal", "failed to resolve application")
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

	app, err := h.deps.Applications.GetByID(ctx, req.ApplicationID)
	appName := ""
	if err == nil && app != nil {
		appName = app.Name
	}

	authUser, err := userAuthView(storedUser, appName)
	if err != nil {
		httpserver.RespondError(w, http.StatusInternalServerError, "internal", "failed to rebuild identity")
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

type verifyOpenIDRequest struct {
	OpenID string `json:"open_id" validate:"required"`
}

func (h *OAuthHandler) handleVerifyOpenID(w http.ResponseWriter, r *http.Request) {
	id, ok := requireRole(w, r, policy.RoleAdmin)
	if !ok {
		return
	}
	var req verifyOpenIDRequest
	if !httpserver.DecodeAndValidate(w, r, &req) {
		return
	}
	ctx := r.Context()

	claims, err := h.deps.Minter.VerifyOpenIDToken(req.OpenID)
	if err != nil {
		httpserver.RespondError(w, http.StatusUnauthorized, "unauthorized", "invalid or expired openid token")
		return
	}
	userID, err := uuid.Parse(claims.Subject)
	if err != nil {
		httpserver.RespondError(w, http.StatusUnauthorized, "unauthorized", "invalid token subject")
		return
	}

	b, err := h.deps.bundle(ctx, id.ApplicationID)
	if err != nil {
		httpserver.RespondError(w, http.StatusInternalServerError, "internal", "failed to resolve application")
		return
	}
	target, err := b.UserStore.GetByID(ctx, userID)
	if err != nil || target == nil {
		httpserver.RespondError(w, http.StatusNotFound, "not_found", "no such user")
		return
	}
	httpserver.Respond(w, http.StatusOK, publicUserView(target))
}
