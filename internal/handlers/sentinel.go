package handlers

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/keyward/keyward/internal/audit"
	"github.com/keyward/keyward/internal/httpserver"
	"github.com/keyward/keyward/pkg/policy"
	"github.com/keyward/keyward/pkg/sentinel"
)

// SentinelHandler mounts the symmetric Sentinel and Kyber AnonymousSentinel
// custody routes.
type SentinelHandler struct{ deps *Deps }

// NewSentinelHandler builds a SentinelHandler.
func NewSentinelHandler(deps *Deps) *SentinelHandler { return &SentinelHandler{deps: deps} }

// AuthenticatedRoutes returns the /sentinels routes, which require
// ROLE_USER or above.
func (h *SentinelHandler) AuthenticatedRoutes() chi.Router {
	r := chi.NewRouter()
	r.Post("/", h.handleCreate)
	r.Get("/{id}", h.handleGet)
	r.Delete("/{id}", h.handleDelete)
	return r
}

// AuthenticatedAnonymousRoutes returns the authenticated /anonymous_sentinels
// routes.
func (h *SentinelHandler) AuthenticatedAnonymousRoutes() chi.Router {
	r := chi.NewRouter()
	r.Post("/", h.handleCreateAnonymous)
	r.Get("/{id}", h.handleGetAnonymous)
	r.Delete("/{id}", h.handleDeleteAnonymous)
	return r
}

// PublicAnonymousRoutes returns the credential-less /anonymous_sentinels/public
// routes used for device enrollment.
func (h *SentinelHandler) PublicAnonymousRoutes() chi.Router {
	r := chi.NewRouter()
	r.Post("/", h.handleCreateAnonymousPublic)
	r.Get("/{id}", h.handleGetAnonymousPublic)
	return r
}

type createSentinelRequest struct {
	ClusterIDs []string `json:"cluster_ids"`
}

func (h *SentinelHandler) handleCreate(w http.ResponseWriter, r *http.Request) {
	id, ok := requireRole(w, r, policy.RoleUser)
	if !ok {
		return
	}
	var req createSentinelRequest
	if !httpserver.DecodeAndValidate(w, r, &req) {
		return
	}
	ctx := r.Context()
	b, err := h.deps.bundle(ctx, id.ApplicationID)
	if err != nil {
		httpserver.RespondError(w, http.StatusInternalServerError, "internal", "failed to resolve application")
		return
	}

	s, key, err := b.Sentinels.CreateSentinel(ctx, id.ApplicationID, id.UserID, req.ClusterIDs)
	if err != nil {
		respondSentinelError(w, err)
		return
	}
	h.recordAudit(r, id, s.ID, "create")
	httpserver.Respond(w, http.StatusCreated, sentinelView(s, key))
}

func (h *SentinelHandler) handleGet(w http.ResponseWriter, r *http.Request) {
	id, ok := requireRole(w, r, policy.RoleUser)
	if !ok {
		return
	}
	sentinelID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		httpserver.RespondError(w, http.StatusBadRequest, "bad_request", "invalid sentinel id")
		return
	}
	ctx := r.Context()
	b, err := h.deps.bundle(ctx, id.ApplicationID)
	if err != nil {
		httpserver.RespondError(w, http.StatusInternalServerError, "internal", "failed to resolve application")
		return
	}

	s, key, err := b.Sentinels.GetSentinel(ctx, sentinelID, id.ApplicationID, id.UserID, id.IsAdmin)
	result := "success"
	if err != nil {
		result = "failure"
	}
	h.deps.Audit.Record(audit.Event{
		Kind:          "sentinel.retrieve",
		ApplicationID: id.ApplicationID,
		ActorID:       id.UserID.String(),
		Subject:       sentinelID.String(),
		Metadata: map[string]any{
			"result": result,
			"ip":     clientIP(r),
		},
		OccurredAt: time.Now(),
	})
	if err != nil {
		respondSentinelError(w, err)
		return
	}
	httpserver.Respond(w, http.StatusOK, sentinelView(s, key))
}

func (h *SentinelHandler) handleDelete(w http.ResponseWriter, r *http.Request) {
	id, ok := requireRole(w, r, policy.RoleUser)
	if !ok {
		return
	}
	sentinelID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		httpserver.RespondError(w, http.StatusBadRequest, "bad_request", "invalid sentinel id")
		return
	}
	ctx := r.Context()
	b, err := h.deps.bundle(ctx, id.ApplicationID)
	if err != nil {
		httpserver.RespondError(w, http.StatusInternalServerError, "internal", "failed to resolve application")
		return
	}
	if err := b.Sentinels.DeleteSentinel(ctx, sentinelID, id.ApplicationID, id.UserID, id.IsAdmin); err != nil {
		respondSentinelError(w, err)
		return
	}
	h.recordAudit(r, id, sentinelID, "delete")
	httpserver.Respond(w, http.StatusNoContent, nil)
}

type createAnonymousSentinelRequest struct {
	ClusterIDs []string `json:"cluster_ids"`
}

func (h *SentinelHandler) handleCreateAnonymous(w http.ResponseWriter, r *http.Request) {
	id, ok := requireRole(w, r, policy.RoleUser)
	if !ok {
		return
	}
	var req createAnonymousSentinelRequest
	if !httpserver.DecodeAndValidate(w, r, &req) {
		return
	}
	ctx := r.Context()
	b, err := h.deps.bundle(ctx, id.ApplicationID)
	if err != nil {
		httpserver.RespondError(w, http.StatusInternalServerError, "internal", "failed to resolve application")
		return
	}
	userID := id.UserID
	a, secret, err := b.Sentinels.CreateAnonymousSentinel(ctx, id.ApplicationID, &userID, req.ClusterIDs)
	if err != nil {
		respondSentinelError(w, err)
		return
	}
	httpserver.Respond(w, http.StatusCreated, anonymousSentinelView(a, secret))
}

func (h *SentinelHandler) handleGetAnonymous(w http.ResponseWriter, r *http.Request) {
	id, ok := requireRole(w, r, policy.RoleUser)
	if !ok {
		return
	}
	sentinelID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		httpserver.RespondError(w, http.StatusBadRequest, "bad_request", "invalid sentinel id")
		return
	}
	ctx := r.Context()
	b, err := h.deps.bundle(ctx, id.ApplicationID)
	if err != nil {
		httpserver.RespondError(w, http.StatusInternalServerError, "internal", "failed to resolve application")
		return
	}
	a, secret, err := b.Sentinels.GetAnonymousSentinel(ctx, sentinelID, id.ApplicationID, id.UserID, id.IsAdmin)
	if err != nil {
		respondSentinelError(w, err)
		return
	}
	httpserver.Respond(w, http.StatusOK, anonymousSentinelView(a, secret))
}

func (h *SentinelHandler) handleDeleteAnonymous(w http.ResponseWriter, r *http.Request) {
	id, ok := requireRole(w, r, policy.RoleUser)
	if !ok {
		return
	}
	sentinelID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		httpserver.RespondError(w, http.StatusBadRequest, "bad_request", "invalid sentinel id")
		return
	}
	ctx := r.Context()
	b, err := h.deps.bundle(ctx, id.ApplicationID)
	if err != nil {
		httpserver.RespondError(w, http.StatusInternalServerError, "internal", "failed to resolve application")
		return
	}
	if err := b.Sentinels.DeleteAnonymousSentinel(ctx, sentinelID, id.ApplicationID, id.UserID, id.IsAdmin); err != nil {
		respondSentinelError(w, err)
		return
	}
	httpserver.Respond(w, http.StatusNoContent, nil)
}

type createAnonymousSentinelPublicRequest struct {
	ApplicationID int `json:"application_id" validate:"required"`
}

// handleCreateAnonymousPublic enrolls a Kyber keypair with no credential
// beyond the target Application, e.g. for an unauthenticated device.
func (h *SentinelHandler) handleCreateAnonymousPublic(w http.ResponseWriter, r *http.Request) {
	var req createAnonymousSentinelPublicRequest
	if !httpserver.DecodeAndValidate(w, r, &req) {
		return
	}
	ctx := r.Context()
	b, err := h.deps.bundle(ctx, req.ApplicationID)
	if err != nil {
		httpserver.RespondError(w, http.StatusInternalServerError, "internal", "failed to resolve application")
		return
	}
	a, secret, err := b.Sentinels.CreateAnonymousSentinel(ctx, req.ApplicationID, nil, nil)
	if err != nil {
		respondSentinelError(w, err)
		return
	}
	httpserver.Respond(w, http.StatusCreated, anonymousSentinelView(a, secret))
}

func (h *SentinelHandler) handleGetAnonymousPublic(w http.ResponseWriter, r *http.Request) {
	sentinelID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		httpserver.RespondError(w, http.StatusBadRequest, "bad_request", "invalid sentinel id")
		return
	}
	applicationID, err := strconv.Atoi(r.URL.Query().Get("application_id"))
	if err != nil {
		httpserver.RespondError(w, http.StatusBadRequest, "bad_request", "application_id is required")
		return
	}
	ctx := r.Context()
	b, err := h.deps.bundle(ctx, applicationID)
	if err != nil {
		httpserver.RespondError(w, http.StatusInternalServerError, "internal", "failed to resolve application")
		return
	}
	a, err := b.Sentinels.GetAnonymousSentinelPublic(ctx, sentinelID)
	if err != nil {
		respondSentinelError(w, err)
		return
	}
	httpserver.Respond(w, http.StatusOK, anonymousSentinelView(a, ""))
}

func (h *SentinelHandler) recordAudit(r *http.Request, id identity, sentinelID uuid.UUID, kind string) {
	h.deps.Audit.Record(audit.Event{
		Kind:          "sentinel." + kind,
		ApplicationID: id.ApplicationID,
		ActorID:       id.UserID.String(),
		Subject:       sentinelID.String(),
		Metadata: map[string]any{
			"ip": clientIP(r),
		},
		OccurredAt: time.Now(),
	})
}

// aesKeySizeLabel and kyberKeySizeLabel render a bit count the way the
// rest of the custody API names a key strength.
func aesKeySizeLabel(bits int) string  { return fmt.Sprintf("AES-%d", bits) }
func kyberKeySizeLabel(bits int) string { return fmt.Sprintf("KYBER-%d", bits) }

func sentinelView(s *sentinel.Sentinel, key string) map[string]any {
	return map[string]any{
		"id":             s.ID,
		"application_id": s.ApplicationID,
		"key_size":       aesKeySizeLabel(s.KeySize),
		"key":            key,
		"created_at":     s.CreatedAt,
	}
}

func anonymousSentinelView(a *sentinel.AnonymousSentinel, secret string) map[string]any {
	out := map[string]any{
		"id":             a.ID,
		"application_id": a.ApplicationID,
		"key_size":       kyberKeySizeLabel(a.KeySize),
		"public_key":     a.PublicKey,
		"created_at":     a.CreatedAt,
	}
	if secret != "" {
		out["secret_key"] = secret
	}
	return out
}

func respondSentinelError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, sentinel.ErrNotFound):
		httpserver.RespondError(w, http.StatusNotFound, "not_found", err.Error())
	case errors.Is(err, sentinel.ErrChecksumInvalid):
		httpserver.RespondError(w, http.StatusConflict, "checksum_invalid", err.Error())
	case errors.Is(err, sentinel.ErrUnauthorized):
		httpserver.RespondError(w, http.StatusForbidden, "forbidden", err.Error())
	default:
		httpserver.RespondError(w, http.StatusInternalServerError, "internal", "unexpected error")
	}
}
