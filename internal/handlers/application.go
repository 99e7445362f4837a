package handlers

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/keyward/keyward/internal/httpserver"
	"github.com/keyward/keyward/pkg/application"
	"github.com/keyward/keyward/pkg/policy"
)

// ApplicationHandler mounts the Application lifecycle routes: creation
// provisions a fresh PostgreSQL schema and runs its migrations, so these
// routes are gated to ROLE_SUPER_ADMIN end to end.
type ApplicationHandler struct{ deps *Deps }

// NewApplicationHandler builds an ApplicationHandler.
func NewApplicationHandler(deps *Deps) *ApplicationHandler { return &ApplicationHandler{deps: deps} }

// AuthenticatedRoutes returns the /applications routes.
func (h *ApplicationHandler) AuthenticatedRoutes() chi.Router {
	r := chi.NewRouter()
	r.Post("/", h.handleCreate)
	r.Get("/", h.handleList)
	r.Get("/{id}", h.handleGet)
	r.Delete("/{id}", h.handleDelete)
	return r
}

type createApplicationRequest struct {
	Name         string `json:"name" validate:"required"`
	ContactEmail string `json:"contact_email" validate:"required,email"`
}

func (h *ApplicationHandler) handleCreate(w http.ResponseWriter, r *http.Request) {
	id, ok := requireRole(w, r, policy.RoleSuperAdmin)
	if !ok {
		return
	}
	var req createApplicationRequest
	if !httpserver.DecodeAndValidate(w, r, &req) {
		return
	}
	actor := id.UserID
	app, err := h.deps.Provisioner.Provision(r.Context(), req.Name, req.ContactEmail, false, &actor)
	if err != nil {
		httpserver.RespondError(w, http.StatusInternalServerError, "internal", "failed to provision application")
		return
	}
	httpserver.Respond(w, http.StatusCreated, applicationView(app))
}

func (h *ApplicationHandler) handleList(w http.ResponseWriter, r *http.Request) {
	if _, ok := requireRole(w, r, policy.RoleSuperAdmin); !ok {
		return
	}
	params, err := httpserver.ParseOffsetParams(r)
	if err != nil {
		httpserver.RespondError(w, http.StatusBadRequest, "bad_request", err.Error())
		return
	}
	apps, err := h.deps.Applications.List(r.Context(), params.PageSize, params.Offset)
	if err != nil {
		httpserver.RespondError(w, http.StatusInternalServerError, "internal", "failed to list applications")
		return
	}
	total, err := h.deps.Applications.Count(r.Context())
	if err != nil {
		httpserver.RespondError(w, http.StatusInternalServerError, "internal", "failed to count applications")
		return
	}
	views := make([]map[string]any, 0, len(apps))
	for _, a := range apps {
		views = append(views, applicationView(a))
	}
	httpserver.Respond(w, http.StatusOK, httpserver.NewOffsetPage(views, params, total))
}

func (h *ApplicationHandler) handleGet(w http.ResponseWriter, r *http.Request) {
	if _, ok := requireRole(w, r, policy.RoleSuperAdmin); !ok {
		return
	}
	appID, err := strconv.Atoi(chi.URLParam(r, "id"))
	if err != nil {
		httpserver.RespondError(w, http.StatusBadRequest, "bad_request", "invalid application id")
		return
	}
	app, err := h.deps.Applications.GetByID(r.Context(), appID)
	if err != nil {
		httpserver.RespondError(w, http.StatusInternalServerError, "internal", "failed to look up application")
		return
	}
	if app == nil {
		httpserver.RespondError(w, http.StatusNotFound, "not_found", "no such application")
		return
	}
	httpserver.Respond(w, http.StatusOK, applicationView(app))
}

// handleDelete tombstones the Application record. It deliberately does not
// drop the schema: that is a separate, explicit operation operators run
// out of band once they're certain the key material should be destroyed.
func (h *ApplicationHandler) handleDelete(w http.ResponseWriter, r *http.Request) {
	id, ok := requireRole(w, r, policy.RoleSuperAdmin)
	if !ok {
		return
	}
	appID, err := strconv.Atoi(chi.URLParam(r, "id"))
	if err != nil {
		httpserver.RespondError(w, http.StatusBadRequest, "bad_request", "invalid application id")
		return
	}
	actor := id.UserID
	if err := h.deps.Applications.SoftDelete(r.Context(), appID, &actor); err != nil {
		httpserver.RespondError(w, http.StatusInternalServerError, "internal", "failed to delete application")
		return
	}
	h.deps.Tenants.Evict(appID)
	httpserver.Respond(w, http.StatusNoContent, nil)
}

func applicationView(a *application.Application) map[string]any {
	return map[string]any{
		"id":            a.ID,
		"name":          a.Name,
		"contact_email": a.ContactEmail,
		"is_system":     a.IsSystem,
		"keys_number":   a.KeysNumber,
		"users_number":  a.UsersNumber,
		"created_at":    a.CreatedAt,
	}
}
