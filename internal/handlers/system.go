package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/keyward/keyward/internal/httpserver"
	"github.com/keyward/keyward/pkg/policy"
)

// SystemHandler mounts the version and aggregate-informations endpoints.
type SystemHandler struct{ deps *Deps }

// NewSystemHandler builds a SystemHandler.
func NewSystemHandler(deps *Deps) *SystemHandler { return &SystemHandler{deps: deps} }

// PublicRoutes returns the /system/version route.
func (h *SystemHandler) PublicRoutes() chi.Router {
	r := chi.NewRouter()
	r.Get("/version", h.handleVersion)
	return r
}

// AuthenticatedRoutes returns the /system/informations route, restricted
// to ROLE_SUPER_ADMIN since it reports counters across every Application.
func (h *SystemHandler) AuthenticatedRoutes() chi.Router {
	r := chi.NewRouter()
	r.Get("/informations", h.handleInformations)
	return r
}

func (h *SystemHandler) handleVersion(w http.ResponseWriter, r *http.Request) {
	httpserver.Respond(w, http.StatusOK, map[string]string{"version": h.deps.Version})
}

func (h *SystemHandler) handleInformations(w http.ResponseWriter, r *http.Request) {
	if _, ok := requireRole(w, r, policy.RoleSuperAdmin); !ok {
		return
	}
	appCount, err := h.deps.Applications.Count(r.Context())
	if err != nil {
		httpserver.RespondError(w, http.StatusInternalServerError, "internal", "failed to count applications")
		return
	}
	httpserver.Respond(w, http.StatusOK, map[string]any{
		"version":           h.deps.Version,
		"applications_count": appCount,
		"license_tier":      h.deps.License.Tier(),
	})
}
