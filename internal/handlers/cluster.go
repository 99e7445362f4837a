package handlers

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/keyward/keyward/internal/httpserver"
	"github.com/keyward/keyward/pkg/cluster"
	"github.com/keyward/keyward/pkg/policy"
)

// ClusterHandler mounts the ClusterGraph routes: cluster CRUD and its three
// membership edge tables (users, Sentinels, AnonymousSentinels).
type ClusterHandler struct{ deps *Deps }

// NewClusterHandler builds a ClusterHandler.
func NewClusterHandler(deps *Deps) *ClusterHandler { return &ClusterHandler{deps: deps} }

// AuthenticatedRoutes returns the /clusters routes, which require
// ROLE_USER or above; write operations additionally require the caller be
// the cluster's creator or an admin, enforced inside pkg/cluster.Graph.
func (h *ClusterHandler) AuthenticatedRoutes() chi.Router {
	r := chi.NewRouter()
	r.Post("/", h.handleCreate)
	r.Get("/{id}/members", h.handleMembers)
	r.Post("/{id}/memberships", h.handleAddMemberships)
	r.Delete("/{id}/memberships", h.handleRemoveMemberships)
	r.Post("/{id}/sentinels", h.handleAddSentinels)
	r.Delete("/{id}/sentinels", h.handleRemoveSentinels)
	r.Post("/{id}/anonymous_sentinels", h.handleAddAnonymousSentinels)
	r.Delete("/{id}/anonymous_sentinels", h.handleRemoveAnonymousSentinels)
	r.Delete("/{id}", h.handleDelete)
	return r
}

type createClusterRequest struct {
	Name        string   `json:"name" validate:"required"`
	Description *string  `json:"description"`
	Memberships []string `json:"memberships"`
}

func (h *ClusterHandler) handleCreate(w http.ResponseWriter, r *http.Request) {
	id, ok := requireRole(w, r, policy.RoleUser)
	if !ok {
		return
	}
	var req createClusterRequest
	if !httpserver.DecodeAndValidate(w, r, &req) {
		return
	}
	ctx := r.Context()
	b, err := h.deps.bundle(ctx, id.ApplicationID)
	if err != nil {
		httpserver.RespondError(w, http.StatusInternalServerError, "internal", "failed to resolve application")
		return
	}
	c, err := b.Clusters.Create(ctx, id.ApplicationID, req.Name, req.Description, req.Memberships, id.UserID)
	if err != nil {
		httpserver.RespondError(w, http.StatusInternalServerError, "internal", "failed to create cluster")
		return
	}
	httpserver.Respond(w, http.StatusCreated, clusterView(c))
}

type membershipRequest struct {
	UserIDs []string `json:"user_ids" validate:"required,min=1"`
}

func (h *ClusterHandler) handleAddMemberships(w http.ResponseWriter, r *http.Request) {
	h.withCluster(w, r, func(ctx *clusterRequestContext) {
		var req membershipRequest
		if !httpserver.DecodeAndValidate(ctx.w, ctx.r, &req) {
			return
		}
		c, err := ctx.graph.AddMemberships(ctx.ctx, ctx.clusterID, ctx.id.ApplicationID, req.UserIDs, ctx.id.UserID, ctx.id.IsAdmin)
		ctx.respond(c, err)
	})
}

func (h *ClusterHandler) handleRemoveMemberships(w http.ResponseWriter, r *http.Request) {
	h.withCluster(w, r, func(ctx *clusterRequestContext) {
		var req membershipRequest
		if !httpserver.DecodeAndValidate(ctx.w, ctx.r, &req) {
			return
		}
		c, err := ctx.graph.RemoveMemberships(ctx.ctx, ctx.clusterID, ctx.id.ApplicationID, req.UserIDs, ctx.id.UserID, ctx.id.IsAdmin)
		ctx.respond(c, err)
	})
}

type sentinelIDsRequest struct {
	SentinelIDs []string `json:"sentinel_ids" validate:"required,min=1"`
}

func (h *ClusterHandler) handleAddSentinels(w http.ResponseWriter, r *http.Request) {
	h.withCluster(w, r, func(ctx *clusterRequestContext) {
		var req sentinelIDsRequest
		if !httpserver.DecodeAndValidate(ctx.w, ctx.r, &req) {
			return
		}
		c, err := ctx.graph.AddSentinels(ctx.ctx, ctx.clusterID, ctx.id.ApplicationID, req.SentinelIDs, ctx.id.UserID, ctx.id.IsAdmin)
		ctx.respond(c, err)
	})
}

func (h *ClusterHandler) handleRemoveSentinels(w http.ResponseWriter, r *http.Request) {
	h.withCluster(w, r, func(ctx *clusterRequestContext) {
		var req sentinelIDsRequest
		if !httpserver.DecodeAndValidate(ctx.w, ctx.r, &req) {
			return
		}
		c, err := ctx.graph.RemoveSentinels(ctx.ctx, ctx.clusterID, ctx.id.ApplicationID, req.SentinelIDs, ctx.id.UserID, ctx.id.IsAdmin)
		ctx.respond(c, err)
	})
}

func (h *ClusterHandler) handleAddAnonymousSentinels(w http.ResponseWriter, r *http.Request) {
	h.withCluster(w, r, func(ctx *clusterRequestContext) {
		var req sentinelIDsRequest
		if !httpserver.DecodeAndValidate(ctx.w, ctx.r, &req) {
			return
		}
		c, err := ctx.graph.AddAnonymousSentinels(ctx.ctx, ctx.clusterID, ctx.id.ApplicationID, req.SentinelIDs, ctx.id.UserID, ctx.id.IsAdmin)
		ctx.respond(c, err)
	})
}

func (h *ClusterHandler) handleRemoveAnonymousSentinels(w http.ResponseWriter, r *http.Request) {
	h.withCluster(w, r, func(ctx *clusterRequestContext) {
		var req sentinelIDsRequest
		if !httpserver.DecodeAndValidate(ctx.w, ctx.r, &req) {
			return
		}
		c, err := ctx.graph.RemoveAnonymousSentinels(ctx.ctx, ctx.clusterID, ctx.id.ApplicationID, req.SentinelIDs, ctx.id.UserID, ctx.id.IsAdmin)
		ctx.respond(c, err)
	})
}

func (h *ClusterHandler) handleDelete(w http.ResponseWriter, r *http.Request) {
	id, ok := requireRole(w, r, policy.RoleUser)
	if !ok {
		return
	}
	clusterID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		httpserver.RespondError(w, http.StatusBadRequest, "bad_request", "invalid cluster id")
		return
	}
	ctx := r.Context()
	b, err := h.deps.bundle(ctx, id.ApplicationID)
	if err != nil {
		httpserver.RespondError(w, http.StatusInternalServerError, "internal", "failed to resolve application")
		return
	}
	if err := b.Clusters.Delete(ctx, clusterID, id.ApplicationID, id.UserID, id.IsAdmin); err != nil {
		respondClusterError(w, err)
		return
	}
	httpserver.Respond(w, http.StatusNoContent, nil)
}

func (h *ClusterHandler) handleMembers(w http.ResponseWriter, r *http.Request) {
	id, ok := requireRole(w, r, policy.RoleUser)
	if !ok {
		return
	}
	clusterID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		httpserver.RespondError(w, http.StatusBadRequest, "bad_request", "invalid cluster id")
		return
	}
	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	pageSize, _ := strconv.Atoi(r.URL.Query().Get("page_size"))

	ctx := r.Context()
	b, err := h.deps.bundle(ctx, id.ApplicationID)
	if err != nil {
		httpserver.RespondError(w, http.StatusInternalServerError, "internal", "failed to resolve application")
		return
	}
	members, total, err := b.Clusters.Members(ctx, clusterID, id.ApplicationID, page, pageSize)
	if err != nil {
		httpserver.RespondError(w, http.StatusInternalServerError, "internal", "failed to list members")
		return
	}
	httpserver.Respond(w, http.StatusOK, map[string]any{
		"members": members,
		"total":   total,
	})
}

// clusterRequestContext bundles the per-request state the membership/key
// mutation handlers share, since each one differs only in which Graph
// method it calls.
type clusterRequestContext struct {
	w         http.ResponseWriter
	r         *http.Request
	ctx       context.Context
	id        identity
	graph     *cluster.Graph
	clusterID uuid.UUID
}

func (c *clusterRequestContext) respond(cl *cluster.Cluster, err error) {
	if err != nil {
		respondClusterError(c.w, err)
		return
	}
	httpserver.Respond(c.w, http.StatusOK, clusterView(cl))
}

func (h *ClusterHandler) withCluster(w http.ResponseWriter, r *http.Request, fn func(*clusterRequestContext)) {
	id, ok := requireRole(w, r, policy.RoleUser)
	if !ok {
		return
	}
	clusterID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		httpserver.RespondError(w, http.StatusBadRequest, "bad_request", "invalid cluster id")
		return
	}
	b, err := h.deps.bundle(r.Context(), id.ApplicationID)
	if err != nil {
		httpserver.RespondError(w, http.StatusInternalServerError, "internal", "failed to resolve application")
		return
	}
	fn(&clusterRequestContext{
		w:         w,
		r:         r,
		ctx:       r.Context(),
		id:        id,
		graph:     b.Clusters,
		clusterID: clusterID,
	})
}

func clusterView(c *cluster.Cluster) map[string]any {
	return map[string]any{
		"id":             c.ID,
		"application_id": c.ApplicationID,
		"name":           c.Name,
		"description":    c.Description,
		"created_at":     c.CreatedAt,
	}
}

func respondClusterError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, cluster.ErrNotFound):
		httpserver.RespondError(w, http.StatusNotFound, "not_found", err.Error())
	case errors.Is(err, cluster.ErrForbidden):
		httpserver.RespondError(w, http.StatusForbidden, "forbidden", err.Error())
	default:
		httpserver.RespondError(w, http.StatusInternalServerError, "internal", "unexpected error")
	}
}
