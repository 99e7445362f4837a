// Package handlers mounts the HTTP surface for every domain package onto
// the chi routers internal/httpserver.NewServer builds, resolving each
// request's Application-scoped Bundle from pkg/tenant by the authenticated
// caller's application_id claim (or, for public endpoints, a
// caller-supplied application_id).
package handlers

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"

	"github.com/google/uuid"

	"github.com/keyward/keyward/internal/audit"
	"github.com/keyward/keyward/internal/httpserver"
	"github.com/keyward/keyward/pkg/application"
	"github.com/keyward/keyward/pkg/authn"
	"github.com/keyward/keyward/pkg/policy"
	"github.com/keyward/keyward/pkg/tenant"
)

// Deps holds the collaborators every handler group needs: the tenant
// Registry to resolve an Application's Bundle, the process-wide token
// minter and anti-replay guard shared across every Application, the
// license cell, the audit sink, and the global Application store and
// provisioner used by the super-admin-only application lifecycle routes.
type Deps struct {
	Tenants      *tenant.Registry
	Applications *application.Store
	Provisioner  *application.Provisioner
	Minter       *authn.TokenMinter
	Guard        *authn.AntiReplayGuard
	License      *policy.LicenseCell
	Audit        *audit.Sink
	Logger       *slog.Logger
	Version      string
}

// identity is the resolved caller of an authenticated request.
type identity struct {
	UserID        uuid.UUID
	ApplicationID int
	Roles         []string
	IsAdmin       bool
	IsSuperAdmin  bool
}

func identityFromClaims(c *authn.Claims) (identity, error) {
	id, err := uuid.Parse(c.ID)
	if err != nil {
		return identity{}, fmt.Errorf("parsing user id claim: %w", err)
	}
	return identity{
		UserID:        id,
		ApplicationID: c.ApplicationID,
		Roles:         c.Roles,
		IsAdmin:       policy.HasAtLeast(c.Roles, policy.RoleAdmin),
		IsSuperAdmin:  policy.IsSuperAdmin(c.Roles),
	}, nil
}

// requireIdentity extracts and parses the verified caller from the request
// context, writing an error response and returning ok=false on failure.
// authn.RequireAuth has already guaranteed a Claims value is present.
func requireIdentity(w http.ResponseWriter, r *http.Request) (identity, bool) {
	claims := authn.ClaimsFromContext(r.Context())
	if claims == nil {
		httpserver.RespondError(w, http.StatusUnauthorized, "unauthorized", "no token found")
		return identity{}, false
	}
	id, err := identityFromClaims(claims)
	if err != nil {
		httpserver.RespondError(w, http.StatusUnauthorized, "unauthorized", "invalid token subject")
		return identity{}, false
	}
	return id, true
}

// requireRole additionally enforces a minimum role rank.
func requireRole(w http.ResponseWriter, r *http.Request, required policy.Role) (identity, bool) {
	id, ok := requireIdentity(w, r)
	if !ok {
		return identity{}, false
	}
	if !policy.HasAtLeast(id.Roles, required) {
		httpserver.RespondError(w, http.StatusForbidden, "forbidden", "insufficient role")
		return identity{}, false
	}
	return id, true
}

func (d *Deps) bundle(ctx context.Context, applicationID int) (*tenant.Bundle, error) {
	return d.Tenants.Get(ctx, applicationID)
}

// clientIP extracts the caller's address for audit logging, preferring a
// proxy-set header since the service typically sits behind one.
func clientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		return fwd
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
