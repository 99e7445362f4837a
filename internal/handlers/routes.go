package handlers

import "github.com/go-chi/chi/v5"

// MountPublic wires every handler group's unauthenticated routes onto
// router (internal/httpserver.Server.Router, served with no bearer-token
// requirement).
func MountPublic(router chi.Router, deps *Deps) {
	auth := NewAuthHandler(deps)
	router.Mount("/auth", auth.PublicRoutes())

	users := NewUserHandler(deps)
	router.Mount("/users", users.PublicRoutes())

	oauth := NewOAuthHandler(deps)
	router.Mount("/oauth", oauth.PublicRoutes())

	sentinels := NewSentinelHandler(deps)
	router.Mount("/anonymous_sentinels/public", sentinels.PublicAnonymousRoutes())

	system := NewSystemHandler(deps)
	router.Mount("/system", system.PublicRoutes())
}

// MountAuthenticated wires every handler group's authenticated routes onto
// router (internal/httpserver.Server.APIRouter, already behind
// authn.Middleware.Authenticate and authn.RequireAuth).
func MountAuthenticated(router chi.Router, deps *Deps) {
	auth := NewAuthHandler(deps)
	router.Mount("/auth", auth.AuthenticatedRoutes())

	users := NewUserHandler(deps)
	router.Mount("/users", users.AuthenticatedRoutes())

	applications := NewApplicationHandler(deps)
	router.Mount("/applications", applications.AuthenticatedRoutes())

	sentinels := NewSentinelHandler(deps)
	router.Mount("/sentinels", sentinels.AuthenticatedRoutes())
	router.Mount("/anonymous_sentinels", sentinels.AuthenticatedAnonymousRoutes())

	clusters := NewClusterHandler(deps)
	router.Mount("/clusters", clusters.AuthenticatedRoutes())

	oauth := NewOAuthHandler(deps)
	router.Mount("/oauth", oauth.AuthenticatedRoutes())
	router.Mount("/oidc", oauth.OIDCVerifyRoutes())

	system := NewSystemHandler(deps)
	router.Mount("/system", system.AuthenticatedRoutes())
}
