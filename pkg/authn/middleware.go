package authn

import (
	"context"
	"net/http"
	"strings"

	"github.com/keyward/keyward/internal/httpserver"
)

type contextKey string

const claimsKey contextKey = "authn_claims"

// ClaimsFromContext extracts the verified, freshly-reloaded claims attached
// by Middleware, or nil if the request carried none.
func ClaimsFromContext(ctx context.Context) *Claims {
	v, _ := ctx.Value(claimsKey).(*Claims)
	return v
}

// TenantUserLookup resolves the UserLookup for a single Application, so
// Middleware can reload a request's user without depending on the registry
// that builds one Bundle per Application (that package already depends on
// this one, for Engine and TokenMinter).
type TenantUserLookup interface {
	ForApplication(ctx context.Context, applicationID int) (UserLookup, error)
}

// Middleware re-authenticates every request: it decodes the bearer token,
// reloads the user it names, and — unless dev mode is enabled — verifies
// the anti-replay headers. Every failure collapses to Forbidden, matching
// the guard this was drawn from: a deleted or demoted user's still
// cryptographically valid token must stop working on the very next request,
// not merely at its natural expiry.
type Middleware struct {
	Minter         *TokenMinter
	Guard          *AntiReplayGuard
	Users          TenantUserLookup
	DevModeAllowed bool
}

func forbidden(w http.ResponseWriter, msg string) {
	httpserver.RespondError(w, http.StatusForbidden, "forbidden", msg)
}

// Authenticate verifies the bearer token, reloads the user it names, and —
// unless dev mode is enabled — the anti-replay headers, then attaches the
// reloaded claims to the request context. It rejects directly on every
// failure state instead of deferring to RequireAuth: NoToken, RefreshToken,
// UserMissing, DeviceMismatch, and NonceReplay all answer Forbidden.
func (m *Middleware) Authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		authHeader := r.Header.Get("Authorization")
		if !strings.HasPrefix(authHeader, "Bearer ") {
			forbidden(w, "no token found")
			return
		}
		raw := strings.TrimPrefix(authHeader, "Bearer ")

		claims, err := m.Minter.VerifyUserToken(raw)
		if err != nil {
			forbidden(w, "no token found")
			return
		}
		if claims.IsRefresh {
			forbidden(w, "no token found")
			return
		}

		lookup, err := m.Users.ForApplication(r.Context(), claims.ApplicationID)
		if err != nil {
			forbidden(w, "no token found")
			return
		}
		user, err := lookup.GetByLoginAndApplication(r.Context(), claims.Login, claims.ApplicationID)
		if err != nil || user == nil {
			forbidden(w, "no token found")
			return
		}

		// The reload is also where a role rewrite (e.g. an unvalidated
		// user demoted to ROLE_VALIDATION) takes effect, since it is
		// applied by the lookup itself rather than trusted from the token.
		claims.Roles = user.Roles
		claims.Is2FAActivated = user.Is2FAActivated
		claims.FirstName = user.FirstName
		claims.LastName = user.LastName
		claims.Email = user.Email
		claims.ApplicationName = user.ApplicationName

		if !m.DevModeAllowed {
			nonce := r.Header.Get("X-NONCE")
			fingerprint := r.Header.Get("X-FINGERPRINT")
			userAgent := r.Header.Get("User-Agent")

			if err := m.Guard.Check(r.Context(), claims.DeviceID, nonce, fingerprint, userAgent); err != nil {
				forbidden(w, "wrong anti-replay headers")
				return
			}
		}

		ctx := context.WithValue(r.Context(), claimsKey, claims)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// RequireAuth is a defense-in-depth backstop: Authenticate never calls
// through to next without a verified identity attached, so this should
// never trigger in practice. It answers Forbidden rather than Unauthorized
// to stay consistent with Authenticate's failure states.
func RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if ClaimsFromContext(r.Context()) == nil {
			forbidden(w, "no token found")
			return
		}
		next.ServeHTTP(w, r)
	})
}
