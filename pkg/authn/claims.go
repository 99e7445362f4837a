// Package authn implements the AuthEngine: RS256 token minting and
// verification for the four token kinds (access, refresh, openid,
// oauth-code), the anti-replay device-binding guard, password hashing, and
// TOTP-based two-factor verification.
package authn

import "github.com/go-jose/go-jose/v4/jwt"

// Kind distinguishes the four token shapes this service mints. All four are
// RS256-signed, unlike the HMAC session tokens this package's JWT plumbing
// was adapted from.
type Kind string

const (
	KindAccess  Kind = "access"
	KindRefresh Kind = "refresh"
	KindOpenID  Kind = "openid"
	KindOAuth   Kind = "oauth-code"
)

// Claims is the access/refresh token claim set. IsRefresh distinguishes the
// two: a refresh token presented where an access token is required (or vice
// versa) must be rejected by the caller.
type Claims struct {
	jwt.Claims
	ID              string   `json:"id"`
	Login           string   `json:"login"`
	ApplicationID   int      `json:"application_id"`
	ApplicationName string   `json:"application_name"`
	IsRefresh       bool     `json:"is_refresh"`
	Is2FAActivated  bool     `json:"is_2fa_activate"`
	Roles           []string `json:"roles"`
	FirstName       string   `json:"firstname"`
	LastName        string   `json:"lastname"`
	Email           string   `json:"email"`
	DeviceID        string   `json:"device_id,omitempty"`
}

// OpenIDClaims is the minimal identity assertion minted alongside a login,
// independent of the access/refresh pair. Subject (the user ID) and the
// issued-at/expiry pair live on the embedded registered claims.
type OpenIDClaims struct {
	jwt.Claims
}

// OAuthClaims binds an authorization code to the login state that produced
// it. StateControl is the hex-encoded SHA-256 digest of the original state
// value, never the state itself, so that the code alone cannot be replayed
// against a different state.
type OAuthClaims struct {
	jwt.Claims
	ID           string `json:"id"`
	StateControl string `json:"state_control"`
}
