package authn

import (
	"context"
	"fmt"

	"github.com/google/uuid"
)

// AuthUser is the subset of a user record the AuthEngine needs to verify
// credentials and mint tokens.
type AuthUser struct {
	ID              uuid.UUID
	Login           string
	PasswordHash    string
	ApplicationID   int
	ApplicationName string
	Is2FAActivated  bool
	TwoFASecret     string
	Roles           []string
	FirstName       string
	LastName        string
	Email           string
}

// UserLookup resolves a user by login within an Application. It is
// satisfied by pkg/user's registry; declared here to keep this package free
// of a dependency on the user store.
type UserLookup interface {
	GetByLoginAndApplication(ctx context.Context, login string, applicationID int) (*AuthUser, error)
}

// RevocationStore tracks revoked refresh tokens, checked before a refresh
// token's signature is even verified: a revoked-but-still-cryptographically-
// valid token must never mint new credentials.
type RevocationStore interface {
	IsRevoked(ctx context.Context, rawToken string) (bool, error)
	Revoke(ctx context.Context, rawToken string) error
}

// Engine orchestrates credential verification and token issuance.
type Engine struct {
	Users   UserLookup
	Revoked RevocationStore
	Minter  *TokenMinter
}

// NewEngine builds an Engine.
func NewEngine(users UserLookup, revoked RevocationStore, minter *TokenMinter) *Engine {
	return &Engine{Users: users, Revoked: revoked, Minter: minter}
}

// CheckCredentials verifies a login/password pair within an Application.
func (e *Engine) CheckCredentials(ctx context.Context, login, password string, applicationID int) (*AuthUser, error) {
	user, err := e.Users.GetByLoginAndApplication(ctx, login, applicationID)
	if err != nil {
		return nil, fmt.Errorf("looking up user: %w", err)
	}
	if user == nil || !CompareHash(user.PasswordHash, password) {
		return nil, fmt.Errorf("invalid credentials")
	}
	return user, nil
}

// CheckRefreshToken verifies a refresh token: first against the revocation
// store, then its signature and is_refresh claim. Checking revocation first
// means a revoked token is rejected even if it would otherwise still
// cryptographically verify.
func (e *Engine) CheckRefreshToken(ctx context.Context, rawToken string) (*Claims, error) {
	revoked, err := e.Revoked.IsRevoked(ctx, rawToken)
	if err != nil {
		return nil, fmt.Errorf("checking revocation: %w", err)
	}
	if revoked {
		return nil, fmt.Errorf("token has been revoked")
	}

	claims, err := e.Minter.VerifyUserToken(rawToken)
	if err != nil {
		return nil, fmt.Errorf("verifying refresh token: %w", err)
	}
	if !claims.IsRefresh {
		return nil, fmt.Errorf("not a refresh token")
	}
	return claims, nil
}

// RevokeToken marks a refresh token as revoked, e.g. on logout.
func (e *Engine) RevokeToken(ctx context.Context, rawToken string) error {
	return e.Revoked.Revoke(ctx, rawToken)
}

// GenerateCredentials mints the access/refresh/openid triple for a user,
// binding the access token to deviceID.
func (e *Engine) GenerateCredentials(user *AuthUser, deviceID string) (access, refresh, openID string, err error) {
	in := UserClaimsInput{
		UserID:          user.ID,
		Login:           user.Login,
		ApplicationID:   user.ApplicationID,
		ApplicationName: user.ApplicationName,
		Is2FAActivated:  user.Is2FAActivated,
		Roles:           user.Roles,
		FirstName:       user.FirstName,
		LastName:        user.LastName,
		Email:           user.Email,
		DeviceID:        deviceID,
	}

	access, err = e.Minter.MintAccessToken(in)
	if err != nil {
		return "", "", "", fmt.Errorf("minting access token: %w", err)
	}
	refresh, err = e.Minter.MintRefreshToken(in)
	if err != nil {
		return "", "", "", fmt.Errorf("minting refresh token: %w", err)
	}
	openID, err = e.Minter.MintOpenIDToken(user.ID)
	if err != nil {
		return "", "", "", fmt.Errorf("minting openid token: %w", err)
	}
	return access, refresh, openID, nil
}

// CheckOTP verifies a TOTP code when the user has 2FA activated. It returns
// true when no further check is needed (2FA disabled).
func (e *Engine) CheckOTP(user *AuthUser, code string) (bool, error) {
	if !user.Is2FAActivated {
		return true, nil
	}
	if code == "" {
		return false, fmt.Errorf("2fa code required")
	}
	if !CheckOTP(code, user.TwoFASecret) {
		return false, fmt.Errorf("invalid 2fa code")
	}
	return true, nil
}
