package authn

import (
	"crypto/rsa"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/go-jose/go-jose/v4"
	"github.com/go-jose/go-jose/v4/jwt"
	"github.com/google/uuid"
)

// TokenMinter signs and verifies all four token kinds with a single RSA
// keypair.
type TokenMinter struct {
	signerAccess jose.Signer
	publicKey    *rsa.PublicKey

	accessDuration  time.Duration
	refreshDuration time.Duration
	openIDDuration  time.Duration
	oauthDuration   time.Duration
}

// MinterConfig holds the durations for each token kind.
type MinterConfig struct {
	AccessDuration  time.Duration
	RefreshDuration time.Duration
	OpenIDDuration  time.Duration
	OAuthDuration   time.Duration
}

// NewTokenMinter builds a TokenMinter from an RSA keypair.
func NewTokenMinter(privateKey *rsa.PrivateKey, publicKey *rsa.PublicKey, cfg MinterConfig) (*TokenMinter, error) {
	signer, err := jose.NewSigner(
		jose.SigningKey{Algorithm: jose.RS256, Key: privateKey},
		(&jose.SignerOptions{}).WithType("JWT"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating RS256 signer: %w", err)
	}

	return &TokenMinter{
		signerAccess:    signer,
		publicKey:       publicKey,
		accessDuration:  cfg.AccessDuration,
		refreshDuration: cfg.RefreshDuration,
		openIDDuration:  cfg.OpenIDDuration,
		oauthDuration:   cfg.OAuthDuration,
	}, nil
}

// UserClaimsInput carries the fields needed to mint an access or refresh
// token for a user.
type UserClaimsInput struct {
	UserID          uuid.UUID
	Login           string
	ApplicationID   int
	ApplicationName string
	Is2FAActivated  bool
	Roles           []string
	FirstName       string
	LastName        string
	Email           string
	DeviceID        string
}

// MintAccessToken signs a 15-minute (by default) access token bound to a
// device ID.
func (m *TokenMinter) MintAccessToken(in UserClaimsInput) (string, error) {
	return m.mintUserToken(in, false, m.accessDuration)
}

// MintRefreshToken signs a long-lived refresh token. Refresh tokens are not
// bound to a device ID: the anti-replay guard only applies to access tokens.
func (m *TokenMinter) MintRefreshToken(in UserClaimsInput) (string, error) {
	in.DeviceID = ""
	return m.mintUserToken(in, true, m.refreshDuration)
}

func (m *TokenMinter) mintUserToken(in UserClaimsInput, isRefresh bool, duration time.Duration) (string, error) {
	now := time.Now()
	claims := Claims{
		Claims: jwt.Claims{
			IssuedAt: jwt.NewNumericDate(now),
			Expiry:   jwt.NewNumericDate(now.Add(duration)),
		},
		ID:              in.UserID.String(),
		Login:           in.Login,
		ApplicationID:   in.ApplicationID,
		ApplicationName: in.ApplicationName,
		IsRefresh:       isRefresh,
		Is2FAActivated:  in.Is2FAActivated,
		Roles:           in.Roles,
		FirstName:       in.FirstName,
		LastName:        in.LastName,
		Email:           in.Email,
		DeviceID:        in.DeviceID,
	}

	token, err := jwt.Signed(m.signerAccess).Claims(claims).Serialize()
	if err != nil {
		return "", fmt.Errorf("signing token: %w", err)
	}
	return token, nil
}

// VerifyUserToken checks the signature and expiry of an access or refresh
// token and returns its claims.
func (m *TokenMinter) VerifyUserToken(raw string) (*Claims, error) {
	tok, err := jwt.ParseSigned(raw, []jose.SignatureAlgorithm{jose.RS256})
	if err != nil {
		return nil, fmt.Errorf("parsing token: %w", err)
	}

	var claims Claims
	if err := tok.Claims(m.publicKey, &claims); err != nil {
		return nil, fmt.Errorf("verifying token: %w", err)
	}

	if err := claims.Claims.Validate(jwt.Expected{Time: time.Now()}); err != nil {
		return nil, fmt.Errorf("validating claims: %w", err)
	}

	return &claims, nil
}

// MintOpenIDToken signs an identity assertion for a user, separate from the
// access/refresh pair.
func (m *TokenMinter) MintOpenIDToken(userID uuid.UUID) (string, error) {
	now := time.Now()
	claims := OpenIDClaims{
		Claims: jwt.Claims{
			Subject:  userID.String(),
			IssuedAt: jwt.NewNumericDate(now),
			Expiry:   jwt.NewNumericDate(now.Add(m.openIDDuration)),
		},
	}
	token, err := jwt.Signed(m.signerAccess).Claims(claims).Serialize()
	if err != nil {
		return "", fmt.Errorf("signing openid token: %w", err)
	}
	return token, nil
}

// VerifyOpenIDToken checks and parses an openid token.
func (m *TokenMinter) VerifyOpenIDToken(raw string) (*OpenIDClaims, error) {
	tok, err := jwt.ParseSigned(raw, []jose.SignatureAlgorithm{jose.RS256})
	if err != nil {
		return nil, fmt.Errorf("parsing token: %w", err)
	}
	var claims OpenIDClaims
	if err := tok.Claims(m.publicKey, &claims); err != nil {
		return nil, fmt.Errorf("verifying token: %w", err)
	}
	if err := claims.Claims.Validate(jwt.Expected{Time: time.Now()}); err != nil {
		return nil, fmt.Errorf("validating claims: %w", err)
	}
	return &claims, nil
}

// MintOAuthCode signs a short-lived authorization code binding a user ID to
// the SHA-256 digest of the caller-supplied state value.
func (m *TokenMinter) MintOAuthCode(userID uuid.UUID, state string) (string, error) {
	now := time.Now()
	claims := OAuthClaims{
		Claims: jwt.Claims{
			IssuedAt: jwt.NewNumericDate(now),
			Expiry:   jwt.NewNumericDate(now.Add(m.oauthDuration)),
		},
		ID:           userID.String(),
		StateControl: hashState(state),
	}
	token, err := jwt.Signed(m.signerAccess).Claims(claims).Serialize()
	if err != nil {
		return "", fmt.Errorf("signing oauth code: %w", err)
	}
	return token, nil
}

// VerifyOAuthCode checks the code's signature, expiry, and that it was
// issued for the given state, in constant time.
func (m *TokenMinter) VerifyOAuthCode(raw, state string) (*OAuthClaims, error) {
	tok, err := jwt.ParseSigned(raw, []jose.SignatureAlgorithm{jose.RS256})
	if err != nil {
		return nil, fmt.Errorf("parsing oauth code: %w", err)
	}
	var claims OAuthClaims
	if err := tok.Claims(m.publicKey, &claims); err != nil {
		return nil, fmt.Errorf("verifying oauth code: %w", err)
	}
	if err := claims.Claims.Validate(jwt.Expected{Time: time.Now()}); err != nil {
		return nil, fmt.Errorf("validating claims: %w", err)
	}

	want := hashState(state)
	if subtle.ConstantTimeCompare([]byte(claims.StateControl), []byte(want)) != 1 {
		return nil, fmt.Errorf("state mismatch")
	}

	return &claims, nil
}

func hashState(state string) string {
	sum := sha256.Sum256([]byte(state))
	return hex.EncodeToString(sum[:])
}
