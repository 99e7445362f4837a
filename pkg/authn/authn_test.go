package authn

import (
	"crypto/rand"
	"crypto/rsa"
	"testing"
	"time"

	"github.com/google/uuid"
)

func testMinter(t *testing.T) *TokenMinter {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("generating test rsa key: %v", err)
	}
	minter, err := NewTokenMinter(key, &key.PublicKey, MinterConfig{
		AccessDuration:  15 * time.Minute,
		RefreshDuration: 7 * 24 * time.Hour,
		OpenIDDuration:  15 * time.Minute,
		OAuthDuration:   5 * time.Minute,
	})
	if err != nil {
		t.Fatalf("NewTokenMinter() error = %v", err)
	}
	return minter
}

func TestDeviceID_Deterministic(t *testing.T) {
	a := DeviceID("fp-1", "ua-1")
	b := DeviceID("fp-1", "ua-1")
	if a != b {
		t.Error("DeviceID should be deterministic")
	}
}

func TestDeviceID_MissingUserAgentTreatedAsEmpty(t *testing.T) {
	withEmpty := DeviceID("fp-1", "")
	explicit := DeviceID("fp-1", "")
	if withEmpty != explicit {
		t.Error("missing user agent should hash the same as an explicitly empty one")
	}
}

func TestDeviceID_DiffersByInput(t *testing.T) {
	a := DeviceID("fp-1", "ua-1")
	b := DeviceID("fp-2", "ua-1")
	if a == b {
		t.Error("different fingerprints should produce different device ids")
	}
}

func TestTokenMinter_AccessTokenRoundTrip(t *testing.T) {
	minter := testMinter(t)
	in := UserClaimsInput{
		UserID:        uuid.New(),
		Login:         "alice",
		ApplicationID: 1,
		Roles:         []string{"ROLE_USER"},
		DeviceID:      DeviceID("fp", "ua"),
	}

	token, err := minter.MintAccessToken(in)
	if err != nil {
		t.Fatalf("MintAccessToken() error = %v", err)
	}

	claims, err := minter.VerifyUserToken(token)
	if err != nil {
		t.Fatalf("VerifyUserToken() error = %v", err)
	}
	if claims.IsRefresh {
		t.Error("access token should not have IsRefresh = true")
	}
	if claims.Login != "alice" {
		t.Errorf("Login = %q, want alice", claims.Login)
	}
	if claims.DeviceID != in.DeviceID {
		t.Errorf("DeviceID = %q, want %q", claims.DeviceID, in.DeviceID)
	}
}

func TestTokenMinter_RefreshTokenHasNoDeviceID(t *testing.T) {
	minter := testMinter(t)
	in := UserClaimsInput{UserID: uuid.New(), Login: "bob", ApplicationID: 1, DeviceID: "should-be-stripped"}

	token, err := minter.MintRefreshToken(in)
	if err != nil {
		t.Fatalf("MintRefreshToken() error = %v", err)
	}
	claims, err := minter.VerifyUserToken(token)
	if err != nil {
		t.Fatalf("VerifyUserToken() error = %v", err)
	}
	if !claims.IsRefresh {
		t.Error("refresh token should have IsRefresh = true")
	}
	if claims.DeviceID != "" {
		t.Errorf("refresh token should not carry a device id, got %q", claims.DeviceID)
	}
}

func TestTokenMinter_OAuthCodeStateBinding(t *testing.T) {
	minter := testMinter(t)
	userID := uuid.New()

	code, err := minter.MintOAuthCode(userID, "state-abc")
	if err != nil {
		t.Fatalf("MintOAuthCode() error = %v", err)
	}

	if _, err := minter.VerifyOAuthCode(code, "state-abc"); err != nil {
		t.Errorf("VerifyOAuthCode() with matching state should succeed, got %v", err)
	}
	if _, err := minter.VerifyOAuthCode(code, "wrong-state"); err == nil {
		t.Error("VerifyOAuthCode() with mismatched state should fail")
	}
}

func TestTokenMinter_OpenIDRoundTrip(t *testing.T) {
	minter := testMinter(t)
	userID := uuid.New()

	token, err := minter.MintOpenIDToken(userID)
	if err != nil {
		t.Fatalf("MintOpenIDToken() error = %v", err)
	}
	claims, err := minter.VerifyOpenIDToken(token)
	if err != nil {
		t.Fatalf("VerifyOpenIDToken() error = %v", err)
	}
	if claims.Subject != userID.String() {
		t.Errorf("Subject = %q, want %q", claims.Subject, userID.String())
	}
}

func TestVerifyPasswordComplexity(t *testing.T) {
	tests := []struct {
		password string
		want     bool
	}{
		{"short1A", false},
		{"nouppercase1", false},
		{"NOLOWERCASE1", false},
		{"NoDigitsHere", false},
		{"ValidPass1", true},
	}

	for _, tt := range tests {
		t.Run(tt.password, func(t *testing.T) {
			if got := VerifyPasswordComplexity(tt.password); got != tt.want {
				t.Errorf("VerifyPasswordComplexity(%q) = %v, want %v", tt.password, got, tt.want)
			}
		})
	}
}

func TestHashPassword_RoundTrip(t *testing.T) {
	hash, err := HashPassword("correct horse battery staple")
	if err != nil {
		t.Fatalf("HashPassword() error = %v", err)
	}
	if !CompareHash(hash, "correct horse battery staple") {
		t.Error("CompareHash() should accept the original password")
	}
	if CompareHash(hash, "wrong password") {
		t.Error("CompareHash() should reject an incorrect password")
	}
}

func TestVerifyEmail(t *testing.T) {
	tests := []struct {
		email string
		want  bool
	}{
		{"user@example.com", true},
		{"not-an-email", false},
		{"user@domain", false},
		{"user@domain.co", true},
	}

	for _, tt := range tests {
		t.Run(tt.email, func(t *testing.T) {
			if got := VerifyEmail(tt.email); got != tt.want {
				t.Errorf("VerifyEmail(%q) = %v, want %v", tt.email, got, tt.want)
			}
		})
	}
}
