// Package user implements the UserRegistry: account creation, email
// validation, password reset, two-factor activation, and the per-user
// Kyber keypair every account carries alongside its password.
package user

import (
	"time"

	"github.com/google/uuid"
)

// User is an Application-scoped account.
type User struct {
	ID              uuid.UUID
	Email           string
	FirstName       string
	LastName        string
	TwoFASecret     string
	Is2FAActivated  bool
	Login           string
	Roles           []string
	PasswordHash    *string
	KyberSecretKey  string
	KyberPublicKey  string
	IV              string
	IsDeleted       bool
	CreatedAt       time.Time
	UpdatedAt       *time.Time
	DeletedAt       *time.Time
	CreatedByID     *uuid.UUID
	UpdatedByID     *uuid.UUID
	DeletedByID     *uuid.UUID
	RefreshToken    *string
	ApplicationID   int
	RestrictedIPs   []string
	IsValidated     bool
	ValidationCode  *string
	ValidationTries int
	ForgetCodeDelay *time.Time
}
