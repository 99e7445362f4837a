package user

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/keyward/keyward/pkg/application"
	"github.com/keyward/keyward/pkg/authn"
	"github.com/keyward/keyward/pkg/pqkyber"
	"github.com/keyward/keyward/pkg/sealer"
)

// Sentinel errors returned by Registry operations; callers map these to
// HTTP statuses the way the original service's Status results did.
var (
	ErrUpgradeRequired  = errors.New("user: application license does not allow further user creation")
	ErrNotFound         = errors.New("user: not found")
	ErrConflict         = errors.New("user: login or email already in use")
	ErrUnauthorized     = errors.New("user: unauthorized")
	ErrTooManyRequests  = errors.New("user: too many attempts, a new code has been issued")
	ErrRequestTimeout   = errors.New("user: reset code has expired")
	ErrInvalidOTP       = errors.New("user: invalid one-time code")
	ErrAlreadyValidated = errors.New("user: account already validated")
)

// LicenseGate is the subset of pkg/policy.LicenseCell the registry needs to
// decide whether a new user may be created.
type LicenseGate interface {
	AllowUserCreation(currentUsers int) bool
	KyberKeySize() int
}

// ApplicationLookup resolves the Application a user is being created
// against. Declared narrowly to avoid forcing every caller to hold a full
// *application.Store.
type ApplicationLookup interface {
	GetByID(ctx context.Context, id int) (*application.Application, error)
}

// Registry implements the UserRegistry: account lifecycle, email
// validation, password resets, two-factor activation, and per-user Kyber
// keypairs. It is built once per Application (its Store is already scoped
// to that Application's schema).
type Registry struct {
	Store        *Store
	Connexions   *ConnexionStore
	Applications ApplicationLookup
	License      LicenseGate
	Sealer       sealer.Sealer
	Mailer       Mailer
}

// NewRegistry builds a Registry.
func NewRegistry(store *Store, connexions *ConnexionStore, apps ApplicationLookup, license LicenseGate, seal sealer.Sealer, mailer Mailer) *Registry {
	return &Registry{Store: store, Connexions: connexions, Applications: apps, License: license, Sealer: seal, Mailer: mailer}
}

func (r *Registry) checkIfUnique(ctx context.Context, login string) error {
	exists, err := r.Store.ExistsByLogin(ctx, login)
	if err != nil {
		return err
	}
	if exists {
		return ErrConflict
	}
	return nil
}

func (r *Registry) allowCreation(ctx context.Context) error {
	count, err := r.Store.Count(ctx)
	if err != nil {
		return fmt.Errorf("counting users for license check: %w", err)
	}
	if !r.License.AllowUserCreation(count) {
		return ErrUpgradeRequired
	}
	return nil
}

// PublicSignupInput is a self-service registration request, unauthenticated
// beyond the target Application.
type PublicSignupInput struct {
	ApplicationID int
	Login         string
	Email         string
	FirstName     string
	LastName      string
	Password      string
}

// CreateUserPublic registers a new account against an Application's public
// signup endpoint. It mints the account's personal Kyber keypair up front,
// the way every account carries one from creation.
func (r *Registry) CreateUserPublic(ctx context.Context, in PublicSignupInput) (*User, error) {
	if err := r.allowCreation(ctx); err != nil {
		return nil, err
	}
	app, err := r.Applications.GetByID(ctx, in.ApplicationID)
	if err != nil {
		return nil, fmt.Errorf("looking up application: %w", err)
	}
	if app == nil {
		return nil, ErrNotFound
	}
	if err := r.checkIfUnique(ctx, in.Login); err != nil {
		return nil, err
	}

	hash, err := authn.HashPassword(in.Password)
	if err != nil {
		return nil, fmt.Errorf("hashing password: %w", err)
	}

	sk, pk, iv, err := r.sealKyberKeypair(ctx)
	if err != nil {
		return nil, fmt.Errorf("generating kyber keypair: %w", err)
	}

	validationCode, err := authn.GenerateResetCode()
	if err != nil {
		return nil, fmt.Errorf("generating validation code: %w", err)
	}
	validationCodeHash, err := authn.HashPassword(validationCode)
	if err != nil {
		return nil, fmt.Errorf("hashing validation code: %w", err)
	}

	u := &User{
		Email:          in.Email,
		FirstName:      in.FirstName,
		LastName:       in.LastName,
		Login:          in.Login,
		Roles:          []string{"ROLE_USER"},
		PasswordHash:   &hash,
		KyberSecretKey: sk,
		KyberPublicKey: pk,
		IV:             iv,
		ApplicationID:  in.ApplicationID,
		IsValidated:    false,
		ValidationCode: &validationCodeHash,
	}
	created, err := r.Store.Create(ctx, u)
	if err != nil {
		return nil, fmt.Errorf("creating user: %w", err)
	}
	if err := r.Mailer.SendValidationCode(ctx, created.Email, created.Login, validationCode); err != nil {
		return nil, fmt.Errorf("sending validation code: %w", err)
	}
	return created, nil
}

// ValidateUser confirms a self-service signup via its emailed validation
// code. On the third wrong attempt the code is rotated and re-sent, and a
// "too many requests" error is returned instead of a plain unauthorized —
// preserved exactly from the original check order (compare, THEN look at
// the try counter) rather than incrementing before comparing.
func (r *Registry) ValidateUser(ctx context.Context, u *User, code string) (*User, error) {
	if u.IsValidated {
		return u, ErrAlreadyValidated
	}
	if u.ValidationCode == nil || !authn.CompareHash(*u.ValidationCode, code) {
		if u.ValidationTries >= 2 {
			newCode, err := authn.GenerateResetCode()
			if err != nil {
				return nil, fmt.Errorf("generating new validation code: %w", err)
			}
			newHash, err := authn.HashPassword(newCode)
			if err != nil {
				return nil, fmt.Errorf("hashing new validation code: %w", err)
			}
			if err := r.Store.SetValidationCode(ctx, u.ID, newHash); err != nil {
				return nil, err
			}
			if err := r.Mailer.SendValidationCode(ctx, u.Email, u.Login, newCode); err != nil {
				return nil, fmt.Errorf("sending validation code: %w", err)
			}
			return nil, ErrTooManyRequests
		}
		if err := r.Store.IncrementValidationTries(ctx, u.ID); err != nil {
			return nil, err
		}
		return nil, ErrUnauthorized
	}
	if err := r.Store.MarkValidated(ctx, u.ID); err != nil {
		return nil, err
	}
	u.IsValidated = true
	return u, nil
}

// SendResetCode emails a freshly generated reset code if the login/app pair
// resolves to a user. It deliberately reports success either way to the
// caller (the original silently no-ops on an unknown login), so callers
// must not use its return value to probe for account existence.
func (r *Registry) SendResetCode(ctx context.Context, login string, applicationID int) error {
	u, err := r.Store.GetByLoginAndApplication(ctx, login, applicationID)
	if err != nil {
		return fmt.Errorf("looking up user: %w", err)
	}
	if u == nil {
		return nil
	}
	code, err := authn.GenerateResetCode()
	if err != nil {
		return fmt.Errorf("generating reset code: %w", err)
	}
	hash, err := authn.HashPassword(code)
	if err != nil {
		return fmt.Errorf("hashing reset code: %w", err)
	}
	if err := r.Store.SetValidationCode(ctx, u.ID, hash); err != nil {
		return err
	}
	if err := r.Store.SetForgetCodeDelay(ctx, u.ID, time.Now().Add(15*time.Minute)); err != nil {
		return err
	}
	return r.Mailer.SendResetCode(ctx, u.Email, u.Login, code)
}

// ResetUserCode consumes a reset code and sets a new password. The try
// counter is incremented on a missing code, a mismatched code, and a
// missing expiry, all of which are checked before the expiry itself. A
// matching code that has expired returns ErrRequestTimeout without
// consuming a try.
func (r *Registry) ResetUserCode(ctx context.Context, login string, applicationID int, code, newPassword string) (*User, error) {
	u, err := r.Store.GetByLoginAndApplication(ctx, login, applicationID)
	if err != nil {
		return nil, fmt.Errorf("looking up user: %w", err)
	}
	if u == nil {
		return nil, ErrUnauthorized
	}
	if u.ValidationTries >= 2 {
		return nil, ErrTooManyRequests
	}
	if u.ValidationCode == nil {
		_ = r.Store.IncrementValidationTries(ctx, u.ID)
		return nil, ErrNotFound
	}
	if !authn.CompareHash(*u.ValidationCode, code) {
		_ = r.Store.IncrementValidationTries(ctx, u.ID)
		return nil, ErrUnauthorized
	}
	if u.ForgetCodeDelay == nil {
		_ = r.Store.IncrementValidationTries(ctx, u.ID)
		return nil, ErrUnauthorized
	}
	if !u.ForgetCodeDelay.After(time.Now()) {
		return nil, ErrRequestTimeout
	}

	hash, err := authn.HashPassword(newPassword)
	if err != nil {
		return nil, fmt.Errorf("hashing new password: %w", err)
	}
	if err := r.Store.UpdatePasswordHash(ctx, u.ID, hash, nil); err != nil {
		return nil, err
	}
	if err := r.Store.ClearResetState(ctx, u.ID); err != nil {
		return nil, err
	}
	return u, nil
}

// AdminCreateInput is an authenticated account-creation request, issued by
// an admin or super-admin on behalf of another user.
type AdminCreateInput struct {
	ApplicationID int
	Login         string
	Email         string
	FirstName     string
	LastName      string
	Password      string
	Roles         []string
	IsAdmin       bool
}

// CreateUser is the admin-issued account creation path. A super-admin must
// explicitly mark the new account as an admin; a plain admin may only
// create users within its own Application.
func (r *Registry) CreateUser(ctx context.Context, in AdminCreateInput, actorApplicationID int, isSuperAdmin bool) (*User, error) {
	if err := r.allowCreation(ctx); err != nil {
		return nil, err
	}
	if isSuperAdmin && !in.IsAdmin {
		return nil, ErrUnauthorized
	}
	app, err := r.Applications.GetByID(ctx, in.ApplicationID)
	if err != nil {
		return nil, fmt.Errorf("looking up application: %w", err)
	}
	if app == nil {
		return nil, ErrNotFound
	}
	if !isSuperAdmin && actorApplicationID != app.ID {
		return nil, ErrUnauthorized
	}
	if err := r.checkIfUnique(ctx, in.Login); err != nil {
		return nil, err
	}

	hash, err := authn.HashPassword(in.Password)
	if err != nil {
		return nil, fmt.Errorf("hashing password: %w", err)
	}
	sk, pk, iv, err := r.sealKyberKeypair(ctx)
	if err != nil {
		return nil, fmt.Errorf("generating kyber keypair: %w", err)
	}

	u := &User{
		Email:          in.Email,
		FirstName:      in.FirstName,
		LastName:       in.LastName,
		Login:          in.Login,
		Roles:          in.Roles,
		PasswordHash:   &hash,
		KyberSecretKey: sk,
		KyberPublicKey: pk,
		IV:             iv,
		ApplicationID:  in.ApplicationID,
		IsValidated:    true,
	}
	return r.Store.Create(ctx, u)
}

// UpdatePassword changes a user's password. A non-admin caller may only
// change their own password; an admin may change any password within its
// own Application.
func (r *Registry) UpdatePassword(ctx context.Context, targetID uuid.UUID, actorID uuid.UUID, actorApplicationID int, newPassword string, isAdmin bool) (*User, error) {
	target, err := r.Store.GetByID(ctx, targetID)
	if err != nil {
		return nil, fmt.Errorf("looking up target user: %w", err)
	}
	if target == nil {
		return nil, ErrNotFound
	}
	if isAdmin {
		if target.ApplicationID != actorApplicationID {
			return nil, ErrUnauthorized
		}
	} else if target.ID != actorID {
		return nil, ErrUnauthorized
	}

	hash, err := authn.HashPassword(newPassword)
	if err != nil {
		return nil, fmt.Errorf("hashing password: %w", err)
	}
	if err := r.Store.UpdatePasswordHash(ctx, targetID, hash, &actorID); err != nil {
		return nil, err
	}
	return target, nil
}

// DeleteUser removes an account. A non-super-admin may only delete their
// own account, and doing so decrements the Application's cached user
// counter; a super-admin deleting another account does not, since that
// account belongs to a different Application's counter the super-admin
// isn't scoped to here.
func (r *Registry) DeleteUser(ctx context.Context, targetID, actorID uuid.UUID, isSuperAdmin bool, decrementApp func(ctx context.Context) error) error {
	if !isSuperAdmin && targetID != actorID {
		return ErrUnauthorized
	}
	if err := r.Store.SoftDelete(ctx, targetID, &actorID); err != nil {
		return err
	}
	if !isSuperAdmin && decrementApp != nil {
		return decrementApp(ctx)
	}
	return nil
}

// GetTOTPCode issues a fresh TOTP secret for the user to scan into an
// authenticator app. The secret is not yet active until confirmed via
// ActivateTwoFA.
func (r *Registry) GetTOTPCode(ctx context.Context, u *User, applicationName string) (secret string, err error) {
	secret, err = authn.GenerateTOTPSecret(u.Login, applicationName)
	if err != nil {
		return "", fmt.Errorf("generating totp secret: %w", err)
	}
	if err := r.Store.SetTOTPSecret(ctx, u.ID, secret); err != nil {
		return "", err
	}
	return secret, nil
}

// ActivateTwoFA confirms a TOTP code against the secret set by
// GetTOTPCode and flips the user's 2FA flag.
func (r *Registry) ActivateTwoFA(ctx context.Context, u *User, code string) error {
	if !authn.CheckOTP(code, u.TwoFASecret) {
		return ErrInvalidOTP
	}
	return r.Store.ActivateTwoFA(ctx, u.ID)
}

// CheckNewConnexion warns the user by email if this IP or this fingerprint
// has never been seen for their account before. It does not block the login.
func (r *Registry) CheckNewConnexion(ctx context.Context, u *User, ip, fingerprint, userAgent string) error {
	unfamiliar, err := r.isUnfamiliar(ctx, u.ID, ip, fingerprint)
	if err != nil {
		return err
	}
	if unfamiliar {
		return r.Mailer.SendUnfamiliarConnexion(ctx, u.Email, u.Login, ip, userAgent)
	}
	return nil
}

// CheckOTPOnUnfamiliarConnexion requires a valid TOTP code before allowing
// a login from an IP or a fingerprint never seen for this account, even
// when the account does not otherwise have 2FA activated.
func (r *Registry) CheckOTPOnUnfamiliarConnexion(ctx context.Context, u *User, otp, ip, fingerprint, userAgent string) error {
	unfamiliar, err := r.isUnfamiliar(ctx, u.ID, ip, fingerprint)
	if err != nil {
		return err
	}
	if !unfamiliar {
		return nil
	}
	if otp == "" || !authn.CheckOTP(otp, u.TwoFASecret) {
		return ErrUnauthorized
	}
	return r.Mailer.SendUnfamiliarConnexion(ctx, u.Email, u.Login, ip, userAgent)
}

func (r *Registry) isUnfamiliar(ctx context.Context, userID uuid.UUID, ip, fingerprint string) (bool, error) {
	hasIP, err := r.Connexions.HasIP(ctx, userID, ip)
	if err != nil {
		return false, err
	}
	hasFP, err := r.Connexions.HasFingerprint(ctx, userID, fingerprint)
	if err != nil {
		return false, err
	}
	return !hasIP || !hasFP, nil
}

// ReinitKyberKeypair replaces a user's personal Kyber keypair, used when a
// key is suspected compromised or on a periodic rotation schedule.
func (r *Registry) ReinitKyberKeypair(ctx context.Context, u *User) (*User, error) {
	sk, pk, iv, err := r.sealKyberKeypair(ctx)
	if err != nil {
		return nil, fmt.Errorf("generating kyber keypair: %w", err)
	}
	if err := r.Store.UpdatePQ(ctx, u.ID, sk, pk, iv); err != nil {
		return nil, err
	}
	u.KyberSecretKey, u.KyberPublicKey, u.IV = sk, pk, iv
	return u, nil
}

// sealKyberKeypair generates a Kyber keypair sized to the Application's
// license tier and seals both halves under a single freshly generated IV.
func (r *Registry) sealKyberKeypair(ctx context.Context) (sealedSecret, sealedPublic, iv string, err error) {
	pub, sec, err := pqkyber.GenerateKeyPair(r.License.KyberKeySize())
	if err != nil {
		return "", "", "", fmt.Errorf("generating kyber keypair: %w", err)
	}
	iv, err = r.Sealer.GenerateIV()
	if err != nil {
		return "", "", "", fmt.Errorf("generating iv: %w", err)
	}
	sealedSecret, err = r.Sealer.Encrypt(ctx, sec, iv)
	if err != nil {
		return "", "", "", fmt.Errorf("sealing secret key: %w", err)
	}
	sealedPublic, err = r.Sealer.Encrypt(ctx, pub, iv)
	if err != nil {
		return "", "", "", fmt.Errorf("sealing public key: %w", err)
	}
	return sealedSecret, sealedPublic, iv, nil
}
