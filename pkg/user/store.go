package user

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/keyward/keyward/internal/db"
)

// Store is the User repository, writing SQL directly against an
// Application-scoped schema's users table.
type Store struct {
	db db.DBTX
}

// NewStore builds a Store over the given database handle, which must
// already be scoped to the target Application's schema (its search_path
// set, or a connection pool dedicated to that schema).
func NewStore(conn db.DBTX) *Store {
	return &Store{db: conn}
}

const userColumns = `
	id, email, first_name, last_name, two_fa_secret, is_2fa_activated, login, roles,
	password_hash, kyber_secret_key, kyber_public_key, iv, is_deleted,
	created_at, updated_at, deleted_at, created_by_id, updated_by_id, deleted_by_id,
	refresh_token, application_id, restricted_ip, is_validated, validation_code,
	validation_tries, forget_code_delay
`

// Create inserts a new User row.
func (s *Store) Create(ctx context.Context, u *User) (*User, error) {
	row := s.db.QueryRow(ctx, `
		INSERT INTO users (
			email, first_name, last_name, two_fa_secret, is_2fa_activated, login, roles,
			password_hash, kyber_secret_key, kyber_public_key, iv, is_deleted,
			created_by_id, application_id, restricted_ip, is_validated, validation_code,
			validation_tries, forget_code_delay
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, false, $12, $13, $14, $15, $16, $17, $18)
		RETURNING `+userColumns,
		u.Email, u.FirstName, u.LastName, u.TwoFASecret, u.Is2FAActivated, u.Login, u.Roles,
		u.PasswordHash, u.KyberSecretKey, u.KyberPublicKey, u.IV, u.CreatedByID,
		u.ApplicationID, u.RestrictedIPs, u.IsValidated, u.ValidationCode,
		u.ValidationTries, u.ForgetCodeDelay,
	)
	return scanUser(row)
}

// GetByID looks up a non-deleted User by ID.
func (s *Store) GetByID(ctx context.Context, id uuid.UUID) (*User, error) {
	row := s.db.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1 AND is_deleted = false`, id)
	return scanUser(row)
}

// GetByLoginAndApplication looks up a non-deleted User by login within an
// Application. Satisfies pkg/authn.UserLookup via the adapter in authlookup.go.
func (s *Store) GetByLoginAndApplication(ctx context.Context, login string, applicationID int) (*User, error) {
	row := s.db.QueryRow(ctx, `
		SELECT `+userColumns+` FROM users
		WHERE login = $1 AND application_id = $2 AND is_deleted = false
	`, login, applicationID)
	u, err := scanUser(row)
	if err != nil {
		return nil, err
	}
	return u, nil
}

// ExistsByLogin reports whether a non-deleted login already exists, scoped
// to the Application the connection's search_path selects. Email is not
// part of the uniqueness invariant: two users may share an email within
// one Application.
func (s *Store) ExistsByLogin(ctx context.Context, login string) (bool, error) {
	var n int
	err := s.db.QueryRow(ctx, `
		SELECT count(*) FROM users
		WHERE login = $1 AND is_deleted = false
	`, login).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("checking login uniqueness: %w", err)
	}
	return n > 0, nil
}

// ExistsInApplication reports whether a non-deleted user with this ID
// belongs to the given Application, used by pkg/cluster to validate
// membership targets before inserting an edge row.
func (s *Store) ExistsInApplication(ctx context.Context, userID uuid.UUID, applicationID int) (bool, error) {
	var n int
	err := s.db.QueryRow(ctx, `
		SELECT count(*) FROM users WHERE id = $1 AND application_id = $2 AND is_deleted = false
	`, userID, applicationID).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("checking user membership in application: %w", err)
	}
	return n > 0, nil
}

// List returns non-deleted Users ordered by creation time, paginated.
func (s *Store) List(ctx context.Context, limit, offset int) ([]*User, error) {
	rows, err := s.db.Query(ctx, `
		SELECT `+userColumns+` FROM users
		WHERE is_deleted = false
		ORDER BY created_at
		LIMIT $1 OFFSET $2
	`, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("listing users: %w", err)
	}
	defer rows.Close()

	var users []*User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		users = append(users, u)
	}
	return users, rows.Err()
}

// Count returns the number of non-deleted Users, used against the
// Application's license cap.
func (s *Store) Count(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRow(ctx, `SELECT count(*) FROM users WHERE is_deleted = false`).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("counting users: %w", err)
	}
	return n, nil
}

// UpdatePasswordHash sets a new bcrypt hash and clears any outstanding
// refresh token, forcing re-authentication on every other device.
func (s *Store) UpdatePasswordHash(ctx context.Context, id uuid.UUID, hash string, updatedBy *uuid.UUID) error {
	_, err := s.db.Exec(ctx, `
		UPDATE users SET password_hash = $2, refresh_token = NULL, updated_at = now(), updated_by_id = $3
		WHERE id = $1
	`, id, hash, updatedBy)
	if err != nil {
		return fmt.Errorf("updating password: %w", err)
	}
	return nil
}

// SetValidationCode stores a freshly generated bcrypt-hashed validation or
// reset code and resets the try counter.
func (s *Store) SetValidationCode(ctx context.Context, id uuid.UUID, codeHash string) error {
	_, err := s.db.Exec(ctx, `
		UPDATE users SET validation_code = $2, validation_tries = 0, updated_at = now()
		WHERE id = $1
	`, id, codeHash)
	if err != nil {
		return fmt.Errorf("setting validation code: %w", err)
	}
	return nil
}

// IncrementValidationTries bumps the try counter, used by both the
// validation and reset flows on every failed attempt.
func (s *Store) IncrementValidationTries(ctx context.Context, id uuid.UUID) error {
	_, err := s.db.Exec(ctx, `UPDATE users SET validation_tries = validation_tries + 1 WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("incrementing validation tries: %w", err)
	}
	return nil
}

// MarkValidated flips is_validated and clears the validation code.
func (s *Store) MarkValidated(ctx context.Context, id uuid.UUID) error {
	_, err := s.db.Exec(ctx, `
		UPDATE users SET is_validated = true, validation_code = NULL, validation_tries = 0, updated_at = now()
		WHERE id = $1
	`, id)
	if err != nil {
		return fmt.Errorf("marking user validated: %w", err)
	}
	return nil
}

// SetForgetCodeDelay records when a password reset code expires.
func (s *Store) SetForgetCodeDelay(ctx context.Context, id uuid.UUID, delay time.Time) error {
	_, err := s.db.Exec(ctx, `UPDATE users SET forget_code_delay = $2 WHERE id = $1`, id, delay)
	if err != nil {
		return fmt.Errorf("setting forget_code_delay: %w", err)
	}
	return nil
}

// ClearResetState drops the reset code and its expiry once consumed.
func (s *Store) ClearResetState(ctx context.Context, id uuid.UUID) error {
	_, err := s.db.Exec(ctx, `
		UPDATE users SET validation_code = NULL, validation_tries = 0, forget_code_delay = NULL
		WHERE id = $1
	`, id)
	if err != nil {
		return fmt.Errorf("clearing reset state: %w", err)
	}
	return nil
}

// SetTOTPSecret stores a freshly generated (not yet activated) TOTP secret.
func (s *Store) SetTOTPSecret(ctx context.Context, id uuid.UUID, secret string) error {
	_, err := s.db.Exec(ctx, `UPDATE users SET two_fa_secret = $2 WHERE id = $1`, id, secret)
	if err != nil {
		return fmt.Errorf("setting totp secret: %w", err)
	}
	return nil
}

// ActivateTwoFA flips is_2fa_activated once the user confirms a code
// against the secret set by SetTOTPSecret.
func (s *Store) ActivateTwoFA(ctx context.Context, id uuid.UUID) error {
	_, err := s.db.Exec(ctx, `UPDATE users SET is_2fa_activated = true, updated_at = now() WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("activating 2fa: %w", err)
	}
	return nil
}

// UpdateRefreshToken persists the current refresh token so a later refresh
// request can be checked for reuse/replacement.
func (s *Store) UpdateRefreshToken(ctx context.Context, id uuid.UUID, token *string) error {
	_, err := s.db.Exec(ctx, `UPDATE users SET refresh_token = $2 WHERE id = $1`, id, token)
	if err != nil {
		return fmt.Errorf("updating refresh token: %w", err)
	}
	return nil
}

// UpdatePQ persists a freshly generated personal Kyber keypair alongside
// the IV it was sealed under.
func (s *Store) UpdatePQ(ctx context.Context, id uuid.UUID, secretKey, publicKey, iv string) error {
	_, err := s.db.Exec(ctx, `
		UPDATE users SET kyber_secret_key = $2, kyber_public_key = $3, iv = $4, updated_at = now()
		WHERE id = $1
	`, id, secretKey, publicKey, iv)
	if err != nil {
		return fmt.Errorf("updating kyber keypair: %w", err)
	}
	return nil
}

// SoftDelete tombstones a User.
func (s *Store) SoftDelete(ctx context.Context, id uuid.UUID, deletedBy *uuid.UUID) error {
	_, err := s.db.Exec(ctx, `
		UPDATE users SET is_deleted = true, deleted_at = now(), deleted_by_id = $2
		WHERE id = $1
	`, id, deletedBy)
	if err != nil {
		return fmt.Errorf("soft-deleting user: %w", err)
	}
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanUser(row scanner) (*User, error) {
	var u User
	err := row.Scan(
		&u.ID, &u.Email, &u.FirstName, &u.LastName, &u.TwoFASecret, &u.Is2FAActivated, &u.Login, &u.Roles,
		&u.PasswordHash, &u.KyberSecretKey, &u.KyberPublicKey, &u.IV, &u.IsDeleted,
		&u.CreatedAt, &u.UpdatedAt, &u.DeletedAt, &u.CreatedByID, &u.UpdatedByID, &u.DeletedByID,
		&u.RefreshToken, &u.ApplicationID, &u.RestrictedIPs, &u.IsValidated, &u.ValidationCode,
		&u.ValidationTries, &u.ForgetCodeDelay,
	)
	if err != nil {
		return nil, fmt.Errorf("scanning user: %w", err)
	}
	return &u, nil
}
