package sentinel

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/keyward/keyward/internal/db"
)

// AnonymousStore is the AnonymousSentinel repository.
type AnonymousStore struct {
	db db.DBTX
}

// NewAnonymousStore builds an AnonymousStore.
func NewAnonymousStore(conn db.DBTX) *AnonymousStore {
	return &AnonymousStore{db: conn}
}

const anonymousColumns = `
	id, application_id, iv, sum, public_key, key_size, is_deleted,
	created_at, updated_at, deleted_at, created_by_id, updated_by_id, deleted_by_id
`

const anonymousColumnsQualified = `
	a.id, a.application_id, a.iv, a.sum, a.public_key, a.key_size, a.is_deleted,
	a.created_at, a.updated_at, a.deleted_at, a.created_by_id, a.updated_by_id, a.deleted_by_id
`

// Create inserts a new AnonymousSentinel row under a caller-chosen id (see
// Store.Create for why). createdBy is nil for a credential-less public
// enrollment.
func (s *AnonymousStore) Create(ctx context.Context, id uuid.UUID, applicationID, keySize int, iv, sum, publicKey string, createdBy *uuid.UUID) (*AnonymousSentinel, error) {
	row := s.db.QueryRow(ctx, `
		INSERT INTO anonymous_sentinels (id, application_id, iv, sum, public_key, key_size, is_deleted, created_by_id)
		VALUES ($1, $2, $3, $4, $5, $6, false, $7)
		RETURNING `+anonymousColumns,
		id, applicationID, iv, sum, publicKey, keySize, createdBy,
	)
	return scanAnonymous(row)
}

// GetPublic returns an AnonymousSentinel with no ownership check at all —
// used by the unauthenticated enrollment-lookup endpoint, which only ever
// needs the public half.
func (s *AnonymousStore) GetPublic(ctx context.Context, id uuid.UUID) (*AnonymousSentinel, error) {
	row := s.db.QueryRow(ctx, `
		SELECT `+anonymousColumns+` FROM anonymous_sentinels WHERE id = $1 AND is_deleted = false
	`, id)
	return scanAnonymousOptional(row)
}

// GetByIDAdmin returns an AnonymousSentinel scoped only to the Application.
func (s *AnonymousStore) GetByIDAdmin(ctx context.Context, id uuid.UUID, applicationID int) (*AnonymousSentinel, error) {
	row := s.db.QueryRow(ctx, `
		SELECT `+anonymousColumns+` FROM anonymous_sentinels
		WHERE id = $1 AND application_id = $2 AND is_deleted = false
	`, id, applicationID)
	return scanAnonymousOptional(row)
}

// GetByIDForUser returns an AnonymousSentinel visible to a non-admin user.
func (s *AnonymousStore) GetByIDForUser(ctx context.Context, id uuid.UUID, applicationID int, userID uuid.UUID) (*AnonymousSentinel, error) {
	row := s.db.QueryRow(ctx, `
		SELECT DISTINCT `+anonymousColumnsQualified+`
		FROM anonymous_sentinels a
		LEFT JOIN x_anonymous_sentinel_cluster xac ON xac.anonymous_sentinel_id = a.id AND xac.is_deleted = false
		LEFT JOIN x_user_cluster xuc ON xuc.cluster_id = xac.cluster_id AND xuc.is_deleted = false
		WHERE a.id = $1 AND a.application_id = $2 AND a.is_deleted = false
			AND (a.created_by_id = $3 OR xuc.user_id = $3)
	`, id, applicationID, userID)
	return scanAnonymousOptional(row)
}

// Count returns the number of non-deleted AnonymousSentinels.
func (s *AnonymousStore) Count(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRow(ctx, `SELECT count(*) FROM anonymous_sentinels WHERE is_deleted = false`).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("counting anonymous sentinels: %w", err)
	}
	return n, nil
}

// SoftDeleteAdmin tombstones any AnonymousSentinel in the Application.
func (s *AnonymousStore) SoftDeleteAdmin(ctx context.Context, id uuid.UUID, applicationID int, deletedBy uuid.UUID) (bool, error) {
	tag, err := s.db.Exec(ctx, `
		UPDATE anonymous_sentinels SET is_deleted = true, deleted_at = now(), deleted_by_id = $3
		WHERE id = $1 AND application_id = $2 AND is_deleted = false
	`, id, applicationID, deletedBy)
	if err != nil {
		return false, fmt.Errorf("soft-deleting anonymous sentinel: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

// SoftDeleteOwned tombstones an AnonymousSentinel only if the caller created it.
func (s *AnonymousStore) SoftDeleteOwned(ctx context.Context, id uuid.UUID, applicationID int, ownerID uuid.UUID) (bool, error) {
	tag, err := s.db.Exec(ctx, `
		UPDATE anonymous_sentinels SET is_deleted = true, deleted_at = now(), deleted_by_id = $3
		WHERE id = $1 AND application_id = $2 AND is_deleted = false AND created_by_id = $3
	`, id, applicationID, ownerID)
	if err != nil {
		return false, fmt.Errorf("soft-deleting owned anonymous sentinel: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

func scanAnonymous(row scanner) (*AnonymousSentinel, error) {
	var a AnonymousSentinel
	err := row.Scan(
		&a.ID, &a.ApplicationID, &a.IV, &a.Sum, &a.PublicKey, &a.KeySize, &a.IsDeleted,
		&a.CreatedAt, &a.UpdatedAt, &a.DeletedAt, &a.CreatedByID, &a.UpdatedByID, &a.DeletedByID,
	)
	if err != nil {
		return nil, fmt.Errorf("scanning anonymous sentinel: %w", err)
	}
	return &a, nil
}

func scanAnonymousOptional(row scanner) (*AnonymousSentinel, error) {
	a, err := scanAnonymous(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return a, nil
}
