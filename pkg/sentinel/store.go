package sentinel

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/keyward/keyward/internal/db"
)

// Store is the Sentinel repository, writing SQL directly against an
// Application-scoped schema.
type Store struct {
	db db.DBTX
}

// NewStore builds a Store.
func NewStore(conn db.DBTX) *Store {
	return &Store{db: conn}
}

const sentinelColumns = `
	id, application_id, iv, sum, key_size, is_deleted,
	created_at, updated_at, deleted_at, created_by_id, updated_by_id, deleted_by_id
`

const sentinelColumnsQualified = `
	s.id, s.application_id, s.iv, s.sum, s.key_size, s.is_deleted,
	s.created_at, s.updated_at, s.deleted_at, s.created_by_id, s.updated_by_id, s.deleted_by_id
`

// Create inserts a new Sentinel row under a caller-chosen id. The id is
// generated before the row is persisted so the same value can key the
// fragments dispersed ahead of this call — see Custodian.CreateSentinel.
func (s *Store) Create(ctx context.Context, id uuid.UUID, applicationID, keySize int, iv, sum string, createdBy uuid.UUID) (*Sentinel, error) {
	row := s.db.QueryRow(ctx, `
		INSERT INTO sentinels (id, application_id, iv, sum, key_size, is_deleted, created_by_id)
		VALUES ($1, $2, $3, $4, $5, false, $6)
		RETURNING `+sentinelColumns,
		id, applicationID, iv, sum, keySize, createdBy,
	)
	return scanSentinel(row)
}

// GetByIDAdmin returns a Sentinel scoped only to the Application, visible
// to any admin regardless of who created it.
func (s *Store) GetByIDAdmin(ctx context.Context, id uuid.UUID, applicationID int) (*Sentinel, error) {
	row := s.db.QueryRow(ctx, `
		SELECT `+sentinelColumns+` FROM sentinels
		WHERE id = $1 AND application_id = $2 AND is_deleted = false
	`, id, applicationID)
	return scanOptional(row)
}

// GetByIDForUser returns a Sentinel visible to a non-admin user: either
// they created it, or they share a cluster membership with it.
func (s *Store) GetByIDForUser(ctx context.Context, id uuid.UUID, applicationID int, userID uuid.UUID) (*Sentinel, error) {
	row := s.db.QueryRow(ctx, `
		SELECT DISTINCT `+sentinelColumnsQualified+`
		FROM sentinels s
		LEFT JOIN x_sentinel_cluster xsc ON xsc.sentinel_id = s.id AND xsc.is_deleted = false
		LEFT JOIN x_user_cluster xuc ON xuc.cluster_id = xsc.cluster_id AND xuc.is_deleted = false
		WHERE s.id = $1 AND s.application_id = $2 AND s.is_deleted = false
			AND (s.created_by_id = $3 OR xuc.user_id = $3)
	`, id, applicationID, userID)
	return scanOptional(row)
}

// Count returns the number of non-deleted Sentinels in the Application.
func (s *Store) Count(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRow(ctx, `SELECT count(*) FROM sentinels WHERE is_deleted = false`).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("counting sentinels: %w", err)
	}
	return n, nil
}

// SoftDeleteAdmin tombstones any Sentinel in the Application.
func (s *Store) SoftDeleteAdmin(ctx context.Context, id uuid.UUID, applicationID int, deletedBy uuid.UUID) (bool, error) {
	tag, err := s.db.Exec(ctx, `
		UPDATE sentinels SET is_deleted = true, deleted_at = now(), deleted_by_id = $3
		WHERE id = $1 AND application_id = $2 AND is_deleted = false
	`, id, applicationID, deletedBy)
	if err != nil {
		return false, fmt.Errorf("soft-deleting sentinel: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

// SoftDeleteOwned tombstones a Sentinel only if the caller created it.
func (s *Store) SoftDeleteOwned(ctx context.Context, id uuid.UUID, applicationID int, ownerID uuid.UUID) (bool, error) {
	tag, err := s.db.Exec(ctx, `
		UPDATE sentinels SET is_deleted = true, deleted_at = now(), deleted_by_id = $3
		WHERE id = $1 AND application_id = $2 AND is_deleted = false AND created_by_id = $3
	`, id, applicationID, ownerID)
	if err != nil {
		return false, fmt.Errorf("soft-deleting owned sentinel: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanSentinel(row scanner) (*Sentinel, error) {
	var s Sentinel
	err := row.Scan(
		&s.ID, &s.ApplicationID, &s.IV, &s.Sum, &s.KeySize, &s.IsDeleted,
		&s.CreatedAt, &s.UpdatedAt, &s.DeletedAt, &s.CreatedByID, &s.UpdatedByID, &s.DeletedByID,
	)
	if err != nil {
		return nil, fmt.Errorf("scanning sentinel: %w", err)
	}
	return &s, nil
}

func scanOptional(row scanner) (*Sentinel, error) {
	s, err := scanSentinel(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return s, nil
}
