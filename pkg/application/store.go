package application

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/keyward/keyward/internal/db"
)

// Store is the Application repository, writing SQL directly against the
// global schema's applications table.
type Store struct {
	db db.DBTX
}

// NewStore builds a Store over the given database handle.
func NewStore(conn db.DBTX) *Store {
	return &Store{db: conn}
}

// Create inserts a new Application row.
func (s *Store) Create(ctx context.Context, name, contactEmail string, isSystem bool, createdBy *uuid.UUID) (*Application, error) {
	row := s.db.QueryRow(ctx, `
		INSERT INTO applications (name, contact_email, is_system, keys_number, users_number, is_deleted, created_by_id)
		VALUES ($1, $2, $3, 0, 0, false, $4)
		RETURNING id, name, contact_email, is_system, keys_number, users_number, is_deleted,
			created_at, updated_at, deleted_at, created_by_id, updated_by_id, deleted_by_id
	`, name, contactEmail, isSystem, createdBy)

	return scanApplication(row)
}

// GetByID looks up a non-deleted Application by ID.
func (s *Store) GetByID(ctx context.Context, id int) (*Application, error) {
	row := s.db.QueryRow(ctx, `
		SELECT id, name, contact_email, is_system, keys_number, users_number, is_deleted,
			created_at, updated_at, deleted_at, created_by_id, updated_by_id, deleted_by_id
		FROM applications
		WHERE id = $1 AND is_deleted = false
	`, id)

	return scanApplication(row)
}

// List returns non-deleted Applications ordered by ID, paginated.
func (s *Store) List(ctx context.Context, limit, offset int) ([]*Application, error) {
	rows, err := s.db.Query(ctx, `
		SELECT id, name, contact_email, is_system, keys_number, users_number, is_deleted,
			created_at, updated_at, deleted_at, created_by_id, updated_by_id, deleted_by_id
		FROM applications
		WHERE is_deleted = false
		ORDER BY id
		LIMIT $1 OFFSET $2
	`, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("listing applications: %w", err)
	}
	defer rows.Close()

	var apps []*Application
	for rows.Next() {
		app, err := scanApplicationRows(rows)
		if err != nil {
			return nil, err
		}
		apps = append(apps, app)
	}
	return apps, rows.Err()
}

// Count returns the number of non-deleted Applications.
func (s *Store) Count(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRow(ctx, `SELECT count(*) FROM applications WHERE is_deleted = false`).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("counting applications: %w", err)
	}
	return n, nil
}

// IncrementUsersNumber adjusts the cached user counter by delta (may be negative).
func (s *Store) IncrementUsersNumber(ctx context.Context, id, delta int) error {
	_, err := s.db.Exec(ctx, `UPDATE applications SET users_number = users_number + $1 WHERE id = $2`, delta, id)
	if err != nil {
		return fmt.Errorf("incrementing users_number: %w", err)
	}
	return nil
}

// IncrementKeysNumber adjusts the cached key counter by delta (may be negative).
func (s *Store) IncrementKeysNumber(ctx context.Context, id, delta int) error {
	_, err := s.db.Exec(ctx, `UPDATE applications SET keys_number = keys_number + $1 WHERE id = $2`, delta, id)
	if err != nil {
		return fmt.Errorf("incrementing keys_number: %w", err)
	}
	return nil
}

// SoftDelete tombstones an Application. This never drops the schema: schema
// removal is an explicit, separate operation via the Provisioner.
func (s *Store) SoftDelete(ctx context.Context, id int, deletedBy *uuid.UUID) error {
	_, err := s.db.Exec(ctx, `
		UPDATE applications
		SET is_deleted = true, deleted_at = now(), deleted_by_id = $2
		WHERE id = $1
	`, id, deletedBy)
	if err != nil {
		return fmt.Errorf("soft-deleting application: %w", err)
	}
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanApplication(row scanner) (*Application, error) {
	return scanApplicationRows(row)
}

func scanApplicationRows(row scanner) (*Application, error) {
	var a Application
	err := row.Scan(
		&a.ID, &a.Name, &a.ContactEmail, &a.IsSystem, &a.KeysNumber, &a.UsersNumber, &a.IsDeleted,
		&a.CreatedAt, &a.UpdatedAt, &a.DeletedAt, &a.CreatedByID, &a.UpdatedByID, &a.DeletedByID,
	)
	if err != nil {
		return nil, fmt.Errorf("scanning application: %w", err)
	}
	return &a, nil
}
