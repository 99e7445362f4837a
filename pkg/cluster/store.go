package cluster

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/keyward/keyward/internal/db"
)

// Store is the Cluster repository plus its three membership edge tables.
type Store struct {
	db db.DBTX
}

// NewStore builds a Store.
func NewStore(conn db.DBTX) *Store {
	return &Store{db: conn}
}

const clusterColumns = `
	id, application_id, name, description, is_deleted,
	created_at, updated_at, deleted_at, created_by_id, updated_by_id, deleted_by_id
`

// Create inserts a new Cluster row.
func (s *Store) Create(ctx context.Context, applicationID int, name string, description *string, createdBy uuid.UUID) (*Cluster, error) {
	row := s.db.QueryRow(ctx, `
		INSERT INTO clusters (application_id, name, description, is_deleted, created_by_id)
		VALUES ($1, $2, $3, false, $4)
		RETURNING `+clusterColumns,
		applicationID, name, description, createdBy,
	)
	return scanCluster(row)
}

// GetByIDAndApplication looks up a non-deleted Cluster scoped to an Application.
func (s *Store) GetByIDAndApplication(ctx context.Context, id uuid.UUID, applicationID int) (*Cluster, error) {
	row := s.db.QueryRow(ctx, `
		SELECT `+clusterColumns+` FROM clusters
		WHERE id = $1 AND application_id = $2 AND is_deleted = false
	`, id, applicationID)
	c, err := scanCluster(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return c, nil
}

// List returns non-deleted Clusters in an Application, paginated. It applies
// no defaults: page and pageSize are used as given.
func (s *Store) List(ctx context.Context, applicationID, pageSize, page int) ([]*Cluster, int, error) {
	offset := (page - 1) * pageSize
	rows, err := s.db.Query(ctx, `
		SELECT `+clusterColumns+` FROM clusters
		WHERE application_id = $1 AND is_deleted = false
		ORDER BY created_at
		LIMIT $2 OFFSET $3
	`, applicationID, pageSize, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("listing clusters: %w", err)
	}
	defer rows.Close()

	var clusters []*Cluster
	for rows.Next() {
		c, err := scanCluster(rows)
		if err != nil {
			return nil, 0, err
		}
		clusters = append(clusters, c)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}

	var total int
	if err := s.db.QueryRow(ctx, `
		SELECT count(*) FROM clusters WHERE application_id = $1 AND is_deleted = false
	`, applicationID).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("counting clusters: %w", err)
	}
	return clusters, total, nil
}

// SoftDelete tombstones a Cluster. Membership rows are left in place
// (qualified by is_deleted on the cluster itself), matching the original's
// soft-delete-only cascade.
func (s *Store) SoftDelete(ctx context.Context, id uuid.UUID, deletedBy uuid.UUID) error {
	_, err := s.db.Exec(ctx, `
		UPDATE clusters SET is_deleted = true, deleted_at = now(), deleted_by_id = $2 WHERE id = $1
	`, id, deletedBy)
	if err != nil {
		return fmt.Errorf("soft-deleting cluster: %w", err)
	}
	return nil
}

// HasUserMembership reports whether userID already belongs to clusterID.
func (s *Store) HasUserMembership(ctx context.Context, clusterID, userID uuid.UUID) (bool, error) {
	var n int
	err := s.db.QueryRow(ctx, `
		SELECT count(*) FROM x_user_cluster WHERE cluster_id = $1 AND user_id = $2 AND is_deleted = false
	`, clusterID, userID).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("checking user membership: %w", err)
	}
	return n > 0, nil
}

// AddUser links a user to a cluster, no-op if the membership already exists.
func (s *Store) AddUser(ctx context.Context, clusterID, userID, addedBy uuid.UUID) error {
	has, err := s.HasUserMembership(ctx, clusterID, userID)
	if err != nil {
		return err
	}
	if has {
		return nil
	}
	_, err = s.db.Exec(ctx, `
		INSERT INTO x_user_cluster (cluster_id, user_id, is_deleted, created_by_id) VALUES ($1, $2, false, $3)
	`, clusterID, userID, addedBy)
	if err != nil {
		return fmt.Errorf("adding user to cluster: %w", err)
	}
	return nil
}

// RemoveUser unlinks a user from a cluster.
func (s *Store) RemoveUser(ctx context.Context, clusterID, userID, removedBy uuid.UUID) error {
	_, err := s.db.Exec(ctx, `
		UPDATE x_user_cluster SET is_deleted = true, deleted_at = now(), deleted_by_id = $3
		WHERE cluster_id = $1 AND user_id = $2 AND is_deleted = false
	`, clusterID, userID, removedBy)
	if err != nil {
		return fmt.Errorf("removing user from cluster: %w", err)
	}
	return nil
}

// HasSentinelMembership reports whether sentinelID is already attached to clusterID.
func (s *Store) HasSentinelMembership(ctx context.Context, clusterID, sentinelID uuid.UUID) (bool, error) {
	var n int
	err := s.db.QueryRow(ctx, `
		SELECT count(*) FROM x_sentinel_cluster WHERE cluster_id = $1 AND sentinel_id = $2 AND is_deleted = false
	`, clusterID, sentinelID).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("checking sentinel membership: %w", err)
	}
	return n > 0, nil
}

// AddSentinel attaches a Sentinel to a cluster, no-op if already attached.
func (s *Store) AddSentinel(ctx context.Context, clusterID, sentinelID, addedBy uuid.UUID) error {
	has, err := s.HasSentinelMembership(ctx, clusterID, sentinelID)
	if err != nil {
		return err
	}
	if has {
		return nil
	}
	_, err = s.db.Exec(ctx, `
		INSERT INTO x_sentinel_cluster (cluster_id, sentinel_id, is_deleted, created_by_id) VALUES ($1, $2, false, $3)
	`, clusterID, sentinelID, addedBy)
	if err != nil {
		return fmt.Errorf("adding sentinel to cluster: %w", err)
	}
	return nil
}

// RemoveSentinel detaches a Sentinel from a cluster.
func (s *Store) RemoveSentinel(ctx context.Context, clusterID, sentinelID, removedBy uuid.UUID) error {
	_, err := s.db.Exec(ctx, `
		UPDATE x_sentinel_cluster SET is_deleted = true, deleted_at = now(), deleted_by_id = $3
		WHERE cluster_id = $1 AND sentinel_id = $2 AND is_deleted = false
	`, clusterID, sentinelID, removedBy)
	if err != nil {
		return fmt.Errorf("removing sentinel from cluster: %w", err)
	}
	return nil
}

// HasAnonymousSentinelMembership reports whether anonymousSentinelID is
// already attached to clusterID.
func (s *Store) HasAnonymousSentinelMembership(ctx context.Context, clusterID, anonymousSentinelID uuid.UUID) (bool, error) {
	var n int
	err := s.db.QueryRow(ctx, `
		SELECT count(*) FROM x_anonymous_sentinel_cluster
		WHERE cluster_id = $1 AND anonymous_sentinel_id = $2 AND is_deleted = false
	`, clusterID, anonymousSentinelID).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("checking anonymous sentinel membership: %w", err)
	}
	return n > 0, nil
}

// AddAnonymousSentinel attaches an AnonymousSentinel to a cluster, no-op if
// already attached.
func (s *Store) AddAnonymousSentinel(ctx context.Context, clusterID, anonymousSentinelID, addedBy uuid.UUID) error {
	has, err := s.HasAnonymousSentinelMembership(ctx, clusterID, anonymousSentinelID)
	if err != nil {
		return err
	}
	if has {
		return nil
	}
	_, err = s.db.Exec(ctx, `
		INSERT INTO x_anonymous_sentinel_cluster (cluster_id, anonymous_sentinel_id, is_deleted, created_by_id)
		VALUES ($1, $2, false, $3)
	`, clusterID, anonymousSentinelID, addedBy)
	if err != nil {
		return fmt.Errorf("adding anonymous sentinel to cluster: %w", err)
	}
	return nil
}

// RemoveAnonymousSentinel detaches an AnonymousSentinel from a cluster.
func (s *Store) RemoveAnonymousSentinel(ctx context.Context, clusterID, anonymousSentinelID, removedBy uuid.UUID) error {
	_, err := s.db.Exec(ctx, `
		UPDATE x_anonymous_sentinel_cluster SET is_deleted = true, deleted_at = now(), deleted_by_id = $3
		WHERE cluster_id = $1 AND anonymous_sentinel_id = $2 AND is_deleted = false
	`, clusterID, anonymousSentinelID, removedBy)
	if err != nil {
		return fmt.Errorf("removing anonymous sentinel from cluster: %w", err)
	}
	return nil
}

// MemberUserIDs returns the user IDs, scoped to applicationID, holding
// membership in clusterID, paginated.
func (s *Store) MemberUserIDs(ctx context.Context, clusterID uuid.UUID, applicationID, pageSize, page int) ([]uuid.UUID, int, error) {
	offset := (page - 1) * pageSize
	rows, err := s.db.Query(ctx, `
		SELECT u.id FROM x_user_cluster xuc
		JOIN users u ON u.id = xuc.user_id AND u.is_deleted = false
		WHERE xuc.cluster_id = $1 AND xuc.is_deleted = false AND u.application_id = $2
		ORDER BY xuc.created_at
		LIMIT $3 OFFSET $4
	`, clusterID, applicationID, pageSize, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("listing cluster members: %w", err)
	}
	defer rows.Close()

	var ids []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, 0, fmt.Errorf("scanning member id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}

	var total int
	if err := s.db.QueryRow(ctx, `
		SELECT count(*) FROM x_user_cluster xuc
		JOIN users u ON u.id = xuc.user_id AND u.is_deleted = false
		WHERE xuc.cluster_id = $1 AND xuc.is_deleted = false AND u.application_id = $2
	`, clusterID, applicationID).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("counting cluster members: %w", err)
	}
	return ids, total, nil
}

func scanCluster(row interface{ Scan(dest ...any) error }) (*Cluster, error) {
	var c Cluster
	err := row.Scan(
		&c.ID, &c.ApplicationID, &c.Name, &c.Description, &c.IsDeleted,
		&c.CreatedAt, &c.UpdatedAt, &c.DeletedAt, &c.CreatedByID, &c.UpdatedByID, &c.DeletedByID,
	)
	if err != nil {
		return nil, fmt.Errorf("scanning cluster: %w", err)
	}
	return &c, nil
}
