// Package cluster implements the ClusterGraph: named groupings of users,
// Sentinels, and AnonymousSentinels within an Application, used to share
// custody of a key across a team without handing out individual grants.
package cluster

import (
	"time"

	"github.com/google/uuid"
)

// Cluster is a named grouping scoped to one Application.
type Cluster struct {
	ID            uuid.UUID
	ApplicationID int
	Name          string
	Description   *string
	IsDeleted     bool
	CreatedAt     time.Time
	UpdatedAt     *time.Time
	DeletedAt     *time.Time
	CreatedByID   *uuid.UUID
	UpdatedByID   *uuid.UUID
	DeletedByID   *uuid.UUID
}

// CanManage reports whether a caller may add/remove memberships and keys
// or delete the cluster: an admin may manage any cluster in the
// Application, anyone else only one they created.
func (c *Cluster) CanManage(userID uuid.UUID, isAdmin bool) bool {
	return isAdmin || (c.CreatedByID != nil && *c.CreatedByID == userID)
}
