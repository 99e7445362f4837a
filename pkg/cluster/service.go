package cluster

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
)

// Sentinel errors returned by Graph operations.
var (
	ErrNotFound  = errors.New("cluster: not found")
	ErrForbidden = errors.New("cluster: caller may not manage this cluster")
)

// DefaultPage and DefaultPerPage are the ClusterGraph's own pagination
// defaults, distinct from the rest of the API's offset/limit convention.
const (
	DefaultPage    = 1
	DefaultPerPage = 10
)

// UserLookup resolves a user by ID within an Application, used to validate
// membership targets before inserting an edge row.
type UserLookup interface {
	ExistsInApplication(ctx context.Context, userID uuid.UUID, applicationID int) (bool, error)
}

// SentinelLookup resolves whether a caller may attach a given Sentinel or
// AnonymousSentinel to a cluster: it must exist in the Application and
// either the caller is an admin or created it.
type SentinelLookup interface {
	OwnedByOrAdmin(ctx context.Context, sentinelID uuid.UUID, applicationID int, userID uuid.UUID, isAdmin bool) (bool, error)
}

// Graph implements the ClusterGraph: cluster CRUD plus its three
// membership edge tables, gated by admin-or-creator authorization.
type Graph struct {
	Store     *Store
	Users     UserLookup
	Sentinels SentinelLookup
	Anonymous SentinelLookup
}

// NewGraph builds a Graph.
func NewGraph(store *Store, users UserLookup, sentinels, anonymous SentinelLookup) *Graph {
	return &Graph{Store: store, Users: users, Sentinels: sentinels, Anonymous: anonymous}
}

// Create makes a new Cluster and attaches the given member user IDs,
// skipping any that don't parse or don't belong to the caller's Application.
func (g *Graph) Create(ctx context.Context, applicationID int, name string, description *string, memberships []string, creatorID uuid.UUID) (*Cluster, error) {
	c, err := g.Store.Create(ctx, applicationID, name, description, creatorID)
	if err != nil {
		return nil, fmt.Errorf("creating cluster: %w", err)
	}
	g.addMemberships(ctx, c.ID, applicationID, memberships, creatorID)
	return c, nil
}

func (g *Graph) authorize(ctx context.Context, clusterID uuid.UUID, applicationID int, userID uuid.UUID, isAdmin bool) (*Cluster, error) {
	c, err := g.Store.GetByIDAndApplication(ctx, clusterID, applicationID)
	if err != nil {
		return nil, fmt.Errorf("looking up cluster: %w", err)
	}
	if c == nil {
		return nil, ErrNotFound
	}
	if !c.CanManage(userID, isAdmin) {
		return nil, ErrForbidden
	}
	return c, nil
}

// AddMemberships attaches users to a cluster. Caller must be the creator
// or an admin.
func (g *Graph) AddMemberships(ctx context.Context, clusterID uuid.UUID, applicationID int, memberships []string, userID uuid.UUID, isAdmin bool) (*Cluster, error) {
	c, err := g.authorize(ctx, clusterID, applicationID, userID, isAdmin)
	if err != nil {
		return nil, err
	}
	g.addMemberships(ctx, clusterID, applicationID, memberships, userID)
	return c, nil
}

func (g *Graph) addMemberships(ctx context.Context, clusterID uuid.UUID, applicationID int, memberships []string, addedBy uuid.UUID) {
	for _, raw := range memberships {
		memberID, err := uuid.Parse(raw)
		if err != nil {
			continue
		}
		if g.Users != nil {
			exists, err := g.Users.ExistsInApplication(ctx, memberID, applicationID)
			if err != nil || !exists {
				continue
			}
		}
		_ = g.Store.AddUser(ctx, clusterID, memberID, addedBy)
	}
}

// RemoveMemberships detaches users from a cluster. Caller must be the
// creator or an admin.
func (g *Graph) RemoveMemberships(ctx context.Context, clusterID uuid.UUID, applicationID int, memberships []string, userID uuid.UUID, isAdmin bool) (*Cluster, error) {
	c, err := g.authorize(ctx, clusterID, applicationID, userID, isAdmin)
	if err != nil {
		return nil, err
	}
	for _, raw := range memberships {
		memberID, err := uuid.Parse(raw)
		if err != nil {
			continue
		}
		_ = g.Store.RemoveUser(ctx, clusterID, memberID, userID)
	}
	return c, nil
}

// Delete tombstones a cluster. Caller must be the creator or an admin.
func (g *Graph) Delete(ctx context.Context, clusterID uuid.UUID, applicationID int, userID uuid.UUID, isAdmin bool) error {
	_, err := g.authorize(ctx, clusterID, applicationID, userID, isAdmin)
	if err != nil {
		return err
	}
	return g.Store.SoftDelete(ctx, clusterID, userID)
}

// AddSentinels attaches Sentinels to a cluster. Each Sentinel must exist
// and be owned by the caller, unless the caller is an admin.
func (g *Graph) AddSentinels(ctx context.Context, clusterID uuid.UUID, applicationID int, sentinelIDs []string, userID uuid.UUID, isAdmin bool) (*Cluster, error) {
	c, err := g.authorize(ctx, clusterID, applicationID, userID, isAdmin)
	if err != nil {
		return nil, err
	}
	for _, raw := range sentinelIDs {
		id, err := uuid.Parse(raw)
		if err != nil {
			continue
		}
		if g.Sentinels != nil {
			ok, err := g.Sentinels.OwnedByOrAdmin(ctx, id, applicationID, userID, isAdmin)
			if err != nil || !ok {
				continue
			}
		}
		_ = g.Store.AddSentinel(ctx, clusterID, id, userID)
	}
	return c, nil
}

// RemoveSentinels detaches Sentinels from a cluster.
func (g *Graph) RemoveSentinels(ctx context.Context, clusterID uuid.UUID, applicationID int, sentinelIDs []string, userID uuid.UUID, isAdmin bool) (*Cluster, error) {
	c, err := g.authorize(ctx, clusterID, applicationID, userID, isAdmin)
	if err != nil {
		return nil, err
	}
	for _, raw := range sentinelIDs {
		id, err := uuid.Parse(raw)
		if err != nil {
			continue
		}
		_ = g.Store.RemoveSentinel(ctx, clusterID, id, userID)
	}
	return c, nil
}

// AddAnonymousSentinels attaches AnonymousSentinels to a cluster.
func (g *Graph) AddAnonymousSentinels(ctx context.Context, clusterID uuid.UUID, applicationID int, sentinelIDs []string, userID uuid.UUID, isAdmin bool) (*Cluster, error) {
	c, err := g.authorize(ctx, clusterID, applicationID, userID, isAdmin)
	if err != nil {
		return nil, err
	}
	for _, raw := range sentinelIDs {
		id, err := uuid.Parse(raw)
		if err != nil {
			continue
		}
		if g.Anonymous != nil {
			ok, err := g.Anonymous.OwnedByOrAdmin(ctx, id, applicationID, userID, isAdmin)
			if err != nil || !ok {
				continue
			}
		}
		_ = g.Store.AddAnonymousSentinel(ctx, clusterID, id, userID)
	}
	return c, nil
}

// RemoveAnonymousSentinels detaches AnonymousSentinels from a cluster.
func (g *Graph) RemoveAnonymousSentinels(ctx context.Context, clusterID uuid.UUID, applicationID int, sentinelIDs []string, userID uuid.UUID, isAdmin bool) (*Cluster, error) {
	c, err := g.authorize(ctx, clusterID, applicationID, userID, isAdmin)
	if err != nil {
		return nil, err
	}
	for _, raw := range sentinelIDs {
		id, err := uuid.Parse(raw)
		if err != nil {
			continue
		}
		_ = g.Store.RemoveAnonymousSentinel(ctx, clusterID, id, userID)
	}
	return c, nil
}

// Members lists a cluster's user members, defaulting to page=1/page_size=10
// when the caller passes zero values — the ClusterGraph's own pagination
// convention, distinct from the rest of the API's offset/limit style.
func (g *Graph) Members(ctx context.Context, clusterID uuid.UUID, applicationID, page, pageSize int) ([]uuid.UUID, int, error) {
	if page <= 0 {
		page = DefaultPage
	}
	if pageSize <= 0 {
		pageSize = DefaultPerPage
	}
	return g.Store.MemberUserIDs(ctx, clusterID, applicationID, pageSize, page)
}

// LinkSentinel satisfies pkg/sentinel.ClusterLinker.
func (g *Graph) LinkSentinel(ctx context.Context, clusterID, sentinelID, userID uuid.UUID) error {
	return g.Store.AddSentinel(ctx, clusterID, sentinelID, userID)
}

// LinkAnonymousSentinel satisfies pkg/sentinel.ClusterLinker.
func (g *Graph) LinkAnonymousSentinel(ctx context.Context, clusterID, sentinelID, userID uuid.UUID) error {
	return g.Store.AddAnonymousSentinel(ctx, clusterID, sentinelID, userID)
}
