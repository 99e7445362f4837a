// Package tenant composes the per-Application domain stack: a Registry
// (users), Custodian (sentinels), and Graph (clusters) built once per
// Application ID, each backed by a connection pool scoped to that
// Application's own app_<id> schema.
package tenant

import (
	"context"
	"fmt"
	"sync"

	"github.com/keyward/keyward/pkg/application"
	"github.com/keyward/keyward/pkg/authn"
	"github.com/keyward/keyward/pkg/cluster"
	"github.com/keyward/keyward/pkg/fragment"
	"github.com/keyward/keyward/pkg/policy"
	"github.com/keyward/keyward/pkg/sealer"
	"github.com/keyward/keyward/pkg/sentinel"
	"github.com/keyward/keyward/pkg/user"
)

// Bundle holds one Application's fully wired domain services.
type Bundle struct {
	ApplicationID int
	Users         *user.Registry
	Sentinels     *sentinel.Custodian
	Clusters      *cluster.Graph
	UserStore     *user.Store
	Auth          *authn.Engine
}

// Registry builds and caches a Bundle per Application, the way
// application.PoolCache builds and caches a connection pool per
// Application: both are keyed by the same ID and populated on first use.
type Registry struct {
	pools     *application.PoolCache
	apps      *application.Store
	license   *policy.LicenseCell
	sealerImp sealer.Sealer
	fragments *fragment.Store
	mailer    user.Mailer
	revoked   authn.RevocationStore
	minter    *authn.TokenMinter

	mu      sync.Mutex
	bundles map[int]*Bundle
}

// NewRegistry builds a tenant Registry over the shared, process-wide
// collaborators every Application's Bundle is assembled from. revoked and
// minter are global (the revoked_tokens table and signing key are not
// Application-scoped); only the user lookup behind each Bundle's Engine is.
func NewRegistry(pools *application.PoolCache, apps *application.Store, license *policy.LicenseCell, seal sealer.Sealer, fragments *fragment.Store, mailer user.Mailer, revoked authn.RevocationStore, minter *authn.TokenMinter) *Registry {
	return &Registry{
		pools:     pools,
		apps:      apps,
		license:   license,
		sealerImp: seal,
		fragments: fragments,
		mailer:    mailer,
		revoked:   revoked,
		minter:    minter,
		bundles:   make(map[int]*Bundle),
	}
}

// Get returns the Bundle for applicationID, building it on first use.
func (r *Registry) Get(ctx context.Context, applicationID int) (*Bundle, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if b, ok := r.bundles[applicationID]; ok {
		return b, nil
	}

	pool, err := r.pools.Get(ctx, applicationID)
	if err != nil {
		return nil, fmt.Errorf("opening application pool: %w", err)
	}

	userStore := user.NewStore(pool)
	connStore := user.NewConnexionStore(pool)
	sentinelStore := sentinel.NewStore(pool)
	anonymousStore := sentinel.NewAnonymousStore(pool)
	clusterStore := cluster.NewStore(pool)

	registry := user.NewRegistry(userStore, connStore, r.apps, r.license, r.sealerImp, r.mailer)

	// Custodian and Graph reference each other (a Custodian links minted
	// keys into caller-named clusters; a Graph authorizes sentinel
	// attachment against Custodian-owned lookups), so Custodian is built
	// first with a nil linker and wired to the Graph once it exists.
	custodian := sentinel.NewCustodian(sentinelStore, anonymousStore, r.fragments, r.sealerImp, r.license, r.apps, nil)
	anonymousOwnership := &sentinel.AnonymousOwnership{Anonymous: anonymousStore}
	graph := cluster.NewGraph(clusterStore, userStore, custodian, anonymousOwnership)
	custodian.Clusters = graph

	authLookup := user.NewAuthLookup(userStore, r.apps)
	engine := authn.NewEngine(authLookup, r.revoked, r.minter)

	b := &Bundle{
		ApplicationID: applicationID,
		Users:         registry,
		Sentinels:     custodian,
		Clusters:      graph,
		UserStore:     userStore,
		Auth:          engine,
	}
	r.bundles[applicationID] = b
	return b, nil
}

// ForApplication resolves the UserLookup backing a single Application's
// Bundle, satisfying authn.TenantUserLookup without authn importing this
// package back.
func (r *Registry) ForApplication(ctx context.Context, applicationID int) (authn.UserLookup, error) {
	b, err := r.Get(ctx, applicationID)
	if err != nil {
		return nil, err
	}
	return b.Auth.Users, nil
}

// Evict forgets a cached Bundle and its underlying pool, e.g. after an
// Application's schema is dropped.
func (r *Registry) Evict(applicationID int) {
	r.mu.Lock()
	delete(r.bundles, applicationID)
	r.mu.Unlock()
	r.pools.Evict(applicationID)
}
