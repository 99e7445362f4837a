package sentinel

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/keyward/keyward/pkg/fragment"
	"github.com/keyward/keyward/pkg/pqkyber"
	"github.com/keyward/keyward/pkg/sealer"
)

// Sentinel errors mirror the HTTP-facing outcomes of the original custody
// service's Result<_, (Status, Option<&str>)> returns.
var (
	ErrNotFound        = errors.New("sentinel: not found")
	ErrChecksumInvalid = errors.New("sentinel: checksum does not match, key material may be corrupted")
	ErrUnauthorized    = errors.New("sentinel: unauthorized")
)

// LicenseGate is the subset of pkg/policy.LicenseCell the custodian needs
// to size freshly minted keys.
type LicenseGate interface {
	AESKeySize() int
	KyberKeySize() int
}

// ApplicationCounters is satisfied by pkg/application.Store; declared
// narrowly here to avoid a hard dependency on its full surface.
type ApplicationCounters interface {
	IncrementKeysNumber(ctx context.Context, applicationID, delta int) error
}

// ClusterLinker attaches newly minted keys to the clusters the creating
// user named. linkClusters skips IDs that do not parse as UUIDs and ignores
// link errors; no check is made that the user belongs to the cluster.
type ClusterLinker interface {
	LinkSentinel(ctx context.Context, clusterID, sentinelID, userID uuid.UUID) error
	LinkAnonymousSentinel(ctx context.Context, clusterID, sentinelID, userID uuid.UUID) error
}

// Custodian is the KeyCustodian: it mints, retrieves, and deletes the
// custody keys an Application holds, sealing and fragment-dispersing
// every secret half before it ever touches a row.
type Custodian struct {
	Sentinels *Store
	Anonymous *AnonymousStore
	Fragments *fragment.Store
	Sealer    sealer.Sealer
	License   LicenseGate
	Apps      ApplicationCounters
	Clusters  ClusterLinker
}

// NewCustodian builds a Custodian.
func NewCustodian(sentinels *Store, anonymous *AnonymousStore, fragments *fragment.Store, seal sealer.Sealer, license LicenseGate, apps ApplicationCounters, clusters ClusterLinker) *Custodian {
	return &Custodian{
		Sentinels: sentinels,
		Anonymous: anonymous,
		Fragments: fragments,
		Sealer:    seal,
		License:   license,
		Apps:      apps,
		Clusters:  clusters,
	}
}

func generateAESKey(bits int) (string, error) {
	buf := make([]byte, bits/8)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generating aes key: %w", err)
	}
	return hex.EncodeToString(buf), nil
}

// CreateSentinel mints a new AES key sized to the Application's license,
// seals it, disperses it across the fragment nodes, and returns both the
// custody record and the plaintext key. The plaintext is not stored; later
// reads reconstruct it from the fragments through GetSentinel.
func (c *Custodian) CreateSentinel(ctx context.Context, applicationID int, userID uuid.UUID, clusterIDs []string) (*Sentinel, string, error) {
	keySize := c.License.AESKeySize()
	key, err := generateAESKey(keySize)
	if err != nil {
		return nil, "", err
	}

	iv, err := c.Sealer.GenerateIV()
	if err != nil {
		return nil, "", fmt.Errorf("generating iv: %w", err)
	}
	sealed, err := c.Sealer.Encrypt(ctx, key, iv)
	if err != nil {
		return nil, "", fmt.Errorf("sealing key: %w", err)
	}
	sum := sealer.Checksum(sealed)

	// Disperse before persisting metadata: a fragment set with no metadata
	// row is orphan bytes, but a metadata row with no fragments is
	// unusable garbage that looks like a real Sentinel. The former is
	// preferable, so the id is minted here rather than left to the insert.
	id := uuid.New()
	if err := c.Fragments.Disperse(ctx, id.String(), sealed); err != nil {
		return nil, "", fmt.Errorf("dispersing fragments: %w", err)
	}

	s, err := c.Sentinels.Create(ctx, id, applicationID, keySize, iv, sum, userID)
	if err != nil {
		c.Fragments.Erase(ctx, id.String())
		return nil, "", fmt.Errorf("creating sentinel: %w", err)
	}

	c.linkClusters(ctx, clusterIDs, s.ID, userID, false)

	if err := c.Apps.IncrementKeysNumber(ctx, applicationID, 1); err != nil {
		return nil, "", fmt.Errorf("incrementing keys_number: %w", err)
	}
	return s, key, nil
}

// GetSentinel reconstructs a Sentinel's AES key for an authorized caller.
// An admin may fetch any Sentinel in its Application; a regular user only
// one they created or share a cluster with.
func (c *Custodian) GetSentinel(ctx context.Context, id uuid.UUID, applicationID int, userID uuid.UUID, isAdmin bool) (*Sentinel, string, error) {
	s, err := c.lookupSentinel(ctx, id, applicationID, userID, isAdmin)
	if err != nil {
		return nil, "", err
	}
	if s == nil {
		return nil, "", ErrNotFound
	}

	sealed, err := c.Fragments.Reconstruct(ctx, s.ID.String())
	if err != nil {
		return nil, "", fmt.Errorf("reconstructing fragments: %w", err)
	}
	if !sealer.VerifyChecksum(sealed, s.Sum) {
		return nil, "", ErrChecksumInvalid
	}
	key, err := c.Sealer.Decrypt(ctx, sealed, s.IV)
	if err != nil {
		return nil, "", fmt.Errorf("unsealing key: %w", err)
	}
	return s, key, nil
}

func (c *Custodian) lookupSentinel(ctx context.Context, id uuid.UUID, applicationID int, userID uuid.UUID, isAdmin bool) (*Sentinel, error) {
	if isAdmin {
		return c.Sentinels.GetByIDAdmin(ctx, id, applicationID)
	}
	return c.Sentinels.GetByIDForUser(ctx, id, applicationID, userID)
}

// OwnedByOrAdmin satisfies pkg/cluster.SentinelLookup for Sentinels:
// it exists in the Application and either the caller is an admin or
// created it.
func (c *Custodian) OwnedByOrAdmin(ctx context.Context, sentinelID uuid.UUID, applicationID int, userID uuid.UUID, isAdmin bool) (bool, error) {
	s, err := c.Sentinels.GetByIDAdmin(ctx, sentinelID, applicationID)
	if err != nil {
		return false, err
	}
	if s == nil {
		return false, nil
	}
	return isAdmin || (s.CreatedByID != nil && *s.CreatedByID == userID), nil
}

// AnonymousOwnership satisfies pkg/cluster.SentinelLookup for
// AnonymousSentinels, via a small adapter type since Custodian already
// exposes OwnedByOrAdmin for Sentinels under the same method name.
type AnonymousOwnership struct {
	Anonymous *AnonymousStore
}

// OwnedByOrAdmin reports whether userID may attach anonymousSentinelID to
// a cluster: it exists in the Application and either the caller is an
// admin or created it.
func (a *AnonymousOwnership) OwnedByOrAdmin(ctx context.Context, anonymousSentinelID uuid.UUID, applicationID int, userID uuid.UUID, isAdmin bool) (bool, error) {
	s, err := a.Anonymous.GetByIDAdmin(ctx, anonymousSentinelID, applicationID)
	if err != nil {
		return false, err
	}
	if s == nil {
		return false, nil
	}
	return isAdmin || (s.CreatedByID != nil && *s.CreatedByID == userID), nil
}

// DeleteSentinel removes a Sentinel's custody record, erases its
// fragments, and decrements the Application's key counter.
func (c *Custodian) DeleteSentinel(ctx context.Context, id uuid.UUID, applicationID int, userID uuid.UUID, isAdmin bool) error {
	var (
		deleted bool
		err     error
	)
	if isAdmin {
		deleted, err = c.Sentinels.SoftDeleteAdmin(ctx, id, applicationID, userID)
	} else {
		deleted, err = c.Sentinels.SoftDeleteOwned(ctx, id, applicationID, userID)
	}
	if err != nil {
		return err
	}
	if !deleted {
		return ErrNotFound
	}
	c.Fragments.Erase(ctx, id.String())
	return c.Apps.IncrementKeysNumber(ctx, applicationID, -1)
}

// CreateAnonymousSentinel mints a Kyber keypair sized to the Application's
// license. The secret half is sealed and fragment-dispersed exactly like a
// Sentinel's AES key; the public half is sealed with the same IV and stored
// in the row, not fragmented. createdBy is
// nil for a credential-less public enrollment.
func (c *Custodian) CreateAnonymousSentinel(ctx context.Context, applicationID int, createdBy *uuid.UUID, clusterIDs []string) (*AnonymousSentinel, string, error) {
	keySize := c.License.KyberKeySize()
	pub, sec, err := pqkyber.GenerateKeyPair(keySize)
	if err != nil {
		return nil, "", fmt.Errorf("generating kyber keypair: %w", err)
	}

	iv, err := c.Sealer.GenerateIV()
	if err != nil {
		return nil, "", fmt.Errorf("generating iv: %w", err)
	}
	sealedPublic, err := c.Sealer.Encrypt(ctx, pub, iv)
	if err != nil {
		return nil, "", fmt.Errorf("sealing public key: %w", err)
	}
	sealedSecret, err := c.Sealer.Encrypt(ctx, sec, iv)
	if err != nil {
		return nil, "", fmt.Errorf("sealing secret key: %w", err)
	}
	sum := sealer.Checksum(sealedSecret)

	id := uuid.New()
	if err := c.Fragments.Disperse(ctx, id.String(), sealedSecret); err != nil {
		return nil, "", fmt.Errorf("dispersing fragments: %w", err)
	}

	a, err := c.Anonymous.Create(ctx, id, applicationID, keySize, iv, sum, sealedPublic, createdBy)
	if err != nil {
		c.Fragments.Erase(ctx, id.String())
		return nil, "", fmt.Errorf("creating anonymous sentinel: %w", err)
	}
	if createdBy != nil {
		c.linkClusters(ctx, clusterIDs, a.ID, *createdBy, true)
	}
	if err := c.Apps.IncrementKeysNumber(ctx, applicationID, 1); err != nil {
		return nil, "", fmt.Errorf("incrementing keys_number: %w", err)
	}
	return a, sec, nil
}

// GetAnonymousSentinelPublic returns the public record with no ownership
// check — used by the credential-less enrollment lookup.
func (c *Custodian) GetAnonymousSentinelPublic(ctx context.Context, id uuid.UUID) (*AnonymousSentinel, error) {
	a, err := c.Anonymous.GetPublic(ctx, id)
	if err != nil {
		return nil, err
	}
	if a == nil {
		return nil, ErrNotFound
	}
	return a, nil
}

// GetAnonymousSentinel reconstructs an AnonymousSentinel's Kyber secret key
// for an authorized caller.
func (c *Custodian) GetAnonymousSentinel(ctx context.Context, id uuid.UUID, applicationID int, userID uuid.UUID, isAdmin bool) (*AnonymousSentinel, string, error) {
	var (
		a   *AnonymousSentinel
		err error
	)
	if isAdmin {
		a, err = c.Anonymous.GetByIDAdmin(ctx, id, applicationID)
	} else {
		a, err = c.Anonymous.GetByIDForUser(ctx, id, applicationID, userID)
	}
	if err != nil {
		return nil, "", err
	}
	if a == nil {
		return nil, "", ErrNotFound
	}

	sealedSecret, err := c.Fragments.Reconstruct(ctx, a.ID.String())
	if err != nil {
		return nil, "", fmt.Errorf("reconstructing fragments: %w", err)
	}
	if !sealer.VerifyChecksum(sealedSecret, a.Sum) {
		return nil, "", ErrChecksumInvalid
	}
	secret, err := c.Sealer.Decrypt(ctx, sealedSecret, a.IV)
	if err != nil {
		return nil, "", fmt.Errorf("unsealing secret key: %w", err)
	}
	return a, secret, nil
}

// DeleteAnonymousSentinel removes an AnonymousSentinel's custody record,
// erases its fragments, and decrements the Application's key counter.
func (c *Custodian) DeleteAnonymousSentinel(ctx context.Context, id uuid.UUID, applicationID int, userID uuid.UUID, isAdmin bool) error {
	var (
		deleted bool
		err     error
	)
	if isAdmin {
		deleted, err = c.Anonymous.SoftDeleteAdmin(ctx, id, applicationID, userID)
	} else {
		deleted, err = c.Anonymous.SoftDeleteOwned(ctx, id, applicationID, userID)
	}
	if err != nil {
		return err
	}
	if !deleted {
		return ErrNotFound
	}
	c.Fragments.Erase(ctx, id.String())
	return c.Apps.IncrementKeysNumber(ctx, applicationID, -1)
}

func (c *Custodian) linkClusters(ctx context.Context, clusterIDs []string, sentinelID, userID uuid.UUID, anonymous bool) {
	if c.Clusters == nil {
		return
	}
	for _, raw := range clusterIDs {
		clusterID, err := uuid.Parse(raw)
		if err != nil {
			continue
		}
		if anonymous {
			_ = c.Clusters.LinkAnonymousSentinel(ctx, clusterID, sentinelID, userID)
		} else {
			_ = c.Clusters.LinkSentinel(ctx, clusterID, sentinelID, userID)
		}
	}
}
