package policy

import "sync"

// Tier is a license tier. License file parsing and signature verification
// are out of scope here; only the tier enum a license service would
// otherwise produce is consumed.
type Tier string

const (
	TierFree       Tier = "free"
	TierStandard   Tier = "standard"
	TierEnterprise Tier = "enterprise"
)

// userCap is the maximum non-deleted user count an Application on this tier
// may hold. TierEnterprise is uncapped.
var userCap = map[Tier]int{
	TierFree:     200,
	TierStandard: 10000,
}

// aesKeySize and kyberKeySize are the cryptographic strengths minted for
// Sentinels and AnonymousSentinels under each tier. TierEnterprise mints
// AES-256 / Kyber-1024; every other tier mints AES-128 / Kyber-512, matching
// the non-Enterprise branch the key-minting services this package's gate
// serves were drawn from.
var aesKeySize = map[Tier]int{
	TierFree:       128,
	TierStandard:   128,
	TierEnterprise: 256,
}

var kyberKeySize = map[Tier]int{
	TierFree:       512,
	TierStandard:   512,
	TierEnterprise: 1024,
}

// LicenseSource refreshes the active tier, e.g. on successful login. It is
// an opaque collaborator: how a tier is determined (license file,
// subscription service, static config) is out of scope here.
type LicenseSource interface {
	Tier() Tier
}

// staticSource returns a fixed tier, for deployments with no dynamic
// license source configured.
type staticSource struct{ tier Tier }

func (s staticSource) Tier() Tier { return s.tier }

// StaticSource wraps a fixed tier as a LicenseSource.
func StaticSource(tier Tier) LicenseSource { return staticSource{tier: tier} }

// LicenseCell is a read-mostly, concurrency-safe holder of the active
// license tier. Reads share a read lock and wait only while Refresh holds
// the write lock; a reader observing a tier that is one refresh stale is
// acceptable, since license changes are rare and not safety-critical to
// observe instantly.
type LicenseCell struct {
	mu   sync.RWMutex
	tier Tier
}

// NewLicenseCell creates a cell initialized to the given tier.
func NewLicenseCell(initial Tier) *LicenseCell {
	return &LicenseCell{tier: initial}
}

// Tier returns the currently active tier.
func (c *LicenseCell) Tier() Tier {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.tier
}

// Refresh updates the active tier from source. Call on successful login.
func (c *LicenseCell) Refresh(source LicenseSource) {
	tier := source.Tier()
	c.mu.Lock()
	c.tier = tier
	c.mu.Unlock()
}

// UserCap returns the maximum user count for the current tier, and whether
// the tier is capped at all (false for Enterprise).
func (c *LicenseCell) UserCap() (limit int, capped bool) {
	tier := c.Tier()
	if tier == TierEnterprise {
		return 0, false
	}
	limit, ok := userCap[tier]
	if !ok {
		// Unknown tiers are treated as the most restrictive known tier
		// rather than silently granted unlimited capacity.
		return userCap[TierFree], true
	}
	return limit, true
}

// AllowUserCreation reports whether one more user may be created under the
// active tier when currentUsers users already exist.
func (c *LicenseCell) AllowUserCreation(currentUsers int) bool {
	limit, capped := c.UserCap()
	if !capped {
		return true
	}
	return currentUsers < limit
}

// AESKeySize returns the AES key size in bits minted for Sentinels under
// the active tier.
func (c *LicenseCell) AESKeySize() int {
	return sizeOrDefault(aesKeySize, c.Tier(), 128)
}

// KyberKeySize returns the ML-KEM/Kyber parameter set size minted for
// AnonymousSentinels under the active tier.
func (c *LicenseCell) KyberKeySize() int {
	return sizeOrDefault(kyberKeySize, c.Tier(), 512)
}

func sizeOrDefault(m map[Tier]int, tier Tier, def int) int {
	if v, ok := m[tier]; ok {
		return v
	}
	return def
}
