// Package sentinel implements the KeyCustodian: minting, retrieving, and
// deleting the custody keys an Application holds on behalf of its users —
// both symmetric Sentinels (an AES key) and AnonymousSentinels (a Kyber
// keypair usable without presenting any credential beyond the key's own
// ID, such as a device enrollment secret).
package sentinel

import (
	"time"

	"github.com/google/uuid"
)

// Sentinel is a custody record for a symmetric AES key. The key itself is
// never stored in the clear: only its sealed, fragment-dispersed form and
// a checksum of that sealed form.
type Sentinel struct {
	ID            uuid.UUID
	ApplicationID int
	IV            string
	Sum           string
	KeySize       int
	IsDeleted     bool
	CreatedAt     time.Time
	UpdatedAt     *time.Time
	DeletedAt     *time.Time
	CreatedByID   *uuid.UUID
	UpdatedByID   *uuid.UUID
	DeletedByID   *uuid.UUID
}

// AnonymousSentinel is a custody record for a Kyber keypair. Its public
// key is sealed and stored in the row; the secret key follows the same
// seal-then-fragment path as a Sentinel's AES key.
type AnonymousSentinel struct {
	ID            uuid.UUID
	ApplicationID int
	IV            string
	Sum           string
	PublicKey     string
	KeySize       int
	IsDeleted     bool
	CreatedAt     time.Time
	UpdatedAt     *time.Time
	DeletedAt     *time.Time
	CreatedByID   *uuid.UUID
	UpdatedByID   *uuid.UUID
	DeletedByID   *uuid.UUID
}
