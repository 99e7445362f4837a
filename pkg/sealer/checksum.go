package sealer

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
)

func checksumHex(blobHex string) string {
	sum := sha256.Sum256([]byte(blobHex))
	return hex.EncodeToString(sum[:])
}

// VerifyChecksum compares a stored checksum against a freshly computed one
// in constant time. The original implementation this package's semantics are
// drawn from compared checksums with a plain == operator, which leaks timing
// information about how many leading bytes matched; this comparison does not.
func VerifyChecksum(blobHex, wantChecksumHex string) bool {
	got := checksumHex(blobHex)
	return subtle.ConstantTimeCompare([]byte(got), []byte(wantChecksumHex)) == 1
}
