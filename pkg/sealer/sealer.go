// Package sealer defines the provider-agnostic interface for wrapping key
// material at rest, with a software AES-256-GCM implementation and an
// HSM-backed PKCS#11 implementation.
package sealer

import "context"

// Sealer encrypts and decrypts key bytes for storage. Implementations never
// see plaintext key material outside the boundary of a single Encrypt/Decrypt
// call.
type Sealer interface {
	// Name returns the provider identifier ("software", "hsm").
	Name() string

	// GenerateIV returns a fresh, unique IV sized for this provider's cipher.
	GenerateIV() (string, error)

	// Encrypt wraps plaintext under the given hex-encoded IV and returns the
	// hex-encoded ciphertext.
	Encrypt(ctx context.Context, plaintextHex, ivHex string) (string, error)

	// Decrypt unwraps a hex-encoded ciphertext produced by Encrypt.
	Decrypt(ctx context.Context, ciphertextHex, ivHex string) (string, error)
}

// Checksum returns the hex-encoded SHA-256 digest of a hex-encoded blob,
// used to detect corrupted or substituted ciphertext on retrieval.
func Checksum(blobHex string) string {
	return checksumHex(blobHex)
}
