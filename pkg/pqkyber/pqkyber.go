// Package pqkyber generates ML-KEM (Kyber) keypairs sized by an
// Application's license tier: ML-KEM-512 for free/standard tenants,
// ML-KEM-1024 for enterprise tenants. Keys are returned hex-encoded so
// callers can hand them straight to a Sealer.
package pqkyber

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"

	"github.com/cloudflare/circl/kem/mlkem/mlkem1024"
	"github.com/cloudflare/circl/kem/mlkem/mlkem512"
	"github.com/cloudflare/circl/kem/mlkem/mlkem768"
)

// GenerateKeyPair creates a fresh ML-KEM keypair at the given security
// level (512, 768, or 1024) and returns the hex-encoded public and secret
// keys.
func GenerateKeyPair(level int) (publicHex, secretHex string, err error) {
	switch level {
	case 512:
		pk, sk, err := mlkem512.GenerateKeyPair(rand.Reader)
		if err != nil {
			return "", "", fmt.Errorf("generating mlkem-512 keypair: %w", err)
		}
		pub := make([]byte, mlkem512.PublicKeySize)
		sec := make([]byte, mlkem512.PrivateKeySize)
		pk.Pack(pub)
		sk.Pack(sec)
		return hex.EncodeToString(pub), hex.EncodeToString(sec), nil
	case 768:
		pk, sk, err := mlkem768.GenerateKeyPair(rand.Reader)
		if err != nil {
			return "", "", fmt.Errorf("generating mlkem-768 keypair: %w", err)
		}
		pub := make([]byte, mlkem768.PublicKeySize)
		sec := make([]byte, mlkem768.PrivateKeySize)
		pk.Pack(pub)
		sk.Pack(sec)
		return hex.EncodeToString(pub), hex.EncodeToString(sec), nil
	case 1024:
		pk, sk, err := mlkem1024.GenerateKeyPair(rand.Reader)
		if err != nil {
			return "", "", fmt.Errorf("generating mlkem-1024 keypair: %w", err)
		}
		pub := make([]byte, mlkem1024.PublicKeySize)
		sec := make([]byte, mlkem1024.PrivateKeySize)
		pk.Pack(pub)
		sk.Pack(sec)
		return hex.EncodeToString(pub), hex.EncodeToString(sec), nil
	default:
		return "", "", fmt.Errorf("unsupported kyber level: %d", level)
	}
}

// Encapsulate derives a shared secret and ciphertext against a peer's
// hex-encoded public key at the given security level.
func Encapsulate(level int, peerPublicHex string) (ciphertextHex, sharedSecretHex string, err error) {
	peerPub, err := hex.DecodeString(peerPublicHex)
	if err != nil {
		return "", "", fmt.Errorf("decoding peer public key: %w", err)
	}
	switch level {
	case 512:
		var pk mlkem512.PublicKey
		if err := pk.Unpack(peerPub); err != nil {
			return "", "", fmt.Errorf("unpacking mlkem-512 public key: %w", err)
		}
		ct := make([]byte, mlkem512.CiphertextSize)
		ss := make([]byte, mlkem512.SharedKeySize)
		pk.EncapsulateTo(ct, ss, nil)
		return hex.EncodeToString(ct), hex.EncodeToString(ss), nil
	case 768:
		var pk mlkem768.PublicKey
		if err := pk.Unpack(peerPub); err != nil {
			return "", "", fmt.Errorf("unpacking mlkem-768 public key: %w", err)
		}
		ct := make([]byte, mlkem768.CiphertextSize)
		ss := make([]byte, mlkem768.SharedKeySize)
		pk.EncapsulateTo(ct, ss, nil)
		return hex.EncodeToString(ct), hex.EncodeToString(ss), nil
	case 1024:
		var pk mlkem1024.PublicKey
		if err := pk.Unpack(peerPub); err != nil {
			return "", "", fmt.Errorf("unpacking mlkem-1024 public key: %w", err)
		}
		ct := make([]byte, mlkem1024.CiphertextSize)
		ss := make([]byte, mlkem1024.SharedKeySize)
		pk.EncapsulateTo(ct, ss, nil)
		return hex.EncodeToString(ct), hex.EncodeToString(ss), nil
	default:
		return "", "", fmt.Errorf("unsupported kyber level: %d", level)
	}
}

// Decapsulate recovers the shared secret from a ciphertext using a
// hex-encoded secret key at the given security level.
func Decapsulate(level int, secretHex, ciphertextHex string) (sharedSecretHex string, err error) {
	sec, err := hex.DecodeString(secretHex)
	if err != nil {
		return "", fmt.Errorf("decoding secret key: %w", err)
	}
	ct, err := hex.DecodeString(ciphertextHex)
	if err != nil {
		return "", fmt.Errorf("decoding ciphertext: %w", err)
	}
	switch level {
	case 512:
		var sk mlkem512.PrivateKey
		if err := sk.Unpack(sec); err != nil {
			return "", fmt.Errorf("unpacking mlkem-512 secret key: %w", err)
		}
		ss := make([]byte, mlkem512.SharedKeySize)
		sk.DecapsulateTo(ss, ct)
		return hex.EncodeToString(ss), nil
	case 768:
		var sk mlkem768.PrivateKey
		if err := sk.Unpack(sec); err != nil {
			return "", fmt.Errorf("unpacking mlkem-768 secret key: %w", err)
		}
		ss := make([]byte, mlkem768.SharedKeySize)
		sk.DecapsulateTo(ss, ct)
		return hex.EncodeToString(ss), nil
	case 1024:
		var sk mlkem1024.PrivateKey
		if err := sk.Unpack(sec); err != nil {
			return "", fmt.Errorf("unpacking mlkem-1024 secret key: %w", err)
		}
		ss := make([]byte, mlkem1024.SharedKeySize)
		sk.DecapsulateTo(ss, ct)
		return hex.EncodeToString(ss), nil
	default:
		return "", fmt.Errorf("unsupported kyber level: %d", level)
	}
}
