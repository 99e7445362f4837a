package sealer

import (
	"context"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/hex"
	"fmt"
)

// SoftwareSealer wraps keys with AES-256-GCM under a single master key held
// in process memory. There is no ecosystem AEAD library beyond the standard
// library that the rest of this codebase's dependency stack reaches for, so
// crypto/aes and crypto/cipher are used directly here.
type SoftwareSealer struct {
	masterKey []byte
}

// NewSoftwareSealer builds a SoftwareSealer from a hex-encoded 32-byte key.
func NewSoftwareSealer(masterKeyHex string) (*SoftwareSealer, error) {
	key, err := hex.DecodeString(masterKeyHex)
	if err != nil {
		return nil, fmt.Errorf("decoding encryption key: %w", err)
	}
	if len(key) != 32 {
		return nil, fmt.Errorf("encryption key must be 32 bytes, got %d", len(key))
	}
	return &SoftwareSealer{masterKey: key}, nil
}

func (s *SoftwareSealer) Name() string { return "software" }

// GenerateIV returns a 12-byte hex-encoded nonce, the size AES-GCM expects.
func (s *SoftwareSealer) GenerateIV() (string, error) {
	iv := make([]byte, 12)
	if _, err := rand.Read(iv); err != nil {
		return "", fmt.Errorf("generating iv: %w", err)
	}
	return hex.EncodeToString(iv), nil
}

func (s *SoftwareSealer) Encrypt(_ context.Context, plaintextHex, ivHex string) (string, error) {
	gcm, iv, err := s.gcmAndIV(ivHex)
	if err != nil {
		return "", err
	}
	plaintext, err := hex.DecodeString(plaintextHex)
	if err != nil {
		return "", fmt.Errorf("decoding plaintext: %w", err)
	}
	ciphertext := gcm.Seal(nil, iv, plaintext, nil)
	return hex.EncodeToString(ciphertext), nil
}

func (s *SoftwareSealer) Decrypt(_ context.Context, ciphertextHex, ivHex string) (string, error) {
	gcm, iv, err := s.gcmAndIV(ivHex)
	if err != nil {
		return "", err
	}
	ciphertext, err := hex.DecodeString(ciphertextHex)
	if err != nil {
		return "", fmt.Errorf("decoding ciphertext: %w", err)
	}
	plaintext, err := gcm.Open(nil, iv, ciphertext, nil)
	if err != nil {
		return "", fmt.Errorf("decrypting: %w", err)
	}
	return hex.EncodeToString(plaintext), nil
}

func (s *SoftwareSealer) gcmAndIV(ivHex string) (cipher.AEAD, []byte, error) {
	block, err := aes.NewCipher(s.masterKey)
	if err != nil {
		return nil, nil, fmt.Errorf("building aes cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, nil, fmt.Errorf("building gcm: %w", err)
	}
	iv, err := hex.DecodeString(ivHex)
	if err != nil {
		return nil, nil, fmt.Errorf("decoding iv: %w", err)
	}
	if len(iv) != gcm.NonceSize() {
		return nil, nil, fmt.Errorf("iv must be %d bytes, got %d", gcm.NonceSize(), len(iv))
	}
	return gcm, iv, nil
}
