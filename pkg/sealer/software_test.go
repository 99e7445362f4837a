package sealer

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"testing"
)

func newTestSealer(t *testing.T) *SoftwareSealer {
	t.Helper()
	key := make([]byte, 32)
	if _, err := rand.Read(key); err != nil {
		t.Fatalf("generating test key: %v", err)
	}
	s, err := NewSoftwareSealer(hex.EncodeToString(key))
	if err != nil {
		t.Fatalf("NewSoftwareSealer() error = %v", err)
	}
	return s
}

func TestSoftwareSealer_RoundTrip(t *testing.T) {
	s := newTestSealer(t)
	ctx := context.Background()

	plaintext := hex.EncodeToString([]byte("a very secret aes key material"))
	iv, err := s.GenerateIV()
	if err != nil {
		t.Fatalf("GenerateIV() error = %v", err)
	}

	ciphertext, err := s.Encrypt(ctx, plaintext, iv)
	if err != nil {
		t.Fatalf("Encrypt() error = %v", err)
	}
	if ciphertext == plaintext {
		t.Fatal("ciphertext should differ from plaintext")
	}

	got, err := s.Decrypt(ctx, ciphertext, iv)
	if err != nil {
		t.Fatalf("Decrypt() error = %v", err)
	}
	if got != plaintext {
		t.Errorf("Decrypt() = %q, want %q", got, plaintext)
	}
}

func TestSoftwareSealer_WrongIVFails(t *testing.T) {
	s := newTestSealer(t)
	ctx := context.Background()

	plaintext := hex.EncodeToString([]byte("key material"))
	iv, _ := s.GenerateIV()
	ciphertext, err := s.Encrypt(ctx, plaintext, iv)
	if err != nil {
		t.Fatalf("Encrypt() error = %v", err)
	}

	otherIV, _ := s.GenerateIV()
	if _, err := s.Decrypt(ctx, ciphertext, otherIV); err == nil {
		t.Error("Decrypt() with wrong iv should fail")
	}
}

func TestNewSoftwareSealer_InvalidKeyLength(t *testing.T) {
	if _, err := NewSoftwareSealer(hex.EncodeToString([]byte("too short"))); err == nil {
		t.Error("NewSoftwareSealer() with short key should fail")
	}
}

func TestChecksum_ConstantTimeCompare(t *testing.T) {
	blob := "deadbeef"
	sum := Checksum(blob)

	if !VerifyChecksum(blob, sum) {
		t.Error("VerifyChecksum() should accept a matching checksum")
	}
	if VerifyChecksum(blob, "0000") {
		t.Error("VerifyChecksum() should reject a mismatched checksum")
	}
}
