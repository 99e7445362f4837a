package fragment

import (
	"testing"

	"github.com/hashicorp/vault/shamir"
	"github.com/redis/go-redis/v9"
)

func TestFragmentKey_Deterministic(t *testing.T) {
	k1 := fragmentKey("sentinel-1", 0)
	k2 := fragmentKey("sentinel-1", 0)
	if k1 != k2 {
		t.Error("fragmentKey should be deterministic")
	}
}

func TestFragmentKey_QualifiedByIndex(t *testing.T) {
	// Distinct share indices for the same sentinel must never collide, even
	// when the node count is smaller than the share count.
	k0 := fragmentKey("sentinel-1", 0)
	k1 := fragmentKey("sentinel-1", 1)
	if k0 == k1 {
		t.Error("fragmentKey should differ by share index")
	}
}

func TestFragmentKey_QualifiedBySentinel(t *testing.T) {
	k1 := fragmentKey("sentinel-1", 0)
	k2 := fragmentKey("sentinel-2", 0)
	if k1 == k2 {
		t.Error("fragmentKey should differ by sentinel id")
	}
}

func TestNew_ValidatesThresholdAndShares(t *testing.T) {
	nodes := []*redis.Client{redis.NewClient(&redis.Options{Addr: "localhost:0"})}

	if _, err := New(nil, 2, 3); err == nil {
		t.Error("New() with no nodes should fail")
	}
	if _, err := New(nodes, 0, 3); err == nil {
		t.Error("New() with zero threshold should fail")
	}
	if _, err := New(nodes, 4, 3); err == nil {
		t.Error("New() with threshold > shares should fail")
	}
	if _, err := New(nodes, 2, 3); err != nil {
		t.Errorf("New() with valid params should succeed, got %v", err)
	}
}

// TestShamirRoundTrip exercises the underlying secret-sharing primitive
// directly, independent of any Redis connection, to pin the split/combine
// semantics Disperse and Reconstruct build on.
func TestShamirRoundTrip(t *testing.T) {
	secret := []byte("0123456789abcdef0123456789abcdef")

	shares, err := shamir.Split(secret, 5, 3)
	if err != nil {
		t.Fatalf("shamir.Split() error = %v", err)
	}
	if len(shares) != 5 {
		t.Fatalf("got %d shares, want 5", len(shares))
	}

	recovered, err := shamir.Combine(shares[:3])
	if err != nil {
		t.Fatalf("shamir.Combine() error = %v", err)
	}
	if string(recovered) != string(secret) {
		t.Errorf("Combine() = %q, want %q", recovered, secret)
	}
}

func TestShamirRoundTrip_InsufficientShares(t *testing.T) {
	secret := []byte("some sealed aes key bytes here!")
	shares, err := shamir.Split(secret, 5, 3)
	if err != nil {
		t.Fatalf("shamir.Split() error = %v", err)
	}

	recovered, _ := shamir.Combine(shares[:2])
	if string(recovered) == string(secret) {
		t.Error("Combine() with fewer than threshold shares should not recover the original secret")
	}
}
