// Package fragment implements the FragmentStore: key material is split with
// Shamir secret sharing and dispersed across an independent ring of Redis
// instances, share i on node i modulo the node count. When there are more
// shares than nodes, a node holds more than one share of the same key.
package fragment

import (
	"context"
	"encoding/hex"
	"fmt"

	"github.com/hashicorp/vault/shamir"
	"github.com/redis/go-redis/v9"
)

// Store disperses and reassembles key shares across a fixed ring of Redis
// nodes. Unlike a consistent-hashing ring, placement is a plain
// index-modulo-node-count assignment: the node set is expected to be stable
// membership, not an elastic pool.
type Store struct {
	nodes     []*redis.Client
	threshold int
	shares    int
}

// New builds a Store over the given node clients. threshold is the minimum
// number of shares required to reconstruct a key; shares is the total number
// generated per key and must be >= threshold.
func New(nodes []*redis.Client, threshold, shares int) (*Store, error) {
	if len(nodes) == 0 {
		return nil, fmt.Errorf("fragment store requires at least one node")
	}
	if threshold < 1 || shares < threshold {
		return nil, fmt.Errorf("invalid threshold/shares: threshold=%d shares=%d", threshold, shares)
	}
	return &Store{nodes: nodes, threshold: threshold, shares: shares}, nil
}

func fragmentKey(sentinelID string, index int) string {
	return fmt.Sprintf("fragments:%s:%d", sentinelID, index)
}

// Disperse splits encryptedHex into shares and writes one per node, keyed by
// sentinelID and share index so that shares landing on the same node (when
// shares exceeds the node count) never collide under one key. Dispersal is
// all-or-nothing: if any node write fails, already-written shares for this
// sentinel are rolled back before the error is returned.
func (s *Store) Disperse(ctx context.Context, sentinelID, encryptedHex string) error {
	secret, err := hex.DecodeString(encryptedHex)
	if err != nil {
		return fmt.Errorf("decoding sealed key: %w", err)
	}

	shares, err := shamir.Split(secret, s.shares, s.threshold)
	if err != nil {
		return fmt.Errorf("splitting key into shares: %w", err)
	}

	written := make([]int, 0, len(shares))
	for i, share := range shares {
		node := s.nodes[i%len(s.nodes)]
		key := fragmentKey(sentinelID, i)
		if err := node.Set(ctx, key, hex.EncodeToString(share), 0).Err(); err != nil {
			s.rollback(ctx, sentinelID, written)
			return fmt.Errorf("writing share %d to node %d: %w", i, i%len(s.nodes), err)
		}
		written = append(written, i)
	}

	return nil
}

func (s *Store) rollback(ctx context.Context, sentinelID string, indices []int) {
	for _, i := range indices {
		node := s.nodes[i%len(s.nodes)]
		_ = node.Del(ctx, fragmentKey(sentinelID, i)).Err()
	}
}

// Reconstruct gathers shares best-effort (tolerating node failures up to
// the point where fewer than threshold shares remain available) and
// recombines them into the original sealed key.
func (s *Store) Reconstruct(ctx context.Context, sentinelID string) (string, error) {
	shares := make([][]byte, 0, s.shares)

	for i := 0; i < s.shares; i++ {
		node := s.nodes[i%len(s.nodes)]
		val, err := node.Get(ctx, fragmentKey(sentinelID, i)).Result()
		if err != nil {
			continue
		}
		share, err := hex.DecodeString(val)
		if err != nil {
			continue
		}
		shares = append(shares, share)
	}

	if len(shares) < s.threshold {
		return "", fmt.Errorf("only %d of %d required shares available", len(shares), s.threshold)
	}

	secret, err := shamir.Combine(shares)
	if err != nil {
		return "", fmt.Errorf("reconstructing key: %w", err)
	}

	return hex.EncodeToString(secret), nil
}

// Erase deletes every share for a sentinel, best-effort: a failed delete on
// one node does not block deletes on the rest, since stale shares below
// threshold cannot reconstruct anything on their own.
func (s *Store) Erase(ctx context.Context, sentinelID string) {
	for i := 0; i < s.shares; i++ {
		node := s.nodes[i%len(s.nodes)]
		_ = node.Del(ctx, fragmentKey(sentinelID, i)).Err()
	}
}
