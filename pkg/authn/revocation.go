package authn

import (
	"context"
	"fmt"

	"github.com/keyward/keyward/internal/db"
)

// RevokedTokenStore implements RevocationStore against the global
// revoked_tokens table.
type RevokedTokenStore struct {
	db db.DBTX
}

// NewRevokedTokenStore builds a RevokedTokenStore.
func NewRevokedTokenStore(conn db.DBTX) *RevokedTokenStore {
	return &RevokedTokenStore{db: conn}
}

func (s *RevokedTokenStore) IsRevoked(ctx context.Context, rawToken string) (bool, error) {
	var n int
	err := s.db.QueryRow(ctx, `
		SELECT count(*) FROM revoked_tokens WHERE token = $1 AND is_deleted = false
	`, rawToken).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("checking revoked_tokens: %w", err)
	}
	return n > 0, nil
}

func (s *RevokedTokenStore) Revoke(ctx context.Context, rawToken string) error {
	_, err := s.db.Exec(ctx, `
		INSERT INTO revoked_tokens (token, is_deleted) VALUES ($1, false)
	`, rawToken)
	if err != nil {
		return fmt.Errorf("inserting revoked token: %w", err)
	}
	return nil
}
