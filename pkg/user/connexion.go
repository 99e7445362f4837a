package user

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/keyward/keyward/internal/db"
)

// Connexion records one successful login, keyed by the IP/fingerprint pair
// it was seen from. Used to recognize unfamiliar logins.
type Connexion struct {
	ID          int
	UserID      uuid.UUID
	IP          string
	UserAgent   string
	Fingerprint string
	IsDeleted   bool
	CreatedAt   time.Time
}

// ConnexionStore is the Connexion repository.
type ConnexionStore struct {
	db db.DBTX
}

// NewConnexionStore builds a ConnexionStore.
func NewConnexionStore(conn db.DBTX) *ConnexionStore {
	return &ConnexionStore{db: conn}
}

// HasIP reports whether the user has ever logged in from ip before.
func (s *ConnexionStore) HasIP(ctx context.Context, userID uuid.UUID, ip string) (bool, error) {
	var n int
	err := s.db.QueryRow(ctx, `
		SELECT count(*) FROM connexions WHERE user_id = $1 AND ip = $2 AND is_deleted = false
	`, userID, ip).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("checking ip connexion: %w", err)
	}
	return n > 0, nil
}

// HasFingerprint reports whether the user has ever logged in with this
// device fingerprint before.
func (s *ConnexionStore) HasFingerprint(ctx context.Context, userID uuid.UUID, fingerprint string) (bool, error) {
	var n int
	err := s.db.QueryRow(ctx, `
		SELECT count(*) FROM connexions WHERE user_id = $1 AND fingerprint = $2 AND is_deleted = false
	`, userID, fingerprint).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("checking fingerprint connexion: %w", err)
	}
	return n > 0, nil
}

// Record stores a new connexion, e.g. once a login succeeds.
func (s *ConnexionStore) Record(ctx context.Context, userID uuid.UUID, ip, userAgent, fingerprint string) error {
	_, err := s.db.Exec(ctx, `
		INSERT INTO connexions (user_id, ip, user_agent, fingerprint, is_deleted, created_by_id)
		VALUES ($1, $2, $3, $4, false, $1)
	`, userID, ip, userAgent, fingerprint)
	if err != nil {
		return fmt.Errorf("recording connexion: %w", err)
	}
	return nil
}
