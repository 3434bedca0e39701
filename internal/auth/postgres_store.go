package auth

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

type DB interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// PostgresProfileStore reads tiers from the profiles table.
type PostgresProfileStore struct {
	db DB
}

func NewPostgresProfileStore(db DB) *PostgresProfileStore {
	return &PostgresProfileStore{db: db}
}

func (s *PostgresProfileStore) GetTier(ctx context.Context, userID string) (string, error) {
	var t *string
	err := s.db.QueryRow(ctx, `SELECT tier FROM profiles WHERE id = $1`, userID).Scan(&t)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", ErrProfileNotFound
		}
		return "", fmt.Errorf("failed to get profile tier: %w", err)
	}
	if t == nil || *t == "" {
		return "", ErrProfileNotFound
	}
	return *t, nil
}

// SetTier creates or updates a profile's tier.
func (s *PostgresProfileStore) SetTier(ctx context.Context, userID, tierName string) error {
	query := `
		INSERT INTO profiles (id, tier)
		VALUES ($1, $2)
		ON CONFLICT (id) DO UPDATE SET tier = EXCLUDED.tier
	`
	if _, err := s.db.Exec(ctx, query, userID, tierName); err != nil {
		return fmt.Errorf("failed to set profile tier: %w", err)
	}
	return nil
}

type MemoryProfileStore struct {
	mu    sync.RWMutex
	tiers map[string]string
}

func NewMemoryProfileStore() *MemoryProfileStore {
	return &MemoryProfileStore{tiers: make(map[string]string)}
}

func (s *MemoryProfileStore) GetTier(ctx context.Context, userID string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.tiers[userID]
	if !ok {
		return "", ErrProfileNotFound
	}
	return t, nil
}

func (s *MemoryProfileStore) SetTier(ctx context.Context, userID, tierName string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tiers[userID] = tierName
	return nil
}
