package sqlite

import (
	"context"
	"fmt"
	"time"

	"github.com/custodia-labs/receiptflow/internal/core/ports/driven"
)

var _ driven.ClaimStore = (*ClaimStore)(nil)

// ClaimStore records dedupe claims with INSERT OR IGNORE.
type ClaimStore struct {
	db *DB
}

func NewClaimStore(db *DB) *ClaimStore {
	return &ClaimStore{db: db}
}

func (s *ClaimStore) CreateIfAbsent(ctx context.Context, key string) (bool, error) {
	result, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO claims (key, claimed_at) VALUES (?, ?)`,
		key, time.Now().UTC().Format(time.RFC3339))
	if err != nil {
		return false, fmt.Errorf("insert claim: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("get rows affected: %w", err)
	}
	return n == 1, nil
}

func (s *ClaimStore) Ping(ctx context.Context) error {
	return s.db.Ping(ctx)
}
