package postgres

import (
	"context"
	"fmt"

	"github.com/custodia-labs/receiptflow/internal/core/ports/driven"
)

// Verify interface compliance
var _ driven.ClaimStore = (*ClaimStore)(nil)

// ClaimStore records dedupe claims in the claims table. The primary key
// makes the insert the arbiter between concurrent workers.
type ClaimStore struct {
	db *DB
}

// NewClaimStore creates a new ClaimStore
func NewClaimStore(db *DB) *ClaimStore {
	return &ClaimStore{db: db}
}

// CreateIfAbsent inserts key; created is false when the row already existed.
func (s *ClaimStore) CreateIfAbsent(ctx context.Context, key string) (bool, error) {
	result, err := s.db.ExecContext(ctx,
		`INSERT INTO claims (key) VALUES ($1) ON CONFLICT (key) DO NOTHING`, key)
	if err != nil {
		return false, fmt.Errorf("insert claim: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("get rows affected: %w", err)
	}
	return rows == 1, nil
}

// Ping checks database connectivity
func (s *ClaimStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}
