package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/custodia-labs/receiptflow/internal/core/ports/driven"
)

var _ driven.ClaimStore = (*ClaimStore)(nil)

// ClaimStore records dedupe keys with SET NX and no expiry, so a claim is
// a single atomic round trip and keys are never released.
type ClaimStore struct {
	client redis.UniversalClient
	keys   keyspace
	now    func() time.Time
}

// NewClaimStore creates a claim store under prefix.
func NewClaimStore(client redis.UniversalClient, prefix string) *ClaimStore {
	return &ClaimStore{client: client, keys: newKeyspace(prefix), now: time.Now}
}

// CreateIfAbsent stores the claim time under key unless key exists.
func (s *ClaimStore) CreateIfAbsent(ctx context.Context, key string) (bool, error) {
	created, err := s.client.SetNX(ctx, s.keys.dedupe(key), s.now().UTC().Format(time.RFC3339), 0).Result()
	if err != nil {
		return false, fmt.Errorf("claim %s: %w", key, err)
	}
	return created, nil
}

// Ping checks Redis.
func (s *ClaimStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}
