package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/custodia-labs/receiptflow/internal/core/domain"
	"github.com/custodia-labs/receiptflow/internal/core/ports/driven"
)

var _ driven.WatermarkStore = (*WatermarkStore)(nil)

// WatermarkStore keeps one JSON watermark document per source.
type WatermarkStore struct {
	client redis.UniversalClient
	keys   keyspace
}

// NewWatermarkStore creates a watermark store under prefix.
func NewWatermarkStore(client redis.UniversalClient, prefix string) *WatermarkStore {
	return &WatermarkStore{client: client, keys: newKeyspace(prefix)}
}

// Load returns the stored state, or an empty one for a new source.
func (s *WatermarkStore) Load(ctx context.Context, sourceID string) (*domain.WatermarkState, error) {
	data, err := s.client.Get(ctx, s.keys.watermark(sourceID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return domain.NewWatermarkState(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("load watermark %s: %w", sourceID, err)
	}
	state := domain.NewWatermarkState()
	if err := json.Unmarshal(data, state); err != nil {
		return nil, err
	}
	return state, nil
}

// Save overwrites the stored state.
func (s *WatermarkStore) Save(ctx context.Context, sourceID string, state *domain.WatermarkState) error {
	data, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("encode watermark %s: %w", sourceID, err)
	}
	if err := s.client.Set(ctx, s.keys.watermark(sourceID), data, 0).Err(); err != nil {
		return fmt.Errorf("save watermark %s: %w", sourceID, err)
	}
	return nil
}
