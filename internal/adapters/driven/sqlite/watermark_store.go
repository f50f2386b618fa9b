package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/custodia-labs/receiptflow/internal/core/domain"
	"github.com/custodia-labs/receiptflow/internal/core/ports/driven"
)

var _ driven.WatermarkStore = (*WatermarkStore)(nil)

// WatermarkStore keeps one JSON watermark document per source.
type WatermarkStore struct {
	db *DB
}

func NewWatermarkStore(db *DB) *WatermarkStore {
	return &WatermarkStore{db: db}
}

func (s *WatermarkStore) Load(ctx context.Context, sourceID string) (*domain.WatermarkState, error) {
	var raw string
	err := s.db.QueryRowContext(ctx,
		`SELECT state FROM watermarks WHERE source_id = ?`, sourceID).Scan(&raw)
	if err == sql.ErrNoRows {
		return domain.NewWatermarkState(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("query watermark %s: %w", sourceID, err)
	}
	state := domain.NewWatermarkState()
	if err := json.Unmarshal([]byte(raw), state); err != nil {
		return nil, fmt.Errorf("watermark %s: %w", sourceID, err)
	}
	return state, nil
}

func (s *WatermarkStore) Save(ctx context.Context, sourceID string, state *domain.WatermarkState) error {
	raw, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("encode watermark %s: %w", sourceID, err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO watermarks (source_id, state) VALUES (?, ?)
		ON CONFLICT (source_id) DO UPDATE SET state = excluded.state
	`, sourceID, string(raw))
	if err != nil {
		return fmt.Errorf("save watermark %s: %w", sourceID, err)
	}
	return nil
}
