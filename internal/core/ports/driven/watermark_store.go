package driven

import (
	"context"

	"github.com/custodia-labs/receiptflow/internal/core/domain"
)

// WatermarkStore persists the discovery cursor of each watched source.
type WatermarkStore interface {
	// Load returns the stored state, or an empty state if none exists.
	Load(ctx context.Context, sourceID string) (*domain.WatermarkState, error)

	// Save replaces the stored state.
	Save(ctx context.Context, sourceID string, state *domain.WatermarkState) error
}
