package memory

import (
	"context"
	"sync"

	"github.com/custodia-labs/receiptflow/internal/core/domain"
	"github.com/custodia-labs/receiptflow/internal/core/ports/driven"
)

var _ driven.WatermarkStore = (*WatermarkStore)(nil)

// WatermarkStore keeps watermark states in memory.
type WatermarkStore struct {
	mu     sync.RWMutex
	states map[string]*domain.WatermarkState
}

// NewWatermarkStore creates an empty watermark store.
func NewWatermarkStore() *WatermarkStore {
	return &WatermarkStore{states: make(map[string]*domain.WatermarkState)}
}

// Load returns a copy of the stored state, or an empty state.
func (s *WatermarkStore) Load(_ context.Context, sourceID string) (*domain.WatermarkState, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	state, ok := s.states[sourceID]
	if !ok {
		return domain.NewWatermarkState(), nil
	}
	return state.Clone(), nil
}

// Save stores a copy of state.
func (s *WatermarkStore) Save(_ context.Context, sourceID string, state *domain.WatermarkState) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.states[sourceID] = state.Clone()
	return nil
}
