// Package memory provides in-process implementations of the driven ports
// for single-node runs and tests.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/custodia-labs/receiptflow/internal/core/ports/driven"
)

// Verify interface compliance
var _ driven.ClaimStore = (*ClaimStore)(nil)

// ClaimStore is a mutex-guarded create-once key set.
type ClaimStore struct {
	mu     sync.Mutex
	claims map[string]time.Time
}

// NewClaimStore creates an empty claim store.
func NewClaimStore() *ClaimStore {
	return &ClaimStore{claims: make(map[string]time.Time)}
}

// CreateIfAbsent records key if no one has before.
func (s *ClaimStore) CreateIfAbsent(_ context.Context, key string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.claims[key]; ok {
		return false, nil
	}
	s.claims[key] = time.Now()
	return true, nil
}

// Ping always succeeds.
func (s *ClaimStore) Ping(context.Context) error { return nil }

// Len returns the number of claimed keys.
func (s *ClaimStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.claims)
}
