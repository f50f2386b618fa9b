package mocks

import (
	"context"
	"sync"

	"github.com/custodia-labs/receiptflow/internal/core/ports/driven"
)

var _ driven.ClaimStore = (*MockClaimStore)(nil)

// MockClaimStore is an in-memory claim store with injectable failures.
type MockClaimStore struct {
	mu     sync.Mutex
	claims map[string]bool
	calls  int

	CreateFn func(key string) (bool, error)
	PingFn   func() error
}

// NewMockClaimStore creates a new mock claim store.
func NewMockClaimStore() *MockClaimStore {
	return &MockClaimStore{claims: make(map[string]bool)}
}

// CreateIfAbsent records key once.
func (m *MockClaimStore) CreateIfAbsent(ctx context.Context, key string) (bool, error) {
	m.mu.Lock()
	m.calls++
	m.mu.Unlock()

	if m.CreateFn != nil {
		return m.CreateFn(key)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.claims[key] {
		return false, nil
	}
	m.claims[key] = true
	return true, nil
}

// Ping checks backend health.
func (m *MockClaimStore) Ping(ctx context.Context) error {
	if m.PingFn != nil {
		return m.PingFn()
	}
	return nil
}

// Calls returns how many claims were attempted.
func (m *MockClaimStore) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

// Claimed reports whether key was recorded.
func (m *MockClaimStore) Claimed(key string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.claims[key]
}
