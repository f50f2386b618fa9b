package mocks

import (
	"context"
	"sync"
	"time"

	"github.com/custodia-labs/receiptflow/internal/core/domain"
	"github.com/custodia-labs/receiptflow/internal/core/ports/driven"
)

var _ driven.DistributedLock = (*MockDistributedLock)(nil)

// MockDistributedLock keeps named leases in memory. AcquireFn, when set,
// replaces the lease logic so tests can simulate a broken backend.
type MockDistributedLock struct {
	mu     sync.Mutex
	leases map[string]time.Time

	AcquireFn func(name string, ttl time.Duration) (bool, error)
	Now       func() time.Time

	// Acquired lists every successfully acquired name, in order
	Acquired []string
}

// NewMockDistributedLock creates a lock with no leases.
func NewMockDistributedLock() *MockDistributedLock {
	return &MockDistributedLock{leases: make(map[string]time.Time), Now: time.Now}
}

func (m *MockDistributedLock) live(name string) bool {
	until, ok := m.leases[name]
	return ok && m.Now().Before(until)
}

func (m *MockDistributedLock) Acquire(_ context.Context, name string, ttl time.Duration) (bool, error) {
	if m.AcquireFn != nil {
		return m.AcquireFn(name, ttl)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.live(name) {
		return false, nil
	}
	m.leases[name] = m.Now().Add(ttl)
	m.Acquired = append(m.Acquired, name)
	return true, nil
}

func (m *MockDistributedLock) Release(_ context.Context, name string) error {
	m.Free(name)
	return nil
}

func (m *MockDistributedLock) Extend(_ context.Context, name string, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.live(name) {
		return domain.ErrLockNotHeld
	}
	m.leases[name] = m.Now().Add(ttl)
	return nil
}

func (m *MockDistributedLock) Ping(context.Context) error {
	return nil
}

// Hold simulates another instance owning name for ttl.
func (m *MockDistributedLock) Hold(name string, ttl time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.leases[name] = m.Now().Add(ttl)
}

// Free drops a lease regardless of owner.
func (m *MockDistributedLock) Free(name string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.leases, name)
}

// Held reports whether name is currently leased.
func (m *MockDistributedLock) Held(name string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.live(name)
}
