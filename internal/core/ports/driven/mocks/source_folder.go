package mocks

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/custodia-labs/receiptflow/internal/core/domain"
	"github.com/custodia-labs/receiptflow/internal/core/ports/driven"
)

var _ driven.SourceFolder = (*MockSourceFolder)(nil)

// MockSourceFolder is an in-memory folder listing.
type MockSourceFolder struct {
	mu      sync.Mutex
	items   []domain.DiscoveredItem
	content map[string][]byte

	ListFn  func(folderID string, since time.Time) ([]domain.DiscoveredItem, error)
	FetchFn func(fileID string) ([]byte, error)
}

// NewMockSourceFolder creates an empty folder.
func NewMockSourceFolder() *MockSourceFolder {
	return &MockSourceFolder{content: make(map[string][]byte)}
}

// Add places a file in the folder.
func (m *MockSourceFolder) Add(item domain.DiscoveredItem, content []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.items = append(m.items, item)
	m.content[item.ID] = content
}

// ListSince returns items in folderID created after since, oldest first.
func (m *MockSourceFolder) ListSince(ctx context.Context, folderID string, since time.Time) ([]domain.DiscoveredItem, error) {
	if m.ListFn != nil {
		return m.ListFn(folderID, since)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.DiscoveredItem
	for _, item := range m.items {
		if item.FolderID == folderID && item.CreatedAt.After(since) {
			out = append(out, item)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

// Fetch returns a file's bytes.
func (m *MockSourceFolder) Fetch(ctx context.Context, fileID string) ([]byte, error) {
	if m.FetchFn != nil {
		return m.FetchFn(fileID)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	content, ok := m.content[fileID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return content, nil
}
