package mocks

import (
	"context"
	"sync"

	"github.com/custodia-labs/receiptflow/internal/core/domain"
	"github.com/custodia-labs/receiptflow/internal/core/ports/driven"
)

var (
	_ driven.TextExtractor     = (*MockTextExtractor)(nil)
	_ driven.ExtractorRegistry = (*MockExtractorRegistry)(nil)
)

// MockTextExtractor returns fixed text for its MIME types.
type MockTextExtractor struct {
	ExtractorName string
	Types         []string
	Text          string
	Err           error
}

// Extract returns the configured text or error.
func (m *MockTextExtractor) Extract(ctx context.Context, content []byte, mimeType string) (*domain.ExtractedText, error) {
	if m.Err != nil {
		return nil, m.Err
	}
	return &domain.ExtractedText{Text: m.Text, Engine: m.ExtractorName, Confidence: 1, PageCount: 1}, nil
}

// SupportedTypes returns the configured MIME types.
func (m *MockTextExtractor) SupportedTypes() []string { return m.Types }

// Priority returns 50.
func (m *MockTextExtractor) Priority() int { return 50 }

// Name returns the configured name.
func (m *MockTextExtractor) Name() string { return m.ExtractorName }

// MockExtractorRegistry matches MIME types exactly.
type MockExtractorRegistry struct {
	mu     sync.RWMutex
	byType map[string]driven.TextExtractor
}

// NewMockExtractorRegistry creates a registry holding extractors.
func NewMockExtractorRegistry(extractors ...driven.TextExtractor) *MockExtractorRegistry {
	r := &MockExtractorRegistry{byType: make(map[string]driven.TextExtractor)}
	for _, e := range extractors {
		r.Register(e)
	}
	return r
}

// Get returns the extractor registered for mimeType.
func (r *MockExtractorRegistry) Get(mimeType string) driven.TextExtractor {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.byType[mimeType]
}

// Register adds an extractor under each of its types.
func (r *MockExtractorRegistry) Register(e driven.TextExtractor) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, t := range e.SupportedTypes() {
		r.byType[t] = e
	}
}

// List returns the registered MIME types.
func (r *MockExtractorRegistry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.byType))
	for t := range r.byType {
		out = append(out, t)
	}
	return out
}
