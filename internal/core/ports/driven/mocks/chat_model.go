package mocks

import (
	"context"
	"errors"
	"sync"

	"github.com/custodia-labs/receiptflow/internal/core/ports/driven"
)

var _ driven.ChatModel = (*MockChatModel)(nil)

// MockChatModel replays scripted responses in order.
type MockChatModel struct {
	mu        sync.Mutex
	responses []MockChatResponse
	requests  []driven.ChatRequest

	ModelName string
	PingFn    func() error
}

// MockChatResponse is one scripted completion.
type MockChatResponse struct {
	Content string
	Err     error
}

// NewMockChatModel creates a model that answers with responses in order.
func NewMockChatModel(responses ...MockChatResponse) *MockChatModel {
	return &MockChatModel{responses: responses, ModelName: "mock-chat"}
}

// Complete returns the next scripted response.
func (m *MockChatModel) Complete(ctx context.Context, req driven.ChatRequest) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.requests = append(m.requests, req)
	if len(m.responses) == 0 {
		return "", errors.New("mock chat model: no scripted response")
	}
	next := m.responses[0]
	m.responses = m.responses[1:]
	return next.Content, next.Err
}

// Model returns the configured model name.
func (m *MockChatModel) Model() string {
	return m.ModelName
}

// Ping checks backend health.
func (m *MockChatModel) Ping(ctx context.Context) error {
	if m.PingFn != nil {
		return m.PingFn()
	}
	return nil
}

// Requests returns every request received.
func (m *MockChatModel) Requests() []driven.ChatRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]driven.ChatRequest, len(m.requests))
	copy(out, m.requests)
	return out
}
