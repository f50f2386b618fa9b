package runtime

import (
	"context"
	"fmt"
	"sync"

	"github.com/custodia-labs/receiptflow/internal/core/domain"
	"github.com/custodia-labs/receiptflow/internal/core/ports/driven"
)

// Verify interface compliance
var _ driven.ChatModel = (*Services)(nil)

// Services holds the chat model the parser stage talks to. The model can be
// replaced while the worker runs (for example after a config reload) and
// Services forwards calls to whichever model is current.
// Thread-safe for concurrent access.
type Services struct {
	mu sync.RWMutex

	// Config tracks capability flags
	config *domain.RuntimeConfig

	// Dynamic services (can be nil, updated at runtime)
	chatModel driven.ChatModel
}

// NewServices creates a new Services registry
func NewServices(config *domain.RuntimeConfig) *Services {
	if config == nil {
		config = domain.NewRuntimeConfig("", "")
	}
	return &Services{
		config: config,
	}
}

// Config returns the runtime configuration
func (s *Services) Config() *domain.RuntimeConfig {
	return s.config
}

// ChatModel returns the current chat model (may be nil)
func (s *Services) ChatModel() driven.ChatModel {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.chatModel
}

// SetChatModel replaces the chat model and updates config flags.
func (s *Services) SetChatModel(m driven.ChatModel) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.chatModel = m
	if m == nil {
		s.config.SetLLM("")
		return
	}
	s.config.SetLLM(m.Model())
}

// ValidateAndSetChatModel pings the model before making it current. On
// failure the previous model stays in place.
func (s *Services) ValidateAndSetChatModel(ctx context.Context, m driven.ChatModel) error {
	if m == nil {
		s.SetChatModel(nil)
		return nil
	}

	if err := m.Ping(ctx); err != nil {
		return fmt.Errorf("chat model %s: %w", m.Model(), err)
	}

	s.SetChatModel(m)
	return nil
}

// Complete forwards to the current chat model.
func (s *Services) Complete(ctx context.Context, req driven.ChatRequest) (string, error) {
	m := s.ChatModel()
	if m == nil {
		return "", fmt.Errorf("%w: no chat model configured", domain.ErrServiceUnavailable)
	}
	return m.Complete(ctx, req)
}

// Model returns the current model name, or "none".
func (s *Services) Model() string {
	if m := s.ChatModel(); m != nil {
		return m.Model()
	}
	return "none"
}

// Ping checks the current chat model.
func (s *Services) Ping(ctx context.Context) error {
	m := s.ChatModel()
	if m == nil {
		return fmt.Errorf("%w: no chat model configured", domain.ErrServiceUnavailable)
	}
	return m.Ping(ctx)
}

// Close drops the current model.
func (s *Services) Close() error {
	s.SetChatModel(nil)
	return nil
}
