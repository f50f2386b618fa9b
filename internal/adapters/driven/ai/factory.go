package ai

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/custodia-labs/receiptflow/internal/core/domain"
	"github.com/custodia-labs/receiptflow/internal/core/ports/driven"
)

// Provider names accepted in configuration
const (
	ProviderDeepSeek = "deepseek"
	ProviderOpenAI   = "openai"
	ProviderOllama   = "ollama"
)

// Default endpoints and models per provider
var providerDefaults = map[string]struct {
	baseURL string
	model   string
	keyless bool
}{
	ProviderDeepSeek: {baseURL: "https://api.deepseek.com/v1", model: "deepseek-chat"},
	ProviderOpenAI:   {baseURL: "https://api.openai.com/v1", model: "gpt-4o-mini"},
	ProviderOllama:   {baseURL: "http://localhost:11434/v1", model: "llama3.1", keyless: true},
}

// ChatConfig selects and configures a chat model.
type ChatConfig struct {
	Provider string
	APIKey   string
	Model    string
	BaseURL  string
	Timeout  time.Duration
	RetryMax int
	Logger   *slog.Logger
}

// NewChatModel creates a chat model from configuration. Model and base URL
// fall back to the provider's defaults.
func NewChatModel(cfg ChatConfig) (driven.ChatModel, error) {
	provider := cfg.Provider
	if provider == "" {
		provider = ProviderDeepSeek
	}
	defaults, ok := providerDefaults[provider]
	if !ok {
		return nil, fmt.Errorf("%w: unknown chat provider %q", domain.ErrInvalidInput, provider)
	}
	if cfg.APIKey == "" && !defaults.keyless {
		return nil, fmt.Errorf("%w: %s API key is required", domain.ErrInvalidInput, provider)
	}

	model := cfg.Model
	if model == "" {
		model = defaults.model
	}
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = defaults.baseURL
	}
	return NewOpenAIChat(cfg.APIKey, model, baseURL, cfg.Timeout, cfg.RetryMax, cfg.Logger)
}
