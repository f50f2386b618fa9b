package domain

import "sync"

// RuntimeConfig records which backends were chosen at startup and which
// optional services are currently usable.
// Thread-safe for concurrent access.
type RuntimeConfig struct {
	mu sync.RWMutex

	// Static (set at startup, read-only)
	StateBackend string // "redis", "postgres", "sqlite", "file" or "memory"
	QueueBackend string // "redis", "postgres" or "memory"

	// Dynamic capability flags (updated when the chat model changes)
	llmAvailable bool
	llmModel     string
}

// NewRuntimeConfig creates a new RuntimeConfig with initial values
func NewRuntimeConfig(stateBackend, queueBackend string) *RuntimeConfig {
	return &RuntimeConfig{
		StateBackend: stateBackend,
		QueueBackend: queueBackend,
	}
}

// LLMAvailable returns whether a chat model is configured
func (c *RuntimeConfig) LLMAvailable() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.llmAvailable
}

// LLMModel returns the active model name, empty when none is configured
func (c *RuntimeConfig) LLMModel() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.llmModel
}

// SetLLM updates the chat model flags. An empty model marks it unavailable.
func (c *RuntimeConfig) SetLLM(model string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.llmModel = model
	c.llmAvailable = model != ""
}
