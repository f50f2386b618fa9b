package driven

import "context"

// ChatMessage is one message of a chat conversation.
type ChatMessage struct {
	Role    string
	Content string
}

// ChatRequest is a chat completion request.
type ChatRequest struct {
	Messages    []ChatMessage
	Temperature float64
	MaxTokens   int
	// JSONMode asks the model for a JSON object response
	JSONMode bool
}

// ChatModel is a chat-completion language model.
type ChatModel interface {
	// Complete returns the assistant message content.
	Complete(ctx context.Context, req ChatRequest) (string, error)

	// Model returns the model name being used
	Model() string

	// Ping verifies the service is configured and reachable
	Ping(ctx context.Context) error
}
