package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	"github.com/tidwall/gjson"

	"github.com/custodia-labs/receiptflow/internal/core/ports/driven"
)

// Ensure OpenAIChat implements ChatModel
var _ driven.ChatModel = (*OpenAIChat)(nil)

// OpenAIChat implements ChatModel against any OpenAI-compatible
// /chat/completions endpoint (OpenAI, DeepSeek, Ollama).
type OpenAIChat struct {
	apiKey  string
	model   string
	baseURL string
	client  *retryablehttp.Client
}

// chatRequest is the request body for the chat completions API
type chatRequest struct {
	Model          string            `json:"model"`
	Messages       []chatMessage     `json:"messages"`
	Temperature    float64           `json:"temperature"`
	MaxTokens      int               `json:"max_tokens,omitempty"`
	ResponseFormat map[string]string `json:"response_format,omitempty"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// NewOpenAIChat creates a chat model client. Transient failures (429, 5xx,
// connection errors) are retried up to retryMax times.
func NewOpenAIChat(apiKey, model, baseURL string, timeout time.Duration, retryMax int, logger *slog.Logger) (*OpenAIChat, error) {
	if model == "" {
		return nil, fmt.Errorf("chat model name is required")
	}
	if baseURL == "" {
		return nil, fmt.Errorf("chat base URL is required")
	}
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}

	client := retryablehttp.NewClient()
	client.RetryMax = retryMax
	client.RetryWaitMin = 500 * time.Millisecond
	client.RetryWaitMax = 5 * time.Second
	client.HTTPClient.Timeout = timeout
	client.Logger = logger

	return &OpenAIChat{
		apiKey:  apiKey,
		model:   model,
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  client,
	}, nil
}

// Complete sends one chat completion and returns the first choice's content.
func (c *OpenAIChat) Complete(ctx context.Context, req driven.ChatRequest) (string, error) {
	body := chatRequest{
		Model:       c.model,
		Temperature: req.Temperature,
		MaxTokens:   req.MaxTokens,
	}
	for _, m := range req.Messages {
		body.Messages = append(body.Messages, chatMessage{Role: m.Role, Content: m.Content})
	}
	if req.JSONMode {
		body.ResponseFormat = map[string]string{"type": "json_object"}
	}

	raw, err := c.doRequest(ctx, http.MethodPost, "/chat/completions", body)
	if err != nil {
		return "", err
	}

	content := gjson.GetBytes(raw, "choices.0.message.content")
	if !content.Exists() {
		return "", fmt.Errorf("chat response has no choices")
	}
	return content.String(), nil
}

// Model returns the model name being used
func (c *OpenAIChat) Model() string {
	return c.model
}

// Ping lists models to verify the endpoint and key.
func (c *OpenAIChat) Ping(ctx context.Context) error {
	_, err := c.doRequest(ctx, http.MethodGet, "/models", nil)
	return err
}

// doRequest makes a request and returns the raw response body
func (c *OpenAIChat) doRequest(ctx context.Context, method, path string, reqBody any) ([]byte, error) {
	var payload io.Reader
	if reqBody != nil {
		encoded, err := json.Marshal(reqBody)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal request: %w", err)
		}
		payload = bytes.NewReader(encoded)
	}

	req, err := retryablehttp.NewRequestWithContext(ctx, method, c.baseURL+path, payload)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if msg := gjson.GetBytes(respBody, "error.message"); msg.Exists() {
		return nil, fmt.Errorf("chat API error: %s (type: %s)",
			msg.String(), gjson.GetBytes(respBody, "error.type").String())
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("chat API returned status %d", resp.StatusCode)
	}
	if !gjson.ValidBytes(respBody) {
		return nil, fmt.Errorf("chat API returned a non-JSON body")
	}
	return respBody, nil
}
