package runtime

import (
	"context"
	"errors"
	"testing"

	"github.com/custodia-labs/receiptflow/internal/core/domain"
	"github.com/custodia-labs/receiptflow/internal/core/ports/driven"
	"github.com/custodia-labs/receiptflow/internal/core/ports/driven/mocks"
)

func TestNewServices(t *testing.T) {
	config := domain.NewRuntimeConfig("redis", "redis")
	services := NewServices(config)

	if services.Config() != config {
		t.Error("expected config to match")
	}
	if services.ChatModel() != nil {
		t.Error("expected nil chat model initially")
	}
	if services.Model() != "none" {
		t.Errorf("expected none, got %s", services.Model())
	}
}

func TestNewServices_NilConfig(t *testing.T) {
	services := NewServices(nil)
	if services.Config() == nil {
		t.Fatal("expected default config")
	}
}

func TestServices_SetChatModel(t *testing.T) {
	config := domain.NewRuntimeConfig("memory", "memory")
	services := NewServices(config)

	model := mocks.NewMockChatModel()
	model.ModelName = "deepseek-chat"
	services.SetChatModel(model)

	if services.ChatModel() != model {
		t.Error("expected chat model to be set")
	}
	if !config.LLMAvailable() || config.LLMModel() != "deepseek-chat" {
		t.Errorf("expected config to track model, got %q", config.LLMModel())
	}

	services.SetChatModel(nil)
	if config.LLMAvailable() {
		t.Error("expected LLM unavailable after clearing")
	}
}

func TestServices_ValidateAndSetChatModel(t *testing.T) {
	services := NewServices(nil)

	good := mocks.NewMockChatModel()
	if err := services.ValidateAndSetChatModel(context.Background(), good); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	bad := mocks.NewMockChatModel()
	bad.ModelName = "broken"
	bad.PingFn = func() error { return errors.New("connection refused") }
	if err := services.ValidateAndSetChatModel(context.Background(), bad); err == nil {
		t.Fatal("expected ping error")
	}
	if services.ChatModel() != good {
		t.Error("expected previous model to stay in place")
	}

	if err := services.ValidateAndSetChatModel(context.Background(), nil); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if services.ChatModel() != nil {
		t.Error("expected model cleared")
	}
}

func TestServices_ForwardsToCurrentModel(t *testing.T) {
	services := NewServices(nil)
	ctx := context.Background()

	if _, err := services.Complete(ctx, driven.ChatRequest{}); !errors.Is(err, domain.ErrServiceUnavailable) {
		t.Errorf("expected ErrServiceUnavailable, got %v", err)
	}
	if err := services.Ping(ctx); !errors.Is(err, domain.ErrServiceUnavailable) {
		t.Errorf("expected ErrServiceUnavailable, got %v", err)
	}

	first := mocks.NewMockChatModel(mocks.MockChatResponse{Content: "one"})
	second := mocks.NewMockChatModel(mocks.MockChatResponse{Content: "two"})

	services.SetChatModel(first)
	got, err := services.Complete(ctx, driven.ChatRequest{})
	if err != nil || got != "one" {
		t.Fatalf("expected one, got %q (%v)", got, err)
	}

	services.SetChatModel(second)
	got, err = services.Complete(ctx, driven.ChatRequest{})
	if err != nil || got != "two" {
		t.Fatalf("expected two, got %q (%v)", got, err)
	}
}

func TestServices_Close(t *testing.T) {
	services := NewServices(nil)
	services.SetChatModel(mocks.NewMockChatModel())

	if err := services.Close(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if services.ChatModel() != nil {
		t.Error("expected model cleared after close")
	}
}
