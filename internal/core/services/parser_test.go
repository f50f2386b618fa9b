package services

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/receiptflow/internal/core/domain"
	"github.com/custodia-labs/receiptflow/internal/core/ports/driven/mocks"
)

func textEvent(text string) domain.TextEvent {
	return domain.TextEvent{FileID: "f1", Name: "r.jpg", ContentHash: "sha256:abc", Text: text}
}

func TestParserService_Process(t *testing.T) {
	model := mocks.NewMockChatModel(mocks.MockChatResponse{
		Content: "```json\n{\"vendor\":\"Cafe X\",\"total\":15}\n```",
	})
	queue := mocks.NewMockTaskQueue()
	svc := NewParserService(ParserServiceConfig{Model: model, TaskQueue: queue})

	out, err := svc.Process(context.Background(), textEvent("CAFE X 15.00"))
	require.NoError(t, err)

	assert.Equal(t, domain.ExtractionPresent, out.Data.Kind())
	assert.Equal(t, "Cafe X", out.Data.Field("vendor").String())
	assert.Equal(t, "sha256:abc", out.Data.ContentHash(), "content hash is attached when the model omits it")
	assert.Empty(t, out.LLMMeta.Reason)
	assert.Equal(t, "mock-chat", out.LLMMeta.Model)

	reqs := model.Requests()
	require.Len(t, reqs, 1)
	assert.Equal(t, DefaultParserTemperature, reqs[0].Temperature)
	assert.Equal(t, DefaultParserMaxTokens, reqs[0].MaxTokens)
	assert.True(t, reqs[0].JSONMode)

	assert.Len(t, queue.Tasks(domain.TaskTypeReceiptParsed), 1)
}

func TestParserService_FileHashReplacesModelHash(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"placeholder echoed", `{"vendor":"v","content_hash":"sha256:..."}`},
		{"other hash", `{"vendor":"v","content_hash":"sha256:model"}`},
		{"no hash", `{"vendor":"v"}`},
		{"same hash", `{"vendor":"v","content_hash":"sha256:abc"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			model := mocks.NewMockChatModel(mocks.MockChatResponse{Content: tt.content})
			svc := NewParserService(ParserServiceConfig{Model: model, TaskQueue: mocks.NewMockTaskQueue()})

			out, err := svc.Process(context.Background(), textEvent("text"))
			require.NoError(t, err)
			assert.Equal(t, "sha256:abc", out.Data.ContentHash())
			assert.Equal(t, "v", out.Data.Field("vendor").Str)
		})
	}
}

func TestParserService_RetriesOnceOnInvalidOutput(t *testing.T) {
	model := mocks.NewMockChatModel(
		mocks.MockChatResponse{Content: "Sure! Here is the receipt."},
		mocks.MockChatResponse{Content: `{"vendor":"Cafe X"}`},
	)
	svc := NewParserService(ParserServiceConfig{Model: model, TaskQueue: mocks.NewMockTaskQueue()})

	out, err := svc.Process(context.Background(), textEvent("text"))
	require.NoError(t, err)

	assert.Equal(t, domain.ExtractionPresent, out.Data.Kind())
	reqs := model.Requests()
	require.Len(t, reqs, 2)
	assert.Zero(t, reqs[1].Temperature)
	last := reqs[1].Messages[len(reqs[1].Messages)-1]
	assert.Equal(t, "system", last.Role)
}

func TestParserService_NullExtractions(t *testing.T) {
	tests := []struct {
		name       string
		text       string
		responses  []mocks.MockChatResponse
		wantReason string
		wantCalls  int
	}{
		{
			name:       "empty text",
			text:       "   ",
			wantReason: domain.ParseReasonEmptyText,
		},
		{
			name:       "api error",
			text:       "text",
			responses:  []mocks.MockChatResponse{{Err: errors.New("502")}},
			wantReason: domain.ParseReasonAPIError,
			wantCalls:  1,
		},
		{
			name:       "non-json twice",
			text:       "text",
			responses:  []mocks.MockChatResponse{{Content: "nope"}, {Content: "{}"}},
			wantReason: domain.ParseReasonNonJSON,
			wantCalls:  2,
		},
		{
			name:       "retry api error",
			text:       "text",
			responses:  []mocks.MockChatResponse{{Content: "[]"}, {Err: errors.New("timeout")}},
			wantReason: domain.ParseReasonAPIError,
			wantCalls:  2,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			model := mocks.NewMockChatModel(tt.responses...)
			queue := mocks.NewMockTaskQueue()
			svc := NewParserService(ParserServiceConfig{Model: model, TaskQueue: queue})

			out, err := svc.Process(context.Background(), textEvent(tt.text))
			require.NoError(t, err)

			assert.Equal(t, domain.ExtractionAbsent, out.Data.Kind())
			assert.Equal(t, tt.wantReason, out.LLMMeta.Reason)
			assert.Len(t, model.Requests(), tt.wantCalls)
			assert.Len(t, queue.Tasks(domain.TaskTypeReceiptParsed), 1, "null extractions are still published")
		})
	}
}

func TestJSONObject(t *testing.T) {
	tests := []struct {
		in string
		ok bool
	}{
		{`{"a":1}`, true},
		{"```json\n{\"a\":1}\n```", true},
		{"```\n{\"a\":1}```", true},
		{`{}`, false},
		{`[]`, false},
		{`null`, false},
		{`{"a":`, false},
		{``, false},
	}
	for _, tt := range tests {
		_, ok := jsonObject(tt.in)
		assert.Equal(t, tt.ok, ok, tt.in)
	}
}
