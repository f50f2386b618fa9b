package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/tidwall/gjson"

	"github.com/custodia-labs/receiptflow/internal/core/domain"
	"github.com/custodia-labs/receiptflow/internal/core/ports/driven"
)

const (
	// DefaultParserTemperature keeps extraction close to deterministic
	DefaultParserTemperature = 0.1
	// DefaultParserMaxTokens bounds the model's answer
	DefaultParserMaxTokens = 1000
)

const extractionSystemPrompt = "You extract receipt data. Answer with one JSON object that follows the schema. " +
	"No prose, no markdown, no keys outside the schema."

const extractionRules = `Read the OCR text of a purchase receipt and fill in the schema.

- Answer with strict JSON only.
- Keys: vendor, purchase_date (YYYY-MM-DD), currency (ISO 4217), subtotal, tax, total,
  payment_method (string or null), items[{description, quantity, unit_price, line_total}],
  receipt_id (string or null), content_hash.
- Use MYR unless the receipt shows another currency.
- When subtotal or tax is not printed, use subtotal = total and tax = 0.
- Numbers must be plain JSON numbers without currency symbols.
- Quantity defaults to 1.
- Use null for anything you are unsure about.`

const extractionSchemaExample = `{"vendor":"string","purchase_date":"YYYY-MM-DD","currency":"MYR","subtotal":0.0,"tax":0.0,"total":0.0,` +
	`"payment_method":"string|null","items":[{"description":"string","quantity":1,"unit_price":0.0,"line_total":0.0}],` +
	`"receipt_id":"string|null","content_hash":"sha256:..."}`

const extractionRetryPrompt = "Your previous output was invalid. Reply with JSON ONLY."

// ParserServiceConfig holds the parser stage's collaborators.
type ParserServiceConfig struct {
	Model       driven.ChatModel
	TaskQueue   driven.TaskQueue
	Temperature float64
	MaxTokens   int
	Logger      *slog.Logger
}

// ParserService asks a language model to structure extracted text.
type ParserService struct {
	model       driven.ChatModel
	taskQueue   driven.TaskQueue
	temperature float64
	maxTokens   int
	logger      *slog.Logger
}

// NewParserService creates a parser service.
func NewParserService(cfg ParserServiceConfig) *ParserService {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	temperature := cfg.Temperature
	if temperature <= 0 {
		temperature = DefaultParserTemperature
	}
	maxTokens := cfg.MaxTokens
	if maxTokens <= 0 {
		maxTokens = DefaultParserMaxTokens
	}
	return &ParserService{
		model:       cfg.Model,
		taskQueue:   cfg.TaskQueue,
		temperature: temperature,
		maxTokens:   maxTokens,
		logger:      logger,
	}
}

// Process parses one text event and queues the result for validation.
// Model failures never fail the task; they publish a null extraction with
// a reason, which the validator routes to review.
func (s *ParserService) Process(ctx context.Context, evt domain.TextEvent) (*domain.ParsedEvent, error) {
	out := s.parse(ctx, evt)

	task, err := domain.NewKeyedTask(domain.TaskTypeReceiptParsed, evt.FileID+":"+evt.ContentHash, out)
	if err != nil {
		return nil, err
	}
	if err := s.taskQueue.Enqueue(ctx, task); err != nil {
		return nil, fmt.Errorf("enqueue parsed event: %w", err)
	}
	return out, nil
}

func (s *ParserService) parse(ctx context.Context, evt domain.TextEvent) *domain.ParsedEvent {
	out := &domain.ParsedEvent{
		FileID:      evt.FileID,
		ContentHash: evt.ContentHash,
		LLMMeta: domain.LLMMeta{
			Model:       s.model.Model(),
			Temperature: s.temperature,
			MaxTokens:   s.maxTokens,
		},
	}

	if strings.TrimSpace(evt.Text) == "" {
		s.logger.Warn("empty text, skipping model call", "file_id", evt.FileID)
		out.LLMMeta.Reason = domain.ParseReasonEmptyText
		return out
	}

	messages := []driven.ChatMessage{
		{Role: "system", Content: extractionSystemPrompt},
		{Role: "user", Content: extractionRules + "\n\nSchema example:\n" + extractionSchemaExample},
		{Role: "user", Content: "OCR text:\n" + evt.Text + "\n\ncontent_hash: " + evt.ContentHash},
	}

	content, err := s.model.Complete(ctx, driven.ChatRequest{
		Messages:    messages,
		Temperature: s.temperature,
		MaxTokens:   s.maxTokens,
		JSONMode:    true,
	})
	if err != nil {
		s.logger.Error("model call failed", "file_id", evt.FileID, "error", err)
		out.LLMMeta.Reason = domain.ParseReasonAPIError
		return out
	}

	obj, ok := jsonObject(content)
	if !ok {
		s.logger.Warn("model returned non-JSON, retrying", "file_id", evt.FileID)
		retry := append(messages, driven.ChatMessage{Role: "system", Content: extractionRetryPrompt})
		content, err = s.model.Complete(ctx, driven.ChatRequest{
			Messages:    retry,
			Temperature: 0,
			MaxTokens:   s.maxTokens,
			JSONMode:    true,
		})
		if err != nil {
			s.logger.Error("model retry failed", "file_id", evt.FileID, "error", err)
			out.LLMMeta.Reason = domain.ParseReasonAPIError
			return out
		}
		obj, ok = jsonObject(content)
	}
	if !ok {
		s.logger.Error("model returned non-JSON twice", "file_id", evt.FileID)
		out.LLMMeta.Reason = domain.ParseReasonNonJSON
		return out
	}

	withHash, err := attachContentHash(obj, evt.ContentHash)
	if err != nil {
		s.logger.Warn("could not attach content hash", "file_id", evt.FileID, "error", err)
		withHash = obj
	}
	out.Data = domain.ParseRawExtraction(withHash)
	s.logger.Info("model parse ok", "file_id", evt.FileID)
	return out
}

// jsonObject returns the non-empty JSON object in content, tolerating a
// markdown fence.
func jsonObject(content string) ([]byte, bool) {
	s := strings.TrimSpace(content)
	if strings.HasPrefix(s, "```") {
		s = strings.TrimPrefix(s, "```json")
		s = strings.TrimPrefix(s, "```")
		s = strings.TrimSuffix(strings.TrimSpace(s), "```")
		s = strings.TrimSpace(s)
	}
	if s == "" || !gjson.Valid(s) || !gjson.Parse(s).IsObject() {
		return nil, false
	}
	if domain.ParseRawExtraction([]byte(s)).Kind() != domain.ExtractionPresent {
		return nil, false
	}
	return []byte(s), true
}

// attachContentHash sets content_hash to the hash of the file bytes. A
// value the model echoed is replaced: it may be the prompt's placeholder.
func attachContentHash(obj []byte, hash string) ([]byte, error) {
	if hash == "" || domain.ParseRawExtraction(obj).Field("content_hash").Str == hash {
		return obj, nil
	}
	dec := json.NewDecoder(bytes.NewReader(obj))
	dec.UseNumber()
	var m map[string]any
	if err := dec.Decode(&m); err != nil {
		return nil, err
	}
	m["content_hash"] = hash
	return json.Marshal(m)
}
