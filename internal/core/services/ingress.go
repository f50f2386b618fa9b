package services

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/custodia-labs/receiptflow/internal/core/domain"
	"github.com/custodia-labs/receiptflow/internal/core/ports/driven"
	"github.com/custodia-labs/receiptflow/internal/core/ports/driving"
	"github.com/custodia-labs/receiptflow/internal/schema"
)

// Ensure IngressService implements driving.IngressService
var _ driving.IngressService = (*IngressService)(nil)

// IngressService accepts discovery events pushed over HTTP.
type IngressService struct {
	taskQueue driven.TaskQueue
	logger    *slog.Logger
}

// NewIngressService creates an ingress service.
func NewIngressService(taskQueue driven.TaskQueue, logger *slog.Logger) *IngressService {
	if logger == nil {
		logger = slog.Default()
	}
	return &IngressService{taskQueue: taskQueue, logger: logger}
}

// Submit validates a raw discovery event and queues it for extraction.
// Submitting the same fileId and createdTime twice yields the same task ID.
func (s *IngressService) Submit(ctx context.Context, body []byte) (*domain.IngressResult, error) {
	if err := schema.ValidateDiscoveryEvent(body); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrInvalidInput, err)
	}

	var evt domain.DiscoveryEvent
	if err := json.Unmarshal(body, &evt); err != nil {
		return nil, fmt.Errorf("%w: invalid JSON: %v", domain.ErrInvalidInput, err)
	}
	evt.FileID = strings.TrimSpace(evt.FileID)
	if evt.FileID == "" {
		return nil, fmt.Errorf("%w: fileId is empty", domain.ErrInvalidInput)
	}
	if !strings.Contains(evt.MimeType, "application/") && !strings.Contains(evt.MimeType, "image/") {
		return nil, fmt.Errorf("%w: mimeType looks invalid", domain.ErrInvalidInput)
	}

	evt.IdempotencyKey = domain.IdempotencyKey(evt.FileID, evt.CreatedTime)
	task, err := domain.NewKeyedTask(domain.TaskTypeReceiptNew, evt.IdempotencyKey, evt)
	if err != nil {
		return nil, err
	}
	if err := s.taskQueue.Enqueue(ctx, task); err != nil {
		return nil, fmt.Errorf("enqueue discovery event: %w", err)
	}

	s.logger.Info("ingress accepted file", "file_id", evt.FileID, "task_id", task.ID)
	return &domain.IngressResult{Status: "ok", TaskID: task.ID, IdempotencyKey: evt.IdempotencyKey}, nil
}
