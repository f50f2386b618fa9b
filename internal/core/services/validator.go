package services

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/custodia-labs/receiptflow/internal/core/domain"
	"github.com/custodia-labs/receiptflow/internal/core/ports/driven"
)

// ValidatorService routes parsed receipts and publishes the outcome.
type ValidatorService struct {
	router    *Router
	taskQueue driven.TaskQueue
	logger    *slog.Logger
	now       func() time.Time
}

// NewValidatorService creates a validator service.
func NewValidatorService(router *Router, taskQueue driven.TaskQueue, logger *slog.Logger) *ValidatorService {
	if logger == nil {
		logger = slog.Default()
	}
	return &ValidatorService{router: router, taskQueue: taskQueue, logger: logger, now: time.Now}
}

// Process routes one parsed event and queues it for its consumer.
func (s *ValidatorService) Process(ctx context.Context, evt domain.ParsedEvent) (*domain.RouteOutcome, error) {
	outcome := s.router.Route(ctx, &evt)
	routed := RoutedEvent(evt.FileID, outcome, s.now().UTC())

	task, err := domain.NewKeyedTask(outcome.Kind.TaskType(), evt.FileID+":"+evt.ContentHash, routed)
	if err != nil {
		return nil, err
	}
	if err := s.taskQueue.Enqueue(ctx, task); err != nil {
		if outcome.Claim == domain.ClaimClaimed && outcome.DedupeKey != "" {
			// The claim is not released, so the redelivery routes as a
			// duplicate. Deleting the key lets the receipt through again.
			s.logger.Error("claimed receipt not published",
				"file_id", evt.FileID,
				"dedupe_key", outcome.DedupeKey,
				"outcome", string(outcome.Kind),
				"error", err,
			)
		}
		return nil, fmt.Errorf("enqueue %s event: %w", outcome.Kind, err)
	}

	s.logger.Info("receipt routed",
		"file_id", evt.FileID,
		"outcome", string(outcome.Kind),
		"reason", outcome.Reason,
		"claim", outcome.Claim.String(),
		"dedupe_key", outcome.DedupeKey,
		"period", outcome.Period,
	)
	return outcome, nil
}
