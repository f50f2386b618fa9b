package services

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/custodia-labs/receiptflow/internal/core/domain"
	"github.com/custodia-labs/receiptflow/internal/core/ports/driven"
	"github.com/custodia-labs/receiptflow/internal/core/ports/driving"
)

// Ensure LedgerService implements driving.LedgerService
var _ driving.LedgerService = (*LedgerService)(nil)

// LedgerServiceConfig holds the ledger writer's collaborators.
type LedgerServiceConfig struct {
	Ledger     driven.LedgerStore
	Aggregator *AggregatorService
	Logger     *slog.Logger
}

// LedgerService appends routed receipts to their period ledger and keeps
// the period aggregate in step.
type LedgerService struct {
	ledger     driven.LedgerStore
	aggregator *AggregatorService
	logger     *slog.Logger
}

// NewLedgerService creates a ledger service.
func NewLedgerService(cfg LedgerServiceConfig) *LedgerService {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &LedgerService{
		ledger:     cfg.Ledger,
		aggregator: cfg.Aggregator,
		logger:     logger,
	}
}

// Record appends the rows of a valid or review event, then recomputes the
// period. Appends skip rows already written, so a redelivered event only
// triggers another recompute.
func (s *LedgerService) Record(ctx context.Context, evt domain.RoutedEvent) (int, error) {
	if !domain.ValidPeriod(evt.Period) {
		return 0, fmt.Errorf("%w: %q", domain.ErrInvalidPeriod, evt.Period)
	}
	if len(evt.Rows) == 0 {
		s.logger.Warn("no rows to append", "file_id", evt.FileID, "period", evt.Period, "reason", evt.Reason)
		return 0, nil
	}

	added, err := s.ledger.Append(ctx, evt.Period, evt.Rows)
	if err != nil {
		return 0, fmt.Errorf("append rows for %s: %w", evt.FileID, err)
	}
	s.logger.Info("ledger rows appended",
		"file_id", evt.FileID,
		"period", evt.Period,
		"added", added,
		"skipped", len(evt.Rows)-added,
	)

	if s.aggregator != nil {
		if _, err := s.aggregator.Refresh(ctx, evt.Period); err != nil {
			return added, err
		}
	}
	return added, nil
}

// RecordDuplicate notes a duplicate receipt. Duplicates never reach the
// ledger.
func (s *LedgerService) RecordDuplicate(_ context.Context, evt domain.RoutedEvent) {
	s.logger.Info("duplicate receipt dropped",
		"file_id", evt.FileID,
		"dedupe_key", evt.DedupeKey,
		"period", evt.Period,
	)
}

// Rows returns the ledger of a period.
func (s *LedgerService) Rows(ctx context.Context, period string) ([]domain.LedgerRow, error) {
	if !domain.ValidPeriod(period) {
		return nil, fmt.Errorf("%w: %q", domain.ErrInvalidPeriod, period)
	}
	return s.ledger.ListRows(ctx, period)
}
