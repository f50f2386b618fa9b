package driving

import (
	"context"

	"github.com/custodia-labs/receiptflow/internal/core/domain"
)

// IngressService accepts pushed discovery events
type IngressService interface {
	// Submit validates a raw receipts.new body and queues it.
	// Resubmitting the same fileId and createdTime yields the same task.
	Submit(ctx context.Context, body []byte) (*domain.IngressResult, error)
}

// SourceService exposes the watched sources to operators
type SourceService interface {
	// TriggerPoll enqueues an immediate poll of a configured source
	TriggerPoll(ctx context.Context, sourceID string) (*domain.Task, error)

	// Watermark returns the persisted discovery state of a source
	Watermark(ctx context.Context, sourceID string) (*domain.WatermarkState, error)

	// Sources lists the configured poll schedules
	Sources(ctx context.Context) []domain.ScheduledPoll
}

// LedgerService reads period ledgers
type LedgerService interface {
	// Rows returns a period's ledger in append order
	Rows(ctx context.Context, period string) ([]domain.LedgerRow, error)
}

// AggregateService reads and recomputes period aggregates
type AggregateService interface {
	Get(ctx context.Context, period string) (*domain.PeriodAggregate, error)
	List(ctx context.Context) ([]*domain.PeriodAggregate, error)
	Refresh(ctx context.Context, period string) (*domain.PeriodAggregate, error)
}
