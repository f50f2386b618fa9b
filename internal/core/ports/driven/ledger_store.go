package driven

import (
	"context"

	"github.com/custodia-labs/receiptflow/internal/core/domain"
)

// LedgerStore holds the append-only per-period ledgers.
type LedgerStore interface {
	// Append adds rows to a period. Rows already present for the same
	// (FileID, ContentHash, LineNo) are skipped. Returns how many were added.
	Append(ctx context.Context, period string, rows []domain.LedgerRow) (int, error)

	// ListRows returns a period's rows in append order.
	ListRows(ctx context.Context, period string) ([]domain.LedgerRow, error)
}

// AggregateStore holds one aggregate row per period.
type AggregateStore interface {
	// Upsert replaces the row keyed by period, or appends it.
	Upsert(ctx context.Context, agg *domain.PeriodAggregate) error

	// Get returns a period's aggregate or domain.ErrNotFound.
	Get(ctx context.Context, period string) (*domain.PeriodAggregate, error)

	// List returns every stored aggregate ordered by period.
	List(ctx context.Context) ([]*domain.PeriodAggregate, error)
}
