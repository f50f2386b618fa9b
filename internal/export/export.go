// Package export writes ledgers and aggregates as CSV for spreadsheet
// import.
package export

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"

	"github.com/custodia-labs/receiptflow/internal/core/domain"
	"github.com/custodia-labs/receiptflow/internal/core/ports/driven"
)

// WriteLedger writes a header line and one record per row, in
// domain.LedgerHeader column order.
func WriteLedger(w io.Writer, rows []domain.LedgerRow) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(domain.LedgerHeader); err != nil {
		return fmt.Errorf("write ledger header: %w", err)
	}
	for i, row := range rows {
		if err := cw.Write(row.Values()); err != nil {
			return fmt.Errorf("write ledger row %d: %w", i, err)
		}
	}
	cw.Flush()
	return cw.Error()
}

// WriteAggregates writes a header line and one record per period.
func WriteAggregates(w io.Writer, aggs []*domain.PeriodAggregate) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(domain.AggregateHeader); err != nil {
		return fmt.Errorf("write aggregate header: %w", err)
	}
	for _, agg := range aggs {
		if agg == nil {
			continue
		}
		if err := cw.Write(agg.Values()); err != nil {
			return fmt.Errorf("write aggregate %s: %w", agg.Period, err)
		}
	}
	cw.Flush()
	return cw.Error()
}

// Exporter reads from the stores and writes CSV.
type Exporter struct {
	ledger     driven.LedgerStore
	aggregates driven.AggregateStore
}

// NewExporter creates an exporter. aggregates may be nil when only ledgers
// are exported.
func NewExporter(ledger driven.LedgerStore, aggregates driven.AggregateStore) *Exporter {
	return &Exporter{ledger: ledger, aggregates: aggregates}
}

// Ledger writes the rows of one period.
func (e *Exporter) Ledger(ctx context.Context, period string, w io.Writer) (int, error) {
	if !domain.ValidPeriod(period) {
		return 0, fmt.Errorf("%w: %q", domain.ErrInvalidPeriod, period)
	}
	rows, err := e.ledger.ListRows(ctx, period)
	if err != nil {
		return 0, fmt.Errorf("list rows for %s: %w", period, err)
	}
	if err := WriteLedger(w, rows); err != nil {
		return 0, err
	}
	return len(rows), nil
}

// Aggregates writes every stored period aggregate.
func (e *Exporter) Aggregates(ctx context.Context, w io.Writer) (int, error) {
	if e.aggregates == nil {
		return 0, fmt.Errorf("%w: no aggregate store configured", domain.ErrServiceUnavailable)
	}
	aggs, err := e.aggregates.List(ctx)
	if err != nil {
		return 0, fmt.Errorf("list aggregates: %w", err)
	}
	if err := WriteAggregates(w, aggs); err != nil {
		return 0, err
	}
	return len(aggs), nil
}
