package services

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"github.com/custodia-labs/receiptflow/internal/core/domain"
	"github.com/custodia-labs/receiptflow/internal/core/ports/driven"
	"github.com/custodia-labs/receiptflow/internal/core/ports/driving"
)

// receiptGroup is every ledger row that belongs to one physical receipt.
type receiptGroup struct {
	review bool
	total  *float64
	date   string
	qty    decimal.Decimal
}

func groupKey(row domain.LedgerRow) string {
	if row.ContentHash != "" {
		return row.ContentHash
	}
	total := ""
	if row.Total != nil {
		total = fmt.Sprintf("%.2f", *row.Total)
	}
	return row.Date + "|" + total
}

// Recompute builds a period aggregate from the period's full row set.
// Rows are grouped into receipts; a receipt needs review if any of its rows
// does, and its total is the last non-null total among its rows. The result
// depends only on rows and now.
func Recompute(period string, rows []domain.LedgerRow, now time.Time) *domain.PeriodAggregate {
	groups := make(map[string]*receiptGroup)
	qtyAll := decimal.Zero
	for _, row := range rows {
		key := groupKey(row)
		g, ok := groups[key]
		if !ok {
			g = &receiptGroup{}
			groups[key] = g
		}
		if row.NeedsReview() {
			g.review = true
		}
		if row.Total != nil {
			t := *row.Total
			g.total = &t
		}
		if row.Date != "" {
			g.date = row.Date
		}
		q := decimal.NewFromFloat(row.Qty)
		g.qty = g.qty.Add(q)
		qtyAll = qtyAll.Add(q)
	}

	keys := make([]string, 0, len(groups))
	for k := range groups {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var (
		countAll, countValid, reviewed int
		amountAll, amountValid         = decimal.Zero, decimal.Zero
		qtyValid                       = decimal.Zero
		days                           = make(map[string]struct{})
	)
	for _, k := range keys {
		g := groups[k]
		amount := decimal.Zero
		if g.total != nil {
			amount = decimal.NewFromFloat(*g.total)
		}
		countAll++
		amountAll = amountAll.Add(amount)
		if g.review {
			reviewed++
			continue
		}
		countValid++
		amountValid = amountValid.Add(amount)
		qtyValid = qtyValid.Add(g.qty)
		if g.date != "" {
			days[g.date] = struct{}{}
		}
	}

	agg := &domain.PeriodAggregate{
		Period:            period,
		ReceiptsValid:     countValid,
		ReceiptsAll:       countAll,
		QtyValid:          toFloat(qtyValid),
		QtyAll:            toFloat(qtyAll),
		AmountValid:       toFloat(round2(amountValid)),
		AmountAll:         toFloat(round2(amountAll)),
		ReviewedCount:     reviewed,
		DistinctDaysValid: len(days),
		LastUpdated:       now.UTC(),
	}
	if countValid > 0 {
		agg.AvgPerReceiptValid = toFloat(round2(amountValid.Div(decimal.NewFromInt(int64(countValid)))))
	}
	if len(days) > 0 {
		agg.AvgPerDayValid = toFloat(round2(amountValid.Div(decimal.NewFromInt(int64(len(days))))))
	}
	if countAll > 0 {
		pct := decimal.NewFromInt(int64(reviewed)).Mul(decimal.NewFromInt(100)).Div(decimal.NewFromInt(int64(countAll)))
		agg.ReviewedPct = toFloat(round2(pct))
	}
	return agg
}

func toFloat(d decimal.Decimal) float64 {
	f, _ := d.Float64()
	return f
}

// Ensure AggregatorService implements driving.AggregateService
var _ driving.AggregateService = (*AggregatorService)(nil)

// AggregatorServiceConfig holds the aggregator's stores.
type AggregatorServiceConfig struct {
	Ledger     driven.LedgerStore
	Aggregates driven.AggregateStore
	Logger     *slog.Logger
	Now        func() time.Time
}

// AggregatorService recomputes and stores period aggregates.
// Two concurrent refreshes of the same period may race; the later write
// wins and the next refresh converges.
type AggregatorService struct {
	ledger     driven.LedgerStore
	aggregates driven.AggregateStore
	logger     *slog.Logger
	now        func() time.Time
}

// NewAggregatorService creates an aggregator service.
func NewAggregatorService(cfg AggregatorServiceConfig) *AggregatorService {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	return &AggregatorService{
		ledger:     cfg.Ledger,
		aggregates: cfg.Aggregates,
		logger:     logger,
		now:        now,
	}
}

// Refresh recomputes a period from its ledger rows and upserts the result.
func (s *AggregatorService) Refresh(ctx context.Context, period string) (*domain.PeriodAggregate, error) {
	if !domain.ValidPeriod(period) {
		return nil, fmt.Errorf("%w: %q", domain.ErrInvalidPeriod, period)
	}

	rows, err := s.ledger.ListRows(ctx, period)
	if err != nil {
		return nil, fmt.Errorf("list ledger rows for %s: %w", period, err)
	}

	agg := Recompute(period, rows, s.now())

	if err := s.aggregates.Upsert(ctx, agg); err != nil {
		return nil, fmt.Errorf("upsert aggregate for %s: %w", period, err)
	}

	s.logger.Info("aggregate refreshed",
		"period", period,
		"rows", len(rows),
		"receipts_all", agg.ReceiptsAll,
		"receipts_valid", agg.ReceiptsValid,
	)
	return agg, nil
}

// Get returns the stored aggregate of a period.
func (s *AggregatorService) Get(ctx context.Context, period string) (*domain.PeriodAggregate, error) {
	if !domain.ValidPeriod(period) {
		return nil, fmt.Errorf("%w: %q", domain.ErrInvalidPeriod, period)
	}
	return s.aggregates.Get(ctx, period)
}

// List returns every stored aggregate.
func (s *AggregatorService) List(ctx context.Context) ([]*domain.PeriodAggregate, error) {
	return s.aggregates.List(ctx)
}
