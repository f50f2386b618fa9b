package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/custodia-labs/receiptflow/internal/core/domain"
	"github.com/custodia-labs/receiptflow/internal/core/ports/driven"
)

// Verify interface compliance
var (
	_ driven.LedgerStore    = (*LedgerStore)(nil)
	_ driven.AggregateStore = (*AggregateStore)(nil)
)

// LedgerStore implements the append-only period ledgers on ledger_rows.
type LedgerStore struct {
	db *DB
}

// NewLedgerStore creates a new LedgerStore
func NewLedgerStore(db *DB) *LedgerStore {
	return &LedgerStore{db: db}
}

// Append inserts rows in one transaction. The unique index on
// (period, file_id, content_hash, line_no) turns redelivered rows into no-ops.
func (s *LedgerStore) Append(ctx context.Context, period string, rows []domain.LedgerRow) (int, error) {
	if len(rows) == 0 {
		return 0, nil
	}

	added := 0
	err := s.db.Transaction(ctx, func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx, `
			INSERT INTO ledger_rows (
				period, file_id, content_hash, line_no, date, vendor, item, qty,
				unit_price, line_total, subtotal, tax, total, currency,
				payment_method, receipt_id, status, notes, source_link
			) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19)
			ON CONFLICT (period, file_id, content_hash, line_no) DO NOTHING
		`)
		if err != nil {
			return fmt.Errorf("prepare statement: %w", err)
		}
		defer stmt.Close()

		for _, r := range rows {
			result, err := stmt.ExecContext(ctx,
				period,
				r.FileID,
				r.ContentHash,
				r.LineNo,
				r.Date,
				r.Vendor,
				r.Item,
				r.Qty,
				NullFloat(r.UnitPrice),
				NullFloat(r.LineTotal),
				NullFloat(r.Subtotal),
				NullFloat(r.Tax),
				NullFloat(r.Total),
				r.Currency,
				r.PaymentMethod,
				r.ReceiptID,
				string(r.Status),
				r.Notes,
				r.SourceLink,
			)
			if err != nil {
				return fmt.Errorf("insert ledger row %s/%d: %w", r.FileID, r.LineNo, err)
			}
			n, err := result.RowsAffected()
			if err != nil {
				return fmt.Errorf("get rows affected: %w", err)
			}
			added += int(n)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return added, nil
}

// ListRows returns a period's rows in append order.
func (s *LedgerStore) ListRows(ctx context.Context, period string) ([]domain.LedgerRow, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT file_id, content_hash, line_no, date, vendor, item, qty,
		       unit_price, line_total, subtotal, tax, total, currency,
		       payment_method, receipt_id, status, notes, source_link
		FROM ledger_rows
		WHERE period = $1
		ORDER BY seq ASC
	`, period)
	if err != nil {
		return nil, fmt.Errorf("query ledger %s: %w", period, err)
	}
	defer rows.Close()

	var out []domain.LedgerRow
	for rows.Next() {
		var r domain.LedgerRow
		var status string
		var unitPrice, lineTotal, subtotal, tax, total sql.NullFloat64
		if err := rows.Scan(
			&r.FileID,
			&r.ContentHash,
			&r.LineNo,
			&r.Date,
			&r.Vendor,
			&r.Item,
			&r.Qty,
			&unitPrice,
			&lineTotal,
			&subtotal,
			&tax,
			&total,
			&r.Currency,
			&r.PaymentMethod,
			&r.ReceiptID,
			&status,
			&r.Notes,
			&r.SourceLink,
		); err != nil {
			return nil, fmt.Errorf("scan ledger row: %w", err)
		}
		r.Status = domain.RowStatus(status)
		r.UnitPrice = FloatPtr(unitPrice)
		r.LineTotal = FloatPtr(lineTotal)
		r.Subtotal = FloatPtr(subtotal)
		r.Tax = FloatPtr(tax)
		r.Total = FloatPtr(total)
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate ledger rows: %w", err)
	}
	return out, nil
}

// AggregateStore keeps one aggregate document per period.
type AggregateStore struct {
	db *DB
}

// NewAggregateStore creates a new AggregateStore
func NewAggregateStore(db *DB) *AggregateStore {
	return &AggregateStore{db: db}
}

// Upsert replaces the period's aggregate.
func (s *AggregateStore) Upsert(ctx context.Context, agg *domain.PeriodAggregate) error {
	doc, err := json.Marshal(agg)
	if err != nil {
		return fmt.Errorf("encode aggregate %s: %w", agg.Period, err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO aggregates (period, document, updated_at)
		VALUES ($1, $2, NOW())
		ON CONFLICT (period) DO UPDATE SET document = EXCLUDED.document, updated_at = NOW()
	`, agg.Period, doc)
	if err != nil {
		return fmt.Errorf("upsert aggregate %s: %w", agg.Period, err)
	}
	return nil
}

// Get returns the period's aggregate.
func (s *AggregateStore) Get(ctx context.Context, period string) (*domain.PeriodAggregate, error) {
	var doc []byte
	err := s.db.QueryRowContext(ctx,
		`SELECT document FROM aggregates WHERE period = $1`, period).Scan(&doc)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("aggregate %s: %w", period, domain.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("query aggregate %s: %w", period, err)
	}
	var agg domain.PeriodAggregate
	if err := json.Unmarshal(doc, &agg); err != nil {
		return nil, fmt.Errorf("decode aggregate %s: %w", period, err)
	}
	return &agg, nil
}

// List returns every aggregate ordered by period.
func (s *AggregateStore) List(ctx context.Context) ([]*domain.PeriodAggregate, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT document FROM aggregates ORDER BY period ASC`)
	if err != nil {
		return nil, fmt.Errorf("query aggregates: %w", err)
	}
	defer rows.Close()

	var out []*domain.PeriodAggregate
	for rows.Next() {
		var doc []byte
		if err := rows.Scan(&doc); err != nil {
			return nil, fmt.Errorf("scan aggregate: %w", err)
		}
		var agg domain.PeriodAggregate
		if err := json.Unmarshal(doc, &agg); err != nil {
			return nil, fmt.Errorf("decode aggregate: %w", err)
		}
		out = append(out, &agg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate aggregates: %w", err)
	}
	return out, nil
}
