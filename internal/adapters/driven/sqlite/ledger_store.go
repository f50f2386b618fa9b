package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/custodia-labs/receiptflow/internal/core/domain"
	"github.com/custodia-labs/receiptflow/internal/core/ports/driven"
)

var (
	_ driven.LedgerStore    = (*LedgerStore)(nil)
	_ driven.AggregateStore = (*AggregateStore)(nil)
)

// LedgerStore keeps period ledgers in ledger_rows. The unique index makes
// redelivered rows no-ops.
type LedgerStore struct {
	db *DB
}

func NewLedgerStore(db *DB) *LedgerStore {
	return &LedgerStore{db: db}
}

func (s *LedgerStore) Append(ctx context.Context, period string, rows []domain.LedgerRow) (int, error) {
	if len(rows) == 0 {
		return 0, nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT OR IGNORE INTO ledger_rows (
			period, file_id, content_hash, line_no, date, vendor, item, qty,
			unit_price, line_total, subtotal, tax, total, currency,
			payment_method, receipt_id, status, notes, source_link
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return 0, fmt.Errorf("prepare statement: %w", err)
	}
	defer stmt.Close()

	added := 0
	for _, r := range rows {
		result, err := stmt.ExecContext(ctx,
			period, r.FileID, r.ContentHash, r.LineNo, r.Date, r.Vendor, r.Item, r.Qty,
			nullFloat(r.UnitPrice), nullFloat(r.LineTotal), nullFloat(r.Subtotal),
			nullFloat(r.Tax), nullFloat(r.Total), r.Currency,
			r.PaymentMethod, r.ReceiptID, string(r.Status), r.Notes, r.SourceLink,
		)
		if err != nil {
			return 0, fmt.Errorf("insert ledger row %s/%d: %w", r.FileID, r.LineNo, err)
		}
		n, err := result.RowsAffected()
		if err != nil {
			return 0, fmt.Errorf("get rows affected: %w", err)
		}
		added += int(n)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit transaction: %w", err)
	}
	return added, nil
}

func (s *LedgerStore) ListRows(ctx context.Context, period string) ([]domain.LedgerRow, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT file_id, content_hash, line_no, date, vendor, item, qty,
		       unit_price, line_total, subtotal, tax, total, currency,
		       payment_method, receipt_id, status, notes, source_link
		FROM ledger_rows
		WHERE period = ?
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
			&r.FileID, &r.ContentHash, &r.LineNo, &r.Date, &r.Vendor, &r.Item, &r.Qty,
			&unitPrice, &lineTotal, &subtotal, &tax, &total, &r.Currency,
			&r.PaymentMethod, &r.ReceiptID, &status, &r.Notes, &r.SourceLink,
		); err != nil {
			return nil, fmt.Errorf("scan ledger row: %w", err)
		}
		r.Status = domain.RowStatus(status)
		r.UnitPrice = floatPtr(unitPrice)
		r.LineTotal = floatPtr(lineTotal)
		r.Subtotal = floatPtr(subtotal)
		r.Tax = floatPtr(tax)
		r.Total = floatPtr(total)
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate ledger rows: %w", err)
	}
	return out, nil
}

// AggregateStore keeps one JSON aggregate document per period.
type AggregateStore struct {
	db *DB
}

func NewAggregateStore(db *DB) *AggregateStore {
	return &AggregateStore{db: db}
}

func (s *AggregateStore) Upsert(ctx context.Context, agg *domain.PeriodAggregate) error {
	doc, err := json.Marshal(agg)
	if err != nil {
		return fmt.Errorf("encode aggregate %s: %w", agg.Period, err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO aggregates (period, document) VALUES (?, ?)
		ON CONFLICT (period) DO UPDATE SET document = excluded.document
	`, agg.Period, string(doc))
	if err != nil {
		return fmt.Errorf("upsert aggregate %s: %w", agg.Period, err)
	}
	return nil
}

func (s *AggregateStore) Get(ctx context.Context, period string) (*domain.PeriodAggregate, error) {
	var doc string
	err := s.db.QueryRowContext(ctx,
		`SELECT document FROM aggregates WHERE period = ?`, period).Scan(&doc)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("aggregate %s: %w", period, domain.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("query aggregate %s: %w", period, err)
	}
	var agg domain.PeriodAggregate
	if err := json.Unmarshal([]byte(doc), &agg); err != nil {
		return nil, fmt.Errorf("decode aggregate %s: %w", period, err)
	}
	return &agg, nil
}

func (s *AggregateStore) List(ctx context.Context) ([]*domain.PeriodAggregate, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT document FROM aggregates ORDER BY period ASC`)
	if err != nil {
		return nil, fmt.Errorf("query aggregates: %w", err)
	}
	defer rows.Close()

	var out []*domain.PeriodAggregate
	for rows.Next() {
		var doc string
		if err := rows.Scan(&doc); err != nil {
			return nil, fmt.Errorf("scan aggregate: %w", err)
		}
		var agg domain.PeriodAggregate
		if err := json.Unmarshal([]byte(doc), &agg); err != nil {
			return nil, fmt.Errorf("decode aggregate: %w", err)
		}
		out = append(out, &agg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate aggregates: %w", err)
	}
	return out, nil
}
