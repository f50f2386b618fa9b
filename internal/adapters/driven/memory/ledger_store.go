package memory

import (
	"context"
	"sort"
	"strconv"
	"sync"

	"github.com/custodia-labs/receiptflow/internal/core/domain"
	"github.com/custodia-labs/receiptflow/internal/core/ports/driven"
)

var (
	_ driven.LedgerStore    = (*LedgerStore)(nil)
	_ driven.AggregateStore = (*AggregateStore)(nil)
)

// LedgerStore keeps period ledgers in memory.
type LedgerStore struct {
	mu      sync.RWMutex
	periods map[string][]domain.LedgerRow
	keys    map[string]struct{}
}

// NewLedgerStore creates an empty ledger store.
func NewLedgerStore() *LedgerStore {
	return &LedgerStore{
		periods: make(map[string][]domain.LedgerRow),
		keys:    make(map[string]struct{}),
	}
}

func rowKey(period string, row domain.LedgerRow) string {
	return period + "\x00" + row.FileID + "\x00" + row.ContentHash + "\x00" + strconv.Itoa(row.LineNo)
}

// Append adds rows not already present.
func (s *LedgerStore) Append(_ context.Context, period string, rows []domain.LedgerRow) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	added := 0
	for _, row := range rows {
		k := rowKey(period, row)
		if _, dup := s.keys[k]; dup {
			continue
		}
		s.keys[k] = struct{}{}
		s.periods[period] = append(s.periods[period], row)
		added++
	}
	return added, nil
}

// ListRows returns a copy of a period's rows.
func (s *LedgerStore) ListRows(_ context.Context, period string) ([]domain.LedgerRow, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rows := s.periods[period]
	out := make([]domain.LedgerRow, len(rows))
	copy(out, rows)
	return out, nil
}

// AggregateStore keeps aggregate rows in insertion order, like a sheet.
type AggregateStore struct {
	mu   sync.RWMutex
	rows []*domain.PeriodAggregate
}

// NewAggregateStore creates an empty aggregate store.
func NewAggregateStore() *AggregateStore {
	return &AggregateStore{}
}

// Upsert replaces the row for agg.Period in place, or appends one.
func (s *AggregateStore) Upsert(_ context.Context, agg *domain.PeriodAggregate) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *agg
	for i, row := range s.rows {
		if row.Period == agg.Period {
			s.rows[i] = &cp
			return nil
		}
	}
	s.rows = append(s.rows, &cp)
	return nil
}

// Get returns a period's aggregate.
func (s *AggregateStore) Get(_ context.Context, period string) (*domain.PeriodAggregate, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, row := range s.rows {
		if row.Period == period {
			cp := *row
			return &cp, nil
		}
	}
	return nil, domain.ErrNotFound
}

// List returns every aggregate ordered by period.
func (s *AggregateStore) List(_ context.Context) ([]*domain.PeriodAggregate, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*domain.PeriodAggregate, 0, len(s.rows))
	for _, row := range s.rows {
		cp := *row
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Period < out[j].Period })
	return out, nil
}

// Len returns the number of aggregate rows.
func (s *AggregateStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.rows)
}
