package services

import "github.com/custodia-labs/receiptflow/internal/adapters/driven/memory"

type memoryLedger struct {
	rows       *memory.LedgerStore
	aggregates *memory.AggregateStore
}

func newMemoryLedger() memoryLedger {
	return memoryLedger{rows: memory.NewLedgerStore(), aggregates: memory.NewAggregateStore()}
}
