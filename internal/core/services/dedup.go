package services

import (
	"context"
	"log/slog"

	"github.com/custodia-labs/receiptflow/internal/core/domain"
	"github.com/custodia-labs/receiptflow/internal/core/ports/driven"
)

// DedupLock claims receipt fingerprints exactly once.
// When the store is missing or unreachable it reports ClaimUnavailable and
// callers proceed as if they had claimed: a possible duplicate row is
// preferred over a dropped receipt.
type DedupLock struct {
	store  driven.ClaimStore
	logger *slog.Logger
}

// NewDedupLock creates a dedup lock. store may be nil.
func NewDedupLock(store driven.ClaimStore, logger *slog.Logger) *DedupLock {
	if logger == nil {
		logger = slog.Default()
	}
	if store == nil {
		logger.Warn("dedupe store not configured, receipt claims will fail open")
	}
	return &DedupLock{store: store, logger: logger}
}

// Claim records key with a single conditional create.
func (d *DedupLock) Claim(ctx context.Context, key string) domain.ClaimResult {
	if d.store == nil {
		return domain.ClaimUnavailable
	}

	created, err := d.store.CreateIfAbsent(ctx, key)
	if err != nil {
		d.logger.Warn("dedupe claim failed, failing open",
			"dedupe_key", key,
			"error", err,
		)
		return domain.ClaimUnavailable
	}
	if !created {
		return domain.ClaimAlreadyClaimed
	}
	return domain.ClaimClaimed
}
