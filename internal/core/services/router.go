package services

import (
	"context"
	"log/slog"
	"time"

	"github.com/custodia-labs/receiptflow/internal/core/domain"
)

// DefaultSourceLinkTemplate links ledger rows back to the scanned file.
const DefaultSourceLinkTemplate = "https://drive.google.com/file/d/{fileId}/view"

// RouterConfig holds the router's collaborators.
type RouterConfig struct {
	Normalizer         *Normalizer
	Lock               *DedupLock
	SourceLinkTemplate string
	Logger             *slog.Logger
	Now                func() time.Time
}

// Router classifies parsed receipts as valid, review or duplicate.
// Every decision is terminal.
type Router struct {
	normalizer   *Normalizer
	lock         *DedupLock
	linkTemplate string
	logger       *slog.Logger
	now          func() time.Time
}

// NewRouter creates a router.
func NewRouter(cfg RouterConfig) *Router {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	normalizer := cfg.Normalizer
	if normalizer == nil {
		normalizer = NewNormalizer(NormalizerConfig{})
	}
	lock := cfg.Lock
	if lock == nil {
		lock = NewDedupLock(nil, logger)
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	link := cfg.SourceLinkTemplate
	if link == "" {
		link = DefaultSourceLinkTemplate
	}
	return &Router{
		normalizer:   normalizer,
		lock:         lock,
		linkTemplate: link,
		logger:       logger,
		now:          now,
	}
}

// Route decides the outcome for one parsed event.
func (r *Router) Route(ctx context.Context, evt *domain.ParsedEvent) *domain.RouteOutcome {
	loc := r.normalizer.Location()

	switch evt.Data.Kind() {
	case domain.ExtractionAbsent, domain.ExtractionMalformed:
		code := domain.NoteExtractionAbsent
		if evt.Data.Kind() == domain.ExtractionMalformed {
			code = domain.NoteExtractionMalformed
		}
		text := evt.Data.Problem()
		if text == "" {
			text = noteExtractionAbsent
		}
		r.logger.Warn("no usable extraction", "file_id", evt.FileID, "kind", evt.Data.Kind().String(), "llm_reason", evt.LLMMeta.Reason)
		return &domain.RouteOutcome{
			Kind:   domain.RouteReview,
			Reason: domain.ReasonEmptyOrInvalidExtraction,
			Notes:  []domain.ReviewNote{{Code: code, Text: text}},
			Claim:  domain.ClaimClaimed,
			Period: r.now().In(loc).Format("2006-01"),
		}
	}

	receipt, notes, needsReview := r.normalizer.Normalize(evt.Data)
	// The hash of the file bytes outranks anything inside the model output.
	if evt.ContentHash != "" {
		h := evt.ContentHash
		receipt.ContentHash = &h
	}
	period := receipt.Period(r.now(), loc)

	outcome := &domain.RouteOutcome{
		Receipt: receipt,
		Period:  period,
		Claim:   domain.ClaimClaimed,
	}

	if key, ok := receipt.DedupeKey(); ok {
		outcome.DedupeKey = key
		outcome.Claim = r.lock.Claim(ctx, key)
	} else {
		r.logger.Debug("no dedupe key, skipping claim", "file_id", evt.FileID)
	}

	if outcome.Claim == domain.ClaimAlreadyClaimed {
		outcome.Kind = domain.RouteDuplicate
		outcome.Reason = domain.ReasonDuplicate
		outcome.Notes = notes
		r.logger.Info("duplicate receipt", "file_id", evt.FileID, "dedupe_key", outcome.DedupeKey)
		return outcome
	}

	link := domain.SourceLink(r.linkTemplate, evt.FileID)
	// Noted even when review is already forced, so an item-less receipt
	// says why it has no ledger rows.
	if len(receipt.Items) == 0 {
		notes = append(notes, domain.ReviewNote{Code: domain.NoteNoRows, Text: noteNoRowsFromItems})
		needsReview = true
	}

	outcome.Notes = notes
	if needsReview {
		outcome.Kind = domain.RouteReview
		outcome.Reason = domain.ReasonNeedsReview
		outcome.Rows = domain.BuildLedgerRows(receipt, domain.RowStatusNeedsReview, notes, evt.FileID, link)
		r.logger.Info("receipt needs review", "file_id", evt.FileID, "notes", domain.NoteTexts(notes))
		return outcome
	}

	outcome.Kind = domain.RouteValid
	outcome.Rows = domain.BuildLedgerRows(receipt, domain.RowStatusOK, nil, evt.FileID, link)
	r.logger.Info("receipt valid", "file_id", evt.FileID, "rows", len(outcome.Rows))
	return outcome
}

// RoutedEvent renders an outcome as the event published downstream.
func RoutedEvent(fileID string, outcome *domain.RouteOutcome, at time.Time) domain.RoutedEvent {
	notes := outcome.Notes
	if notes == nil {
		notes = []domain.ReviewNote{}
	}
	return domain.RoutedEvent{
		FileID:     fileID,
		Period:     outcome.Period,
		Header:     domain.LedgerHeader,
		Normalized: outcome.Receipt,
		Notes:      notes,
		Rows:       outcome.Rows,
		Reason:     outcome.Reason,
		DedupeKey:  outcome.DedupeKey,
		RoutedAt:   at,
	}
}
