package services

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"strings"

	"github.com/custodia-labs/receiptflow/internal/core/domain"
	"github.com/custodia-labs/receiptflow/internal/core/ports/driven"
)

// ExtractionServiceConfig holds the text extraction stage's collaborators.
type ExtractionServiceConfig struct {
	Folder     driven.SourceFolder
	Extractors driven.ExtractorRegistry
	TaskQueue  driven.TaskQueue
	// Cleaner post-processes extracted text; nil only trims it
	Cleaner driven.TextPipeline
	Logger  *slog.Logger
}

// ExtractionService downloads a discovered file, fingerprints it, and
// extracts its text.
type ExtractionService struct {
	folder     driven.SourceFolder
	extractors driven.ExtractorRegistry
	taskQueue  driven.TaskQueue
	cleaner    driven.TextPipeline
	logger     *slog.Logger
}

// NewExtractionService creates an extraction service.
func NewExtractionService(cfg ExtractionServiceConfig) *ExtractionService {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &ExtractionService{
		folder:     cfg.Folder,
		extractors: cfg.Extractors,
		taskQueue:  cfg.TaskQueue,
		cleaner:    cfg.Cleaner,
		logger:     logger,
	}
}

// ContentHash fingerprints raw file bytes as "sha256:<hex>".
func ContentHash(content []byte) string {
	sum := sha256.Sum256(content)
	return "sha256:" + hex.EncodeToString(sum[:])
}

// Process extracts text for one discovery event and queues it for parsing.
// A failed download is returned as an error so the task is retried. A failed
// extraction is not: it publishes empty text and the parser routes the
// receipt to review.
func (s *ExtractionService) Process(ctx context.Context, evt domain.DiscoveryEvent) (*domain.TextEvent, error) {
	content, err := s.folder.Fetch(ctx, evt.FileID)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", evt.FileID, err)
	}

	out := &domain.TextEvent{
		FileID:      evt.FileID,
		Name:        evt.Name,
		MimeType:    evt.MimeType,
		CreatedTime: evt.CreatedTime,
		ContentHash: ContentHash(content),
	}

	if extracted, err := s.extract(ctx, content, evt.MimeType); err != nil {
		s.logger.Warn("text extraction failed, publishing empty text",
			"file_id", evt.FileID,
			"mime_type", evt.MimeType,
			"error", err,
		)
	} else {
		out.Text = s.clean(extracted.Text)
		out.OCRMeta = domain.OCRMeta{
			Engine:     extracted.Engine,
			Confidence: extracted.Confidence,
			Pages:      extracted.PageCount,
		}
	}

	task, err := domain.NewKeyedTask(domain.TaskTypeReceiptText, evt.FileID+":"+out.ContentHash, out)
	if err != nil {
		return nil, err
	}
	if err := s.taskQueue.Enqueue(ctx, task); err != nil {
		return nil, fmt.Errorf("enqueue text event: %w", err)
	}

	s.logger.Info("text extracted",
		"file_id", evt.FileID,
		"engine", out.OCRMeta.Engine,
		"chars", len(out.Text),
		"content_hash", out.ContentHash,
	)
	return out, nil
}

func (s *ExtractionService) clean(text string) string {
	if s.cleaner != nil {
		text = s.cleaner.Process(text)
	}
	return strings.TrimSpace(text)
}

func (s *ExtractionService) extract(ctx context.Context, content []byte, mimeType string) (*domain.ExtractedText, error) {
	extractor := s.extractors.Get(mimeType)
	if extractor == nil {
		return nil, fmt.Errorf("%w: %s", domain.ErrUnsupportedMimeType, mimeType)
	}
	extracted, err := extractor.Extract(ctx, content, mimeType)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", extractor.Name(), err)
	}
	if extracted.Engine == "" {
		extracted.Engine = extractor.Name()
	}
	return extracted, nil
}
