package driven

import (
	"context"

	"github.com/custodia-labs/receiptflow/internal/core/domain"
)

// TextExtractor turns raw file content into text.
type TextExtractor interface {
	// Extract returns the text of content. ContentHash and ItemID are
	// filled in by the caller.
	Extract(ctx context.Context, content []byte, mimeType string) (*domain.ExtractedText, error)

	// SupportedTypes returns MIME types this extractor handles.
	// Can include wildcards like "image/*".
	SupportedTypes() []string

	// Priority returns the extractor priority (higher = more specific).
	Priority() int

	// Name identifies the extractor in logs and ocrMeta.engine.
	Name() string
}

// ExtractorRegistry picks an extractor for a MIME type.
type ExtractorRegistry interface {
	// Get returns the highest-priority extractor for mimeType, or nil.
	Get(mimeType string) TextExtractor

	// Register adds an extractor.
	Register(extractor TextExtractor)

	// List returns all registered MIME types.
	List() []string
}

// TextProcessor is one cleanup step applied to extracted text before it is
// sent to the parser.
type TextProcessor interface {
	// Process returns the cleaned text.
	Process(text string) string

	// Name returns the processor name for logging/debugging.
	Name() string

	// Order returns the processor order in the pipeline (lower = earlier).
	Order() int
}

// TextPipeline chains text processors in order.
type TextPipeline interface {
	// Process applies all processors in order.
	Process(text string) string

	// Add adds a processor to the pipeline.
	Add(processor TextProcessor)

	// List returns processor names in order.
	List() []string
}
