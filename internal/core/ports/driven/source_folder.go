package driven

import (
	"context"
	"time"

	"github.com/custodia-labs/receiptflow/internal/core/domain"
)

// SourceFolder lists and reads files in a watched folder.
type SourceFolder interface {
	// ListSince returns files created strictly after since, oldest first.
	ListSince(ctx context.Context, folderID string, since time.Time) ([]domain.DiscoveredItem, error)

	// Fetch returns the raw bytes of a file.
	Fetch(ctx context.Context, fileID string) ([]byte, error)
}
