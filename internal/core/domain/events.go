package domain

import (
	"crypto/sha256"
	"encoding/hex"
	"time"
)

// DiscoveryEvent announces a new file (receipts.new).
type DiscoveryEvent struct {
	FileID         string `json:"fileId"`
	Name           string `json:"name"`
	MimeType       string `json:"mimeType"`
	CreatedTime    string `json:"createdTime"`
	FolderID       string `json:"folderId"`
	IdempotencyKey string `json:"idempotencyKey,omitempty"`
}

// NewDiscoveryEvent builds the announcement for a discovered item.
func NewDiscoveryEvent(item DiscoveredItem) DiscoveryEvent {
	created := FormatTimestamp(item.CreatedAt)
	return DiscoveryEvent{
		FileID:         item.ID,
		Name:           item.Name,
		MimeType:       item.MimeType,
		CreatedTime:    created,
		FolderID:       item.FolderID,
		IdempotencyKey: IdempotencyKey(item.ID, created),
	}
}

// IdempotencyKey is sha256(fileId:createdTime) in hex. The poller and the
// HTTP ingress derive the same key for the same file.
func IdempotencyKey(fileID, createdTime string) string {
	sum := sha256.Sum256([]byte(fileID + ":" + createdTime))
	return hex.EncodeToString(sum[:])
}

// OCRMeta describes how text was obtained.
type OCRMeta struct {
	Engine     string  `json:"engine"`
	Confidence float64 `json:"confidence"`
	Pages      int     `json:"pages"`
}

// TextEvent carries extracted text (receipts.text).
type TextEvent struct {
	FileID      string  `json:"fileId"`
	Name        string  `json:"name"`
	MimeType    string  `json:"mimeType,omitempty"`
	CreatedTime string  `json:"createdTime"`
	ContentHash string  `json:"contentHash"`
	Text        string  `json:"text"`
	OCRMeta     OCRMeta `json:"ocrMeta"`
}

// LLMMeta describes the model call that produced a parsed event.
type LLMMeta struct {
	Model       string  `json:"model"`
	Reason      string  `json:"reason,omitempty"`
	Temperature float64 `json:"temperature"`
	MaxTokens   int     `json:"maxTokens,omitempty"`
}

// Reasons a parsed event carries no data.
const (
	ParseReasonEmptyText = "empty_ocr_text"
	ParseReasonNonJSON   = "non_json_output"
	ParseReasonAPIError  = "api_error"
)

// ParsedEvent carries the model's structured output (receipts.parsed).
type ParsedEvent struct {
	FileID      string        `json:"fileId"`
	ContentHash string        `json:"contentHash"`
	Data        RawExtraction `json:"data"`
	LLMMeta     LLMMeta       `json:"llmMeta"`
}

// Route reasons.
const (
	ReasonEmptyOrInvalidExtraction = "empty_or_invalid_extraction"
	ReasonNeedsReview              = "needs_review"
	ReasonDuplicate                = "duplicate"
)

// RoutedEvent is the payload of receipts.valid, receipts.review and
// receipts.duplicate.
type RoutedEvent struct {
	FileID     string             `json:"fileId"`
	Period     string             `json:"period"`
	Header     []string           `json:"header"`
	Normalized *NormalizedReceipt `json:"normalized"`
	Notes      []ReviewNote       `json:"notes"`
	Rows       []LedgerRow        `json:"rows,omitempty"`
	Reason     string             `json:"reason,omitempty"`
	DedupeKey  string             `json:"dedupeKey,omitempty"`
	RoutedAt   time.Time          `json:"routedAt"`
}

// IngressResult acknowledges an accepted discovery event.
type IngressResult struct {
	Status         string `json:"status"`
	TaskID         string `json:"taskId"`
	IdempotencyKey string `json:"idempotencyKey"`
}
