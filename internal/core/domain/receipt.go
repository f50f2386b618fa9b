package domain

import (
	"fmt"
	"time"
)

// DiscoveredItem is a file observed in a watched folder.
type DiscoveredItem struct {
	ID        string    `json:"fileId"`
	Name      string    `json:"name"`
	MimeType  string    `json:"mimeType"`
	CreatedAt time.Time `json:"createdTime"`
	FolderID  string    `json:"folderId"`
}

// ExtractedText is the text layer or OCR output of one discovered file.
type ExtractedText struct {
	ItemID      string
	Text        string
	Engine      string
	Confidence  float64
	PageCount   int
	ContentHash string
}

// NormalizedItem is one canonical line item.
type NormalizedItem struct {
	Description *string  `json:"description"`
	Quantity    float64  `json:"quantity"`
	UnitPrice   *float64 `json:"unit_price"`
	LineTotal   *float64 `json:"line_total"`
}

// NormalizedReceipt is the canonical receipt record produced by the
// normalizer. All present amounts carry at most two decimals and Currency is
// never empty.
type NormalizedReceipt struct {
	Vendor        *string          `json:"vendor"`
	PurchaseDate  *string          `json:"purchase_date"`
	Currency      string           `json:"currency"`
	Subtotal      *float64         `json:"subtotal"`
	Tax           *float64         `json:"tax"`
	Total         *float64         `json:"total"`
	PaymentMethod *string          `json:"payment_method"`
	Items         []NormalizedItem `json:"items"`
	ReceiptID     *string          `json:"receipt_id"`
	ContentHash   *string          `json:"content_hash"`
}

// DedupeKey returns the content fingerprint used to claim this receipt.
// The content hash wins; otherwise vendor, date and total form a composite.
// ok is false when neither can be built.
func (r *NormalizedReceipt) DedupeKey() (key string, ok bool) {
	if r.ContentHash != nil && *r.ContentHash != "" {
		return *r.ContentHash, true
	}
	if r.Vendor == nil || r.PurchaseDate == nil || r.Total == nil {
		return "", false
	}
	return fmt.Sprintf("%s|%s|%.2f", *r.Vendor, *r.PurchaseDate, *r.Total), true
}

// Period returns the YYYY-MM ledger period the receipt belongs to. Receipts
// without a purchase date land in the current month of loc.
func (r *NormalizedReceipt) Period(now time.Time, loc *time.Location) string {
	if r.PurchaseDate != nil && len(*r.PurchaseDate) >= 7 {
		return (*r.PurchaseDate)[:7]
	}
	if loc == nil {
		loc = time.UTC
	}
	return now.In(loc).Format("2006-01")
}

// NoteCode classifies why a receipt needs review.
type NoteCode string

const (
	NoteVendorMissing       NoteCode = "vendor_missing"
	NotePurchaseDateInvalid NoteCode = "purchase_date_invalid"
	NoteNoItems             NoteCode = "no_items"
	NoteItemIncomplete      NoteCode = "item_incomplete"
	NoteTotalInvalid        NoteCode = "total_invalid"
	NoteSubtotalInvalid     NoteCode = "subtotal_invalid"
	NoteTotalsMismatch      NoteCode = "totals_mismatch"
	NoteNoRows              NoteCode = "no_rows"
	NoteExtractionAbsent    NoteCode = "extraction_absent"
	NoteExtractionMalformed NoteCode = "extraction_malformed"
)

// ReviewNote explains one reason a receipt was flagged.
type ReviewNote struct {
	Code NoteCode `json:"code"`
	Text string   `json:"text"`
}

// NoteTexts returns the human-readable text of each note.
func NoteTexts(notes []ReviewNote) []string {
	out := make([]string, 0, len(notes))
	for _, n := range notes {
		out = append(out, n.Text)
	}
	return out
}

// ValidPeriod reports whether p is a YYYY-MM period.
func ValidPeriod(p string) bool {
	_, err := time.Parse("2006-01", p)
	return err == nil && len(p) == 7
}
