package domain

import (
	"strconv"
	"strings"
)

// RowStatus marks whether a ledger row can be trusted as-is.
type RowStatus string

const (
	RowStatusOK          RowStatus = "OK"
	RowStatusNeedsReview RowStatus = "NEEDS REVIEW"
)

// LedgerHeader is the ordered column list of a period ledger.
var LedgerHeader = []string{
	"date", "vendor", "item", "qty", "unitPrice", "lineTotal",
	"subtotal", "tax", "total", "currency", "paymentMethod", "receiptId",
	"contentHash", "status", "notes", "sourceLink",
}

// LedgerRow is one line item written to a period's append-only ledger.
// Receipt-level fields repeat on every row of the same receipt.
type LedgerRow struct {
	Date          string    `json:"date"`
	Vendor        string    `json:"vendor"`
	Item          string    `json:"item"`
	Qty           float64   `json:"qty"`
	UnitPrice     *float64  `json:"unitPrice"`
	LineTotal     *float64  `json:"lineTotal"`
	Subtotal      *float64  `json:"subtotal"`
	Tax           *float64  `json:"tax"`
	Total         *float64  `json:"total"`
	Currency      string    `json:"currency"`
	PaymentMethod string    `json:"paymentMethod"`
	ReceiptID     string    `json:"receiptId"`
	ContentHash   string    `json:"contentHash"`
	Status        RowStatus `json:"status"`
	Notes         string    `json:"notes"`
	SourceLink    string    `json:"sourceLink"`

	// FileID and LineNo identify the row for idempotent appends
	FileID string `json:"fileId,omitempty"`
	LineNo int    `json:"lineNo"`
}

// NeedsReview reports whether the row is flagged.
func (r LedgerRow) NeedsReview() bool {
	return r.Status == RowStatusNeedsReview
}

// Values renders the row in LedgerHeader order.
func (r LedgerRow) Values() []string {
	return []string{
		r.Date,
		r.Vendor,
		r.Item,
		strconv.FormatFloat(r.Qty, 'f', -1, 64),
		formatAmount(r.UnitPrice),
		formatAmount(r.LineTotal),
		formatAmount(r.Subtotal),
		formatAmount(r.Tax),
		formatAmount(r.Total),
		r.Currency,
		r.PaymentMethod,
		r.ReceiptID,
		r.ContentHash,
		string(r.Status),
		r.Notes,
		r.SourceLink,
	}
}

func formatAmount(v *float64) string {
	if v == nil {
		return ""
	}
	return strconv.FormatFloat(*v, 'f', 2, 64)
}

// JoinNotes renders review notes the way the ledger stores them.
func JoinNotes(notes []ReviewNote) string {
	return strings.Join(NoteTexts(notes), "; ")
}

// BuildLedgerRows flattens a receipt into one row per item.
func BuildLedgerRows(r *NormalizedReceipt, status RowStatus, notes []ReviewNote, fileID, sourceLink string) []LedgerRow {
	if r == nil || len(r.Items) == 0 {
		return nil
	}
	joined := JoinNotes(notes)
	rows := make([]LedgerRow, 0, len(r.Items))
	for i, it := range r.Items {
		rows = append(rows, LedgerRow{
			Date:          deref(r.PurchaseDate),
			Vendor:        deref(r.Vendor),
			Item:          deref(it.Description),
			Qty:           it.Quantity,
			UnitPrice:     it.UnitPrice,
			LineTotal:     it.LineTotal,
			Subtotal:      r.Subtotal,
			Tax:           r.Tax,
			Total:         r.Total,
			Currency:      r.Currency,
			PaymentMethod: deref(r.PaymentMethod),
			ReceiptID:     deref(r.ReceiptID),
			ContentHash:   deref(r.ContentHash),
			Status:        status,
			Notes:         joined,
			SourceLink:    sourceLink,
			FileID:        fileID,
			LineNo:        i,
		})
	}
	return rows
}

// SourceLink expands a link template; {fileId} is replaced by the file ID.
func SourceLink(template, fileID string) string {
	if template == "" || fileID == "" {
		return ""
	}
	return strings.ReplaceAll(template, "{fileId}", fileID)
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
