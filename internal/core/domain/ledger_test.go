package domain

import (
	"strings"
	"testing"
	"time"
)

func TestBuildLedgerRows(t *testing.T) {
	receipt := &NormalizedReceipt{
		Vendor:       strPtr("Cafe X"),
		PurchaseDate: strPtr("2025-09-21"),
		Currency:     "MYR",
		Subtotal:     fltPtr(20),
		Tax:          fltPtr(0),
		Total:        fltPtr(20),
		ContentHash:  strPtr("sha256:abc"),
		Items: []NormalizedItem{
			{Description: strPtr("Coffee"), Quantity: 1, UnitPrice: fltPtr(15), LineTotal: fltPtr(15)},
			{Description: strPtr("Cake"), Quantity: 2, UnitPrice: fltPtr(2.5), LineTotal: fltPtr(5)},
		},
	}
	notes := []ReviewNote{{Code: NoteVendorMissing, Text: "a"}, {Code: NoteNoItems, Text: "b"}}

	rows := BuildLedgerRows(receipt, RowStatusNeedsReview, notes, "file-1", "https://x/file-1")
	if len(rows) != 2 {
		t.Fatalf("expected 2 rows, got %d", len(rows))
	}
	for i, row := range rows {
		if row.Vendor != "Cafe X" || row.Date != "2025-09-21" || row.ContentHash != "sha256:abc" {
			t.Errorf("row %d missing receipt-level fields: %+v", i, row)
		}
		if row.Notes != "a; b" {
			t.Errorf("row %d notes = %q", i, row.Notes)
		}
		if !row.NeedsReview() {
			t.Errorf("row %d should need review", i)
		}
		if row.LineNo != i || row.FileID != "file-1" {
			t.Errorf("row %d identity = %d/%s", i, row.LineNo, row.FileID)
		}
	}

	if BuildLedgerRows(&NormalizedReceipt{}, RowStatusOK, nil, "f", "") != nil {
		t.Error("receipt without items should produce no rows")
	}
}

func TestLedgerRow_Values(t *testing.T) {
	row := LedgerRow{
		Date: "2025-09-21", Vendor: "Cafe X", Item: "Coffee", Qty: 1.5,
		UnitPrice: fltPtr(10), LineTotal: fltPtr(15), Total: fltPtr(15),
		Currency: "MYR", Status: RowStatusOK,
	}
	values := row.Values()
	if len(values) != len(LedgerHeader) {
		t.Fatalf("expected %d values, got %d", len(LedgerHeader), len(values))
	}
	got := strings.Join(values, ",")
	want := "2025-09-21,Cafe X,Coffee,1.5,10.00,15.00,,,15.00,MYR,,,,OK,,"
	if got != want {
		t.Errorf("expected %s, got %s", want, got)
	}
}

func TestSourceLink(t *testing.T) {
	if got := SourceLink("https://drive.google.com/file/d/{fileId}/view", "abc"); got != "https://drive.google.com/file/d/abc/view" {
		t.Errorf("unexpected link %s", got)
	}
	if SourceLink("", "abc") != "" || SourceLink("x/{fileId}", "") != "" {
		t.Error("expected empty link when template or id is empty")
	}
}

func TestPeriodAggregate_Fingerprint(t *testing.T) {
	a := PeriodAggregate{Period: "2025-09", ReceiptsAll: 2, AmountAll: 35.5, LastUpdated: time.Now()}
	b := a
	b.LastUpdated = a.LastUpdated.Add(time.Hour)

	fa, err := a.Fingerprint()
	if err != nil {
		t.Fatalf("fingerprint: %v", err)
	}
	fb, _ := b.Fingerprint()
	if fa != fb {
		t.Error("fingerprint should ignore LastUpdated")
	}

	b.AmountAll = 36
	fc, _ := b.Fingerprint()
	if fa == fc {
		t.Error("fingerprint should change with content")
	}
	if len(a.Values()) != len(AggregateHeader) {
		t.Errorf("expected %d aggregate values, got %d", len(AggregateHeader), len(a.Values()))
	}
}
