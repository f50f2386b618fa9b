package domain

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/gowebpki/jcs"
)

// AggregateHeader is the ordered column list of the aggregate sheet.
var AggregateHeader = []string{
	"period", "receiptsValid", "receiptsAll", "qtyValid", "qtyAll",
	"amountValid", "amountAll", "avgPerReceiptValid", "avgPerDayValid",
	"reviewedCount", "reviewedPct", "distinctDaysValid", "lastUpdated",
}

// PeriodAggregate summarises one ledger period. It is always rebuilt from
// the period's full row set.
type PeriodAggregate struct {
	Period             string    `json:"period"`
	ReceiptsValid      int       `json:"receiptsValid"`
	ReceiptsAll        int       `json:"receiptsAll"`
	QtyValid           float64   `json:"qtyValid"`
	QtyAll             float64   `json:"qtyAll"`
	AmountValid        float64   `json:"amountValid"`
	AmountAll          float64   `json:"amountAll"`
	AvgPerReceiptValid float64   `json:"avgPerReceiptValid"`
	AvgPerDayValid     float64   `json:"avgPerDayValid"`
	ReviewedCount      int       `json:"reviewedCount"`
	ReviewedPct        float64   `json:"reviewedPct"`
	DistinctDaysValid  int       `json:"distinctDaysValid"`
	LastUpdated        time.Time `json:"lastUpdated"`
}

// Values renders the aggregate in AggregateHeader order.
func (a PeriodAggregate) Values() []string {
	return []string{
		a.Period,
		strconv.Itoa(a.ReceiptsValid),
		strconv.Itoa(a.ReceiptsAll),
		strconv.FormatFloat(a.QtyValid, 'f', -1, 64),
		strconv.FormatFloat(a.QtyAll, 'f', -1, 64),
		strconv.FormatFloat(a.AmountValid, 'f', 2, 64),
		strconv.FormatFloat(a.AmountAll, 'f', 2, 64),
		strconv.FormatFloat(a.AvgPerReceiptValid, 'f', 2, 64),
		strconv.FormatFloat(a.AvgPerDayValid, 'f', 2, 64),
		strconv.Itoa(a.ReviewedCount),
		strconv.FormatFloat(a.ReviewedPct, 'f', 2, 64),
		strconv.Itoa(a.DistinctDaysValid),
		a.LastUpdated.UTC().Format(time.RFC3339),
	}
}

// Fingerprint is the sha256 of the RFC 8785 canonical JSON of the aggregate
// with LastUpdated cleared. Two recomputations over the same rows share it.
func (a PeriodAggregate) Fingerprint() (string, error) {
	a.LastUpdated = time.Time{}
	raw, err := json.Marshal(a)
	if err != nil {
		return "", fmt.Errorf("encode aggregate: %w", err)
	}
	canonical, err := jcs.Transform(raw)
	if err != nil {
		return "", fmt.Errorf("canonicalize aggregate: %w", err)
	}
	sum := sha256.Sum256(canonical)
	return hex.EncodeToString(sum[:]), nil
}
