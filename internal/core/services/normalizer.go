package services

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/araddon/dateparse"
	"github.com/shopspring/decimal"
	"github.com/tidwall/gjson"

	"github.com/custodia-labs/receiptflow/internal/core/domain"
)

const (
	// DefaultCurrency is used when the extraction names none
	DefaultCurrency = "MYR"
	// DefaultTimezone localizes purchase dates without an offset
	DefaultTimezone = "Asia/Kuala_Lumpur"
	// DefaultTotalsEpsilon absorbs rounding between line totals and total
	DefaultTotalsEpsilon = 0.05
)

// Review note texts. Ledger rows carry these verbatim.
const (
	noteVendorMissing    = "vendor missing"
	noteDateInvalid      = "purchase_date missing/invalid"
	noteNoItems          = "no items"
	noteItemIncomplete   = "item missing description or line_total"
	noteTotalInvalid     = "total missing/invalid"
	noteSubtotalInvalid  = "subtotal missing/invalid"
	noteNoRowsFromItems  = "no rows produced from items"
	noteExtractionAbsent = "extraction absent"
)

var (
	nonNumeric = regexp.MustCompile(`[^\d.\-]`)
	// d-m-y or m-d-y with dashes or dots, rewritten to slashes before parsing
	numericDMY = regexp.MustCompile(`^(\d{1,2})[-.](\d{1,2})[-.](\d{2}|\d{4})$`)
)

// NormalizerConfig holds the normalizer's locale settings.
type NormalizerConfig struct {
	Location        *time.Location
	DefaultCurrency string
	Epsilon         float64
	// DayFirst reads ambiguous dates such as 03/04/25 as 3 April
	DayFirst bool
}

// Normalizer turns an untrusted extraction into a canonical receipt.
// It performs no I/O and never fails: bad fields become nil plus a note.
type Normalizer struct {
	loc      *time.Location
	currency string
	epsilon  decimal.Decimal
	dayFirst bool
}

// NewNormalizer creates a normalizer, applying defaults to unset fields.
func NewNormalizer(cfg NormalizerConfig) *Normalizer {
	loc := cfg.Location
	if loc == nil {
		loc = time.UTC
	}
	currency := strings.ToUpper(strings.TrimSpace(cfg.DefaultCurrency))
	if currency == "" {
		currency = DefaultCurrency
	}
	eps := cfg.Epsilon
	if eps <= 0 {
		eps = DefaultTotalsEpsilon
	}
	return &Normalizer{
		loc:      loc,
		currency: currency,
		epsilon:  decimal.NewFromFloat(eps),
		dayFirst: cfg.DayFirst,
	}
}

// Location returns the timezone purchase dates are localized to.
func (n *Normalizer) Location() *time.Location {
	return n.loc
}

// Normalize returns the canonical receipt, its review notes, and whether it
// needs review. needsReview is true exactly when notes is non-empty.
func (n *Normalizer) Normalize(raw domain.RawExtraction) (*domain.NormalizedReceipt, []domain.ReviewNote, bool) {
	var notes []domain.ReviewNote
	flag := func(code domain.NoteCode, text string) {
		notes = append(notes, domain.ReviewNote{Code: code, Text: text})
	}

	out := &domain.NormalizedReceipt{}

	// 1. vendor
	out.Vendor = optionalString(raw.Field("vendor"))
	if out.Vendor == nil {
		flag(domain.NoteVendorMissing, noteVendorMissing)
	}

	// 2. purchase date
	if date, ok := n.parseDate(raw.Field("purchase_date")); ok {
		out.PurchaseDate = &date
	} else {
		flag(domain.NotePurchaseDateInvalid, noteDateInvalid)
	}

	// 3. currency
	out.Currency = n.currency
	if c := optionalString(raw.Field("currency")); c != nil {
		out.Currency = strings.ToUpper(*c)
	}

	out.PaymentMethod = optionalString(raw.Field("payment_method"))
	out.ReceiptID = optionalString(raw.Field("receipt_id"))
	if h := raw.ContentHash(); h != "" {
		out.ContentHash = &h
	}

	// 4. items
	rawItems := raw.Items()
	if len(rawItems) == 0 {
		flag(domain.NoteNoItems, noteNoItems)
	}
	sumLines := decimal.Zero
	out.Items = make([]domain.NormalizedItem, 0, len(rawItems))
	for _, it := range rawItems {
		item, lineTotal := normalizeItem(it)
		if item.Description == nil || item.LineTotal == nil {
			flag(domain.NoteItemIncomplete, noteItemIncomplete)
		}
		if lineTotal != nil {
			sumLines = sumLines.Add(*lineTotal)
		}
		out.Items = append(out.Items, item)
	}
	sumLines = round2(sumLines)

	// 5. totals
	subtotal, hasSubtotal := toDecimal(raw.Field("subtotal"))
	tax, hasTax := toDecimal(raw.Field("tax"))
	total, hasTotal := toDecimal(raw.Field("total"))

	if !hasSubtotal {
		subtotal, hasSubtotal = sumLines, true
	}
	if !hasTotal && hasSubtotal && hasTax {
		total, hasTotal = subtotal.Add(tax), true
	}
	if !hasTax && hasSubtotal && hasTotal {
		tax, hasTax = round2(total.Sub(subtotal)), true
	}
	if hasSubtotal {
		subtotal = round2(subtotal)
		out.Subtotal = floatPtr(subtotal)
	}
	if hasTax {
		out.Tax = floatPtr(round2(tax))
	}
	if hasTotal {
		total = round2(total)
		out.Total = floatPtr(total)
	}

	// 6 and 7. sanity checks
	if !hasTotal || !total.IsPositive() {
		flag(domain.NoteTotalInvalid, noteTotalInvalid)
	}
	if !hasSubtotal {
		flag(domain.NoteSubtotalInvalid, noteSubtotalInvalid)
	}
	if hasTotal && total.Sub(sumLines).Abs().GreaterThan(n.epsilon) {
		flag(domain.NoteTotalsMismatch, fmt.Sprintf("sum(items) %s != total %s",
			sumLines.StringFixed(2), total.StringFixed(2)))
	}

	return out, notes, len(notes) > 0
}

func normalizeItem(it gjson.Result) (domain.NormalizedItem, *decimal.Decimal) {
	if !it.IsObject() {
		return domain.NormalizedItem{Quantity: 1}, nil
	}

	qty, ok := toDecimal(it.Get("quantity"))
	if !ok || !qty.IsPositive() {
		qty = decimal.NewFromInt(1)
	}
	unitPrice, hasUnit := toDecimal(it.Get("unit_price"))
	lineTotal, hasLine := toDecimal(it.Get("line_total"))

	if !hasLine && hasUnit {
		lineTotal, hasLine = qty.Mul(unitPrice), true
	}
	if !hasUnit && hasLine {
		unitPrice, hasUnit = lineTotal.Div(qty), true
	}

	item := domain.NormalizedItem{
		Description: optionalString(it.Get("description")),
	}
	item.Quantity, _ = round2(qty).Float64()
	if hasUnit {
		item.UnitPrice = floatPtr(round2(unitPrice))
	}
	if !hasLine {
		return item, nil
	}
	lineTotal = round2(lineTotal)
	item.LineTotal = floatPtr(lineTotal)
	return item, &lineTotal
}

// parseDate tries a plain ISO date, then a permissive parse in both
// day/month orders. Times without
// an offset are read in the configured timezone; times with one are
// converted to it.
func (n *Normalizer) parseDate(v gjson.Result) (string, bool) {
	if v.Type != gjson.String && v.Type != gjson.Number {
		return "", false
	}
	s := strings.TrimSpace(v.String())
	if s == "" {
		return "", false
	}
	if t, err := time.ParseInLocation("2006-01-02", s, n.loc); err == nil {
		return t.Format("2006-01-02"), true
	}
	s = numericDMY.ReplaceAllString(s, "$1/$2/$3")
	// The preferred order first. A day above 12 only parses the other way
	// round, so 21/09/2025 and 09/21/2025 are both accepted.
	for _, monthFirst := range []bool{!n.dayFirst, n.dayFirst} {
		t, err := dateparse.ParseIn(s, n.loc, dateparse.PreferMonthFirst(monthFirst))
		if err == nil {
			return t.In(n.loc).Format("2006-01-02"), true
		}
	}
	return "", false
}

// toDecimal coerces a JSON number or a string with currency symbols.
func toDecimal(v gjson.Result) (decimal.Decimal, bool) {
	switch v.Type {
	case gjson.Number:
		if d, err := decimal.NewFromString(v.Raw); err == nil {
			return d, true
		}
		return decimal.NewFromFloat(v.Num), true
	case gjson.String:
		cleaned := nonNumeric.ReplaceAllString(strings.TrimSpace(v.Str), "")
		d, err := decimal.NewFromString(cleaned)
		if err != nil {
			return decimal.Zero, false
		}
		return d, true
	default:
		return decimal.Zero, false
	}
}

// optionalString returns a trimmed non-empty scalar, or nil.
func optionalString(v gjson.Result) *string {
	if v.Type != gjson.String && v.Type != gjson.Number {
		return nil
	}
	s := strings.TrimSpace(v.String())
	if s == "" {
		return nil
	}
	return &s
}

// round2 rounds half away from zero to two decimals.
func round2(d decimal.Decimal) decimal.Decimal {
	return d.Round(2)
}

func floatPtr(d decimal.Decimal) *float64 {
	f, _ := d.Float64()
	return &f
}
