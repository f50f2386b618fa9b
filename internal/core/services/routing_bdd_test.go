package services

import (
	"context"
	"fmt"
	"strconv"
	"testing"
	"time"

	"github.com/cucumber/godog"

	"github.com/custodia-labs/receiptflow/internal/core/domain"
	"github.com/custodia-labs/receiptflow/internal/core/ports/driven/mocks"
)

// routingWorld is the per-scenario state of the routing feature.
type routingWorld struct {
	router     *Router
	ledger     *LedgerService
	aggregator *AggregatorService

	event   *domain.ParsedEvent
	outcome *domain.RouteOutcome
}

func (w *routingWorld) anEmptyLedger() error {
	store := newMemoryLedger()
	w.router = newTestRouter(mocks.NewMockClaimStore())
	w.aggregator = NewAggregatorService(AggregatorServiceConfig{
		Ledger:     store.rows,
		Aggregates: store.aggregates,
		Now:        func() time.Time { return aggNow },
	})
	w.ledger = NewLedgerService(LedgerServiceConfig{Ledger: store.rows, Aggregator: w.aggregator})
	return nil
}

func (w *routingWorld) aParsedReceipt(fileID, hash string, doc *godog.DocString) error {
	w.event = parsedEvent(fileID, hash, doc.Content)
	return nil
}

func (w *routingWorld) theReceiptIsRouted(ctx context.Context) error {
	w.outcome = w.router.Route(ctx, w.event)
	if w.outcome.Kind == domain.RouteDuplicate {
		return nil
	}
	_, err := w.ledger.Record(ctx, RoutedEvent(w.event.FileID, w.outcome, routerNow))
	return err
}

func (w *routingWorld) theOutcomeIs(kind string) error {
	if string(w.outcome.Kind) != kind {
		return fmt.Errorf("expected outcome %s, got %s (notes %v)", kind, w.outcome.Kind, domain.NoteTexts(w.outcome.Notes))
	}
	return nil
}

func (w *routingWorld) theRouteReasonIs(reason string) error {
	if w.outcome.Reason != reason {
		return fmt.Errorf("expected reason %s, got %s", reason, w.outcome.Reason)
	}
	return nil
}

func (w *routingWorld) theReviewNotesInclude(text string) error {
	for _, n := range w.outcome.Notes {
		if n.Text == text {
			return nil
		}
	}
	return fmt.Errorf("note %q not in %v", text, domain.NoteTexts(w.outcome.Notes))
}

func (w *routingWorld) theNormalizedAmountIs(field, want string) error {
	r := w.outcome.Receipt
	if r == nil {
		return fmt.Errorf("no normalized receipt")
	}
	var got *float64
	switch field {
	case "subtotal":
		got = r.Subtotal
	case "tax":
		got = r.Tax
	case "total":
		got = r.Total
	}
	if got == nil {
		return fmt.Errorf("%s is null", field)
	}
	if s := strconv.FormatFloat(*got, 'f', 2, 64); s != want {
		return fmt.Errorf("expected %s %s, got %s", field, want, s)
	}
	return nil
}

func (w *routingWorld) theLedgerHasRows(ctx context.Context, period string, want int) error {
	rows, err := w.ledger.Rows(ctx, period)
	if err != nil {
		return err
	}
	if len(rows) != want {
		return fmt.Errorf("expected %d rows, got %d", want, len(rows))
	}
	return nil
}

func (w *routingWorld) theAggregateCounts(ctx context.Context, period string, valid, all int) error {
	agg, err := w.aggregator.Get(ctx, period)
	if err != nil {
		return err
	}
	if agg.ReceiptsValid != valid || agg.ReceiptsAll != all {
		return fmt.Errorf("expected %d/%d receipts, got %d/%d", valid, all, agg.ReceiptsValid, agg.ReceiptsAll)
	}
	return nil
}

func initializeRoutingScenario(sc *godog.ScenarioContext) {
	w := &routingWorld{}

	sc.Step(`^an empty ledger$`, w.anEmptyLedger)
	sc.Step(`^a parsed receipt "([^"]*)" with content hash "([^"]*)":$`, w.aParsedReceipt)
	sc.Step(`^the receipt is routed$`, w.theReceiptIsRouted)
	sc.Step(`^the outcome is "([^"]*)"$`, w.theOutcomeIs)
	sc.Step(`^the route reason is "([^"]*)"$`, w.theRouteReasonIs)
	sc.Step(`^the review notes include "([^"]*)"$`, w.theReviewNotesInclude)
	sc.Step(`^the normalized (subtotal|tax|total) is ([0-9]+\.[0-9]{2})$`, w.theNormalizedAmountIs)
	sc.Step(`^the ledger for "([^"]*)" has (\d+) rows?$`, w.theLedgerHasRows)
	sc.Step(`^the aggregate for "([^"]*)" counts (\d+) valid of (\d+) receipts$`, w.theAggregateCounts)
}

func TestRoutingFeatures(t *testing.T) {
	suite := godog.TestSuite{
		Name:                "routing",
		ScenarioInitializer: initializeRoutingScenario,
		Options: &godog.Options{
			Format:   "pretty",
			Paths:    []string{"features"},
			Strict:   true,
			TestingT: t,
		},
	}
	if suite.Run() != 0 {
		t.Fatal("routing features failed")
	}
}
