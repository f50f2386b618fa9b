package domain

// ClaimResult is the outcome of a create-once claim on a dedupe key.
type ClaimResult int

const (
	// ClaimClaimed means this caller is the first ever to claim the key
	ClaimClaimed ClaimResult = iota
	// ClaimAlreadyClaimed means another caller got there first
	ClaimAlreadyClaimed
	// ClaimUnavailable means the store could not be reached; callers fail open
	ClaimUnavailable
)

func (c ClaimResult) String() string {
	switch c {
	case ClaimClaimed:
		return "claimed"
	case ClaimAlreadyClaimed:
		return "already_claimed"
	default:
		return "unavailable"
	}
}

// RouteKind is the terminal classification of a parsed receipt.
type RouteKind string

const (
	RouteValid     RouteKind = "valid"
	RouteReview    RouteKind = "review"
	RouteDuplicate RouteKind = "duplicate"
)

// TaskType returns the stage that consumes this outcome.
func (k RouteKind) TaskType() TaskType {
	switch k {
	case RouteValid:
		return TaskTypeReceiptValid
	case RouteDuplicate:
		return TaskTypeReceiptDuplicate
	default:
		return TaskTypeReceiptReview
	}
}

// RouteOutcome is what the router decided for one parsed event.
type RouteOutcome struct {
	Kind      RouteKind
	Reason    string
	Receipt   *NormalizedReceipt
	Notes     []ReviewNote
	Rows      []LedgerRow
	DedupeKey string
	Claim     ClaimResult
	Period    string
}
