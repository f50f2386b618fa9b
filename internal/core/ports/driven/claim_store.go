package driven

import "context"

// ClaimStore is the create-once key space behind the dedup lock.
// Keys are never released or overwritten.
type ClaimStore interface {
	// CreateIfAbsent atomically records key. created is true only for the
	// first caller ever to record it, including under concurrent callers in
	// different processes.
	CreateIfAbsent(ctx context.Context, key string) (created bool, err error)

	// Ping checks if the store is reachable.
	Ping(ctx context.Context) error
}
