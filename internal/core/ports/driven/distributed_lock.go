package driven

import (
	"context"
	"time"
)

// DistributedLock hands out named leases shared by every instance. The
// scheduler takes one per source before enqueuing its poll.
//
// A lease ends at Release or when its TTL runs out, whichever comes first.
// Release of a lease the caller does not hold is a no-op; Extend of one
// returns domain.ErrLockNotHeld.
type DistributedLock interface {
	// Acquire reports false, nil when another instance holds name.
	Acquire(ctx context.Context, name string, ttl time.Duration) (acquired bool, err error)
	Release(ctx context.Context, name string) error
	Extend(ctx context.Context, name string, ttl time.Duration) error
	Ping(ctx context.Context) error
}
