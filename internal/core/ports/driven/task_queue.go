package driven

import (
	"context"

	"github.com/custodia-labs/receiptflow/internal/core/domain"
)

// TaskQueue moves pipeline events between stages with at-least-once
// delivery. A stage handler may therefore see the same event twice, which is
// why every stage past ingress is keyed on the receipt's dedupe key.
//
// Task IDs are the queue's own idempotency key: enqueuing an ID the queue
// already holds, in any status, leaves the stored task as it is.
type TaskQueue interface {
	Enqueue(ctx context.Context, task *domain.Task) error
	EnqueueBatch(ctx context.Context, tasks []*domain.Task) error

	// Dequeue claims the highest priority ready task, or returns nil, nil.
	Dequeue(ctx context.Context) (*domain.Task, error)
	// DequeueWithTimeout is Dequeue that waits up to timeout seconds.
	DequeueWithTimeout(ctx context.Context, timeout int) (*domain.Task, error)

	// Ack marks a claimed task completed.
	Ack(ctx context.Context, taskID string) error
	// Nack records reason and makes the task ready again after a backoff,
	// or marks it failed once MaxAttempts is spent. Unknown IDs return
	// domain.ErrNotFound.
	Nack(ctx context.Context, taskID string, reason string) error

	GetTask(ctx context.Context, taskID string) (*domain.Task, error)
	Stats(ctx context.Context) (*QueueStats, error)

	Ping(ctx context.Context) error
	Close() error
}

// QueueStats counts tasks per status.
type QueueStats struct {
	PendingCount    int64 `json:"pending_count"`
	ProcessingCount int64 `json:"processing_count"`
	CompletedCount  int64 `json:"completed_count"`
	FailedCount     int64 `json:"failed_count"`
}
