package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/custodia-labs/receiptflow/internal/core/domain"
	"github.com/custodia-labs/receiptflow/internal/core/ports/driven"
)

var _ driven.TaskQueue = (*Queue)(nil)

// Queue is a single-process task queue.
type Queue struct {
	mu     sync.Mutex
	tasks  map[string]*domain.Task
	order  []string
	notify chan struct{}
	closed bool
}

// NewQueue creates an empty queue.
func NewQueue() *Queue {
	return &Queue{
		tasks:  make(map[string]*domain.Task),
		notify: make(chan struct{}, 1),
	}
}

// Enqueue adds a task. A task whose ID is already known is ignored.
func (q *Queue) Enqueue(_ context.Context, task *domain.Task) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.add(task)
	return nil
}

// EnqueueBatch adds several tasks.
func (q *Queue) EnqueueBatch(_ context.Context, tasks []*domain.Task) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	for _, t := range tasks {
		q.add(t)
	}
	return nil
}

func (q *Queue) add(task *domain.Task) {
	if _, exists := q.tasks[task.ID]; exists {
		return
	}
	cp := *task
	q.tasks[task.ID] = &cp
	q.order = append(q.order, task.ID)
	select {
	case q.notify <- struct{}{}:
	default:
	}
}

// Dequeue returns the highest-priority ready task, or nil.
func (q *Queue) Dequeue(_ context.Context) (*domain.Task, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	now := time.Now()
	var ready []*domain.Task
	for _, id := range q.order {
		if t := q.tasks[id]; t.ReadyAt(now) {
			ready = append(ready, t)
		}
	}
	if len(ready) == 0 {
		return nil, nil
	}
	sort.SliceStable(ready, func(i, j int) bool { return ready[i].Priority > ready[j].Priority })
	t := ready[0]
	t.MarkProcessing()
	cp := *t
	return &cp, nil
}

// DequeueWithTimeout waits up to timeout seconds for a ready task.
func (q *Queue) DequeueWithTimeout(ctx context.Context, timeout int) (*domain.Task, error) {
	deadline := time.NewTimer(time.Duration(timeout) * time.Second)
	defer deadline.Stop()
	tick := time.NewTicker(100 * time.Millisecond)
	defer tick.Stop()

	for {
		task, err := q.Dequeue(ctx)
		if task != nil || err != nil {
			return task, err
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-deadline.C:
			return nil, nil
		case <-q.notify:
		case <-tick.C:
		}
	}
}

// Ack marks a task completed.
func (q *Queue) Ack(_ context.Context, taskID string) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	t, ok := q.tasks[taskID]
	if !ok {
		return domain.ErrNotFound
	}
	t.MarkCompleted()
	return nil
}

// Nack schedules a retry, or fails the task once attempts run out.
func (q *Queue) Nack(_ context.Context, taskID string, reason string) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	t, ok := q.tasks[taskID]
	if !ok {
		return domain.ErrNotFound
	}
	if t.CanRetry() {
		t.Retry(reason)
	} else {
		t.MarkFailed(reason)
	}
	return nil
}

// GetTask returns a copy of a task.
func (q *Queue) GetTask(_ context.Context, taskID string) (*domain.Task, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	t, ok := q.tasks[taskID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *t
	return &cp, nil
}

// Tasks returns copies of every task of a type, in enqueue order.
func (q *Queue) Tasks(taskType domain.TaskType) []*domain.Task {
	q.mu.Lock()
	defer q.mu.Unlock()
	var out []*domain.Task
	for _, id := range q.order {
		if t := q.tasks[id]; t.Type == taskType {
			cp := *t
			out = append(out, &cp)
		}
	}
	return out
}

// Stats counts tasks by status.
func (q *Queue) Stats(_ context.Context) (*driven.QueueStats, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	stats := &driven.QueueStats{}
	for _, t := range q.tasks {
		switch t.Status {
		case domain.TaskStatusPending:
			stats.PendingCount++
		case domain.TaskStatusProcessing:
			stats.ProcessingCount++
		case domain.TaskStatusCompleted:
			stats.CompletedCount++
		case domain.TaskStatusFailed:
			stats.FailedCount++
		}
	}
	return stats, nil
}

// Ping always succeeds.
func (q *Queue) Ping(context.Context) error { return nil }

// Close is a no-op.
func (q *Queue) Close() error {
	q.mu.Lock()
	q.closed = true
	q.mu.Unlock()
	return nil
}
