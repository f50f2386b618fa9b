package mocks

import (
	"context"
	"sync"

	"github.com/custodia-labs/receiptflow/internal/core/domain"
	"github.com/custodia-labs/receiptflow/internal/core/ports/driven"
)

var _ driven.TaskQueue = (*MockTaskQueue)(nil)

// MockTaskQueue records enqueued tasks. Tasks with a known ID are ignored,
// like the real queues.
type MockTaskQueue struct {
	mu    sync.Mutex
	tasks []*domain.Task
	ids   map[string]bool

	EnqueueFn func(task *domain.Task) error
}

// NewMockTaskQueue creates an empty queue.
func NewMockTaskQueue() *MockTaskQueue {
	return &MockTaskQueue{ids: make(map[string]bool)}
}

// Enqueue records task.
func (m *MockTaskQueue) Enqueue(ctx context.Context, task *domain.Task) error {
	if m.EnqueueFn != nil {
		if err := m.EnqueueFn(task); err != nil {
			return err
		}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.ids[task.ID] {
		return nil
	}
	m.ids[task.ID] = true
	m.tasks = append(m.tasks, task)
	return nil
}

// EnqueueBatch records every task, stopping at the first error.
func (m *MockTaskQueue) EnqueueBatch(ctx context.Context, tasks []*domain.Task) error {
	for _, t := range tasks {
		if err := m.Enqueue(ctx, t); err != nil {
			return err
		}
	}
	return nil
}

// Dequeue is not supported by the mock.
func (m *MockTaskQueue) Dequeue(ctx context.Context) (*domain.Task, error) { return nil, nil }

// DequeueWithTimeout is not supported by the mock.
func (m *MockTaskQueue) DequeueWithTimeout(ctx context.Context, timeout int) (*domain.Task, error) {
	return nil, nil
}

// Ack is a no-op.
func (m *MockTaskQueue) Ack(ctx context.Context, taskID string) error { return nil }

// Nack is a no-op.
func (m *MockTaskQueue) Nack(ctx context.Context, taskID string, reason string) error { return nil }

// GetTask returns a recorded task.
func (m *MockTaskQueue) GetTask(ctx context.Context, taskID string) (*domain.Task, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, t := range m.tasks {
		if t.ID == taskID {
			return t, nil
		}
	}
	return nil, domain.ErrNotFound
}

// Stats reports every recorded task as pending.
func (m *MockTaskQueue) Stats(ctx context.Context) (*driven.QueueStats, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return &driven.QueueStats{PendingCount: int64(len(m.tasks))}, nil
}

// Ping always succeeds.
func (m *MockTaskQueue) Ping(ctx context.Context) error { return nil }

// Close is a no-op.
func (m *MockTaskQueue) Close() error { return nil }

// Tasks returns the recorded tasks of a type, or all tasks when taskType is
// empty.
func (m *MockTaskQueue) Tasks(taskType domain.TaskType) []*domain.Task {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*domain.Task
	for _, t := range m.tasks {
		if taskType == "" || t.Type == taskType {
			out = append(out, t)
		}
	}
	return out
}
