// Package postgres is a TaskQueue on the pipeline_tasks table, for
// deployments that run PostgreSQL but not Redis.
package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/custodia-labs/receiptflow/internal/core/domain"
	"github.com/custodia-labs/receiptflow/internal/core/ports/driven"
)

// Ensure Queue implements TaskQueue
var _ driven.TaskQueue = (*Queue)(nil)

const (
	// DefaultStaleAfter is how long a task may stay in processing before
	// another worker takes it over.
	DefaultStaleAfter = 10 * time.Minute

	pollEvery = 500 * time.Millisecond
)

// Queue hands out tasks with FOR UPDATE SKIP LOCKED, so concurrent workers
// never receive the same row. A task whose worker died mid-run is handed out
// again once it has been processing for longer than StaleAfter.
type Queue struct {
	db         *sql.DB
	staleAfter time.Duration
}

// NewQueue creates a queue on an already migrated database.
func NewQueue(db *sql.DB) *Queue {
	return &Queue{db: db, staleAfter: DefaultStaleAfter}
}

// WithStaleAfter overrides the processing timeout.
func (q *Queue) WithStaleAfter(d time.Duration) *Queue {
	if d > 0 {
		q.staleAfter = d
	}
	return q
}

const taskColumns = `id, type, payload, status, priority, attempts, max_attempts,
	error, created_at, updated_at, started_at, completed_at, scheduled_for`

// Keyed stage tasks are redelivered with the same ID; the conflict clause
// drops the copy.
const insertTaskSQL = `
	INSERT INTO pipeline_tasks (id, type, payload, status, priority,
		attempts, max_attempts, error, created_at, updated_at, scheduled_for)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	ON CONFLICT (id) DO NOTHING`

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func insert(ctx context.Context, db execer, task *domain.Task) error {
	payload := []byte(task.Payload)
	if len(payload) == 0 {
		payload = []byte("{}")
	}
	_, err := db.ExecContext(ctx, insertTaskSQL,
		task.ID, task.Type, payload, task.Status, task.Priority,
		task.Attempts, task.MaxAttempts, task.Error,
		task.CreatedAt, task.UpdatedAt, task.ScheduledFor,
	)
	if err != nil {
		return fmt.Errorf("insert task %s: %w", task.ID, err)
	}
	return nil
}

// Enqueue stores a task. An existing ID is left untouched.
func (q *Queue) Enqueue(ctx context.Context, task *domain.Task) error {
	return insert(ctx, q.db, task)
}

// EnqueueBatch stores all tasks in one transaction.
func (q *Queue) EnqueueBatch(ctx context.Context, tasks []*domain.Task) error {
	if len(tasks) == 0 {
		return nil
	}
	tx, err := q.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	for _, task := range tasks {
		if err := insert(ctx, tx, task); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// claimSQL picks the best ready task (or a stale one) and marks it
// processing in a single statement.
const claimSQL = `
	UPDATE pipeline_tasks
	SET status = 'processing',
	    started_at = NOW(),
	    updated_at = NOW(),
	    attempts = attempts + 1
	WHERE id = (
		SELECT id FROM pipeline_tasks
		WHERE (status = 'pending' AND scheduled_for <= NOW())
		   OR (status = 'processing' AND started_at < NOW() - make_interval(secs => $1))
		ORDER BY priority DESC, created_at ASC
		LIMIT 1
		FOR UPDATE SKIP LOCKED
	)
	RETURNING ` + taskColumns

// Dequeue claims the next ready task, or returns nil when there is none.
func (q *Queue) Dequeue(ctx context.Context) (*domain.Task, error) {
	task, err := scanTask(q.db.QueryRowContext(ctx, claimSQL, q.staleAfter.Seconds()))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("claim task: %w", err)
	}
	return task, nil
}

// DequeueWithTimeout polls for a task until timeout seconds have passed.
func (q *Queue) DequeueWithTimeout(ctx context.Context, timeout int) (*domain.Task, error) {
	deadline := time.Now().Add(time.Duration(timeout) * time.Second)
	ticker := time.NewTicker(pollEvery)
	defer ticker.Stop()

	for {
		task, err := q.Dequeue(ctx)
		if task != nil || err != nil {
			return task, err
		}
		if !time.Now().Before(deadline) {
			return nil, nil
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}

// Ack marks a task completed.
func (q *Queue) Ack(ctx context.Context, taskID string) error {
	res, err := q.db.ExecContext(ctx, `
		UPDATE pipeline_tasks
		SET status = 'completed', completed_at = NOW(), updated_at = NOW(), error = ''
		WHERE id = $1`, taskID)
	return affectedOne(res, err)
}

// Nack records the failure and either reschedules the task with
// the same backoff as domain.Backoff or, once attempts are
// used up, marks it failed.
func (q *Queue) Nack(ctx context.Context, taskID string, reason string) error {
	res, err := q.db.ExecContext(ctx, `
		UPDATE pipeline_tasks
		SET error = $2,
		    updated_at = NOW(),
		    status = CASE WHEN attempts < max_attempts THEN 'pending' ELSE 'failed' END,
		    scheduled_for = CASE WHEN attempts < max_attempts
		        THEN NOW() + make_interval(secs => LEAST(power(2, attempts), $3))
		        ELSE scheduled_for END
		WHERE id = $1`, taskID, reason, domain.MaxBackoff.Seconds())
	return affectedOne(res, err)
}

func affectedOne(res sql.Result, err error) error {
	if err != nil {
		return fmt.Errorf("update task: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// GetTask loads one task.
func (q *Queue) GetTask(ctx context.Context, taskID string) (*domain.Task, error) {
	task, err := scanTask(q.db.QueryRowContext(ctx,
		`SELECT `+taskColumns+` FROM pipeline_tasks WHERE id = $1`, taskID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query task: %w", err)
	}
	return task, nil
}

// Stats counts tasks per status.
func (q *Queue) Stats(ctx context.Context) (*driven.QueueStats, error) {
	var stats driven.QueueStats
	err := q.db.QueryRowContext(ctx, `
		SELECT
			COUNT(*) FILTER (WHERE status = 'pending'),
			COUNT(*) FILTER (WHERE status = 'processing'),
			COUNT(*) FILTER (WHERE status = 'completed'),
			COUNT(*) FILTER (WHERE status = 'failed')
		FROM pipeline_tasks`).Scan(
		&stats.PendingCount,
		&stats.ProcessingCount,
		&stats.CompletedCount,
		&stats.FailedCount,
	)
	if err != nil {
		return nil, fmt.Errorf("query stats: %w", err)
	}
	return &stats, nil
}

// Ping checks database connectivity.
func (q *Queue) Ping(ctx context.Context) error {
	return q.db.PingContext(ctx)
}

// Close does nothing; the connection pool belongs to the caller.
func (q *Queue) Close() error {
	return nil
}

func scanTask(row *sql.Row) (*domain.Task, error) {
	var (
		task                   domain.Task
		payload                []byte
		startedAt, completedAt sql.NullTime
	)
	err := row.Scan(
		&task.ID, &task.Type, &payload, &task.Status, &task.Priority,
		&task.Attempts, &task.MaxAttempts, &task.Error,
		&task.CreatedAt, &task.UpdatedAt, &startedAt, &completedAt, &task.ScheduledFor,
	)
	if err != nil {
		return nil, err
	}
	task.Payload = json.RawMessage(payload)
	if startedAt.Valid {
		task.StartedAt = &startedAt.Time
	}
	if completedAt.Valid {
		task.CompletedAt = &completedAt.Time
	}
	return &task, nil
}
