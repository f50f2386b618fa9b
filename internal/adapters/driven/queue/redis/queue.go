// Package redis is a TaskQueue on Redis Streams.
//
// Each task lives in a hash (the JSON record plus the ID of the stream
// message currently carrying it). The stream only ever holds task IDs, so a
// redelivered keyed task is recognised by its hash before anything is
// published. Retries wait in a sorted set scored by their due time.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/custodia-labs/receiptflow/internal/core/domain"
	"github.com/custodia-labs/receiptflow/internal/core/ports/driven"
)

var _ driven.TaskQueue = (*Queue)(nil)

const (
	DefaultPrefix     = "receiptflow"
	DefaultClaimAfter = 5 * time.Minute
	DefaultRecordTTL  = 24 * time.Hour

	fieldTask = "task"
	fieldMsg  = "msg"
)

type keys struct {
	stream  string
	group   string
	delayed string
	counts  string
	task    string
}

func newKeys(prefix string) keys {
	return keys{
		stream:  prefix + ":tasks",
		group:   prefix + ":workers",
		delayed: prefix + ":delayed",
		counts:  prefix + ":task-counts",
		task:    prefix + ":task:",
	}
}

func (k keys) record(id string) string { return k.task + id }

// Queue is safe for concurrent use. Every worker process needs its own
// consumer name; the group spreads messages across consumers.
type Queue struct {
	client     redis.UniversalClient
	consumer   string
	keys       keys
	claimAfter time.Duration
	recordTTL  time.Duration
}

// Option tunes a Queue.
type Option func(*Queue)

// WithPrefix namespaces every key, so several pipelines can share a Redis.
func WithPrefix(prefix string) Option {
	return func(q *Queue) {
		if prefix != "" {
			q.keys = newKeys(prefix)
		}
	}
}

// WithClaimAfter sets how long a delivered task may stay unacked before
// another consumer takes it over.
func WithClaimAfter(d time.Duration) Option {
	return func(q *Queue) {
		if d > 0 {
			q.claimAfter = d
		}
	}
}

// WithRecordTTL bounds how long task records, and with them task ID
// deduplication, are kept.
func WithRecordTTL(d time.Duration) Option {
	return func(q *Queue) {
		if d > 0 {
			q.recordTTL = d
		}
	}
}

// NewQueue joins (creating if needed) the consumer group. An empty consumer
// name is replaced by one derived from the host and pid.
func NewQueue(ctx context.Context, client redis.UniversalClient, consumer string, opts ...Option) (*Queue, error) {
	if client == nil {
		return nil, errors.New("redis queue: client is required")
	}
	if consumer == "" {
		host, _ := os.Hostname()
		consumer = fmt.Sprintf("%s-%d", host, os.Getpid())
	}
	q := &Queue{
		client:     client,
		consumer:   consumer,
		keys:       newKeys(DefaultPrefix),
		claimAfter: DefaultClaimAfter,
		recordTTL:  DefaultRecordTTL,
	}
	for _, opt := range opts {
		opt(q)
	}

	err := client.XGroupCreateMkStream(ctx, q.keys.stream, q.keys.group, "0").Err()
	if err != nil && !strings.HasPrefix(err.Error(), "BUSYGROUP") {
		return nil, fmt.Errorf("create consumer group: %w", err)
	}
	return q, nil
}

// Enqueue creates the record and publishes the ID. A task whose record
// already exists is left alone, whatever its status.
func (q *Queue) Enqueue(ctx context.Context, task *domain.Task) error {
	if task == nil {
		return errors.New("redis queue: nil task")
	}
	data, err := json.Marshal(task)
	if err != nil {
		return fmt.Errorf("encode task %s: %w", task.ID, err)
	}

	key := q.keys.record(task.ID)
	created, err := q.client.HSetNX(ctx, key, fieldTask, data).Result()
	if err != nil {
		return fmt.Errorf("store task %s: %w", task.ID, err)
	}
	if !created {
		return nil
	}

	pipe := q.client.TxPipeline()
	pipe.Expire(ctx, key, q.recordTTL)
	q.publish(ctx, pipe, task)
	if _, err := pipe.Exec(ctx); err != nil {
		q.client.Del(ctx, key)
		return fmt.Errorf("publish task %s: %w", task.ID, err)
	}
	return nil
}

// EnqueueBatch enqueues in order and stops at the first failure.
func (q *Queue) EnqueueBatch(ctx context.Context, tasks []*domain.Task) error {
	for _, task := range tasks {
		if task == nil {
			continue
		}
		if err := q.Enqueue(ctx, task); err != nil {
			return err
		}
	}
	return nil
}

func (q *Queue) publish(ctx context.Context, pipe redis.Pipeliner, task *domain.Task) {
	if task.ScheduledFor.After(time.Now()) {
		pipe.ZAdd(ctx, q.keys.delayed, redis.Z{Score: float64(task.ScheduledFor.Unix()), Member: task.ID})
		return
	}
	pipe.XAdd(ctx, &redis.XAddArgs{
		Stream: q.keys.stream,
		Values: map[string]any{"id": task.ID, "type": string(task.Type)},
	})
}

// Dequeue waits until a task arrives or ctx ends.
func (q *Queue) Dequeue(ctx context.Context) (*domain.Task, error) {
	return q.DequeueWithTimeout(ctx, 0)
}

// DequeueWithTimeout first promotes due retries and takes over abandoned
// deliveries, then reads one new message, blocking up to timeout seconds.
func (q *Queue) DequeueWithTimeout(ctx context.Context, timeout int) (*domain.Task, error) {
	if err := q.promote(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return nil, fmt.Errorf("promote delayed tasks: %w", err)
	}
	if task := q.reclaim(ctx); task != nil {
		return task, nil
	}

	res, err := q.client.XReadGroup(ctx, &redis.XReadGroupArgs{
		Group:    q.keys.group,
		Consumer: q.consumer,
		Streams:  []string{q.keys.stream, ">"},
		Count:    1,
		Block:    time.Duration(timeout) * time.Second,
	}).Result()
	switch {
	case errors.Is(err, redis.Nil), errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return nil, nil
	case err != nil:
		return nil, fmt.Errorf("read stream: %w", err)
	}
	if len(res) == 0 || len(res[0].Messages) == 0 {
		return nil, nil
	}
	return q.start(ctx, res[0].Messages[0])
}

// promoteScript moves every due member of the delay set to the stream in
// one step, so two consumers never publish the same retry.
var promoteScript = redis.NewScript(`
local due = redis.call("ZRANGEBYSCORE", KEYS[1], "-inf", ARGV[1])
for _, id in ipairs(due) do
	redis.call("ZREM", KEYS[1], id)
	redis.call("XADD", KEYS[2], "*", "id", id)
end
return #due`)

func (q *Queue) promote(ctx context.Context) error {
	now := strconv.FormatInt(time.Now().Unix(), 10)
	return promoteScript.Run(ctx, q.client, []string{q.keys.delayed, q.keys.stream}, now).Err()
}

// reclaim takes one delivery that has been idle longer than claimAfter.
func (q *Queue) reclaim(ctx context.Context) *domain.Task {
	msgs, _, err := q.client.XAutoClaim(ctx, &redis.XAutoClaimArgs{
		Stream:   q.keys.stream,
		Group:    q.keys.group,
		Consumer: q.consumer,
		MinIdle:  q.claimAfter,
		Start:    "0-0",
		Count:    1,
	}).Result()
	if err != nil || len(msgs) == 0 {
		return nil
	}
	task, err := q.start(ctx, msgs[0])
	if err != nil {
		return nil
	}
	return task
}

// start marks the task behind msg processing. A message whose record has
// expired is dropped.
func (q *Queue) start(ctx context.Context, msg redis.XMessage) (*domain.Task, error) {
	id, _ := msg.Values["id"].(string)
	task, err := q.GetTask(ctx, id)
	if id == "" || errors.Is(err, domain.ErrNotFound) {
		q.settle(ctx, q.client, msg.ID)
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	task.MarkProcessing()
	if err := q.save(ctx, q.client, task, msg.ID); err != nil {
		return nil, fmt.Errorf("mark task %s processing: %w", task.ID, err)
	}
	return task, nil
}

func (q *Queue) save(ctx context.Context, c redis.Cmdable, task *domain.Task, msgID string) error {
	data, err := json.Marshal(task)
	if err != nil {
		return err
	}
	return c.HSet(ctx, q.keys.record(task.ID), fieldTask, data, fieldMsg, msgID).Err()
}

func (q *Queue) settle(ctx context.Context, c redis.Cmdable, msgID string) {
	if msgID == "" {
		return
	}
	c.XAck(ctx, q.keys.stream, q.keys.group, msgID)
	c.XDel(ctx, q.keys.stream, msgID)
}

// finish applies a terminal or retry transition and releases the stream
// message in one transaction.
func (q *Queue) finish(ctx context.Context, taskID string, apply func(*domain.Task) (counter string, delay bool)) error {
	task, err := q.GetTask(ctx, taskID)
	if err != nil {
		return err
	}
	msgID, err := q.client.HGet(ctx, q.keys.record(taskID), fieldMsg).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("load delivery of %s: %w", taskID, err)
	}

	counter, delay := apply(task)

	pipe := q.client.TxPipeline()
	q.settle(ctx, pipe, msgID)
	if err := q.save(ctx, pipe, task, ""); err != nil {
		return fmt.Errorf("encode task %s: %w", taskID, err)
	}
	if delay {
		pipe.ZAdd(ctx, q.keys.delayed, redis.Z{Score: float64(task.ScheduledFor.Unix()), Member: task.ID})
	}
	if counter != "" {
		pipe.HIncrBy(ctx, q.keys.counts, counter, 1)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("update task %s: %w", taskID, err)
	}
	return nil
}

func (q *Queue) Ack(ctx context.Context, taskID string) error {
	return q.finish(ctx, taskID, func(t *domain.Task) (string, bool) {
		t.MarkCompleted()
		return string(domain.TaskStatusCompleted), false
	})
}

// Nack retries with the task's backoff, or fails it once attempts run out.
func (q *Queue) Nack(ctx context.Context, taskID string, reason string) error {
	return q.finish(ctx, taskID, func(t *domain.Task) (string, bool) {
		if t.CanRetry() {
			t.Retry(reason)
			return "", true
		}
		t.MarkFailed(reason)
		return string(domain.TaskStatusFailed), false
	})
}

func (q *Queue) GetTask(ctx context.Context, taskID string) (*domain.Task, error) {
	data, err := q.client.HGet(ctx, q.keys.record(taskID), fieldTask).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("task %s: %w", taskID, domain.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("load task %s: %w", taskID, err)
	}
	var task domain.Task
	if err := json.Unmarshal(data, &task); err != nil {
		return nil, fmt.Errorf("decode task %s: %w", taskID, err)
	}
	return &task, nil
}

// Stats reads pending and processing from the stream and the delay set.
// Completed and failed are running totals kept since the counts key was
// created; they are not reduced when records expire.
func (q *Queue) Stats(ctx context.Context) (*driven.QueueStats, error) {
	var stats driven.QueueStats

	pipe := q.client.Pipeline()
	streamLen := pipe.XLen(ctx, q.keys.stream)
	delayed := pipe.ZCard(ctx, q.keys.delayed)
	counts := pipe.HGetAll(ctx, q.keys.counts)
	pending := pipe.XPending(ctx, q.keys.stream, q.keys.group)
	if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, redis.Nil) && !strings.Contains(err.Error(), "NOGROUP") {
		return nil, fmt.Errorf("read queue stats: %w", err)
	}

	if p, err := pending.Result(); err == nil {
		stats.ProcessingCount = p.Count
	}
	stats.PendingCount = streamLen.Val() - stats.ProcessingCount + delayed.Val()
	if stats.PendingCount < 0 {
		stats.PendingCount = 0
	}
	for status, n := range counts.Val() {
		v, _ := strconv.ParseInt(n, 10, 64)
		switch domain.TaskStatus(status) {
		case domain.TaskStatusCompleted:
			stats.CompletedCount = v
		case domain.TaskStatusFailed:
			stats.FailedCount = v
		}
	}
	return &stats, nil
}

func (q *Queue) Ping(ctx context.Context) error {
	return q.client.Ping(ctx).Err()
}

// Close leaves the shared client open.
func (q *Queue) Close() error {
	return nil
}
