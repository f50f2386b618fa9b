package domain

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// taskNamespace seeds deterministic task IDs derived from idempotency keys.
var taskNamespace = uuid.MustParse("6f1c7b52-4c0e-4a55-9d8e-2b5e1f0a9c3d")

// GenerateID creates a unique random ID.
func GenerateID() string {
	return uuid.NewString()
}

// DeterministicID derives a stable ID from an idempotency key, so the same
// upstream delivery always maps to the same task.
func DeterministicID(key string) string {
	return uuid.NewSHA1(taskNamespace, []byte(key)).String()
}

// TaskType identifies the pipeline stage a task feeds.
type TaskType string

const (
	// TaskTypePoll lists a source folder and announces new files
	TaskTypePoll TaskType = "poll"
	// TaskTypeReceiptNew carries a discovered file to text extraction
	TaskTypeReceiptNew TaskType = "receipts.new"
	// TaskTypeReceiptText carries extracted text to the parser
	TaskTypeReceiptText TaskType = "receipts.text"
	// TaskTypeReceiptParsed carries the model output to the validator
	TaskTypeReceiptParsed TaskType = "receipts.parsed"
	// TaskTypeReceiptValid carries a trusted receipt to the ledger
	TaskTypeReceiptValid TaskType = "receipts.valid"
	// TaskTypeReceiptReview carries a receipt that needs a human look
	TaskTypeReceiptReview TaskType = "receipts.review"
	// TaskTypeReceiptDuplicate records a receipt that was already claimed
	TaskTypeReceiptDuplicate TaskType = "receipts.duplicate"
	// TaskTypeAggregate recomputes one period's aggregate
	TaskTypeAggregate TaskType = "aggregate"
)

// TaskStatus represents the current state of a task
type TaskStatus string

const (
	TaskStatusPending    TaskStatus = "pending"
	TaskStatusProcessing TaskStatus = "processing"
	TaskStatusCompleted  TaskStatus = "completed"
	TaskStatusFailed     TaskStatus = "failed"
)

// Task represents a pipeline message waiting for a worker
type Task struct {
	// ID is the unique identifier for this task
	ID string `json:"id"`

	// Type identifies which stage consumes this task
	Type TaskType `json:"type"`

	// Payload is the stage event encoded as JSON
	Payload json.RawMessage `json:"payload"`

	// Status is the current state of the task
	Status TaskStatus `json:"status"`

	// Priority determines processing order (higher = more urgent)
	Priority int `json:"priority"`

	// Attempts is how many times this task has been attempted
	Attempts int `json:"attempts"`

	// MaxAttempts is the maximum retry count before giving up
	MaxAttempts int `json:"max_attempts"`

	// Error contains the last error message if failed
	Error string `json:"error,omitempty"`

	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`

	// ScheduledFor is when the task should be processed (for delayed tasks)
	ScheduledFor time.Time `json:"scheduled_for"`
}

// NewTask creates a new task carrying payload encoded as JSON
func NewTask(taskType TaskType, payload any) (*Task, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encode %s payload: %w", taskType, err)
	}
	now := time.Now()
	return &Task{
		ID:           GenerateID(),
		Type:         taskType,
		Payload:      raw,
		Status:       TaskStatusPending,
		MaxAttempts:  3,
		CreatedAt:    now,
		UpdatedAt:    now,
		ScheduledFor: now,
	}, nil
}

// NewKeyedTask creates a task whose ID is derived from an idempotency key.
func NewKeyedTask(taskType TaskType, key string, payload any) (*Task, error) {
	task, err := NewTask(taskType, payload)
	if err != nil {
		return nil, err
	}
	task.ID = DeterministicID(string(taskType) + ":" + key)
	return task, nil
}

// NewPollTask creates a task that polls one source folder
func NewPollTask(sourceID, folderID string) *Task {
	task, _ := NewTask(TaskTypePoll, PollRequest{SourceID: sourceID, FolderID: folderID})
	return task
}

// NewAggregateTask creates a task that recomputes one period
func NewAggregateTask(period string) *Task {
	task, _ := NewTask(TaskTypeAggregate, AggregateRequest{Period: period})
	return task
}

// Decode unmarshals the payload into v.
func (t *Task) Decode(v any) error {
	if len(t.Payload) == 0 {
		return fmt.Errorf("%s task %s: empty payload: %w", t.Type, t.ID, ErrInvalidInput)
	}
	if err := json.Unmarshal(t.Payload, v); err != nil {
		return fmt.Errorf("%s task %s: %w: %v", t.Type, t.ID, ErrInvalidInput, err)
	}
	return nil
}

// MaxBackoff caps the delay between two attempts of one task.
const MaxBackoff = 5 * time.Minute

// Backoff is the wait before the next try of a task that has been attempted
// attempts times: 1s, 2s, 4s and so on up to MaxBackoff.
func Backoff(attempts int) time.Duration {
	if attempts < 0 {
		attempts = 0
	}
	if attempts >= 9 {
		return MaxBackoff
	}
	return min(time.Duration(1<<attempts)*time.Second, MaxBackoff)
}

// CanRetry reports whether a failed attempt should be retried.
func (t *Task) CanRetry() bool {
	return t.Attempts < t.MaxAttempts
}

// ReadyAt reports whether a pending task may be handed out at now.
func (t *Task) ReadyAt(now time.Time) bool {
	return t.Status == TaskStatusPending && !now.Before(t.ScheduledFor)
}

func (t *Task) moveTo(status TaskStatus, reason string) time.Time {
	now := time.Now()
	t.Status = status
	t.Error = reason
	t.UpdatedAt = now
	return now
}

// MarkProcessing counts an attempt. The previous error is kept until the
// attempt settles.
func (t *Task) MarkProcessing() {
	now := t.moveTo(TaskStatusProcessing, t.Error)
	t.StartedAt = &now
	t.Attempts++
}

func (t *Task) MarkCompleted() {
	now := t.moveTo(TaskStatusCompleted, "")
	t.CompletedAt = &now
}

func (t *Task) MarkFailed(reason string) {
	t.moveTo(TaskStatusFailed, reason)
}

// Retry puts the task back to pending, due after Backoff(Attempts).
func (t *Task) Retry(reason string) {
	now := t.moveTo(TaskStatusPending, reason)
	t.ScheduledFor = now.Add(Backoff(t.Attempts))
}

// PollRequest is the payload of a poll task
type PollRequest struct {
	SourceID string `json:"sourceId"`
	FolderID string `json:"folderId"`
}

// AggregateRequest is the payload of an aggregate task
type AggregateRequest struct {
	Period string `json:"period"`
}

// ScheduledPoll is a recurring poll of one source folder
type ScheduledPoll struct {
	SourceID string        `json:"source_id"`
	FolderID string        `json:"folder_id"`
	Interval time.Duration `json:"interval"`
	Enabled  bool          `json:"enabled"`

	LastRun   *time.Time `json:"last_run,omitempty"`
	NextRun   time.Time  `json:"next_run"`
	LastError string     `json:"last_error,omitempty"`
}

// NewScheduledPoll creates a schedule that first fires immediately
func NewScheduledPoll(sourceID, folderID string, interval time.Duration) *ScheduledPoll {
	return &ScheduledPoll{
		SourceID: sourceID,
		FolderID: folderID,
		Interval: interval,
		Enabled:  true,
		NextRun:  time.Now(),
	}
}

// IsDue returns true if the poll should be triggered at now
func (s *ScheduledPoll) IsDue(now time.Time) bool {
	return s.Enabled && !now.Before(s.NextRun)
}

// UpdateNextRun records a run at now and schedules the next one
func (s *ScheduledPoll) UpdateNextRun(now time.Time, lastError string) {
	s.LastRun = &now
	s.NextRun = now.Add(s.Interval)
	s.LastError = lastError
}
