// Package worker drains the task queue and runs each task's pipeline stage.
package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/custodia-labs/receiptflow/internal/core/domain"
	"github.com/custodia-labs/receiptflow/internal/core/ports/driven"
	"github.com/custodia-labs/receiptflow/internal/core/services"
)

// Stage handlers, as the worker consumes them. The services package has the
// production implementations.
type (
	Poller interface {
		Poll(ctx context.Context, sourceID, folderID string) (*services.PollResult, error)
	}
	TextExtractor interface {
		Process(ctx context.Context, evt domain.DiscoveryEvent) (*domain.TextEvent, error)
	}
	Parser interface {
		Process(ctx context.Context, evt domain.TextEvent) (*domain.ParsedEvent, error)
	}
	Validator interface {
		Process(ctx context.Context, evt domain.ParsedEvent) (*domain.RouteOutcome, error)
	}
	LedgerWriter interface {
		Record(ctx context.Context, evt domain.RoutedEvent) (int, error)
		RecordDuplicate(ctx context.Context, evt domain.RoutedEvent)
	}
	Aggregator interface {
		Refresh(ctx context.Context, period string) (*domain.PeriodAggregate, error)
	}
)

// WorkerConfig wires a Worker. A nil stage fails its task types, which
// lets a deployment split stages across worker pools.
type WorkerConfig struct {
	TaskQueue driven.TaskQueue
	Scheduler *services.Scheduler
	Logger    *slog.Logger

	Poller     Poller
	Extractor  TextExtractor
	Parser     Parser
	Validator  Validator
	Ledger     LedgerWriter
	Aggregator Aggregator

	// Concurrency is the number of dequeue loops (default 1).
	Concurrency int
	// DequeueTimeout is how many seconds one dequeue blocks (default 5).
	DequeueTimeout int
}

type handler func(ctx context.Context, task *domain.Task) error

// Worker runs Concurrency loops, each taking one task at a time.
type Worker struct {
	taskQueue driven.TaskQueue
	scheduler *services.Scheduler
	logger    *slog.Logger
	handlers  map[domain.TaskType]handler

	concurrency    int
	dequeueTimeout int

	mu     sync.RWMutex
	cancel context.CancelFunc
	done   chan struct{}
}

func NewWorker(cfg WorkerConfig) *Worker {
	w := &Worker{
		taskQueue:      cfg.TaskQueue,
		scheduler:      cfg.Scheduler,
		logger:         cfg.Logger,
		concurrency:    max(cfg.Concurrency, 1),
		dequeueTimeout: cfg.DequeueTimeout,
	}
	if w.logger == nil {
		w.logger = slog.Default()
	}
	if w.dequeueTimeout <= 0 {
		w.dequeueTimeout = 5
	}
	w.handlers = w.buildHandlers(cfg)
	return w
}

// decoded adapts a typed stage to a handler, decoding the task payload
// into T first.
func decoded[T any](run func(context.Context, T) error) handler {
	return func(ctx context.Context, task *domain.Task) error {
		var v T
		if err := task.Decode(&v); err != nil {
			return err
		}
		return run(ctx, v)
	}
}

func missing(t domain.TaskType) handler {
	return func(context.Context, *domain.Task) error {
		return fmt.Errorf("no handler configured for %s", t)
	}
}

func (w *Worker) buildHandlers(cfg WorkerConfig) map[domain.TaskType]handler {
	h := map[domain.TaskType]handler{
		domain.TaskTypePoll:             missing(domain.TaskTypePoll),
		domain.TaskTypeReceiptNew:       missing(domain.TaskTypeReceiptNew),
		domain.TaskTypeReceiptText:      missing(domain.TaskTypeReceiptText),
		domain.TaskTypeReceiptParsed:    missing(domain.TaskTypeReceiptParsed),
		domain.TaskTypeReceiptValid:     missing(domain.TaskTypeReceiptValid),
		domain.TaskTypeReceiptReview:    missing(domain.TaskTypeReceiptReview),
		domain.TaskTypeReceiptDuplicate: missing(domain.TaskTypeReceiptDuplicate),
		domain.TaskTypeAggregate:        missing(domain.TaskTypeAggregate),
	}

	if p := cfg.Poller; p != nil {
		h[domain.TaskTypePoll] = decoded(func(ctx context.Context, req domain.PollRequest) error {
			if req.SourceID == "" {
				return fmt.Errorf("%w: poll task has no sourceId", domain.ErrInvalidInput)
			}
			res, err := p.Poll(ctx, req.SourceID, req.FolderID)
			if err != nil {
				return err
			}
			w.logger.Info("poll finished", "source_id", res.SourceID, "listed", res.Listed, "published", res.Published)
			return nil
		})
	}
	if x := cfg.Extractor; x != nil {
		h[domain.TaskTypeReceiptNew] = decoded(func(ctx context.Context, evt domain.DiscoveryEvent) error {
			_, err := x.Process(ctx, evt)
			return err
		})
	}
	if p := cfg.Parser; p != nil {
		h[domain.TaskTypeReceiptText] = decoded(func(ctx context.Context, evt domain.TextEvent) error {
			_, err := p.Process(ctx, evt)
			return err
		})
	}
	if v := cfg.Validator; v != nil {
		h[domain.TaskTypeReceiptParsed] = decoded(func(ctx context.Context, evt domain.ParsedEvent) error {
			_, err := v.Process(ctx, evt)
			return err
		})
	}
	if l := cfg.Ledger; l != nil {
		record := decoded(func(ctx context.Context, evt domain.RoutedEvent) error {
			_, err := l.Record(ctx, evt)
			return err
		})
		h[domain.TaskTypeReceiptValid] = record
		h[domain.TaskTypeReceiptReview] = record
		h[domain.TaskTypeReceiptDuplicate] = decoded(func(ctx context.Context, evt domain.RoutedEvent) error {
			l.RecordDuplicate(ctx, evt)
			return nil
		})
	}
	if a := cfg.Aggregator; a != nil {
		h[domain.TaskTypeAggregate] = decoded(func(ctx context.Context, req domain.AggregateRequest) error {
			_, err := a.Refresh(ctx, req.Period)
			return err
		})
	}
	return h
}

// Handle runs the stage for task without touching the queue.
func (w *Worker) Handle(ctx context.Context, task *domain.Task) error {
	h, ok := w.handlers[task.Type]
	if !ok {
		return fmt.Errorf("%w: %s", domain.ErrUnknownTaskType, task.Type)
	}
	return h(ctx, task)
}

// Start launches the dequeue loops and the scheduler, if any, and returns.
// Calling it on a running worker does nothing.
func (w *Worker) Start(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.cancel != nil {
		return nil
	}

	ctx, cancel := context.WithCancel(ctx)
	w.cancel = cancel
	w.done = make(chan struct{})

	w.logger.Info("worker starting", "concurrency", w.concurrency, "dequeue_timeout", w.dequeueTimeout)

	if w.scheduler != nil {
		if err := w.scheduler.Start(ctx); err != nil {
			w.logger.Error("scheduler did not start", "error", err)
		}
	}

	var g errgroup.Group
	for i := range w.concurrency {
		logger := w.logger.With("worker_id", i)
		g.Go(func() error {
			w.loop(ctx, logger)
			return nil
		})
	}
	go func(done chan struct{}) {
		_ = g.Wait()
		close(done)
	}(w.done)
	return nil
}

// Stop cancels the loops and waits for in-flight tasks to settle.
func (w *Worker) Stop() {
	w.mu.Lock()
	cancel, done := w.cancel, w.done
	w.cancel = nil
	w.mu.Unlock()

	if cancel == nil {
		return
	}
	if w.scheduler != nil {
		w.scheduler.Stop()
	}
	cancel()
	<-done
	w.logger.Info("worker stopped")
}

// Wait blocks until the loops have exited.
func (w *Worker) Wait() {
	w.mu.RLock()
	done := w.done
	w.mu.RUnlock()
	if done != nil {
		<-done
	}
}

const maxDequeueBackoff = 30 * time.Second

func (w *Worker) loop(ctx context.Context, logger *slog.Logger) {
	backoff := time.Second
	for ctx.Err() == nil {
		task, err := w.taskQueue.DequeueWithTimeout(ctx, w.dequeueTimeout)
		switch {
		case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
			continue
		case err != nil:
			logger.Error("dequeue failed", "error", err, "retry_in", backoff)
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
			}
			backoff = min(backoff*2, maxDequeueBackoff)
			continue
		}
		backoff = time.Second
		if task != nil {
			w.run(ctx, task, logger)
		}
	}
}

// run handles one task and settles it. Settling uses a context detached
// from cancellation so a task finished during shutdown is still acked.
func (w *Worker) run(ctx context.Context, task *domain.Task, logger *slog.Logger) {
	logger = logger.With("task_id", task.ID, "task_type", task.Type, "attempt", task.Attempts)
	start := time.Now()
	err := w.Handle(ctx, task)
	elapsed := time.Since(start)

	settleCtx := context.WithoutCancel(ctx)
	if err != nil {
		logger.Error("task failed", "duration", elapsed, "error", err)
		if nackErr := w.taskQueue.Nack(settleCtx, task.ID, err.Error()); nackErr != nil {
			logger.Error("nack failed", "error", nackErr)
		}
		return
	}
	logger.Info("task completed", "duration", elapsed)
	if ackErr := w.taskQueue.Ack(settleCtx, task.ID); ackErr != nil {
		logger.Error("ack failed", "error", ackErr)
	}
}

// Health is the worker's view of itself and its queue.
type Health struct {
	Running     bool   `json:"running"`
	QueueHealth bool   `json:"queue_health"`
	Error       string `json:"error,omitempty"`
}

func (w *Worker) Health(ctx context.Context) Health {
	w.mu.RLock()
	h := Health{Running: w.cancel != nil}
	w.mu.RUnlock()

	if err := w.taskQueue.Ping(ctx); err != nil {
		h.Error = err.Error()
		return h
	}
	h.QueueHealth = true
	return h
}
