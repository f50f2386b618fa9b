package services

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/custodia-labs/receiptflow/internal/core/domain"
	"github.com/custodia-labs/receiptflow/internal/core/ports/driven"
)

// pollLockName is the lease one instance takes before enqueuing a source's
// poll. Leases are per source so a slow queue on one folder does not hold
// back the others.
func pollLockName(sourceID string) string {
	return "poll:" + sourceID
}

// Scheduler turns each watched folder's interval into poll tasks.
//
// Every due slot becomes one keyed task, so two instances that both decide
// a source is due enqueue the same task ID and the queue keeps one. The
// optional DistributedLock saves the duplicate work before it reaches the
// queue.
type Scheduler struct {
	taskQueue driven.TaskQueue
	lock      driven.DistributedLock
	logger    *slog.Logger
	now       func() time.Time

	interval     time.Duration
	lockTTL      time.Duration
	lockRequired bool

	mu        sync.RWMutex
	schedules map[string]*domain.ScheduledPoll
	cancel    context.CancelFunc
	done      chan struct{}
}

// SchedulerConfig configures a Scheduler. PollInterval is how often due
// sources are checked (30s by default); it is independent of each source's
// own interval.
type SchedulerConfig struct {
	TaskQueue    driven.TaskQueue
	Lock         driven.DistributedLock
	Logger       *slog.Logger
	Schedules    []*domain.ScheduledPoll
	PollInterval time.Duration
	LockTTL      time.Duration
	// LockRequired skips a source when the lock backend errors instead of
	// enqueuing without it.
	LockRequired bool
	Now          func() time.Time
}

func NewScheduler(cfg SchedulerConfig) *Scheduler {
	s := &Scheduler{
		taskQueue:    cfg.TaskQueue,
		lock:         cfg.Lock,
		logger:       cfg.Logger,
		now:          cfg.Now,
		interval:     cfg.PollInterval,
		lockTTL:      cfg.LockTTL,
		lockRequired: cfg.LockRequired && cfg.Lock != nil,
		schedules:    make(map[string]*domain.ScheduledPoll, len(cfg.Schedules)),
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	if s.now == nil {
		s.now = time.Now
	}
	if s.interval <= 0 {
		s.interval = 30 * time.Second
	}
	if s.lockTTL <= 0 {
		s.lockTTL = time.Minute
	}
	for _, sp := range cfg.Schedules {
		s.schedules[sp.SourceID] = sp
	}
	return s
}

// Start launches the check loop. It returns at once; calling it on a
// running scheduler does nothing.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		return nil
	}

	ctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.done = make(chan struct{})

	s.logger.Info("scheduler starting", "check_interval", s.interval, "sources", len(s.schedules))
	go s.loop(ctx, s.done)
	return nil
}

// Stop ends the loop and waits for an in-flight check to finish.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	cancel, done := s.cancel, s.done
	s.cancel = nil
	s.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
	s.logger.Info("scheduler stopped")
}

// Running reports whether the loop is active.
func (s *Scheduler) Running() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cancel != nil
}

func (s *Scheduler) loop(ctx context.Context, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		s.tick(ctx)
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// tick enqueues one poll for each source that is due.
func (s *Scheduler) tick(ctx context.Context) {
	now := s.now()
	for _, sp := range s.due(now) {
		if ctx.Err() != nil {
			return
		}
		s.fire(ctx, sp, now)
	}
}

func (s *Scheduler) fire(ctx context.Context, sp domain.ScheduledPoll, now time.Time) {
	logger := s.logger.With("source_id", sp.SourceID)

	release, ok := s.lead(ctx, sp.SourceID, logger)
	if !ok {
		return
	}
	defer release()

	task, err := pollTaskFor(sp)
	if err == nil {
		err = s.taskQueue.Enqueue(ctx, task)
	}
	if err != nil {
		logger.Error("scheduled poll not enqueued", "error", err)
		s.markRun(sp.SourceID, now, err.Error())
		return
	}
	logger.Info("scheduled poll enqueued", "task_id", task.ID, "slot", sp.NextRun)
	s.markRun(sp.SourceID, now, "")
}

// lead takes the source's lease. ok is false when this instance should not
// enqueue; release is safe to call either way.
func (s *Scheduler) lead(ctx context.Context, sourceID string, logger *slog.Logger) (release func(), ok bool) {
	noop := func() {}
	if s.lock == nil {
		return noop, true
	}

	name := pollLockName(sourceID)
	acquired, err := s.lock.Acquire(ctx, name, s.lockTTL)
	switch {
	case err != nil:
		logger.Warn("poll lock unavailable", "error", err, "required", s.lockRequired)
		return noop, !s.lockRequired
	case !acquired:
		logger.Debug("poll lock held by another instance")
		return noop, false
	}
	return func() {
		if err := s.lock.Release(ctx, name); err != nil {
			logger.Warn("poll lock not released", "error", err)
		}
	}, true
}

// pollTaskFor keys the task on the slot it fills, so redelivering the same
// slot yields the same task ID.
func pollTaskFor(sp domain.ScheduledPoll) (*domain.Task, error) {
	key := fmt.Sprintf("%s@%d", sp.SourceID, sp.NextRun.Unix())
	return domain.NewKeyedTask(domain.TaskTypePoll, key, domain.PollRequest{
		SourceID: sp.SourceID,
		FolderID: sp.FolderID,
	})
}

func (s *Scheduler) due(now time.Time) []domain.ScheduledPoll {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []domain.ScheduledPoll
	for _, sp := range s.schedules {
		if sp.IsDue(now) {
			out = append(out, *sp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SourceID < out[j].SourceID })
	return out
}

func (s *Scheduler) markRun(sourceID string, now time.Time, lastError string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if sp, ok := s.schedules[sourceID]; ok {
		sp.UpdateNextRun(now, lastError)
	}
}

// Schedules returns copies of all schedules ordered by source ID.
func (s *Scheduler) Schedules() []domain.ScheduledPoll {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.ScheduledPoll, 0, len(s.schedules))
	for _, sp := range s.schedules {
		out = append(out, *sp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SourceID < out[j].SourceID })
	return out
}

func (s *Scheduler) FolderFor(sourceID string) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if sp, ok := s.schedules[sourceID]; ok {
		return sp.FolderID, true
	}
	return "", false
}

// TriggerNow enqueues an unkeyed poll for sourceID outside its schedule.
// The schedule itself is left alone.
func (s *Scheduler) TriggerNow(ctx context.Context, sourceID string) (*domain.Task, error) {
	folderID, ok := s.FolderFor(sourceID)
	if !ok {
		return nil, fmt.Errorf("source %s: %w", sourceID, domain.ErrNotFound)
	}

	task := domain.NewPollTask(sourceID, folderID)
	if err := s.taskQueue.Enqueue(ctx, task); err != nil {
		return nil, fmt.Errorf("enqueue poll for %s: %w", sourceID, err)
	}
	s.logger.Info("manual poll enqueued", "source_id", sourceID, "task_id", task.ID)
	return task, nil
}
