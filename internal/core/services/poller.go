package services

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/custodia-labs/receiptflow/internal/core/domain"
	"github.com/custodia-labs/receiptflow/internal/core/ports/driven"
)

// PollServiceConfig holds the poller's collaborators.
type PollServiceConfig struct {
	Folder     driven.SourceFolder
	Watermarks driven.WatermarkStore
	TaskQueue  driven.TaskQueue
	Tracker    TrackerConfig
	Logger     *slog.Logger
	Now        func() time.Time
}

// PollService announces files that appeared in a watched folder.
// It assumes a single active poller per source: two pollers for the same
// source race on the stored watermark.
type PollService struct {
	folder     driven.SourceFolder
	watermarks driven.WatermarkStore
	taskQueue  driven.TaskQueue
	tracker    TrackerConfig
	logger     *slog.Logger
	now        func() time.Time
}

// PollResult summarises one poll.
type PollResult struct {
	SourceID  string    `json:"source_id"`
	Since     time.Time `json:"since"`
	Listed    int       `json:"listed"`
	Published int       `json:"published"`
	Watermark time.Time `json:"watermark"`
	SeenSize  int       `json:"seen_size"`
}

// NewPollService creates a poll service.
func NewPollService(cfg PollServiceConfig) *PollService {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	return &PollService{
		folder:     cfg.Folder,
		watermarks: cfg.Watermarks,
		taskQueue:  cfg.TaskQueue,
		tracker:    cfg.Tracker.WithDefaults(),
		logger:     logger,
		now:        now,
	}
}

// Poll lists the folder since the watermark, announces unseen files, and
// saves the updated state. If announcing fails the state is not saved, so
// the next poll lists the same files again.
func (s *PollService) Poll(ctx context.Context, sourceID, folderID string) (*PollResult, error) {
	state, err := s.watermarks.Load(ctx, sourceID)
	if err != nil {
		return nil, fmt.Errorf("load watermark for %s: %w", sourceID, err)
	}

	now := s.now()
	since := ComputeSince(state, s.tracker.Lookback, now)
	s.logger.Info("polling folder", "source_id", sourceID, "folder_id", folderID, "since", domain.FormatTimestamp(since))

	items, err := s.folder.ListSince(ctx, folderID, since)
	if err != nil {
		return nil, fmt.Errorf("list folder %s: %w", folderID, err)
	}

	result := &PollResult{SourceID: sourceID, Since: since, Listed: len(items)}

	if len(items) > 0 {
		fresh, next := FilterNew(state, items, now)
		if err := s.announce(ctx, fresh); err != nil {
			return nil, err
		}
		result.Published = len(fresh)
		state = Advance(next, NewestCreatedAt(items))
	}
	state = Prune(state, s.tracker.SeenTTL, s.tracker.SeenMax, now)

	if err := s.watermarks.Save(ctx, sourceID, state); err != nil {
		return nil, fmt.Errorf("save watermark for %s: %w", sourceID, err)
	}

	result.Watermark = state.LastCreatedAt
	result.SeenSize = len(state.Seen)
	s.logger.Info("poll complete",
		"source_id", sourceID,
		"listed", result.Listed,
		"published", result.Published,
		"watermark", domain.FormatTimestamp(result.Watermark),
		"seen", result.SeenSize,
	)
	return result, nil
}

func (s *PollService) announce(ctx context.Context, items []domain.DiscoveredItem) error {
	if len(items) == 0 {
		return nil
	}
	tasks := make([]*domain.Task, 0, len(items))
	for _, item := range items {
		evt := domain.NewDiscoveryEvent(item)
		task, err := domain.NewKeyedTask(domain.TaskTypeReceiptNew, evt.IdempotencyKey, evt)
		if err != nil {
			return err
		}
		tasks = append(tasks, task)
	}
	if err := s.taskQueue.EnqueueBatch(ctx, tasks); err != nil {
		return fmt.Errorf("announce %d files: %w", len(tasks), err)
	}
	return nil
}

// State returns the stored watermark of a source.
func (s *PollService) State(ctx context.Context, sourceID string) (*domain.WatermarkState, error) {
	return s.watermarks.Load(ctx, sourceID)
}
