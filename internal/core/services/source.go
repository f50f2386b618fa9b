package services

import (
	"context"

	"github.com/custodia-labs/receiptflow/internal/core/domain"
	"github.com/custodia-labs/receiptflow/internal/core/ports/driving"
)

// Ensure sourceService implements SourceService
var _ driving.SourceService = (*sourceService)(nil)

// sourceService implements the SourceService interface on top of the poll
// scheduler and the watermark store
type sourceService struct {
	scheduler *Scheduler
	poller    *PollService
}

// NewSourceService creates a new SourceService
func NewSourceService(scheduler *Scheduler, poller *PollService) driving.SourceService {
	return &sourceService{scheduler: scheduler, poller: poller}
}

// TriggerPoll enqueues a poll now (admin only)
func (s *sourceService) TriggerPoll(ctx context.Context, sourceID string) (*domain.Task, error) {
	return s.scheduler.TriggerNow(ctx, sourceID)
}

// Watermark returns the stored discovery state of a configured source
func (s *sourceService) Watermark(ctx context.Context, sourceID string) (*domain.WatermarkState, error) {
	if _, ok := s.scheduler.FolderFor(sourceID); !ok {
		return nil, domain.ErrNotFound
	}
	return s.poller.State(ctx, sourceID)
}

// Sources lists the configured schedules
func (s *sourceService) Sources(_ context.Context) []domain.ScheduledPoll {
	return s.scheduler.Schedules()
}
