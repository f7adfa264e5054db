package service

import (
	"context"
	"fmt"
	"time"

	"github.com/lenticket/ticketing/internal/apperr"
	"github.com/lenticket/ticketing/internal/model"
	"github.com/lenticket/ticketing/internal/store"
)

// QueueConfig carries the admission tunables.  Capacity is the real
// backpressure valve protecting the seat lock table: it bounds concurrent
// admitted holders independently of how many users are waiting, and it is
// deliberately not derived from seat count.
type QueueConfig struct {
	Capacity int64         // concurrent admission window
	PassTTL  time.Duration // admission pass lifetime
}

// QueueService fronts the waiting-room gate.  Both enter and status attempt
// promotion, so a polling client is admitted the moment a slot frees without
// a separate advance step.
type QueueService struct {
	queue store.QueueStore
	cfg   QueueConfig
}

// NewQueueService wires the queue service.
func NewQueueService(queue store.QueueStore, cfg QueueConfig) *QueueService {
	if queue == nil {
		panic("nil queue store passed to NewQueueService")
	}
	if cfg.Capacity <= 0 {
		cfg.Capacity = 100
	}
	if cfg.PassTTL <= 0 {
		cfg.PassTTL = 5 * time.Minute
	}
	return &QueueService{queue: queue, cfg: cfg}
}

// Enter joins the waiting queue (idempotently) and immediately tries for a
// pass.  Rank 0 with canEnter=true means admitted.
func (s *QueueService) Enter(ctx context.Context, scheduleID, userID uint64) (model.QueueStatus, error) {
	if scheduleID == 0 || userID == 0 {
		return model.QueueStatus{}, apperr.ErrInvalidRequest
	}
	pos, err := s.queue.Enter(ctx, scheduleID, userID)
	if err != nil {
		return model.QueueStatus{}, fmt.Errorf("queue enter: %w", err)
	}
	return s.resolve(ctx, scheduleID, userID, pos)
}

// Status reports the caller's position, enrolling them first if they were
// never in the queue (a status poll is treated as intent to enter).
func (s *QueueService) Status(ctx context.Context, scheduleID, userID uint64) (model.QueueStatus, error) {
	if scheduleID == 0 || userID == 0 {
		return model.QueueStatus{}, apperr.ErrInvalidRequest
	}
	pos, err := s.queue.Position(ctx, scheduleID, userID)
	if err != nil {
		return model.QueueStatus{}, fmt.Errorf("queue status: %w", err)
	}
	if pos == -1 {
		if pos, err = s.queue.Enter(ctx, scheduleID, userID); err != nil {
			return model.QueueStatus{}, fmt.Errorf("queue status: %w", err)
		}
	}
	return s.resolve(ctx, scheduleID, userID, pos)
}

func (s *QueueService) resolve(ctx context.Context, scheduleID, userID uint64, pos int64) (model.QueueStatus, error) {
	pass, err := s.queue.TryIssuePass(ctx, scheduleID, userID, s.cfg.Capacity, s.cfg.PassTTL)
	if err != nil {
		return model.QueueStatus{}, fmt.Errorf("queue issue pass: %w", err)
	}
	if pass != nil {
		return model.QueueStatus{
			Rank:      0,
			CanEnter:  true,
			Token:     &pass.Token,
			ExpiresAt: &pass.ExpiresAt,
		}, nil
	}
	return model.QueueStatus{Rank: pos, CanEnter: false}, nil
}
