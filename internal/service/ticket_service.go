// Package service implements the reservation concurrency core: queue-gated
// seat holds, idempotent release, confirm with durable outbox handoff, and
// the expiry reaper.  Services own all business decisions; repositories and
// stores stay mechanical.
package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/lenticket/ticketing/internal/apperr"
	"github.com/lenticket/ticketing/internal/clock"
	"github.com/lenticket/ticketing/internal/model"
	"github.com/lenticket/ticketing/internal/repository"
	"github.com/lenticket/ticketing/internal/store"
	"github.com/lenticket/ticketing/internal/stream"
)

// ReservationStore is the persistence surface the ticket service needs.
// *repository.ReservationRepo implements it; tests substitute an in-memory
// double.
type ReservationStore interface {
	Hold(ctx context.Context, scheduleID uint64, seatNo string, userID uint64, heldAt, expiresAt time.Time) error
	CancelHold(ctx context.Context, scheduleID uint64, seatNo string, userID uint64, now time.Time) (bool, error)
	ActiveState(ctx context.Context, scheduleID uint64, seatNo string) (*model.Reservation, error)
	HasValidHold(ctx context.Context, scheduleID uint64, seatNo string, userID uint64, now time.Time) (bool, error)
	Confirm(ctx context.Context, scheduleID uint64, seatNo string, userID uint64, now time.Time, evt model.OutboxEvent) (already bool, err error)
	ExpireBatch(ctx context.Context, now time.Time, limit int) ([]repository.ExpiredHold, error)
}

// SeatCatalog is the read surface over the pre-seeded seat catalog.
type SeatCatalog interface {
	Exists(ctx context.Context, scheduleID uint64, seatNo string) (bool, error)
	PriceCents(ctx context.Context, scheduleID uint64, seatNo string) (uint32, error)
}

// TicketConfig carries the tunables of the hold/confirm path.
type TicketConfig struct {
	HoldTTL        time.Duration // exclusive hold lifetime
	QueueEnabled   bool          // whether the admission gate is enforced
	OutboxMaxRetry int           // retry ceiling stamped on new outbox events
}

// TicketService orchestrates hold, release and confirm.  The seat lock store
// is the first gate (cheap, per-seat atomic); the reservation row is the
// durable second defense behind it.
type TicketService struct {
	locks        store.SeatLockStore
	queue        store.QueueStore
	reservations ReservationStore
	seats        SeatCatalog
	hub          *stream.Hub
	clk          clock.Clock
	cfg          TicketConfig
}

// NewTicketService wires the ticket service.  All dependencies must be
// non-nil.
func NewTicketService(locks store.SeatLockStore, queue store.QueueStore, reservations ReservationStore, seats SeatCatalog, hub *stream.Hub, clk clock.Clock, cfg TicketConfig) *TicketService {
	if locks == nil || queue == nil || reservations == nil || seats == nil || hub == nil || clk == nil {
		panic("nil dependency passed to NewTicketService")
	}
	if cfg.HoldTTL <= 0 {
		cfg.HoldTTL = 5 * time.Minute
	}
	if cfg.OutboxMaxRetry <= 0 {
		cfg.OutboxMaxRetry = 10
	}
	return &TicketService{
		locks:        locks,
		queue:        queue,
		reservations: reservations,
		seats:        seats,
		hub:          hub,
		clk:          clk,
		cfg:          cfg,
	}
}

// Hold places a TTL-bounded exclusive hold on a seat.  The returned time is
// the hold deadline.  Re-holding a seat the caller already holds refreshes
// the deadline instead of conflicting.
//
// A request without a valid admission token is enrolled into the waiting
// queue as a side effect before being rejected, so rejected callers start
// accruing queue position immediately instead of after another round trip.
func (s *TicketService) Hold(ctx context.Context, scheduleID uint64, seatNo string, userID uint64, queueToken string, bypassQueue bool) (time.Time, error) {
	if scheduleID == 0 || userID == 0 || model.NormalizeSeatNo(seatNo) == "" {
		return time.Time{}, apperr.ErrInvalidRequest
	}
	sn := model.NormalizeSeatNo(seatNo)

	if s.cfg.QueueEnabled && !bypassQueue {
		if queueToken == "" {
			if _, err := s.queue.Enter(ctx, scheduleID, userID); err != nil {
				return time.Time{}, fmt.Errorf("hold: queue enter: %w", err)
			}
			return time.Time{}, apperr.ErrAdmissionRequired
		}
		ok, err := s.queue.ValidatePass(ctx, scheduleID, userID, queueToken)
		if err != nil {
			return time.Time{}, fmt.Errorf("hold: validate pass: %w", err)
		}
		if !ok {
			if _, err := s.queue.Enter(ctx, scheduleID, userID); err != nil {
				return time.Time{}, fmt.Errorf("hold: queue enter: %w", err)
			}
			return time.Time{}, apperr.ErrAdmissionExpired
		}
	}

	exists, err := s.seats.Exists(ctx, scheduleID, sn)
	if err != nil {
		return time.Time{}, fmt.Errorf("hold: seat lookup: %w", err)
	}
	if !exists {
		return time.Time{}, apperr.ErrSeatNotFound
	}

	acquired, err := s.locks.Acquire(ctx, scheduleID, sn, userID, s.cfg.HoldTTL)
	if err != nil {
		return time.Time{}, fmt.Errorf("hold: lock acquire: %w", err)
	}
	if !acquired {
		return time.Time{}, apperr.ErrSeatAlreadyLocked
	}

	now := s.clk.Now()
	expiresAt := now.Add(s.cfg.HoldTTL)
	if err := s.reservations.Hold(ctx, scheduleID, sn, userID, now, expiresAt); err != nil {
		// The lock was taken but the durable hold did not land; give the
		// lock back so the seat is not dark for a full TTL.
		_ = s.locks.Release(ctx, scheduleID, sn, userID)
		if errors.Is(err, repository.ErrAlreadyReserved) {
			return time.Time{}, apperr.ErrSeatAlreadyLocked
		}
		return time.Time{}, fmt.Errorf("hold: persist: %w", err)
	}

	if s.cfg.QueueEnabled && !bypassQueue {
		// The pass is single-use: consuming it here is what forces a second
		// hold attempt back through the queue.
		if err := s.queue.ReleasePass(ctx, scheduleID, userID); err != nil {
			log.Printf("hold: pass consume failed for user=%d schedule=%d: %v", userID, scheduleID, err)
		}
	}

	s.publish(model.EventHeld, scheduleID, sn, true, &userID)
	return expiresAt, nil
}

// Release gives a held seat back.  It is always safe to call twice: a seat
// the caller does not hold is a successful no-op.  Only a CONFIRMED seat
// refuses release.
func (s *TicketService) Release(ctx context.Context, scheduleID uint64, seatNo string, userID uint64) error {
	if scheduleID == 0 || userID == 0 || model.NormalizeSeatNo(seatNo) == "" {
		return apperr.ErrInvalidRequest
	}
	sn := model.NormalizeSeatNo(seatNo)
	now := s.clk.Now()

	state, err := s.reservations.ActiveState(ctx, scheduleID, sn)
	if err != nil {
		return fmt.Errorf("release: state lookup: %w", err)
	}
	if state != nil && state.Status == model.ReservationConfirmed {
		return apperr.ErrReleaseConfirmed
	}

	cancelled, err := s.reservations.CancelHold(ctx, scheduleID, sn, userID, now)
	if err != nil {
		return fmt.Errorf("release: cancel hold: %w", err)
	}

	// Hand the admission slot back so the queue advances faster.
	if err := s.queue.ReleasePass(ctx, scheduleID, userID); err != nil {
		log.Printf("release: pass release failed for user=%d schedule=%d: %v", userID, scheduleID, err)
	}

	owner, ownerOK, err := s.locks.Owner(ctx, scheduleID, sn)
	if err != nil {
		return fmt.Errorf("release: lock owner: %w", err)
	}
	ownerIsMe := ownerOK && owner == userID

	// Publish while the lock is still ours: no rival hold can start until
	// the lock is freed, so RELEASED always precedes the seat's next HELD
	// on the stream.  A pure no-op release stays silent.
	if cancelled || ownerIsMe {
		s.publish(model.EventReleased, scheduleID, sn, false, &userID)
	}
	if err := s.locks.Release(ctx, scheduleID, sn, userID); err != nil {
		return fmt.Errorf("release: lock release: %w", err)
	}
	return nil
}

// Confirm finalizes a live hold.  The CONFIRMED transition and the outbox
// event land in one transaction inside the reservation store; re-confirming
// a seat the caller already confirmed reports success without a second
// outbox event.
func (s *TicketService) Confirm(ctx context.Context, scheduleID uint64, seatNo string, userID uint64) (already bool, err error) {
	if scheduleID == 0 || userID == 0 || model.NormalizeSeatNo(seatNo) == "" {
		return false, apperr.ErrInvalidRequest
	}
	sn := model.NormalizeSeatNo(seatNo)
	now := s.clk.Now()

	eventID, err := randomToken(16)
	if err != nil {
		return false, fmt.Errorf("confirm: event id: %w", err)
	}
	payload, err := json.Marshal(model.ConfirmRequested{
		EventID:     eventID,
		ScheduleID:  scheduleID,
		SeatNo:      sn,
		UserID:      userID,
		ConfirmedAt: now,
	})
	if err != nil {
		return false, fmt.Errorf("confirm: marshal payload: %w", err)
	}

	already, err = s.reservations.Confirm(ctx, scheduleID, sn, userID, now, model.OutboxEvent{
		EventID:  eventID,
		Topic:    model.ConfirmTopic,
		EventKey: model.EventKey(scheduleID, sn),
		Payload:  payload,
		MaxRetry: s.cfg.OutboxMaxRetry,
	})
	if err != nil {
		switch {
		case errors.Is(err, repository.ErrHoldNotFound):
			return false, apperr.ErrHoldNotFound
		case errors.Is(err, repository.ErrAlreadyReserved):
			return false, apperr.ErrAlreadyReserved
		case errors.Is(err, repository.ErrNotOwner):
			return false, apperr.ErrNotSeatOwner
		case errors.Is(err, repository.ErrHoldExpired):
			return false, apperr.ErrHoldExpired
		}
		return false, fmt.Errorf("confirm: persist: %w", err)
	}

	// The seat is settled.  CONFIRMED goes out before the lock does so no
	// later event on this seat can overtake it on the stream; then the
	// admission slot and the lock are given back.
	if !already {
		s.publish(model.EventConfirmed, scheduleID, sn, true, &userID)
	}
	if err := s.queue.ReleasePass(ctx, scheduleID, userID); err != nil {
		log.Printf("confirm: pass release failed for user=%d schedule=%d: %v", userID, scheduleID, err)
	}
	if err := s.locks.Release(ctx, scheduleID, sn, userID); err != nil {
		log.Printf("confirm: lock release failed for seat=%d:%s: %v", scheduleID, sn, err)
	}
	return already, nil
}

// publish emits a seat transition before the caller's response is written,
// so a subscriber seeing the event knows the HTTP ack has landed or is about
// to.
func (s *TicketService) publish(eventType string, scheduleID uint64, seatNo string, reserved bool, userID *uint64) {
	s.hub.Publish(model.SeatEvent{
		Type:       eventType,
		ScheduleID: scheduleID,
		SeatNo:     seatNo,
		Reserved:   reserved,
		UserID:     userID,
		OccurredAt: s.clk.Now(),
	})
}
