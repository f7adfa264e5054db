package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/lenticket/ticketing/internal/model"
	"github.com/lenticket/ticketing/internal/repository"
)

// fakeReservations mirrors the reservation repository's observable behaviour
// on a plain map so service tests run without MySQL.
type fakeReservations struct {
	mu     sync.Mutex
	rows   map[string]*model.Reservation
	outbox []model.OutboxEvent

	holdErr error // injected failure for the persist-rollback path
}

func newFakeReservations() *fakeReservations {
	return &fakeReservations{rows: make(map[string]*model.Reservation)}
}

func resKey(scheduleID uint64, seatNo string) string {
	return fmt.Sprintf("%d:%s", scheduleID, seatNo)
}

func (f *fakeReservations) activeLocked(scheduleID uint64, seatNo string, now time.Time) *model.Reservation {
	r, ok := f.rows[resKey(scheduleID, seatNo)]
	if !ok || !r.Active(now) {
		return nil
	}
	return r
}

func (f *fakeReservations) Hold(_ context.Context, scheduleID uint64, seatNo string, userID uint64, heldAt, expiresAt time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.holdErr != nil {
		return f.holdErr
	}
	if r := f.activeLocked(scheduleID, seatNo, heldAt); r != nil {
		if r.Status == model.ReservationHeld && r.UserID == userID {
			exp := expiresAt
			r.ExpiresAt = &exp
			return nil
		}
		return repository.ErrAlreadyReserved
	}
	exp := expiresAt
	f.rows[resKey(scheduleID, seatNo)] = &model.Reservation{
		ScheduleID: scheduleID,
		SeatNo:     seatNo,
		UserID:     userID,
		Status:     model.ReservationHeld,
		HeldAt:     heldAt,
		ExpiresAt:  &exp,
	}
	return nil
}

func (f *fakeReservations) CancelHold(_ context.Context, scheduleID uint64, seatNo string, userID uint64, _ time.Time) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	// a lapsed hold stays cancellable until the reaper retires it, matching
	// the repository's active-flag semantics
	r, ok := f.rows[resKey(scheduleID, seatNo)]
	if !ok || r.Status != model.ReservationHeld || r.UserID != userID {
		return false, nil
	}
	r.Status = model.ReservationCancelled
	return true, nil
}

func (f *fakeReservations) ActiveState(_ context.Context, scheduleID uint64, seatNo string) (*model.Reservation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	r, ok := f.rows[resKey(scheduleID, seatNo)]
	if !ok || (r.Status != model.ReservationHeld && r.Status != model.ReservationConfirmed) {
		return nil, nil
	}
	cp := *r
	return &cp, nil
}

func (f *fakeReservations) HasValidHold(_ context.Context, scheduleID uint64, seatNo string, userID uint64, now time.Time) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	r := f.activeLocked(scheduleID, seatNo, now)
	return r != nil && r.Status == model.ReservationHeld && r.UserID == userID, nil
}

func (f *fakeReservations) Confirm(_ context.Context, scheduleID uint64, seatNo string, userID uint64, now time.Time, evt model.OutboxEvent) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	r, ok := f.rows[resKey(scheduleID, seatNo)]
	if !ok {
		return false, repository.ErrHoldNotFound
	}
	switch {
	case r.Status == model.ReservationConfirmed && r.UserID == userID:
		return true, nil
	case r.Status == model.ReservationConfirmed:
		return false, repository.ErrAlreadyReserved
	case r.Status != model.ReservationHeld:
		return false, repository.ErrHoldNotFound
	case r.UserID != userID:
		return false, repository.ErrNotOwner
	case r.ExpiresAt != nil && !now.Before(*r.ExpiresAt):
		return false, repository.ErrHoldExpired
	}
	r.Status = model.ReservationConfirmed
	r.ExpiresAt = nil
	evt.Status = model.OutboxPending
	f.outbox = append(f.outbox, evt)
	return false, nil
}

func (f *fakeReservations) ExpireBatch(_ context.Context, now time.Time, limit int) ([]repository.ExpiredHold, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []repository.ExpiredHold
	for _, r := range f.rows {
		if len(out) >= limit {
			break
		}
		if r.Status == model.ReservationHeld && r.ExpiresAt != nil && !now.Before(*r.ExpiresAt) {
			r.Status = model.ReservationExpired
			out = append(out, repository.ExpiredHold{ScheduleID: r.ScheduleID, SeatNo: r.SeatNo, UserID: r.UserID})
		}
	}
	return out, nil
}

func (f *fakeReservations) outboxEvents() []model.OutboxEvent {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]model.OutboxEvent(nil), f.outbox...)
}

// fakeCatalog is a fixed seat catalog.
type fakeCatalog struct {
	prices map[string]uint32
}

func newFakeCatalog(scheduleID uint64, seatNos ...string) *fakeCatalog {
	c := &fakeCatalog{prices: make(map[string]uint32)}
	for _, sn := range seatNos {
		c.prices[resKey(scheduleID, sn)] = 120000
	}
	return c
}

func (c *fakeCatalog) Exists(_ context.Context, scheduleID uint64, seatNo string) (bool, error) {
	_, ok := c.prices[resKey(scheduleID, seatNo)]
	return ok, nil
}

func (c *fakeCatalog) PriceCents(_ context.Context, scheduleID uint64, seatNo string) (uint32, error) {
	p, ok := c.prices[resKey(scheduleID, seatNo)]
	if !ok {
		return 0, repository.ErrSeatNotFound
	}
	return p, nil
}

// fakeOrders is an in-memory payment order store.
type fakeOrders struct {
	mu     sync.Mutex
	orders map[string]*model.PaymentOrder
}

func newFakeOrders() *fakeOrders {
	return &fakeOrders{orders: make(map[string]*model.PaymentOrder)}
}

func (f *fakeOrders) Create(_ context.Context, o *model.PaymentOrder) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := *o
	f.orders[o.OrderNo] = &cp
	return nil
}

func (f *fakeOrders) FindByOrderNo(_ context.Context, orderNo string) (*model.PaymentOrder, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	o, ok := f.orders[orderNo]
	if !ok {
		return nil, repository.ErrOrderNotFound
	}
	cp := *o
	return &cp, nil
}

func (f *fakeOrders) MarkPaid(_ context.Context, orderNo string, _ time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if o, ok := f.orders[orderNo]; ok {
		o.Status = model.PaymentPaid
	}
	return nil
}

func (f *fakeOrders) MarkCancelled(_ context.Context, orderNo, reason string, _ time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if o, ok := f.orders[orderNo]; ok {
		o.Status = model.PaymentCancelled
		o.FailReason = &reason
	}
	return nil
}
