package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/lenticket/ticketing/internal/apperr"
	"github.com/lenticket/ticketing/internal/clock"
	"github.com/lenticket/ticketing/internal/model"
	"github.com/lenticket/ticketing/internal/repository"
)

// PaymentStore is the persistence surface the payment service needs.
// *repository.PaymentRepo implements it.
type PaymentStore interface {
	Create(ctx context.Context, o *model.PaymentOrder) error
	FindByOrderNo(ctx context.Context, orderNo string) (*model.PaymentOrder, error)
	MarkPaid(ctx context.Context, orderNo string, now time.Time) error
	MarkCancelled(ctx context.Context, orderNo, reason string, now time.Time) error
}

// PaymentResult is the outcome of a completion attempt.  A business-level
// failure (hold expired, seat taken) is a Success=false result, not an
// error: the order is cancelled with the reason and the gateway callback
// still gets its 200.
type PaymentResult struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

// PaymentService runs the mock payment flow: Ready freezes the price of a
// valid hold into a PENDING order, MockSuccess plays the gateway completion
// callback and drives the actual confirm.
type PaymentService struct {
	seats        SeatCatalog
	reservations ReservationStore
	orders       PaymentStore
	tickets      *TicketService
	clk          clock.Clock
}

// NewPaymentService wires the payment service.
func NewPaymentService(seats SeatCatalog, reservations ReservationStore, orders PaymentStore, tickets *TicketService, clk clock.Clock) *PaymentService {
	if seats == nil || reservations == nil || orders == nil || tickets == nil || clk == nil {
		panic("nil dependency passed to NewPaymentService")
	}
	return &PaymentService{
		seats:        seats,
		reservations: reservations,
		orders:       orders,
		tickets:      tickets,
		clk:          clk,
	}
}

// Ready creates a payment order for a seat the user currently holds.  The
// amount is frozen from the catalog price at this moment.
func (s *PaymentService) Ready(ctx context.Context, scheduleID uint64, seatNo string, userID uint64) (*model.PaymentOrder, error) {
	if scheduleID == 0 || userID == 0 || model.NormalizeSeatNo(seatNo) == "" {
		return nil, apperr.ErrInvalidRequest
	}
	sn := model.NormalizeSeatNo(seatNo)
	now := s.clk.Now()

	price, err := s.seats.PriceCents(ctx, scheduleID, sn)
	if err != nil {
		if errors.Is(err, repository.ErrSeatNotFound) {
			return nil, apperr.ErrSeatNotFound
		}
		return nil, fmt.Errorf("payment ready: price lookup: %w", err)
	}

	ok, err := s.reservations.HasValidHold(ctx, scheduleID, sn, userID, now)
	if err != nil {
		return nil, fmt.Errorf("payment ready: hold check: %w", err)
	}
	if !ok {
		return nil, apperr.ErrHoldNotFound
	}

	suffix, err := randomToken(12)
	if err != nil {
		return nil, fmt.Errorf("payment ready: order no: %w", err)
	}
	order := &model.PaymentOrder{
		OrderNo:     "PO-" + suffix,
		UserID:      userID,
		ScheduleID:  scheduleID,
		SeatNo:      sn,
		AmountCents: price,
		Status:      model.PaymentPending,
		CreatedAt:   now,
	}
	if err := s.orders.Create(ctx, order); err != nil {
		return nil, fmt.Errorf("payment ready: create order: %w", err)
	}
	return order, nil
}

// MockSuccess completes an order as the payment gateway would.  Completing
// an already-PAID order is idempotent success.  A business failure on the
// underlying confirm cancels the order with the reason instead of bubbling
// an error, so the gateway callback never retries a dead order.
func (s *PaymentService) MockSuccess(ctx context.Context, orderNo string) (PaymentResult, error) {
	if orderNo == "" {
		return PaymentResult{}, apperr.ErrInvalidRequest
	}
	order, err := s.orders.FindByOrderNo(ctx, orderNo)
	if err != nil {
		if errors.Is(err, repository.ErrOrderNotFound) {
			return PaymentResult{}, apperr.ErrPaymentOrderNotFound
		}
		return PaymentResult{}, fmt.Errorf("payment complete: lookup: %w", err)
	}
	if order.Status == model.PaymentPaid {
		return PaymentResult{Success: true, Message: "order already paid"}, nil
	}

	now := s.clk.Now()
	if _, err := s.tickets.Confirm(ctx, order.ScheduleID, order.SeatNo, order.UserID); err != nil {
		var be *apperr.Error
		reason := "confirm failed"
		if errors.As(err, &be) {
			reason = be.Code
		}
		s.cancelSafely(ctx, orderNo, reason, now)
		return PaymentResult{Success: false, Message: reason}, nil
	}

	if err := s.orders.MarkPaid(ctx, orderNo, now); err != nil {
		return PaymentResult{}, fmt.Errorf("payment complete: mark paid: %w", err)
	}
	return PaymentResult{Success: true, Message: "reservation confirmed"}, nil
}

// cancelSafely records the cancellation without letting a storage hiccup
// mask the original business failure.
func (s *PaymentService) cancelSafely(ctx context.Context, orderNo, reason string, now time.Time) {
	if err := s.orders.MarkCancelled(ctx, orderNo, reason, now); err != nil {
		log.Printf("payment: cancel order %s failed: %v", orderNo, err)
	}
}
