package handler

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/lenticket/ticketing/internal/apperr"
	"github.com/lenticket/ticketing/internal/model"
	"github.com/lenticket/ticketing/internal/service"
)

// ReservationLister is the read surface for a user's booking history.
// *repository.ReservationRepo implements it.
type ReservationLister interface {
	ListByUser(ctx context.Context, userID uint64) ([]model.Reservation, error)
}

// ReservationHandler exposes the reservation listing and the hold path used
// by load generators.  Unlike the ticket endpoints, the hold here accepts
// the admission token and bypass flag in the JSON body as well as in the
// headers, because k6 scenarios script them per request.
type ReservationHandler struct {
	Reservations  ReservationLister
	Tickets       *service.TicketService
	BypassEnabled bool
}

func NewReservationHandler(reservations ReservationLister, tickets *service.TicketService, bypassEnabled bool) *ReservationHandler {
	return &ReservationHandler{Reservations: reservations, Tickets: tickets, BypassEnabled: bypassEnabled}
}

type reservationView struct {
	ID         uint64     `json:"id"`
	UserID     uint64     `json:"userId"`
	ScheduleID uint64     `json:"scheduleId"`
	SeatNo     string     `json:"seatNo"`
	Status     string     `json:"status"`
	CreatedAt  time.Time  `json:"createdAt"`
	ExpiresAt  *time.Time `json:"expiresAt,omitempty"`
}

// ListByUser handles GET /api/reservations?userId=. All of the user's
// reservations are returned, retired ones included, newest first.
func (h *ReservationHandler) ListByUser(c echo.Context) error {
	userID, err := queryUint(c, "userId")
	if err != nil {
		return err
	}
	list, err := h.Reservations.ListByUser(c.Request().Context(), userID)
	if err != nil {
		return err
	}
	out := make([]reservationView, 0, len(list))
	for _, r := range list {
		out = append(out, reservationView{
			ID:         r.ID,
			UserID:     r.UserID,
			ScheduleID: r.ScheduleID,
			SeatNo:     r.SeatNo,
			Status:     r.Status,
			CreatedAt:  r.CreatedAt,
			ExpiresAt:  r.ExpiresAt,
		})
	}
	return c.JSON(http.StatusOK, out)
}

type reservationHoldRequest struct {
	ScheduleID  uint64 `json:"scheduleId"`
	SeatNo      string `json:"seatNo"`
	SeatID      uint64 `json:"seatId"`
	UserID      uint64 `json:"userId"`
	QueueToken  string `json:"queueToken"`
	BypassQueue bool   `json:"bypassQueue"`
}

// Hold handles POST /api/reservations/hold, the hold path the k6 scenarios
// drive.  It runs the same flow as POST /api/tickets/hold; the seat may be
// addressed either by its seatNo label or by a bare numeric seatId, and the
// admission token falls back to the X-Queue-Token header when the body does
// not carry one.
func (h *ReservationHandler) Hold(c echo.Context) error {
	var body reservationHoldRequest
	if err := c.Bind(&body); err != nil {
		return apperr.ErrInvalidRequest
	}
	seatNo := model.NormalizeSeatNo(body.SeatNo)
	if seatNo == "" && body.SeatID > 0 {
		seatNo = strconv.FormatUint(body.SeatID, 10)
	}
	if body.ScheduleID == 0 || body.UserID == 0 || seatNo == "" {
		return apperr.ErrInvalidRequest
	}

	token := body.QueueToken
	if token == "" {
		token = c.Request().Header.Get(HeaderQueueToken)
	}
	bypass := false
	if h.BypassEnabled {
		if body.BypassQueue {
			bypass = true
		}
		switch c.Request().Header.Get(HeaderLoadtestBypass) {
		case "1", "true":
			bypass = true
		}
	}

	expiresAt, err := h.Tickets.Hold(c.Request().Context(), body.ScheduleID, seatNo, body.UserID, token, bypass)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, echo.Map{
		"scheduleId": body.ScheduleID,
		"seatNo":     seatNo,
		"userId":     body.UserID,
		"status":     model.ReservationHeld,
		"expiresAt":  expiresAt,
	})
}
