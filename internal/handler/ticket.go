package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/lenticket/ticketing/internal/apperr"
	"github.com/lenticket/ticketing/internal/model"
	"github.com/lenticket/ticketing/internal/service"
)

// Request headers consumed by the hold endpoint.
const (
	HeaderQueueToken     = "X-Queue-Token"
	HeaderLoadtestBypass = "X-Loadtest-Bypass"
)

// TicketHandler exposes hold, release and confirm on seats. The queue
// admission token travels in a header so load generators can script it
// separately from the JSON body.
type TicketHandler struct {
	Tickets       *service.TicketService
	BypassEnabled bool
}

func NewTicketHandler(tickets *service.TicketService, bypassEnabled bool) *TicketHandler {
	return &TicketHandler{Tickets: tickets, BypassEnabled: bypassEnabled}
}

type ticketRequest struct {
	ScheduleID uint64 `json:"scheduleId"`
	SeatNo     string `json:"seatNo"`
	UserID     uint64 `json:"userId"`
}

func bindTicketRequest(c echo.Context) (ticketRequest, error) {
	var body ticketRequest
	if err := c.Bind(&body); err != nil {
		return body, apperr.ErrInvalidRequest
	}
	body.SeatNo = model.NormalizeSeatNo(body.SeatNo)
	if body.ScheduleID == 0 || body.UserID == 0 || body.SeatNo == "" {
		return body, apperr.ErrInvalidRequest
	}
	return body, nil
}

// Hold handles POST /api/tickets/hold. The bypass header is only honored
// when the server was started with bypass enabled; otherwise it is ignored
// and the normal admission check applies.
func (h *TicketHandler) Hold(c echo.Context) error {
	body, err := bindTicketRequest(c)
	if err != nil {
		return err
	}
	bypass := false
	if h.BypassEnabled {
		switch c.Request().Header.Get(HeaderLoadtestBypass) {
		case "1", "true":
			bypass = true
		}
	}
	token := c.Request().Header.Get(HeaderQueueToken)
	expiresAt, err := h.Tickets.Hold(c.Request().Context(), body.ScheduleID, body.SeatNo, body.UserID, token, bypass)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, echo.Map{
		"scheduleId": body.ScheduleID,
		"seatNo":     body.SeatNo,
		"userId":     body.UserID,
		"status":     model.ReservationHeld,
		"expiresAt":  expiresAt,
	})
}

// Release handles POST /api/tickets/release. Releasing a seat that is not
// held succeeds idempotently; only confirmed seats refuse to release.
func (h *TicketHandler) Release(c echo.Context) error {
	body, err := bindTicketRequest(c)
	if err != nil {
		return err
	}
	if err := h.Tickets.Release(c.Request().Context(), body.ScheduleID, body.SeatNo, body.UserID); err != nil {
		return err
	}
	return c.JSON(http.StatusOK, echo.Map{
		"scheduleId": body.ScheduleID,
		"seatNo":     body.SeatNo,
		"status":     "RELEASED",
	})
}

// Confirm handles POST /api/tickets/confirm. Re-confirming an already
// confirmed seat by the same user returns success without side effects.
func (h *TicketHandler) Confirm(c echo.Context) error {
	body, err := bindTicketRequest(c)
	if err != nil {
		return err
	}
	already, err := h.Tickets.Confirm(c.Request().Context(), body.ScheduleID, body.SeatNo, body.UserID)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, echo.Map{
		"scheduleId":       body.ScheduleID,
		"seatNo":           body.SeatNo,
		"userId":           body.UserID,
		"status":           model.ReservationConfirmed,
		"alreadyConfirmed": already,
	})
}
