package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/lenticket/ticketing/internal/apperr"
	"github.com/lenticket/ticketing/internal/service"
)

// PaymentHandler exposes the mock payment endpoints.
type PaymentHandler struct {
	Payments *service.PaymentService
}

func NewPaymentHandler(payments *service.PaymentService) *PaymentHandler {
	return &PaymentHandler{Payments: payments}
}

// Ready handles POST /api/payments/ready. It freezes the seat price into a
// PENDING order; the caller must currently hold the seat.
func (h *PaymentHandler) Ready(c echo.Context) error {
	body, err := bindTicketRequest(c)
	if err != nil {
		return err
	}
	order, err := h.Payments.Ready(c.Request().Context(), body.ScheduleID, body.SeatNo, body.UserID)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, echo.Map{
		"orderNo":     order.OrderNo,
		"scheduleId":  order.ScheduleID,
		"seatNo":      order.SeatNo,
		"amountCents": order.AmountCents,
		"status":      order.Status,
	})
}

// MockSuccess handles POST /api/payments/mock-success, playing the gateway
// completion callback. Business failures come back as success=false with
// the order cancelled; HTTP errors are reserved for unknown orders and
// malformed requests.
func (h *PaymentHandler) MockSuccess(c echo.Context) error {
	var body struct {
		OrderNo string `json:"orderNo"`
	}
	if err := c.Bind(&body); err != nil || body.OrderNo == "" {
		return apperr.ErrInvalidRequest
	}
	result, err := h.Payments.MockSuccess(c.Request().Context(), body.OrderNo)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, result)
}
