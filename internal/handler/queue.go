package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/lenticket/ticketing/internal/apperr"
	"github.com/lenticket/ticketing/internal/service"
)

// QueueHandler exposes the waiting-queue admission endpoints.
type QueueHandler struct {
	Queue *service.QueueService
}

func NewQueueHandler(queue *service.QueueService) *QueueHandler {
	return &QueueHandler{Queue: queue}
}

// Enter handles POST /api/queue/enter. Entering is idempotent: a user who
// is already waiting keeps their original position, and a user inside the
// admission window gets a pass immediately.
func (h *QueueHandler) Enter(c echo.Context) error {
	var body struct {
		ScheduleID uint64 `json:"scheduleId"`
		UserID     uint64 `json:"userId"`
	}
	if err := c.Bind(&body); err != nil || body.ScheduleID == 0 || body.UserID == 0 {
		return apperr.ErrInvalidRequest
	}
	status, err := h.Queue.Enter(c.Request().Context(), body.ScheduleID, body.UserID)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, status)
}

// Status handles GET /api/queue/status. Polling status is what promotes a
// waiting user into the admission window once capacity frees up.
func (h *QueueHandler) Status(c echo.Context) error {
	scheduleID, err := queryUint(c, "scheduleId")
	if err != nil {
		return err
	}
	userID, err := queryUint(c, "userId")
	if err != nil {
		return err
	}
	status, err := h.Queue.Status(c.Request().Context(), scheduleID, userID)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, status)
}
