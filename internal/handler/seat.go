package handler

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/lenticket/ticketing/internal/model"
	"github.com/lenticket/ticketing/internal/repository"
	"github.com/lenticket/ticketing/internal/stream"
)

// SeatHandler serves seat snapshots and the live seat event stream.
type SeatHandler struct {
	Seats        *repository.SeatRepo
	Hub          *stream.Hub
	PingInterval time.Duration
}

func NewSeatHandler(seats *repository.SeatRepo, hub *stream.Hub, pingInterval time.Duration) *SeatHandler {
	if pingInterval <= 0 {
		pingInterval = 15 * time.Second
	}
	return &SeatHandler{Seats: seats, Hub: hub, PingInterval: pingInterval}
}

// List handles GET /api/seats. The snapshot reflects committed reservation
// state at read time; clients reconcile in-flight changes via the stream.
func (h *SeatHandler) List(c echo.Context) error {
	scheduleID, err := queryUint(c, "scheduleId")
	if err != nil {
		return err
	}
	seats, err := h.Seats.StatusSnapshot(c.Request().Context(), scheduleID)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, echo.Map{"scheduleId": scheduleID, "seats": seats})
}

// ListAvailable handles GET /api/seats/available, the snapshot filtered
// down to seats a hold attempt could currently succeed on.
func (h *SeatHandler) ListAvailable(c echo.Context) error {
	scheduleID, err := queryUint(c, "scheduleId")
	if err != nil {
		return err
	}
	seats, err := h.Seats.StatusSnapshot(c.Request().Context(), scheduleID)
	if err != nil {
		return err
	}
	available := make([]model.SeatStatus, 0, len(seats))
	for _, s := range seats {
		if !s.Reserved {
			available = append(available, s)
		}
	}
	return c.JSON(http.StatusOK, echo.Map{"scheduleId": scheduleID, "seats": available})
}

// Stream handles GET /api/seats/stream as a server-sent event stream.
// Three event types go over the wire: one "hello" on subscribe, "seat" for
// every state transition, and periodic "ping" keepalives so proxies do not
// reap idle connections. The stream carries change notifications only;
// clients fetch the full snapshot separately.
func (h *SeatHandler) Stream(c echo.Context) error {
	scheduleID, err := queryUint(c, "scheduleId")
	if err != nil {
		return err
	}

	w := c.Response()
	flusher, ok := w.Writer.(http.Flusher)
	if !ok {
		return echo.NewHTTPError(http.StatusInternalServerError, "streaming unsupported")
	}
	w.Header().Set(echo.HeaderContentType, "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	sub := h.Hub.Subscribe(scheduleID)
	defer h.Hub.Unsubscribe(scheduleID, sub)

	fmt.Fprintf(w, "event: hello\ndata: {\"scheduleId\":%d}\n\n", scheduleID)
	flusher.Flush()

	ticker := time.NewTicker(h.PingInterval)
	defer ticker.Stop()

	ctx := c.Request().Context()
	for {
		select {
		case <-ctx.Done():
			return nil
		case evt, ok := <-sub.C:
			if !ok {
				return nil
			}
			data, err := json.Marshal(evt)
			if err != nil {
				continue
			}
			fmt.Fprintf(w, "event: seat\ndata: %s\n\n", data)
			flusher.Flush()
		case <-ticker.C:
			fmt.Fprint(w, "event: ping\ndata: {}\n\n")
			flusher.Flush()
		}
	}
}
