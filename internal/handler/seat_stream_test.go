package handler_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lenticket/ticketing/internal/handler"
	"github.com/lenticket/ticketing/internal/model"
	"github.com/lenticket/ticketing/internal/stream"
)

func TestSeatStreamDeliversEvents(t *testing.T) {
	hub := stream.NewHub()
	h := handler.NewSeatHandler(nil, hub, time.Hour) // no keepalives during the test

	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/api/seats/stream?scheduleId=1", nil)
	ctx, cancel := context.WithCancel(req.Context())
	defer cancel()
	req = req.WithContext(ctx)
	rec := httptest.NewRecorder()

	done := make(chan error, 1)
	go func() { done <- h.Stream(e.NewContext(req, rec)) }()

	require.Eventually(t, func() bool { return hub.SubscriberCount(1) == 1 },
		time.Second, 5*time.Millisecond, "stream did not subscribe")

	uid := uint64(10)
	hub.Publish(model.SeatEvent{
		Type:       model.EventHeld,
		ScheduleID: 1,
		SeatNo:     "A-1",
		Reserved:   true,
		UserID:     &uid,
		OccurredAt: time.Date(2026, 8, 1, 10, 0, 0, 0, time.UTC),
	})

	// give the handler a beat to flush, then close the connection
	time.Sleep(50 * time.Millisecond)
	cancel()
	require.NoError(t, <-done)
	assert.Zero(t, hub.SubscriberCount(1), "disconnect unsubscribes")

	body := rec.Body.String()
	assert.Equal(t, "text/event-stream", rec.Header().Get(echo.HeaderContentType))
	assert.Contains(t, body, "event: hello")
	assert.Contains(t, body, `data: {"scheduleId":1}`)
	assert.Contains(t, body, "event: seat")
	assert.Contains(t, body, `"seatNo":"A-1"`)
	assert.Contains(t, body, `"type":"HELD"`)
}

func TestSeatStreamRejectsMissingSchedule(t *testing.T) {
	hub := stream.NewHub()
	h := handler.NewSeatHandler(nil, hub, time.Hour)

	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/api/seats/stream", nil)
	rec := httptest.NewRecorder()

	err := h.Stream(e.NewContext(req, rec))
	require.Error(t, err)
	assert.Zero(t, hub.SubscriberCount(0))
}
