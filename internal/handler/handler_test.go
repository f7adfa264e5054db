package handler_test

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sort"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lenticket/ticketing/internal/clock"
	"github.com/lenticket/ticketing/internal/config"
	"github.com/lenticket/ticketing/internal/handler"
	"github.com/lenticket/ticketing/internal/middleware"
	"github.com/lenticket/ticketing/internal/model"
	"github.com/lenticket/ticketing/internal/repository"
	"github.com/lenticket/ticketing/internal/router"
	"github.com/lenticket/ticketing/internal/service"
	"github.com/lenticket/ticketing/internal/store/memory"
	"github.com/lenticket/ticketing/internal/stream"
)

// memReservations is a map-backed reservation store for API tests.
type memReservations struct {
	rows map[string]*model.Reservation
	seq  uint64
}

func rkey(scheduleID uint64, seatNo string) string {
	return fmt.Sprintf("%d:%s", scheduleID, seatNo)
}

func (m *memReservations) Hold(_ context.Context, scheduleID uint64, seatNo string, userID uint64, heldAt, expiresAt time.Time) error {
	if r, ok := m.rows[rkey(scheduleID, seatNo)]; ok && r.Active(heldAt) {
		if r.Status == model.ReservationHeld && r.UserID == userID {
			r.ExpiresAt = &expiresAt
			return nil
		}
		return repository.ErrAlreadyReserved
	}
	m.seq++
	m.rows[rkey(scheduleID, seatNo)] = &model.Reservation{
		ID: m.seq, ScheduleID: scheduleID, SeatNo: seatNo, UserID: userID,
		Status: model.ReservationHeld, HeldAt: heldAt, ExpiresAt: &expiresAt,
		CreatedAt: heldAt, UpdatedAt: heldAt,
	}
	return nil
}

func (m *memReservations) ListByUser(_ context.Context, userID uint64) ([]model.Reservation, error) {
	var out []model.Reservation
	for _, r := range m.rows {
		if r.UserID == userID {
			out = append(out, *r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	return out, nil
}

func (m *memReservations) CancelHold(_ context.Context, scheduleID uint64, seatNo string, userID uint64, _ time.Time) (bool, error) {
	r, ok := m.rows[rkey(scheduleID, seatNo)]
	if !ok || r.Status != model.ReservationHeld || r.UserID != userID {
		return false, nil
	}
	r.Status = model.ReservationCancelled
	return true, nil
}

func (m *memReservations) ActiveState(_ context.Context, scheduleID uint64, seatNo string) (*model.Reservation, error) {
	r, ok := m.rows[rkey(scheduleID, seatNo)]
	if !ok || (r.Status != model.ReservationHeld && r.Status != model.ReservationConfirmed) {
		return nil, nil
	}
	cp := *r
	return &cp, nil
}

func (m *memReservations) HasValidHold(_ context.Context, scheduleID uint64, seatNo string, userID uint64, now time.Time) (bool, error) {
	r, ok := m.rows[rkey(scheduleID, seatNo)]
	return ok && r.Status == model.ReservationHeld && r.UserID == userID && r.Active(now), nil
}

func (m *memReservations) Confirm(_ context.Context, scheduleID uint64, seatNo string, userID uint64, now time.Time, _ model.OutboxEvent) (bool, error) {
	r, ok := m.rows[rkey(scheduleID, seatNo)]
	switch {
	case !ok || r.Status == model.ReservationCancelled || r.Status == model.ReservationExpired:
		return false, repository.ErrHoldNotFound
	case r.Status == model.ReservationConfirmed && r.UserID == userID:
		return true, nil
	case r.Status == model.ReservationConfirmed:
		return false, repository.ErrAlreadyReserved
	case r.UserID != userID:
		return false, repository.ErrNotOwner
	case r.ExpiresAt != nil && !now.Before(*r.ExpiresAt):
		return false, repository.ErrHoldExpired
	}
	r.Status = model.ReservationConfirmed
	r.ExpiresAt = nil
	return false, nil
}

func (m *memReservations) ExpireBatch(_ context.Context, now time.Time, limit int) ([]repository.ExpiredHold, error) {
	var out []repository.ExpiredHold
	for _, r := range m.rows {
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

// memCatalog serves a fixed seat set.
type memCatalog struct{ seats map[string]uint32 }

func (m *memCatalog) Exists(_ context.Context, scheduleID uint64, seatNo string) (bool, error) {
	_, ok := m.seats[rkey(scheduleID, seatNo)]
	return ok, nil
}

func (m *memCatalog) PriceCents(_ context.Context, scheduleID uint64, seatNo string) (uint32, error) {
	p, ok := m.seats[rkey(scheduleID, seatNo)]
	if !ok {
		return 0, repository.ErrSeatNotFound
	}
	return p, nil
}

// memOrders is a map-backed payment order store.
type memOrders struct{ orders map[string]*model.PaymentOrder }

func (m *memOrders) Create(_ context.Context, o *model.PaymentOrder) error {
	cp := *o
	m.orders[o.OrderNo] = &cp
	return nil
}

func (m *memOrders) FindByOrderNo(_ context.Context, orderNo string) (*model.PaymentOrder, error) {
	o, ok := m.orders[orderNo]
	if !ok {
		return nil, repository.ErrOrderNotFound
	}
	cp := *o
	return &cp, nil
}

func (m *memOrders) MarkPaid(_ context.Context, orderNo string, _ time.Time) error {
	if o, ok := m.orders[orderNo]; ok {
		o.Status = model.PaymentPaid
	}
	return nil
}

func (m *memOrders) MarkCancelled(_ context.Context, orderNo, reason string, _ time.Time) error {
	if o, ok := m.orders[orderNo]; ok {
		o.Status = model.PaymentCancelled
		o.FailReason = &reason
	}
	return nil
}

type apiFixture struct {
	e   *echo.Echo
	clk *clock.Fake
}

func newAPIFixture(queueEnabled, bypassEnabled bool) *apiFixture {
	clk := clock.NewFake(time.Date(2026, 8, 1, 10, 0, 0, 0, time.UTC))
	locks := memory.NewSeatLockStore(clk)
	queue := memory.NewQueueStore(clk)
	resv := &memReservations{rows: make(map[string]*model.Reservation)}
	catalog := &memCatalog{seats: map[string]uint32{
		rkey(1, "A-1"): 120000,
		rkey(1, "A-2"): 120000,
	}}
	orders := &memOrders{orders: make(map[string]*model.PaymentOrder)}
	hub := stream.NewHub()

	tickets := service.NewTicketService(locks, queue, resv, catalog, hub, clk, service.TicketConfig{
		HoldTTL:      2 * time.Minute,
		QueueEnabled: queueEnabled,
	})
	queueSvc := service.NewQueueService(queue, service.QueueConfig{Capacity: 2, PassTTL: 5 * time.Minute})
	payments := service.NewPaymentService(catalog, resv, orders, tickets, clk)

	e := echo.New()
	e.HTTPErrorHandler = middleware.ErrorHandler
	router.RegisterRoutes(e, router.Handlers{
		Queue:       handler.NewQueueHandler(queueSvc),
		Ticket:      handler.NewTicketHandler(tickets, bypassEnabled),
		Seat:        handler.NewSeatHandler(nil, hub, time.Second),
		Payment:     handler.NewPaymentHandler(payments),
		Reservation: handler.NewReservationHandler(resv, tickets, bypassEnabled),
	}, config.Config{}, nil)

	return &apiFixture{e: e, clk: clk}
}

func (f *apiFixture) do(method, path, body string, headers map[string]string) *httptest.ResponseRecorder {
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	f.e.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	return out
}

func TestQueueEnterAndStatusEndpoints(t *testing.T) {
	f := newAPIFixture(true, false)

	rec := f.do(http.MethodPost, "/api/queue/enter", `{"scheduleId":1,"userId":10}`, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	body := decode(t, rec)
	assert.Equal(t, true, body["canEnter"])
	assert.NotEmpty(t, body["token"])

	// capacity 2: third user waits at rank 1
	f.do(http.MethodPost, "/api/queue/enter", `{"scheduleId":1,"userId":20}`, nil)
	rec = f.do(http.MethodPost, "/api/queue/enter", `{"scheduleId":1,"userId":30}`, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	body = decode(t, rec)
	assert.Equal(t, false, body["canEnter"])
	assert.Equal(t, float64(1), body["rank"])
	assert.Nil(t, body["token"])

	rec = f.do(http.MethodGet, "/api/queue/status?scheduleId=1&userId=30", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	body = decode(t, rec)
	assert.Equal(t, false, body["canEnter"])

	rec = f.do(http.MethodPost, "/api/queue/enter", `{"scheduleId":0,"userId":10}`, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "INVALID_REQUEST", decode(t, rec)["error"])
}

func TestHoldEndpointQueueGate(t *testing.T) {
	f := newAPIFixture(true, false)

	rec := f.do(http.MethodPost, "/api/tickets/hold", `{"scheduleId":1,"seatNo":"A-1","userId":10}`, nil)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "ADMISSION_REQUIRED", decode(t, rec)["error"])

	// bypass header is ignored while bypass is disabled
	rec = f.do(http.MethodPost, "/api/tickets/hold", `{"scheduleId":1,"seatNo":"A-1","userId":10}`,
		map[string]string{handler.HeaderLoadtestBypass: "1"})
	require.Equal(t, http.StatusBadRequest, rec.Code)

	enter := f.do(http.MethodPost, "/api/queue/enter", `{"scheduleId":1,"userId":10}`, nil)
	token, _ := decode(t, enter)["token"].(string)
	require.NotEmpty(t, token)

	rec = f.do(http.MethodPost, "/api/tickets/hold", `{"scheduleId":1,"seatNo":"a-1","userId":10}`,
		map[string]string{handler.HeaderQueueToken: token})
	require.Equal(t, http.StatusOK, rec.Code)
	body := decode(t, rec)
	assert.Equal(t, "HELD", body["status"])
	assert.Equal(t, "A-1", body["seatNo"], "response carries the normalized label")
	assert.NotEmpty(t, body["expiresAt"])
}

func TestHoldEndpointConflictAndBypass(t *testing.T) {
	f := newAPIFixture(true, true)
	bypass := map[string]string{handler.HeaderLoadtestBypass: "true"}

	rec := f.do(http.MethodPost, "/api/tickets/hold", `{"scheduleId":1,"seatNo":"A-1","userId":10}`, bypass)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = f.do(http.MethodPost, "/api/tickets/hold", `{"scheduleId":1,"seatNo":"A-1","userId":20}`, bypass)
	require.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "SEAT_ALREADY_LOCKED", decode(t, rec)["error"])

	rec = f.do(http.MethodPost, "/api/tickets/hold", `{"scheduleId":1,"seatNo":"Z-9","userId":20}`, bypass)
	require.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "SEAT_NOT_FOUND", decode(t, rec)["error"])
}

func TestReleaseAndConfirmEndpoints(t *testing.T) {
	f := newAPIFixture(false, false)

	rec := f.do(http.MethodPost, "/api/tickets/hold", `{"scheduleId":1,"seatNo":"A-1","userId":10}`, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = f.do(http.MethodPost, "/api/tickets/release", `{"scheduleId":1,"seatNo":"A-1","userId":10}`, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "RELEASED", decode(t, rec)["status"])

	// confirm without a live hold is a conflict
	rec = f.do(http.MethodPost, "/api/tickets/confirm", `{"scheduleId":1,"seatNo":"A-1","userId":10}`, nil)
	require.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "HOLD_NOT_FOUND", decode(t, rec)["error"])

	f.do(http.MethodPost, "/api/tickets/hold", `{"scheduleId":1,"seatNo":"A-1","userId":10}`, nil)
	rec = f.do(http.MethodPost, "/api/tickets/confirm", `{"scheduleId":1,"seatNo":"A-1","userId":10}`, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	body := decode(t, rec)
	assert.Equal(t, "CONFIRMED", body["status"])
	assert.Equal(t, false, body["alreadyConfirmed"])

	rec = f.do(http.MethodPost, "/api/tickets/confirm", `{"scheduleId":1,"seatNo":"A-1","userId":10}`, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, true, decode(t, rec)["alreadyConfirmed"])

	rec = f.do(http.MethodPost, "/api/tickets/release", `{"scheduleId":1,"seatNo":"A-1","userId":10}`, nil)
	require.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "RELEASE_CONFIRMED", decode(t, rec)["error"])
}

func TestPaymentEndpoints(t *testing.T) {
	f := newAPIFixture(false, false)

	rec := f.do(http.MethodPost, "/api/tickets/hold", `{"scheduleId":1,"seatNo":"A-1","userId":10}`, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = f.do(http.MethodPost, "/api/payments/ready", `{"scheduleId":1,"seatNo":"A-1","userId":10}`, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	body := decode(t, rec)
	orderNo, _ := body["orderNo"].(string)
	assert.True(t, strings.HasPrefix(orderNo, "PO-"))
	assert.Equal(t, float64(120000), body["amountCents"])
	assert.Equal(t, "PENDING", body["status"])

	rec = f.do(http.MethodPost, "/api/payments/mock-success", `{"orderNo":"`+orderNo+`"}`, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, true, decode(t, rec)["success"])

	rec = f.do(http.MethodPost, "/api/payments/mock-success", `{"orderNo":"PO-unknown"}`, nil)
	require.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "PAYMENT_ORDER_NOT_FOUND", decode(t, rec)["error"])
}

func TestHealthEndpoint(t *testing.T) {
	f := newAPIFixture(false, false)
	rec := f.do(http.MethodGet, "/healthz", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", rec.Body.String())
}

func TestReservationEndpoints(t *testing.T) {
	f := newAPIFixture(false, false)

	rec := f.do(http.MethodPost, "/api/reservations/hold", `{"scheduleId":1,"seatNo":"a-1","userId":7}`, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	body := decode(t, rec)
	assert.Equal(t, "A-1", body["seatNo"])
	assert.Equal(t, model.ReservationHeld, body["status"])

	// numeric seatId addressing goes through the same catalog check
	rec = f.do(http.MethodPost, "/api/reservations/hold", `{"scheduleId":1,"seatId":42,"userId":7}`, nil)
	require.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "SEAT_NOT_FOUND", decode(t, rec)["error"])

	rec = f.do(http.MethodGet, "/api/reservations?userId=7", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var list []map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
	require.Len(t, list, 1)
	assert.Equal(t, "A-1", list[0]["seatNo"])
	assert.Equal(t, model.ReservationHeld, list[0]["status"])

	// a user with no bookings gets an empty array, not null
	rec = f.do(http.MethodGet, "/api/reservations?userId=8", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "[]", strings.TrimSpace(rec.Body.String()))

	rec = f.do(http.MethodGet, "/api/reservations", "", nil)
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestReservationHoldAliasQueueGate(t *testing.T) {
	f := newAPIFixture(true, true)

	rec := f.do(http.MethodPost, "/api/reservations/hold", `{"scheduleId":1,"seatNo":"A-1","userId":7}`, nil)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "ADMISSION_REQUIRED", decode(t, rec)["error"])

	// the admission token may ride in the body instead of the header
	rec = f.do(http.MethodPost, "/api/queue/enter", `{"scheduleId":1,"userId":7}`, nil)
	token, _ := decode(t, rec)["token"].(string)
	require.NotEmpty(t, token)
	rec = f.do(http.MethodPost, "/api/reservations/hold",
		fmt.Sprintf(`{"scheduleId":1,"seatNo":"A-1","userId":7,"queueToken":%q}`, token), nil)
	require.Equal(t, http.StatusOK, rec.Code)

	// so may the bypass flag, honored because the server enables it
	rec = f.do(http.MethodPost, "/api/reservations/hold", `{"scheduleId":1,"seatNo":"A-2","userId":8,"bypassQueue":true}`, nil)
	require.Equal(t, http.StatusOK, rec.Code)
}
