package router // package router defines how HTTP routes are registered for the API

import (
	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"

	"github.com/lenticket/ticketing/internal/config"
	"github.com/lenticket/ticketing/internal/handler"
	"github.com/lenticket/ticketing/internal/middleware"
)

// Handlers bundles the API surface so wiring stays in one place.
type Handlers struct {
	Queue       *handler.QueueHandler
	Ticket      *handler.TicketHandler
	Seat        *handler.SeatHandler
	Payment     *handler.PaymentHandler
	Reservation *handler.ReservationHandler
}

// RegisterRoutes mounts the full API. The rate limiter guards only the
// mutating ticket and payment endpoints; queue polling and seat reads are
// designed to absorb bursts and stay unthrottled, and the SSE stream is
// long-lived so a per-request limiter would count one connection as one
// request anyway.
func RegisterRoutes(e *echo.Echo, h Handlers, cfg config.Config, rdb *redis.Client) {
	e.GET("/healthz", handler.Health)

	api := e.Group("/api")

	queue := api.Group("/queue")
	queue.POST("/enter", h.Queue.Enter)
	queue.GET("/status", h.Queue.Status)

	limiter := middleware.NewTokenBucket(cfg.RateLimit, rdb)
	tickets := api.Group("/tickets", limiter)
	tickets.POST("/hold", h.Ticket.Hold)
	tickets.POST("/release", h.Ticket.Release)
	tickets.POST("/confirm", h.Ticket.Confirm)

	// The reservations hold path is the one the load scenarios drive; it is
	// an alias for the ticket hold flow and shares its limiter.
	reservations := api.Group("/reservations")
	reservations.GET("", h.Reservation.ListByUser)
	reservations.POST("/hold", h.Reservation.Hold, limiter)

	snapshotCache := middleware.SeatSnapshotCache(cfg.SeatCacheTTL, rdb)
	seats := api.Group("/seats")
	seats.GET("", h.Seat.List, snapshotCache)
	seats.GET("/available", h.Seat.ListAvailable, snapshotCache)
	seats.GET("/stream", h.Seat.Stream)

	payments := api.Group("/payments", limiter)
	payments.POST("/ready", h.Payment.Ready)
	payments.POST("/mock-success", h.Payment.MockSuccess)
}
