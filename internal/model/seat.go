package model

import (
	"strings"
	"time"
)

// Seat describes one sellable seat of a schedule.  Seats are identified by
// (ScheduleID, SeatNo) where SeatNo is a normalized uppercase label such as
// "A-1".  The catalog is pre-seeded when a schedule opens for sale.
//
// Fields:
//  ID         – primary key identifier.
//  ScheduleID – schedule to which this seat belongs.
//  SeatNo     – normalized seat label, unique within the schedule.
//  PriceCents – price in cents used when a payment order is created.
//  CreatedAt  – creation timestamp.
type Seat struct {
	ID         uint64    // seats.id
	ScheduleID uint64    // seats.schedule_id
	SeatNo     string    // seats.seat_no
	PriceCents uint32    // seats.price_cents
	CreatedAt  time.Time // seats.created_at
}

// NormalizeSeatNo canonicalizes a client-supplied seat label: surrounding
// whitespace is dropped and the label is uppercased.  Every code path that
// touches a seat key must go through this so "a-1 " and "A-1" address the
// same seat.
func NormalizeSeatNo(seatNo string) string {
	return strings.ToUpper(strings.TrimSpace(seatNo))
}

// SeatStatus is the canonical wire representation of one seat's current
// state as returned by GET /api/seats.  There is exactly one schema; clients
// are not given fallback fields to duck-type against.
type SeatStatus struct {
	SeatNo     string     `json:"seatNo"`
	Reserved   bool       `json:"reserved"`
	Status     string     `json:"status"` // AVAILABLE, HELD or CONFIRMED
	UserID     *uint64    `json:"userId,omitempty"`
	ExpiresAt  *time.Time `json:"expiresAt,omitempty"`
	PriceCents uint32     `json:"priceCents"`
}
