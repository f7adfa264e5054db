package model

import "time"

// Seat event types published over the seat stream.
const (
	EventHeld      = "HELD"
	EventReleased  = "RELEASED"
	EventExpired   = "EXPIRED"
	EventConfirmed = "CONFIRMED"
)

// SeatEvent is one seat-state transition as observed by stream subscribers.
// Events for the same seat are delivered in commit order; there is no
// ordering guarantee across different seats.
type SeatEvent struct {
	Type       string    `json:"type"`
	ScheduleID uint64    `json:"scheduleId"`
	SeatNo     string    `json:"seatNo"`
	Reserved   bool      `json:"reserved"`
	UserID     *uint64   `json:"userId"`
	OccurredAt time.Time `json:"occurredAt"`
}
