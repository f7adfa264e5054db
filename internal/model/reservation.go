package model

import "time"

// Reservation status values.  A seat has at most one active (HELD or
// CONFIRMED) reservation at any instant; EXPIRED and CANCELLED rows are kept
// for audit but never block a new hold.
const (
	ReservationHeld      = "HELD"
	ReservationConfirmed = "CONFIRMED"
	ReservationExpired   = "EXPIRED"
	ReservationCancelled = "CANCELLED"
)

// Reservation records a user's claim on a single seat of a schedule.  A row
// is created when a hold succeeds, flipped to CONFIRMED by confirm, and
// retired to EXPIRED by the reaper or CANCELLED by an explicit release.
//
// Fields:
//  ID         – primary key identifier.
//  ScheduleID – schedule the seat belongs to.
//  SeatNo     – normalized seat label.
//  UserID     – holder of the reservation.
//  Status     – HELD, CONFIRMED, EXPIRED or CANCELLED.
//  HeldAt     – when the hold was taken.
//  ExpiresAt  – hold deadline; nil once confirmed.
//  CreatedAt  – creation timestamp.
//  UpdatedAt  – last update timestamp.
type Reservation struct {
	ID         uint64     // reservations.id
	ScheduleID uint64     // reservations.schedule_id
	SeatNo     string     // reservations.seat_no
	UserID     uint64     // reservations.user_id
	Status     string     // reservations.status
	HeldAt     time.Time  // reservations.held_at
	ExpiresAt  *time.Time // reservations.expires_at (nullable)
	CreatedAt  time.Time  // reservations.created_at
	UpdatedAt  time.Time  // reservations.updated_at
}

// Active reports whether the reservation currently blocks the seat: any
// CONFIRMED row, or a HELD row whose deadline has not passed at now.
func (r *Reservation) Active(now time.Time) bool {
	switch r.Status {
	case ReservationConfirmed:
		return true
	case ReservationHeld:
		return r.ExpiresAt == nil || now.Before(*r.ExpiresAt)
	default:
		return false
	}
}
