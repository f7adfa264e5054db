package repository

import "errors"

// Sentinel errors shared across repositories.  Services translate these into
// the apperr taxonomy; repositories never shape HTTP responses themselves.
var (
	// ErrSeatNotFound is returned when a (scheduleId, seatNo) pair does not
	// exist in the catalog.
	ErrSeatNotFound = errors.New("seat not found")

	// ErrAlreadyReserved is returned when an insert or update lost against
	// an existing active reservation for the same seat.
	ErrAlreadyReserved = errors.New("seat already reserved")

	// ErrHoldNotFound is returned when an operation requires an active hold
	// and none exists.
	ErrHoldNotFound = errors.New("no active hold")

	// ErrOrderNotFound is returned when a payment order lookup misses.
	ErrOrderNotFound = errors.New("payment order not found")
)
