// Package apperr defines the business error taxonomy shared by services and
// handlers.  Every error carries a stable machine-readable code and the HTTP
// status it maps to, so the central error handler never has to guess.
package apperr

import "net/http"

// Error is a business-level failure.  Conflict-class errors are expected,
// high-frequency outcomes under contention and must stay cheap: no stack
// capture, no wrapping chain, just a shared sentinel value.
type Error struct {
	Status  int    // HTTP status the error maps to
	Code    string // stable machine-readable code
	Message string // human-readable description
}

func (e *Error) Error() string { return e.Code + ": " + e.Message }

var (
	// Common
	ErrInvalidRequest = &Error{http.StatusBadRequest, "INVALID_REQUEST", "request values are missing or malformed"}
	ErrInternal       = &Error{http.StatusInternalServerError, "INTERNAL_ERROR", "unexpected internal error"}

	// Seats / locks / reservations
	ErrSeatNotFound      = &Error{http.StatusNotFound, "SEAT_NOT_FOUND", "seat does not exist"}
	ErrSeatAlreadyLocked = &Error{http.StatusConflict, "SEAT_ALREADY_LOCKED", "seat is already held by another user"}
	ErrAlreadyReserved   = &Error{http.StatusConflict, "ALREADY_RESERVED", "seat is already confirmed"}
	ErrHoldNotFound      = &Error{http.StatusConflict, "HOLD_NOT_FOUND", "no active hold for this seat"}
	ErrHoldExpired       = &Error{http.StatusBadRequest, "HOLD_EXPIRED", "hold expired before confirmation"}
	ErrNotSeatOwner      = &Error{http.StatusConflict, "NOT_SEAT_OWNER", "seat is held by a different user"}
	ErrReleaseConfirmed  = &Error{http.StatusConflict, "RELEASE_CONFIRMED", "confirmed seats cannot be released"}

	// Queue admission
	ErrAdmissionRequired = &Error{http.StatusBadRequest, "ADMISSION_REQUIRED", "queue admission token missing or invalid"}
	ErrAdmissionExpired  = &Error{http.StatusBadRequest, "ADMISSION_EXPIRED", "queue admission token expired"}

	// Payments
	ErrPaymentOrderNotFound = &Error{http.StatusNotFound, "PAYMENT_ORDER_NOT_FOUND", "payment order does not exist"}
)
