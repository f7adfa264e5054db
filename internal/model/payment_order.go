package model

import "time"

// Payment order status values.
const (
	PaymentPending   = "PENDING"
	PaymentPaid      = "PAID"
	PaymentCancelled = "CANCELLED"
)

// PaymentOrder is created when a holder readies payment for a held seat.
// The mock gateway (or the settlement consumer) completes it; a CANCELLED
// order keeps the failure reason for diagnosis.
//
// Fields:
//  ID         – primary key identifier.
//  OrderNo    – external order reference, "PO-" + random hex.
//  UserID     – purchasing user.
//  ScheduleID – schedule of the seat being bought.
//  SeatNo     – normalized seat label.
//  AmountCents– amount frozen from the seat price at ready time.
//  Status     – PENDING, PAID or CANCELLED.
//  FailReason – populated when the order is cancelled.
type PaymentOrder struct {
	ID          uint64    // payment_orders.id
	OrderNo     string    // payment_orders.order_no
	UserID      uint64    // payment_orders.user_id
	ScheduleID  uint64    // payment_orders.schedule_id
	SeatNo      string    // payment_orders.seat_no
	AmountCents uint32    // payment_orders.amount_cents
	Status      string    // payment_orders.status
	FailReason  *string   // payment_orders.fail_reason (nullable)
	CreatedAt   time.Time // payment_orders.created_at
	UpdatedAt   time.Time // payment_orders.updated_at
}
