package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/lenticket/ticketing/internal/model"
)

// PaymentRepo encapsulates database operations for payment_orders.
type PaymentRepo struct {
	db *sql.DB
}

// NewPaymentRepo constructs a PaymentRepo given a DB handle.
func NewPaymentRepo(db *sql.DB) *PaymentRepo { return &PaymentRepo{db: db} }

// Create inserts a new PENDING order.
func (r *PaymentRepo) Create(ctx context.Context, o *model.PaymentOrder) error {
	res, err := r.db.ExecContext(ctx,
		`INSERT INTO payment_orders (order_no, user_id, schedule_id, seat_no, amount_cents, status, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		o.OrderNo, o.UserID, o.ScheduleID, o.SeatNo, o.AmountCents, model.PaymentPending, o.CreatedAt, o.CreatedAt,
	)
	if err != nil {
		return err
	}
	id, err := res.LastInsertId()
	if err == nil {
		o.ID = uint64(id)
	}
	return nil
}

// FindByOrderNo returns the order with the given external reference, or
// ErrOrderNotFound.
func (r *PaymentRepo) FindByOrderNo(ctx context.Context, orderNo string) (*model.PaymentOrder, error) {
	var (
		o          model.PaymentOrder
		failReason sql.NullString
	)
	err := r.db.QueryRowContext(ctx,
		`SELECT id, order_no, user_id, schedule_id, seat_no, amount_cents, status, fail_reason, created_at, updated_at
		   FROM payment_orders WHERE order_no = ?`,
		orderNo,
	).Scan(&o.ID, &o.OrderNo, &o.UserID, &o.ScheduleID, &o.SeatNo, &o.AmountCents, &o.Status, &failReason, &o.CreatedAt, &o.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrOrderNotFound
	}
	if err != nil {
		return nil, err
	}
	if failReason.Valid {
		s := failReason.String
		o.FailReason = &s
	}
	return &o, nil
}

// MarkPaid completes the order.
func (r *PaymentRepo) MarkPaid(ctx context.Context, orderNo string, now time.Time) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE payment_orders SET status = ?, fail_reason = NULL, updated_at = ? WHERE order_no = ?`,
		model.PaymentPaid, now, orderNo,
	)
	return err
}

// MarkCancelled records a failed completion together with its reason.
func (r *PaymentRepo) MarkCancelled(ctx context.Context, orderNo, reason string, now time.Time) error {
	if len(reason) > 255 {
		reason = reason[:255]
	}
	_, err := r.db.ExecContext(ctx,
		`UPDATE payment_orders SET status = ?, fail_reason = ?, updated_at = ? WHERE order_no = ?`,
		model.PaymentCancelled, reason, now, orderNo,
	)
	return err
}

// MarkPaidForSeat settles any PENDING order the user has on the seat.  The
// settlement consumer calls this when a confirm handoff arrives; zero rows
// just means the confirm did not go through the payment flow.
func (r *PaymentRepo) MarkPaidForSeat(ctx context.Context, scheduleID uint64, seatNo string, userID uint64, now time.Time) (bool, error) {
	res, err := r.db.ExecContext(ctx,
		`UPDATE payment_orders SET status = ?, fail_reason = NULL, updated_at = ?
		  WHERE schedule_id = ? AND seat_no = ? AND user_id = ? AND status = ?`,
		model.PaymentPaid, now, scheduleID, seatNo, userID, model.PaymentPending,
	)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

// InsertDedup records that eventID has been processed.  It returns false
// when the event was already seen, making the settlement consumer
// idempotent across redeliveries.
func (r *PaymentRepo) InsertDedup(ctx context.Context, eventID string, now time.Time) (bool, error) {
	res, err := r.db.ExecContext(ctx,
		`INSERT IGNORE INTO consumer_dedup (event_id, processed_at) VALUES (?, ?)`,
		eventID, now,
	)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

// DeleteDedup rolls the dedup marker back so a transient failure can be
// retried on redelivery.
func (r *PaymentRepo) DeleteDedup(ctx context.Context, eventID string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM consumer_dedup WHERE event_id = ?`, eventID)
	return err
}
