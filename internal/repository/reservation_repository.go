package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/go-sql-driver/mysql"

	"github.com/lenticket/ticketing/internal/model"
)

// Additional sentinels specific to reservation state.
var (
	// ErrNotOwner is returned when the seat's active reservation belongs to
	// a different user.
	ErrNotOwner = errors.New("reservation owned by different user")

	// ErrHoldExpired is returned when the caller's hold lapsed before the
	// operation.
	ErrHoldExpired = errors.New("hold expired")
)

// ExpiredHold identifies one hold reclaimed by the reaper.
type ExpiredHold struct {
	ScheduleID uint64
	SeatNo     string
	UserID     uint64
}

// ReservationRepo owns the reservations table and, inside Confirm, the
// paired outbox write.  Rows carry an `active` column that is 1 for HELD and
// CONFIRMED rows and NULL otherwise; the unique index on
// (schedule_id, seat_no, active) is what makes "at most one active
// reservation per seat" a database invariant rather than a code path hope
// (MySQL unique indexes permit any number of NULLs).
type ReservationRepo struct {
	db *sql.DB
}

// NewReservationRepo constructs a ReservationRepo given a DB handle.
func NewReservationRepo(db *sql.DB) *ReservationRepo { return &ReservationRepo{db: db} }

func isDuplicateKey(err error) bool {
	var me *mysql.MySQLError
	return errors.As(err, &me) && me.Number == 1062
}

// Hold records a hold for (scheduleID, seatNo) by userID.  Within one
// transaction it retires a stale expired hold on the seat (so reclaim does
// not wait for the reaper), refreshes the deadline when the caller already
// holds the seat, and otherwise inserts a fresh HELD row.  A duplicate-key
// failure means another user's reservation is active and maps to
// ErrAlreadyReserved.
func (r *ReservationRepo) Hold(ctx context.Context, scheduleID uint64, seatNo string, userID uint64, heldAt, expiresAt time.Time) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	// Self-heal: an expired HELD row must not block the next holder.
	if _, err := tx.ExecContext(ctx,
		`UPDATE reservations SET status = ?, active = NULL, updated_at = ?
		  WHERE schedule_id = ? AND seat_no = ? AND active = 1
		    AND status = ? AND expires_at <= ?`,
		model.ReservationExpired, heldAt, scheduleID, seatNo, model.ReservationHeld, heldAt,
	); err != nil {
		return err
	}

	// Idempotent re-hold by the same live holder just refreshes the TTL.
	res, err := tx.ExecContext(ctx,
		`UPDATE reservations SET expires_at = ?, updated_at = ?
		  WHERE schedule_id = ? AND seat_no = ? AND user_id = ? AND active = 1 AND status = ?`,
		expiresAt, heldAt, scheduleID, seatNo, userID, model.ReservationHeld,
	)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		_, err = tx.ExecContext(ctx,
			`INSERT INTO reservations (schedule_id, seat_no, user_id, status, active, held_at, expires_at, created_at, updated_at)
			 VALUES (?, ?, ?, ?, 1, ?, ?, ?, ?)`,
			scheduleID, seatNo, userID, model.ReservationHeld, heldAt, expiresAt, heldAt, heldAt,
		)
		if isDuplicateKey(err) {
			return ErrAlreadyReserved
		}
		if err != nil {
			return err
		}
	}
	if err := tx.Commit(); err != nil {
		return err
	}
	committed = true
	return nil
}

// CancelHold retires the caller's active hold, if any, and reports whether a
// row was actually cancelled.  Cancelling a hold that does not exist is a
// successful no-op; release must always be safe to call twice.
func (r *ReservationRepo) CancelHold(ctx context.Context, scheduleID uint64, seatNo string, userID uint64, now time.Time) (bool, error) {
	res, err := r.db.ExecContext(ctx,
		`UPDATE reservations SET status = ?, active = NULL, updated_at = ?
		  WHERE schedule_id = ? AND seat_no = ? AND user_id = ? AND active = 1 AND status = ?`,
		model.ReservationCancelled, now, scheduleID, seatNo, userID, model.ReservationHeld,
	)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

// ActiveState returns the seat's active reservation, or nil when the seat is
// available.  Snapshot read, no locks taken.
func (r *ReservationRepo) ActiveState(ctx context.Context, scheduleID uint64, seatNo string) (*model.Reservation, error) {
	var (
		rv        model.Reservation
		expiresAt sql.NullTime
	)
	err := r.db.QueryRowContext(ctx,
		`SELECT id, schedule_id, seat_no, user_id, status, held_at, expires_at
		   FROM reservations
		  WHERE schedule_id = ? AND seat_no = ? AND active = 1`,
		scheduleID, seatNo,
	).Scan(&rv.ID, &rv.ScheduleID, &rv.SeatNo, &rv.UserID, &rv.Status, &rv.HeldAt, &expiresAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if expiresAt.Valid {
		t := expiresAt.Time
		rv.ExpiresAt = &t
	}
	return &rv, nil
}

// HasValidHold reports whether userID holds (scheduleID, seatNo) with a
// deadline still in the future at now.
func (r *ReservationRepo) HasValidHold(ctx context.Context, scheduleID uint64, seatNo string, userID uint64, now time.Time) (bool, error) {
	var one int
	err := r.db.QueryRowContext(ctx,
		`SELECT 1 FROM reservations
		  WHERE schedule_id = ? AND seat_no = ? AND user_id = ? AND active = 1
		    AND status = ? AND expires_at > ?`,
		scheduleID, seatNo, userID, model.ReservationHeld, now,
	).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// Confirm flips the caller's hold to CONFIRMED and writes the outbox event
// in the same transaction; either both land or neither does.  When the seat
// is already CONFIRMED by the same user the call reports already=true and
// writes nothing, which is what makes repeated confirm idempotent without a
// second outbox row.
func (r *ReservationRepo) Confirm(ctx context.Context, scheduleID uint64, seatNo string, userID uint64, now time.Time, evt model.OutboxEvent) (already bool, err error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return false, err
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	var (
		id        uint64
		owner     uint64
		status    string
		expiresAt sql.NullTime
	)
	err = tx.QueryRowContext(ctx,
		`SELECT id, user_id, status, expires_at FROM reservations
		  WHERE schedule_id = ? AND seat_no = ? AND active = 1 FOR UPDATE`,
		scheduleID, seatNo,
	).Scan(&id, &owner, &status, &expiresAt)
	if err == sql.ErrNoRows {
		return false, ErrHoldNotFound
	}
	if err != nil {
		return false, err
	}

	switch {
	case status == model.ReservationConfirmed && owner == userID:
		return true, nil // idempotent re-confirm, nothing to write
	case status == model.ReservationConfirmed:
		return false, ErrAlreadyReserved
	case owner != userID:
		return false, ErrNotOwner
	case expiresAt.Valid && !now.Before(expiresAt.Time):
		return false, ErrHoldExpired
	}

	if _, err = tx.ExecContext(ctx,
		`UPDATE reservations SET status = ?, expires_at = NULL, updated_at = ? WHERE id = ?`,
		model.ReservationConfirmed, now, id,
	); err != nil {
		return false, err
	}

	if _, err = tx.ExecContext(ctx,
		`INSERT INTO outbox_events (event_id, topic, event_key, payload, status, retry_count, max_retry, next_retry_at, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, 0, ?, ?, ?, ?)`,
		evt.EventID, evt.Topic, evt.EventKey, evt.Payload, model.OutboxPending, evt.MaxRetry, now, now, now,
	); err != nil {
		return false, err
	}

	if err = tx.Commit(); err != nil {
		return false, err
	}
	committed = true
	return false, nil
}

// ExpireBatch retires up to limit lapsed holds and returns the reclaimed
// seats so the reaper can drop their locks and publish EXPIRED events.  The
// select and update run in one transaction; a hold released or confirmed
// between sweeps simply stops matching and drops out of the batch.
func (r *ReservationRepo) ExpireBatch(ctx context.Context, now time.Time, limit int) ([]ExpiredHold, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	rows, err := tx.QueryContext(ctx,
		`SELECT id, schedule_id, seat_no, user_id FROM reservations
		  WHERE active = 1 AND status = ? AND expires_at <= ?
		  ORDER BY expires_at LIMIT ? FOR UPDATE SKIP LOCKED`,
		model.ReservationHeld, now, limit,
	)
	if err != nil {
		return nil, err
	}
	var (
		ids     []interface{}
		expired []ExpiredHold
	)
	for rows.Next() {
		var (
			id uint64
			eh ExpiredHold
		)
		if err := rows.Scan(&id, &eh.ScheduleID, &eh.SeatNo, &eh.UserID); err != nil {
			rows.Close()
			return nil, err
		}
		ids = append(ids, id)
		expired = append(expired, eh)
	}
	if err := rows.Close(); err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		committed = true
		return nil, tx.Commit()
	}

	query := `UPDATE reservations SET status = ?, active = NULL, updated_at = ? WHERE id IN (?`
	args := []interface{}{model.ReservationExpired, now, ids[0]}
	for _, id := range ids[1:] {
		query += ",?"
		args = append(args, id)
	}
	query += ")"
	if _, err := tx.ExecContext(ctx, query, args...); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	committed = true
	return expired, nil
}

// ListByUser returns every reservation the user has made across all
// schedules, newest first.  Retired EXPIRED and CANCELLED rows are included
// so the listing doubles as a booking history.
func (r *ReservationRepo) ListByUser(ctx context.Context, userID uint64) ([]model.Reservation, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, schedule_id, seat_no, user_id, status, held_at, expires_at, created_at, updated_at
		   FROM reservations
		  WHERE user_id = ?
		  ORDER BY created_at DESC, id DESC`,
		userID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.Reservation
	for rows.Next() {
		var (
			res       model.Reservation
			expiresAt sql.NullTime
		)
		if err := rows.Scan(&res.ID, &res.ScheduleID, &res.SeatNo, &res.UserID, &res.Status, &res.HeldAt, &expiresAt, &res.CreatedAt, &res.UpdatedAt); err != nil {
			return nil, err
		}
		if expiresAt.Valid {
			t := expiresAt.Time
			res.ExpiresAt = &t
		}
		out = append(out, res)
	}
	return out, rows.Err()
}
