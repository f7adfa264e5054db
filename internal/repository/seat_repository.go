// Package repository provides raw-SQL data access over MySQL.  Each repo
// owns one table family; cross-table writes that must be atomic (confirm
// plus outbox) live in a single repo method so the transaction boundary is
// structural, not a caller convention.
package repository

import (
	"context"
	"database/sql"

	"github.com/lenticket/ticketing/internal/model"
)

// SeatRepo encapsulates database operations for the seats catalog.
type SeatRepo struct {
	db *sql.DB
}

// NewSeatRepo constructs a SeatRepo given a DB handle.
func NewSeatRepo(db *sql.DB) *SeatRepo { return &SeatRepo{db: db} }

// Exists reports whether (scheduleID, seatNo) is a known seat.
func (r *SeatRepo) Exists(ctx context.Context, scheduleID uint64, seatNo string) (bool, error) {
	var one int
	err := r.db.QueryRowContext(ctx,
		`SELECT 1 FROM seats WHERE schedule_id = ? AND seat_no = ?`,
		scheduleID, seatNo,
	).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// PriceCents returns the price of a seat, or ErrSeatNotFound.
func (r *SeatRepo) PriceCents(ctx context.Context, scheduleID uint64, seatNo string) (uint32, error) {
	var price uint32
	err := r.db.QueryRowContext(ctx,
		`SELECT price_cents FROM seats WHERE schedule_id = ? AND seat_no = ?`,
		scheduleID, seatNo,
	).Scan(&price)
	if err == sql.ErrNoRows {
		return 0, ErrSeatNotFound
	}
	if err != nil {
		return 0, err
	}
	return price, nil
}

// SeedBulk inserts seats for a schedule, skipping labels that already exist.
// Used at schedule setup; the load harness relies on the catalog being
// present before the doors open.
func (r *SeatRepo) SeedBulk(ctx context.Context, scheduleID uint64, seats []model.Seat) error {
	if len(seats) == 0 {
		return nil
	}
	query := `INSERT IGNORE INTO seats (schedule_id, seat_no, price_cents) VALUES `
	args := make([]interface{}, 0, len(seats)*3)
	for i, s := range seats {
		if i > 0 {
			query += ","
		}
		query += "(?, ?, ?)"
		args = append(args, scheduleID, s.SeatNo, s.PriceCents)
	}
	_, err := r.db.ExecContext(ctx, query, args...)
	return err
}

// StatusSnapshot returns the canonical state of every seat of a schedule:
// the catalog left-joined with the active reservation, if any.  This is a
// pure snapshot read; it never takes part in any seat's critical section.
func (r *SeatRepo) StatusSnapshot(ctx context.Context, scheduleID uint64) ([]model.SeatStatus, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT s.seat_no, s.price_cents, r.status, r.user_id, r.expires_at
		   FROM seats s
		   LEFT JOIN reservations r
		     ON r.schedule_id = s.schedule_id AND r.seat_no = s.seat_no AND r.active = 1
		  WHERE s.schedule_id = ?
		  ORDER BY s.seat_no`,
		scheduleID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.SeatStatus
	for rows.Next() {
		var (
			st        model.SeatStatus
			resStatus sql.NullString
			userID    sql.NullInt64
			expiresAt sql.NullTime
		)
		if err := rows.Scan(&st.SeatNo, &st.PriceCents, &resStatus, &userID, &expiresAt); err != nil {
			return nil, err
		}
		st.Status = "AVAILABLE"
		if resStatus.Valid {
			st.Status = resStatus.String
			st.Reserved = resStatus.String == model.ReservationHeld || resStatus.String == model.ReservationConfirmed
			if userID.Valid {
				uid := uint64(userID.Int64)
				st.UserID = &uid
			}
			if expiresAt.Valid {
				t := expiresAt.Time
				st.ExpiresAt = &t
			}
		}
		out = append(out, st)
	}
	return out, rows.Err()
}
