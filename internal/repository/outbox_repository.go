package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/lenticket/ticketing/internal/model"
)

// OutboxRepo gives the dispatcher its view of the outbox_events table.
// Rows are written by ReservationRepo.Confirm; this repo only claims, marks
// and re-schedules them.
type OutboxRepo struct {
	db *sql.DB
}

// NewOutboxRepo constructs an OutboxRepo given a DB handle.
func NewOutboxRepo(db *sql.DB) *OutboxRepo { return &OutboxRepo{db: db} }

// LockPendingBatch claims up to limit due PENDING events.  SKIP LOCKED lets
// several dispatcher replicas drain the table without fighting over rows;
// each claimed row is bumped to its next retry slot inside the same
// transaction so a crashed dispatcher only delays delivery, never loses it.
func (r *OutboxRepo) LockPendingBatch(ctx context.Context, now time.Time, limit int) ([]model.OutboxEvent, error) {
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
		`SELECT event_id, topic, event_key, payload, status, retry_count, max_retry, next_retry_at
		   FROM outbox_events
		  WHERE status = ? AND next_retry_at <= ?
		  ORDER BY next_retry_at LIMIT ? FOR UPDATE SKIP LOCKED`,
		model.OutboxPending, now, limit,
	)
	if err != nil {
		return nil, err
	}
	var batch []model.OutboxEvent
	for rows.Next() {
		var e model.OutboxEvent
		if err := rows.Scan(&e.EventID, &e.Topic, &e.EventKey, &e.Payload, &e.Status, &e.RetryCount, &e.MaxRetry, &e.NextRetryAt); err != nil {
			rows.Close()
			return nil, err
		}
		batch = append(batch, e)
	}
	if err := rows.Close(); err != nil {
		return nil, err
	}

	// Push each claimed row past the claim window so another replica does
	// not pick it up while we publish.
	for i := range batch {
		if _, err := tx.ExecContext(ctx,
			`UPDATE outbox_events SET next_retry_at = ?, updated_at = ? WHERE event_id = ?`,
			now.Add(30*time.Second), now, batch[i].EventID,
		); err != nil {
			return nil, err
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	committed = true
	return batch, nil
}

// MarkPublished records a successful handoff to the broker.
func (r *OutboxRepo) MarkPublished(ctx context.Context, eventID string, now time.Time) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE outbox_events SET status = ?, published_at = ?, last_error = NULL, updated_at = ?
		  WHERE event_id = ?`,
		model.OutboxPublished, now, now, eventID,
	)
	return err
}

// MarkRetryOrFail bumps the retry counter with exponential backoff (2s, 4s,
// 8s ... capped at 60s) and flips the event to FAILED once the ceiling is
// reached.  The error message is truncated to fit the column.
func (r *OutboxRepo) MarkRetryOrFail(ctx context.Context, e *model.OutboxEvent, publishErr error, now time.Time) error {
	msg := publishErr.Error()
	if len(msg) > 500 {
		msg = msg[:500]
	}
	e.RetryCount++
	if e.RetryCount >= e.MaxRetry {
		e.Status = model.OutboxFailed
		_, err := r.db.ExecContext(ctx,
			`UPDATE outbox_events SET status = ?, retry_count = ?, last_error = ?, updated_at = ?
			  WHERE event_id = ?`,
			model.OutboxFailed, e.RetryCount, msg, now, e.EventID,
		)
		return err
	}

	backoff := time.Duration(1<<min(e.RetryCount, 6)) * time.Second
	if backoff > 60*time.Second {
		backoff = 60 * time.Second
	}
	e.NextRetryAt = now.Add(backoff)
	_, err := r.db.ExecContext(ctx,
		`UPDATE outbox_events SET status = ?, retry_count = ?, next_retry_at = ?, last_error = ?, updated_at = ?
		  WHERE event_id = ?`,
		model.OutboxPending, e.RetryCount, e.NextRetryAt, msg, now, e.EventID,
	)
	return err
}

// CountForSeat returns how many confirm events exist for one seat.  Used by
// reconciliation checks; confirm atomicity means the answer for a confirmed
// seat is exactly one.
func (r *OutboxRepo) CountForSeat(ctx context.Context, scheduleID uint64, seatNo string) (int, error) {
	var n int
	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM outbox_events WHERE event_key = ?`,
		model.EventKey(scheduleID, seatNo),
	).Scan(&n)
	return n, err
}
