// Package store defines the seat-lock and queue-admission state stores.
// Two engines implement it: an in-process one (package memory) for
// single-node deployments and tests, and a Redis one (package redisstore)
// for anything load-balanced.  Both give the same guarantee: every mutation
// of one (scheduleId, seatNo) or (scheduleId, userId) key runs in its own
// exclusive critical section, never under a global lock.
package store

import (
	"context"
	"time"

	"github.com/lenticket/ticketing/internal/model"
)

// SeatLockStore is the authoritative per-seat exclusive lock table.
type SeatLockStore interface {
	// Acquire takes the lock for (scheduleID, seatNo) on behalf of userID
	// with the given TTL.  It returns true when userID owns the lock after
	// the call; re-acquiring a lock already owned by the same live holder
	// succeeds and refreshes the TTL.  It returns false when a different
	// user holds the lock.
	Acquire(ctx context.Context, scheduleID uint64, seatNo string, userID uint64, ttl time.Duration) (bool, error)

	// Release removes the lock only when it is owned by userID; releasing a
	// lock held by someone else, or not held at all, is a no-op.
	Release(ctx context.Context, scheduleID uint64, seatNo string, userID uint64) error

	// Owner reports the current lock holder, or ok=false when the seat is
	// unlocked or the lock has expired.
	Owner(ctx context.Context, scheduleID uint64, seatNo string) (userID uint64, ok bool, err error)
}

// QueueStore is the waiting-room gate.  Users enter a per-schedule FIFO
// ordered by first entry time; passes are issued to the head of the queue
// while fewer than capacity passes are live.
type QueueStore interface {
	// Enter adds the user to the waiting queue if absent and returns the
	// 1-based position.  Re-entering is idempotent and keeps the original
	// position.
	Enter(ctx context.Context, scheduleID, userID uint64) (int64, error)

	// Position returns the 1-based waiting position, or -1 when the user is
	// not waiting (either never entered or already admitted).
	Position(ctx context.Context, scheduleID, userID uint64) (int64, error)

	// TryIssuePass atomically promotes the user when their rank falls inside
	// the capacity window and fewer than capacity passes are live.  It
	// returns the existing pass unchanged when one is still valid, or nil
	// when the user must keep waiting.
	TryIssuePass(ctx context.Context, scheduleID, userID uint64, capacity int64, passTTL time.Duration) (*model.QueuePass, error)

	// ValidatePass reports whether token is exactly the live pass for the
	// user.  An expired or consumed pass never validates.
	ValidatePass(ctx context.Context, scheduleID, userID uint64, token string) (bool, error)

	// ReleasePass removes the user's pass, freeing one admission slot.  It
	// is called when a pass is consumed by a successful hold and again,
	// harmlessly, on release and confirm.
	ReleasePass(ctx context.Context, scheduleID, userID uint64) error
}

// Sweeper is implemented by engines that need a periodic sweep to reclaim
// expired entries.  The Redis engine relies on key TTLs instead and does not
// implement it; the reaper type-asserts.
type Sweeper interface {
	Sweep(ctx context.Context) error
}
