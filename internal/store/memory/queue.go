package memory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/lenticket/ticketing/internal/clock"
	"github.com/lenticket/ticketing/internal/model"
)

// scheduleQueue is the waiting room of a single schedule.  All fields are
// guarded by mu, which is the per-(schedule,user) critical section the
// admission contract requires: one schedule's queue never contends with
// another's.
type scheduleQueue struct {
	mu       sync.Mutex
	waiting  []uint64 // user IDs ordered by first entry
	enrolled map[uint64]struct{}
	passes   map[uint64]model.QueuePass
	seq      uint64 // monotonic pass sequence, owned by this queue
}

// QueueStore implements store.QueueStore in process memory.
type QueueStore struct {
	clk clock.Clock

	mu        sync.Mutex
	schedules map[uint64]*scheduleQueue
}

// NewQueueStore returns an empty queue store using clk for pass expiry.
func NewQueueStore(clk clock.Clock) *QueueStore {
	return &QueueStore{clk: clk, schedules: make(map[uint64]*scheduleQueue)}
}

func (s *QueueStore) schedule(scheduleID uint64) *scheduleQueue {
	s.mu.Lock()
	defer s.mu.Unlock()
	q, ok := s.schedules[scheduleID]
	if !ok {
		q = &scheduleQueue{
			enrolled: make(map[uint64]struct{}),
			passes:   make(map[uint64]model.QueuePass),
		}
		s.schedules[scheduleID] = q
	}
	return q
}

// pruneLocked drops expired passes.  Callers must hold q.mu.
func (q *scheduleQueue) pruneLocked(now time.Time) {
	for uid, p := range q.passes {
		if !now.Before(p.ExpiresAt) {
			delete(q.passes, uid)
		}
	}
}

// positionLocked returns the 1-based waiting position or -1.
func (q *scheduleQueue) positionLocked(userID uint64) int64 {
	if _, ok := q.enrolled[userID]; !ok {
		return -1
	}
	for i, uid := range q.waiting {
		if uid == userID {
			return int64(i) + 1
		}
	}
	return -1
}

func (q *scheduleQueue) enterLocked(userID uint64) int64 {
	if pos := q.positionLocked(userID); pos != -1 {
		return pos
	}
	q.waiting = append(q.waiting, userID)
	q.enrolled[userID] = struct{}{}
	return int64(len(q.waiting))
}

func (q *scheduleQueue) removeWaitingLocked(userID uint64) {
	for i, uid := range q.waiting {
		if uid == userID {
			q.waiting = append(q.waiting[:i], q.waiting[i+1:]...)
			break
		}
	}
	delete(q.enrolled, userID)
}

// Enter implements store.QueueStore.
func (s *QueueStore) Enter(_ context.Context, scheduleID, userID uint64) (int64, error) {
	q := s.schedule(scheduleID)
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.enterLocked(userID), nil
}

// Position implements store.QueueStore.
func (s *QueueStore) Position(_ context.Context, scheduleID, userID uint64) (int64, error) {
	q := s.schedule(scheduleID)
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.positionLocked(userID), nil
}

// TryIssuePass implements store.QueueStore.  The whole decision runs under
// the schedule mutex, matching the atomicity of the Redis engine's script:
// expired-pass cleanup, existing-pass reuse, capacity check and promotion
// cannot interleave with another caller on the same schedule.
func (s *QueueStore) TryIssuePass(_ context.Context, scheduleID, userID uint64, capacity int64, passTTL time.Duration) (*model.QueuePass, error) {
	if capacity <= 0 || passTTL <= 0 {
		return nil, nil
	}
	now := s.clk.Now()
	q := s.schedule(scheduleID)
	q.mu.Lock()
	defer q.mu.Unlock()

	q.pruneLocked(now)

	if p, ok := q.passes[userID]; ok {
		return &p, nil
	}

	rank := q.positionLocked(userID)
	if rank == -1 {
		rank = q.enterLocked(userID)
	}

	if int64(len(q.passes)) >= capacity {
		return nil, nil
	}
	if rank > capacity {
		return nil, nil
	}

	q.seq++
	p := model.QueuePass{
		Token:     fmt.Sprintf("%d:%d:%d:%d", scheduleID, userID, now.UnixMilli(), q.seq),
		ExpiresAt: now.Add(passTTL),
	}
	q.passes[userID] = p
	q.removeWaitingLocked(userID)
	return &p, nil
}

// ValidatePass implements store.QueueStore.  Only an exact match against the
// live token counts; a stale token from a previous issuance never validates.
func (s *QueueStore) ValidatePass(_ context.Context, scheduleID, userID uint64, token string) (bool, error) {
	if token == "" {
		return false, nil
	}
	now := s.clk.Now()
	q := s.schedule(scheduleID)
	q.mu.Lock()
	defer q.mu.Unlock()

	p, ok := q.passes[userID]
	if !ok || !now.Before(p.ExpiresAt) {
		return false, nil
	}
	return p.Token == token, nil
}

// ReleasePass implements store.QueueStore.
func (s *QueueStore) ReleasePass(_ context.Context, scheduleID, userID uint64) error {
	q := s.schedule(scheduleID)
	q.mu.Lock()
	defer q.mu.Unlock()
	delete(q.passes, userID)
	return nil
}

// Sweep drops expired passes across all schedules, freeing their admission
// slots without waiting for the next issuance attempt.
func (s *QueueStore) Sweep(_ context.Context) error {
	now := s.clk.Now()
	s.mu.Lock()
	queues := make([]*scheduleQueue, 0, len(s.schedules))
	for _, q := range s.schedules {
		queues = append(queues, q)
	}
	s.mu.Unlock()

	for _, q := range queues {
		q.mu.Lock()
		q.pruneLocked(now)
		q.mu.Unlock()
	}
	return nil
}
