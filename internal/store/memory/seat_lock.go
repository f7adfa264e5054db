// Package memory implements the seat-lock and queue stores in process
// memory.  It is the default engine for single-node deployments and the one
// the test suite exercises; the Redis engine mirrors its semantics exactly.
package memory

import (
	"context"
	"fmt"
	"hash/fnv"
	"sync"
	"time"

	"github.com/lenticket/ticketing/internal/clock"
)

const lockShards = 64

type lockEntry struct {
	owner     uint64
	expiresAt time.Time
}

type lockShard struct {
	mu    sync.Mutex
	locks map[string]lockEntry
}

// SeatLockStore keeps per-seat exclusive locks in a sharded map.  Sharding
// bounds contention to seats that hash to the same shard; unrelated seats
// never serialize behind one mutex.
type SeatLockStore struct {
	clk    clock.Clock
	shards [lockShards]lockShard
}

// NewSeatLockStore returns an empty lock table using clk for expiry checks.
func NewSeatLockStore(clk clock.Clock) *SeatLockStore {
	s := &SeatLockStore{clk: clk}
	for i := range s.shards {
		s.shards[i].locks = make(map[string]lockEntry)
	}
	return s
}

func seatKey(scheduleID uint64, seatNo string) string {
	return fmt.Sprintf("%d:%s", scheduleID, seatNo)
}

func (s *SeatLockStore) shard(key string) *lockShard {
	h := fnv.New32a()
	_, _ = h.Write([]byte(key))
	return &s.shards[h.Sum32()%lockShards]
}

// Acquire implements store.SeatLockStore.  An expired entry is treated as
// absent, so a lock whose TTL lapsed can be taken without waiting for a
// sweep.
func (s *SeatLockStore) Acquire(_ context.Context, scheduleID uint64, seatNo string, userID uint64, ttl time.Duration) (bool, error) {
	key := seatKey(scheduleID, seatNo)
	now := s.clk.Now()
	sh := s.shard(key)
	sh.mu.Lock()
	defer sh.mu.Unlock()

	if e, ok := sh.locks[key]; ok && now.Before(e.expiresAt) && e.owner != userID {
		return false, nil
	}
	sh.locks[key] = lockEntry{owner: userID, expiresAt: now.Add(ttl)}
	return true, nil
}

// Release implements store.SeatLockStore.  Losing the race against a sweep
// or a competing acquire is a no-op, never an error.
func (s *SeatLockStore) Release(_ context.Context, scheduleID uint64, seatNo string, userID uint64) error {
	key := seatKey(scheduleID, seatNo)
	sh := s.shard(key)
	sh.mu.Lock()
	defer sh.mu.Unlock()

	if e, ok := sh.locks[key]; ok && e.owner == userID {
		delete(sh.locks, key)
	}
	return nil
}

// Owner implements store.SeatLockStore.
func (s *SeatLockStore) Owner(_ context.Context, scheduleID uint64, seatNo string) (uint64, bool, error) {
	key := seatKey(scheduleID, seatNo)
	now := s.clk.Now()
	sh := s.shard(key)
	sh.mu.Lock()
	defer sh.mu.Unlock()

	e, ok := sh.locks[key]
	if !ok || !now.Before(e.expiresAt) {
		return 0, false, nil
	}
	return e.owner, true, nil
}

// Sweep drops expired lock entries.  Correctness does not depend on it
// (expired entries already read as absent); it only bounds memory growth.
func (s *SeatLockStore) Sweep(_ context.Context) error {
	now := s.clk.Now()
	for i := range s.shards {
		sh := &s.shards[i]
		sh.mu.Lock()
		for key, e := range sh.locks {
			if !now.Before(e.expiresAt) {
				delete(sh.locks, key)
			}
		}
		sh.mu.Unlock()
	}
	return nil
}
