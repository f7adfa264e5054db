package redisstore

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/lenticket/ticketing/internal/clock"
	"github.com/lenticket/ticketing/internal/model"
)

// issuePass is the whole admission decision in one atomic step: prune
// expired passes, return an existing live pass, ensure the user is queued,
// then promote only while live passes < capacity and the user's rank is
// inside the window.  The pass lives in two places that must stay in sync:
// a per-user string (the token, with TTL) and a ZSET scored by expiry (the
// live-pass census the capacity check counts).
var issuePass = redis.NewScript(`
local queueKey = KEYS[1]
local passZKey = KEYS[2]
local passKey  = KEYS[3]
local seqKey   = KEYS[4]
local now      = tonumber(ARGV[1])
local cap      = tonumber(ARGV[2])
local ttlSec   = tonumber(ARGV[3])
local userId   = ARGV[4]
local schedId  = ARGV[5]

if (not cap) or cap <= 0 then return {'', '0'} end
if (not ttlSec) or ttlSec <= 0 then return {'', '0'} end

redis.call('zremrangebyscore', passZKey, '-inf', now)

local existing = redis.call('get', passKey)
if existing then
    local exp = redis.call('zscore', passZKey, userId)
    if exp and tonumber(exp) > now then
        return {existing, tostring(exp)}
    end
    redis.call('del', passKey)
end

local rank = redis.call('zrank', queueKey, userId)
if not rank then
    redis.call('zadd', queueKey, now, userId)
    rank = redis.call('zrank', queueKey, userId)
end

if redis.call('zcard', passZKey) >= cap then
    return {'', '0'}
end
if (not rank) or tonumber(rank) >= cap then
    return {'', '0'}
end

local seq = redis.call('incr', seqKey)
local token = schedId .. ':' .. userId .. ':' .. now .. ':' .. seq
local expiresAt = now + (ttlSec * 1000)
redis.call('set', passKey, token, 'EX', ttlSec)
redis.call('zadd', passZKey, expiresAt, userId)
redis.call('zrem', queueKey, userId)
return {token, tostring(expiresAt)}
`)

// QueueStore implements store.QueueStore on Redis.  The waiting queue is a
// ZSET scored by first entry time, which gives stable FIFO ranks.
type QueueStore struct {
	rdb *redis.Client
	clk clock.Clock
}

// NewQueueStore returns a queue store backed by rdb.
func NewQueueStore(rdb *redis.Client, clk clock.Clock) *QueueStore {
	return &QueueStore{rdb: rdb, clk: clk}
}

func (s *QueueStore) queueKey(scheduleID uint64) string {
	return fmt.Sprintf("queue:%d", scheduleID)
}

func (s *QueueStore) passZKey(scheduleID uint64) string {
	return fmt.Sprintf("queue:pass:z:%d", scheduleID)
}

func (s *QueueStore) passKey(scheduleID, userID uint64) string {
	return fmt.Sprintf("queue:pass:%d:%d", scheduleID, userID)
}

func (s *QueueStore) passSeqKey(scheduleID uint64) string {
	return fmt.Sprintf("queue:pass:seq:%d", scheduleID)
}

// Enter implements store.QueueStore.  The score is the first entry time, so
// repeated calls never move the user back.
func (s *QueueStore) Enter(ctx context.Context, scheduleID, userID uint64) (int64, error) {
	key := s.queueKey(scheduleID)
	member := strconv.FormatUint(userID, 10)

	rank, err := s.rdb.ZRank(ctx, key, member).Result()
	if err == redis.Nil {
		if err := s.rdb.ZAddNX(ctx, key, redis.Z{
			Score:  float64(s.clk.Now().UnixMilli()),
			Member: member,
		}).Err(); err != nil {
			return -1, fmt.Errorf("queue enter: %w", err)
		}
		rank, err = s.rdb.ZRank(ctx, key, member).Result()
	}
	if err != nil {
		return -1, fmt.Errorf("queue enter: %w", err)
	}
	return rank + 1, nil
}

// Position implements store.QueueStore.
func (s *QueueStore) Position(ctx context.Context, scheduleID, userID uint64) (int64, error) {
	rank, err := s.rdb.ZRank(ctx, s.queueKey(scheduleID), strconv.FormatUint(userID, 10)).Result()
	if err == redis.Nil {
		return -1, nil
	}
	if err != nil {
		return -1, fmt.Errorf("queue position: %w", err)
	}
	return rank + 1, nil
}

// TryIssuePass implements store.QueueStore.
func (s *QueueStore) TryIssuePass(ctx context.Context, scheduleID, userID uint64, capacity int64, passTTL time.Duration) (*model.QueuePass, error) {
	now := s.clk.Now().UnixMilli()

	res, err := issuePass.Run(ctx, s.rdb,
		[]string{
			s.queueKey(scheduleID),
			s.passZKey(scheduleID),
			s.passKey(scheduleID, userID),
			s.passSeqKey(scheduleID),
		},
		now,
		capacity,
		int64(passTTL/time.Second),
		strconv.FormatUint(userID, 10),
		strconv.FormatUint(scheduleID, 10),
	).StringSlice()
	if err != nil {
		return nil, fmt.Errorf("queue issue pass: %w", err)
	}
	if len(res) < 2 || res[0] == "" {
		return nil, nil
	}

	expMs, err := strconv.ParseInt(res[1], 10, 64)
	if err != nil || expMs <= 0 {
		return nil, nil
	}
	return &model.QueuePass{
		Token:     res[0],
		ExpiresAt: time.UnixMilli(expMs).UTC(),
	}, nil
}

// ValidatePass implements store.QueueStore.  Only the exact stored token
// counts; the key TTL takes care of expiry.
func (s *QueueStore) ValidatePass(ctx context.Context, scheduleID, userID uint64, token string) (bool, error) {
	if token == "" {
		return false, nil
	}
	stored, err := s.rdb.Get(ctx, s.passKey(scheduleID, userID)).Result()
	if err == redis.Nil {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("queue validate pass: %w", err)
	}
	return stored == token, nil
}

// ReleasePass implements store.QueueStore.  Both the token key and the ZSET
// entry must go, or the capacity census drifts from reality.
func (s *QueueStore) ReleasePass(ctx context.Context, scheduleID, userID uint64) error {
	member := strconv.FormatUint(userID, 10)
	if err := s.rdb.Del(ctx, s.passKey(scheduleID, userID)).Err(); err != nil && err != redis.Nil {
		return fmt.Errorf("queue release pass: %w", err)
	}
	if err := s.rdb.ZRem(ctx, s.passZKey(scheduleID), member).Err(); err != nil && err != redis.Nil {
		return fmt.Errorf("queue release pass: %w", err)
	}
	return nil
}
