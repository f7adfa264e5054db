package memory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lenticket/ticketing/internal/clock"
)

func TestQueueEnterRanksFIFO(t *testing.T) {
	clk := clock.NewFake(time.Date(2026, 8, 1, 10, 0, 0, 0, time.UTC))
	s := NewQueueStore(clk)
	ctx := context.Background()

	for i := uint64(1); i <= 5; i++ {
		pos, err := s.Enter(ctx, 1, i)
		require.NoError(t, err)
		assert.Equal(t, int64(i), pos)
	}

	// re-entering keeps the original position
	pos, err := s.Enter(ctx, 1, 3)
	require.NoError(t, err)
	assert.Equal(t, int64(3), pos)

	pos, err = s.Position(ctx, 1, 99)
	require.NoError(t, err)
	assert.Equal(t, int64(-1), pos, "unknown user has no position")
}

func TestQueuePassWithinCapacity(t *testing.T) {
	clk := clock.NewFake(time.Date(2026, 8, 1, 10, 0, 0, 0, time.UTC))
	s := NewQueueStore(clk)
	ctx := context.Background()

	for i := uint64(1); i <= 3; i++ {
		_, err := s.Enter(ctx, 1, i)
		require.NoError(t, err)
	}

	p1, err := s.TryIssuePass(ctx, 1, 1, 2, time.Minute)
	require.NoError(t, err)
	require.NotNil(t, p1)
	p2, err := s.TryIssuePass(ctx, 1, 2, 2, time.Minute)
	require.NoError(t, err)
	require.NotNil(t, p2)
	assert.NotEqual(t, p1.Token, p2.Token)

	// capacity exhausted, third user stays waiting at the head
	p3, err := s.TryIssuePass(ctx, 1, 3, 2, time.Minute)
	require.NoError(t, err)
	assert.Nil(t, p3)
	pos, _ := s.Position(ctx, 1, 3)
	assert.Equal(t, int64(1), pos)

	// releasing a pass frees one admission slot
	require.NoError(t, s.ReleasePass(ctx, 1, 1))
	p3, err = s.TryIssuePass(ctx, 1, 3, 2, time.Minute)
	require.NoError(t, err)
	require.NotNil(t, p3)
}

func TestQueuePassReuseAndValidate(t *testing.T) {
	clk := clock.NewFake(time.Date(2026, 8, 1, 10, 0, 0, 0, time.UTC))
	s := NewQueueStore(clk)
	ctx := context.Background()

	p, err := s.TryIssuePass(ctx, 1, 7, 10, time.Minute)
	require.NoError(t, err)
	require.NotNil(t, p)

	again, err := s.TryIssuePass(ctx, 1, 7, 10, time.Minute)
	require.NoError(t, err)
	require.NotNil(t, again)
	assert.Equal(t, p.Token, again.Token, "live pass is reused, not reissued")

	ok, err := s.ValidatePass(ctx, 1, 7, p.Token)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, _ = s.ValidatePass(ctx, 1, 7, p.Token+"x")
	assert.False(t, ok)
	ok, _ = s.ValidatePass(ctx, 1, 7, "")
	assert.False(t, ok)
	ok, _ = s.ValidatePass(ctx, 1, 8, p.Token)
	assert.False(t, ok, "a pass never validates for another user")
}

func TestQueuePassExpiry(t *testing.T) {
	clk := clock.NewFake(time.Date(2026, 8, 1, 10, 0, 0, 0, time.UTC))
	s := NewQueueStore(clk)
	ctx := context.Background()

	p, err := s.TryIssuePass(ctx, 1, 7, 1, time.Minute)
	require.NoError(t, err)
	require.NotNil(t, p)

	// the single slot is occupied by the live pass
	blocked, err := s.TryIssuePass(ctx, 1, 8, 1, time.Minute)
	require.NoError(t, err)
	assert.Nil(t, blocked)

	clk.Advance(time.Minute)

	ok, _ := s.ValidatePass(ctx, 1, 7, p.Token)
	assert.False(t, ok, "expired pass no longer admits")

	// expiry freed the slot for the next user
	next, err := s.TryIssuePass(ctx, 1, 8, 1, time.Minute)
	require.NoError(t, err)
	require.NotNil(t, next)
}

func TestQueueSweepFreesSlots(t *testing.T) {
	clk := clock.NewFake(time.Date(2026, 8, 1, 10, 0, 0, 0, time.UTC))
	s := NewQueueStore(clk)
	ctx := context.Background()

	p, err := s.TryIssuePass(ctx, 1, 7, 1, time.Minute)
	require.NoError(t, err)
	require.NotNil(t, p)

	clk.Advance(2 * time.Minute)
	require.NoError(t, s.Sweep(ctx))

	q := s.schedule(1)
	q.mu.Lock()
	defer q.mu.Unlock()
	assert.Empty(t, q.passes)
}
