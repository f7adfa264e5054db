package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lenticket/ticketing/internal/apperr"
	"github.com/lenticket/ticketing/internal/clock"
	"github.com/lenticket/ticketing/internal/store/memory"
)

func newQueueFixture(capacity int64, passTTL time.Duration) (*QueueService, *clock.Fake) {
	clk := clock.NewFake(time.Date(2026, 8, 1, 10, 0, 0, 0, time.UTC))
	return NewQueueService(memory.NewQueueStore(clk), QueueConfig{Capacity: capacity, PassTTL: passTTL}), clk
}

func TestQueueEnterAdmitsWithinCapacity(t *testing.T) {
	svc, _ := newQueueFixture(2, 5*time.Minute)
	ctx := context.Background()

	first, err := svc.Enter(ctx, 1, 10)
	require.NoError(t, err)
	assert.True(t, first.CanEnter)
	assert.Zero(t, first.Rank)
	require.NotNil(t, first.Token)
	require.NotNil(t, first.ExpiresAt)

	second, err := svc.Enter(ctx, 1, 20)
	require.NoError(t, err)
	assert.True(t, second.CanEnter)
	assert.NotEqual(t, *first.Token, *second.Token)

	third, err := svc.Enter(ctx, 1, 30)
	require.NoError(t, err)
	assert.False(t, third.CanEnter)
	assert.Equal(t, int64(1), third.Rank, "waiting rank counts only unadmitted users")
	assert.Nil(t, third.Token)
}

func TestQueueEnterIdempotent(t *testing.T) {
	svc, _ := newQueueFixture(1, 5*time.Minute)
	ctx := context.Background()

	admitted, err := svc.Enter(ctx, 1, 10)
	require.NoError(t, err)
	require.True(t, admitted.CanEnter)

	again, err := svc.Enter(ctx, 1, 10)
	require.NoError(t, err)
	assert.True(t, again.CanEnter)
	assert.Equal(t, *admitted.Token, *again.Token, "re-entering returns the live pass")

	waiting, err := svc.Enter(ctx, 1, 20)
	require.NoError(t, err)
	require.False(t, waiting.CanEnter)

	rewaiting, err := svc.Enter(ctx, 1, 20)
	require.NoError(t, err)
	assert.Equal(t, waiting.Rank, rewaiting.Rank)
}

func TestQueueStatusPromotesWhenSlotFrees(t *testing.T) {
	svc, clk := newQueueFixture(1, time.Minute)
	ctx := context.Background()

	admitted, err := svc.Enter(ctx, 1, 10)
	require.NoError(t, err)
	require.True(t, admitted.CanEnter)

	waiting, err := svc.Enter(ctx, 1, 20)
	require.NoError(t, err)
	require.False(t, waiting.CanEnter)

	// the first user's pass lapses; the next status poll promotes user 20
	clk.Advance(time.Minute)
	promoted, err := svc.Status(ctx, 1, 20)
	require.NoError(t, err)
	assert.True(t, promoted.CanEnter)
	require.NotNil(t, promoted.Token)
}

func TestQueueStatusEnrollsUnknownUser(t *testing.T) {
	svc, _ := newQueueFixture(1, time.Minute)
	ctx := context.Background()

	_, err := svc.Enter(ctx, 1, 10)
	require.NoError(t, err)

	st, err := svc.Status(ctx, 1, 99)
	require.NoError(t, err)
	assert.False(t, st.CanEnter)
	assert.Equal(t, int64(1), st.Rank, "a status poll enrolls the user")
}

func TestQueueValidatesInput(t *testing.T) {
	svc, _ := newQueueFixture(1, time.Minute)
	ctx := context.Background()

	_, err := svc.Enter(ctx, 0, 10)
	assert.ErrorIs(t, err, apperr.ErrInvalidRequest)
	_, err = svc.Status(ctx, 1, 0)
	assert.ErrorIs(t, err, apperr.ErrInvalidRequest)
}
