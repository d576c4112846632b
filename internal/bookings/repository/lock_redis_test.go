package repository

import (
	"context"
	"errors"
	"testing"
	"time"

	bookingserrors "medibook/internal/bookings/errors"
	"medibook/pkg/model"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRedisLocks(t *testing.T) (*miniredis.Miniredis, ReservationLockRepository) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return mr, NewRedisLockRepository(client)
}

func lockFor(slotID, token string, now time.Time, ttl time.Duration) *model.ReservationLock {
	return &model.ReservationLock{SlotID: slotID, HolderToken: token, ExpiresAt: now.Add(ttl), CreatedAt: now}
}

func TestRedisLock_Exclusive(t *testing.T) {
	mr, repo := newRedisLocks(t)
	ctx := context.Background()
	now := time.Now()

	granted, err := repo.Acquire(ctx, lockFor("slot-1", "alice", now, time.Minute), now)
	require.NoError(t, err)
	assert.True(t, granted)

	granted, err = repo.Acquire(ctx, lockFor("slot-1", "bob", now, time.Minute), now)
	require.NoError(t, err)
	assert.False(t, granted, "a live lock must not be granted to another holder")

	granted, err = repo.Acquire(ctx, lockFor("slot-1", "alice", now, 2*time.Minute), now)
	require.NoError(t, err)
	assert.False(t, granted, "acquire never overwrites a live lock")

	refreshed, err := repo.Refresh(ctx, "slot-1", "bob", now.Add(2*time.Minute), now)
	require.NoError(t, err)
	assert.False(t, refreshed)

	refreshed, err = repo.Refresh(ctx, "slot-1", "alice", now.Add(2*time.Minute), now)
	require.NoError(t, err)
	assert.True(t, refreshed, "the holder may refresh its own lock")
	assert.Equal(t, 2*time.Minute, mr.TTL(lockKey("slot-1")))

	mr.FastForward(2*time.Minute + time.Second)

	granted, err = repo.Acquire(ctx, lockFor("slot-1", "bob", now, time.Minute), now)
	require.NoError(t, err)
	assert.True(t, granted, "an expired lock counts as absent")

	lock, err := repo.Get(ctx, "slot-1")
	require.NoError(t, err)
	assert.Equal(t, "bob", lock.HolderToken)

	mr.FastForward(2 * time.Minute)
	refreshed, err = repo.Refresh(ctx, "slot-1", "bob", now.Add(time.Minute), now)
	require.NoError(t, err)
	assert.False(t, refreshed, "an expired lock cannot be refreshed")
	assert.False(t, mr.Exists(lockKey("slot-1")))
}

func TestRedisLock_ReleaseComparesToken(t *testing.T) {
	_, repo := newRedisLocks(t)
	ctx := context.Background()
	now := time.Now()

	_, err := repo.Acquire(ctx, lockFor("slot-2", "alice", now, time.Minute), now)
	require.NoError(t, err)

	released, err := repo.Release(ctx, "slot-2", "bob")
	require.NoError(t, err)
	assert.False(t, released)

	released, err = repo.Release(ctx, "slot-2", "alice")
	require.NoError(t, err)
	assert.True(t, released)

	released, err = repo.Release(ctx, "slot-2", "alice")
	require.NoError(t, err)
	assert.False(t, released, "releasing a gone lock is a no-op")

	_, err = repo.Get(ctx, "slot-2")
	assert.True(t, errors.Is(err, bookingserrors.ErrLockNotFound))
}
