package service

import (
	"context"
	"testing"
	"time"

	apperrors "medibook/pkg/errors"
	"medibook/pkg/logger"
	"medibook/pkg/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLock_Exclusivity(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	slot := f.slot(t, "dr-smith", at(4, 9, 0), 1)

	first, err := f.locks.Acquire(ctx, &model.LockRequest{SlotID: slot.ID, TTLSeconds: 60})
	require.NoError(t, err)
	require.True(t, first.Granted)
	require.NotEmpty(t, first.HolderToken)
	assert.Equal(t, f.clock.Now().Add(time.Minute), *first.ExpiresAt)

	second, err := f.locks.Acquire(ctx, &model.LockRequest{SlotID: slot.ID, TTLSeconds: 60})
	require.NoError(t, err)
	assert.False(t, second.Granted)
	assert.Empty(t, second.HolderToken)

	t.Run("expiry frees the slot", func(t *testing.T) {
		f.clock.Advance(59 * time.Second)
		denied, err := f.locks.Acquire(ctx, &model.LockRequest{SlotID: slot.ID})
		require.NoError(t, err)
		assert.False(t, denied.Granted)

		f.clock.Advance(time.Second)
		granted, err := f.locks.Acquire(ctx, &model.LockRequest{SlotID: slot.ID, TTLSeconds: 60})
		require.NoError(t, err)
		require.True(t, granted.Granted)
		assert.NotEqual(t, first.HolderToken, granted.HolderToken)

		t.Run("release frees the slot", func(t *testing.T) {
			require.NoError(t, f.locks.Release(ctx, &model.UnlockRequest{SlotID: slot.ID, HolderToken: granted.HolderToken}))

			again, err := f.locks.Acquire(ctx, &model.LockRequest{SlotID: slot.ID})
			require.NoError(t, err)
			assert.True(t, again.Granted)
		})
	})
}

func TestLock_HolderRefreshesTTL(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	slot := f.slot(t, "dr-smith", at(4, 9, 0), 1)

	first, err := f.locks.Acquire(ctx, &model.LockRequest{SlotID: slot.ID, TTLSeconds: 60})
	require.NoError(t, err)
	require.True(t, first.Granted)

	f.clock.Advance(45 * time.Second)
	refreshed, err := f.locks.Acquire(ctx, &model.LockRequest{SlotID: slot.ID, TTLSeconds: 60, HolderToken: first.HolderToken})
	require.NoError(t, err)
	require.True(t, refreshed.Granted)
	assert.Equal(t, first.HolderToken, refreshed.HolderToken)
	assert.Equal(t, first.ExpiresAt.Add(45*time.Second), *refreshed.ExpiresAt)
}

func TestLock_ClientTokenNeverCreatesLock(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	slot := f.slot(t, "dr-smith", at(4, 9, 0), 1)

	for i := 0; i < 2; i++ {
		res, err := f.locks.Acquire(ctx, &model.LockRequest{SlotID: slot.ID, HolderToken: "web"})
		require.NoError(t, err)
		assert.False(t, res.Granted)
		assert.Empty(t, res.HolderToken)
	}
	_, err := f.store.Locks().Get(ctx, slot.ID)
	require.Error(t, err, "a refresh request on a free slot must not store a lock")

	granted, err := f.locks.Acquire(ctx, &model.LockRequest{SlotID: slot.ID})
	require.NoError(t, err)
	require.True(t, granted.Granted)
	assert.NotEqual(t, "web", granted.HolderToken)

	t.Run("expired token cannot be refreshed", func(t *testing.T) {
		f.clock.Advance(f.cfg.LockDefaultTTL)
		res, err := f.locks.Acquire(ctx, &model.LockRequest{SlotID: slot.ID, HolderToken: granted.HolderToken})
		require.NoError(t, err)
		assert.False(t, res.Granted)
		assert.Nil(t, res.ExpiresAt)
	})
}

func TestLock_DenialReportsCurrentHold(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	slot := f.slot(t, "dr-smith", at(4, 9, 0), 1)

	held, err := f.locks.Acquire(ctx, &model.LockRequest{SlotID: slot.ID, TTLSeconds: 90})
	require.NoError(t, err)
	require.True(t, held.Granted)

	denied, err := f.locks.Acquire(ctx, &model.LockRequest{SlotID: slot.ID})
	require.NoError(t, err)
	assert.False(t, denied.Granted)
	require.NotNil(t, denied.ExpiresAt)
	assert.Equal(t, *held.ExpiresAt, *denied.ExpiresAt)
	assert.Empty(t, denied.HolderToken)
}

func TestLock_ReleaseIsBestEffort(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	slot := f.slot(t, "dr-smith", at(4, 9, 0), 1)

	held, err := f.locks.Acquire(ctx, &model.LockRequest{SlotID: slot.ID})
	require.NoError(t, err)

	require.NoError(t, f.locks.Release(ctx, &model.UnlockRequest{SlotID: slot.ID, HolderToken: "someone-else"}))
	denied, err := f.locks.Acquire(ctx, &model.LockRequest{SlotID: slot.ID})
	require.NoError(t, err)
	assert.False(t, denied.Granted, "a foreign token must not release the lock")

	require.NoError(t, f.locks.Release(ctx, &model.UnlockRequest{SlotID: slot.ID, HolderToken: held.HolderToken}))
	require.NoError(t, f.locks.Release(ctx, &model.UnlockRequest{SlotID: slot.ID, HolderToken: held.HolderToken}))
}

func TestLock_TTLClamp(t *testing.T) {
	f := newFixture(t)

	assert.Equal(t, 5*time.Minute, f.locks.ttl(0))
	assert.Equal(t, 30*time.Second, f.locks.ttl(30))
	assert.Equal(t, 15*time.Minute, f.locks.ttl(3600))

	f.cfg.LockDefaultTTL = 0
	assert.Equal(t, time.Second, f.locks.ttl(0))
}

func TestLock_SlotMustBeBookable(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	inactive := f.slot(t, "dr-smith", at(4, 9, 0), 1)
	inactive.IsActive = false
	require.NoError(t, f.store.Slots().Update(ctx, inactive))

	_, err := f.locks.Acquire(ctx, &model.LockRequest{SlotID: inactive.ID})
	assert.True(t, apperrors.HasCode(err, apperrors.CodeNotFound))

	_, err = f.locks.Acquire(ctx, &model.LockRequest{SlotID: "1b4e28ba-2fa1-11d2-883f-0016d3cca427"})
	assert.True(t, apperrors.HasCode(err, apperrors.CodeNotFound))

	_, err = f.locks.Acquire(ctx, &model.LockRequest{SlotID: "not-a-uuid"})
	assert.True(t, apperrors.HasCode(err, apperrors.CodeValidation))
}

func TestLock_SweepExpired(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a := f.slot(t, "dr-smith", at(4, 9, 0), 1)
	b := f.slot(t, "dr-smith", at(4, 10, 0), 1)

	_, err := f.locks.Acquire(ctx, &model.LockRequest{SlotID: a.ID, TTLSeconds: 10})
	require.NoError(t, err)
	_, err = f.locks.Acquire(ctx, &model.LockRequest{SlotID: b.ID, TTLSeconds: 120})
	require.NoError(t, err)

	f.clock.Advance(time.Minute)
	n, err := f.locks.SweepExpired(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	_, err = f.store.Locks().Get(ctx, b.ID)
	assert.NoError(t, err)
}

func TestLockSweeper_StartStop(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	slot := f.slot(t, "dr-smith", at(4, 9, 0), 1)

	_, err := f.locks.Acquire(ctx, &model.LockRequest{SlotID: slot.ID, TTLSeconds: 1})
	require.NoError(t, err)
	f.clock.Advance(time.Minute)

	sweeper := NewLockSweeper(f.locks, 10*time.Millisecond, time.Second, logger.Discard())
	sweeper.Start()
	assert.Eventually(t, func() bool {
		_, err := f.store.Locks().Get(ctx, slot.ID)
		return err != nil
	}, time.Second, 10*time.Millisecond)
	sweeper.Stop()
	sweeper.Stop()

	NewLockSweeper(f.locks, time.Minute, time.Second, logger.Discard()).Stop()
}
