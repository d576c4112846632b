package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	slotserrors "medibook/internal/slots/errors"
	"medibook/internal/slots/repository"
	"medibook/pkg/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func slotAt(practitionerID string, start time.Time) *model.AvailabilitySlot {
	return &model.AvailabilitySlot{
		PractitionerID: practitionerID,
		StartTime:      start,
		EndTime:        start.Add(30 * time.Minute),
		Capacity:       1,
		IsActive:       true,
	}
}

func TestStore_FailedTransactionRollsBack(t *testing.T) {
	store := NewStore()
	ctx := context.Background()
	start := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	boom := errors.New("boom")

	err := store.ExecuteTransaction(ctx, func(ctx context.Context) error {
		require.NoError(t, store.Slots().Create(ctx, slotAt("dr-1", start)))
		require.NoError(t, store.Appointments().Create(ctx, &model.Appointment{PractitionerID: "dr-1", Status: model.AppointmentStatusScheduled}))
		return boom
	})
	require.ErrorIs(t, err, boom)

	views, err := store.Slots().FindWithOccupancy(ctx, repository.SlotFilter{From: start.Add(-time.Hour), To: start.Add(time.Hour)})
	require.NoError(t, err)
	assert.Empty(t, views)
	assert.Empty(t, store.appointments)
}

func TestStore_ActiveStartIsUnique(t *testing.T) {
	store := NewStore()
	ctx := context.Background()
	start := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

	first := slotAt("dr-1", start)
	require.NoError(t, store.Slots().Create(ctx, first))

	err := store.Slots().Create(ctx, slotAt("dr-1", start))
	assert.ErrorIs(t, err, slotserrors.ErrDuplicateStart)

	require.NoError(t, store.Slots().Create(ctx, slotAt("dr-2", start)), "other practitioners are independent")

	first.IsActive = false
	require.NoError(t, store.Slots().Update(ctx, first))

	inserted, err := store.Slots().InsertMany(ctx, []*model.AvailabilitySlot{slotAt("dr-1", start), slotAt("dr-1", start)})
	require.NoError(t, err)
	assert.Len(t, inserted, 1, "a deactivated slot frees its start time once")
}

func TestStore_OccupancyCountsScheduledOnly(t *testing.T) {
	store := NewStore()
	ctx := context.Background()
	start := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

	slot := slotAt("dr-1", start)
	slot.Capacity = 2
	require.NoError(t, store.Slots().Create(ctx, slot))

	for _, status := range []string{model.AppointmentStatusScheduled, model.AppointmentStatusCancelled} {
		require.NoError(t, store.Appointments().Create(ctx, &model.Appointment{
			PractitionerID: "dr-1",
			SlotID:         &slot.ID,
			StartTime:      slot.StartTime,
			EndTime:        slot.EndTime,
			Status:         status,
		}))
	}

	views, err := store.Slots().FindWithOccupancy(ctx, repository.SlotFilter{PractitionerID: "dr-1", From: start, To: start.Add(time.Hour)})
	require.NoError(t, err)
	require.Len(t, views, 1)
	assert.Equal(t, 1, views[0].BookedCount)
	assert.True(t, views[0].IsAvailable)
}

func TestStore_LockExpiry(t *testing.T) {
	store := NewStore()
	ctx := context.Background()
	now := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	locks := store.Locks()

	granted, err := locks.Acquire(ctx, &model.ReservationLock{SlotID: "s", HolderToken: "a", ExpiresAt: now.Add(time.Minute)}, now)
	require.NoError(t, err)
	assert.True(t, granted)

	granted, err = locks.Acquire(ctx, &model.ReservationLock{SlotID: "s", HolderToken: "b", ExpiresAt: now.Add(2 * time.Minute)}, now.Add(59*time.Second))
	require.NoError(t, err)
	assert.False(t, granted)

	granted, err = locks.Acquire(ctx, &model.ReservationLock{SlotID: "s", HolderToken: "a", ExpiresAt: now.Add(2 * time.Minute)}, now.Add(30*time.Second))
	require.NoError(t, err)
	assert.False(t, granted, "acquire never takes over a live lock, whatever the token")

	refreshed, err := locks.Refresh(ctx, "s", "b", now.Add(2*time.Minute), now.Add(30*time.Second))
	require.NoError(t, err)
	assert.False(t, refreshed)

	granted, err = locks.Acquire(ctx, &model.ReservationLock{SlotID: "s", HolderToken: "b", ExpiresAt: now.Add(2 * time.Minute)}, now.Add(time.Minute))
	require.NoError(t, err)
	assert.True(t, granted, "a lock is expired at exactly its expiry instant")

	refreshed, err = locks.Refresh(ctx, "s", "b", now.Add(3*time.Minute), now.Add(90*time.Second))
	require.NoError(t, err)
	assert.True(t, refreshed)
	lock, err := locks.Get(ctx, "s")
	require.NoError(t, err)
	assert.Equal(t, now.Add(3*time.Minute), lock.ExpiresAt)

	refreshed, err = locks.Refresh(ctx, "s", "b", now.Add(5*time.Minute), now.Add(3*time.Minute))
	require.NoError(t, err)
	assert.False(t, refreshed, "an expired lock cannot be refreshed")

	n, err := locks.DeleteExpired(ctx, now.Add(3*time.Minute))
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}
