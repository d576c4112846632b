package memory

import (
	"context"
	"fmt"
	"time"

	bookingserrors "medibook/internal/bookings/errors"
	"medibook/internal/bookings/repository"
	"medibook/pkg/model"
)

type lockRepository struct {
	store *Store
}

func (s *Store) Locks() repository.ReservationLockRepository {
	return &lockRepository{store: s}
}

func (r *lockRepository) Acquire(ctx context.Context, lock *model.ReservationLock, now time.Time) (bool, error) {
	defer r.store.acquire(ctx)()

	if existing, ok := r.store.locks[lock.SlotID]; ok && !existing.IsExpired(now) {
		return false, nil
	}
	r.store.locks[lock.SlotID] = *lock
	return true, nil
}

func (r *lockRepository) Refresh(ctx context.Context, slotID, token string, expiresAt, now time.Time) (bool, error) {
	defer r.store.acquire(ctx)()

	existing, ok := r.store.locks[slotID]
	if !ok || existing.IsExpired(now) || existing.HolderToken != token {
		return false, nil
	}
	existing.ExpiresAt = expiresAt
	r.store.locks[slotID] = existing
	return true, nil
}

func (r *lockRepository) Release(ctx context.Context, slotID, token string) (bool, error) {
	defer r.store.acquire(ctx)()

	existing, ok := r.store.locks[slotID]
	if !ok || existing.HolderToken != token {
		return false, nil
	}
	delete(r.store.locks, slotID)
	return true, nil
}

func (r *lockRepository) Get(ctx context.Context, slotID string) (*model.ReservationLock, error) {
	defer r.store.acquire(ctx)()

	lock, ok := r.store.locks[slotID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", bookingserrors.ErrLockNotFound, slotID)
	}
	return &lock, nil
}

func (r *lockRepository) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	defer r.store.acquire(ctx)()

	var n int64
	for id, lock := range r.store.locks {
		if lock.IsExpired(now) {
			delete(r.store.locks, id)
			n++
		}
	}
	return n, nil
}
