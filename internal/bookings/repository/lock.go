package repository

import (
	"context"
	"time"

	"medibook/pkg/model"
)

type ReservationLockRepository interface {
	// Acquire stores lock when the slot has no lock live at now and
	// reports whether it was stored.
	Acquire(ctx context.Context, lock *model.ReservationLock, now time.Time) (bool, error)
	// Refresh moves the expiry of the lock held by token. It reports false
	// when no live lock holds that token.
	Refresh(ctx context.Context, slotID, token string, expiresAt, now time.Time) (bool, error)
	// Release deletes the lock only if it is held by token.
	Release(ctx context.Context, slotID, token string) (bool, error)
	Get(ctx context.Context, slotID string) (*model.ReservationLock, error)
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}
