package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	bookingserrors "medibook/internal/bookings/errors"
	"medibook/pkg/config"
	"medibook/pkg/db/postgres"
	"medibook/pkg/model"

	"github.com/jackc/pgx/v5"
)

const (
	acquireLockSQL = `INSERT INTO reservation_locks (slot_id, holder_token, expires_at, created_at)
VALUES ($1, $2, $3, $4)
ON CONFLICT (slot_id) DO UPDATE
SET holder_token = EXCLUDED.holder_token, expires_at = EXCLUDED.expires_at, created_at = EXCLUDED.created_at
WHERE reservation_locks.expires_at <= $5
RETURNING slot_id`

	refreshLockSQL = `UPDATE reservation_locks SET expires_at = $3
WHERE slot_id = $1 AND holder_token = $2 AND expires_at > $4`

	releaseLockSQL = `DELETE FROM reservation_locks WHERE slot_id = $1 AND holder_token = $2`

	getLockSQL = `SELECT slot_id, holder_token, expires_at, created_at FROM reservation_locks WHERE slot_id = $1`

	deleteExpiredLocksSQL = `DELETE FROM reservation_locks WHERE expires_at <= $1`
)

type postgresLockRepository struct {
	cfg  *config.Config
	pool postgres.Pool
}

func NewPostgresLockRepository(cfg *config.Config, pool postgres.Pool) ReservationLockRepository {
	return &postgresLockRepository{cfg: cfg, pool: pool}
}

// Acquire relies on the conditional upsert: a live lock leaves the row
// untouched and RETURNING yields nothing.
func (r *postgresLockRepository) Acquire(ctx context.Context, lock *model.ReservationLock, now time.Time) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, r.cfg.StoreTimeout)
	defer cancel()

	var slotID string
	err := postgres.Conn(ctx, r.pool).QueryRow(ctx, acquireLockSQL,
		lock.SlotID, lock.HolderToken, lock.ExpiresAt, lock.CreatedAt, now,
	).Scan(&slotID)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to acquire reservation lock: %w", err)
	}
	return true, nil
}

func (r *postgresLockRepository) Refresh(ctx context.Context, slotID, token string, expiresAt, now time.Time) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, r.cfg.StoreTimeout)
	defer cancel()

	tag, err := postgres.Conn(ctx, r.pool).Exec(ctx, refreshLockSQL, slotID, token, expiresAt, now)
	if err != nil {
		return false, fmt.Errorf("failed to refresh reservation lock: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

func (r *postgresLockRepository) Release(ctx context.Context, slotID, token string) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, r.cfg.StoreTimeout)
	defer cancel()

	tag, err := postgres.Conn(ctx, r.pool).Exec(ctx, releaseLockSQL, slotID, token)
	if err != nil {
		return false, fmt.Errorf("failed to release reservation lock: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

func (r *postgresLockRepository) Get(ctx context.Context, slotID string) (*model.ReservationLock, error) {
	ctx, cancel := context.WithTimeout(ctx, r.cfg.StoreTimeout)
	defer cancel()

	var lock model.ReservationLock
	err := postgres.Conn(ctx, r.pool).QueryRow(ctx, getLockSQL, slotID).
		Scan(&lock.SlotID, &lock.HolderToken, &lock.ExpiresAt, &lock.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s", bookingserrors.ErrLockNotFound, slotID)
		}
		return nil, fmt.Errorf("failed to get reservation lock: %w", err)
	}
	return &lock, nil
}

func (r *postgresLockRepository) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	ctx, cancel := context.WithTimeout(ctx, r.cfg.StoreTimeout)
	defer cancel()

	tag, err := postgres.Conn(ctx, r.pool).Exec(ctx, deleteExpiredLocksSQL, now)
	if err != nil {
		return 0, fmt.Errorf("failed to delete expired reservation locks: %w", err)
	}
	return tag.RowsAffected(), nil
}
