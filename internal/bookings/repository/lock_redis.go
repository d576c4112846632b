package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	bookingserrors "medibook/internal/bookings/errors"
	"medibook/pkg/model"

	"github.com/redis/go-redis/v9"
)

const lockKeyPrefix = "medibook:reservation_lock:"

// extendScript refreshes the TTL only when the caller still holds the lock.
var extendScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("PEXPIRE", KEYS[1], ARGV[2])
end
return 0
`)

// releaseScript deletes the lock only when the caller still holds it.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// redisLockRepository keeps one key per slot holding the token. Expiry is
// native, so DeleteExpired has nothing to do.
type redisLockRepository struct {
	client redis.UniversalClient
}

func NewRedisLockRepository(client redis.UniversalClient) ReservationLockRepository {
	return &redisLockRepository{client: client}
}

func lockKey(slotID string) string {
	return lockKeyPrefix + slotID
}

func (r *redisLockRepository) Acquire(ctx context.Context, lock *model.ReservationLock, now time.Time) (bool, error) {
	ttl := lock.ExpiresAt.Sub(now)
	if ttl < time.Millisecond {
		ttl = time.Millisecond
	}
	key := lockKey(lock.SlotID)

	ok, err := r.client.SetNX(ctx, key, lock.HolderToken, ttl).Result()
	if err != nil {
		return false, fmt.Errorf("failed to acquire reservation lock: %w", err)
	}
	return ok, nil
}

func (r *redisLockRepository) Refresh(ctx context.Context, slotID, token string, expiresAt, now time.Time) (bool, error) {
	ttl := expiresAt.Sub(now)
	if ttl < time.Millisecond {
		ttl = time.Millisecond
	}

	extended, err := extendScript.Run(ctx, r.client, []string{lockKey(slotID)}, token, ttl.Milliseconds()).Int()
	if err != nil {
		return false, fmt.Errorf("failed to refresh reservation lock: %w", err)
	}
	return extended == 1, nil
}

func (r *redisLockRepository) Release(ctx context.Context, slotID, token string) (bool, error) {
	deleted, err := releaseScript.Run(ctx, r.client, []string{lockKey(slotID)}, token).Int()
	if err != nil {
		return false, fmt.Errorf("failed to release reservation lock: %w", err)
	}
	return deleted == 1, nil
}

func (r *redisLockRepository) Get(ctx context.Context, slotID string) (*model.ReservationLock, error) {
	key := lockKey(slotID)

	pipe := r.client.TxPipeline()
	getCmd := pipe.Get(ctx, key)
	ttlCmd := pipe.PTTL(ctx, key)
	if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("failed to get reservation lock: %w", err)
	}

	token, err := getCmd.Result()
	if errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("%w: %s", bookingserrors.ErrLockNotFound, slotID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get reservation lock: %w", err)
	}

	return &model.ReservationLock{
		SlotID:      slotID,
		HolderToken: token,
		ExpiresAt:   time.Now().UTC().Add(ttlCmd.Val()),
	}, nil
}

func (r *redisLockRepository) DeleteExpired(context.Context, time.Time) (int64, error) {
	return 0, nil
}
