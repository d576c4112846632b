package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	bookingserrors "medibook/internal/bookings/errors"
	"medibook/pkg/config"
	mongotx "medibook/pkg/db/mongo"
	"medibook/pkg/model"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

type mongoLockRepository struct {
	cfg        *config.Config
	collection *mongo.Collection
}

func NewMongoLockRepository(cfg *config.Config) ReservationLockRepository {
	database := cfg.Client.Mongo.Database(cfg.MongoDatabaseName)
	return &mongoLockRepository{
		cfg:        cfg,
		collection: database.Collection(mongotx.ReservationLocksCollection),
	}
}

// Acquire upserts the lock document keyed by slot id. The filter only
// matches an expired lock, so a live one makes the upsert collide on _id.
func (r *mongoLockRepository) Acquire(ctx context.Context, lock *model.ReservationLock, now time.Time) (bool, error) {
	ctx, cancel := mongotx.WithTimeout(ctx, r.cfg.StoreTimeout)
	defer cancel()

	filter := bson.M{
		"_id":        lock.SlotID,
		"expires_at": bson.M{"$lte": now},
	}
	update := bson.M{"$set": bson.M{
		"holder_token": lock.HolderToken,
		"expires_at":   lock.ExpiresAt,
		"created_at":   lock.CreatedAt,
	}}

	_, err := r.collection.UpdateOne(ctx, filter, update, options.Update().SetUpsert(true))
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return false, nil
		}
		return false, fmt.Errorf("failed to acquire reservation lock: %w", err)
	}
	return true, nil
}

func (r *mongoLockRepository) Refresh(ctx context.Context, slotID, token string, expiresAt, now time.Time) (bool, error) {
	ctx, cancel := mongotx.WithTimeout(ctx, r.cfg.StoreTimeout)
	defer cancel()

	filter := bson.M{
		"_id":          slotID,
		"holder_token": token,
		"expires_at":   bson.M{"$gt": now},
	}
	result, err := r.collection.UpdateOne(ctx, filter, bson.M{"$set": bson.M{"expires_at": expiresAt}})
	if err != nil {
		return false, fmt.Errorf("failed to refresh reservation lock: %w", err)
	}
	return result.MatchedCount > 0, nil
}

func (r *mongoLockRepository) Release(ctx context.Context, slotID, token string) (bool, error) {
	ctx, cancel := mongotx.WithTimeout(ctx, r.cfg.StoreTimeout)
	defer cancel()

	result, err := r.collection.DeleteOne(ctx, bson.M{"_id": slotID, "holder_token": token})
	if err != nil {
		return false, fmt.Errorf("failed to release reservation lock: %w", err)
	}
	return result.DeletedCount > 0, nil
}

func (r *mongoLockRepository) Get(ctx context.Context, slotID string) (*model.ReservationLock, error) {
	ctx, cancel := mongotx.WithTimeout(ctx, r.cfg.StoreTimeout)
	defer cancel()

	var lock model.ReservationLock
	if err := r.collection.FindOne(ctx, bson.M{"_id": slotID}).Decode(&lock); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, fmt.Errorf("%w: %s", bookingserrors.ErrLockNotFound, slotID)
		}
		return nil, fmt.Errorf("failed to get reservation lock: %w", err)
	}
	return &lock, nil
}

func (r *mongoLockRepository) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	ctx, cancel := mongotx.WithTimeout(ctx, r.cfg.StoreTimeout)
	defer cancel()

	result, err := r.collection.DeleteMany(ctx, bson.M{"expires_at": bson.M{"$lte": now}})
	if err != nil {
		return 0, fmt.Errorf("failed to delete expired reservation locks: %w", err)
	}
	return result.DeletedCount, nil
}
