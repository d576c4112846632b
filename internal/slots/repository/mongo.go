package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	slotserrors "medibook/internal/slots/errors"
	"medibook/pkg/config"
	"medibook/pkg/db"
	mongotx "medibook/pkg/db/mongo"
	"medibook/pkg/model"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

type mongoSlotRepository struct {
	cfg          *config.Config
	collection   *mongo.Collection
	appointments *mongo.Collection
	txManager    db.TransactionManager
}

func NewMongoSlotRepository(cfg *config.Config) SlotRepository {
	database := cfg.Client.Mongo.Database(cfg.MongoDatabaseName)
	return &mongoSlotRepository{
		cfg:          cfg,
		collection:   database.Collection(mongotx.SlotsCollection),
		appointments: database.Collection(mongotx.AppointmentsCollection),
		txManager:    mongotx.NewTransactionManager(cfg.Client.Mongo),
	}
}

func (r *mongoSlotRepository) Create(ctx context.Context, slot *model.AvailabilitySlot) error {
	ctx, cancel := mongotx.WithTimeout(ctx, r.cfg.StoreTimeout)
	defer cancel()

	prepareSlot(slot)
	if _, err := r.collection.InsertOne(ctx, slot); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return fmt.Errorf("%w: %s at %s", slotserrors.ErrDuplicateStart, slot.PractitionerID, slot.StartTime.Format(time.RFC3339))
		}
		return fmt.Errorf("failed to create slot: %w", err)
	}
	return nil
}

func (r *mongoSlotRepository) InsertMany(ctx context.Context, slots []*model.AvailabilitySlot) ([]*model.AvailabilitySlot, error) {
	if len(slots) == 0 {
		return []*model.AvailabilitySlot{}, nil
	}

	ctx, cancel := mongotx.WithTimeout(ctx, r.cfg.StoreTimeout)
	defer cancel()

	docs := make([]any, len(slots))
	for i, s := range slots {
		prepareSlot(s)
		docs[i] = s
	}

	_, err := r.collection.InsertMany(ctx, docs, options.InsertMany().SetOrdered(false))
	if err == nil {
		return slots, nil
	}

	var bulkErr mongo.BulkWriteException
	if !errors.As(err, &bulkErr) || bulkErr.WriteConcernError != nil {
		return nil, fmt.Errorf("failed to insert slots: %w", err)
	}

	failed := make(map[int]bool, len(bulkErr.WriteErrors))
	for _, we := range bulkErr.WriteErrors {
		if we.Code != mongotx.DuplicateKeyCode {
			return nil, fmt.Errorf("failed to insert slots: %w", err)
		}
		failed[we.Index] = true
	}

	inserted := make([]*model.AvailabilitySlot, 0, len(slots)-len(failed))
	for i, s := range slots {
		if !failed[i] {
			inserted = append(inserted, s)
		}
	}
	return inserted, nil
}

func (r *mongoSlotRepository) FindByID(ctx context.Context, id string) (*model.AvailabilitySlot, error) {
	ctx, cancel := mongotx.WithTimeout(ctx, r.cfg.StoreTimeout)
	defer cancel()

	if _, err := uuid.Parse(id); err != nil {
		return nil, fmt.Errorf("%w: %s", slotserrors.ErrInvalidID, id)
	}

	var slot model.AvailabilitySlot
	if err := r.collection.FindOne(ctx, bson.M{"_id": id}).Decode(&slot); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, fmt.Errorf("%w: %s", slotserrors.ErrNotFound, id)
		}
		return nil, fmt.Errorf("failed to find slot: %w", err)
	}
	return &slot, nil
}

func (r *mongoSlotRepository) FindActiveStarts(ctx context.Context, practitionerID string, from, to time.Time) ([]time.Time, error) {
	ctx, cancel := mongotx.WithTimeout(ctx, r.cfg.StoreTimeout)
	defer cancel()

	filter := bson.M{
		"practitioner_id": practitionerID,
		"is_active":       true,
		"start_time":      bson.M{"$gte": from, "$lte": to},
	}
	opts := options.Find().SetProjection(bson.M{"start_time": 1})

	cursor, err := r.collection.Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to query slot starts: %w", err)
	}
	defer cursor.Close(ctx)

	var rows []struct {
		StartTime time.Time `bson:"start_time"`
	}
	if err := cursor.All(ctx, &rows); err != nil {
		return nil, fmt.Errorf("failed to decode slot starts: %w", err)
	}

	starts := make([]time.Time, len(rows))
	for i, row := range rows {
		starts[i] = row.StartTime.UTC()
	}
	return starts, nil
}

// FindWithOccupancy joins each slot with its scheduled appointments in one
// aggregation.
func (r *mongoSlotRepository) FindWithOccupancy(ctx context.Context, filter SlotFilter) ([]*model.SlotView, error) {
	ctx, cancel := mongotx.WithTimeout(ctx, r.cfg.StoreTimeout)
	defer cancel()

	match := bson.M{
		"is_active":  true,
		"start_time": bson.M{"$gte": filter.From, "$lt": filter.To},
	}
	if filter.PractitionerID != "" {
		match["practitioner_id"] = filter.PractitionerID
	}

	pipeline := mongo.Pipeline{
		{{Key: "$match", Value: match}},
		{{Key: "$sort", Value: bson.D{{Key: "start_time", Value: 1}, {Key: "practitioner_id", Value: 1}}}},
		{{Key: "$lookup", Value: bson.M{
			"from": mongotx.AppointmentsCollection,
			"let":  bson.M{"slotId": "$_id"},
			"pipeline": bson.A{
				bson.M{"$match": bson.M{"$expr": bson.M{"$and": bson.A{
					bson.M{"$eq": bson.A{"$slot_id", "$$slotId"}},
					bson.M{"$eq": bson.A{"$status", model.AppointmentStatusScheduled}},
				}}}},
				bson.M{"$count": "n"},
			},
			"as": "occupancy",
		}}},
		{{Key: "$addFields", Value: bson.M{
			"booked_count": bson.M{"$ifNull": bson.A{bson.M{"$arrayElemAt": bson.A{"$occupancy.n", 0}}, 0}},
		}}},
		{{Key: "$project", Value: bson.M{"occupancy": 0, "lock_version": 0}}},
	}

	cursor, err := r.collection.Aggregate(ctx, pipeline)
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate slot occupancy: %w", err)
	}
	defer cursor.Close(ctx)

	var views []*model.SlotView
	if err := cursor.All(ctx, &views); err != nil {
		return nil, fmt.Errorf("failed to decode slot occupancy: %w", err)
	}
	if views == nil {
		views = []*model.SlotView{}
	}
	for _, v := range views {
		v.IsAvailable = v.BookedCount < v.Capacity
	}
	return views, nil
}

// LockForBooking bumps a version counter on the slot so that concurrent
// transactions touching the same slot conflict and WithTransaction retries
// the loser against fresh data.
func (r *mongoSlotRepository) LockForBooking(ctx context.Context, id string) (*model.AvailabilitySlot, error) {
	ctx, cancel := mongotx.WithTimeout(ctx, r.cfg.StoreTimeout)
	defer cancel()

	if _, err := uuid.Parse(id); err != nil {
		return nil, fmt.Errorf("%w: %s", slotserrors.ErrInvalidID, id)
	}

	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)
	var slot model.AvailabilitySlot
	err := r.collection.FindOneAndUpdate(ctx, bson.M{"_id": id}, bson.M{"$inc": bson.M{"lock_version": 1}}, opts).Decode(&slot)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, fmt.Errorf("%w: %s", slotserrors.ErrNotFound, id)
		}
		return nil, fmt.Errorf("failed to lock slot: %w", err)
	}
	return &slot, nil
}

func (r *mongoSlotRepository) CountLiveAppointments(ctx context.Context, slotID string) (int, error) {
	ctx, cancel := mongotx.WithTimeout(ctx, r.cfg.StoreTimeout)
	defer cancel()

	n, err := r.appointments.CountDocuments(ctx, bson.M{
		"slot_id": slotID,
		"status":  model.AppointmentStatusScheduled,
	})
	if err != nil {
		return 0, fmt.Errorf("failed to count appointments for slot: %w", err)
	}
	return int(n), nil
}

func (r *mongoSlotRepository) Update(ctx context.Context, slot *model.AvailabilitySlot) error {
	ctx, cancel := mongotx.WithTimeout(ctx, r.cfg.StoreTimeout)
	defer cancel()

	slot.UpdatedAt = now()
	update := bson.M{"$set": bson.M{
		"start_time": slot.StartTime,
		"end_time":   slot.EndTime,
		"capacity":   slot.Capacity,
		"is_active":  slot.IsActive,
		"notes":      slot.Notes,
		"updated_at": slot.UpdatedAt,
	}}

	result, err := r.collection.UpdateByID(ctx, slot.ID, update)
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return fmt.Errorf("%w: %s at %s", slotserrors.ErrDuplicateStart, slot.PractitionerID, slot.StartTime.Format(time.RFC3339))
		}
		return fmt.Errorf("failed to update slot: %w", err)
	}
	if result.MatchedCount == 0 {
		return fmt.Errorf("%w: %s", slotserrors.ErrNotFound, slot.ID)
	}
	return nil
}

func (r *mongoSlotRepository) Delete(ctx context.Context, id string) error {
	ctx, cancel := mongotx.WithTimeout(ctx, r.cfg.StoreTimeout)
	defer cancel()

	result, err := r.collection.DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return fmt.Errorf("failed to delete slot: %w", err)
	}
	if result.DeletedCount == 0 {
		return fmt.Errorf("%w: %s", slotserrors.ErrNotFound, id)
	}
	return nil
}

func (r *mongoSlotRepository) ExecuteTransaction(ctx context.Context, fn db.TxFunc) error {
	return r.txManager.ExecuteTransaction(ctx, fn)
}

// prepareSlot assigns an id and timestamps to a slot about to be inserted.
func prepareSlot(slot *model.AvailabilitySlot) {
	if slot.ID == "" {
		slot.ID = uuid.NewString()
	}
	ts := now()
	slot.CreatedAt = ts
	slot.UpdatedAt = ts
	slot.StartTime = slot.StartTime.UTC()
	slot.EndTime = slot.EndTime.UTC()
}
