package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	bookingserrors "medibook/internal/bookings/errors"
	"medibook/pkg/config"
	"medibook/pkg/db"
	mongotx "medibook/pkg/db/mongo"
	"medibook/pkg/model"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

type mongoAppointmentRepository struct {
	cfg        *config.Config
	collection *mongo.Collection
	guards     *mongo.Collection
	txManager  db.TransactionManager
}

func NewMongoAppointmentRepository(cfg *config.Config) AppointmentRepository {
	database := cfg.Client.Mongo.Database(cfg.MongoDatabaseName)
	return &mongoAppointmentRepository{
		cfg:        cfg,
		collection: database.Collection(mongotx.AppointmentsCollection),
		guards:     database.Collection(mongotx.PractitionerGuardsCollection),
		txManager:  mongotx.NewTransactionManager(cfg.Client.Mongo),
	}
}

func (r *mongoAppointmentRepository) Create(ctx context.Context, appt *model.Appointment) error {
	ctx, cancel := mongotx.WithTimeout(ctx, r.cfg.StoreTimeout)
	defer cancel()

	prepareAppointment(appt)
	if _, err := r.collection.InsertOne(ctx, appt); err != nil {
		return fmt.Errorf("failed to create appointment: %w", err)
	}
	return nil
}

func (r *mongoAppointmentRepository) findOne(ctx context.Context, filter bson.M, key string) (*model.Appointment, error) {
	ctx, cancel := mongotx.WithTimeout(ctx, r.cfg.StoreTimeout)
	defer cancel()

	var appt model.Appointment
	if err := r.collection.FindOne(ctx, filter).Decode(&appt); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, fmt.Errorf("%w: %s", bookingserrors.ErrNotFound, key)
		}
		return nil, fmt.Errorf("failed to find appointment: %w", err)
	}
	return &appt, nil
}

func (r *mongoAppointmentRepository) FindByID(ctx context.Context, id string) (*model.Appointment, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, fmt.Errorf("%w: %s", bookingserrors.ErrInvalidID, id)
	}
	return r.findOne(ctx, bson.M{"_id": id}, id)
}

func (r *mongoAppointmentRepository) FindByCancellationToken(ctx context.Context, token string) (*model.Appointment, error) {
	return r.findOne(ctx, bson.M{"cancellation_token": token}, "token")
}

func (r *mongoAppointmentRepository) FindScheduledOverlapping(ctx context.Context, practitionerID string, start, end time.Time) ([]*model.Appointment, error) {
	ctx, cancel := mongotx.WithTimeout(ctx, r.cfg.StoreTimeout)
	defer cancel()

	filter := bson.M{
		"practitioner_id": practitionerID,
		"status":          model.AppointmentStatusScheduled,
		"start_time":      bson.M{"$lt": end},
		"end_time":        bson.M{"$gt": start},
	}

	cursor, err := r.collection.Find(ctx, filter, options.Find().SetSort(bson.D{{Key: "start_time", Value: 1}}))
	if err != nil {
		return nil, fmt.Errorf("failed to query overlapping appointments: %w", err)
	}
	defer cursor.Close(ctx)

	var appts []*model.Appointment
	if err := cursor.All(ctx, &appts); err != nil {
		return nil, fmt.Errorf("failed to decode overlapping appointments: %w", err)
	}
	return appts, nil
}

// LockPractitioner writes a per-practitioner guard document. Two
// transactions writing the same guard conflict, and the driver retries the
// loser after the winner commits.
func (r *mongoAppointmentRepository) LockPractitioner(ctx context.Context, practitionerID string) error {
	ctx, cancel := mongotx.WithTimeout(ctx, r.cfg.StoreTimeout)
	defer cancel()

	update := bson.M{
		"$inc": bson.M{"version": 1},
		"$set": bson.M{"updated_at": now()},
	}
	if _, err := r.guards.UpdateByID(ctx, practitionerID, update, options.Update().SetUpsert(true)); err != nil {
		return fmt.Errorf("failed to lock practitioner: %w", err)
	}
	return nil
}

func (r *mongoAppointmentRepository) MarkCancelled(ctx context.Context, id string, at time.Time) error {
	ctx, cancel := mongotx.WithTimeout(ctx, r.cfg.StoreTimeout)
	defer cancel()

	at = at.UTC().Truncate(time.Millisecond)
	filter := bson.M{"_id": id, "status": model.AppointmentStatusScheduled}
	update := bson.M{"$set": bson.M{
		"status":       model.AppointmentStatusCancelled,
		"cancelled_at": at,
		"updated_at":   at,
	}}

	result, err := r.collection.UpdateOne(ctx, filter, update)
	if err != nil {
		return fmt.Errorf("failed to cancel appointment: %w", err)
	}
	if result.MatchedCount == 0 {
		return fmt.Errorf("%w: %s", bookingserrors.ErrNotCancellable, id)
	}
	return nil
}

func (r *mongoAppointmentRepository) ExecuteTransaction(ctx context.Context, fn db.TxFunc) error {
	return r.txManager.ExecuteTransaction(ctx, fn)
}

func prepareAppointment(appt *model.Appointment) {
	if appt.ID == "" {
		appt.ID = uuid.NewString()
	}
	ts := now()
	appt.CreatedAt = ts
	appt.UpdatedAt = ts
	appt.StartTime = appt.StartTime.UTC()
	appt.EndTime = appt.EndTime.UTC()
}
