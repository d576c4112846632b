package mongo

import (
	"context"
	"fmt"

	mongocollections "medibook/pkg/db/mongo"
	"medibook/pkg/logger"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

var (
	SlotsIndexes = []mongo.IndexModel{
		{
			Keys: bson.D{{Key: "practitioner_id", Value: 1}, {Key: "start_time", Value: 1}},
			Options: options.Index().
				SetName("practitioner_active_start").
				SetUnique(true).
				SetPartialFilterExpression(bson.M{"is_active": true}),
		},
		{Keys: bson.D{{Key: "start_time", Value: 1}, {Key: "is_active", Value: 1}}},
	}

	AppointmentsIndexes = []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "cancellation_token", Value: 1}},
			Options: options.Index().SetName("cancellation_token").SetUnique(true),
		},
		{Keys: bson.D{{Key: "slot_id", Value: 1}, {Key: "status", Value: 1}}},
		{Keys: bson.D{
			{Key: "practitioner_id", Value: 1},
			{Key: "status", Value: 1},
			{Key: "start_time", Value: 1},
		}},
		{Keys: bson.D{{Key: "patient_id", Value: 1}, {Key: "start_time", Value: 1}}},
	}

	// Expired locks are ignored at read time; the TTL monitor only reclaims them.
	ReservationLocksIndexes = []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "expires_at", Value: 1}},
			Options: options.Index().SetName("expires_at_ttl").SetExpireAfterSeconds(0),
		},
	}
)

type CollectionDef struct {
	Indexes   []mongo.IndexModel
	Validator bson.M
}

func Collections() map[string]CollectionDef {
	return map[string]CollectionDef{
		mongocollections.SlotsCollection: {
			Indexes:   SlotsIndexes,
			Validator: SlotValidator,
		},
		mongocollections.AppointmentsCollection: {
			Indexes:   AppointmentsIndexes,
			Validator: AppointmentValidator,
		},
		mongocollections.ReservationLocksCollection: {
			Indexes:   ReservationLocksIndexes,
			Validator: ReservationLockValidator,
		},
		mongocollections.PractitionerGuardsCollection: {},
	}
}

// RunMigration creates every collection with its validator and indexes.
// Collections must exist up front: multi-document transactions cannot
// create them implicitly.
func RunMigration(ctx context.Context, client *mongo.Client, dbName string, log *logger.Logger) error {
	db := client.Database(dbName)
	log.Info("Running Mongo migrations", "database", dbName)

	for name, def := range Collections() {
		if err := ensureCollection(ctx, db, name, def.Validator, log); err != nil {
			return fmt.Errorf("failed to ensure collection %s: %w", name, err)
		}
		if len(def.Indexes) == 0 {
			continue
		}
		if err := ensureIndexes(ctx, db, name, def.Indexes, log); err != nil {
			return fmt.Errorf("failed to ensure indexes for %s: %w", name, err)
		}
	}

	log.Info("All Mongo migrations applied")
	return nil
}

func ensureCollection(ctx context.Context, db *mongo.Database, name string, validator bson.M, log *logger.Logger) error {
	existing, err := db.ListCollectionNames(ctx, bson.D{{Key: "name", Value: name}})
	if err != nil {
		return err
	}

	if len(existing) == 0 {
		log.Info("Creating collection", "collection", name)
		opts := options.CreateCollection()
		if validator != nil {
			opts.SetValidator(validator)
		}
		if err := db.CreateCollection(ctx, name, opts); err != nil {
			return fmt.Errorf("failed creating %s: %w", name, err)
		}
		return nil
	}

	if validator == nil {
		return nil
	}
	command := bson.D{
		{Key: "collMod", Value: name},
		{Key: "validator", Value: validator},
	}
	if err := db.RunCommand(ctx, command).Err(); err != nil {
		log.Warn("Failed updating validator", "collection", name, "error", err)
	}
	return nil
}

func ensureIndexes(ctx context.Context, db *mongo.Database, name string, models []mongo.IndexModel, log *logger.Logger) error {
	if _, err := db.Collection(name).Indexes().CreateMany(ctx, models); err != nil {
		return err
	}
	log.Info("Ensured indexes", "collection", name, "count", len(models))
	return nil
}
