package repository

import (
	"context"
	"time"

	"medibook/pkg/db"
	"medibook/pkg/model"
)

// SlotFilter selects active slots starting in [From, To).
type SlotFilter struct {
	PractitionerID string
	From           time.Time
	To             time.Time
}

type SlotRepository interface {
	// Create inserts one slot and returns ErrDuplicateStart when an active
	// slot of the practitioner already starts at the same instant.
	Create(ctx context.Context, slot *model.AvailabilitySlot) error
	// InsertMany inserts slots, silently skipping active duplicates, and
	// returns the ones actually written.
	InsertMany(ctx context.Context, slots []*model.AvailabilitySlot) ([]*model.AvailabilitySlot, error)
	FindByID(ctx context.Context, id string) (*model.AvailabilitySlot, error)
	// FindActiveStarts lists start instants of active slots in [from, to].
	FindActiveStarts(ctx context.Context, practitionerID string, from, to time.Time) ([]time.Time, error)
	FindWithOccupancy(ctx context.Context, filter SlotFilter) ([]*model.SlotView, error)
	// LockForBooking reads the slot under a write lock held until the
	// surrounding transaction ends.
	LockForBooking(ctx context.Context, id string) (*model.AvailabilitySlot, error)
	CountLiveAppointments(ctx context.Context, slotID string) (int, error)
	Update(ctx context.Context, slot *model.AvailabilitySlot) error
	Delete(ctx context.Context, id string) error
	ExecuteTransaction(ctx context.Context, fn db.TxFunc) error
}

func now() time.Time {
	return time.Now().UTC().Truncate(time.Millisecond)
}
