package memory

import (
	"context"
	"fmt"
	"sort"
	"time"

	slotserrors "medibook/internal/slots/errors"
	"medibook/internal/slots/repository"
	"medibook/pkg/db"
	"medibook/pkg/model"

	"github.com/google/uuid"
)

type slotRepository struct {
	store *Store
}

func (s *Store) Slots() repository.SlotRepository {
	return &slotRepository{store: s}
}

func (r *slotRepository) activeStartTaken(slot *model.AvailabilitySlot) bool {
	for _, existing := range r.store.slots {
		if existing.ID != slot.ID && existing.IsActive &&
			existing.PractitionerID == slot.PractitionerID && existing.StartTime.Equal(slot.StartTime) {
			return true
		}
	}
	return false
}

func prepare(slot *model.AvailabilitySlot) {
	if slot.ID == "" {
		slot.ID = uuid.NewString()
	}
	ts := now()
	slot.CreatedAt = ts
	slot.UpdatedAt = ts
	slot.StartTime = slot.StartTime.UTC()
	slot.EndTime = slot.EndTime.UTC()
}

func (r *slotRepository) Create(ctx context.Context, slot *model.AvailabilitySlot) error {
	defer r.store.acquire(ctx)()

	prepare(slot)
	if slot.IsActive && r.activeStartTaken(slot) {
		return fmt.Errorf("%w: %s at %s", slotserrors.ErrDuplicateStart, slot.PractitionerID, slot.StartTime.Format(time.RFC3339))
	}
	r.store.slots[slot.ID] = *slot
	return nil
}

func (r *slotRepository) InsertMany(ctx context.Context, slots []*model.AvailabilitySlot) ([]*model.AvailabilitySlot, error) {
	defer r.store.acquire(ctx)()

	inserted := make([]*model.AvailabilitySlot, 0, len(slots))
	for _, slot := range slots {
		prepare(slot)
		if slot.IsActive && r.activeStartTaken(slot) {
			continue
		}
		r.store.slots[slot.ID] = *slot
		inserted = append(inserted, slot)
	}
	return inserted, nil
}

func (r *slotRepository) find(id string) (*model.AvailabilitySlot, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, fmt.Errorf("%w: %s", slotserrors.ErrInvalidID, id)
	}
	slot, ok := r.store.slots[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", slotserrors.ErrNotFound, id)
	}
	return &slot, nil
}

func (r *slotRepository) FindByID(ctx context.Context, id string) (*model.AvailabilitySlot, error) {
	defer r.store.acquire(ctx)()
	return r.find(id)
}

// LockForBooking relies on the transaction holding the store mutex.
func (r *slotRepository) LockForBooking(ctx context.Context, id string) (*model.AvailabilitySlot, error) {
	defer r.store.acquire(ctx)()
	return r.find(id)
}

func (r *slotRepository) FindActiveStarts(ctx context.Context, practitionerID string, from, to time.Time) ([]time.Time, error) {
	defer r.store.acquire(ctx)()

	var starts []time.Time
	for _, slot := range r.store.slots {
		if slot.IsActive && slot.PractitionerID == practitionerID &&
			!slot.StartTime.Before(from) && !slot.StartTime.After(to) {
			starts = append(starts, slot.StartTime)
		}
	}
	return starts, nil
}

func (r *slotRepository) countLive(slotID string) int {
	n := 0
	for _, appt := range r.store.appointments {
		if appt.IsScheduled() && appt.BoundTo(slotID) {
			n++
		}
	}
	return n
}

func (r *slotRepository) FindWithOccupancy(ctx context.Context, filter repository.SlotFilter) ([]*model.SlotView, error) {
	defer r.store.acquire(ctx)()

	views := []*model.SlotView{}
	for _, slot := range r.store.slots {
		if !slot.IsActive || slot.StartTime.Before(filter.From) || !slot.StartTime.Before(filter.To) {
			continue
		}
		if filter.PractitionerID != "" && slot.PractitionerID != filter.PractitionerID {
			continue
		}
		views = append(views, model.NewSlotView(slot, r.countLive(slot.ID)))
	}

	sort.Slice(views, func(i, j int) bool {
		if views[i].StartTime.Equal(views[j].StartTime) {
			return views[i].PractitionerID < views[j].PractitionerID
		}
		return views[i].StartTime.Before(views[j].StartTime)
	})
	return views, nil
}

func (r *slotRepository) CountLiveAppointments(ctx context.Context, slotID string) (int, error) {
	defer r.store.acquire(ctx)()
	return r.countLive(slotID), nil
}

func (r *slotRepository) Update(ctx context.Context, slot *model.AvailabilitySlot) error {
	defer r.store.acquire(ctx)()

	existing, ok := r.store.slots[slot.ID]
	if !ok {
		return fmt.Errorf("%w: %s", slotserrors.ErrNotFound, slot.ID)
	}
	if slot.IsActive && r.activeStartTaken(slot) {
		return fmt.Errorf("%w: %s at %s", slotserrors.ErrDuplicateStart, slot.PractitionerID, slot.StartTime.Format(time.RFC3339))
	}

	existing.StartTime = slot.StartTime.UTC()
	existing.EndTime = slot.EndTime.UTC()
	existing.Capacity = slot.Capacity
	existing.IsActive = slot.IsActive
	existing.Notes = slot.Notes
	existing.UpdatedAt = now()
	r.store.slots[slot.ID] = existing
	slot.UpdatedAt = existing.UpdatedAt
	return nil
}

// Delete detaches appointments from the removed slot, like ON DELETE SET NULL.
func (r *slotRepository) Delete(ctx context.Context, id string) error {
	defer r.store.acquire(ctx)()

	if _, ok := r.store.slots[id]; !ok {
		return fmt.Errorf("%w: %s", slotserrors.ErrNotFound, id)
	}
	delete(r.store.slots, id)
	for apptID, appt := range r.store.appointments {
		if appt.BoundTo(id) {
			appt.SlotID = nil
			r.store.appointments[apptID] = appt
		}
	}
	return nil
}

func (r *slotRepository) ExecuteTransaction(ctx context.Context, fn db.TxFunc) error {
	return r.store.ExecuteTransaction(ctx, fn)
}
