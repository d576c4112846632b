package memory

import (
	"context"
	"fmt"
	"sort"
	"time"

	bookingserrors "medibook/internal/bookings/errors"
	"medibook/internal/bookings/repository"
	"medibook/pkg/db"
	"medibook/pkg/model"

	"github.com/google/uuid"
)

type appointmentRepository struct {
	store *Store
}

func (s *Store) Appointments() repository.AppointmentRepository {
	return &appointmentRepository{store: s}
}

func clone(a model.Appointment) *model.Appointment {
	if a.SlotID != nil {
		id := *a.SlotID
		a.SlotID = &id
	}
	if a.CancelledAt != nil {
		at := *a.CancelledAt
		a.CancelledAt = &at
	}
	return &a
}

func (r *appointmentRepository) Create(ctx context.Context, appt *model.Appointment) error {
	defer r.store.acquire(ctx)()

	if appt.ID == "" {
		appt.ID = uuid.NewString()
	}
	ts := now()
	appt.CreatedAt = ts
	appt.UpdatedAt = ts
	appt.StartTime = appt.StartTime.UTC()
	appt.EndTime = appt.EndTime.UTC()
	r.store.appointments[appt.ID] = *clone(*appt)
	return nil
}

func (r *appointmentRepository) FindByID(ctx context.Context, id string) (*model.Appointment, error) {
	defer r.store.acquire(ctx)()

	if _, err := uuid.Parse(id); err != nil {
		return nil, fmt.Errorf("%w: %s", bookingserrors.ErrInvalidID, id)
	}
	appt, ok := r.store.appointments[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", bookingserrors.ErrNotFound, id)
	}
	return clone(appt), nil
}

func (r *appointmentRepository) FindByCancellationToken(ctx context.Context, token string) (*model.Appointment, error) {
	defer r.store.acquire(ctx)()

	for _, appt := range r.store.appointments {
		if appt.CancellationToken == token {
			return clone(appt), nil
		}
	}
	return nil, fmt.Errorf("%w: token", bookingserrors.ErrNotFound)
}

func (r *appointmentRepository) FindScheduledOverlapping(ctx context.Context, practitionerID string, start, end time.Time) ([]*model.Appointment, error) {
	defer r.store.acquire(ctx)()

	var out []*model.Appointment
	for _, appt := range r.store.appointments {
		if appt.PractitionerID == practitionerID && appt.IsScheduled() && appt.Overlaps(start, end) {
			out = append(out, clone(appt))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartTime.Before(out[j].StartTime) })
	return out, nil
}

// LockPractitioner is a no-op: transactions already run one at a time.
func (r *appointmentRepository) LockPractitioner(context.Context, string) error {
	return nil
}

func (r *appointmentRepository) MarkCancelled(ctx context.Context, id string, at time.Time) error {
	defer r.store.acquire(ctx)()

	appt, ok := r.store.appointments[id]
	if !ok || !appt.IsScheduled() {
		return fmt.Errorf("%w: %s", bookingserrors.ErrNotCancellable, id)
	}
	at = at.UTC()
	appt.Status = model.AppointmentStatusCancelled
	appt.CancelledAt = &at
	appt.UpdatedAt = at
	r.store.appointments[id] = appt
	return nil
}

func (r *appointmentRepository) ExecuteTransaction(ctx context.Context, fn db.TxFunc) error {
	return r.store.ExecuteTransaction(ctx, fn)
}

// SetStatus forces an appointment status. Visits are marked completed or
// no_show by systems outside the booking core; the memory backend exposes
// this for development and tests.
func (s *Store) SetStatus(id, status string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	appt, ok := s.appointments[id]
	if !ok {
		return fmt.Errorf("%w: %s", bookingserrors.ErrNotFound, id)
	}
	appt.Status = status
	appt.UpdatedAt = now()
	s.appointments[id] = appt
	return nil
}
