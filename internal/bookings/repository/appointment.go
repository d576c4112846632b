package repository

import (
	"context"
	"time"

	"medibook/pkg/db"
	"medibook/pkg/model"
)

type AppointmentRepository interface {
	Create(ctx context.Context, appt *model.Appointment) error
	FindByID(ctx context.Context, id string) (*model.Appointment, error)
	FindByCancellationToken(ctx context.Context, token string) (*model.Appointment, error)
	// FindScheduledOverlapping lists scheduled appointments of the
	// practitioner intersecting [start, end).
	FindScheduledOverlapping(ctx context.Context, practitionerID string, start, end time.Time) ([]*model.Appointment, error)
	// LockPractitioner serializes booking transactions of one practitioner
	// until the surrounding transaction ends.
	LockPractitioner(ctx context.Context, practitionerID string) error
	// MarkCancelled moves a scheduled appointment to cancelled and returns
	// ErrNotCancellable when it is no longer scheduled.
	MarkCancelled(ctx context.Context, id string, at time.Time) error
	ExecuteTransaction(ctx context.Context, fn db.TxFunc) error
}

func now() time.Time {
	return time.Now().UTC().Truncate(time.Millisecond)
}
