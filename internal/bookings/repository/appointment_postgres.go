package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	bookingserrors "medibook/internal/bookings/errors"
	"medibook/pkg/config"
	"medibook/pkg/db"
	"medibook/pkg/db/postgres"
	"medibook/pkg/model"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

const appointmentColumns = `id, patient_id, practitioner_id, slot_id, start_time, end_time, status, reason,
       patient_name, patient_email, patient_phone, cancellation_token, created_at, updated_at, cancelled_at`

const (
	insertAppointmentSQL = `INSERT INTO appointments (` + appointmentColumns + `)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)`

	findAppointmentByIDSQL = `SELECT ` + appointmentColumns + ` FROM appointments WHERE id = $1`

	findAppointmentByTokenSQL = `SELECT ` + appointmentColumns + ` FROM appointments WHERE cancellation_token = $1`

	findOverlappingSQL = `SELECT ` + appointmentColumns + ` FROM appointments
WHERE practitioner_id = $1 AND status = 'scheduled' AND start_time < $3 AND end_time > $2
ORDER BY start_time`

	lockPractitionerSQL = `SELECT pg_advisory_xact_lock(hashtextextended($1, 0))`

	cancelAppointmentSQL = `UPDATE appointments
SET status = 'cancelled', cancelled_at = $2, updated_at = $2
WHERE id = $1 AND status = 'scheduled'`
)

type postgresAppointmentRepository struct {
	cfg       *config.Config
	pool      postgres.Pool
	txManager db.TransactionManager
}

func NewPostgresAppointmentRepository(cfg *config.Config, pool postgres.Pool) AppointmentRepository {
	return &postgresAppointmentRepository{
		cfg:       cfg,
		pool:      pool,
		txManager: postgres.NewTransactionManager(pool),
	}
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAppointment(row rowScanner) (*model.Appointment, error) {
	var a model.Appointment
	err := row.Scan(
		&a.ID, &a.PatientID, &a.PractitionerID, &a.SlotID, &a.StartTime, &a.EndTime, &a.Status, &a.Reason,
		&a.Patient.Name, &a.Patient.Email, &a.Patient.Phone, &a.CancellationToken, &a.CreatedAt, &a.UpdatedAt, &a.CancelledAt,
	)
	if err != nil {
		return nil, err
	}
	a.StartTime = a.StartTime.UTC()
	a.EndTime = a.EndTime.UTC()
	return &a, nil
}

func (r *postgresAppointmentRepository) Create(ctx context.Context, appt *model.Appointment) error {
	ctx, cancel := context.WithTimeout(ctx, r.cfg.StoreTimeout)
	defer cancel()

	prepareAppointment(appt)
	_, err := postgres.Conn(ctx, r.pool).Exec(ctx, insertAppointmentSQL,
		appt.ID, appt.PatientID, appt.PractitionerID, appt.SlotID, appt.StartTime, appt.EndTime, appt.Status, appt.Reason,
		appt.Patient.Name, appt.Patient.Email, appt.Patient.Phone, appt.CancellationToken, appt.CreatedAt, appt.UpdatedAt, appt.CancelledAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create appointment: %w", err)
	}
	return nil
}

func (r *postgresAppointmentRepository) findOne(ctx context.Context, query, arg, key string) (*model.Appointment, error) {
	ctx, cancel := context.WithTimeout(ctx, r.cfg.StoreTimeout)
	defer cancel()

	appt, err := scanAppointment(postgres.Conn(ctx, r.pool).QueryRow(ctx, query, arg))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s", bookingserrors.ErrNotFound, key)
		}
		return nil, fmt.Errorf("failed to find appointment: %w", err)
	}
	return appt, nil
}

func (r *postgresAppointmentRepository) FindByID(ctx context.Context, id string) (*model.Appointment, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, fmt.Errorf("%w: %s", bookingserrors.ErrInvalidID, id)
	}
	return r.findOne(ctx, findAppointmentByIDSQL, id, id)
}

func (r *postgresAppointmentRepository) FindByCancellationToken(ctx context.Context, token string) (*model.Appointment, error) {
	return r.findOne(ctx, findAppointmentByTokenSQL, token, "token")
}

func (r *postgresAppointmentRepository) FindScheduledOverlapping(ctx context.Context, practitionerID string, start, end time.Time) ([]*model.Appointment, error) {
	ctx, cancel := context.WithTimeout(ctx, r.cfg.StoreTimeout)
	defer cancel()

	rows, err := postgres.Conn(ctx, r.pool).Query(ctx, findOverlappingSQL, practitionerID, start, end)
	if err != nil {
		return nil, fmt.Errorf("failed to query overlapping appointments: %w", err)
	}
	defer rows.Close()

	var appts []*model.Appointment
	for rows.Next() {
		appt, err := scanAppointment(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan appointment: %w", err)
		}
		appts = append(appts, appt)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate appointments: %w", err)
	}
	return appts, nil
}

// LockPractitioner takes a transaction-scoped advisory lock keyed by the
// practitioner id.
func (r *postgresAppointmentRepository) LockPractitioner(ctx context.Context, practitionerID string) error {
	ctx, cancel := context.WithTimeout(ctx, r.cfg.StoreTimeout)
	defer cancel()

	if _, err := postgres.Conn(ctx, r.pool).Exec(ctx, lockPractitionerSQL, practitionerID); err != nil {
		return fmt.Errorf("failed to lock practitioner: %w", err)
	}
	return nil
}

func (r *postgresAppointmentRepository) MarkCancelled(ctx context.Context, id string, at time.Time) error {
	ctx, cancel := context.WithTimeout(ctx, r.cfg.StoreTimeout)
	defer cancel()

	tag, err := postgres.Conn(ctx, r.pool).Exec(ctx, cancelAppointmentSQL, id, at.UTC())
	if err != nil {
		return fmt.Errorf("failed to cancel appointment: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: %s", bookingserrors.ErrNotCancellable, id)
	}
	return nil
}

func (r *postgresAppointmentRepository) ExecuteTransaction(ctx context.Context, fn db.TxFunc) error {
	return r.txManager.ExecuteTransaction(ctx, fn)
}
