package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	slotserrors "medibook/internal/slots/errors"
	"medibook/pkg/config"
	"medibook/pkg/db"
	"medibook/pkg/db/postgres"
	"medibook/pkg/model"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

const slotColumns = `id, practitioner_id, start_time, end_time, capacity, is_active, notes, recurring_rule, created_at, updated_at`

const (
	insertSlotSQL = `INSERT INTO availability_slots (` + slotColumns + `)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`

	insertSlotIgnoreDuplicateSQL = insertSlotSQL + `
ON CONFLICT (practitioner_id, start_time) WHERE is_active DO NOTHING
RETURNING id`

	findSlotSQL = `SELECT ` + slotColumns + ` FROM availability_slots WHERE id = $1`

	lockSlotSQL = findSlotSQL + ` FOR UPDATE`

	findActiveStartsSQL = `SELECT start_time FROM availability_slots
WHERE practitioner_id = $1 AND is_active AND start_time >= $2 AND start_time <= $3`

	findWithOccupancySQL = `SELECT s.id, s.practitioner_id, s.start_time, s.end_time, s.capacity, s.is_active,
       s.notes, s.recurring_rule, s.created_at, s.updated_at,
       COUNT(a.id) FILTER (WHERE a.status = 'scheduled') AS booked_count
FROM availability_slots s
LEFT JOIN appointments a ON a.slot_id = s.id
WHERE s.is_active AND s.start_time >= $1 AND s.start_time < $2
  AND ($3 = '' OR s.practitioner_id = $3)
GROUP BY s.id
ORDER BY s.start_time, s.practitioner_id`

	countLiveAppointmentsSQL = `SELECT COUNT(*) FROM appointments WHERE slot_id = $1 AND status = 'scheduled'`

	updateSlotSQL = `UPDATE availability_slots
SET start_time = $2, end_time = $3, capacity = $4, is_active = $5, notes = $6, updated_at = $7
WHERE id = $1`

	deleteSlotSQL = `DELETE FROM availability_slots WHERE id = $1`
)

type postgresSlotRepository struct {
	cfg       *config.Config
	pool      postgres.Pool
	txManager db.TransactionManager
}

func NewPostgresSlotRepository(cfg *config.Config, pool postgres.Pool) SlotRepository {
	return &postgresSlotRepository{
		cfg:       cfg,
		pool:      pool,
		txManager: postgres.NewTransactionManager(pool),
	}
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSlot(row rowScanner, extra ...any) (*model.AvailabilitySlot, error) {
	var s model.AvailabilitySlot
	dest := append([]any{
		&s.ID, &s.PractitionerID, &s.StartTime, &s.EndTime, &s.Capacity,
		&s.IsActive, &s.Notes, &s.RecurringRule, &s.CreatedAt, &s.UpdatedAt,
	}, extra...)
	if err := row.Scan(dest...); err != nil {
		return nil, err
	}
	s.StartTime = s.StartTime.UTC()
	s.EndTime = s.EndTime.UTC()
	return &s, nil
}

func slotArgs(s *model.AvailabilitySlot) []any {
	return []any{
		s.ID, s.PractitionerID, s.StartTime, s.EndTime, s.Capacity,
		s.IsActive, s.Notes, s.RecurringRule, s.CreatedAt, s.UpdatedAt,
	}
}

func (r *postgresSlotRepository) Create(ctx context.Context, slot *model.AvailabilitySlot) error {
	ctx, cancel := context.WithTimeout(ctx, r.cfg.StoreTimeout)
	defer cancel()

	prepareSlot(slot)
	if _, err := postgres.Conn(ctx, r.pool).Exec(ctx, insertSlotSQL, slotArgs(slot)...); err != nil {
		if postgres.IsUniqueViolation(err) {
			return fmt.Errorf("%w: %s at %s", slotserrors.ErrDuplicateStart, slot.PractitionerID, slot.StartTime.Format(time.RFC3339))
		}
		return fmt.Errorf("failed to create slot: %w", err)
	}
	return nil
}

func (r *postgresSlotRepository) InsertMany(ctx context.Context, slots []*model.AvailabilitySlot) ([]*model.AvailabilitySlot, error) {
	inserted := make([]*model.AvailabilitySlot, 0, len(slots))
	if len(slots) == 0 {
		return inserted, nil
	}

	err := r.txManager.ExecuteTransaction(ctx, func(ctx context.Context) error {
		conn := postgres.Conn(ctx, r.pool)
		for _, s := range slots {
			prepareSlot(s)
			var id string
			err := conn.QueryRow(ctx, insertSlotIgnoreDuplicateSQL, slotArgs(s)...).Scan(&id)
			if errors.Is(err, pgx.ErrNoRows) {
				continue
			}
			if err != nil {
				return fmt.Errorf("failed to insert slot: %w", err)
			}
			inserted = append(inserted, s)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return inserted, nil
}

func (r *postgresSlotRepository) findOne(ctx context.Context, query, id string) (*model.AvailabilitySlot, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, fmt.Errorf("%w: %s", slotserrors.ErrInvalidID, id)
	}

	slot, err := scanSlot(postgres.Conn(ctx, r.pool).QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s", slotserrors.ErrNotFound, id)
		}
		return nil, fmt.Errorf("failed to find slot: %w", err)
	}
	return slot, nil
}

func (r *postgresSlotRepository) FindByID(ctx context.Context, id string) (*model.AvailabilitySlot, error) {
	ctx, cancel := context.WithTimeout(ctx, r.cfg.StoreTimeout)
	defer cancel()
	return r.findOne(ctx, findSlotSQL, id)
}

// LockForBooking must run inside ExecuteTransaction for the row lock to
// outlive the statement.
func (r *postgresSlotRepository) LockForBooking(ctx context.Context, id string) (*model.AvailabilitySlot, error) {
	ctx, cancel := context.WithTimeout(ctx, r.cfg.StoreTimeout)
	defer cancel()
	return r.findOne(ctx, lockSlotSQL, id)
}

func (r *postgresSlotRepository) FindActiveStarts(ctx context.Context, practitionerID string, from, to time.Time) ([]time.Time, error) {
	ctx, cancel := context.WithTimeout(ctx, r.cfg.StoreTimeout)
	defer cancel()

	rows, err := postgres.Conn(ctx, r.pool).Query(ctx, findActiveStartsSQL, practitionerID, from, to)
	if err != nil {
		return nil, fmt.Errorf("failed to query slot starts: %w", err)
	}
	defer rows.Close()

	var starts []time.Time
	for rows.Next() {
		var t time.Time
		if err := rows.Scan(&t); err != nil {
			return nil, fmt.Errorf("failed to scan slot start: %w", err)
		}
		starts = append(starts, t.UTC())
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate slot starts: %w", err)
	}
	return starts, nil
}

func (r *postgresSlotRepository) FindWithOccupancy(ctx context.Context, filter SlotFilter) ([]*model.SlotView, error) {
	ctx, cancel := context.WithTimeout(ctx, r.cfg.StoreTimeout)
	defer cancel()

	rows, err := postgres.Conn(ctx, r.pool).Query(ctx, findWithOccupancySQL, filter.From, filter.To, filter.PractitionerID)
	if err != nil {
		return nil, fmt.Errorf("failed to query slot occupancy: %w", err)
	}
	defer rows.Close()

	views := []*model.SlotView{}
	for rows.Next() {
		var booked int64
		slot, err := scanSlot(rows, &booked)
		if err != nil {
			return nil, fmt.Errorf("failed to scan slot occupancy: %w", err)
		}
		views = append(views, model.NewSlotView(*slot, int(booked)))
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate slot occupancy: %w", err)
	}
	return views, nil
}

func (r *postgresSlotRepository) CountLiveAppointments(ctx context.Context, slotID string) (int, error) {
	ctx, cancel := context.WithTimeout(ctx, r.cfg.StoreTimeout)
	defer cancel()

	var n int64
	if err := postgres.Conn(ctx, r.pool).QueryRow(ctx, countLiveAppointmentsSQL, slotID).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count appointments for slot: %w", err)
	}
	return int(n), nil
}

func (r *postgresSlotRepository) Update(ctx context.Context, slot *model.AvailabilitySlot) error {
	ctx, cancel := context.WithTimeout(ctx, r.cfg.StoreTimeout)
	defer cancel()

	slot.UpdatedAt = now()
	tag, err := postgres.Conn(ctx, r.pool).Exec(ctx, updateSlotSQL,
		slot.ID, slot.StartTime, slot.EndTime, slot.Capacity, slot.IsActive, slot.Notes, slot.UpdatedAt)
	if err != nil {
		if postgres.IsUniqueViolation(err) {
			return fmt.Errorf("%w: %s at %s", slotserrors.ErrDuplicateStart, slot.PractitionerID, slot.StartTime.Format(time.RFC3339))
		}
		return fmt.Errorf("failed to update slot: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: %s", slotserrors.ErrNotFound, slot.ID)
	}
	return nil
}

func (r *postgresSlotRepository) Delete(ctx context.Context, id string) error {
	ctx, cancel := context.WithTimeout(ctx, r.cfg.StoreTimeout)
	defer cancel()

	tag, err := postgres.Conn(ctx, r.pool).Exec(ctx, deleteSlotSQL, id)
	if err != nil {
		return fmt.Errorf("failed to delete slot: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: %s", slotserrors.ErrNotFound, id)
	}
	return nil
}

func (r *postgresSlotRepository) ExecuteTransaction(ctx context.Context, fn db.TxFunc) error {
	return r.txManager.ExecuteTransaction(ctx, fn)
}
