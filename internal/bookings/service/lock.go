package service

import (
	"context"
	"errors"
	"time"

	bookingserrors "medibook/internal/bookings/errors"
	"medibook/internal/bookings/repository"
	"medibook/internal/bookings/validator"
	slotserrors "medibook/internal/slots/errors"
	slotsrepository "medibook/internal/slots/repository"
	"medibook/pkg/config"
	apperrors "medibook/pkg/errors"
	"medibook/pkg/metrics"
	"medibook/pkg/model"

	"github.com/google/uuid"
)

const minLockTTL = time.Second

// LockService hands out short holds on slots. A hold is advisory: the
// committer re-checks capacity whatever the lock state.
type LockService interface {
	Acquire(ctx context.Context, req *model.LockRequest) (*model.LockResult, error)
	Release(ctx context.Context, req *model.UnlockRequest) error
	SweepExpired(ctx context.Context) (int64, error)
}

type lockService struct {
	locks     repository.ReservationLockRepository
	slots     slotsrepository.SlotRepository
	validator *validator.BookingValidator
	metrics   *metrics.BookingMetrics
	cfg       *config.Config
	now       func() time.Time
}

func NewLockService(
	locks repository.ReservationLockRepository,
	slots slotsrepository.SlotRepository,
	validator *validator.BookingValidator,
	m *metrics.BookingMetrics,
	cfg *config.Config,
) LockService {
	return newLockService(locks, slots, validator, m, cfg, time.Now)
}

func newLockService(
	locks repository.ReservationLockRepository,
	slots slotsrepository.SlotRepository,
	validator *validator.BookingValidator,
	m *metrics.BookingMetrics,
	cfg *config.Config,
	now func() time.Time,
) *lockService {
	return &lockService{
		locks:     locks,
		slots:     slots,
		validator: validator,
		metrics:   m,
		cfg:       cfg,
		now:       now,
	}
}

func (s *lockService) ttl(seconds int) time.Duration {
	ttl := s.cfg.LockDefaultTTL
	if seconds > 0 {
		ttl = time.Duration(seconds) * time.Second
	}
	if ttl < minLockTTL {
		ttl = minLockTTL
	}
	if s.cfg.LockMaxTTL > 0 && ttl > s.cfg.LockMaxTTL {
		ttl = s.cfg.LockMaxTTL
	}
	return ttl
}

// Acquire grants the hold under a freshly minted token when the slot has no
// live lock. A request carrying a holder token only refreshes the live lock
// issued under that token; it never creates one.
func (s *lockService) Acquire(ctx context.Context, req *model.LockRequest) (*model.LockResult, error) {
	if err := s.validator.ValidateLock(req); err != nil {
		s.metrics.ObserveLockAcquire(metrics.OutcomeInvalid)
		return nil, validationFailed("Lock request validation failed", err)
	}

	slot, err := s.slots.FindByID(ctx, req.SlotID)
	if err != nil {
		if errors.Is(err, slotserrors.ErrNotFound) || errors.Is(err, slotserrors.ErrInvalidID) {
			s.metrics.ObserveLockAcquire(metrics.OutcomeNotFound)
			return nil, apperrors.NotFoundWithID("Slot", req.SlotID)
		}
		s.metrics.ObserveLockAcquire(metrics.OutcomeError)
		s.cfg.Log.Error("Failed to load slot for lock",
			"slot_id", req.SlotID,
			"error", err,
		)
		return nil, apperrors.Internal("Failed to load slot", err)
	}
	if !slot.IsActive {
		s.metrics.ObserveLockAcquire(metrics.OutcomeNotFound)
		return nil, apperrors.NotFoundWithID("Slot", req.SlotID)
	}

	now := s.now().UTC()
	lock := &model.ReservationLock{
		SlotID:      req.SlotID,
		HolderToken: req.HolderToken,
		ExpiresAt:   now.Add(s.ttl(req.TTLSeconds)).Truncate(time.Millisecond),
		CreatedAt:   now.Truncate(time.Millisecond),
	}

	var granted bool
	if lock.HolderToken != "" {
		granted, err = s.locks.Refresh(ctx, lock.SlotID, lock.HolderToken, lock.ExpiresAt, now)
	} else {
		lock.HolderToken = uuid.NewString()
		granted, err = s.locks.Acquire(ctx, lock, now)
	}
	if err != nil {
		s.metrics.ObserveLockAcquire(metrics.OutcomeError)
		s.cfg.Log.Error("Failed to acquire reservation lock",
			"slot_id", req.SlotID,
			"error", err,
		)
		return nil, apperrors.Internal("Failed to acquire lock", err)
	}
	if !granted {
		s.metrics.ObserveLockAcquire(metrics.OutcomeDenied)
		return s.denied(ctx, req, now), nil
	}

	s.metrics.ObserveLockAcquire(metrics.OutcomeGranted)
	s.cfg.Log.Debug("Reservation lock granted",
		"slot_id", req.SlotID,
		"expires_at", lock.ExpiresAt,
	)
	expiresAt := lock.ExpiresAt
	return &model.LockResult{
		Granted:     true,
		SlotID:      req.SlotID,
		HolderToken: lock.HolderToken,
		ExpiresAt:   &expiresAt,
	}, nil
}

// denied reports when the current hold runs out so the caller knows how
// long to wait. A lock that vanished in the meantime leaves ExpiresAt nil.
func (s *lockService) denied(ctx context.Context, req *model.LockRequest, now time.Time) *model.LockResult {
	result := &model.LockResult{Granted: false, SlotID: req.SlotID}

	current, err := s.locks.Get(ctx, req.SlotID)
	if err != nil {
		if !errors.Is(err, bookingserrors.ErrLockNotFound) {
			s.cfg.Log.Warn("Failed to read current reservation lock",
				"slot_id", req.SlotID,
				"error", err,
			)
		}
		s.cfg.Log.Debug("Reservation lock denied", "slot_id", req.SlotID, "refresh", req.HolderToken != "")
		return result
	}

	if !current.IsExpired(now) {
		heldUntil := current.ExpiresAt
		result.ExpiresAt = &heldUntil
	}
	s.cfg.Log.Debug("Reservation lock denied",
		"slot_id", req.SlotID,
		"refresh", req.HolderToken != "",
		"held_until", current.ExpiresAt,
	)
	return result
}

// Release is a no-op when the lock is gone or belongs to another token.
func (s *lockService) Release(ctx context.Context, req *model.UnlockRequest) error {
	if err := s.validator.ValidateUnlock(req); err != nil {
		return validationFailed("Unlock request validation failed", err)
	}

	released, err := s.locks.Release(ctx, req.SlotID, req.HolderToken)
	if err != nil {
		s.cfg.Log.Error("Failed to release reservation lock",
			"slot_id", req.SlotID,
			"error", err,
		)
		return apperrors.Internal("Failed to release lock", err)
	}
	s.cfg.Log.Debug("Reservation lock release", "slot_id", req.SlotID, "released", released)
	return nil
}

func (s *lockService) SweepExpired(ctx context.Context) (int64, error) {
	n, err := s.locks.DeleteExpired(ctx, s.now().UTC())
	if err != nil {
		return 0, apperrors.Internal("Failed to sweep expired locks", err)
	}
	s.metrics.ObserveLocksSwept(n)
	return n, nil
}

func validationFailed(message string, err error) error {
	var fieldErrs validator.ValidationErrors
	if errors.As(err, &fieldErrs) {
		return apperrors.Validation(message, map[string]any{"errors": fieldErrs})
	}
	return apperrors.Validation(message, map[string]any{"error": err.Error()})
}
