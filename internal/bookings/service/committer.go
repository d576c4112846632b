package service

import (
	"context"
	"errors"
	"strings"
	"time"

	bookingserrors "medibook/internal/bookings/errors"
	"medibook/internal/bookings/events"
	"medibook/internal/bookings/repository"
	"medibook/internal/bookings/validator"
	slotserrors "medibook/internal/slots/errors"
	slotsrepository "medibook/internal/slots/repository"
	"medibook/pkg/config"
	apperrors "medibook/pkg/errors"
	"medibook/pkg/locale"
	"medibook/pkg/metrics"
	"medibook/pkg/model"
	"medibook/pkg/sanitizer"
	"medibook/pkg/sealer"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

var bookingsTracer = otel.Tracer("medibook.internal.bookings")

const (
	bindingSlot  = "slot"
	bindingRange = "range"
)

// BookingCommitter is the only writer of appointments.
type BookingCommitter interface {
	Commit(ctx context.Context, req *model.CommitRequest, caller model.Identity) (*model.Appointment, error)
	CancelByToken(ctx context.Context, req *model.CancelRequest) (*model.Appointment, error)
	CancelByID(ctx context.Context, id string) (*model.Appointment, error)
	GetByID(ctx context.Context, id string, caller model.Identity) (*model.Appointment, error)
}

type committer struct {
	slots        slotsrepository.SlotRepository
	appointments repository.AppointmentRepository
	locks        repository.ReservationLockRepository
	sealer       *sealer.Sealer
	publisher    events.Publisher
	validator    *validator.BookingValidator
	metrics      *metrics.BookingMetrics
	cfg          *config.Config
	phoneRegion  string
	now          func() time.Time
}

func NewBookingCommitter(
	slots slotsrepository.SlotRepository,
	appointments repository.AppointmentRepository,
	locks repository.ReservationLockRepository,
	tokens *sealer.Sealer,
	publisher events.Publisher,
	validator *validator.BookingValidator,
	m *metrics.BookingMetrics,
	cfg *config.Config,
) BookingCommitter {
	if publisher == nil {
		publisher = events.NewNoopPublisher()
	}
	return &committer{
		slots:        slots,
		appointments: appointments,
		locks:        locks,
		sealer:       tokens,
		publisher:    publisher,
		validator:    validator,
		metrics:      m,
		cfg:          cfg,
		phoneRegion:  locale.RegionForLocation(cfg.Location, sanitizer.DefaultRegion),
		now:          time.Now,
	}
}

func (s *committer) sanitize(req *model.CommitRequest) {
	req.SlotID = strings.TrimSpace(req.SlotID)
	req.PractitionerID = strings.TrimSpace(req.PractitionerID)
	req.PatientID = strings.TrimSpace(req.PatientID)
	req.LockToken = strings.TrimSpace(req.LockToken)
	req.Reason = sanitizer.NormalizeText(req.Reason)
	req.Patient.Name = sanitizer.NormalizeName(req.Patient.Name)
	req.Patient.Email = sanitizer.NormalizeEmail(req.Patient.Email)
	if phone := sanitizer.NormalizePhone(req.Patient.Phone, s.phoneRegion); phone != "" {
		req.Patient.Phone = phone
	}
}

// Commit books a slot or an explicit practitioner time range in a single
// storage transaction. Capacity and overlap are checked under locks that
// stay held until the appointment is written.
func (s *committer) Commit(ctx context.Context, req *model.CommitRequest, caller model.Identity) (appt *model.Appointment, err error) {
	started := s.now()
	binding := bindingRange
	if req.IsSlotBound() {
		binding = bindingSlot
	}

	ctx, span := bookingsTracer.Start(ctx, "bookings.commit")
	defer func() {
		outcome := commitOutcome(err)
		s.metrics.ObserveCommit(binding, outcome, s.now().Sub(started).Seconds())
		span.SetAttributes(attribute.String("medibook.outcome", outcome))
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()
	span.SetAttributes(
		attribute.String("medibook.binding", binding),
		attribute.String("medibook.slot_id", req.SlotID),
		attribute.String("medibook.practitioner_id", req.PractitionerID),
	)

	s.sanitize(req)
	if err := s.validator.ValidateCommit(req); err != nil {
		s.cfg.Log.Warn("Booking validation failed",
			"slot_id", req.SlotID,
			"practitioner_id", req.PractitionerID,
			"error", err,
		)
		return nil, validationFailed("Booking validation failed", err)
	}

	patientID := req.PatientID
	if patientID == "" || caller.Role == model.RolePatient {
		patientID = caller.UserID
	}
	appt = &model.Appointment{
		ID:        uuid.NewString(),
		PatientID: patientID,
		Status:    model.AppointmentStatusScheduled,
		Reason:    req.Reason,
		Patient:   req.Patient,
	}
	if !req.IsSlotBound() {
		appt.PractitionerID = req.PractitionerID
		appt.StartTime = req.StartTime.UTC()
		appt.EndTime = req.EndTime.UTC()
		if err := s.requireFuture(appt.StartTime); err != nil {
			return nil, err
		}
	}

	err = s.appointments.ExecuteTransaction(ctx, func(txCtx context.Context) error {
		if req.IsSlotBound() {
			if err := s.claimSlot(txCtx, req.SlotID, appt); err != nil {
				return err
			}
		}

		if err := s.appointments.LockPractitioner(txCtx, appt.PractitionerID); err != nil {
			return apperrors.Internal("Failed to lock practitioner schedule", err)
		}
		overlapping, err := s.appointments.FindScheduledOverlapping(txCtx, appt.PractitionerID, appt.StartTime, appt.EndTime)
		if err != nil {
			return apperrors.Internal("Failed to check practitioner schedule", err)
		}
		for _, other := range overlapping {
			if req.IsSlotBound() && other.BoundTo(req.SlotID) {
				continue
			}
			return apperrors.TimeConflict(appt.PractitionerID)
		}

		token, err := s.sealer.Seal(appt.ID, appt.PractitionerID)
		if err != nil {
			return apperrors.Internal("Failed to issue cancellation token", err)
		}
		appt.CancellationToken = token

		if err := s.appointments.Create(txCtx, appt); err != nil {
			return apperrors.Internal("Failed to create appointment", err)
		}
		return nil
	})
	if err != nil {
		if !apperrors.IsAppError(err) {
			err = apperrors.Internal("Failed to commit booking", err)
		}
		s.logRejected(err, req)
		return nil, err
	}

	if req.IsSlotBound() && req.LockToken != "" {
		if _, relErr := s.locks.Release(ctx, req.SlotID, req.LockToken); relErr != nil {
			s.cfg.Log.Warn("Failed to release reservation lock after booking",
				"slot_id", req.SlotID,
				"error", relErr,
			)
		}
	}
	s.publish(ctx, events.TypeAppointmentBooked, appt)

	s.cfg.Log.Info("Appointment booked",
		"id", appt.ID,
		"practitioner_id", appt.PractitionerID,
		"slot_id", req.SlotID,
		"start_time", appt.StartTime,
	)
	return appt, nil
}

// claimSlot locks the slot, copies its times onto appt and enforces capacity.
func (s *committer) claimSlot(ctx context.Context, slotID string, appt *model.Appointment) error {
	slot, err := s.slots.LockForBooking(ctx, slotID)
	if err != nil {
		if errors.Is(err, slotserrors.ErrNotFound) || errors.Is(err, slotserrors.ErrInvalidID) {
			return apperrors.NotFoundWithID("Slot", slotID)
		}
		return apperrors.Internal("Failed to lock slot", err)
	}
	if !slot.IsActive {
		return apperrors.NotFoundWithID("Slot", slotID)
	}

	id := slot.ID
	appt.SlotID = &id
	appt.PractitionerID = slot.PractitionerID
	appt.StartTime = slot.StartTime.UTC()
	appt.EndTime = slot.EndTime.UTC()
	if err := s.requireFuture(appt.StartTime); err != nil {
		return err
	}

	booked, err := s.slots.CountLiveAppointments(ctx, slotID)
	if err != nil {
		return apperrors.Internal("Failed to count slot appointments", err)
	}
	if booked >= slot.Capacity {
		return apperrors.SlotFull(slotID)
	}
	return nil
}

func (s *committer) requireFuture(start time.Time) error {
	if !start.After(s.now()) {
		return apperrors.Validation("Appointments must start in the future", map[string]any{
			"start_time": start,
		})
	}
	return nil
}

func (s *committer) logRejected(err error, req *model.CommitRequest) {
	if apperrors.HasCode(err, apperrors.CodeInternal) {
		s.cfg.Log.Error("Failed to commit booking",
			"slot_id", req.SlotID,
			"practitioner_id", req.PractitionerID,
			"error", err,
		)
		return
	}
	s.cfg.Log.Warn("Booking rejected",
		"slot_id", req.SlotID,
		"practitioner_id", req.PractitionerID,
		"error", err,
	)
}

func commitOutcome(err error) string {
	switch {
	case err == nil:
		return metrics.OutcomeSuccess
	case apperrors.HasCode(err, apperrors.CodeSlotFull):
		return metrics.OutcomeSlotFull
	case apperrors.HasCode(err, apperrors.CodeTimeConflict):
		return metrics.OutcomeTimeConflict
	case apperrors.HasCode(err, apperrors.CodeNotFound):
		return metrics.OutcomeNotFound
	case apperrors.HasCode(err, apperrors.CodeValidation), apperrors.HasCode(err, apperrors.CodeInvalidInput):
		return metrics.OutcomeInvalid
	default:
		return metrics.OutcomeError
	}
}

func (s *committer) publish(ctx context.Context, eventType string, appt *model.Appointment) {
	if err := s.publisher.Publish(ctx, eventType, appt); err != nil {
		s.cfg.Log.Warn("Failed to publish appointment event",
			"event_type", eventType,
			"appointment_id", appt.ID,
			"error", err,
		)
	}
}

// CancelByToken resolves the patient's cancellation token. Tokens that do
// not decrypt are reported exactly like unknown ones.
func (s *committer) CancelByToken(ctx context.Context, req *model.CancelRequest) (*model.Appointment, error) {
	req.CancellationToken = strings.TrimSpace(req.CancellationToken)
	if err := s.validator.ValidateCancel(req); err != nil {
		s.metrics.ObserveCancellation(metrics.OutcomeInvalid)
		return nil, validationFailed("Cancellation validation failed", err)
	}

	id, _, err := s.sealer.Open(req.CancellationToken)
	if err != nil {
		s.metrics.ObserveCancellation(metrics.OutcomeNotFound)
		return nil, apperrors.NotFound("Appointment")
	}

	appt, err := s.appointments.FindByCancellationToken(ctx, req.CancellationToken)
	if err != nil || appt.ID != id {
		if err == nil || errors.Is(err, bookingserrors.ErrNotFound) {
			s.metrics.ObserveCancellation(metrics.OutcomeNotFound)
			return nil, apperrors.NotFound("Appointment")
		}
		s.metrics.ObserveCancellation(metrics.OutcomeError)
		s.cfg.Log.Error("Failed to find appointment by token", "error", err)
		return nil, apperrors.Internal("Failed to retrieve appointment", err)
	}

	return s.cancel(ctx, appt)
}

func (s *committer) CancelByID(ctx context.Context, id string) (*model.Appointment, error) {
	appt, err := s.find(ctx, id)
	if err != nil {
		s.metrics.ObserveCancellation(commitOutcome(err))
		return nil, err
	}
	return s.cancel(ctx, appt)
}

// cancel is idempotent for appointments that are already cancelled.
func (s *committer) cancel(ctx context.Context, appt *model.Appointment) (*model.Appointment, error) {
	ctx, span := bookingsTracer.Start(ctx, "bookings.cancel")
	defer span.End()
	span.SetAttributes(attribute.String("medibook.appointment_id", appt.ID))

	switch appt.Status {
	case model.AppointmentStatusCancelled:
		s.metrics.ObserveCancellation(metrics.OutcomeSuccess)
		return appt.Redacted(), nil
	case model.AppointmentStatusScheduled:
	default:
		s.metrics.ObserveCancellation(metrics.OutcomeInvalid)
		return nil, apperrors.Conflict("Appointment can no longer be cancelled")
	}

	at := s.now().UTC().Truncate(time.Millisecond)
	if err := s.appointments.MarkCancelled(ctx, appt.ID, at); err != nil {
		if errors.Is(err, bookingserrors.ErrNotCancellable) {
			// Lost a race with another status change; report the winner's state.
			current, findErr := s.find(ctx, appt.ID)
			if findErr == nil && current.Status == model.AppointmentStatusCancelled {
				s.metrics.ObserveCancellation(metrics.OutcomeSuccess)
				return current.Redacted(), nil
			}
			s.metrics.ObserveCancellation(metrics.OutcomeInvalid)
			return nil, apperrors.Conflict("Appointment can no longer be cancelled")
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		s.metrics.ObserveCancellation(metrics.OutcomeError)
		s.cfg.Log.Error("Failed to cancel appointment",
			"id", appt.ID,
			"error", err,
		)
		return nil, apperrors.Internal("Failed to cancel appointment", err)
	}

	appt.Status = model.AppointmentStatusCancelled
	appt.CancelledAt = &at
	appt.UpdatedAt = at
	s.metrics.ObserveCancellation(metrics.OutcomeSuccess)
	s.publish(ctx, events.TypeAppointmentCancelled, appt)

	s.cfg.Log.Info("Appointment cancelled",
		"id", appt.ID,
		"practitioner_id", appt.PractitionerID,
	)
	return appt.Redacted(), nil
}

// GetByID hides appointments of other patients behind NotFound.
func (s *committer) GetByID(ctx context.Context, id string, caller model.Identity) (*model.Appointment, error) {
	appt, err := s.find(ctx, id)
	if err != nil {
		return nil, err
	}
	if !caller.IsAdmin() && appt.PatientID != caller.UserID {
		return nil, apperrors.NotFoundWithID("Appointment", id)
	}
	return appt.Redacted(), nil
}

func (s *committer) find(ctx context.Context, id string) (*model.Appointment, error) {
	if id == "" {
		return nil, apperrors.InvalidInput("Appointment ID cannot be empty")
	}

	appt, err := s.appointments.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, bookingserrors.ErrNotFound) {
			return nil, apperrors.NotFoundWithID("Appointment", id)
		}
		if errors.Is(err, bookingserrors.ErrInvalidID) {
			return nil, apperrors.InvalidInput("Invalid appointment ID format")
		}
		s.cfg.Log.Error("Failed to get appointment by ID",
			"id", id,
			"error", err,
		)
		return nil, apperrors.Internal("Failed to retrieve appointment", err)
	}
	return appt, nil
}
