package service

import (
	"context"
	"errors"
	"time"

	slotserrors "medibook/internal/slots/errors"
	"medibook/internal/slots/repository"
	"medibook/internal/slots/validator"
	"medibook/pkg/config"
	apperrors "medibook/pkg/errors"
	"medibook/pkg/metrics"
	"medibook/pkg/model"
	"medibook/pkg/sanitizer"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

var slotsTracer = otel.Tracer("medibook.internal.slots")

const (
	modeWorkingHours = "working_hours"
	modeRecurrence   = "recurrence"
	modeManual       = "manual"
)

type SlotService interface {
	GenerateFromWorkingHours(ctx context.Context, req *model.WorkingHoursRequest) (*model.GenerationResult, error)
	GenerateFromRecurrence(ctx context.Context, req *model.RecurrenceRequest) (*model.GenerationResult, error)
	Create(ctx context.Context, req *model.SlotCreateRequest) (*model.AvailabilitySlot, error)
	GetByID(ctx context.Context, id string) (*model.AvailabilitySlot, error)
	Update(ctx context.Context, id string, updates *model.SlotUpdate) (*model.AvailabilitySlot, error)
	Delete(ctx context.Context, id string, force bool) error
}

type slotService struct {
	repo      repository.SlotRepository
	expander  *Expander
	validator *validator.SlotValidator
	metrics   *metrics.BookingMetrics
	cfg       *config.Config
}

func NewSlotService(
	repo repository.SlotRepository,
	expander *Expander,
	validator *validator.SlotValidator,
	m *metrics.BookingMetrics,
	cfg *config.Config,
) SlotService {
	return &slotService{
		repo:      repo,
		expander:  expander,
		validator: validator,
		metrics:   m,
		cfg:       cfg,
	}
}

func validationFailed(message string, err error) error {
	var fieldErrs validator.ValidationErrors
	if errors.As(err, &fieldErrs) {
		return apperrors.Validation(message, map[string]any{"errors": fieldErrs})
	}
	return apperrors.Validation(message, map[string]any{"error": err.Error()})
}

func finishSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

func (s *slotService) GenerateFromWorkingHours(ctx context.Context, req *model.WorkingHoursRequest) (result *model.GenerationResult, err error) {
	ctx, span := slotsTracer.Start(ctx, "slots.generate_working_hours")
	defer func() { finishSpan(span, err) }()
	span.SetAttributes(
		attribute.String("medibook.practitioner_id", req.PractitionerID),
		attribute.String("medibook.start_date", req.StartDate),
		attribute.String("medibook.end_date", req.EndDate),
	)

	req.Notes = sanitizer.NormalizeText(req.Notes)
	if err := s.validator.Validate(req); err != nil {
		s.cfg.Log.Warn("Working hours validation failed",
			"practitioner_id", req.PractitionerID,
			"error", err,
		)
		return nil, validationFailed("Working hours validation failed", err)
	}

	candidates, err := s.expander.FromWorkingHours(req)
	if err != nil {
		return nil, err
	}
	return s.persistGenerated(ctx, modeWorkingHours, req.PractitionerID, candidates)
}

func (s *slotService) GenerateFromRecurrence(ctx context.Context, req *model.RecurrenceRequest) (result *model.GenerationResult, err error) {
	ctx, span := slotsTracer.Start(ctx, "slots.generate_recurrence")
	defer func() { finishSpan(span, err) }()
	span.SetAttributes(
		attribute.String("medibook.practitioner_id", req.PractitionerID),
		attribute.String("medibook.frequency", req.Rule.Frequency),
	)

	req.Notes = sanitizer.NormalizeText(req.Notes)
	if err := s.validator.Validate(req); err != nil {
		s.cfg.Log.Warn("Recurrence validation failed",
			"practitioner_id", req.PractitionerID,
			"error", err,
		)
		return nil, validationFailed("Recurrence validation failed", err)
	}

	candidates, err := s.expander.FromRecurrence(req)
	if err != nil {
		return nil, err
	}
	return s.persistGenerated(ctx, modeRecurrence, req.PractitionerID, candidates)
}

// persistGenerated drops candidates whose start is already taken by an
// active slot and bulk inserts the rest. Candidates are ordered by start.
func (s *slotService) persistGenerated(ctx context.Context, mode, practitionerID string, candidates []*model.AvailabilitySlot) (*model.GenerationResult, error) {
	result := &model.GenerationResult{Created: []*model.AvailabilitySlot{}}
	if len(candidates) == 0 {
		return result, nil
	}

	first := candidates[0].StartTime
	last := candidates[len(candidates)-1].StartTime
	existing, err := s.repo.FindActiveStarts(ctx, practitionerID, first, last)
	if err != nil {
		s.cfg.Log.Error("Failed to load existing slots",
			"practitioner_id", practitionerID,
			"error", err,
		)
		return nil, apperrors.Internal("Failed to load existing slots", err)
	}

	taken := make(map[int64]struct{}, len(existing))
	for _, t := range existing {
		taken[t.UnixMilli()] = struct{}{}
	}
	fresh := make([]*model.AvailabilitySlot, 0, len(candidates))
	for _, c := range candidates {
		if _, ok := taken[c.StartTime.UnixMilli()]; ok {
			continue
		}
		fresh = append(fresh, c)
	}

	if len(fresh) > 0 {
		inserted, err := s.repo.InsertMany(ctx, fresh)
		if err != nil {
			s.cfg.Log.Error("Failed to insert generated slots",
				"practitioner_id", practitionerID,
				"count", len(fresh),
				"error", err,
			)
			return nil, apperrors.Internal("Failed to store generated slots", err)
		}
		result.Created = inserted
	}
	result.Skipped = len(candidates) - len(result.Created)

	s.metrics.ObserveSlotsGenerated(mode, len(result.Created))
	s.cfg.Log.Info("Slots generated",
		"practitioner_id", practitionerID,
		"mode", mode,
		"created", len(result.Created),
		"skipped", result.Skipped,
	)
	return result, nil
}

func (s *slotService) Create(ctx context.Context, req *model.SlotCreateRequest) (*model.AvailabilitySlot, error) {
	req.Notes = sanitizer.NormalizeText(req.Notes)
	if err := s.validator.Validate(req); err != nil {
		s.cfg.Log.Warn("Slot validation failed",
			"practitioner_id", req.PractitionerID,
			"error", err,
		)
		return nil, validationFailed("Slot validation failed", err)
	}

	capacity := req.Capacity
	if capacity == 0 {
		capacity = s.cfg.DefaultSlotCapacity
	}
	slot := &model.AvailabilitySlot{
		PractitionerID: req.PractitionerID,
		StartTime:      req.StartTime.UTC(),
		EndTime:        req.EndTime.UTC(),
		Capacity:       capacity,
		IsActive:       true,
		Notes:          req.Notes,
	}

	if err := s.repo.Create(ctx, slot); err != nil {
		if errors.Is(err, slotserrors.ErrDuplicateStart) {
			return nil, apperrors.Conflict("An active slot already starts at this time for the practitioner")
		}
		s.cfg.Log.Error("Failed to create slot",
			"practitioner_id", slot.PractitionerID,
			"start_time", slot.StartTime,
			"error", err,
		)
		return nil, apperrors.Internal("Failed to create slot", err)
	}

	s.metrics.ObserveSlotsGenerated(modeManual, 1)
	s.cfg.Log.Info("Slot created successfully",
		"id", slot.ID,
		"practitioner_id", slot.PractitionerID,
		"start_time", slot.StartTime,
	)
	return slot, nil
}

func (s *slotService) GetByID(ctx context.Context, id string) (*model.AvailabilitySlot, error) {
	if id == "" {
		return nil, apperrors.InvalidInput("Slot ID cannot be empty")
	}

	slot, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, s.mapLookupError(id, err)
	}
	return slot, nil
}

func (s *slotService) mapLookupError(id string, err error) error {
	if errors.Is(err, slotserrors.ErrNotFound) {
		return apperrors.NotFoundWithID("Slot", id)
	}
	if errors.Is(err, slotserrors.ErrInvalidID) {
		return apperrors.InvalidInput("Invalid slot ID format")
	}
	if apperrors.IsAppError(err) {
		return err
	}
	s.cfg.Log.Error("Failed to get slot by ID",
		"id", id,
		"error", err,
	)
	return apperrors.Internal("Failed to retrieve slot", err)
}

// Update locks the slot like a booking would, so the occupancy it checks
// against cannot change before the write.
func (s *slotService) Update(ctx context.Context, id string, updates *model.SlotUpdate) (*model.AvailabilitySlot, error) {
	if id == "" {
		return nil, apperrors.InvalidInput("Slot ID cannot be empty")
	}
	if updates.Notes != nil {
		notes := sanitizer.NormalizeText(*updates.Notes)
		updates.Notes = &notes
	}
	if err := s.validator.Validate(updates); err != nil {
		return nil, validationFailed("Slot validation failed", err)
	}

	var updated *model.AvailabilitySlot
	err := s.repo.ExecuteTransaction(ctx, func(txCtx context.Context) error {
		slot, err := s.repo.LockForBooking(txCtx, id)
		if err != nil {
			return s.mapLookupError(id, err)
		}
		live, err := s.repo.CountLiveAppointments(txCtx, id)
		if err != nil {
			return apperrors.Internal("Failed to count appointments", err)
		}

		if updates.Capacity != nil && *updates.Capacity < live {
			return apperrors.Conflict("Capacity cannot drop below the number of scheduled appointments")
		}
		if updates.MovesTime() && live > 0 && !sameTimes(slot, updates) {
			return apperrors.Conflict("Slot times cannot change while appointments are scheduled")
		}

		merged := mergeSlotUpdates(slot, updates)
		if !merged.EndTime.After(merged.StartTime) {
			return apperrors.Validation("Slot validation failed", map[string]any{
				"errors": validator.ValidationErrors{{Field: "end_time", Message: "end_time must be after start_time"}},
			})
		}

		if err := s.repo.Update(txCtx, merged); err != nil {
			if errors.Is(err, slotserrors.ErrDuplicateStart) {
				return apperrors.Conflict("An active slot already starts at this time for the practitioner")
			}
			if errors.Is(err, slotserrors.ErrNotFound) {
				return apperrors.NotFoundWithID("Slot", id)
			}
			s.cfg.Log.Error("Failed to update slot",
				"id", id,
				"error", err,
			)
			return apperrors.Internal("Failed to update slot", err)
		}
		updated = merged
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.cfg.Log.Info("Slot updated successfully", "id", id)
	return updated, nil
}

func sameTimes(slot *model.AvailabilitySlot, updates *model.SlotUpdate) bool {
	if updates.StartTime != nil && !updates.StartTime.Equal(slot.StartTime) {
		return false
	}
	if updates.EndTime != nil && !updates.EndTime.Equal(slot.EndTime) {
		return false
	}
	return true
}

func mergeSlotUpdates(existing *model.AvailabilitySlot, updates *model.SlotUpdate) *model.AvailabilitySlot {
	merged := *existing
	if updates.StartTime != nil {
		merged.StartTime = updates.StartTime.UTC()
	}
	if updates.EndTime != nil {
		merged.EndTime = updates.EndTime.UTC()
	}
	if updates.Capacity != nil {
		merged.Capacity = *updates.Capacity
	}
	if updates.Notes != nil {
		merged.Notes = *updates.Notes
	}
	if updates.IsActive != nil {
		merged.IsActive = *updates.IsActive
	}
	merged.UpdatedAt = time.Now().UTC()
	return &merged
}

// Delete deactivates the slot. A forced delete removes it, which is only
// allowed while nothing is scheduled on it.
func (s *slotService) Delete(ctx context.Context, id string, force bool) error {
	if id == "" {
		return apperrors.InvalidInput("Slot ID cannot be empty")
	}

	err := s.repo.ExecuteTransaction(ctx, func(txCtx context.Context) error {
		slot, err := s.repo.LockForBooking(txCtx, id)
		if err != nil {
			return s.mapLookupError(id, err)
		}

		if !force {
			if !slot.IsActive {
				return nil
			}
			slot.IsActive = false
			if err := s.repo.Update(txCtx, slot); err != nil {
				return apperrors.Internal("Failed to deactivate slot", err)
			}
			return nil
		}

		live, err := s.repo.CountLiveAppointments(txCtx, id)
		if err != nil {
			return apperrors.Internal("Failed to count appointments", err)
		}
		if live > 0 {
			return apperrors.Conflict("Slot has scheduled appointments and cannot be deleted")
		}
		if err := s.repo.Delete(txCtx, id); err != nil {
			if errors.Is(err, slotserrors.ErrNotFound) {
				return apperrors.NotFoundWithID("Slot", id)
			}
			return apperrors.Internal("Failed to delete slot", err)
		}
		return nil
	})
	if err != nil {
		if !apperrors.HasCode(err, apperrors.CodeConflict) && !apperrors.HasCode(err, apperrors.CodeNotFound) {
			s.cfg.Log.Error("Failed to delete slot",
				"id", id,
				"force", force,
				"error", err,
			)
		}
		return err
	}

	s.cfg.Log.Info("Slot deleted successfully", "id", id, "force", force)
	return nil
}
