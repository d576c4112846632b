package service

import (
	"context"
	"strings"
	"time"

	"medibook/internal/slots/repository"
	"medibook/pkg/config"
	apperrors "medibook/pkg/errors"
	"medibook/pkg/metrics"
	"medibook/pkg/model"
)

type AvailabilityService interface {
	Query(ctx context.Context, q *model.AvailabilityQuery) ([]*model.SlotView, error)
}

type availabilityService struct {
	repo    repository.SlotRepository
	metrics *metrics.BookingMetrics
	cfg     *config.Config
}

func NewAvailabilityService(repo repository.SlotRepository, m *metrics.BookingMetrics, cfg *config.Config) AvailabilityService {
	return &availabilityService{repo: repo, metrics: m, cfg: cfg}
}

// Query lists active slots starting inside the requested days together with
// their live occupancy, ordered by start time.
func (s *availabilityService) Query(ctx context.Context, q *model.AvailabilityQuery) ([]*model.SlotView, error) {
	started := time.Now()

	filter, err := s.window(q)
	if err != nil {
		return nil, err
	}

	views, err := s.repo.FindWithOccupancy(ctx, filter)
	if err != nil {
		s.cfg.Log.Error("Failed to query availability",
			"practitioner_id", filter.PractitionerID,
			"from", filter.From,
			"to", filter.To,
			"error", err,
		)
		return nil, apperrors.Internal("Failed to query availability", err)
	}

	if q.AvailableOnly {
		open := views[:0]
		for _, v := range views {
			if v.IsAvailable {
				open = append(open, v)
			}
		}
		views = open
	}

	s.metrics.ObserveAvailabilityQuery(time.Since(started).Seconds())
	return views, nil
}

// window converts the query's calendar days into the half-open instant
// range [first day 00:00, day after last 00:00) in the working-hours zone.
func (s *availabilityService) window(q *model.AvailabilityQuery) (repository.SlotFilter, error) {
	loc := s.cfg.Location
	if loc == nil {
		loc = time.UTC
	}

	practitionerID := strings.TrimSpace(q.PractitionerID)
	if practitionerID != "" && !model.PractitionerIDPattern.MatchString(practitionerID) {
		return repository.SlotFilter{}, apperrors.Validation("Invalid practitioner ID", map[string]any{
			"field": "practitioner_id",
			"value": q.PractitionerID,
		})
	}

	date := strings.TrimSpace(q.Date)
	fromStr := strings.TrimSpace(q.From)
	toStr := strings.TrimSpace(q.To)

	switch {
	case date != "" && (fromStr != "" || toStr != ""):
		return repository.SlotFilter{}, apperrors.Validation("Use either date or from/to, not both", nil)
	case date != "":
		fromStr, toStr = date, date
	case fromStr == "":
		return repository.SlotFilter{}, apperrors.Validation("A date or from/to range is required", nil)
	case toStr == "":
		toStr = fromStr
	}

	from, err := parseQueryDate("from", fromStr, loc)
	if err != nil {
		return repository.SlotFilter{}, err
	}
	to, err := parseQueryDate("to", toStr, loc)
	if err != nil {
		return repository.SlotFilter{}, err
	}
	if to.Before(from) {
		return repository.SlotFilter{}, apperrors.Validation("to must not be before from", map[string]any{
			"from": fromStr,
			"to":   toStr,
		})
	}
	if days := daysBetween(from, to) + 1; s.cfg.MaxQueryRangeDays > 0 && days > s.cfg.MaxQueryRangeDays {
		return repository.SlotFilter{}, apperrors.Validation("Query range too large", map[string]any{
			"days":     days,
			"max_days": s.cfg.MaxQueryRangeDays,
		})
	}

	return repository.SlotFilter{
		PractitionerID: practitionerID,
		From:           from.UTC(),
		To:             to.AddDate(0, 0, 1).UTC(),
	}, nil
}

func parseQueryDate(field, value string, loc *time.Location) (time.Time, error) {
	d, err := time.ParseInLocation(model.DateLayout, value, loc)
	if err != nil {
		return time.Time{}, apperrors.Validation("Invalid date, expected YYYY-MM-DD", map[string]any{
			"field": field,
			"value": value,
		})
	}
	return d, nil
}
