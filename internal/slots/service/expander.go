package service

import (
	"fmt"
	"strings"
	"time"

	apperrors "medibook/pkg/errors"
	"medibook/pkg/model"

	"github.com/teambition/rrule-go"
)

// maxOccurrences caps a single expansion independently of the horizon.
const maxOccurrences = 10000

const untilLayout = "2006-01-02 15:04"

var weekdayAbbrev = [7]string{"Sun", "Mon", "Tue", "Wed", "Thu", "Fri", "Sat"}

var rruleWeekdays = [7]rrule.Weekday{rrule.SU, rrule.MO, rrule.TU, rrule.WE, rrule.TH, rrule.FR, rrule.SA}

// Expander turns working-hours plans and recurrence rules into slot
// candidates. It performs no I/O; wall-clock times are read in loc and the
// resulting slots carry UTC instants.
type Expander struct {
	loc             *time.Location
	maxDays         int
	defaultCapacity int
}

func NewExpander(loc *time.Location, maxGenerationDays, defaultCapacity int) *Expander {
	if loc == nil {
		loc = time.UTC
	}
	if defaultCapacity < 1 {
		defaultCapacity = model.DefaultSlotCapacity
	}
	return &Expander{loc: loc, maxDays: maxGenerationDays, defaultCapacity: defaultCapacity}
}

type clockTime struct {
	hour, minute int
}

func (c clockTime) minutes() int {
	return c.hour*60 + c.minute
}

func (c clockTime) on(day time.Time, loc *time.Location) time.Time {
	return time.Date(day.Year(), day.Month(), day.Day(), c.hour, c.minute, 0, 0, loc)
}

func parseClock(field, value string) (clockTime, error) {
	t, err := time.Parse(model.ClockLayout, strings.TrimSpace(value))
	if err != nil {
		return clockTime{}, apperrors.Validation("Invalid time of day", map[string]any{
			"field": field,
			"value": value,
		})
	}
	return clockTime{hour: t.Hour(), minute: t.Minute()}, nil
}

func (e *Expander) parseDate(field, value string) (time.Time, error) {
	d, err := time.ParseInLocation(model.DateLayout, strings.TrimSpace(value), e.loc)
	if err != nil {
		return time.Time{}, apperrors.Validation("Invalid date", map[string]any{
			"field": field,
			"value": value,
		})
	}
	return d, nil
}

// daysBetween counts calendar days from a to b, ignoring DST shifts.
func daysBetween(a, b time.Time) int {
	ua := time.Date(a.Year(), a.Month(), a.Day(), 0, 0, 0, 0, time.UTC)
	ub := time.Date(b.Year(), b.Month(), b.Day(), 0, 0, 0, 0, time.UTC)
	return int(ub.Sub(ua).Hours() / 24)
}

func (e *Expander) checkHorizon(days int) error {
	if e.maxDays > 0 && days > e.maxDays {
		return apperrors.Validation("Generation range too large", map[string]any{
			"days":     days,
			"max_days": e.maxDays,
		})
	}
	return nil
}

func (e *Expander) capacity(requested int) int {
	if requested > 0 {
		return requested
	}
	return e.defaultCapacity
}

func weekdaySet(days []int) map[time.Weekday]bool {
	set := make(map[time.Weekday]bool, len(days))
	for _, d := range days {
		if d >= 0 && d <= 6 {
			set[time.Weekday(d)] = true
		}
	}
	return set
}

func describeDays(set map[time.Weekday]bool) string {
	var names []string
	for d := time.Sunday; d <= time.Saturday; d++ {
		if set[d] {
			names = append(names, weekdayAbbrev[d])
		}
	}
	return strings.Join(names, "/")
}

// FromWorkingHours steps through the working window of every selected day.
// A candidate must end by the close of the window and must not intersect a
// break.
func (e *Expander) FromWorkingHours(req *model.WorkingHoursRequest) ([]*model.AvailabilitySlot, error) {
	startDate, err := e.parseDate("start_date", req.StartDate)
	if err != nil {
		return nil, err
	}
	endDate, err := e.parseDate("end_date", req.EndDate)
	if err != nil {
		return nil, err
	}
	if endDate.Before(startDate) {
		return nil, apperrors.Validation("end_date must not be before start_date", map[string]any{
			"start_date": req.StartDate,
			"end_date":   req.EndDate,
		})
	}
	days := daysBetween(startDate, endDate) + 1
	if err := e.checkHorizon(days); err != nil {
		return nil, err
	}

	opening, err := parseClock("working_hours.start", req.WorkingHours.Start)
	if err != nil {
		return nil, err
	}
	closing, err := parseClock("working_hours.end", req.WorkingHours.End)
	if err != nil {
		return nil, err
	}
	if opening.minutes() >= closing.minutes() {
		return nil, apperrors.Validation("Working hours start must be before end", map[string]any{
			"start": req.WorkingHours.Start,
			"end":   req.WorkingHours.End,
		})
	}

	type window struct{ start, end clockTime }
	breaks := make([]window, 0, len(req.Breaks))
	for i, b := range req.Breaks {
		bs, err := parseClock(fmt.Sprintf("breaks[%d].start", i), b.Start)
		if err != nil {
			return nil, err
		}
		be, err := parseClock(fmt.Sprintf("breaks[%d].end", i), b.End)
		if err != nil {
			return nil, err
		}
		if bs.minutes() >= be.minutes() {
			return nil, apperrors.Validation("Break start must be before end", map[string]any{
				"index": i,
				"start": b.Start,
				"end":   b.End,
			})
		}
		breaks = append(breaks, window{bs, be})
	}

	if req.SlotDurationMin <= 0 {
		return nil, apperrors.Validation("slot_duration_min must be positive", map[string]any{
			"slot_duration_min": req.SlotDurationMin,
		})
	}
	duration := time.Duration(req.SlotDurationMin) * time.Minute

	selected := weekdaySet(req.WorkingDays)
	if len(selected) == 0 {
		return []*model.AvailabilitySlot{}, nil
	}

	rule := fmt.Sprintf("weekly on %s %s-%s every %dm",
		describeDays(selected), req.WorkingHours.Start, req.WorkingHours.End, req.SlotDurationMin)
	capacity := e.capacity(req.Capacity)

	slots := make([]*model.AvailabilitySlot, 0)
	for i := 0; i < days; i++ {
		day := time.Date(startDate.Year(), startDate.Month(), startDate.Day()+i, 0, 0, 0, 0, e.loc)
		if !selected[day.Weekday()] {
			continue
		}

		windowEnd := closing.on(day, e.loc)
		for start := opening.on(day, e.loc); !start.Add(duration).After(windowEnd); start = start.Add(duration) {
			end := start.Add(duration)

			inBreak := false
			for _, b := range breaks {
				if start.Before(b.end.on(day, e.loc)) && end.After(b.start.on(day, e.loc)) {
					inBreak = true
					break
				}
			}
			if inBreak {
				continue
			}

			slots = append(slots, e.newSlot(req.PractitionerID, start, end, capacity, req.Notes, rule))
			if len(slots) > maxOccurrences {
				return nil, tooManyOccurrences()
			}
		}
	}

	return slots, nil
}

// FromRecurrence repeats the first occurrence's wall-clock time and
// duration. Occurrences starting after Until are dropped.
func (e *Expander) FromRecurrence(req *model.RecurrenceRequest) ([]*model.AvailabilitySlot, error) {
	if !req.StartTime.Before(req.EndTime) {
		return nil, apperrors.Validation("start_time must be before end_time", map[string]any{
			"start_time": req.StartTime,
			"end_time":   req.EndTime,
		})
	}
	if req.Rule.Until.Before(req.StartTime) {
		return nil, apperrors.Validation("recurrence_rule.until must not be before start_time", map[string]any{
			"start_time": req.StartTime,
			"until":      req.Rule.Until,
		})
	}

	first := req.StartTime.In(e.loc)
	until := req.Rule.Until.In(e.loc)
	if err := e.checkHorizon(daysBetween(first, until) + 1); err != nil {
		return nil, err
	}

	interval := req.Rule.Interval
	if interval < 1 {
		interval = 1
	}
	selected := weekdaySet(req.Rule.DaysOfWeek)
	if len(selected) == 0 {
		return []*model.AvailabilitySlot{}, nil
	}

	opt := rrule.ROption{
		Dtstart:  first,
		Until:    until,
		Interval: interval,
		Wkst:     rrule.SU,
		Count:    maxOccurrences + 1,
	}
	var rule string
	switch req.Rule.Frequency {
	case model.FrequencyDaily:
		opt.Freq = rrule.DAILY
		opt.Byweekday = byWeekday(selected, 0)
		rule = fmt.Sprintf("%s on %s", every(interval, "day", "daily"), describeDays(selected))
	case model.FrequencyWeekly:
		opt.Freq = rrule.WEEKLY
		opt.Byweekday = byWeekday(selected, 0)
		rule = fmt.Sprintf("%s on %s", every(interval, "week", "weekly"), describeDays(selected))
	case model.FrequencyMonthly:
		ordinal := (first.Day()-1)/7 + 1
		opt.Freq = rrule.MONTHLY
		opt.Byweekday = byWeekday(selected, ordinal)
		rule = fmt.Sprintf("%s on %s %s", every(interval, "month", "monthly"), ordinalName(ordinal), describeDays(selected))
	default:
		return nil, apperrors.Validation("Unknown recurrence frequency", map[string]any{
			"frequency": req.Rule.Frequency,
		})
	}

	r, err := rrule.NewRRule(opt)
	if err != nil {
		return nil, apperrors.Validation("Invalid recurrence rule", map[string]any{
			"error": err.Error(),
		})
	}
	starts := r.All()
	if len(starts) > maxOccurrences {
		return nil, tooManyOccurrences()
	}
	rule = fmt.Sprintf("%s at %s until %s", rule, first.Format(model.ClockLayout), until.Format(untilLayout))

	duration := req.EndTime.Sub(req.StartTime)
	capacity := e.capacity(req.Capacity)
	slots := make([]*model.AvailabilitySlot, 0, len(starts))
	for _, start := range starts {
		if start.After(req.Rule.Until) {
			break
		}
		slots = append(slots, e.newSlot(req.PractitionerID, start, start.Add(duration), capacity, req.Notes, rule))
	}
	return slots, nil
}

// byWeekday maps the selected days onto rrule weekdays, pinned to the n-th
// occurrence in the period when n is positive.
func byWeekday(selected map[time.Weekday]bool, n int) []rrule.Weekday {
	days := make([]rrule.Weekday, 0, len(selected))
	for d := time.Sunday; d <= time.Saturday; d++ {
		if !selected[d] {
			continue
		}
		if n > 0 {
			days = append(days, rruleWeekdays[d].Nth(n))
		} else {
			days = append(days, rruleWeekdays[d])
		}
	}
	return days
}

func every(interval int, unit, single string) string {
	if interval == 1 {
		return single
	}
	return fmt.Sprintf("every %d %ss", interval, unit)
}

func ordinalName(n int) string {
	switch n {
	case 1:
		return "1st"
	case 2:
		return "2nd"
	case 3:
		return "3rd"
	default:
		return fmt.Sprintf("%dth", n)
	}
}

func tooManyOccurrences() error {
	return apperrors.Validation("Expansion produces too many slots", map[string]any{
		"max_slots": maxOccurrences,
	})
}

func (e *Expander) newSlot(practitionerID string, start, end time.Time, capacity int, notes, rule string) *model.AvailabilitySlot {
	return &model.AvailabilitySlot{
		PractitionerID: practitionerID,
		StartTime:      start.UTC(),
		EndTime:        end.UTC(),
		Capacity:       capacity,
		IsActive:       true,
		Notes:          notes,
		RecurringRule:  rule,
	}
}
