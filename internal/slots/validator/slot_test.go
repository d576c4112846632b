package validator

import (
	"strings"
	"testing"
	"time"

	"medibook/pkg/logger"
	"medibook/pkg/model"
)

func validWorkingHours() *model.WorkingHoursRequest {
	return &model.WorkingHoursRequest{
		PractitionerID:  "dr-smith",
		StartDate:       "2026-03-02",
		EndDate:         "2026-03-06",
		WorkingDays:     []int{1, 2, 3, 4, 5},
		WorkingHours:    model.ClockWindow{Start: "09:00", End: "17:00"},
		SlotDurationMin: 30,
		Breaks:          []model.ClockWindow{{Start: "12:00", End: "13:00"}},
	}
}

func TestValidateWorkingHours(t *testing.T) {
	v := NewSlotValidator(logger.Discard())

	tests := []struct {
		name      string
		mutate    func(r *model.WorkingHoursRequest)
		wantError bool
		field     string
	}{
		{
			name:      "valid plan",
			mutate:    func(r *model.WorkingHoursRequest) {},
			wantError: false,
		},
		{
			name:      "empty working days is allowed",
			mutate:    func(r *model.WorkingHoursRequest) { r.WorkingDays = nil },
			wantError: false,
		},
		{
			name:      "bad clock",
			mutate:    func(r *model.WorkingHoursRequest) { r.WorkingHours.Start = "9:00" },
			wantError: true,
			field:     "working_hours.start",
		},
		{
			name:      "hour out of range",
			mutate:    func(r *model.WorkingHoursRequest) { r.WorkingHours.End = "25:00" },
			wantError: true,
			field:     "working_hours.end",
		},
		{
			name:      "bad break clock",
			mutate:    func(r *model.WorkingHoursRequest) { r.Breaks[0].End = "13-00" },
			wantError: true,
			field:     "breaks[0].end",
		},
		{
			name:      "bad date",
			mutate:    func(r *model.WorkingHoursRequest) { r.StartDate = "03/02/2026" },
			wantError: true,
			field:     "start_date",
		},
		{
			name:      "weekday out of range",
			mutate:    func(r *model.WorkingHoursRequest) { r.WorkingDays = []int{7} },
			wantError: true,
			field:     "working_days[0]",
		},
		{
			name:      "slot too short",
			mutate:    func(r *model.WorkingHoursRequest) { r.SlotDurationMin = 4 },
			wantError: true,
			field:     "slot_duration_min",
		},
		{
			name:      "bad practitioner id",
			mutate:    func(r *model.WorkingHoursRequest) { r.PractitionerID = "dr smith" },
			wantError: true,
			field:     "practitioner_id",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := validWorkingHours()
			tt.mutate(req)

			err := v.Validate(req)
			if (err != nil) != tt.wantError {
				t.Fatalf("Validate() error = %v, wantError %v", err, tt.wantError)
			}
			if tt.wantError && !strings.Contains(err.Error(), tt.field) {
				t.Errorf("expected error to mention %q, got %q", tt.field, err.Error())
			}
		})
	}
}

func TestValidateRecurrence(t *testing.T) {
	v := NewSlotValidator(logger.Discard())
	start := time.Date(2026, 3, 3, 9, 0, 0, 0, time.UTC)

	valid := &model.RecurrenceRequest{
		PractitionerID: "dr-smith",
		StartTime:      start,
		EndTime:        start.Add(time.Hour),
		Rule: model.RecurrenceRule{
			Frequency:  model.FrequencyWeekly,
			DaysOfWeek: []int{2},
			Until:      start.AddDate(0, 1, 0),
		},
	}
	if err := v.Validate(valid); err != nil {
		t.Fatalf("expected valid recurrence, got %v", err)
	}

	bad := *valid
	bad.Rule.Frequency = "yearly"
	err := v.Validate(&bad)
	if err == nil || !strings.Contains(err.Error(), "recurrence_rule.frequency") {
		t.Fatalf("expected frequency error, got %v", err)
	}
}

func TestValidateSlotCreate(t *testing.T) {
	v := NewSlotValidator(logger.Discard())
	start := time.Date(2026, 3, 3, 9, 0, 0, 0, time.UTC)

	req := &model.SlotCreateRequest{
		PractitionerID: "dr-smith",
		StartTime:      start,
		EndTime:        start,
	}
	err := v.Validate(req)
	if err == nil || !strings.Contains(err.Error(), "end_time") {
		t.Fatalf("expected end_time error, got %v", err)
	}

	req.EndTime = start.Add(30 * time.Minute)
	if err := v.Validate(req); err != nil {
		t.Fatalf("expected valid request, got %v", err)
	}
}

func TestValidatePractitionerID(t *testing.T) {
	v := NewSlotValidator(logger.Discard())

	if err := v.ValidatePractitionerID("prac_42:clinic-a"); err != nil {
		t.Errorf("expected valid id, got %v", err)
	}
	for _, id := range []string{"", "-lead", "has space", strings.Repeat("a", 65)} {
		if err := v.ValidatePractitionerID(id); err == nil {
			t.Errorf("expected %q to be rejected", id)
		}
	}
}
