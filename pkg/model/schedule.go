package model

import "time"

const (
	FrequencyDaily   = "daily"
	FrequencyWeekly  = "weekly"
	FrequencyMonthly = "monthly"

	DateLayout  = "2006-01-02"
	ClockLayout = "15:04"
)

// ClockWindow is a wall-clock interval such as 09:00-17:00.
type ClockWindow struct {
	Start string `json:"start" validate:"required,clock"`
	End   string `json:"end" validate:"required,clock"`
}

type WorkingHoursRequest struct {
	PractitionerID  string        `json:"practitioner_id" validate:"required,practitioner_id"`
	StartDate       string        `json:"start_date" validate:"required,datetime=2006-01-02"`
	EndDate         string        `json:"end_date" validate:"required,datetime=2006-01-02"`
	WorkingDays     []int         `json:"working_days" validate:"max=7,dive,min=0,max=6"`
	WorkingHours    ClockWindow   `json:"working_hours"`
	SlotDurationMin int           `json:"slot_duration_min" validate:"required,min=5,max=480"`
	Breaks          []ClockWindow `json:"breaks,omitempty" validate:"max=10,dive"`
	Capacity        int           `json:"capacity,omitempty" validate:"omitempty,min=1,max=200"`
	Notes           string        `json:"notes,omitempty" validate:"max=500"`
}

type RecurrenceRule struct {
	Frequency  string    `json:"frequency" validate:"required,oneof=daily weekly monthly"`
	Interval   int       `json:"interval,omitempty" validate:"omitempty,min=1,max=52"`
	DaysOfWeek []int     `json:"days_of_week" validate:"max=7,dive,min=0,max=6"`
	Until      time.Time `json:"until" validate:"required"`
}

// RecurrenceRequest describes the first occurrence and how it repeats.
type RecurrenceRequest struct {
	PractitionerID string         `json:"practitioner_id" validate:"required,practitioner_id"`
	StartTime      time.Time      `json:"start_time" validate:"required"`
	EndTime        time.Time      `json:"end_time" validate:"required"`
	Capacity       int            `json:"capacity,omitempty" validate:"omitempty,min=1,max=200"`
	Notes          string         `json:"notes,omitempty" validate:"max=500"`
	Rule           RecurrenceRule `json:"recurrence_rule"`
}

type GenerationResult struct {
	Created []*AvailabilitySlot `json:"created"`
	Skipped int                 `json:"skipped"`
}
