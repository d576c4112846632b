package model

import (
	"regexp"
	"time"
)

const DefaultSlotCapacity = 1

type AvailabilitySlot struct {
	ID             string    `json:"id" bson:"_id"`
	PractitionerID string    `json:"practitioner_id" bson:"practitioner_id"`
	StartTime      time.Time `json:"start_time" bson:"start_time"`
	EndTime        time.Time `json:"end_time" bson:"end_time"`
	Capacity       int       `json:"capacity" bson:"capacity"`
	IsActive       bool      `json:"is_active" bson:"is_active"`
	Notes          string    `json:"notes,omitempty" bson:"notes,omitempty"`
	RecurringRule  string    `json:"recurring_rule,omitempty" bson:"recurring_rule,omitempty"`
	CreatedAt      time.Time `json:"created_at" bson:"created_at"`
	UpdatedAt      time.Time `json:"updated_at" bson:"updated_at"`
}

func (s *AvailabilitySlot) Duration() time.Duration {
	return s.EndTime.Sub(s.StartTime)
}

// SlotView is a slot annotated with its live occupancy.
type SlotView struct {
	AvailabilitySlot `bson:",inline"`
	BookedCount      int  `json:"booked_count" bson:"booked_count"`
	IsAvailable      bool `json:"is_available" bson:"-"`
}

func NewSlotView(slot AvailabilitySlot, booked int) *SlotView {
	return &SlotView{
		AvailabilitySlot: slot,
		BookedCount:      booked,
		IsAvailable:      booked < slot.Capacity,
	}
}

type SlotCreateRequest struct {
	PractitionerID string    `json:"practitioner_id" validate:"required,practitioner_id"`
	StartTime      time.Time `json:"start_time" validate:"required"`
	EndTime        time.Time `json:"end_time" validate:"required,gtfield=StartTime"`
	Capacity       int       `json:"capacity,omitempty" validate:"omitempty,min=1,max=200"`
	Notes          string    `json:"notes,omitempty" validate:"max=500"`
}

type SlotUpdate struct {
	StartTime *time.Time `json:"start_time,omitempty"`
	EndTime   *time.Time `json:"end_time,omitempty"`
	Capacity  *int       `json:"capacity,omitempty" validate:"omitempty,min=1,max=200"`
	Notes     *string    `json:"notes,omitempty" validate:"omitempty,max=500"`
	IsActive  *bool      `json:"is_active,omitempty"`
}

func (u *SlotUpdate) MovesTime() bool {
	return u.StartTime != nil || u.EndTime != nil
}

// AvailabilityQuery selects slots by a single date or an inclusive date
// range, both as YYYY-MM-DD in the working-hours location.
type AvailabilityQuery struct {
	PractitionerID string
	Date           string
	From           string
	To             string
	AvailableOnly  bool
}

// PractitionerIDPattern bounds the opaque practitioner identifiers accepted
// from callers.
var PractitionerIDPattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._:-]{0,63}$`)
