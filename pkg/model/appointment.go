package model

import "time"

const (
	AppointmentStatusScheduled = "scheduled"
	AppointmentStatusCompleted = "completed"
	AppointmentStatusCancelled = "cancelled"
	AppointmentStatusNoShow    = "no_show"
)

type PatientInfo struct {
	Name  string `json:"name" bson:"name" validate:"required,min=2,max=100"`
	Email string `json:"email,omitempty" bson:"email,omitempty" validate:"omitempty,email,max=254"`
	Phone string `json:"phone,omitempty" bson:"phone,omitempty" validate:"omitempty,e164"`
}

type Appointment struct {
	ID                string      `json:"id" bson:"_id"`
	PatientID         string      `json:"patient_id" bson:"patient_id"`
	PractitionerID    string      `json:"practitioner_id" bson:"practitioner_id"`
	SlotID            *string     `json:"slot_id,omitempty" bson:"slot_id,omitempty"`
	StartTime         time.Time   `json:"start_time" bson:"start_time"`
	EndTime           time.Time   `json:"end_time" bson:"end_time"`
	Status            string      `json:"status" bson:"status"`
	Reason            string      `json:"reason,omitempty" bson:"reason,omitempty"`
	Patient           PatientInfo `json:"patient" bson:"patient"`
	CancellationToken string      `json:"cancellation_token,omitempty" bson:"cancellation_token"`
	CreatedAt         time.Time   `json:"created_at" bson:"created_at"`
	UpdatedAt         time.Time   `json:"updated_at" bson:"updated_at"`
	CancelledAt       *time.Time  `json:"cancelled_at,omitempty" bson:"cancelled_at,omitempty"`
}

func (a *Appointment) IsScheduled() bool {
	return a.Status == AppointmentStatusScheduled
}

// Overlaps reports whether the appointment intersects the half-open range [start, end).
func (a *Appointment) Overlaps(start, end time.Time) bool {
	return a.StartTime.Before(end) && a.EndTime.After(start)
}

func (a *Appointment) BoundTo(slotID string) bool {
	return a.SlotID != nil && *a.SlotID == slotID
}

// Redacted returns a copy without the cancellation token.
func (a *Appointment) Redacted() *Appointment {
	c := *a
	c.CancellationToken = ""
	return &c
}

// CommitRequest books either a slot or an explicit practitioner time range.
type CommitRequest struct {
	SlotID         string      `json:"slot_id,omitempty" validate:"required_without=PractitionerID,omitempty,uuid"`
	PractitionerID string      `json:"practitioner_id,omitempty" validate:"required_without=SlotID,omitempty,practitioner_id"`
	StartTime      *time.Time  `json:"start_time,omitempty" validate:"required_with=PractitionerID"`
	EndTime        *time.Time  `json:"end_time,omitempty" validate:"required_with=PractitionerID"`
	PatientID      string      `json:"patient_id,omitempty" validate:"omitempty,max=64"`
	Patient        PatientInfo `json:"patient"`
	Reason         string      `json:"reason,omitempty" validate:"max=500"`
	LockToken      string      `json:"lock_token,omitempty" validate:"omitempty,max=64"`
}

func (r *CommitRequest) IsSlotBound() bool {
	return r.SlotID != ""
}

type CancelRequest struct {
	CancellationToken string `json:"cancellation_token" validate:"required,max=512"`
}
