// Package events announces appointment lifecycle changes on Kafka.
package events

import (
	"context"
	"time"

	"medibook/pkg/kafka"
	"medibook/pkg/logger"
	"medibook/pkg/middleware"
	"medibook/pkg/model"
)

const (
	TypeAppointmentBooked    = "appointment.booked"
	TypeAppointmentCancelled = "appointment.cancelled"

	Source = "medibook-bookings"
)

// AppointmentEvent carries no patient contact details.
type AppointmentEvent struct {
	AppointmentID  string     `json:"appointment_id"`
	PractitionerID string     `json:"practitioner_id"`
	PatientID      string     `json:"patient_id,omitempty"`
	SlotID         *string    `json:"slot_id,omitempty"`
	StartTime      time.Time  `json:"start_time"`
	EndTime        time.Time  `json:"end_time"`
	Status         string     `json:"status"`
	CancelledAt    *time.Time `json:"cancelled_at,omitempty"`
	OccurredAt     time.Time  `json:"occurred_at"`
}

func NewAppointmentEvent(appt *model.Appointment, at time.Time) AppointmentEvent {
	return AppointmentEvent{
		AppointmentID:  appt.ID,
		PractitionerID: appt.PractitionerID,
		PatientID:      appt.PatientID,
		SlotID:         appt.SlotID,
		StartTime:      appt.StartTime,
		EndTime:        appt.EndTime,
		Status:         appt.Status,
		CancelledAt:    appt.CancelledAt,
		OccurredAt:     at.UTC(),
	}
}

type Publisher interface {
	Publish(ctx context.Context, eventType string, appt *model.Appointment) error
}

// messagePublisher is the part of *kafka.Producer used here.
type messagePublisher interface {
	Publish(ctx context.Context, msg kafka.Message) error
}

type kafkaPublisher struct {
	producer messagePublisher
	log      *logger.Logger
}

func NewKafkaPublisher(producer *kafka.Producer, log *logger.Logger) Publisher {
	return &kafkaPublisher{producer: producer, log: log}
}

// Publish keys events by practitioner so one practitioner's changes stay
// ordered within a partition.
func (p *kafkaPublisher) Publish(ctx context.Context, eventType string, appt *model.Appointment) error {
	msg, err := kafka.NewMessage().
		WithKey(appt.PractitionerID).
		WithValue(NewAppointmentEvent(appt, time.Now())).
		WithEventID("").
		WithEventType(eventType).
		WithCorrelationID(middleware.RequestID(ctx)).
		WithSource(Source).
		Build()
	if err != nil {
		return err
	}
	return p.producer.Publish(ctx, msg)
}

type noopPublisher struct{}

func NewNoopPublisher() Publisher {
	return noopPublisher{}
}

func (noopPublisher) Publish(context.Context, string, *model.Appointment) error {
	return nil
}
