package booking

import (
	"context"
	"encoding/json"
	"time"

	"github.com/havenmind/booking/internal/model"
	"github.com/havenmind/booking/internal/outbox"
	"github.com/havenmind/booking/internal/storage"
)

// Event types double as Kafka topic names; consumers dedupe on the outbox
// event id, so delivery is at-least-once.
const (
	EventAppointmentBooked      = "booking.appointment.booked.v1"
	EventAppointmentRescheduled = "booking.appointment.rescheduled.v1"
	EventAppointmentCancelled   = "booking.appointment.cancelled.v1"
	EventAppointmentCompleted   = "booking.appointment.completed.v1"

	aggregateAppointment = "appointment"
)

type appointmentBookedPayload struct {
	AppointmentID string    `json:"appointmentId"`
	ClientID      string    `json:"clientId"`
	ProviderID    string    `json:"providerId"`
	StartTime     time.Time `json:"startTime"`
	DurationMin   int       `json:"duration"`
	MeetingType   string    `json:"meetingType"`
}

type appointmentRescheduledPayload struct {
	AppointmentID     string    `json:"appointmentId"`
	OriginalStartTime time.Time `json:"originalStartTime"`
	NewStartTime      time.Time `json:"newStartTime"`
	RescheduledBy     string    `json:"rescheduledBy"`
}

type appointmentCancelledPayload struct {
	AppointmentID           string `json:"appointmentId"`
	CancelledBy             string `json:"cancelledBy"`
	CancellationNoticeHours int    `json:"cancellationNoticeHours"`
}

type appointmentCompletedPayload struct {
	AppointmentID    string `json:"appointmentId"`
	AttendanceStatus string `json:"attendanceStatus"`
}

func appendEvent(ctx context.Context, tx storage.Store, appointmentID, eventType string, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	return tx.AppendEvent(ctx, outbox.NewEvent(aggregateAppointment, appointmentID, eventType, body))
}

func appendBooked(ctx context.Context, tx storage.Store, a model.Appointment) error {
	return appendEvent(ctx, tx, a.ID, EventAppointmentBooked, appointmentBookedPayload{
		AppointmentID: a.ID,
		ClientID:      a.ClientID,
		ProviderID:    a.ProviderID,
		StartTime:     a.StartTime,
		DurationMin:   a.DurationMin,
		MeetingType:   string(a.MeetingType),
	})
}
