package events

import "time"

// Booking lifecycle event types.
const (
	TypeBookingCreated       = "booking.created"
	TypeBookingStatusChanged = "booking.status_changed"
	TypeBookingRescheduled   = "booking.rescheduled"
)

// BookingEvent is the payload published when a booking changes.
type BookingEvent struct {
	ID              string    `json:"id"`
	Type            string    `json:"type"`
	BookingID       string    `json:"bookingId"`
	TherapistID     string    `json:"therapistId"`
	PatientID       string    `json:"patientId"`
	Date            string    `json:"date"`
	StartTime       string    `json:"startTime"`
	Duration        int       `json:"duration"`
	Status          string    `json:"status"`
	PreviousStatus  string    `json:"previousStatus,omitempty"`
	RescheduledFrom string    `json:"rescheduledFrom,omitempty"`
	Reason          string    `json:"reason,omitempty"`
	OccurredAt      time.Time `json:"occurredAt"`
	Attempt         int       `json:"-"`
}
