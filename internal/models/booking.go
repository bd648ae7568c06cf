package models

import "time"

// BookingStatus captures the lifecycle of a therapy session.
type BookingStatus string

const (
	BookingStatusScheduled           BookingStatus = "SCHEDULED"
	BookingStatusConfirmed           BookingStatus = "CONFIRMED"
	BookingStatusInProgress          BookingStatus = "IN_PROGRESS"
	BookingStatusCompleted           BookingStatus = "COMPLETED"
	BookingStatusCancelled           BookingStatus = "CANCELLED"
	BookingStatusNoShow              BookingStatus = "NO_SHOW"
	BookingStatusRescheduleRequested BookingStatus = "RESCHEDULE_REQUESTED"
)

// ActiveBookingStatuses are the statuses that occupy a slot.
var ActiveBookingStatuses = []BookingStatus{
	BookingStatusScheduled,
	BookingStatusConfirmed,
	BookingStatusInProgress,
}

var bookingTransitions = map[BookingStatus][]BookingStatus{
	BookingStatusScheduled:           {BookingStatusConfirmed, BookingStatusCancelled, BookingStatusRescheduleRequested},
	BookingStatusConfirmed:           {BookingStatusInProgress, BookingStatusCancelled, BookingStatusNoShow, BookingStatusRescheduleRequested},
	BookingStatusInProgress:          {BookingStatusCompleted, BookingStatusCancelled},
	BookingStatusCompleted:           nil,
	BookingStatusCancelled:           nil,
	BookingStatusNoShow:              {BookingStatusConfirmed, BookingStatusCancelled},
	BookingStatusRescheduleRequested: {BookingStatusCancelled},
}

// Valid reports whether the status is known.
func (s BookingStatus) Valid() bool {
	_, ok := bookingTransitions[s]
	return ok
}

// IsActive reports whether a booking in this status occupies its slot.
func (s BookingStatus) IsActive() bool {
	for _, active := range ActiveBookingStatuses {
		if s == active {
			return true
		}
	}
	return false
}

// CanTransitionTo checks the booking status table.
func (s BookingStatus) CanTransitionTo(next BookingStatus) bool {
	for _, allowed := range bookingTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// Booking is a scheduled session between a therapist and a patient.
type Booking struct {
	ID              string        `db:"id" json:"id"`
	TherapistID     string        `db:"therapist_id" json:"therapist_id"`
	PatientID       string        `db:"patient_id" json:"patient_id"`
	TreatmentPlanID *string       `db:"treatment_plan_id" json:"treatment_plan_id,omitempty"`
	ServiceID       *string       `db:"service_id" json:"service_id,omitempty"`
	ScheduledDate   time.Time     `db:"scheduled_date" json:"scheduled_date"`
	ScheduledTime   int           `db:"scheduled_minute" json:"scheduled_minute"`
	Duration        int           `db:"duration" json:"duration"`
	Status          BookingStatus `db:"status" json:"status"`
	CancelReason    *string       `db:"cancel_reason" json:"cancel_reason,omitempty"`
	RescheduledFrom *string       `db:"rescheduled_from" json:"rescheduled_from,omitempty"`
	CreatedAt       time.Time     `db:"created_at" json:"created_at"`
	UpdatedAt       time.Time     `db:"updated_at" json:"updated_at"`
}

// End returns the exclusive end minute of the session.
func (b Booking) End() int {
	return b.ScheduledTime + b.Duration
}

// OverlapsInterval reports whether the booking intersects [start, start+duration).
func (b Booking) OverlapsInterval(start, duration int) bool {
	return Overlaps(start, start+duration, b.ScheduledTime, b.End())
}

// BookingRef is the compact reference returned with conflict results.
type BookingRef struct {
	ID        string        `json:"id"`
	PatientID string        `json:"patient_id"`
	StartTime string        `json:"start_time"`
	EndTime   string        `json:"end_time"`
	Status    BookingStatus `json:"status"`
}

// Ref builds the compact reference for the booking.
func (b Booking) Ref() BookingRef {
	return BookingRef{
		ID:        b.ID,
		PatientID: b.PatientID,
		StartTime: FormatClock(b.ScheduledTime),
		EndTime:   FormatClock(b.End()),
		Status:    b.Status,
	}
}

// BookingQuery selects active bookings for a therapist over a date range (inclusive).
type BookingQuery struct {
	TherapistID string
	From        time.Time
	To          time.Time
}

// LockKey identifies the critical section a booking write must hold.
type LockKey struct {
	TherapistID string
	Date        time.Time
}

// String renders the advisory lock key.
func (k LockKey) String() string {
	return k.TherapistID + "|" + DateOnly(k.Date).Format(DateLayout)
}

// LockKey returns the critical section guarding this booking's date.
func (b Booking) LockKey() LockKey {
	return LockKey{TherapistID: b.TherapistID, Date: b.ScheduledDate}
}
