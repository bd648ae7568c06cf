package dto

import "github.com/noah-isme/clinic-scheduling-api/internal/models"

// CheckAvailabilityRequest asks whether a therapist can take a slot.
type CheckAvailabilityRequest struct {
	TherapistID string `json:"therapistId" validate:"required"`
	Date        string `json:"date" validate:"required,datetime=2006-01-02"`
	StartTime   string `json:"startTime" validate:"required,datetime=15:04"`
	Duration    int    `json:"duration" validate:"required,min=5,max=720"`
}

// SlotSuggestion is an alternative start time on the same date.
type SlotSuggestion struct {
	StartTime   string `json:"startTime"`
	EndTime     string `json:"endTime"`
	StartMinute int    `json:"startMinute"`
}

// ConflictResult is the outcome of an availability check.
type ConflictResult struct {
	Available   bool                `json:"available"`
	Reason      string              `json:"reason"`
	Conflicts   []models.BookingRef `json:"conflicts"`
	Suggestions []SlotSuggestion    `json:"suggestions"`
	Window      *models.Window      `json:"window,omitempty"`
}

// ResolveConflictRequest searches for the nearest acceptable slot.
type ResolveConflictRequest struct {
	TherapistID       string `json:"therapistId" validate:"required"`
	Date              string `json:"date" validate:"required,datetime=2006-01-02"`
	PreferredTime     string `json:"preferredTime" validate:"required,datetime=15:04"`
	Duration          int    `json:"duration" validate:"required,min=5,max=720"`
	MaxTimeShift      *int   `json:"maxTimeShift" validate:"omitempty,min=0,max=720"`
	AllowDifferentDay bool   `json:"allowDifferentDay"`
}

// Resolution reports the slot the resolver settled on, if any.
type Resolution struct {
	Resolved     bool           `json:"resolved"`
	Date         string         `json:"date,omitempty"`
	StartTime    string         `json:"startTime,omitempty"`
	StartMinute  int            `json:"startMinute,omitempty"`
	ShiftMinutes int            `json:"shiftMinutes"`
	DayShift     int            `json:"dayShift"`
	Reason       string         `json:"reason"`
	Attempts     int            `json:"attempts"`
	Failures     map[string]int `json:"failures,omitempty"`
}

// AssignmentRequest asks the engine to pick and book a therapist.
type AssignmentRequest struct {
	SpecialtyID          string   `json:"specialtyId" validate:"required"`
	PatientID            string   `json:"patientId" validate:"required"`
	Date                 string   `json:"date" validate:"required,datetime=2006-01-02"`
	Time                 string   `json:"time" validate:"required,datetime=15:04"`
	Duration             int      `json:"duration" validate:"required,min=5,max=720"`
	Urgency              string   `json:"urgency" validate:"omitempty,oneof=LOW NORMAL HIGH URGENT"`
	PreferredTherapistID string   `json:"preferredTherapistId"`
	ExcludeTherapistIDs  []string `json:"excludeTherapistIds"`
	MaxWorkload          int      `json:"maxWorkload" validate:"min=0"`
}

// CandidateScore describes how a therapist ranked during assignment.
type CandidateScore struct {
	TherapistID   string `json:"therapistId"`
	SessionsToday int    `json:"sessionsToday"`
	Available     bool   `json:"available"`
	Reason        string `json:"reason"`
}

// AssignmentResult carries the chosen therapist and the created booking.
type AssignmentResult struct {
	AssignedTherapistID *string          `json:"assignedTherapistId"`
	Booking             *models.Booking  `json:"booking,omitempty"`
	Reason              string           `json:"reason"`
	Urgency             string           `json:"urgency"`
	Candidates          []CandidateScore `json:"candidates"`
}

// BookSessionRequest creates a single booking after an availability check.
type BookSessionRequest struct {
	TherapistID     string `json:"therapistId" validate:"required"`
	PatientID       string `json:"patientId" validate:"required"`
	Date            string `json:"date" validate:"required,datetime=2006-01-02"`
	StartTime       string `json:"startTime" validate:"required,datetime=15:04"`
	Duration        int    `json:"duration" validate:"required,min=5,max=720"`
	TreatmentPlanID string `json:"treatmentPlanId"`
	ServiceID       string `json:"serviceId"`
}

// UpdateBookingStatusRequest moves a booking through its lifecycle.
type UpdateBookingStatusRequest struct {
	Status string `json:"status" validate:"required,oneof=CONFIRMED IN_PROGRESS COMPLETED CANCELLED NO_SHOW RESCHEDULE_REQUESTED"`
	Reason string `json:"reason" validate:"max=500"`
}

// RescheduleBookingRequest moves a booking to a new slot atomically.
type RescheduleBookingRequest struct {
	Date      string `json:"date" validate:"required,datetime=2006-01-02"`
	StartTime string `json:"startTime" validate:"required,datetime=15:04"`
	Reason    string `json:"reason" validate:"max=500"`
}

// AvailableSlotsQuery lists free start times for a therapist on a date.
type AvailableSlotsQuery struct {
	TherapistID string `form:"therapistId" json:"therapistId" validate:"required"`
	Date        string `form:"date" json:"date" validate:"required,datetime=2006-01-02"`
	Duration    int    `form:"duration" json:"duration" validate:"omitempty,min=5,max=720"`
}

// AvailableSlotsResponse lists every free start time in the working window.
type AvailableSlotsResponse struct {
	TherapistID string           `json:"therapistId"`
	Date        string           `json:"date"`
	Reason      string           `json:"reason"`
	Slots       []SlotSuggestion `json:"slots"`
}

// CancelBookingRequest carries an optional cancellation reason.
type CancelBookingRequest struct {
	Reason string `json:"reason" validate:"max=500"`
}

// WorkloadQuery selects the day a workload snapshot is anchored on.
type WorkloadQuery struct {
	Date string `form:"date" json:"date" validate:"required,datetime=2006-01-02"`
}
