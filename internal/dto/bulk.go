package dto

import "github.com/noah-isme/clinic-scheduling-api/internal/models"

// Recurrence frequencies for bulk scheduling.
const (
	FrequencyDaily    = "DAILY"
	FrequencyWeekly   = "WEEKLY"
	FrequencyBiweekly = "BIWEEKLY"
)

// BulkScheduleRequest materialises sessions for an approved treatment plan.
type BulkScheduleRequest struct {
	TreatmentPlanID      string   `json:"treatmentPlanId" validate:"required"`
	StartDate            string   `json:"startDate" validate:"required,datetime=2006-01-02"`
	EndDate              string   `json:"endDate" validate:"required,datetime=2006-01-02"`
	Frequency            string   `json:"frequency" validate:"required,oneof=DAILY WEEKLY BIWEEKLY"`
	DaysOfWeek           []int    `json:"daysOfWeek" validate:"omitempty,dive,min=1,max=7"`
	TimeSlots            []string `json:"timeSlots" validate:"required,min=1,dive,datetime=15:04"`
	AutoResolveConflicts bool     `json:"autoResolveConflicts"`
	MaxTimeShift         *int     `json:"maxTimeShift" validate:"omitempty,min=0,max=720"`
}

// BulkSlotError records why a (date, slot) pair produced no session.
type BulkSlotError struct {
	ServiceID string `json:"serviceId"`
	Date      string `json:"date"`
	TimeSlot  string `json:"timeSlot"`
	Reason    string `json:"reason"`
	Message   string `json:"message"`
}

// BulkServiceSummary reports progress against a service's session quota.
type BulkServiceSummary struct {
	ServiceID string `json:"serviceId"`
	Required  int    `json:"required"`
	Created   int    `json:"created"`
	Shortfall int    `json:"shortfall"`
}

// BatchResult is the partial-failure outcome of a bulk run.
type BatchResult struct {
	TreatmentPlanID string               `json:"treatmentPlanId"`
	CreatedSessions []models.Booking     `json:"createdSessions"`
	Errors          []BulkSlotError      `json:"errors"`
	Services        []BulkServiceSummary `json:"services"`
}
