package models

import "time"

// TreatmentPlanStatus tracks plan approval.
type TreatmentPlanStatus string

const (
	TreatmentPlanStatusDraft    TreatmentPlanStatus = "DRAFT"
	TreatmentPlanStatusApproved TreatmentPlanStatus = "APPROVED"
	TreatmentPlanStatusClosed   TreatmentPlanStatus = "CLOSED"
)

// TreatmentPlan groups the services a patient was prescribed.
type TreatmentPlan struct {
	ID          string                 `db:"id" json:"id"`
	PatientID   string                 `db:"patient_id" json:"patient_id"`
	TherapistID string                 `db:"therapist_id" json:"therapist_id"`
	Status      TreatmentPlanStatus    `db:"status" json:"status"`
	Services    []TreatmentPlanService `db:"-" json:"services"`
	CreatedAt   time.Time              `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time              `db:"updated_at" json:"updated_at"`
}

// TreatmentPlanService is one prescribed service with its session quota.
type TreatmentPlanService struct {
	ID               string `db:"id" json:"id"`
	TreatmentPlanID  string `db:"treatment_plan_id" json:"treatment_plan_id"`
	ServiceID        string `db:"service_id" json:"service_id"`
	RequiredSessions int    `db:"required_sessions" json:"required_sessions"`
	SessionDuration  int    `db:"session_duration" json:"session_duration"`
}
