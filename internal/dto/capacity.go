package dto

// UtilizationQuery selects a therapist's utilization for a date and window.
type UtilizationQuery struct {
	TherapistID string `form:"therapistId" json:"therapistId" validate:"required"`
	Date        string `form:"date" json:"date" validate:"required,datetime=2006-01-02"`
	Window      string `form:"window" json:"window" validate:"omitempty,oneof=day week month"`
}

// CapacityAlertsQuery lists computed alerts across active therapists.
type CapacityAlertsQuery struct {
	Date          string `form:"date" json:"date" validate:"required,datetime=2006-01-02"`
	IncludeNormal bool   `form:"includeNormal" json:"includeNormal"`
}

// UpsertCapacityConfigRequest stores workload limits for a therapist.
type UpsertCapacityConfigRequest struct {
	MaxSessionsPerDay   int     `json:"maxSessionsPerDay" validate:"min=0"`
	MaxSessionsPerWeek  int     `json:"maxSessionsPerWeek" validate:"min=0"`
	MaxSessionsPerMonth int     `json:"maxSessionsPerMonth" validate:"min=0"`
	MaxHoursPerDay      float64 `json:"maxHoursPerDay" validate:"min=0,max=24"`
	MaxHoursPerWeek     float64 `json:"maxHoursPerWeek" validate:"min=0,max=168"`
}

// UpsertAlertThresholdRequest stores alert thresholds for a therapist.
type UpsertAlertThresholdRequest struct {
	CriticalPercent      float64 `json:"criticalPercent" validate:"gt=0,max=1000"`
	WarningPercent       float64 `json:"warningPercent" validate:"gt=0,ltefield=CriticalPercent"`
	UnderutilizedPercent float64 `json:"underutilizedPercent" validate:"min=0,ltfield=WarningPercent"`
}
