package models

import "time"

// CapacityConfig holds admin-defined workload limits for a therapist. Zero means unlimited.
type CapacityConfig struct {
	ID                  string    `db:"id" json:"id"`
	TherapistID         string    `db:"therapist_id" json:"therapist_id"`
	MaxSessionsPerDay   int       `db:"max_sessions_per_day" json:"max_sessions_per_day"`
	MaxSessionsPerWeek  int       `db:"max_sessions_per_week" json:"max_sessions_per_week"`
	MaxSessionsPerMonth int       `db:"max_sessions_per_month" json:"max_sessions_per_month"`
	MaxHoursPerDay      float64   `db:"max_hours_per_day" json:"max_hours_per_day"`
	MaxHoursPerWeek     float64   `db:"max_hours_per_week" json:"max_hours_per_week"`
	CreatedAt           time.Time `db:"created_at" json:"created_at"`
	UpdatedAt           time.Time `db:"updated_at" json:"updated_at"`
}

// CapacityAlertThreshold configures when utilization raises an alert.
type CapacityAlertThreshold struct {
	ID                   string    `db:"id" json:"id"`
	TherapistID          string    `db:"therapist_id" json:"therapist_id"`
	CriticalPercent      float64   `db:"critical_percent" json:"critical_percent"`
	WarningPercent       float64   `db:"warning_percent" json:"warning_percent"`
	UnderutilizedPercent float64   `db:"underutilized_percent" json:"underutilized_percent"`
	CreatedAt            time.Time `db:"created_at" json:"created_at"`
	UpdatedAt            time.Time `db:"updated_at" json:"updated_at"`
}

// WorkloadSnapshot is derived from active bookings and never stored.
type WorkloadSnapshot struct {
	TherapistID       string    `json:"therapist_id"`
	Date              time.Time `json:"date"`
	SessionsToday     int       `json:"sessions_today"`
	HoursToday        float64   `json:"hours_today"`
	SessionsThisWeek  int       `json:"sessions_this_week"`
	HoursThisWeek     float64   `json:"hours_this_week"`
	SessionsThisMonth int       `json:"sessions_this_month"`
	HoursThisMonth    float64   `json:"hours_this_month"`
}

// UtilizationWindow selects the measured period.
type UtilizationWindow string

const (
	UtilizationWindowDay   UtilizationWindow = "day"
	UtilizationWindowWeek  UtilizationWindow = "week"
	UtilizationWindowMonth UtilizationWindow = "month"
)

// Valid reports whether the window is known.
func (w UtilizationWindow) Valid() bool {
	switch w {
	case UtilizationWindowDay, UtilizationWindowWeek, UtilizationWindowMonth:
		return true
	}
	return false
}

// AlertSeverity grades a utilization reading.
type AlertSeverity string

const (
	AlertSeverityCritical AlertSeverity = "critical"
	AlertSeverityWarning  AlertSeverity = "warning"
	AlertSeverityNormal   AlertSeverity = "normal"
	AlertSeverityInfo     AlertSeverity = "info"
)

// AlertType names the condition behind an alert.
type AlertType string

const (
	AlertTypeCapacityExceeded AlertType = "CAPACITY_EXCEEDED"
	AlertTypeWorkloadHigh     AlertType = "WORKLOAD_HIGH"
	AlertTypeUnderutilized    AlertType = "UNDERUTILIZED"
)

// CapacityAlert is computed on read from utilization and thresholds.
type CapacityAlert struct {
	TherapistID        string        `json:"therapist_id"`
	Severity           AlertSeverity `json:"severity"`
	Type               AlertType     `json:"type,omitempty"`
	UtilizationPercent float64       `json:"utilization_percent"`
	Message            string        `json:"message"`
}

// UtilizationReport summarises a therapist's capacity usage.
type UtilizationReport struct {
	TherapistID        string             `json:"therapist_id"`
	Date               time.Time          `json:"date"`
	Window             UtilizationWindow  `json:"window"`
	Workload           WorkloadSnapshot   `json:"workload"`
	Config             CapacityConfig     `json:"config"`
	UtilizationPercent float64            `json:"utilization_percent"`
	WindowPercent      float64            `json:"window_percent"`
	LimitsReached      []string           `json:"limits_reached,omitempty"`
	Alert              CapacityAlert      `json:"alert"`
	Breakdown          map[string]float64 `json:"breakdown"`
}
