package models

import "time"

// ScheduleConfig describes a therapist's working pattern for one weekday.
type ScheduleConfig struct {
	ID                string     `db:"id" json:"id"`
	TherapistID       string     `db:"therapist_id" json:"therapist_id"`
	DayOfWeek         int        `db:"day_of_week" json:"day_of_week"`
	StartTime         int        `db:"start_minute" json:"start_minute"`
	EndTime           int        `db:"end_minute" json:"end_minute"`
	BreakStart        *int       `db:"break_start_minute" json:"break_start_minute,omitempty"`
	BreakEnd          *int       `db:"break_end_minute" json:"break_end_minute,omitempty"`
	MaxSessionsPerDay int        `db:"max_sessions_per_day" json:"max_sessions_per_day"`
	SessionDuration   int        `db:"session_duration" json:"session_duration"`
	BufferTime        int        `db:"buffer_time" json:"buffer_time"`
	IsRecurring       bool       `db:"is_recurring" json:"is_recurring"`
	IsWorkingDay      bool       `db:"is_working_day" json:"is_working_day"`
	EffectiveDate     time.Time  `db:"effective_date" json:"effective_date"`
	EndDate           *time.Time `db:"end_date" json:"end_date,omitempty"`
	CreatedAt         time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt         time.Time  `db:"updated_at" json:"updated_at"`
}

// HasBreak reports whether both break bounds are set.
func (c ScheduleConfig) HasBreak() bool {
	return c.BreakStart != nil && c.BreakEnd != nil
}

// Valid checks the window and break invariants.
func (c ScheduleConfig) Valid() bool {
	if c.StartTime < 0 || c.EndTime > MinutesPerDay || c.StartTime >= c.EndTime {
		return false
	}
	if c.BreakStart == nil && c.BreakEnd == nil {
		return true
	}
	if !c.HasBreak() {
		return false
	}
	return *c.BreakStart < *c.BreakEnd && *c.BreakStart >= c.StartTime && *c.BreakEnd <= c.EndTime
}

// Covers reports whether date falls inside the config's effective range.
// One-off configs without an end date cover only their effective date.
func (c ScheduleConfig) Covers(date time.Time) bool {
	day := DateOnly(date)
	if day.Before(DateOnly(c.EffectiveDate)) {
		return false
	}
	if c.EndDate != nil {
		return !day.After(DateOnly(*c.EndDate))
	}
	if !c.IsRecurring {
		return day.Equal(DateOnly(c.EffectiveDate))
	}
	return true
}

// ScheduleConfigQuery selects configs relevant to a therapist on a date.
type ScheduleConfigQuery struct {
	TherapistID string
	DayOfWeek   int
	Date        time.Time
}

// Window is the resolved working day for a therapist.
type Window struct {
	TherapistID       string    `json:"therapist_id"`
	Date              time.Time `json:"date"`
	ConfigID          string    `json:"config_id"`
	Start             int       `json:"start_minute"`
	End               int       `json:"end_minute"`
	BreakStart        *int      `json:"break_start_minute,omitempty"`
	BreakEnd          *int      `json:"break_end_minute,omitempty"`
	SessionDuration   int       `json:"session_duration"`
	BufferTime        int       `json:"buffer_time"`
	MaxSessionsPerDay int       `json:"max_sessions_per_day"`
}

// HasBreak reports whether the window carries a break.
func (w Window) HasBreak() bool {
	return w.BreakStart != nil && w.BreakEnd != nil
}

// Contains reports whether [start, start+duration) lies inside the working hours.
func (w Window) Contains(start, duration int) bool {
	return start >= w.Start && start+duration <= w.End
}

// IntersectsBreak reports whether [start, start+duration) touches the break.
func (w Window) IntersectsBreak(start, duration int) bool {
	if !w.HasBreak() {
		return false
	}
	return Overlaps(start, start+duration, *w.BreakStart, *w.BreakEnd)
}
