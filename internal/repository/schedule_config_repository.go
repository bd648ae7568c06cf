package repository

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/clinic-scheduling-api/internal/models"
)

// ScheduleConfigRepository reads therapist working patterns.
type ScheduleConfigRepository struct {
	db *sqlx.DB
}

// NewScheduleConfigRepository constructs the repository.
func NewScheduleConfigRepository(db *sqlx.DB) *ScheduleConfigRepository {
	return &ScheduleConfigRepository{db: db}
}

// ListApplicable returns configs for the weekday whose effective range may cover the date,
// most specific first.
func (r *ScheduleConfigRepository) ListApplicable(ctx context.Context, query models.ScheduleConfigQuery) ([]models.ScheduleConfig, error) {
	const stmt = `SELECT id, therapist_id, day_of_week, start_minute, end_minute, break_start_minute, break_end_minute, max_sessions_per_day, session_duration, buffer_time, is_recurring, is_working_day, effective_date, end_date, created_at, updated_at
		FROM schedule_configs
		WHERE therapist_id = $1 AND day_of_week = $2 AND effective_date <= $3 AND (end_date IS NULL OR end_date >= $3)
		ORDER BY is_recurring ASC, effective_date DESC, updated_at DESC`
	var configs []models.ScheduleConfig
	if err := r.db.SelectContext(ctx, &configs, stmt, query.TherapistID, query.DayOfWeek, models.DateOnly(query.Date)); err != nil {
		return nil, fmt.Errorf("list schedule configs: %w", err)
	}
	return configs, nil
}
