package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/clinic-scheduling-api/internal/models"
)

// CapacityRepository persists capacity limits and alert thresholds.
type CapacityRepository struct {
	db *sqlx.DB
}

// NewCapacityRepository constructs the repository.
func NewCapacityRepository(db *sqlx.DB) *CapacityRepository {
	return &CapacityRepository{db: db}
}

// GetConfig returns the capacity limits for a therapist.
func (r *CapacityRepository) GetConfig(ctx context.Context, therapistID string) (*models.CapacityConfig, error) {
	const query = `SELECT id, therapist_id, max_sessions_per_day, max_sessions_per_week, max_sessions_per_month, max_hours_per_day, max_hours_per_week, created_at, updated_at FROM capacity_configs WHERE therapist_id = $1`
	var cfg models.CapacityConfig
	if err := r.db.GetContext(ctx, &cfg, query, therapistID); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// UpsertConfig creates or replaces the capacity limits for a therapist.
func (r *CapacityRepository) UpsertConfig(ctx context.Context, cfg *models.CapacityConfig) error {
	if cfg.ID == "" {
		cfg.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if cfg.CreatedAt.IsZero() {
		cfg.CreatedAt = now
	}
	cfg.UpdatedAt = now

	const query = `INSERT INTO capacity_configs (id, therapist_id, max_sessions_per_day, max_sessions_per_week, max_sessions_per_month, max_hours_per_day, max_hours_per_week, created_at, updated_at)
		VALUES (:id, :therapist_id, :max_sessions_per_day, :max_sessions_per_week, :max_sessions_per_month, :max_hours_per_day, :max_hours_per_week, :created_at, :updated_at)
		ON CONFLICT (therapist_id) DO UPDATE
		SET max_sessions_per_day = EXCLUDED.max_sessions_per_day,
		    max_sessions_per_week = EXCLUDED.max_sessions_per_week,
		    max_sessions_per_month = EXCLUDED.max_sessions_per_month,
		    max_hours_per_day = EXCLUDED.max_hours_per_day,
		    max_hours_per_week = EXCLUDED.max_hours_per_week,
		    updated_at = EXCLUDED.updated_at`
	if _, err := r.db.NamedExecContext(ctx, query, cfg); err != nil {
		return fmt.Errorf("upsert capacity config: %w", err)
	}
	return nil
}

// GetAlertThreshold returns the alert thresholds configured for a therapist.
func (r *CapacityRepository) GetAlertThreshold(ctx context.Context, therapistID string) (*models.CapacityAlertThreshold, error) {
	const query = `SELECT id, therapist_id, critical_percent, warning_percent, underutilized_percent, created_at, updated_at FROM capacity_alert_thresholds WHERE therapist_id = $1`
	var threshold models.CapacityAlertThreshold
	if err := r.db.GetContext(ctx, &threshold, query, therapistID); err != nil {
		return nil, err
	}
	return &threshold, nil
}

// UpsertAlertThreshold creates or replaces the alert thresholds for a therapist.
func (r *CapacityRepository) UpsertAlertThreshold(ctx context.Context, threshold *models.CapacityAlertThreshold) error {
	if threshold.ID == "" {
		threshold.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if threshold.CreatedAt.IsZero() {
		threshold.CreatedAt = now
	}
	threshold.UpdatedAt = now

	const query = `INSERT INTO capacity_alert_thresholds (id, therapist_id, critical_percent, warning_percent, underutilized_percent, created_at, updated_at)
		VALUES (:id, :therapist_id, :critical_percent, :warning_percent, :underutilized_percent, :created_at, :updated_at)
		ON CONFLICT (therapist_id) DO UPDATE
		SET critical_percent = EXCLUDED.critical_percent,
		    warning_percent = EXCLUDED.warning_percent,
		    underutilized_percent = EXCLUDED.underutilized_percent,
		    updated_at = EXCLUDED.updated_at`
	if _, err := r.db.NamedExecContext(ctx, query, threshold); err != nil {
		return fmt.Errorf("upsert capacity alert threshold: %w", err)
	}
	return nil
}
