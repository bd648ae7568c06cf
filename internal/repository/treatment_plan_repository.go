package repository

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/clinic-scheduling-api/internal/models"
)

// TreatmentPlanRepository reads approved plans and their prescribed services.
type TreatmentPlanRepository struct {
	db *sqlx.DB
}

// NewTreatmentPlanRepository constructs the repository.
func NewTreatmentPlanRepository(db *sqlx.DB) *TreatmentPlanRepository {
	return &TreatmentPlanRepository{db: db}
}

// FindByID loads a plan together with its services.
func (r *TreatmentPlanRepository) FindByID(ctx context.Context, id string) (*models.TreatmentPlan, error) {
	const planQuery = `SELECT id, patient_id, therapist_id, status, created_at, updated_at FROM treatment_plans WHERE id = $1`
	var plan models.TreatmentPlan
	if err := r.db.GetContext(ctx, &plan, planQuery, id); err != nil {
		return nil, err
	}

	const servicesQuery = `SELECT id, treatment_plan_id, service_id, required_sessions, session_duration FROM treatment_plan_services WHERE treatment_plan_id = $1 ORDER BY service_id ASC`
	if err := r.db.SelectContext(ctx, &plan.Services, servicesQuery, id); err != nil {
		return nil, fmt.Errorf("list treatment plan services: %w", err)
	}
	return &plan, nil
}
