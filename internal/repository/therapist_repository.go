package repository

import (
	"context"
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/clinic-scheduling-api/internal/models"
)

const therapistColumns = `id, full_name, specialty_ids, active, can_take_consultations, created_at, updated_at`

// TherapistRepository reads therapist records.
type TherapistRepository struct {
	db *sqlx.DB
}

// NewTherapistRepository constructs the repository.
func NewTherapistRepository(db *sqlx.DB) *TherapistRepository {
	return &TherapistRepository{db: db}
}

// FindByID loads a therapist by id.
func (r *TherapistRepository) FindByID(ctx context.Context, id string) (*models.Therapist, error) {
	query := `SELECT ` + therapistColumns + ` FROM therapists WHERE id = $1`
	var therapist models.Therapist
	if err := r.db.GetContext(ctx, &therapist, query, id); err != nil {
		return nil, err
	}
	return &therapist, nil
}

// List returns therapists matching the filter ordered by id.
func (r *TherapistRepository) List(ctx context.Context, filter models.TherapistFilter) ([]models.Therapist, error) {
	var conditions []string
	var args []interface{}

	if filter.SpecialtyID != "" {
		args = append(args, filter.SpecialtyID)
		conditions = append(conditions, fmt.Sprintf("$%d = ANY(specialty_ids)", len(args)))
	}
	if filter.Active != nil {
		args = append(args, *filter.Active)
		conditions = append(conditions, fmt.Sprintf("active = $%d", len(args)))
	}
	if filter.CanTakeConsultations != nil {
		args = append(args, *filter.CanTakeConsultations)
		conditions = append(conditions, fmt.Sprintf("can_take_consultations = $%d", len(args)))
	}

	query := `SELECT ` + therapistColumns + ` FROM therapists`
	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}
	query += " ORDER BY id ASC"

	var therapists []models.Therapist
	if err := r.db.SelectContext(ctx, &therapists, query, args...); err != nil {
		return nil, fmt.Errorf("list therapists: %w", err)
	}
	return therapists, nil
}
