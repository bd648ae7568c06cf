package repository

import (
	"context"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/clinic-scheduling-api/internal/models"
)

func TestTreatmentPlanRepositoryFindByIDLoadsServices(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewTreatmentPlanRepository(db)
	now := time.Now()

	mock.ExpectQuery(regexp.QuoteMeta("FROM treatment_plans WHERE id = $1")).
		WithArgs("plan-1").
		WillReturnRows(sqlmock.NewRows([]string{"id", "patient_id", "therapist_id", "status", "created_at", "updated_at"}).
			AddRow("plan-1", "p-1", "t-1", "APPROVED", now, now))
	mock.ExpectQuery(regexp.QuoteMeta("FROM treatment_plan_services WHERE treatment_plan_id = $1")).
		WithArgs("plan-1").
		WillReturnRows(sqlmock.NewRows([]string{"id", "treatment_plan_id", "service_id", "required_sessions", "session_duration"}).
			AddRow("s-1", "plan-1", "svc-physio", 10, 60))

	plan, err := repo.FindByID(context.Background(), "plan-1")
	require.NoError(t, err)
	assert.Equal(t, models.TreatmentPlanStatusApproved, plan.Status)
	require.Len(t, plan.Services, 1)
	assert.Equal(t, 10, plan.Services[0].RequiredSessions)
	assert.NoError(t, mock.ExpectationsWereMet())
}
