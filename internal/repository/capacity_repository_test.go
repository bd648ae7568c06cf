package repository

import (
	"context"
	"database/sql"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/clinic-scheduling-api/internal/models"
)

func TestCapacityRepositoryUpsertAndGetConfig(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewCapacityRepository(db)

	mock.ExpectExec("INSERT INTO capacity_configs").
		WithArgs(sqlmock.AnyArg(), "t-1", 8, 30, 100, 6.0, 30.0, sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))

	cfg := &models.CapacityConfig{TherapistID: "t-1", MaxSessionsPerDay: 8, MaxSessionsPerWeek: 30, MaxSessionsPerMonth: 100, MaxHoursPerDay: 6, MaxHoursPerWeek: 30}
	require.NoError(t, repo.UpsertConfig(context.Background(), cfg))
	assert.NotEmpty(t, cfg.ID)

	now := time.Now()
	mock.ExpectQuery(regexp.QuoteMeta("FROM capacity_configs WHERE therapist_id = $1")).
		WithArgs("t-1").
		WillReturnRows(sqlmock.NewRows([]string{"id", "therapist_id", "max_sessions_per_day", "max_sessions_per_week", "max_sessions_per_month", "max_hours_per_day", "max_hours_per_week", "created_at", "updated_at"}).
			AddRow(cfg.ID, "t-1", 8, 30, 100, 6.0, 30.0, now, now))

	loaded, err := repo.GetConfig(context.Background(), "t-1")
	require.NoError(t, err)
	assert.Equal(t, 8, loaded.MaxSessionsPerDay)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCapacityRepositoryAlertThresholdMissing(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewCapacityRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("FROM capacity_alert_thresholds WHERE therapist_id = $1")).
		WithArgs("t-9").
		WillReturnError(sql.ErrNoRows)

	_, err := repo.GetAlertThreshold(context.Background(), "t-9")
	assert.ErrorIs(t, err, sql.ErrNoRows)

	mock.ExpectExec("INSERT INTO capacity_alert_thresholds").
		WithArgs(sqlmock.AnyArg(), "t-9", 95.0, 85.0, 10.0, sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))
	require.NoError(t, repo.UpsertAlertThreshold(context.Background(), &models.CapacityAlertThreshold{TherapistID: "t-9", CriticalPercent: 95, WarningPercent: 85, UnderutilizedPercent: 10}))
	assert.NoError(t, mock.ExpectationsWereMet())
}
