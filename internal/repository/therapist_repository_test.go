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

func TestTherapistRepositoryListBySpecialty(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewTherapistRepository(db)
	now := time.Now()
	active := true

	rows := sqlmock.NewRows([]string{"id", "full_name", "specialty_ids", "active", "can_take_consultations", "created_at", "updated_at"}).
		AddRow("t-1", "Ana", "{physio,ot}", true, true, now, now).
		AddRow("t-2", "Budi", "{physio}", true, false, now, now)
	mock.ExpectQuery(regexp.QuoteMeta("FROM therapists WHERE $1 = ANY(specialty_ids) AND active = $2 ORDER BY id ASC")).
		WithArgs("physio", true).
		WillReturnRows(rows)

	therapists, err := repo.List(context.Background(), models.TherapistFilter{SpecialtyID: "physio", Active: &active})
	require.NoError(t, err)
	require.Len(t, therapists, 2)
	assert.True(t, therapists[0].HasSpecialty("ot"))
	assert.False(t, therapists[1].CanTakeConsultations)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTherapistRepositoryFindByID(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewTherapistRepository(db)
	now := time.Now()

	mock.ExpectQuery(regexp.QuoteMeta("FROM therapists WHERE id = $1")).
		WithArgs("t-1").
		WillReturnRows(sqlmock.NewRows([]string{"id", "full_name", "specialty_ids", "active", "can_take_consultations", "created_at", "updated_at"}).
			AddRow("t-1", "Ana", "{physio}", true, true, now, now))

	therapist, err := repo.FindByID(context.Background(), "t-1")
	require.NoError(t, err)
	assert.Equal(t, "Ana", therapist.FullName)
	assert.NoError(t, mock.ExpectationsWereMet())
}
