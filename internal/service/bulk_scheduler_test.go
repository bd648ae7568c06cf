package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/clinic-scheduling-api/internal/dto"
	"github.com/noah-isme/clinic-scheduling-api/internal/models"
	appErrors "github.com/noah-isme/clinic-scheduling-api/pkg/errors"
)

func approvedPlan(services ...models.TreatmentPlanService) models.TreatmentPlan {
	return models.TreatmentPlan{ID: "plan-1", PatientID: "p-1", TherapistID: "t-1", Status: models.TreatmentPlanStatusApproved, Services: services}
}

func weeklyRequest() dto.BulkScheduleRequest {
	return dto.BulkScheduleRequest{
		TreatmentPlanID: "plan-1",
		StartDate:       "2025-01-06",
		EndDate:         "2025-03-10",
		Frequency:       dto.FrequencyWeekly,
		TimeSlots:       []string{"10:00"},
	}
}

func TestBulkSchedulerPartialFailure(t *testing.T) {
	f := newEngineFixture(t)
	f.standardDay(t, "t-1", 8)
	f.plans.plans["plan-1"] = approvedPlan(models.TreatmentPlanService{ServiceID: "svc-1", RequiredSessions: 10, SessionDuration: 60})
	for _, week := range []int{1, 3, 5, 7} {
		f.bookings.seed(session("t-1", monday.AddDate(0, 0, 7*week), 600, 60))
	}

	result, err := f.bulk.Generate(context.Background(), weeklyRequest())
	require.NoError(t, err)
	assert.Len(t, result.CreatedSessions, 6)
	assert.Len(t, result.Errors, 4)

	start, end := monday, time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC)
	seen := map[string]bool{}
	for _, booking := range result.CreatedSessions {
		key := booking.ScheduledDate.Format(models.DateLayout) + " " + models.FormatClock(booking.ScheduledTime)
		assert.False(t, seen[key], "duplicate session %s", key)
		seen[key] = true
		assert.False(t, booking.ScheduledDate.Before(start) || booking.ScheduledDate.After(end), "session %s out of range", key)
		require.NotNil(t, booking.TreatmentPlanID)
		assert.Equal(t, "plan-1", *booking.TreatmentPlanID)
	}
	for _, slotErr := range result.Errors {
		assert.Equal(t, ReasonConflict, slotErr.Reason)
		assert.Equal(t, "10:00", slotErr.TimeSlot)
	}
	require.Len(t, result.Services, 1)
	assert.Equal(t, dto.BulkServiceSummary{ServiceID: "svc-1", Required: 10, Created: 6, Shortfall: 4}, result.Services[0])
}

func TestBulkSchedulerAutoResolvesWithinShift(t *testing.T) {
	f := newEngineFixture(t)
	f.standardDay(t, "t-1", 8)
	f.plans.plans["plan-1"] = approvedPlan(models.TreatmentPlanService{ServiceID: "svc-1", RequiredSessions: 10, SessionDuration: 60})
	for _, week := range []int{1, 3} {
		f.bookings.seed(session("t-1", monday.AddDate(0, 0, 7*week), 600, 60))
	}

	req := weeklyRequest()
	req.AutoResolveConflicts = true
	req.MaxTimeShift = intPtr(60)
	result, err := f.bulk.Generate(context.Background(), req)
	require.NoError(t, err)
	assert.Len(t, result.CreatedSessions, 10)
	assert.Empty(t, result.Errors)

	moved := 0
	for _, booking := range result.CreatedSessions {
		if booking.ScheduledTime != 600 {
			assert.Equal(t, 660, booking.ScheduledTime)
			moved++
		}
	}
	assert.Equal(t, 2, moved)
}

func TestBulkSchedulerZeroShiftKeepsRequestedSlots(t *testing.T) {
	f := newEngineFixture(t)
	f.standardDay(t, "t-1", 8)
	f.plans.plans["plan-1"] = approvedPlan(models.TreatmentPlanService{ServiceID: "svc-1", RequiredSessions: 10, SessionDuration: 60})
	for _, week := range []int{1, 3} {
		f.bookings.seed(session("t-1", monday.AddDate(0, 0, 7*week), 600, 60))
	}

	req := weeklyRequest()
	req.AutoResolveConflicts = true
	req.MaxTimeShift = intPtr(0)
	result, err := f.bulk.Generate(context.Background(), req)
	require.NoError(t, err)
	assert.Len(t, result.CreatedSessions, 8)
	assert.Len(t, result.Errors, 2)
	for _, booking := range result.CreatedSessions {
		assert.Equal(t, 600, booking.ScheduledTime)
	}
}

func TestBulkSchedulerStopsAtQuotaAndSharesPairs(t *testing.T) {
	f := newEngineFixture(t)
	f.standardDay(t, "t-1", 8)
	f.plans.plans["plan-1"] = approvedPlan(
		models.TreatmentPlanService{ServiceID: "svc-a", RequiredSessions: 2, SessionDuration: 45},
		models.TreatmentPlanService{ServiceID: "svc-b", RequiredSessions: 1, SessionDuration: 30},
	)

	result, err := f.bulk.Generate(context.Background(), dto.BulkScheduleRequest{
		TreatmentPlanID: "plan-1",
		StartDate:       "2025-01-06",
		EndDate:         "2025-01-10",
		Frequency:       dto.FrequencyDaily,
		TimeSlots:       []string{"09:00", "14:00"},
	})
	require.NoError(t, err)
	require.Len(t, result.CreatedSessions, 3)
	assert.Equal(t, "svc-a", *result.CreatedSessions[0].ServiceID)
	assert.Equal(t, "svc-a", *result.CreatedSessions[1].ServiceID)
	assert.Equal(t, "svc-b", *result.CreatedSessions[2].ServiceID)
	assert.Equal(t, 30, result.CreatedSessions[2].Duration)
	assert.Equal(t, "2025-01-07", result.CreatedSessions[2].ScheduledDate.Format(models.DateLayout))
	for _, summary := range result.Services {
		assert.Zero(t, summary.Shortfall)
	}
}

func TestBulkSchedulerRecordsNonWorkingDays(t *testing.T) {
	f := newEngineFixture(t)
	f.standardDay(t, "t-1", 8)
	f.plans.plans["plan-1"] = approvedPlan(models.TreatmentPlanService{ServiceID: "svc-1", RequiredSessions: 7, SessionDuration: 60})

	result, err := f.bulk.Generate(context.Background(), dto.BulkScheduleRequest{
		TreatmentPlanID: "plan-1",
		StartDate:       "2025-01-06",
		EndDate:         "2025-01-12",
		Frequency:       dto.FrequencyDaily,
		TimeSlots:       []string{"09:00"},
	})
	require.NoError(t, err)
	assert.Len(t, result.CreatedSessions, 5)
	require.Len(t, result.Errors, 2)
	assert.Equal(t, ReasonNonWorkingDay, result.Errors[0].Reason)
	assert.Equal(t, "2025-01-11", result.Errors[0].Date)
}

func TestBulkSchedulerPlanPreconditions(t *testing.T) {
	f := newEngineFixture(t)
	draft := approvedPlan(models.TreatmentPlanService{ServiceID: "svc-1", RequiredSessions: 2})
	draft.Status = models.TreatmentPlanStatusDraft
	f.plans.plans["plan-1"] = draft
	f.plans.plans["plan-2"] = approvedPlan()
	huge := approvedPlan(models.TreatmentPlanService{ServiceID: "svc-1", RequiredSessions: 500})
	huge.ID = "plan-3"
	f.plans.plans["plan-3"] = huge

	req := weeklyRequest()
	_, err := f.bulk.Generate(context.Background(), req)
	assert.ErrorIs(t, err, appErrors.ErrPreconditionFailed)

	req.TreatmentPlanID = "plan-2"
	_, err = f.bulk.Generate(context.Background(), req)
	assert.ErrorIs(t, err, appErrors.ErrPreconditionFailed)

	req.TreatmentPlanID = "plan-3"
	_, err = f.bulk.Generate(context.Background(), req)
	assert.ErrorIs(t, err, appErrors.ErrValidation)

	req.TreatmentPlanID = "missing"
	_, err = f.bulk.Generate(context.Background(), req)
	assert.ErrorIs(t, err, appErrors.ErrNotFound)
}

func TestBulkSchedulerRejectsBadRange(t *testing.T) {
	f := newEngineFixture(t)

	req := weeklyRequest()
	req.EndDate = "2025-01-01"
	_, err := f.bulk.Generate(context.Background(), req)
	assert.ErrorIs(t, err, appErrors.ErrValidation)

	req = weeklyRequest()
	req.EndDate = "2026-06-01"
	_, err = f.bulk.Generate(context.Background(), req)
	assert.ErrorIs(t, err, appErrors.ErrValidation)

	req = weeklyRequest()
	req.DaysOfWeek = []int{8}
	_, err = f.bulk.Generate(context.Background(), req)
	assert.ErrorIs(t, err, appErrors.ErrValidation)
}

func formatDates(dates []time.Time) []string {
	out := make([]string, 0, len(dates))
	for _, d := range dates {
		out = append(out, d.Format(models.DateLayout))
	}
	return out
}

func TestEnumerateDates(t *testing.T) {
	end := time.Date(2025, 1, 26, 0, 0, 0, 0, time.UTC)

	assert.Equal(t, []string{"2025-01-06", "2025-01-13", "2025-01-20"},
		formatDates(enumerateDates(monday, end, dto.FrequencyWeekly, nil)))
	assert.Equal(t, []string{"2025-01-06", "2025-01-20"},
		formatDates(enumerateDates(monday, end, dto.FrequencyBiweekly, nil)))
	assert.Equal(t, []string{"2025-01-06", "2025-01-08", "2025-01-13", "2025-01-15", "2025-01-20", "2025-01-22"},
		formatDates(enumerateDates(monday, end, dto.FrequencyWeekly, []int{1, 3})))
	assert.Equal(t, []string{"2025-01-06", "2025-01-08", "2025-01-20", "2025-01-22"},
		formatDates(enumerateDates(monday, end, dto.FrequencyBiweekly, []int{3, 1})))
	assert.Len(t, enumerateDates(monday, end, dto.FrequencyDaily, nil), 21)
}
