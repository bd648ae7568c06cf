package service

import (
	"context"
	stderrors "errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/clinic-scheduling-api/internal/dto"
	"github.com/noah-isme/clinic-scheduling-api/internal/models"
	appErrors "github.com/noah-isme/clinic-scheduling-api/pkg/errors"
)

func suggestionTimes(suggestions []dto.SlotSuggestion) []string {
	times := make([]string, 0, len(suggestions))
	for _, s := range suggestions {
		times = append(times, s.StartTime)
	}
	return times
}

func TestConflictDetectorBreakTimeSuggestsAroundBreak(t *testing.T) {
	f := newEngineFixture(t)
	f.standardDay(t, "t-1", 8)

	result, err := f.detector.CheckAvailability(context.Background(), dto.CheckAvailabilityRequest{
		TherapistID: "t-1", Date: "2025-01-06", StartTime: "12:30", Duration: 60,
	})
	require.NoError(t, err)
	assert.False(t, result.Available)
	assert.Equal(t, ReasonBreakTime, result.Reason)
	assert.Equal(t, []string{"09:00", "10:15", "13:00", "14:15", "15:30"}, suggestionTimes(result.Suggestions))
	for _, s := range result.Suggestions {
		assert.False(t, models.Overlaps(s.StartMinute, s.StartMinute+60, 720, 780), "suggestion %s touches the break", s.StartTime)
	}
}

func TestConflictDetectorCapacityWinsOverTime(t *testing.T) {
	f := newEngineFixture(t)
	f.standardDay(t, "t-1", 8)
	for i := 0; i < 8; i++ {
		f.bookings.seed(models.Booking{TherapistID: "t-1", PatientID: "p", ScheduledDate: monday, ScheduledTime: 540 + i*30, Duration: 30})
	}

	for _, start := range []int{540, 720, 1000, 1200} {
		result, err := f.detector.Check(context.Background(), SlotQuery{TherapistID: "t-1", Date: monday, StartTime: start, Duration: 60})
		require.NoError(t, err)
		assert.False(t, result.Available)
		assert.Equal(t, ReasonCapacity, result.Reason, "start %d", start)
		assert.Empty(t, result.Suggestions)
	}
}

func TestConflictDetectorCancelledBookingsDoNotCount(t *testing.T) {
	f := newEngineFixture(t)
	f.standardDay(t, "t-1", 1)
	f.bookings.seed(models.Booking{TherapistID: "t-1", PatientID: "p", ScheduledDate: monday, ScheduledTime: 540, Duration: 60, Status: models.BookingStatusCancelled})

	result, err := f.detector.Check(context.Background(), SlotQuery{TherapistID: "t-1", Date: monday, StartTime: 540, Duration: 60})
	require.NoError(t, err)
	assert.True(t, result.Available)
	assert.Equal(t, ReasonAvailable, result.Reason)
}

func TestConflictDetectorReportsOverlappingBookings(t *testing.T) {
	f := newEngineFixture(t)
	f.standardDay(t, "t-1", 8)
	f.bookings.seed(models.Booking{ID: "b-9", TherapistID: "t-1", PatientID: "p-9", ScheduledDate: monday, ScheduledTime: 540, Duration: 60})

	result, err := f.detector.Check(context.Background(), SlotQuery{TherapistID: "t-1", Date: monday, StartTime: 570, Duration: 60})
	require.NoError(t, err)
	assert.False(t, result.Available)
	assert.Equal(t, ReasonConflict, result.Reason)
	require.Len(t, result.Conflicts, 1)
	assert.Equal(t, "b-9", result.Conflicts[0].ID)
	assert.Equal(t, "09:00", result.Conflicts[0].StartTime)
	assert.NotContains(t, suggestionTimes(result.Suggestions), "09:00")
	assert.Equal(t, "10:15", result.Suggestions[0].StartTime)
}

func TestConflictDetectorAdjacentBookingIsNotAConflict(t *testing.T) {
	f := newEngineFixture(t)
	f.standardDay(t, "t-1", 8)
	f.bookings.seed(models.Booking{TherapistID: "t-1", PatientID: "p", ScheduledDate: monday, ScheduledTime: 540, Duration: 60})

	result, err := f.detector.Check(context.Background(), SlotQuery{TherapistID: "t-1", Date: monday, StartTime: 600, Duration: 60})
	require.NoError(t, err)
	assert.True(t, result.Available)
}

func TestConflictDetectorOutsideHours(t *testing.T) {
	f := newEngineFixture(t)
	f.standardDay(t, "t-1", 8)

	result, err := f.detector.Check(context.Background(), SlotQuery{TherapistID: "t-1", Date: monday, StartTime: 990, Duration: 60})
	require.NoError(t, err)
	assert.Equal(t, ReasonOutsideHours, result.Reason)
	assert.NotEmpty(t, result.Suggestions)
}

func TestConflictDetectorNonWorkingDay(t *testing.T) {
	f := newEngineFixture(t)
	f.standardDay(t, "t-1", 8)

	result, err := f.detector.Check(context.Background(), SlotQuery{TherapistID: "t-1", Date: monday.AddDate(0, 0, 6), StartTime: 600, Duration: 60})
	require.NoError(t, err)
	assert.False(t, result.Available)
	assert.Equal(t, ReasonNonWorkingDay, result.Reason)
	assert.Empty(t, result.Suggestions)
	assert.Nil(t, result.Window)
}

func TestConflictDetectorIsIdempotent(t *testing.T) {
	f := newEngineFixture(t)
	f.standardDay(t, "t-1", 8)
	f.bookings.seed(models.Booking{ID: "b-1", TherapistID: "t-1", PatientID: "p", ScheduledDate: monday, ScheduledTime: 600, Duration: 60})

	q := SlotQuery{TherapistID: "t-1", Date: monday, StartTime: 630, Duration: 45}
	first, err := f.detector.Check(context.Background(), q)
	require.NoError(t, err)
	second, err := f.detector.Check(context.Background(), q)
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestConflictDetectorIgnoresMovingBooking(t *testing.T) {
	f := newEngineFixture(t)
	f.standardDay(t, "t-1", 1)
	f.bookings.seed(models.Booking{ID: "b-1", TherapistID: "t-1", PatientID: "p", ScheduledDate: monday, ScheduledTime: 600, Duration: 60})

	result, err := f.detector.Check(context.Background(), SlotQuery{TherapistID: "t-1", Date: monday, StartTime: 630, Duration: 60, IgnoreBookingID: "b-1"})
	require.NoError(t, err)
	assert.True(t, result.Available)
}

func TestConflictDetectorRejectsInvalidPayload(t *testing.T) {
	f := newEngineFixture(t)

	_, err := f.detector.CheckAvailability(context.Background(), dto.CheckAvailabilityRequest{TherapistID: "t-1", Date: "06-01-2025", StartTime: "09:00", Duration: 60})
	require.Error(t, err)
	assert.True(t, stderrors.Is(err, appErrors.ErrValidation))

	_, err = f.detector.Check(context.Background(), SlotQuery{TherapistID: "t-1", Date: monday, StartTime: 600, Duration: 0})
	assert.True(t, stderrors.Is(err, appErrors.ErrValidation))
}

func TestConflictDetectorAvailableSlots(t *testing.T) {
	f := newEngineFixture(t)
	f.standardDay(t, "t-1", 8)
	f.bookings.seed(models.Booking{TherapistID: "t-1", PatientID: "p", ScheduledDate: monday, ScheduledTime: 780, Duration: 60})

	resp, err := f.detector.AvailableSlots(context.Background(), dto.AvailableSlotsQuery{TherapistID: "t-1", Date: "2025-01-06"})
	require.NoError(t, err)
	assert.Equal(t, ReasonAvailable, resp.Reason)
	assert.Equal(t, []string{"09:00", "10:15", "14:15", "15:30"}, suggestionTimes(resp.Slots))
}

func TestConflictDetectorAvailableSlotsOnDayOff(t *testing.T) {
	f := newEngineFixture(t)
	f.standardDay(t, "t-1", 8)

	resp, err := f.detector.AvailableSlots(context.Background(), dto.AvailableSlotsQuery{TherapistID: "t-1", Date: "2025-01-11"})
	require.NoError(t, err)
	assert.Equal(t, ReasonNonWorkingDay, resp.Reason)
	assert.Empty(t, resp.Slots)
}

func TestFreeSlotsWithoutBufferFallsBackToDuration(t *testing.T) {
	window := models.Window{Start: 480, End: 660}
	slots := freeSlots(window, nil, 30, 0)
	assert.Equal(t, []string{"08:00", "08:30", "09:00", "09:30", "10:00", "10:30"}, suggestionTimes(slots))
}

func TestUnavailableErrorMapsReasons(t *testing.T) {
	cases := map[string]*appErrors.Error{
		ReasonCapacity:      appErrors.ErrCapacityExceeded,
		ReasonConflict:      appErrors.ErrConflict,
		ReasonNonWorkingDay: appErrors.ErrNotWorkingDay,
		ReasonBreakTime:     appErrors.ErrNoAvailability,
		ReasonOutsideHours:  appErrors.ErrNoAvailability,
	}
	for reason, want := range cases {
		err := unavailableError(&dto.ConflictResult{Reason: reason})
		assert.True(t, stderrors.Is(err, want), reason)
	}
}
