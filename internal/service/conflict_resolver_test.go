package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/clinic-scheduling-api/internal/dto"
	"github.com/noah-isme/clinic-scheduling-api/internal/models"
)

type scriptedChecker struct {
	accept func(q SlotQuery) bool
	reason string
	calls  []SlotQuery
}

func (c *scriptedChecker) Check(ctx context.Context, q SlotQuery) (*dto.ConflictResult, error) {
	c.calls = append(c.calls, q)
	if c.accept != nil && c.accept(q) {
		return &dto.ConflictResult{Available: true, Reason: ReasonAvailable}, nil
	}
	reason := c.reason
	if reason == "" {
		reason = ReasonConflict
	}
	return &dto.ConflictResult{Reason: reason}, nil
}

func TestConflictResolverPreferredTimeAvailable(t *testing.T) {
	f := newEngineFixture(t)
	f.standardDay(t, "t-1", 8)

	res, err := f.resolver.Resolve(context.Background(), ResolveQuery{TherapistID: "t-1", Date: monday, PreferredTime: 600, Duration: 60, MaxTimeShift: 60})
	require.NoError(t, err)
	assert.True(t, res.Resolved)
	assert.Equal(t, 0, res.ShiftMinutes)
	assert.Equal(t, "10:00", res.StartTime)
	assert.Equal(t, "preferred time available", res.Reason)
	assert.Equal(t, 1, res.Attempts)
	assert.Nil(t, res.Failures)
}

func TestConflictResolverShiftsPastBooking(t *testing.T) {
	f := newEngineFixture(t)
	f.standardDay(t, "t-1", 8)
	f.bookings.seed(models.Booking{TherapistID: "t-1", PatientID: "p", ScheduledDate: monday, ScheduledTime: 600, Duration: 60})

	res, err := f.resolver.Resolve(context.Background(), ResolveQuery{TherapistID: "t-1", Date: monday, PreferredTime: 600, Duration: 60, MaxTimeShift: 120})
	require.NoError(t, err)
	assert.True(t, res.Resolved)
	assert.Equal(t, 60, res.ShiftMinutes)
	assert.Equal(t, "11:00", res.StartTime)
	assert.Equal(t, "2025-01-06", res.Date)
	assert.Equal(t, "shifted +60 minutes", res.Reason)
	assert.Equal(t, 8, res.Attempts)
}

func TestConflictResolverTriesLaterBeforeEarlier(t *testing.T) {
	checker := &scriptedChecker{accept: func(q SlotQuery) bool { return q.StartTime == 585 || q.StartTime == 615 }}
	resolver := NewConflictResolver(checker, nil, nil, ConflictResolverConfig{StepMinutes: 15})

	res, err := resolver.Resolve(context.Background(), ResolveQuery{TherapistID: "t-1", Date: monday, PreferredTime: 600, Duration: 30, MaxTimeShift: 60})
	require.NoError(t, err)
	assert.Equal(t, 15, res.ShiftMinutes)
	require.Len(t, checker.calls, 2)
	assert.Equal(t, 600, checker.calls[0].StartTime)
	assert.Equal(t, 615, checker.calls[1].StartTime)
}

func TestConflictResolverNeverExceedsMaxShift(t *testing.T) {
	f := newEngineFixture(t)
	f.standardDay(t, "t-1", 20)
	f.bookings.seed(
		models.Booking{TherapistID: "t-1", PatientID: "p", ScheduledDate: monday, ScheduledTime: 540, Duration: 90},
		models.Booking{TherapistID: "t-1", PatientID: "p", ScheduledDate: monday, ScheduledTime: 660, Duration: 60},
		models.Booking{TherapistID: "t-1", PatientID: "p", ScheduledDate: monday, ScheduledTime: 840, Duration: 120},
	)

	for preferred := 480; preferred <= 1080; preferred += 20 {
		for _, maxShift := range []int{0, 15, 45, 90, 180} {
			res, err := f.resolver.Resolve(context.Background(), ResolveQuery{TherapistID: "t-1", Date: monday, PreferredTime: preferred, Duration: 45, MaxTimeShift: maxShift})
			require.NoError(t, err)
			if !res.Resolved {
				continue
			}
			shift := res.ShiftMinutes
			if shift < 0 {
				shift = -shift
			}
			assert.LessOrEqual(t, shift, maxShift, "preferred %d max %d", preferred, maxShift)

			check, err := f.detector.Check(context.Background(), SlotQuery{TherapistID: "t-1", Date: monday, StartTime: res.StartMinute, Duration: 45})
			require.NoError(t, err)
			assert.True(t, check.Available, "resolved slot %s must be bookable", res.StartTime)
		}
	}
}

func TestConflictResolverFallsBackToNextDay(t *testing.T) {
	f := newEngineFixture(t)
	f.standardDay(t, "t-1", 1)
	f.bookings.seed(models.Booking{TherapistID: "t-1", PatientID: "p", ScheduledDate: monday, ScheduledTime: 900, Duration: 60})

	res, err := f.resolver.Resolve(context.Background(), ResolveQuery{TherapistID: "t-1", Date: monday, PreferredTime: 600, Duration: 60, MaxTimeShift: 30, AllowDifferentDay: true})
	require.NoError(t, err)
	assert.True(t, res.Resolved)
	assert.Equal(t, 1, res.DayShift)
	assert.Equal(t, "2025-01-07", res.Date)
	assert.Equal(t, "preferred time available on the next day", res.Reason)
}

func TestConflictResolverReportsCapacity(t *testing.T) {
	f := newEngineFixture(t)
	f.standardDay(t, "t-1", 1)
	f.bookings.seed(models.Booking{TherapistID: "t-1", PatientID: "p", ScheduledDate: monday, ScheduledTime: 900, Duration: 60})

	res, err := f.resolver.Resolve(context.Background(), ResolveQuery{TherapistID: "t-1", Date: monday, PreferredTime: 600, Duration: 60, MaxTimeShift: 30})
	require.NoError(t, err)
	assert.False(t, res.Resolved)
	assert.Equal(t, FailureCapacity, res.Reason)
	assert.Equal(t, 5, res.Failures[FailureCapacity])
	assert.Equal(t, 1, res.Attempts)
}

func TestConflictResolverNonWorkingDayIsOutOfRange(t *testing.T) {
	f := newEngineFixture(t)
	f.standardDay(t, "t-1", 8)

	res, err := f.resolver.Resolve(context.Background(), ResolveQuery{TherapistID: "t-1", Date: monday.AddDate(0, 0, 5), PreferredTime: 600, Duration: 60, MaxTimeShift: 30})
	require.NoError(t, err)
	assert.False(t, res.Resolved)
	assert.Equal(t, FailureOutOfRange, res.Reason)
}

func TestConflictResolverSkipsCandidatesPastMidnight(t *testing.T) {
	checker := &scriptedChecker{}
	resolver := NewConflictResolver(checker, nil, nil, ConflictResolverConfig{StepMinutes: 15})

	res, err := resolver.Resolve(context.Background(), ResolveQuery{TherapistID: "t-1", Date: monday, PreferredTime: 1395, Duration: 60, MaxTimeShift: 30})
	require.NoError(t, err)
	assert.False(t, res.Resolved)
	// Offsets 0, +15, +30 end after midnight; -15 and -30 reach the checker.
	assert.Len(t, checker.calls, 2)
	assert.Equal(t, 3, res.Failures[FailureOutOfRange])
	assert.Equal(t, 2, res.Failures[FailureNoSlot])
	assert.Equal(t, FailureOutOfRange, res.Reason)
}

func TestConflictResolverOmittedShiftUsesDefault(t *testing.T) {
	checker := &scriptedChecker{}
	resolver := NewConflictResolver(checker, nil, nil, ConflictResolverConfig{StepMinutes: 15, DefaultMaxTimeShift: 120})

	res, err := resolver.ResolveConflicts(context.Background(), dto.ResolveConflictRequest{TherapistID: "t-1", Date: "2025-01-06", PreferredTime: "10:00", Duration: 60})
	require.NoError(t, err)
	assert.False(t, res.Resolved)
	assert.Equal(t, 17, res.Attempts)
	assert.Equal(t, FailureNoSlot, res.Reason)
}

func TestConflictResolverZeroShiftOnlyAcceptsPreferredTime(t *testing.T) {
	f := newEngineFixture(t)
	f.standardDay(t, "t-1", 8)
	f.bookings.seed(models.Booking{TherapistID: "t-1", PatientID: "p", ScheduledDate: monday, ScheduledTime: 600, Duration: 60})

	res, err := f.resolver.ResolveConflicts(context.Background(), dto.ResolveConflictRequest{
		TherapistID:   "t-1",
		Date:          "2025-01-06",
		PreferredTime: "10:00",
		Duration:      60,
		MaxTimeShift:  intPtr(0),
	})
	require.NoError(t, err)
	assert.False(t, res.Resolved)
	assert.Equal(t, 0, res.ShiftMinutes)
	assert.Equal(t, 1, res.Attempts)
	assert.Equal(t, FailureNoSlot, res.Reason)
}

func TestConflictResolverRejectsOversizedShift(t *testing.T) {
	f := newEngineFixture(t)

	_, err := f.resolver.ResolveConflicts(context.Background(), dto.ResolveConflictRequest{
		TherapistID:   "t-1",
		Date:          "2025-01-06",
		PreferredTime: "10:00",
		Duration:      60,
		MaxTimeShift:  intPtr(721),
	})
	require.Error(t, err)
}
