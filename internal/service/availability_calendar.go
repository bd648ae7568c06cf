package service

import (
	"context"
	"fmt"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/clinic-scheduling-api/internal/models"
	appErrors "github.com/noah-isme/clinic-scheduling-api/pkg/errors"
)

type scheduleConfigReader interface {
	ListApplicable(ctx context.Context, query models.ScheduleConfigQuery) ([]models.ScheduleConfig, error)
}

// AvailabilityCalendar resolves the effective working window of a therapist on a date.
type AvailabilityCalendar struct {
	configs scheduleConfigReader
	logger  *zap.Logger
}

// NewAvailabilityCalendar constructs the calendar.
func NewAvailabilityCalendar(configs scheduleConfigReader, logger *zap.Logger) *AvailabilityCalendar {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AvailabilityCalendar{configs: configs, logger: logger}
}

// ResolveWindow returns the working window for therapistID on date, or NOT_WORKING_DAY.
func (c *AvailabilityCalendar) ResolveWindow(ctx context.Context, therapistID string, date time.Time) (*models.Window, error) {
	if therapistID == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "therapist id is required")
	}
	if date.IsZero() {
		return nil, appErrors.Clone(appErrors.ErrValidation, "date is required")
	}

	day := models.DateOnly(date)
	weekday := models.ISOWeekday(day)
	configs, err := c.configs.ListApplicable(ctx, models.ScheduleConfigQuery{TherapistID: therapistID, DayOfWeek: weekday, Date: day})
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load schedule configs")
	}

	candidates := make([]models.ScheduleConfig, 0, len(configs))
	for _, cfg := range configs {
		if cfg.TherapistID != therapistID || cfg.DayOfWeek != weekday || !cfg.Covers(day) {
			continue
		}
		if !cfg.Valid() {
			c.logger.Warn("skipping invalid schedule config",
				zap.String("config_id", cfg.ID),
				zap.String("therapist_id", therapistID),
				zap.Int("start_minute", cfg.StartTime),
				zap.Int("end_minute", cfg.EndTime),
			)
			continue
		}
		candidates = append(candidates, cfg)
	}

	chosen, ok := mostSpecificConfig(candidates)
	if !ok || !chosen.IsWorkingDay {
		return nil, appErrors.Clone(appErrors.ErrNotWorkingDay, fmt.Sprintf("therapist %s does not work on %s", therapistID, day.Format(models.DateLayout)))
	}

	return &models.Window{
		TherapistID:       therapistID,
		Date:              day,
		ConfigID:          chosen.ID,
		Start:             chosen.StartTime,
		End:               chosen.EndTime,
		BreakStart:        chosen.BreakStart,
		BreakEnd:          chosen.BreakEnd,
		SessionDuration:   chosen.SessionDuration,
		BufferTime:        chosen.BufferTime,
		MaxSessionsPerDay: chosen.MaxSessionsPerDay,
	}, nil
}

// mostSpecificConfig prefers one-off overrides, then the latest effective date, then the latest update.
func mostSpecificConfig(configs []models.ScheduleConfig) (models.ScheduleConfig, bool) {
	if len(configs) == 0 {
		return models.ScheduleConfig{}, false
	}
	sorted := append([]models.ScheduleConfig(nil), configs...)
	sort.SliceStable(sorted, func(i, j int) bool {
		a, b := sorted[i], sorted[j]
		if a.IsRecurring != b.IsRecurring {
			return !a.IsRecurring
		}
		if !a.EffectiveDate.Equal(b.EffectiveDate) {
			return a.EffectiveDate.After(b.EffectiveDate)
		}
		if !a.UpdatedAt.Equal(b.UpdatedAt) {
			return a.UpdatedAt.After(b.UpdatedAt)
		}
		return a.ID < b.ID
	})
	return sorted[0], true
}
