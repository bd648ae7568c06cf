package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/clinic-scheduling-api/internal/dto"
	"github.com/noah-isme/clinic-scheduling-api/internal/models"
	appErrors "github.com/noah-isme/clinic-scheduling-api/pkg/errors"
)

const maxBulkRangeDays = 366

type treatmentPlanReader interface {
	FindByID(ctx context.Context, id string) (*models.TreatmentPlan, error)
}

type slotResolver interface {
	Resolve(ctx context.Context, q ResolveQuery) (*dto.Resolution, error)
}

// BulkSchedulerConfig bounds bulk runs.
type BulkSchedulerConfig struct {
	MaxSessions            int
	DefaultMaxTimeShift    int
	DefaultSessionDuration int
}

// BulkScheduler materialises the sessions of an approved treatment plan over a date range.
type BulkScheduler struct {
	plans     treatmentPlanReader
	resolver  slotResolver
	booker    bookingCreator
	validator *validator.Validate
	logger    *zap.Logger
	metrics   *MetricsService
	cfg       BulkSchedulerConfig
}

// NewBulkScheduler wires the scheduler.
func NewBulkScheduler(plans treatmentPlanReader, resolver slotResolver, booker bookingCreator, validate *validator.Validate, logger *zap.Logger, metrics *MetricsService, cfg BulkSchedulerConfig) *BulkScheduler {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.MaxSessions <= 0 {
		cfg.MaxSessions = 200
	}
	if cfg.DefaultMaxTimeShift <= 0 {
		cfg.DefaultMaxTimeShift = 120
	}
	if cfg.DefaultSessionDuration <= 0 {
		cfg.DefaultSessionDuration = 60
	}
	return &BulkScheduler{
		plans:     plans,
		resolver:  resolver,
		booker:    booker,
		validator: validate,
		logger:    logger,
		metrics:   metrics,
		cfg:       cfg,
	}
}

type bulkPair struct {
	date  time.Time
	start int
	raw   string
}

type serviceQuota struct {
	service models.TreatmentPlanService
	created int
}

// Generate books sessions pair by pair. A failing pair is recorded and the run continues.
func (b *BulkScheduler) Generate(ctx context.Context, req dto.BulkScheduleRequest) (*dto.BatchResult, error) {
	if err := b.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid bulk schedule payload")
	}
	startDate, err := models.ParseDate(req.StartDate)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid start date")
	}
	endDate, err := models.ParseDate(req.EndDate)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid end date")
	}
	if endDate.Before(startDate) {
		return nil, appErrors.Clone(appErrors.ErrValidation, "endDate must not be before startDate")
	}
	if endDate.Sub(startDate) > maxBulkRangeDays*24*time.Hour {
		return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("date range must not exceed %d days", maxBulkRangeDays))
	}
	slots := make([]int, 0, len(req.TimeSlots))
	for _, raw := range req.TimeSlots {
		minute, err := models.ParseClock(raw)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid time slot")
		}
		slots = append(slots, minute)
	}

	plan, err := b.plans.FindByID(ctx, req.TreatmentPlanID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "treatment plan not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load treatment plan")
	}
	if plan.Status != models.TreatmentPlanStatusApproved {
		return nil, appErrors.Clone(appErrors.ErrPreconditionFailed, "only approved treatment plans can be scheduled")
	}

	quotas := make([]*serviceQuota, 0, len(plan.Services))
	total := 0
	for _, svc := range plan.Services {
		if svc.RequiredSessions <= 0 {
			continue
		}
		total += svc.RequiredSessions
		quotas = append(quotas, &serviceQuota{service: svc})
	}
	if len(quotas) == 0 {
		return nil, appErrors.Clone(appErrors.ErrPreconditionFailed, "treatment plan has no services to schedule")
	}
	if total > b.cfg.MaxSessions {
		return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("plan requires %d sessions, more than the bulk limit of %d", total, b.cfg.MaxSessions))
	}

	maxShift := b.cfg.DefaultMaxTimeShift
	if req.MaxTimeShift != nil {
		maxShift = *req.MaxTimeShift
	}

	result := &dto.BatchResult{
		TreatmentPlanID: plan.ID,
		CreatedSessions: []models.Booking{},
		Errors:          []dto.BulkSlotError{},
	}

	dates := enumerateDates(startDate, endDate, req.Frequency, req.DaysOfWeek)
	for _, date := range dates {
		for i, start := range slots {
			quota := nextQuota(quotas)
			if quota == nil {
				break
			}
			pair := bulkPair{date: date, start: start, raw: req.TimeSlots[i]}
			booking, slotErr := b.schedulePair(ctx, plan, quota.service, pair, req.AutoResolveConflicts, maxShift)
			if slotErr != nil {
				result.Errors = append(result.Errors, *slotErr)
				b.metrics.RecordBulkSlot("failed")
				continue
			}
			quota.created++
			result.CreatedSessions = append(result.CreatedSessions, *booking)
			b.metrics.RecordBulkSlot("created")
		}
	}

	for _, quota := range quotas {
		result.Services = append(result.Services, dto.BulkServiceSummary{
			ServiceID: quota.service.ServiceID,
			Required:  quota.service.RequiredSessions,
			Created:   quota.created,
			Shortfall: quota.service.RequiredSessions - quota.created,
		})
	}

	b.logger.Info("bulk schedule finished",
		zap.String("treatment_plan_id", plan.ID),
		zap.Int("created", len(result.CreatedSessions)),
		zap.Int("failed", len(result.Errors)),
	)
	return result, nil
}

func (b *BulkScheduler) schedulePair(ctx context.Context, plan *models.TreatmentPlan, svc models.TreatmentPlanService, pair bulkPair, autoResolve bool, maxShift int) (*models.Booking, *dto.BulkSlotError) {
	duration := svc.SessionDuration
	if duration <= 0 {
		duration = b.cfg.DefaultSessionDuration
	}
	slotErr := func(reason, message string) *dto.BulkSlotError {
		return &dto.BulkSlotError{
			ServiceID: svc.ServiceID,
			Date:      pair.date.Format(models.DateLayout),
			TimeSlot:  pair.raw,
			Reason:    reason,
			Message:   message,
		}
	}
	book := func(start int) (*BookingOutcome, error) {
		planID, serviceID := plan.ID, svc.ServiceID
		return b.booker.Create(ctx, NewBooking{
			TherapistID:     plan.TherapistID,
			PatientID:       plan.PatientID,
			TreatmentPlanID: &planID,
			ServiceID:       &serviceID,
			Date:            pair.date,
			StartTime:       start,
			Duration:        duration,
		})
	}

	outcome, err := book(pair.start)
	if err != nil {
		return nil, slotErr(errorCode(err), err.Error())
	}
	if outcome.Booking != nil {
		return outcome.Booking, nil
	}
	if !autoResolve {
		return nil, slotErr(outcome.Check.Reason, "requested slot unavailable")
	}

	resolution, err := b.resolver.Resolve(ctx, ResolveQuery{
		TherapistID:   plan.TherapistID,
		Date:          pair.date,
		PreferredTime: pair.start,
		Duration:      duration,
		MaxTimeShift:  maxShift,
	})
	if err != nil {
		return nil, slotErr(errorCode(err), err.Error())
	}
	if !resolution.Resolved {
		return nil, slotErr(resolution.Reason, fmt.Sprintf("no slot within %d minutes", maxShift))
	}

	outcome, err = book(resolution.StartMinute)
	if err != nil {
		return nil, slotErr(errorCode(err), err.Error())
	}
	if outcome.Booking == nil {
		return nil, slotErr(outcome.Check.Reason, "resolved slot was taken before booking")
	}
	return outcome.Booking, nil
}

func nextQuota(quotas []*serviceQuota) *serviceQuota {
	for _, quota := range quotas {
		if quota.created < quota.service.RequiredSessions {
			return quota
		}
	}
	return nil
}

// enumerateDates steps 1, 7 or 14 days from start. With daysOfWeek set it walks every day and keeps
// matching weekdays in every first (or, for BIWEEKLY, every other) week counted from start.
func enumerateDates(start, end time.Time, frequency string, daysOfWeek []int) []time.Time {
	start, end = models.DateOnly(start), models.DateOnly(end)
	interval := 1
	switch frequency {
	case dto.FrequencyWeekly:
		interval = 7
	case dto.FrequencyBiweekly:
		interval = 14
	}

	var dates []time.Time
	if len(daysOfWeek) == 0 {
		for day := start; !day.After(end); day = day.AddDate(0, 0, interval) {
			dates = append(dates, day)
		}
		return dates
	}

	allowed := make(map[int]bool, len(daysOfWeek))
	for _, d := range daysOfWeek {
		allowed[d] = true
	}
	weekStart, _ := isoWeekBounds(start)
	for day := start; !day.After(end); day = day.AddDate(0, 0, 1) {
		if !allowed[models.ISOWeekday(day)] {
			continue
		}
		if interval == 14 {
			weeks := int(day.Sub(weekStart).Hours()/24) / 7
			if weeks%2 != 0 {
				continue
			}
		}
		dates = append(dates, day)
	}
	return dates
}

func errorCode(err error) string {
	var appErr *appErrors.Error
	if errors.As(err, &appErr) {
		return appErr.Code
	}
	return appErrors.ErrInternal.Code
}
