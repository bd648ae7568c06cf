package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/clinic-scheduling-api/internal/dto"
	"github.com/noah-isme/clinic-scheduling-api/internal/models"
	appErrors "github.com/noah-isme/clinic-scheduling-api/pkg/errors"
)

type bookingRangeReader interface {
	ListActive(ctx context.Context, query models.BookingQuery) ([]models.Booking, error)
}

type capacityStore interface {
	GetConfig(ctx context.Context, therapistID string) (*models.CapacityConfig, error)
	UpsertConfig(ctx context.Context, cfg *models.CapacityConfig) error
	GetAlertThreshold(ctx context.Context, therapistID string) (*models.CapacityAlertThreshold, error)
	UpsertAlertThreshold(ctx context.Context, threshold *models.CapacityAlertThreshold) error
}

type therapistLister interface {
	List(ctx context.Context, filter models.TherapistFilter) ([]models.Therapist, error)
}

// CapacityTrackerConfig carries cache and fallback threshold settings.
type CapacityTrackerConfig struct {
	CacheTTL             time.Duration
	CriticalPercent      float64
	WarningPercent       float64
	UnderutilizedPercent float64
}

// CapacityTracker derives workload and utilization from active bookings.
type CapacityTracker struct {
	bookings   bookingRangeReader
	store      capacityStore
	therapists therapistLister
	cache      *CacheService
	validator  *validator.Validate
	logger     *zap.Logger
	cfg        CapacityTrackerConfig
}

// NewCapacityTracker wires the tracker. cache may be nil.
func NewCapacityTracker(bookings bookingRangeReader, store capacityStore, therapists therapistLister, cache *CacheService, validate *validator.Validate, logger *zap.Logger, cfg CapacityTrackerConfig) *CapacityTracker {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.CriticalPercent <= 0 {
		cfg.CriticalPercent = 90
	}
	if cfg.WarningPercent <= 0 {
		cfg.WarningPercent = 80
	}
	if cfg.UnderutilizedPercent <= 0 {
		cfg.UnderutilizedPercent = 20
	}
	return &CapacityTracker{
		bookings:   bookings,
		store:      store,
		therapists: therapists,
		cache:      cache,
		validator:  validate,
		logger:     logger,
		cfg:        cfg,
	}
}

// Workload aggregates active sessions and hours for the day, ISO week and month containing date.
func (t *CapacityTracker) Workload(ctx context.Context, therapistID string, date time.Time) (*models.WorkloadSnapshot, error) {
	if therapistID == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "therapist id is required")
	}
	day := models.DateOnly(date)
	weekStart, weekEnd := isoWeekBounds(day)
	monthStart := time.Date(day.Year(), day.Month(), 1, 0, 0, 0, 0, time.UTC)
	monthEnd := monthStart.AddDate(0, 1, -1)

	from, to := monthStart, monthEnd
	if weekStart.Before(from) {
		from = weekStart
	}
	if weekEnd.After(to) {
		to = weekEnd
	}

	bookings, err := t.bookings.ListActive(ctx, models.BookingQuery{TherapistID: therapistID, From: from, To: to})
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load bookings")
	}

	snapshot := &models.WorkloadSnapshot{TherapistID: therapistID, Date: day}
	for _, booking := range bookings {
		if !booking.Status.IsActive() {
			continue
		}
		scheduled := models.DateOnly(booking.ScheduledDate)
		hours := float64(booking.Duration) / 60
		if scheduled.Equal(day) {
			snapshot.SessionsToday++
			snapshot.HoursToday += hours
		}
		if !scheduled.Before(weekStart) && !scheduled.After(weekEnd) {
			snapshot.SessionsThisWeek++
			snapshot.HoursThisWeek += hours
		}
		if !scheduled.Before(monthStart) && !scheduled.After(monthEnd) {
			snapshot.SessionsThisMonth++
			snapshot.HoursThisMonth += hours
		}
	}
	return snapshot, nil
}

// GetUtilization validates the query and runs Utilization.
func (t *CapacityTracker) GetUtilization(ctx context.Context, query dto.UtilizationQuery) (*models.UtilizationReport, bool, error) {
	if err := t.validator.Struct(query); err != nil {
		return nil, false, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid utilization query")
	}
	date, err := models.ParseDate(query.Date)
	if err != nil {
		return nil, false, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid date")
	}
	window := models.UtilizationWindow(query.Window)
	if window == "" {
		window = models.UtilizationWindowDay
	}

	key := utilizationCacheKey(query.TherapistID, date, window)
	var cached models.UtilizationReport
	if hit, _ := t.cache.Get(ctx, key, &cached); hit {
		return &cached, true, nil
	}

	// A booking write that invalidates while the report is computed bumps the version,
	// so the stale report is not written back.
	versionKey := utilizationVersionKey(query.TherapistID)
	version, versioned := t.cache.Version(ctx, versionKey)

	report, err := t.Utilization(ctx, query.TherapistID, date, window)
	if err != nil {
		return nil, false, err
	}
	if versioned {
		_, _ = t.cache.SetIfVersion(ctx, versionKey, version, key, report, t.cfg.CacheTTL)
	}
	return report, false, nil
}

// Utilization computes the capacity report for a therapist on date.
func (t *CapacityTracker) Utilization(ctx context.Context, therapistID string, date time.Time, window models.UtilizationWindow) (*models.UtilizationReport, error) {
	if !window.Valid() {
		return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unknown utilization window %q", window))
	}
	workload, err := t.Workload(ctx, therapistID, date)
	if err != nil {
		return nil, err
	}
	cfg, err := t.capacityConfig(ctx, therapistID)
	if err != nil {
		return nil, err
	}
	threshold, err := t.alertThreshold(ctx, therapistID)
	if err != nil {
		return nil, err
	}

	breakdown := utilizationBreakdown(*cfg, *workload)
	percent := UtilizationPercent(*cfg, *workload)
	report := &models.UtilizationReport{
		TherapistID:        therapistID,
		Date:               workload.Date,
		Window:             window,
		Workload:           *workload,
		Config:             *cfg,
		UtilizationPercent: percent,
		WindowPercent:      breakdown[string(window)],
		LimitsReached:      limitsReached(*cfg, *workload),
		Breakdown:          breakdown,
	}
	if hasLimits(*cfg) {
		report.Alert = ClassifyUtilization(therapistID, percent, threshold)
	} else {
		report.Alert = models.CapacityAlert{
			TherapistID: therapistID,
			Severity:    models.AlertSeverityNormal,
			Message:     "no capacity limits configured",
		}
	}
	return report, nil
}

// Alerts evaluates every active therapist for date. Normal readings are dropped unless requested.
func (t *CapacityTracker) Alerts(ctx context.Context, query dto.CapacityAlertsQuery) ([]models.CapacityAlert, error) {
	if err := t.validator.Struct(query); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid alerts query")
	}
	date, err := models.ParseDate(query.Date)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid date")
	}

	active := true
	therapists, err := t.therapists.List(ctx, models.TherapistFilter{Active: &active})
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list therapists")
	}

	alerts := make([]models.CapacityAlert, 0, len(therapists))
	for _, therapist := range therapists {
		report, err := t.Utilization(ctx, therapist.ID, date, models.UtilizationWindowDay)
		if err != nil {
			return nil, err
		}
		if report.Alert.Severity == models.AlertSeverityNormal && !query.IncludeNormal {
			continue
		}
		alerts = append(alerts, report.Alert)
	}

	sort.SliceStable(alerts, func(i, j int) bool {
		if alerts[i].UtilizationPercent != alerts[j].UtilizationPercent {
			return alerts[i].UtilizationPercent > alerts[j].UtilizationPercent
		}
		return alerts[i].TherapistID < alerts[j].TherapistID
	})
	return alerts, nil
}

// UpsertConfig stores capacity limits and drops cached utilization for the therapist.
func (t *CapacityTracker) UpsertConfig(ctx context.Context, therapistID string, req dto.UpsertCapacityConfigRequest) (*models.CapacityConfig, error) {
	if therapistID == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "therapist id is required")
	}
	if err := t.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid capacity config payload")
	}
	cfg := &models.CapacityConfig{
		TherapistID:         therapistID,
		MaxSessionsPerDay:   req.MaxSessionsPerDay,
		MaxSessionsPerWeek:  req.MaxSessionsPerWeek,
		MaxSessionsPerMonth: req.MaxSessionsPerMonth,
		MaxHoursPerDay:      req.MaxHoursPerDay,
		MaxHoursPerWeek:     req.MaxHoursPerWeek,
	}
	if err := t.store.UpsertConfig(ctx, cfg); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to save capacity config")
	}
	t.Invalidate(ctx, therapistID)
	return cfg, nil
}

// UpsertAlertThreshold stores alert thresholds and drops cached utilization for the therapist.
func (t *CapacityTracker) UpsertAlertThreshold(ctx context.Context, therapistID string, req dto.UpsertAlertThresholdRequest) (*models.CapacityAlertThreshold, error) {
	if therapistID == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "therapist id is required")
	}
	if err := t.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid alert threshold payload")
	}
	threshold := &models.CapacityAlertThreshold{
		TherapistID:          therapistID,
		CriticalPercent:      req.CriticalPercent,
		WarningPercent:       req.WarningPercent,
		UnderutilizedPercent: req.UnderutilizedPercent,
	}
	if err := t.store.UpsertAlertThreshold(ctx, threshold); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to save alert threshold")
	}
	t.Invalidate(ctx, therapistID)
	return threshold, nil
}

// Invalidate drops cached utilization reports for a therapist.
func (t *CapacityTracker) Invalidate(ctx context.Context, therapistID string) {
	_ = t.cache.InvalidateVersioned(ctx, utilizationVersionKey(therapistID), fmt.Sprintf("capacity:utilization:%s:*", therapistID))
}

func (t *CapacityTracker) capacityConfig(ctx context.Context, therapistID string) (*models.CapacityConfig, error) {
	cfg, err := t.store.GetConfig(ctx, therapistID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return &models.CapacityConfig{TherapistID: therapistID}, nil
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load capacity config")
	}
	return cfg, nil
}

func (t *CapacityTracker) alertThreshold(ctx context.Context, therapistID string) (models.CapacityAlertThreshold, error) {
	fallback := models.CapacityAlertThreshold{
		TherapistID:          therapistID,
		CriticalPercent:      t.cfg.CriticalPercent,
		WarningPercent:       t.cfg.WarningPercent,
		UnderutilizedPercent: t.cfg.UnderutilizedPercent,
	}
	threshold, err := t.store.GetAlertThreshold(ctx, therapistID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return fallback, nil
		}
		return fallback, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load alert threshold")
	}
	return *threshold, nil
}

// UtilizationPercent is max(hoursToday/maxHoursPerDay, sessionsThisWeek/maxSessionsPerWeek) * 100.
// Unset limits are ignored.
func UtilizationPercent(cfg models.CapacityConfig, workload models.WorkloadSnapshot) float64 {
	return math.Max(
		ratio(workload.HoursToday, cfg.MaxHoursPerDay),
		ratio(float64(workload.SessionsThisWeek), float64(cfg.MaxSessionsPerWeek)),
	) * 100
}

// ClassifyUtilization grades a utilization reading against thresholds.
func ClassifyUtilization(therapistID string, percent float64, threshold models.CapacityAlertThreshold) models.CapacityAlert {
	alert := models.CapacityAlert{TherapistID: therapistID, UtilizationPercent: percent}
	switch {
	case percent >= threshold.CriticalPercent:
		alert.Severity = models.AlertSeverityCritical
		alert.Type = models.AlertTypeCapacityExceeded
		alert.Message = fmt.Sprintf("utilization %.1f%% is at or above the critical threshold of %.0f%%", percent, threshold.CriticalPercent)
	case percent >= threshold.WarningPercent:
		alert.Severity = models.AlertSeverityWarning
		alert.Type = models.AlertTypeWorkloadHigh
		alert.Message = fmt.Sprintf("utilization %.1f%% is at or above the warning threshold of %.0f%%", percent, threshold.WarningPercent)
	case percent < threshold.UnderutilizedPercent:
		alert.Severity = models.AlertSeverityInfo
		alert.Type = models.AlertTypeUnderutilized
		alert.Message = fmt.Sprintf("utilization %.1f%% is below %.0f%%", percent, threshold.UnderutilizedPercent)
	default:
		alert.Severity = models.AlertSeverityNormal
		alert.Message = fmt.Sprintf("utilization %.1f%% is within normal range", percent)
	}
	return alert
}

func utilizationBreakdown(cfg models.CapacityConfig, w models.WorkloadSnapshot) map[string]float64 {
	return map[string]float64{
		string(models.UtilizationWindowDay): math.Max(
			ratio(w.HoursToday, cfg.MaxHoursPerDay),
			ratio(float64(w.SessionsToday), float64(cfg.MaxSessionsPerDay)),
		) * 100,
		string(models.UtilizationWindowWeek): math.Max(
			ratio(w.HoursThisWeek, cfg.MaxHoursPerWeek),
			ratio(float64(w.SessionsThisWeek), float64(cfg.MaxSessionsPerWeek)),
		) * 100,
		string(models.UtilizationWindowMonth): ratio(float64(w.SessionsThisMonth), float64(cfg.MaxSessionsPerMonth)) * 100,
	}
}

func limitsReached(cfg models.CapacityConfig, w models.WorkloadSnapshot) []string {
	var reached []string
	if cfg.MaxSessionsPerDay > 0 && w.SessionsToday >= cfg.MaxSessionsPerDay {
		reached = append(reached, "sessions_per_day")
	}
	if cfg.MaxSessionsPerWeek > 0 && w.SessionsThisWeek >= cfg.MaxSessionsPerWeek {
		reached = append(reached, "sessions_per_week")
	}
	if cfg.MaxSessionsPerMonth > 0 && w.SessionsThisMonth >= cfg.MaxSessionsPerMonth {
		reached = append(reached, "sessions_per_month")
	}
	if cfg.MaxHoursPerDay > 0 && w.HoursToday >= cfg.MaxHoursPerDay {
		reached = append(reached, "hours_per_day")
	}
	if cfg.MaxHoursPerWeek > 0 && w.HoursThisWeek >= cfg.MaxHoursPerWeek {
		reached = append(reached, "hours_per_week")
	}
	return reached
}

func hasLimits(cfg models.CapacityConfig) bool {
	return cfg.MaxHoursPerDay > 0 || cfg.MaxSessionsPerWeek > 0
}

func ratio(value, limit float64) float64 {
	if limit <= 0 {
		return 0
	}
	return value / limit
}

func isoWeekBounds(day time.Time) (time.Time, time.Time) {
	start := day.AddDate(0, 0, -(models.ISOWeekday(day) - 1))
	return start, start.AddDate(0, 0, 6)
}

func utilizationVersionKey(therapistID string) string {
	return "capacity:utilization-version:" + therapistID
}

func utilizationCacheKey(therapistID string, date time.Time, window models.UtilizationWindow) string {
	return fmt.Sprintf("capacity:utilization:%s:%s:%s", therapistID, models.DateOnly(date).Format(models.DateLayout), window)
}
