package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/clinic-scheduling-api/internal/dto"
	"github.com/noah-isme/clinic-scheduling-api/internal/models"
	appErrors "github.com/noah-isme/clinic-scheduling-api/pkg/errors"
)

// Availability reasons reported by ConflictResult.Reason.
const (
	ReasonAvailable     = "available"
	ReasonNonWorkingDay = "non-working-day"
	ReasonOutsideHours  = "outside-hours"
	ReasonBreakTime     = "break-time"
	ReasonConflict      = "conflict"
	ReasonCapacity      = "capacity"
)

type windowResolver interface {
	ResolveWindow(ctx context.Context, therapistID string, date time.Time) (*models.Window, error)
}

type activeBookingReader interface {
	ListActiveByTherapistDate(ctx context.Context, therapistID string, date time.Time) ([]models.Booking, error)
}

// SlotQuery is a parsed candidate booking.
type SlotQuery struct {
	TherapistID string
	Date        time.Time
	StartTime   int
	Duration    int
	// IgnoreBookingID leaves one booking out of the occupancy, used when moving that booking.
	IgnoreBookingID string
}

func (q SlotQuery) validate() error {
	switch {
	case q.TherapistID == "":
		return appErrors.Clone(appErrors.ErrValidation, "therapist id is required")
	case q.Date.IsZero():
		return appErrors.Clone(appErrors.ErrValidation, "date is required")
	case q.Duration <= 0:
		return appErrors.Clone(appErrors.ErrValidation, "duration must be positive")
	case q.StartTime < 0 || q.StartTime >= models.MinutesPerDay:
		return appErrors.Clone(appErrors.ErrValidation, "start time must be within the day")
	}
	return nil
}

// ConflictDetectorConfig tunes suggestion output.
type ConflictDetectorConfig struct {
	MaxSuggestions         int
	DefaultSessionDuration int
}

// ConflictDetector decides whether a therapist can take a slot and proposes alternatives.
type ConflictDetector struct {
	calendar        windowResolver
	bookings        activeBookingReader
	validator       *validator.Validate
	logger          *zap.Logger
	metrics         *MetricsService
	maxSuggestions  int
	defaultDuration int
}

// NewConflictDetector wires the detector.
func NewConflictDetector(calendar windowResolver, bookings activeBookingReader, validate *validator.Validate, logger *zap.Logger, metrics *MetricsService, cfg ConflictDetectorConfig) *ConflictDetector {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.MaxSuggestions <= 0 {
		cfg.MaxSuggestions = 5
	}
	if cfg.DefaultSessionDuration <= 0 {
		cfg.DefaultSessionDuration = 60
	}
	return &ConflictDetector{
		calendar:        calendar,
		bookings:        bookings,
		validator:       validate,
		logger:          logger,
		metrics:         metrics,
		maxSuggestions:  cfg.MaxSuggestions,
		defaultDuration: cfg.DefaultSessionDuration,
	}
}

// CheckAvailability validates the request payload and runs Check.
func (d *ConflictDetector) CheckAvailability(ctx context.Context, req dto.CheckAvailabilityRequest) (*dto.ConflictResult, error) {
	if err := d.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid availability payload")
	}
	date, start, err := parseSlot(req.Date, req.StartTime)
	if err != nil {
		return nil, err
	}
	return d.Check(ctx, SlotQuery{TherapistID: req.TherapistID, Date: date, StartTime: start, Duration: req.Duration})
}

// Check evaluates the slot against committed bookings.
func (d *ConflictDetector) Check(ctx context.Context, q SlotQuery) (*dto.ConflictResult, error) {
	return d.Evaluate(ctx, d.bookings, q)
}

// Evaluate runs the availability algorithm reading bookings through reader, which may be transaction scoped.
func (d *ConflictDetector) Evaluate(ctx context.Context, reader activeBookingReader, q SlotQuery) (*dto.ConflictResult, error) {
	if err := q.validate(); err != nil {
		return nil, err
	}
	q.Date = models.DateOnly(q.Date)

	result := &dto.ConflictResult{
		Conflicts:   []models.BookingRef{},
		Suggestions: []dto.SlotSuggestion{},
	}

	window, err := d.calendar.ResolveWindow(ctx, q.TherapistID, q.Date)
	if err != nil {
		if errors.Is(err, appErrors.ErrNotWorkingDay) {
			result.Reason = ReasonNonWorkingDay
			d.metrics.RecordCheck(result.Reason)
			return result, nil
		}
		return nil, err
	}
	result.Window = window

	bookings, err := reader.ListActiveByTherapistDate(ctx, q.TherapistID, q.Date)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load bookings")
	}
	bookings = occupyingBookings(bookings, q.IgnoreBookingID)

	for _, booking := range bookings {
		if booking.OverlapsInterval(q.StartTime, q.Duration) {
			result.Conflicts = append(result.Conflicts, booking.Ref())
		}
	}

	// The daily cap applies to the whole day, so it is tested before anything slot specific.
	switch {
	case window.MaxSessionsPerDay > 0 && len(bookings) >= window.MaxSessionsPerDay:
		result.Reason = ReasonCapacity
	case !window.Contains(q.StartTime, q.Duration):
		result.Reason = ReasonOutsideHours
	case window.IntersectsBreak(q.StartTime, q.Duration):
		result.Reason = ReasonBreakTime
	case len(result.Conflicts) > 0:
		result.Reason = ReasonConflict
	default:
		result.Available = true
		result.Reason = ReasonAvailable
	}

	if !result.Available && result.Reason != ReasonCapacity {
		result.Suggestions = freeSlots(*window, bookings, q.Duration, d.maxSuggestions)
	}

	d.metrics.RecordCheck(result.Reason)
	d.logger.Debug("availability evaluated",
		zap.String("therapist_id", q.TherapistID),
		zap.String("date", q.Date.Format(models.DateLayout)),
		zap.String("start", models.FormatClock(q.StartTime)),
		zap.String("reason", result.Reason),
	)
	return result, nil
}

// AvailableSlots lists every free start time in the therapist's window on a date.
func (d *ConflictDetector) AvailableSlots(ctx context.Context, query dto.AvailableSlotsQuery) (*dto.AvailableSlotsResponse, error) {
	if err := d.validator.Struct(query); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid slot query")
	}
	date, err := models.ParseDate(query.Date)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid date")
	}

	resp := &dto.AvailableSlotsResponse{
		TherapistID: query.TherapistID,
		Date:        date.Format(models.DateLayout),
		Slots:       []dto.SlotSuggestion{},
	}

	window, err := d.calendar.ResolveWindow(ctx, query.TherapistID, date)
	if err != nil {
		if errors.Is(err, appErrors.ErrNotWorkingDay) {
			resp.Reason = ReasonNonWorkingDay
			return resp, nil
		}
		return nil, err
	}

	duration := query.Duration
	if duration <= 0 {
		duration = window.SessionDuration
	}
	if duration <= 0 {
		duration = d.defaultDuration
	}

	bookings, err := d.bookings.ListActiveByTherapistDate(ctx, query.TherapistID, date)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load bookings")
	}
	bookings = occupyingBookings(bookings, "")

	if window.MaxSessionsPerDay > 0 && len(bookings) >= window.MaxSessionsPerDay {
		resp.Reason = ReasonCapacity
		return resp, nil
	}

	resp.Slots = freeSlots(*window, bookings, duration, 0)
	resp.Reason = ReasonAvailable
	return resp, nil
}

// freeSlots scans the window on a grid of sessionDuration+bufferTime from the window start.
// A candidate touching the break realigns the grid to the break end. limit <= 0 means no limit.
func freeSlots(window models.Window, bookings []models.Booking, duration, limit int) []dto.SlotSuggestion {
	slots := []dto.SlotSuggestion{}
	if duration <= 0 {
		return slots
	}
	step := window.SessionDuration + window.BufferTime
	if step <= 0 {
		step = duration
	}

	for start := window.Start; start+duration <= window.End; {
		if window.IntersectsBreak(start, duration) {
			start = *window.BreakEnd
			continue
		}
		if !overlapsAny(bookings, start, duration) {
			slots = append(slots, dto.SlotSuggestion{
				StartTime:   models.FormatClock(start),
				EndTime:     models.FormatClock(start + duration),
				StartMinute: start,
			})
			if limit > 0 && len(slots) >= limit {
				break
			}
		}
		start += step
	}
	return slots
}

func overlapsAny(bookings []models.Booking, start, duration int) bool {
	for _, booking := range bookings {
		if booking.OverlapsInterval(start, duration) {
			return true
		}
	}
	return false
}

func occupyingBookings(bookings []models.Booking, ignoreID string) []models.Booking {
	result := make([]models.Booking, 0, len(bookings))
	for _, booking := range bookings {
		if !booking.Status.IsActive() {
			continue
		}
		if ignoreID != "" && booking.ID == ignoreID {
			continue
		}
		result = append(result, booking)
	}
	return result
}

func parseSlot(rawDate, rawTime string) (time.Time, int, error) {
	date, err := models.ParseDate(rawDate)
	if err != nil {
		return time.Time{}, 0, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid date")
	}
	minute, err := models.ParseClock(rawTime)
	if err != nil {
		return time.Time{}, 0, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid time")
	}
	return date, minute, nil
}

func unavailableError(check *dto.ConflictResult) error {
	if check == nil {
		return appErrors.Clone(appErrors.ErrNoAvailability, "")
	}
	switch check.Reason {
	case ReasonCapacity:
		return appErrors.Clone(appErrors.ErrCapacityExceeded, "therapist has reached the daily session cap")
	case ReasonConflict:
		return appErrors.Clone(appErrors.ErrConflict, fmt.Sprintf("slot overlaps %d active booking(s)", len(check.Conflicts)))
	case ReasonNonWorkingDay:
		return appErrors.Clone(appErrors.ErrNotWorkingDay, "")
	default:
		return appErrors.Clone(appErrors.ErrNoAvailability, fmt.Sprintf("slot unavailable: %s", check.Reason))
	}
}
