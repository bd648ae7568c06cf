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
	"github.com/noah-isme/clinic-scheduling-api/internal/repository"
	appErrors "github.com/noah-isme/clinic-scheduling-api/pkg/errors"
	"github.com/noah-isme/clinic-scheduling-api/pkg/events"
)

type bookingStore interface {
	FindByID(ctx context.Context, id string) (*models.Booking, error)
	RunLocked(ctx context.Context, keys []models.LockKey, fn func(tx repository.BookingTx) error) error
}

type slotEvaluator interface {
	Evaluate(ctx context.Context, reader activeBookingReader, q SlotQuery) (*dto.ConflictResult, error)
}

type bookingEventPublisher interface {
	Publish(ctx context.Context, event events.BookingEvent) error
}

type utilizationInvalidator interface {
	Invalidate(ctx context.Context, therapistID string)
}

// NewBooking is a parsed booking request.
type NewBooking struct {
	TherapistID     string
	PatientID       string
	TreatmentPlanID *string
	ServiceID       *string
	Date            time.Time
	StartTime       int
	Duration        int
}

// BookingOutcome reports the availability check behind a write. Booking is nil when the slot was refused.
type BookingOutcome struct {
	Booking *models.Booking
	Check   *dto.ConflictResult
}

// BookingServiceConfig tunes write retries.
type BookingServiceConfig struct {
	WriteRetries int
}

// BookingService performs availability check and write as one locked unit of work.
type BookingService struct {
	store     bookingStore
	detector  slotEvaluator
	publisher bookingEventPublisher
	capacity  utilizationInvalidator
	metrics   *MetricsService
	validator *validator.Validate
	logger    *zap.Logger
	retries   int
}

// NewBookingService wires the booking service. publisher and capacity may be nil.
func NewBookingService(
	store bookingStore,
	detector slotEvaluator,
	publisher bookingEventPublisher,
	capacity utilizationInvalidator,
	metrics *MetricsService,
	validate *validator.Validate,
	logger *zap.Logger,
	cfg BookingServiceConfig,
) *BookingService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.WriteRetries < 0 {
		cfg.WriteRetries = 0
	}
	return &BookingService{
		store:     store,
		detector:  detector,
		publisher: publisher,
		capacity:  capacity,
		metrics:   metrics,
		validator: validate,
		logger:    logger,
		retries:   cfg.WriteRetries,
	}
}

// Book validates the payload and creates the booking, turning a refused slot into a typed error.
func (s *BookingService) Book(ctx context.Context, req dto.BookSessionRequest) (*models.Booking, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid booking payload")
	}
	date, start, err := parseSlot(req.Date, req.StartTime)
	if err != nil {
		return nil, err
	}
	outcome, err := s.Create(ctx, NewBooking{
		TherapistID:     req.TherapistID,
		PatientID:       req.PatientID,
		TreatmentPlanID: optionalString(req.TreatmentPlanID),
		ServiceID:       optionalString(req.ServiceID),
		Date:            date,
		StartTime:       start,
		Duration:        req.Duration,
	})
	if err != nil {
		return nil, err
	}
	if outcome.Booking == nil {
		return nil, unavailableError(outcome.Check)
	}
	return outcome.Booking, nil
}

// Create checks and inserts a booking under the (therapist, date) lock.
func (s *BookingService) Create(ctx context.Context, nb NewBooking) (*BookingOutcome, error) {
	if nb.PatientID == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "patient id is required")
	}
	query := SlotQuery{TherapistID: nb.TherapistID, Date: nb.Date, StartTime: nb.StartTime, Duration: nb.Duration}
	if err := query.validate(); err != nil {
		return nil, err
	}
	day := models.DateOnly(nb.Date)

	var outcome *BookingOutcome
	err := s.withRetry(ctx, "create", func() error {
		attempt := &BookingOutcome{}
		err := s.store.RunLocked(ctx, []models.LockKey{{TherapistID: nb.TherapistID, Date: day}}, func(tx repository.BookingTx) error {
			check, err := s.detector.Evaluate(ctx, tx, query)
			if err != nil {
				return err
			}
			attempt.Check = check
			if !check.Available {
				return nil
			}
			booking := &models.Booking{
				TherapistID:     nb.TherapistID,
				PatientID:       nb.PatientID,
				TreatmentPlanID: nb.TreatmentPlanID,
				ServiceID:       nb.ServiceID,
				ScheduledDate:   day,
				ScheduledTime:   nb.StartTime,
				Duration:        nb.Duration,
				Status:          models.BookingStatusScheduled,
			}
			if err := tx.Insert(ctx, booking); err != nil {
				return err
			}
			attempt.Booking = booking
			return nil
		})
		if err == nil {
			outcome = attempt
		}
		return err
	})
	if err != nil {
		return nil, err
	}

	if outcome.Booking == nil {
		s.metrics.RecordBooking(BookingOutcomeRejected)
		return outcome, nil
	}

	s.metrics.RecordBooking(BookingOutcomeCreated)
	s.afterWrite(ctx, outcome.Booking.TherapistID)
	s.publish(ctx, bookingEvent(events.TypeBookingCreated, *outcome.Booking, "", ""))
	s.logger.Info("booking created",
		zap.String("booking_id", outcome.Booking.ID),
		zap.String("therapist_id", outcome.Booking.TherapistID),
		zap.String("date", day.Format(models.DateLayout)),
		zap.String("start", models.FormatClock(outcome.Booking.ScheduledTime)),
	)
	return outcome, nil
}

// UpdateStatus moves a booking along the status table.
func (s *BookingService) UpdateStatus(ctx context.Context, id string, req dto.UpdateBookingStatusRequest) (*models.Booking, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid status payload")
	}
	return s.transition(ctx, id, models.BookingStatus(req.Status), req.Reason)
}

// Cancel releases the booking's slot.
func (s *BookingService) Cancel(ctx context.Context, id, reason string) (*models.Booking, error) {
	return s.transition(ctx, id, models.BookingStatusCancelled, reason)
}

func (s *BookingService) transition(ctx context.Context, id string, next models.BookingStatus, reason string) (*models.Booking, error) {
	if id == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "booking id is required")
	}
	if !next.Valid() {
		return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unknown status %q", next))
	}
	current, err := s.findBooking(ctx, id)
	if err != nil {
		return nil, err
	}

	var updated models.Booking
	var previous models.BookingStatus
	err = s.withRetry(ctx, "status", func() error {
		return s.store.RunLocked(ctx, []models.LockKey{current.LockKey()}, func(tx repository.BookingTx) error {
			locked, err := tx.FindByID(ctx, id)
			if err != nil {
				if errors.Is(err, sql.ErrNoRows) {
					return appErrors.Clone(appErrors.ErrNotFound, "booking not found")
				}
				return err
			}
			if !locked.Status.CanTransitionTo(next) {
				return appErrors.Clone(appErrors.ErrInvalidTransition, fmt.Sprintf("cannot move booking from %s to %s", locked.Status, next))
			}
			if !locked.Status.IsActive() && next.IsActive() {
				// The slot may have been taken while this booking did not occupy it.
				check, err := s.detector.Evaluate(ctx, tx, SlotQuery{
					TherapistID:     locked.TherapistID,
					Date:            locked.ScheduledDate,
					StartTime:       locked.ScheduledTime,
					Duration:        locked.Duration,
					IgnoreBookingID: locked.ID,
				})
				if err != nil {
					return err
				}
				if !check.Available {
					return unavailableError(check)
				}
			}
			if err := tx.UpdateStatus(ctx, id, next, optionalString(reason)); err != nil {
				return err
			}
			previous = locked.Status
			updated = *locked
			updated.Status = next
			if reason != "" {
				updated.CancelReason = optionalString(reason)
			}
			return nil
		})
	})
	if err != nil {
		return nil, err
	}

	outcome := BookingOutcomeTransition
	if next == models.BookingStatusCancelled {
		outcome = BookingOutcomeCancelled
	}
	s.metrics.RecordBooking(outcome)
	if previous.IsActive() != next.IsActive() {
		s.afterWrite(ctx, updated.TherapistID)
	}
	s.publish(ctx, bookingEvent(events.TypeBookingStatusChanged, updated, previous, reason))
	return &updated, nil
}

// Reschedule cancels a booking and creates its replacement in one transaction.
func (s *BookingService) Reschedule(ctx context.Context, id string, req dto.RescheduleBookingRequest) (*models.Booking, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid reschedule payload")
	}
	date, start, err := parseSlot(req.Date, req.StartTime)
	if err != nil {
		return nil, err
	}
	current, err := s.findBooking(ctx, id)
	if err != nil {
		return nil, err
	}

	reason := req.Reason
	if reason == "" {
		reason = "rescheduled"
	}
	keys := []models.LockKey{current.LockKey(), {TherapistID: current.TherapistID, Date: date}}

	var replacement *models.Booking
	var refused *dto.ConflictResult
	err = s.withRetry(ctx, "reschedule", func() error {
		refused = nil
		return s.store.RunLocked(ctx, keys, func(tx repository.BookingTx) error {
			locked, err := tx.FindByID(ctx, id)
			if err != nil {
				if errors.Is(err, sql.ErrNoRows) {
					return appErrors.Clone(appErrors.ErrNotFound, "booking not found")
				}
				return err
			}
			pending := locked.Status == models.BookingStatusRescheduleRequested
			if !locked.Status.CanTransitionTo(models.BookingStatusCancelled) || !(locked.Status.IsActive() || pending) {
				return appErrors.Clone(appErrors.ErrInvalidTransition, fmt.Sprintf("booking in status %s cannot be rescheduled", locked.Status))
			}

			check, err := s.detector.Evaluate(ctx, tx, SlotQuery{
				TherapistID:     locked.TherapistID,
				Date:            date,
				StartTime:       start,
				Duration:        locked.Duration,
				IgnoreBookingID: locked.ID,
			})
			if err != nil {
				return err
			}
			if !check.Available {
				refused = check
				return nil
			}

			if err := tx.UpdateStatus(ctx, locked.ID, models.BookingStatusCancelled, &reason); err != nil {
				return err
			}
			next := &models.Booking{
				TherapistID:     locked.TherapistID,
				PatientID:       locked.PatientID,
				TreatmentPlanID: locked.TreatmentPlanID,
				ServiceID:       locked.ServiceID,
				ScheduledDate:   models.DateOnly(date),
				ScheduledTime:   start,
				Duration:        locked.Duration,
				Status:          models.BookingStatusScheduled,
				RescheduledFrom: &locked.ID,
			}
			if err := tx.Insert(ctx, next); err != nil {
				return err
			}
			replacement = next
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	if refused != nil {
		s.metrics.RecordBooking(BookingOutcomeRejected)
		return nil, unavailableError(refused)
	}

	s.metrics.RecordBooking(BookingOutcomeRescheduled)
	s.afterWrite(ctx, replacement.TherapistID)
	s.publish(ctx, bookingEvent(events.TypeBookingRescheduled, *replacement, current.Status, reason))
	return replacement, nil
}

// withRetry reruns op after a lost write race, then reports CONCURRENCY_CONFLICT.
func (s *BookingService) withRetry(ctx context.Context, operation string, op func() error) error {
	var err error
	for attempt := 0; attempt <= s.retries; attempt++ {
		if attempt > 0 {
			s.metrics.RecordWriteRetry()
		}
		start := time.Now()
		err = op()
		s.metrics.ObserveLockedWrite(operation, time.Since(start))
		if err == nil {
			return nil
		}
		if !errors.Is(err, repository.ErrWriteConflict) {
			return normalizeError(err)
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			break
		}
		s.logger.Warn("booking write lost a concurrent race",
			zap.String("operation", operation),
			zap.Int("attempt", attempt+1),
			zap.Error(err),
		)
	}
	s.metrics.RecordBooking(BookingOutcomeConflict)
	return appErrors.Wrap(err, appErrors.ErrConcurrencyConflict.Code, appErrors.ErrConcurrencyConflict.Status, appErrors.ErrConcurrencyConflict.Message)
}

func (s *BookingService) findBooking(ctx context.Context, id string) (*models.Booking, error) {
	booking, err := s.store.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "booking not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load booking")
	}
	return booking, nil
}

func (s *BookingService) afterWrite(ctx context.Context, therapistID string) {
	if s.capacity != nil {
		s.capacity.Invalidate(ctx, therapistID)
	}
}

func (s *BookingService) publish(ctx context.Context, event events.BookingEvent) {
	if s.publisher == nil {
		return
	}
	if err := s.publisher.Publish(ctx, event); err != nil {
		s.logger.Warn("failed to queue booking event",
			zap.String("type", event.Type),
			zap.String("booking_id", event.BookingID),
			zap.Error(err),
		)
	}
}

func bookingEvent(eventType string, booking models.Booking, previous models.BookingStatus, reason string) events.BookingEvent {
	event := events.BookingEvent{
		Type:           eventType,
		BookingID:      booking.ID,
		TherapistID:    booking.TherapistID,
		PatientID:      booking.PatientID,
		Date:           booking.ScheduledDate.Format(models.DateLayout),
		StartTime:      models.FormatClock(booking.ScheduledTime),
		Duration:       booking.Duration,
		Status:         string(booking.Status),
		PreviousStatus: string(previous),
		Reason:         reason,
	}
	if booking.RescheduledFrom != nil {
		event.RescheduledFrom = *booking.RescheduledFrom
	}
	return event
}

func normalizeError(err error) error {
	var appErr *appErrors.Error
	if errors.As(err, &appErr) {
		return appErr
	}
	return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "booking write failed")
}

func optionalString(value string) *string {
	if value == "" {
		return nil
	}
	return &value
}
