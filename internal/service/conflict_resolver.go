package service

import (
	"context"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/clinic-scheduling-api/internal/dto"
	"github.com/noah-isme/clinic-scheduling-api/internal/models"
	appErrors "github.com/noah-isme/clinic-scheduling-api/pkg/errors"
)

// Failure classes tallied by the resolver when a search comes up empty.
const (
	FailureCapacity   = "capacity"
	FailureNoSlot     = "no-slot"
	FailureOutOfRange = "out-of-range"
)

var failurePriority = []string{FailureCapacity, FailureNoSlot, FailureOutOfRange}

type slotChecker interface {
	Check(ctx context.Context, q SlotQuery) (*dto.ConflictResult, error)
}

// ResolveQuery describes a nearest-slot search.
type ResolveQuery struct {
	TherapistID       string
	Date              time.Time
	PreferredTime     int
	Duration          int
	MaxTimeShift      int
	AllowDifferentDay bool
	IgnoreBookingID   string
}

// ConflictResolverConfig tunes the search grid.
type ConflictResolverConfig struct {
	StepMinutes         int
	DefaultMaxTimeShift int
}

// ConflictResolver searches outward from a preferred time for a slot the detector accepts.
type ConflictResolver struct {
	detector        slotChecker
	validator       *validator.Validate
	logger          *zap.Logger
	step            int
	defaultMaxShift int
}

// NewConflictResolver wires the resolver.
func NewConflictResolver(detector slotChecker, validate *validator.Validate, logger *zap.Logger, cfg ConflictResolverConfig) *ConflictResolver {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.StepMinutes <= 0 {
		cfg.StepMinutes = 15
	}
	if cfg.DefaultMaxTimeShift <= 0 {
		cfg.DefaultMaxTimeShift = 120
	}
	return &ConflictResolver{
		detector:        detector,
		validator:       validate,
		logger:          logger,
		step:            cfg.StepMinutes,
		defaultMaxShift: cfg.DefaultMaxTimeShift,
	}
}

// ResolveConflicts validates the payload and runs Resolve. An omitted maxTimeShift uses the configured
// default; zero only accepts the preferred time itself.
func (r *ConflictResolver) ResolveConflicts(ctx context.Context, req dto.ResolveConflictRequest) (*dto.Resolution, error) {
	if err := r.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid resolve payload")
	}
	date, preferred, err := parseSlot(req.Date, req.PreferredTime)
	if err != nil {
		return nil, err
	}
	maxShift := r.defaultMaxShift
	if req.MaxTimeShift != nil {
		maxShift = *req.MaxTimeShift
	}
	return r.Resolve(ctx, ResolveQuery{
		TherapistID:       req.TherapistID,
		Date:              date,
		PreferredTime:     preferred,
		Duration:          req.Duration,
		MaxTimeShift:      maxShift,
		AllowDifferentDay: req.AllowDifferentDay,
	})
}

// Resolve tries offsets 0, +k, -k, +2k, -2k ... within MaxTimeShift, then the next day once if allowed.
func (r *ConflictResolver) Resolve(ctx context.Context, q ResolveQuery) (*dto.Resolution, error) {
	if q.MaxTimeShift < 0 {
		return nil, appErrors.Clone(appErrors.ErrValidation, "max time shift must not be negative")
	}
	base := SlotQuery{TherapistID: q.TherapistID, Date: q.Date, StartTime: q.PreferredTime, Duration: q.Duration, IgnoreBookingID: q.IgnoreBookingID}
	if err := base.validate(); err != nil {
		return nil, err
	}

	res := &dto.Resolution{Failures: map[string]int{}}
	day := models.DateOnly(q.Date)

	found, err := r.searchDay(ctx, q, day, res)
	if err != nil {
		return nil, err
	}
	if !found && q.AllowDifferentDay {
		found, err = r.searchDay(ctx, q, day.AddDate(0, 0, 1), res)
		if err != nil {
			return nil, err
		}
		if found {
			res.DayShift = 1
		}
	}

	if found {
		res.Reason = describeShift(res.ShiftMinutes, res.DayShift)
		res.Failures = nil
		return res, nil
	}

	res.Reason = dominantFailure(res.Failures)
	r.logger.Info("no slot found within tolerance",
		zap.String("therapist_id", q.TherapistID),
		zap.String("date", day.Format(models.DateLayout)),
		zap.Int("max_time_shift", q.MaxTimeShift),
		zap.String("reason", res.Reason),
		zap.Int("attempts", res.Attempts),
	)
	return res, nil
}

func (r *ConflictResolver) searchDay(ctx context.Context, q ResolveQuery, day time.Time, res *dto.Resolution) (bool, error) {
	offsets := searchOffsets(q.MaxTimeShift, r.step)
	for i, offset := range offsets {
		start := q.PreferredTime + offset
		if start < 0 || start+q.Duration > models.MinutesPerDay {
			res.Failures[FailureOutOfRange]++
			continue
		}

		res.Attempts++
		check, err := r.detector.Check(ctx, SlotQuery{
			TherapistID:     q.TherapistID,
			Date:            day,
			StartTime:       start,
			Duration:        q.Duration,
			IgnoreBookingID: q.IgnoreBookingID,
		})
		if err != nil {
			return false, err
		}
		if check.Available {
			res.Resolved = true
			res.Date = day.Format(models.DateLayout)
			res.StartMinute = start
			res.StartTime = models.FormatClock(start)
			res.ShiftMinutes = offset
			return true, nil
		}

		class := failureClass(check.Reason)
		if check.Reason == ReasonCapacity || check.Reason == ReasonNonWorkingDay {
			// Day-wide outcomes hold for every remaining offset.
			res.Failures[class] += len(offsets) - i
			return false, nil
		}
		res.Failures[class]++
	}
	return false, nil
}

func searchOffsets(maxShift, step int) []int {
	offsets := []int{0}
	for magnitude := step; magnitude <= maxShift; magnitude += step {
		offsets = append(offsets, magnitude, -magnitude)
	}
	return offsets
}

func failureClass(reason string) string {
	switch reason {
	case ReasonCapacity:
		return FailureCapacity
	case ReasonOutsideHours, ReasonNonWorkingDay:
		return FailureOutOfRange
	default:
		return FailureNoSlot
	}
}

func dominantFailure(failures map[string]int) string {
	best, bestCount := FailureNoSlot, 0
	for _, class := range failurePriority {
		if failures[class] > bestCount {
			best, bestCount = class, failures[class]
		}
	}
	return best
}

func describeShift(shift, dayShift int) string {
	var reason string
	switch {
	case shift == 0:
		reason = "preferred time available"
	default:
		reason = fmt.Sprintf("shifted %+d minutes", shift)
	}
	if dayShift > 0 {
		reason += " on the next day"
	}
	return reason
}
