package service

import (
	"context"
	"errors"
	"sort"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/clinic-scheduling-api/internal/dto"
	"github.com/noah-isme/clinic-scheduling-api/internal/models"
	appErrors "github.com/noah-isme/clinic-scheduling-api/pkg/errors"
)

// Assignment reasons.
const (
	AssignmentReasonPreferred    = "preferred_therapist"
	AssignmentReasonLoadBalanced = "load_balanced"
	AssignmentReasonNoCapacity   = "no_capacity"
)

const defaultUrgency = "NORMAL"

type therapistDirectory interface {
	List(ctx context.Context, filter models.TherapistFilter) ([]models.Therapist, error)
}

type workloadReader interface {
	Workload(ctx context.Context, therapistID string, date time.Time) (*models.WorkloadSnapshot, error)
}

type bookingCreator interface {
	Create(ctx context.Context, nb NewBooking) (*BookingOutcome, error)
}

// AssignmentSelector picks the best-fit therapist for a consultation request and books the slot.
type AssignmentSelector struct {
	therapists therapistDirectory
	detector   slotChecker
	workload   workloadReader
	booker     bookingCreator
	validator  *validator.Validate
	logger     *zap.Logger
	metrics    *MetricsService
}

// NewAssignmentSelector wires the selector.
func NewAssignmentSelector(therapists therapistDirectory, detector slotChecker, workload workloadReader, booker bookingCreator, validate *validator.Validate, logger *zap.Logger, metrics *MetricsService) *AssignmentSelector {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AssignmentSelector{
		therapists: therapists,
		detector:   detector,
		workload:   workload,
		booker:     booker,
		validator:  validate,
		logger:     logger,
		metrics:    metrics,
	}
}

type assignmentRequest struct {
	dto.AssignmentRequest
	date    time.Time
	start   int
	exclude map[string]bool
}

// Assign filters eligible therapists, tries the preferred one first, then load balances.
// When the chosen slot is taken before the write lands, it re-evaluates once without that therapist.
func (s *AssignmentSelector) Assign(ctx context.Context, req dto.AssignmentRequest) (*dto.AssignmentResult, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid assignment payload")
	}
	date, start, err := parseSlot(req.Date, req.Time)
	if err != nil {
		return nil, err
	}
	if req.Urgency == "" {
		req.Urgency = defaultUrgency
	}

	areq := assignmentRequest{AssignmentRequest: req, date: date, start: start, exclude: map[string]bool{}}
	for _, id := range req.ExcludeTherapistIDs {
		areq.exclude[id] = true
	}

	active, consults := true, true
	therapists, err := s.therapists.List(ctx, models.TherapistFilter{SpecialtyID: req.SpecialtyID, Active: &active, CanTakeConsultations: &consults})
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list therapists")
	}

	lostRace := false
	for attempt := 0; attempt < 2; attempt++ {
		chosen, reason, scores, err := s.selectCandidate(ctx, therapists, areq)
		if err != nil {
			return nil, err
		}
		result := &dto.AssignmentResult{Urgency: req.Urgency, Candidates: scores}
		if chosen == "" {
			if lostRace {
				s.metrics.RecordAssignment("concurrency_conflict")
				return nil, appErrors.Clone(appErrors.ErrConcurrencyConflict, "slot was taken by a concurrent booking and no alternative therapist is available")
			}
			result.Reason = AssignmentReasonNoCapacity
			s.metrics.RecordAssignment(AssignmentReasonNoCapacity)
			s.logger.Info("no therapist available for assignment",
				zap.String("specialty_id", req.SpecialtyID),
				zap.String("date", req.Date),
				zap.String("time", req.Time),
				zap.String("urgency", req.Urgency),
			)
			return result, nil
		}

		outcome, err := s.booker.Create(ctx, NewBooking{
			TherapistID: chosen,
			PatientID:   req.PatientID,
			Date:        date,
			StartTime:   start,
			Duration:    req.Duration,
		})
		if err != nil {
			if errors.Is(err, appErrors.ErrConcurrencyConflict) && attempt == 0 {
				lostRace = true
				areq.exclude[chosen] = true
				continue
			}
			return nil, err
		}
		if outcome.Booking == nil {
			lostRace = true
			areq.exclude[chosen] = true
			s.logger.Info("selected therapist lost the slot, re-evaluating",
				zap.String("therapist_id", chosen),
				zap.String("reason", outcome.Check.Reason),
			)
			continue
		}

		result.AssignedTherapistID = &chosen
		result.Booking = outcome.Booking
		result.Reason = reason
		s.metrics.RecordAssignment(reason)
		s.logger.Info("therapist assigned",
			zap.String("therapist_id", chosen),
			zap.String("booking_id", outcome.Booking.ID),
			zap.String("reason", reason),
			zap.String("urgency", req.Urgency),
		)
		return result, nil
	}

	s.metrics.RecordAssignment("concurrency_conflict")
	return nil, appErrors.Clone(appErrors.ErrConcurrencyConflict, "slot was taken by a concurrent booking")
}

func (s *AssignmentSelector) selectCandidate(ctx context.Context, therapists []models.Therapist, req assignmentRequest) (string, string, []dto.CandidateScore, error) {
	eligible := make([]models.Therapist, 0, len(therapists))
	for _, therapist := range therapists {
		if !therapist.Active || !therapist.CanTakeConsultations || !therapist.HasSpecialty(req.SpecialtyID) || req.exclude[therapist.ID] {
			continue
		}
		eligible = append(eligible, therapist)
	}

	scores := make([]dto.CandidateScore, 0, len(eligible))
	if req.PreferredTherapistID != "" {
		for _, therapist := range eligible {
			if therapist.ID != req.PreferredTherapistID {
				continue
			}
			score, err := s.evaluate(ctx, therapist.ID, req)
			if err != nil {
				return "", "", nil, err
			}
			scores = append(scores, score)
			if score.Available {
				return therapist.ID, AssignmentReasonPreferred, scores, nil
			}
		}
	}

	var ranked []dto.CandidateScore
	for _, therapist := range eligible {
		if therapist.ID == req.PreferredTherapistID {
			continue
		}
		score, err := s.evaluate(ctx, therapist.ID, req)
		if err != nil {
			return "", "", nil, err
		}
		scores = append(scores, score)
		if score.Available {
			ranked = append(ranked, score)
		}
	}
	if len(ranked) == 0 {
		return "", "", scores, nil
	}

	sort.SliceStable(ranked, func(i, j int) bool {
		if ranked[i].SessionsToday != ranked[j].SessionsToday {
			return ranked[i].SessionsToday < ranked[j].SessionsToday
		}
		return ranked[i].TherapistID < ranked[j].TherapistID
	})
	return ranked[0].TherapistID, AssignmentReasonLoadBalanced, scores, nil
}

func (s *AssignmentSelector) evaluate(ctx context.Context, therapistID string, req assignmentRequest) (dto.CandidateScore, error) {
	score := dto.CandidateScore{TherapistID: therapistID}

	check, err := s.detector.Check(ctx, SlotQuery{TherapistID: therapistID, Date: req.date, StartTime: req.start, Duration: req.Duration})
	if err != nil {
		return score, err
	}
	workload, err := s.workload.Workload(ctx, therapistID, req.date)
	if err != nil {
		return score, err
	}
	score.SessionsToday = workload.SessionsToday
	score.Reason = check.Reason

	switch {
	case !check.Available:
	case req.MaxWorkload > 0 && workload.SessionsToday+1 > req.MaxWorkload:
		score.Reason = "max_workload"
	default:
		score.Available = true
	}
	return score, nil
}
