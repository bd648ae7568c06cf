package service

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/clinic-scheduling-api/internal/models"
	"github.com/noah-isme/clinic-scheduling-api/internal/repository"
	"github.com/noah-isme/clinic-scheduling-api/pkg/events"
)

// 2025-01-06 is a Monday.
var monday = time.Date(2025, 1, 6, 0, 0, 0, 0, time.UTC)

func intPtr(v int) *int { return &v }

func clock(t *testing.T, raw string) int {
	t.Helper()
	minute, err := models.ParseClock(raw)
	if err != nil {
		t.Fatalf("parse clock %s: %v", raw, err)
	}
	return minute
}

type memoryConfigRepo struct {
	configs []models.ScheduleConfig
	err     error
}

func (r *memoryConfigRepo) ListApplicable(ctx context.Context, query models.ScheduleConfigQuery) ([]models.ScheduleConfig, error) {
	if r.err != nil {
		return nil, r.err
	}
	var result []models.ScheduleConfig
	for _, cfg := range r.configs {
		if cfg.TherapistID == query.TherapistID && cfg.DayOfWeek == query.DayOfWeek {
			result = append(result, cfg)
		}
	}
	return result, nil
}

// workWeek adds recurring Monday to Friday configs.
func (r *memoryConfigRepo) workWeek(therapistID string, start, end int, breakStart, breakEnd *int, maxSessions, duration, buffer int) {
	for day := 1; day <= 5; day++ {
		r.configs = append(r.configs, models.ScheduleConfig{
			ID:                fmt.Sprintf("%s-day-%d", therapistID, day),
			TherapistID:       therapistID,
			DayOfWeek:         day,
			StartTime:         start,
			EndTime:           end,
			BreakStart:        breakStart,
			BreakEnd:          breakEnd,
			MaxSessionsPerDay: maxSessions,
			SessionDuration:   duration,
			BufferTime:        buffer,
			IsRecurring:       true,
			IsWorkingDay:      true,
			EffectiveDate:     time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		})
	}
}

type memoryBookingStore struct {
	critical sync.Mutex

	mu         sync.Mutex
	bookings   map[string]models.Booking
	seq        int
	failWrites int
	lockedKeys [][]models.LockKey
}

func newMemoryBookingStore() *memoryBookingStore {
	return &memoryBookingStore{bookings: map[string]models.Booking{}}
}

func (s *memoryBookingStore) seed(bookings ...models.Booking) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, b := range bookings {
		if b.ID == "" {
			s.seq++
			b.ID = fmt.Sprintf("seed-%d", s.seq)
		}
		if b.Status == "" {
			b.Status = models.BookingStatusScheduled
		}
		b.ScheduledDate = models.DateOnly(b.ScheduledDate)
		s.bookings[b.ID] = b
	}
}

func (s *memoryBookingStore) get(id string) models.Booking {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.bookings[id]
}

func (s *memoryBookingStore) active(therapistID string, from, to time.Time) []models.Booking {
	s.mu.Lock()
	defer s.mu.Unlock()
	from, to = models.DateOnly(from), models.DateOnly(to)
	var result []models.Booking
	for _, b := range s.bookings {
		if b.TherapistID != therapistID || !b.Status.IsActive() {
			continue
		}
		if b.ScheduledDate.Before(from) || b.ScheduledDate.After(to) {
			continue
		}
		result = append(result, b)
	}
	sort.Slice(result, func(i, j int) bool {
		if !result[i].ScheduledDate.Equal(result[j].ScheduledDate) {
			return result[i].ScheduledDate.Before(result[j].ScheduledDate)
		}
		return result[i].ScheduledTime < result[j].ScheduledTime
	})
	return result
}

func (s *memoryBookingStore) FindByID(ctx context.Context, id string) (*models.Booking, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.bookings[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return &b, nil
}

func (s *memoryBookingStore) ListActiveByTherapistDate(ctx context.Context, therapistID string, date time.Time) ([]models.Booking, error) {
	return s.active(therapistID, date, date), nil
}

func (s *memoryBookingStore) ListActive(ctx context.Context, query models.BookingQuery) ([]models.Booking, error) {
	return s.active(query.TherapistID, query.From, query.To), nil
}

func (s *memoryBookingStore) RunLocked(ctx context.Context, keys []models.LockKey, fn func(tx repository.BookingTx) error) error {
	s.critical.Lock()
	defer s.critical.Unlock()

	s.mu.Lock()
	s.lockedKeys = append(s.lockedKeys, keys)
	if s.failWrites > 0 {
		s.failWrites--
		s.mu.Unlock()
		return fmt.Errorf("%w: simulated serialization failure", repository.ErrWriteConflict)
	}
	s.mu.Unlock()

	tx := &memoryTx{store: s, staged: map[string]models.Booking{}}
	if err := fn(tx); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for id, b := range tx.staged {
		s.bookings[id] = b
	}
	return nil
}

type memoryTx struct {
	store  *memoryBookingStore
	staged map[string]models.Booking
}

func (t *memoryTx) view() map[string]models.Booking {
	t.store.mu.Lock()
	defer t.store.mu.Unlock()
	merged := make(map[string]models.Booking, len(t.store.bookings)+len(t.staged))
	for id, b := range t.store.bookings {
		merged[id] = b
	}
	for id, b := range t.staged {
		merged[id] = b
	}
	return merged
}

func (t *memoryTx) ListActiveByTherapistDate(ctx context.Context, therapistID string, date time.Time) ([]models.Booking, error) {
	day := models.DateOnly(date)
	var result []models.Booking
	for _, b := range t.view() {
		if b.TherapistID == therapistID && b.Status.IsActive() && b.ScheduledDate.Equal(day) {
			result = append(result, b)
		}
	}
	return result, nil
}

func (t *memoryTx) FindByID(ctx context.Context, id string) (*models.Booking, error) {
	b, ok := t.view()[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return &b, nil
}

func (t *memoryTx) Insert(ctx context.Context, booking *models.Booking) error {
	t.store.mu.Lock()
	t.store.seq++
	booking.ID = fmt.Sprintf("b-%d", t.store.seq)
	t.store.mu.Unlock()
	booking.ScheduledDate = models.DateOnly(booking.ScheduledDate)
	t.staged[booking.ID] = *booking
	return nil
}

func (t *memoryTx) UpdateStatus(ctx context.Context, id string, status models.BookingStatus, reason *string) error {
	b, ok := t.view()[id]
	if !ok {
		return sql.ErrNoRows
	}
	b.Status = status
	if reason != nil {
		b.CancelReason = reason
	}
	t.staged[id] = b
	return nil
}

type memoryTherapists struct {
	therapists []models.Therapist
}

func (r *memoryTherapists) List(ctx context.Context, filter models.TherapistFilter) ([]models.Therapist, error) {
	var result []models.Therapist
	for _, t := range r.therapists {
		if filter.SpecialtyID != "" && !t.HasSpecialty(filter.SpecialtyID) {
			continue
		}
		if filter.Active != nil && t.Active != *filter.Active {
			continue
		}
		if filter.CanTakeConsultations != nil && t.CanTakeConsultations != *filter.CanTakeConsultations {
			continue
		}
		result = append(result, t)
	}
	return result, nil
}

type memoryCapacityStore struct {
	configs    map[string]models.CapacityConfig
	thresholds map[string]models.CapacityAlertThreshold
}

func newMemoryCapacityStore() *memoryCapacityStore {
	return &memoryCapacityStore{configs: map[string]models.CapacityConfig{}, thresholds: map[string]models.CapacityAlertThreshold{}}
}

func (s *memoryCapacityStore) GetConfig(ctx context.Context, therapistID string) (*models.CapacityConfig, error) {
	cfg, ok := s.configs[therapistID]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return &cfg, nil
}

func (s *memoryCapacityStore) UpsertConfig(ctx context.Context, cfg *models.CapacityConfig) error {
	s.configs[cfg.TherapistID] = *cfg
	return nil
}

func (s *memoryCapacityStore) GetAlertThreshold(ctx context.Context, therapistID string) (*models.CapacityAlertThreshold, error) {
	threshold, ok := s.thresholds[therapistID]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return &threshold, nil
}

func (s *memoryCapacityStore) UpsertAlertThreshold(ctx context.Context, threshold *models.CapacityAlertThreshold) error {
	s.thresholds[threshold.TherapistID] = *threshold
	return nil
}

type memoryPlans struct {
	plans map[string]models.TreatmentPlan
}

func (r *memoryPlans) FindByID(ctx context.Context, id string) (*models.TreatmentPlan, error) {
	plan, ok := r.plans[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return &plan, nil
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []events.BookingEvent
}

func (p *recordingPublisher) Publish(ctx context.Context, event events.BookingEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
	return nil
}

func (p *recordingPublisher) types() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	types := make([]string, 0, len(p.events))
	for _, e := range p.events {
		types = append(types, e.Type)
	}
	return types
}

type recordingInvalidator struct {
	mu    sync.Mutex
	calls []string
}

func (r *recordingInvalidator) Invalidate(ctx context.Context, therapistID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, therapistID)
}

type engineFixture struct {
	configs     *memoryConfigRepo
	bookings    *memoryBookingStore
	therapists  *memoryTherapists
	capacity    *memoryCapacityStore
	plans       *memoryPlans
	publisher   *recordingPublisher
	invalidator *recordingInvalidator
	metrics     *MetricsService

	calendar *AvailabilityCalendar
	detector *ConflictDetector
	resolver *ConflictResolver
	tracker  *CapacityTracker
	booking  *BookingService
	selector *AssignmentSelector
	bulk     *BulkScheduler
}

func newEngineFixture(t *testing.T) *engineFixture {
	t.Helper()
	logger := zap.NewNop()
	f := &engineFixture{
		configs:     &memoryConfigRepo{},
		bookings:    newMemoryBookingStore(),
		therapists:  &memoryTherapists{},
		capacity:    newMemoryCapacityStore(),
		plans:       &memoryPlans{plans: map[string]models.TreatmentPlan{}},
		publisher:   &recordingPublisher{},
		invalidator: &recordingInvalidator{},
		metrics:     NewMetricsService(),
	}
	f.calendar = NewAvailabilityCalendar(f.configs, logger)
	f.detector = NewConflictDetector(f.calendar, f.bookings, nil, logger, f.metrics, ConflictDetectorConfig{MaxSuggestions: 5})
	f.resolver = NewConflictResolver(f.detector, nil, logger, ConflictResolverConfig{StepMinutes: 15, DefaultMaxTimeShift: 120})
	f.tracker = NewCapacityTracker(f.bookings, f.capacity, f.therapists, nil, nil, logger, CapacityTrackerConfig{})
	f.booking = NewBookingService(f.bookings, f.detector, f.publisher, f.invalidator, f.metrics, nil, logger, BookingServiceConfig{WriteRetries: 1})
	f.selector = NewAssignmentSelector(f.therapists, f.detector, f.tracker, f.booking, nil, logger, f.metrics)
	f.bulk = NewBulkScheduler(f.plans, f.resolver, f.booking, nil, logger, f.metrics, BulkSchedulerConfig{})
	return f
}

// standardDay is 09:00-17:00 with a 12:00-13:00 break, 60 minute sessions and a 15 minute buffer.
func (f *engineFixture) standardDay(t *testing.T, therapistID string, maxSessions int) {
	f.configs.workWeek(therapistID, clock(t, "09:00"), clock(t, "17:00"), intPtr(clock(t, "12:00")), intPtr(clock(t, "13:00")), maxSessions, 60, 15)
}
