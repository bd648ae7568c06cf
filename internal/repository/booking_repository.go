package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/noah-isme/clinic-scheduling-api/internal/models"
)

// ErrWriteConflict signals that a locked booking write lost to a concurrent writer.
var ErrWriteConflict = errors.New("booking write conflict")

const bookingColumns = `id, therapist_id, patient_id, treatment_plan_id, service_id, scheduled_date, scheduled_minute, duration, status, cancel_reason, rescheduled_from, created_at, updated_at`

var activeStatusClause = buildActiveStatusClause()

func buildActiveStatusClause() string {
	quoted := make([]string, 0, len(models.ActiveBookingStatuses))
	for _, status := range models.ActiveBookingStatuses {
		quoted = append(quoted, "'"+string(status)+"'")
	}
	return "status IN (" + strings.Join(quoted, ", ") + ")"
}

// BookingTx is the unit of work handed to RunLocked callbacks.
type BookingTx interface {
	ListActiveByTherapistDate(ctx context.Context, therapistID string, date time.Time) ([]models.Booking, error)
	FindByID(ctx context.Context, id string) (*models.Booking, error)
	Insert(ctx context.Context, booking *models.Booking) error
	UpdateStatus(ctx context.Context, id string, status models.BookingStatus, reason *string) error
}

// BookingRepository persists bookings and serialises writes per therapist and date.
type BookingRepository struct {
	db          *sqlx.DB
	lockTimeout time.Duration
}

// NewBookingRepository creates a booking repository. lockTimeout bounds the wait for the advisory lock.
func NewBookingRepository(db *sqlx.DB, lockTimeout time.Duration) *BookingRepository {
	if lockTimeout <= 0 {
		lockTimeout = 5 * time.Second
	}
	return &BookingRepository{db: db, lockTimeout: lockTimeout}
}

// FindByID loads a booking by id.
func (r *BookingRepository) FindByID(ctx context.Context, id string) (*models.Booking, error) {
	return findBooking(ctx, r.db, id, false)
}

// ListActiveByTherapistDate returns the slot-occupying bookings of a therapist on one date.
func (r *BookingRepository) ListActiveByTherapistDate(ctx context.Context, therapistID string, date time.Time) ([]models.Booking, error) {
	return listActive(ctx, r.db, models.BookingQuery{TherapistID: therapistID, From: date, To: date})
}

// ListActive returns active bookings for a therapist within an inclusive date range.
func (r *BookingRepository) ListActive(ctx context.Context, query models.BookingQuery) ([]models.Booking, error) {
	if query.TherapistID == "" {
		return nil, fmt.Errorf("list active bookings: therapist id is required")
	}
	return listActive(ctx, r.db, query)
}

// RunLocked opens a serializable transaction, takes an advisory lock per key in a stable order
// and runs fn. Lost races surface as ErrWriteConflict.
func (r *BookingRepository) RunLocked(ctx context.Context, keys []models.LockKey, fn func(tx BookingTx) error) (err error) {
	tx, err := r.db.BeginTxx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return classifyWriteError(fmt.Errorf("begin booking transaction: %w", err))
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if _, err = tx.ExecContext(ctx, fmt.Sprintf("SET LOCAL lock_timeout = '%dms'", r.lockTimeout.Milliseconds())); err != nil {
		return classifyWriteError(fmt.Errorf("set lock timeout: %w", err))
	}

	for _, key := range sortedLockKeys(keys) {
		if _, err = tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, key); err != nil {
			return classifyWriteError(fmt.Errorf("acquire booking lock %s: %w", key, err))
		}
	}

	if err = fn(&bookingTx{tx: tx}); err != nil {
		return classifyWriteError(err)
	}

	if err = tx.Commit(); err != nil {
		return classifyWriteError(fmt.Errorf("commit booking transaction: %w", err))
	}
	return nil
}

type bookingTx struct {
	tx *sqlx.Tx
}

func (t *bookingTx) ListActiveByTherapistDate(ctx context.Context, therapistID string, date time.Time) ([]models.Booking, error) {
	return listActive(ctx, t.tx, models.BookingQuery{TherapistID: therapistID, From: date, To: date})
}

func (t *bookingTx) FindByID(ctx context.Context, id string) (*models.Booking, error) {
	return findBooking(ctx, t.tx, id, true)
}

func (t *bookingTx) Insert(ctx context.Context, booking *models.Booking) error {
	if booking.ID == "" {
		booking.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if booking.CreatedAt.IsZero() {
		booking.CreatedAt = now
	}
	booking.UpdatedAt = now
	booking.ScheduledDate = models.DateOnly(booking.ScheduledDate)

	const query = `INSERT INTO bookings (` + bookingColumns + `) VALUES (:id, :therapist_id, :patient_id, :treatment_plan_id, :service_id, :scheduled_date, :scheduled_minute, :duration, :status, :cancel_reason, :rescheduled_from, :created_at, :updated_at)`
	if _, err := sqlx.NamedExecContext(ctx, t.tx, query, booking); err != nil {
		return fmt.Errorf("insert booking: %w", err)
	}
	return nil
}

func (t *bookingTx) UpdateStatus(ctx context.Context, id string, status models.BookingStatus, reason *string) error {
	const query = `UPDATE bookings SET status = $1, cancel_reason = COALESCE($2, cancel_reason), updated_at = $3 WHERE id = $4`
	res, err := t.tx.ExecContext(ctx, query, status, reason, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("update booking status: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update booking status rows: %w", err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

func findBooking(ctx context.Context, q sqlx.QueryerContext, id string, forUpdate bool) (*models.Booking, error) {
	query := `SELECT ` + bookingColumns + ` FROM bookings WHERE id = $1`
	if forUpdate {
		query += ` FOR UPDATE`
	}
	var booking models.Booking
	if err := sqlx.GetContext(ctx, q, &booking, query, id); err != nil {
		return nil, err
	}
	return &booking, nil
}

func listActive(ctx context.Context, q sqlx.QueryerContext, filter models.BookingQuery) ([]models.Booking, error) {
	query := `SELECT ` + bookingColumns + ` FROM bookings WHERE therapist_id = $1 AND scheduled_date BETWEEN $2 AND $3 AND ` + activeStatusClause + ` ORDER BY scheduled_date ASC, scheduled_minute ASC`
	var bookings []models.Booking
	if err := sqlx.SelectContext(ctx, q, &bookings, query, filter.TherapistID, models.DateOnly(filter.From), models.DateOnly(filter.To)); err != nil {
		return nil, fmt.Errorf("list active bookings: %w", err)
	}
	return bookings, nil
}

func sortedLockKeys(keys []models.LockKey) []string {
	seen := make(map[string]struct{}, len(keys))
	result := make([]string, 0, len(keys))
	for _, key := range keys {
		value := key.String()
		if _, ok := seen[value]; ok {
			continue
		}
		seen[value] = struct{}{}
		result = append(result, value)
	}
	sort.Strings(result)
	return result
}

// serialization_failure, deadlock_detected, exclusion_violation, lock_not_available
var writeConflictCodes = map[pq.ErrorCode]bool{
	"40001": true,
	"40P01": true,
	"23P01": true,
	"55P03": true,
}

func classifyWriteError(err error) error {
	if err == nil {
		return nil
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && writeConflictCodes[pqErr.Code] {
		return fmt.Errorf("%w: %v", ErrWriteConflict, err)
	}
	return err
}
