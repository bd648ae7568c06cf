package handler

import (
	"context"
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/clinic-scheduling-api/internal/dto"
	"github.com/noah-isme/clinic-scheduling-api/internal/models"
	appErrors "github.com/noah-isme/clinic-scheduling-api/pkg/errors"
	"github.com/noah-isme/clinic-scheduling-api/pkg/response"
)

type bookingService interface {
	Book(ctx context.Context, req dto.BookSessionRequest) (*models.Booking, error)
	UpdateStatus(ctx context.Context, id string, req dto.UpdateBookingStatusRequest) (*models.Booking, error)
	Cancel(ctx context.Context, id, reason string) (*models.Booking, error)
	Reschedule(ctx context.Context, id string, req dto.RescheduleBookingRequest) (*models.Booking, error)
}

type bulkScheduler interface {
	Generate(ctx context.Context, req dto.BulkScheduleRequest) (*dto.BatchResult, error)
}

// BookingHandler exposes booking writes.
type BookingHandler struct {
	service bookingService
	bulk    bulkScheduler
}

// NewBookingHandler constructs the handler.
func NewBookingHandler(service bookingService, bulk bulkScheduler) *BookingHandler {
	return &BookingHandler{service: service, bulk: bulk}
}

// Create godoc
// @Summary Book a session
// @Description Checks availability and inserts the booking under the therapist's per-date lock.
// @Tags Bookings
// @Accept json
// @Produce json
// @Param payload body dto.BookSessionRequest true "Booking payload"
// @Success 201 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /bookings [post]
func (h *BookingHandler) Create(c *gin.Context) {
	var req dto.BookSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid booking payload"))
		return
	}
	booking, err := h.service.Book(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, booking)
}

// UpdateStatus godoc
// @Summary Move a booking through its lifecycle
// @Tags Bookings
// @Accept json
// @Produce json
// @Param id path string true "Booking ID"
// @Param payload body dto.UpdateBookingStatusRequest true "Status payload"
// @Success 200 {object} response.Envelope
// @Router /bookings/{id}/status [patch]
func (h *BookingHandler) UpdateStatus(c *gin.Context) {
	var req dto.UpdateBookingStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid status payload"))
		return
	}
	booking, err := h.service.UpdateStatus(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, booking, nil)
}

// Cancel godoc
// @Summary Cancel a booking
// @Tags Bookings
// @Accept json
// @Produce json
// @Param id path string true "Booking ID"
// @Param payload body dto.CancelBookingRequest false "Cancellation reason"
// @Success 200 {object} response.Envelope
// @Router /bookings/{id}/cancel [post]
func (h *BookingHandler) Cancel(c *gin.Context) {
	var req dto.CancelBookingRequest
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid cancel payload"))
		return
	}
	booking, err := h.service.Cancel(c.Request.Context(), c.Param("id"), req.Reason)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, booking, nil)
}

// Reschedule godoc
// @Summary Move a booking to a new slot
// @Description Cancels the booking and creates its replacement in one transaction. The original is untouched when the new slot is refused.
// @Tags Bookings
// @Accept json
// @Produce json
// @Param id path string true "Booking ID"
// @Param payload body dto.RescheduleBookingRequest true "Reschedule payload"
// @Success 201 {object} response.Envelope
// @Router /bookings/{id}/reschedule [post]
func (h *BookingHandler) Reschedule(c *gin.Context) {
	var req dto.RescheduleBookingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid reschedule payload"))
		return
	}
	booking, err := h.service.Reschedule(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, booking)
}

// Bulk godoc
// @Summary Materialise the sessions of an approved treatment plan
// @Description Books (date, slot) pairs in order. Pairs that fail are listed in errors and the run continues.
// @Tags Bookings
// @Accept json
// @Produce json
// @Param payload body dto.BulkScheduleRequest true "Bulk schedule payload"
// @Success 200 {object} response.Envelope
// @Router /bookings/bulk [post]
func (h *BookingHandler) Bulk(c *gin.Context) {
	var req dto.BulkScheduleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid bulk schedule payload"))
		return
	}
	result, err := h.bulk.Generate(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	meta := map[string]interface{}{
		"created": len(result.CreatedSessions),
		"failed":  len(result.Errors),
	}
	response.JSON(c, http.StatusOK, result, nil, meta)
}
