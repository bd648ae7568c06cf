package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/clinic-scheduling-api/internal/dto"
	appErrors "github.com/noah-isme/clinic-scheduling-api/pkg/errors"
	"github.com/noah-isme/clinic-scheduling-api/pkg/response"
)

type availabilityService interface {
	CheckAvailability(ctx context.Context, req dto.CheckAvailabilityRequest) (*dto.ConflictResult, error)
	AvailableSlots(ctx context.Context, query dto.AvailableSlotsQuery) (*dto.AvailableSlotsResponse, error)
}

type conflictResolver interface {
	ResolveConflicts(ctx context.Context, req dto.ResolveConflictRequest) (*dto.Resolution, error)
}

// AvailabilityHandler exposes read-only availability queries.
type AvailabilityHandler struct {
	service  availabilityService
	resolver conflictResolver
}

// NewAvailabilityHandler constructs the handler.
func NewAvailabilityHandler(service availabilityService, resolver conflictResolver) *AvailabilityHandler {
	return &AvailabilityHandler{service: service, resolver: resolver}
}

// Check godoc
// @Summary Check whether a therapist can take a slot
// @Description Returns the availability reason, overlapping bookings and up to five alternative start times on the same date.
// @Tags Availability
// @Accept json
// @Produce json
// @Param payload body dto.CheckAvailabilityRequest true "Slot to check"
// @Success 200 {object} response.Envelope
// @Router /availability/check [post]
func (h *AvailabilityHandler) Check(c *gin.Context) {
	var req dto.CheckAvailabilityRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid availability payload"))
		return
	}
	result, err := h.service.CheckAvailability(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result, nil)
}

// Slots godoc
// @Summary List free start times for a therapist on a date
// @Tags Availability
// @Produce json
// @Param therapistId query string true "Therapist ID"
// @Param date query string true "Date (YYYY-MM-DD)"
// @Param duration query int false "Session length in minutes. Defaults to the configured session duration"
// @Success 200 {object} response.Envelope
// @Router /availability/slots [get]
func (h *AvailabilityHandler) Slots(c *gin.Context) {
	var query dto.AvailableSlotsQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid slot query"))
		return
	}
	result, err := h.service.AvailableSlots(c.Request.Context(), query)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result, nil)
}

// Resolve godoc
// @Summary Find the nearest acceptable slot
// @Description Searches 0, +15, -15, +30 ... minutes around the preferred time up to maxTimeShift, then the next day when allowed.
// @Tags Availability
// @Accept json
// @Produce json
// @Param payload body dto.ResolveConflictRequest true "Resolve payload"
// @Success 200 {object} response.Envelope
// @Router /availability/resolve [post]
func (h *AvailabilityHandler) Resolve(c *gin.Context) {
	var req dto.ResolveConflictRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid resolve payload"))
		return
	}
	result, err := h.resolver.ResolveConflicts(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result, nil)
}
