package handler

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/clinic-scheduling-api/internal/dto"
	"github.com/noah-isme/clinic-scheduling-api/internal/middleware"
	"github.com/noah-isme/clinic-scheduling-api/internal/models"
	appErrors "github.com/noah-isme/clinic-scheduling-api/pkg/errors"
	"github.com/noah-isme/clinic-scheduling-api/pkg/response"
)

type capacityService interface {
	Workload(ctx context.Context, therapistID string, date time.Time) (*models.WorkloadSnapshot, error)
	GetUtilization(ctx context.Context, query dto.UtilizationQuery) (*models.UtilizationReport, bool, error)
	Alerts(ctx context.Context, query dto.CapacityAlertsQuery) ([]models.CapacityAlert, error)
	UpsertConfig(ctx context.Context, therapistID string, req dto.UpsertCapacityConfigRequest) (*models.CapacityConfig, error)
	UpsertAlertThreshold(ctx context.Context, therapistID string, req dto.UpsertAlertThresholdRequest) (*models.CapacityAlertThreshold, error)
}

// CapacityHandler exposes workload and utilization endpoints.
type CapacityHandler struct {
	service capacityService
}

// NewCapacityHandler constructs the handler.
func NewCapacityHandler(service capacityService) *CapacityHandler {
	return &CapacityHandler{service: service}
}

// Workload godoc
// @Summary Therapist workload for the day, week and month of a date
// @Tags Capacity
// @Produce json
// @Param therapistId path string true "Therapist ID"
// @Param date query string true "Date (YYYY-MM-DD)"
// @Success 200 {object} response.Envelope
// @Router /capacity/therapists/{therapistId}/workload [get]
func (h *CapacityHandler) Workload(c *gin.Context) {
	var query dto.WorkloadQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid workload query"))
		return
	}
	date, err := models.ParseDate(query.Date)
	if err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid date"))
		return
	}
	workload, err := h.service.Workload(c.Request.Context(), c.Param("therapistId"), date)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, workload, nil)
}

// Utilization godoc
// @Summary Therapist utilization and alert classification
// @Tags Capacity
// @Produce json
// @Param therapistId query string true "Therapist ID"
// @Param date query string true "Date (YYYY-MM-DD)"
// @Param window query string false "day, week or month" Enums(day, week, month)
// @Success 200 {object} response.Envelope
// @Router /capacity/utilization [get]
func (h *CapacityHandler) Utilization(c *gin.Context) {
	var query dto.UtilizationQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid utilization query"))
		return
	}
	query.Window = strings.ToLower(strings.TrimSpace(query.Window))
	start := time.Now()
	report, cacheHit, err := h.service.GetUtilization(c.Request.Context(), query)
	if err != nil {
		response.Error(c, err)
		return
	}
	middleware.SetCacheHit(c, cacheHit)
	meta := middleware.ExtractMeta(c)
	if meta == nil {
		meta = map[string]interface{}{}
	}
	meta["processing_time_ms"] = time.Since(start).Milliseconds()
	response.JSON(c, http.StatusOK, report, nil, meta)
}

// Alerts godoc
// @Summary Capacity alerts across active therapists
// @Tags Capacity
// @Produce json
// @Param date query string true "Date (YYYY-MM-DD)"
// @Param includeNormal query bool false "Include therapists within the normal range"
// @Success 200 {object} response.Envelope
// @Router /capacity/alerts [get]
func (h *CapacityHandler) Alerts(c *gin.Context) {
	var query dto.CapacityAlertsQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid alerts query"))
		return
	}
	alerts, err := h.service.Alerts(c.Request.Context(), query)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, alerts, nil, map[string]interface{}{"count": len(alerts)})
}

// UpsertConfig godoc
// @Summary Set a therapist's workload limits
// @Tags Capacity
// @Accept json
// @Produce json
// @Param therapistId path string true "Therapist ID"
// @Param payload body dto.UpsertCapacityConfigRequest true "Capacity limits"
// @Success 200 {object} response.Envelope
// @Router /capacity/therapists/{therapistId}/config [put]
func (h *CapacityHandler) UpsertConfig(c *gin.Context) {
	var req dto.UpsertCapacityConfigRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid capacity config payload"))
		return
	}
	cfg, err := h.service.UpsertConfig(c.Request.Context(), c.Param("therapistId"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, cfg, nil)
}

// UpsertThreshold godoc
// @Summary Set a therapist's alert thresholds
// @Tags Capacity
// @Accept json
// @Produce json
// @Param therapistId path string true "Therapist ID"
// @Param payload body dto.UpsertAlertThresholdRequest true "Alert thresholds"
// @Success 200 {object} response.Envelope
// @Router /capacity/therapists/{therapistId}/thresholds [put]
func (h *CapacityHandler) UpsertThreshold(c *gin.Context) {
	var req dto.UpsertAlertThresholdRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid alert threshold payload"))
		return
	}
	threshold, err := h.service.UpsertAlertThreshold(c.Request.Context(), c.Param("therapistId"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, threshold, nil)
}
