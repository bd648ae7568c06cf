package handler

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/clinic-scheduling-api/internal/dto"
	internalmiddleware "github.com/noah-isme/clinic-scheduling-api/internal/middleware"
	"github.com/noah-isme/clinic-scheduling-api/internal/models"
)

type capacityServiceStub struct {
	utilQuery   dto.UtilizationQuery
	cacheHit    bool
	workloadID  string
	workloadDay time.Time
	configFor   string
	config      dto.UpsertCapacityConfigRequest
}

func (s *capacityServiceStub) Workload(ctx context.Context, therapistID string, date time.Time) (*models.WorkloadSnapshot, error) {
	s.workloadID, s.workloadDay = therapistID, date
	return &models.WorkloadSnapshot{TherapistID: therapistID, SessionsToday: 3}, nil
}

func (s *capacityServiceStub) GetUtilization(ctx context.Context, query dto.UtilizationQuery) (*models.UtilizationReport, bool, error) {
	s.utilQuery = query
	return &models.UtilizationReport{TherapistID: query.TherapistID, UtilizationPercent: 75}, s.cacheHit, nil
}

func (s *capacityServiceStub) Alerts(ctx context.Context, query dto.CapacityAlertsQuery) ([]models.CapacityAlert, error) {
	return []models.CapacityAlert{{TherapistID: "t-1", Severity: models.AlertSeverityCritical}}, nil
}

func (s *capacityServiceStub) UpsertConfig(ctx context.Context, therapistID string, req dto.UpsertCapacityConfigRequest) (*models.CapacityConfig, error) {
	s.configFor, s.config = therapistID, req
	return &models.CapacityConfig{TherapistID: therapistID, MaxHoursPerDay: req.MaxHoursPerDay}, nil
}

func (s *capacityServiceStub) UpsertAlertThreshold(ctx context.Context, therapistID string, req dto.UpsertAlertThresholdRequest) (*models.CapacityAlertThreshold, error) {
	return &models.CapacityAlertThreshold{TherapistID: therapistID, CriticalPercent: req.CriticalPercent}, nil
}

func TestCapacityHandlerUtilizationReportsCacheHit(t *testing.T) {
	gin.SetMode(gin.TestMode)
	stub := &capacityServiceStub{cacheHit: true}
	handler := NewCapacityHandler(stub)

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodGet, "/capacity/utilization?therapistId=t-1&date=2025-01-06&window=WEEK", nil)

	handler.Utilization(c)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "week", stub.utilQuery.Window)
	assert.Contains(t, w.Body.String(), `"cache_hit":true`)
	assert.Contains(t, w.Body.String(), `"utilization_percent":75`)
}

func TestCapacityHandlerWorkloadParsesDate(t *testing.T) {
	gin.SetMode(gin.TestMode)
	stub := &capacityServiceStub{}
	handler := NewCapacityHandler(stub)
	router := gin.New()
	router.GET("/capacity/therapists/:therapistId/workload", handler.Workload)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/capacity/therapists/t-9/workload?date=2025-01-06", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "t-9", stub.workloadID)
	assert.Equal(t, 6, stub.workloadDay.Day())

	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/capacity/therapists/t-9/workload", nil))
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestCapacityHandlerTherapistSeesOwnUtilizationOnly(t *testing.T) {
	gin.SetMode(gin.TestMode)
	handler := NewCapacityHandler(&capacityServiceStub{})
	router := gin.New()
	router.Use(func(c *gin.Context) {
		c.Set(internalmiddleware.ContextUserKey, &models.JWTClaims{UserID: "t-1", Role: models.RoleTherapist})
		c.Next()
	})
	router.GET("/capacity/utilization", internalmiddleware.RBAC(string(models.RoleAdmin), internalmiddleware.SelfTherapist), handler.Utilization)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/capacity/utilization?therapistId=t-1&date=2025-01-06", nil))
	assert.Equal(t, http.StatusOK, w.Code)

	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/capacity/utilization?therapistId=t-2&date=2025-01-06", nil))
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestCapacityHandlerAlertsAndUpserts(t *testing.T) {
	gin.SetMode(gin.TestMode)
	stub := &capacityServiceStub{}
	handler := NewCapacityHandler(stub)
	router := gin.New()
	router.GET("/capacity/alerts", handler.Alerts)
	router.PUT("/capacity/therapists/:therapistId/config", handler.UpsertConfig)
	router.PUT("/capacity/therapists/:therapistId/thresholds", handler.UpsertThreshold)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/capacity/alerts?date=2025-01-06", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"count":1`)

	w = httptest.NewRecorder()
	router.ServeHTTP(w, jsonRequest(http.MethodPut, "/capacity/therapists/t-1/config", `{"maxHoursPerDay":6,"maxSessionsPerWeek":20}`))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "t-1", stub.configFor)
	assert.Equal(t, 20, stub.config.MaxSessionsPerWeek)

	w = httptest.NewRecorder()
	router.ServeHTTP(w, jsonRequest(http.MethodPut, "/capacity/therapists/t-1/thresholds", `{"criticalPercent":`))
	assert.Equal(t, http.StatusBadRequest, w.Code)
}
