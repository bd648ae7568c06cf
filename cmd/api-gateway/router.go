package main

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	"github.com/noah-isme/clinic-scheduling-api/internal/handler"
	internalmiddleware "github.com/noah-isme/clinic-scheduling-api/internal/middleware"
	"github.com/noah-isme/clinic-scheduling-api/internal/models"
	"github.com/noah-isme/clinic-scheduling-api/internal/service"
	"github.com/noah-isme/clinic-scheduling-api/pkg/config"
	"github.com/noah-isme/clinic-scheduling-api/pkg/logger"
	corsmiddleware "github.com/noah-isme/clinic-scheduling-api/pkg/middleware/cors"
	reqidmiddleware "github.com/noah-isme/clinic-scheduling-api/pkg/middleware/requestid"
)

type routerDeps struct {
	cfg       *config.Config
	logger    *zap.Logger
	metrics   *service.MetricsService
	tokens    internalmiddleware.TokenValidator
	readiness func(ctx context.Context) error

	availability *handler.AvailabilityHandler
	bookings     *handler.BookingHandler
	assignments  *handler.AssignmentHandler
	capacity     *handler.CapacityHandler
	metricsAPI   *handler.MetricsHandler
}

func newRouter(deps routerDeps) *gin.Engine {
	cfg := deps.cfg

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(deps.logger))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(internalmiddleware.Metrics(deps.metrics))

	r.GET("/health", deps.metricsAPI.Health)
	r.GET("/ready", func(c *gin.Context) {
		if deps.readiness != nil {
			ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
			defer cancel()
			if err := deps.readiness(ctx); err != nil {
				c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable", "error": err.Error()})
				return
			}
		}
		c.JSON(http.StatusOK, gin.H{"status": "ready"})
	})
	r.GET("/metrics", deps.metricsAPI.Prometheus)

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	admin := string(models.RoleAdmin)
	receptionist := string(models.RoleReceptionist)
	therapist := string(models.RoleTherapist)

	staff := internalmiddleware.RBAC(admin, receptionist)
	anyRole := internalmiddleware.RBAC(admin, receptionist, therapist)
	adminOnly := internalmiddleware.RBAC(admin)
	staffOrSelf := internalmiddleware.RBAC(admin, receptionist, internalmiddleware.SelfTherapist)

	api := r.Group(cfg.APIPrefix)
	api.Use(internalmiddleware.JWT(deps.tokens))
	api.Use(internalmiddleware.WithResponseMeta())

	availability := api.Group("/availability")
	availability.POST("/check", anyRole, deps.availability.Check)
	availability.GET("/slots", anyRole, deps.availability.Slots)
	availability.POST("/resolve", staff, deps.availability.Resolve)

	api.POST("/assignments", staff, deps.assignments.Assign)

	bookings := api.Group("/bookings")
	bookings.POST("", staff, deps.bookings.Create)
	bookings.POST("/bulk", staff, deps.bookings.Bulk)
	bookings.PATCH("/:id/status", staff, deps.bookings.UpdateStatus)
	bookings.POST("/:id/cancel", staff, deps.bookings.Cancel)
	bookings.POST("/:id/reschedule", staff, deps.bookings.Reschedule)

	capacity := api.Group("/capacity")
	capacity.GET("/utilization", staffOrSelf, deps.capacity.Utilization)
	capacity.GET("/alerts", staff, deps.capacity.Alerts)
	capacity.GET("/therapists/:therapistId/workload", staffOrSelf, deps.capacity.Workload)
	capacity.PUT("/therapists/:therapistId/config", adminOnly, deps.capacity.UpsertConfig)
	capacity.PUT("/therapists/:therapistId/thresholds", adminOnly, deps.capacity.UpsertThreshold)

	api.GET("/metrics/summary", adminOnly, deps.metricsAPI.Summary)

	return r
}
