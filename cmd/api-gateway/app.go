package main

import (
	"context"
	"fmt"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/noah-isme/clinic-scheduling-api/internal/handler"
	"github.com/noah-isme/clinic-scheduling-api/internal/repository"
	"github.com/noah-isme/clinic-scheduling-api/internal/service"
	"github.com/noah-isme/clinic-scheduling-api/pkg/cache"
	"github.com/noah-isme/clinic-scheduling-api/pkg/config"
	"github.com/noah-isme/clinic-scheduling-api/pkg/database"
	"github.com/noah-isme/clinic-scheduling-api/pkg/events"
)

type eventPublisher interface {
	Publish(ctx context.Context, event events.BookingEvent) error
}

type application struct {
	router     *gin.Engine
	db         *sqlx.DB
	redis      *redis.Client
	dispatcher *events.Dispatcher
	sink       *events.AMQPSink
	logger     *zap.Logger
}

func newApplication(ctx context.Context, cfg *config.Config, logr *zap.Logger) (*application, error) {
	app := &application{logger: logr}

	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("connect database: %w", err)
	}
	app.db = db

	var cacheRepo service.CacheRepository
	if cfg.Redis.Enabled {
		client, err := cache.NewRedis(cfg.Redis)
		if err != nil {
			app.Close()
			return nil, fmt.Errorf("connect redis: %w", err)
		}
		app.redis = client
		cacheRepo = repository.NewCacheRepository(client, logr)
	}

	// Left nil when events are disabled so the booking service skips publishing.
	var publisher eventPublisher
	if cfg.Events.Enabled {
		sink, err := events.DialAMQP(cfg.Events.AMQPURL, cfg.Events.Exchange)
		if err != nil {
			app.Close()
			return nil, fmt.Errorf("connect amqp: %w", err)
		}
		app.sink = sink
		app.dispatcher = events.NewDispatcher(sink, events.DispatcherConfig{Workers: 2, Logger: logr})
		app.dispatcher.Start(ctx)
		publisher = app.dispatcher
	}

	validate := validator.New()
	metrics := service.NewMetricsService()
	sched := cfg.Scheduling

	bookingRepo := repository.NewBookingRepository(db, sched.StatementTimeout)
	therapistRepo := repository.NewTherapistRepository(db)
	configRepo := repository.NewScheduleConfigRepository(db)
	capacityRepo := repository.NewCapacityRepository(db)
	planRepo := repository.NewTreatmentPlanRepository(db)

	calendar := service.NewAvailabilityCalendar(configRepo, logr)
	detector := service.NewConflictDetector(calendar, bookingRepo, validate, logr, metrics, service.ConflictDetectorConfig{
		MaxSuggestions:         sched.MaxSuggestions,
		DefaultSessionDuration: sched.DefaultSessionDuration,
	})
	resolver := service.NewConflictResolver(detector, validate, logr, service.ConflictResolverConfig{
		StepMinutes:         sched.ResolverStepMinutes,
		DefaultMaxTimeShift: sched.DefaultMaxTimeShift,
	})
	cacheSvc := service.NewCacheService(cacheRepo, metrics, cfg.Capacity.CacheTTL, logr, cfg.Capacity.CacheEnabled)
	tracker := service.NewCapacityTracker(bookingRepo, capacityRepo, therapistRepo, cacheSvc, validate, logr, service.CapacityTrackerConfig{
		CacheTTL:             cfg.Capacity.CacheTTL,
		CriticalPercent:      cfg.Capacity.CriticalPercent,
		WarningPercent:       cfg.Capacity.WarningPercent,
		UnderutilizedPercent: cfg.Capacity.UnderutilizedPercent,
	})

	bookings := service.NewBookingService(bookingRepo, detector, publisher, tracker, metrics, validate, logr, service.BookingServiceConfig{
		WriteRetries: sched.WriteRetries,
	})
	selector := service.NewAssignmentSelector(therapistRepo, detector, tracker, bookings, validate, logr, metrics)
	bulk := service.NewBulkScheduler(planRepo, resolver, bookings, validate, logr, metrics, service.BulkSchedulerConfig{
		MaxSessions:            sched.MaxBulkSessions,
		DefaultMaxTimeShift:    sched.DefaultMaxTimeShift,
		DefaultSessionDuration: sched.DefaultSessionDuration,
	})

	tokens := service.NewTokenService(service.TokenConfig{
		Secret:   cfg.JWT.Secret,
		Issuer:   cfg.JWT.Issuer,
		Audience: cfg.JWT.Audience,
	})

	app.router = newRouter(routerDeps{
		cfg:          cfg,
		logger:       logr,
		metrics:      metrics,
		tokens:       tokens,
		readiness:    app.ready,
		availability: handler.NewAvailabilityHandler(detector, resolver),
		bookings:     handler.NewBookingHandler(bookings, bulk),
		assignments:  handler.NewAssignmentHandler(selector),
		capacity:     handler.NewCapacityHandler(tracker),
		metricsAPI:   handler.NewMetricsHandler(metrics),
	})

	return app, nil
}

func (a *application) ready(ctx context.Context) error {
	if a.db != nil {
		if err := a.db.PingContext(ctx); err != nil {
			return fmt.Errorf("database: %w", err)
		}
	}
	if a.redis != nil {
		if err := a.redis.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("redis: %w", err)
		}
	}
	return nil
}

// Close stops background workers before releasing connections.
func (a *application) Close() {
	if a.dispatcher != nil {
		a.dispatcher.Stop()
	}
	if a.sink != nil {
		if err := a.sink.Close(); err != nil {
			a.logger.Warn("close amqp sink", zap.Error(err))
		}
	}
	if a.redis != nil {
		_ = a.redis.Close()
	}
	if a.db != nil {
		_ = a.db.Close()
	}
}
