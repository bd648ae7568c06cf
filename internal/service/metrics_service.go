package service

import (
	"fmt"
	"net/http"
	"runtime"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/noah-isme/clinic-scheduling-api/internal/dto"
)

// Booking write outcomes recorded on scheduling_bookings_total.
const (
	BookingOutcomeCreated     = "created"
	BookingOutcomeRejected    = "rejected"
	BookingOutcomeConflict    = "concurrency_conflict"
	BookingOutcomeCancelled   = "cancelled"
	BookingOutcomeRescheduled = "rescheduled"
	BookingOutcomeTransition  = "status_changed"
)

// MetricsService owns the Prometheus registry for HTTP, cache and scheduling collectors.
type MetricsService struct {
	registry        *prometheus.Registry
	handler         http.Handler
	requestDuration *prometheus.HistogramVec
	requestTotal    *prometheus.CounterVec
	cacheLatency    prometheus.Observer
	cacheWrite      prometheus.Observer
	cacheHitRatio   prometheus.Gauge
	cacheHits       prometheus.Counter
	cacheMisses     prometheus.Counter

	checks        *prometheus.CounterVec
	bookings      *prometheus.CounterVec
	writeRetries  prometheus.Counter
	writeDuration *prometheus.HistogramVec
	assignments   *prometheus.CounterVec
	bulkSlots     *prometheus.CounterVec

	cacheHitCount        uint64
	cacheMissCount       uint64
	requestCount         uint64
	requestDurationTotal uint64
	bookingsCreated      uint64
	bookingsRejected     uint64
	retryCount           uint64
	conflictCount        uint64
}

// NewMetricsService registers the collectors on a private registry.
func NewMetricsService() *MetricsService {
	registry := prometheus.NewRegistry()

	requestDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "Duration of HTTP requests in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path", "status"})

	requestTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "http_requests_total",
		Help: "Total number of HTTP requests",
	}, []string{"method", "path", "status"})

	cacheLatency := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "cache_latency_seconds",
		Help:    "Latency for cache lookups",
		Buckets: prometheus.DefBuckets,
	})

	cacheWrite := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "cache_write_seconds",
		Help:    "Latency for cache set operations",
		Buckets: prometheus.DefBuckets,
	})

	cacheHitRatio := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "cache_hit_ratio",
		Help: "Ratio of cache hits to total cache lookups",
	})

	cacheHits := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "cache_hits_total",
		Help: "Total cache hits",
	})

	cacheMisses := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "cache_misses_total",
		Help: "Total cache misses",
	})

	checks := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "scheduling_checks_total",
		Help: "Availability checks by outcome reason",
	}, []string{"reason"})

	bookings := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "scheduling_bookings_total",
		Help: "Booking writes by outcome",
	}, []string{"outcome"})

	writeRetries := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "scheduling_write_retries_total",
		Help: "Booking writes retried after losing a concurrent write",
	})

	writeDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "scheduling_write_duration_seconds",
		Help:    "Duration of locked booking transactions",
		Buckets: prometheus.DefBuckets,
	}, []string{"operation"})

	assignments := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "scheduling_assignments_total",
		Help: "Therapist assignment attempts by outcome",
	}, []string{"outcome"})

	bulkSlots := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "scheduling_bulk_slots_total",
		Help: "Bulk scheduling slots by outcome",
	}, []string{"outcome"})

	goroutines := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "goroutines_total",
		Help: "Total number of goroutines",
	}, func() float64 {
		return float64(runtime.NumGoroutine())
	})

	registry.MustRegister(
		requestDuration, requestTotal,
		cacheLatency, cacheWrite, cacheHitRatio, cacheHits, cacheMisses,
		checks, bookings, writeRetries, writeDuration, assignments, bulkSlots,
		goroutines,
	)

	return &MetricsService{
		registry:        registry,
		handler:         promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		requestDuration: requestDuration,
		requestTotal:    requestTotal,
		cacheLatency:    cacheLatency,
		cacheWrite:      cacheWrite,
		cacheHitRatio:   cacheHitRatio,
		cacheHits:       cacheHits,
		cacheMisses:     cacheMisses,
		checks:          checks,
		bookings:        bookings,
		writeRetries:    writeRetries,
		writeDuration:   writeDuration,
		assignments:     assignments,
		bulkSlots:       bulkSlots,
	}
}

// Registry exposes the underlying registry for tests.
func (m *MetricsService) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// Handler exposes the Prometheus HTTP handler.
func (m *MetricsService) Handler() http.Handler {
	if m == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
		})
	}
	return m.handler
}

// ObserveHTTPRequest records request metrics and aggregates simple stats for snapshots.
func (m *MetricsService) ObserveHTTPRequest(method, path string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	labelStatus := fmt.Sprintf("%d", status)
	m.requestDuration.WithLabelValues(method, path, labelStatus).Observe(duration.Seconds())
	m.requestTotal.WithLabelValues(method, path, labelStatus).Inc()
	atomic.AddUint64(&m.requestCount, 1)
	atomic.AddUint64(&m.requestDurationTotal, uint64(duration.Nanoseconds()))
}

// RecordCacheOperation records cache hit/miss metrics and updates hit ratio.
func (m *MetricsService) RecordCacheOperation(hit bool, duration time.Duration) {
	if m == nil {
		return
	}
	m.cacheLatency.Observe(duration.Seconds())
	if hit {
		m.cacheHits.Inc()
		atomic.AddUint64(&m.cacheHitCount, 1)
	} else {
		m.cacheMisses.Inc()
		atomic.AddUint64(&m.cacheMissCount, 1)
	}
	hits := atomic.LoadUint64(&m.cacheHitCount)
	misses := atomic.LoadUint64(&m.cacheMissCount)
	if total := hits + misses; total > 0 {
		m.cacheHitRatio.Set(float64(hits) / float64(total))
	}
}

// ObserveCacheWrite tracks the duration for cache write operations.
func (m *MetricsService) ObserveCacheWrite(duration time.Duration) {
	if m == nil {
		return
	}
	m.cacheWrite.Observe(duration.Seconds())
}

// RecordCheck counts an availability check by its reason.
func (m *MetricsService) RecordCheck(reason string) {
	if m == nil {
		return
	}
	m.checks.WithLabelValues(reason).Inc()
}

// RecordBooking counts a booking write outcome.
func (m *MetricsService) RecordBooking(outcome string) {
	if m == nil {
		return
	}
	m.bookings.WithLabelValues(outcome).Inc()
	switch outcome {
	case BookingOutcomeCreated:
		atomic.AddUint64(&m.bookingsCreated, 1)
	case BookingOutcomeRejected:
		atomic.AddUint64(&m.bookingsRejected, 1)
	case BookingOutcomeConflict:
		atomic.AddUint64(&m.conflictCount, 1)
	}
}

// RecordWriteRetry counts a retried locked write.
func (m *MetricsService) RecordWriteRetry() {
	if m == nil {
		return
	}
	m.writeRetries.Inc()
	atomic.AddUint64(&m.retryCount, 1)
}

// ObserveLockedWrite records how long a locked booking transaction took.
func (m *MetricsService) ObserveLockedWrite(operation string, duration time.Duration) {
	if m == nil {
		return
	}
	m.writeDuration.WithLabelValues(operation).Observe(duration.Seconds())
}

// RecordAssignment counts an assignment outcome.
func (m *MetricsService) RecordAssignment(outcome string) {
	if m == nil {
		return
	}
	m.assignments.WithLabelValues(outcome).Inc()
}

// RecordBulkSlot counts a bulk scheduling slot outcome.
func (m *MetricsService) RecordBulkSlot(outcome string) {
	if m == nil {
		return
	}
	m.bulkSlots.WithLabelValues(outcome).Inc()
}

// Snapshot returns aggregated counters for the JSON summary endpoint.
func (m *MetricsService) Snapshot() dto.MetricsSnapshot {
	if m == nil {
		return dto.MetricsSnapshot{}
	}
	hits := atomic.LoadUint64(&m.cacheHitCount)
	misses := atomic.LoadUint64(&m.cacheMissCount)
	requests := atomic.LoadUint64(&m.requestCount)
	reqDuration := atomic.LoadUint64(&m.requestDurationTotal)

	var cacheRatio float64
	if total := hits + misses; total > 0 {
		cacheRatio = float64(hits) / float64(total)
	}

	var avgRequestMs float64
	if requests > 0 {
		avgRequestMs = float64(reqDuration) / float64(requests) / float64(time.Millisecond)
	}

	return dto.MetricsSnapshot{
		RequestsTotal:            requests,
		AverageRequestDurationMs: avgRequestMs,
		CacheHits:                hits,
		CacheMisses:              misses,
		CacheHitRatio:            cacheRatio,
		BookingsCreated:          atomic.LoadUint64(&m.bookingsCreated),
		BookingsRejected:         atomic.LoadUint64(&m.bookingsRejected),
		WriteRetries:             atomic.LoadUint64(&m.retryCount),
		ConcurrencyConflicts:     atomic.LoadUint64(&m.conflictCount),
		Goroutines:               runtime.NumGoroutine(),
		GeneratedAt:              time.Now().UTC(),
	}
}
