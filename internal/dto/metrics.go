package dto

import "time"

// MetricsSnapshot is the JSON summary served next to the Prometheus endpoint.
type MetricsSnapshot struct {
	RequestsTotal            uint64    `json:"requestsTotal"`
	AverageRequestDurationMs float64   `json:"averageRequestDurationMs"`
	CacheHits                uint64    `json:"cacheHits"`
	CacheMisses              uint64    `json:"cacheMisses"`
	CacheHitRatio            float64   `json:"cacheHitRatio"`
	BookingsCreated          uint64    `json:"bookingsCreated"`
	BookingsRejected         uint64    `json:"bookingsRejected"`
	WriteRetries             uint64    `json:"writeRetries"`
	ConcurrencyConflicts     uint64    `json:"concurrencyConflicts"`
	Goroutines               int       `json:"goroutines"`
	GeneratedAt              time.Time `json:"generatedAt"`
}
