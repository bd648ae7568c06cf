package events

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Sink delivers events to their destination.
type Sink interface {
	Send(ctx context.Context, event BookingEvent) error
}

// DispatcherConfig configures the delivery worker pool.
type DispatcherConfig struct {
	Workers    int
	BufferSize int
	MaxRetries int
	RetryDelay time.Duration
	Logger     *zap.Logger
}

// Dispatcher hands events to a Sink from background workers so booking writes never wait on the broker.
// A nil Dispatcher drops events silently.
type Dispatcher struct {
	sink Sink

	workers    int
	maxRetries int
	retryDelay time.Duration
	logger     *zap.Logger

	queue   chan BookingEvent
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	mu      sync.Mutex
	started bool
}

// NewDispatcher builds a dispatcher around sink.
func NewDispatcher(sink Sink, cfg DispatcherConfig) *Dispatcher {
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = cfg.Workers * 64
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 3
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = time.Second
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}

	return &Dispatcher{
		sink:       sink,
		workers:    cfg.Workers,
		maxRetries: cfg.MaxRetries,
		retryDelay: cfg.RetryDelay,
		logger:     cfg.Logger,
		queue:      make(chan BookingEvent, cfg.BufferSize),
	}
}

// Start launches the workers. Safe to call once.
func (d *Dispatcher) Start(ctx context.Context) {
	if d == nil {
		return
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.started {
		return
	}
	d.ctx, d.cancel = context.WithCancel(ctx)
	for i := 0; i < d.workers; i++ {
		d.wg.Add(1)
		go d.worker()
	}
	d.started = true
	d.logger.Info("booking event dispatcher started", zap.Int("workers", d.workers))
}

// Stop cancels the workers and waits for them to exit. Queued events are dropped.
func (d *Dispatcher) Stop() {
	if d == nil {
		return
	}
	d.mu.Lock()
	if !d.started {
		d.mu.Unlock()
		return
	}
	d.cancel()
	d.started = false
	d.mu.Unlock()
	d.wg.Wait()
	d.logger.Info("booking event dispatcher stopped")
}

// Publish queues an event without blocking. It fails when the buffer is full or the dispatcher is stopped.
func (d *Dispatcher) Publish(_ context.Context, event BookingEvent) error {
	if d == nil {
		return nil
	}
	d.mu.Lock()
	started := d.started
	d.mu.Unlock()
	if !started {
		return fmt.Errorf("booking event dispatcher not started")
	}

	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.OccurredAt.IsZero() {
		event.OccurredAt = time.Now().UTC()
	}

	select {
	case d.queue <- event:
		return nil
	default:
		return fmt.Errorf("booking event buffer full, dropping %s for %s", event.Type, event.BookingID)
	}
}

func (d *Dispatcher) worker() {
	defer d.wg.Done()
	for {
		select {
		case <-d.ctx.Done():
			return
		case event := <-d.queue:
			if err := d.sink.Send(d.ctx, event); err != nil {
				d.retry(event, err)
			}
		}
	}
}

func (d *Dispatcher) retry(event BookingEvent, err error) {
	event.Attempt++
	if event.Attempt > d.maxRetries {
		d.logger.Error("booking event dropped after retries",
			zap.String("event_id", event.ID),
			zap.String("type", event.Type),
			zap.String("booking_id", event.BookingID),
			zap.Error(err),
		)
		return
	}
	d.logger.Warn("booking event delivery failed, retrying",
		zap.String("event_id", event.ID),
		zap.String("type", event.Type),
		zap.Int("attempt", event.Attempt),
		zap.Error(err),
	)

	go func(e BookingEvent) {
		timer := time.NewTimer(d.retryDelay)
		defer timer.Stop()
		select {
		case <-d.ctx.Done():
			return
		case <-timer.C:
			select {
			case d.queue <- e:
			case <-d.ctx.Done():
			}
		}
	}(event)
}
